package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from various sources
type Loader struct{}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForBuild loads configuration specifically for prebuild operations
func (l *Loader) LoadForBuild(cmd *cobra.Command) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.loadLocalConfig()
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("output_dir", DefaultOutputDir)
	viper.SetDefault("derived_dir", DefaultDerivedDir)
	viper.SetDefault("cache_dir", DefaultCacheDir)
	viper.SetDefault("platforms", DefaultPlatforms)
	viper.SetDefault("flavor", DefaultFlavor)
	viper.SetDefault("cache_mode", DefaultCacheMode)
	viper.SetDefault("log_level", DefaultLogLevel)
}

// loadGlobalConfig loads global configuration from the user config dir
func (l *Loader) loadGlobalConfig() {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return
	}

	globalDir := filepath.Join(configDir, "modkit")

	for _, ext := range []string{"yml", "yaml", "json", "toml"} {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.ReadInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig loads local configuration from the project directory
func (l *Loader) loadLocalConfig() {
	cwd, err := os.Getwd()
	if err != nil {
		return // silently ignore, Load() will handle validation
	}

	localPath := FindLocalConfig(cwd)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.ReadInConfig()
	}
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("output_dir", cmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("platforms", cmd.Flags().Lookup("platforms"))
	_ = viper.BindPFlag("flavor", cmd.Flags().Lookup("flavor"))
	_ = viper.BindPFlag("cache_mode", cmd.Flags().Lookup("cache-mode"))
	_ = viper.BindPFlag("skip", cmd.Flags().Lookup("skip"))
	_ = viper.BindPFlag("overwrite", cmd.Flags().Lookup("overwrite"))
	_ = viper.BindPFlag("prepare", cmd.Flags().Lookup("prepare"))
	_ = viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
}
