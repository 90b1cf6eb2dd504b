package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/modkit-dev/modkit/internal/pins"
	"github.com/modkit-dev/modkit/internal/utils"
)

// Default configuration values
const (
	DefaultOutputDir     = "bundles"
	DefaultDerivedDir    = ".modkit/derived"
	DefaultBinariesDir   = ".modkit/binaries"
	DefaultCacheDir      = ".modkit-cache"
	DefaultToolchainPath = "modc"
	DefaultPlatforms     = "linux/amd64"
	DefaultFlavor        = "release"
	DefaultCacheMode     = ModeProject
	DefaultLogLevel      = "info"
)

// Cache modes
const (
	// ModeDisabled turns caching off entirely
	ModeDisabled = "disabled"

	// ModeProject caches to the project-local cache directory, both
	// reading and writing
	ModeProject = "project"

	// ModeStorage caches against a configured storage backend with
	// independently toggled producer/consumer roles
	ModeStorage = "storage"
)

// BuildOptions is the effective build configuration for one module.
//
// Every field here participates in cache-key derivation; anything that
// cannot change the produced artifact's bits (output paths, overwrite,
// verbosity, cache mode) must live on Config instead.
type BuildOptions struct {
	// Target platforms as os/arch pairs
	Platforms []string

	// Build flavor (debug or release)
	Flavor string

	// Emit a stable module interface for downstream consumers
	LibraryEvolution bool

	// Pinned toolchain version; empty means "whatever is installed",
	// which excludes the toolchain from the cache key
	ToolchainVersion string
}

// BuildOverride is a per-module partial override of the base build
// options. Zero-valued fields inherit from the base.
type BuildOverride struct {
	Platforms        []string `mapstructure:"platforms"`
	Flavor           string   `mapstructure:"flavor"`
	LibraryEvolution *bool    `mapstructure:"library_evolution"`
	ToolchainVersion string   `mapstructure:"toolchain_version"`
}

// StorageConfig selects and scopes the remote cache backend
type StorageConfig struct {
	// Backend kind: disk or http
	Backend string `mapstructure:"backend"`

	// URL is the base endpoint for the http backend
	URL string `mapstructure:"url"`

	// Producer enables write-back of newly built artifacts
	Producer bool `mapstructure:"producer"`

	// Consumer enables restore of artifacts from the backend
	Consumer bool `mapstructure:"consumer"`
}

// Holds the configuration options for modkit
type Config struct {
	// Directory receiving assembled bundles, one per module
	OutputDir string

	// Scratch directory used by the compiler between runs
	DerivedDir string

	// Directory holding pre-supplied binary bundles awaiting extraction
	BinariesDir string

	// Project-local cache directory
	CacheDir string

	// Path to the module toolchain binary
	ToolchainPath string

	// Path to the dependency lockfile
	Lockfile string

	// Base build options applied to every module
	Build BuildOptions

	// Per-module build option overrides, keyed by module name
	Overrides map[string]BuildOverride

	// Cache mode: disabled, project or storage
	CacheMode string

	// Storage backend settings, used when CacheMode is "storage"
	Storage StorageConfig

	// Packages excluded from building and caching
	Skip []string

	// Recreate outputs even when a bundle already exists
	Overwrite bool

	// Prepare marks a dependency-preparation run, which also writes
	// version files next to the bundles
	Prepare bool

	// Enable verbose output
	Verbose bool

	// Logging
	LogLevel string
	LogJSON  bool
	LogFile  string
}

func Load() (*Config, error) {
	cfg := &Config{
		OutputDir:     viper.GetString("output_dir"),
		DerivedDir:    viper.GetString("derived_dir"),
		BinariesDir:   viper.GetString("binaries_dir"),
		CacheDir:      viper.GetString("cache_dir"),
		ToolchainPath: viper.GetString("toolchain_path"),
		Lockfile:      viper.GetString("lockfile"),
		Build: BuildOptions{
			Platforms:        utils.ParsePlatforms(viper.GetString("platforms")),
			Flavor:           viper.GetString("flavor"),
			LibraryEvolution: viper.GetBool("library_evolution"),
			ToolchainVersion: viper.GetString("toolchain_version"),
		},
		CacheMode: viper.GetString("cache_mode"),
		Skip:      viper.GetStringSlice("skip"),
		Overwrite: viper.GetBool("overwrite"),
		Prepare:   viper.GetBool("prepare"),
		Verbose:   viper.GetBool("verbose"),
		LogLevel:  viper.GetString("log_level"),
		LogJSON:   viper.GetBool("log_json"),
		LogFile:   viper.GetString("log_file"),
	}

	if err := viper.UnmarshalKey("overrides", &cfg.Overrides); err != nil {
		return nil, fmt.Errorf("invalid module overrides: %w", err)
	}

	if err := viper.UnmarshalKey("storage", &cfg.Storage); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	// Apply defaults if not set
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}

	if cfg.DerivedDir == "" {
		cfg.DerivedDir = DefaultDerivedDir
	}

	if cfg.BinariesDir == "" {
		cfg.BinariesDir = DefaultBinariesDir
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir
	}

	if cfg.ToolchainPath == "" {
		cfg.ToolchainPath = DefaultToolchainPath
	}

	if cfg.Lockfile == "" {
		cfg.Lockfile = pins.DefaultLockfile
	}

	if cfg.Build.Flavor == "" {
		cfg.Build.Flavor = DefaultFlavor
	}

	if cfg.CacheMode == "" {
		cfg.CacheMode = DefaultCacheMode
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	for _, path := range []*string{&c.OutputDir, &c.DerivedDir, &c.BinariesDir, &c.CacheDir, &c.Lockfile} {
		abs, err := filepath.Abs(*path)
		if err != nil {
			return fmt.Errorf("invalid path %q: %v", *path, err)
		}

		*path = abs
	}

	switch c.CacheMode {
	case ModeDisabled, ModeProject:
	case ModeStorage:
		switch c.Storage.Backend {
		case "disk":
		case "http":
			if c.Storage.URL == "" {
				return fmt.Errorf("storage backend %q requires a url", c.Storage.Backend)
			}
		default:
			return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("invalid cache mode: %q", c.CacheMode)
	}

	if len(c.Build.Platforms) == 0 {
		return fmt.Errorf("no valid target platforms configured")
	}

	switch c.Build.Flavor {
	case "debug", "release":
	default:
		return fmt.Errorf("invalid build flavor: %q", c.Build.Flavor)
	}

	return nil
}

// Consuming reports whether the active cache mode restores artifacts
func (c *Config) Consuming() bool {
	switch c.CacheMode {
	case ModeProject:
		return true
	case ModeStorage:
		return c.Storage.Consumer
	}

	return false
}

// Producing reports whether the active cache mode writes artifacts back
func (c *Config) Producing() bool {
	switch c.CacheMode {
	case ModeProject:
		return true
	case ModeStorage:
		return c.Storage.Producer
	}

	return false
}

// CacheEnabled reports whether any caching is active
func (c *Config) CacheEnabled() bool {
	return c.CacheMode != ModeDisabled
}

// SkipSet returns the skip list as a membership set
func (c *Config) SkipSet() map[pins.PackageID]bool {
	set := make(map[pins.PackageID]bool, len(c.Skip))
	for _, pkg := range c.Skip {
		set[pins.PackageID(pkg)] = true
	}

	return set
}

// OptionsFor resolves the effective build options for a module, applying
// any per-module override on top of the base options.
func (c *Config) OptionsFor(module string) BuildOptions {
	opts := c.Build

	ov, ok := c.Overrides[module]
	if !ok {
		return opts
	}

	if len(ov.Platforms) > 0 {
		opts.Platforms = ov.Platforms
	}

	if ov.Flavor != "" {
		opts.Flavor = ov.Flavor
	}

	if ov.LibraryEvolution != nil {
		opts.LibraryEvolution = *ov.LibraryEvolution
	}

	if ov.ToolchainVersion != "" {
		opts.ToolchainVersion = ov.ToolchainVersion
	}

	return opts
}
