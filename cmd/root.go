package cmd

import (
	"fmt"
	"os"

	"github.com/modkit-dev/modkit/internal/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "modkit",
	Short:        "Prebuilt module cache",
	Long:         `Prebuild a project's resolved dependency modules into binary bundles, reusing cached artifacts where nothing changed.`,
	RunE:         runPrebuild,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output directory for assembled bundles")
	rootCmd.PersistentFlags().StringP("platforms", "p", "", "Target platforms as comma-separated os/arch pairs")
	rootCmd.PersistentFlags().StringP("flavor", "f", "", "Build flavor (debug or release)")
	rootCmd.PersistentFlags().String("cache-mode", "", "Cache mode (disabled, project or storage)")
	rootCmd.PersistentFlags().StringSlice("skip", []string{}, "Packages excluded from building and caching")
	rootCmd.PersistentFlags().Bool("overwrite", false, "Recreate outputs even when a bundle already exists")
	rootCmd.PersistentFlags().Bool("prepare", false, "Dependency-preparation run: also write version files")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.AddCommand(prebuildCmd)
	rootCmd.AddCommand(cacheCmd)
}
