package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modkit-dev/modkit/internal/config"
	"github.com/modkit-dev/modkit/internal/storage/disk"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the project-local artifact cache",
}

var cacheClearCmd = &cobra.Command{
	Use:          "clear",
	Short:        "Remove all cached artifacts",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := openDiskBackend(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		if err := backend.Clear(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}

		cmd.Println("cache cleared")
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Show cached artifact count and size",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := openDiskBackend(cmd)
		if err != nil {
			return err
		}
		defer backend.Close()

		count, size, err := backend.Stats()
		if err != nil {
			return fmt.Errorf("failed to read cache stats: %w", err)
		}

		cmd.Printf("%d artifacts, %.1f MiB\n", count, float64(size)/(1024*1024))
		return nil
	},
}

func openDiskBackend(cmd *cobra.Command) (*disk.Backend, error) {
	cfg, err := config.NewLoader().LoadForBuild(cmd)
	if err != nil {
		return nil, err
	}

	return disk.New(cfg.CacheDir)
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
}
