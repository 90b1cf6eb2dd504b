package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modkit-dev/modkit/internal/cache"
	"github.com/modkit-dev/modkit/internal/compiler"
	"github.com/modkit-dev/modkit/internal/config"
	"github.com/modkit-dev/modkit/internal/graph"
	"github.com/modkit-dev/modkit/internal/logging"
	"github.com/modkit-dev/modkit/internal/orchestrator"
	"github.com/modkit-dev/modkit/internal/pins"
	"github.com/modkit-dev/modkit/internal/storage"
	"github.com/modkit-dev/modkit/internal/storage/disk"
	"github.com/modkit-dev/modkit/internal/storage/httpstorage"
)

var prebuildCmd = &cobra.Command{
	Use:          "prebuild",
	Short:        "Prebuild dependency modules",
	Long:         `Restore cached bundles where possible and build the rest.`,
	RunE:         runPrebuild,
	SilenceUsage: true,
}

func runPrebuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().LoadForBuild(cmd)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if cfg.Verbose {
		level = "debug"
	}

	if _, err := logging.Init(logging.Options{
		Level: level,
		JSON:  cfg.LogJSON,
		File:  cfg.LogFile,
	}); err != nil {
		return err
	}

	store, err := pins.Load(cfg.Lockfile)
	if err != nil {
		return err
	}

	cacheSystem, cleanup, err := newCacheSystem(cfg, store)
	if err != nil {
		return err
	}
	defer cleanup()

	o := orchestrator.New(
		cfg,
		graph.New(store, cfg.BinariesDir),
		compiler.New(cfg.ToolchainPath, cfg.DerivedDir),
		compiler.NewExtractor(cfg.BinariesDir),
		cacheSystem,
	)

	return o.Run(cmd.Context())
}

// newCacheSystem builds the cache system for the configured mode. The
// returned cleanup closes the backend; it is always safe to call.
func newCacheSystem(cfg *config.Config, store *pins.Store) (*cache.System, func(), error) {
	noop := func() {}

	switch cfg.CacheMode {
	case config.ModeDisabled:
		return nil, noop, nil

	case config.ModeProject:
		backend, err := disk.New(cfg.CacheDir)
		if err != nil {
			return nil, noop, err
		}

		actors := storage.ActorSet{Producer: true, Consumer: true}
		return cache.NewSystem(backend, actors, store, cfg.OutputDir), func() { backend.Close() }, nil

	case config.ModeStorage:
		actors := storage.ActorSet{
			Producer: cfg.Storage.Producer,
			Consumer: cfg.Storage.Consumer,
		}

		switch cfg.Storage.Backend {
		case "disk":
			backend, err := disk.New(cfg.CacheDir)
			if err != nil {
				return nil, noop, err
			}

			return cache.NewSystem(backend, actors, store, cfg.OutputDir), func() { backend.Close() }, nil
		case "http":
			backend, err := httpstorage.New(cfg.Storage.URL)
			if err != nil {
				return nil, noop, err
			}

			return cache.NewSystem(backend, actors, store, cfg.OutputDir), noop, nil
		}
	}

	return nil, noop, fmt.Errorf("invalid cache configuration")
}
