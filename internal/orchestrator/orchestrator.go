// Package orchestrator drives a full prebuild run: clean, resolve,
// restore from cache, build the remainder, store new artifacts back and
// write version files.
package orchestrator

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/modkit-dev/modkit/internal/cache"
	"github.com/modkit-dev/modkit/internal/cachekey"
	"github.com/modkit-dev/modkit/internal/config"
	"github.com/modkit-dev/modkit/internal/pins"
	"github.com/modkit-dev/modkit/internal/restore"
)

// ResolvedTarget is one buildable unit reported by graph resolution
type ResolvedTarget struct {
	Package pins.PackageID
	Module  string
	Kind    cachekey.TargetKind
}

// GraphResolver resolves the dependency graph into buildable targets
type GraphResolver interface {
	ResolveBuildableTargets() ([]ResolvedTarget, error)
}

// Compiler assembles a library target's bundle from source
type Compiler interface {
	Compile(ctx context.Context, target cachekey.Target, outputDir string, overwrite bool) error
}

// Extractor unpacks a binary target's pre-supplied bundle
type Extractor interface {
	ExtractPrebuilt(ctx context.Context, target cachekey.Target, outputDir string, overwrite bool) error
}

// Orchestrator coordinates one prebuild run
type Orchestrator struct {
	cfg       *config.Config
	resolver  GraphResolver
	compiler  Compiler
	extractor Extractor
	cache     *cache.System
	restorer  *restore.Orchestrator
	log       *logrus.Entry
}

// New creates an orchestrator. cacheSystem may be nil when caching is
// disabled.
func New(cfg *config.Config, resolver GraphResolver, compiler Compiler, extractor Extractor, cacheSystem *cache.System) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		resolver:  resolver,
		compiler:  compiler,
		extractor: extractor,
		cache:     cacheSystem,
		restorer:  restore.New(cacheSystem),
		log:       logrus.WithField("component", "orchestrator"),
	}
}

// Run executes the full restore/build/store cycle. Per-target cache
// failures degrade to builds; only structural failures (clean, graph
// resolution, an actual build failure) abort the run.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.clean(); err != nil {
		return err
	}

	candidates, err := o.resolveCandidates()
	if err != nil {
		return err
	}

	if len(candidates) == 0 {
		o.log.Info("no buildable targets")
		return nil
	}

	restored := o.restorer.Restore(ctx, candidates)

	restoredSet := make(map[string]bool, len(restored))
	for _, target := range restored {
		restoredSet[target.ID()] = true
	}

	// Builds run sequentially; the compiler manages its own internal
	// concurrency and shares derived state across targets.
	built := make([]cachekey.Target, 0, len(candidates)-len(restored))
	for _, target := range candidates {
		if restoredSet[target.ID()] {
			continue
		}

		if err := o.build(ctx, target); err != nil {
			return err
		}

		built = append(built, target)
	}

	o.log.WithFields(logrus.Fields{
		"restored": len(restored),
		"built":    len(built),
	}).Info("prebuild complete")

	if o.cache != nil {
		o.cache.CacheModules(ctx, built)
	}

	if o.cache != nil && o.cfg.Prepare {
		// Superset pass: version files cover restored targets too, so
		// a later consuming run can trust every bundle it finds.
		for _, target := range candidates {
			if err := o.cache.GenerateVersionFile(target); err != nil {
				o.log.WithField("module", target.Module).WithError(err).Warn("failed to write version file")
			}
		}
	}

	return nil
}

// clean removes prior derived data and assembled outputs. Idempotent.
func (o *Orchestrator) clean() error {
	for _, dir := range []string{o.cfg.DerivedDir, o.cfg.OutputDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to clean %s: %w", dir, err)
		}
	}

	if err := os.MkdirAll(o.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	return nil
}

// resolveCandidates turns graph resolution output into the ordered,
// deduplicated candidate target set: buildable kinds only, skip-listed
// packages dropped, effective build options attached per module.
func (o *Orchestrator) resolveCandidates() ([]cachekey.Target, error) {
	resolved, err := o.resolver.ResolveBuildableTargets()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve buildable targets: %w", err)
	}

	skip := o.cfg.SkipSet()

	candidates := make([]cachekey.Target, 0, len(resolved))
	seen := make(map[string]bool, len(resolved))

	for _, rt := range resolved {
		if rt.Kind != cachekey.KindLibrary && rt.Kind != cachekey.KindBinary {
			continue
		}

		if skip[rt.Package] {
			o.log.WithField("package", rt.Package).Debug("skipped")
			continue
		}

		target := cachekey.Target{
			Package: rt.Package,
			Module:  rt.Module,
			Kind:    rt.Kind,
			Options: o.cfg.OptionsFor(rt.Module),
		}

		// Duplicates are a caller quirk, not an error; first wins
		if seen[target.ID()] {
			continue
		}

		seen[target.ID()] = true
		candidates = append(candidates, target)
	}

	return candidates, nil
}

// build produces one target's bundle via the external collaborator
func (o *Orchestrator) build(ctx context.Context, target cachekey.Target) error {
	log := o.log.WithField("module", target.Module)

	switch target.Kind {
	case cachekey.KindLibrary:
		log.Info("compiling")
		if err := o.compiler.Compile(ctx, target, o.cfg.OutputDir, o.cfg.Overwrite); err != nil {
			return fmt.Errorf("failed to build %s: %w", target.Module, err)
		}
	case cachekey.KindBinary:
		log.Info("extracting prebuilt bundle")
		if err := o.extractor.ExtractPrebuilt(ctx, target, o.cfg.OutputDir, o.cfg.Overwrite); err != nil {
			return fmt.Errorf("failed to extract %s: %w", target.Module, err)
		}
	default:
		// Kinds are filtered during candidate resolution; reaching
		// here means the pipeline broke an invariant upstream.
		return fmt.Errorf("unexpected target kind %q for %s", target.Kind, target.Module)
	}

	return nil
}
