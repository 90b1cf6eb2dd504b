// Package restore determines which candidate targets already have a
// valid local bundle, fetching from storage where possible.
//
// Candidates are partitioned into ordered chunks sized by the storage
// backend's parallelism hint. Attempts within a chunk run concurrently;
// chunks run strictly one after another, so peak concurrency never
// exceeds one chunk's width. Each attempt is isolated: its failure is
// logged and counted as not-restored, never propagated to siblings.
package restore

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/modkit-dev/modkit/internal/cache"
	"github.com/modkit-dev/modkit/internal/cachekey"
	"github.com/modkit-dev/modkit/internal/storage"
)

// Orchestrator runs chunked restore attempts over a candidate set
type Orchestrator struct {
	cache *cache.System
	log   *logrus.Entry
}

// New creates a restore orchestrator over the given cache system
func New(cacheSystem *cache.System) *Orchestrator {
	return &Orchestrator{
		cache: cacheSystem,
		log:   logrus.WithField("component", "restore"),
	}
}

// Restore returns the subset of targets that now have a verified local
// bundle. When consuming is disabled it returns nil immediately, without
// contacting storage.
func (o *Orchestrator) Restore(ctx context.Context, targets []cachekey.Target) []cachekey.Target {
	if o.cache == nil || !o.cache.Consuming() {
		return nil
	}

	width := storage.Parallelism(o.cache.Backend())
	restored := make([]bool, len(targets))

	for start := 0; start < len(targets); start += width {
		end := min(start+width, len(targets))

		// One goroutine per chunk member; Wait is the join barrier
		// before the next chunk starts.
		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				restored[i] = o.restoreTarget(ctx, targets[i])
				return nil
			})
		}

		_ = g.Wait()
	}

	result := make([]cachekey.Target, 0, len(targets))
	for i, target := range targets {
		if restored[i] {
			result = append(result, target)
		}
	}

	return result
}

// restoreTarget is one isolated restore attempt. A bundle already
// present and matching its expected key needs no work; a stale bundle
// is deleted before re-fetching; anything else falls through to a fetch
// from storage.
func (o *Orchestrator) restoreTarget(ctx context.Context, target cachekey.Target) bool {
	log := o.log.WithField("module", target.Module)

	if exists := o.cache.LocalBundleExists(target); exists {
		// The validity of an absent bundle is irrelevant; only a
		// locally-present one needs checking against its key.
		valid := false
		if key, err := o.cache.CalculateCacheKey(target); err != nil {
			log.WithError(err).Debug("cache key derivation failed")
		} else if valid, err = o.cache.ExistsValidCache(ctx, key); err != nil {
			log.WithError(err).Warn("cache validity check failed")
		}

		if valid {
			log.Debug("local bundle up to date")
			return true
		}

		if err := o.cache.RemoveLocalBundle(target); err != nil {
			log.WithError(err).Warn("failed to remove stale bundle")
			return false
		}
	}

	result := o.cache.RestoreCacheIfPossible(ctx, target)
	if result.State == cache.RestoreFailed {
		log.WithError(result.Err).Warn("restore failed")
	}

	return result.Restored()
}
