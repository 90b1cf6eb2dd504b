// Package cache mediates per-target cache decisions between key
// derivation, checksums, the storage backend and the local output
// directory.
//
// Every operation here is per-target and isolated: one target's cache
// failure is logged and converted to a miss or a failed outcome, never
// propagated to abort the run. The only fatal condition is a cache key
// that cannot be serialized, which is a programming error.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/modkit-dev/modkit/internal/artifact"
	"github.com/modkit-dev/modkit/internal/cachekey"
	"github.com/modkit-dev/modkit/internal/pins"
	"github.com/modkit-dev/modkit/internal/storage"
)

// System coordinates caching for one run against one storage backend
type System struct {
	backend   storage.Backend
	actors    storage.ActorSet
	pins      *pins.Store
	outputDir string
	log       *logrus.Entry
}

// NewSystem creates a cache system. A nil backend disables all storage
// traffic; the actor set scopes which operations may touch it.
func NewSystem(backend storage.Backend, actors storage.ActorSet, store *pins.Store, outputDir string) *System {
	return &System{
		backend:   backend,
		actors:    actors,
		pins:      store,
		outputDir: outputDir,
		log:       logrus.WithField("component", "cache"),
	}
}

// Backend exposes the configured storage backend (nil when disabled)
func (s *System) Backend() storage.Backend {
	return s.backend
}

// Consuming reports whether restore from storage is permitted
func (s *System) Consuming() bool {
	return s.backend != nil && s.actors.Consumer
}

// Producing reports whether write-back to storage is permitted
func (s *System) Producing() bool {
	return s.backend != nil && s.actors.Producer
}

// CalculateCacheKey derives the cache key for a target from the run's
// pin store
func (s *System) CalculateCacheKey(target cachekey.Target) (cachekey.Key, error) {
	return cachekey.Compute(target, s.pins)
}

// LocalBundleExists reports whether the target's bundle directory is
// already present in the output directory
func (s *System) LocalBundleExists(target cachekey.Target) bool {
	return artifact.Exists(s.outputDir, target.Module)
}

// RemoveLocalBundle deletes the target's bundle and its version file
func (s *System) RemoveLocalBundle(target cachekey.Target) error {
	if err := os.RemoveAll(artifact.BundlePath(s.outputDir, target.Module)); err != nil {
		return fmt.Errorf("failed to remove stale bundle for %s: %w", target.Module, err)
	}

	if err := os.Remove(VersionFilePath(s.outputDir, target.Module)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale version file for %s: %w", target.Module, err)
	}

	return nil
}

// ExistsValidCache reports whether a record matching checksum(key)
// exactly exists. A locally-present bundle is valid only when its
// version file records the same checksum; with no local bundle,
// consumer-capable storage is probed. Never matches partially.
func (s *System) ExistsValidCache(ctx context.Context, key cachekey.Key) (bool, error) {
	checksum, err := key.Checksum()
	if err != nil {
		return false, err
	}

	if artifact.Exists(s.outputDir, key.ModuleName) {
		vf, err := readVersionFile(s.outputDir, key.ModuleName)
		if err != nil {
			s.log.WithField("module", key.ModuleName).WithError(err).Debug("unreadable version file")
			return false, nil
		}

		return vf != nil && vf.Checksum == checksum.String(), nil
	}

	if !s.Consuming() {
		return false, nil
	}

	rc, err := s.backend.Fetch(ctx, checksum)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	rc.Close()
	return true, nil
}

// RestoreCacheIfPossible attempts to make the target's bundle locally
// present from storage. The outcome is three-way: no candidate existed,
// a candidate failed to transfer or validate, or the bundle is now
// present and verified.
func (s *System) RestoreCacheIfPossible(ctx context.Context, target cachekey.Target) RestoreResult {
	log := s.log.WithField("module", target.Module)

	key, err := s.CalculateCacheKey(target)
	if err != nil {
		// Derivation failure means there is nothing addressable to
		// restore; fall through to a normal build.
		log.WithError(err).Debug("cache key derivation failed")
		return NoCache()
	}

	checksum, err := key.Checksum()
	if err != nil {
		return Failed(err)
	}

	if !s.Consuming() {
		return NoCache()
	}

	rc, err := s.backend.Fetch(ctx, checksum)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.WithField("checksum", checksum.Encoded()[:12]).Debug("cache miss")
			return NoCache()
		}

		return Failed(fmt.Errorf("fetch of %s failed: %w", checksum.Encoded()[:12], err))
	}
	defer rc.Close()

	bundleDir := artifact.BundlePath(s.outputDir, target.Module)
	if err := os.RemoveAll(bundleDir); err != nil {
		return Failed(fmt.Errorf("failed to clear bundle directory: %w", err))
	}

	if err := artifact.Unpack(rc, bundleDir); err != nil {
		// Never leave a half-extracted bundle behind
		os.RemoveAll(bundleDir)
		return Failed(fmt.Errorf("failed to unpack bundle for %s: %w", target.Module, err))
	}

	// Refresh the version file so the local fast path matches on the
	// next run. Losing it only costs that fast path.
	if err := writeVersionFile(s.outputDir, key, checksum); err != nil {
		log.WithError(err).Warn("failed to write version file")
	}

	log.WithField("checksum", checksum.Encoded()[:12]).Debug("restored from cache")
	return Succeeded()
}

// CacheModules stores the bundles of just-built targets back to the
// backend. Best-effort: requires producer capability, and individual
// failures are logged without aborting the batch.
func (s *System) CacheModules(ctx context.Context, targets []cachekey.Target) {
	if !s.Producing() {
		return
	}

	for _, target := range targets {
		if err := s.cacheModule(ctx, target); err != nil {
			s.log.WithField("module", target.Module).WithError(err).Warn("failed to cache module")
		}
	}
}

func (s *System) cacheModule(ctx context.Context, target cachekey.Target) error {
	if !s.LocalBundleExists(target) {
		return fmt.Errorf("no local bundle to store")
	}

	key, err := s.CalculateCacheKey(target)
	if err != nil {
		return err
	}

	checksum, err := key.Checksum()
	if err != nil {
		return err
	}

	bundleDir := artifact.BundlePath(s.outputDir, target.Module)

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(artifact.Pack(bundleDir, pw))
	}()

	if err := s.backend.Store(ctx, checksum, pr); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("store of %s failed: %w", checksum.Encoded()[:12], err)
	}

	s.log.WithFields(logrus.Fields{
		"module":   target.Module,
		"checksum": checksum.Encoded()[:12],
	}).Debug("stored bundle")

	return nil
}

// GenerateVersionFile writes the version record for a target's bundle.
// Failure is recoverable; the bundle stays usable, only the local
// staleness fast path is lost.
func (s *System) GenerateVersionFile(target cachekey.Target) error {
	key, err := s.CalculateCacheKey(target)
	if err != nil {
		return err
	}

	checksum, err := key.Checksum()
	if err != nil {
		return err
	}

	return writeVersionFile(s.outputDir, key, checksum)
}
