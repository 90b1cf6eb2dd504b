// Package graph resolves the pinned dependency graph into buildable
// targets.
package graph

import (
	"os"
	"path"
	"path/filepath"

	"github.com/modkit-dev/modkit/internal/cachekey"
	"github.com/modkit-dev/modkit/internal/orchestrator"
	"github.com/modkit-dev/modkit/internal/pins"
)

// Resolver derives one buildable target per pinned package. Packages
// with a pre-supplied archive in the binaries directory resolve as
// binary targets; everything else compiles from source.
type Resolver struct {
	store       *pins.Store
	binariesDir string
}

// New creates a resolver over the run's pin store
func New(store *pins.Store, binariesDir string) *Resolver {
	return &Resolver{store: store, binariesDir: binariesDir}
}

// ResolveBuildableTargets lists targets in lockfile order (sorted by
// package identity)
func (r *Resolver) ResolveBuildableTargets() ([]orchestrator.ResolvedTarget, error) {
	resolved := make([]orchestrator.ResolvedTarget, 0, r.store.Len())

	for _, pin := range r.store.All() {
		module := path.Base(string(pin.Package))

		kind := cachekey.KindLibrary
		if r.hasPrebuiltArchive(module) {
			kind = cachekey.KindBinary
		}

		resolved = append(resolved, orchestrator.ResolvedTarget{
			Package: pin.Package,
			Module:  module,
			Kind:    kind,
		})
	}

	return resolved, nil
}

func (r *Resolver) hasPrebuiltArchive(module string) bool {
	if r.binariesDir == "" {
		return false
	}

	_, err := os.Stat(filepath.Join(r.binariesDir, module+".bundle.tar.zst"))
	return err == nil
}
