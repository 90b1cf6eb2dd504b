// Package cachekey derives deterministic cache keys for build targets.
//
// A cache key captures everything that can change the bits of a module's
// assembled bundle: the module identity, the resolved pin of every
// dependency in the lockfile, and the participating build options
// (platforms, flavor, library evolution, pinned toolchain version).
// Output locations, the overwrite flag, verbosity and the cache mode
// never participate. Keys serialize to canonical JSON so their checksum
// is reproducible across runs and processes.
package cachekey

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/opencontainers/go-digest"

	"github.com/modkit-dev/modkit/internal/config"
	"github.com/modkit-dev/modkit/internal/pins"
)

// TargetKind distinguishes how a target's bundle is produced
type TargetKind string

const (
	// KindLibrary targets are compiled from source into a bundle
	KindLibrary TargetKind = "library"

	// KindBinary targets ship a prebuilt bundle that is extracted
	KindBinary TargetKind = "binary"
)

// Checksum is the digest of a serialized cache key. It doubles as the
// storage lookup identity and as the cache identity shown in diagnostics.
type Checksum = digest.Digest

// Target identifies one cacheable unit: a module paired with its
// effective build options. Targets are immutable once constructed.
type Target struct {
	// Package is the identity of the package owning the module
	Package pins.PackageID

	// Module is the module name; bundles are named after it
	Module string

	// Kind selects the build path for cache misses
	Kind TargetKind

	// Options is the resolved build configuration for this module
	Options config.BuildOptions
}

// ID returns the target's identity string. Two targets with the same
// module and the same option values are the same target.
func (t Target) ID() string {
	opts := t.Options

	platforms := append([]string(nil), opts.Platforms...)
	sort.Strings(platforms)

	return fmt.Sprintf("%s|%v|%s|%t|%s",
		t.Module, platforms, opts.Flavor, opts.LibraryEvolution, opts.ToolchainVersion)
}

// Key is the serializable cache key for one target.
//
// Field order is fixed by the struct definition and both Pins and
// Platforms are sorted at construction, so Marshal output is canonical.
type Key struct {
	ModuleName       string         `json:"module_name"`
	Package          pins.PackageID `json:"package"`
	Pins             []pins.Pin     `json:"pins"`
	Platforms        []string       `json:"platforms"`
	Flavor           string         `json:"flavor"`
	LibraryEvolution bool           `json:"library_evolution"`
	ToolchainVersion string         `json:"toolchain_version,omitempty"`
}

// Compute derives the cache key for a target from the run's pin store.
// It fails only when the target's owning package has no pin entry, which
// means the dependency graph and the lockfile disagree.
func Compute(target Target, store *pins.Store) (Key, error) {
	if store == nil {
		return Key{}, fmt.Errorf("no pin store available for %s", target.Module)
	}

	if _, ok := store.Resolve(target.Package); !ok {
		return Key{}, fmt.Errorf("package %s is not pinned in the lockfile", target.Package)
	}

	platforms := append([]string(nil), target.Options.Platforms...)
	sort.Strings(platforms)

	return Key{
		ModuleName:       target.Module,
		Package:          target.Package,
		Pins:             store.All(),
		Platforms:        platforms,
		Flavor:           target.Options.Flavor,
		LibraryEvolution: target.Options.LibraryEvolution,
		ToolchainVersion: target.Options.ToolchainVersion,
	}, nil
}

// Marshal serializes the key to its canonical JSON form
func (k Key) Marshal() ([]byte, error) {
	data, err := json.Marshal(k)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize cache key for %s: %w", k.ModuleName, err)
	}

	return data, nil
}

// Checksum computes the sha256 digest of the serialized key
func (k Key) Checksum() (Checksum, error) {
	data, err := k.Marshal()
	if err != nil {
		return "", err
	}

	return digest.SHA256.FromBytes(data), nil
}

// Equal reports whether two keys are identical in every field
func (k Key) Equal(other Key) bool {
	a, err := k.Marshal()
	if err != nil {
		return false
	}

	b, err := other.Marshal()
	if err != nil {
		return false
	}

	return string(a) == string(b)
}
