// Package pins loads the resolved dependency pin state for a run.
//
// Pins come from the project lockfile (modkit.lock), which records the
// exact version and revision every package resolved to. The pin store is
// loaded once per run and is read-only afterwards; cache keys derive
// from it, so two runs with the same lockfile see the same pin state.
package pins

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultLockfile is the lockfile name looked up in the project root
const DefaultLockfile = "modkit.lock"

// PackageID identifies a resolved package (e.g. "github.com/acme/widgets")
type PackageID string

// Pin is the resolved state of one pinned package
type Pin struct {
	Package  PackageID `yaml:"package" json:"package"`
	Version  string    `yaml:"version" json:"version"`
	Revision string    `yaml:"revision" json:"revision"`
}

// Store holds the full pin set for a run
type Store struct {
	pins map[PackageID]Pin
}

type lockfile struct {
	Pins []Pin `yaml:"pins"`
}

// Load reads a lockfile and returns the pin store
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}

	var lf lockfile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("failed to parse lockfile %s: %w", path, err)
	}

	return NewStore(lf.Pins), nil
}

// NewStore builds a pin store from an explicit pin list
func NewStore(pins []Pin) *Store {
	m := make(map[PackageID]Pin, len(pins))
	for _, p := range pins {
		m[p.Package] = p
	}

	return &Store{pins: m}
}

// Resolve returns the pin for a package, if one exists
func (s *Store) Resolve(pkg PackageID) (Pin, bool) {
	p, ok := s.pins[pkg]
	return p, ok
}

// All returns every pin, sorted by package identity
func (s *Store) All() []Pin {
	pins := make([]Pin, 0, len(s.pins))
	for _, p := range s.pins {
		pins = append(pins, p)
	}

	sort.Slice(pins, func(i, j int) bool {
		return pins[i].Package < pins[j].Package
	})

	return pins
}

// Len returns the number of pinned packages
func (s *Store) Len() int {
	return len(s.pins)
}
