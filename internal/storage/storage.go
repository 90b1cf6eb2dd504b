// Package storage defines the pluggable artifact storage backend
// consumed by the cache system.
//
// Backends are capability-scoped: the backend itself only knows how to
// fetch and store bytes by checksum, while the ActorSet decides which of
// those operations the run is allowed to use. Only consumer-capable
// configurations are queried during restore and only producer-capable
// configurations receive writes.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/modkit-dev/modkit/internal/cachekey"
)

// DefaultParallelism caps concurrent fetches when a backend advertises
// no hint of its own
const DefaultParallelism = 4

// ErrNotFound is returned by Fetch when no artifact exists for a checksum
var ErrNotFound = errors.New("artifact not found in storage")

// Backend stores and retrieves artifact archives keyed by checksum
type Backend interface {
	// Fetch returns a reader over the artifact stored under checksum,
	// or ErrNotFound
	Fetch(ctx context.Context, checksum cachekey.Checksum) (io.ReadCloser, error)

	// Store persists the artifact bytes under checksum
	Store(ctx context.Context, checksum cachekey.Checksum, r io.Reader) error

	// ParallelismHint is the backend's advertised ceiling for
	// concurrent fetches; zero means no hint
	ParallelismHint() int
}

// ActorSet scopes which backend operations a run may use
type ActorSet struct {
	// Producer permits write-back of newly built artifacts
	Producer bool

	// Consumer permits restore of artifacts
	Consumer bool
}

// Parallelism resolves a backend's effective fetch concurrency, clamped
// to DefaultParallelism.
func Parallelism(b Backend) int {
	if b == nil {
		return DefaultParallelism
	}

	if hint := b.ParallelismHint(); hint > 0 && hint < DefaultParallelism {
		return hint
	}

	return DefaultParallelism
}
