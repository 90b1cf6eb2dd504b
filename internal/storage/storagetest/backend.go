// Package storagetest provides an instrumented in-memory storage
// backend for tests.
package storagetest

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/modkit-dev/modkit/internal/cachekey"
	"github.com/modkit-dev/modkit/internal/storage"
)

// Backend is an in-memory storage.Backend with failure injection and
// concurrency instrumentation.
type Backend struct {
	mu      sync.Mutex
	objects map[cachekey.Checksum][]byte

	// FetchErr, when set for a checksum, is returned by Fetch instead
	// of the object
	FetchErr map[cachekey.Checksum]error

	// StoreErr, when set, fails every Store call
	StoreErr error

	// Latency is added to every Fetch, to widen concurrency windows
	Latency time.Duration

	// Hint is returned by ParallelismHint
	Hint int

	fetchCalls    int
	storeCalls    int
	inFlight      int
	maxConcurrent int
}

// New creates an empty instrumented backend
func New() *Backend {
	return &Backend{
		objects:  make(map[cachekey.Checksum][]byte),
		FetchErr: make(map[cachekey.Checksum]error),
	}
}

// Put seeds an object directly, bypassing instrumentation
func (b *Backend) Put(checksum cachekey.Checksum, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[checksum] = append([]byte(nil), data...)
}

// Has reports whether an object is present
func (b *Backend) Has(checksum cachekey.Checksum) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[checksum]
	return ok
}

// Fetch implements storage.Backend
func (b *Backend) Fetch(_ context.Context, checksum cachekey.Checksum) (io.ReadCloser, error) {
	b.mu.Lock()
	b.fetchCalls++
	b.inFlight++
	if b.inFlight > b.maxConcurrent {
		b.maxConcurrent = b.inFlight
	}
	b.mu.Unlock()

	if b.Latency > 0 {
		time.Sleep(b.Latency)
	}

	b.mu.Lock()
	b.inFlight--
	err := b.FetchErr[checksum]
	data, ok := b.objects[checksum]
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, storage.ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Store implements storage.Backend
func (b *Backend) Store(_ context.Context, checksum cachekey.Checksum, r io.Reader) error {
	b.mu.Lock()
	b.storeCalls++
	err := b.StoreErr
	b.mu.Unlock()

	if err != nil {
		return err
	}

	data, rerr := io.ReadAll(r)
	if rerr != nil {
		return rerr
	}

	b.Put(checksum, data)
	return nil
}

// ParallelismHint implements storage.Backend
func (b *Backend) ParallelismHint() int {
	return b.Hint
}

// FetchCalls returns the number of Fetch invocations
func (b *Backend) FetchCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetchCalls
}

// StoreCalls returns the number of Store invocations
func (b *Backend) StoreCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.storeCalls
}

// MaxConcurrent returns the peak number of simultaneous fetches
func (b *Backend) MaxConcurrent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxConcurrent
}
