// Package httpstorage implements a remote HTTP storage backend.
//
// Artifacts are addressed as <base>/artifacts/<checksum>; GET fetches,
// PUT stores. Any server speaking that contract works (an object store
// behind a signing proxy, a plain file server, a CI cache service).
package httpstorage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/modkit-dev/modkit/internal/cachekey"
	"github.com/modkit-dev/modkit/internal/storage"
)

// Backend talks to a remote artifact store over HTTP
type Backend struct {
	base        string
	client      *http.Client
	parallelism int
}

// Option configures a Backend
type Option func(*Backend)

// WithClient overrides the HTTP client
func WithClient(c *http.Client) Option {
	return func(b *Backend) { b.client = c }
}

// WithParallelism advertises a fetch concurrency ceiling
func WithParallelism(n int) Option {
	return func(b *Backend) { b.parallelism = n }
}

// New creates an HTTP backend for the given base URL
func New(baseURL string, opts ...Option) (*Backend, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid storage url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported storage url scheme: %q", u.Scheme)
	}

	b := &Backend{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 5 * time.Minute},
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Fetch downloads the artifact stored under checksum
func (b *Backend) Fetch(ctx context.Context, checksum cachekey.Checksum) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.artifactURL(checksum), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, storage.ErrNotFound
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("fetch failed: unexpected status %s", resp.Status)
	}
}

// Store uploads the artifact under checksum
func (b *Backend) Store(ctx context.Context, checksum cachekey.Checksum, r io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.artifactURL(checksum), r)
	if err != nil {
		return fmt.Errorf("failed to build store request: %w", err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("store failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("store failed: unexpected status %s", resp.Status)
	}

	return nil
}

// ParallelismHint reports the configured fetch concurrency ceiling
func (b *Backend) ParallelismHint() int {
	return b.parallelism
}

func (b *Backend) artifactURL(checksum cachekey.Checksum) string {
	return b.base + "/artifacts/" + checksum.Encoded()
}
