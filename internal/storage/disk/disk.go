// Package disk implements the project-local storage backend.
//
// Artifact archives live as files under the cache root while a BoltDB
// index records which checksums are present and when they were stored.
// The index is authoritative: a payload file without an index entry is
// treated as absent.
package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/modkit-dev/modkit/internal/cachekey"
	"github.com/modkit-dev/modkit/internal/storage"
)

const (
	// bucketName is the BoltDB bucket name for index entries
	bucketName = "artifacts"

	// dbName is the index database file name
	dbName = "cache.db"
)

// entry is the index record stored per checksum
type entry struct {
	Checksum string    `json:"checksum"`
	Size     int64     `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}

// Backend is a filesystem storage backend with a BoltDB index
type Backend struct {
	db   *bbolt.DB
	root string
}

// New opens (or creates) a disk backend rooted at cacheDir
func New(cacheDir string) (*Backend, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dbPath := filepath.Join(cacheDir, dbName)
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &Backend{db: db, root: cacheDir}, nil
}

// Close closes the index database
func (b *Backend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}

	return nil
}

// Fetch returns the archive stored under checksum, or storage.ErrNotFound
func (b *Backend) Fetch(_ context.Context, checksum cachekey.Checksum) (io.ReadCloser, error) {
	var e entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(checksum))
		if data == nil {
			return storage.ErrNotFound
		}

		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return nil, err
	}

	f, err := os.Open(b.artifactPath(checksum))
	if err != nil {
		if os.IsNotExist(err) {
			// Index and filesystem disagree; report a miss rather
			// than an error so the caller falls back to a build.
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to open cached artifact: %w", err)
	}

	return f, nil
}

// Store persists the archive under checksum and records it in the index
func (b *Backend) Store(_ context.Context, checksum cachekey.Checksum, r io.Reader) error {
	path := b.artifactPath(checksum)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create artifact file: %w", err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	e := entry{
		Checksum: checksum.String(),
		Size:     size,
		StoredAt: time.Now(),
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}

		return tx.Bucket([]byte(bucketName)).Put([]byte(checksum), data)
	})
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to index artifact: %w", err)
	}

	return nil
}

// ParallelismHint reports no ceiling; local disk reads are cheap
func (b *Backend) ParallelismHint() int {
	return 0
}

// Clear removes all index entries and stored artifacts
func (b *Backend) Clear() error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}

		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return err
	}

	artifactsDir := filepath.Join(b.root, "objects")
	if err := os.RemoveAll(artifactsDir); err != nil {
		return fmt.Errorf("failed to remove artifacts: %w", err)
	}

	return nil
}

// Stats returns the number of cached artifacts and their total size
func (b *Backend) Stats() (int, int64, error) {
	var count int
	var totalSize int64

	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, v []byte) error {
			var e entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}

			count++
			totalSize += e.Size
			return nil
		})
	})
	if err != nil {
		return 0, 0, err
	}

	return count, totalSize, nil
}

// artifactPath returns the payload file path for a checksum
func (b *Backend) artifactPath(checksum cachekey.Checksum) string {
	return filepath.Join(b.root, "objects", checksum.Encoded())
}
