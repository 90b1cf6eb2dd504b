package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modkit-dev/modkit/internal/artifact"
	"github.com/modkit-dev/modkit/internal/cachekey"
	"github.com/modkit-dev/modkit/internal/config"
	"github.com/modkit-dev/modkit/internal/pins"
	"github.com/modkit-dev/modkit/internal/storage"
	"github.com/modkit-dev/modkit/internal/storage/storagetest"
)

var bothActors = storage.ActorSet{Producer: true, Consumer: true}

func testPins() *pins.Store {
	return pins.NewStore([]pins.Pin{
		{Package: "github.com/acme/widgets", Version: "1.2.3", Revision: "abc123"},
		{Package: "github.com/acme/gizmos", Version: "0.9.0", Revision: "def456"},
	})
}

func testTarget(module string) cachekey.Target {
	return cachekey.Target{
		Package: pins.PackageID("github.com/acme/" + module),
		Module:  module,
		Kind:    cachekey.KindLibrary,
		Options: config.BuildOptions{
			Platforms: []string{"linux/amd64"},
			Flavor:    "release",
		},
	}
}

func testSystem(t *testing.T, backend storage.Backend, actors storage.ActorSet) (*System, string) {
	t.Helper()

	outputDir := t.TempDir()
	return NewSystem(backend, actors, testPins(), outputDir), outputDir
}

// makeBundle creates a local bundle directory for a module
func makeBundle(t *testing.T, outputDir, module string) {
	t.Helper()

	dir := artifact.BundlePath(outputDir, module)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "module.bin"), []byte(module+" binary"), 0o755))
}

// seedBackend packs a bundle for target into the backend under its
// checksum, using a scratch directory
func seedBackend(t *testing.T, backend *storagetest.Backend, s *System, target cachekey.Target) cachekey.Checksum {
	t.Helper()

	scratch := t.TempDir()
	makeBundle(t, scratch, target.Module)

	var buf bytes.Buffer
	require.NoError(t, artifact.Pack(artifact.BundlePath(scratch, target.Module), &buf))

	key, err := s.CalculateCacheKey(target)
	require.NoError(t, err)

	checksum, err := key.Checksum()
	require.NoError(t, err)

	backend.Put(checksum, buf.Bytes())
	return checksum
}

func TestRestoreCacheIfPossible_Succeeded(t *testing.T) {
	backend := storagetest.New()
	s, outputDir := testSystem(t, backend, bothActors)
	target := testTarget("widgets")
	seedBackend(t, backend, s, target)

	result := s.RestoreCacheIfPossible(context.Background(), target)

	assert.Equal(t, RestoreSucceeded, result.State)
	assert.True(t, result.Restored())
	assert.True(t, artifact.Exists(outputDir, "widgets"))

	data, err := os.ReadFile(filepath.Join(artifact.BundlePath(outputDir, "widgets"), "module.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("widgets binary"), data)

	// Version file written so the next run's local fast path matches
	vf, err := readVersionFile(outputDir, "widgets")
	require.NoError(t, err)
	require.NotNil(t, vf)
}

func TestRestoreCacheIfPossible_NoCache(t *testing.T) {
	backend := storagetest.New()
	s, outputDir := testSystem(t, backend, bothActors)

	result := s.RestoreCacheIfPossible(context.Background(), testTarget("widgets"))

	assert.Equal(t, RestoreNoCache, result.State)
	assert.False(t, result.Restored())
	assert.False(t, artifact.Exists(outputDir, "widgets"))
}

func TestRestoreCacheIfPossible_TransportFailure(t *testing.T) {
	backend := storagetest.New()
	s, _ := testSystem(t, backend, bothActors)
	target := testTarget("widgets")
	checksum := seedBackend(t, backend, s, target)
	backend.FetchErr[checksum] = errors.New("connection reset")

	result := s.RestoreCacheIfPossible(context.Background(), target)

	assert.Equal(t, RestoreFailed, result.State)
	assert.ErrorContains(t, result.Err, "connection reset")
}

func TestRestoreCacheIfPossible_ConsumerDisabled(t *testing.T) {
	backend := storagetest.New()
	s, _ := testSystem(t, backend, storage.ActorSet{Producer: true})
	target := testTarget("widgets")
	seedBackend(t, backend, s, target)

	result := s.RestoreCacheIfPossible(context.Background(), target)

	assert.Equal(t, RestoreNoCache, result.State)
	assert.Zero(t, backend.FetchCalls(), "no storage contact without consumer capability")
}

func TestRestoreCacheIfPossible_DerivationError(t *testing.T) {
	backend := storagetest.New()
	s, _ := testSystem(t, backend, bothActors)

	target := testTarget("widgets")
	target.Package = "github.com/acme/unpinned"

	result := s.RestoreCacheIfPossible(context.Background(), target)

	assert.Equal(t, RestoreNoCache, result.State)
	assert.Zero(t, backend.FetchCalls())
}

func TestRestoreCacheIfPossible_CorruptArchive(t *testing.T) {
	backend := storagetest.New()
	s, outputDir := testSystem(t, backend, bothActors)
	target := testTarget("widgets")

	key, err := s.CalculateCacheKey(target)
	require.NoError(t, err)
	checksum, err := key.Checksum()
	require.NoError(t, err)
	backend.Put(checksum, []byte("definitely not a zstd tar"))

	result := s.RestoreCacheIfPossible(context.Background(), target)

	assert.Equal(t, RestoreFailed, result.State)
	assert.False(t, artifact.Exists(outputDir, "widgets"), "no half-extracted bundle left behind")
}

func TestCacheModules_StoresBuiltBundles(t *testing.T) {
	backend := storagetest.New()
	s, outputDir := testSystem(t, backend, bothActors)
	target := testTarget("widgets")
	makeBundle(t, outputDir, "widgets")

	s.CacheModules(context.Background(), []cachekey.Target{target})

	key, err := s.CalculateCacheKey(target)
	require.NoError(t, err)
	checksum, err := key.Checksum()
	require.NoError(t, err)

	assert.True(t, backend.Has(checksum))
}

func TestCacheModules_ProducerDisabled(t *testing.T) {
	backend := storagetest.New()
	s, outputDir := testSystem(t, backend, storage.ActorSet{Consumer: true})
	makeBundle(t, outputDir, "widgets")

	s.CacheModules(context.Background(), []cachekey.Target{testTarget("widgets")})

	assert.Zero(t, backend.StoreCalls(), "no writes without producer capability")
}

func TestCacheModules_FailuresDoNotAbortBatch(t *testing.T) {
	backend := storagetest.New()
	backend.StoreErr = errors.New("quota exceeded")
	s, outputDir := testSystem(t, backend, bothActors)
	makeBundle(t, outputDir, "widgets")
	makeBundle(t, outputDir, "gizmos")

	targets := []cachekey.Target{testTarget("widgets"), testTarget("gizmos")}
	s.CacheModules(context.Background(), targets)

	assert.Equal(t, 2, backend.StoreCalls(), "every target attempted despite failures")
}

func TestGenerateVersionFile_And_ExistsValidCache(t *testing.T) {
	backend := storagetest.New()
	s, outputDir := testSystem(t, backend, bothActors)
	target := testTarget("widgets")
	makeBundle(t, outputDir, "widgets")

	require.NoError(t, s.GenerateVersionFile(target))

	key, err := s.CalculateCacheKey(target)
	require.NoError(t, err)

	valid, err := s.ExistsValidCache(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Zero(t, backend.FetchCalls(), "local version file answers without storage contact")
}

func TestExistsValidCache_ChecksumMismatch(t *testing.T) {
	backend := storagetest.New()
	s, outputDir := testSystem(t, backend, bothActors)
	target := testTarget("widgets")
	makeBundle(t, outputDir, "widgets")
	require.NoError(t, s.GenerateVersionFile(target))

	// Same module, different pin state: the recorded checksum no
	// longer matches
	changed := NewSystem(backend, bothActors, pins.NewStore([]pins.Pin{
		{Package: "github.com/acme/widgets", Version: "2.0.0"},
		{Package: "github.com/acme/gizmos", Version: "0.9.0"},
	}), outputDir)

	key, err := changed.CalculateCacheKey(target)
	require.NoError(t, err)

	valid, err := changed.ExistsValidCache(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, valid, "exact checksum match required")
}

func TestExistsValidCache_NoLocalBundleProbesStorage(t *testing.T) {
	backend := storagetest.New()
	s, _ := testSystem(t, backend, bothActors)
	target := testTarget("widgets")
	seedBackend(t, backend, s, target)

	key, err := s.CalculateCacheKey(target)
	require.NoError(t, err)

	valid, err := s.ExistsValidCache(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestRemoveLocalBundle(t *testing.T) {
	backend := storagetest.New()
	s, outputDir := testSystem(t, backend, bothActors)
	target := testTarget("widgets")
	makeBundle(t, outputDir, "widgets")
	require.NoError(t, s.GenerateVersionFile(target))

	require.NoError(t, s.RemoveLocalBundle(target))

	assert.False(t, artifact.Exists(outputDir, "widgets"))
	_, err := os.Stat(VersionFilePath(outputDir, "widgets"))
	assert.True(t, os.IsNotExist(err))
}

func TestRestoreResult_String(t *testing.T) {
	assert.Equal(t, "succeeded", Succeeded().String())
	assert.Equal(t, "no cache", NoCache().String())
	assert.Contains(t, Failed(errors.New("boom")).String(), "boom")
}
