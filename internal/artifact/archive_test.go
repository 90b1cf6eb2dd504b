package artifact

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpack_Roundtrip(t *testing.T) {
	tempDir := t.TempDir()

	bundleDir := filepath.Join(tempDir, "widgets.bundle")
	require.NoError(t, os.MkdirAll(filepath.Join(bundleDir, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "module.bin"), []byte("binary"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "lib", "interface.mi"), []byte("interface"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, Pack(bundleDir, &buf))

	destDir := filepath.Join(tempDir, "restored.bundle")
	require.NoError(t, Unpack(&buf, destDir))

	data, err := os.ReadFile(filepath.Join(destDir, "module.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("binary"), data)

	data, err = os.ReadFile(filepath.Join(destDir, "lib", "interface.mi"))
	require.NoError(t, err)
	assert.Equal(t, []byte("interface"), data)

	// Executable bit survives the roundtrip
	info, err := os.Stat(filepath.Join(destDir, "module.bin"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "executable bit should be preserved")
}

func TestPack_EmptyBundle(t *testing.T) {
	tempDir := t.TempDir()
	bundleDir := filepath.Join(tempDir, "empty.bundle")
	require.NoError(t, os.MkdirAll(bundleDir, 0o755))

	var buf bytes.Buffer
	require.NoError(t, Pack(bundleDir, &buf))

	destDir := filepath.Join(tempDir, "out.bundle")
	require.NoError(t, Unpack(&buf, destDir))

	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnpack_RejectsEscapingPaths(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)

	tw := tar.NewWriter(zw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../escape.txt",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     4,
	}))
	_, err = tw.Write([]byte("oops"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())

	tempDir := t.TempDir()
	err = Unpack(&buf, filepath.Join(tempDir, "dest.bundle"))
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(tempDir, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr), "escaping file must not be created")
}

func TestBundlePath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "widgets.bundle"), BundlePath("out", "widgets"))
}

func TestExists(t *testing.T) {
	tempDir := t.TempDir()

	assert.False(t, Exists(tempDir, "widgets"))

	// A plain file is not a bundle
	require.NoError(t, os.WriteFile(BundlePath(tempDir, "widgets"), []byte("x"), 0o644))
	assert.False(t, Exists(tempDir, "widgets"))

	require.NoError(t, os.Remove(BundlePath(tempDir, "widgets")))
	require.NoError(t, os.MkdirAll(BundlePath(tempDir, "widgets"), 0o755))
	assert.True(t, Exists(tempDir, "widgets"))
}
