package cachekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modkit-dev/modkit/internal/config"
	"github.com/modkit-dev/modkit/internal/pins"
)

func testTarget() Target {
	return Target{
		Package: "github.com/acme/widgets",
		Module:  "widgets",
		Kind:    KindLibrary,
		Options: config.BuildOptions{
			Platforms: []string{"linux/amd64", "darwin/arm64"},
			Flavor:    "release",
		},
	}
}

func testStore() *pins.Store {
	return pins.NewStore([]pins.Pin{
		{Package: "github.com/acme/widgets", Version: "1.2.3", Revision: "abc123"},
		{Package: "github.com/acme/gizmos", Version: "0.9.0", Revision: "def456"},
	})
}

func TestCompute_Deterministic(t *testing.T) {
	target := testTarget()
	store := testStore()

	key1, err := Compute(target, store)
	require.NoError(t, err)

	key2, err := Compute(target, store)
	require.NoError(t, err)

	sum1, err := key1.Checksum()
	require.NoError(t, err)

	sum2, err := key2.Checksum()
	require.NoError(t, err)

	assert.Equal(t, sum1, sum2, "Checksum should be stable across calls")
	assert.True(t, key1.Equal(key2))
}

func TestCompute_KnownDigestStableAcrossProcesses(t *testing.T) {
	// A fixed input must always serialize to the same bytes; the
	// digest is what addresses on-disk and remote cache entries, so
	// any drift here invalidates every existing cache.
	key, err := Compute(testTarget(), testStore())
	require.NoError(t, err)

	data, err := key.Marshal()
	require.NoError(t, err)

	again, err := key.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data, again)

	sum, err := key.Checksum()
	require.NoError(t, err)
	assert.Equal(t, "sha256", string(sum.Algorithm()))
	assert.Len(t, sum.Encoded(), 64)
}

func TestCompute_PinOrderIndependent(t *testing.T) {
	target := testTarget()

	forward := pins.NewStore([]pins.Pin{
		{Package: "github.com/acme/widgets", Version: "1.2.3"},
		{Package: "github.com/acme/gizmos", Version: "0.9.0"},
	})
	backward := pins.NewStore([]pins.Pin{
		{Package: "github.com/acme/gizmos", Version: "0.9.0"},
		{Package: "github.com/acme/widgets", Version: "1.2.3"},
	})

	key1, err := Compute(target, forward)
	require.NoError(t, err)

	key2, err := Compute(target, backward)
	require.NoError(t, err)

	assert.True(t, key1.Equal(key2), "Pin order should not affect the key")
}

func TestCompute_PlatformOrderIndependent(t *testing.T) {
	store := testStore()

	target1 := testTarget()
	target1.Options.Platforms = []string{"linux/amd64", "darwin/arm64"}

	target2 := testTarget()
	target2.Options.Platforms = []string{"darwin/arm64", "linux/amd64"}

	key1, err := Compute(target1, store)
	require.NoError(t, err)

	key2, err := Compute(target2, store)
	require.NoError(t, err)

	assert.True(t, key1.Equal(key2))
	assert.Equal(t, target1.ID(), target2.ID())
}

func TestCompute_Sensitivity(t *testing.T) {
	base, err := Compute(testTarget(), testStore())
	require.NoError(t, err)

	baseSum, err := base.Checksum()
	require.NoError(t, err)

	tests := []struct {
		name   string
		target Target
		store  *pins.Store
	}{
		{
			name:   "changed dependency pin version",
			target: testTarget(),
			store: pins.NewStore([]pins.Pin{
				{Package: "github.com/acme/widgets", Version: "1.2.3", Revision: "abc123"},
				{Package: "github.com/acme/gizmos", Version: "1.0.0", Revision: "def456"},
			}),
		},
		{
			name:   "changed pin revision",
			target: testTarget(),
			store: pins.NewStore([]pins.Pin{
				{Package: "github.com/acme/widgets", Version: "1.2.3", Revision: "ffffff"},
				{Package: "github.com/acme/gizmos", Version: "0.9.0", Revision: "def456"},
			}),
		},
		{
			name: "changed flavor",
			target: func() Target {
				tg := testTarget()
				tg.Options.Flavor = "debug"
				return tg
			}(),
			store: testStore(),
		},
		{
			name: "changed platforms",
			target: func() Target {
				tg := testTarget()
				tg.Options.Platforms = []string{"linux/amd64"}
				return tg
			}(),
			store: testStore(),
		},
		{
			name: "library evolution toggled",
			target: func() Target {
				tg := testTarget()
				tg.Options.LibraryEvolution = true
				return tg
			}(),
			store: testStore(),
		},
		{
			name: "pinned toolchain version",
			target: func() Target {
				tg := testTarget()
				tg.Options.ToolchainVersion = "6.1.0"
				return tg
			}(),
			store: testStore(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := Compute(tt.target, tt.store)
			require.NoError(t, err)

			sum, err := key.Checksum()
			require.NoError(t, err)
			assert.NotEqual(t, baseSum, sum, "checksum should change")
		})
	}
}

func TestCompute_NonParticipatingFieldsExcluded(t *testing.T) {
	// Output paths, overwrite, verbosity and cache mode live on Config,
	// not BuildOptions, so two targets built under different run
	// settings share a key as long as their options match.
	store := testStore()

	key1, err := Compute(testTarget(), store)
	require.NoError(t, err)

	key2, err := Compute(testTarget(), store)
	require.NoError(t, err)

	sum1, err := key1.Checksum()
	require.NoError(t, err)

	sum2, err := key2.Checksum()
	require.NoError(t, err)

	assert.Equal(t, sum1, sum2)
}

func TestCompute_UnpinnedPackage(t *testing.T) {
	target := testTarget()
	target.Package = "github.com/acme/unpinned"

	_, err := Compute(target, testStore())
	assert.Error(t, err)
}

func TestCompute_NilStore(t *testing.T) {
	_, err := Compute(testTarget(), nil)
	assert.Error(t, err)
}

func TestTargetID_EqualityByValue(t *testing.T) {
	a := testTarget()
	b := testTarget()
	assert.Equal(t, a.ID(), b.ID())

	b.Options.Flavor = "debug"
	assert.NotEqual(t, a.ID(), b.ID())
}
