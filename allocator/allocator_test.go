package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidfs/vblockfs/blockcache"
	"github.com/corvidfs/vblockfs/blockdevice"
)

func newTestRegion(t *testing.T, capacity uint32) *Region {
	dev := blockdevice.NewMemoryDevice(512, 4)
	cache := blockcache.New(dev)
	r, err := NewRegion(cache, 0, 1, capacity)
	require.NoError(t, err)
	return r
}

func TestRegion_AllocFreeRoundTrip(t *testing.T) {
	r := newTestRegion(t, 10)

	idx, ok, err := r.Alloc()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 0, idx)
	assert.EqualValues(t, 1, r.Used())

	require.NoError(t, r.Free(idx))
	assert.EqualValues(t, 0, r.Used())
}

func TestRegion_AllocExhaustion(t *testing.T) {
	r := newTestRegion(t, 3)
	for i := 0; i < 3; i++ {
		_, ok, err := r.Alloc()
		require.NoError(t, err)
		require.True(t, ok)
	}

	_, ok, err := r.Alloc()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegion_AllocPicksFirstFree(t *testing.T) {
	r := newTestRegion(t, 5)
	first, _, err := r.Alloc()
	require.NoError(t, err)
	second, _, err := r.Alloc()
	require.NoError(t, err)

	require.NoError(t, r.Free(first))

	reused, ok, err := r.Alloc()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, reused)
	assert.NotEqual(t, second, reused)
}

func TestRegion_MarkUsed(t *testing.T) {
	r := newTestRegion(t, 5)
	require.NoError(t, r.MarkUsed(2))
	assert.EqualValues(t, 1, r.Used())

	idx, ok, err := r.Alloc()
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqualValues(t, 2, idx)
}

func TestNewRegion_PicksUpExistingUsage(t *testing.T) {
	dev := blockdevice.NewMemoryDevice(512, 4)
	cache := blockcache.New(dev)
	r, err := NewRegion(cache, 0, 1, 10)
	require.NoError(t, err)
	_, _, err = r.Alloc()
	require.NoError(t, err)
	require.NoError(t, cache.Flush())

	reopened, err := NewRegion(cache, 0, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reopened.Used())
}
