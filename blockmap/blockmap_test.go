package blockmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidfs/vblockfs/allocator"
	"github.com/corvidfs/vblockfs/blockcache"
	"github.com/corvidfs/vblockfs/blockdevice"
	"github.com/corvidfs/vblockfs/inode"
	"github.com/corvidfs/vblockfs/layout"
)

func newFixture(t *testing.T) (*blockcache.Cache, *allocator.Region) {
	totalBlocks := layout.DataBlockStart + 2000
	dev := blockdevice.NewMemoryDevice(layout.BlockSize, totalBlocks)
	cache := blockcache.New(dev)
	region, err := allocator.NewRegion(cache, layout.DataBitmapBlock, layout.DataBitmapBlocks, totalBlocks-layout.DataBlockStart)
	require.NoError(t, err)
	return cache, region
}

func TestGet_UnmappedLogicalBlock(t *testing.T) {
	cache, _ := newFixture(t)
	rec := inode.InitRecord(0644, 1)

	_, ok, err := Get(cache, rec, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetThenGet_DirectBlock(t *testing.T) {
	cache, region := newFixture(t)
	rec := inode.InitRecord(0644, 1)

	require.NoError(t, Set(cache, region, &rec, 3, 9999))
	phys, ok, err := Get(cache, rec, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 9999, phys)
}

func TestSetThenGet_IndirectBlock(t *testing.T) {
	cache, region := newFixture(t)
	rec := inode.InitRecord(0644, 1)

	logical := uint32(layout.DirectPointers + 5)
	require.NoError(t, Set(cache, region, &rec, logical, 8888))
	assert.NotEqual(t, layout.Unmapped, rec.Indirect[0])

	phys, ok, err := Get(cache, rec, logical)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 8888, phys)
}

func TestSetThenGet_SecondIndirectBlock(t *testing.T) {
	cache, region := newFixture(t)
	rec := inode.InitRecord(0644, 1)

	logical := uint32(layout.DirectPointers + layout.PointersPerIndirectBlock + 2)
	require.NoError(t, Set(cache, region, &rec, logical, 7777))
	assert.NotEqual(t, layout.Unmapped, rec.Indirect[1])

	phys, ok, err := Get(cache, rec, logical)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 7777, phys)
}

func TestFreeAll_FreesDataAndIndirectBlocks(t *testing.T) {
	cache, region := newFixture(t)
	rec := inode.InitRecord(0644, 1)

	directPhys, ok, err := region.Alloc()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, Set(cache, region, &rec, 0, directPhys+layout.DataBlockStart))

	indirectLogical := uint32(layout.DirectPointers + 1)
	indirectPhys, ok, err := region.Alloc()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, Set(cache, region, &rec, indirectLogical, indirectPhys+layout.DataBlockStart))

	usedBefore := region.Used()
	require.NoError(t, FreeAll(cache, region, rec))
	assert.Less(t, region.Used(), usedBefore)
}
