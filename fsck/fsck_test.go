package fsck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidfs/vblockfs"
	"github.com/corvidfs/vblockfs/blockmap"
	"github.com/corvidfs/vblockfs/inode"
	"github.com/corvidfs/vblockfs/layout"
	"github.com/corvidfs/vblockfs/vblocktest"
)

func TestCheck_FreshImageIsClean(t *testing.T) {
	fs := vblocktest.MountFreshFileSystem(t)
	report := Check(fs)
	assert.True(t, report.OK())
	assert.EqualValues(t, 1, report.InodesVisited)
}

func TestCheck_WalksNestedDirectories(t *testing.T) {
	fs := vblocktest.MountFreshFileSystem(t)
	_, err := fs.MakeFile("/sub", vblockfs.DefaultDirMode)
	require.NoError(t, err)
	_, err = fs.MakeFile("/sub/file.txt", vblockfs.DefaultRegMode)
	require.NoError(t, err)

	report := Check(fs)
	assert.True(t, report.OK())
	assert.EqualValues(t, 3, report.InodesVisited)
}

func TestCheck_DetectsOutOfRangeBlockPointer(t *testing.T) {
	fs := vblocktest.MountFreshFileSystem(t)
	pos, err := fs.MakeFile("/corrupt.txt", vblockfs.DefaultRegMode)
	require.NoError(t, err)

	rec, err := inode.Read(fs.Cache(), pos)
	require.NoError(t, err)
	rec.Direct[0] = 1 // block 1 is the inode bitmap, well outside the data region
	require.NoError(t, inode.Write(fs.Cache(), pos, rec))

	report := Check(fs)
	assert.False(t, report.OK())
}

func TestCheck_DetectsDirectorySizeLawViolation(t *testing.T) {
	fs := vblocktest.MountFreshFileSystem(t)
	pos, err := fs.MakeFile("/sub", vblockfs.DefaultDirMode)
	require.NoError(t, err)

	rec, err := inode.Read(fs.Cache(), pos)
	require.NoError(t, err)
	rec.Size = 12345
	require.NoError(t, inode.Write(fs.Cache(), pos, rec))

	report := Check(fs)
	assert.False(t, report.OK())
}

func TestCheck_DetectsFileSizeLawViolation(t *testing.T) {
	fs := vblocktest.MountFreshFileSystem(t)
	pos, err := fs.MakeFile("/stale.txt", vblockfs.DefaultRegMode)
	require.NoError(t, err)

	rec, err := inode.Read(fs.Cache(), pos)
	require.NoError(t, err)
	rec.Size = 10 // well under one block

	relBlock, ok, err := fs.DataRegion().Alloc()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, blockmap.Set(fs.Cache(), fs.DataRegion(), &rec, 1, relBlock+layout.DataBlockStart))
	require.NoError(t, inode.Write(fs.Cache(), pos, rec))

	report := Check(fs)
	assert.False(t, report.OK())
}

func TestCheck_DetectsLeakedInodeBitmapBit(t *testing.T) {
	fs := vblocktest.MountFreshFileSystem(t)
	require.NoError(t, fs.InodeRegion().MarkUsed(5))

	report := Check(fs)
	assert.False(t, report.OK())
}

func TestCheck_DetectsLeakedDataBitmapBit(t *testing.T) {
	fs := vblocktest.MountFreshFileSystem(t)
	_, ok, err := fs.DataRegion().Alloc()
	require.NoError(t, err)
	require.True(t, ok)

	report := Check(fs)
	assert.False(t, report.OK())
}
