package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidfs/vblockfs"
	"github.com/corvidfs/vblockfs/blockdevice"
	"github.com/corvidfs/vblockfs/layout"
)

func newTestGeometry() layout.Geometry {
	return layout.Geometry{TotalBlocks: layout.DataBlockStart + 1000}
}

func mountFresh(t *testing.T) *FileSystem {
	dev := blockdevice.NewMemoryDevice(layout.BlockSize, newTestGeometry().TotalBlocks)
	require.NoError(t, Mkfs(dev, newTestGeometry()))
	fs, err := Mount(dev)
	require.NoError(t, err)
	return fs
}

func TestMkfsThenMount(t *testing.T) {
	fs := mountFresh(t)
	assert.NotNil(t, fs.Cache())
	assert.EqualValues(t, 1, fs.InodeRegion().Used()) // root's slot is reserved
}

func TestMount_RejectsBadSuperblock(t *testing.T) {
	dev := blockdevice.NewMemoryDevice(layout.BlockSize, newTestGeometry().TotalBlocks)
	_, err := Mount(dev) // never formatted: all zeroes, fails layout validation
	assert.Error(t, err)
}

func TestMakeFile_RegularFile(t *testing.T) {
	fs := mountFresh(t)
	pos, err := fs.MakeFile("/hello.txt", vblockfs.DefaultRegMode)
	require.NoError(t, err)
	assert.NotZero(t, pos)
}

func TestMakeFile_DuplicateNameFails(t *testing.T) {
	fs := mountFresh(t)
	_, err := fs.MakeFile("/dup.txt", vblockfs.DefaultRegMode)
	require.NoError(t, err)

	_, err = fs.MakeFile("/dup.txt", vblockfs.DefaultRegMode)
	driverErr, ok := err.(*vblockfs.DriverError)
	require.True(t, ok)
	assert.Equal(t, vblockfs.EEXIST, driverErr.Errno)
}

func TestMakeFile_MissingParentFails(t *testing.T) {
	fs := mountFresh(t)
	_, err := fs.MakeFile("/nodir/file.txt", vblockfs.DefaultRegMode)
	assert.Error(t, err)
}

func TestMakeFile_NestedDirectory(t *testing.T) {
	fs := mountFresh(t)
	_, err := fs.MakeFile("/sub", vblockfs.DefaultDirMode)
	require.NoError(t, err)

	_, err = fs.MakeFile("/sub/nested.txt", vblockfs.DefaultRegMode)
	require.NoError(t, err)
}

func TestRemoveFile(t *testing.T) {
	fs := mountFresh(t)
	_, err := fs.MakeFile("/removeme.txt", vblockfs.DefaultRegMode)
	require.NoError(t, err)

	require.NoError(t, fs.RemoveFile("/removeme.txt"))
	_, err = fs.MakeFile("/removeme.txt", vblockfs.DefaultRegMode)
	assert.NoError(t, err, "slot should be freed and reusable after removal")
}

func TestRemoveFile_NonEmptyDirectoryFails(t *testing.T) {
	fs := mountFresh(t)
	_, err := fs.MakeFile("/sub", vblockfs.DefaultDirMode)
	require.NoError(t, err)
	_, err = fs.MakeFile("/sub/child.txt", vblockfs.DefaultRegMode)
	require.NoError(t, err)

	err = fs.RemoveFile("/sub")
	driverErr, ok := err.(*vblockfs.DriverError)
	require.True(t, ok)
	assert.Equal(t, vblockfs.ENOTEMPTY, driverErr.Errno)
}

func TestRename(t *testing.T) {
	fs := mountFresh(t)
	_, err := fs.MakeFile("/old.txt", vblockfs.DefaultRegMode)
	require.NoError(t, err)

	require.NoError(t, fs.Rename("/old.txt", "/new.txt"))

	_, err = fs.MakeFile("/old.txt", vblockfs.DefaultRegMode)
	assert.NoError(t, err, "old name should be free again")
}

func TestRename_FailsIfDestinationExists(t *testing.T) {
	fs := mountFresh(t)
	_, err := fs.MakeFile("/a.txt", vblockfs.DefaultRegMode)
	require.NoError(t, err)
	_, err = fs.MakeFile("/b.txt", vblockfs.DefaultRegMode)
	require.NoError(t, err)

	err = fs.Rename("/a.txt", "/b.txt")
	driverErr, ok := err.(*vblockfs.DriverError)
	require.True(t, ok)
	assert.Equal(t, vblockfs.EEXIST, driverErr.Errno)
}

func TestUnmount_FlushesDirtyState(t *testing.T) {
	dev := blockdevice.NewMemoryDevice(layout.BlockSize, newTestGeometry().TotalBlocks)
	require.NoError(t, Mkfs(dev, newTestGeometry()))
	fs, err := Mount(dev)
	require.NoError(t, err)

	_, err = fs.MakeFile("/x.txt", vblockfs.DefaultRegMode)
	require.NoError(t, err)
	require.NoError(t, fs.Unmount())

	reopened, err := Mount(dev)
	require.NoError(t, err)
	_, err = reopened.MakeFile("/x.txt", vblockfs.DefaultRegMode)
	driverErr, ok := err.(*vblockfs.DriverError)
	require.True(t, ok)
	assert.Equal(t, vblockfs.EEXIST, driverErr.Errno)
}
