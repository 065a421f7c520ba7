package vtable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidfs/vblockfs"
	"github.com/corvidfs/vblockfs/vblocktest"
)

func newTable(t *testing.T) *Table {
	fs := vblocktest.MountFreshFileSystem(t)
	return New(fs)
}

func TestGetattr_Root(t *testing.T) {
	table := newTable(t)
	stat, err := table.Getattr("/")
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
}

func TestMknodThenWriteThenRead(t *testing.T) {
	table := newTable(t)
	handle, err := table.Mknod("/hello.txt", 0644)
	require.NoError(t, err)

	n, err := table.Write(handle, 0, []byte("hi there"), vblockfs.O_WRONLY)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	out := make([]byte, 8)
	n, err = table.Read(handle, 0, out)
	require.NoError(t, err)
	assert.Equal(t, "hi there", string(out[:n]))
}

func TestWrite_AppendIgnoresOffset(t *testing.T) {
	table := newTable(t)
	handle, err := table.Mknod("/log.txt", 0644)
	require.NoError(t, err)

	_, err = table.Write(handle, 0, []byte("first"), vblockfs.O_WRONLY)
	require.NoError(t, err)
	_, err = table.Write(handle, 0, []byte("-second"), vblockfs.O_WRONLY|vblockfs.O_APPEND)
	require.NoError(t, err)

	out := make([]byte, 64)
	n, err := table.Read(handle, 0, out)
	require.NoError(t, err)
	assert.Equal(t, "first-second", string(out[:n]))
}

func TestMkdirThenReaddir(t *testing.T) {
	table := newTable(t)
	require.NoError(t, table.Mkdir("/sub", 0755))
	_, err := table.Mknod("/sub/a.txt", 0644)
	require.NoError(t, err)
	_, err = table.Mknod("/sub/b.txt", 0644)
	require.NoError(t, err)

	names, err := table.Readdir("/sub")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}

func TestRmdir_FailsWhenNotEmpty(t *testing.T) {
	table := newTable(t)
	require.NoError(t, table.Mkdir("/sub", 0755))
	_, err := table.Mknod("/sub/a.txt", 0644)
	require.NoError(t, err)

	err = table.Rmdir("/sub")
	driverErr, ok := err.(*vblockfs.DriverError)
	require.True(t, ok)
	assert.Equal(t, vblockfs.ENOTEMPTY, driverErr.Errno)
}

func TestUnlink_FailsOnDirectory(t *testing.T) {
	table := newTable(t)
	require.NoError(t, table.Mkdir("/sub", 0755))

	err := table.Unlink("/sub")
	driverErr, ok := err.(*vblockfs.DriverError)
	require.True(t, ok)
	assert.Equal(t, vblockfs.EISDIR, driverErr.Errno)
}

func TestOpen_CreatesWhenMissingWithOCreate(t *testing.T) {
	table := newTable(t)
	handle, err := table.Open("/new.txt", vblockfs.O_WRONLY|vblockfs.O_CREATE, 0644)
	require.NoError(t, err)
	assert.NotZero(t, handle.InodePos)
}

func TestOpen_ExistingFileWithOCreateDoesNotTruncate(t *testing.T) {
	table := newTable(t)
	handle, err := table.Mknod("/existing.txt", 0644)
	require.NoError(t, err)
	_, err = table.Write(handle, 0, []byte("keepme"), vblockfs.O_WRONLY)
	require.NoError(t, err)

	reopened, err := table.Open("/existing.txt", vblockfs.O_WRONLY|vblockfs.O_CREATE, 0644)
	require.NoError(t, err)

	out := make([]byte, 6)
	n, err := table.Read(reopened, 0, out)
	require.NoError(t, err)
	assert.Equal(t, "keepme", string(out[:n]), "O_CREAT on an existing file must not recreate/truncate it")
}

func TestOpen_ExclWithCreateFailsIfExists(t *testing.T) {
	table := newTable(t)
	_, err := table.Mknod("/existing.txt", 0644)
	require.NoError(t, err)

	_, err = table.Open("/existing.txt", vblockfs.O_WRONLY|vblockfs.O_CREATE|vblockfs.O_EXCL, 0644)
	driverErr, ok := err.(*vblockfs.DriverError)
	require.True(t, ok)
	assert.Equal(t, vblockfs.EEXIST, driverErr.Errno)
}

func TestOpen_MissingWithoutCreateFails(t *testing.T) {
	table := newTable(t)
	_, err := table.Open("/missing.txt", vblockfs.O_RDONLY, 0)
	driverErr, ok := err.(*vblockfs.DriverError)
	require.True(t, ok)
	assert.Equal(t, vblockfs.ENOENT, driverErr.Errno)
}

func TestTruncate(t *testing.T) {
	table := newTable(t)
	handle, err := table.Mknod("/grow.txt", 0644)
	require.NoError(t, err)
	_, err = table.Write(handle, 0, []byte("abc"), vblockfs.O_WRONLY)
	require.NoError(t, err)

	require.NoError(t, table.Truncate("/grow.txt", 10))

	stat, err := table.Getattr("/grow.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 10, stat.Size)
}

func TestStatfs(t *testing.T) {
	table := newTable(t)
	stat := table.Statfs()
	assert.Greater(t, stat.TotalBlocks, uint64(0))
	assert.EqualValues(t, 25, stat.MaxNameLength)

	_, err := table.Mknod("/x.txt", 0644)
	require.NoError(t, err)
	after := table.Statfs()
	assert.Less(t, after.FreeInodes, stat.FreeInodes)
}

func TestRead_AdvancesAtime(t *testing.T) {
	table := newTable(t)
	handle, err := table.Mknod("/a.txt", 0644)
	require.NoError(t, err)

	before, err := table.Getattr("/a.txt")
	require.NoError(t, err)

	out := make([]byte, 4)
	_, err = table.Read(handle, 0, out)
	require.NoError(t, err)

	after, err := table.Getattr("/a.txt")
	require.NoError(t, err)
	assert.False(t, after.Atime.Before(before.Atime))
}

func TestWrite_AdvancesMtimeAndCtime(t *testing.T) {
	table := newTable(t)
	handle, err := table.Mknod("/b.txt", 0644)
	require.NoError(t, err)
	before, err := table.Getattr("/b.txt")
	require.NoError(t, err)

	_, err = table.Write(handle, 0, []byte("data"), vblockfs.O_WRONLY)
	require.NoError(t, err)

	after, err := table.Getattr("/b.txt")
	require.NoError(t, err)
	assert.False(t, after.Mtime.Before(before.Mtime))
	assert.False(t, after.Ctime.Before(before.Ctime))
}

func TestUtime_AlsoAdvancesCtime(t *testing.T) {
	table := newTable(t)
	_, err := table.Mknod("/c.txt", 0644)
	require.NoError(t, err)
	before, err := table.Getattr("/c.txt")
	require.NoError(t, err)

	when := time.Now().Add(time.Hour)
	require.NoError(t, table.Utime("/c.txt", when, when))

	after, err := table.Getattr("/c.txt")
	require.NoError(t, err)
	assert.Equal(t, when.Unix(), after.Atime.Unix())
	assert.Equal(t, when.Unix(), after.Mtime.Unix())
	assert.False(t, after.Ctime.Before(before.Ctime))
}

func TestMknod_AdvancesParentDirTimestamps(t *testing.T) {
	table := newTable(t)
	rootBefore, err := table.Getattr("/")
	require.NoError(t, err)

	_, err = table.Mknod("/child.txt", 0644)
	require.NoError(t, err)

	rootAfter, err := table.Getattr("/")
	require.NoError(t, err)
	assert.False(t, rootAfter.Mtime.Before(rootBefore.Mtime))
	assert.False(t, rootAfter.Ctime.Before(rootBefore.Ctime))
}

func TestRename(t *testing.T) {
	table := newTable(t)
	_, err := table.Mknod("/old.txt", 0644)
	require.NoError(t, err)

	require.NoError(t, table.Rename("/old.txt", "/new.txt"))

	_, err = table.Getattr("/old.txt")
	assert.Error(t, err)
	_, err = table.Getattr("/new.txt")
	assert.NoError(t, err)
}
