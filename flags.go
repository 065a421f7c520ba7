package vblockfs

import "time"

// File type and permission bits, matching the POSIX mode_t layout used by
// the inode's Mode field on disk.
const (
	S_IFMT  = 0xF000
	S_IFDIR = 0x4000
	S_IFREG = 0x8000

	S_IRWXU = 0700
	S_IRWXG = 0070
	S_IRWXO = 0007
)

const (
	DefaultDirMode = S_IFDIR | 0755
	DefaultRegMode = S_IFREG | 0644
)

// IOFlags mirrors the open(2) flag bits the vtable's Open/Write adapters
// need to interpret.
type IOFlags uint32

const (
	O_RDONLY IOFlags = 0
	O_WRONLY IOFlags = 1 << iota
	O_RDWR
	O_CREATE
	O_EXCL
	O_TRUNC
	O_APPEND
)

func (f IOFlags) Append() bool { return f&O_APPEND != 0 }
func (f IOFlags) Create() bool { return f&O_CREATE != 0 }
func (f IOFlags) Truncate() bool { return f&O_TRUNC != 0 }
func (f IOFlags) Excl() bool { return f&O_EXCL != 0 }

// FileStat is a platform-independent stat(2) result, filled from an inode
// record by vtable.Getattr.
type FileStat struct {
	InodePos  uint32
	Mode      uint32
	Nlink     uint32
	Uid       uint32
	Gid       uint32
	Size      int64
	BlockSize int64
	Atime     time.Time
	Mtime     time.Time
	Ctime     time.Time
}

func (s FileStat) IsDir() bool  { return s.Mode&S_IFMT == S_IFDIR }
func (s FileStat) IsFile() bool { return s.Mode&S_IFMT == S_IFREG }

// FSStat is a platform-independent statfs(2) result.
type FSStat struct {
	BlockSize     int64
	TotalBlocks   uint64
	FreeBlocks    uint64
	TotalInodes   uint64
	FreeInodes    uint64
	MaxNameLength int64
}
