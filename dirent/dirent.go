// Package dirent implements the fixed-width directory entry format and the
// scan/add/remove operations over a directory's data blocks, per spec.md
// §3 and §4.6.
package dirent

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/corvidfs/vblockfs/allocator"
	"github.com/corvidfs/vblockfs/blockcache"
	"github.com/corvidfs/vblockfs/blockmap"
	"github.com/corvidfs/vblockfs/inode"
	"github.com/corvidfs/vblockfs/layout"
)

// Entry is one directory entry: a fixed-width name and the inode slot it
// names. InodePos == tombstoneInodePos (0) marks a tombstoned (deleted)
// slot; inode slot 0 is permanently reserved for the root directory and
// is never the target of a directory entry, so 0 is free to double as
// the empty-slot marker.
type Entry struct {
	Name     [layout.DirNameMax]byte
	InodePos uint32
}

// tombstoneInodePos is the InodePos value of an empty/deleted slot.
const tombstoneInodePos uint32 = 0

// ErrNameTooLong is returned when a name exceeds DirNameMax bytes.
var ErrNameTooLong = errors.New("dirent: name exceeds maximum length")

// ErrNotFound is returned when a name is not present (or is tombstoned)
// in a directory.
var ErrNotFound = errors.New("dirent: entry not found")

// ErrExists is returned by AddEntry when name is already present.
var ErrExists = errors.New("dirent: entry already exists")

func makeEntry(name string, inodePos uint32) (Entry, error) {
	if len(name) > layout.DirNameMax {
		return Entry{}, ErrNameTooLong
	}
	var e Entry
	copy(e.Name[:], name)
	e.InodePos = inodePos
	return e, nil
}

func (e Entry) nameString() string {
	end := bytes.IndexByte(e.Name[:], 0)
	if end == -1 {
		end = len(e.Name)
	}
	return string(e.Name[:end])
}

func (e Entry) live() bool { return e.InodePos != tombstoneInodePos }

func encodeEntry(e Entry) []byte {
	buf := make([]byte, layout.DirEntrySize)
	copy(buf[:layout.DirNameMax], e.Name[:])
	binary.LittleEndian.PutUint32(buf[layout.DirNameMax:], e.InodePos)
	return buf
}

func decodeEntry(buf []byte) Entry {
	var e Entry
	copy(e.Name[:], buf[:layout.DirNameMax])
	e.InodePos = binary.LittleEndian.Uint32(buf[layout.DirNameMax:])
	return e
}

// forEachBlock walks every logical block currently mapped by dirRec,
// invoking fn with the block's raw bytes. If fn returns (true, modified),
// the walk stops and, if modified, the block is written back.
func forEachBlock(cache *blockcache.Cache, dirRec inode.Record, fn func(blk []byte) (stop bool, modified bool)) error {
	blockSize := cache.BlockSize()
	maxLogical := uint32(layout.MaxLogicalBlocks)
	for logical := uint32(0); logical < maxLogical; logical++ {
		phys, ok, err := blockmap.Get(cache, dirRec, logical)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		blk := make([]byte, blockSize)
		if err := cache.CachedRead(phys, blk); err != nil {
			return err
		}
		stop, modified := fn(blk)
		if modified {
			if err := cache.CachedWrite(phys, blk); err != nil {
				return err
			}
		}
		if stop {
			return nil
		}
	}
	return nil
}

// FindEntry looks up name among dirRec's live entries.
func FindEntry(cache *blockcache.Cache, dirRec inode.Record, name string) (Entry, error) {
	var found Entry
	var foundOk bool
	err := forEachBlock(cache, dirRec, func(blk []byte) (bool, bool) {
		for off := 0; off+layout.DirEntrySize <= len(blk); off += layout.DirEntrySize {
			e := decodeEntry(blk[off : off+layout.DirEntrySize])
			if e.live() && e.nameString() == name {
				found = e
				foundOk = true
				return true, false
			}
		}
		return false, false
	})
	if err != nil {
		return Entry{}, err
	}
	if !foundOk {
		return Entry{}, ErrNotFound
	}
	return found, nil
}

// AddEntry inserts a new live entry (name -> inodePos) into dirRec,
// reusing the first tombstoned slot it finds, allocating and mapping a
// fresh directory block from dataRegion only if every existing block is
// full. dirRec is mutated in place when a new block is mapped; the caller
// persists it via inode.Write.
func AddEntry(cache *blockcache.Cache, dataRegion *allocator.Region, dirRec *inode.Record, name string, inodePos uint32) error {
	newEntry, err := makeEntry(name, inodePos)
	if err != nil {
		return err
	}

	if _, err := FindEntry(cache, *dirRec, name); err == nil {
		return ErrExists
	} else if err != ErrNotFound {
		return err
	}

	inserted := false
	err = forEachBlock(cache, *dirRec, func(blk []byte) (bool, bool) {
		for off := 0; off+layout.DirEntrySize <= len(blk); off += layout.DirEntrySize {
			e := decodeEntry(blk[off : off+layout.DirEntrySize])
			if !e.live() {
				copy(blk[off:off+layout.DirEntrySize], encodeEntry(newEntry))
				inserted = true
				return true, true
			}
		}
		return false, false
	})
	if err != nil {
		return err
	}
	if inserted {
		dirRec.Size += layout.DirEntrySize
		return nil
	}

	// No free slot in any mapped block: allocate a fresh one.
	newPhysRel, ok, err := dataRegion.Alloc()
	if err != nil {
		return err
	}
	if !ok {
		return blockmap.ErrNoSpace
	}
	newPhys := newPhysRel + layout.DataBlockStart

	blk := make([]byte, cache.BlockSize())
	for off := 0; off+layout.DirEntrySize <= len(blk); off += layout.DirEntrySize {
		tomb := Entry{InodePos: tombstoneInodePos}
		copy(blk[off:off+layout.DirEntrySize], encodeEntry(tomb))
	}
	copy(blk[:layout.DirEntrySize], encodeEntry(newEntry))
	if err := cache.CachedWrite(newPhys, blk); err != nil {
		return err
	}

	logical, err := firstUnmappedLogical(cache, *dirRec)
	if err != nil {
		return err
	}
	if err := blockmap.Set(cache, dataRegion, dirRec, logical, newPhys); err != nil {
		return err
	}
	dirRec.Size += layout.DirEntrySize
	return nil
}

func firstUnmappedLogical(cache *blockcache.Cache, dirRec inode.Record) (uint32, error) {
	for logical := uint32(0); logical < layout.MaxLogicalBlocks; logical++ {
		_, ok, err := blockmap.Get(cache, dirRec, logical)
		if err != nil {
			return 0, err
		}
		if !ok {
			return logical, nil
		}
	}
	return 0, blockmap.ErrNoSpace
}

// RemoveEntry tombstones the live entry named name in dirRec. If, after
// removal, the directory block containing it holds no other live entries,
// the block is freed back to dataRegion and unmapped from dirRec. This
// resolves spec.md §9's open question on directory shrinkage: a directory
// never grows without bound as files are created and deleted inside it.
func RemoveEntry(cache *blockcache.Cache, dataRegion *allocator.Region, dirRec *inode.Record, name string) error {
	blockSize := cache.BlockSize()
	var targetLogical uint32
	var targetPhys uint32
	removed := false
	emptyAfter := false

	for logical := uint32(0); logical < layout.MaxLogicalBlocks; logical++ {
		phys, ok, err := blockmap.Get(cache, *dirRec, logical)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		blk := make([]byte, blockSize)
		if err := cache.CachedRead(phys, blk); err != nil {
			return err
		}

		found := false
		anyLive := false
		for off := 0; off+layout.DirEntrySize <= len(blk); off += layout.DirEntrySize {
			e := decodeEntry(blk[off : off+layout.DirEntrySize])
			if !e.live() {
				continue
			}
			if !found && e.nameString() == name {
				tomb := Entry{InodePos: tombstoneInodePos}
				copy(blk[off:off+layout.DirEntrySize], encodeEntry(tomb))
				found = true
				continue
			}
			anyLive = true
		}
		if !found {
			continue
		}
		if err := cache.CachedWrite(phys, blk); err != nil {
			return err
		}
		removed = true
		targetLogical = logical
		targetPhys = phys
		emptyAfter = !anyLive
		break
	}

	if !removed {
		return ErrNotFound
	}
	dirRec.Size -= layout.DirEntrySize
	if !emptyAfter {
		return nil
	}

	if err := dataRegion.Free(targetPhys - layout.DataBlockStart); err != nil {
		return err
	}
	return blockmap.Set(cache, dataRegion, dirRec, targetLogical, layout.Unmapped)
}

// ListLive returns every live entry currently in dirRec.
func ListLive(cache *blockcache.Cache, dirRec inode.Record) ([]Entry, error) {
	var out []Entry
	err := forEachBlock(cache, dirRec, func(blk []byte) (bool, bool) {
		for off := 0; off+layout.DirEntrySize <= len(blk); off += layout.DirEntrySize {
			e := decodeEntry(blk[off : off+layout.DirEntrySize])
			if e.live() {
				out = append(out, e)
			}
		}
		return false, false
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// String returns an entry's name with its zero padding trimmed.
func (e Entry) String() string { return e.nameString() }
