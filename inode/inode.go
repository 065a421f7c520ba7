// Package inode implements the fixed-width inode record and its
// read/write access through the block cache, per spec.md §3 and §4.4.
package inode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"

	"github.com/corvidfs/vblockfs/blockcache"
	"github.com/corvidfs/vblockfs/layout"
)

// Record is the in-memory form of one inode, matching the on-disk layout
// field for field.
type Record struct {
	Mode     uint32
	Size     uint32
	Atime    uint32
	Mtime    uint32
	Ctime    uint32
	Nlink    uint32
	Direct   [layout.DirectPointers]uint32
	Indirect [layout.IndirectPointers]uint32
}

// InitRecord builds a freshly allocated inode record with every block
// pointer unmapped.
func InitRecord(mode uint32, now uint32) Record {
	r := Record{Mode: mode, Atime: now, Mtime: now, Ctime: now, Nlink: 1}
	for i := range r.Direct {
		r.Direct[i] = layout.Unmapped
	}
	for i := range r.Indirect {
		r.Indirect[i] = layout.Unmapped
	}
	return r
}

// encode serializes a Record into an InodeSize-length buffer, writing
// through bytewriter the way layout.Superblock.Encode does.
func (r Record) encode() []byte {
	buf := make([]byte, layout.InodeSize)
	w := bytewriter.New(buf)
	binary.Write(w, binary.LittleEndian, r.Mode)
	binary.Write(w, binary.LittleEndian, r.Size)
	binary.Write(w, binary.LittleEndian, r.Atime)
	binary.Write(w, binary.LittleEndian, r.Mtime)
	binary.Write(w, binary.LittleEndian, r.Ctime)
	binary.Write(w, binary.LittleEndian, r.Nlink)
	binary.Write(w, binary.LittleEndian, r.Direct)
	binary.Write(w, binary.LittleEndian, r.Indirect)
	return buf
}

// decode parses an InodeSize-length buffer into a Record.
func decode(buf []byte) (Record, error) {
	if len(buf) < layout.InodeSize {
		return Record{}, fmt.Errorf("inode: record buffer too short: %d bytes", len(buf))
	}
	r := bytes.NewReader(buf)
	var rec Record
	for _, f := range []interface{}{
		&rec.Mode, &rec.Size, &rec.Atime, &rec.Mtime, &rec.Ctime, &rec.Nlink,
		&rec.Direct, &rec.Indirect,
	} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

// location returns the block index and intra-block byte offset of inode
// slot pos within the inode table.
func location(pos uint32) (block uint32, offset uint32) {
	block = layout.InodeTableStart + pos/layout.InodesPerBlock
	offset = (pos % layout.InodesPerBlock) * layout.InodeSize
	return
}

// Read loads the inode record at slot pos through the cache.
func Read(cache *blockcache.Cache, pos uint32) (Record, error) {
	block, offset := location(pos)
	blk := make([]byte, cache.BlockSize())
	if err := cache.CachedRead(block, blk); err != nil {
		return Record{}, err
	}
	return decode(blk[offset : offset+layout.InodeSize])
}

// Write stores rec at slot pos through the cache via a read-modify-write
// of the containing block, since several inode records share a block.
func Write(cache *blockcache.Cache, pos uint32, rec Record) error {
	block, offset := location(pos)
	blk := make([]byte, cache.BlockSize())
	if err := cache.CachedRead(block, blk); err != nil {
		return err
	}
	copy(blk[offset:offset+layout.InodeSize], rec.encode())
	return cache.CachedWrite(block, blk)
}
