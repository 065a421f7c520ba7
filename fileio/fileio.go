// Package fileio implements the byte-range read/write/truncate engine
// that sits on top of blockmap's logical block translation, per spec.md
// §4.8.
package fileio

import (
	"time"

	"github.com/corvidfs/vblockfs"
	"github.com/corvidfs/vblockfs/allocator"
	"github.com/corvidfs/vblockfs/blockcache"
	"github.com/corvidfs/vblockfs/blockmap"
	"github.com/corvidfs/vblockfs/inode"
	"github.com/corvidfs/vblockfs/layout"
)

func now() uint32 { return uint32(time.Now().Unix()) }

// Read copies up to len(out) bytes starting at offset from rec's data into
// out, zero-filling any logical block that was never written (a sparse
// hole), and returns the number of bytes actually read (capped at rec.Size).
// rec.Atime is advanced to now; the caller persists it via inode.Write.
func Read(cache *blockcache.Cache, rec *inode.Record, offset int64, out []byte) (int, error) {
	rec.Atime = now()
	if offset >= int64(rec.Size) {
		return 0, nil
	}
	remaining := int64(rec.Size) - offset
	if int64(len(out)) > remaining {
		out = out[:remaining]
	}

	blockSize := int64(cache.BlockSize())
	read := 0
	blk := make([]byte, blockSize)
	for read < len(out) {
		curOffset := offset + int64(read)
		logical := uint32(curOffset / blockSize)
		inBlockOff := curOffset % blockSize
		n := int(blockSize - inBlockOff)
		if remainingOut := len(out) - read; n > remainingOut {
			n = remainingOut
		}

		phys, ok, err := blockmap.Get(cache, *rec, logical)
		if err != nil {
			return read, err
		}
		if !ok {
			for i := 0; i < n; i++ {
				out[read+i] = 0
			}
		} else {
			if err := cache.CachedRead(phys, blk); err != nil {
				return read, err
			}
			copy(out[read:read+n], blk[inBlockOff:int64(inBlockOff)+int64(n)])
		}
		read += n
	}
	return read, nil
}

// Write stores in into rec's data starting at offset, allocating new data
// blocks from dataRegion as needed, growing rec.Size when the write
// extends past the current end of file. rec is mutated in place; the
// caller persists it via inode.Write.
func Write(cache *blockcache.Cache, dataRegion *allocator.Region, rec *inode.Record, offset int64, in []byte) (int, error) {
	if offset+int64(len(in)) > layout.MaxFileSize {
		return 0, vblockfs.NewDriverError(vblockfs.EFBIG)
	}

	blockSize := int64(cache.BlockSize())
	written := 0
	blk := make([]byte, blockSize)
	for written < len(in) {
		curOffset := offset + int64(written)
		logical := uint32(curOffset / blockSize)
		inBlockOff := curOffset % blockSize
		n := int(blockSize - inBlockOff)
		if remainingIn := len(in) - written; n > remainingIn {
			n = remainingIn
		}

		phys, ok, err := blockmap.Get(cache, *rec, logical)
		if err != nil {
			return written, err
		}
		if !ok {
			newPhysRel, allocOk, err := dataRegion.Alloc()
			if err != nil {
				return written, err
			}
			if !allocOk {
				return written, vblockfs.NewDriverError(vblockfs.ENOSPC)
			}
			phys = newPhysRel + layout.DataBlockStart
			if err := blockmap.Set(cache, dataRegion, rec, logical, phys); err != nil {
				return written, err
			}
			for i := range blk {
				blk[i] = 0
			}
		} else if n < int(blockSize) {
			// Partial-block write: need the existing contents first.
			if err := cache.CachedRead(phys, blk); err != nil {
				return written, err
			}
		}

		copy(blk[inBlockOff:int64(inBlockOff)+int64(n)], in[written:written+n])
		if err := cache.CachedWrite(phys, blk); err != nil {
			return written, err
		}
		written += n
	}

	newSize := uint64(offset) + uint64(written)
	if newSize > uint64(rec.Size) {
		rec.Size = uint32(newSize)
	}
	return written, nil
}

// Truncate resizes rec to newSize, freeing any data (and indirect) blocks
// that fall entirely beyond the new end of file. Growing only updates
// rec.Size: no blocks are allocated, so the new range stays unmapped and
// Read returns zeroes for it. rec is mutated in place; the caller persists
// it via inode.Write.
//
// spec.md §9 flags the source's truncate-to-smaller-size as off by one
// block: it frees starting at the logical block of the new size instead of
// the block *after* it, discarding up to one block of data the truncated
// file should have kept. This implementation frees starting one block past
// the last block the new size still needs.
func Truncate(cache *blockcache.Cache, dataRegion *allocator.Region, rec *inode.Record, newSize uint32) error {
	blockSize := cache.BlockSize()
	if newSize >= rec.Size {
		rec.Size = newSize
		return nil
	}

	firstFreeLogical := newSize / blockSize
	if newSize%blockSize != 0 {
		firstFreeLogical++
	}

	for logical := firstFreeLogical; logical < layout.MaxLogicalBlocks; logical++ {
		phys, ok, err := blockmap.Get(cache, *rec, logical)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := dataRegion.Free(phys - layout.DataBlockStart); err != nil {
			return err
		}
		if err := blockmap.Set(cache, dataRegion, rec, logical, layout.Unmapped); err != nil {
			return err
		}
	}

	for slot := range rec.Indirect {
		rangeStart := uint32(layout.DirectPointers + slot*layout.PointersPerIndirectBlock)
		if rec.Indirect[slot] == layout.Unmapped || firstFreeLogical > rangeStart {
			continue
		}
		if err := dataRegion.Free(rec.Indirect[slot] - layout.DataBlockStart); err != nil {
			return err
		}
		rec.Indirect[slot] = layout.Unmapped
	}

	rec.Size = newSize
	return nil
}
