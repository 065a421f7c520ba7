// Package allocator implements spec.md §4.3's named-bitmap-region
// allocator: allocate/free an index in the inode bitmap or the data
// bitmap, backed by the block cache, with a live usage counter for statfs.
package allocator

import (
	"github.com/corvidfs/vblockfs/bitmap"
	"github.com/corvidfs/vblockfs/blockcache"
)

// Region is a bitmap-backed allocator over one or more contiguous blocks
// of the cache, starting at StartBlock. Capacity is the number of
// allocatable indices (inode slots, or data blocks).
type Region struct {
	cache      *blockcache.Cache
	startBlock uint32
	numBlocks  uint32
	capacity   uint32
	used       uint32
}

// NewRegion constructs a Region and computes its initial used count by
// scanning the bitmap currently on disk (so Mount can pick up an existing
// image's allocation state without re-deriving it from the inode table).
func NewRegion(cache *blockcache.Cache, startBlock, numBlocks, capacity uint32) (*Region, error) {
	r := &Region{cache: cache, startBlock: startBlock, numBlocks: numBlocks, capacity: capacity}
	used, err := r.countUsed()
	if err != nil {
		return nil, err
	}
	r.used = used
	return r, nil
}

func (r *Region) blockSize() uint32 { return r.cache.BlockSize() }

// loadAll reads every block of the region's bitmap into one contiguous
// buffer.
func (r *Region) loadAll() ([]byte, error) {
	buf := make([]byte, r.numBlocks*r.blockSize())
	blk := make([]byte, r.blockSize())
	for i := uint32(0); i < r.numBlocks; i++ {
		if err := r.cache.CachedRead(r.startBlock+i, blk); err != nil {
			return nil, err
		}
		copy(buf[i*r.blockSize():], blk)
	}
	return buf, nil
}

// storeAll writes a contiguous buffer back across the region's blocks.
func (r *Region) storeAll(buf []byte) error {
	for i := uint32(0); i < r.numBlocks; i++ {
		start := i * r.blockSize()
		if err := r.cache.CachedWrite(r.startBlock+i, buf[start:start+r.blockSize()]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Region) countUsed() (uint32, error) {
	buf, err := r.loadAll()
	if err != nil {
		return 0, err
	}
	var used uint32
	for i := uint32(0); i < r.capacity; i++ {
		if bitmap.Test(buf, int(i)) {
			used++
		}
	}
	return used, nil
}

// Alloc finds and marks the first free index, persists the bitmap, and
// returns it. ok is false if the region is full.
func (r *Region) Alloc() (index uint32, ok bool, err error) {
	buf, err := r.loadAll()
	if err != nil {
		return 0, false, err
	}
	i, found := bitmap.FindFirstZero(buf, int(r.capacity))
	if !found {
		return 0, false, nil
	}
	bitmap.Set(buf, i)
	if err := r.storeAll(buf); err != nil {
		return 0, false, err
	}
	r.used++
	return uint32(i), true, nil
}

// Free clears the bit for index and persists the bitmap. Double-freeing an
// already-free index is a caller bug and is not detected, per spec.md §4.3.
func (r *Region) Free(index uint32) error {
	buf, err := r.loadAll()
	if err != nil {
		return err
	}
	bitmap.Clear(buf, int(index))
	if err := r.storeAll(buf); err != nil {
		return err
	}
	r.used--
	return nil
}

// Snapshot returns a copy of the region's on-disk bitmap bytes, for
// read-only inspection (fsck) without going through Alloc/Free.
func (r *Region) Snapshot() ([]byte, error) {
	return r.loadAll()
}

// Used returns the live usage counter, for statfs.
func (r *Region) Used() uint32 { return r.used }

// Capacity returns the total number of allocatable indices in this region.
func (r *Region) Capacity() uint32 { return r.capacity }

// MarkUsed forces the bit for index to 1 and increments the used counter
// without rescanning the bitmap. Used by mkfs to reserve the root inode's
// slot.
func (r *Region) MarkUsed(index uint32) error {
	buf, err := r.loadAll()
	if err != nil {
		return err
	}
	bitmap.Set(buf, int(index))
	if err := r.storeAll(buf); err != nil {
		return err
	}
	r.used++
	return nil
}
