// Package blockmap implements the two-level logical-to-physical block
// address translation spec.md §4.5 describes: the first DirectPointers
// logical blocks are stored directly in the inode, and the remainder are
// addressed through IndirectPointers single-indirect blocks.
package blockmap

import (
	"github.com/corvidfs/vblockfs/allocator"
	"github.com/corvidfs/vblockfs/blockcache"
	"github.com/corvidfs/vblockfs/inode"
	"github.com/corvidfs/vblockfs/layout"
)

// locate splits a logical block index into either a direct-pointer index,
// or an indirect-block index plus the offset within it.
type locator struct {
	direct       bool
	directIndex  int
	indirectSlot int
	indirectOff  int
}

func locate(logical uint32) locator {
	if logical < layout.DirectPointers {
		return locator{direct: true, directIndex: int(logical)}
	}
	rem := logical - layout.DirectPointers
	return locator{
		direct:       false,
		indirectSlot: int(rem / layout.PointersPerIndirectBlock),
		indirectOff:  int(rem % layout.PointersPerIndirectBlock),
	}
}

func readIndirectBlock(cache *blockcache.Cache, phys uint32) ([]uint32, error) {
	raw := make([]byte, cache.BlockSize())
	if err := cache.CachedRead(phys, raw); err != nil {
		return nil, err
	}
	ptrs := make([]uint32, layout.PointersPerIndirectBlock)
	for i := range ptrs {
		ptrs[i] = uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
	}
	return ptrs, nil
}

func writeIndirectBlock(cache *blockcache.Cache, phys uint32, ptrs []uint32) error {
	raw := make([]byte, cache.BlockSize())
	for i, p := range ptrs {
		raw[i*4] = byte(p)
		raw[i*4+1] = byte(p >> 8)
		raw[i*4+2] = byte(p >> 16)
		raw[i*4+3] = byte(p >> 24)
	}
	return cache.CachedWrite(phys, raw)
}

func newIndirectBlock() []uint32 {
	ptrs := make([]uint32, layout.PointersPerIndirectBlock)
	for i := range ptrs {
		ptrs[i] = layout.Unmapped
	}
	return ptrs
}

// ReadIndirectBlockPointers exposes an indirect block's raw pointer table
// to callers outside this package that need to inspect it directly rather
// than through Get/Set (fsck's bitmap-reference check).
func ReadIndirectBlockPointers(cache *blockcache.Cache, phys uint32) ([]uint32, error) {
	return readIndirectBlock(cache, phys)
}

// Get translates a logical block index of rec into a physical block index.
// ok is false if that logical block has never been written.
func Get(cache *blockcache.Cache, rec inode.Record, logical uint32) (phys uint32, ok bool, err error) {
	loc := locate(logical)
	if loc.direct {
		p := rec.Direct[loc.directIndex]
		return p, p != layout.Unmapped, nil
	}
	indBlock := rec.Indirect[loc.indirectSlot]
	if indBlock == layout.Unmapped {
		return 0, false, nil
	}
	ptrs, err := readIndirectBlock(cache, indBlock)
	if err != nil {
		return 0, false, err
	}
	p := ptrs[loc.indirectOff]
	return p, p != layout.Unmapped, nil
}

// Set maps logical block index logical of rec to phys, allocating an
// indirect block from dataRegion first if this is the first write to that
// indirect range. rec is mutated in place; the caller is responsible for
// persisting it via inode.Write.
func Set(cache *blockcache.Cache, dataRegion *allocator.Region, rec *inode.Record, logical uint32, phys uint32) error {
	loc := locate(logical)
	if loc.direct {
		rec.Direct[loc.directIndex] = phys
		return nil
	}
	indBlock := rec.Indirect[loc.indirectSlot]
	if indBlock == layout.Unmapped && phys == layout.Unmapped {
		return nil
	}
	if indBlock == layout.Unmapped {
		newBlock, ok, err := dataRegion.Alloc()
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoSpace
		}
		indBlock = newBlock + layout.DataBlockStart
		if err := writeIndirectBlock(cache, indBlock, newIndirectBlock()); err != nil {
			return err
		}
		rec.Indirect[loc.indirectSlot] = indBlock
	}
	ptrs, err := readIndirectBlock(cache, indBlock)
	if err != nil {
		return err
	}
	ptrs[loc.indirectOff] = phys
	return writeIndirectBlock(cache, indBlock, ptrs)
}

// FreeAll frees every data block and every indirect block currently mapped
// by rec, back into dataRegion. This resolves spec.md §9's open question
// on indirect-block lifetime: indirect blocks are not addressable data and
// so must be freed explicitly alongside the blocks they point to, rather
// than being left allocated forever or freed as if they were ordinary
// logical blocks.
func FreeAll(cache *blockcache.Cache, dataRegion *allocator.Region, rec inode.Record) error {
	for _, p := range rec.Direct {
		if p != layout.Unmapped {
			if err := dataRegion.Free(p - layout.DataBlockStart); err != nil {
				return err
			}
		}
	}
	for _, indBlock := range rec.Indirect {
		if indBlock == layout.Unmapped {
			continue
		}
		ptrs, err := readIndirectBlock(cache, indBlock)
		if err != nil {
			return err
		}
		for _, p := range ptrs {
			if p != layout.Unmapped {
				if err := dataRegion.Free(p - layout.DataBlockStart); err != nil {
					return err
				}
			}
		}
		if err := dataRegion.Free(indBlock - layout.DataBlockStart); err != nil {
			return err
		}
	}
	return nil
}
