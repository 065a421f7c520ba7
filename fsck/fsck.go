// Package fsck implements a read-only consistency checker for a mounted
// image, verifying spec.md §8's invariants 1-4: inode-bitmap reference
// consistency, data-bitmap reference consistency, the directory size law,
// and the file size law. Violations are collected with go-multierror
// instead of stopping at the first one found, the way core.Mount
// aggregates superblock mismatches.
package fsck

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/corvidfs/vblockfs"
	"github.com/corvidfs/vblockfs/bitmap"
	"github.com/corvidfs/vblockfs/blockmap"
	"github.com/corvidfs/vblockfs/core"
	"github.com/corvidfs/vblockfs/dirent"
	"github.com/corvidfs/vblockfs/inode"
	"github.com/corvidfs/vblockfs/layout"
)

// Report summarizes one Check run.
type Report struct {
	InodesVisited uint32
	Errors        error
}

// OK reports whether the checked filesystem has no known violations.
func (r Report) OK() bool { return r.Errors == nil }

// Check walks every inode reachable from the root directory, then
// compares what it found against the on-disk inode and data bitmaps.
func Check(fs *core.FileSystem) Report {
	var result error
	visitedInodes := make(map[uint32]bool)
	referencedBlocks := make(map[uint32]bool)

	var walk func(pos uint32, expectDir bool)
	walk = func(pos uint32, expectDir bool) {
		if visitedInodes[pos] {
			return
		}
		visitedInodes[pos] = true

		rec, err := inode.Read(fs.Cache(), pos)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("fsck: inode %d: %w", pos, err))
			return
		}
		isDir := rec.Mode&vblockfs.S_IFMT == vblockfs.S_IFDIR
		if expectDir && !isDir {
			result = multierror.Append(result, fmt.Errorf("fsck: inode %d: directory entry points at a non-directory", pos))
		}

		if err := checkBlockPointers(fs, rec); err != nil {
			result = multierror.Append(result, fmt.Errorf("fsck: inode %d: %w", pos, err))
		}
		if err := collectReferencedBlocks(fs, rec, referencedBlocks); err != nil {
			result = multierror.Append(result, fmt.Errorf("fsck: inode %d: %w", pos, err))
		}

		if isDir {
			if err := checkDirectorySizeLaw(fs, pos, rec); err != nil {
				result = multierror.Append(result, err)
			}
		} else if err := checkFileSizeLaw(fs, pos, rec); err != nil {
			result = multierror.Append(result, err)
		}

		if !isDir {
			return
		}
		children, err := dirent.ListLive(fs.Cache(), rec)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("fsck: inode %d: %w", pos, err))
			return
		}
		for _, child := range children {
			if child.InodePos >= layout.InodeNum {
				result = multierror.Append(result, fmt.Errorf(
					"fsck: directory %d: entry %q names out-of-range inode %d", pos, child.String(), child.InodePos))
				continue
			}
			walk(child.InodePos, false)
		}
	}

	walk(layout.RootInodePos, true)

	if err := checkInodeBitmap(fs, visitedInodes); err != nil {
		result = multierror.Append(result, err)
	}
	if err := checkDataBitmap(fs, referencedBlocks); err != nil {
		result = multierror.Append(result, err)
	}

	return Report{InodesVisited: uint32(len(visitedInodes)), Errors: result}
}

// checkBlockPointers verifies every direct and indirect block pointer in
// rec addresses a block inside the data region.
func checkBlockPointers(fs *core.FileSystem, rec inode.Record) error {
	dataBlocks := fs.DataRegion().Capacity()
	checkOne := func(p uint32) error {
		if p == layout.Unmapped {
			return nil
		}
		if p < layout.DataBlockStart || p-layout.DataBlockStart >= dataBlocks {
			return fmt.Errorf("block pointer %d falls outside the data region", p)
		}
		return nil
	}
	for _, p := range rec.Direct {
		if err := checkOne(p); err != nil {
			return err
		}
	}
	for _, p := range rec.Indirect {
		if err := checkOne(p); err != nil {
			return err
		}
	}
	return nil
}

// collectReferencedBlocks adds the relative (bitmap-index) form of every
// block rec addresses to referenced: its direct blocks, its indirect
// blocks themselves, and every pointer stored inside each indirect block.
// Pointers already flagged as out of range by checkBlockPointers are
// skipped rather than double-reported.
func collectReferencedBlocks(fs *core.FileSystem, rec inode.Record, referenced map[uint32]bool) error {
	dataBlocks := fs.DataRegion().Capacity()
	inRange := func(p uint32) bool {
		return p != layout.Unmapped && p >= layout.DataBlockStart && p-layout.DataBlockStart < dataBlocks
	}
	for _, p := range rec.Direct {
		if inRange(p) {
			referenced[p-layout.DataBlockStart] = true
		}
	}
	for _, indBlock := range rec.Indirect {
		if !inRange(indBlock) {
			continue
		}
		referenced[indBlock-layout.DataBlockStart] = true
		ptrs, err := blockmap.ReadIndirectBlockPointers(fs.Cache(), indBlock)
		if err != nil {
			return err
		}
		for _, p := range ptrs {
			if inRange(p) {
				referenced[p-layout.DataBlockStart] = true
			}
		}
	}
	return nil
}

// checkInodeBitmap verifies spec.md §8 invariant 1: inode-bitmap bit i is
// set iff i is the root slot or some directory entry references it.
func checkInodeBitmap(fs *core.FileSystem, referenced map[uint32]bool) error {
	buf, err := fs.InodeRegion().Snapshot()
	if err != nil {
		return err
	}
	var result error
	for i := uint32(0); i < layout.InodeNum; i++ {
		set := bitmap.Test(buf, int(i))
		shouldBeSet := i == layout.RootInodePos || referenced[i]
		if set && !shouldBeSet {
			result = multierror.Append(result, fmt.Errorf("fsck: inode bitmap bit %d is set but inode %d is unreachable", i, i))
		}
		if !set && shouldBeSet {
			result = multierror.Append(result, fmt.Errorf("fsck: inode bitmap bit %d is clear but inode %d is referenced", i, i))
		}
	}
	return result
}

// checkDataBitmap verifies spec.md §8 invariant 2: data-bitmap bit b is
// set iff b is referenced by some reachable inode's direct, indirect, or
// indirect-of-direct pointers. This implementation frees directory blocks
// the instant they empty (no lazy-reclamation window), so the invariant's
// "awaiting lazy reclamation" clause never applies here.
func checkDataBitmap(fs *core.FileSystem, referenced map[uint32]bool) error {
	buf, err := fs.DataRegion().Snapshot()
	if err != nil {
		return err
	}
	var result error
	for i := uint32(0); i < fs.DataRegion().Capacity(); i++ {
		set := bitmap.Test(buf, int(i))
		shouldBeSet := referenced[i]
		if set && !shouldBeSet {
			result = multierror.Append(result, fmt.Errorf("fsck: data bitmap bit %d is set but block %d is unreferenced", i, i+layout.DataBlockStart))
		}
		if !set && shouldBeSet {
			result = multierror.Append(result, fmt.Errorf("fsck: data bitmap bit %d is clear but block %d is referenced", i, i+layout.DataBlockStart))
		}
	}
	return result
}

// checkDirectorySizeLaw verifies spec.md §8 invariant 3: a directory's
// size field equals 32 times its count of live (non-tombstone) entries.
func checkDirectorySizeLaw(fs *core.FileSystem, pos uint32, rec inode.Record) error {
	entries, err := dirent.ListLive(fs.Cache(), rec)
	if err != nil {
		return fmt.Errorf("fsck: inode %d: %w", pos, err)
	}
	want := uint32(len(entries)) * layout.DirEntrySize
	if rec.Size != want {
		return fmt.Errorf("fsck: directory %d: size %d does not match %d live entries (want %d)", pos, rec.Size, len(entries), want)
	}
	return nil
}

// checkFileSizeLaw verifies spec.md §8 invariant 4's static consequence:
// read(inode, offset=0, size=∞) can only return exactly inode.size bytes
// if no block beyond ceil(size/BLOCK_SIZE) is mapped. A block mapped past
// that boundary means a truncate or write left stale data reachable past
// the reported end of file.
func checkFileSizeLaw(fs *core.FileSystem, pos uint32, rec inode.Record) error {
	if rec.Size > layout.MaxFileSize {
		return fmt.Errorf("fsck: file %d: size %d exceeds MaxFileSize", pos, rec.Size)
	}
	blockSize := fs.Cache().BlockSize()
	firstOutOfRange := rec.Size / blockSize
	if rec.Size%blockSize != 0 {
		firstOutOfRange++
	}
	for logical := firstOutOfRange; logical < layout.MaxLogicalBlocks; logical++ {
		_, ok, err := blockmap.Get(fs.Cache(), rec, logical)
		if err != nil {
			return fmt.Errorf("fsck: file %d: %w", pos, err)
		}
		if ok {
			return fmt.Errorf("fsck: file %d: logical block %d is mapped past reported size %d", pos, logical, rec.Size)
		}
	}
	return nil
}
