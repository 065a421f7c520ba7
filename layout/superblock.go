package layout

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"
)

// Superblock is the on-disk record stored at block 0, per spec.md §3. It
// is informational: the live layout used by the rest of this module is
// always derived from the compile-time constants above, and Mount
// validates the two agree.
type Superblock struct {
	BlockSize       uint32
	InodeSize       uint32
	InodeNum        uint32
	BlockNum        uint32
	InodeBitmapBlock uint32
	DataBitmapBlock  uint32
	InodeTableStart  uint32
	DataBlockStart   uint32
}

// NewSuperblock builds the superblock for a freshly formatted image of the
// given geometry.
func NewSuperblock(geometry Geometry) Superblock {
	return Superblock{
		BlockSize:        BlockSize,
		InodeSize:        InodeSize,
		InodeNum:         InodeNum,
		BlockNum:         geometry.TotalBlocks,
		InodeBitmapBlock: InodeBitmapBlock,
		DataBitmapBlock:  DataBitmapBlock,
		InodeTableStart:  InodeTableStart,
		DataBlockStart:   DataBlockStart,
	}
}

// Encode serializes the superblock into a BlockSize-length buffer, writing
// through bytewriter the way the teacher's unixv1.Format builds its
// on-disk metadata blocks.
func (s Superblock) Encode() []byte {
	buf := make([]byte, BlockSize)
	w := bytewriter.New(buf)
	for _, field := range []uint32{
		s.BlockSize, s.InodeSize, s.InodeNum, s.BlockNum,
		s.InodeBitmapBlock, s.DataBitmapBlock, s.InodeTableStart, s.DataBlockStart,
	} {
		binary.Write(w, binary.LittleEndian, field)
	}
	return buf
}

// DecodeSuperblock parses a BlockSize-length buffer into a Superblock.
func DecodeSuperblock(buf []byte) (Superblock, error) {
	if len(buf) < BlockSize {
		return Superblock{}, fmt.Errorf("layout: superblock buffer too short: %d bytes", len(buf))
	}
	r := bytes.NewReader(buf)
	var s Superblock
	fields := []*uint32{
		&s.BlockSize, &s.InodeSize, &s.InodeNum, &s.BlockNum,
		&s.InodeBitmapBlock, &s.DataBitmapBlock, &s.InodeTableStart, &s.DataBlockStart,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return Superblock{}, err
		}
	}
	return s, nil
}

// ValidateAgainstConstants checks that a mounted superblock's fixed layout
// fields match this build's compile-time constants. BlockNum is allowed to
// differ (it records the actual geometry of the image).
func (s Superblock) ValidateAgainstConstants() error {
	switch {
	case s.BlockSize != BlockSize:
		return fmt.Errorf("layout: superblock block size %d != %d", s.BlockSize, BlockSize)
	case s.InodeSize != InodeSize:
		return fmt.Errorf("layout: superblock inode size %d != %d", s.InodeSize, InodeSize)
	case s.InodeNum != InodeNum:
		return fmt.Errorf("layout: superblock inode count %d != %d", s.InodeNum, InodeNum)
	case s.InodeBitmapBlock != InodeBitmapBlock:
		return fmt.Errorf("layout: superblock inode bitmap block %d != %d", s.InodeBitmapBlock, InodeBitmapBlock)
	case s.DataBitmapBlock != DataBitmapBlock:
		return fmt.Errorf("layout: superblock data bitmap block %d != %d", s.DataBitmapBlock, DataBitmapBlock)
	case s.InodeTableStart != InodeTableStart:
		return fmt.Errorf("layout: superblock inode table start %d != %d", s.InodeTableStart, InodeTableStart)
	case s.DataBlockStart != DataBlockStart:
		return fmt.Errorf("layout: superblock data block start %d != %d", s.DataBlockStart, DataBlockStart)
	}
	return nil
}
