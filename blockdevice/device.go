// Package blockdevice gives the block-device contract spec.md §1 and §6
// describe — an opaque fixed-capacity array of blocks exposing
// read/write-by-index — one concrete, swappable implementation so the rest
// of vblockfs is runnable and testable. spec.md treats the device itself as
// an external collaborator; this package is the ambient piece that plugs
// something real in underneath it.
package blockdevice

import (
	"fmt"
	"io"
	"os"
)

// Device is the block-device contract the block cache sits on top of.
type Device interface {
	BlockSize() uint32
	BlockCount() uint32
	ReadBlock(index uint32, out []byte) error
	WriteBlock(index uint32, in []byte) error
}

// ErrOutOfRange is returned when a block index is past the end of the
// device. A buffer of the wrong length is reported with a plain error.
type ErrOutOfRange struct {
	Index      uint32
	BlockCount uint32
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("blockdevice: block index %d out of range [0, %d)", e.Index, e.BlockCount)
}

type streamDevice struct {
	stream     io.ReadWriteSeeker
	blockSize  uint32
	blockCount uint32
}

// newStreamDevice wraps any io.ReadWriteSeeker sized exactly
// blockSize*blockCount bytes as a Device.
func newStreamDevice(stream io.ReadWriteSeeker, blockSize, blockCount uint32) Device {
	return &streamDevice{stream: stream, blockSize: blockSize, blockCount: blockCount}
}

func (d *streamDevice) BlockSize() uint32  { return d.blockSize }
func (d *streamDevice) BlockCount() uint32 { return d.blockCount }

func (d *streamDevice) checkBounds(index uint32, bufLen int) error {
	if index >= d.blockCount {
		return &ErrOutOfRange{Index: index, BlockCount: d.blockCount}
	}
	if uint32(bufLen) != d.blockSize {
		return fmt.Errorf("blockdevice: buffer must be exactly %d bytes, got %d", d.blockSize, bufLen)
	}
	return nil
}

func (d *streamDevice) ReadBlock(index uint32, out []byte) error {
	if err := d.checkBounds(index, len(out)); err != nil {
		return err
	}
	if _, err := d.stream.Seek(int64(index)*int64(d.blockSize), io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(d.stream, out)
	return err
}

func (d *streamDevice) WriteBlock(index uint32, in []byte) error {
	if err := d.checkBounds(index, len(in)); err != nil {
		return err
	}
	if _, err := d.stream.Seek(int64(index)*int64(d.blockSize), io.SeekStart); err != nil {
		return err
	}
	_, err := d.stream.Write(in)
	return err
}

// NewFileDevice opens (or creates) a file at path, sizes it to exactly
// blockSize*blockCount bytes, and returns a Device backed by it. Intended
// for the CLI, where an image needs to persist between invocations.
func NewFileDevice(path string, blockSize, blockCount uint32) (Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	totalSize := int64(blockSize) * int64(blockCount)
	if err := f.Truncate(totalSize); err != nil {
		f.Close()
		return nil, err
	}
	return newStreamDevice(f, blockSize, blockCount), nil
}
