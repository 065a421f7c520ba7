package blockdevice

import (
	"github.com/xaionaro-go/bytesextra"
)

// NewMemoryDevice creates a Device backed entirely by an in-memory byte
// slice, via bytesextra's ReadWriteSeeker adapter. This is the device the
// teacher's own testing package wraps disk images with
// (bytesextra.NewReadWriteSeeker), and is what vblocktest's fixtures and
// core's unit tests format and mount against instead of a real file.
func NewMemoryDevice(blockSize, blockCount uint32) Device {
	backing := make([]byte, int(blockSize)*int(blockCount))
	stream := bytesextra.NewReadWriteSeeker(backing)
	return newStreamDevice(stream, blockSize, blockCount)
}
