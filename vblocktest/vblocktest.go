// Package vblocktest holds shared test fixtures for the rest of this
// module: an in-memory device, formatted by Mkfs, ready for a package's
// _test.go files to mount and exercise. Grounded on the teacher's own
// testing package, which builds disposable images and caches for its
// driver tests the same way.
package vblocktest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidfs/vblockfs/blockdevice"
	"github.com/corvidfs/vblockfs/core"
	"github.com/corvidfs/vblockfs/disks"
	"github.com/corvidfs/vblockfs/layout"
)

// NewMemoryDevice creates a zeroed in-memory device sized by the named
// disks profile. "test" is the profile sized for
// fast unit tests.
func NewMemoryDevice(t *testing.T, profileSlug string) blockdevice.Device {
	profile, err := disks.GetProfile(profileSlug)
	require.NoError(t, err)
	return blockdevice.NewMemoryDevice(layout.BlockSize, profile.TotalBlocks)
}

// MountFreshFileSystem formats a brand-new in-memory device with the
// "test" disks profile and mounts it, returning a ready-to-use
// *core.FileSystem. Every test package that needs a live filesystem
// without caring about its exact size should use this.
func MountFreshFileSystem(t *testing.T) *core.FileSystem {
	dev := NewMemoryDevice(t, "test")
	geometry := layout.Geometry{TotalBlocks: dev.BlockCount()}
	require.NoError(t, core.Mkfs(dev, geometry))
	fs, err := core.Mount(dev)
	require.NoError(t, err)
	return fs
}
