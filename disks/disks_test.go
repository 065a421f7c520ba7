package disks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidfs/vblockfs/layout"
)

func TestGetProfile_KnownSlug(t *testing.T) {
	p, err := GetProfile("test")
	require.NoError(t, err)
	assert.Greater(t, p.TotalBlocks, uint32(layout.DataBlockStart))
}

func TestGetProfile_UnknownSlug(t *testing.T) {
	_, err := GetProfile("does-not-exist")
	assert.Error(t, err)
}

func TestProfile_Geometry(t *testing.T) {
	p, err := GetProfile("default")
	require.NoError(t, err)
	assert.EqualValues(t, p.TotalBlocks, p.Geometry().TotalBlocks)
}

func TestNames_IncludesAllProfiles(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "default")
	assert.Contains(t, names, "small")
	assert.Contains(t, names, "test")
}
