// Package disks holds a small table of named vblockfs image-size profiles,
// embedded as CSV and parsed with gocsv the way the teacher's own disks
// package loads its floppy-geometry table, so the CLI and tests can refer
// to a size by name instead of spelling out block counts.
package disks

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/corvidfs/vblockfs/layout"
)

// Profile names one vblockfs image size: how many blocks it has, and
// whether it's meant for interactive use or for fast unit tests.
type Profile struct {
	Slug        string `csv:"slug"`
	Description string `csv:"description"`
	TotalBlocks uint32 `csv:"total_blocks"`
}

// Geometry converts a Profile into the layout.Geometry Mkfs expects.
func (p Profile) Geometry() layout.Geometry {
	return layout.Geometry{TotalBlocks: p.TotalBlocks}
}

//go:embed profiles.csv
var profilesRawCSV string

var profiles map[string]Profile

func init() {
	profiles = make(map[string]Profile)
	reader := strings.NewReader(profilesRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Profile) error {
		if _, exists := profiles[row.Slug]; exists {
			return fmt.Errorf("disks: duplicate profile slug %q", row.Slug)
		}
		profiles[row.Slug] = row
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}
}

// GetProfile looks up a named image-size profile.
func GetProfile(slug string) (Profile, error) {
	p, ok := profiles[slug]
	if !ok {
		return Profile{}, fmt.Errorf("disks: no profile named %q", slug)
	}
	return p, nil
}

// Names returns every known profile slug.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	return names
}
