// Package bitmap provides the bit set/clear/test/find-first-zero
// primitives spec.md §4.1 calls for, layered on top of
// github.com/boljen/go-bitmap for the actual bit storage (LSB-first within
// each byte, matching spec.md exactly).
package bitmap

import (
	bm "github.com/boljen/go-bitmap"
)

// SizeBytes returns the number of bytes needed to hold `bits` bits.
func SizeBytes(bits int) int {
	return (bits + 7) / 8
}

// Set marks bit `pos` as used in `buf`.
func Set(buf []byte, pos int) {
	bm.Bitmap(buf).Set(pos, true)
}

// Clear marks bit `pos` as free in `buf`.
func Clear(buf []byte, pos int) {
	bm.Bitmap(buf).Set(pos, false)
}

// Test reports whether bit `pos` is set in `buf`.
func Test(buf []byte, pos int) bool {
	return bm.Bitmap(buf).Get(pos)
}

// FindFirstZero scans bits [0, limit) and returns the index of the first
// unset bit. ok is false if every bit in range is set.
func FindFirstZero(buf []byte, limit int) (index int, ok bool) {
	b := bm.Bitmap(buf)
	for i := 0; i < limit; i++ {
		if !b.Get(i) {
			return i, true
		}
	}
	return 0, false
}
