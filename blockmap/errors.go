package blockmap

import "errors"

// ErrNoSpace is returned when the data region has no free blocks left to
// allocate a new indirect block.
var ErrNoSpace = errors.New("blockmap: data region exhausted")
