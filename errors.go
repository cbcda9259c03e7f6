package cococonv

import (
	"errors"
	"fmt"
)

// ErrOutputExists is returned when the output root directory already exists.
var ErrOutputExists = errors.New("output directory already exists")

// ParseError reports a malformed annotation manifest.
type ParseError struct {
	Path string // The manifest path.
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse COCO manifest %q: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IOError reports a failed read, write or copy of a file belonging to the dataset.
type IOError struct {
	Op   string // E.g. "read", "write", "copy".
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cannot %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
