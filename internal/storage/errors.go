package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an unknown file ID or an out-of-range entry index.
var ErrNotFound = errors.New("not found")

// ParseError reports a malformed JSONL line. The load contract is
// all-or-nothing: one bad line fails the whole file, with its line number.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: invalid JSON on line %d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
