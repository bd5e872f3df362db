// Package cpath builds NUL-terminated paths for the native storage API.
//
// A [Path] is a fixed-size value: building one never allocates, and a
// composition that does not fit (terminator included) is rejected with
// [ErrTooLong] instead of being truncated.
package cpath

import "errors"

// MaxLabelLen is the longest path, in bytes, that a [Path] can carry.
const MaxLabelLen = 128

// Capacity is the size of the backing buffer: MaxLabelLen plus the terminator.
const Capacity = MaxLabelLen + 1

// ErrTooLong is returned when the fragments plus the terminator exceed the capacity.
var ErrTooLong = errors.New("path too long")

// Path is a NUL-terminated byte string stored inline.
// The zero Path is empty and has no terminator; it is never handed to a driver.
type Path struct {
	data [Capacity]byte
	n    int // bytes in use including the terminator
}

// New concatenates fragments into a Path with the full [Capacity].
func New(fragments ...string) (Path, error) {
	return NewLimit(Capacity, fragments...)
}

// NewLimit is like [New] but treats limit as the buffer size.
// A limit outside (0, Capacity] is clamped to Capacity.
//
// Fragments must not contain NUL bytes; this is not checked.
func NewLimit(limit int, fragments ...string) (Path, error) {
	if limit <= 0 || limit > Capacity {
		limit = Capacity
	}

	var p Path
	n := 0
	for _, f := range fragments {
		// check before copying so nothing lands past the limit
		if len(f) > limit-1-n {
			return Path{}, ErrTooLong
		}
		n += copy(p.data[n:], f)
	}
	p.data[n] = 0
	p.n = n + 1
	return p, nil
}

// MustNew is like [New] but panics on overflow. Only for constant inputs.
func MustNew(fragments ...string) Path {
	p, err := New(fragments...)
	if err != nil {
		panic(err)
	}
	return p
}

// Bytes returns the buffer contents including the terminator.
// The slice aliases p and is valid for as long as p is.
func (p *Path) Bytes() []byte {
	return p.data[:p.n]
}

// String returns the path without the terminator.
func (p Path) String() string {
	if p.n == 0 {
		return ""
	}
	return string(p.data[:p.n-1])
}

// Len returns the path length without the terminator.
func (p Path) Len() int {
	if p.n == 0 {
		return 0
	}
	return p.n - 1
}

// IsZero reports whether p was never built.
func (p Path) IsZero() bool {
	return p.n == 0
}
