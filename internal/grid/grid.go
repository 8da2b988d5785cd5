// Package grid provides a dense, fixed-size 2D container used for the world
// occupancy map and for every per-agent map (visibility, memory).
//
// Storage is a single preallocated slice in row-major order
// (data[y*width+x]). The same formula is used by every accessor and by Data,
// so the raw slice can be written to disk and read back without remapping.
package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize is returned when a grid is created with a non-positive dimension.
	ErrInvalidSize = errors.New("grid: width and height must be positive")

	// ErrOutOfBounds is returned by bounds-checked accessors.
	ErrOutOfBounds = errors.New("grid: coordinate out of bounds")
)

// View is the read-only surface of a Grid handed to collaborators
// (renderers, strategies) that must not mutate the underlying cells.
type View[T any] interface {
	Width() int
	Height() int
	InBounds(x, y int) bool
	At(x, y int) (T, error)
	Get(x, y int) T
}

// Grid is a width×height array of T.
type Grid[T any] struct {
	width  int
	height int
	data   []T
}

// New creates a grid with every cell set to fill.
func New[T any](width, height int, fill T) (*Grid[T], error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	g := &Grid[T]{
		width:  width,
		height: height,
		data:   make([]T, width*height),
	}
	g.Fill(fill)
	return g, nil
}

// FromData wraps an existing row-major slice. The slice is used as-is, not copied.
func FromData[T any](width, height int, data []T) (*Grid[T], error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("grid: data length %d does not match %dx%d", len(data), width, height)
	}
	return &Grid[T]{width: width, height: height, data: data}, nil
}

// Width returns the number of columns.
func (g *Grid[T]) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid[T]) Height() int { return g.height }

// Len returns width*height.
func (g *Grid[T]) Len() int { return len(g.data) }

// InBounds reports whether (x, y) lies in [0,width)×[0,height).
func (g *Grid[T]) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.width && y < g.height
}

// index is the only place the row-major formula lives.
func (g *Grid[T]) index(x, y int) int {
	return y*g.width + x
}

// At returns the value at (x, y) or ErrOutOfBounds.
func (g *Grid[T]) At(x, y int) (T, error) {
	if !g.InBounds(x, y) {
		var zero T
		return zero, fmt.Errorf("%w: (%d,%d) in %dx%d", ErrOutOfBounds, x, y, g.width, g.height)
	}
	return g.data[g.index(x, y)], nil
}

// Get returns the value at (x, y), or the zero value when out of bounds.
// Meant for loops that already clipped their range.
func (g *Grid[T]) Get(x, y int) T {
	if !g.InBounds(x, y) {
		var zero T
		return zero
	}
	return g.data[g.index(x, y)]
}

// Set stores v at (x, y) or returns ErrOutOfBounds.
func (g *Grid[T]) Set(x, y int, v T) error {
	if !g.InBounds(x, y) {
		return fmt.Errorf("%w: (%d,%d) in %dx%d", ErrOutOfBounds, x, y, g.width, g.height)
	}
	g.data[g.index(x, y)] = v
	return nil
}

// Fill overwrites every cell with v without reallocating.
func (g *Grid[T]) Fill(v T) {
	for i := range g.data {
		g.data[i] = v
	}
}

// Clone returns a deep copy of the grid.
func (g *Grid[T]) Clone() *Grid[T] {
	data := make([]T, len(g.data))
	copy(data, g.data)
	return &Grid[T]{width: g.width, height: g.height, data: data}
}

// Data exposes the backing slice in row-major order.
//
// IMPORTANT: the slice is shared with the grid. Copy it if it must outlive
// further mutations.
func (g *Grid[T]) Data() []T {
	return g.data
}
