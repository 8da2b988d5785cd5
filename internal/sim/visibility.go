package sim

import (
	"math"
)

const (
	// ViewRadius is how far an agent sees along a ray, in cells.
	ViewRadius = 4.0

	// RayCount is the number of rays cast per refresh, evenly spread over 2π.
	RayCount = 48

	// MinRayStep keeps a ray moving when it sits exactly on a grid line.
	MinRayStep = 0.001
)

// Rect is an inclusive cell rectangle.
type Rect struct {
	MinX, MinY int
	MaxX, MaxY int
}

// Contains reports whether (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

func (r *Rect) extend(x, y int) {
	r.MinX = min(r.MinX, x)
	r.MinY = min(r.MinY, y)
	r.MaxX = max(r.MaxX, x)
	r.MaxY = max(r.MaxY, y)
}

// RefreshVisibility recomputes a's visibility mask by raycasting from the
// center of its cell, then copies the world's occupancy into a's memory for
// every visible cell. Memory outside the visible set is left untouched.
//
// Returns the rectangle bounding every cell touched by a ray.
func (w *World) RefreshVisibility(a *Agent) Rect {
	vis := a.visibility
	vis.Fill(false)
	vis.Set(a.x, a.y, true)

	bounds := Rect{MinX: a.x, MinY: a.y, MaxX: a.x, MaxY: a.y}
	ox := float64(a.x) + 0.5
	oy := float64(a.y) + 0.5

	for i := 0; i < RayCount; i++ {
		angle := 2 * math.Pi * float64(i) / RayCount
		w.castRay(a, ox, oy, math.Cos(angle), math.Sin(angle), &bounds)
	}

	for y := bounds.MinY; y <= bounds.MaxY; y++ {
		for x := bounds.MinX; x <= bounds.MaxX; x++ {
			if vis.Get(x, y) {
				a.memory.Set(x, y, w.occupancy.Get(x, y))
			}
		}
	}

	return bounds
}

// castRay marches one ray cell boundary by cell boundary (DDA).
// It stops at the view radius, at the grid edge, or on the first non-empty
// cell other than the origin; a blocking cell is itself marked visible.
func (w *World) castRay(a *Agent, px, py, dx, dy float64, bounds *Rect) {
	traveled := 0.0

	for {
		step := min(gridLineDistance(px, dx), gridLineDistance(py, dy))
		if step < MinRayStep {
			step = MinRayStep
		}

		px += dx * step
		py += dy * step
		traveled += step
		if traveled > ViewRadius {
			return
		}

		cx := int(math.Floor(px))
		cy := int(math.Floor(py))
		if !w.occupancy.InBounds(cx, cy) {
			return
		}

		a.visibility.Set(cx, cy, true)
		bounds.extend(cx, cy)

		if cx == a.x && cy == a.y {
			continue
		}
		if w.occupancy.Get(cx, cy) != CellEmpty {
			return
		}
	}
}

// gridLineDistance is the ray length needed to reach the next grid line
// along one axis, where d is that axis' component of the unit direction.
func gridLineDistance(p, d float64) float64 {
	switch {
	case d > 0:
		return (math.Floor(p) + 1 - p) / d
	case d < 0:
		return (p - math.Floor(p)) / -d
	default:
		return math.Inf(1)
	}
}
