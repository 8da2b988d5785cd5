// Package sim is the simulation core: the occupancy grid and agent roster,
// per-agent raycast visibility, the per-tick movement integrator, the
// pluggable strategy interface with its registry, and the binary world format.
//
// Nothing in this package is safe for concurrent use. A host that ticks the
// simulation from one goroutine and edits it from another must serialize
// access itself (see internal/engine).
package sim

import (
	"errors"
	"fmt"

	"robot-sim/internal/grid"
)

var (
	// ErrStaleHandle is returned when a handle refers to a removed agent.
	ErrStaleHandle = errors.New("sim: stale agent handle")

	// ErrDesync means the occupancy grid and the roster disagree.
	// It signals a bug in a mutation path, never a user error.
	ErrDesync = errors.New("sim: occupancy grid and agent roster out of sync")
)

// Handle addresses an agent in the world's arena. Handles stay valid while
// the roster grows; once the agent is removed the slot generation changes
// and the handle is rejected with ErrStaleHandle.
type Handle struct {
	Index uint32
	Gen   uint32
}

// slot is one arena entry. gen is never 0, so the zero Handle is never live.
type slot struct {
	agent *Agent
	gen   uint32
}

// World owns the occupancy grid and every agent in it.
//
// Invariant: a cell is tagged CellAgent iff exactly one live agent sits on it.
// Only AddAgent, RemoveAgent and moveAgentCell write CellAgent tags.
type World struct {
	occupancy *grid.Grid[Cell]

	slots  []slot
	free   []uint32
	count  int
	nextID uint32

	// genFloor is the first generation given to new slots. Restore raises it
	// so handles from the replaced roster never resolve again.
	genFloor uint32
}

// New creates an empty world.
func New(width, height int) (*World, error) {
	occupancy, err := grid.New(width, height, CellEmpty)
	if err != nil {
		return nil, fmt.Errorf("new world: %w", err)
	}
	return &World{occupancy: occupancy}, nil
}

// Width returns the world width in cells.
func (w *World) Width() int { return w.occupancy.Width() }

// Height returns the world height in cells.
func (w *World) Height() int { return w.occupancy.Height() }

// Occupancy returns a read-only view of the occupancy grid.
func (w *World) Occupancy() grid.View[Cell] { return w.occupancy }

// CellAt returns the occupancy tag at (x, y).
func (w *World) CellAt(x, y int) (Cell, error) {
	return w.occupancy.At(x, y)
}

// Len returns the number of live agents.
func (w *World) Len() int { return w.count }

// NextID returns the id the next added agent will get.
func (w *World) NextID() uint32 { return w.nextID }

// AddWall turns an empty cell into a wall. Occupied cells are left alone.
func (w *World) AddWall(x, y int) error {
	return w.SetWall(x, y, true)
}

// RemoveWall clears a wall. Cells that are not walls are left alone.
func (w *World) RemoveWall(x, y int) error {
	return w.SetWall(x, y, false)
}

// SetWall adds or removes a wall at (x, y).
func (w *World) SetWall(x, y int, wall bool) error {
	cell, err := w.occupancy.At(x, y)
	if err != nil {
		return fmt.Errorf("set wall: %w", err)
	}

	switch {
	case wall && cell == CellEmpty:
		return w.occupancy.Set(x, y, CellWall)
	case !wall && cell == CellWall:
		return w.occupancy.Set(x, y, CellEmpty)
	}
	return nil
}

// AddAgent places a new agent at (x, y), replacing whatever is there.
// An agent already on that cell is dropped from the roster first.
func (w *World) AddAgent(x, y int) (Handle, error) {
	cell, err := w.occupancy.At(x, y)
	if err != nil {
		return Handle{}, fmt.Errorf("add agent: %w", err)
	}

	if cell == CellAgent {
		h, ok, err := w.AgentAt(x, y)
		if err != nil {
			return Handle{}, fmt.Errorf("add agent: %w", err)
		}
		if ok {
			w.release(h.Index)
		}
	}

	a, err := newAgent(w.nextID, x, y, w.Width(), w.Height())
	if err != nil {
		return Handle{}, fmt.Errorf("add agent: %w", err)
	}

	w.occupancy.Set(x, y, CellAgent)
	w.nextID++
	return w.insert(a), nil
}

// RemoveAgent clears the agent's cell and drops it from the roster.
// The id counter restarts at zero once the roster is empty.
func (w *World) RemoveAgent(h Handle) error {
	a, err := w.Agent(h)
	if err != nil {
		return fmt.Errorf("remove agent: %w", err)
	}

	if w.occupancy.Get(a.x, a.y) == CellAgent {
		w.occupancy.Set(a.x, a.y, CellEmpty)
	}
	w.release(h.Index)

	if w.count == 0 {
		w.nextID = 0
	}
	return nil
}

// Agent resolves a handle.
func (w *World) Agent(h Handle) (*Agent, error) {
	if int(h.Index) >= len(w.slots) {
		return nil, ErrStaleHandle
	}
	s := w.slots[h.Index]
	if s.agent == nil || s.gen != h.Gen {
		return nil, ErrStaleHandle
	}
	return s.agent, nil
}

// AgentAt returns the agent on (x, y). ok is false when the cell is out of
// bounds or not tagged CellAgent.
func (w *World) AgentAt(x, y int) (h Handle, ok bool, err error) {
	if !w.occupancy.InBounds(x, y) {
		return Handle{}, false, nil
	}
	if w.occupancy.Get(x, y) != CellAgent {
		return Handle{}, false, nil
	}

	for i, s := range w.slots {
		if s.agent != nil && s.agent.x == x && s.agent.y == y {
			return Handle{Index: uint32(i), Gen: s.gen}, true, nil
		}
	}
	return Handle{}, false, fmt.Errorf("%w: agent tag at (%d,%d) with no agent", ErrDesync, x, y)
}

// AgentByID finds a live agent by id.
func (w *World) AgentByID(id uint32) (Handle, bool) {
	for i, s := range w.slots {
		if s.agent != nil && s.agent.id == id {
			return Handle{Index: uint32(i), Gen: s.gen}, true
		}
	}
	return Handle{}, false
}

// Handles returns the handles of every live agent in arena order.
func (w *World) Handles() []Handle {
	handles := make([]Handle, 0, w.count)
	for i, s := range w.slots {
		if s.agent != nil {
			handles = append(handles, Handle{Index: uint32(i), Gen: s.gen})
		}
	}
	return handles
}

// Each calls fn for every live agent in arena order.
// fn must not add or remove agents.
func (w *World) Each(fn func(h Handle, a *Agent)) {
	for i, s := range w.slots {
		if s.agent != nil {
			fn(Handle{Index: uint32(i), Gen: s.gen}, s.agent)
		}
	}
}

// IsBlocked reports whether an agent may not enter (x, y).
// Everything outside the grid is blocked.
func (w *World) IsBlocked(x, y int) bool {
	if !w.occupancy.InBounds(x, y) {
		return true
	}
	return w.occupancy.Get(x, y) != CellEmpty
}

// MoveAgent moves an agent to (x, y) if the destination is free.
// Fractional offsets are not touched.
func (w *World) MoveAgent(h Handle, x, y int) (bool, error) {
	a, err := w.Agent(h)
	if err != nil {
		return false, fmt.Errorf("move agent: %w", err)
	}
	return w.moveAgentCell(a, x, y), nil
}

// moveAgentCell is the only path that relocates an Agent tag.
func (w *World) moveAgentCell(a *Agent, x, y int) bool {
	if a.x == x && a.y == y {
		return true
	}
	if w.IsBlocked(x, y) {
		return false
	}

	w.occupancy.Set(a.x, a.y, CellEmpty)
	w.occupancy.Set(x, y, CellAgent)
	a.x, a.y = x, y
	return true
}

// CheckInvariants verifies that the occupancy grid and the roster agree.
func (w *World) CheckInvariants() error {
	tagged := 0
	for _, c := range w.occupancy.Data() {
		if c == CellAgent {
			tagged++
		}
	}
	if tagged != w.count {
		return fmt.Errorf("%w: %d agent cells, %d agents", ErrDesync, tagged, w.count)
	}

	seen := make(map[[2]int]uint32, w.count)
	for _, s := range w.slots {
		if s.agent == nil {
			continue
		}
		a := s.agent
		if !w.occupancy.InBounds(a.x, a.y) || w.occupancy.Get(a.x, a.y) != CellAgent {
			return fmt.Errorf("%w: agent %d at (%d,%d) not tagged", ErrDesync, a.id, a.x, a.y)
		}
		if other, dup := seen[[2]int{a.x, a.y}]; dup {
			return fmt.Errorf("%w: agents %d and %d share (%d,%d)", ErrDesync, other, a.id, a.x, a.y)
		}
		seen[[2]int{a.x, a.y}] = a.id
	}
	return nil
}

func (w *World) insert(a *Agent) Handle {
	w.count++

	if n := len(w.free); n > 0 {
		idx := w.free[n-1]
		w.free = w.free[:n-1]
		w.slots[idx].agent = a
		return Handle{Index: idx, Gen: w.slots[idx].gen}
	}

	gen := w.genFloor + 1
	w.slots = append(w.slots, slot{agent: a, gen: gen})
	return Handle{Index: uint32(len(w.slots) - 1), Gen: gen}
}

// release frees a slot without touching the occupancy grid.
func (w *World) release(idx uint32) {
	w.slots[idx].agent = nil
	w.slots[idx].gen++
	w.free = append(w.free, idx)
	w.count--
}
