package engine

import (
	"time"

	"robot-sim/internal/grid"
	"robot-sim/internal/sim"
)

// AgentSnapshot is an immutable copy of one agent.
type AgentSnapshot struct {
	ID       uint32  `json:"id"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	FX       float64 `json:"fx"`
	FY       float64 `json:"fy"`
	HasGoal  bool    `json:"hasGoal"`
	GoalX    int     `json:"goalX"`
	GoalY    int     `json:"goalY"`
	Strategy string  `json:"strategy,omitempty"`
}

// Position returns the continuous position.
func (a AgentSnapshot) Position() (x, y float64) {
	return float64(a.X) + a.FX, float64(a.Y) + a.FY
}

// Snapshot is a complete immutable world state. Readers get it without
// taking the engine lock; a new one is published after every tick and edit.
type Snapshot struct {
	Sequence   uint64    `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
	TickNumber uint64    `json:"tick"`
	Running    bool      `json:"running"`

	Width  int        `json:"width"`
	Height int        `json:"height"`
	Cells  []sim.Cell `json:"-"` // row-major, y*Width+x

	Agents []AgentSnapshot `json:"agents"`
}

// CellAt returns the cell at (x, y), or CellWall outside the world.
func (s *Snapshot) CellAt(x, y int) sim.Cell {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return sim.CellWall
	}
	return s.Cells[y*s.Width+x]
}

// Agent finds an agent by id.
func (s *Snapshot) Agent(id uint32) (AgentSnapshot, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentSnapshot{}, false
}

// Rows renders the cells as one string per row: '.' empty, '#' wall,
// 'A' agent.
func (s *Snapshot) Rows() []string {
	rows := make([]string, s.Height)
	line := make([]byte, s.Width)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			line[x] = cellGlyph(s.Cells[y*s.Width+x])
		}
		rows[y] = string(line)
	}
	return rows
}

func cellGlyph(c sim.Cell) byte {
	switch c {
	case sim.CellWall:
		return '#'
	case sim.CellAgent:
		return 'A'
	default:
		return '.'
	}
}

// AgentView is a copy of what one agent currently sees and remembers.
type AgentView struct {
	ID      uint32
	Width   int
	Height  int
	Visible []bool     // row-major
	Memory  []sim.Cell // row-major
}

// CanSee reports whether (x, y) was visible at the agent's last refresh.
func (v *AgentView) CanSee(x, y int) bool {
	if x < 0 || y < 0 || x >= v.Width || y >= v.Height {
		return false
	}
	return v.Visible[y*v.Width+x]
}

// Remembered returns the remembered cell at (x, y).
func (v *AgentView) Remembered(x, y int) sim.Cell {
	if x < 0 || y < 0 || x >= v.Width || y >= v.Height {
		return sim.CellEmpty
	}
	return v.Memory[y*v.Width+x]
}

// Rows renders the view as text: visible uses '*' for cells in sight,
// memory uses the same glyphs as Snapshot.Rows.
func (v *AgentView) Rows() (visible, memory []string) {
	visible = make([]string, v.Height)
	memory = make([]string, v.Height)
	seen := make([]byte, v.Width)
	mem := make([]byte, v.Width)
	for y := 0; y < v.Height; y++ {
		for x := 0; x < v.Width; x++ {
			seen[x] = '.'
			if v.Visible[y*v.Width+x] {
				seen[x] = '*'
			}
			mem[x] = cellGlyph(v.Memory[y*v.Width+x])
		}
		visible[y] = string(seen)
		memory[y] = string(mem)
	}
	return visible, memory
}

// flatten copies a grid view into a row-major slice.
func flatten[T any](v grid.View[T]) []T {
	w, h := v.Width(), v.Height()
	out := make([]T, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out = append(out, v.Get(x, y))
		}
	}
	return out
}
