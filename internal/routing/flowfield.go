package routing

import (
	"robot-sim/internal/sim"
	"robot-sim/internal/spatial"
)

// FlowField plans over what the agent remembers. Remembered walls are
// impassable; unseen cells and other agents are assumed passable, so the
// plan is optimistic and gets rebuilt as the agent discovers terrain.
//
// The field is regenerated only when the goal or the remembered walls
// change. If the goal is unreachable on the remembered map the strategy
// falls back to Dummy's straight-line heading.
type FlowField struct {
	field *spatial.FlowField
}

// NewFlowField is the registry factory for FlowField.
func NewFlowField() sim.Strategy { return &FlowField{} }

// Initialize implements sim.Strategy.
func (f *FlowField) Initialize(a *sim.Agent) {
	mem := a.Memory()
	f.field = spatial.NewFlowField(mem.Width(), mem.Height())
}

// Run implements sim.Strategy.
func (f *FlowField) Run(a *sim.Agent, _ float64) float64 {
	gx, gy, ok := a.Goal()
	if !ok {
		return 0
	}
	if f.field == nil {
		f.Initialize(a)
	}

	mem := a.Memory()
	wallsChanged := f.field.SetBlockedFunc(func(col, row int) bool {
		return mem.Get(col, row) == sim.CellWall
	})
	if pc, pr, generated := f.field.Goal(); wallsChanged || !generated || pc != gx || pr != gy {
		f.field.Generate(gx, gy)
	}

	x, y := a.Cell()
	dx, dy, ok := f.field.Lookup(x, y)
	if !ok || (dx == 0 && dy == 0) {
		return a.HeadingTo(gx, gy)
	}
	return a.HeadingTo(x+dx, y+dy)
}
