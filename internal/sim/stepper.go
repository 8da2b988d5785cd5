package sim

import (
	"math"
)

const (
	// DefaultSpeed is the agent speed in cells per unit of simulated time.
	DefaultSpeed = 1.0

	// edgeFrac is where an agent is parked when it pushes against a blocked
	// cell on the positive side, and where it lands after stepping into a
	// cell on the negative side.
	edgeFrac = 0.99

	// centerFrac is the settled offset of an agent that reached its goal.
	centerFrac = 0.5
)

// StepStats counts what happened during one Run.
type StepStats struct {
	Evaluated int `json:"evaluated"` // agents whose strategy was consulted
	Moves     int `json:"moves"`     // committed cell-to-cell moves
	Blocked   int `json:"blocked"`   // boundary crossings refused by the world
	Arrived   int `json:"arrived"`   // agents that settled on their goal and lost it
}

// Add accumulates other into s.
func (s *StepStats) Add(other StepStats) {
	s.Evaluated += other.Evaluated
	s.Moves += other.Moves
	s.Blocked += other.Blocked
	s.Arrived += other.Arrived
}

// Stepper advances the world in time.
type Stepper struct {
	world *World
	Speed float64

	onMove   func(h Handle, a *Agent, fromX, fromY int)
	onArrive func(h Handle, a *Agent)
}

// NewStepper creates a stepper for w with DefaultSpeed.
func NewStepper(w *World) *Stepper {
	return &Stepper{world: w, Speed: DefaultSpeed}
}

// World returns the world being stepped.
func (s *Stepper) World() *World { return s.world }

// SetCallbacks sets event callbacks. Either may be nil.
// Callbacks run inside Run and must not add or remove agents.
func (s *Stepper) SetCallbacks(onMove func(h Handle, a *Agent, fromX, fromY int), onArrive func(h Handle, a *Agent)) {
	s.onMove = onMove
	s.onArrive = onArrive
}

// Run advances every agent that has both a goal and a strategy by dt.
func (s *Stepper) Run(dt float64) StepStats {
	var stats StepStats

	s.world.Each(func(h Handle, a *Agent) {
		if !a.HasGoal() || a.strategy == nil {
			return
		}
		stats.Evaluated++
		s.step(h, a, dt, &stats)
	})

	return stats
}

func (s *Stepper) step(h Handle, a *Agent, dt float64, stats *StepStats) {
	heading := a.strategy.Run(a, dt)
	dx := math.Cos(heading) * dt * s.Speed
	dy := math.Sin(heading) * dt * s.Speed

	s.world.RefreshVisibility(a)

	if a.AtGoal() {
		xDone := math.Abs(a.fx-centerFrac) <= math.Abs(dx)
		yDone := math.Abs(a.fy-centerFrac) <= math.Abs(dy)

		if xDone {
			a.fx = centerFrac
		} else {
			a.fx += dx
		}
		if yDone {
			a.fy = centerFrac
		} else {
			a.fy += dy
		}

		if xDone && yDone {
			a.ClearGoal()
			stats.Arrived++
			if s.onArrive != nil {
				s.onArrive(h, a)
			}
			return
		}
	} else {
		a.fx += dx
		a.fy += dy
	}

	fromX, fromY := a.x, a.y
	moved := false

	if a.fx >= 1.0 {
		if s.world.IsBlocked(a.x+1, a.y) {
			a.fx = edgeFrac
			stats.Blocked++
		} else {
			a.fx = 0.0
			moved = s.world.moveAgentCell(a, a.x+1, a.y) || moved
		}
	} else if a.fx < 0.0 {
		if s.world.IsBlocked(a.x-1, a.y) {
			a.fx = 0.0
			stats.Blocked++
		} else {
			a.fx = edgeFrac
			moved = s.world.moveAgentCell(a, a.x-1, a.y) || moved
		}
	}

	if a.fy >= 1.0 {
		if s.world.IsBlocked(a.x, a.y+1) {
			a.fy = edgeFrac
			stats.Blocked++
		} else {
			a.fy = 0.0
			moved = s.world.moveAgentCell(a, a.x, a.y+1) || moved
		}
	} else if a.fy < 0.0 {
		if s.world.IsBlocked(a.x, a.y-1) {
			a.fy = 0.0
			stats.Blocked++
		} else {
			a.fy = edgeFrac
			moved = s.world.moveAgentCell(a, a.x, a.y-1) || moved
		}
	}

	if moved {
		stats.Moves++
		s.world.RefreshVisibility(a)
		if s.onMove != nil {
			s.onMove(h, a, fromX, fromY)
		}
	}
}
