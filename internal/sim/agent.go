package sim

import (
	"fmt"
	"math"

	"robot-sim/internal/grid"
)

// noGoal marks an agent without a goal. It is outside every valid grid.
const noGoal = -1

// Agent is one grid-bound robot.
//
// Position is an integer cell plus a fractional offset in [0,1) per axis.
// The agent owns two private maps sized like the world: the visibility mask
// recomputed on every refresh, and a remembered copy of the occupancy grid
// that is only written where the agent currently sees.
type Agent struct {
	id     uint32
	x, y   int
	fx, fy float64

	goalX, goalY int

	visibility *grid.Grid[bool]
	memory     *grid.Grid[Cell]

	strategy Strategy
}

func newAgent(id uint32, x, y, width, height int) (*Agent, error) {
	visibility, err := grid.New(width, height, false)
	if err != nil {
		return nil, err
	}
	memory, err := grid.New(width, height, CellEmpty)
	if err != nil {
		return nil, err
	}

	return &Agent{
		id:         id,
		x:          x,
		y:          y,
		fx:         0.5,
		fy:         0.5,
		goalX:      noGoal,
		goalY:      noGoal,
		visibility: visibility,
		memory:     memory,
	}, nil
}

// ID returns the agent's id, unique while it is alive.
func (a *Agent) ID() uint32 { return a.id }

// Cell returns the integer cell the agent occupies.
func (a *Agent) Cell() (x, y int) { return a.x, a.y }

// Frac returns the sub-cell offsets.
func (a *Agent) Frac() (fx, fy float64) { return a.fx, a.fy }

// Position returns the continuous position (cell + fractional offset).
func (a *Agent) Position() (x, y float64) {
	return float64(a.x) + a.fx, float64(a.y) + a.fy
}

// Goal returns the goal cell; ok is false when the agent has no goal.
func (a *Agent) Goal() (x, y int, ok bool) {
	if !a.HasGoal() {
		return noGoal, noGoal, false
	}
	return a.goalX, a.goalY, true
}

// HasGoal reports whether the goal lies inside the world.
func (a *Agent) HasGoal() bool {
	return a.visibility.InBounds(a.goalX, a.goalY)
}

// SetGoal sets the goal cell. Out-of-world goals are rejected.
func (a *Agent) SetGoal(x, y int) error {
	if !a.visibility.InBounds(x, y) {
		return fmt.Errorf("set goal: %w: (%d,%d)", grid.ErrOutOfBounds, x, y)
	}
	a.goalX, a.goalY = x, y
	return nil
}

// ClearGoal removes the goal.
func (a *Agent) ClearGoal() {
	a.goalX, a.goalY = noGoal, noGoal
}

// AtGoal reports whether the agent's cell is its goal cell.
func (a *Agent) AtGoal() bool {
	return a.HasGoal() && a.x == a.goalX && a.y == a.goalY
}

// Strategy returns the attached strategy, or nil.
func (a *Agent) Strategy() Strategy { return a.strategy }

// SetStrategy attaches s and initializes it for this agent.
// Passing nil detaches the current strategy.
func (a *Agent) SetStrategy(s Strategy) {
	a.strategy = s
	if s != nil {
		s.Initialize(a)
	}
}

// CanSee reports whether (x, y) was visible at the last refresh.
func (a *Agent) CanSee(x, y int) bool {
	return a.visibility.Get(x, y)
}

// Visibility returns the current visibility mask.
func (a *Agent) Visibility() grid.View[bool] { return a.visibility }

// Memory returns the remembered-obstacle snapshot.
func (a *Agent) Memory() grid.View[Cell] { return a.memory }

// HeadingTo returns the angle from the agent's continuous position to the
// center of cell (x, y).
func (a *Agent) HeadingTo(x, y int) float64 {
	px, py := a.Position()
	return math.Atan2(float64(y)+0.5-py, float64(x)+0.5-px)
}
