// Package routing provides the built-in agent strategies.
package routing

import (
	"robot-sim/internal/sim"
)

// Dummy heads straight for the center of the goal cell on every tick.
// It does no obstacle avoidance: an agent with a wall in the way will press
// against it indefinitely.
type Dummy struct{}

// NewDummy is the registry factory for Dummy.
func NewDummy() sim.Strategy { return Dummy{} }

// Initialize implements sim.Strategy. Dummy keeps no state.
func (Dummy) Initialize(*sim.Agent) {}

// Run implements sim.Strategy.
func (Dummy) Run(a *sim.Agent, _ float64) float64 {
	gx, gy, _ := a.Goal()
	return a.HeadingTo(gx, gy)
}
