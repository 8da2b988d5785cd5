package routing

import (
	"robot-sim/internal/sim"
)

// Built-in strategy names.
const (
	DummyName     = "Dummy"
	FlowFieldName = "FlowField"
)

// RegisterDefaults adds every built-in strategy to reg.
func RegisterDefaults(reg *sim.Registry) error {
	if err := reg.Register(DummyName, NewDummy); err != nil {
		return err
	}
	return reg.Register(FlowFieldName, NewFlowField)
}

// NewDefaultRegistry returns a registry holding the built-in strategies.
func NewDefaultRegistry() *sim.Registry {
	reg := sim.NewRegistry()
	if err := RegisterDefaults(reg); err != nil {
		// Fresh registry: a failure here means two built-ins share a name.
		panic(err)
	}
	return reg
}
