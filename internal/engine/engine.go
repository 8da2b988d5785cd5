// Package engine hosts a simulation for concurrent callers: it owns the
// world, drives the stepper from a ticker, serializes edits, publishes
// immutable snapshots and writes an event log.
package engine

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"robot-sim/internal/sim"
)

var (
	ErrUnknownAgent    = errors.New("engine: unknown agent")
	ErrUnknownStrategy = errors.New("engine: unknown strategy")
	ErrEventLogStopped = errors.New("engine: event log already stopped")
)

// Config holds engine settings.
type Config struct {
	Width     int     // world width in cells
	Height    int     // world height in cells
	TickRate  int     // ticks per second of wall-clock time
	TimeScale float64 // simulated time units per second of wall-clock time
	Speed     float64 // agent speed in cells per simulated time unit
}

// DefaultConfig returns a 32x24 world ticking at 30 TPS in real time.
func DefaultConfig() Config {
	return Config{
		Width:     32,
		Height:    24,
		TickRate:  30,
		TimeScale: 1.0,
		Speed:     sim.DefaultSpeed,
	}
}

// Engine wraps a single-threaded sim.World behind a mutex.
type Engine struct {
	mu       sync.Mutex
	world    *sim.World
	stepper  *sim.Stepper
	registry *sim.Registry

	// strategy name per agent id, for snapshots
	strategyNames map[uint32]string

	cfg      Config
	running  bool
	stopChan chan struct{}
	loopDone chan struct{} // closed when the current loop goroutine exits

	tickCount uint64
	sequence  uint64
	snapshot  atomic.Pointer[Snapshot]

	eventLog *EventLog

	onTick func(elapsed time.Duration, stats sim.StepStats)
}

// New creates an engine with an empty world of cfg's size.
func New(cfg Config, registry *sim.Registry) (*Engine, error) {
	def := DefaultConfig()
	if cfg.TickRate <= 0 {
		cfg.TickRate = def.TickRate
	}
	if cfg.TimeScale <= 0 {
		cfg.TimeScale = def.TimeScale
	}
	if cfg.Speed <= 0 {
		cfg.Speed = def.Speed
	}
	if registry == nil {
		registry = sim.NewRegistry()
	}

	world, err := sim.New(cfg.Width, cfg.Height)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		world:         world,
		stepper:       sim.NewStepper(world),
		registry:      registry,
		strategyNames: make(map[uint32]string),
		cfg:           cfg,
		eventLog:      NewEventLog(),
	}
	e.stepper.Speed = cfg.Speed
	e.stepper.SetCallbacks(e.agentMoved, e.agentArrived)
	e.publishLocked()
	return e, nil
}

// Config returns the settings the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// SetOnTick registers a callback run after every tick, outside the lock.
func (e *Engine) SetOnTick(fn func(elapsed time.Duration, stats sim.StepStats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTick = fn
}

// Start begins the tick loop. Starting a running engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.loopDone = make(chan struct{})
	stop, done := e.stopChan, e.loopDone
	interval := time.Second / time.Duration(e.cfg.TickRate)
	dt := e.cfg.TimeScale / float64(e.cfg.TickRate)
	e.publishLocked()
	e.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.Step(dt)
			case <-stop:
				return
			}
		}
	}()

	log.Printf("🤖 Simulation started at %d TPS (dt=%.3f)", e.cfg.TickRate, dt)
}

// Stop halts the tick loop and waits for the in-flight tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopChan)
	done := e.loopDone
	e.publishLocked()
	e.mu.Unlock()

	<-done
	log.Println("🛑 Simulation stopped")
}

// Running reports whether the tick loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Step advances the simulation by dt simulated time units.
func (e *Engine) Step(dt float64) sim.StepStats {
	start := time.Now()

	e.mu.Lock()
	e.tickCount++
	stats := e.stepper.Run(dt)
	e.eventLog.EmitSimple(EventTypeTick, e.tickCount, "", TickPayload{
		DT:         dt,
		AgentCount: e.world.Len(),
		Evaluated:  stats.Evaluated,
		Moves:      stats.Moves,
		Blocked:    stats.Blocked,
		Arrived:    stats.Arrived,
	})
	e.publishLocked()
	onTick := e.onTick
	e.mu.Unlock()

	if onTick != nil {
		onTick(time.Since(start), stats)
	}
	return stats
}

// TickCount returns the number of steps run so far.
func (e *Engine) TickCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickCount
}

func (e *Engine) agentMoved(_ sim.Handle, a *sim.Agent, fromX, fromY int) {
	x, y := a.Cell()
	e.eventLog.EmitSimple(EventTypeAgentMoved, e.tickCount, agentKey(a.ID()),
		MovePayload{ID: a.ID(), FromX: fromX, FromY: fromY, X: x, Y: y})
}

func (e *Engine) agentArrived(_ sim.Handle, a *sim.Agent) {
	x, y := a.Cell()
	e.eventLog.EmitSimple(EventTypeGoalReached, e.tickCount, agentKey(a.ID()),
		GoalPayload{ID: a.ID(), X: x, Y: y})
	log.Printf("🏁 Agent %d reached (%d,%d)", a.ID(), x, y)
}

// AddWall places a wall on an empty cell.
func (e *Engine) AddWall(x, y int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.world.AddWall(x, y); err != nil {
		return err
	}
	e.publishLocked()
	return nil
}

// RemoveWall clears a wall.
func (e *Engine) RemoveWall(x, y int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.world.RemoveWall(x, y); err != nil {
		return err
	}
	e.publishLocked()
	return nil
}

// AddAgent places a new agent, replacing any agent already on the cell.
func (e *Engine) AddAgent(x, y int) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok, err := e.world.AgentAt(x, y); err == nil && ok {
		if a, err := e.world.Agent(old); err == nil {
			e.forgetAgentLocked(a, x, y)
		}
	}

	h, err := e.world.AddAgent(x, y)
	if err != nil {
		return 0, err
	}
	a, err := e.world.Agent(h)
	if err != nil {
		return 0, err
	}

	e.eventLog.EmitSimple(EventTypeAgentAdded, e.tickCount, agentKey(a.ID()),
		AgentPayload{ID: a.ID(), X: x, Y: y})
	e.publishLocked()
	return a.ID(), nil
}

// RemoveAgent deletes an agent by id.
func (e *Engine) RemoveAgent(id uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, a, err := e.agentLocked(id)
	if err != nil {
		return err
	}
	x, y := a.Cell()
	if err := e.world.RemoveAgent(h); err != nil {
		return err
	}
	e.forgetAgentLocked(a, x, y)
	e.publishLocked()
	return nil
}

func (e *Engine) forgetAgentLocked(a *sim.Agent, x, y int) {
	delete(e.strategyNames, a.ID())
	e.eventLog.EmitSimple(EventTypeAgentRemoved, e.tickCount, agentKey(a.ID()),
		AgentPayload{ID: a.ID(), X: x, Y: y})
}

// SetGoal gives an agent a goal cell inside the world.
func (e *Engine) SetGoal(id uint32, x, y int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, a, err := e.agentLocked(id)
	if err != nil {
		return err
	}
	if err := a.SetGoal(x, y); err != nil {
		return err
	}
	e.eventLog.EmitSimple(EventTypeGoalSet, e.tickCount, agentKey(id), GoalPayload{ID: id, X: x, Y: y})
	e.publishLocked()
	return nil
}

// ClearGoal removes an agent's goal.
func (e *Engine) ClearGoal(id uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, a, err := e.agentLocked(id)
	if err != nil {
		return err
	}
	a.ClearGoal()
	e.publishLocked()
	return nil
}

// SetStrategy attaches a fresh instance of the named strategy. An empty name
// detaches the current one.
func (e *Engine) SetStrategy(id uint32, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, a, err := e.agentLocked(id)
	if err != nil {
		return err
	}

	if name == "" {
		a.SetStrategy(nil)
		delete(e.strategyNames, id)
	} else {
		s, ok := e.registry.Instantiate(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
		}
		a.SetStrategy(s)
		e.strategyNames[id] = name
	}

	e.eventLog.EmitSimple(EventTypeStrategySet, e.tickCount, agentKey(id), StrategyPayload{ID: id, Name: name})
	e.publishLocked()
	return nil
}

// Strategies lists the registered strategy names.
func (e *Engine) Strategies() []string {
	return e.registry.Names()
}

// Snapshot returns the latest published snapshot. Never nil.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// AgentView copies one agent's visibility mask and memory.
func (e *Engine) AgentView(id uint32) (*AgentView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, a, err := e.agentLocked(id)
	if err != nil {
		return nil, err
	}
	return &AgentView{
		ID:      id,
		Width:   e.world.Width(),
		Height:  e.world.Height(),
		Visible: flatten(a.Visibility()),
		Memory:  flatten(a.Memory()),
	}, nil
}

// CheckInvariants verifies the world's occupancy grid against its roster.
func (e *Engine) CheckInvariants() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.world.CheckInvariants()
}

// StartEventLog starts writing events to filePath (memory only if empty).
func (e *Engine) StartEventLog(filePath string) error {
	return e.eventLog.Start(filePath)
}

// StopEventLog flushes and closes the event log.
func (e *Engine) StopEventLog() {
	e.eventLog.Stop()
}

// EventLogStats returns event log counters.
func (e *Engine) EventLogStats() EventLogStats {
	return e.eventLog.Stats()
}

func (e *Engine) agentLocked(id uint32) (sim.Handle, *sim.Agent, error) {
	h, ok := e.world.AgentByID(id)
	if !ok {
		return sim.Handle{}, nil, fmt.Errorf("%w: %d", ErrUnknownAgent, id)
	}
	a, err := e.world.Agent(h)
	if err != nil {
		return sim.Handle{}, nil, err
	}
	return h, a, nil
}

// publishLocked builds and publishes a fresh snapshot. Caller holds e.mu.
func (e *Engine) publishLocked() {
	e.sequence++
	snap := &Snapshot{
		Sequence:   e.sequence,
		Timestamp:  time.Now(),
		TickNumber: e.tickCount,
		Running:    e.running,
		Width:      e.world.Width(),
		Height:     e.world.Height(),
		Cells:      flatten(e.world.Occupancy()),
		Agents:     make([]AgentSnapshot, 0, e.world.Len()),
	}

	e.world.Each(func(_ sim.Handle, a *sim.Agent) {
		x, y := a.Cell()
		fx, fy := a.Frac()
		gx, gy, hasGoal := a.Goal()
		snap.Agents = append(snap.Agents, AgentSnapshot{
			ID:       a.ID(),
			X:        x,
			Y:        y,
			FX:       fx,
			FY:       fy,
			HasGoal:  hasGoal,
			GoalX:    gx,
			GoalY:    gy,
			Strategy: e.strategyNames[a.ID()],
		})
	})

	e.snapshot.Store(snap)
}
