package engine

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robot-sim/internal/grid"
	"robot-sim/internal/routing"
	"robot-sim/internal/sim"
)

func newTestEngine(t *testing.T, w, h int) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = w, h
	e, err := New(cfg, routing.NewDefaultRegistry())
	require.NoError(t, err)
	return e
}

func TestNewEngine(t *testing.T) {
	tests := []struct {
		name     string
		tickRate int
		want     int
	}{
		{"standard 30 TPS", 30, 30},
		{"high 60 TPS", 60, 60},
		{"zero falls back to default", 0, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(Config{Width: 4, Height: 3, TickRate: tt.tickRate}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Config().TickRate)

			snap := e.Snapshot()
			require.NotNil(t, snap)
			assert.Equal(t, 4, snap.Width)
			assert.Equal(t, 3, snap.Height)
			assert.Len(t, snap.Cells, 12)
			assert.Empty(t, snap.Agents)
		})
	}

	_, err := New(Config{Width: 0, Height: 3}, nil)
	assert.ErrorIs(t, err, grid.ErrInvalidSize)
}

func TestEngineStartStop(t *testing.T) {
	e := newTestEngine(t, 5, 5)

	e.Start()
	e.Start() // no-op
	assert.True(t, e.Running())
	assert.True(t, e.Snapshot().Running)
	time.Sleep(100 * time.Millisecond)
	e.Stop()
	assert.False(t, e.Running())
	assert.Greater(t, e.TickCount(), uint64(0))

	// Should not panic on double stop, and can be restarted.
	e.Stop()
	e.Start()
	e.Stop()
}

func TestEngineConcurrentStartStop(t *testing.T) {
	e := newTestEngine(t, 5, 5)

	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				e.Start()
				e.Stop()
			}
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		t.Fatal("Start/Stop deadlocked")
	}

	assert.False(t, e.Running())
	e.Start()
	assert.True(t, e.Running())
	e.Stop()
}

func TestEngineEditsPublishSnapshots(t *testing.T) {
	e := newTestEngine(t, 4, 2)
	seq := e.Snapshot().Sequence

	require.NoError(t, e.AddWall(1, 0))
	id, err := e.AddAgent(3, 1)
	require.NoError(t, err)
	require.NoError(t, e.SetGoal(id, 0, 1))
	require.NoError(t, e.SetStrategy(id, routing.DummyName))

	snap := e.Snapshot()
	assert.Greater(t, snap.Sequence, seq)
	assert.Equal(t, []string{".#..", "...A"}, snap.Rows())
	assert.Equal(t, sim.CellWall, snap.CellAt(1, 0))
	assert.Equal(t, sim.CellWall, snap.CellAt(-1, 0), "outside reads as wall")

	a, ok := snap.Agent(id)
	require.True(t, ok)
	assert.Equal(t, AgentSnapshot{
		ID: id, X: 3, Y: 1, FX: 0.5, FY: 0.5,
		HasGoal: true, GoalX: 0, GoalY: 1,
		Strategy: routing.DummyName,
	}, a)

	require.NoError(t, e.RemoveWall(1, 0))
	assert.Equal(t, sim.CellEmpty, e.Snapshot().CellAt(1, 0))
	require.NoError(t, e.CheckInvariants())
}

func TestEngineUnknownAgentAndStrategy(t *testing.T) {
	e := newTestEngine(t, 3, 3)

	assert.ErrorIs(t, e.RemoveAgent(7), ErrUnknownAgent)
	assert.ErrorIs(t, e.SetGoal(7, 0, 0), ErrUnknownAgent)
	assert.ErrorIs(t, e.ClearGoal(7), ErrUnknownAgent)
	assert.ErrorIs(t, e.SetStrategy(7, routing.DummyName), ErrUnknownAgent)
	_, err := e.AgentView(7)
	assert.ErrorIs(t, err, ErrUnknownAgent)

	id, err := e.AddAgent(0, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, e.SetStrategy(id, "Teleport"), ErrUnknownStrategy)
	assert.ErrorIs(t, e.SetGoal(id, 3, 0), grid.ErrOutOfBounds)
	_, err = e.AddAgent(-1, 0)
	assert.ErrorIs(t, err, grid.ErrOutOfBounds)

	assert.Equal(t, []string{routing.DummyName, routing.FlowFieldName}, e.Strategies())
}

func TestEngineReplacingAgentDropsStrategyName(t *testing.T) {
	e := newTestEngine(t, 3, 3)
	first, err := e.AddAgent(1, 1)
	require.NoError(t, err)
	require.NoError(t, e.SetStrategy(first, routing.DummyName))

	second, err := e.AddAgent(1, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	snap := e.Snapshot()
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, second, snap.Agents[0].ID)
	assert.Empty(t, snap.Agents[0].Strategy)
	assert.ErrorIs(t, e.SetGoal(first, 0, 0), ErrUnknownAgent)
}

func TestEngineStepToGoal(t *testing.T) {
	e := newTestEngine(t, 5, 5)
	id, err := e.AddAgent(0, 0)
	require.NoError(t, err)
	require.NoError(t, e.SetGoal(id, 2, 2))
	require.NoError(t, e.SetStrategy(id, routing.DummyName))

	var mu sync.Mutex
	var ticks int
	var total sim.StepStats
	e.SetOnTick(func(_ time.Duration, stats sim.StepStats) {
		mu.Lock()
		defer mu.Unlock()
		ticks++
		total.Add(stats)
	})

	for i := 0; i < 1000; i++ {
		e.Step(0.1)
		a, _ := e.Snapshot().Agent(id)
		if !a.HasGoal {
			break
		}
	}

	a, ok := e.Snapshot().Agent(id)
	require.True(t, ok)
	assert.False(t, a.HasGoal)
	assert.Equal(t, [2]int{2, 2}, [2]int{a.X, a.Y})
	assert.Equal(t, 0.5, a.FX)
	assert.Equal(t, 0.5, a.FY)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int(e.TickCount()), ticks)
	assert.Equal(t, 1, total.Arrived)
	assert.Equal(t, 2, total.Moves, "diagonal crossings move both axes at once")
}

func TestEngineClearGoalAndDetachStrategy(t *testing.T) {
	e := newTestEngine(t, 4, 1)
	id, _ := e.AddAgent(0, 0)
	require.NoError(t, e.SetGoal(id, 3, 0))
	require.NoError(t, e.SetStrategy(id, routing.DummyName))

	require.NoError(t, e.ClearGoal(id))
	assert.Equal(t, sim.StepStats{}, e.Step(1))

	require.NoError(t, e.SetGoal(id, 3, 0))
	require.NoError(t, e.SetStrategy(id, ""))
	assert.Equal(t, sim.StepStats{}, e.Step(1))
	a, _ := e.Snapshot().Agent(id)
	assert.Empty(t, a.Strategy)
}

func TestEngineAgentView(t *testing.T) {
	e := newTestEngine(t, 10, 1)
	require.NoError(t, e.AddWall(2, 0))
	id, _ := e.AddAgent(0, 0)
	require.NoError(t, e.SetGoal(id, 9, 0))
	require.NoError(t, e.SetStrategy(id, routing.DummyName))
	e.Step(0.1)

	view, err := e.AgentView(id)
	require.NoError(t, err)
	assert.Equal(t, 10, view.Width)
	assert.True(t, view.CanSee(0, 0))
	assert.True(t, view.CanSee(2, 0))
	assert.False(t, view.CanSee(3, 0))
	assert.False(t, view.CanSee(11, 0))
	assert.Equal(t, sim.CellWall, view.Remembered(2, 0))
	assert.Equal(t, sim.CellEmpty, view.Remembered(5, 0))

	visible, memory := view.Rows()
	assert.Equal(t, []string{"***......."}, visible)
	assert.Equal(t, []string{"A.#......."}, memory)
}

func TestEngineSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.bin")

	src := newTestEngine(t, 6, 4)
	require.NoError(t, src.AddWall(2, 2))
	id, _ := src.AddAgent(1, 1)
	require.NoError(t, src.SetGoal(id, 5, 3))
	require.NoError(t, src.SetStrategy(id, routing.DummyName))
	require.NoError(t, src.Save(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is renamed away")

	dst := newTestEngine(t, 3, 3)
	_, _ = dst.AddAgent(0, 0)
	require.NoError(t, dst.Load(path))

	snap := dst.Snapshot()
	assert.Equal(t, 6, snap.Width)
	assert.Equal(t, 4, snap.Height)
	assert.Equal(t, src.Snapshot().Cells, snap.Cells)
	require.Len(t, snap.Agents, 1)
	a := snap.Agents[0]
	assert.Equal(t, id, a.ID)
	assert.True(t, a.HasGoal)
	assert.Equal(t, [2]int{5, 3}, [2]int{a.GoalX, a.GoalY})
	assert.Empty(t, a.Strategy, "strategies are not persisted")
	require.NoError(t, dst.CheckInvariants())
}

func TestEngineLoadFailureKeepsWorld(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(bad, []byte{1, 0, 0}, 0644))

	e := newTestEngine(t, 3, 3)
	id, _ := e.AddAgent(2, 2)
	before := e.Snapshot()

	assert.ErrorIs(t, e.Load(bad), sim.ErrUnsupportedVersion)
	assert.Error(t, e.Load(filepath.Join(dir, "missing.bin")))

	after := e.Snapshot()
	assert.Equal(t, before.Cells, after.Cells)
	_, ok := after.Agent(id)
	assert.True(t, ok)
}

func TestEngineConcurrentAccess(t *testing.T) {
	e := newTestEngine(t, 8, 8)
	e.Start()
	defer e.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id, err := e.AddAgent((i*2+j)%8, (j*3)%8)
				if err != nil {
					continue
				}
				_ = e.SetGoal(id, 7-i, 7-(j%8))
				_ = e.SetStrategy(id, routing.FlowFieldName)
				_ = e.Snapshot().Rows()
				if j%3 == 0 {
					_ = e.RemoveAgent(id)
				}
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, e.CheckInvariants())
}
