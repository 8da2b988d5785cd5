package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robot-sim/internal/grid"
)

func newTestWorld(t *testing.T, w, h int) *World {
	t.Helper()
	world, err := New(w, h)
	require.NoError(t, err)
	return world
}

func TestNewWorldRejectsInvalidSize(t *testing.T) {
	_, err := New(0, 4)
	assert.ErrorIs(t, err, grid.ErrInvalidSize)
}

func TestWalls(t *testing.T) {
	w := newTestWorld(t, 4, 4)

	require.NoError(t, w.AddWall(1, 2))
	c, err := w.CellAt(1, 2)
	require.NoError(t, err)
	assert.Equal(t, CellWall, c)

	// A wall never overwrites an agent.
	_, err = w.AddAgent(3, 3)
	require.NoError(t, err)
	require.NoError(t, w.AddWall(3, 3))
	c, _ = w.CellAt(3, 3)
	assert.Equal(t, CellAgent, c)

	// RemoveWall leaves non-walls alone.
	require.NoError(t, w.RemoveWall(3, 3))
	c, _ = w.CellAt(3, 3)
	assert.Equal(t, CellAgent, c)

	require.NoError(t, w.RemoveWall(1, 2))
	c, _ = w.CellAt(1, 2)
	assert.Equal(t, CellEmpty, c)

	assert.ErrorIs(t, w.AddWall(4, 0), grid.ErrOutOfBounds)
	assert.ErrorIs(t, w.RemoveWall(-1, 0), grid.ErrOutOfBounds)
	require.NoError(t, w.CheckInvariants())
}

func TestAddAgentTwiceOnSameCell(t *testing.T) {
	w := newTestWorld(t, 3, 3)

	first, err := w.AddAgent(1, 1)
	require.NoError(t, err)
	firstAgent, err := w.Agent(first)
	require.NoError(t, err)

	second, err := w.AddAgent(1, 1)
	require.NoError(t, err)
	secondAgent, err := w.Agent(second)
	require.NoError(t, err)

	assert.Equal(t, 1, w.Len())
	assert.NotEqual(t, firstAgent.ID(), secondAgent.ID())
	c, _ := w.CellAt(1, 1)
	assert.Equal(t, CellAgent, c)

	_, err = w.Agent(first)
	assert.ErrorIs(t, err, ErrStaleHandle)

	h, ok, err := w.AgentAt(1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, h)
	require.NoError(t, w.CheckInvariants())
}

func TestNewAgentDefaults(t *testing.T) {
	w := newTestWorld(t, 3, 3)
	h, err := w.AddAgent(2, 1)
	require.NoError(t, err)
	a, err := w.Agent(h)
	require.NoError(t, err)

	x, y := a.Cell()
	assert.Equal(t, 2, x)
	assert.Equal(t, 1, y)
	fx, fy := a.Frac()
	assert.Equal(t, 0.5, fx)
	assert.Equal(t, 0.5, fy)
	assert.False(t, a.HasGoal())
	assert.Nil(t, a.Strategy())
}

func TestRemoveAgentResetsIDCounter(t *testing.T) {
	w := newTestWorld(t, 3, 3)

	a, err := w.AddAgent(0, 0)
	require.NoError(t, err)
	b, err := w.AddAgent(1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), w.NextID())

	require.NoError(t, w.RemoveAgent(a))
	assert.Equal(t, uint32(2), w.NextID(), "counter keeps running while agents remain")
	c, _ := w.CellAt(0, 0)
	assert.Equal(t, CellEmpty, c)

	require.NoError(t, w.RemoveAgent(b))
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, uint32(0), w.NextID())

	assert.ErrorIs(t, w.RemoveAgent(b), ErrStaleHandle)
}

func TestAgentAtBoundary(t *testing.T) {
	w := newTestWorld(t, 3, 2)
	_, err := w.AddAgent(2, 1)
	require.NoError(t, err)

	tests := []struct {
		name string
		x, y int
		ok   bool
	}{
		{"last cell", 2, 1, true},
		{"one past width", 3, 1, false},
		{"one past height", 2, 2, false},
		{"negative", -1, 0, false},
		{"empty cell", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := w.AgentAt(tt.x, tt.y)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestAgentAtReportsDesync(t *testing.T) {
	w := newTestWorld(t, 2, 2)
	w.occupancy.Set(1, 1, CellAgent)

	_, _, err := w.AgentAt(1, 1)
	assert.ErrorIs(t, err, ErrDesync)
	assert.ErrorIs(t, w.CheckInvariants(), ErrDesync)
}

func TestIsBlocked(t *testing.T) {
	w := newTestWorld(t, 4, 3)
	require.NoError(t, w.AddWall(1, 1))
	_, err := w.AddAgent(2, 2)
	require.NoError(t, err)

	for y := -1; y <= 3; y++ {
		for x := -1; x <= 4; x++ {
			inside := x >= 0 && y >= 0 && x < 4 && y < 3
			want := !inside || (x == 1 && y == 1) || (x == 2 && y == 2)
			assert.Equal(t, want, w.IsBlocked(x, y), "(%d,%d)", x, y)
		}
	}
}

func TestMoveAgent(t *testing.T) {
	w := newTestWorld(t, 3, 3)
	require.NoError(t, w.AddWall(2, 0))
	h, err := w.AddAgent(1, 0)
	require.NoError(t, err)
	_, err = w.AddAgent(1, 1)
	require.NoError(t, err)

	ok, err := w.MoveAgent(h, 1, 0)
	require.NoError(t, err)
	assert.True(t, ok, "staying put always succeeds")

	ok, err = w.MoveAgent(h, 2, 0)
	require.NoError(t, err)
	assert.False(t, ok, "wall")

	ok, err = w.MoveAgent(h, 1, 1)
	require.NoError(t, err)
	assert.False(t, ok, "agent")

	ok, err = w.MoveAgent(h, 1, -1)
	require.NoError(t, err)
	assert.False(t, ok, "outside")

	ok, err = w.MoveAgent(h, 0, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	a, _ := w.Agent(h)
	x, y := a.Cell()
	assert.Equal(t, [2]int{0, 0}, [2]int{x, y})
	fx, fy := a.Frac()
	assert.Equal(t, 0.5, fx)
	assert.Equal(t, 0.5, fy)

	c, _ := w.CellAt(1, 0)
	assert.Equal(t, CellEmpty, c)
	c, _ = w.CellAt(0, 0)
	assert.Equal(t, CellAgent, c)
	require.NoError(t, w.CheckInvariants())
}

func TestInvariantHoldsAcrossEdits(t *testing.T) {
	w := newTestWorld(t, 6, 6)

	var handles []Handle
	for i := 0; i < 36; i++ {
		x, y := (i*7)%6, (i*5)%6
		switch i % 4 {
		case 0:
			require.NoError(t, w.AddWall(x, y))
		case 1:
			h, err := w.AddAgent(x, y)
			require.NoError(t, err)
			handles = append(handles, h)
		case 2:
			if len(handles) > 0 {
				_ = w.RemoveAgent(handles[0])
				handles = handles[1:]
			}
		case 3:
			require.NoError(t, w.RemoveWall(x, y))
			for _, h := range handles {
				_, _ = w.MoveAgent(h, (x+1)%6, y)
			}
		}
		require.NoError(t, w.CheckInvariants(), "after edit %d", i)
	}
}

func TestAgentByIDAndHandles(t *testing.T) {
	w := newTestWorld(t, 3, 3)
	h0, _ := w.AddAgent(0, 0)
	h1, _ := w.AddAgent(2, 2)

	h, ok := w.AgentByID(1)
	require.True(t, ok)
	assert.Equal(t, h1, h)

	_, ok = w.AgentByID(9)
	assert.False(t, ok)

	assert.ElementsMatch(t, []Handle{h0, h1}, w.Handles())
}

func TestSlotReuseInvalidatesOldHandle(t *testing.T) {
	w := newTestWorld(t, 3, 3)
	old, _ := w.AddAgent(0, 0)
	_, _ = w.AddAgent(1, 1)
	require.NoError(t, w.RemoveAgent(old))

	reused, err := w.AddAgent(2, 2)
	require.NoError(t, err)
	assert.Equal(t, old.Index, reused.Index)
	assert.NotEqual(t, old.Gen, reused.Gen)

	_, err = w.Agent(old)
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestGoal(t *testing.T) {
	w := newTestWorld(t, 3, 3)
	h, _ := w.AddAgent(0, 0)
	a, _ := w.Agent(h)

	assert.ErrorIs(t, a.SetGoal(3, 0), grid.ErrOutOfBounds)
	assert.False(t, a.HasGoal())

	require.NoError(t, a.SetGoal(2, 1))
	gx, gy, ok := a.Goal()
	require.True(t, ok)
	assert.Equal(t, 2, gx)
	assert.Equal(t, 1, gy)
	assert.False(t, a.AtGoal())

	a.ClearGoal()
	assert.False(t, a.HasGoal())
}
