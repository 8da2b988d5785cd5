package sim

import (
	"bytes"
	"encoding/binary"
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type agentRecord struct {
	id, x, y int
	gx, gy   int
	hasGoal  bool
}

func roster(w *World) []agentRecord {
	var out []agentRecord
	w.Each(func(_ Handle, a *Agent) {
		x, y := a.Cell()
		gx, gy, ok := a.Goal()
		out = append(out, agentRecord{int(a.ID()), x, y, gx, gy, ok})
	})
	return out
}

func sampleWorld(t *testing.T) *World {
	t.Helper()
	w := newTestWorld(t, 7, 4)
	for _, c := range [][2]int{{0, 0}, {6, 3}, {3, 1}, {3, 2}} {
		require.NoError(t, w.AddWall(c[0], c[1]))
	}
	_, a := addTestAgent(t, w, 1, 1)
	require.NoError(t, a.SetGoal(5, 3))
	_, b := addTestAgent(t, w, 6, 0)
	require.NoError(t, b.SetGoal(0, 3))
	addTestAgent(t, w, 2, 3)
	b.SetStrategy(towardGoal{})
	return w
}

func TestCodecRoundTrip(t *testing.T) {
	w := sampleWorld(t)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, w))

	got, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, w.Width(), got.Width())
	assert.Equal(t, w.Height(), got.Height())
	assert.Equal(t, w.occupancy.Data(), got.occupancy.Data())
	assert.Equal(t, roster(w), roster(got))
	assert.Equal(t, w.NextID(), got.NextID())
	require.NoError(t, got.CheckInvariants())

	got.Each(func(_ Handle, a *Agent) {
		assert.Nil(t, a.Strategy(), "strategies are not persisted")
	})
}

func TestCodecLayout(t *testing.T) {
	w := newTestWorld(t, 3, 2)
	require.NoError(t, w.AddWall(2, 1))
	_, a := addTestAgent(t, w, 0, 1)
	require.NoError(t, a.SetGoal(1, 0))
	addTestAgent(t, w, 1, 1)

	data, err := w.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, 1+4+4+6+4+2*20+4)

	le := binary.LittleEndian
	assert.Equal(t, FormatVersion, data[0])
	assert.Equal(t, uint32(3), le.Uint32(data[1:]))
	assert.Equal(t, uint32(2), le.Uint32(data[5:]))
	// Row-major: (x,y) is at y*width+x.
	assert.Equal(t, []byte{0, 0, 0, 2, 2, 1}, data[9:15])
	assert.Equal(t, uint32(2), le.Uint32(data[15:]))

	first := data[19:39]
	assert.Equal(t, []uint32{0, 0, 1, 1, 0}, []uint32{
		le.Uint32(first[0:]), le.Uint32(first[4:]), le.Uint32(first[8:]),
		le.Uint32(first[12:]), le.Uint32(first[16:]),
	})
	second := data[39:59]
	assert.Equal(t, uint32(noGoalWire), le.Uint32(second[12:]))
	assert.Equal(t, uint32(noGoalWire), le.Uint32(second[16:]))
	assert.Equal(t, uint32(2), le.Uint32(data[59:]))
}

func TestRestoreRejectsBadInputWithoutMutation(t *testing.T) {
	valid, err := sampleWorld(t).MarshalBinary()
	require.NoError(t, err)

	withHeader := func(version byte, width, height uint32) []byte {
		out := append([]byte(nil), valid...)
		out[0] = version
		binary.LittleEndian.PutUint32(out[1:], width)
		binary.LittleEndian.PutUint32(out[5:], height)
		return out
	}

	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"version 1", withHeader(1, 7, 4), ErrUnsupportedVersion},
		{"version 3", withHeader(3, 7, 4), ErrUnsupportedVersion},
		{"zero width", withHeader(2, 0, 4), ErrInvalidDimensions},
		{"zero height", withHeader(2, 7, 0), ErrInvalidDimensions},
		{"width too large", withHeader(2, 0x10000, 4), ErrInvalidDimensions},
		{"height too large", withHeader(2, 7, 0x10000), ErrInvalidDimensions},
		{"truncated", valid[:len(valid)-3], io.ErrUnexpectedEOF},
		{"header only", valid[:9], io.ErrUnexpectedEOF},
		{"cells cut short", valid[:9+10], io.ErrUnexpectedEOF},
		{"empty", nil, io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorld(t, 3, 3)
			require.NoError(t, w.AddWall(1, 1))
			h, _ := addTestAgent(t, w, 2, 2)
			before, err := w.MarshalBinary()
			require.NoError(t, err)

			err = w.UnmarshalBinary(tt.data)
			assert.ErrorIs(t, err, tt.err)

			after, err := w.MarshalBinary()
			require.NoError(t, err)
			assert.Equal(t, before, after)
			_, err = w.Agent(h)
			assert.NoError(t, err, "handles survive a failed restore")
		})
	}
}

func TestDecodeRejectsInconsistentRoster(t *testing.T) {
	build := func(cells []byte, agents [][5]uint32, next uint32) []byte {
		var buf bytes.Buffer
		le := binary.LittleEndian
		buf.WriteByte(FormatVersion)
		_ = binary.Write(&buf, le, uint32(2))
		_ = binary.Write(&buf, le, uint32(2))
		buf.Write(cells)
		_ = binary.Write(&buf, le, uint32(len(agents)))
		for _, a := range agents {
			_ = binary.Write(&buf, le, a)
		}
		_ = binary.Write(&buf, le, next)
		return buf.Bytes()
	}
	none := uint32(noGoalWire)

	tests := []struct {
		name   string
		cells  []byte
		agents [][5]uint32
	}{
		{"unknown cell tag", []byte{0, 7, 0, 0}, nil},
		{"tag without agent", []byte{2, 0, 0, 0}, nil},
		{"agent on empty cell", []byte{2, 0, 0, 0}, [][5]uint32{{0, 1, 1, none, none}}},
		{"agent outside grid", []byte{2, 0, 0, 0}, [][5]uint32{{0, 2, 0, none, none}}},
		{"duplicate id", []byte{2, 2, 0, 0}, [][5]uint32{{4, 0, 0, none, none}, {4, 1, 0, none, none}}},
		{"shared cell", []byte{2, 2, 0, 0}, [][5]uint32{{1, 0, 0, none, none}, {2, 0, 0, none, none}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(build(tt.cells, tt.agents, 9)))
			assert.ErrorIs(t, err, ErrCorruptWorld)
		})
	}
}

func TestDecodeGoalsAndNextID(t *testing.T) {
	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.WriteByte(FormatVersion)
	_ = binary.Write(&buf, le, []uint32{2, 2})
	buf.Write([]byte{2, 0, 0, 2})
	_ = binary.Write(&buf, le, uint32(2))
	_ = binary.Write(&buf, le, []uint32{5, 0, 0, 1, 1})
	_ = binary.Write(&buf, le, []uint32{8, 1, 1, 2, 0}) // goal x out of range
	_ = binary.Write(&buf, le, uint32(3))

	w, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, uint32(9), w.NextID(), "next id never collides with a live agent")

	h, ok := w.AgentByID(5)
	require.True(t, ok)
	a, _ := w.Agent(h)
	gx, gy, ok := a.Goal()
	require.True(t, ok)
	assert.Equal(t, [2]int{1, 1}, [2]int{gx, gy})
	fx, fy := a.Frac()
	assert.Equal(t, 0.5, fx)
	assert.Equal(t, 0.5, fy)

	h, ok = w.AgentByID(8)
	require.True(t, ok)
	b, _ := w.Agent(h)
	assert.False(t, b.HasGoal())
}

func TestRestoreInvalidatesOldHandles(t *testing.T) {
	w := newTestWorld(t, 4, 4)
	old, _ := addTestAgent(t, w, 0, 0)

	data, err := sampleWorld(t).MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, w.Restore(bytes.NewReader(data)))

	_, err = w.Agent(old)
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.Equal(t, 7, w.Width())
	assert.Equal(t, 3, w.Len())
	for _, h := range w.Handles() {
		_, err := w.Agent(h)
		assert.NoError(t, err)
	}

	// New agents after a restore never reuse a pre-restore generation.
	fresh, err := w.AddAgent(4, 0)
	require.NoError(t, err)
	assert.NotEqual(t, old, fresh)
	require.NoError(t, w.CheckInvariants())
}

func TestDecodeLargeHeaderWithoutCells(t *testing.T) {
	data := make([]byte, 9)
	data[0] = FormatVersion
	binary.LittleEndian.PutUint32(data[1:], MaxDimension)
	binary.LittleEndian.PutUint32(data[5:], MaxDimension)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	_, err := Decode(bytes.NewReader(data))

	runtime.ReadMemStats(&after)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(4<<20), "grid allocated before cells were read")
}
