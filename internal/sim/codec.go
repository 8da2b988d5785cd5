package sim

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"robot-sim/internal/grid"
)

// FormatVersion is the world file version. Bump it after changing the layout.
const FormatVersion uint8 = 2

// MaxDimension is the largest width or height accepted by Decode.
const MaxDimension = 0xFFFF

// noGoalWire is how a missing goal is written on both goal axes.
const noGoalWire = 0xFFFFFFFF

// cellChunk bounds how many cell bytes Decode reads at a time, so a header
// that lies about the size fails on EOF before the grid is allocated.
const cellChunk = 64 << 10

var (
	ErrUnsupportedVersion = errors.New("sim: unsupported world format version")
	ErrInvalidDimensions  = errors.New("sim: invalid world dimensions")
	ErrCorruptWorld       = errors.New("sim: corrupt world data")
)

// Encode writes w in the little-endian version 2 layout:
//
//	u8  version
//	u32 width, u32 height
//	u8  cells[width*height]          row-major, y*width+x
//	u32 agent count
//	    u32 id, x, y, goal_x, goal_y  (per agent; no goal = 0xFFFFFFFF)
//	u32 next id
func Encode(out io.Writer, w *World) error {
	bw := bufio.NewWriter(out)

	var u32 [4]byte
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(u32[:], v)
		bw.Write(u32[:])
	}

	bw.WriteByte(FormatVersion)
	put(uint32(w.Width()))
	put(uint32(w.Height()))

	cells := w.occupancy.Data()
	raw := make([]byte, len(cells))
	for i, c := range cells {
		raw[i] = byte(c)
	}
	bw.Write(raw)

	put(uint32(w.count))
	w.Each(func(_ Handle, a *Agent) {
		put(a.id)
		put(uint32(a.x))
		put(uint32(a.y))
		if gx, gy, ok := a.Goal(); ok {
			put(uint32(gx))
			put(uint32(gy))
		} else {
			put(noGoalWire)
			put(noGoalWire)
		}
	})
	put(w.nextID)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("encode world: %w", err)
	}
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (w *World) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a world written by Encode. Agents come back centered in their
// cells, with no strategy and empty visibility and memory.
func Decode(in io.Reader) (*World, error) {
	r := bufio.NewReader(in)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("decode world: read version: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, version, FormatVersion)
	}

	var u32 [4]byte
	get := func(what string) (uint32, error) {
		if _, err := io.ReadFull(r, u32[:]); err != nil {
			return 0, fmt.Errorf("decode world: read %s: %w", what, truncated(err))
		}
		return binary.LittleEndian.Uint32(u32[:]), nil
	}

	width, err := get("width")
	if err != nil {
		return nil, err
	}
	height, err := get("height")
	if err != nil {
		return nil, err
	}
	if width == 0 || height == 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	cells, tagged, err := readCells(r, int(width)*int(height))
	if err != nil {
		return nil, err
	}
	occupancy, err := grid.FromData(int(width), int(height), cells)
	if err != nil {
		return nil, fmt.Errorf("decode world: %w", err)
	}
	w := &World{occupancy: occupancy}

	count, err := get("agent count")
	if err != nil {
		return nil, err
	}
	if int(count) != tagged {
		return nil, fmt.Errorf("%w: %d agents for %d agent cells", ErrCorruptWorld, count, tagged)
	}

	ids := make(map[uint32]struct{}, count)
	taken := make(map[[2]uint32]struct{}, count)
	var maxID uint32
	for i := uint32(0); i < count; i++ {
		var rec [5]uint32
		for j, what := range []string{"agent id", "agent x", "agent y", "goal x", "goal y"} {
			if rec[j], err = get(what); err != nil {
				return nil, err
			}
		}
		id, x, y, gx, gy := rec[0], rec[1], rec[2], rec[3], rec[4]

		if x >= width || y >= height {
			return nil, fmt.Errorf("%w: agent %d at (%d,%d) outside %dx%d", ErrCorruptWorld, id, x, y, width, height)
		}
		if w.occupancy.Get(int(x), int(y)) != CellAgent {
			return nil, fmt.Errorf("%w: agent %d on untagged cell (%d,%d)", ErrCorruptWorld, id, x, y)
		}
		if _, dup := ids[id]; dup {
			return nil, fmt.Errorf("%w: duplicate agent id %d", ErrCorruptWorld, id)
		}
		if _, dup := taken[[2]uint32{x, y}]; dup {
			return nil, fmt.Errorf("%w: two agents on (%d,%d)", ErrCorruptWorld, x, y)
		}
		ids[id] = struct{}{}
		taken[[2]uint32{x, y}] = struct{}{}
		maxID = max(maxID, id)

		a, err := newAgent(id, int(x), int(y), int(width), int(height))
		if err != nil {
			return nil, fmt.Errorf("decode world: %w", err)
		}
		if gx < width && gy < height {
			a.goalX, a.goalY = int(gx), int(gy)
		}
		w.insert(a)
	}

	next, err := get("next id")
	if err != nil {
		return nil, err
	}
	// Never hand out an id that is still alive.
	if count > 0 && next <= maxID {
		next = maxID + 1
	}
	w.nextID = next

	return w, nil
}

// readCells reads n cell tags, growing the result only as bytes arrive.
func readCells(r io.Reader, n int) ([]Cell, int, error) {
	cells := make([]Cell, 0, min(n, cellChunk))
	var chunk [cellChunk]byte
	tagged := 0
	for len(cells) < n {
		part := chunk[:min(n-len(cells), cellChunk)]
		if _, err := io.ReadFull(r, part); err != nil {
			return nil, 0, fmt.Errorf("decode world: read cells: %w", truncated(err))
		}
		for _, b := range part {
			c := Cell(b)
			if !c.Valid() {
				return nil, 0, fmt.Errorf("%w: cell %d has tag %d", ErrCorruptWorld, len(cells), b)
			}
			if c == CellAgent {
				tagged++
			}
			cells = append(cells, c)
		}
	}
	return cells, tagged, nil
}

// truncated reports a clean EOF inside the body as io.ErrUnexpectedEOF.
func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. See Restore.
func (w *World) UnmarshalBinary(data []byte) error {
	return w.Restore(bytes.NewReader(data))
}

// Restore replaces w's grid and roster with a decoded world. On any error
// w is left exactly as it was. Handles issued before a successful Restore
// become stale.
func (w *World) Restore(in io.Reader) error {
	decoded, err := Decode(in)
	if err != nil {
		return err
	}

	floor := w.genFloor
	for _, s := range w.slots {
		floor = max(floor, s.gen)
	}
	decoded.genFloor = floor
	for i := range decoded.slots {
		decoded.slots[i].gen = floor + 1
	}

	*w = *decoded
	return nil
}
