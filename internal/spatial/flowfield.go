// Package spatial holds grid navigation helpers shared by routing strategies.
package spatial

// Unreachable is the integration cost of a cell with no path to the goal.
const Unreachable = -1

// 4-way connectivity. Order is the tie-break when two neighbours are equally
// close to the goal: east, south, west, north.
var (
	stepX = [4]int{1, 0, -1, 0}
	stepY = [4]int{0, 1, 0, -1}
)

// FlowField is a breadth-first integration field over a cell grid.
// Every reachable cell stores its step count to the goal and the direction
// of a neighbour one step closer, so an agent can follow it in O(1) per tick.
//
// Origin: Treuille, Cooper, Popović. "Continuum Crowds." SIGGRAPH 2006.
type FlowField struct {
	cols, rows  int
	integration []int32 // steps to goal, Unreachable if none
	flowX       []int8
	flowY       []int8
	blocked     []bool
	queue       []int // reusable BFS queue

	goalCol, goalRow int
	generated        bool
}

// NewFlowField creates an unblocked field of cols×rows cells.
// Non-positive sizes are clamped to 1.
func NewFlowField(cols, rows int) *FlowField {
	cols = max(cols, 1)
	rows = max(rows, 1)
	size := cols * rows

	return &FlowField{
		cols:        cols,
		rows:        rows,
		integration: make([]int32, size),
		flowX:       make([]int8, size),
		flowY:       make([]int8, size),
		blocked:     make([]bool, size),
		queue:       make([]int, 0, size),
	}
}

// Dimensions returns the grid size.
func (f *FlowField) Dimensions() (cols, rows int) {
	return f.cols, f.rows
}

func (f *FlowField) inBounds(col, row int) bool {
	return col >= 0 && col < f.cols && row >= 0 && row < f.rows
}

// SetCellBlocked marks one cell impassable or passable.
// Out-of-range cells are ignored. Takes effect on the next Generate.
func (f *FlowField) SetCellBlocked(col, row int, isBlocked bool) {
	if !f.inBounds(col, row) {
		return
	}
	f.blocked[row*f.cols+col] = isBlocked
}

// SetBlockedFunc refreshes every cell from blocked(col, row).
// Returns true if any cell changed.
func (f *FlowField) SetBlockedFunc(blocked func(col, row int) bool) bool {
	changed := false
	for row := 0; row < f.rows; row++ {
		for col := 0; col < f.cols; col++ {
			idx := row*f.cols + col
			b := blocked(col, row)
			if f.blocked[idx] != b {
				f.blocked[idx] = b
				changed = true
			}
		}
	}
	return changed
}

// Generate computes the field toward (goalCol, goalRow).
// Returns false, leaving every cell unreachable, when the goal is outside the
// grid or blocked.
//
// Time complexity: O(cols × rows)
// Should be called when the goal or blocked cells change.
func (f *FlowField) Generate(goalCol, goalRow int) bool {
	for i := range f.integration {
		f.integration[i] = Unreachable
		f.flowX[i], f.flowY[i] = 0, 0
	}
	f.goalCol, f.goalRow = goalCol, goalRow
	f.generated = true

	if !f.inBounds(goalCol, goalRow) {
		return false
	}
	goalIdx := goalRow*f.cols + goalCol
	if f.blocked[goalIdx] {
		return false
	}

	f.integration[goalIdx] = 0
	f.queue = append(f.queue[:0], goalIdx)

	for head := 0; head < len(f.queue); head++ {
		current := f.queue[head]
		row := current / f.cols
		col := current % f.cols
		next := f.integration[current] + 1

		for i := range stepX {
			nc, nr := col+stepX[i], row+stepY[i]
			if !f.inBounds(nc, nr) {
				continue
			}
			nidx := nr*f.cols + nc
			if f.blocked[nidx] || f.integration[nidx] != Unreachable {
				continue
			}
			f.integration[nidx] = next
			// The neighbour flows back toward the cell that reached it.
			f.flowX[nidx] = int8(-stepX[i])
			f.flowY[nidx] = int8(-stepY[i])
			f.queue = append(f.queue, nidx)
		}
	}
	return true
}

// Goal returns the goal of the last Generate; ok is false before the first.
func (f *FlowField) Goal() (col, row int, ok bool) {
	return f.goalCol, f.goalRow, f.generated
}

// Lookup returns the step toward the goal from (col, row).
// ok is false when the cell is outside the grid or unreachable.
// The goal cell itself reports (0, 0, true).
//
// Time complexity: O(1)
func (f *FlowField) Lookup(col, row int) (dx, dy int, ok bool) {
	if !f.inBounds(col, row) {
		return 0, 0, false
	}
	idx := row*f.cols + col
	if f.integration[idx] == Unreachable {
		return 0, 0, false
	}
	return int(f.flowX[idx]), int(f.flowY[idx]), true
}

// Cost returns the number of steps from (col, row) to the goal, or
// Unreachable.
func (f *FlowField) Cost(col, row int) int {
	if !f.inBounds(col, row) {
		return Unreachable
	}
	return int(f.integration[row*f.cols+col])
}
