package sim

// Cell is the occupancy tag of one grid location.
// Values are persisted as raw bytes, so the numbering is part of the file format.
type Cell uint8

const (
	CellEmpty Cell = iota
	CellWall
	CellAgent
)

// String returns human-readable cell type
func (c Cell) String() string {
	switch c {
	case CellEmpty:
		return "empty"
	case CellWall:
		return "wall"
	case CellAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// Valid reports whether c is one of the known tags.
func (c Cell) Valid() bool {
	return c <= CellAgent
}
