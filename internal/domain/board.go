package domain

// Cell is a rendered board cell. Faction is empty for an unoccupied cell.
type Cell struct {
	Label   string `json:"label,omitempty"`
	Faction string `json:"faction,omitempty"`
}

// Highlight marks the source and destination of the last committed move.
type Highlight struct {
	From Coordinate `json:"from"`
	To   Coordinate `json:"to"`
}

// Board is an immutable snapshot handed to renderers. Cells are row-major.
type Board struct {
	Rows      int        `json:"rows"`
	Cols      int        `json:"cols"`
	Cells     []Cell     `json:"cells"`
	Highlight *Highlight `json:"highlight,omitempty"`
	Moves     int        `json:"moves"`
}

// At returns the cell at (row, col), or an empty cell when out of range.
func (b Board) At(row, col int) Cell {
	if row < 0 || col < 0 || row >= b.Rows || col >= b.Cols {
		return Cell{}
	}
	idx := row*b.Cols + col
	if idx >= len(b.Cells) {
		return Cell{}
	}
	return b.Cells[idx]
}

// Highlighted reports whether c is the source or destination of the highlighted move.
func (b Board) Highlighted(c Coordinate) bool {
	if b.Highlight == nil {
		return false
	}
	return b.Highlight.From == c || b.Highlight.To == c
}

// WithHighlight returns a copy of b marking m.
func (b Board) WithHighlight(m *Move) Board {
	if m == nil {
		b.Highlight = nil
		return b
	}
	b.Highlight = &Highlight{From: m.From, To: m.To}
	return b
}
