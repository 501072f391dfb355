package domain

import "fmt"

// Coordinate identifies a board cell. Row 0 is the top row.
type Coordinate struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Coordinate) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Col) }

// Valid reports whether both components are non-negative.
func (c Coordinate) Valid() bool { return c.Row >= 0 && c.Col >= 0 }

// Move is an ordered (from, to) pair. From == To is a self-destruct action.
type Move struct {
	From Coordinate `json:"from"`
	To   Coordinate `json:"to"`
}

func (m Move) String() string { return m.From.String() + "->" + m.To.String() }

// SelfDestruct reports whether the move targets its own source cell.
func (m Move) SelfDestruct() bool { return m.From == m.To }

// TurnRecord is the broker wire payload for a single move.
// Turn is the 1-based sequence index of the move in the game.
type TurnRecord struct {
	From Coordinate `json:"from"`
	To   Coordinate `json:"to"`
	Turn int        `json:"turn"`
}

func NewTurnRecord(turn int, m Move) TurnRecord {
	return TurnRecord{From: m.From, To: m.To, Turn: turn}
}

func (r TurnRecord) Move() Move { return Move{From: r.From, To: r.To} }
