// Package input turns two sequential cell selections into a candidate move.
package input

import "github.com/park285/cheese-wargame/internal/domain"

type State int

const (
	Idle State = iota
	AwaitingSecond
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingSecond:
		return "awaiting_second"
	default:
		return "unknown"
	}
}

// Outcome is the effect of a single Select call.
type Outcome int

const (
	// Rejected: the game is over, nothing changed.
	Rejected Outcome = iota
	// Started: the cell became the pending source.
	Started
	// Completed: a candidate move was produced and the machine is Idle again.
	Completed
)

// Machine holds at most one pending source cell.
// It does not validate or apply moves.
type Machine struct {
	pending  *domain.Coordinate
	gameOver func() bool
}

// New returns an Idle machine. gameOver is queried before every selection; nil means never over.
func New(gameOver func() bool) *Machine {
	return &Machine{gameOver: gameOver}
}

func (m *Machine) State() State {
	if m.pending == nil {
		return Idle
	}
	return AwaitingSecond
}

// Pending returns the source cell awaiting a destination.
func (m *Machine) Pending() (domain.Coordinate, bool) {
	if m.pending == nil {
		return domain.Coordinate{}, false
	}
	return *m.pending, true
}

// Select feeds one clicked cell into the machine.
func (m *Machine) Select(c domain.Coordinate) (domain.Move, Outcome) {
	if m.gameOver != nil && m.gameOver() {
		return domain.Move{}, Rejected
	}
	if m.pending == nil {
		from := c
		m.pending = &from
		return domain.Move{}, Started
	}
	mv := domain.Move{From: *m.pending, To: c}
	m.pending = nil
	return mv, Completed
}

// Cancel clears the pending selection. It reports whether one was cleared.
func (m *Machine) Cancel() bool {
	had := m.pending != nil
	m.pending = nil
	return had
}
