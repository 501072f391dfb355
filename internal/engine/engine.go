// Package engine defines the game engine capability consumed by the session core.
package engine

import (
	"errors"

	"github.com/park285/cheese-wargame/internal/domain"
)

var ErrUnsupportedOption = errors.New("engine option not supported")

// Engine holds game state, validates and executes moves and reports terminal status.
// Calls are made from the session loop only.
type Engine interface {
	// PlayTurn applies a human or remote move. ok is false when the move is rejected,
	// in which case state is unchanged.
	PlayTurn(m domain.Move) (result string, ok bool)
	// ComputerPlayTurn lets the AI move. mv is nil when the AI did not report its move.
	ComputerPlayTurn() (text string, mv *domain.Move)
	// HasWinner returns a description of the terminal result, if any.
	HasWinner() (string, bool)
	// MovesPlayed is the number of moves committed so far.
	MovesPlayed() int

	Board() domain.Board
	Info() string
	DisplayCoord(c domain.Coordinate) string
}

// Factory builds a fresh Engine for a new session.
type Factory func() (Engine, error)

// Tunable is implemented by engines exposing AI search options.
type Tunable interface {
	SetOption(name, value string) error
}
