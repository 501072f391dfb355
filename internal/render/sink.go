package render

import (
	"github.com/park285/cheese-wargame/internal/domain"
)

// Sink receives everything the UI shows. Implementations are called from the
// session loop and must not block.
type Sink interface {
	Board(b domain.Board)
	Stats(text string)
	Info(text string)
	// Winner is shown in every result display at once.
	Winner(text string)
	Controls(c Controls)
}

// Controls is the state of the interactive affordances around the board.
type Controls struct {
	PendingFrom  *domain.Coordinate `json:"pending_from,omitempty"`
	PendingLabel string             `json:"pending_label,omitempty"`

	AutoReply      bool   `json:"auto_reply"`
	AutoReplyLabel string `json:"auto_reply_label"`

	ManualEnabled        bool `json:"manual_enabled"`
	BrokerAvailable      bool `json:"broker_available"`
	BrokerRequestEnabled bool `json:"broker_request_enabled"`

	Instructions string `json:"instructions,omitempty"`
}

// Multi fans every event out to all sinks in order.
type Multi []Sink

func (m Multi) Board(b domain.Board) {
	for _, s := range m {
		s.Board(b)
	}
}

func (m Multi) Stats(text string) {
	for _, s := range m {
		s.Stats(text)
	}
}

func (m Multi) Info(text string) {
	for _, s := range m {
		s.Info(text)
	}
}

func (m Multi) Winner(text string) {
	for _, s := range m {
		s.Winner(text)
	}
}

func (m Multi) Controls(c Controls) {
	for _, s := range m {
		s.Controls(c)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Board(domain.Board) {}
func (Nop) Stats(string)       {}
func (Nop) Info(string)        {}
func (Nop) Winner(string)      {}
func (Nop) Controls(Controls)  {}
