// Package results stores one summary row per finished game.
package results

import (
	"context"
	"errors"
	"time"
)

var ErrDuplicate = errors.New("game result already stored")

// Outcome is the terminal result of one session.
type Outcome struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Generation uint64    `json:"generation"`
	Result     string    `json:"result"`
	Moves      int       `json:"moves"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

func (o Outcome) Duration() time.Duration {
	if o.EndedAt.Before(o.StartedAt) {
		return 0
	}
	return o.EndedAt.Sub(o.StartedAt)
}

type Repository interface {
	Save(ctx context.Context, o Outcome) (int64, error)
	Recent(ctx context.Context, limit int) ([]Outcome, error)
	Close() error
}
