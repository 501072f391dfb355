package session

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-wargame/internal/engine"
	"github.com/park285/cheese-wargame/internal/input"
	"go.uber.org/zap"
)

var ErrNoFactory = errors.New("engine factory required")

// Session is one game instance. Every asynchronous continuation captures the
// *Session it was scheduled under and checks Alive before touching shared state.
type Session struct {
	ID         string
	Generation uint64
	Engine     engine.Engine
	Input      *input.Machine
	AutoReply  bool
	StartedAt  time.Time

	aborted        bool
	finished       bool
	engineReleased bool
}

// Alive reports whether the session is still the current one.
func (s *Session) Alive() bool { return s != nil && !s.aborted }

// GameOver queries the engine for a terminal result.
func (s *Session) GameOver() bool {
	if s == nil || s.Engine == nil {
		return true
	}
	_, over := s.Engine.HasWinner()
	return over
}

// MarkFinished records that the terminal result was handled. It returns false if
// it had already been marked.
func (s *Session) MarkFinished() bool {
	if s.finished {
		return false
	}
	s.finished = true
	return true
}

func (s *Session) abort() { s.aborted = true }

// Lifecycle owns the generation counter and the current session.
// Methods must be called from the session loop.
type Lifecycle struct {
	factory   engine.Factory
	autoReply bool
	gen       uint64
	current   *Session
	logger    *zap.Logger
}

func NewLifecycle(factory engine.Factory, autoReply bool, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{factory: factory, autoReply: autoReply, logger: logger}
}

// NewGame supersedes any current session with a fresh one.
func (l *Lifecycle) NewGame() (*Session, error) {
	if l.factory == nil {
		return nil, ErrNoFactory
	}
	eng, err := l.factory()
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	if prev := l.current; prev != nil {
		prev.abort()
		l.closeEngine(prev)
	}
	l.gen++
	s := &Session{
		ID:         uuid.NewString(),
		Generation: l.gen,
		Engine:     eng,
		AutoReply:  l.autoReply,
		StartedAt:  time.Now(),
	}
	s.Input = input.New(s.GameOver)
	l.current = s
	l.logger.Info("session_new", zap.String("session_id", s.ID), zap.Uint64("generation", s.Generation))
	return s, nil
}

// Restart aborts the current generation, so its in-flight continuations become
// no-ops, then starts a new game. If the factory fails the aborted session's engine
// is released and no session is live.
func (l *Lifecycle) Restart() (*Session, error) {
	prev := l.current
	if prev != nil {
		prev.abort()
		l.logger.Info("session_abort", zap.String("session_id", prev.ID), zap.Uint64("generation", prev.Generation))
	}
	s, err := l.NewGame()
	if err != nil && prev != nil {
		l.closeEngine(prev)
	}
	return s, err
}

func (l *Lifecycle) Current() *Session { return l.current }

// Generation returns the latest generation number (0 before the first game).
func (l *Lifecycle) Generation() uint64 { return l.gen }

// IsCurrent reports whether s is the live current session.
func (l *Lifecycle) IsCurrent(s *Session) bool { return s != nil && s == l.current && s.Alive() }

// Close aborts the current session and releases its engine. Used at shutdown.
func (l *Lifecycle) Close() {
	if !l.current.Alive() {
		return
	}
	l.current.abort()
	l.closeEngine(l.current)
}

func (l *Lifecycle) closeEngine(s *Session) {
	if s.engineReleased {
		return
	}
	s.engineReleased = true
	c, ok := s.Engine.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		l.logger.Warn("engine_close_error", zap.String("session_id", s.ID), zap.Error(err))
	}
}
