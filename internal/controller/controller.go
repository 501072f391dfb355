// Package controller commits moves from the local player, the computer and the broker
// onto the current session, one at a time, on the session loop.
package controller

import (
	"context"
	"errors"
	"time"

	"github.com/park285/cheese-wargame/internal/broker"
	"github.com/park285/cheese-wargame/internal/domain"
	"github.com/park285/cheese-wargame/internal/input"
	"github.com/park285/cheese-wargame/internal/loop"
	"github.com/park285/cheese-wargame/internal/render"
	"github.com/park285/cheese-wargame/internal/results"
	"github.com/park285/cheese-wargame/internal/session"
	"go.uber.org/zap"
)

// Broker is the subset of *broker.Client the controller drives.
type Broker interface {
	PostMove(turn int, m domain.Move)
	PollMove(owner broker.Owner, expectedTurn int, onFound func(domain.Move), onExhausted func())
	Retries() int
}

// Messages renders user-facing text. *msgcat.Catalog satisfies it.
type Messages interface {
	Text(key string, data any, fallback string) string
}

type source int

const (
	sourceLocal source = iota
	sourceRemote
)

func (s source) String() string {
	if s == sourceRemote {
		return "remote"
	}
	return "local"
}

const persistTimeout = 5 * time.Second

// Controller is the turn coordinator. Every method must run on the session loop.
type Controller struct {
	sched     loop.Scheduler
	lifecycle *session.Lifecycle
	sink      render.Sink
	broker    Broker
	results   results.Repository
	msgs      Messages
	logger    *zap.Logger
	autoPoll  bool

	// reset per session
	manualEnabled bool
	autoRunning   bool
	brokerWaiting bool

	options []engineOption
}

type engineOption struct{ name, value string }

type Option func(*Controller)

func WithBroker(b Broker) Option {
	return func(c *Controller) { c.broker = b }
}

func WithResults(r results.Repository) Option {
	return func(c *Controller) { c.results = r }
}

func WithMessages(m Messages) Option {
	return func(c *Controller) {
		if m != nil {
			c.msgs = m
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAutoPoll requests the opponent's move from the broker after every local commit
// that is not answered by the computer.
func WithAutoPoll(on bool) Option {
	return func(c *Controller) { c.autoPoll = on }
}

func New(sched loop.Scheduler, lifecycle *session.Lifecycle, sink render.Sink, opts ...Option) *Controller {
	if sink == nil {
		sink = render.Nop{}
	}
	c := &Controller{
		sched:     sched,
		lifecycle: lifecycle,
		sink:      sink,
		msgs:      fallbackMessages{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the live session, or nil before the first game.
func (c *Controller) Current() *session.Session {
	s := c.lifecycle.Current()
	if !s.Alive() {
		return nil
	}
	return s
}

// NewGame starts a fresh session, superseding any current one.
func (c *Controller) NewGame() error {
	s, err := c.lifecycle.NewGame()
	if err != nil {
		c.logger.Error("new_game_error", zap.Error(err))
		c.sink.Stats(err.Error())
		return err
	}
	c.start(s)
	return nil
}

// Restart aborts the current generation, so its pending continuations become
// no-ops, then starts a new game.
func (c *Controller) Restart() error {
	s, err := c.lifecycle.Restart()
	if err != nil {
		c.logger.Error("restart_error", zap.Error(err))
		c.sink.Stats(err.Error())
		return err
	}
	c.start(s)
	return nil
}

func (c *Controller) start(s *session.Session) {
	c.manualEnabled = true
	c.autoRunning = false
	c.brokerWaiting = false
	c.reapplyOptions(s)

	c.sink.Board(s.Engine.Board())
	c.sink.Info(s.Engine.Info())
	c.sink.Stats(c.msgs.Text("game.new_game", nil, "New game started."))
	c.renderControls(s)
}

// rejectDuringAuto reports whether automatic play owns the board, telling the user so.
func (c *Controller) rejectDuringAuto() bool {
	if !c.autoRunning {
		return false
	}
	c.sink.Stats(c.msgs.Text("instructions.auto", nil, "Computer is playing in automatic mode."))
	return true
}

// SelectCell feeds a board click to the input state machine and commits the move it
// completes.
func (c *Controller) SelectCell(coord domain.Coordinate) {
	s := c.Current()
	if s == nil {
		return
	}
	if c.rejectDuringAuto() {
		return
	}
	mv, outcome := s.Input.Select(coord)
	switch outcome {
	case input.Rejected:
		c.sink.Stats(c.alreadyFinished())
	case input.Started:
		c.renderControls(s)
	case input.Completed:
		c.renderControls(s)
		c.commit(s, mv, sourceLocal)
	}
}

// CancelMove drops the pending source cell. Calling it again is a no-op.
func (c *Controller) CancelMove() {
	s := c.Current()
	if s == nil {
		return
	}
	if s.Input.Cancel() {
		c.renderControls(s)
	}
}

// ApplyLocalMove commits a move made by the local player.
func (c *Controller) ApplyLocalMove(m domain.Move) bool {
	s := c.Current()
	if s == nil {
		return false
	}
	return c.commit(s, m, sourceLocal)
}

// ApplyRemoteMove commits a move received from the broker, then re-arms the broker
// request control.
func (c *Controller) ApplyRemoteMove(m domain.Move) bool {
	s := c.Current()
	if s == nil {
		return false
	}
	ok := c.commit(s, m, sourceRemote)
	c.brokerWaiting = false
	c.renderControls(s)
	return ok
}

// SetAutoReply toggles the computer's immediate answer to committed moves.
func (c *Controller) SetAutoReply(on bool) {
	s := c.Current()
	if s == nil {
		return
	}
	s.AutoReply = on
	c.renderControls(s)
}

func (c *Controller) commit(s *session.Session, m domain.Move, src source) bool {
	if !c.lifecycle.IsCurrent(s) {
		c.logger.Debug("commit_discarded", zap.Uint64("generation", s.Generation), zap.String("move", m.String()))
		return false
	}
	if s.GameOver() {
		c.sink.Stats(c.alreadyFinished())
		return false
	}
	turn := s.Engine.MovesPlayed() + 1
	result, ok := s.Engine.PlayTurn(m)
	if !ok {
		c.logger.Debug("invalid_move", zap.String("source", src.String()), zap.String("move", m.String()))
		c.sink.Stats(c.msgs.Text("game.invalid_move", nil, "Invalid move!"))
		return false
	}
	c.logger.Info("move_committed",
		zap.String("session_id", s.ID),
		zap.String("source", src.String()),
		zap.Int("turn", turn),
		zap.String("move", m.String()),
	)
	c.renderMove(s, result, &m)
	if src == sourceLocal && c.broker != nil {
		c.broker.PostMove(turn, m)
	}

	c.checkWinnerThen(s, func() {
		switch {
		case s.AutoReply:
			c.computerStep(s, false)
		case src == sourceLocal:
			c.maybeAutoPoll(s)
		}
	})
	return true
}

// checkWinnerThen runs between every committed move and any follow-up. On a terminal
// result the winner is broadcast and next never runs; otherwise next is queued as its
// own loop step.
func (c *Controller) checkWinnerThen(s *session.Session, next func()) {
	if text, over := s.Engine.HasWinner(); over {
		c.sink.Winner(text)
		c.finish(s, text)
		return
	}
	c.sched.Post(func() {
		if !s.Alive() {
			c.logger.Debug("continuation_discarded", zap.Uint64("generation", s.Generation))
			return
		}
		next()
	})
}

func (c *Controller) finish(s *session.Session, text string) {
	if !s.MarkFinished() {
		return
	}
	if c.autoRunning {
		c.autoRunning = false
		c.manualEnabled = true
	}
	c.renderControls(s)
	c.logger.Info("game_finished",
		zap.String("session_id", s.ID),
		zap.Uint64("generation", s.Generation),
		zap.Int("moves", s.Engine.MovesPlayed()),
		zap.String("result", text),
	)
	if c.results == nil {
		return
	}
	outcome := results.Outcome{
		SessionID:  s.ID,
		Generation: s.Generation,
		Result:     text,
		Moves:      s.Engine.MovesPlayed(),
		StartedAt:  s.StartedAt,
		EndedAt:    time.Now(),
	}
	repo, logger := c.results, c.logger
	c.sched.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if _, err := repo.Save(ctx, outcome); err != nil && !errors.Is(err, results.ErrDuplicate) {
			logger.Warn("result_save_error", zap.String("session_id", outcome.SessionID), zap.Error(err))
		}
	})
}

func (c *Controller) renderMove(s *session.Session, text string, m *domain.Move) {
	b := s.Engine.Board()
	if b.Highlight == nil && m != nil {
		b = b.WithHighlight(m)
	}
	c.sink.Board(b)
	c.sink.Stats(text)
	c.sink.Info(s.Engine.Info())
}

func (c *Controller) renderControls(s *session.Session) {
	ctl := render.Controls{
		AutoReply:            s.AutoReply,
		ManualEnabled:        c.manualEnabled,
		BrokerAvailable:      c.broker != nil,
		BrokerRequestEnabled: c.broker != nil && !c.brokerWaiting && !s.GameOver(),
	}
	if s.AutoReply {
		ctl.AutoReplyLabel = c.msgs.Text("auto_reply.disable", nil, "Disable auto-reply")
	} else {
		ctl.AutoReplyLabel = c.msgs.Text("auto_reply.enable", nil, "Enable auto-reply")
	}
	if c.autoRunning {
		ctl.Instructions = c.msgs.Text("instructions.auto", nil, "Computer is playing in automatic mode.")
	} else {
		ctl.Instructions = c.msgs.Text("instructions.manual", nil, "Click on a source cell and then on a destination cell to perform a move. Same cell = self-destruct.")
	}
	if from, ok := s.Input.Pending(); ok {
		label := s.Engine.DisplayCoord(from)
		ctl.PendingFrom = &from
		ctl.PendingLabel = c.msgs.Text("cancel_move.label", map[string]any{"From": label}, "Cancel move from "+label)
	}
	c.sink.Controls(ctl)
}

func (c *Controller) alreadyFinished() string {
	return c.msgs.Text("game.already_finished", nil, "Game is already finished!")
}

type fallbackMessages struct{}

func (fallbackMessages) Text(_ string, _ any, fallback string) string { return fallback }
