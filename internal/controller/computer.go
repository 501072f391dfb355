package controller

import (
	"github.com/park285/cheese-wargame/internal/session"
	"go.uber.org/zap"
)

// ComputerNextMove queues a single computer turn.
func (c *Controller) ComputerNextMove() {
	s := c.Current()
	if s == nil || c.rejectDuringAuto() {
		return
	}
	c.sched.Post(func() { c.computerStep(s, false) })
}

// ComputerAllMoves lets the computer play both sides until the game ends or the session
// is superseded. Manual controls stay hidden while it runs.
func (c *Controller) ComputerAllMoves() {
	s := c.Current()
	if s == nil || c.rejectDuringAuto() {
		return
	}
	if s.GameOver() {
		c.sink.Stats(c.alreadyFinished())
		return
	}
	c.autoRunning = true
	c.manualEnabled = false
	s.Input.Cancel()
	c.renderControls(s)
	c.sched.Post(func() { c.computerStep(s, true) })
}

// computerStep is one link of the computer move chain. With auto set the continuation
// queues the next link, so each turn is its own loop step.
func (c *Controller) computerStep(s *session.Session, auto bool) {
	if !s.Alive() {
		return
	}
	if s.GameOver() {
		c.sink.Stats(c.alreadyFinished())
		c.stopAuto(s)
		return
	}
	before := s.Engine.MovesPlayed()
	text, mv := s.Engine.ComputerPlayTurn()
	// the engine call cannot be interrupted; a restart during it is only seen here
	if !s.Alive() {
		c.logger.Debug("computer_step_discarded", zap.Uint64("generation", s.Generation), zap.Bool("auto", auto))
		return
	}
	c.renderMove(s, text, mv)

	advanced := s.Engine.MovesPlayed() > before
	if advanced && mv != nil && c.broker != nil {
		c.broker.PostMove(before+1, *mv)
	}
	if advanced {
		fields := []zap.Field{zap.String("session_id", s.ID), zap.Int("turn", before+1), zap.Bool("auto", auto)}
		if mv != nil {
			fields = append(fields, zap.String("move", mv.String()))
		}
		c.logger.Info("computer_move", fields...)
	}

	c.checkWinnerThen(s, func() {
		if !auto {
			if advanced {
				c.maybeAutoPoll(s)
			}
			return
		}
		if !advanced {
			c.logger.Warn("computer_stuck", zap.String("session_id", s.ID), zap.Int("moves", before))
			c.sink.Stats(c.msgs.Text("game.computer_stuck", nil, "Computer did not move; automatic play stopped."))
			c.stopAuto(s)
			return
		}
		c.computerStep(s, true)
	})
}

func (c *Controller) stopAuto(s *session.Session) {
	if !c.autoRunning {
		return
	}
	c.autoRunning = false
	c.manualEnabled = true
	c.renderControls(s)
}
