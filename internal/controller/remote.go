package controller

import (
	"github.com/park285/cheese-wargame/internal/domain"
	"github.com/park285/cheese-wargame/internal/session"
	"go.uber.org/zap"
)

// RequestBrokerMove polls the broker for the opponent's next move. Only one request
// runs at a time; the control is re-armed when it matches or times out.
func (c *Controller) RequestBrokerMove() {
	s := c.Current()
	if s == nil || c.rejectDuringAuto() {
		return
	}
	if c.broker == nil {
		c.sink.Stats(c.msgs.Text("broker.disabled", nil, "Broker is not configured."))
		return
	}
	if s.GameOver() {
		c.sink.Stats(c.alreadyFinished())
		return
	}
	if c.brokerWaiting {
		return
	}
	c.requestBroker(s)
}

func (c *Controller) maybeAutoPoll(s *session.Session) {
	if !c.autoPoll || c.broker == nil || c.brokerWaiting || s.GameOver() {
		return
	}
	c.requestBroker(s)
}

func (c *Controller) requestBroker(s *session.Session) {
	expected := s.Engine.MovesPlayed() + 1
	attempts := c.broker.Retries() + 1

	c.brokerWaiting = true
	c.renderControls(s)
	c.sink.Stats(c.msgs.Text("broker.waiting", map[string]any{"Turn": expected}, "Waiting for broker..."))

	c.broker.PollMove(s, expected,
		func(m domain.Move) { c.onBrokerMove(s, expected, m) },
		func() {
			if !c.lifecycle.IsCurrent(s) {
				return
			}
			c.brokerWaiting = false
			c.sink.Stats(c.msgs.Text("broker.timeout", map[string]any{"Turn": expected, "Attempts": attempts}, "Broker timeout."))
			c.renderControls(s)
		},
	)
}

func (c *Controller) onBrokerMove(s *session.Session, expected int, m domain.Move) {
	if !c.lifecycle.IsCurrent(s) {
		return
	}
	if got := s.Engine.MovesPlayed() + 1; got != expected {
		// a local move landed while the poll was in flight
		c.logger.Info("broker_move_stale", zap.Int("expected_turn", expected), zap.Int("current_turn", got))
		c.brokerWaiting = false
		c.renderControls(s)
		return
	}
	c.sink.Stats(c.msgs.Text("broker.received", map[string]any{"Turn": expected, "Move": s.Engine.DisplayCoord(m.From) + "-" + s.Engine.DisplayCoord(m.To)}, "Broker move received."))
	c.ApplyRemoteMove(m)
}
