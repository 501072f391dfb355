package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/park285/cheese-wargame/internal/domain"
	"github.com/park285/cheese-wargame/internal/loop"
	"go.uber.org/zap"
)

const (
	DefaultRetries        = 10
	DefaultBackoff        = 500 * time.Millisecond
	defaultRequestTimeout = 5 * time.Second
)

// Owner is the session a poll belongs to.
type Owner interface {
	Alive() bool
}

// PollOutcome is the result of inspecting one relay response.
type PollOutcome int

const (
	Matched PollOutcome = iota
	NotReady
	Exhausted
)

func (o PollOutcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case NotReady:
		return "not_ready"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Client posts committed moves to a relay and polls it for the opponent's move.
// The relay is never an authority: failures only affect the remote mirror.
type Client struct {
	relay   Relay
	sched   loop.Scheduler
	retries int
	backoff time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

type Option func(*Client)

func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoff = d
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(relay Relay, sched loop.Scheduler, opts ...Option) *Client {
	c := &Client{
		relay:   relay,
		sched:   sched,
		retries: DefaultRetries,
		backoff: DefaultBackoff,
		timeout: defaultRequestTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Retries() int           { return c.retries }
func (c *Client) Backoff() time.Duration { return c.backoff }

// PostMove mirrors a committed move. Fire-and-forget: errors are logged, never retried.
func (c *Client) PostMove(turn int, m domain.Move) {
	rec := domain.NewTurnRecord(turn, m)
	c.sched.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.relay.Post(ctx, rec); err != nil {
			c.logger.Warn("broker_post_error", zap.Int("turn", rec.Turn), zap.Error(err))
			return
		}
		c.logger.Debug("broker_post", zap.Int("turn", rec.Turn), zap.String("move", m.String()))
	})
}

// PollMove fetches the relay until a record for expectedTurn shows up, the owner is
// superseded, or the retry budget runs out. onFound and onExhausted run on the
// scheduler, at most one of them, at most once.
func (c *Client) PollMove(owner Owner, expectedTurn int, onFound func(domain.Move), onExhausted func()) {
	p := &poll{
		c:           c,
		owner:       owner,
		expected:    expectedTurn,
		remaining:   c.retries,
		onFound:     onFound,
		onExhausted: onExhausted,
	}
	p.fetch()
}

// Evaluate classifies one relay response against the expected turn. Any response that
// is not an exact match counts as "not ready" while budget remains.
func Evaluate(raw json.RawMessage, fetchErr error, expectedTurn, remaining int) (domain.Move, PollOutcome) {
	if fetchErr == nil && raw != nil {
		rec, err := DecodeRecord(raw)
		if err == nil && rec.Turn == expectedTurn {
			return rec.Move(), Matched
		}
	}
	if remaining > 0 {
		return domain.Move{}, NotReady
	}
	return domain.Move{}, Exhausted
}

type poll struct {
	c           *Client
	owner       Owner
	expected    int
	remaining   int
	attempts    int
	onFound     func(domain.Move)
	onExhausted func()
}

func (p *poll) fetch() {
	p.attempts++
	p.c.sched.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.c.timeout)
		raw, err := p.c.relay.Fetch(ctx)
		cancel()
		p.c.sched.Post(func() { p.resume(raw, err) })
	})
}

func (p *poll) resume(raw json.RawMessage, fetchErr error) {
	if p.owner != nil && !p.owner.Alive() {
		p.c.logger.Debug("broker_poll_discarded", zap.Int("expected_turn", p.expected), zap.Int("attempts", p.attempts))
		return
	}
	if fetchErr != nil && !errors.Is(fetchErr, ErrMalformedPayload) {
		p.c.logger.Debug("broker_fetch_error", zap.Int("attempt", p.attempts), zap.Error(fetchErr))
	}
	mv, outcome := Evaluate(raw, fetchErr, p.expected, p.remaining)
	switch outcome {
	case Matched:
		p.c.logger.Info("broker_move_received", zap.Int("turn", p.expected), zap.String("move", mv.String()), zap.Int("attempts", p.attempts))
		if p.onFound != nil {
			p.onFound(mv)
		}
	case NotReady:
		p.remaining--
		p.c.sched.After(p.c.backoff, func() {
			if p.owner != nil && !p.owner.Alive() {
				return
			}
			p.fetch()
		})
	case Exhausted:
		p.c.logger.Info("broker_poll_timeout", zap.Int("expected_turn", p.expected), zap.Int("attempts", p.attempts))
		if p.onExhausted != nil {
			p.onExhausted()
		}
	}
}
