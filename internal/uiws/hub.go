// Package uiws pushes render events to browser clients over websocket and feeds their
// commands back to the controller.
package uiws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/park285/cheese-wargame/internal/controller"
	"github.com/park285/cheese-wargame/internal/domain"
	"github.com/park285/cheese-wargame/internal/render"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Event types sent to clients.
const (
	EventBoard    = "board"
	EventStats    = "stats"
	EventInfo     = "info"
	EventWinner   = "winner"
	EventControls = "controls"
	EventError    = "error"
)

// Event is one server frame.
type Event struct {
	Type     string           `json:"type"`
	Board    *domain.Board    `json:"board,omitempty"`
	Text     string           `json:"text,omitempty"`
	Controls *render.Controls `json:"controls,omitempty"`
}

// CommandHandler receives decoded client commands. It is called from connection
// goroutines, so it must hand the command over to the session loop.
type CommandHandler func(controller.Command)

// replay order for late joiners
var replayOrder = []string{EventBoard, EventInfo, EventStats, EventWinner, EventControls}

// Hub is a render.Sink broadcasting to every connected client. New clients get the
// latest value of each event type first.
type Hub struct {
	onCommand CommandHandler
	logger    *zap.Logger
	origins   []string

	sendBuffer   int
	writeTimeout time.Duration
	pingInterval time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
	last    map[string]Event
	closed  bool
}

var _ render.Sink = (*Hub)(nil)

type HubOption func(*Hub)

func WithLogger(l *zap.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithOriginPatterns allows cross-origin browser clients matching the patterns.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.origins = append(h.origins, patterns...) }
}

func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

func NewHub(onCommand CommandHandler, opts ...HubOption) *Hub {
	h := &Hub{
		onCommand:    onCommand,
		logger:       zap.NewNop(),
		sendBuffer:   64,
		writeTimeout: 5 * time.Second,
		pingInterval: 30 * time.Second,
		clients:      map[*client]struct{}{},
		last:         map[string]Event{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Board(b domain.Board) {
	h.publish(Event{Type: EventBoard, Board: &b})
}

func (h *Hub) Stats(text string) { h.publish(Event{Type: EventStats, Text: text}) }
func (h *Hub) Info(text string)  { h.publish(Event{Type: EventInfo, Text: text}) }

func (h *Hub) Winner(text string) { h.publish(Event{Type: EventWinner, Text: text}) }

func (h *Hub) Controls(c render.Controls) {
	h.publish(Event{Type: EventControls, Controls: &c})
}

// LastBoard returns the most recent board snapshot.
func (h *Hub) LastBoard() (domain.Board, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev, ok := h.last[EventBoard]
	if !ok || ev.Board == nil {
		return domain.Board{}, false
	}
	return *ev.Board, true
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Type == EventBoard {
		// 새 판이 그려지면 이전 승자 표시는 무효
		delete(h.last, EventWinner)
	}
	h.last[ev.Type] = ev
	for c := range h.clients {
		if !c.enqueue(ev) {
			h.logger.Warn("ui_client_slow", zap.String("remote", c.remote))
			h.dropLocked(c)
		}
	}
}

// ServeWS upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  h.origins,
	})
	if err != nil {
		h.logger.Info("ui_accept_error", zap.Error(err))
		return
	}
	c := &client{conn: conn, remote: r.RemoteAddr, send: make(chan Event, h.sendBuffer+len(replayOrder)), done: make(chan struct{})}
	if !h.register(c) {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	h.logger.Info("ui_client_connected", zap.String("remote", c.remote))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.writeLoop(ctx, c)
	h.readLoop(ctx, c)

	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
	h.logger.Info("ui_client_disconnected", zap.String("remote", c.remote))
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	for _, t := range replayOrder {
		if ev, ok := h.last[t]; ok {
			c.enqueue(ev)
		}
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var cmd controller.Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type == "" {
			h.logger.Debug("ui_command_malformed", zap.String("remote", c.remote), zap.ByteString("data", data))
			c.enqueue(Event{Type: EventError, Text: "malformed command"})
			continue
		}
		if h.onCommand != nil {
			h.onCommand(cmd)
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			_ = c.conn.Close(websocket.StatusGoingAway, "disconnected")
			return
		case ev := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := wsjson.Write(wctx, c.conn, ev)
			cancel()
			if err != nil {
				h.logger.Debug("ui_write_error", zap.String("remote", c.remote), zap.Error(err))
				_ = c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				_ = c.conn.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var conns []*websocket.Conn
	for c := range h.clients {
		conns = append(conns, c.conn)
		h.dropLocked(c)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
	}
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.stop()
}

type client struct {
	conn   *websocket.Conn
	remote string
	send   chan Event
	done   chan struct{}
	once   sync.Once
}

func (c *client) enqueue(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *client) stop() { c.once.Do(func() { close(c.done) }) }
