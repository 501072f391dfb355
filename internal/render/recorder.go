package render

import (
	"sync"

	"github.com/park285/cheese-wargame/internal/domain"
)

// Display names a result surface on the page.
type Display string

const (
	DisplayStats     Display = "stats"
	DisplayInfo      Display = "info"
	DisplayBoardInfo Display = "board_info"
)

// Recorder keeps the last value of every display plus a history of events.
// Used by tests and by the websocket hub for replay to late clients.
type Recorder struct {
	mu       sync.Mutex
	displays map[Display]string
	board    *domain.Board
	controls Controls
	events   []string
	winners  int
	boards   int
}

func NewRecorder() *Recorder {
	return &Recorder{displays: map[Display]string{}}
}

func (r *Recorder) Board(b domain.Board) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.board = &b
	r.boards++
	r.events = append(r.events, "board")
}

func (r *Recorder) Stats(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.displays[DisplayStats] = text
	r.events = append(r.events, "stats:"+text)
}

func (r *Recorder) Info(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.displays[DisplayInfo] = text
	r.events = append(r.events, "info:"+text)
}

func (r *Recorder) Winner(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range []Display{DisplayStats, DisplayInfo, DisplayBoardInfo} {
		r.displays[d] = text
	}
	r.winners++
	r.events = append(r.events, "winner:"+text)
}

func (r *Recorder) Controls(c Controls) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controls = c
	r.events = append(r.events, "controls")
}

func (r *Recorder) Display(d Display) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.displays[d]
}

func (r *Recorder) LastBoard() (domain.Board, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return domain.Board{}, false
	}
	return *r.board, true
}

func (r *Recorder) LastControls() Controls {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controls
}

func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *Recorder) Winners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.winners
}

func (r *Recorder) Boards() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.boards
}

// Reset clears the event history but keeps the last values.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.winners = 0
	r.boards = 0
}
