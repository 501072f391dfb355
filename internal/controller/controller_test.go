package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-wargame/internal/broker"
	"github.com/park285/cheese-wargame/internal/domain"
	"github.com/park285/cheese-wargame/internal/engine"
	"github.com/park285/cheese-wargame/internal/loop"
	"github.com/park285/cheese-wargame/internal/render"
	"github.com/park285/cheese-wargame/internal/results"
	"github.com/park285/cheese-wargame/internal/session"
)

// fakeEngine is a scripted engine: every legal move advances the counter, the
// computer always moves (moves,0)->(moves,1).
type fakeEngine struct {
	moves         int
	played        []domain.Move
	invalid       map[domain.Move]bool
	winAt         int
	computerCalls int
	stuck         bool
	onComputer    func()
	options       map[string]string
}

func (e *fakeEngine) PlayTurn(m domain.Move) (string, bool) {
	if e.invalid[m] {
		return "", false
	}
	e.moves++
	e.played = append(e.played, m)
	return "played " + m.String(), true
}

func (e *fakeEngine) ComputerPlayTurn() (string, *domain.Move) {
	e.computerCalls++
	if e.onComputer != nil {
		e.onComputer()
	}
	if e.stuck {
		return "thinking", nil
	}
	e.moves++
	mv := domain.Move{From: domain.Coordinate{Row: e.moves, Col: 0}, To: domain.Coordinate{Row: e.moves, Col: 1}}
	return "ai", &mv
}

func (e *fakeEngine) HasWinner() (string, bool) {
	if e.winAt > 0 && e.moves >= e.winAt {
		return fmt.Sprintf("Red wins in %d moves!", e.moves), true
	}
	return "", false
}

func (e *fakeEngine) MovesPlayed() int { return e.moves }
func (e *fakeEngine) Board() domain.Board {
	return domain.Board{Rows: 3, Cols: 3, Cells: make([]domain.Cell, 9), Moves: e.moves}
}
func (e *fakeEngine) Info() string                            { return fmt.Sprintf("moves=%d", e.moves) }
func (e *fakeEngine) DisplayCoord(c domain.Coordinate) string { return fmt.Sprintf("r%dc%d", c.Row, c.Col) }

func (e *fakeEngine) SetOption(name, value string) error {
	if name == "bogus" {
		return engine.ErrUnsupportedOption
	}
	if e.options == nil {
		e.options = map[string]string{}
	}
	e.options[name] = value
	return nil
}

type pendingPoll struct {
	owner       broker.Owner
	expected    int
	onFound     func(domain.Move)
	onExhausted func()
}

type fakeBroker struct {
	posts []domain.TurnRecord
	polls []*pendingPoll
}

func (b *fakeBroker) PostMove(turn int, m domain.Move) {
	b.posts = append(b.posts, domain.NewTurnRecord(turn, m))
}

func (b *fakeBroker) PollMove(owner broker.Owner, expected int, onFound func(domain.Move), onExhausted func()) {
	b.polls = append(b.polls, &pendingPoll{owner: owner, expected: expected, onFound: onFound, onExhausted: onExhausted})
}

func (b *fakeBroker) Retries() int { return broker.DefaultRetries }

type harness struct {
	sched   *loop.Manual
	rec     *render.Recorder
	lc      *session.Lifecycle
	ctrl    *Controller
	engines []*fakeEngine
}

func newHarness(t *testing.T, autoReply bool, setup func(*fakeEngine), opts ...Option) *harness {
	t.Helper()
	h := &harness{sched: loop.NewManual(), rec: render.NewRecorder()}
	h.lc = session.NewLifecycle(func() (engine.Engine, error) {
		e := &fakeEngine{invalid: map[domain.Move]bool{}}
		if setup != nil {
			setup(e)
		}
		h.engines = append(h.engines, e)
		return e, nil
	}, autoReply, nil)
	h.ctrl = New(h.sched, h.lc, h.rec, opts...)
	if err := h.ctrl.NewGame(); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	return h
}

func (h *harness) engine() *fakeEngine { return h.engines[len(h.engines)-1] }

func at(r, c int) domain.Coordinate { return domain.Coordinate{Row: r, Col: c} }

func move(fr, fc, tr, tc int) domain.Move { return domain.Move{From: at(fr, fc), To: at(tr, tc)} }

func TestLocalMoveSchedulesOneAutoReply(t *testing.T) {
	h := newHarness(t, true, nil)
	if !h.ctrl.ApplyLocalMove(move(0, 0, 0, 1)) {
		t.Fatalf("expected move to commit")
	}
	e := h.engine()
	if e.computerCalls != 0 {
		t.Fatalf("auto-reply must run as its own step, not inline")
	}
	if h.sched.Pending() != 1 {
		t.Fatalf("expected exactly one queued step, got %d", h.sched.Pending())
	}
	h.sched.Settle(time.Minute)
	if e.computerCalls != 1 || e.moves != 2 {
		t.Fatalf("expected one AI reply, calls=%d moves=%d", e.computerCalls, e.moves)
	}
	if got := h.rec.Display(render.DisplayStats); got != "ai" {
		t.Fatalf("expected AI result rendered, got %q", got)
	}
	if got := h.rec.Display(render.DisplayInfo); got != "moves=2" {
		t.Fatalf("expected info refreshed, got %q", got)
	}
}

func TestLocalMoveWithoutAutoReply(t *testing.T) {
	h := newHarness(t, false, nil)
	h.ctrl.ApplyLocalMove(move(0, 0, 0, 1))
	h.sched.Settle(time.Minute)
	if h.engine().computerCalls != 0 {
		t.Fatalf("computer must not reply when auto-reply is off")
	}
	b, _ := h.rec.LastBoard()
	if !b.Highlighted(at(0, 0)) || !b.Highlighted(at(0, 1)) {
		t.Fatalf("committed move must be highlighted")
	}
}

func TestCancelThenSelectCommitsOnlySecondMove(t *testing.T) {
	h := newHarness(t, false, nil)
	h.ctrl.SelectCell(at(0, 0))
	if got := h.rec.LastControls().PendingLabel; got != "Cancel move from r0c0" {
		t.Fatalf("expected cancel affordance, got %q", got)
	}
	h.ctrl.CancelMove()
	h.ctrl.CancelMove()
	if h.rec.LastControls().PendingFrom != nil {
		t.Fatalf("cancel must clear the pending selection")
	}
	if len(h.engine().played) != 0 {
		t.Fatalf("first selection must not reach the engine")
	}
	h.ctrl.SelectCell(at(1, 1))
	h.ctrl.SelectCell(at(1, 2))
	played := h.engine().played
	if len(played) != 1 || played[0] != move(1, 1, 1, 2) {
		t.Fatalf("expected only (1,1)->(1,2), got %v", played)
	}
}

func TestSelfDestructSelection(t *testing.T) {
	h := newHarness(t, false, nil)
	h.ctrl.SelectCell(at(2, 2))
	h.ctrl.SelectCell(at(2, 2))
	played := h.engine().played
	if len(played) != 1 || !played[0].SelfDestruct() {
		t.Fatalf("expected self-destruct move, got %v", played)
	}
}

func TestAllMovesStopsAtWinner(t *testing.T) {
	h := newHarness(t, true, func(e *fakeEngine) { e.winAt = 5 })
	h.ctrl.ComputerAllMoves()
	if h.rec.LastControls().ManualEnabled {
		t.Fatalf("manual controls must be hidden in automatic mode")
	}
	if h.rec.LastControls().Instructions != "Computer is playing in automatic mode." {
		t.Fatalf("unexpected instructions %q", h.rec.LastControls().Instructions)
	}
	h.sched.Settle(time.Minute)

	e := h.engine()
	if e.computerCalls != 5 {
		t.Fatalf("expected 5 computer steps, got %d", e.computerCalls)
	}
	for _, d := range []render.Display{render.DisplayStats, render.DisplayInfo, render.DisplayBoardInfo} {
		if got := h.rec.Display(d); got != "Red wins in 5 moves!" {
			t.Fatalf("display %s: expected winner, got %q", d, got)
		}
	}
	if h.rec.Winners() != 1 {
		t.Fatalf("expected a single winner broadcast, got %d", h.rec.Winners())
	}
	if !h.rec.LastControls().ManualEnabled {
		t.Fatalf("manual controls must come back after the game ends")
	}
	// nothing left to run
	h.ctrl.ComputerNextMove()
	h.sched.Settle(time.Minute)
	if e.computerCalls != 5 {
		t.Fatalf("no step may run after the winner, got %d", e.computerCalls)
	}
}

func TestCommandsRejectedWhileAllMovesRuns(t *testing.T) {
	fb := &fakeBroker{}
	h := newHarness(t, false, func(e *fakeEngine) { e.winAt = 6 }, WithBroker(fb))
	h.ctrl.ComputerAllMoves()
	h.ctrl.ComputerAllMoves()
	h.ctrl.ComputerNextMove()
	h.ctrl.RequestBrokerMove()
	if h.sched.Pending() != 1 {
		t.Fatalf("expected a single computer chain queued, got %d", h.sched.Pending())
	}
	if len(fb.polls) != 0 {
		t.Fatalf("broker request must be refused during automatic play")
	}
	if got := h.rec.Display(render.DisplayStats); got != "Computer is playing in automatic mode." {
		t.Fatalf("expected automatic-mode notice, got %q", got)
	}

	maxQueued := 0
	for h.sched.Step() {
		maxQueued = max(maxQueued, h.sched.Pending())
	}
	e := h.engine()
	if maxQueued > 1 {
		t.Fatalf("computer chains overlapped, %d steps queued at once", maxQueued)
	}
	if e.computerCalls != 6 || e.moves != 6 {
		t.Fatalf("expected 6 computer moves, calls=%d moves=%d", e.computerCalls, e.moves)
	}
	if !h.rec.LastControls().ManualEnabled {
		t.Fatalf("manual controls must come back after the game ends")
	}
}

func TestAllMovesStopsWhenComputerStuck(t *testing.T) {
	h := newHarness(t, true, func(e *fakeEngine) { e.stuck = true })
	h.ctrl.ComputerAllMoves()
	h.sched.Settle(time.Minute)
	if h.engine().computerCalls != 1 {
		t.Fatalf("chain must stop when the engine does not advance, got %d", h.engine().computerCalls)
	}
	if !h.rec.LastControls().ManualEnabled {
		t.Fatalf("manual controls must be restored")
	}
}

func TestRestartDiscardsQueuedContinuation(t *testing.T) {
	h := newHarness(t, true, nil)
	h.ctrl.ApplyLocalMove(move(0, 0, 0, 1))
	old := h.engine()
	if err := h.ctrl.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	h.rec.Reset()
	h.sched.Settle(time.Minute)

	if old.computerCalls != 0 || h.engine().computerCalls != 0 {
		t.Fatalf("stale continuation must not reach any engine")
	}
	if len(h.rec.Events()) != 0 {
		t.Fatalf("stale continuation must not render, got %v", h.rec.Events())
	}
}

func TestRestartDuringComputerCallDiscardsResult(t *testing.T) {
	var h *harness
	created := 0
	h = newHarness(t, true, func(e *fakeEngine) {
		created++
		if created == 1 {
			e.onComputer = func() { _ = h.ctrl.Restart() }
		}
	})
	h.ctrl.ComputerAllMoves()
	h.sched.Settle(time.Minute)

	if len(h.engines) != 2 {
		t.Fatalf("expected a restarted session")
	}
	if h.engines[0].computerCalls != 1 {
		t.Fatalf("aborted chain must not continue, got %d calls", h.engines[0].computerCalls)
	}
	if got := h.rec.Display(render.DisplayStats); got != "New game started." {
		t.Fatalf("stale result must not be rendered, got %q", got)
	}
	if h.engines[1].computerCalls != 0 {
		t.Fatalf("new session must not inherit the chain")
	}
}

func TestInvalidMoveLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, true, func(e *fakeEngine) { e.invalid[move(0, 0, 2, 2)] = true })
	if h.ctrl.ApplyLocalMove(move(0, 0, 2, 2)) {
		t.Fatalf("invalid move must not commit")
	}
	if got := h.rec.Display(render.DisplayStats); got != "Invalid move!" {
		t.Fatalf("expected invalid move message, got %q", got)
	}
	if h.engine().moves != 0 || h.sched.Pending() != 0 {
		t.Fatalf("invalid move must not schedule follow-ups")
	}
}

func TestMovesRejectedAfterGameOver(t *testing.T) {
	h := newHarness(t, true, func(e *fakeEngine) { e.winAt = 1 })
	h.ctrl.ApplyLocalMove(move(0, 0, 0, 1))
	if h.rec.Winners() != 1 {
		t.Fatalf("expected winner broadcast")
	}
	h.sched.Settle(time.Minute)
	if h.engine().computerCalls != 0 {
		t.Fatalf("auto-reply must not run after the winning move")
	}

	if h.ctrl.ApplyLocalMove(move(1, 1, 1, 2)) {
		t.Fatalf("move after game over must be rejected")
	}
	if got := h.rec.Display(render.DisplayStats); got != "Game is already finished!" {
		t.Fatalf("unexpected message %q", got)
	}
	h.ctrl.SelectCell(at(2, 2))
	if h.rec.LastControls().PendingFrom != nil {
		t.Fatalf("selection after game over must be rejected")
	}
	h.ctrl.ComputerNextMove()
	h.sched.Settle(time.Minute)
	if h.engine().computerCalls != 0 || h.engine().moves != 1 {
		t.Fatalf("computer must not move after game over")
	}
}

func TestLocalMovesArePostedWithTurnIndex(t *testing.T) {
	b := &fakeBroker{}
	h := newHarness(t, false, nil, WithBroker(b))
	h.ctrl.ApplyLocalMove(move(0, 0, 0, 1))
	h.ctrl.ApplyLocalMove(move(1, 0, 1, 1))
	if len(b.posts) != 2 || b.posts[0].Turn != 1 || b.posts[1].Turn != 2 {
		t.Fatalf("unexpected posts %+v", b.posts)
	}
	if b.posts[1].From != at(1, 0) {
		t.Fatalf("unexpected record %+v", b.posts[1])
	}
}

func TestRemoteMoveAutoRepliesAndRearmsControl(t *testing.T) {
	b := &fakeBroker{}
	h := newHarness(t, true, nil, WithBroker(b))
	h.ctrl.RequestBrokerMove()
	if h.rec.LastControls().BrokerRequestEnabled {
		t.Fatalf("control must be disabled while a request runs")
	}
	h.ctrl.RequestBrokerMove()
	if len(b.polls) != 1 || b.polls[0].expected != 1 {
		t.Fatalf("expected a single poll for turn 1, got %d", len(b.polls))
	}

	b.polls[0].onFound(move(0, 0, 0, 1))
	e := h.engine()
	if len(e.played) != 1 || e.played[0] != move(0, 0, 0, 1) {
		t.Fatalf("remote move not applied: %v", e.played)
	}
	if len(b.posts) != 0 {
		t.Fatalf("remote move must not be posted back, got %+v", b.posts)
	}
	if !h.rec.LastControls().BrokerRequestEnabled {
		t.Fatalf("control must be re-armed after the remote move")
	}
	h.sched.Settle(time.Minute)
	if e.computerCalls != 1 {
		t.Fatalf("expected one auto-reply, got %d", e.computerCalls)
	}
	if len(b.posts) != 1 || b.posts[0].Turn != 2 {
		t.Fatalf("auto-reply must be posted as turn 2, got %+v", b.posts)
	}
}

func TestBrokerTimeoutRearmsControlOnce(t *testing.T) {
	b := &fakeBroker{}
	h := newHarness(t, false, nil, WithBroker(b))
	h.ctrl.RequestBrokerMove()
	h.rec.Reset()
	b.polls[0].onExhausted()

	if !h.rec.LastControls().BrokerRequestEnabled {
		t.Fatalf("control must be re-armed after timeout")
	}
	if got := h.rec.Display(render.DisplayStats); got != "Broker timeout." {
		t.Fatalf("unexpected timeout message %q", got)
	}
	controls := 0
	for _, ev := range h.rec.Events() {
		if ev == "controls" {
			controls++
		}
	}
	if controls != 1 {
		t.Fatalf("expected one controls update, got %d", controls)
	}
}

func TestBrokerResultForSupersededSessionIgnored(t *testing.T) {
	b := &fakeBroker{}
	h := newHarness(t, false, nil, WithBroker(b))
	h.ctrl.RequestBrokerMove()
	if err := h.ctrl.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	b.polls[0].onFound(move(0, 0, 0, 1))
	b.polls[0].onExhausted()
	if len(h.engine().played) != 0 || len(h.engines[0].played) != 0 {
		t.Fatalf("stale broker result must not be applied")
	}
	if !h.rec.LastControls().BrokerRequestEnabled {
		t.Fatalf("new session starts with the request control enabled")
	}
}

func TestBrokerMoveStaleAfterLocalMove(t *testing.T) {
	b := &fakeBroker{}
	h := newHarness(t, false, nil, WithBroker(b))
	h.ctrl.RequestBrokerMove()
	h.ctrl.ApplyLocalMove(move(2, 0, 2, 1))
	b.polls[0].onFound(move(0, 0, 0, 1))
	if len(h.engine().played) != 1 {
		t.Fatalf("remote move for an outdated turn must be dropped, got %v", h.engine().played)
	}
}

func TestBrokerDisabled(t *testing.T) {
	h := newHarness(t, false, nil)
	h.ctrl.RequestBrokerMove()
	if got := h.rec.Display(render.DisplayStats); got != "Broker is not configured." {
		t.Fatalf("unexpected message %q", got)
	}
	if h.rec.LastControls().BrokerAvailable {
		t.Fatalf("broker must be reported unavailable")
	}
}

func TestAutoPollAfterLocalMove(t *testing.T) {
	b := &fakeBroker{}
	h := newHarness(t, false, nil, WithBroker(b), WithAutoPoll(true))
	h.ctrl.ApplyLocalMove(move(0, 0, 0, 1))
	h.sched.Settle(time.Minute)
	if len(b.polls) != 1 || b.polls[0].expected != 2 {
		t.Fatalf("expected automatic poll for turn 2, got %d polls", len(b.polls))
	}
}

// memRelay serves a scripted sequence of records to a real broker.Client.
type memRelay struct {
	mu      sync.Mutex
	records []json.RawMessage
	fetches int
}

func (r *memRelay) Post(context.Context, domain.TurnRecord) error { return nil }

func (r *memRelay) Fetch(context.Context) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.fetches
	r.fetches++
	if idx >= len(r.records) {
		idx = len(r.records) - 1
	}
	return r.records[idx], nil
}

func TestBrokerPollAppliesOnlyMatchingTurn(t *testing.T) {
	relay := &memRelay{records: []json.RawMessage{
		json.RawMessage(`{"from":{"row":0,"col":0},"to":{"row":0,"col":1},"turn":2}`),
		json.RawMessage(`{"from":{"row":0,"col":0},"to":{"row":0,"col":1},"turn":3}`),
	}}
	sched := loop.NewManual()
	rec := render.NewRecorder()
	var eng *fakeEngine
	lc := session.NewLifecycle(func() (engine.Engine, error) {
		eng = &fakeEngine{invalid: map[domain.Move]bool{}}
		return eng, nil
	}, false, nil)
	client := broker.NewClient(relay, sched)
	ctrl := New(sched, lc, rec, WithBroker(client))
	if err := ctrl.NewGame(); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	ctrl.ApplyLocalMove(move(2, 0, 2, 1))
	ctrl.ApplyLocalMove(move(2, 1, 2, 2))
	sched.Settle(time.Minute)

	ctrl.RequestBrokerMove()
	sched.RunPending()
	if len(eng.played) != 2 {
		t.Fatalf("record for turn 2 must not be applied while expecting 3")
	}
	sched.Settle(time.Minute)
	if len(eng.played) != 3 || eng.played[2] != move(0, 0, 0, 1) {
		t.Fatalf("record for turn 3 must be applied, got %v", eng.played)
	}
	if relay.fetches != 2 {
		t.Fatalf("expected 2 fetches, got %d", relay.fetches)
	}
}

func TestResultPersistedOnce(t *testing.T) {
	repo := results.NewMemoryRepository()
	h := newHarness(t, false, func(e *fakeEngine) { e.winAt = 1 }, WithResults(repo))
	h.ctrl.ApplyLocalMove(move(0, 0, 0, 1))
	h.ctrl.ApplyLocalMove(move(0, 1, 0, 2))
	h.sched.Settle(time.Minute)
	got, err := repo.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Result != "Red wins in 1 moves!" || got[0].Moves != 1 {
		t.Fatalf("unexpected outcomes %+v", got)
	}
	if got[0].SessionID != h.ctrl.Current().ID {
		t.Fatalf("outcome must reference the session")
	}
}

func TestAutoReplyToggle(t *testing.T) {
	h := newHarness(t, true, nil)
	if got := h.rec.LastControls().AutoReplyLabel; got != "Disable auto-reply" {
		t.Fatalf("unexpected label %q", got)
	}
	if err := h.ctrl.Dispatch(Command{Type: CmdAutoReply, On: false}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if h.ctrl.Current().AutoReply || h.rec.LastControls().AutoReplyLabel != "Enable auto-reply" {
		t.Fatalf("auto-reply not disabled")
	}
	h.ctrl.ApplyLocalMove(move(0, 0, 0, 1))
	h.sched.Settle(time.Minute)
	if h.engine().computerCalls != 0 {
		t.Fatalf("computer must not reply when disabled")
	}
}

func TestDispatch(t *testing.T) {
	h := newHarness(t, false, nil)
	if err := h.ctrl.Dispatch(Command{Type: CmdSelect, Row: 0, Col: 0}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := h.ctrl.Dispatch(Command{Type: "select", Row: 0, Col: 2}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(h.engine().played) != 1 {
		t.Fatalf("two selections must commit one move")
	}
	if err := h.ctrl.Dispatch(Command{Type: CmdSelect, Row: -1}); err == nil {
		t.Fatalf("negative cell must be rejected")
	}
	if err := h.ctrl.Dispatch(Command{Type: "fly"}); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if err := h.ctrl.Dispatch(Command{Type: CmdComputerNext}); err != nil {
		t.Fatalf("computer_next: %v", err)
	}
	h.sched.Settle(time.Minute)
	if h.engine().computerCalls != 1 {
		t.Fatalf("computer_next must run one step")
	}
	if err := h.ctrl.Dispatch(Command{Type: CmdRestart}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if h.lc.Generation() != 2 {
		t.Fatalf("restart must start generation 2")
	}
}

func TestEngineOptionsSurviveRestart(t *testing.T) {
	h := newHarness(t, false, nil)
	if err := h.ctrl.SetEngineOption("max_depth", "4"); err != nil {
		t.Fatalf("SetEngineOption: %v", err)
	}
	if err := h.ctrl.SetEngineOption("bogus", "1"); err == nil {
		t.Fatalf("expected rejection")
	}
	if !strings.HasPrefix(h.rec.Display(render.DisplayStats), "Option bogus rejected") {
		t.Fatalf("unexpected message %q", h.rec.Display(render.DisplayStats))
	}
	if err := h.ctrl.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if got := h.engine().options["max_depth"]; got != "4" {
		t.Fatalf("option must be reapplied to the new engine, got %q", got)
	}
	if _, ok := h.engine().options["bogus"]; ok {
		t.Fatalf("rejected option must not be remembered")
	}
}
