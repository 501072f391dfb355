package uci

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand(nil); got != "position startpos\n" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := buildPositionCommand([]string{"e2e4", "e7e5"}); got != "position startpos moves e2e4 e7e5\n" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestBuildGoCommand(t *testing.T) {
	got, err := buildGoCommand(Limits{Depth: 6, MoveTimeMillis: 5000})
	if err != nil {
		t.Fatalf("buildGoCommand: %v", err)
	}
	if got != "go depth 6 movetime 5000\n" {
		t.Fatalf("unexpected: %q", got)
	}
	if _, err := buildGoCommand(Limits{}); err == nil {
		t.Fatalf("expected error without limits")
	}
}

func TestComputeSearchTimeout(t *testing.T) {
	if got := computeSearchTimeout(Limits{MoveTimeMillis: 1000}); got != 3*time.Second {
		t.Fatalf("movetime: got %v", got)
	}
	if got := computeSearchTimeout(Limits{Depth: 2}); got != 6*time.Second {
		t.Fatalf("shallow depth floor: got %v", got)
	}
	if got := computeSearchTimeout(Limits{Depth: 200}); got != 20*time.Second {
		t.Fatalf("deep depth cap: got %v", got)
	}
}

func TestParseBestMove(t *testing.T) {
	cases := []struct {
		line string
		move string
		ok   bool
	}{
		{"bestmove e2e4 ponder e7e5", "e2e4", true},
		{"bestmove a7a8q", "a7a8q", true},
		{"bestmove", "", true},
		{"bestmoves e2e4", "", false},
		{"info depth 3 score cp 20 pv e2e4", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		mv, ok := parseBestMove(c.line)
		if mv != c.move || ok != c.ok {
			t.Fatalf("%q: got (%q,%v)", c.line, mv, ok)
		}
	}
}

func TestOptionCommandsDefaults(t *testing.T) {
	cmds := optionCommands(Options{}.withDefaults())
	joined := strings.Join(cmds, "")
	for _, want := range []string{"Threads value 1", "Hash value 16", "Skill Level value 20"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %q", want, joined)
		}
	}
}

func TestNewSessionRequiresPath(t *testing.T) {
	if _, err := NewSession(context.Background(), " ", Options{}, nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestAwaitTokenSkipsNoise(t *testing.T) {
	lines := make(chan string, 4)
	lines <- "id name Fake 1"
	lines <- "uciokay"
	lines <- "uciok"
	s := &Session{lines: lines}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.awaitToken(ctx, "uciok"); err != nil {
		t.Fatalf("awaitToken: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected all lines consumed, %d left", len(lines))
	}
}

func TestReadLineAfterExit(t *testing.T) {
	lines := make(chan string)
	close(lines)
	s := &Session{lines: lines}
	if _, err := s.readLine(context.Background()); !errors.Is(err, ErrEngineExited) {
		t.Fatalf("expected ErrEngineExited, got %v", err)
	}
}

func TestReadLineHonoursContext(t *testing.T) {
	s := &Session{lines: make(chan string)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.readLine(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
