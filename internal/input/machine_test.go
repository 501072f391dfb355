package input

import (
	"testing"

	"github.com/park285/cheese-wargame/internal/domain"
)

func TestSelectTwiceYieldsMove(t *testing.T) {
	cases := []struct{ from, to domain.Coordinate }{
		{domain.Coordinate{Row: 0, Col: 0}, domain.Coordinate{Row: 0, Col: 1}},
		{domain.Coordinate{Row: 4, Col: 2}, domain.Coordinate{Row: 1, Col: 3}},
		{domain.Coordinate{Row: 7, Col: 7}, domain.Coordinate{Row: 0, Col: 0}},
	}
	for _, tc := range cases {
		m := New(nil)
		if _, out := m.Select(tc.from); out != Started {
			t.Fatalf("first select: expected Started, got %v", out)
		}
		if m.State() != AwaitingSecond {
			t.Fatalf("expected AwaitingSecond, got %v", m.State())
		}
		mv, out := m.Select(tc.to)
		if out != Completed {
			t.Fatalf("second select: expected Completed, got %v", out)
		}
		if mv.From != tc.from || mv.To != tc.to {
			t.Fatalf("unexpected move %v for %v->%v", mv, tc.from, tc.to)
		}
		if m.State() != Idle {
			t.Fatalf("expected Idle after move, got %v", m.State())
		}
	}
}

func TestSameCellIsSelfDestruct(t *testing.T) {
	m := New(nil)
	c := domain.Coordinate{Row: 2, Col: 2}
	m.Select(c)
	mv, out := m.Select(c)
	if out != Completed || !mv.SelfDestruct() {
		t.Fatalf("expected self-destruct move, got %v out=%v", mv, out)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	m := New(nil)
	m.Select(domain.Coordinate{Row: 1, Col: 1})
	if !m.Cancel() {
		t.Fatalf("first cancel should clear the pending cell")
	}
	for i := 0; i < 3; i++ {
		if m.Cancel() {
			t.Fatalf("cancel #%d on Idle reported a change", i+2)
		}
		if m.State() != Idle {
			t.Fatalf("expected Idle, got %v", m.State())
		}
	}
	if _, ok := m.Pending(); ok {
		t.Fatalf("pending cell survived cancel")
	}
	// next selection starts a fresh move
	if _, out := m.Select(domain.Coordinate{Row: 3, Col: 3}); out != Started {
		t.Fatalf("expected Started after cancel, got %v", out)
	}
}

func TestSelectRejectedWhenGameOver(t *testing.T) {
	over := false
	m := New(func() bool { return over })
	m.Select(domain.Coordinate{Row: 0, Col: 0})
	over = true
	if _, out := m.Select(domain.Coordinate{Row: 0, Col: 1}); out != Rejected {
		t.Fatalf("expected Rejected, got %v", out)
	}
	from, ok := m.Pending()
	if !ok || from != (domain.Coordinate{Row: 0, Col: 0}) {
		t.Fatalf("rejected select must not change state, pending=%v ok=%v", from, ok)
	}
}
