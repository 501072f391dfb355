package loop

import (
	"sort"
	"time"
)

// Manual is a deterministic Scheduler driven by the caller with virtual time.
// Go runs work inline, so a network fake answers before the continuation is queued.
// Not safe for concurrent use.
type Manual struct {
	now    time.Duration
	seq    int
	queue  []func()
	timers []manualTimer
	ran    int
}

type manualTimer struct {
	at   time.Duration
	seq  int
	task func()
}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) Post(task func()) {
	if task != nil {
		m.queue = append(m.queue, task)
	}
}

func (m *Manual) After(d time.Duration, task func()) {
	if task == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.seq++
	m.timers = append(m.timers, manualTimer{at: m.now + d, seq: m.seq, task: task})
}

func (m *Manual) Go(work func()) {
	if work != nil {
		work()
	}
}

// RunPending runs queued tasks, including ones they post, until the queue is empty.
// It returns the number of tasks executed.
func (m *Manual) RunPending() int {
	n := 0
	for len(m.queue) > 0 {
		task := m.queue[0]
		m.queue = m.queue[1:]
		task()
		n++
	}
	m.ran += n
	return n
}

// Step runs exactly one queued task. It reports false if the queue was empty.
func (m *Manual) Step() bool {
	if len(m.queue) == 0 {
		return false
	}
	task := m.queue[0]
	m.queue = m.queue[1:]
	task()
	m.ran++
	return true
}

// Advance moves virtual time forward by d, firing due timers in order and
// draining the queue after each one.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	m.RunPending()
	for {
		idx := m.nextDue(target)
		if idx < 0 {
			break
		}
		t := m.timers[idx]
		m.timers = append(m.timers[:idx], m.timers[idx+1:]...)
		if t.at > m.now {
			m.now = t.at
		}
		m.queue = append(m.queue, t.task)
		m.RunPending()
	}
	m.now = target
}

// Settle advances until no timers remain or limit of virtual time is spent.
func (m *Manual) Settle(limit time.Duration) {
	end := m.now + limit
	m.RunPending()
	for len(m.timers) > 0 && m.now < end {
		sort.Slice(m.timers, func(i, j int) bool { return m.less(m.timers[i], m.timers[j]) })
		next := m.timers[0].at
		if next > end {
			break
		}
		m.Advance(next - m.now)
	}
}

func (m *Manual) Now() time.Duration { return m.now }
func (m *Manual) Pending() int       { return len(m.queue) }
func (m *Manual) Timers() int        { return len(m.timers) }
func (m *Manual) Ran() int           { return m.ran }

func (m *Manual) nextDue(target time.Duration) int {
	idx := -1
	for i, t := range m.timers {
		if t.at > target {
			continue
		}
		if idx < 0 || m.less(t, m.timers[idx]) {
			idx = i
		}
	}
	return idx
}

func (m *Manual) less(a, b manualTimer) bool {
	if a.at != b.at {
		return a.at < b.at
	}
	return a.seq < b.seq
}
