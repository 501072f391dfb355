package loop

import (
	"context"
	"sync"
	"time"
)

// Scheduler is the cooperative execution queue shared by every session component.
// Tasks posted to it run one at a time, each to completion.
type Scheduler interface {
	// Post enqueues task to run after the tasks already queued.
	Post(task func())
	// After enqueues task once d has elapsed.
	After(d time.Duration, task func())
	// Go runs blocking work off the queue. Work must hand results back with Post.
	Go(work func())
}

// Loop is a Scheduler backed by a single goroutine (see Run).
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	timers map[*time.Timer]struct{}
	wake   chan struct{}
	closed bool

	wg sync.WaitGroup
}

func New() *Loop {
	return &Loop{
		timers: make(map[*time.Timer]struct{}),
		wake:   make(chan struct{}, 1),
	}
}

func (l *Loop) Post(task func()) {
	if task == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) After(d time.Duration, task func()) {
	if task == nil {
		return
	}
	if d <= 0 {
		l.Post(task)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		l.Post(task)
	})
	l.timers[t] = struct{}{}
}

func (l *Loop) Go(work func()) {
	if work == nil {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		work()
	}()
}

// Run executes queued tasks until ctx is done. Only one Run may be active.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for {
			task := l.pop()
			if task == nil {
				break
			}
			task()
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Close stops timers, drops queued tasks and waits for background work started by Go.
func (l *Loop) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	for t := range l.timers {
		t.Stop()
	}
	l.timers = make(map[*time.Timer]struct{})
	l.queue = nil
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task
}
