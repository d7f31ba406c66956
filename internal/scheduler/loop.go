package scheduler

import (
	"context"
	"sync"
	"time"
)

// Loop is a minimal single-goroutine event loop for hosts without a UI
// toolkit. Callbacks posted directly or through After are executed one at
// a time by Run.
type Loop struct {
	queue    chan func()
	quit     chan struct{}
	stopOnce sync.Once
}

var _ Scheduler = (*Loop)(nil)

// NewLoop creates a loop with room for backlog queued callbacks.
func NewLoop(backlog int) *Loop {
	if backlog <= 0 {
		backlog = 16
	}
	return &Loop{
		queue: make(chan func(), backlog),
		quit:  make(chan struct{}),
	}
}

// After implements Scheduler. Callbacks due after Stop are dropped.
func (l *Loop) After(delay time.Duration, fn func()) {
	time.AfterFunc(delay, func() {
		l.Post(fn)
	})
}

// Post queues fn to run on the loop goroutine as soon as possible.
// It may be called from any goroutine.
func (l *Loop) Post(fn func()) {
	select {
	case l.queue <- fn:
	case <-l.quit:
	}
}

// Run executes callbacks until Stop is called or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.quit:
			return nil
		case fn := <-l.queue:
			fn()
		}
	}
}

// Stop ends Run. Safe to call from a callback and more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}
