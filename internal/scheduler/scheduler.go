// Package scheduler provides the delayed-callback facility that the
// cooperative driver re-arms itself with.
//
// Every implementation runs callbacks on the host's single event-loop
// goroutine, never on a timer goroutine, so callbacks may touch host state
// without locking.
package scheduler

import "time"

// Scheduler runs fn once, on the host event loop, after delay.
type Scheduler interface {
	After(delay time.Duration, fn func())
}

// Func adapts a plain function to Scheduler.
type Func func(delay time.Duration, fn func())

// After implements Scheduler.
func (f Func) After(delay time.Duration, fn func()) {
	f(delay, fn)
}
