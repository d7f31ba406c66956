package scheduler

import "time"

// Manual is a deterministic Scheduler for tests. Nothing runs until the
// test calls RunNext or RunUntilIdle, which execute callbacks in the order
// they were scheduled on the calling goroutine.
type Manual struct {
	queue  []manualEntry
	delays []time.Duration
}

type manualEntry struct {
	delay time.Duration
	fn    func()
}

var _ Scheduler = (*Manual)(nil)

// NewManual creates an empty manual scheduler.
func NewManual() *Manual {
	return &Manual{}
}

// After implements Scheduler.
func (m *Manual) After(delay time.Duration, fn func()) {
	m.queue = append(m.queue, manualEntry{delay: delay, fn: fn})
	m.delays = append(m.delays, delay)
}

// Pending returns how many callbacks are waiting.
func (m *Manual) Pending() int {
	return len(m.queue)
}

// RunNext runs the oldest pending callback. It reports false if none was
// pending.
func (m *Manual) RunNext() bool {
	if len(m.queue) == 0 {
		return false
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	next.fn()
	return true
}

// RunUntilIdle runs callbacks, including ones scheduled while running,
// until none remain or limit callbacks have run. It returns the count run.
func (m *Manual) RunUntilIdle(limit int) int {
	ran := 0
	for ran < limit && m.RunNext() {
		ran++
	}
	return ran
}

// Delays returns every delay passed to After, in order.
func (m *Manual) Delays() []time.Duration {
	out := make([]time.Duration, len(m.delays))
	copy(out, m.delays)
	return out
}
