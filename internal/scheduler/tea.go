package scheduler

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickMsg is delivered to the Bubble Tea Update loop when a scheduled
// callback is due. Pass it to Tea.Handle.
type TickMsg struct {
	ID uint64
}

// Tea schedules callbacks through tea.Tick. After only records the
// callback and queues a tick command; the callback itself runs inside
// Update when Handle sees the matching TickMsg.
//
// Tea is not safe for concurrent use; it belongs to the Update goroutine.
type Tea struct {
	nextID  uint64
	pending map[uint64]func()
	queued  []tea.Cmd
}

var _ Scheduler = (*Tea)(nil)

// NewTea creates an empty Bubble Tea scheduler.
func NewTea() *Tea {
	return &Tea{pending: make(map[uint64]func())}
}

// After implements Scheduler.
func (t *Tea) After(delay time.Duration, fn func()) {
	t.nextID++
	id := t.nextID
	t.pending[id] = fn
	t.queued = append(t.queued, tea.Tick(delay, func(time.Time) tea.Msg {
		return TickMsg{ID: id}
	}))
}

// Cmd returns the tick commands queued since the last call, batched.
// Update must include it in its returned command or the ticks never fire.
func (t *Tea) Cmd() tea.Cmd {
	if len(t.queued) == 0 {
		return nil
	}
	cmds := t.queued
	t.queued = nil
	return tea.Batch(cmds...)
}

// Handle runs the callback for msg if it is one of ours.
// It reports whether msg was a TickMsg.
func (t *Tea) Handle(msg tea.Msg) bool {
	tick, ok := msg.(TickMsg)
	if !ok {
		return false
	}
	fn, found := t.pending[tick.ID]
	if !found {
		return true
	}
	delete(t.pending, tick.ID)
	fn()
	return true
}

// Pending returns the number of callbacks waiting for their tick.
func (t *Tea) Pending() int {
	return len(t.pending)
}
