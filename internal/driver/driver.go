// Package driver implements the cooperative step function that streams a
// child's output into the host's log without ever blocking the host event
// loop.
//
// A Driver moves through Idle → Stepping → Draining → Done. Each Stepping
// turn polls the child, pulls a bounded amount of already-arrived output,
// and re-arms itself through the injected scheduler. Re-arming is the only
// suspension point. Once the child has exited the driver drains the
// residual output, surfaces stderr lines, releases the child, and invokes
// the completion callback exactly once.
package driver

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/zjrosen/cvrexport/internal/log"
	"github.com/zjrosen/cvrexport/internal/scheduler"
)

// ErrNotIdle is returned by Start on a driver that was already started.
var ErrNotIdle = errors.New("driver already started")

// State is the driver's lifecycle state.
type State int

const (
	// StateIdle means Start has not been called.
	StateIdle State = iota
	// StateStepping means turns are being scheduled while the child runs.
	StateStepping
	// StateDraining means the child exited and final output is being flushed.
	StateDraining
	// StateDone is terminal; the completion callback has run.
	StateDone
)

// String returns a human-readable string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStepping:
		return "stepping"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Active reports whether a driver in this state still owns its child.
func (s State) Active() bool {
	return s == StateStepping || s == StateDraining
}

// LogSink receives streamed stdout text.
type LogSink interface {
	AppendText(text string)
	ScrollToEnd()
}

// DiagnosticSink receives the child's stderr lines once it has exited.
type DiagnosticSink interface {
	Diagnostic(line string)
}

// Child is the part of a process handle the driver needs.
type Child interface {
	Poll() (code int, exited bool)
	Kill() error
	Release() error
}

// Output is a non-blocking source of the child's stdout. DrainRemaining
// is the exception: it blocks for up to timeout so nothing written before
// exit is lost.
type Output interface {
	PullChunk(maxChars int) (chunk string, exhausted bool)
	DrainRemaining(maxChars int, timeout time.Duration, emit func(string)) (drained int, complete bool)
	Err() error
	Stop()
}

// Diagnostics collects the child's stderr in the background.
type Diagnostics interface {
	Wait(timeout time.Duration) bool
	Lines() []string
}

// Result describes how a session ended. It is passed to the completion
// callback.
type Result struct {
	ExitCode    int
	Cancelled   bool
	Killed      bool
	Diagnostics []string
	Chars       int
	Turns       int
	Duration    time.Duration
	// ReadErr is a stdout read anomaly, distinct from end of stream.
	ReadErr error
	// SpawnErr is set when the child could not be started at all.
	SpawnErr error
}

// Failed reports whether the run did not complete cleanly.
func (r Result) Failed() bool {
	return r.SpawnErr != nil || r.ExitCode != 0 || len(r.Diagnostics) > 0
}

// Config tunes the driver.
type Config struct {
	// StepInterval is the delay between Stepping turns.
	StepInterval time.Duration
	// TurnBudget is the most characters a single turn may consume.
	TurnBudget int
	// ChunkSize is the most characters requested by a single pull.
	ChunkSize int
	// DrainTimeout bounds how long Draining waits for the pipes to close.
	DrainTimeout time.Duration
	// KillAfter, when positive, kills a child that is still running this
	// long after a cancel was noted. Zero keeps waiting indefinitely.
	KillAfter time.Duration
}

// DefaultConfig returns the default driver tuning.
func DefaultConfig() Config {
	return Config{
		StepInterval: 50 * time.Millisecond,
		TurnBudget:   250,
		ChunkSize:    100,
		DrainTimeout: 2 * time.Second,
	}
}

// Validate checks the tuning values.
func (c Config) Validate() error {
	if c.TurnBudget <= 0 {
		return fmt.Errorf("turn budget must be positive, got %d", c.TurnBudget)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.StepInterval < 0 {
		return fmt.Errorf("step interval must not be negative, got %s", c.StepInterval)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("drain timeout must not be negative, got %s", c.DrainTimeout)
	}
	if c.KillAfter < 0 {
		return fmt.Errorf("kill after must not be negative, got %s", c.KillAfter)
	}
	return nil
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogSink sets where stdout text goes.
func WithLogSink(s LogSink) Option {
	return func(d *Driver) { d.logSink = s }
}

// WithDiagnosticSink sets where stderr lines go.
func WithDiagnosticSink(s DiagnosticSink) Option {
	return func(d *Driver) { d.diagSink = s }
}

// WithCompletion sets the callback invoked once the driver is Done.
func WithCompletion(fn func(Result)) Option {
	return func(d *Driver) { d.onDone = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// Driver is the cooperative step function for one session. All methods
// must be called on the host event loop.
type Driver struct {
	cfg   Config
	child Child
	out   Output
	diag  Diagnostics
	sched scheduler.Scheduler

	logSink  LogSink
	diagSink DiagnosticSink
	onDone   func(Result)
	now      func() time.Time

	state       State
	startedAt   time.Time
	cancelled   bool
	cancelledAt time.Time
	killed      bool
	chars       int
	turns       int
	completed   bool
}

// New creates an idle driver for an already spawned child.
func New(cfg Config, child Child, out Output, diag Diagnostics, sched scheduler.Scheduler, opts ...Option) *Driver {
	d := &Driver{
		cfg:      cfg,
		child:    child,
		out:      out,
		diag:     diag,
		sched:    sched,
		logSink:  nopSink{},
		diagSink: nopSink{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return d.state
}

// Chars returns how many stdout characters have reached the log sink.
func (d *Driver) Chars() int {
	return d.chars
}

// Start moves Idle → Stepping and runs the first turn immediately.
func (d *Driver) Start() error {
	if d.state != StateIdle {
		return ErrNotIdle
	}
	d.startedAt = d.now()
	d.state = StateStepping
	log.Debug(log.CatDriver, "Driver started", "turnBudget", d.cfg.TurnBudget, "chunkSize", d.cfg.ChunkSize)
	d.Step()
	return nil
}

// NoteCancel records that an interrupt was delivered. It only matters
// while Stepping, where it arms the optional kill-after fallback.
func (d *Driver) NoteCancel() bool {
	if d.state != StateStepping || d.cancelled {
		return false
	}
	d.cancelled = true
	d.cancelledAt = d.now()
	return true
}

// Step runs one turn. Calls that arrive in any state other than Stepping
// are stale re-arms and are ignored.
func (d *Driver) Step() {
	if d.state != StateStepping {
		log.Debug(log.CatDriver, "Ignoring stale step", "state", d.state)
		return
	}
	d.turns++

	if code, exited := d.child.Poll(); exited {
		d.drain(code)
		return
	}

	d.maybeKill()
	d.pullTurn()

	d.sched.After(d.cfg.StepInterval, d.Step)
}

// pullTurn consumes at most TurnBudget characters of already-arrived output.
func (d *Driver) pullTurn() {
	remaining := d.cfg.TurnBudget
	for remaining > 0 {
		chunk, exhausted := d.out.PullChunk(min(d.cfg.ChunkSize, remaining))
		if chunk != "" {
			remaining -= utf8.RuneCountInString(chunk)
			d.emit(chunk)
		}
		if exhausted {
			return
		}
	}
}

func (d *Driver) emit(chunk string) {
	d.chars += utf8.RuneCountInString(chunk)
	d.logSink.AppendText(chunk)
	d.logSink.ScrollToEnd()
}

func (d *Driver) maybeKill() {
	if !d.cancelled || d.killed || d.cfg.KillAfter <= 0 {
		return
	}
	if d.now().Sub(d.cancelledAt) < d.cfg.KillAfter {
		return
	}
	d.killed = true
	log.Warn(log.CatDriver, "Child ignored interrupt, killing", "after", d.cfg.KillAfter)
	if err := d.child.Kill(); err != nil {
		log.ErrorErr(log.CatDriver, "Kill failed", err)
	}
}

// drain flushes everything the child left behind and finishes the session.
func (d *Driver) drain(code int) {
	d.state = StateDraining
	log.Debug(log.CatDriver, "Draining", "exitCode", code, "turns", d.turns)

	if _, complete := d.out.DrainRemaining(d.cfg.ChunkSize, d.cfg.DrainTimeout, d.emit); !complete {
		// Usually a grandchild still holding the pipe open.
		log.Warn(log.CatDriver, "stdout still open after exit", "timeout", d.cfg.DrainTimeout)
	}

	if !d.diag.Wait(d.cfg.DrainTimeout) {
		log.Warn(log.CatDriver, "stderr still open after exit", "timeout", d.cfg.DrainTimeout)
	}
	lines := d.diag.Lines()
	for _, line := range lines {
		d.diagSink.Diagnostic(line)
	}

	if err := d.child.Release(); err != nil {
		log.ErrorErr(log.CatDriver, "Release failed", err)
	}
	d.out.Stop()

	d.finish(Result{
		ExitCode:    code,
		Cancelled:   d.cancelled,
		Killed:      d.killed,
		Diagnostics: lines,
		Chars:       d.chars,
		Turns:       d.turns,
		Duration:    d.now().Sub(d.startedAt),
		ReadErr:     d.out.Err(),
	})
}

func (d *Driver) finish(res Result) {
	d.state = StateDone
	if d.completed {
		return
	}
	d.completed = true
	log.Info(log.CatDriver, "Driver done",
		"exitCode", res.ExitCode, "cancelled", res.Cancelled, "killed", res.Killed,
		"chars", res.Chars, "turns", res.Turns, "diagnostics", len(res.Diagnostics))
	if d.onDone != nil {
		d.onDone(res)
	}
}

type nopSink struct{}

func (nopSink) AppendText(string) {}
func (nopSink) ScrollToEnd()      {}
func (nopSink) Diagnostic(string) {}
