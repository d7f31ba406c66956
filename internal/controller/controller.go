// Package controller is the public face of the streaming core. It owns the
// single live session, spawns the child, wires its pipes into a driver and
// turns the driver's completion into exactly one callback per session.
//
// A Controller is not safe for concurrent use. Every method, and every
// callback it invokes, runs on the host event loop that also runs the
// scheduler's callbacks.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/cvrexport/internal/driver"
	"github.com/zjrosen/cvrexport/internal/log"
	"github.com/zjrosen/cvrexport/internal/process"
	"github.com/zjrosen/cvrexport/internal/scheduler"
	"github.com/zjrosen/cvrexport/internal/stream"
	"github.com/zjrosen/cvrexport/internal/tracing"
)

// Sentinel errors for the controller package.
var (
	// ErrSessionActive is returned by Start while a session is Stepping or Draining.
	ErrSessionActive = errors.New("a session is already active")
	// ErrEmptyArgv is returned by Start when there is nothing to run.
	ErrEmptyArgv = errors.New("argument vector is empty")
)

// Child is a spawned process as seen by the controller.
type Child interface {
	driver.Child
	Interrupt() error
	Stdout() io.Reader
	Stderr() io.Reader
	PID() int
}

// SpawnFunc starts argv[0] with argv[1:] as arguments.
type SpawnFunc func(ctx context.Context, argv []string) (Child, error)

// ProcessSpawner adapts a process.Spawner to a SpawnFunc.
func ProcessSpawner(s process.Spawner) SpawnFunc {
	return func(ctx context.Context, argv []string) (Child, error) {
		h, err := s.Spawn(ctx, argv)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

// Recorder observes session boundaries, e.g. to keep a run history.
type Recorder interface {
	RecordStart(ctx context.Context, s *Session) error
	RecordFinish(ctx context.Context, s *Session, res driver.Result) error
}

// Session is one run of the child from Start to Done.
type Session struct {
	ID        string
	Argv      []string
	StartedAt time.Time
	PID       int

	child Child
	drv   *driver.Driver
	ctx   context.Context
	span  trace.Span
}

// State returns the session's driver state.
func (s *Session) State() driver.State {
	if s.drv == nil {
		return driver.StateIdle
	}
	return s.drv.State()
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogSink sets where streamed stdout goes.
func WithLogSink(s driver.LogSink) Option {
	return func(c *Controller) { c.logSink = s }
}

// WithDiagnosticSink sets where stderr lines go.
func WithDiagnosticSink(s driver.DiagnosticSink) Option {
	return func(c *Controller) { c.diagSink = s }
}

// WithCompletion sets the callback run once per session.
func WithCompletion(fn func(driver.Result)) Option {
	return func(c *Controller) { c.onDone = fn }
}

// WithRecorder attaches a session recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithTracer sets the tracer used for session spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// WithIDGenerator overrides how session IDs are created.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

// WithClock overrides time.Now for the controller and its drivers.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithReaderOptions passes options to every stdout reader.
func WithReaderOptions(opts ...stream.Option) Option {
	return func(c *Controller) { c.readerOpts = opts }
}

// Controller starts, cancels and finishes sessions.
type Controller struct {
	cfg   driver.Config
	spawn SpawnFunc
	sched scheduler.Scheduler

	logSink    driver.LogSink
	diagSink   driver.DiagnosticSink
	onDone     func(driver.Result)
	recorder   Recorder
	tracer     trace.Tracer
	newID      func() string
	now        func() time.Time
	readerOpts []stream.Option

	session *Session
}

// New creates a controller. Driver tuning comes from cfg; turns are
// re-armed through sched.
func New(cfg driver.Config, spawn SpawnFunc, sched scheduler.Scheduler, opts ...Option) *Controller {
	c := &Controller{
		cfg:    cfg,
		spawn:  spawn,
		sched:  sched,
		tracer: noop.NewTracerProvider().Tracer("cvrexport"),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Active reports whether a session is Stepping or Draining.
func (c *Controller) Active() bool {
	return c.session != nil && c.session.State().Active()
}

// State returns the live session's state, or StateIdle when there is none.
func (c *Controller) State() driver.State {
	if c.session == nil {
		return driver.StateIdle
	}
	return c.session.State()
}

// Session returns the live session, or nil.
func (c *Controller) Session() *Session {
	return c.session
}

// Start spawns argv and begins streaming. While another session is
// active it returns ErrSessionActive and leaves that session alone.
//
// Every other failure, including a spawn failure, is returned and also
// reported through the completion callback so the host never waits for a
// session that will not run.
func (c *Controller) Start(ctx context.Context, argv []string) error {
	if c.Active() {
		log.Warn(log.CatCtrl, "Start rejected, session active", "session", c.session.ID)
		return ErrSessionActive
	}

	sess := &Session{
		ID:        c.newID(),
		Argv:      append([]string(nil), argv...),
		StartedAt: c.now(),
		PID:       -1,
	}
	sess.ctx, sess.span = c.tracer.Start(ctx, tracing.SpanSession,
		trace.WithAttributes(
			attribute.String(tracing.AttrSessionID, sess.ID),
			attribute.StringSlice(tracing.AttrArgv, sess.Argv),
		))

	if len(argv) == 0 {
		c.fail(sess, ErrEmptyArgv)
		return ErrEmptyArgv
	}

	child, err := c.spawn(sess.ctx, sess.Argv)
	if err != nil {
		c.fail(sess, err)
		return fmt.Errorf("start session: %w", err)
	}
	sess.child = child
	sess.PID = child.PID()
	sess.span.SetAttributes(attribute.Int(tracing.AttrProcessPID, sess.PID))

	out := stream.NewReader(child.Stdout(), c.readerOpts...)
	diag := stream.CollectLines(child.Stderr())

	opts := []driver.Option{
		driver.WithClock(c.now),
		driver.WithCompletion(func(res driver.Result) { c.finish(sess, res) }),
	}
	if c.logSink != nil {
		opts = append(opts, driver.WithLogSink(c.logSink))
	}
	if c.diagSink != nil {
		opts = append(opts, driver.WithDiagnosticSink(c.diagSink))
	}
	sess.drv = driver.New(c.cfg, child, out, diag, c.sched, opts...)
	c.session = sess

	log.Info(log.CatCtrl, "Session started", "session", sess.ID, "pid", sess.PID, "argv", sess.Argv)
	if c.recorder != nil {
		if err := c.recorder.RecordStart(sess.ctx, sess); err != nil {
			log.ErrorErr(log.CatCtrl, "Record start failed", err, "session", sess.ID)
		}
	}

	// The first turn runs now; a child that already exited finishes here.
	return sess.drv.Start()
}

// Cancel asks the live child to stop early. It only has an effect while
// the session is Stepping and has not been cancelled yet; the interrupt is
// delivered at most once per session. The driver's Draining phase still
// runs when the child exits.
func (c *Controller) Cancel() bool {
	sess := c.session
	if sess == nil || sess.State() != driver.StateStepping {
		log.Debug(log.CatCtrl, "Cancel ignored, nothing stepping")
		return false
	}
	if !sess.drv.NoteCancel() {
		return false
	}

	sess.span.AddEvent(tracing.EventCancel)
	log.Info(log.CatCtrl, "Cancelling session", "session", sess.ID, "pid", sess.PID)
	if err := sess.child.Interrupt(); err != nil {
		// An exited child is picked up by the next turn.
		log.Warn(log.CatCtrl, "Interrupt failed", "session", sess.ID, "error", err)
	}
	return true
}

func (c *Controller) fail(sess *Session, err error) {
	log.ErrorErr(log.CatCtrl, "Session failed to start", err, "session", sess.ID, "argv", sess.Argv)
	if c.recorder != nil {
		if rerr := c.recorder.RecordStart(sess.ctx, sess); rerr != nil {
			log.ErrorErr(log.CatCtrl, "Record start failed", rerr, "session", sess.ID)
		}
	}
	c.finish(sess, driver.Result{ExitCode: -1, SpawnErr: err})
}

func (c *Controller) finish(sess *Session, res driver.Result) {
	if c.session == sess {
		c.session = nil
	}

	span := sess.span
	span.SetAttributes(
		attribute.Int(tracing.AttrExitCode, res.ExitCode),
		attribute.Bool(tracing.AttrCancelled, res.Cancelled),
		attribute.Bool(tracing.AttrKilled, res.Killed),
		attribute.Int(tracing.AttrChars, res.Chars),
		attribute.Int(tracing.AttrTurns, res.Turns),
		attribute.Int(tracing.AttrDiagnostics, len(res.Diagnostics)),
	)
	switch {
	case res.SpawnErr != nil:
		span.RecordError(res.SpawnErr)
		span.SetStatus(codes.Error, "spawn failed")
	case res.ExitCode != 0 && !res.Cancelled:
		span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", res.ExitCode))
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	if c.recorder != nil {
		if err := c.recorder.RecordFinish(context.WithoutCancel(sess.ctx), sess, res); err != nil {
			log.ErrorErr(log.CatCtrl, "Record finish failed", err, "session", sess.ID)
		}
	}

	log.Info(log.CatCtrl, "Session finished", "session", sess.ID, "exitCode", res.ExitCode, "cancelled", res.Cancelled)
	if c.onDone != nil {
		c.onDone(res)
	}
}
