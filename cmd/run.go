package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/cvrexport/internal/controller"
	"github.com/zjrosen/cvrexport/internal/cvr"
	"github.com/zjrosen/cvrexport/internal/driver"
	"github.com/zjrosen/cvrexport/internal/log"
	"github.com/zjrosen/cvrexport/internal/process"
	"github.com/zjrosen/cvrexport/internal/scheduler"
)

// ErrRunFailed is returned when the converter finished unsuccessfully.
var ErrRunFailed = errors.New("conversion failed")

var runCmd = &cobra.Command{
	Use:   "run [folder]",
	Short: "Run the converter without the terminal UI",
	Long: `Run ReadCVRStats over a CVR folder and stream its output to stdout.
Lines the converter writes to stderr are printed to stderr once it exits.

The folder defaults to the one last chosen in the app. Press Ctrl+C once to
ask the converter to stop early.

Examples:
  cvrexport run /data/cvrs
  cvrexport run --test-run /data/cvrs
  cvrexport run -t cvrreport --limit 500 /data/cvrs`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHeadless,
}

var (
	runTestRun bool
	runLimit   int
)

func init() {
	runCmd.Flags().BoolVar(&runTestRun, "test-run", false, "only process test_run_limit records")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "record limit for --test-run (default: test_run_limit)")
	rootCmd.AddCommand(runCmd)
}

func runHeadless(cmd *cobra.Command, args []string) error {
	cleanup, _, err := setupLogging("cvrexport-run")
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	folder := cfg.Folder
	if len(args) == 1 {
		folder = args[0]
	}
	if folder == "" {
		return fmt.Errorf("no folder given and none configured: %w", cvr.ErrNoFolder)
	}
	if abs, err := filepath.Abs(folder); err == nil {
		folder = abs
	}

	fileType, err := cvr.ParseFileType(cfg.FileType)
	if err != nil {
		return err
	}
	exe, err := cvr.ResolveExecutable(cfg.Executable)
	if err != nil {
		return err
	}

	job := cvr.FullRun(exe, folder, fileType)
	if runTestRun || cmd.Flags().Changed("limit") {
		limit := cfg.TestRunLimit
		if runLimit > 0 {
			limit = runLimit
		}
		job = cvr.TestRun(exe, folder, fileType, limit)
	}

	svc, err := openServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	opts := headlessOptions{
		Job:    job,
		Driver: cfg.DriverConfig(),
		Spawn:  controller.ProcessSpawner(process.Spawner{}),
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}
	if rec := svc.recorder(); rec != nil {
		opts.Recorder = rec
	}
	if svc.tracing.Enabled() {
		opts.Tracer = svc.tracing.Tracer()
	}

	res, err := executeHeadless(cmd.Context(), opts, interruptSignals())
	if err != nil {
		return err
	}
	return summarize(cmd.ErrOrStderr(), res)
}

// headlessOptions configures one converter run outside the TUI.
type headlessOptions struct {
	Job      cvr.Job
	Driver   driver.Config
	Spawn    controller.SpawnFunc
	Recorder controller.Recorder
	Tracer   trace.Tracer
	Stdout   io.Writer
	Stderr   io.Writer
}

// writerSink streams the log to one writer and diagnostics to another.
type writerSink struct {
	out  io.Writer
	diag io.Writer
}

func (s writerSink) AppendText(text string) { _, _ = io.WriteString(s.out, text) }
func (s writerSink) ScrollToEnd()           {}
func (s writerSink) Diagnostic(line string) { _, _ = fmt.Fprintln(s.diag, line) }

func interruptSignals() <-chan os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	return sigs
}

// executeHeadless runs the job on a scheduler.Loop and returns its result.
// Each value received on interrupts cancels the session from the loop
// goroutine.
func executeHeadless(ctx context.Context, o headlessOptions, interrupts <-chan os.Signal) (driver.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := o.Job.Validate(); err != nil {
		return driver.Result{}, err
	}

	loop := scheduler.NewLoop(0)
	sink := writerSink{out: o.Stdout, diag: o.Stderr}

	var (
		res  driver.Result
		done bool
	)
	ctrlOpts := []controller.Option{
		controller.WithLogSink(sink),
		controller.WithDiagnosticSink(sink),
		controller.WithCompletion(func(r driver.Result) {
			res, done = r, true
			loop.Stop()
		}),
	}
	if o.Recorder != nil {
		ctrlOpts = append(ctrlOpts, controller.WithRecorder(o.Recorder))
	}
	if o.Tracer != nil {
		ctrlOpts = append(ctrlOpts, controller.WithTracer(o.Tracer))
	}
	ctrl := controller.New(o.Driver, o.Spawn, loop, ctrlOpts...)

	stopForwarding := make(chan struct{})
	defer close(stopForwarding)
	go func() {
		for {
			select {
			case <-stopForwarding:
				return
			case _, ok := <-interrupts:
				if !ok {
					return
				}
				log.Info(log.CatCtrl, "Interrupt received, cancelling")
				loop.Post(func() { ctrl.Cancel() })
			}
		}
	}()

	var startErr error
	loop.Post(func() {
		startErr = ctrl.Start(ctx, o.Job.Argv())
	})
	if err := loop.Run(ctx); err != nil && !done {
		return driver.Result{}, fmt.Errorf("run interrupted: %w", err)
	}
	if startErr != nil && res.SpawnErr == nil {
		return res, startErr
	}
	return res, nil
}

// summarize reports how the run ended and turns failure into an error.
func summarize(w io.Writer, res driver.Result) error {
	switch {
	case res.SpawnErr != nil:
		return fmt.Errorf("start converter: %w", res.SpawnErr)
	case res.Killed:
		fmt.Fprintf(w, "Converter killed after cancel (%d chars)\n", res.Chars)
	case res.Cancelled:
		fmt.Fprintf(w, "Converter cancelled, exit %d (%d chars)\n", res.ExitCode, res.Chars)
	default:
		fmt.Fprintf(w, "Converter finished, exit %d (%d chars, %s)\n", res.ExitCode, res.Chars, res.Duration)
	}
	if res.ReadErr != nil {
		fmt.Fprintf(w, "warning: output read error: %v\n", res.ReadErr)
	}
	if res.Failed() {
		return fmt.Errorf("%w: exit code %d, %d diagnostic line(s)", ErrRunFailed, res.ExitCode, len(res.Diagnostics))
	}
	return nil
}
