package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"

	"github.com/zjrosen/cvrexport/internal/log"
)

// CommandFactoryFunc creates an exec.Cmd. Tests use it to substitute a
// helper binary for the real converter.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// SpawnBuilder provides a fluent API for spawning a child whose standard
// streams are all connected to pipes owned by the returned Handle.
type SpawnBuilder struct {
	ctx            context.Context
	execPath       string
	args           []string
	workDir        string
	env            []string
	commandFactory CommandFactoryFunc
}

// NewSpawnBuilder creates a new SpawnBuilder. Cancelling ctx interrupts
// the child (it is not killed).
func NewSpawnBuilder(ctx context.Context) *SpawnBuilder {
	return &SpawnBuilder{ctx: ctx}
}

// WithExecutable sets the executable path and arguments.
func (b *SpawnBuilder) WithExecutable(path string, args []string) *SpawnBuilder {
	b.execPath = path
	b.args = args
	return b
}

// WithWorkDir sets the working directory for the process.
func (b *SpawnBuilder) WithWorkDir(dir string) *SpawnBuilder {
	b.workDir = dir
	return b
}

// WithEnv appends "KEY=VALUE" variables to os.Environ().
func (b *SpawnBuilder) WithEnv(env []string) *SpawnBuilder {
	b.env = env
	return b
}

// WithCommandFactory sets a custom command factory.
func (b *SpawnBuilder) WithCommandFactory(fn CommandFactoryFunc) *SpawnBuilder {
	b.commandFactory = fn
	return b
}

// Build creates the pipes, starts the child and returns its Handle.
// On error every pipe created so far is closed and no process is left
// behind.
func (b *SpawnBuilder) Build() (*Handle, error) {
	if b.execPath == "" {
		return nil, fmt.Errorf("spawn: %w", ErrNoExecutable)
	}

	var cmd *exec.Cmd
	if b.commandFactory != nil {
		cmd = b.commandFactory(b.ctx, b.execPath, b.args...)
	} else {
		// #nosec G204 -- argv comes from the validated job, not a shell
		cmd = exec.CommandContext(b.ctx, b.execPath, b.args...)
	}
	cmd.Dir = b.workDir
	if len(b.env) > 0 {
		cmd.Env = append(os.Environ(), b.env...)
	}
	interrupted := new(atomic.Bool)
	cmd.Cancel = func() error {
		if cmd.Process == nil || !interrupted.CompareAndSwap(false, true) {
			return nil
		}
		return interrupt(cmd.Process)
	}

	// Track every descriptor so a failure part way closes them all.
	var opened []*os.File
	cleanup := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	pipe := func(name string) (r, w *os.File, err error) {
		r, w, err = os.Pipe()
		if err != nil {
			return nil, nil, fmt.Errorf("spawn: create %s pipe: %w", name, err)
		}
		opened = append(opened, r, w)
		return r, w, nil
	}

	stdinR, stdinW, err := pipe("stdin")
	if err != nil {
		cleanup()
		return nil, err
	}
	stdoutR, stdoutW, err := pipe("stdout")
	if err != nil {
		cleanup()
		return nil, err
	}
	stderrR, stderrW, err := pipe("stderr")
	if err != nil {
		cleanup()
		return nil, err
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	log.Debug(log.CatProc, "Spawning process",
		"execPath", b.execPath, "args", b.args, "workDir", b.workDir)

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("spawn: start %s: %w", b.execPath, err)
	}

	// The child holds its own copies now; keeping ours open would stop
	// the parent from ever seeing end of stream.
	_ = stdinR.Close()
	_ = stdoutW.Close()
	_ = stderrW.Close()

	h := newHandle(cmd, stdinW, stdoutR, stderrR, interrupted)
	h.start()

	log.Info(log.CatProc, "Process started", "pid", h.PID(), "execPath", b.execPath)
	return h, nil
}

// Spawner launches children from a plain argument vector whose first
// element is the executable.
type Spawner struct {
	WorkDir string
	Env     []string
	Factory CommandFactoryFunc
}

// Spawn starts argv[0] with argv[1:] as arguments.
func (s Spawner) Spawn(ctx context.Context, argv []string) (*Handle, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("spawn: %w", ErrNoExecutable)
	}
	return NewSpawnBuilder(ctx).
		WithExecutable(argv[0], argv[1:]).
		WithWorkDir(s.WorkDir).
		WithEnv(s.Env).
		WithCommandFactory(s.Factory).
		Build()
}
