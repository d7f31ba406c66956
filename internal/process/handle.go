// Package process owns the external converter's OS process: spawning it
// with piped standard streams, polling it without blocking, delivering a
// cooperative interrupt, and releasing its pipes exactly once.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zjrosen/cvrexport/internal/log"
)

// Sentinel errors for the process package.
var (
	// ErrNotRunning is returned when signalling a process that has exited.
	ErrNotRunning = errors.New("process not running")
	// ErrNoExecutable is returned when the argument vector is empty.
	ErrNoExecutable = errors.New("executable path is required")
)

// Handle is a spawned child process together with the parent's ends of its
// stdin, stdout and stderr pipes.
//
// Poll, Interrupt, Kill and Release are safe to call from any goroutine;
// a background goroutine reaps the child so Poll never blocks.
type Handle struct {
	cmd *exec.Cmd

	stdin  *os.File
	stdout *os.File
	stderr *os.File

	startedAt   time.Time
	done        chan struct{}
	status      atomic.Int32
	exitCode    atomic.Int32
	interrupted *atomic.Bool // shared with the command's context Cancel

	mu      sync.RWMutex
	waitErr error

	releaseOnce sync.Once
	releaseErr  error
}

func newHandle(cmd *exec.Cmd, stdin, stdout, stderr *os.File, interrupted *atomic.Bool) *Handle {
	if interrupted == nil {
		interrupted = new(atomic.Bool)
	}
	h := &Handle{
		cmd:         cmd,
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		done:        make(chan struct{}),
		interrupted: interrupted,
	}
	h.status.Store(int32(StatusPending))
	h.exitCode.Store(-1) // -1 until the child exits
	return h
}

// start launches the wait goroutine once cmd.Start succeeded.
func (h *Handle) start() {
	h.startedAt = time.Now()
	h.status.Store(int32(StatusRunning))
	go h.wait()
}

func (h *Handle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.waitErr = err
	h.mu.Unlock()

	code := 0
	status := StatusExited
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
		if wasSignaled(h.cmd.ProcessState) {
			status = StatusSignaled
		}
	} else if err != nil {
		code = -1
	}

	h.exitCode.Store(int32(code))
	h.status.Store(int32(status))
	close(h.done)

	log.Debug(log.CatProc, "Process exited",
		"pid", h.PID(), "code", code, "status", status, "runtime", h.Runtime())
}

// Poll reports whether the child has exited and, if so, its exit code.
// It never blocks. A child killed by a signal reports code -1.
func (h *Handle) Poll() (code int, exited bool) {
	select {
	case <-h.done:
		return int(h.exitCode.Load()), true
	default:
		return -1, false
	}
}

// Status returns the current process status.
func (h *Handle) Status() Status {
	return Status(h.status.Load())
}

// Done returns a channel that is closed when the child exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// WaitErr returns the error reported by exec.Cmd.Wait, nil before exit.
func (h *Handle) WaitErr() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.waitErr
}

// PID returns the OS process ID, or -1 if not started.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// Runtime returns how long the child has been (or was) running.
func (h *Handle) Runtime() time.Duration {
	if h.startedAt.IsZero() {
		return 0
	}
	return time.Since(h.startedAt)
}

// Stdout returns the parent's read end of the child's stdout.
func (h *Handle) Stdout() io.Reader {
	return h.stdout
}

// Stderr returns the parent's read end of the child's stderr.
func (h *Handle) Stderr() io.Reader {
	return h.stderr
}

// Stdin returns the parent's write end of the child's stdin.
func (h *Handle) Stdin() io.Writer {
	return h.stdin
}

// Interrupt asks the child to stop early with SIGINT and lets it flush and
// exit by itself; it does not wait. Windows has no per-process console
// interrupt, so there Interrupt force-kills the child instead.
//
// A child is interrupted at most once, whether by Interrupt or by
// cancelling the context it was spawned under; later calls return nil.
func (h *Handle) Interrupt() error {
	if h.Status() != StatusRunning || h.cmd.Process == nil {
		return ErrNotRunning
	}
	if !h.interrupted.CompareAndSwap(false, true) {
		log.Debug(log.CatProc, "Process already interrupted", "pid", h.PID())
		return nil
	}
	log.Info(log.CatProc, "Interrupting process", "pid", h.PID())
	if err := interrupt(h.cmd.Process); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return ErrNotRunning
		}
		return fmt.Errorf("interrupt pid %d: %w", h.PID(), err)
	}
	return nil
}

// Kill forcefully terminates the child.
func (h *Handle) Kill() error {
	if h.Status() != StatusRunning || h.cmd.Process == nil {
		return ErrNotRunning
	}
	log.Warn(log.CatProc, "Killing process", "pid", h.PID())
	if err := h.cmd.Process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return ErrNotRunning
		}
		return fmt.Errorf("kill pid %d: %w", h.PID(), err)
	}
	return nil
}

// Release closes the parent's pipe ends. Only the first call does any
// work; later calls return the same result. It does not stop the child.
func (h *Handle) Release() error {
	h.releaseOnce.Do(func() {
		var errs []error
		for _, f := range []*os.File{h.stdin, h.stdout, h.stderr} {
			if f == nil {
				continue
			}
			if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, fmt.Errorf("close %s: %w", f.Name(), err))
			}
		}
		h.releaseErr = errors.Join(errs...)
		log.Debug(log.CatProc, "Released process pipes", "pid", h.PID(), "error", h.releaseErr)
	})
	return h.releaseErr
}
