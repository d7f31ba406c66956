// Package history keeps a SQLite record of every converter run.
package history

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Run status values reported by Run.Status.
const (
	StatusRunning     = "running"
	StatusOK          = "ok"
	StatusFailed      = "failed"
	StatusCancelled   = "cancelled"
	StatusKilled      = "killed"
	StatusSpawnFailed = "spawn-failed"
)

// Run is one converter invocation.
type Run struct {
	ID         string     `json:"id"`
	Argv       []string   `json:"argv"`
	Folder     string     `json:"folder"`
	FileType   string     `json:"file_type"`
	Limit      int        `json:"limit"`
	PID        int        `json:"pid,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Cancelled  bool       `json:"cancelled"`
	Killed     bool       `json:"killed"`
	Chars      int        `json:"chars"`
	Turns      int        `json:"turns"`
	// Diagnostics are the child's stderr lines.
	Diagnostics []string `json:"diagnostics,omitempty"`
	// Error is set when the run could not start.
	Error string `json:"error,omitempty"`
}

// Outcome is what is known about a run once it ends.
type Outcome struct {
	FinishedAt  time.Time
	ExitCode    int
	Cancelled   bool
	Killed      bool
	Chars       int
	Turns       int
	Diagnostics []string
	Error       string
}

// Status summarises how the run ended.
func (r Run) Status() string {
	switch {
	case r.FinishedAt == nil:
		return StatusRunning
	case r.Error != "":
		return StatusSpawnFailed
	case r.Killed:
		return StatusKilled
	case r.Cancelled:
		return StatusCancelled
	case r.ExitCode != nil && *r.ExitCode == 0 && len(r.Diagnostics) == 0:
		return StatusOK
	default:
		return StatusFailed
	}
}

// Duration returns how long the run took, or zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsTestRun reports whether the run was record limited.
func (r Run) IsTestRun() bool {
	return r.Limit >= 0
}

// ListOptions filters List.
type ListOptions struct {
	// Folder limits results to one CVR folder.
	Folder string
	// Limit caps the result count; zero means DefaultListLimit.
	Limit int
}

// DefaultListLimit is the number of runs List returns by default.
const DefaultListLimit = 50

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
