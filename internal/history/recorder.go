package history

import (
	"context"
	"time"

	"github.com/zjrosen/cvrexport/internal/controller"
	"github.com/zjrosen/cvrexport/internal/cvr"
	"github.com/zjrosen/cvrexport/internal/driver"
	"github.com/zjrosen/cvrexport/internal/log"
)

// Recorder writes controller sessions to the run history.
type Recorder struct {
	runs *Repository
	now  func() time.Time
}

var _ controller.Recorder = (*Recorder)(nil)

// NewRecorder creates a Recorder backed by runs.
func NewRecorder(runs *Repository) *Recorder {
	return &Recorder{runs: runs, now: time.Now}
}

// RecordStart inserts a running row for the session.
func (r *Recorder) RecordStart(ctx context.Context, s *controller.Session) error {
	run := Run{
		ID:        s.ID,
		Argv:      s.Argv,
		Limit:     cvr.Unlimited,
		PID:       s.PID,
		StartedAt: s.StartedAt,
	}
	if job, err := cvr.ParseArgv(s.Argv); err == nil {
		run.Folder = job.Folder
		run.FileType = string(job.FileType)
		run.Limit = job.Limit
	} else {
		log.Debug(log.CatHistory, "Argv is not a converter job", "session", s.ID, "error", err)
	}
	return r.runs.Insert(ctx, run)
}

// RecordFinish stores the session result.
func (r *Recorder) RecordFinish(ctx context.Context, s *controller.Session, res driver.Result) error {
	out := Outcome{
		FinishedAt:  r.now(),
		ExitCode:    res.ExitCode,
		Cancelled:   res.Cancelled,
		Killed:      res.Killed,
		Chars:       res.Chars,
		Turns:       res.Turns,
		Diagnostics: res.Diagnostics,
	}
	if res.SpawnErr != nil {
		out.Error = res.SpawnErr.Error()
	}
	return r.runs.Finish(ctx, s.ID, out)
}
