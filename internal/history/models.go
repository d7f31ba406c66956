package history

import (
	"encoding/json"
	"time"
)

// runModel is the database row for the runs table. Times are unix
// milliseconds; argv and diagnostics are JSON arrays.
type runModel struct {
	ID          string
	Argv        string
	Folder      string
	FileType    string
	Limit       int
	PID         *int64 // nullable
	StartedAt   int64
	FinishedAt  *int64 // nullable
	ExitCode    *int64 // nullable
	Cancelled   bool
	Killed      bool
	Chars       int
	Turns       int
	Diagnostics string
	Error       string
}

func toRunModel(r Run) (*runModel, error) {
	argv, err := json.Marshal(nonNil(r.Argv))
	if err != nil {
		return nil, err
	}
	diags, err := json.Marshal(nonNil(r.Diagnostics))
	if err != nil {
		return nil, err
	}
	m := &runModel{
		ID:          r.ID,
		Argv:        string(argv),
		Folder:      r.Folder,
		FileType:    r.FileType,
		Limit:       r.Limit,
		StartedAt:   r.StartedAt.UnixMilli(),
		Cancelled:   r.Cancelled,
		Killed:      r.Killed,
		Chars:       r.Chars,
		Turns:       r.Turns,
		Diagnostics: string(diags),
		Error:       r.Error,
	}
	if r.PID > 0 {
		pid := int64(r.PID)
		m.PID = &pid
	}
	if r.FinishedAt != nil {
		ms := r.FinishedAt.UnixMilli()
		m.FinishedAt = &ms
	}
	if r.ExitCode != nil {
		code := int64(*r.ExitCode)
		m.ExitCode = &code
	}
	return m, nil
}

func (m *runModel) toDomain() (Run, error) {
	r := Run{
		ID:        m.ID,
		Folder:    m.Folder,
		FileType:  m.FileType,
		Limit:     m.Limit,
		StartedAt: time.UnixMilli(m.StartedAt),
		Cancelled: m.Cancelled,
		Killed:    m.Killed,
		Chars:     m.Chars,
		Turns:     m.Turns,
		Error:     m.Error,
	}
	if err := json.Unmarshal([]byte(m.Argv), &r.Argv); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(m.Diagnostics), &r.Diagnostics); err != nil {
		return Run{}, err
	}
	if len(r.Diagnostics) == 0 {
		r.Diagnostics = nil
	}
	if m.PID != nil {
		r.PID = int(*m.PID)
	}
	if m.FinishedAt != nil {
		t := time.UnixMilli(*m.FinishedAt)
		r.FinishedAt = &t
	}
	if m.ExitCode != nil {
		code := int(*m.ExitCode)
		r.ExitCode = &code
	}
	return r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
