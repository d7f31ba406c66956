package presentation

import (
	"time"

	"github.com/zjrosen/cvrexport/internal/history"
)

// RunDTO represents a converter run for presentation
type RunDTO struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Folder      string   `json:"folder"`
	FileType    string   `json:"file_type"`
	TestRun     bool     `json:"test_run"`
	Limit       int      `json:"limit"`
	StartedAt   string   `json:"started_at"`
	FinishedAt  string   `json:"finished_at,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	ExitCode    *int     `json:"exit_code,omitempty"`
	Chars       int      `json:"chars"`
	Diagnostics []string `json:"diagnostics"` // always present, may be empty
	Error       string   `json:"error,omitempty"`
	Argv        []string `json:"argv"`
}

// FromRun converts a history run to a DTO.
func FromRun(r history.Run) RunDTO {
	dto := RunDTO{
		ID:          r.ID,
		Status:      r.Status(),
		Folder:      r.Folder,
		FileType:    r.FileType,
		TestRun:     r.IsTestRun(),
		Limit:       r.Limit,
		StartedAt:   r.StartedAt.UTC().Format(time.RFC3339),
		ExitCode:    r.ExitCode,
		Chars:       r.Chars,
		Diagnostics: r.Diagnostics,
		Error:       r.Error,
		Argv:        r.Argv,
	}
	if dto.Diagnostics == nil {
		dto.Diagnostics = []string{}
	}
	if r.FinishedAt != nil {
		dto.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
		dto.Duration = r.Duration().Round(time.Millisecond).String()
	}
	return dto
}

// FromRuns converts a slice of runs to DTOs
func FromRuns(runs []history.Run) []RunDTO {
	dtos := make([]RunDTO, len(runs))
	for i, r := range runs {
		dtos[i] = FromRun(r)
	}
	return dtos
}
