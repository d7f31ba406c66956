package presentation

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/rodaine/table"
)

// folderWidth caps the folder column in table output.
const folderWidth = 40

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatRuns formats a list of runs as JSON
func (f *Formatter) FormatRuns(runs []RunDTO) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(runs)
}

// FormatRun formats a single run as JSON
func (f *Formatter) FormatRun(run RunDTO) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(run)
}

// FormatRunsTable writes one aligned row per run under a header row.
func (f *Formatter) FormatRunsTable(runs []RunDTO) error {
	tbl := table.New("ID", "STARTED", "STATUS", "TYPE", "LIMIT", "EXIT", "FOLDER").
		WithWriter(f.writer).
		WithPadding(2).
		WithWidthFunc(lipgloss.Width)
	for _, r := range runs {
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprint(*r.ExitCode)
		}
		limit := "all"
		if r.TestRun {
			limit = fmt.Sprint(r.Limit)
		}
		tbl.AddRow(shortID(r.ID), r.StartedAt, r.Status, r.FileType, limit, exit,
			ansi.Truncate(r.Folder, folderWidth, "…"))
	}
	tbl.Print()
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
