package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	zone "github.com/lrstanley/bubblezone"

	"github.com/zjrosen/cvrexport/internal/cvr"
	"github.com/zjrosen/cvrexport/internal/ui/styles"
)

// Title is the window title shown at the top of the screen.
const Title = "Read CVRs - Export To CSV"

// Clickable zones.
const (
	zoneTestRun      = "btn-test-run"
	zoneProcess      = "btn-process"
	zoneCancel       = "btn-cancel"
	zoneClearLog     = "btn-clear-log"
	zoneChooseFolder = "btn-choose-folder"
	zoneSingleCVR    = "type-singlecvr"
	zoneCVRReport    = "type-cvrreport"
)

const (
	setupPanelHeight = 5 // three lines plus borders
	maxDiagLines     = 5
	minLogHeight     = 3
)

// layout sizes the log viewport from the window size.
func (m Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	m.host.log.SetSize(m.width-2, m.logPanelHeight()-2)
}

func (m Model) diagPanelHeight() int {
	n := len(m.host.log.Diagnostics())
	if n == 0 {
		return 0
	}
	return min(n, maxDiagLines) + 2
}

func (m Model) logPanelHeight() int {
	// title, status line and button row
	used := 3 + setupPanelHeight + m.diagPanelHeight()
	if m.cfg.UI.ShowHelpBar {
		used++
	}
	return max(m.height-used, minLogHeight)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var view string
	if m.picking {
		view = m.renderPicker()
	} else {
		view = zone.Scan(m.renderMain())
	}

	switch {
	case m.showHelp:
		view = m.helpOverlay.Overlay(view)
	case m.logOverlay.Visible():
		view = m.logOverlay.Overlay(view)
	}
	if m.toaster.Visible() {
		view = m.toaster.Overlay(view)
	}
	return view
}

func (m Model) renderMain() string {
	sections := []string{
		styles.TitleStyle.Render(Title),
		m.renderSetup(),
		m.renderStatus(),
		m.renderButtons(),
		styles.RenderWithTitleBorder(m.host.log.View(), "Process Log", m.width, m.logPanelHeight(),
			m.host.state.Running(), styles.OverlayTitleColor, styles.BorderHighlightFocusColor),
	}
	if diag := m.renderDiagnostics(); diag != "" {
		sections = append(sections, diag)
	}
	if m.cfg.UI.ShowHelpBar {
		sections = append(sections, styles.StatusBarStyle.Render(m.helpBar.ShortHelpView(m.keys.ShortHelp())))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderSetup() string {
	inner := m.width - 2

	var typeOpts []string
	for _, ft := range cvr.FileTypes {
		id := zoneSingleCVR
		if ft == cvr.CVRReport {
			id = zoneCVRReport
		}
		if ft == m.fileType {
			typeOpts = append(typeOpts, zone.Mark(id, styles.SelectionIndicatorStyle.Render("●")+" "+styles.FileTypeOnStyle.Render(string(ft))))
		} else {
			typeOpts = append(typeOpts, zone.Mark(id, styles.MutedStyle.Render("○ "+string(ft))))
		}
	}
	typeLine := styles.LabelStyle.Render("File Type: ") + strings.Join(typeOpts, "   ")

	folderLine := styles.MutedStyle.Render("No folder selected")
	if m.folder != "" {
		const label = "Folder Selected: "
		folderLine = styles.LabelStyle.Render(label) +
			styles.FolderStyle.Render(ansi.Truncate(m.folder, max(inner-len(label), 1), "…"))
	}

	chooseBtn := button(zoneChooseFolder, "Choose CVRs Folder", styles.SecondaryButtonStyle, m.host.state.Controls().ChooseFolder)
	summary := m.summaryText()
	gap := max(inner-lipgloss.Width(summary)-lipgloss.Width(chooseBtn), 1)
	summaryLine := summary + strings.Repeat(" ", gap) + chooseBtn

	content := strings.Join([]string{typeLine, folderLine, summaryLine}, "\n")
	return styles.RenderWithTitleBorder(content, "Setup", m.width, setupPanelHeight,
		false, styles.OverlayTitleColor, styles.BorderHighlightFocusColor)
}

func (m Model) summaryText() string {
	switch {
	case m.folder == "":
		return ""
	case m.scanErr != nil:
		return styles.DiagnosticStyle.Render("Cannot read folder")
	case m.summary == nil:
		return styles.MutedStyle.Render("Scanning…")
	}
	s := *m.summary
	text := fmt.Sprintf("%d CVR file(s), %s", s.Files, formatBytes(s.Bytes))
	return styles.LabelStyle.Render("CVR files: ") + styles.ValueStyle.Render(text)
}

func (m Model) renderStatus() string {
	state := m.host.state
	style := styles.StatusIdleStyle
	switch state {
	case StateStarted:
		style = styles.StatusRunningStyle
	case StateCancelling:
		style = styles.StatusCancellingStyle
	case StateFinished:
		style = styles.StatusFinishedStyle
		if m.host.last != nil && m.host.last.Failed() {
			style = styles.StatusFailedStyle
		}
	}

	line := " " + styles.LabelStyle.Render("Process Status: ") + style.Render(state.StatusText())
	if state.Running() {
		line += " " + m.spinner.View()
	}
	return line
}

func (m Model) renderButtons() string {
	c := m.host.state.Controls()
	testLabel := "Test Run (" + strconv.Itoa(m.cfg.TestRunLimit) + " CVRs)"
	btns := []string{
		button(zoneTestRun, testLabel, styles.SecondaryButtonStyle, c.TestRun),
		button(zoneProcess, "Process Folder", styles.PrimaryButtonStyle, c.Process),
		button(zoneCancel, "Cancel Process", styles.DangerButtonStyle, c.Cancel),
		button(zoneClearLog, "Clear Log", styles.SecondaryButtonStyle, true),
	}
	return " " + strings.Join(btns, " ")
}

func button(id, label string, style lipgloss.Style, enabled bool) string {
	if !enabled {
		style = styles.DisabledButtonStyle
	}
	return zone.Mark(id, style.Render(label))
}

func (m Model) renderDiagnostics() string {
	diags := m.host.log.Diagnostics()
	if len(diags) == 0 {
		return ""
	}

	first := max(len(diags)-maxDiagLines, 0)
	width := len(strconv.Itoa(len(diags)))
	lines := make([]string, 0, len(diags)-first)
	for i := first; i < len(diags); i++ {
		num := fmt.Sprintf("%*d ", width, i+1)
		lines = append(lines, styles.DiagnosticLineNumberStyle.Render(num)+styles.DiagnosticStyle.Render(diags[i]))
	}
	title := fmt.Sprintf("Diagnostics (%d)", len(diags))
	return styles.RenderWithTitleBorder(strings.Join(lines, "\n"), title, m.width, m.diagPanelHeight(),
		true, styles.StatusErrorColor, styles.StatusErrorColor)
}

func (m Model) renderPicker() string {
	hint := styles.MutedStyle.Render("enter select · s use current directory · h back · esc cancel")
	return lipgloss.JoinVertical(lipgloss.Left,
		styles.TitleStyle.Render("Choose CVRs Folder"),
		" "+styles.FolderStyle.Render(ansi.Truncate(m.picker.CurrentDirectory, max(m.width-2, 1), "…")),
		"",
		m.picker.View(),
		hint,
	)
}

// formatBytes renders n with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
