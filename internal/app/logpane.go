package app

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/zjrosen/cvrexport/internal/driver"
)

// logPane is the process log and diagnostics list. It is the controller's
// LogSink and DiagnosticSink; the controller only calls it from inside
// Update, so no locking is needed.
type logPane struct {
	vp   viewport.Model
	wrap bool

	// lines are completed raw lines; wrapped mirrors them for display.
	lines   []string
	wrapped []string
	partial string

	diags []string

	dirty  bool
	follow bool
}

var (
	_ driver.LogSink        = (*logPane)(nil)
	_ driver.DiagnosticSink = (*logPane)(nil)
)

func newLogPane(wrapLines bool) *logPane {
	return &logPane{vp: viewport.New(0, 0), wrap: wrapLines}
}

// AppendText implements driver.LogSink.
func (p *logPane) AppendText(text string) {
	if text == "" {
		return
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(p.partial+text, "\n")
	for _, line := range parts[:len(parts)-1] {
		p.lines = append(p.lines, line)
		p.wrapped = append(p.wrapped, p.wrapLine(line)...)
	}
	p.partial = parts[len(parts)-1]
	p.dirty = true
}

// ScrollToEnd implements driver.LogSink.
func (p *logPane) ScrollToEnd() {
	p.follow = true
}

// Diagnostic implements driver.DiagnosticSink.
func (p *logPane) Diagnostic(line string) {
	p.diags = append(p.diags, line)
}

// Clear empties the log and the diagnostics list.
func (p *logPane) Clear() {
	p.lines = nil
	p.wrapped = nil
	p.partial = ""
	p.diags = nil
	p.dirty = true
}

// Text returns everything appended since the last Clear.
func (p *logPane) Text() string {
	if len(p.lines) == 0 {
		return p.partial
	}
	return strings.Join(p.lines, "\n") + "\n" + p.partial
}

// Diagnostics returns the diagnostic lines since the last Clear.
func (p *logPane) Diagnostics() []string {
	return p.diags
}

// SetSize resizes the viewport, rewrapping when the width changes.
func (p *logPane) SetSize(width, height int) {
	width, height = max(width, 1), max(height, 1)
	if width != p.vp.Width {
		p.vp.Width = width
		p.wrapped = p.wrapped[:0]
		for _, line := range p.lines {
			p.wrapped = append(p.wrapped, p.wrapLine(line)...)
		}
		p.dirty = true
	}
	p.vp.Height = height
}

// sync pushes pending text into the viewport.
func (p *logPane) sync() {
	if p.dirty {
		content := p.wrapped
		if p.partial != "" {
			content = append(content[:len(content):len(content)], p.wrapLine(p.partial)...)
		}
		p.vp.SetContent(strings.Join(content, "\n"))
		p.dirty = false
	}
	if p.follow {
		p.vp.GotoBottom()
		p.follow = false
	}
}

func (p *logPane) wrapLine(line string) []string {
	if !p.wrap || p.vp.Width <= 0 {
		return []string{line}
	}
	// wordwrap breaks on spaces; wrap then splits words longer than the pane.
	return strings.Split(wrap.String(wordwrap.String(line, p.vp.Width), p.vp.Width), "\n")
}

func (p *logPane) View() string {
	return p.vp.View()
}

func (p *logPane) ScrollUp(n int)   { p.vp.ScrollUp(n) }
func (p *logPane) ScrollDown(n int) { p.vp.ScrollDown(n) }
func (p *logPane) PageUp()          { p.vp.PageUp() }
func (p *logPane) PageDown()        { p.vp.PageDown() }
