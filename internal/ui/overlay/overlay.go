// Package overlay draws a box on top of an already rendered view, keeping
// the background visible around it.
package overlay

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Position specifies where to place the overlay content.
type Position int

const (
	// Center places the overlay in the middle of the view (help).
	Center Position = iota
	// Bottom places the overlay at the bottom center of the view (toasts).
	Bottom
)

// Config controls overlay rendering behavior.
type Config struct {
	Width    int
	Height   int
	Position Position
	// PadY keeps a Bottom overlay this many rows off the bottom edge.
	PadY int
}

// Place renders fg over bg. Both may contain ANSI styling. Foreground
// lines wider than the view are clipped.
func Place(cfg Config, fg, bg string) string {
	fgLines := strings.Split(fg, "\n")
	bgLines := strings.Split(bg, "\n")
	for len(bgLines) < cfg.Height {
		bgLines = append(bgLines, "")
	}

	fgWidth := 0
	for _, l := range fgLines {
		fgWidth = max(fgWidth, ansi.StringWidth(l))
	}
	x, y := origin(cfg, fgWidth, len(fgLines))

	for i, fgLine := range fgLines {
		row := y + i
		if row >= len(bgLines) {
			break
		}
		if cfg.Width > 0 {
			fgLine = ansi.Truncate(fgLine, cfg.Width-x, "")
		}
		bgLines[row] = splice(bgLines[row], fgLine, x)
	}
	return strings.Join(bgLines, "\n")
}

// splice writes fg into bg starting at column x.
func splice(bg, fg string, x int) string {
	left := ansi.Truncate(bg, x, "")
	if w := ansi.StringWidth(left); w < x {
		left += strings.Repeat(" ", x-w)
	}
	end := x + ansi.StringWidth(fg)
	var right string
	if end < ansi.StringWidth(bg) {
		right = ansi.TruncateLeft(bg, end, "")
	}
	return left + fg + right
}

func origin(cfg Config, w, h int) (x, y int) {
	x = (cfg.Width - w) / 2
	switch cfg.Position {
	case Bottom:
		y = cfg.Height - h - cfg.PadY
	default:
		y = (cfg.Height - h) / 2
	}
	return max(x, 0), max(y, 0)
}
