package styles

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/require"
)

func TestRenderWithTitleBorder_Dimensions(t *testing.T) {
	out := RenderWithTitleBorder("line one\nline two", "Log", 20, 5, false, TextPrimaryColor, BorderHighlightFocusColor)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 5)
	for i, l := range lines {
		require.Equal(t, 20, ansi.StringWidth(l), "line %d width", i)
	}

	plain := ansi.Strip(out)
	require.True(t, strings.HasPrefix(plain, "╭─ Log ─"))
	require.Contains(t, plain, "│line one")
	require.True(t, strings.HasSuffix(plain, "╯"))
}

func TestRenderWithTitleBorder_TruncatesLongContent(t *testing.T) {
	content := strings.Repeat("A", 50) + "\nB\nC\nD"
	out := ansi.Strip(RenderWithTitleBorder(content, "Log", 12, 4, true, TextPrimaryColor, BorderHighlightFocusColor))

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "│"+strings.Repeat("A", 10)+"│", lines[1])
	require.Equal(t, "│B         │", lines[2])
}

func TestBuildTopBorder(t *testing.T) {
	tests := []struct {
		name  string
		title string
		inner int
		want  string
	}{
		{"no title", "", 6, "╭──────╮"},
		{"fits", "Log", 10, "╭─ Log ────╮"},
		{"too narrow for title", "Log", 4, "╭────╮"},
		{"truncated", "Diagnostics", 9, "╭─ Diag… ─╮"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderWithTitleBorder("", tt.title, tt.inner+2, 3, false, TextPrimaryColor, BorderHighlightFocusColor)
			require.Equal(t, tt.want, strings.Split(ansi.Strip(got), "\n")[0])
		})
	}
}
