package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLogPane_PartialLines(t *testing.T) {
	p := newLogPane(false)
	p.SetSize(40, 5)

	p.AppendText("Conv")
	p.AppendText("erted a.json\nConverted b")
	p.AppendText(".json\r\n")
	p.sync()

	require.Equal(t, "Converted a.json\nConverted b.json\n", p.Text())
	require.Contains(t, p.View(), "Converted b.json")
}

func TestLogPane_WrapsLongLines(t *testing.T) {
	p := newLogPane(true)
	p.SetSize(10, 10)

	p.AppendText("alpha beta gamma delta\n" + strings.Repeat("x", 25) + "\n")
	p.sync()

	for _, line := range strings.Split(p.View(), "\n") {
		require.LessOrEqual(t, len(strings.TrimRight(line, " ")), 10)
	}
	// The raw text is kept unwrapped.
	require.Equal(t, "alpha beta gamma delta\n"+strings.Repeat("x", 25)+"\n", p.Text())
}

func TestLogPane_RewrapsOnResize(t *testing.T) {
	p := newLogPane(true)
	p.SetSize(10, 10)
	p.AppendText("alpha beta gamma delta\n")
	require.Greater(t, len(p.wrapped), 1)

	p.SetSize(80, 10)
	require.Equal(t, []string{"alpha beta gamma delta"}, p.wrapped)
}

func TestLogPane_ScrollToEndFollowsOutput(t *testing.T) {
	p := newLogPane(false)
	p.SetSize(20, 3)
	for i := 0; i < 10; i++ {
		p.AppendText("line\n")
	}
	p.AppendText("last")
	p.ScrollToEnd()
	p.sync()

	require.True(t, p.vp.AtBottom())
	require.Contains(t, p.View(), "last")
}

func TestLogPane_Clear(t *testing.T) {
	p := newLogPane(false)
	p.AppendText("a\nb")
	p.Diagnostic("bad")
	p.Clear()
	p.sync()

	require.Empty(t, p.Text())
	require.Empty(t, p.Diagnostics())
}

func TestProperty_LogPaneKeepsText(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chunks := rapid.SliceOf(rapid.StringMatching(`[a-z \n]{0,20}`)).Draw(t, "chunks")
		p := newLogPane(rapid.Bool().Draw(t, "wrap"))
		p.SetSize(rapid.IntRange(1, 30).Draw(t, "width"), 5)

		var want strings.Builder
		for _, c := range chunks {
			p.AppendText(c)
			want.WriteString(c)
		}
		if p.Text() != want.String() {
			t.Fatalf("text %q, want %q", p.Text(), want.String())
		}
	})
}
