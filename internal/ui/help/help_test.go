package help

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/cvrexport/internal/keys"
)

func TestHelp_ListsEveryBinding(t *testing.T) {
	km := keys.DefaultKeyMap()
	view := ansi.Strip(New(km, 100).SetSize(160, 60).View())

	for _, group := range km.FullHelp() {
		for _, b := range group {
			require.Contains(t, view, b.Help().Desc)
		}
	}
	require.Contains(t, view, "Keybindings")
	require.Contains(t, view, "Press ? or Esc to close")
}

func TestHelp_AboutUsesTestRunLimit(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 25)
	about := ansi.Strip(m.about)
	require.Contains(t, about, "25")
	require.NotContains(t, about, "{{limit}}")
	require.Contains(t, about, "singlecvr")
}

func TestHelp_OverlayKeepsBackgroundSize(t *testing.T) {
	bg := strings.TrimSuffix(strings.Repeat(strings.Repeat(".", 160)+"\n", 60), "\n")
	out := New(keys.DefaultKeyMap(), 100).SetSize(160, 60).Overlay(bg)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 60)
	require.Equal(t, strings.Repeat(".", 160), lines[0])
	require.Contains(t, ansi.Strip(out), "Keybindings")
}
