// Package help contains the help overlay component.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/cvrexport/internal/keys"
	"github.com/zjrosen/cvrexport/internal/ui/overlay"
	"github.com/zjrosen/cvrexport/internal/ui/styles"
)

// aboutWidth is the wrap width of the markdown section.
const aboutWidth = 60

// About explains what the actions do. {{limit}} is replaced by the test
// run record limit.
const About = `## Converting a CVR folder

1. Press **f** and pick the folder that holds the *CvrExport* files.
2. Press **tab** to choose how the converter reads them:
   - *singlecvr*: one JSON file per cast vote record
   - *cvrreport*: a single CVR report
3. **Test Run** converts the first {{limit}} records so you can check the output.
   **Process Folder** converts everything.

Output streams into the log while the converter runs. Anything the converter
writes to its error stream is listed under *Diagnostics* once it exits.
**Cancel** asks the converter to stop; it may take a moment to wind down.
`

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.OverlayTitleColor).
			PaddingLeft(2)

	dividerStyle = lipgloss.NewStyle().
			Foreground(styles.OverlayBorderColor)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.OverlayTitleColor).
			MarginTop(1)

	keyStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondaryColor).
			Width(8)

	descStyle = lipgloss.NewStyle().
			Foreground(styles.TextDescriptionColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(styles.OverlayBorderColor)

	contentStyle = lipgloss.NewStyle().
			Padding(0, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(styles.TextMutedColor).
			MarginTop(1)
)

// Model holds the help view state.
type Model struct {
	keys   keys.KeyMap
	about  string
	width  int
	height int
}

// New creates a help view for km. testRunLimit fills in the About text.
func New(km keys.KeyMap, testRunLimit int) Model {
	md := strings.ReplaceAll(About, "{{limit}}", fmt.Sprint(testRunLimit))
	return Model{
		keys:  km,
		about: strings.TrimRight(renderMarkdown(md, aboutWidth), "\n"),
	}
}

// SetSize updates dimensions.
func (m Model) SetSize(width, height int) Model {
	m.width = width
	m.height = height
	return m
}

// View renders the help box centered in an empty screen.
func (m Model) View() string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.renderContent())
}

// Overlay renders the help box on top of a background view.
func (m Model) Overlay(background string) string {
	return overlay.Place(overlay.Config{
		Width:    m.width,
		Height:   m.height,
		Position: overlay.Center,
	}, m.renderContent(), background)
}

func (m Model) renderContent() string {
	columnStyle := lipgloss.NewStyle().MarginRight(4)
	titles := []string{"Run", "Setup", "Log", "General"}

	groups := m.keys.FullHelp()
	cols := make([]string, 0, len(groups))
	for i, group := range groups {
		var col strings.Builder
		col.WriteString(sectionStyle.Render(titles[i]))
		col.WriteString("\n")
		for _, b := range group {
			col.WriteString(renderBinding(b))
		}
		if i < len(groups)-1 {
			cols = append(cols, columnStyle.Render(col.String()))
		} else {
			cols = append(cols, col.String())
		}
	}
	columns := lipgloss.JoinHorizontal(lipgloss.Top, cols...)

	body := lipgloss.JoinVertical(lipgloss.Left,
		columns,
		"",
		m.about,
		footerStyle.Render("Press ? or Esc to close"),
	)
	boxWidth := lipgloss.Width(body) + 4

	var content strings.Builder
	content.WriteString(titleStyle.Render("Keybindings"))
	content.WriteString("\n")
	content.WriteString(dividerStyle.Render(strings.Repeat("─", boxWidth)))
	content.WriteString("\n")
	content.WriteString(contentStyle.Render(body))

	return boxStyle.Width(boxWidth).Render(content.String())
}

func renderBinding(b key.Binding) string {
	h := b.Help()
	return keyStyle.Render(h.Key) + descStyle.Render(h.Desc) + "\n"
}
