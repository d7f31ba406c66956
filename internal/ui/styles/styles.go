// Package styles contains Lip Gloss style definitions.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Semantic color names - Text hierarchy
	TextPrimaryColor     = lipgloss.AdaptiveColor{Light: "#2D3436", Dark: "#CCCCCC"} // Main/primary text
	TextSecondaryColor   = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BBBBBB"} // Labels, secondary info
	TextMutedColor       = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"} // Hints, help text, footers
	TextDescriptionColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"} // Description/body text

	// Semantic color names - Border
	BorderDefaultColor        = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"} // Unfocused borders
	BorderHighlightFocusColor = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}

	// Semantic color names - Status
	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"} // Success states
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#E1A100", Dark: "#FECA57"} // Warnings, cancelling
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"} // Errors, diagnostics
	StatusRunningColor = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#54A0FF"} // Running process

	// Button colors
	ButtonTextColor           = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#FFFFFF"}
	ButtonPrimaryBgColor      = lipgloss.AdaptiveColor{Light: "#1A5276", Dark: "#1A5276"}
	ButtonSecondaryBgColor    = lipgloss.AdaptiveColor{Light: "#2D3436", Dark: "#2D3436"}
	ButtonDangerBgColor       = lipgloss.AdaptiveColor{Light: "#922B21", Dark: "#922B21"}
	ButtonDisabledTextColor   = lipgloss.AdaptiveColor{Light: "#888888", Dark: "#666666"}
	ButtonDisabledBgColor     = lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#2D2D2D"}
	OverlayTitleColor         = lipgloss.AdaptiveColor{Light: "#2D3436", Dark: "#C9C9C9"}
	OverlayBorderColor        = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#8C8C8C"}
	SelectionIndicatorColor   = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}
	FolderPathColor           = lipgloss.AdaptiveColor{Light: "#179299", Dark: "#94E2D5"}
	FileTypeActiveColor       = lipgloss.AdaptiveColor{Light: "#8839EF", Dark: "#CBA6F7"}
	ToastBorderSuccessColor   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	ToastBorderErrorColor     = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	ToastBorderInfoColor      = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}
	ToastBorderWarnColor      = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}
	SpinnerColor              = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#FFF"}
	DiagnosticLineNumberColor = lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#696969"}

	// Selection indicator style (used for ">" prefix on the active file type)
	SelectionIndicatorStyle = lipgloss.NewStyle().Bold(true).Foreground(SelectionIndicatorColor)

	baseButtonStyle = lipgloss.NewStyle().Padding(0, 2).Bold(true)

	PrimaryButtonStyle = baseButtonStyle.
				Foreground(ButtonTextColor).
				Background(ButtonPrimaryBgColor)

	SecondaryButtonStyle = baseButtonStyle.
				Foreground(ButtonTextColor).
				Background(ButtonSecondaryBgColor)

	DangerButtonStyle = baseButtonStyle.
				Foreground(ButtonTextColor).
				Background(ButtonDangerBgColor)

	DisabledButtonStyle = baseButtonStyle.
				Bold(false).
				Foreground(ButtonDisabledTextColor).
				Background(ButtonDisabledBgColor)

	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(OverlayTitleColor).PaddingLeft(1)

	LabelStyle      = lipgloss.NewStyle().Foreground(TextSecondaryColor)
	ValueStyle      = lipgloss.NewStyle().Foreground(TextPrimaryColor).Bold(true)
	FolderStyle     = lipgloss.NewStyle().Foreground(FolderPathColor)
	MutedStyle      = lipgloss.NewStyle().Foreground(TextMutedColor)
	FileTypeOnStyle = lipgloss.NewStyle().Foreground(FileTypeActiveColor).Bold(true)

	// Process status label, one per UI state
	StatusIdleStyle       = lipgloss.NewStyle().Foreground(TextSecondaryColor)
	StatusRunningStyle    = lipgloss.NewStyle().Foreground(StatusRunningColor).Bold(true)
	StatusCancellingStyle = lipgloss.NewStyle().Foreground(StatusWarningColor).Bold(true)
	StatusFinishedStyle   = lipgloss.NewStyle().Foreground(StatusSuccessColor).Bold(true)
	StatusFailedStyle     = lipgloss.NewStyle().Foreground(StatusErrorColor).Bold(true)

	DiagnosticStyle           = lipgloss.NewStyle().Foreground(StatusErrorColor)
	DiagnosticLineNumberStyle = lipgloss.NewStyle().Foreground(DiagnosticLineNumberColor)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextSecondaryColor).
			Padding(0, 1)

	// Error display
	ErrorStyle = lipgloss.NewStyle().
			Foreground(StatusErrorColor).
			Bold(true).
			Padding(1, 2)
)
