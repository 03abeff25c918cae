package ui

import "github.com/charmbracelet/lipgloss"

// Colors.
var (
	normalDim  = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}
	gray       = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	midGray    = lipgloss.AdaptiveColor{Light: "#B2B2B2", Dark: "#4A4A4A"}
	darkGray   = lipgloss.AdaptiveColor{Light: "#DDDADA", Dark: "#3C3C3C"}
	brightText = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F1F1F1"}
	fuchsia    = lipgloss.Color("#EE6FF8")
	cream      = lipgloss.Color("#FFFDF5")
	red        = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	green      = lipgloss.Color("#04B575")
	mintGreen  = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen  = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}
)

// Styles.
var (
	logoStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(fuchsia).
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(brightText).
			Bold(true)

	runInfoStyle = lipgloss.NewStyle().
			Foreground(normalDim)

	noticeStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true)

	errorTitleStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(red).
			Padding(0, 1)

	subtleStyle = lipgloss.NewStyle().
			Foreground(gray)

	selectedStyle = lipgloss.NewStyle().
			Foreground(fuchsia).
			Bold(true)

	matchStyle = lipgloss.NewStyle().
			Foreground(green).
			Underline(true)

	transcriptSeqStyle = lipgloss.NewStyle().
				Foreground(midGray).
				Render

	statusBarScrollPosStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#949494", Dark: "#5A5A5A"}).
				Background(statusBarBg).
				Render

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarErrorStyle = lipgloss.NewStyle().
				Foreground(red).
				Background(statusBarBg).
				Render

	statusBarHelpStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	statusBarMessageHelpStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("#B6FFE4")).
					Background(green).
					Render

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg).
			Background(lipgloss.AdaptiveColor{Light: "#f2f2f2", Dark: "#1B1B1B"}).
			Render
)

func logoView() string {
	return logoStyle.Render(" storyfeed ")
}
