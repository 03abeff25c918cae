package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dgnsrekt/storyfeed/feed"
)

var titleCase = cases.Title(language.English)

func (m model) statusBarView(b *strings.Builder) {
	const (
		minPercent               float64 = 0.0
		maxPercent               float64 = 1.0
		percentToStringMagnitude float64 = 100.0
	)

	showStatusMessage := m.statusMessage != ""

	// Logo
	logo := logoView()

	// Scroll percent, transcript only
	var scrollPercent string
	if m.state == stateTranscript {
		percent := math.Max(minPercent, math.Min(maxPercent, m.transcript.ScrollPercent()))
		scrollPercent = statusBarScrollPosStyle(fmt.Sprintf(" %3.f%% ", percent*percentToStringMagnitude))
	}

	// "Help" note
	var helpNote string
	if showStatusMessage && !m.statusMessageError {
		helpNote = statusBarMessageHelpStyle(" ? Help ")
	} else {
		helpNote = statusBarHelpStyle(" ? Help ")
	}

	// Note
	var note string
	if showStatusMessage {
		note = m.statusMessage
	} else {
		note = m.statusNote()
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(scrollPercent)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)

	style := statusBarNoteStyle
	switch {
	case showStatusMessage && m.statusMessageError:
		style = statusBarErrorStyle
	case showStatusMessage:
		style = statusBarMessageStyle
	case m.status == feed.StatusError:
		style = statusBarErrorStyle
	}
	note = style(note)

	// Empty space
	padding := max(0,
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(scrollPercent)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := style(strings.Repeat(" ", padding))

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		scrollPercent,
		helpNote,
	)
}

// statusNote describes the current run for the status bar.
func (m model) statusNote() string {
	var parts []string
	switch m.status {
	case feed.StatusLoading:
		parts = append(parts, m.spinner.View()+" Generating")
	case feed.StatusDone:
		parts = append(parts, "Done")
	case feed.StatusError:
		if m.statusErr != nil {
			parts = append(parts, "Error: "+m.statusErr.Error())
		} else {
			parts = append(parts, "Error")
		}
	default:
		parts = append(parts, "Idle")
	}
	if m.shown > 0 {
		parts = append(parts, humanize.Comma(int64(m.shown))+" "+pluralize("block", m.shown))
	}
	if m.audioOn {
		parts = append(parts, "♪ "+m.voice)
	}
	return strings.Join(parts, " · ")
}

// runInfo is the line under the subtitle.
func (m model) runInfo() string {
	if m.run == "" {
		return ""
	}
	cats := "any category"
	if len(m.categories) > 0 {
		names := make([]string, len(m.categories))
		for i, c := range m.categories {
			names[i] = titleCase.String(c)
		}
		cats = strings.Join(names, ", ")
	}
	info := cats + " · started " + humanize.RelTime(m.runStarted, m.now(), "ago", "from now")
	if m.voice != "" {
		info = "voice " + m.voice + " · " + info
	}
	return info
}

func (m model) helpView() string {
	var s string
	if m.state == statePicker {
		s = m.help.View(pickerKeys(m.keys))
	} else {
		s = m.help.View(m.keys)
	}
	s = indent("\n"+s, 2)

	// Fill up empty cells with spaces for background coloring
	if m.width > 0 {
		lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
		for i := 0; i < len(lines); i++ {
			l := ansi.PrintableRuneWidth(lines[i])
			n := max(m.width-l, 0)
			lines[i] += strings.Repeat(" ", n)
		}
		s = strings.Join(lines, "\n")
	}
	return helpViewStyle(s)
}

func pluralize(s string, n int) string {
	if n == 1 {
		return s
	}
	return s + "s"
}
