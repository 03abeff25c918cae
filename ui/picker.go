package ui

import (
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"
)

type pickerResult int

const (
	pickerOpen pickerResult = iota
	pickerConfirmed
	pickerCancelled
)

// pickerModel lets the user choose story categories, narrowing the list
// with a fuzzy filter.
type pickerModel struct {
	keys     keyMap
	genres   []string
	selected map[string]bool
	filter   textinput.Model
	matches  fuzzy.Matches
	cursor   int
	width    int
	height   int
}

func newPickerModel(genres []string, keys keyMap) pickerModel {
	ti := textinput.New()
	ti.Prompt = "Filter: "
	ti.PromptStyle = selectedStyle
	ti.Cursor.Style = selectedStyle
	ti.CharLimit = 32

	m := pickerModel{
		keys:     keys,
		genres:   genres,
		selected: make(map[string]bool),
		filter:   ti,
	}
	m.refilter()
	return m
}

// open resets the picker to the given selection.
func (m *pickerModel) open(current []string) tea.Cmd {
	m.selected = make(map[string]bool, len(current))
	for _, c := range current {
		m.selected[c] = true
	}
	m.filter.SetValue("")
	m.cursor = 0
	m.refilter()
	return m.filter.Focus()
}

func (m *pickerModel) setSize(w, h int) {
	m.width = w
	m.height = h
	m.filter.Width = max(0, w-len(m.filter.Prompt)-4)
}

// selection returns the chosen categories in list order.
func (m pickerModel) selection() []string {
	out := []string{}
	for _, g := range m.genres {
		if m.selected[g] {
			out = append(out, g)
		}
	}
	return out
}

func (m *pickerModel) refilter() {
	if q := strings.TrimSpace(m.filter.Value()); q != "" {
		m.matches = fuzzy.Find(q, m.genres)
	} else {
		m.matches = make(fuzzy.Matches, len(m.genres))
		for i, g := range m.genres {
			m.matches[i] = fuzzy.Match{Str: g, Index: i}
		}
	}
	m.cursor = min(m.cursor, max(0, len(m.matches)-1))
}

func (m pickerModel) update(msg tea.KeyMsg) (pickerModel, tea.Cmd, pickerResult) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.filter.Blur()
		return m, nil, pickerCancelled
	case key.Matches(msg, m.keys.Confirm):
		m.filter.Blur()
		return m, nil, pickerConfirmed
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil, pickerOpen
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.matches)-1 {
			m.cursor++
		}
		return m, nil, pickerOpen
	case key.Matches(msg, m.keys.Toggle):
		if len(m.matches) > 0 {
			g := m.matches[m.cursor].Str
			m.selected[g] = !m.selected[g]
		}
		return m, nil, pickerOpen
	}

	var cmd tea.Cmd
	before := m.filter.Value()
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() != before {
		m.cursor = 0
		m.refilter()
	}
	return m, cmd, pickerOpen
}

func (m pickerModel) view() string {
	var b strings.Builder
	b.WriteString("\n" + m.filter.View() + "\n\n")

	if len(m.matches) == 0 {
		b.WriteString(noticeStyle.Render("No categories match.") + "\n")
	}
	// Keep the cursor on screen.
	rows := max(1, m.height-4)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	for i := start; i < len(m.matches) && i < start+rows; i++ {
		match := m.matches[i]
		check := "[ ]"
		if m.selected[match.Str] {
			check = selectedStyle.Render("[x]")
		}
		cursor := "  "
		if i == m.cursor {
			cursor = selectedStyle.Render("› ")
		}
		b.WriteString(cursor + check + " " + highlightMatch(titleCase.String(match.Str), match.MatchedIndexes) + "\n")
	}
	return strings.TrimSuffix(indent(strings.TrimSuffix(b.String(), "\n"), 2), "\n")
}

// highlightMatch styles the runes of s that the filter matched.
func highlightMatch(s string, matched []int) string {
	if len(matched) == 0 {
		return s
	}
	var b strings.Builder
	for i, r := range s {
		if slices.Contains(matched, i) {
			b.WriteString(matchStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
