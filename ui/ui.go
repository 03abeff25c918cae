// Package ui provides the terminal subtitle viewer.
package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/storyfeed/feed"
	"github.com/dgnsrekt/storyfeed/internal/prefs"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	ellipsis             = "…"
	statusBarHeight      = 1
	maxSubtitleWidth     = 72
)

var errFeedClosed = errors.New("the story feed stopped")

// Feed is the part of a feed.Pipeline the viewer drives.
type Feed interface {
	Events() <-chan feed.Event
	Reset() error
	EnableAudio() error
	SetCategories(categories []string) error
	Transcript() []feed.Block
}

// ConfigReloadedMsg tells the viewer the settings file was re-read.
// SpeechAvailable follows the reloaded audio setting.
type ConfigReloadedMsg struct {
	Err             error
	SpeechAvailable bool
}

// NewProgram returns a new Tea program showing the blocks of f. Category
// changes are saved to store.
func NewProgram(cfg Config, f Feed, store prefs.Store) *tea.Program {
	log.Debug("Starting storyfeed", "alt_screen", cfg.AltScreen, "speech", cfg.SpeechAvailable)

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, f, store), opts...)
}

type (
	errMsg                  struct{ err error }
	feedClosedMsg           struct{}
	statusMessageTimeoutMsg struct{}
	editorFinishedMsg       struct {
		path string
		err  error
	}
)

func (e errMsg) Error() string { return e.err.Error() }

// state is the top-level application state.
type state int

const (
	stateSubtitle state = iota
	stateTranscript
	statePicker
)

func (s state) String() string {
	return map[state]string{
		stateSubtitle:   "showing subtitles",
		stateTranscript: "showing transcript",
		statePicker:     "picking categories",
	}[s]
}

type model struct {
	cfg   Config
	feed  Feed
	prefs prefs.Store

	state    state
	fatalErr error
	width    int
	height   int

	keys       keyMap
	help       help.Model
	showHelp   bool
	spinner    spinner.Model
	transcript viewport.Model
	picker     pickerModel

	// Current run, as reported by the feed.
	run        string
	voice      string
	categories []string
	runStarted time.Time
	current    feed.Block
	shown      int
	status     feed.Status
	statusErr  error
	audioOn    bool

	statusMessage      string
	statusMessageError bool
	statusMessageTimer *time.Timer

	now func() time.Time
}

func newModel(cfg Config, f Feed, store prefs.Store) model {
	if store == nil {
		store = prefs.NewMemory()
	}
	keys := newKeyMap()
	keys.Speak.SetEnabled(cfg.SpeechAvailable)

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(fuchsia)

	return model{
		cfg:        cfg,
		feed:       f,
		prefs:      store,
		keys:       keys,
		help:       help.New(),
		spinner:    sp,
		transcript: viewport.New(0, 0),
		picker:     newPickerModel(cfg.Genres, keys),
		now:        time.Now,
	}
}

func (m model) Init() tea.Cmd {
	log.Debug("Init() called", "state", m.state)
	return tea.Batch(waitForEvent(m.feed), m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, tea.Quit
		}
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == statePicker {
			return m.updatePicker(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.setSize()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case feed.Event:
		m.handleEvent(msg)
		cmds = append(cmds, waitForEvent(m.feed))
		if ev, ok := msg.(feed.AudioDroppedMsg); ok && ev.RunID() == m.run {
			cmds = append(cmds, m.showStatusMessage(fmt.Sprintf("Skipped audio for block %d", ev.Seq), true))
		}
		if ev, ok := msg.(feed.AudioEnabledMsg); ok && ev.RunID() == m.run {
			cmds = append(cmds, m.showStatusMessage("Speaking as "+ev.Voice, false))
		}

	case feedClosedMsg:
		log.Debug("feed closed")
		m.fatalErr = errFeedClosed
		return m, nil

	case ConfigReloadedMsg:
		if msg.Err != nil {
			cmds = append(cmds, m.showStatusMessage("Config not reloaded: "+msg.Err.Error(), true))
		} else {
			m.keys.Speak.SetEnabled(msg.SpeechAvailable)
			cmds = append(cmds, m.showStatusMessage("Config reloaded, applies to the next story", false))
		}

	case editorFinishedMsg:
		if msg.err != nil {
			log.Error("editor failed", "error", msg.err)
			cmds = append(cmds, m.showStatusMessage("Editor failed: "+msg.err.Error(), true))
		} else {
			cmds = append(cmds, m.showStatusMessage("Transcript saved to "+msg.path, false))
		}

	case statusMessageTimeoutMsg:
		m.statusMessage = ""

	case errMsg:
		log.Error("error", "error", msg.err)
		cmds = append(cmds, m.showStatusMessage(msg.Error(), true))
	}

	if m.state == stateTranscript {
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		m.setSize()
		return m, nil

	case key.Matches(msg, m.keys.Back):
		if m.state != stateSubtitle {
			m.state = stateSubtitle
			return m, nil
		}

	case key.Matches(msg, m.keys.New):
		m.state = stateSubtitle
		cmd := m.showStatusMessage("Starting new generation", false)
		return m, tea.Batch(resetCmd(m.feed), cmd)

	case key.Matches(msg, m.keys.Speak):
		if err := m.feed.EnableAudio(); err != nil {
			cmd := m.showStatusMessage("Audio unavailable: "+err.Error(), true)
			return m, cmd
		}
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		text := m.current.Text()
		if text == "" {
			return m, nil
		}
		cmd := m.showStatusMessage("Copied subtitle", false)
		return m, tea.Batch(copyCmd(text), cmd)

	case key.Matches(msg, m.keys.Transcript):
		if m.state == stateTranscript {
			m.state = stateSubtitle
			return m, nil
		}
		m.state = stateTranscript
		m.refreshTranscript()
		m.transcript.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.Export):
		blocks := m.feed.Transcript()
		if len(blocks) == 0 {
			cmd := m.showStatusMessage("Nothing to export yet", true)
			return m, cmd
		}
		return m, openEditor(transcriptText(blocks))

	case key.Matches(msg, m.keys.Categories):
		m.state = statePicker
		cmd := m.picker.open(m.selectedCategories())
		return m, cmd
	}

	if m.state == stateTranscript {
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	var (
		cmd    tea.Cmd
		result pickerResult
	)
	m.picker, cmd, result = m.picker.update(msg)
	switch result {
	case pickerCancelled:
		m.state = stateSubtitle
	case pickerConfirmed:
		m.state = stateSubtitle
		cats := m.picker.selection()
		if err := prefs.SetCategories(m.prefs, cats); err != nil {
			log.Warn("Could not save categories", "err", err)
		}
		if err := m.feed.SetCategories(cats); err != nil {
			cmd := m.showStatusMessage("Could not set categories: "+err.Error(), true)
			return m, cmd
		}
		cmd := m.showStatusMessage("Categories saved", false)
		return m, tea.Batch(resetCmd(m.feed), cmd)
	}
	return m, cmd
}

// handleEvent folds a feed event into the model. Events from a run that has
// since been replaced are dropped.
func (m *model) handleEvent(ev feed.Event) {
	if started, ok := ev.(feed.RunStartedMsg); ok {
		m.run = started.Run
		m.voice = started.Voice
		m.categories = started.Categories
		m.runStarted = m.now()
		m.current = feed.Block{}
		m.shown = 0
		m.status = feed.StatusIdle
		m.statusErr = nil
		m.audioOn = false
		if m.state == stateTranscript {
			m.refreshTranscript()
		}
		return
	}
	if ev.RunID() != m.run {
		return
	}

	switch ev := ev.(type) {
	case feed.BlockShownMsg:
		m.current = ev.Block
		m.shown++
		if m.state == stateTranscript {
			atBottom := m.transcript.AtBottom()
			m.refreshTranscript()
			if atBottom {
				m.transcript.GotoBottom()
			}
		}
	case feed.StatusChangedMsg:
		m.status = ev.Status
		m.statusErr = ev.Err
	case feed.AudioEnabledMsg:
		m.audioOn = true
		m.voice = ev.Voice
	}
}

func (m *model) setSize() {
	h := m.height - statusBarHeight
	if m.showHelp {
		h -= lipgloss.Height(m.helpView())
	}
	m.transcript.Width = m.width
	m.transcript.Height = max(0, h)
	m.picker.setSize(m.width, max(0, h))
}

func (m *model) refreshTranscript() {
	m.transcript.SetContent(renderTranscript(m.feed.Transcript(), m.width))
}

// selectedCategories is the stored selection, falling back to the one the
// current run was started with.
func (m model) selectedCategories() []string {
	if cats := prefs.Categories(m.prefs); cats != nil {
		return cats
	}
	return m.categories
}

// showStatusMessage shows msg in the status bar for a few seconds.
func (m *model) showStatusMessage(msg string, isError bool) tea.Cmd {
	m.statusMessage = msg
	m.statusMessageError = isError
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}

	var body string
	switch m.state {
	case stateTranscript:
		body = m.transcript.View()
	case statePicker:
		body = m.picker.view()
	default:
		body = m.subtitleView()
	}

	var b strings.Builder
	fmt.Fprint(&b, body+"\n")
	m.statusBarView(&b)
	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}
	return b.String()
}

func (m model) subtitleView() string {
	h := m.height - statusBarHeight
	if m.showHelp {
		h -= lipgloss.Height(m.helpView())
	}
	if h <= 0 || m.width <= 0 {
		return ""
	}

	width := m.cfg.Width
	if width <= 0 {
		width = min(m.width-4, maxSubtitleWidth)
	}
	width = max(width, 10)

	text := m.current.Text()
	switch {
	case text == "" && m.status == feed.StatusError:
		text = noticeStyle.Render("The story could not be loaded. Press n to try again.")
	case text == "":
		text = noticeStyle.Render("Waiting for the story to begin…")
	default:
		text = subtitleStyle.Render(wordwrap.String(text, width))
	}

	content := lipgloss.JoinVertical(lipgloss.Center, text, "", runInfoStyle.Render(m.runInfo()))
	return lipgloss.Place(m.width, h, lipgloss.Center, lipgloss.Center, content)
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render(exitMsg),
	)
	return "\n" + indent(s, 3)
}

// COMMANDS

func waitForEvent(f Feed) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-f.Events()
		if !ok {
			return feedClosedMsg{}
		}
		return ev
	}
}

func resetCmd(f Feed) tea.Cmd {
	return func() tea.Msg {
		if err := f.Reset(); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}

// ETC

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
