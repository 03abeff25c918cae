package ui

import (
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/muesli/termenv"
)

// openEditor writes text to a file and opens it in $EDITOR.
func openEditor(text string) tea.Cmd {
	f, err := os.CreateTemp("", "storyfeed-transcript-*.txt")
	if err != nil {
		return func() tea.Msg { return errMsg{fmt.Errorf("create transcript file: %w", err)} }
	}
	path := f.Name()
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return func() tea.Msg { return errMsg{fmt.Errorf("write transcript file: %w", err)} }
	}
	if err := f.Close(); err != nil {
		return func() tea.Msg { return errMsg{err} }
	}

	c, err := editor.Cmd("storyfeed", path)
	if err != nil {
		return func() tea.Msg { return errMsg{err} }
	}
	log.Info("opening editor", "file", path)
	return tea.ExecProcess(c, func(err error) tea.Msg {
		return editorFinishedMsg{path: path, err: err}
	})
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		// Copy using OSC 52
		termenv.Copy(text)
		// Copy using native system clipboard
		if err := clipboard.WriteAll(text); err != nil {
			log.Debug("native clipboard unavailable", "error", err)
		}
		return nil
	}
}
