package ui

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/storyfeed/feed"
)

// RunPlain writes each shown block of f to w as a line of its own, for
// pipes and dumb terminals. A width above zero wraps long blocks. It returns
// once the story has been shown in full, or when ctx ends or the feed closes.
func RunPlain(ctx context.Context, w io.Writer, f Feed, width int) error {
	var run string
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-f.Events():
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case feed.RunStartedMsg:
				run = ev.Run
			case feed.BlockShownMsg:
				if ev.Run != run {
					continue
				}
				text := ev.Block.Text()
				if width > 0 {
					text = wordwrap.String(text, width)
				}
				if _, err := fmt.Fprintln(w, text); err != nil {
					return fmt.Errorf("write block: %w", err)
				}
			case feed.RunDrainedMsg:
				if ev.Run == run {
					return nil
				}
			case feed.StatusChangedMsg:
				if ev.Run == run && ev.Status == feed.StatusError {
					log.Error("Story failed", "err", ev.Err)
				}
			}
		}
	}
}
