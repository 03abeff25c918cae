package ui

import (
	"strconv"
	"strings"

	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/storyfeed/feed"
)

const seqWidth = 5

// renderTranscript lays blocks out one per paragraph with their sequence
// number in a gutter.
func renderTranscript(blocks []feed.Block, width int) string {
	if len(blocks) == 0 {
		return noticeStyle.Render("\n  Nothing shown yet.")
	}
	textWidth := max(width-seqWidth-2, 10)
	gutter := strings.Repeat(" ", seqWidth+1)

	var b strings.Builder
	for i, blk := range blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		seq := runewidth.FillLeft(strconv.Itoa(blk.Seq), seqWidth)
		lines := strings.Split(wordwrap.String(blk.Text(), textWidth), "\n")
		for j, l := range lines {
			if j == 0 {
				b.WriteString(transcriptSeqStyle(seq) + " ")
			} else {
				b.WriteString(gutter)
			}
			b.WriteString(l + "\n")
		}
	}
	return b.String()
}

// transcriptText is the plain text handed to the editor.
func transcriptText(blocks []feed.Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		b.WriteString(wordwrap.String(blk.Text(), 80))
		b.WriteString("\n\n")
	}
	return b.String()
}
