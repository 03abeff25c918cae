package server

import "github.com/dgnsrekt/storyfeed/feed"

// Server to client message types.
const (
	TypeBlock  = "block"
	TypeStatus = "status"
	TypeRun    = "run"
)

// Client to server message types.
const (
	TypeNew        = "new"
	TypeCategories = "categories"
)

// Message is a JSON frame on the feed socket, in either direction.
type Message struct {
	Type       string   `json:"type"`
	Seq        int      `json:"seq,omitempty"`
	Text       string   `json:"text,omitempty"`
	Words      int      `json:"words,omitempty"`
	DurationMS int64    `json:"duration_ms,omitempty"`
	Status     string   `json:"status,omitempty"`
	Error      string   `json:"error,omitempty"`
	Run        string   `json:"run,omitempty"`
	Voice      string   `json:"voice,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// messageFor converts a pipeline event into the frame sent to the browser.
// Events the browser has no use for report false.
func messageFor(ev feed.Event) (Message, bool) {
	switch m := ev.(type) {
	case feed.RunStartedMsg:
		return Message{Type: TypeRun, Run: m.Run, Voice: m.Voice, Categories: m.Categories}, true
	case feed.BlockShownMsg:
		return Message{
			Type:       TypeBlock,
			Seq:        m.Block.Seq,
			Text:       m.Block.Text(),
			Words:      m.Block.Len(),
			DurationMS: m.Duration.Milliseconds(),
		}, true
	case feed.StatusChangedMsg:
		if m.Status == feed.StatusIdle {
			return Message{}, false
		}
		msg := Message{Type: TypeStatus, Status: m.Status.String()}
		if m.Err != nil {
			msg.Error = m.Err.Error()
		}
		return msg, true
	default:
		return Message{}, false
	}
}
