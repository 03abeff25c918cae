package backend

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Rolling summary defaults.
const (
	DefaultHistory    = 20
	summaryStories    = 3
	summaryMaxRunes   = 400
	sentenceTerminals = ".!?"
)

// History keeps the bodies of the most recent stories.
type History struct {
	mu     sync.Mutex
	bodies []string
	max    int
}

// NewHistory keeps up to max bodies.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistory
	}
	return &History{max: max}
}

// Add records a finished story. Blank bodies are ignored.
func (h *History) Add(body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bodies = append(h.bodies, body)
	if len(h.bodies) > h.max {
		h.bodies = h.bodies[len(h.bodies)-h.max:]
	}
}

// Len returns the number of stored bodies.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.bodies)
}

// Summary condenses the latest stories into one line: the first sentence of
// each, newest first, capped in length.
func (h *History) Summary() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var parts []string
	for i := len(h.bodies) - 1; i >= 0 && len(parts) < summaryStories; i-- {
		if s := firstSentence(h.bodies[i]); s != "" {
			parts = append(parts, s)
		}
	}
	out := strings.Join(parts, " / ")
	if utf8.RuneCountInString(out) > summaryMaxRunes {
		out = string([]rune(out)[:summaryMaxRunes])
	}
	return out
}

// firstSentence returns the first sentence of the story text, skipping a
// leading Title line.
func firstSentence(body string) string {
	if strings.HasPrefix(body, "Title:") {
		if i := strings.IndexByte(body, '\n'); i >= 0 {
			body = body[i+1:]
		}
	}
	for _, label := range []string{"Hook:", "Story:"} {
		body = strings.Replace(body, label, "", 1)
	}
	body = strings.Join(strings.Fields(body), " ")
	if i := strings.IndexAny(body, sentenceTerminals); i >= 0 {
		return body[:i+1]
	}
	return body
}
