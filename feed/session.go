package feed

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Slot identifies which of the two streams of a cycle a session occupies.
type Slot int

const (
	// SlotFirst is the story that starts the run.
	SlotFirst Slot = iota
	// SlotSecond is the overlapping next story.
	SlotSecond
)

// String returns the string representation of the slot.
func (s Slot) String() string {
	if s == SlotSecond {
		return "second"
	}
	return "first"
}

// Phase tracks whether a session has located its start marker yet.
type Phase int

const (
	// PhasePre waits for a start marker; no words are extracted.
	PhasePre Phase = iota
	// PhaseRun emits words from the content after the marker.
	PhaseRun
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	if p == PhaseRun {
		return "run"
	}
	return "pre"
}

// Session is the state of one generation stream.
//
// Raw text is append-only. Once the start marker resolves, the start offset
// is fixed and only text after it is ever split into words. The consumed
// offset trails the raw length by zero after every Feed.
type Session struct {
	ID   string
	Slot Slot

	raw      strings.Builder
	phase    Phase
	start    int
	consumed int
	carry    string

	fallbackLen int
	words       int
	done        bool
	failed      bool

	cancel context.CancelFunc
}

// NewSession creates a session for slot. fallbackLen is the raw length after
// which a stream without any start marker is displayed from the beginning.
func NewSession(slot Slot, fallbackLen int) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Slot:        slot,
		fallbackLen: fallbackLen,
	}
}

// Feed appends a raw delta and returns the complete, sanitized words it
// made available. Nothing is returned while the start marker is unresolved.
func (s *Session) Feed(delta string) []string {
	if s.done {
		return nil
	}
	s.raw.WriteString(delta)
	raw := s.raw.String()

	if s.phase == PhasePre {
		start := FindStart(raw, s.fallbackLen)
		if start == NotYet {
			return nil
		}
		s.phase = PhaseRun
		s.start = start
		s.consumed = start
	}

	if len(raw) <= s.consumed {
		return nil
	}
	fresh := raw[s.consumed:]
	s.consumed = len(raw)

	var words []string
	words, s.carry = SplitWords(s.carry, fresh)
	words = Sanitize(words)
	s.words += len(words)
	return words
}

// Finish marks the session complete and returns the held-back carry as a
// final word, if there is one. Later calls return nothing.
func (s *Session) Finish() []string {
	if s.done {
		return nil
	}
	s.done = true
	if s.carry == "" {
		return nil
	}
	last := Sanitize([]string{s.carry})
	s.carry = ""
	s.words += len(last)
	return last
}

// Fail marks the session as finished by a transport error. The carry is
// still returned so no received word is lost.
func (s *Session) Fail() []string {
	s.failed = true
	return s.Finish()
}

// Close cancels the session's transport if it is still open.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Phase returns the session phase.
func (s *Session) Phase() Phase { return s.phase }

// Start returns the resolved content offset. It is only meaningful in PhaseRun.
func (s *Session) Start() int { return s.start }

// Consumed returns the raw offset already split into words.
func (s *Session) Consumed() int { return s.consumed }

// Carry returns the trailing partial word held for the next delta.
func (s *Session) Carry() string { return s.carry }

// Raw returns all text received so far.
func (s *Session) Raw() string { return s.raw.String() }

// Words returns how many words the session has produced.
func (s *Session) Words() int { return s.words }

// Done reports whether the session finished, cleanly or not.
func (s *Session) Done() bool { return s.done }

// Failed reports whether the session ended with a transport error.
func (s *Session) Failed() bool { return s.failed }
