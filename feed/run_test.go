package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/storyfeed/feed/audio"
	"github.com/dgnsrekt/storyfeed/internal/generate"
)

// harness drives a run on virtual time. Posted closures run immediately,
// which is what the pipeline loop does one step at a time.
type harness struct {
	t      *testing.T
	clock  *ManualClock
	start  time.Time
	run    *Run
	opened []*Session
	events []Event
	shown  []shownAt
}

type shownAt struct {
	msg BlockShownMsg
	at  time.Duration
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	if err := opts.Validate(); err != nil {
		t.Fatalf("invalid options: %v", err)
	}
	h := &harness{t: t, start: time.Unix(1_700_000_000, 0)}
	h.clock = NewManualClock(h.start)
	env := runEnv{
		clock:  h.clock,
		logger: log.New(io.Discard),
		post:   func(f func()) { f() },
		emit:   h.record,
		open:   func(_ *Run, s *Session) { h.opened = append(h.opened, s) },
	}
	h.run = newRun(context.Background(), opts, env)
	return h
}

func (h *harness) record(ev Event) {
	h.events = append(h.events, ev)
	if m, ok := ev.(BlockShownMsg); ok {
		h.shown = append(h.shown, shownAt{msg: m, at: h.clock.Now().Sub(h.start)})
	}
}

func (h *harness) session(i int) *Session {
	h.t.Helper()
	if i >= len(h.opened) {
		h.t.Fatalf("session %d not opened (%d opened)", i, len(h.opened))
	}
	return h.opened[i]
}

func (h *harness) shownWords() []string {
	var out []string
	for _, s := range h.shown {
		out = append(out, s.msg.Block.Words...)
	}
	return out
}

func (h *harness) statuses() []Status {
	var out []Status
	for _, ev := range h.events {
		if m, ok := ev.(StatusChangedMsg); ok {
			out = append(out, m.Status)
		}
	}
	return out
}

// drain advances virtual time until every queued block has been shown.
func (h *harness) drain() {
	for range 200 {
		if !h.run.sched.Showing() && h.run.buf.Queued() == 0 {
			return
		}
		h.clock.Advance(time.Second)
	}
	h.t.Fatal("display never drained")
}

func numbered(prefix string, n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "%s%d ", prefix, i)
	}
	return sb.String()
}

func singleStream() Options {
	o := DefaultOptions()
	o.DualStream = false
	return o
}

func TestRunEndToEndSingleStory(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.run.Start()
	s1 := h.session(0)

	// The marker and words arrive split across deltas; the last word has no
	// trailing whitespace and is only released by [DONE].
	body := numbered("w", 40)
	deltas := []string{"Title: Lamp\nHo", "ok: Once up", "on a time. ", body[:57], body[57:], "fin"}
	for _, d := range deltas {
		h.run.StreamDelta(s1, d)
		h.clock.Advance(100 * time.Millisecond)
	}
	if slices.Contains(h.statuses(), StatusDone) {
		t.Fatal("status done before [DONE]")
	}
	if h.run.Status() != StatusLoading {
		t.Fatalf("status = %v, want loading", h.run.Status())
	}

	h.run.StreamEnded(s1, nil)
	if h.run.Status() != StatusDone {
		t.Fatalf("status = %v after [DONE], want done", h.run.Status())
	}
	if h.run.buf.Pending() != 0 {
		t.Errorf("pending %d words after completion", h.run.buf.Pending())
	}

	h.drain()
	h.clock.Advance(time.Minute)

	if len(h.opened) != 1 {
		t.Errorf("opened %d sessions, want 1", len(h.opened))
	}

	want := append([]string{"Once", "upon", "a", "time."}, strings.Fields(body)...)
	want = append(want, "fin")
	if got := h.shownWords(); !slices.Equal(got, want) {
		t.Fatalf("shown words = %q\nwant %q", got, want)
	}

	undersized := 0
	for _, s := range h.shown {
		if s.msg.Block.Len() < DefaultOptions().BlockSize {
			undersized++
		}
	}
	if undersized > 1 {
		t.Errorf("%d undersized blocks, want at most 1", undersized)
	}
	if len(h.shown) != 2 {
		t.Fatalf("shown %d blocks, want 2", len(h.shown))
	}
	if h.shown[0].msg.Duration != 7*time.Second {
		t.Errorf("first block duration = %v, want 7s", h.shown[0].msg.Duration)
	}
	if h.shown[1].at-h.shown[0].at != 7*time.Second {
		t.Errorf("second block shown %v after first, want 7s", h.shown[1].at-h.shown[0].at)
	}

	drained, lastShown := -1, -1
	for i, ev := range h.events {
		switch ev.(type) {
		case RunDrainedMsg:
			if drained >= 0 {
				t.Error("run drained twice")
			}
			drained = i
		case BlockShownMsg:
			lastShown = i
		}
	}
	if drained < lastShown {
		t.Errorf("drained at event %d, last block at %d", drained, lastShown)
	}
}

func TestRunDrainsOnlyOffScreen(t *testing.T) {
	h := newHarness(t, singleStream())
	h.run.Start()
	s1 := h.session(0)
	h.run.StreamDelta(s1, "Hook: "+numbered("w", 3))
	h.run.StreamEnded(s1, errors.New("reset by peer"))

	isDrained := func() bool {
		for _, ev := range h.events {
			if _, ok := ev.(RunDrainedMsg); ok {
				return true
			}
		}
		return false
	}
	if !h.run.sched.Showing() {
		t.Fatal("tail not shown after the stream ended")
	}
	if isDrained() {
		t.Fatal("drained while a block is on screen")
	}
	h.drain()
	if !isDrained() {
		t.Error("not drained after the last block left the screen")
	}
}

func TestRunStartsNextStoryOnce(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.run.Start()
	s1 := h.session(0)

	h.run.StreamDelta(s1, "Hook: first words ")
	if h.run.FirstWordAt().IsZero() {
		t.Fatal("first word time not recorded")
	}

	h.clock.Advance(19999 * time.Millisecond)
	if len(h.opened) != 1 {
		t.Fatalf("second session opened early at %d sessions", len(h.opened))
	}

	h.clock.Advance(time.Millisecond)
	if len(h.opened) != 2 {
		t.Fatalf("opened %d sessions at 20s, want 2", len(h.opened))
	}
	if h.session(1).Slot != SlotSecond {
		t.Errorf("second session slot = %v", h.session(1).Slot)
	}

	if h.run.coord.StartSecond() {
		t.Error("StartSecond() opened another session")
	}
	h.clock.Advance(time.Minute)
	if len(h.opened) != 2 {
		t.Errorf("opened %d sessions, want exactly 2", len(h.opened))
	}
}

func TestRunFirstStoryFinishingCancelsNext(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.run.Start()
	s1 := h.session(0)

	h.run.StreamDelta(s1, "Hook: short story ")
	h.clock.Advance(5 * time.Second)
	h.run.StreamEnded(s1, nil)

	h.clock.Advance(time.Minute)
	if len(h.opened) != 1 {
		t.Errorf("opened %d sessions, want 1", len(h.opened))
	}
	if h.run.Status() != StatusDone {
		t.Errorf("status = %v, want done", h.run.Status())
	}
}

func TestRunWaitsForSecondStory(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.run.Start()
	s1 := h.session(0)

	h.run.StreamDelta(s1, "Hook: "+numbered("a", 10))
	h.clock.Advance(20 * time.Second)
	s2 := h.session(1)

	h.run.StreamEnded(s1, nil)
	if h.run.Status() != StatusLoading {
		t.Fatalf("status = %v with second story running", h.run.Status())
	}

	h.run.StreamDelta(s2, "Story: "+numbered("b", 3))
	h.run.StreamEnded(s2, nil)
	if h.run.Status() != StatusDone {
		t.Fatalf("status = %v, want done", h.run.Status())
	}

	h.drain()
	want := append(strings.Fields(numbered("a", 10)), strings.Fields(numbered("b", 3))...)
	if got := h.shownWords(); !slices.Equal(got, want) {
		t.Errorf("shown = %q, want %q", got, want)
	}
}

func TestRunSecondStoryUsesContinueMode(t *testing.T) {
	opts := DefaultOptions()
	opts.NextMode = generate.ModeContinue
	h := newHarness(t, opts)
	h.run.env.categories = []string{"aita"}
	h.run.Start()
	s1 := h.session(0)

	first := h.run.Request(s1)
	if first.Mode != generate.ModeInitial || first.Seed != s1.ID {
		t.Errorf("first request = %+v", first)
	}

	h.run.StreamDelta(s1, "Title: x\nHook: my roommate ate my lunch ")
	h.clock.Advance(20 * time.Second)
	req := h.run.Request(h.session(1))
	if req.Mode != generate.ModeContinue {
		t.Errorf("second mode = %q, want continue", req.Mode)
	}
	if req.Context.Prior != "my roommate ate my lunch" {
		t.Errorf("prior = %q", req.Context.Prior)
	}
	if req.Continuation != generate.FlavorAITA {
		t.Errorf("continuation = %q, want aita", req.Continuation)
	}
}

func TestRunSessionFailureKeepsSiblingAlive(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.run.Start()
	s1 := h.session(0)

	h.run.StreamDelta(s1, "Hook: "+numbered("a", 5))
	h.clock.Advance(20 * time.Second)
	s2 := h.session(1)

	transport := errors.New("connection reset")
	h.run.StreamEnded(s1, transport)
	if h.run.Status() != StatusError {
		t.Fatalf("status = %v, want error", h.run.Status())
	}
	var serr *SessionError
	if !errors.As(h.run.Err(), &serr) || serr.Slot != SlotFirst || !errors.Is(serr, transport) {
		t.Errorf("Err() = %v", h.run.Err())
	}

	h.run.StreamDelta(s2, "Hook: "+numbered("b", 40))
	h.run.StreamEnded(s2, nil)
	h.drain()

	want := append(strings.Fields(numbered("a", 5)), strings.Fields(numbered("b", 40))...)
	if got := h.shownWords(); !slices.Equal(got, want) {
		t.Errorf("shown = %q\nwant %q", got, want)
	}
	if h.run.Status() != StatusError {
		t.Errorf("status = %v, error must stick", h.run.Status())
	}
}

func TestRunSingleStreamFailureFlushes(t *testing.T) {
	h := newHarness(t, singleStream())
	h.run.Start()
	s1 := h.session(0)

	h.run.StreamDelta(s1, "Hook: "+numbered("w", 12)+"trunc")
	h.run.StreamEnded(s1, ErrStreamClosed)
	h.drain()

	want := append(strings.Fields(numbered("w", 12)), "trunc")
	if got := h.shownWords(); !slices.Equal(got, want) {
		t.Errorf("shown = %q, want %q", got, want)
	}
	if h.run.Status() != StatusError {
		t.Errorf("status = %v, want error", h.run.Status())
	}
}

func TestWatchdogFlushesIdleTail(t *testing.T) {
	h := newHarness(t, singleStream())
	h.run.Start()
	s1 := h.session(0)

	h.run.StreamDelta(s1, "Hook: a b c ")
	h.clock.Advance(1200 * time.Millisecond)
	if len(h.shown) != 0 {
		t.Fatalf("tail shown after %v", h.shown[0].at)
	}

	h.clock.Advance(300 * time.Millisecond)
	if len(h.shown) != 1 {
		t.Fatalf("shown %d blocks after idle threshold, want 1", len(h.shown))
	}
	if h.shown[0].at != 1500*time.Millisecond {
		t.Errorf("tail shown at %v, want 1.5s", h.shown[0].at)
	}
	if !slices.Equal(h.shown[0].msg.Block.Words, []string{"a", "b", "c"}) {
		t.Errorf("tail = %q", h.shown[0].msg.Block.Words)
	}
	if h.run.watchdog.Flushes() != 1 {
		t.Errorf("Flushes() = %d, want 1", h.run.watchdog.Flushes())
	}
}

func TestWatchdogLeavesLargeRemainder(t *testing.T) {
	h := newHarness(t, singleStream())
	h.run.Start()
	s1 := h.session(0)

	h.run.StreamDelta(s1, "Hook: "+numbered("r", 7))
	h.clock.Advance(10 * time.Second)
	if len(h.shown) != 0 {
		t.Fatalf("remainder of 7 words shown before completion")
	}

	h.run.StreamEnded(s1, nil)
	if len(h.shown) != 1 || h.shown[0].msg.Block.Len() != 7 {
		t.Fatalf("completion flush shown = %+v", h.shown)
	}
}

func TestWatchdogTickSkipsWhileShowing(t *testing.T) {
	h := newHarness(t, singleStream())
	h.run.Start()
	s1 := h.session(0)

	h.run.StreamDelta(s1, "Hook: "+numbered("x", 38))
	if !h.run.sched.Showing() {
		t.Fatal("full block not showing")
	}
	h.clock.Advance(2 * time.Second)
	if h.run.watchdog.Tick() {
		t.Error("Tick() flushed while a block is showing")
	}
	if h.run.buf.Pending() != 3 {
		t.Errorf("pending = %d, want 3", h.run.buf.Pending())
	}
}

func TestRunCloseIgnoresLateEvents(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.run.Start()
	s1 := h.session(0)
	h.run.StreamDelta(s1, "Hook: hello ")

	h.run.Close()
	before := len(h.events)
	h.run.StreamDelta(s1, numbered("late", 50))
	h.run.StreamEnded(s1, nil)
	h.clock.Advance(time.Minute)

	if len(h.events) != before {
		t.Errorf("events after Close: %v", h.events[before:])
	}
	if len(h.opened) != 1 {
		t.Errorf("second session opened after Close")
	}
	if h.clock.Pending() != 0 {
		t.Errorf("%d timers still pending after Close", h.clock.Pending())
	}
}

// fakeSpeaker records submitted jobs.
type fakeSpeaker struct {
	jobs   []audio.Job
	err    error
	closed bool
}

func (f *fakeSpeaker) Submit(job audio.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeSpeaker) Close() error {
	f.closed = true
	return nil
}

func audioPaced() Options {
	o := singleStream()
	o.AudioEnabled = true
	o.AudioPaced = true
	return o
}

func TestRunAudioPacedFollowsPlayback(t *testing.T) {
	h := newHarness(t, audioPaced())
	sp := &fakeSpeaker{}
	h.run.env.speaker = sp
	h.run.env.voice = "coral"
	h.run.Start()
	s1 := h.session(0)

	h.run.StreamDelta(s1, "Hook: "+numbered("a", 35)+numbered("b", 35))
	if len(sp.jobs) != 1 || sp.jobs[0].Seq != 1 || sp.jobs[0].Voice != "coral" {
		t.Fatalf("jobs = %+v", sp.jobs)
	}
	if len(h.shown) != 0 {
		t.Fatal("block shown before audio started")
	}

	h.run.HandleAudio(audio.Event{Kind: audio.EventStarted, Seq: 1})
	if len(h.shown) != 1 || !h.shown[0].msg.Spoken {
		t.Fatalf("shown = %+v", h.shown)
	}

	// Timers must not advance an audio paced block.
	h.clock.Advance(time.Minute)
	if len(sp.jobs) != 1 {
		t.Fatalf("advanced without audio end: %d jobs", len(sp.jobs))
	}

	h.run.HandleAudio(audio.Event{Kind: audio.EventEnded, Seq: 1})
	if len(sp.jobs) != 2 || sp.jobs[1].Seq != 2 {
		t.Fatalf("second job not submitted: %+v", sp.jobs)
	}

	// Speech for block 2 gives up: it is shown on a timer instead.
	h.run.HandleAudio(audio.Event{Kind: audio.EventDropped, Seq: 2, Err: errors.New("503")})
	if len(h.shown) != 2 || h.shown[1].msg.Spoken || h.shown[1].msg.Duration != 7*time.Second {
		t.Fatalf("dropped block shown = %+v", h.shown)
	}
	dropped := false
	for _, ev := range h.events {
		if _, ok := ev.(AudioDroppedMsg); ok {
			dropped = true
		}
	}
	if !dropped {
		t.Error("no AudioDroppedMsg emitted")
	}

	h.clock.Advance(7 * time.Second)
	if h.run.sched.Showing() {
		t.Error("dropped block still showing after its duration")
	}
}

func TestRunAudioPacedFallsBackWithoutSpeaker(t *testing.T) {
	h := newHarness(t, audioPaced())
	h.run.env.speaker = &fakeSpeaker{err: audio.ErrQueueClosed}
	h.run.Start()
	s1 := h.session(0)

	h.run.StreamDelta(s1, "Hook: "+numbered("a", 35))
	if len(h.shown) != 1 || h.shown[0].msg.Spoken {
		t.Fatalf("shown = %+v", h.shown)
	}
}

func TestRunTimerPacedSpeaksAlong(t *testing.T) {
	h := newHarness(t, singleStream())
	sp := &fakeSpeaker{}
	h.run.Start()
	h.run.AttachSpeaker(sp, "verse")
	s1 := h.session(0)

	h.run.StreamDelta(s1, "Hook: "+numbered("a", 35))
	if len(h.shown) != 1 || !h.shown[0].msg.Spoken {
		t.Fatalf("shown = %+v", h.shown)
	}
	if len(sp.jobs) != 1 || sp.jobs[0].Voice != "verse" {
		t.Errorf("jobs = %+v", sp.jobs)
	}

	h.run.Close()
	if !sp.closed {
		t.Error("speaker not closed with the run")
	}
}
