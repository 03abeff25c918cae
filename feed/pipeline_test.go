package feed_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/storyfeed/feed"
	"github.com/dgnsrekt/storyfeed/feed/audio"
	"github.com/dgnsrekt/storyfeed/internal/generate"
)

// scriptSource answers the n-th Open with the n-th scripted stream. A script
// without a Done event blocks until its context is cancelled, unless errs
// holds an error for it: then the stream fails with it once the script runs
// out, and a nil script makes Open itself fail. A hold channel delays the
// Done event until it is closed.
type scriptSource struct {
	mu      sync.Mutex
	scripts [][]generate.Event
	errs    map[int]error
	holds   map[int]chan struct{}
	reqs    []generate.Request
}

func (s *scriptSource) Open(ctx context.Context, req generate.Request) (generate.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.reqs)
	s.reqs = append(s.reqs, req)
	var script []generate.Event
	if n < len(s.scripts) {
		script = s.scripts[n]
	}
	err := s.errs[n]
	if err != nil && script == nil {
		return nil, err
	}
	return &scriptStream{ctx: ctx, events: script, err: err, hold: s.holds[n]}, nil
}

type scriptStream struct {
	ctx    context.Context
	events []generate.Event
	err    error
	hold   chan struct{}
	done   bool
}

func (s *scriptStream) Next() (generate.Event, error) {
	if s.done {
		return generate.Event{}, io.EOF
	}
	if len(s.events) == 0 {
		if s.err != nil {
			return generate.Event{}, s.err
		}
		<-s.ctx.Done()
		return generate.Event{}, s.ctx.Err()
	}
	ev := s.events[0]
	if ev.Done && s.hold != nil {
		select {
		case <-s.hold:
		case <-s.ctx.Done():
			return generate.Event{}, s.ctx.Err()
		}
	}
	s.events = s.events[1:]
	s.done = ev.Done
	return ev, nil
}

func (s *scriptStream) Close() error { return nil }

func story(text string, done bool) []generate.Event {
	var evs []generate.Event
	for len(text) > 0 {
		n := min(7, len(text))
		evs = append(evs, generate.Event{Delta: text[:n]})
		text = text[n:]
	}
	if done {
		evs = append(evs, generate.Event{Done: true})
	}
	return evs
}

func fastOptions() feed.Options {
	o := feed.DefaultOptions()
	o.BlockSize = 5
	o.SmallTail = 2
	o.WordsPerMinute = 60000
	o.MinBlock = time.Millisecond
	o.WatchdogInterval = 5 * time.Millisecond
	o.IdleFlush = 20 * time.Millisecond
	o.DualStream = false
	return o
}

func numberedWords(prefix string, n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "%s%d ", prefix, i)
	}
	return sb.String()
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

// collect reads events until stop returns true.
func collect(t *testing.T, p *feed.Pipeline, stop func([]feed.Event) bool) []feed.Event {
	t.Helper()
	var got []feed.Event
	timeout := time.After(5 * time.Second)
	for !stop(got) {
		select {
		case ev, ok := <-p.Events():
			if !ok {
				t.Fatalf("events closed after %d events", len(got))
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events", len(got))
		}
	}
	return got
}

func shownWords(evs []feed.Event, run string) []string {
	var out []string
	for _, ev := range evs {
		if m, ok := ev.(feed.BlockShownMsg); ok && (run == "" || m.Run == run) {
			out = append(out, m.Block.Words...)
		}
	}
	return out
}

func hasStatus(evs []feed.Event, st feed.Status) bool {
	for _, ev := range evs {
		if m, ok := ev.(feed.StatusChangedMsg); ok && m.Status == st {
			return true
		}
	}
	return false
}

func TestPipelineShowsWholeStory(t *testing.T) {
	src := &scriptSource{scripts: [][]generate.Event{
		story("Title: Lamp\nHook: "+numberedWords("w", 12), true),
	}}
	p, err := feed.New(src, fastOptions(), feed.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	evs := collect(t, p, func(evs []feed.Event) bool {
		return len(shownWords(evs, "")) >= 12 && hasStatus(evs, feed.StatusDone)
	})

	want := strings.Fields(numberedWords("w", 12))
	if got := shownWords(evs, ""); strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("shown = %q, want %q", got, want)
	}
	if p.Status() != feed.StatusDone {
		t.Errorf("Status() = %v", p.Status())
	}

	tr := p.Transcript()
	if len(tr) != 3 || tr[0].Len() != 5 || tr[2].Len() != 2 {
		t.Errorf("transcript = %+v", tr)
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	if len(src.reqs) != 1 || src.reqs[0].MaxWords != fastOptions().MaxWordsPerStory {
		t.Errorf("requests = %+v", src.reqs)
	}
}

func TestPipelineResetStartsFreshRun(t *testing.T) {
	src := &scriptSource{scripts: [][]generate.Event{
		story("Hook: "+numberedWords("old", 6), false),
		story("Hook: "+numberedWords("new", 5), true),
	}}
	p, err := feed.New(src, fastOptions(), feed.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	first := collect(t, p, func(evs []feed.Event) bool { return len(shownWords(evs, "")) > 0 })
	oldRun := first[0].RunID()

	if err := p.Reset(); err != nil {
		t.Fatal(err)
	}

	var newRun string
	evs := collect(t, p, func(evs []feed.Event) bool {
		for _, ev := range evs {
			if m, ok := ev.(feed.RunStartedMsg); ok {
				newRun = m.Run
			}
		}
		return newRun != "" && len(shownWords(evs, newRun)) >= 5 && hasStatus(evs, feed.StatusDone)
	})

	if newRun == oldRun {
		t.Fatal("reset reused the run id")
	}
	seenNew := false
	for _, ev := range evs {
		if ev.RunID() == newRun {
			seenNew = true
			continue
		}
		if seenNew {
			t.Errorf("event %T from old run after reset", ev)
		}
	}
	for _, w := range shownWords(evs, newRun) {
		if strings.HasPrefix(w, "old") {
			t.Errorf("old word %q shown in new run", w)
		}
	}
}

func TestPipelineTranscriptIsBounded(t *testing.T) {
	opts := fastOptions()
	opts.BlockSize = 1
	opts.SmallTail = 1
	src := &scriptSource{scripts: [][]generate.Event{
		story("Hook: "+numberedWords("w", 250), true),
	}}
	p, err := feed.New(src, opts, feed.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	collect(t, p, func(evs []feed.Event) bool { return len(shownWords(evs, "")) >= 250 })

	tr := p.Transcript()
	if len(tr) != feed.TranscriptSize {
		t.Fatalf("transcript len = %d, want %d", len(tr), feed.TranscriptSize)
	}
	if tr[0].Words[0] != "w51" || tr[len(tr)-1].Words[0] != "w250" {
		t.Errorf("transcript spans %q..%q", tr[0].Words, tr[len(tr)-1].Words)
	}
}

type echoSynth struct{}

func (echoSynth) Synthesize(_ context.Context, text, voice string) (*audio.Clip, error) {
	return &audio.Clip{Data: []byte(text), Format: audio.SpeechFormat, Voice: voice}, nil
}

func TestPipelineEnableAudio(t *testing.T) {
	src := &scriptSource{scripts: [][]generate.Event{
		story("Hook: "+numberedWords("w", 10), true),
	}}

	plain, err := feed.New(src, fastOptions(), feed.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if err := plain.EnableAudio(); !errors.Is(err, feed.ErrAudioDisabled) {
		t.Errorf("EnableAudio() without speech error = %v", err)
	}

	muted, err := feed.New(src, fastOptions(),
		feed.WithLogger(quietLogger()),
		feed.WithSpeech(echoSynth{}, audio.NewMockPlayer(), audio.DefaultConfig()),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := muted.EnableAudio(); !errors.Is(err, feed.ErrAudioDisabled) {
		t.Errorf("EnableAudio() with audio_enabled off error = %v", err)
	}

	opts := fastOptions()
	opts.AudioEnabled = true
	player := audio.NewMockPlayer()
	p, err := feed.New(src, opts,
		feed.WithLogger(quietLogger()),
		feed.WithSpeech(echoSynth{}, player, audio.DefaultConfig()),
		feed.WithVoice("sage"),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if err := p.EnableAudio(); err != nil {
		t.Fatalf("EnableAudio() before Start error = %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.EnableAudio(); err != nil {
		t.Fatalf("second EnableAudio() error = %v", err)
	}

	evs := collect(t, p, func(evs []feed.Event) bool {
		return len(shownWords(evs, "")) >= 10 && hasStatus(evs, feed.StatusDone)
	})

	var voice string
	for _, ev := range evs {
		if m, ok := ev.(feed.AudioEnabledMsg); ok {
			voice = m.Voice
		}
	}
	if voice != "sage" {
		t.Errorf("audio enabled voice = %q", voice)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(player.Played()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(player.Played()) == 0 {
		t.Error("nothing was played after enabling audio")
	}
}

func TestPipelineLifecycle(t *testing.T) {
	p, err := feed.New(&scriptSource{}, fastOptions(), feed.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Reset(); !errors.Is(err, feed.ErrNotStarted) {
		t.Errorf("Reset() before Start error = %v", err)
	}

	opts := fastOptions()
	opts.AudioEnabled = true
	if _, err := feed.New(&scriptSource{}, opts); !errors.Is(err, feed.ErrInvalidOptions) {
		t.Errorf("New() with audio and no synthesizer error = %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-p.Events():
			if !ok {
				if err := p.Reset(); !errors.Is(err, feed.ErrClosed) {
					t.Errorf("Reset() after Close error = %v", err)
				}
				return
			}
		case <-timeout:
			t.Fatal("events channel not closed after Close")
		}
	}
}

func TestPipelineSetOptions(t *testing.T) {
	p, err := feed.New(&scriptSource{}, fastOptions(), feed.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	bad := fastOptions()
	bad.BlockSize = 0
	if err := p.SetOptions(bad); !errors.Is(err, feed.ErrInvalidOptions) {
		t.Errorf("SetOptions(block_size=0) error = %v", err)
	}
	audioOn := fastOptions()
	audioOn.AudioEnabled = true
	if err := p.SetOptions(audioOn); !errors.Is(err, feed.ErrInvalidOptions) {
		t.Errorf("SetOptions(audio without synthesizer) error = %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	slower := fastOptions()
	slower.WordsPerMinute = 600
	if err := p.SetOptions(slower); err != nil {
		t.Errorf("SetOptions() after Start error = %v", err)
	}
}

// countingSynth records every text it is asked to speak.
type countingSynth struct {
	mu    sync.Mutex
	texts []string
}

func (c *countingSynth) Synthesize(_ context.Context, text, voice string) (*audio.Clip, error) {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	return &audio.Clip{Data: []byte(text), Format: audio.SpeechFormat, Voice: voice}, nil
}

func (c *countingSynth) spoken() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func TestPipelineAudioOffSilencesLaterRuns(t *testing.T) {
	src := &scriptSource{scripts: [][]generate.Event{
		story("Hook: "+numberedWords("old", 6), false),
		story("Hook: "+numberedWords("new", 10), true),
	}}
	opts := fastOptions()
	opts.AudioEnabled = true
	synth := &countingSynth{}
	p, err := feed.New(src, opts,
		feed.WithLogger(quietLogger()),
		feed.WithSpeech(synth, audio.NewMockPlayer(), audio.DefaultConfig()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if err := p.EnableAudio(); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	collect(t, p, func(evs []feed.Event) bool { return len(shownWords(evs, "")) > 0 })

	off := opts
	off.AudioEnabled = false
	if err := p.SetOptions(off); err != nil {
		t.Fatal(err)
	}
	if err := p.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := p.EnableAudio(); !errors.Is(err, feed.ErrAudioDisabled) {
		t.Errorf("EnableAudio() after switching audio off error = %v", err)
	}

	var newRun string
	evs := collect(t, p, func(evs []feed.Event) bool {
		for _, ev := range evs {
			if m, ok := ev.(feed.RunStartedMsg); ok {
				newRun = m.Run
			}
		}
		return newRun != "" && len(shownWords(evs, newRun)) >= 10 && hasStatus(evs, feed.StatusDone)
	})
	for _, ev := range evs {
		if m, ok := ev.(feed.AudioEnabledMsg); ok && m.Run == newRun {
			t.Error("audio enabled for a run started with audio off")
		}
	}
	for _, text := range synth.spoken() {
		if strings.Contains(text, "new") {
			t.Errorf("spoke %q after audio was switched off", text)
		}
	}
}

func TestPipelineSessionFailureKeepsSiblingShowing(t *testing.T) {
	tests := []struct {
		name    string
		second  []generate.Event
		err     error
		wantErr error
	}{
		{"open fails", nil, errors.New("dial refused"), nil},
		{"stream breaks", story("Hook: b1 b2 b3 ", false), errors.New("connection reset"), nil},
		{"stream closes early", story("Hook: b1 b2 ", false), io.EOF, feed.ErrStreamClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hold := make(chan struct{})
			src := &scriptSource{
				scripts: [][]generate.Event{
					story("Hook: "+numberedWords("a", 12), true),
					tt.second,
				},
				errs:  map[int]error{1: tt.err},
				holds: map[int]chan struct{}{0: hold},
			}
			opts := fastOptions()
			opts.DualStream = true
			opts.NextStartAfter = 10 * time.Millisecond
			p, err := feed.New(src, opts, feed.WithLogger(quietLogger()))
			if err != nil {
				t.Fatal(err)
			}
			defer p.Close()
			if err := p.Start(context.Background()); err != nil {
				t.Fatal(err)
			}

			evs := collect(t, p, func(evs []feed.Event) bool { return hasStatus(evs, feed.StatusError) })
			for _, ev := range evs {
				m, ok := ev.(feed.StatusChangedMsg)
				if !ok || m.Status != feed.StatusError {
					continue
				}
				var serr *feed.SessionError
				if !errors.As(m.Err, &serr) || serr.Slot != feed.SlotSecond {
					t.Errorf("error status cause = %v", m.Err)
				}
				want := tt.wantErr
				if want == nil {
					want = tt.err
				}
				if !errors.Is(m.Err, want) {
					t.Errorf("error status cause = %v, want %v", m.Err, want)
				}
			}
			close(hold)

			firstStory := func(evs []feed.Event) []string {
				var out []string
				for _, w := range shownWords(evs, "") {
					if strings.HasPrefix(w, "a") {
						out = append(out, w)
					}
				}
				return out
			}
			evs = append(evs, collect(t, p, func(more []feed.Event) bool {
				return len(firstStory(append(evs, more...))) >= 12
			})...)

			want := strings.Fields(numberedWords("a", 12))
			if got := firstStory(evs); strings.Join(got, " ") != strings.Join(want, " ") {
				t.Errorf("first story shown = %q, want %q", got, want)
			}
			if hasStatus(evs, feed.StatusDone) {
				t.Error("status left error after the first story finished")
			}
			if p.Status() != feed.StatusError {
				t.Errorf("Status() = %v", p.Status())
			}
		})
	}
}
