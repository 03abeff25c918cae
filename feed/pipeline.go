package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/storyfeed/feed/audio"
	"github.com/dgnsrekt/storyfeed/internal/generate"
)

// TranscriptSize is how many shown blocks the pipeline remembers.
const TranscriptSize = 200

// Voices is the default pool a run picks its voice from.
var Voices = []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"}

// Pipeline turns generation streams into paced subtitle blocks.
//
// All run state is owned by a single loop goroutine. Stream readers, timers
// and the speech queue never touch it directly; they post closures into the
// loop, which runs them one at a time. A reset closes the current run and
// starts a fresh one inside a single loop step, so nothing can observe a
// half-reset state, and closures posted for an old run are dropped.
type Pipeline struct {
	opts   Options
	source generate.Source
	clock  Clock
	logger *log.Logger

	synth    audio.Synthesizer
	player   audio.Player
	audioCfg audio.Config
	voices   []string
	voice    string
	pick     func(n int) int

	inbox  chan func()
	events chan Event
	done   chan struct{}

	ctx       context.Context
	started   atomic.Bool
	closeOnce sync.Once

	// Owned by the loop.
	run        *Run
	unlocked   bool
	categories []string

	mu         sync.Mutex
	transcript []Block
	status     Status
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for every timer.
func WithClock(c Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithSpeech makes speech available. Nothing is spoken until EnableAudio.
func WithSpeech(synth audio.Synthesizer, player audio.Player, cfg audio.Config) Option {
	return func(p *Pipeline) {
		p.synth = synth
		p.player = player
		p.audioCfg = cfg
	}
}

// WithVoice fixes the voice instead of picking one per run.
func WithVoice(voice string) Option {
	return func(p *Pipeline) { p.voice = voice }
}

// WithVoices replaces the voice pool.
func WithVoices(voices []string) Option {
	return func(p *Pipeline) { p.voices = voices }
}

// WithCategories sets the story categories for the first run.
func WithCategories(categories []string) Option {
	return func(p *Pipeline) { p.categories = slices.Clone(categories) }
}

// WithEventBuffer sets the capacity of the events channel.
func WithEventBuffer(n int) Option {
	return func(p *Pipeline) { p.events = make(chan Event, n) }
}

// New creates a pipeline reading stories from source.
func New(source generate.Source, opts Options, options ...Option) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		opts:     opts,
		source:   source,
		clock:    SystemClock(),
		logger:   log.WithPrefix("feed"),
		audioCfg: audio.DefaultConfig(),
		voices:   Voices,
		pick:     rand.IntN,
		inbox:    make(chan func(), 64),
		events:   make(chan Event, 256),
		done:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(p)
	}
	if p.opts.AudioEnabled && p.synth == nil {
		return nil, fmt.Errorf("%w: audio enabled without a synthesizer", ErrInvalidOptions)
	}
	return p, nil
}

// Start runs the loop until ctx is cancelled or Close is called, and begins
// the first run.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return nil
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	p.ctx = ctx
	go p.loop(ctx)
	return p.do(func() { p.newRun(ctx) })
}

// Events returns the channel of pipeline events. It is closed when the
// pipeline stops.
func (p *Pipeline) Events() <-chan Event {
	return p.events
}

// Reset discards the current run with all of its streams, timers and
// queued blocks, and starts a new one.
func (p *Pipeline) Reset() error {
	if !p.started.Load() {
		return ErrNotStarted
	}
	return p.do(func() {
		p.logger.Info("Starting new generation")
		p.newRun(p.ctx)
	})
}

// EnableAudio records the user's permission to speak. It applies to the
// current run and every later one; before Start it applies from the first
// run. It fails with ErrAudioDisabled while the options keep audio off.
func (p *Pipeline) EnableAudio() error {
	if p.synth == nil || p.player == nil {
		return ErrAudioDisabled
	}
	if !p.started.Load() {
		if !p.opts.AudioEnabled {
			return ErrAudioDisabled
		}
		p.unlocked = true
		return nil
	}
	return p.call(func() error {
		if !p.opts.AudioEnabled {
			return ErrAudioDisabled
		}
		if p.unlocked {
			return nil
		}
		p.unlocked = true
		if p.run != nil {
			p.run.AttachSpeaker(p.newSpeaker(p.run), p.run.env.voice)
		}
		return nil
	})
}

// SetCategories changes the story categories. They apply from the next run.
func (p *Pipeline) SetCategories(categories []string) error {
	c := slices.Clone(categories)
	if !p.started.Load() {
		p.categories = c
		return nil
	}
	return p.do(func() { p.categories = c })
}

// SetOptions replaces the pacing options. They apply from the next run.
// AudioEnabled cannot be switched on without a synthesizer. Switching it off
// keeps later runs silent even after EnableAudio.
func (p *Pipeline) SetOptions(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.AudioEnabled && p.synth == nil {
		return fmt.Errorf("%w: audio enabled without a synthesizer", ErrInvalidOptions)
	}
	if !p.started.Load() {
		p.opts = opts
		return nil
	}
	return p.do(func() { p.opts = opts })
}

// Transcript returns the most recently shown blocks, oldest first.
func (p *Pipeline) Transcript() []Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.transcript)
}

// Status returns the status of the current run.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Close stops the loop and the current run.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}

func (p *Pipeline) loop(ctx context.Context) {
	defer close(p.events)
	defer p.Close()
	defer func() {
		if p.run != nil {
			p.run.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case f := <-p.inbox:
			f()
		}
	}
}

// do posts f to the loop.
func (p *Pipeline) do(f func()) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.inbox <- f:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// call runs f on the loop and waits for its result.
func (p *Pipeline) call(f func() error) error {
	errc := make(chan error, 1)
	if err := p.do(func() { errc <- f() }); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-p.done:
		return ErrClosed
	}
}

// newRun must be called on the loop.
func (p *Pipeline) newRun(parent context.Context) {
	if p.run != nil {
		p.run.Close()
	}

	p.mu.Lock()
	p.transcript = nil
	p.status = StatusIdle
	p.mu.Unlock()

	var r *Run
	env := runEnv{
		clock:      p.clock,
		logger:     p.logger,
		emit:       p.emit,
		open:       p.pump,
		voice:      p.pickVoice(),
		categories: slices.Clone(p.categories),
	}
	env.post = func(f func()) {
		p.post(r, f)
	}
	r = newRun(parent, p.opts, env)
	if p.unlocked && p.opts.AudioEnabled {
		r.env.speaker = p.newSpeaker(r)
	}

	p.run = r
	r.Start()
}

// post queues f for r. It gives up once r or the pipeline is closed, and
// f is skipped if r is no longer current by the time it runs.
func (p *Pipeline) post(r *Run, f func()) {
	wrapped := func() {
		if p.run != r {
			return
		}
		f()
	}
	select {
	case p.inbox <- wrapped:
	case <-r.ctx.Done():
	case <-p.done:
	}
}

func (p *Pipeline) newSpeaker(r *Run) Speaker {
	return audio.NewQueue(p.synth, p.player,
		audio.WithEnabled(),
		audio.WithConfig(p.audioCfg),
		audio.WithLogger(p.logger.WithPrefix("audio")),
		audio.WithEventHandler(func(ev audio.Event) {
			p.post(r, func() { r.HandleAudio(ev) })
		}),
	)
}

func (p *Pipeline) pickVoice() string {
	if p.voice != "" {
		return p.voice
	}
	if len(p.voices) == 0 {
		return ""
	}
	return p.voices[p.pick(len(p.voices))]
}

// pump reads the stream of s on its own goroutine and posts what it reads.
func (p *Pipeline) pump(r *Run, s *Session) {
	ctx, cancel := context.WithCancel(r.ctx)
	s.cancel = cancel
	req := r.Request(s)

	go func() {
		defer cancel()

		stream, err := p.source.Open(ctx, req)
		if err != nil {
			if ctx.Err() == nil {
				p.post(r, func() { r.StreamEnded(s, err) })
			}
			return
		}
		defer stream.Close()

		for {
			ev, err := stream.Next()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, io.EOF) {
					err = ErrStreamClosed
				}
				p.post(r, func() { r.StreamEnded(s, err) })
				return
			}
			if ev.Done {
				p.post(r, func() { r.StreamEnded(s, nil) })
				return
			}
			delta := ev.Delta
			p.post(r, func() { r.StreamDelta(s, delta) })
		}
	}()
}

// emit runs on the loop.
func (p *Pipeline) emit(ev Event) {
	p.mu.Lock()
	switch m := ev.(type) {
	case BlockShownMsg:
		p.transcript = append(p.transcript, m.Block)
		if n := len(p.transcript); n > TranscriptSize {
			p.transcript = slices.Clone(p.transcript[n-TranscriptSize:])
		}
	case StatusChangedMsg:
		p.status = m.Status
	}
	p.mu.Unlock()

	select {
	case p.events <- ev:
	case <-p.done:
	}
}
