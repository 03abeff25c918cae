package feed

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/storyfeed/feed/audio"
	"github.com/dgnsrekt/storyfeed/internal/generate"
)

// priorChars is how much of the first story is sent along when the second
// story continues it.
const priorChars = 1200

// Speaker accepts blocks for speech. *audio.Queue implements it.
type Speaker interface {
	Submit(job audio.Job) error
	Close() error
}

// runEnv is everything a run needs from its owner.
type runEnv struct {
	clock  Clock
	logger *log.Logger

	// post runs f on the goroutine that owns the run.
	post func(f func())
	// emit delivers an event to the consumer.
	emit func(Event)
	// open starts the transport of a session. Deltas and the end of the
	// stream must come back through StreamDelta and StreamEnded via post.
	open func(r *Run, s *Session)

	speaker    Speaker
	voice      string
	categories []string
}

// awaitingBlock is a block handed to speech whose display waits for audio.
type awaitingBlock struct {
	blk   Block
	d     time.Duration
	done  func()
	shown bool
}

// Run is the state of one run: both sessions of a cycle, the shared buffer
// and display queue, the scheduler, the watchdog and every timer. A reset
// discards the run and builds a new one. A run is not safe for concurrent
// use; all methods must be called from the goroutine that owns it.
type Run struct {
	ID string

	opts Options
	env  runEnv
	ctx  context.Context

	cancel   context.CancelFunc
	buf      *Buffer
	sched    *Scheduler
	watchdog *Watchdog
	coord    *Coordinator
	status   *statusMachine

	firstWordAt time.Time
	lastWordAt  time.Time
	lastErr     error
	awaiting    *awaitingBlock
	blockTimer  Timer
	drained     bool
	closed      bool
}

func newRun(parent context.Context, opts Options, env runEnv) *Run {
	if env.clock == nil {
		env.clock = SystemClock()
	}
	if env.logger == nil {
		env.logger = log.WithPrefix("feed")
	}
	if opts.NextMode == "" {
		opts.NextMode = generate.ModeInitial
	}

	ctx, cancel := context.WithCancel(parent)
	r := &Run{
		ID:     uuid.NewString(),
		opts:   opts,
		env:    env,
		ctx:    ctx,
		cancel: cancel,
		buf:    NewBuffer(opts.BlockSize, opts.SmallTail),
	}
	r.status = newStatusMachine(func(prev, to Status, err error) {
		r.emit(StatusChangedMsg{Run: r.ID, Status: to, Prev: prev, Err: err})
	})
	r.env.logger = r.env.logger.With("run", r.ID[:8])

	r.sched = NewScheduler(r.nextBlock, PacerFunc(r.pace), opts.WordsPerMinute, opts.MinBlock)
	r.watchdog = &Watchdog{
		interval:  opts.WatchdogInterval,
		idleFlush: opts.IdleFlush,
		clock:     env.clock,
		buf:       r.buf,
		sched:     r.sched,
		lastWord:  func() time.Time { return r.lastWordAt },
		finished:  func() bool { return r.coord.FullyDone() },
		schedule:  r.after,
	}
	r.coord = &Coordinator{
		dual:        opts.DualStream,
		nextAfter:   opts.NextStartAfter,
		fallback:    opts.FallbackStartLen,
		open:        r.openSession,
		schedule:    r.after,
		onWords:     r.onWords,
		onFinished:  r.onFinished,
		onFullyDone: r.onFullyDone,
	}
	return r
}

// Start opens the first session and the watchdog.
func (r *Run) Start() {
	r.emit(RunStartedMsg{Run: r.ID, Voice: r.env.voice, Categories: r.env.categories})
	if r.env.speaker != nil {
		r.emit(AudioEnabledMsg{Run: r.ID, Voice: r.env.voice})
	}
	r.setStatus(StatusLoading, nil)
	r.watchdog.Start()
	r.coord.Begin()
}

// StreamDelta delivers raw text received on s.
func (r *Run) StreamDelta(s *Session, delta string) {
	if r.closed {
		return
	}
	r.coord.Deliver(s, delta)
}

// StreamEnded reports the end of s. A nil err means the [DONE] sentinel was
// received.
func (r *Run) StreamEnded(s *Session, err error) {
	if r.closed {
		return
	}
	r.coord.Finish(s, err)
}

// HandleAudio processes an event from the speech queue.
func (r *Run) HandleAudio(ev audio.Event) {
	if r.closed {
		return
	}
	if ev.Kind == audio.EventDropped {
		r.emit(AudioDroppedMsg{Run: r.ID, Seq: ev.Seq, Err: ev.Err})
	}

	aw := r.awaiting
	if aw == nil || aw.blk.Seq != ev.Seq {
		return
	}

	switch ev.Kind {
	case audio.EventStarted:
		if !aw.shown {
			aw.shown = true
			r.show(aw.blk, 0, true)
		}
	case audio.EventEnded, audio.EventFailed:
		if !aw.shown {
			r.show(aw.blk, 0, true)
		}
		r.awaiting = nil
		aw.done()
	case audio.EventDropped:
		r.awaiting = nil
		if aw.shown {
			aw.done()
			return
		}
		r.show(aw.blk, aw.d, false)
		r.blockTimer = r.after(aw.d, aw.done)
	}
}

// AttachSpeaker hands subsequent blocks to sp. Any previous speaker is
// closed.
func (r *Run) AttachSpeaker(sp Speaker, voice string) {
	if r.env.speaker != nil {
		_ = r.env.speaker.Close()
	}
	r.env.speaker = sp
	r.env.voice = voice
	r.emit(AudioEnabledMsg{Run: r.ID, Voice: voice})
}

// Close stops every timer, cancels both transports and the speaker. Events
// arriving afterwards are ignored.
func (r *Run) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.cancel()
	r.coord.Close()
	r.watchdog.Stop()
	if r.blockTimer != nil {
		r.blockTimer.Stop()
		r.blockTimer = nil
	}
	if r.env.speaker != nil {
		_ = r.env.speaker.Close()
	}
}

// Request builds the generation request for s.
func (r *Run) Request(s *Session) generate.Request {
	req := generate.Request{
		Seed:     s.ID,
		MaxWords: r.opts.MaxWordsPerStory,
		Mode:     generate.ModeInitial,
		Context:  generate.Context{Categories: r.env.categories},
	}
	if s.Slot == SlotSecond && r.opts.NextMode == generate.ModeContinue {
		req.Mode = generate.ModeContinue
		req.Context.Prior = r.prior()
		req.Continuation = generate.FlavorFor(r.env.categories)
	}
	return req
}

// prior returns the tail of the first story's content.
func (r *Run) prior() string {
	first := r.coord.Session(SlotFirst)
	if first == nil || first.Phase() != PhaseRun {
		return ""
	}
	content := first.Raw()[first.Start():]
	if len(content) > priorChars {
		content = content[len(content)-priorChars:]
	}
	return strings.TrimSpace(strings.ToValidUTF8(content, ""))
}

// Status returns the run status.
func (r *Run) Status() Status { return r.status.Current() }

// Err returns the last transport error, if any.
func (r *Run) Err() error { return r.lastErr }

// Buffer returns the shared block buffer.
func (r *Run) Buffer() *Buffer { return r.buf }

// Scheduler returns the display scheduler.
func (r *Run) Scheduler() *Scheduler { return r.sched }

// Coordinator returns the stream coordinator.
func (r *Run) Coordinator() *Coordinator { return r.coord }

// Watchdog returns the stall watchdog.
func (r *Run) Watchdog() *Watchdog { return r.watchdog }

// FirstWordAt returns when the first word of the run arrived.
func (r *Run) FirstWordAt() time.Time { return r.firstWordAt }

// after runs f on the owning goroutine once d has elapsed, unless the run
// was closed in the meantime.
func (r *Run) after(d time.Duration, f func()) Timer {
	return r.env.clock.AfterFunc(d, func() {
		r.env.post(func() {
			if r.closed {
				return
			}
			f()
		})
	})
}

func (r *Run) openSession(s *Session) {
	r.env.logger.Debug("Opening stream", "slot", s.Slot, "session", s.ID)
	r.emit(StreamOpenedMsg{Run: r.ID, Slot: s.Slot, SessionID: s.ID})
	r.env.open(r, s)
}

func (r *Run) onWords(_ *Session, words []string) {
	now := r.env.clock.Now()
	if r.firstWordAt.IsZero() {
		r.firstWordAt = now
	}
	r.lastWordAt = now
	r.buf.Push(words)
	r.sched.Drive()
}

func (r *Run) onFinished(s *Session, err error) {
	r.emit(StreamFinishedMsg{Run: r.ID, Slot: s.Slot, SessionID: s.ID, Words: s.Words(), Err: err})
	if err == nil {
		r.env.logger.Debug("Stream done", "slot", s.Slot, "words", s.Words())
		return
	}

	serr := &SessionError{Slot: s.Slot, SessionID: s.ID, Err: err}
	r.lastErr = serr
	r.env.logger.Error("Stream failed", "slot", s.Slot, "err", err)
	r.setStatus(StatusError, serr)
}

func (r *Run) onFullyDone() {
	r.buf.FlushAll()
	r.sched.Drive()
	r.watchdog.Stop()
	r.setStatus(StatusDone, nil)
	r.checkDrained()
}

// checkDrained emits RunDrainedMsg once every stream has finished and the
// last block has left the screen.
func (r *Run) checkDrained() {
	if r.drained || r.closed || !r.coord.FullyDone() || r.sched.Showing() {
		return
	}
	if r.buf.Queued() > 0 || r.buf.Pending() > 0 {
		return
	}
	r.drained = true
	r.emit(RunDrainedMsg{Run: r.ID})
}

// nextBlock feeds the scheduler. Full blocks come first. A small tail is
// only released once the streams went quiet or finished, and any remainder
// once the cycle is fully done.
func (r *Run) nextBlock() ([]string, bool) {
	if words, ok := r.buf.Pop(); ok {
		return words, true
	}
	if r.tailReady() && r.buf.FlushSmallTail() {
		return r.buf.Pop()
	}
	if r.coord.FullyDone() && r.buf.FlushAll() {
		return r.buf.Pop()
	}
	return nil, false
}

func (r *Run) tailReady() bool {
	if r.coord.FullyDone() {
		return true
	}
	if r.lastWordAt.IsZero() {
		return false
	}
	return r.env.clock.Now().Sub(r.lastWordAt) >= r.opts.IdleFlush
}

// pace implements Pacer for the run's scheduler.
func (r *Run) pace(blk Block, d time.Duration, over func()) {
	done := func() {
		over()
		r.checkDrained()
	}
	if r.opts.AudioPaced && r.env.speaker != nil {
		err := r.env.speaker.Submit(audio.Job{Seq: blk.Seq, Text: blk.Text(), Voice: r.env.voice})
		if err == nil {
			r.awaiting = &awaitingBlock{blk: blk, d: d, done: done}
			return
		}
		r.env.logger.Debug("Speech unavailable, pacing by timer", "seq", blk.Seq, "err", err)
		r.show(blk, d, false)
		r.blockTimer = r.after(d, done)
		return
	}

	spoken := r.speak(blk)
	r.show(blk, d, spoken)
	r.blockTimer = r.after(d, done)
}

func (r *Run) speak(blk Block) bool {
	if r.env.speaker == nil {
		return false
	}
	if err := r.env.speaker.Submit(audio.Job{Seq: blk.Seq, Text: blk.Text(), Voice: r.env.voice}); err != nil {
		r.env.logger.Debug("Speech not submitted", "seq", blk.Seq, "err", err)
		return false
	}
	return true
}

func (r *Run) show(blk Block, d time.Duration, spoken bool) {
	r.emit(BlockShownMsg{Run: r.ID, Block: blk, Duration: d, Spoken: spoken})
}

func (r *Run) setStatus(to Status, err error) {
	r.status.Transition(to, err)
}

func (r *Run) emit(ev Event) {
	if r.env.emit != nil {
		r.env.emit(ev)
	}
}
