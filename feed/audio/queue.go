package audio

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// EventKind classifies queue events.
type EventKind int

const (
	// EventStarted fires when a resource begins playing.
	EventStarted EventKind = iota
	// EventEnded fires when a resource finished playing.
	EventEnded
	// EventFailed fires when playback of a resource failed.
	EventFailed
	// EventDropped fires when synthesis for a job was given up.
	EventDropped
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventEnded:
		return "ended"
	case EventFailed:
		return "failed"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event reports progress of one job.
type Event struct {
	Kind     EventKind
	Seq      int
	Text     string
	Attempts int   // Synthesis attempts made
	Err      error // Set for EventFailed and EventDropped
}

// Job is a request to speak one block.
type Job struct {
	Seq   int
	Text  string
	Voice string
}

// Config controls synthesis retries.
type Config struct {
	// Extra attempts after the first for retryable failures.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// Delay before the first retry; doubled for each further retry.
	RetryBase time.Duration `mapstructure:"retry_base" yaml:"retry_base"`
	// Upper bound for a single synthesis call.
	SynthTimeout time.Duration `mapstructure:"synth_timeout" yaml:"synth_timeout"`
	// Jobs waiting for synthesis beyond this many drop the oldest. Zero
	// keeps every job.
	MaxPending int `mapstructure:"max_pending" yaml:"max_pending"`
}

// DefaultConfig returns the queue defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   2,
		RetryBase:    400 * time.Millisecond,
		SynthTimeout: 30 * time.Second,
		MaxPending:   8,
	}
}

// Stats counts queue activity.
type Stats struct {
	Submitted   int64
	Synthesized int64
	Retries     int64
	Dropped     int64
	Played      int64
	Failed      int64
	Bytes       int64 // Audio bytes synthesized
}

// Queue speaks blocks strictly one after another.
//
// A synthesis worker takes pending jobs in order with at most one request in
// flight, and appends each resulting resource to the playback list. A
// playback worker plays that list in order, one resource at a time, and
// releases every resource once it is done with it. Synthesis of the next
// block may overlap playback of the current one.
type Queue struct {
	synth   Synthesizer
	player  Player
	cfg     Config
	backoff Backoff
	onEvent func(Event)
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	jobsReady *sync.Cond
	playReady *sync.Cond
	pending   []Job
	playlist  []*Resource
	enabled   bool
	closed    bool
	stats     Stats
}

// Option configures a Queue.
type Option func(*Queue)

// WithConfig overrides the retry configuration.
func WithConfig(cfg Config) Option {
	return func(q *Queue) { q.cfg = cfg }
}

// WithEventHandler registers the callback receiving queue events. It is
// called from worker goroutines and must not call back into the queue.
func WithEventHandler(fn func(Event)) Option {
	return func(q *Queue) { q.onEvent = fn }
}

// WithSleep replaces the function used to wait between retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(q *Queue) { q.sleep = fn }
}

// WithJitter replaces the jitter source of the retry backoff.
func WithJitter(fn func(n int64) int64) Option {
	return func(q *Queue) { q.backoff.Jitter = fn }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithEnabled starts the queue already accepting jobs.
func WithEnabled() Option {
	return func(q *Queue) { q.enabled = true }
}

// NewQueue creates a queue and starts its workers. Jobs are refused until
// Enable is called.
func NewQueue(synth Synthesizer, player Player, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		synth:  synth,
		player: player,
		cfg:    DefaultConfig(),
		sleep:  sleep,
		logger: log.WithPrefix("audio"),
		ctx:    ctx,
		cancel: cancel,
	}
	q.jobsReady = sync.NewCond(&q.mu)
	q.playReady = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	q.backoff.Base = q.cfg.RetryBase

	q.wg.Add(2)
	go q.synthLoop()
	go q.playLoop()
	return q
}

// Enable opens the gate for Submit. It models the explicit user action
// required before any speech is requested.
func (q *Queue) Enable() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enabled = true
}

// Enabled reports whether the queue accepts jobs.
func (q *Queue) Enabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enabled
}

// Submit appends a job to the pending list. When the list is full the oldest
// waiting job is dropped with ErrBacklog, so speech catches up with the
// subtitles instead of trailing further behind.
func (q *Queue) Submit(job Job) error {
	if strings.TrimSpace(job.Text) == "" {
		return ErrEmptyText
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if !q.enabled {
		return ErrDisabled
	}

	if q.cfg.MaxPending > 0 && len(q.pending) >= q.cfg.MaxPending {
		old := q.pending[0]
		q.pending = q.pending[1:]
		q.stats.Dropped++
		q.logger.Debug("Speech backlog full, skipping block", "seq", old.Seq)
		ev := Event{Kind: EventDropped, Seq: old.Seq, Text: old.Text, Err: ErrBacklog}
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.emit(ev)
		}()
	}

	q.pending = append(q.pending, job)
	q.stats.Submitted++
	q.jobsReady.Signal()
	return nil
}

// Len returns the number of pending jobs and of resources waiting to play.
func (q *Queue) Len() (pending, playlist int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.playlist)
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Close stops both workers, cancels in-flight work and releases every
// resource still waiting to play. Results arriving afterwards are discarded.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.pending = nil
	for _, res := range q.playlist {
		res.Release()
	}
	q.playlist = nil
	q.jobsReady.Broadcast()
	q.playReady.Broadcast()
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	return nil
}

func (q *Queue) synthLoop() {
	defer q.wg.Done()
	for {
		job, ok := q.nextJob()
		if !ok {
			return
		}
		q.process(job)
	}
}

func (q *Queue) nextJob() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.jobsReady.Wait()
	}
	if q.closed {
		return Job{}, false
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	return job, true
}

// process synthesizes one job, retrying retryable failures with backoff.
func (q *Queue) process(job Job) {
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(q.ctx, q.cfg.SynthTimeout)
		clip, err := q.synth.Synthesize(ctx, job.Text, job.Voice)
		cancel()

		if q.ctx.Err() != nil {
			return
		}

		if err == nil {
			q.enqueuePlay(&Resource{Seq: job.Seq, Text: job.Text, Clip: clip})
			return
		}

		if !IsRetryable(err) || attempt > q.cfg.MaxRetries {
			q.mu.Lock()
			q.stats.Dropped++
			q.mu.Unlock()
			q.logger.Warn("Dropping speech for block", "seq", job.Seq, "attempts", attempt, "err", err)
			q.emit(Event{Kind: EventDropped, Seq: job.Seq, Text: job.Text, Attempts: attempt, Err: err})
			return
		}

		delay := q.backoff.Delay(attempt)
		q.mu.Lock()
		q.stats.Retries++
		q.mu.Unlock()
		q.logger.Debug("Retrying speech", "seq", job.Seq, "attempt", attempt, "delay", delay, "err", err)
		if err := q.sleep(q.ctx, delay); err != nil {
			return
		}
	}
}

func (q *Queue) enqueuePlay(res *Resource) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		res.Release()
		return
	}
	q.stats.Synthesized++
	if res.Clip != nil {
		q.stats.Bytes += int64(len(res.Clip.Data))
	}
	q.playlist = append(q.playlist, res)
	q.playReady.Signal()
}

func (q *Queue) playLoop() {
	defer q.wg.Done()
	for {
		res, ok := q.nextResource()
		if !ok {
			return
		}

		q.emit(Event{Kind: EventStarted, Seq: res.Seq, Text: res.Text})
		err := q.player.Play(q.ctx, res)
		res.Release()

		if q.ctx.Err() != nil {
			return
		}

		q.mu.Lock()
		if err != nil {
			q.stats.Failed++
		} else {
			q.stats.Played++
		}
		q.mu.Unlock()

		if err != nil {
			q.logger.Warn("Playback failed", "seq", res.Seq, "err", err)
			q.emit(Event{Kind: EventFailed, Seq: res.Seq, Text: res.Text, Err: err})
			continue
		}
		q.emit(Event{Kind: EventEnded, Seq: res.Seq, Text: res.Text})
	}
}

func (q *Queue) nextResource() (*Resource, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.playlist) == 0 && !q.closed {
		q.playReady.Wait()
	}
	if q.closed {
		return nil, false
	}
	res := q.playlist[0]
	q.playlist[0] = nil
	q.playlist = q.playlist[1:]
	return res, true
}

func (q *Queue) emit(ev Event) {
	if q.onEvent == nil || q.ctx.Err() != nil {
		return
	}
	q.onEvent(ev)
}
