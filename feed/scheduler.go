package feed

import "time"

// Pacer decides how long a block stays current. It must call done exactly
// once when the block is over; later calls are ignored.
type Pacer interface {
	Pace(blk Block, d time.Duration, done func())
}

// PacerFunc adapts a function to the Pacer interface.
type PacerFunc func(blk Block, d time.Duration, done func())

// Pace implements Pacer.
func (f PacerFunc) Pace(blk Block, d time.Duration, done func()) { f(blk, d, done) }

// Scheduler shows one block at a time.
//
// In Idle, Drive takes the next block from its source and hands it to the
// pacer, entering Showing. When the pacer reports the block is over the
// scheduler returns to Idle and immediately drives again, so the queue is
// drained without any polling. Drive while Showing does nothing.
type Scheduler struct {
	next  func() ([]string, bool)
	pacer Pacer
	wpm   int
	min   time.Duration

	state   DisplayState
	current Block
	seq     int
	shown   int
}

// NewScheduler creates a scheduler that takes blocks from next and paces
// them with pacer.
func NewScheduler(next func() ([]string, bool), pacer Pacer, wpm int, minimum time.Duration) *Scheduler {
	return &Scheduler{
		next:  next,
		pacer: pacer,
		wpm:   wpm,
		min:   minimum,
	}
}

// Drive shows the next block if the scheduler is idle and a block is
// available. It reports whether a block became current.
func (s *Scheduler) Drive() bool {
	if s.state == DisplayShowing {
		return false
	}
	words, ok := s.next()
	if !ok || len(words) == 0 {
		return false
	}

	s.seq++
	blk := Block{Seq: s.seq, Words: words}
	s.current = blk
	s.state = DisplayShowing
	s.shown++

	s.pacer.Pace(blk, BlockDuration(len(words), s.wpm, s.min), func() {
		s.finish(blk.Seq)
	})
	return true
}

// finish ends block seq. Stale or repeated completions are ignored.
func (s *Scheduler) finish(seq int) {
	if s.state != DisplayShowing || s.current.Seq != seq {
		return
	}
	s.state = DisplayIdle
	s.Drive()
}

// State returns the scheduler state.
func (s *Scheduler) State() DisplayState { return s.state }

// Showing reports whether a block is current.
func (s *Scheduler) Showing() bool { return s.state == DisplayShowing }

// Current returns the block on screen, if any.
func (s *Scheduler) Current() (Block, bool) {
	return s.current, s.state == DisplayShowing
}

// Shown returns how many blocks have been made current.
func (s *Scheduler) Shown() int { return s.shown }
