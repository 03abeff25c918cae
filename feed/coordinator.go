package feed

import "time"

// Coordinator runs the stream sessions of one cycle.
//
// The first session opens immediately. When it yields its first word a
// one-shot timer is armed; if the first session is still going when the
// timer fires, the second session opens and both feed the same buffer in
// arrival order. The cycle is fully done once the first session finished and
// the second either never started or finished too. A failed session counts
// as finished, so a failure on one stream never holds back the other.
type Coordinator struct {
	dual      bool
	nextAfter time.Duration
	fallback  int

	open        func(s *Session)
	schedule    func(d time.Duration, f func()) Timer
	onWords     func(s *Session, words []string)
	onFinished  func(s *Session, err error)
	onFullyDone func()

	sessions      [2]*Session
	armed         bool
	nextTimer     Timer
	secondStarted bool
	fullyDone     bool
	closed        bool
}

// Begin opens the first session.
func (c *Coordinator) Begin() *Session {
	s := NewSession(SlotFirst, c.fallback)
	c.sessions[SlotFirst] = s
	c.open(s)
	return s
}

// Deliver feeds a raw delta to s and forwards any words it produced.
func (c *Coordinator) Deliver(s *Session, delta string) {
	if !c.owns(s) || s.Done() {
		return
	}
	words := s.Feed(delta)
	if len(words) == 0 {
		return
	}
	if s.Slot == SlotFirst && !c.armed {
		c.armNext()
	}
	c.onWords(s, words)
}

func (c *Coordinator) armNext() {
	c.armed = true
	if !c.dual {
		return
	}
	c.nextTimer = c.schedule(c.nextAfter, func() {
		c.nextTimer = nil
		c.StartSecond()
	})
}

// StartSecond opens the second session unless it was already started, the
// first session already finished, or the cycle is single stream. It reports
// whether a session was opened. Calling it again is harmless.
func (c *Coordinator) StartSecond() bool {
	first := c.sessions[SlotFirst]
	if c.closed || !c.dual || c.secondStarted || first == nil || first.Done() {
		return false
	}
	c.secondStarted = true
	s := NewSession(SlotSecond, c.fallback)
	c.sessions[SlotSecond] = s
	c.open(s)
	return true
}

// Finish ends s, cleanly when err is nil. The held-back carry is forwarded
// as a final word before the cycle is checked for completion.
func (c *Coordinator) Finish(s *Session, err error) {
	if !c.owns(s) || s.Done() {
		return
	}

	var last []string
	if err != nil {
		last = s.Fail()
	} else {
		last = s.Finish()
	}
	s.Close()

	if len(last) > 0 {
		c.onWords(s, last)
	}
	if s.Slot == SlotFirst && c.nextTimer != nil {
		c.nextTimer.Stop()
		c.nextTimer = nil
	}

	c.onFinished(s, err)

	if !c.fullyDone && c.FullyDone() {
		c.fullyDone = true
		c.onFullyDone()
	}
}

// FullyDone reports whether every session of the cycle has finished.
func (c *Coordinator) FullyDone() bool {
	first := c.sessions[SlotFirst]
	if first == nil || !first.Done() {
		return false
	}
	if !c.secondStarted {
		return true
	}
	return c.sessions[SlotSecond].Done()
}

// Session returns the session in slot, or nil.
func (c *Coordinator) Session(slot Slot) *Session {
	return c.sessions[slot]
}

// SecondStarted reports whether the second session was opened.
func (c *Coordinator) SecondStarted() bool { return c.secondStarted }

// Close stops the next-story timer and cancels every open transport.
func (c *Coordinator) Close() {
	c.closed = true
	if c.nextTimer != nil {
		c.nextTimer.Stop()
		c.nextTimer = nil
	}
	for _, s := range c.sessions {
		if s != nil {
			s.Close()
		}
	}
}

func (c *Coordinator) owns(s *Session) bool {
	return s != nil && !c.closed && c.sessions[s.Slot] == s
}
