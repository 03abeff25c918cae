package feed

import "time"

// Watchdog flushes trailing fragments that would otherwise never fill a
// block. Every interval it checks whether the display has stalled with a
// small remainder in the buffer, and if the streams went quiet (or ended)
// it turns that remainder into a final block.
type Watchdog struct {
	interval  time.Duration
	idleFlush time.Duration
	clock     Clock
	buf       *Buffer
	sched     *Scheduler
	lastWord  func() time.Time
	finished  func() bool
	schedule  func(d time.Duration, f func()) Timer

	timer   Timer
	running bool
	flushes int
}

// Tick performs one check. It reports whether it flushed a block.
func (w *Watchdog) Tick() bool {
	if w.sched.Showing() || w.buf.Queued() > 0 {
		return false
	}
	pending := w.buf.Pending()
	if pending == 0 || pending >= w.buf.SmallTail() {
		return false
	}

	idle := false
	if last := w.lastWord(); !last.IsZero() {
		idle = w.clock.Now().Sub(last) >= w.idleFlush
	}
	if !idle && !w.finished() {
		return false
	}

	if !w.buf.FlushSmallTail() {
		return false
	}
	w.flushes++
	w.sched.Drive()
	return true
}

// Start begins periodic ticking.
func (w *Watchdog) Start() {
	if w.running {
		return
	}
	w.running = true
	w.arm()
}

func (w *Watchdog) arm() {
	w.timer = w.schedule(w.interval, func() {
		if !w.running {
			return
		}
		w.Tick()
		w.arm()
	})
}

// Stop ends periodic ticking.
func (w *Watchdog) Stop() {
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Flushes returns how many blocks the watchdog produced.
func (w *Watchdog) Flushes() int { return w.flushes }
