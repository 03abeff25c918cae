package feed_test

import (
	"testing"
	"time"

	"github.com/dgnsrekt/storyfeed/feed"
)

type paced struct {
	blk  feed.Block
	d    time.Duration
	done func()
}

func TestSchedulerShowsOneBlockAtATime(t *testing.T) {
	buf := feed.NewBuffer(3, 2)
	var calls []paced
	pacer := feed.PacerFunc(func(blk feed.Block, d time.Duration, done func()) {
		calls = append(calls, paced{blk, d, done})
	})
	s := feed.NewScheduler(buf.Pop, pacer, 300, 2*time.Second)

	if s.Drive() {
		t.Fatal("Drive() on empty queue = true")
	}
	if s.State() != feed.DisplayIdle {
		t.Fatalf("State() = %v, want idle", s.State())
	}

	buf.Push(words(9))
	if !s.Drive() {
		t.Fatal("Drive() = false with queued blocks")
	}
	if s.Drive() {
		t.Error("Drive() while showing = true")
	}
	if len(calls) != 1 {
		t.Fatalf("pacer calls = %d, want 1", len(calls))
	}
	if calls[0].blk.Seq != 1 || calls[0].d != 2*time.Second {
		t.Errorf("first block = %+v", calls[0])
	}

	calls[0].done()
	if len(calls) != 2 || calls[1].blk.Seq != 2 {
		t.Fatalf("after done pacer calls = %d", len(calls))
	}

	// A repeated completion of an old block must not skip the current one.
	calls[0].done()
	if len(calls) != 2 {
		t.Fatalf("stale done advanced the scheduler: %d calls", len(calls))
	}

	calls[1].done()
	calls[2].done()
	if s.Showing() {
		t.Error("Showing() after queue drained")
	}
	if s.Shown() != 3 {
		t.Errorf("Shown() = %d, want 3", s.Shown())
	}
	if cur, ok := s.Current(); ok {
		t.Errorf("Current() = %+v while idle", cur)
	}
}
