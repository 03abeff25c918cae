package audio

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: base doubled per attempt plus a random
// jitter of up to half that step. Consecutive delays therefore never
// overlap and always increase.
type Backoff struct {
	Base   time.Duration
	Jitter func(n int64) int64 // Returns a value in [0, n); rand.Int64N by default
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	step := b.Base << (attempt - 1)
	half := int64(step / 2)
	if half <= 0 {
		return step
	}
	jitter := b.Jitter
	if jitter == nil {
		jitter = rand.Int64N
	}
	return step + time.Duration(jitter(half))
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
