package audio

import (
	"context"
	"sync"
	"time"
)

// MockPlayer implements Player for testing. It records what was played and
// can simulate playback time and failures without an audio device.
type MockPlayer struct {
	mu        sync.Mutex
	played    []PlaybackRecord
	errs      map[int]error
	delay     time.Duration
	active    int
	maxActive int
	closed    bool

	// OnPlay, when set, is called at the start of every Play.
	OnPlay func(res *Resource)
}

// PlaybackRecord records one Play call.
type PlaybackRecord struct {
	Seq   int
	Text  string
	Bytes int
	Err   error
}

// NewMockPlayer creates a mock player that finishes instantly.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{errs: make(map[int]error)}
}

// SetDelay makes every Play take d.
func (m *MockPlayer) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// InjectError makes playback of block seq fail with err.
func (m *MockPlayer) InjectError(seq int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[seq] = err
}

// Play implements Player.
func (m *MockPlayer) Play(ctx context.Context, res *Resource) error {
	if m.OnPlay != nil {
		m.OnPlay(res)
	}

	m.mu.Lock()
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	delay := m.delay
	err := m.errs[res.Seq]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	rec := PlaybackRecord{Seq: res.Seq, Text: res.Text, Bytes: len(res.Data()), Err: err}

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	m.mu.Lock()
	m.played = append(m.played, rec)
	m.mu.Unlock()
	return err
}

// Played returns every completed Play call in order.
func (m *MockPlayer) Played() []PlaybackRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PlaybackRecord, len(m.played))
	copy(out, m.played)
	return out
}

// MaxConcurrent returns the highest number of overlapping Play calls seen.
func (m *MockPlayer) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

// Close implements Player.
func (m *MockPlayer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockPlayer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
