// Package audio provides the sequential speech queue and audio output for
// the feed.
package audio

import (
	"sync"
	"time"
)

// Format describes raw PCM audio.
type Format struct {
	SampleRate int // Samples per second
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // Bits per sample, only 16 is supported
}

// SpeechFormat is what the speech endpoint returns: 24 kHz mono s16le.
var SpeechFormat = Format{SampleRate: 24000, Channels: 1, BitDepth: 16}

// BytesPerSecond returns the data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}

// Clip is synthesized speech for one piece of text.
type Clip struct {
	Data   []byte
	Format Format
	Voice  string
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil {
		return 0
	}
	bps := c.Format.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(len(c.Data)) * time.Second / time.Duration(bps)
}

// Resource is a clip waiting in, or taken from, the playback list. It stays
// paired with the block it speaks.
type Resource struct {
	Seq  int    // Block sequence number
	Text string // Source text
	Clip *Clip

	releaseOnce sync.Once
	released    bool
	mu          sync.Mutex
}

// Release drops the audio data so it can be collected. Safe to call more
// than once.
func (r *Resource) Release() {
	r.releaseOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.released = true
		r.Clip = nil
	})
}

// Released reports whether Release has been called.
func (r *Resource) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// Data returns the audio bytes, or nil once released.
func (r *Resource) Data() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Clip == nil {
		return nil
	}
	return r.Clip.Data
}
