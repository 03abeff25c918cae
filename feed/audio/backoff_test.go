package audio_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgnsrekt/storyfeed/feed/audio"
)

func TestBackoffDelay(t *testing.T) {
	base := 400 * time.Millisecond
	tests := []struct {
		name   string
		jitter func(int64) int64
		want   []time.Duration
	}{
		{
			name:   "no jitter",
			jitter: func(int64) int64 { return 0 },
			want:   []time.Duration{400 * time.Millisecond, 800 * time.Millisecond, 1600 * time.Millisecond},
		},
		{
			name:   "max jitter",
			jitter: maxJitter,
			want: []time.Duration{
				600*time.Millisecond - 1,
				1200*time.Millisecond - 1,
				2400*time.Millisecond - 1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := audio.Backoff{Base: base, Jitter: tt.jitter}
			for i, want := range tt.want {
				if got := b.Delay(i + 1); got != want {
					t.Errorf("Delay(%d) = %v, want %v", i+1, got, want)
				}
			}
		})
	}
}

func TestBackoffStrictlyIncreasing(t *testing.T) {
	b := audio.Backoff{Base: 250 * time.Millisecond}
	for range 50 {
		prev := time.Duration(0)
		for attempt := 1; attempt <= 4; attempt++ {
			d := b.Delay(attempt)
			if d <= prev {
				t.Fatalf("Delay(%d) = %v not above %v", attempt, d, prev)
			}
			prev = d
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{statusErr{408}, true},
		{statusErr{425}, true},
		{statusErr{429}, true},
		{statusErr{500}, true},
		{statusErr{502}, true},
		{statusErr{503}, true},
		{statusErr{504}, true},
		{statusErr{400}, false},
		{statusErr{404}, false},
		{statusErr{501}, false},
		{fmt.Errorf("wrapped: %w", statusErr{503}), true},
		{errors.New("connection refused"), false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := audio.IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestClipDuration(t *testing.T) {
	clip := &audio.Clip{Data: make([]byte, 48000), Format: audio.SpeechFormat}
	if got := clip.Duration(); got != time.Second {
		t.Errorf("Duration() = %v, want 1s", got)
	}
	var nilClip *audio.Clip
	if got := nilClip.Duration(); got != 0 {
		t.Errorf("nil Duration() = %v", got)
	}
}
