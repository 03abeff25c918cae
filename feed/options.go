package feed

import (
	"fmt"
	"time"

	"github.com/dgnsrekt/storyfeed/internal/generate"
)

// Options configures a display pipeline. One set of options covers every
// pacing variant: single or dual stream, with or without speech, timer or
// audio paced.
type Options struct {
	// Words per subtitle block.
	BlockSize int `mapstructure:"block_size" yaml:"block_size"`
	// Target reading or listening rate.
	WordsPerMinute int `mapstructure:"words_per_minute" yaml:"words_per_minute"`
	// Shortest time any block stays on screen.
	MinBlock time.Duration `mapstructure:"min_block" yaml:"min_block"`
	// Stall watchdog tick.
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval" yaml:"watchdog_interval"`
	// Silence after which a small tail is flushed.
	IdleFlush time.Duration `mapstructure:"idle_flush" yaml:"idle_flush"`
	// Remainders shorter than this may be flushed early.
	SmallTail int `mapstructure:"small_tail" yaml:"small_tail"`
	// Raw length after which a stream without markers starts at offset 0.
	FallbackStartLen int `mapstructure:"fallback_start_len" yaml:"fallback_start_len"`
	// Delay after the first word before the next story is requested.
	NextStartAfter time.Duration `mapstructure:"next_start_after" yaml:"next_start_after"`
	// Words requested from the backend per story.
	MaxWordsPerStory int `mapstructure:"max_words_per_story" yaml:"max_words_per_story"`
	// Request mode for the second story.
	NextMode generate.Mode `mapstructure:"next_mode" yaml:"next_mode"`

	// Run a second overlapping story per cycle.
	DualStream bool `mapstructure:"dual_stream" yaml:"dual_stream"`
	// Speech is available for this pipeline. Jobs are still only submitted
	// after EnableAudio.
	AudioEnabled bool `mapstructure:"audio_enabled" yaml:"audio_enabled"`
	// Advance subtitles on audio completion instead of a fixed timer.
	AudioPaced bool `mapstructure:"audio_paced" yaml:"audio_paced"`
}

// DefaultOptions returns the tuning the feed ships with.
func DefaultOptions() Options {
	return Options{
		BlockSize:        35,
		WordsPerMinute:   300,
		MinBlock:         2 * time.Second,
		WatchdogInterval: 300 * time.Millisecond,
		IdleFlush:        1500 * time.Millisecond,
		SmallTail:        6,
		FallbackStartLen: 120,
		NextStartAfter:   20 * time.Second,
		MaxWordsPerStory: 600,
		NextMode:         generate.ModeInitial,
		DualStream:       true,
	}
}

// Validate checks that the options describe a workable pipeline.
func (o Options) Validate() error {
	switch {
	case o.BlockSize < 1:
		return fmt.Errorf("%w: block size must be positive, got %d", ErrInvalidOptions, o.BlockSize)
	case o.WordsPerMinute < 1:
		return fmt.Errorf("%w: words per minute must be positive, got %d", ErrInvalidOptions, o.WordsPerMinute)
	case o.MinBlock < 0:
		return fmt.Errorf("%w: minimum block duration must not be negative", ErrInvalidOptions)
	case o.WatchdogInterval <= 0:
		return fmt.Errorf("%w: watchdog interval must be positive", ErrInvalidOptions)
	case o.SmallTail < 0 || o.SmallTail > o.BlockSize:
		return fmt.Errorf("%w: small tail must be between 0 and the block size (%d), got %d",
			ErrInvalidOptions, o.BlockSize, o.SmallTail)
	case o.FallbackStartLen < 0:
		return fmt.Errorf("%w: fallback start length must not be negative", ErrInvalidOptions)
	case o.DualStream && o.NextStartAfter <= 0:
		return fmt.Errorf("%w: next start delay must be positive for dual stream", ErrInvalidOptions)
	case o.AudioPaced && !o.AudioEnabled:
		return fmt.Errorf("%w: audio pacing requires audio", ErrInvalidOptions)
	}
	switch o.NextMode {
	case "", generate.ModeInitial, generate.ModeContinue:
	default:
		return fmt.Errorf("%w: unknown next mode %q", ErrInvalidOptions, o.NextMode)
	}
	return nil
}

// BlockDuration returns how long a block of words stays on screen:
// max(minimum, round(words/wpm minutes)), at millisecond resolution.
func BlockDuration(words, wpm int, minimum time.Duration) time.Duration {
	if wpm < 1 {
		return minimum
	}
	ms := (int64(words)*60_000 + int64(wpm)/2) / int64(wpm)
	d := time.Duration(ms) * time.Millisecond
	if d < minimum {
		return minimum
	}
	return d
}
