package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/storyfeed/feed"
	"github.com/dgnsrekt/storyfeed/feed/audio"
	"github.com/dgnsrekt/storyfeed/internal/backend"
	"github.com/dgnsrekt/storyfeed/internal/cache"
	"github.com/dgnsrekt/storyfeed/internal/prefs"
	"github.com/dgnsrekt/storyfeed/internal/speech"
)

// ErrInvalid is returned for settings that cannot be used.
var ErrInvalid = errors.New("invalid settings")

// Preference store backends.
const (
	PrefsFile   = "file"
	PrefsBadger = "badger"
	PrefsMemory = "memory"
)

// Settings is everything read from the config file, STORYFEED_* variables
// and flags.
type Settings struct {
	// Story server base URL. Empty generates stories in process.
	Server string `mapstructure:"server" yaml:"server"`
	// Fixed voice; empty picks one at random for each run.
	Voice string `mapstructure:"voice" yaml:"voice"`
	// Word-wrap width for the viewer; 0 follows the terminal.
	Width int `mapstructure:"width" yaml:"width"`

	Pacing feed.Options         `mapstructure:"pacing" yaml:"pacing"`
	Audio  audio.Config         `mapstructure:"audio" yaml:"audio"`
	Speech SpeechConfig         `mapstructure:"speech" yaml:"speech"`
	Cache  cache.Config         `mapstructure:"cache" yaml:"cache"`
	Prefs  PrefsConfig          `mapstructure:"prefs" yaml:"prefs"`
	Model  backend.ModelOptions `mapstructure:"model" yaml:"model"`
	Serve  ServeConfig          `mapstructure:"serve" yaml:"serve"`
}

// SpeechConfig limits how fast clips are requested from a story server.
type SpeechConfig struct {
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

// PrefsConfig selects the preference store.
type PrefsConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	// File or directory; empty uses the user data directory.
	Path string `mapstructure:"path" yaml:"path"`
}

// ServeConfig configures `storyfeed serve`.
type ServeConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// Cap on concurrent websocket feeds; 0 means no cap.
	MaxFeeds int `mapstructure:"max_feeds" yaml:"max_feeds"`
}

// Default returns the settings storyfeed ships with.
func Default() Settings {
	pacing := feed.DefaultOptions()
	pacing.AudioEnabled = true
	return Settings{
		Pacing: pacing,
		Audio:  audio.DefaultConfig(),
		Speech: SpeechConfig{RateLimit: 4, Burst: 2},
		Cache:  cache.DefaultConfig(),
		Prefs:  PrefsConfig{Backend: PrefsFile},
		Model:  backend.DefaultModelOptions(),
		Serve:  ServeConfig{Addr: "localhost:3000", MaxFeeds: 32},
	}
}

// SetDefaults registers every key of Default with v, so STORYFEED_*
// variables can override nested keys too.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server", d.Server)
	v.SetDefault("voice", d.Voice)
	v.SetDefault("width", d.Width)

	v.SetDefault("pacing.block_size", d.Pacing.BlockSize)
	v.SetDefault("pacing.words_per_minute", d.Pacing.WordsPerMinute)
	v.SetDefault("pacing.min_block", d.Pacing.MinBlock)
	v.SetDefault("pacing.watchdog_interval", d.Pacing.WatchdogInterval)
	v.SetDefault("pacing.idle_flush", d.Pacing.IdleFlush)
	v.SetDefault("pacing.small_tail", d.Pacing.SmallTail)
	v.SetDefault("pacing.fallback_start_len", d.Pacing.FallbackStartLen)
	v.SetDefault("pacing.next_start_after", d.Pacing.NextStartAfter)
	v.SetDefault("pacing.max_words_per_story", d.Pacing.MaxWordsPerStory)
	v.SetDefault("pacing.next_mode", string(d.Pacing.NextMode))
	v.SetDefault("pacing.dual_stream", d.Pacing.DualStream)
	v.SetDefault("pacing.audio_enabled", d.Pacing.AudioEnabled)
	v.SetDefault("pacing.audio_paced", d.Pacing.AudioPaced)

	v.SetDefault("audio.max_retries", d.Audio.MaxRetries)
	v.SetDefault("audio.retry_base", d.Audio.RetryBase)
	v.SetDefault("audio.synth_timeout", d.Audio.SynthTimeout)
	v.SetDefault("audio.max_pending", d.Audio.MaxPending)

	v.SetDefault("speech.rate_limit", d.Speech.RateLimit)
	v.SetDefault("speech.burst", d.Speech.Burst)

	v.SetDefault("cache.memory_capacity", d.Cache.MemoryCapacity)
	v.SetDefault("cache.disk_capacity", d.Cache.DiskCapacity)
	v.SetDefault("cache.disk_path", d.Cache.DiskPath)
	v.SetDefault("cache.compression_level", d.Cache.CompressionLevel)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)

	v.SetDefault("prefs.backend", d.Prefs.Backend)
	v.SetDefault("prefs.path", d.Prefs.Path)

	v.SetDefault("model.num_predict", d.Model.NumPredict)
	v.SetDefault("model.temperature", d.Model.Temperature)
	v.SetDefault("model.top_p", d.Model.TopP)
	v.SetDefault("model.num_thread", d.Model.NumThread)
	v.SetDefault("model.num_ctx", d.Model.NumCtx)

	v.SetDefault("serve.addr", d.Serve.Addr)
	v.SetDefault("serve.max_feeds", d.Serve.MaxFeeds)
}

// Load decodes v into Settings and validates the result.
func Load(v *viper.Viper) (Settings, error) {
	s := Default()
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the settings that the packages they feed do not.
func (s Settings) Validate() error {
	if err := s.Pacing.Validate(); err != nil {
		return err
	}
	if s.Voice != "" && !speech.ValidVoice(s.Voice) {
		return fmt.Errorf("%w: voice %q is not one of %v", ErrInvalid, s.Voice, speech.Voices)
	}
	if s.Width < 0 {
		return fmt.Errorf("%w: width must not be negative", ErrInvalid)
	}
	switch s.Prefs.Backend {
	case PrefsFile, PrefsBadger, PrefsMemory:
	default:
		return fmt.Errorf("%w: unknown preference backend %q", ErrInvalid, s.Prefs.Backend)
	}
	switch s.Pacing.NextMode {
	case "initial", "continue":
	default:
		return fmt.Errorf("%w: next mode must be initial or continue, got %q", ErrInvalid, s.Pacing.NextMode)
	}
	if s.Cache.MemoryCapacity < 0 || s.Cache.DiskCapacity < 0 {
		return fmt.Errorf("%w: cache capacities must not be negative", ErrInvalid)
	}
	if s.Audio.MaxPending < 0 {
		return fmt.Errorf("%w: audio max_pending must not be negative", ErrInvalid)
	}
	return nil
}

// ResolvePaths fills the empty cache and preference paths with locations
// under the user's data and cache directories.
func (s *Settings) ResolvePaths() error {
	if s.Cache.DiskPath == "" && s.Cache.DiskCapacity > 0 {
		dir, err := CacheDir()
		if err != nil {
			return fmt.Errorf("find cache dir: %w", err)
		}
		s.Cache.DiskPath = filepath.Join(dir, "clips")
	}
	if s.Prefs.Path == "" {
		name := "prefs.yml"
		if s.Prefs.Backend == PrefsBadger {
			name = "prefs"
		}
		p, err := DataPath(name)
		if err != nil {
			return fmt.Errorf("find data dir: %w", err)
		}
		s.Prefs.Path = p
	}
	return nil
}

// Open opens the configured preference store.
func (p PrefsConfig) Open(logger *log.Logger) (prefs.Store, error) {
	switch p.Backend {
	case PrefsMemory:
		return prefs.NewMemory(), nil
	case PrefsBadger:
		return prefs.OpenBadger(p.Path, logger)
	case PrefsFile, "":
		if p.Path == "" {
			return nil, fmt.Errorf("%w: preference file path is empty", ErrInvalid)
		}
		return prefs.OpenFile(p.Path)
	default:
		return nil, fmt.Errorf("%w: unknown preference backend %q", ErrInvalid, p.Backend)
	}
}
