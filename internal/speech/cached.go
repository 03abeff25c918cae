package speech

import (
	"context"

	"github.com/dgnsrekt/storyfeed/feed/audio"
	"github.com/dgnsrekt/storyfeed/internal/cache"
)

// Cached serves repeated text from a clip cache and stores fresh clips.
type Cached struct {
	inner audio.Synthesizer
	store cache.Cache
}

// NewCached wraps inner with store.
func NewCached(inner audio.Synthesizer, store cache.Cache) *Cached {
	return &Cached{inner: inner, store: store}
}

// Synthesize implements audio.Synthesizer.
func (c *Cached) Synthesize(ctx context.Context, text, voice string) (*audio.Clip, error) {
	if voice == "" {
		voice = DefaultVoice
	}
	key := cache.Key(text, voice)
	if data, ok := c.store.Get(key); ok {
		return &audio.Clip{Data: data, Format: audio.SpeechFormat, Voice: voice}, nil
	}

	clip, err := c.inner.Synthesize(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	if len(clip.Data) > 0 {
		_ = c.store.Put(key, clip.Data)
	}
	return clip, nil
}
