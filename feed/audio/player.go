package audio

import "context"

// Player outputs one resource at a time.
type Player interface {
	// Play blocks until the resource finished playing, failed, or ctx was
	// cancelled.
	Play(ctx context.Context, res *Resource) error

	// Close releases the audio device.
	Close() error
}

// Synthesizer turns text into speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*Clip, error)
}
