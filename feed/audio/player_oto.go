//go:build !nocgo
// +build !nocgo

package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoFormat Format
	otoErr    error
)

// OtoPlayer plays raw PCM through the system audio device.
type OtoPlayer struct {
	ctx    *oto.Context
	format Format
	poll   time.Duration

	mu sync.Mutex
}

// NewOtoPlayer opens the audio device for format. Every player in the
// process shares one device context, so all of them must use the same
// format.
func NewOtoPlayer(format Format) (*OtoPlayer, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("%w: bit depth must be 16, got %d", ErrFormatMismatch, format.BitDepth)
	}
	if format.Channels != 1 && format.Channels != 2 {
		return nil, fmt.Errorf("%w: channels must be 1 or 2, got %d", ErrFormatMismatch, format.Channels)
	}

	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
		otoFormat = format
	})

	if otoErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, otoErr)
	}
	if otoFormat != format {
		return nil, fmt.Errorf("%w: device opened as %+v", ErrFormatMismatch, otoFormat)
	}
	return &OtoPlayer{ctx: otoCtx, format: format, poll: 10 * time.Millisecond}, nil
}

// Play plays res to the end.
func (p *OtoPlayer) Play(ctx context.Context, res *Resource) error {
	res.mu.Lock()
	clip := res.Clip
	res.mu.Unlock()
	if clip == nil || len(clip.Data) == 0 {
		return errors.New("audio data is empty")
	}
	if clip.Format != p.format {
		return fmt.Errorf("%w: clip is %+v, player is %+v", ErrFormatMismatch, clip.Format, p.format)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	player := p.ctx.NewPlayer(bytes.NewReader(clip.Data))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}

// Close implements Player. The device context lives for the whole process.
func (p *OtoPlayer) Close() error {
	return nil
}
