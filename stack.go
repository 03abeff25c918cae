package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/storyfeed/feed"
	"github.com/dgnsrekt/storyfeed/feed/audio"
	"github.com/dgnsrekt/storyfeed/internal/backend"
	"github.com/dgnsrekt/storyfeed/internal/cache"
	"github.com/dgnsrekt/storyfeed/internal/config"
	"github.com/dgnsrekt/storyfeed/internal/generate"
	"github.com/dgnsrekt/storyfeed/internal/speech"
)

// stack is the story source and speech chain built from the settings.
type stack struct {
	settings config.Settings
	source   generate.Source
	synth    audio.Synthesizer // nil without speech
	player   *audio.OtoPlayer  // nil without speech
	clips    *cache.Manager    // nil without speech
}

func newBackend(s config.Settings, e config.Env) *backend.Service {
	o := backend.NewOllama(e.OllamaHost, e.ModelID, nil)
	o.Options = s.Model
	log.Debug("Generating locally", "host", o.Host, "model", o.Model)
	return backend.NewService(o, backend.WithLogger(log.WithPrefix("backend")))
}

func newOpenAI(e config.Env) *speech.OpenAI {
	opts := []speech.OpenAIOption{speech.WithModel(e.SpeechModel)}
	if e.OpenAIBaseURL != "" {
		opts = append(opts, speech.WithBaseURL(e.OpenAIBaseURL))
	}
	return speech.NewOpenAI(e.OpenAIKey, opts...)
}

func newStack(s config.Settings, e config.Env) (*stack, error) {
	st := &stack{settings: s}

	var inner audio.Synthesizer
	if s.Server != "" {
		st.source = generate.NewHTTPSource(s.Server, nil)
		inner = speech.NewClient(s.Server, speech.WithRateLimit(s.Speech.RateLimit, s.Speech.Burst))
	} else {
		st.source = newBackend(s, e)
		if e.OpenAIKey != "" {
			inner = newOpenAI(e)
		}
	}
	if inner == nil {
		log.Info("Speech disabled: no story server and no OPENAI_API_KEY")
		return st, nil
	}

	player, err := audio.NewOtoPlayer(audio.SpeechFormat)
	if err != nil {
		log.Warn("Speech disabled: no audio output", "err", err)
		return st, nil
	}
	clips, err := cache.NewManager(s.Cache, log.WithPrefix("cache"))
	if err != nil {
		_ = player.Close()
		return nil, fmt.Errorf("open clip cache: %w", err)
	}
	st.player = player
	st.clips = clips
	st.synth = speech.NewCached(inner, clips)
	return st, nil
}

func (st *stack) speechAvailable() bool {
	return st.synth != nil
}

// options adjusts pacing options to the speech the stack can offer.
func (st *stack) options(o feed.Options) feed.Options {
	if !st.speechAvailable() || !o.AudioEnabled {
		o.AudioEnabled = false
		o.AudioPaced = false
	}
	return o
}

// pipeline builds a pipeline over the stack. Speech is attached whenever the
// stack has a synthesizer so a config reload can turn audio on.
func (st *stack) pipeline(categories []string) (*feed.Pipeline, error) {
	opts := st.options(st.settings.Pacing)
	options := []feed.Option{
		feed.WithLogger(log.WithPrefix("feed")),
		feed.WithCategories(categories),
	}
	if st.settings.Voice != "" {
		options = append(options, feed.WithVoice(st.settings.Voice))
	}
	if st.speechAvailable() {
		options = append(options, feed.WithSpeech(st.synth, st.player, st.settings.Audio))
	}
	return feed.New(st.source, opts, options...)
}

func (st *stack) Close() error {
	var errs []error
	if st.clips != nil {
		if sum := st.clips.Summary(); sum.Memory.Items > 0 {
			log.Info("Clip cache", "memory", sum.Memory.String(), "disk", sum.Disk.String())
		}
		errs = append(errs, st.clips.Close())
	}
	if st.player != nil {
		errs = append(errs, st.player.Close())
	}
	return errors.Join(errs...)
}
