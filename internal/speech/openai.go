package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dgnsrekt/storyfeed/feed/audio"
)

// DefaultModel is the speech model used by OpenAI.
const DefaultModel = "gpt-4o-mini-tts"

// OpenAI synthesizes speech with the OpenAI audio API. The SDK does not
// retry; retries belong to the audio queue.
type OpenAI struct {
	client *openai.Client
	model  string
}

// OpenAIOption configures an OpenAI synthesizer.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// WithModel selects the speech model.
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) { c.model = model }
}

// WithBaseURL points the client at an OpenAI compatible server.
func WithBaseURL(u string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = u }
}

// WithOpenAIHTTPClient replaces the HTTP client of the SDK.
func WithOpenAIHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = hc }
}

// NewOpenAI returns a synthesizer using apiKey.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	cfg := openAIConfig{model: DefaultModel, httpClient: http.DefaultClient}
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)
	return &OpenAI{client: &client, model: cfg.model}
}

// Synthesize implements audio.Synthesizer. API failures come back as
// *StatusError so they can be classified for retry.
func (o *OpenAI) Synthesize(ctx context.Context, text, voice string) (*audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if !ValidVoice(voice) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVoice, voice)
	}

	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Code: apiErr.StatusCode, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return nil, fmt.Errorf("read openai speech: %w", err)
	}
	return &audio.Clip{Data: data, Format: audio.SpeechFormat, Voice: voice}, nil
}
