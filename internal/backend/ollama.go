package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Defaults for the local completion server.
const (
	DefaultOllamaHost = "http://localhost:11434"
	DefaultModel      = "llama3.1:8b"
	DefaultKeepAlive  = "10m"
)

// ModelOptions are the sampling options sent with every completion request.
type ModelOptions struct {
	NumPredict  int     `json:"num_predict" mapstructure:"num_predict" yaml:"num_predict"`
	Temperature float64 `json:"temperature" mapstructure:"temperature" yaml:"temperature"`
	TopP        float64 `json:"top_p" mapstructure:"top_p" yaml:"top_p"`
	NumThread   int     `json:"num_thread,omitempty" mapstructure:"num_thread" yaml:"num_thread"`
	NumCtx      int     `json:"num_ctx,omitempty" mapstructure:"num_ctx" yaml:"num_ctx"`
}

// DefaultModelOptions favours fast short completions.
func DefaultModelOptions() ModelOptions {
	return ModelOptions{
		NumPredict:  140,
		Temperature: 0.8,
		TopP:        0.9,
		NumThread:   8,
		NumCtx:      2048,
	}
}

// UpstreamError is a non-2xx answer from the completion server.
type UpstreamError struct {
	Code int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion server returned %d %s", e.Code, http.StatusText(e.Code))
}

// StatusCode returns the HTTP status code.
func (e *UpstreamError) StatusCode() int { return e.Code }

// TokenStream yields the text fragments of one completion.
type TokenStream interface {
	// Next returns the next non-empty fragment, or io.EOF at the end.
	Next() (string, error)
	Close() error
}

// Generator streams completions for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (TokenStream, error)
}

// Ollama talks to an Ollama compatible /api/generate endpoint.
type Ollama struct {
	Host      string
	Model     string
	Options   ModelOptions
	KeepAlive string

	client *http.Client
}

// NewOllama returns a client for host. Empty values get the defaults.
func NewOllama(host, model string, client *http.Client) *Ollama {
	if host == "" {
		host = DefaultOllamaHost
	}
	if model == "" {
		model = DefaultModel
	}
	if client == nil {
		// No overall timeout: completions stream for as long as they need.
		client = &http.Client{Transport: &http.Transport{
			ResponseHeaderTimeout: 60 * time.Second,
		}}
	}
	return &Ollama{
		Host:      strings.TrimRight(host, "/"),
		Model:     model,
		Options:   DefaultModelOptions(),
		KeepAlive: DefaultKeepAlive,
		client:    client,
	}
}

type ollamaRequest struct {
	Model     string       `json:"model"`
	Prompt    string       `json:"prompt"`
	Stream    bool         `json:"stream"`
	Options   ModelOptions `json:"options"`
	KeepAlive string       `json:"keep_alive,omitempty"`
}

type ollamaChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate starts a streaming completion.
func (o *Ollama) Generate(ctx context.Context, prompt string) (TokenStream, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:     o.Model,
		Prompt:    prompt,
		Stream:    true,
		Options:   o.Options,
		KeepAlive: o.KeepAlive,
	})
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &UpstreamError{Code: resp.StatusCode}
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ndjsonStream{body: resp.Body, sc: sc}, nil
}

// ndjsonStream decodes newline delimited JSON chunks. Lines that are not
// valid JSON are skipped.
type ndjsonStream struct {
	body io.ReadCloser
	sc   *bufio.Scanner
	done bool
}

func (s *ndjsonStream) Next() (string, error) {
	for !s.done {
		if !s.sc.Scan() {
			s.done = true
			if err := s.sc.Err(); err != nil {
				return "", fmt.Errorf("read completion: %w", err)
			}
			break
		}
		line := bytes.TrimSpace(s.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Done {
			s.done = true
		}
		if chunk.Response != "" {
			return chunk.Response, nil
		}
	}
	return "", io.EOF
}

func (s *ndjsonStream) Close() error {
	return s.body.Close()
}

// IsUpstream reports whether err carries an upstream status code.
func IsUpstream(err error) (int, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Code, true
	}
	return 0, false
}
