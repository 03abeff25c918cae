// Package speech turns text into 24 kHz mono PCM clips, either through a
// story server's /api/tts endpoint or directly through the OpenAI speech
// API.
package speech

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/dgnsrekt/storyfeed/feed"
)

// Voices available for synthesis.
var Voices = feed.Voices

// DefaultVoice is used when a request names none.
const DefaultVoice = "alloy"

var (
	// ErrUnknownVoice is returned for a voice outside Voices.
	ErrUnknownVoice = errors.New("unknown voice")

	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("nothing to speak")
)

// StatusError is a non-2xx answer from a speech endpoint.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("speech: %d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
	}
	return fmt.Sprintf("speech: %d %s", e.Code, http.StatusText(e.Code))
}

// StatusCode returns the HTTP status code.
func (e *StatusError) StatusCode() int { return e.Code }

// ValidVoice reports whether v is one of Voices.
func ValidVoice(v string) bool {
	return slices.Contains(Voices, v)
}

// Request is the body of a speech request.
type Request struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}
