// Package generate describes story generation requests and the streams that
// answer them.
package generate

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Mode selects between a fresh story and a continuation.
type Mode string

const (
	// ModeInitial asks for a new story.
	ModeInitial Mode = "initial"
	// ModeContinue asks for a follow-up to the prior story.
	ModeContinue Mode = "continue"
)

// Flavor is the style of a continuation.
type Flavor string

const (
	// FlavorAITA continues as an update post.
	FlavorAITA Flavor = "aita"
	// FlavorArc continues the story arc.
	FlavorArc Flavor = "arc"
)

// DefaultMaxWords is used when a request does not name a length.
const DefaultMaxWords = 180

// Context is the optional client context sent along with a request.
type Context struct {
	Categories []string `json:"categories,omitempty"`
	Prior      string   `json:"prior,omitempty"`
}

// IsZero reports whether the context carries nothing.
func (c Context) IsZero() bool {
	return len(c.Categories) == 0 && c.Prior == ""
}

// Encode returns the context as base64 encoded JSON, or "" when empty.
func (c Context) Encode() (string, error) {
	if c.IsZero() {
		return "", nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode context: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeContext parses a context blob. An empty blob is an empty context.
func DecodeContext(blob string) (Context, error) {
	var c Context
	if blob == "" {
		return c, nil
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrBadContext, err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrBadContext, err)
	}
	return c, nil
}

// Request asks for one story stream.
type Request struct {
	Seed         string  // Opaque, defeats caches and varies the prompt
	MaxWords     int     // Upper bound on story length; the backend may cap it
	Mode         Mode    // initial or continue
	Context      Context // Optional client context
	Force        bool    // Skip the near-duplicate check
	Continuation Flavor  // Continuation style, continue mode only
}

// Query encodes the request as URL query parameters.
func (r Request) Query() (url.Values, error) {
	q := url.Values{}
	if r.Seed != "" {
		q.Set("seed", r.Seed)
	}
	if r.MaxWords > 0 {
		q.Set("maxWords", strconv.Itoa(r.MaxWords))
	}
	mode := r.Mode
	if mode == "" {
		mode = ModeInitial
	}
	q.Set("mode", string(mode))

	blob, err := r.Context.Encode()
	if err != nil {
		return nil, err
	}
	if blob != "" {
		q.Set("ctx", blob)
	}
	if r.Force {
		q.Set("force", "1")
	}
	if mode == ModeContinue && r.Continuation != "" {
		q.Set("cont", string(r.Continuation))
	}
	return q, nil
}

// ParseRequest reads a request from URL query parameters. Missing values
// get their defaults; a malformed context blob is ignored.
func ParseRequest(q url.Values) Request {
	r := Request{
		Seed:     q.Get("seed"),
		MaxWords: DefaultMaxWords,
		Mode:     ModeInitial,
		Force:    q.Get("force") == "1",
	}
	if n, err := strconv.Atoi(q.Get("maxWords")); err == nil && n > 0 {
		r.MaxWords = n
	}
	if Mode(q.Get("mode")) == ModeContinue {
		r.Mode = ModeContinue
	}
	if c, err := DecodeContext(q.Get("ctx")); err == nil {
		r.Context = c
	}
	switch Flavor(q.Get("cont")) {
	case FlavorAITA:
		r.Continuation = FlavorAITA
	default:
		r.Continuation = FlavorArc
	}
	return r
}

// FlavorFor picks the continuation style for the selected categories.
func FlavorFor(categories []string) Flavor {
	if slices.ContainsFunc(categories, func(c string) bool {
		return strings.EqualFold(c, string(FlavorAITA))
	}) {
		return FlavorAITA
	}
	return FlavorArc
}
