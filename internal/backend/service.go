// Package backend generates stories with a local completion model and
// serves them as story streams.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/storyfeed/internal/generate"
)

// MaxWordsCap bounds the length any request may ask for.
const MaxWordsCap = 220

// NoticeSimilar is streamed instead of a story that resembles a recent one.
const NoticeSimilar = "[Similar to prior, skipping]\n"

// Service builds prompts, runs them through a Generator and streams the
// result. It implements generate.Source and http.Handler.
type Service struct {
	gen     Generator
	dedup   *Dedup
	history *History
	logger  *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDedup replaces the near-duplicate detector.
func WithDedup(d *Dedup) Option {
	return func(s *Service) { s.dedup = d }
}

// WithHistory replaces the story history used for the rolling summary.
func WithHistory(h *History) Option {
	return func(s *Service) { s.history = h }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a Service backed by gen.
func NewService(gen Generator, opts ...Option) *Service {
	s := &Service{
		gen:     gen,
		dedup:   NewDedup(DefaultDedupWindow, DefaultDedupDistance),
		history: NewHistory(DefaultHistory),
		logger:  log.WithPrefix("backend"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// History returns the story history.
func (s *Service) History() *History { return s.history }

// Open implements generate.Source. A story that resembles a recent one, and
// an upstream status failure, are answered with a one line notice followed
// by the end of the stream.
func (s *Service) Open(ctx context.Context, req generate.Request) (generate.Stream, error) {
	if req.MaxWords <= 0 {
		req.MaxWords = generate.DefaultMaxWords
	}
	req.MaxWords = min(req.MaxWords, MaxWordsCap)
	if req.Mode == "" {
		req.Mode = generate.ModeInitial
	}

	prompt := BuildPrompt(req, s.history.Summary())
	if req.Mode == generate.ModeInitial && !req.Force && s.dedup.Seen(prompt.TitleHint) {
		s.logger.Debug("Skipping similar story", "hint", prompt.TitleHint)
		return newNotice(NoticeSimilar), nil
	}

	tokens, err := s.gen.Generate(ctx, prompt.Text())
	if err != nil {
		if code, ok := IsUpstream(err); ok {
			s.logger.Warn("Completion server failed", "status", code)
			return newNotice(fmt.Sprintf("ERROR %d\n", code)), nil
		}
		return nil, fmt.Errorf("generate story: %w", err)
	}

	s.logger.Debug("Story started", "mode", req.Mode, "seed", req.Seed, "maxWords", req.MaxWords)
	return &storyStream{tokens: tokens, history: s.history}, nil
}

// ServeHTTP answers GET /api/generate with a server-sent event stream.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	req := generate.ParseRequest(r.URL.Query())
	generate.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	sw := generate.NewWriter(w)

	stream, err := s.Open(r.Context(), req)
	if err != nil {
		s.logger.Error("Cannot reach completion server", "err", err)
		_ = sw.WriteData(fmt.Sprintf("ERROR %d\n", http.StatusBadGateway))
		_ = sw.WriteDone()
		return
	}
	defer stream.Close() //nolint:errcheck

	for {
		ev, err := stream.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				s.logger.Warn("Story stream broke", "err", err)
			}
			return
		}
		if ev.Done {
			_ = sw.WriteDone()
			return
		}
		if err := sw.WriteData(ev.Delta); err != nil {
			return
		}
	}
}

// storyStream turns completion fragments into story events and records the
// finished body.
type storyStream struct {
	tokens  TokenStream
	history *History
	body    strings.Builder
	done    bool
}

func (s *storyStream) Next() (generate.Event, error) {
	if s.done {
		return generate.Event{}, io.EOF
	}
	tok, err := s.tokens.Next()
	if errors.Is(err, io.EOF) {
		s.done = true
		s.history.Add(s.body.String())
		return generate.Event{Done: true}, nil
	}
	if err != nil {
		return generate.Event{}, err
	}
	s.body.WriteString(tok)
	return generate.Event{Delta: tok}, nil
}

func (s *storyStream) Close() error {
	return s.tokens.Close()
}

// noticeStream yields a single line and ends.
type noticeStream struct {
	events []generate.Event
}

func newNotice(text string) *noticeStream {
	return &noticeStream{events: []generate.Event{{Delta: text}, {Done: true}}}
}

func (n *noticeStream) Next() (generate.Event, error) {
	if len(n.events) == 0 {
		return generate.Event{}, io.EOF
	}
	ev := n.events[0]
	n.events = n.events[1:]
	return ev, nil
}

func (n *noticeStream) Close() error { return nil }
