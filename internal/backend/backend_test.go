package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	charmlog "github.com/charmbracelet/log"

	"github.com/dgnsrekt/storyfeed/internal/generate"
)

// fakeGenerator returns scripted fragments and records prompts.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	tokens  []string
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (TokenStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, f.err
	}
	return &sliceTokens{tokens: append([]string(nil), f.tokens...)}, nil
}

type sliceTokens struct {
	tokens []string
	closed bool
}

func (s *sliceTokens) Next() (string, error) {
	if len(s.tokens) == 0 {
		return "", io.EOF
	}
	t := s.tokens[0]
	s.tokens = s.tokens[1:]
	return t, nil
}

func (s *sliceTokens) Close() error {
	s.closed = true
	return nil
}

func quiet() *charmlog.Logger { return charmlog.New(io.Discard) }

func drain(t *testing.T, s generate.Stream) (string, bool) {
	t.Helper()
	var sb strings.Builder
	for {
		ev, err := s.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if ev.Done {
			return sb.String(), true
		}
		sb.WriteString(ev.Delta)
	}
}

func TestOllamaStreamsResponses(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprintln(w, `{"response":"Title: A"}`)
		fmt.Fprintln(w, `not json at all`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"response":"\nHook: b"}`)
		fmt.Fprintln(w, `{"response":"","done":true}`)
		fmt.Fprintln(w, `{"response":"after done"}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL+"/", "tiny", srv.Client())
	ts, err := o.Generate(context.Background(), "prompt text")
	if err != nil {
		t.Fatal(err)
	}
	defer ts.Close()

	var parts []string
	for {
		tok, err := ts.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		parts = append(parts, tok)
	}

	if strings.Join(parts, "") != "Title: A\nHook: b" {
		t.Errorf("tokens = %q", parts)
	}
	if got.Model != "tiny" || got.Prompt != "prompt text" || !got.Stream {
		t.Errorf("request = %+v", got)
	}
	if got.Options.NumPredict != 140 || got.Options.NumCtx != 2048 || got.KeepAlive != "10m" {
		t.Errorf("options = %+v keep_alive %q", got.Options, got.KeepAlive)
	}
}

func TestOllamaStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "", srv.Client()).Generate(context.Background(), "p")
	code, ok := IsUpstream(err)
	if !ok || code != http.StatusNotFound {
		t.Fatalf("error = %v", err)
	}
}

func TestServiceStreamsStory(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"Title: X\n", "Hook: one ", "two."}}
	svc := NewService(gen, WithLogger(quiet()))

	s, err := svc.Open(context.Background(), generate.Request{Seed: "a", MaxWords: 600})
	if err != nil {
		t.Fatal(err)
	}
	text, done := drain(t, s)
	if !done || text != "Title: X\nHook: one two." {
		t.Errorf("text = %q done = %v", text, done)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after done error = %v", err)
	}
	if svc.History().Len() != 1 {
		t.Errorf("history len = %d", svc.History().Len())
	}
	if !strings.Contains(gen.prompts[0], "LENGTH: ~220 words total.") {
		t.Errorf("maxWords not capped in prompt:\n%s", gen.prompts[0])
	}
}

func TestServiceSkipsSimilar(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"Hook: x"}}
	svc := NewService(gen, WithLogger(quiet()))
	req := generate.Request{Seed: "same", MaxWords: 100}

	first, _ := svc.Open(context.Background(), req)
	drain(t, first)

	second, err := svc.Open(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if text, _ := drain(t, second); text != NoticeSimilar {
		t.Errorf("second text = %q", text)
	}

	req.Force = true
	forced, _ := svc.Open(context.Background(), req)
	if text, _ := drain(t, forced); text != "Hook: x" {
		t.Errorf("forced text = %q", text)
	}

	req.Force = false
	req.Mode = generate.ModeContinue
	cont, _ := svc.Open(context.Background(), req)
	if text, _ := drain(t, cont); text != "Hook: x" {
		t.Errorf("continue text = %q", text)
	}
	if len(gen.prompts) != 3 {
		t.Errorf("upstream calls = %d, want 3", len(gen.prompts))
	}
}

func TestServiceUpstreamFailure(t *testing.T) {
	svc := NewService(&fakeGenerator{err: &UpstreamError{Code: 503}}, WithLogger(quiet()))
	s, err := svc.Open(context.Background(), generate.Request{Seed: "z"})
	if err != nil {
		t.Fatal(err)
	}
	if text, _ := drain(t, s); text != "ERROR 503\n" {
		t.Errorf("text = %q", text)
	}

	svc = NewService(&fakeGenerator{err: errors.New("connection refused")}, WithLogger(quiet()))
	if _, err := svc.Open(context.Background(), generate.Request{Seed: "z"}); err == nil {
		t.Error("Open() with unreachable upstream succeeded")
	}
}

func TestServiceHTTPRoundTrip(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"Title: T\n\n", "Hook:  spaced ", "words"}}
	srv := httptest.NewServer(NewService(gen, WithLogger(quiet())))
	defer srv.Close()

	src := generate.NewHTTPSource(srv.URL, srv.Client())

	s, err := src.Open(context.Background(), generate.Request{
		Seed:     "rt",
		MaxWords: 50,
		Mode:     generate.ModeContinue,
		Context:  generate.Context{Categories: []string{"aita"}, Prior: "I said no."},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	text, done := drain(t, s)
	if !done || text != "Title: T\n\nHook:  spaced words" {
		t.Errorf("text = %q done = %v", text, done)
	}
	p := gen.prompts[0]
	if !strings.Contains(p, "PRIOR CONTEXT (verbatim excerpts):\nI said no.") || !strings.Contains(p, "UPDATE entry") {
		t.Errorf("prompt lacks continuation context:\n%s", p)
	}
	if !strings.Contains(p, "LENGTH: ~80 words.") {
		t.Errorf("continue length not clamped:\n%s", p)
	}
}

func TestServiceRejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewService(&fakeGenerator{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generate", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name    string
		req     generate.Request
		summary string
		want    []string
		hint    string
	}{
		{
			name:    "initial with genres and summary",
			req:     generate.Request{Seed: "s1", MaxWords: 180, Context: generate.Context{Categories: []string{"horror", "unknown"}}},
			summary: "A neighbor lied.",
			want:    []string{"Genre: write a horror and scary story.", "Context so far: A neighbor lied.", "LENGTH: ~180 words total.", "Title: <one line"},
			hint:    "seed:",
		},
		{
			name: "continue arc",
			req:  generate.Request{Seed: "s2", MaxWords: 300, Mode: generate.ModeContinue, Continuation: generate.FlavorArc},
			want: []string{"next scene/arc", "LENGTH: ~200 words.", "Story: <continue narrative only"},
			hint: "continuation:arc",
		},
		{
			name: "aita category forces update flavor",
			req:  generate.Request{Seed: "s3", MaxWords: 120, Mode: generate.ModeContinue, Continuation: generate.FlavorArc, Context: generate.Context{Categories: []string{"AITA"}}},
			want: []string{"UPDATE entry"},
			hint: "continuation:aita",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildPrompt(tt.req, tt.summary)
			for _, w := range tt.want {
				if !strings.Contains(p.Text(), w) {
					t.Errorf("prompt lacks %q:\n%s", w, p.Text())
				}
			}
			if !strings.HasPrefix(p.TitleHint, tt.hint) {
				t.Errorf("TitleHint = %q, want prefix %q", p.TitleHint, tt.hint)
			}
			if !strings.Contains(p.Text(), "\n\nUser:\n") {
				t.Error("prompt lacks user separator")
			}
		})
	}

	a := BuildPrompt(generate.Request{Seed: "same", MaxWords: 10}, "")
	b := BuildPrompt(generate.Request{Seed: "same", MaxWords: 10}, "")
	if a != b {
		t.Error("prompt is not deterministic for a seed")
	}
}

func TestDedup(t *testing.T) {
	d := NewDedup(2, 3)
	if d.Seen("seed: a wedding seating chart") {
		t.Fatal("first entry reported seen")
	}
	if !d.Seen("Seed: A wedding seating chart!") {
		t.Error("same words in other case not seen")
	}
	if d.Seen("a haunted rental listing tense and clipped") {
		t.Error("different idea seen")
	}
	d.Seen("a lottery ticket split between cousins")
	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2", d.Len())
	}
	if d.Seen("seed: a wedding seating chart") {
		t.Error("entry outside the window still seen")
	}
	if SimHash("") != 0 {
		t.Error("SimHash of empty text")
	}
}

func TestHistorySummary(t *testing.T) {
	h := NewHistory(2)
	h.Add("   ")
	h.Add("Title: Old\nHook: The first one. More.")
	h.Add("Title: Mid\nHook: My sister took the ring! Then...")
	h.Add("Story: No terminal here")
	if h.Len() != 2 {
		t.Fatalf("Len() = %d", h.Len())
	}
	want := "No terminal here / My sister took the ring!"
	if got := h.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
