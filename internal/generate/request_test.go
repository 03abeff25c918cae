package generate_test

import (
	"errors"
	"net/url"
	"slices"
	"testing"

	"github.com/dgnsrekt/storyfeed/internal/generate"
)

func TestRequestQuery(t *testing.T) {
	req := generate.Request{
		Seed:         "abc",
		MaxWords:     600,
		Mode:         generate.ModeContinue,
		Context:      generate.Context{Categories: []string{"horror"}, Prior: "It was dark."},
		Force:        true,
		Continuation: generate.FlavorArc,
	}
	q, err := req.Query()
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	for key, want := range map[string]string{
		"seed":     "abc",
		"maxWords": "600",
		"mode":     "continue",
		"force":    "1",
		"cont":     "arc",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}

	parsed := generate.ParseRequest(q)
	if parsed.Context.Prior != "It was dark." || !slices.Equal(parsed.Context.Categories, []string{"horror"}) {
		t.Errorf("parsed context = %+v", parsed.Context)
	}
	if parsed.Mode != generate.ModeContinue || !parsed.Force || parsed.MaxWords != 600 {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestRequestQueryOmitsEmpty(t *testing.T) {
	q, err := generate.Request{}.Query()
	if err != nil {
		t.Fatal(err)
	}
	if q.Get("mode") != "initial" {
		t.Errorf("mode = %q, want initial", q.Get("mode"))
	}
	for _, key := range []string{"seed", "maxWords", "ctx", "force", "cont"} {
		if q.Has(key) {
			t.Errorf("unexpected %s = %q", key, q.Get(key))
		}
	}
}

func TestParseRequestDefaults(t *testing.T) {
	r := generate.ParseRequest(url.Values{"ctx": {"%%%not-base64"}, "maxWords": {"-3"}})
	if r.MaxWords != generate.DefaultMaxWords {
		t.Errorf("MaxWords = %d", r.MaxWords)
	}
	if r.Mode != generate.ModeInitial || r.Force {
		t.Errorf("r = %+v", r)
	}
	if r.Continuation != generate.FlavorArc {
		t.Errorf("Continuation = %q, want arc", r.Continuation)
	}
	if !r.Context.IsZero() {
		t.Errorf("Context = %+v, want empty", r.Context)
	}
}

func TestDecodeContextErrors(t *testing.T) {
	if _, err := generate.DecodeContext("!!"); !errors.Is(err, generate.ErrBadContext) {
		t.Errorf("bad base64 error = %v", err)
	}
	// "bm90IGpzb24=" is base64 for "not json".
	if _, err := generate.DecodeContext("bm90IGpzb24="); !errors.Is(err, generate.ErrBadContext) {
		t.Errorf("bad json error = %v", err)
	}
}

func TestFlavorFor(t *testing.T) {
	tests := []struct {
		categories []string
		want       generate.Flavor
	}{
		{nil, generate.FlavorArc},
		{[]string{"horror", "romance"}, generate.FlavorArc},
		{[]string{"horror", "AITA"}, generate.FlavorAITA},
	}
	for _, tt := range tests {
		if got := generate.FlavorFor(tt.categories); got != tt.want {
			t.Errorf("FlavorFor(%v) = %q, want %q", tt.categories, got, tt.want)
		}
	}
}
