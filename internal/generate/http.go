package generate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultPath is where a story server answers generation requests.
const DefaultPath = "/api/generate"

// HTTPSource opens story streams from a story server over SSE.
type HTTPSource struct {
	baseURL string
	path    string
	client  *http.Client
}

// NewHTTPSource creates a source for the server at baseURL. A nil client
// uses a client without timeout, since streams stay open for a long time.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    DefaultPath,
		client:  client,
	}
}

// Open implements Source.
func (s *HTTPSource) Open(ctx context.Context, req Request) (Stream, error) {
	q, err := req.Query()
	if err != nil {
		return nil, err
	}

	u := s.baseURL + s.path + "?" + q.Encode()
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	hreq.Header.Set("Accept", "text/event-stream")
	hreq.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return NewStream(resp.Body), nil
}
