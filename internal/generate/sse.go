package generate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Reader decodes a server-sent event stream.
//
// Only data fields are kept. Several data lines in one event are joined with
// "\n", and exactly one space after the colon is stripped, so deltas keep
// their own whitespace. Comment lines and other fields are ignored.
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader decoding r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadEvent returns the data of the next event. It returns io.EOF once the
// input is exhausted.
func (r *Reader) ReadEvent() (string, error) {
	var data []string
	has := false

	for {
		line, err := r.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		eof := err != nil

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if has {
				return strings.Join(data, "\n"), nil
			}
		case strings.HasPrefix(line, ":"):
		default:
			field, value := line, ""
			if i := strings.IndexByte(line, ':'); i >= 0 {
				field, value = line[:i], strings.TrimPrefix(line[i+1:], " ")
			}
			if field == "data" {
				data = append(data, value)
				has = true
			}
		}

		if eof {
			if has {
				return strings.Join(data, "\n"), nil
			}
			return "", io.EOF
		}
	}
}

// NewStream wraps an SSE body as a Stream. Closing the stream closes body.
func NewStream(body io.ReadCloser) Stream {
	return &sseStream{body: body, r: NewReader(body)}
}

type sseStream struct {
	body io.ReadCloser
	r    *Reader
	done bool
}

func (s *sseStream) Next() (Event, error) {
	if s.done {
		return Event{}, io.EOF
	}
	payload, err := s.r.ReadEvent()
	if errors.Is(err, io.EOF) {
		return Event{}, ErrNoDone
	}
	if err != nil {
		return Event{}, err
	}
	if strings.TrimRight(payload, "\r\n") == DoneSentinel {
		s.done = true
		return Event{Done: true}, nil
	}
	return Event{Delta: payload}, nil
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

// Writer encodes server-sent events and flushes after every event when the
// underlying writer supports it.
type Writer struct {
	w io.Writer
	f http.Flusher
}

// NewWriter returns a Writer encoding to w.
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, f: f}
}

// WriteData writes s as one event. Newlines inside s become separate data
// lines so they survive the round trip.
func (w *Writer) WriteData(s string) error {
	var sb strings.Builder
	for _, line := range strings.Split(s, "\n") {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	return w.write(sb.String())
}

// WriteDone writes the done sentinel.
func (w *Writer) WriteDone() error {
	return w.WriteData(DoneSentinel)
}

// WriteComment writes a comment line, used as a keep-alive.
func (w *Writer) WriteComment(s string) error {
	return w.write(": " + s + "\n\n")
}

func (w *Writer) write(s string) error {
	if _, err := io.WriteString(w.w, s); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if w.f != nil {
		w.f.Flush()
	}
	return nil
}

// SetHeaders prepares an HTTP response for an event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
