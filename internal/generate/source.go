package generate

import (
	"context"
	"errors"
	"fmt"
)

// DoneSentinel marks the end of a story stream. It is never content.
const DoneSentinel = "[DONE]"

var (
	// ErrBadContext is returned for a context blob that cannot be decoded.
	ErrBadContext = errors.New("malformed context blob")

	// ErrNoDone is returned when a stream ends without the done sentinel.
	ErrNoDone = errors.New("stream ended without [DONE]")
)

// Event is one item of a story stream: a raw text delta, or the end.
type Event struct {
	Delta string
	Done  bool
}

// Stream yields the events of one story.
type Stream interface {
	// Next blocks until the next event. After the Done event it returns
	// io.EOF. A transport failure is returned as an error.
	Next() (Event, error)

	// Close releases the underlying transport.
	Close() error
}

// Source opens story streams.
type Source interface {
	Open(ctx context.Context, req Request) (Stream, error)
}

// StatusError reports a non-2xx response from a generation endpoint.
type StatusError struct {
	Code   int
	Status string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("generate: unexpected status %s", e.Status)
}

// StatusCode returns the HTTP status code.
func (e *StatusError) StatusCode() int {
	return e.Code
}
