package audio

import (
	"errors"
	"slices"
)

var (
	// ErrQueueClosed is returned when submitting to a closed queue.
	ErrQueueClosed = errors.New("audio queue is closed")

	// ErrDisabled is returned when submitting before audio was enabled.
	ErrDisabled = errors.New("audio is disabled")

	// ErrBacklog is reported for a job dropped because too many were waiting.
	ErrBacklog = errors.New("speech backlog full")

	// ErrEmptyText is returned for jobs without any text.
	ErrEmptyText = errors.New("empty text")

	// ErrUnavailable is returned when no audio device can be used.
	ErrUnavailable = errors.New("audio output unavailable")

	// ErrFormatMismatch is returned when a clip does not match the player.
	ErrFormatMismatch = errors.New("audio format mismatch")
)

// RetryableStatuses are HTTP statuses worth another synthesis attempt.
var RetryableStatuses = []int{408, 425, 429, 500, 502, 503, 504}

// StatusCoder is implemented by errors carrying an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// IsRetryable reports whether err carries a retryable HTTP status.
func IsRetryable(err error) bool {
	var sc StatusCoder
	if !errors.As(err, &sc) {
		return false
	}
	return slices.Contains(RetryableStatuses, sc.StatusCode())
}
