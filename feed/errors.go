package feed

import (
	"errors"
	"fmt"
)

// Common errors for the feed.
var (
	ErrInvalidOptions = errors.New("invalid feed options")
	ErrClosed         = errors.New("pipeline is closed")
	ErrNotStarted     = errors.New("pipeline not started")
	ErrStreamClosed   = errors.New("stream closed before completion")
	ErrAudioDisabled  = errors.New("audio is not enabled")
)

// SessionError reports a transport failure on one stream session.
type SessionError struct {
	Slot      Slot   // Which stream failed
	SessionID string // Session identifier
	Err       error  // Underlying transport error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	return fmt.Sprintf("%s stream %s: %v", e.Slot, e.SessionID, e.Err)
}

// Unwrap returns the underlying error.
func (e *SessionError) Unwrap() error {
	return e.Err
}
