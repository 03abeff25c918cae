//go:build nocgo
// +build nocgo

package audio

import "context"

// OtoPlayer is unavailable in builds without cgo.
type OtoPlayer struct{}

// NewOtoPlayer always fails in builds without cgo.
func NewOtoPlayer(Format) (*OtoPlayer, error) {
	return nil, ErrUnavailable
}

// Play implements Player.
func (*OtoPlayer) Play(context.Context, *Resource) error {
	return ErrUnavailable
}

// Close implements Player.
func (*OtoPlayer) Close() error {
	return nil
}
