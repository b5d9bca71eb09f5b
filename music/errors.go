package music

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrNothingPlaying  = errors.New("nothing is playing")
	ErrNoPrevious      = errors.New("no previous song in history")
	ErrNoVoiceTarget   = errors.New("requester is not in a voice channel")
	ErrOutOfRange      = errors.New("value out of range")
	ErrUnknownFilter   = errors.New("unknown filter")
	ErrNotFound        = errors.New("no results found")
	ErrUnsupported     = errors.New("unsupported link")
)

// ExpansionError is returned by Play when a link could not be expanded into
// queries. The queue is left untouched.
type ExpansionError struct {
	Link string
	Err  error
}

func (e *ExpansionError) Error() string {
	return fmt.Sprintf("expand %q: %v", e.Link, e.Err)
}

func (e *ExpansionError) Unwrap() error { return e.Err }

// ResolutionError describes a request the resolver could not turn into a track.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// JoinError is returned by Play when the voice channel could not be joined.
type JoinError struct {
	Err error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join voice channel: %v", e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }
