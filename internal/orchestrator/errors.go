package orchestrator

import (
	"errors"
	"fmt"
)

var (
	ErrConnectInProgress = errors.New("connect already in progress")
	ErrConnectTimeout    = errors.New("connect timed out")
	ErrHandshake         = errors.New("hub closed before handshake")
	ErrAborted           = errors.New("aborted by leave")
	ErrNotConnected      = errors.New("not connected to hub")
	ErrNotJoined         = errors.New("not joined to a room")
	ErrNoLocalStream     = errors.New("no local stream")
	ErrNotBroadcaster    = errors.New("only the broadcaster has a local stream")
)

// OpError records the client operation that failed.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func newOpError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}
