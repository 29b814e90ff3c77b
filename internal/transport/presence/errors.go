package presence

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when writing to a connection that was closed.
	ErrClosed = errors.New("presence connection closed")
	// ErrServerClosed reports a close frame sent by the server.
	ErrServerClosed = errors.New("presence stream closed by server")
	// ErrHandshakeTimeout indicates the websocket handshake exceeded its deadline.
	ErrHandshakeTimeout = errors.New("presence handshake timed out")
)

// StreamError is an error frame sent by the server.
type StreamError struct {
	Condition string
	Text      string
}

func (e *StreamError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("stream error: %s", e.Condition)
	}
	return fmt.Sprintf("stream error: %s: %s", e.Condition, e.Text)
}
