package vcli

import (
	"errors"
	"fmt"
)

// ParseError represents a client-side parsing error.
// The server sent something that is not a valid response: the stream can no
// longer be trusted to be aligned on a response boundary.
//
// Common causes:
//   - Header line without status or length
//   - Non-numeric or negative length
//   - Body not followed by a newline
//
// Connection handling: CLOSE connection
type ParseError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse error: " + e.Message + ": " + e.Err.Error()
	}
	return "parse error: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - parse errors indicate corrupted state
func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps underlying I/O errors from connection operations.
//
// Common causes:
//   - Peer closed the connection (io.EOF, io.ErrUnexpectedEOF)
//   - Deadline exceeded
//   - Connection reset
//
// Connection handling: connection is already broken, CLOSE and reconnect
type ConnectionError struct {
	Op  string // read or write
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - connection errors mean connection is broken
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by errors that know whether the
// connection must be discarded.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err leaves the connection unusable.
// Unknown error types are treated conservatively.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	return true
}
