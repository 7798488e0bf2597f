package varnish

import (
	"errors"
	"fmt"
	"os"

	"github.com/sony/gobreaker/v2"

	"github.com/pior/varnish/vcli"
)

// ErrorKind classifies client failures. The set is closed.
//
// ErrorKind implements error so that callers can test the kind of any error
// returned by the client:
//
//	if errors.Is(err, varnish.CommandFailed) {
//	    // the daemon refused the command, the connection is still healthy
//	}
type ErrorKind int

const (
	// ConnectError is an address resolution, dial or handshake failure.
	// Surfaced to the caller of the command that triggered the connect.
	ConnectError ErrorKind = iota + 1

	// BrokenConnection is a read or write that failed to produce the
	// expected bytes: peer closed, timeout, malformed header.
	// The connection is discarded; the next command reconnects.
	BrokenConnection

	// CommandFailed is a completed exchange with a non-200 status.
	// The connection remains usable.
	CommandFailed
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectError:
		return "connect error"
	case BrokenConnection:
		return "broken connection"
	case CommandFailed:
		return "command failed"
	default:
		return "unknown error"
	}
}

func (k ErrorKind) Error() string {
	return "varnish: " + k.String()
}

// ErrCircuitOpen is returned when the circuit breaker rejects a command.
var ErrCircuitOpen = gobreaker.ErrOpenState

// Error is the error type returned by the client.
// The populated fields depend on Kind.
type Error struct {
	Kind ErrorKind

	// Server is the "host:port" the client was talking to.
	Server string

	// Command is the command name. Empty for ConnectError.
	Command string

	// Status and Message are set for CommandFailed: the status code and the
	// diagnostic text returned by the daemon.
	Status  vcli.Status
	Message string

	// Err is the underlying error for ConnectError and BrokenConnection.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ConnectError:
		return fmt.Sprintf("varnish: connect to %s: %v", e.Server, e.Err)
	case BrokenConnection:
		return fmt.Sprintf("varnish: broken connection to %s during %s: %v", e.Server, e.Command, e.Err)
	case CommandFailed:
		return fmt.Sprintf("varnish: command %s returned with status %d: %s", e.Command, int(e.Status), e.Message)
	default:
		return fmt.Sprintf("varnish: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches an ErrorKind target against the error's kind.
func (e *Error) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// Timeout reports whether the failure was caused by an elapsed deadline.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, os.ErrDeadlineExceeded)
}

// ShouldCloseConnection returns false only for CommandFailed.
func (e *Error) ShouldCloseConnection() bool {
	return e.Kind != CommandFailed
}

// KindOf returns the ErrorKind of err, or 0 when err was not produced by the client.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newConnectError(server string, err error) *Error {
	return &Error{Kind: ConnectError, Server: server, Err: err}
}

func newBrokenConnectionError(server, command string, err error) *Error {
	return &Error{Kind: BrokenConnection, Server: server, Command: command, Err: err}
}

func newCommandFailedError(server, command string, resp *vcli.Response) *Error {
	return &Error{
		Kind:    CommandFailed,
		Server:  server,
		Command: command,
		Status:  resp.Status,
		Message: resp.String(),
	}
}
