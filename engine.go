package varnish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pior/varnish/vcli"
)

var (
	errAuthRequired = errors.New("authentication required but no secret configured")
	errBadChallenge = errors.New("malformed authentication challenge")
	errStaleConn    = errors.New("connection replaced")
)

// Execute sends a command and returns the response content.
//
// Arguments are formatted with their natural representation and joined with
// single spaces; backslashes are escaped, whitespace is not quoted.
//
// The returned error is an *Error of kind ConnectError, BrokenConnection or
// CommandFailed, ErrCircuitOpen when a circuit breaker rejects the command, or
// the context error when ctx is already done.
func (c *Client) Execute(ctx context.Context, name string, args ...any) (string, error) {
	resp, err := c.Do(ctx, vcli.NewRequest(name, args...))
	if err != nil {
		return "", err
	}
	return resp.String(), nil
}

// Do sends a prepared request and returns the parsed response.
// For CommandFailed errors the response is returned along with the error.
func (c *Client) Do(ctx context.Context, req *vcli.Request) (*vcli.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.breaker != nil {
		return c.breaker.Execute(func() (*vcli.Response, error) {
			return c.do(ctx, req)
		})
	}

	return c.do(ctx, req)
}

// do runs the whole exchange under the client lock: connect if needed, write
// the request, read header and body, validate the status.
func (c *Client) do(ctx context.Context, req *vcli.Request) (*vcli.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	return c.exchangeLocked(ctx, c.conn, req)
}

// exchangeLocked performs one request/response on cn.
// On I/O or parse failure the connection is dropped: the next command will
// reconnect, this one is not retried.
// Must be called with mu held.
func (c *Client) exchangeLocked(ctx context.Context, cn *conn, req *vcli.Request) (*vcli.Response, error) {
	resp, err := cn.roundTrip(ctx, req)
	if err != nil {
		c.stats.recordBrokenConnection()
		c.dropLocked(cn)
		c.logger.Debug("connection broken",
			slog.String("command", req.Command),
			slog.Any("error", err))
		return nil, newBrokenConnectionError(cn.server, req.Command, err)
	}

	c.stats.recordCommand()

	if !resp.IsSuccess() {
		c.stats.recordCommandFailure()
		return resp, newCommandFailedError(cn.server, req.Command, resp)
	}

	return resp, nil
}

// pingOn sends a ping on cn only if cn is still the current connection.
// It never opens a new connection.
func (c *Client) pingOn(ctx context.Context, cn *conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != cn || cn.isClosed() {
		return errStaleConn
	}

	c.stats.recordPing()
	_, err := c.exchangeLocked(ctx, cn, vcli.NewRequest(vcli.CmdPing))
	return err
}

// handshake consumes the greeting of a fresh connection and answers the
// authentication challenge if the daemon sends one.
func handshake(ctx context.Context, cn *conn, secret []byte) error {
	resp, err := cn.readResponse(ctx)
	if err != nil {
		return fmt.Errorf("reading banner: %w", err)
	}

	if resp.IsAuthChallenge() {
		if secret == nil {
			return errAuthRequired
		}
		challenge := resp.Challenge()
		if challenge == nil {
			return errBadChallenge
		}

		resp, err = cn.roundTrip(ctx, vcli.NewAuthRequest(challenge, secret))
		if err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("handshake rejected with status %d: %s", int(resp.Status), resp.String())
	}

	return nil
}
