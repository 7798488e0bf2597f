package varnish

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/pior/varnish/vcli"
)

// quitTimeout bounds the best-effort quit exchange when no timeout is configured.
const quitTimeout = time.Second

// aLongTimeAgo is a non-zero time in the past, used to interrupt blocked I/O.
var aLongTimeAgo = time.Unix(1, 0)

// conn is a single management connection.
// It is not safe for concurrent use: the Client lock serializes access.
type conn struct {
	server  string
	netConn net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	timeout time.Duration // zero means no timeout

	closeOnce sync.Once
	done      chan struct{} // closed by close()

	// keepAliveDone is closed when the keep-alive task bound to this
	// connection exits. Nil when keep-alive is disabled.
	keepAliveDone chan struct{}
}

// dial opens a TCP connection to the configured server.
// The dial honors both the configured timeout and the context deadline.
func dial(ctx context.Context, cfg Config) (*conn, error) {
	server := cfg.Server()
	timeout := cfg.effectiveTimeout()

	dialFn := cfg.dial
	if dialFn == nil {
		dialer := net.Dialer{}
		if cfg.Dialer != nil {
			dialer = *cfg.Dialer
		}
		if dialer.Timeout == 0 {
			dialer.Timeout = timeout
		}
		dialFn = dialer.DialContext
	} else if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	netConn, err := dialFn(ctx, "tcp", server)
	if err != nil {
		return nil, err
	}

	// Each request is a single small write that must reach the peer promptly.
	if tcpConn, ok := netConn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	return newConn(server, netConn, timeout), nil
}

func newConn(server string, netConn net.Conn, timeout time.Duration) *conn {
	return &conn{
		server:  server,
		netConn: netConn,
		reader:  bufio.NewReader(netConn),
		writer:  bufio.NewWriter(netConn),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// deadline returns the deadline for the next blocking step: now+timeout,
// capped by the context deadline. Zero means no deadline.
func (c *conn) deadline(ctx context.Context, timeout time.Duration) time.Time {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	return deadline
}

// arm sets the socket deadline for the next step.
// The socket deadline bounds the whole composite read (a line may take
// several reads), not only the individual syscalls.
func (c *conn) arm(ctx context.Context, op string) error {
	if err := c.netConn.SetDeadline(c.deadline(ctx, c.timeout)); err != nil {
		return &vcli.ConnectionError{Op: op, Err: err}
	}
	// Checked after setting the deadline: a cancellation racing with us
	// either shows up here or has already pushed the deadline in the past.
	if err := ctx.Err(); err != nil {
		return &vcli.ConnectionError{Op: op, Err: err}
	}
	return nil
}

// roundTrip writes req and reads exactly one response.
// Any returned error leaves the connection unusable.
func (c *conn) roundTrip(ctx context.Context, req *vcli.Request) (*vcli.Response, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.netConn.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	if err := c.write(ctx, req); err != nil {
		return nil, err
	}
	return c.readResponse(ctx)
}

func (c *conn) write(ctx context.Context, req *vcli.Request) error {
	if err := c.arm(ctx, "write"); err != nil {
		return err
	}
	return vcli.WriteRequest(c.writer, req)
}

func (c *conn) readResponse(ctx context.Context) (*vcli.Response, error) {
	if err := c.arm(ctx, "read"); err != nil {
		return nil, err
	}
	status, length, err := vcli.ReadHeader(c.reader)
	if err != nil {
		return nil, err
	}

	if err := c.arm(ctx, "read"); err != nil {
		return nil, err
	}
	body, err := vcli.ReadBody(c.reader, length)
	if err != nil {
		return nil, err
	}

	return &vcli.Response{Status: status, Body: body}, nil
}

// quit politely terminates the session: writes "quit" and reads one line.
// The daemon may close without answering; every error is ignored.
func (c *conn) quit() {
	timeout := c.timeout
	if timeout == 0 {
		timeout = quitTimeout
	}

	_ = c.netConn.SetDeadline(time.Now().Add(timeout))
	if err := vcli.WriteRequest(c.writer, vcli.NewRequest(vcli.CmdQuit)); err != nil {
		return
	}
	_, _ = vcli.ReadLine(c.reader)
}

// close closes the socket. Safe to call multiple times.
func (c *conn) close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.netConn.Close()
	})
	return err
}

func (c *conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
