package varnish

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Client is a client for the varnishd management interface.
//
// A Client owns at most one connection. Commands are serialized: one command
// is on the wire at a time, whether issued by the caller or by the keep-alive
// task. The connection is opened lazily by the first command and re-opened
// transparently after it broke. Failed commands are never retried.
//
// A Client is safe for concurrent use.
type Client struct {
	// mu guards conn and every exchange on it.
	mu   sync.Mutex
	conn *conn

	// connected mirrors "conn != nil && !conn.isClosed()" without the lock,
	// so liveness checks never wait behind a command in flight.
	connected atomic.Bool

	cfgMu  sync.RWMutex
	config Config

	breaker CircuitBreaker // nil if not configured
	logger  *slog.Logger
	stats   *clientStatsCollector
}

// New creates a client for a "host" or "host:port" server with default options.
func New(server string) (*Client, error) {
	return NewWithConfig(server, Config{})
}

// NewWithConfig creates a client for a "host" or "host:port" server.
// The server string overrides config.Host and config.Port.
func NewWithConfig(server string, config Config) (*Client, error) {
	host, port, err := ParseServer(server)
	if err != nil {
		return nil, err
	}
	config.Host = host
	config.Port = port
	return NewFromConfig(config), nil
}

// NewFromConfig creates a client from a config alone.
// No connection is opened until the first command.
func NewFromConfig(config Config) *Client {
	config = config.withDefaults()

	client := &Client{
		config: config,
		logger: config.Logger.With(slog.String("server", config.Server())),
		stats:  newClientStatsCollector(),
	}

	if config.NewCircuitBreaker != nil {
		client.breaker = config.NewCircuitBreaker(config.Server())
	}

	return client
}

// Config returns a copy of the current configuration.
func (c *Client) Config() Config {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.config
}

// Server returns the management address as "host:port".
func (c *Client) Server() string {
	return c.Config().Server()
}

// SetServer changes the address used by the next connection.
func (c *Client) SetServer(server string) error {
	host, port, err := ParseServer(server)
	if err != nil {
		return err
	}

	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	c.config.Host = host
	c.config.Port = port
	return nil
}

// SetTimeout changes the per-step timeout used by the next connection.
// A zero or negative duration disables timeouts.
func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = NoTimeout
	}

	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	c.config.Timeout = timeout
}

// SetKeepAlive enables or disables keep-alive for the next connection.
func (c *Client) SetKeepAlive(keepAlive bool) {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	c.config.KeepAlive = keepAlive
}

// IsConnected reports whether a connection is open and was not observed closed.
// It never blocks on a command in flight.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Connect opens the connection if needed. Commands connect on their own;
// calling Connect is only useful to fail early or to start keep-alive.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

// connectLocked opens a new connection unless one is live.
// Must be called with mu held.
func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil && !c.conn.isClosed() {
		return nil
	}

	config := c.Config()
	server := config.Server()

	cn, err := dial(ctx, config)
	if err != nil {
		c.stats.recordConnectError()
		c.logger.Debug("connect failed", slog.Any("error", err))
		return newConnectError(server, err)
	}

	if config.shouldReadBanner() {
		if err := handshake(ctx, cn, config.Secret); err != nil {
			_ = cn.close()
			c.stats.recordConnectError()
			c.logger.Debug("handshake failed", slog.Any("error", err))
			return newConnectError(server, err)
		}
	}

	c.conn = cn
	c.connected.Store(true)
	c.stats.recordConnect()
	c.logger.Debug("connected", slog.Bool("keep_alive", config.KeepAlive))

	if config.KeepAlive {
		c.startKeepAlive(cn, config.KeepAliveInterval)
	}

	return nil
}

// Disconnect politely closes the connection: it sends "quit", reads one reply
// line and closes the socket. Errors are ignored: Disconnect is safe to call
// at any time, including on a broken or never-opened connection.
//
// The next command reconnects automatically.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cn := c.conn
	if cn == nil {
		c.mu.Unlock()
		return
	}

	if !cn.isClosed() {
		cn.quit()
	}
	c.dropLocked(cn)
	c.stats.recordDisconnect()
	c.logger.Debug("disconnected")
	c.mu.Unlock()

	// The keep-alive task may be waiting for the lock: join it only once
	// the lock is released.
	if cn.keepAliveDone != nil {
		<-cn.keepAliveDone
	}
}

// Close disconnects the client. It implements io.Closer and always returns nil.
func (c *Client) Close() error {
	c.Disconnect()
	return nil
}

// dropLocked closes cn and forgets it if it is the current connection.
// Must be called with mu held.
func (c *Client) dropLocked(cn *conn) {
	_ = cn.close()
	if c.conn == cn {
		c.conn = nil
		c.connected.Store(false)
	}
}

// Stats returns a snapshot of client statistics.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// CircuitBreakerState returns the state of the circuit breaker, or
// StateClosed when none is configured.
func (c *Client) CircuitBreakerState() CircuitBreakerState {
	if c.breaker == nil {
		return StateClosed
	}
	return c.breaker.State()
}
