package varnish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHost is the management host used when none is configured.
	DefaultHost = "localhost"

	// DefaultPort is the default management port of varnishd.
	DefaultPort = 6082

	// DefaultTimeout bounds each blocking I/O step when Config.Timeout is zero.
	DefaultTimeout = time.Second

	// DefaultKeepAliveInterval is the delay between keep-alive pings.
	DefaultKeepAliveInterval = 5 * time.Second

	// NoTimeout disables timeouts: operations block until the peer answers.
	NoTimeout time.Duration = -1
)

// Config holds configuration for a varnish client.
// The zero value connects to localhost:6082 with a one second timeout.
//
// Changes made through the Client setters only affect the next connection.
type Config struct {
	// Host is the hostname or IP address of varnishd.
	// Default: "localhost".
	Host string

	// Port is the management port.
	// Default: 6082.
	Port int

	// Timeout bounds every blocking step of a command individually: connect,
	// write, header read and body read. It is not a deadline for the whole
	// command.
	// Zero means DefaultTimeout. Use NoTimeout to block indefinitely.
	Timeout time.Duration

	// KeepAlive starts a background task on every new connection that pings
	// the daemon so the connection is not closed while idle.
	KeepAlive bool

	// KeepAliveInterval is the delay between two pings.
	// Zero means DefaultKeepAliveInterval.
	KeepAliveInterval time.Duration

	// ReadBanner consumes the greeting the daemon sends on a new connection
	// before the first command. Implied by Secret.
	ReadBanner bool

	// Secret is the shared secret (content of the -S file) used to answer
	// the authentication challenge. Nil disables authentication.
	Secret []byte

	// Dialer is the net.Dialer used to create connections.
	// If nil, a default net.Dialer is used.
	Dialer *net.Dialer

	// Logger receives connection lifecycle events.
	// If nil, logs are discarded.
	Logger *slog.Logger

	// NewCircuitBreaker creates a circuit breaker for the server.
	// Called once when the client is created.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(server string) CircuitBreaker

	// for testing purposes only
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// withDefaults returns a copy of the config with zero values replaced.
func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Server returns the management address as "host:port".
func (c Config) Server() string {
	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// effectiveTimeout returns the per-step timeout, zero meaning none.
func (c Config) effectiveTimeout() time.Duration {
	switch {
	case c.Timeout < 0:
		return 0
	case c.Timeout == 0:
		return DefaultTimeout
	default:
		return c.Timeout
	}
}

func (c Config) shouldReadBanner() bool {
	return c.ReadBanner || c.Secret != nil
}

// ParseServer splits a "host" or "host:port" string.
// The port defaults to DefaultPort and the host to DefaultHost.
// IPv6 addresses with a port must be bracketed: "[::1]:6082".
func ParseServer(server string) (host string, port int, err error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return DefaultHost, DefaultPort, nil
	}

	host, portStr, err := net.SplitHostPort(server)
	if err != nil {
		var addrErr *net.AddrError
		if errors.As(err, &addrErr) && addrErr.Err == "missing port in address" {
			host = strings.TrimSuffix(strings.TrimPrefix(server, "["), "]")
			return host, DefaultPort, nil
		}
		if strings.Count(server, ":") > 1 && !strings.HasPrefix(server, "[") {
			// Bare IPv6 address
			return server, DefaultPort, nil
		}
		return "", 0, fmt.Errorf("varnish: invalid server %q: %w", server, err)
	}

	if host == "" {
		host = DefaultHost
	}
	if portStr == "" {
		return host, DefaultPort, nil
	}

	port, err = strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("varnish: invalid port in server %q", server)
	}
	return host, port, nil
}
