package varnish

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// startKeepAlive starts the keep-alive task bound to cn.
// Exactly one task runs per connection; a reconnect starts a new one.
// Must be called with mu held.
func (c *Client) startKeepAlive(cn *conn, interval time.Duration) {
	cn.keepAliveDone = make(chan struct{})
	go c.keepAliveLoop(cn, interval)
}

// keepAliveLoop pings the daemon every interval until the connection is
// closed or replaced. A failed ping ends the task; the failure is not
// reported to the foreground caller, whose next command will reconnect.
func (c *Client) keepAliveLoop(cn *conn, interval time.Duration) {
	defer close(cn.keepAliveDone)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if !c.IsConnected() || cn.isClosed() {
			c.logger.Debug("keep-alive stopped")
			return
		}

		if err := c.pingOn(context.Background(), cn); err != nil {
			if errors.Is(err, errStaleConn) {
				c.logger.Debug("keep-alive stopped")
			} else {
				c.logger.Warn("keep-alive ping failed", slog.Any("error", err))
			}
			return
		}

		timer.Reset(interval)
		select {
		case <-cn.done:
		case <-timer.C:
		}
	}
}
