package varnish

import (
	"sync/atomic"
	"time"

	"github.com/pior/varnish/internal/coarsetime"
)

// ClientStats contains statistics about client operations.
// All fields are safe for concurrent access.
//
// For Prometheus integration, expose these as:
//   - Counters: Commands, CommandFailures, BrokenConnections, Connects, ConnectErrors, Disconnects, Pings
//   - Gauge: LastActivity as a unix timestamp
type ClientStats struct {
	Commands          uint64 // Completed exchanges, whatever the status
	CommandFailures   uint64 // Exchanges with a non-200 status
	BrokenConnections uint64 // Exchanges that broke the connection
	Connects          uint64 // Connections opened
	ConnectErrors     uint64 // Failed connection attempts
	Disconnects       uint64 // Explicit disconnects
	Pings             uint64 // Keep-alive pings sent

	// LastActivity is the coarse time of the last completed exchange.
	LastActivity time.Time
}

// clientStatsCollector provides internal methods for updating client stats.
// Not exported - client updates its own stats.
type clientStatsCollector struct {
	commands          atomic.Uint64
	commandFailures   atomic.Uint64
	brokenConnections atomic.Uint64
	connects          atomic.Uint64
	connectErrors     atomic.Uint64
	disconnects       atomic.Uint64
	pings             atomic.Uint64
	lastActivity      atomic.Int64 // unix nanoseconds
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{}
}

func (c *clientStatsCollector) touch() {
	c.lastActivity.Store(coarsetime.Now().UnixNano())
}

func (c *clientStatsCollector) recordCommand() {
	c.commands.Add(1)
	c.touch()
}

func (c *clientStatsCollector) recordCommandFailure() {
	c.commandFailures.Add(1)
}

func (c *clientStatsCollector) recordBrokenConnection() {
	c.brokenConnections.Add(1)
}

func (c *clientStatsCollector) recordConnect() {
	c.connects.Add(1)
	c.touch()
}

func (c *clientStatsCollector) recordConnectError() {
	c.connectErrors.Add(1)
}

func (c *clientStatsCollector) recordDisconnect() {
	c.disconnects.Add(1)
}

func (c *clientStatsCollector) recordPing() {
	c.pings.Add(1)
}

func (c *clientStatsCollector) snapshot() ClientStats {
	stats := ClientStats{
		Commands:          c.commands.Load(),
		CommandFailures:   c.commandFailures.Load(),
		BrokenConnections: c.brokenConnections.Load(),
		Connects:          c.connects.Load(),
		ConnectErrors:     c.connectErrors.Load(),
		Disconnects:       c.disconnects.Load(),
		Pings:             c.pings.Load(),
	}
	if ns := c.lastActivity.Load(); ns != 0 {
		stats.LastActivity = time.Unix(0, ns)
	}
	return stats
}
