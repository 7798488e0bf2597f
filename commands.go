package varnish

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Pong is the parsed reply to a ping: "PONG <timestamp> <version>".
type Pong struct {
	Timestamp int64
	Message   string
}

// Ping sends a ping, optionally carrying a timestamp, and parses the reply.
func (c *Client) Ping(ctx context.Context, timestamp ...int64) (Pong, error) {
	args := make([]any, 0, 1)
	if len(timestamp) > 0 {
		args = append(args, timestamp[0])
	}

	content, err := c.Execute(ctx, "ping", args...)
	if err != nil {
		return Pong{}, err
	}
	return parsePong(content)
}

func parsePong(content string) (Pong, error) {
	fields := strings.Fields(content)
	if len(fields) < 2 || fields[0] != "PONG" {
		return Pong{}, fmt.Errorf("varnish: unexpected ping reply %q", content)
	}

	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Pong{}, fmt.Errorf("varnish: invalid timestamp in ping reply %q: %w", content, err)
	}

	return Pong{Timestamp: ts, Message: strings.Join(fields[2:], " ")}, nil
}

// Status returns the daemon status text, e.g. "Child in state running".
// See also Running and Stopped.
func (c *Client) Status(ctx context.Context) (string, error) {
	return c.Execute(ctx, "status")
}

// Start starts the cache process. Starting a running daemon fails with CommandFailed.
func (c *Client) Start(ctx context.Context) error {
	_, err := c.Execute(ctx, "start")
	return err
}

// Stop stops the cache process. Stopping a stopped daemon fails with CommandFailed.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.Execute(ctx, "stop")
	return err
}

// Running reports whether the status mentions "running".
func (c *Client) Running(ctx context.Context) (bool, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(status, "running"), nil
}

// Stopped reports whether the status mentions "stopped".
func (c *Client) Stopped(ctx context.Context) (bool, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(status, "stopped"), nil
}

// Param sends "param.<op>" with args.
//
//	c.Param(ctx, "show", "-l")
//	c.Param(ctx, "set", "default_ttl", 120)
func (c *Client) Param(ctx context.Context, op string, args ...any) (string, error) {
	return c.Execute(ctx, "param."+op, args...)
}

// ParamShow shows parameters: all, a single one, or with "-l" the long form.
func (c *Client) ParamShow(ctx context.Context, args ...any) (string, error) {
	return c.Param(ctx, "show", args...)
}

// ParamSet sets a run-time parameter.
func (c *Client) ParamSet(ctx context.Context, name string, value any) error {
	_, err := c.Param(ctx, "set", name, value)
	return err
}

// Purge operations mapped to their own command, every other op is a field.
var purgeCommands = map[string]string{
	"url":  "purge.url",
	"hash": "purge.hash",
	"list": "purge.list",
}

// Purge purges objects from the cache or shows the purge list.
//
//	c.Purge(ctx, "url", ".*")               // purge.url .*
//	c.Purge(ctx, "hash", "^/foo")           // purge.hash ^/foo
//	c.Purge(ctx, "list")                    // purge.list
//	c.Purge(ctx, "req.http.host", "~", "x") // purge req.http.host ~ x
func (c *Client) Purge(ctx context.Context, op string, args ...any) (string, error) {
	command, ok := purgeCommands[op]
	if !ok {
		command = "purge " + op
	}
	return c.Execute(ctx, command, args...)
}

// PurgeURL purges objects whose URL matches regexp.
func (c *Client) PurgeURL(ctx context.Context, regexp string) error {
	_, err := c.Purge(ctx, "url", regexp)
	return err
}

// PurgeHash purges objects whose hash string matches regexp.
func (c *Client) PurgeHash(ctx context.Context, regexp string) error {
	_, err := c.Purge(ctx, "hash", regexp)
	return err
}

// PurgeList returns the purge list.
func (c *Client) PurgeList(ctx context.Context) (string, error) {
	return c.Purge(ctx, "list")
}

// Ban adds a ban expression, the successor of purge in later daemons.
//
//	c.Ban(ctx, "req.http.host", "==", "example.com", "&&", "req.url", "~", "^/news")
func (c *Client) Ban(ctx context.Context, expr ...any) error {
	_, err := c.Execute(ctx, "ban", expr...)
	return err
}

// BanURL bans objects whose URL matches regexp.
func (c *Client) BanURL(ctx context.Context, regexp string) error {
	return c.Ban(ctx, "req.url", "~", regexp)
}

// BanList returns the ban list.
func (c *Client) BanList(ctx context.Context) (string, error) {
	return c.Execute(ctx, "ban.list")
}

// ServerStats returns the daemon counters keyed by description.
// Each line of the reply is "<value> <description>".
func (c *Client) ServerStats(ctx context.Context) (map[string]int64, error) {
	content, err := c.Execute(ctx, "stats")
	if err != nil {
		return nil, err
	}
	return parseServerStats(content), nil
}

func parseServerStats(content string) map[string]int64 {
	stats := make(map[string]int64)
	for line := range strings.Lines(content) {
		value, description, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		stats[strings.TrimSpace(description)] = n
	}
	return stats
}

// Banner returns the greeting banner.
func (c *Client) Banner(ctx context.Context) (string, error) {
	return c.Execute(ctx, "banner")
}

// Help lists the commands, or describes one.
func (c *Client) Help(ctx context.Context, command ...string) (string, error) {
	args := make([]any, 0, 1)
	if len(command) > 0 {
		args = append(args, command[0])
	}
	return c.Execute(ctx, "help", args...)
}
