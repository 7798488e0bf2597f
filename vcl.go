package varnish

import (
	"context"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// VCL is one entry of "vcl.list".
type VCL struct {
	// Status is "active", "available" or "discarded".
	Status string

	// State is the state/temperature column of newer daemons, e.g. "auto/warm".
	// Empty for daemons that do not report it.
	State string

	// Busy is the number of references to the configuration.
	Busy int

	// Name is the configuration name.
	Name string
}

// IsActive reports whether the configuration is the one in use.
func (v VCL) IsActive() bool {
	return v.Status == "active"
}

// VCL sends "vcl.<op>" with args.
//
//	c.VCL(ctx, "load", "newconf", "/etc/varnish/myconf.vcl")
//	c.VCL(ctx, "use", "newconf")
func (c *Client) VCL(ctx context.Context, op string, args ...any) (string, error) {
	return c.Execute(ctx, "vcl."+op, args...)
}

// VCLLoad compiles and loads the VCL file at path under name.
func (c *Client) VCLLoad(ctx context.Context, name, path string) error {
	_, err := c.VCL(ctx, "load", name, path)
	return err
}

// VCLInline compiles and loads VCL source under name.
// The source is sent as a single argument: it must already be quoted for the
// management protocol and must not rely on backslash escapes, which are
// doubled on the wire.
func (c *Client) VCLInline(ctx context.Context, name, source string) error {
	_, err := c.VCL(ctx, "inline", name, source)
	return err
}

// VCLInlineContent loads source under a name derived from its content and
// returns that name. Loading the same source twice yields the same name, so
// callers can detect an already loaded configuration with VCLList.
func (c *Client) VCLInlineContent(ctx context.Context, source string) (string, error) {
	name := VCLContentName(source)
	if err := c.VCLInline(ctx, name, source); err != nil {
		return "", err
	}
	return name, nil
}

// VCLContentName returns the content-addressed configuration name for source.
func VCLContentName(source string) string {
	return "vcl_" + strconv.FormatUint(xxh3.HashString(source), 16)
}

// VCLUse switches to the named configuration.
func (c *Client) VCLUse(ctx context.Context, name string) error {
	_, err := c.VCL(ctx, "use", name)
	return err
}

// VCLDiscard unloads the named configuration.
func (c *Client) VCLDiscard(ctx context.Context, name string) error {
	_, err := c.VCL(ctx, "discard", name)
	return err
}

// VCLShow returns the source of the named configuration.
func (c *Client) VCLShow(ctx context.Context, name string) (string, error) {
	return c.VCL(ctx, "show", name)
}

// VCLList returns the loaded configurations.
func (c *Client) VCLList(ctx context.Context) ([]VCL, error) {
	content, err := c.VCL(ctx, "list")
	if err != nil {
		return nil, err
	}
	return parseVCLList(content), nil
}

// ActiveVCL returns the name of the active configuration, or "" if none.
func (c *Client) ActiveVCL(ctx context.Context) (string, error) {
	list, err := c.VCLList(ctx)
	if err != nil {
		return "", err
	}
	for _, v := range list {
		if v.IsActive() {
			return v.Name, nil
		}
	}
	return "", nil
}

// parseVCLList parses the listing of old and new daemons alike:
//
//	active          2 boot
//	available  auto/warm          0 newconf
//	active      auto    warm         0    boot
//
// The busy count is the last numeric column and the name follows it.
func parseVCLList(content string) []VCL {
	var list []VCL
	for line := range strings.Lines(content) {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}

		busyIdx := -1
		for i := len(fields) - 2; i >= 1; i-- {
			if _, err := strconv.Atoi(fields[i]); err == nil {
				busyIdx = i
				break
			}
		}
		if busyIdx == -1 {
			continue
		}

		busy, _ := strconv.Atoi(fields[busyIdx])
		list = append(list, VCL{
			Status: fields[0],
			State:  strings.Join(fields[1:busyIdx], " "),
			Busy:   busy,
			Name:   fields[busyIdx+1],
		})
	}
	return list
}
