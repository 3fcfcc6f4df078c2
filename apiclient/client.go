// Package apiclient is a Go client for the bridge's TCP control channel.
package apiclient

import (
	"context"
	"errors"

	"github.com/padbridge/padbridge/command"
)

// Client provides typed helpers over a Transport.
type Client struct{ transport *Transport }

// Dial connects a client to the control channel at addr (host:port).
func Dial(ctx context.Context, addr string, cfg *Config) (*Client, error) {
	t, err := DialTransport(ctx, addr, cfg)
	if err != nil {
		return nil, err
	}
	return WithTransport(t), nil
}

// WithTransport constructs a Client on an existing Transport.
func WithTransport(t *Transport) *Client { return &Client{transport: t} }

// Send writes raw control lines in order.
func (c *Client) Send(ctx context.Context, lines ...string) error {
	for _, l := range lines {
		if err := c.transport.WriteLine(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

// Press queues cmd on the bridge.
func (c *Client) Press(ctx context.Context, cmd command.Command) error {
	return c.transport.WriteLine(ctx, command.Format(cmd))
}

// Clear drops every command still queued on the bridge.
func (c *Client) Clear(ctx context.Context) error {
	return c.transport.WriteLine(ctx, "clear")
}

// Hold switches the bridge's hold mode.
func (c *Client) Hold(ctx context.Context, hold bool) error {
	if hold {
		return c.transport.WriteLine(ctx, "hold")
	}
	return c.transport.WriteLine(ctx, "nohold")
}

// WaitLabel reads server lines until label arrives. Labels of other
// commands are skipped. An error line from the server ends the wait with a
// *ServerError.
func (c *Client) WaitLabel(ctx context.Context, label string) error {
	if label == "" {
		return errors.New("wait for empty label")
	}
	for {
		line, err := c.transport.ReadLine(ctx)
		if err != nil {
			return err
		}
		if line == label {
			return nil
		}
	}
}

// Next returns the next label broadcast by the bridge.
func (c *Client) Next(ctx context.Context) (string, error) {
	return c.transport.ReadLine(ctx)
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.transport.Close() }
