package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/padbridge/padbridge/apiclient"
	"github.com/padbridge/padbridge/command"
)

// Send writes control lines to a running bridge.
type Send struct {
	Lines     []string      `arg:"" help:"Control lines, e.g. \"a b;200;jump\" or \"clear\""`
	Addr      string        `help:"TCP control address of the bridge" default:"127.0.0.1:5354" env:"PADBRIDGE_SEND_ADDR"`
	WaitLabel string        `help:"Wait until the bridge reports this label"`
	Timeout   time.Duration `help:"Give up waiting after this long" default:"30s"`
}

// Run is called by Kong when the send command is executed.
func (s *Send) Run(logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()
	return s.run(ctx, logger)
}

func (s *Send) run(ctx context.Context, logger *slog.Logger) error {
	for _, l := range s.Lines {
		if _, err := command.Parse(l); err != nil {
			return fmt.Errorf("line %q: %w", l, err)
		}
	}

	c, err := apiclient.Dial(ctx, s.Addr, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Send(ctx, s.Lines...); err != nil {
		return err
	}
	logger.Debug("lines sent", "count", len(s.Lines), "addr", s.Addr)

	if s.WaitLabel == "" {
		return nil
	}
	if err := c.WaitLabel(ctx, s.WaitLabel); err != nil {
		return fmt.Errorf("wait for label %q: %w", s.WaitLabel, err)
	}
	logger.Info("label reported", "label", s.WaitLabel)
	return nil
}
