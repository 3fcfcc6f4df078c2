// Package control is the network side of the bridge. Control clients send
// command lines over WebSocket or plain TCP; every line is parsed and handed
// to the scheduler, and completion labels are broadcast back to all clients.
package control

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/padbridge/padbridge/command"
)

// Queue is the part of the scheduler the control channel drives.
type Queue interface {
	Enqueue(c command.Command)
	Clear() int
	SetHold(hold bool)
}

// Dispatcher applies control lines to a Queue.
type Dispatcher struct {
	queue  Queue
	logger *slog.Logger
}

func NewDispatcher(q Queue, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{queue: q, logger: logger}
}

// HandleLine parses and applies a single line. Blank lines are ignored.
func (d *Dispatcher) HandleLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	l, err := command.Parse(line)
	if err != nil {
		d.logger.Warn("dropping malformed command", "line", line, "error", err)
		return fmt.Errorf("%q: %w", line, err)
	}
	switch l.Kind {
	case command.KindClear:
		n := d.queue.Clear()
		d.logger.Debug("queue cleared", "dropped", n)
	case command.KindHold:
		d.queue.SetHold(true)
		d.logger.Debug("hold mode on")
	case command.KindNoHold:
		d.queue.SetHold(false)
		d.logger.Debug("hold mode off")
	default:
		d.logger.Debug("command queued",
			"buttons", l.Command.State.Buttons,
			"dpad", l.Command.State.Dpad,
			"duration", l.Command.Duration,
			"label", l.Command.Label)
		d.queue.Enqueue(l.Command)
	}
	return nil
}

// HandleMessage applies every line of msg in order. A malformed line does not
// stop the lines after it; all failures are returned joined.
func (d *Dispatcher) HandleMessage(msg string) error {
	var errs []error
	for _, line := range strings.Split(msg, "\n") {
		if err := d.HandleLine(line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
