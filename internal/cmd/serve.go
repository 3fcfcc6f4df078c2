package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/padbridge/padbridge/internal/control"
	"github.com/padbridge/padbridge/internal/link"
	"github.com/padbridge/padbridge/internal/log"
	"github.com/padbridge/padbridge/internal/scheduler"
	"github.com/padbridge/padbridge/internal/serialport"
)

// Serve runs the bridge: serial link, scheduler and control listeners.
type Serve struct {
	Device string `arg:"" optional:"" help:"Serial device path; discovered when omitted"`
	Baud   int    `help:"Serial bit rate" default:"19200" env:"PADBRIDGE_BAUD"`
	Driver string `help:"Serial backend: bugst or tarm" default:"bugst" enum:"bugst,tarm" env:"PADBRIDGE_SERIAL_DRIVER"`

	PollInterval time.Duration `help:"Interval between checks for a device reply" default:"10ms" env:"PADBRIDGE_POLL_INTERVAL"`
	PollAttempts int           `help:"Checks before a device reply times out" default:"50" env:"PADBRIDGE_POLL_ATTEMPTS"`
	RetryDelay   time.Duration `help:"Pause before a failed handshake is restarted" default:"2s" env:"PADBRIDGE_RETRY_DELAY"`

	Control   control.Config   `embed:"" prefix:"control."`
	Scheduler scheduler.Config `embed:""`
}

// Run is called by Kong when the serve command is executed.
func (s *Serve) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.run(ctx, logger, rawLogger, serialport.Open)
}

type openFunc func(serialport.Config) (serialport.Port, error)

func (s *Serve) run(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger, open openFunc) error {
	device := s.Device
	if device == "" {
		d, err := serialport.Discover()
		if err != nil {
			return fmt.Errorf("discover device: %w", err)
		}
		logger.Info("Discovered serial device", "device", d)
		device = d
	}

	portCfg := serialport.DefaultConfig(device)
	portCfg.Baud = s.Baud
	portCfg.Driver = s.Driver
	port, err := open(portCfg)
	if err != nil {
		return fmt.Errorf("open %s: %w", device, err)
	}
	if err := port.Flush(); err != nil {
		logger.Debug("flush serial input", "error", err)
	}

	l := link.New(port, link.Config{
		PollInterval: s.PollInterval,
		PollAttempts: s.PollAttempts,
		RetryDelay:   s.RetryDelay,
	}, logger.With("component", "link"), rawLogger)
	defer l.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("Starting padbridge", "device", device, "baud", portCfg.Baud, "driver", portCfg.Driver)
	if err := l.Handshake(ctx); err != nil {
		if !l.IsOpen() {
			return fmt.Errorf("handshake: %w", linkErr(l, link.ErrLinkNotOpen))
		}
		if errors.Is(err, context.Canceled) {
			logger.Info("Shutting down padbridge")
			return nil
		}
		return fmt.Errorf("handshake: %w", err)
	}

	hub := control.NewHub(logger.With("component", "control"))
	sched := scheduler.New(l, hub, s.Scheduler, logger.With("component", "scheduler"))
	dispatcher := control.NewDispatcher(sched, logger.With("component", "control"))

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()
	if s.Control.WSAddr != "" {
		ws := control.NewWSServer(s.Control, dispatcher, hub, logger.With("component", "ws"))
		if err := ws.Start(); err != nil {
			return fmt.Errorf("websocket control: %w", err)
		}
		closers = append(closers, ws.Close)
	}
	if s.Control.TCPAddr != "" {
		tcp := control.NewLineServer(s.Control, dispatcher, hub, logger.With("component", "tcp"))
		if err := tcp.Start(); err != nil {
			return fmt.Errorf("tcp control: %w", err)
		}
		closers = append(closers, tcp.Close)
	}
	if len(closers) == 0 {
		logger.Warn("No control listener configured; the bridge only holds the device")
	}

	schedErr := make(chan error, 1)
	go func() { schedErr <- sched.Run(ctx) }()

	<-ctx.Done()
	<-schedErr
	if !l.IsOpen() {
		st := l.Stats()
		logger.Info("Link closed", "frames", st.FramesSent, "acks", st.Acks, "nacks", st.Nacks, "timeouts", st.Timeouts)
		return linkErr(l, link.ErrLinkNotOpen)
	}
	logger.Info("Shutting down padbridge")
	return nil
}

// linkErr prefers the reason the link closed over err.
func linkErr(l *link.Link, err error) error {
	if cause := l.Err(); cause != nil {
		return fmt.Errorf("%w: %w", link.ErrLinkNotOpen, cause)
	}
	return err
}
