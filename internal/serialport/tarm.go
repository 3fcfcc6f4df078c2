package serialport

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
)

// tarm/serial reports an expired read timeout as io.EOF and has no other way
// to unblock a pending Read, so the port always runs with a short timeout and
// Read loops until data arrives or Close is called.
const tarmPollTimeout = 100 * time.Millisecond

type tarmPort struct {
	port    *serial.Port
	timeout time.Duration
	closed  atomic.Bool
}

func openTarm(cfg Config) (Port, error) {
	serialConfig := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		Parity:      serial.ParityNone,
		ReadTimeout: tarmPollTimeout,
	}
	port, err := serial.OpenPort(serialConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return &tarmPort{port: port, timeout: cfg.ReadTimeout}, nil
}

func (p *tarmPort) Read(b []byte) (int, error) {
	var deadline time.Time
	if p.timeout > 0 {
		deadline = time.Now().Add(p.timeout)
	}
	for {
		if p.closed.Load() {
			return 0, ErrClosed
		}
		n, err := p.port.Read(b)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			if p.closed.Load() {
				return 0, ErrClosed
			}
			return 0, err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, nil
		}
	}
}

func (p *tarmPort) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	return p.port.Write(b)
}

func (p *tarmPort) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.port.Close()
}

func (p *tarmPort) Flush() error {
	return p.port.Flush()
}
