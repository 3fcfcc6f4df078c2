// Package serialport opens the byte-serial link to the controller emulator
// and discovers candidate devices.
//
// Two backends are available: go.bug.st/serial (default) and tarm/serial.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// DefaultBaud is the bit rate the controller emulator firmware listens at.
const DefaultBaud = 19200

// Driver names accepted in Config.Driver.
const (
	DriverBugst = "bugst"
	DriverTarm  = "tarm"
)

// Port is an open serial connection.
type Port interface {
	io.ReadWriteCloser

	// Flush discards any unread input.
	Flush() error
}

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	Baud   int
	Driver string

	// ReadTimeout bounds a single Read. Zero blocks until data arrives or the
	// port is closed.
	ReadTimeout time.Duration
}

// DefaultConfig returns the configuration used by the bridge.
func DefaultConfig(device string) Config {
	return Config{
		Device: device,
		Baud:   DefaultBaud,
		Driver: DriverBugst,
	}
}

// ErrClosed is returned by Read and Write after Close.
var ErrClosed = errors.New("serial port closed")

// Open opens the port described by cfg.
func Open(cfg Config) (Port, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("no serial device given")
	}
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}
	switch cfg.Driver {
	case DriverBugst, "":
		return openBugst(cfg)
	case DriverTarm:
		return openTarm(cfg)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
}
