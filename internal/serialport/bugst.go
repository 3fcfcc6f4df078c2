package serialport

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
)

type bugstPort struct {
	port serial.Port
}

func openBugst(cfg Config) (Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Device, err)
		}
	}
	return &bugstPort{port: port}, nil
}

func (p *bugstPort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if err != nil {
		var perr *serial.PortError
		if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
			return n, ErrClosed
		}
	}
	return n, err
}

func (p *bugstPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *bugstPort) Close() error {
	return p.port.Close()
}

func (p *bugstPort) Flush() error {
	return p.port.ResetInputBuffer()
}
