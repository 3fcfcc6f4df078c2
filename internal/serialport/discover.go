package serialport

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port found on the system.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ErrNoPorts is returned by Discover when no candidate port exists.
var ErrNoPorts = errors.New("no serial ports found; is the device plugged in and does this account have access rights?")

// AmbiguousError is returned by Discover when more than one candidate exists.
type AmbiguousError struct {
	Ports []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("multiple serial ports found, pass one as the device argument: %s", strings.Join(e.Ports, ", "))
}

// List returns the serial ports present on the system. Detailed USB
// information is used when the platform provides it.
func List() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		out := make([]PortInfo, 0, len(details))
		for _, d := range details {
			out = append(out, PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
		return out, nil
	}
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	out := make([]PortInfo, 0, len(names))
	for _, n := range names {
		out = append(out, PortInfo{Name: n})
	}
	return out, nil
}

// Discover returns the single candidate device path.
func Discover() (string, error) {
	return discover(List)
}

func discover(list func() ([]PortInfo, error)) (string, error) {
	ports, err := list()
	if err != nil {
		return "", err
	}
	candidates := Candidates(ports)
	switch len(candidates) {
	case 0:
		return "", ErrNoPorts
	case 1:
		return candidates[0].Name, nil
	}
	names := make([]string, len(candidates))
	for i, p := range candidates {
		names[i] = p.Name
	}
	return "", &AmbiguousError{Ports: names}
}

// Candidates narrows ports to USB adapters when any are present.
func Candidates(ports []PortInfo) []PortInfo {
	var usb []PortInfo
	for _, p := range ports {
		if p.IsUSB {
			usb = append(usb, p)
		}
	}
	if len(usb) > 0 {
		return usb
	}
	return ports
}
