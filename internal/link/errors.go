package link

import (
	"errors"
	"fmt"
)

var (
	// ErrLinkNotOpen is returned when the serial link is closed or was closed
	// while waiting for a reply.
	ErrLinkNotOpen = errors.New("serial link is not open")
	// ErrReadTimeout is returned when the expected reply byte never arrives.
	ErrReadTimeout = errors.New("byte read timeout on serial link")
	// ErrHandshakeMismatch matches every *HandshakeError.
	ErrHandshakeMismatch = errors.New("handshake mismatch")
	// ErrProtocolNack matches every *NackError.
	ErrProtocolNack = errors.New("device rejected frame")
)

// HandshakeError describes a failed handshake step. Err is set when no reply
// arrived at all.
type HandshakeError struct {
	Step int
	Got  byte
	Want byte
	Err  error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake step %d: want 0x%02x: %v", e.Step, e.Want, e.Err)
	}
	return fmt.Sprintf("handshake step %d: got 0x%02x, want 0x%02x", e.Step, e.Got, e.Want)
}

func (e *HandshakeError) Is(target error) bool { return target == ErrHandshakeMismatch }
func (e *HandshakeError) Unwrap() error        { return e.Err }

// NackError carries the unexpected reply byte received instead of an ACK.
type NackError struct {
	Byte byte
}

func (e *NackError) Error() string {
	if e.Byte == Nack {
		return fmt.Sprintf("%v: NACK (0x%02x)", ErrProtocolNack, e.Byte)
	}
	return fmt.Sprintf("%v: invalid reply 0x%02x", ErrProtocolNack, e.Byte)
}

func (e *NackError) Is(target error) bool { return target == ErrProtocolNack }
