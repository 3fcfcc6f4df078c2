package pad

import (
	"errors"
	"fmt"
	"io"

	"github.com/padbridge/padbridge/checksum"
)

// Frame sizes.
const (
	PayloadSize = 8
	FrameSize   = PayloadSize + 1
)

// ErrChecksum is returned when a decoded frame carries the wrong checksum.
var ErrChecksum = errors.New("frame checksum mismatch")

// Payload encodes s into the 8 payload bytes of a frame.
//
// Layout:
//
//	0: minus=1 plus=2 lstick=4 rstick=8 home=16 capture=32
//	1: y=1 b=2 a=4 x=8 l=16 r=32 zl=64 zr=128
//	2: dpad code, 0-7 clockwise from up, 8 neutral
//	3: left stick X
//	4: left stick Y
//	5: right stick X
//	6: right stick Y
//	7: reserved, always 0
func (s ButtonState) Payload() [PayloadSize]byte {
	return [PayloadSize]byte{
		byte(s.Buttons >> 8),
		byte(s.Buttons),
		s.Dpad.Code(),
		s.LeftStick.X(),
		s.LeftStick.Y(),
		s.RightStick.X(),
		s.RightStick.Y(),
		0,
	}
}

// MarshalBinary encodes s into a 9-byte frame: payload followed by checksum.
func (s ButtonState) MarshalBinary() ([]byte, error) {
	p := s.Payload()
	return checksum.Append(p[:]), nil
}

// UnmarshalBinary decodes a 9-byte frame, verifying its checksum.
func (s *ButtonState) UnmarshalBinary(data []byte) error {
	if len(data) < FrameSize {
		return io.ErrUnexpectedEOF
	}
	if sum := checksum.Sum(data[:PayloadSize]); sum != data[PayloadSize] {
		return fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrChecksum, data[PayloadSize], sum)
	}
	dpad, ok := dpadFromCode(data[2])
	if !ok {
		return fmt.Errorf("invalid dpad code %d", data[2])
	}
	*s = ButtonState{
		Buttons:    Buttons(data[0])<<8 | Buttons(data[1]),
		Dpad:       dpad,
		LeftStick:  StickAt(int(data[3]), int(data[4])),
		RightStick: StickAt(int(data[5]), int(data[6])),
	}
	return nil
}
