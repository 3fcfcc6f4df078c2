// Package pad models the button state of the emulated controller and its
// 9-byte wire frame.
//
// The zero value of ButtonState is the neutral state: no buttons held, dpad
// released and both sticks centered. States are comparable with ==, which is
// what the scheduler relies on to skip redundant frames.
package pad

import (
	"strings"

	"golang.org/x/exp/constraints"
)

// Buttons is a bitmask of digital buttons. The low byte maps to frame byte 1
// and the high byte to frame byte 0.
type Buttons uint16

const (
	ButtonY Buttons = 1 << iota
	ButtonB
	ButtonA
	ButtonX
	ButtonL
	ButtonR
	ButtonZL
	ButtonZR
	ButtonMinus
	ButtonPlus
	ButtonLStick
	ButtonRStick
	ButtonHome
	ButtonCapture
)

var buttonNames = []struct {
	name string
	b    Buttons
}{
	{"y", ButtonY},
	{"b", ButtonB},
	{"a", ButtonA},
	{"x", ButtonX},
	{"l", ButtonL},
	{"r", ButtonR},
	{"zl", ButtonZL},
	{"zr", ButtonZR},
	{"minus", ButtonMinus},
	{"plus", ButtonPlus},
	{"lstick", ButtonLStick},
	{"rstick", ButtonRStick},
	{"home", ButtonHome},
	{"capture", ButtonCapture},
}

// ButtonByName looks up a button by its lowercase command name.
func ButtonByName(name string) (Buttons, bool) {
	for _, n := range buttonNames {
		if n.name == name {
			return n.b, true
		}
	}
	return 0, false
}

func (b Buttons) String() string {
	if b == 0 {
		return "none"
	}
	var names []string
	for _, n := range buttonNames {
		if b&n.b != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "+")
}

// Dpad is the directional pad position. The zero value is DpadNeutral.
type Dpad uint8

const (
	DpadNeutral Dpad = iota
	DpadUp
	DpadUpRight
	DpadRight
	DpadDownRight
	DpadDown
	DpadDownLeft
	DpadLeft
	DpadUpLeft
)

// DpadNeutralCode is the wire code for a released dpad.
const DpadNeutralCode = 8

var dpadNames = [...]string{
	DpadNeutral:   "neutral",
	DpadUp:        "up",
	DpadUpRight:   "up-right",
	DpadRight:     "right",
	DpadDownRight: "down-right",
	DpadDown:      "down",
	DpadDownLeft:  "down-left",
	DpadLeft:      "left",
	DpadUpLeft:    "up-left",
}

func (d Dpad) String() string {
	if int(d) < len(dpadNames) {
		return dpadNames[d]
	}
	return "invalid"
}

// ParseDpad returns the dpad position for a name such as "up-left".
func ParseDpad(name string) (Dpad, bool) {
	for i, n := range dpadNames {
		if n == name {
			return Dpad(i), true
		}
	}
	return DpadNeutral, false
}

// Code returns the wire code: 0-7 clockwise from up, 8 for neutral.
func (d Dpad) Code() byte {
	if d == DpadNeutral || d > DpadUpLeft {
		return DpadNeutralCode
	}
	return byte(d - 1)
}

func dpadFromCode(c byte) (Dpad, bool) {
	switch {
	case c == DpadNeutralCode:
		return DpadNeutral, true
	case c < DpadNeutralCode:
		return Dpad(c + 1), true
	}
	return DpadNeutral, false
}

// StickCenter is the resting value of both stick axes.
const StickCenter = 128

// Stick is an analog stick position. It is stored as a deflection from the
// center so the zero value is a centered stick.
type Stick struct {
	dx, dy int16
}

// StickAt returns a stick at (x, y), each axis clamped to [0,255].
func StickAt(x, y int) Stick {
	return Stick{
		dx: int16(Clamp(x, 0, 255) - StickCenter),
		dy: int16(Clamp(y, 0, 255) - StickCenter),
	}
}

// X returns the horizontal axis value, 0 is fully left.
func (s Stick) X() uint8 { return uint8(int(s.dx) + StickCenter) }

// Y returns the vertical axis value, 0 is fully up.
func (s Stick) Y() uint8 { return uint8(int(s.dy) + StickCenter) }

// Centered reports whether the stick is at rest.
func (s Stick) Centered() bool { return s == Stick{} }

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ButtonState is one complete controller state as sent in a single frame.
type ButtonState struct {
	Buttons    Buttons
	Dpad       Dpad
	LeftStick  Stick
	RightStick Stick
}

// Neutral returns the released state: no buttons, dpad neutral, sticks centered.
func Neutral() ButtonState { return ButtonState{} }

// IsNeutral reports whether s is the released state.
func (s ButtonState) IsNeutral() bool { return s == ButtonState{} }
