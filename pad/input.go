package pad

// Direction is a set of digital stick directions.
type Direction uint8

const (
	DirLeft Direction = 1 << iota
	DirRight
	DirUp
	DirDown
)

// Input is a loosely specified button state as received from a client. Every
// field is optional; State resolves it into a canonical ButtonState.
type Input struct {
	Buttons Buttons
	Dpad    Dpad

	// LeftStick and RightStick carry an explicit (x, y) pair when set. Values
	// outside [0,255] are clamped.
	LeftStick  *[2]int
	RightStick *[2]int

	// LeftDigital and RightDigital push a stick axis to its extreme. They take
	// precedence over the explicit pair on the axis they touch.
	LeftDigital  Direction
	RightDigital Direction
}

// State resolves the input into a ButtonState.
func (in Input) State() ButtonState {
	return ButtonState{
		Buttons:    in.Buttons,
		Dpad:       in.Dpad,
		LeftStick:  resolveStick(in.LeftStick, in.LeftDigital),
		RightStick: resolveStick(in.RightStick, in.RightDigital),
	}
}

func resolveStick(pair *[2]int, dir Direction) Stick {
	x, y := StickCenter, StickCenter
	if pair != nil {
		x, y = pair[0], pair[1]
	}
	if dir&DirLeft != 0 {
		x = 0
	}
	if dir&DirRight != 0 {
		x = 255
	}
	if dir&DirUp != 0 {
		y = 0
	}
	if dir&DirDown != 0 {
		y = 255
	}
	return StickAt(x, y)
}
