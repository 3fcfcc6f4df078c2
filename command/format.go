package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/padbridge/padbridge/pad"
)

// Tokens renders s in the space separated token form.
func Tokens(s pad.ButtonState) string {
	var toks []string
	for b := pad.ButtonY; b <= pad.ButtonCapture; b <<= 1 {
		if s.Buttons&b != 0 {
			toks = append(toks, b.String())
		}
	}
	for name, d := range dpadTokens {
		if s.Dpad == d {
			toks = append(toks, name)
		}
	}
	if !s.LeftStick.Centered() {
		toks = append(toks, fmt.Sprintf("ls:%d:%d", s.LeftStick.X(), s.LeftStick.Y()))
	}
	if !s.RightStick.Centered() {
		toks = append(toks, fmt.Sprintf("rs:%d:%d", s.RightStick.X(), s.RightStick.Y()))
	}
	return strings.Join(toks, " ")
}

// Format renders c as a control line that Parse turns back into c. Durations
// below one millisecond come back as DefaultDuration.
func Format(c Command) string {
	var b strings.Builder
	toks := Tokens(c.State)
	b.WriteString(toks)
	if toks == "" || c.Duration != DefaultDuration || c.Label != "" {
		b.WriteString(";")
		b.WriteString(strconv.FormatInt(c.Duration.Milliseconds(), 10))
	}
	if c.Label != "" {
		b.WriteString(";")
		b.WriteString(c.Label)
	}
	return b.String()
}
