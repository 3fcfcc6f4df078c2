// Package command defines the text line format accepted on the control
// channel and the Command value the scheduler consumes.
//
// A line is either a directive (clear, hold, nohold) or
//
//	buttons[;durationMillis[;label]]
//
// where buttons is a JSON object such as {"a":1,"ls":[0,255]} or a space
// separated token list such as "a dup ls:0:255".
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/padbridge/padbridge/pad"
)

// DefaultDuration is used when a line carries no valid duration.
const DefaultDuration = 100 * time.Millisecond

// ErrMalformed is returned for lines that cannot be turned into a Command.
var ErrMalformed = errors.New("malformed command")

// Command is one button state to hold for Duration. Label, when set, is
// broadcast to control clients once the state has been sent.
type Command struct {
	State    pad.ButtonState
	Duration time.Duration
	Label    string
}

// Kind distinguishes directives from button commands.
type Kind int

const (
	KindPress Kind = iota
	KindClear
	KindHold
	KindNoHold
)

func (k Kind) String() string {
	switch k {
	case KindPress:
		return "press"
	case KindClear:
		return "clear"
	case KindHold:
		return "hold"
	case KindNoHold:
		return "nohold"
	}
	return "unknown"
}

// Line is a parsed control line. Command is only meaningful for KindPress.
type Line struct {
	Kind    Kind
	Command Command
}

// Parse parses one control line.
func Parse(line string) (Line, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "clear":
		return Line{Kind: KindClear}, nil
	case "hold":
		return Line{Kind: KindHold}, nil
	case "nohold":
		return Line{Kind: KindNoHold}, nil
	}

	cmd := Command{Duration: DefaultDuration}
	buttons := line
	if strings.Contains(line, ";") {
		parts := strings.SplitN(line, ";", 3)
		buttons = parts[0]
		cmd.Duration = parseDuration(parts[1])
		if len(parts) == 3 {
			cmd.Label = parts[2]
		}
	}

	var (
		in  pad.Input
		err error
	)
	if strings.HasPrefix(strings.TrimSpace(buttons), "{") {
		in, err = parseObject(buttons)
	} else {
		in, err = parseTokens(buttons)
	}
	if err != nil {
		return Line{}, err
	}
	cmd.State = in.State()
	return Line{Kind: KindPress, Command: cmd}, nil
}

// maxMillis is the largest duration in milliseconds a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

func parseDuration(s string) time.Duration {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || ms <= 0 || ms > maxMillis {
		return DefaultDuration
	}
	return time.Duration(ms) * time.Millisecond
}

func parseObject(s string) (pad.Input, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return pad.Input{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var in pad.Input
	for key, v := range raw {
		key = strings.ToLower(key)
		switch key {
		case "ls", "rs":
			var pair []float64
			if err := json.Unmarshal(v, &pair); err != nil {
				// Non-array stick values are ignored.
				continue
			}
			// Extra elements are ignored.
			if len(pair) < 2 {
				return pad.Input{}, fmt.Errorf("%w: %s needs two values", ErrMalformed, key)
			}
			p := &[2]int{axis(pair[0]), axis(pair[1])}
			if key == "ls" {
				in.LeftStick = p
			} else {
				in.RightStick = p
			}
		default:
			if truthy(v) {
				applyName(&in, key)
			}
		}
	}
	return in, nil
}

// axis clamps v to the stick range in float64; converting an out of range
// float to int is implementation defined.
func axis(v float64) int {
	return int(math.Max(0, math.Min(255, v)))
}

func truthy(v json.RawMessage) bool {
	var x any
	if err := json.Unmarshal(v, &x); err != nil {
		return false
	}
	switch t := x.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	}
	return true
}

func parseTokens(s string) (pad.Input, error) {
	var in pad.Input
	s = strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' || r == ':' {
			return r
		}
		return -1
	}, s)
	for _, tok := range strings.Fields(s) {
		if strings.HasPrefix(tok, "ls:") || strings.HasPrefix(tok, "rs:") {
			parts := strings.Split(tok, ":")
			if len(parts) < 3 {
				return pad.Input{}, fmt.Errorf("%w: stick token %q needs x and y", ErrMalformed, tok)
			}
			x, errX := strconv.Atoi(parts[1])
			y, errY := strconv.Atoi(parts[2])
			if errX != nil || errY != nil {
				return pad.Input{}, fmt.Errorf("%w: stick token %q", ErrMalformed, tok)
			}
			if parts[0] == "ls" {
				in.LeftStick = &[2]int{x, y}
			} else {
				in.RightStick = &[2]int{x, y}
			}
			continue
		}
		name := strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' {
				return r
			}
			return -1
		}, tok)
		if name != "" {
			applyName(&in, name)
		}
	}
	return in, nil
}

var dpadTokens = map[string]pad.Dpad{
	"dup":        pad.DpadUp,
	"dupright":   pad.DpadUpRight,
	"dright":     pad.DpadRight,
	"ddownright": pad.DpadDownRight,
	"ddown":      pad.DpadDown,
	"ddownleft":  pad.DpadDownLeft,
	"dleft":      pad.DpadLeft,
	"dupleft":    pad.DpadUpLeft,
}

// Digital stick names. The unprefixed names move the left stick, the
// "l"-prefixed ones the right stick.
var (
	leftStickTokens = map[string]pad.Direction{
		"left": pad.DirLeft, "right": pad.DirRight, "up": pad.DirUp, "down": pad.DirDown,
	}
	rightStickTokens = map[string]pad.Direction{
		"lleft": pad.DirLeft, "lright": pad.DirRight, "lup": pad.DirUp, "ldown": pad.DirDown,
	}
)

// applyName sets the button, dpad position or digital stick direction
// called name. Unknown names are ignored. When several dpad names are given
// the one latest in clockwise order from up wins.
func applyName(in *pad.Input, name string) {
	if b, ok := pad.ButtonByName(name); ok {
		in.Buttons |= b
		return
	}
	if d, ok := dpadTokens[name]; ok {
		if d > in.Dpad {
			in.Dpad = d
		}
		return
	}
	if d, ok := leftStickTokens[name]; ok {
		in.LeftDigital |= d
		return
	}
	if d, ok := rightStickTokens[name]; ok {
		in.RightDigital |= d
	}
}
