package engine

import (
	"fmt"
	"math"
	"strings"
)

// WrapAngle maps an angle in radians into [-pi, pi]
func WrapAngle(a float64) float64 {
	if a >= -math.Pi && a <= math.Pi {
		return a
	}
	w := math.Mod(a+math.Pi, 2*math.Pi)
	if w < 0 {
		w += 2 * math.Pi
	}
	return w - math.Pi
}

// ControlsFromKeys builds a ControlInput from held key names. Accepted names
// are w/a/s/d, up/down/left/right, arrowup/arrowdown/arrowleft/arrowright and
// forward/backward/brake/reverse. Matching is case-insensitive.
func ControlsFromKeys(keys ...string) (ControlInput, error) {
	var c ControlInput
	for _, k := range keys {
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "":
			continue
		case "w", "up", "arrowup", "forward", "throttle":
			c.Forward = true
		case "s", "down", "arrowdown", "backward", "back", "brake", "reverse":
			c.Backward = true
		case "a", "left", "arrowleft":
			c.TurnLeft = true
		case "d", "right", "arrowright":
			c.TurnRight = true
		default:
			return ControlInput{}, fmt.Errorf("unknown key %q", k)
		}
	}
	return c, nil
}

// ParseControls parses a compact control string such as "wa", "w+d",
// "forward,left" or "" (no keys held)
func ParseControls(s string) (ControlInput, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || strings.EqualFold(s, "none") {
		return ControlInput{}, nil
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '+' || r == ' '
	})
	if len(fields) == 1 && isKeyRun(fields[0]) {
		keys := make([]string, 0, len(fields[0]))
		for _, r := range fields[0] {
			keys = append(keys, string(r))
		}
		return ControlsFromKeys(keys...)
	}
	return ControlsFromKeys(fields...)
}

// isKeyRun reports whether s is a run of single-letter key names like "wa"
func isKeyRun(s string) bool {
	if len(s) < 2 {
		return false
	}
	for _, r := range strings.ToLower(s) {
		if !strings.ContainsRune("wasd", r) {
			return false
		}
	}
	return true
}

// String returns the held keys in w/a/s/d form, or "-" when idle
func (c ControlInput) String() string {
	var b strings.Builder
	if c.Forward {
		b.WriteByte('w')
	}
	if c.TurnLeft {
		b.WriteByte('a')
	}
	if c.Backward {
		b.WriteByte('s')
	}
	if c.TurnRight {
		b.WriteByte('d')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// TerminalSpeed returns the speed the car settles at when holding forward in a
// straight line at time scale 1, measured after friction: a*f/(1-f). The
// pre-friction peak within a tick is that divided by f, a/(1-f).
func TerminalSpeed(t Tuning) float64 {
	f := t.ForwardFriction
	if f >= 1 {
		return t.MaxSpeed
	}
	v := t.Acceleration * f / (1 - f)
	if v > t.MaxSpeed*f {
		return t.MaxSpeed * f
	}
	return v
}
