package orbit

import (
	"fmt"
	"math"
	"strings"
)

// Direction filters the sense of a zero crossing.
type Direction int

const (
	Either Direction = iota
	Rising
	Falling
)

func (d Direction) String() string {
	switch d {
	case Either:
		return "either"
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection parses "either", "rising" or "falling". The empty string is
// Either.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "either", "both":
		return Either, nil
	case "rising", "increasing":
		return Rising, nil
	case "falling", "decreasing":
		return Falling, nil
	}
	return Either, fmt.Errorf("unknown direction %q", s)
}

// Valid reports whether d is one of the defined directions.
func (d Direction) Valid() bool {
	return d == Either || d == Rising || d == Falling
}

// Accepts reports whether a crossing in sense got passes the filter.
func (d Direction) Accepts(got Direction) bool {
	return d == Either || d == got
}

// Crossing classifies the pair of values (prev, next). It returns Rising when
// the value goes from negative to non-negative, Falling when it goes from
// positive to non-positive, and ok=false otherwise. An exact zero is consumed
// by the step that reaches it, so it is never reported twice.
func Crossing(prev, next float64) (dir Direction, ok bool) {
	if math.IsNaN(prev) || math.IsNaN(next) {
		return Either, false
	}
	switch {
	case prev < 0 && next >= 0:
		return Rising, true
	case prev > 0 && next <= 0:
		return Falling, true
	}
	return Either, false
}

// Listener binds an event function to event semantics.
//
// Implementations hold only their own configuration; the iterator may call
// them any number of times, on any state, in any order.
type Listener interface {
	// Value is the event function. Its zero crossings are the events.
	Value(s State) float64
	// Direction is the crossing filter.
	Direction() Direction
	// Info labels a crossing found at s in sense dir.
	Info(s State, dir Direction) string
}

// Gate is implemented by listeners whose crossings are only reported when a
// side condition holds at the refined crossing date.
type Gate interface {
	Active(s State) bool
}

// Angular is implemented by listeners whose value is an angle wrapped into
// (-pi, pi]. A jump of more than pi between two samples is the wrap, not a
// crossing.
type Angular interface {
	Wrapped() bool
}

// Event is attached to the states synthesized at crossings.
type Event struct {
	Info     string
	Listener Listener
}

func (e *Event) String() string {
	return e.Info
}

// WrapAngle returns a wrapped into (-pi, pi].
func WrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
