package scan

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/star/starlisten/internal/orbit"
)

var (
	// ErrNoCrossing is returned when the bracket does not hold a strict sign
	// change.
	ErrNoCrossing = errors.New("no sign change in bracket")
	// ErrNotConverged is returned when the iteration budget runs out before
	// either tolerance is met.
	ErrNotConverged = errors.New("bisection did not converge")
)

// Tolerance bounds the crossing search. Bisection stops as soon as the event
// function is within Value of zero or the date bracket is within Time, and
// gives up after MaxIter halvings.
type Tolerance struct {
	Time    time.Duration
	Value   float64
	MaxIter int
}

// DefaultTolerance suits both SGP4 (sub-second Hermite) and ephemerides.
// One microsecond is ~7.5 mm along a LEO track; 64 halvings resolve a
// bracket of several centuries down to it.
var DefaultTolerance = Tolerance{
	Time:    time.Microsecond,
	Value:   1e-12,
	MaxIter: 64,
}

// Locator refines a crossing between two bracketing states by bisection on
// dates. Every evaluation goes through the trajectory, so ephemerides
// interpolate and refuse dates outside their span.
type Locator struct {
	Tol Tolerance
}

// Locate returns the state at the zero crossing of l.Value between a and b,
// with a.Date < result.Date <= b.Date, and the number of bisection steps
// taken. fa and fb are l.Value at a and b.
//
// The result is the bracket end carrying fb's sign, so the crossing is never
// reported on the side it came from. An exact zero at b returns b itself.
func (loc Locator) Locate(traj orbit.Trajectory, l orbit.Listener, a, b orbit.State, fa, fb float64) (orbit.State, int, error) {
	if math.IsNaN(fa) || math.IsNaN(fb) || !b.Date.After(a.Date) {
		return orbit.State{}, 0, ErrNoCrossing
	}
	if fb == 0 && fa != 0 {
		return b, 0, nil
	}
	if fa == 0 || (fa < 0) == (fb < 0) {
		return orbit.State{}, 0, ErrNoCrossing
	}

	negA := fa < 0
	for i := 1; i <= loc.Tol.MaxIter; i++ {
		span := b.Date.Sub(a.Date)
		if span <= loc.Tol.Time || span <= time.Nanosecond {
			return b, i - 1, nil
		}

		mid, err := traj.Propagate(a.Date.Add(span / 2))
		if err != nil {
			return orbit.State{}, i, fmt.Errorf("refining crossing at %s: %w", a.Date.Add(span/2).Format(time.RFC3339Nano), err)
		}
		fm := l.Value(mid)
		if math.IsNaN(fm) {
			return orbit.State{}, i, ErrNoCrossing
		}
		if math.Abs(fm) <= loc.Tol.Value {
			return mid, i, nil
		}

		if (fm < 0) == negA {
			a = mid
		} else {
			b = mid
		}
	}

	if b.Date.Sub(a.Date) <= loc.Tol.Time {
		return b, loc.Tol.MaxIter, nil
	}
	return orbit.State{}, loc.Tol.MaxIter, ErrNotConverged
}
