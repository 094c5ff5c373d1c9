// Package orbit defines the values shared by every part of the event scanner:
// state samples, events, the listener contract and the trajectory contract.
//
// Units are kilometers and kilometers per second throughout, matching the
// SGP4 output convention.
package orbit

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// MuEarth is Earth's gravitational parameter in km^3/s^2 (WGS-84).
const MuEarth = 398600.4418

// Frame names the reference frame of a state vector.
type Frame string

const (
	FrameTEME    Frame = "TEME"
	FrameEME2000 Frame = "EME2000"
	FrameECEF    Frame = "ECEF"
)

// State is a snapshot of a trajectory at one date.
//
// States are values: the iterator never mutates a sample it received from a
// trajectory, it annotates its own copy.
type State struct {
	Date     time.Time
	Position r3.Vec // km
	Velocity r3.Vec // km/s
	Frame    Frame

	// Event is non-nil only on samples that result from a crossing.
	Event *Event
}

// WithEvent returns a copy of s annotated with ev.
func (s State) WithEvent(ev *Event) State {
	s.Event = ev
	return s
}

// Radius returns the distance to the central body's center (km).
func (s State) Radius() float64 {
	return r3.Norm(s.Position)
}

// Speed returns the velocity magnitude (km/s).
func (s State) Speed() float64 {
	return r3.Norm(s.Velocity)
}

// RadialVelocity returns the velocity component along the position vector (km/s).
func (s State) RadialVelocity() float64 {
	return r3.Dot(s.Position, s.Velocity) / s.Radius()
}

// Valid reports whether every component is finite.
func (s State) Valid() bool {
	for _, v := range []float64{
		s.Position.X, s.Position.Y, s.Position.Z,
		s.Velocity.X, s.Velocity.Y, s.Velocity.Z,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) String() string {
	str := fmt.Sprintf("%s %s r=[%.3f %.3f %.3f] v=[%.6f %.6f %.6f]",
		s.Date.UTC().Format(time.RFC3339Nano), s.Frame,
		s.Position.X, s.Position.Y, s.Position.Z,
		s.Velocity.X, s.Velocity.Y, s.Velocity.Z)
	if s.Event != nil {
		str += " event=" + s.Event.Info
	}
	return str
}

// Trajectory produces states at arbitrary dates. Continuous propagators
// compute them on demand; ephemerides interpolate between stored samples and
// fail outside their span.
type Trajectory interface {
	Propagate(t time.Time) (State, error)
}

// Sampled is implemented by discrete trajectories that own a fixed-step table
// of states. It is the only kind of trajectory that has a native step.
type Sampled interface {
	Trajectory
	Start() time.Time
	Stop() time.Time
	Step() time.Duration
	// Samples returns the stored states with start <= Date <= stop.
	Samples(start, stop time.Time) ([]State, error)
}

// ErrInvalidState is returned by propagators whose output is not finite.
var ErrInvalidState = errors.New("invalid state vector")
