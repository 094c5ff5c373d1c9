// Package listeners is the catalogue of event functions: orbital nodes and
// apsides, eclipse and terminator crossings, ground-station visibility and
// radial velocity, and anomaly crossings.
//
// Every listener is an immutable value holding its configuration only.
// Constructors validate that configuration and fail fast.
package listeners

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/star/starlisten/internal/orbit"
	"github.com/star/starlisten/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidConfig wraps every construction error.
var ErrInvalidConfig = errors.New("invalid listener configuration")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// SunFunc returns the Sun position in km, in the inertial frame of the
// states being scanned.
type SunFunc func(t time.Time) r3.Vec

type settings struct {
	dir   orbit.Direction
	sight bool
	sun   SunFunc
}

// Option adjusts a listener at construction.
type Option func(*settings)

// WithDirection restricts the crossings reported.
func WithDirection(d orbit.Direction) Option {
	return func(s *settings) { s.dir = d }
}

// WithSight gates radial velocity crossings on the satellite being above the
// station's mask.
func WithSight() Option {
	return func(s *settings) { s.sight = true }
}

// WithSun replaces the analytic Sun model.
func WithSun(f SunFunc) Option {
	return func(s *settings) { s.sun = f }
}

func apply(def orbit.Direction, opts []Option) (settings, error) {
	s := settings{dir: def, sun: transform.SunPosition}
	for _, opt := range opts {
		opt(&s)
	}
	if !s.dir.Valid() {
		return s, invalid("direction %d", int(s.dir))
	}
	if s.sun == nil {
		return s, invalid("nil sun function")
	}
	return s, nil
}

// inertial returns s's position and velocity in an inertial frame.
func inertial(s orbit.State) (r3.Vec, r3.Vec) {
	if s.Frame == orbit.FrameECEF {
		return transform.ECEFToInertial(s.Position, s.Velocity, s.Date)
	}
	return s.Position, s.Velocity
}

// Station is a ground station with an elevation mask.
type Station struct {
	Name     string
	Observer transform.Observer
	MaskDeg  float64
}

// NewStation validates geodetic coordinates (degrees, meters) and a mask
// elevation in degrees.
func NewStation(name string, latDeg, lonDeg, altM, maskDeg float64) (Station, error) {
	for _, v := range []float64{latDeg, lonDeg, altM, maskDeg} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Station{}, invalid("station %q: non-finite coordinate", name)
		}
	}
	if latDeg < -90 || latDeg > 90 {
		return Station{}, invalid("station %q: latitude %.4f out of [-90, 90]", name, latDeg)
	}
	if lonDeg < -180 || lonDeg > 360 {
		return Station{}, invalid("station %q: longitude %.4f out of [-180, 360]", name, lonDeg)
	}
	if maskDeg < -90 || maskDeg >= 90 {
		return Station{}, invalid("station %q: mask %.2f out of [-90, 90)", name, maskDeg)
	}
	return Station{
		Name:     name,
		Observer: transform.NewObserver(latDeg, lonDeg, altM),
		MaskDeg:  maskDeg,
	}, nil
}

// Look returns the station's look angles and rates toward s.
func (st Station) Look(s orbit.State) transform.LookAngles {
	pos, vel := s.Position, s.Velocity
	if s.Frame != orbit.FrameECEF {
		pos, vel = transform.InertialToECEF(pos, vel, s.Date)
	}
	return st.Observer.LookRates(pos, vel)
}

// Visible reports whether s is at or above the mask.
func (st Station) Visible(s orbit.State) bool {
	return st.Look(s).ElevationDeg >= st.MaskDeg
}

func labelFor(dir orbit.Direction, rising, falling string) string {
	if dir == orbit.Falling {
		return falling
	}
	return rising
}
