package listeners

import (
	"math"

	"github.com/star/starlisten/internal/orbit"
	"github.com/star/starlisten/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// Cone selects the Earth shadow boundary.
type Cone string

const (
	Umbra    Cone = "umbra"
	Penumbra Cone = "penumbra"
)

// Light fires when the satellite crosses the umbra or penumbra boundary of the
// Earth's shadow, modelled as cones tangent to the Sun and a spherical Earth.
//
// The event function is the angle between the satellite and the anti-Sun
// direction, seen from the Earth's center, minus the cone's half-width at the
// satellite's radius. It is negative in shadow: falling crossings are
// entries, rising ones exits.
type Light struct {
	cone Cone
	dir  orbit.Direction
	sun  SunFunc
}

// NewLight returns a shadow listener for cone.
func NewLight(cone Cone, opts ...Option) (*Light, error) {
	if cone != Umbra && cone != Penumbra {
		return nil, invalid("cone %q", cone)
	}
	s, err := apply(orbit.Either, opts)
	if err != nil {
		return nil, err
	}
	return &Light{cone: cone, dir: s.dir, sun: s.sun}, nil
}

func (l *Light) Name() string               { return string(l.cone) }
func (l *Light) Direction() orbit.Direction { return l.dir }

func (l *Light) Value(s orbit.State) float64 {
	pos, _ := inertial(s)
	sun := l.sun(s.Date)

	rho := r3.Norm(pos)
	dist := r3.Norm(sun)

	beta := math.Acos(clamp(-r3.Dot(pos, sun) / (rho * dist)))
	earth := math.Asin(clamp(transform.EarthRadius / rho))

	if l.cone == Umbra {
		return beta - (earth - math.Asin((transform.SunRadius-transform.EarthRadius)/dist))
	}
	return beta - (earth + math.Asin((transform.SunRadius+transform.EarthRadius)/dist))
}

func (l *Light) Info(_ orbit.State, dir orbit.Direction) string {
	name := "Umbra"
	if l.cone == Penumbra {
		name = "Penumbra"
	}
	return labelFor(dir, name+" exit", name+" entry")
}

// Terminator fires when the satellite crosses the plane perpendicular to the
// Sun direction through the Earth's center. Rising crossings go from the
// night side to the day side.
type Terminator struct {
	dir orbit.Direction
	sun SunFunc
}

// NewTerminator returns a terminator listener.
func NewTerminator(opts ...Option) (*Terminator, error) {
	s, err := apply(orbit.Either, opts)
	if err != nil {
		return nil, err
	}
	return &Terminator{dir: s.dir, sun: s.sun}, nil
}

func (l *Terminator) Name() string               { return "terminator" }
func (l *Terminator) Direction() orbit.Direction { return l.dir }

// Value is the cosine of the satellite/Sun angle.
func (l *Terminator) Value(s orbit.State) float64 {
	pos, _ := inertial(s)
	sun := l.sun(s.Date)
	return r3.Dot(pos, sun) / (r3.Norm(pos) * r3.Norm(sun))
}

func (l *Terminator) Info(_ orbit.State, dir orbit.Direction) string {
	return labelFor(dir, "Day Terminator", "Night Terminator")
}

func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
