package orbit

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// circularEccentricity is the eccentricity below which the periapsis
// direction is undefined and the ascending node is used instead.
const circularEccentricity = 1e-10

// Elements are classical Keplerian elements. Angles in radians, SemiMajorAxis
// in km.
type Elements struct {
	SemiMajorAxis float64
	Eccentricity  float64
	Inclination   float64
	RAAN          float64
	ArgPerigee    float64
	MeanAnomaly   float64
}

// MeanMotion returns the mean motion in rad/s.
func (el Elements) MeanMotion(mu float64) float64 {
	return math.Sqrt(mu / (el.SemiMajorAxis * el.SemiMajorAxis * el.SemiMajorAxis))
}

// Period returns the orbital period in seconds.
func (el Elements) Period(mu float64) float64 {
	return 2 * math.Pi / el.MeanMotion(mu)
}

// EccentricFromMean solves Kepler's equation M = E - e sin E by Newton
// iteration.
func EccentricFromMean(m, e float64) float64 {
	m = normalize(m)
	if e == 0 {
		return m
	}
	ecc := m
	if e >= 0.8 {
		ecc = math.Pi
	}
	for i := 0; i < 50; i++ {
		delta := (ecc - e*math.Sin(ecc) - m) / (1 - e*math.Cos(ecc))
		ecc -= delta
		if math.Abs(delta) < 1e-14 {
			break
		}
	}
	return ecc
}

// TrueFromEccentric converts an eccentric anomaly to the true anomaly.
func TrueFromEccentric(ecc, e float64) float64 {
	return normalize(math.Atan2(math.Sqrt(1-e*e)*math.Sin(ecc), math.Cos(ecc)-e))
}

// EccentricFromTrue converts a true anomaly to the eccentric anomaly.
func EccentricFromTrue(nu, e float64) float64 {
	return normalize(math.Atan2(math.Sqrt(1-e*e)*math.Sin(nu), e+math.Cos(nu)))
}

// MeanFromTrue converts a true anomaly to the mean anomaly.
func MeanFromTrue(nu, e float64) float64 {
	ecc := EccentricFromTrue(nu, e)
	return normalize(ecc - e*math.Sin(ecc))
}

// State returns the inertial position and velocity for the elements.
func (el Elements) State(mu float64) (r3.Vec, r3.Vec) {
	e := el.Eccentricity
	nu := TrueFromEccentric(EccentricFromMean(el.MeanAnomaly, e), e)

	p := el.SemiMajorAxis * (1 - e*e)
	r := p / (1 + e*math.Cos(nu))

	// Perifocal frame.
	pos := r3.Vec{X: r * math.Cos(nu), Y: r * math.Sin(nu)}
	k := math.Sqrt(mu / p)
	vel := r3.Vec{X: -k * math.Sin(nu), Y: k * (e + math.Cos(nu))}

	rot := perifocalToInertial(el.RAAN, el.Inclination, el.ArgPerigee)
	return rot(pos), rot(vel)
}

func perifocalToInertial(raan, inc, argp float64) func(r3.Vec) r3.Vec {
	cO, sO := math.Cos(raan), math.Sin(raan)
	ci, si := math.Cos(inc), math.Sin(inc)
	cw, sw := math.Cos(argp), math.Sin(argp)

	return func(v r3.Vec) r3.Vec {
		return r3.Vec{
			X: (cO*cw-sO*sw*ci)*v.X + (-cO*sw-sO*cw*ci)*v.Y,
			Y: (sO*cw+cO*sw*ci)*v.X + (-sO*sw+cO*cw*ci)*v.Y,
			Z: (sw*si)*v.X + (cw*si)*v.Y,
		}
	}
}

// Osculating holds the elements of a state together with the angles that
// remain defined on circular and equatorial orbits.
type Osculating struct {
	Elements
	TrueAnomaly        float64
	ArgumentOfLatitude float64
}

// ElementsOf returns the osculating elements of s.
//
// On circular orbits the periapsis collapses onto the ascending node, so the
// true anomaly equals the argument of latitude. On equatorial orbits the node
// line is taken along the x axis.
func ElementsOf(s State, mu float64) Osculating {
	r, v := s.Position, s.Velocity
	rn := r3.Norm(r)
	vn := r3.Norm(v)

	h := r3.Cross(r, v)
	hn := r3.Norm(h)
	hu := r3.Scale(1/hn, h)

	node := r3.Vec{X: -h.Y, Y: h.X}
	if r3.Norm(node) < 1e-12*hn {
		node = r3.Vec{X: 1}
	}
	nu := r3.Unit(node)

	eVec := r3.Scale(1/mu, r3.Sub(r3.Scale(vn*vn-mu/rn, r), r3.Scale(r3.Dot(r, v), v)))
	e := r3.Norm(eVec)

	var out Osculating
	out.SemiMajorAxis = 1 / (2/rn - vn*vn/mu)
	out.Eccentricity = e
	out.Inclination = math.Acos(clamp(hu.Z))
	out.RAAN = normalize(math.Atan2(node.Y, node.X))

	// Direction orthogonal to the node line in the orbital plane.
	nPerp := r3.Cross(hu, nu)
	out.ArgumentOfLatitude = normalize(math.Atan2(r3.Dot(r, nPerp), r3.Dot(r, nu)))

	if e < circularEccentricity {
		out.ArgPerigee = 0
		out.TrueAnomaly = out.ArgumentOfLatitude
	} else {
		eu := r3.Scale(1/e, eVec)
		out.ArgPerigee = normalize(math.Atan2(r3.Dot(eu, nPerp), r3.Dot(eu, nu)))
		out.TrueAnomaly = normalize(math.Atan2(r3.Dot(r, r3.Cross(hu, eu)), r3.Dot(r, eu)))
	}
	if e < 1 {
		out.MeanAnomaly = MeanFromTrue(out.TrueAnomaly, e)
	}
	return out
}

func normalize(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
