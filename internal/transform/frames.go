// Package transform provides the frame and geometry utilities used by the
// event functions: sidereal time, inertial to Earth-fixed rotation, topocentric
// look angles with their rates, a low-precision Sun model and local orbital
// frames.
//
// Inertial to ECEF uses a GMST-only rotation (TEME -> PEF ~ ECEF). Polar motion
// and the equation of the equinoxes are ignored, which costs ~50 m at most.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Earth radii and orbit bounds, km.
const (
	EarthRadius = 6378.137

	minOrbitRadius = 6200.0
	maxOrbitRadius = 50000.0
)

// InertialToECEF rotates an inertial position/velocity (km, km/s) into the
// Earth-fixed frame at t.
func InertialToECEF(pos, vel r3.Vec, t time.Time) (r3.Vec, r3.Vec) {
	return InertialToECEFWithGMST(pos, vel, GMST(t))
}

// InertialToECEFWithGMST rotates using a precomputed GMST angle (radians).
//
//	r_ECEF = R3(θ) r_I
//	v_ECEF = R3(θ) v_I - ω × r_ECEF
func InertialToECEFWithGMST(pos, vel r3.Vec, gmst float64) (r3.Vec, r3.Vec) {
	r := rotZ(pos, gmst)
	v := rotZ(vel, gmst)
	v.X += OmegaEarth * r.Y
	v.Y -= OmegaEarth * r.X
	return r, v
}

// ECEFToInertial is the inverse of InertialToECEF.
func ECEFToInertial(pos, vel r3.Vec, t time.Time) (r3.Vec, r3.Vec) {
	gmst := GMST(t)
	v := vel
	v.X -= OmegaEarth * pos.Y
	v.Y += OmegaEarth * pos.X
	return rotZ(pos, -gmst), rotZ(v, -gmst)
}

// rotZ applies R3(θ), the frame rotation about z.
func rotZ(v r3.Vec, theta float64) r3.Vec {
	c, s := math.Cos(theta), math.Sin(theta)
	return r3.Vec{
		X: v.X*c + v.Y*s,
		Y: -v.X*s + v.Y*c,
		Z: v.Z,
	}
}

// ValidRadius reports whether pos (km) is finite and at a plausible distance
// for an Earth-orbiting satellite.
func ValidRadius(pos r3.Vec) bool {
	for _, c := range []float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	mag := r3.Norm(pos)
	return mag >= minOrbitRadius && mag <= maxOrbitRadius
}
