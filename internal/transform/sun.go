package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// AU is the astronomical unit in km.
const AU = 149597870.7

// SunRadius is the solar radius in km.
const SunRadius = 696000.0

// SunPosition returns the geocentric position of the Sun in km, in the
// equatorial inertial frame of date.
//
// Low-precision model (Astronomical Almanac, ~0.01 deg over 1950-2050).
func SunPosition(t time.Time) r3.Vec {
	tc := JulianCenturies(t)
	deg := math.Pi / 180.0

	meanLon := (280.460 + 36000.771*tc) * deg
	m := (357.5291092 + 35999.05034*tc) * deg

	lambda := meanLon + (1.914666471*math.Sin(m)+0.019994643*math.Sin(2*m))*deg
	r := (1.000140612 - 0.016708617*math.Cos(m) - 0.000139589*math.Cos(2*m)) * AU
	eps := (23.439291 - 0.0130042*tc) * deg

	return r3.Vec{
		X: r * math.Cos(lambda),
		Y: r * math.Cos(eps) * math.Sin(lambda),
		Z: r * math.Sin(eps) * math.Sin(lambda),
	}
}
