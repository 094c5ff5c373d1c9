package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// WGS-84 ellipsoid.
const (
	wgs84A  = EarthRadius           // km
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Observer is a ground station. The ECEF position and the SEZ rotation terms
// are computed once so they can be reused across many lookups.
type Observer struct {
	LatRad, LonRad float64
	AltM           float64
	ECEF           r3.Vec // km

	sinLat, cosLat float64
	sinLon, cosLon float64
}

// NewObserver creates an Observer from geodetic coordinates: latitude and
// longitude in degrees, altitude in meters above the WGS-84 ellipsoid.
func NewObserver(latDeg, lonDeg, altM float64) Observer {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	alt := altM / 1000.0

	return Observer{
		LatRad: lat,
		LonRad: lon,
		AltM:   altM,
		ECEF: r3.Vec{
			X: (n + alt) * cosLat * cosLon,
			Y: (n + alt) * cosLat * sinLon,
			Z: (n*(1-wgs84E2) + alt) * sinLat,
		},
		sinLat: sinLat, cosLat: cosLat,
		sinLon: sinLon, cosLon: cosLon,
	}
}

// LatDeg returns the geodetic latitude in degrees.
func (o Observer) LatDeg() float64 { return o.LatRad * 180.0 / math.Pi }

// LonDeg returns the longitude in degrees.
func (o Observer) LonDeg() float64 { return o.LonRad * 180.0 / math.Pi }

// toSEZ rotates an ECEF vector into the observer's South-East-Zenith frame.
func (o Observer) toSEZ(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: o.sinLat*o.cosLon*v.X + o.sinLat*o.sinLon*v.Y - o.cosLat*v.Z,
		Y: -o.sinLon*v.X + o.cosLon*v.Y,
		Z: o.cosLat*o.cosLon*v.X + o.cosLat*o.sinLon*v.Y + o.sinLat*v.Z,
	}
}

// LookAngles holds azimuth, elevation and range from observer to satellite,
// with their rates when a velocity was supplied.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64

	RangeRateKmS      float64 // positive when receding
	ElevationRateDegS float64
}

// Look computes look angles for a satellite at pos (ECEF km).
//
// Uses the SEZ topocentric rotation per Vallado Section 4.4.
func (o Observer) Look(pos r3.Vec) LookAngles {
	return o.LookRates(pos, r3.Vec{})
}

// LookRates computes look angles plus range rate and elevation rate for a
// satellite at pos/vel (ECEF km, km/s). The observer is fixed in ECEF, so the
// satellite's ECEF velocity is the relative velocity.
func (o Observer) LookRates(pos, vel r3.Vec) LookAngles {
	rho := o.toSEZ(r3.Sub(pos, o.ECEF))
	rhoDot := o.toSEZ(vel)

	rng := r3.Norm(rho)
	horiz := math.Hypot(rho.X, rho.Y)

	el := math.Asin(rho.Z / rng)

	// North is -South, so az = atan2(east, -south).
	az := math.Atan2(rho.Y, -rho.X)
	if az < 0 {
		az += 2 * math.Pi
	}

	rangeRate := r3.Dot(rho, rhoDot) / rng

	var elRate float64
	if horiz > 1e-9 {
		elRate = (rhoDot.Z - rangeRate*rho.Z/rng) / horiz
	}

	return LookAngles{
		AzimuthDeg:        az * 180.0 / math.Pi,
		ElevationDeg:      el * 180.0 / math.Pi,
		RangeKm:           rng,
		RangeRateKmS:      rangeRate,
		ElevationRateDegS: elRate * 180.0 / math.Pi,
	}
}

// GeodeticPoint holds a geodetic position.
type GeodeticPoint struct {
	LatDeg, LonDeg, AltKm float64
}

// Geodetic converts an ECEF position (km) to geodetic coordinates using
// Bowring's iteration. Converges in 2-3 iterations for Earth orbits.
func Geodetic(pos r3.Vec) GeodeticPoint {
	lon := math.Atan2(pos.Y, pos.X)
	p := math.Hypot(pos.X, pos.Y)

	lat := math.Atan2(pos.Z, p*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(pos.Z+wgs84E2*n*sinLat, p)
	}

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		alt = math.Abs(pos.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return GeodeticPoint{
		LatDeg: lat * 180.0 / math.Pi,
		LonDeg: lon * 180.0 / math.Pi,
		AltKm:  alt,
	}
}
