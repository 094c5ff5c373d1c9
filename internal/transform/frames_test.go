package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{"J2000.0 epoch", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), 2451545.0},
		{"Unix epoch", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 2440587.5},
		// Vallado Example 3-15.
		{"Vallado example date", time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC), 2453101.827411875},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			if diff := math.Abs(got - tt.expected); diff > 1e-6 {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}
		})
	}
}

// GMST is checked against go-satellite's GSTimeFromDate, which uses the same
// IAU-82 model.
func TestGMST(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
	}{
		{"J2000.0 epoch", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"Vallado example date", time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC)},
		{"2026", time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)
			if diff := math.Abs(GMST(tt.time) - ref); diff > 1e-8 {
				t.Errorf("GMST(%v) = %.12f rad, go-satellite = %.12f rad", tt.time, GMST(tt.time), ref)
			}
		})
	}
}

func TestInertialToECEF_MatchesGoSatellite(t *testing.T) {
	tests := []struct {
		name string
		pos  r3.Vec
		time time.Time
	}{
		{"Vallado example 3-15", r3.Vec{X: 5094.18016, Y: 6127.64465, Z: 6380.34453}, time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC)},
		{"LEO equatorial", r3.Vec{X: 6778}, time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)},
		{"LEO polar", r3.Vec{Z: 6978}, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)
			got, _ := InertialToECEFWithGMST(tt.pos, r3.Vec{}, gmst)
			ref := satellite.ECIToECEF(satellite.Vector3{X: tt.pos.X, Y: tt.pos.Y, Z: tt.pos.Z}, gmst)

			d := r3.Norm(r3.Sub(got, r3.Vec{X: ref.X, Y: ref.Y, Z: ref.Z}))
			if d > 1e-3 {
				t.Errorf("ECEF mismatch %.6f km: ours %v, ref %+v", d, got, ref)
			}
			if !ValidRadius(got) {
				t.Errorf("ECEF position failed validation: %v", got)
			}
		})
	}
}

func TestInertialToECEF_Velocity(t *testing.T) {
	pos := r3.Vec{X: 6778}
	vel := r3.Vec{Y: 7.5}

	_, v := InertialToECEFWithGMST(pos, vel, 0)
	want := 7.5 - OmegaEarth*6778.0
	if math.Abs(v.Y-want) > 1e-9 {
		t.Errorf("VY = %.9f km/s, want %.9f km/s", v.Y, want)
	}
}

func TestECEFToInertial_Inverse(t *testing.T) {
	at := time.Date(2025, 9, 1, 17, 30, 12, 250000000, time.UTC)
	pos := r3.Vec{X: -2100, Y: 5400, Z: 3900}
	vel := r3.Vec{X: -5.2, Y: -3.9, Z: 3.1}

	ep, ev := InertialToECEF(pos, vel, at)
	gp, gv := ECEFToInertial(ep, ev, at)

	if d := r3.Norm(r3.Sub(gp, pos)); d > 1e-9 {
		t.Errorf("position round trip error %.3e km", d)
	}
	if d := r3.Norm(r3.Sub(gv, vel)); d > 1e-12 {
		t.Errorf("velocity round trip error %.3e km/s", d)
	}
}

func TestValidRadius(t *testing.T) {
	tests := []struct {
		name  string
		pos   r3.Vec
		valid bool
	}{
		{"LEO", r3.Vec{X: 6778}, true},
		{"GEO", r3.Vec{X: 42164}, true},
		{"too low", r3.Vec{X: 5000}, false},
		{"too high", r3.Vec{X: 60000}, false},
		{"NaN", r3.Vec{X: math.NaN()}, false},
		{"Inf", r3.Vec{X: math.Inf(1)}, false},
		{"zero", r3.Vec{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidRadius(tt.pos); got != tt.valid {
				t.Errorf("ValidRadius(%v) = %v, want %v", tt.pos, got, tt.valid)
			}
		})
	}
}
