package propagation

import (
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/star/starlisten/internal/orbit"
	"github.com/star/starlisten/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go, explicit TEME output. Propagate() takes Satellite by value so SGP4
// error codes are not visible to the caller; failures are detected by checking
// the output for NaN/Inf and unreasonable position magnitudes.
//
// The library only accepts whole seconds. Sub-second dates, which the crossing
// locator needs, are served by cubic Hermite interpolation between the two
// enclosing whole seconds; over one second the interpolation error is far
// below a millimeter for LEO.

// SGP4Propagator is a continuous trajectory for one satellite.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int
}

var _ orbit.Trajectory = (*SGP4Propagator)(nil)

// NewSGP4Propagator creates an SGP4 propagator from TLE lines.
//
// TLE format is pre-validated because go-satellite calls log.Fatal on
// malformed input.
func NewSGP4Propagator(line1, line2 string, noradID int) (*SGP4Propagator, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", noradID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, noradID: noradID}, nil
}

func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// NORADID returns the catalog number the propagator was built for.
func (p *SGP4Propagator) NORADID() int { return p.noradID }

// Propagate returns the TEME state at t.
func (p *SGP4Propagator) Propagate(t time.Time) (orbit.State, error) {
	t = t.UTC()
	t0 := t.Truncate(time.Second)

	s0, err := p.wholeSecond(t0)
	if err != nil {
		return orbit.State{}, err
	}
	if t.Equal(t0) {
		return s0, nil
	}

	s1, err := p.wholeSecond(t0.Add(time.Second))
	if err != nil {
		return orbit.State{}, err
	}

	pos, vel := hermite(s0, s1, t.Sub(t0).Seconds(), 1)
	return orbit.State{Date: t, Position: pos, Velocity: vel, Frame: orbit.FrameTEME}, nil
}

func (p *SGP4Propagator) wholeSecond(t time.Time) (orbit.State, error) {
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	s := orbit.State{
		Date:     t,
		Position: r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z},
		Velocity: r3.Vec{X: vel.X, Y: vel.Y, Z: vel.Z},
		Frame:    orbit.FrameTEME,
	}
	if !s.Valid() {
		return orbit.State{}, fmt.Errorf("sgp4 propagation failed for NORAD %d at %s: output is NaN/Inf: %w",
			p.noradID, t.Format(time.RFC3339), orbit.ErrInvalidState)
	}
	if !transform.ValidRadius(s.Position) {
		return orbit.State{}, fmt.Errorf("sgp4 propagation failed for NORAD %d at %s: unreasonable position magnitude %.1f km: %w",
			p.noradID, t.Format(time.RFC3339), s.Radius(), orbit.ErrInvalidState)
	}
	return s, nil
}

// hermite interpolates position and velocity at dt seconds after a, where b
// is h seconds after a.
func hermite(a, b orbit.State, dt, h float64) (r3.Vec, r3.Vec) {
	u := dt / h
	u2, u3 := u*u, u*u*u

	h00 := 2*u3 - 3*u2 + 1
	h10 := u3 - 2*u2 + u
	h01 := -2*u3 + 3*u2
	h11 := u3 - u2

	d00 := 6*u2 - 6*u
	d10 := 3*u2 - 4*u + 1
	d01 := -6*u2 + 6*u
	d11 := 3*u2 - 2*u

	pos := r3.Add(
		r3.Add(r3.Scale(h00, a.Position), r3.Scale(h10*h, a.Velocity)),
		r3.Add(r3.Scale(h01, b.Position), r3.Scale(h11*h, b.Velocity)),
	)
	vel := r3.Scale(1/h, r3.Add(
		r3.Add(r3.Scale(d00, a.Position), r3.Scale(d10*h, a.Velocity)),
		r3.Add(r3.Scale(d01, b.Position), r3.Scale(d11*h, b.Velocity)),
	))
	return pos, vel
}
