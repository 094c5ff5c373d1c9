package propagation

import (
	"fmt"
	"math"
	"time"

	"github.com/star/starlisten/internal/orbit"
)

// Kepler is an analytic two-body trajectory. Mean anomaly advances linearly
// from the epoch; every other element is fixed.
type Kepler struct {
	Epoch    time.Time
	Elements orbit.Elements
	Mu       float64
	Frame    orbit.Frame
}

var _ orbit.Trajectory = (*Kepler)(nil)

// NewKepler validates the elements and returns a two-body trajectory around
// the Earth in the EME2000 frame.
func NewKepler(epoch time.Time, el orbit.Elements) (*Kepler, error) {
	if el.SemiMajorAxis <= 0 || math.IsNaN(el.SemiMajorAxis) {
		return nil, fmt.Errorf("kepler: semi-major axis must be positive, got %v", el.SemiMajorAxis)
	}
	if el.Eccentricity < 0 || el.Eccentricity >= 1 {
		return nil, fmt.Errorf("kepler: eccentricity must be in [0, 1), got %v", el.Eccentricity)
	}
	return &Kepler{Epoch: epoch, Elements: el, Mu: orbit.MuEarth, Frame: orbit.FrameEME2000}, nil
}

// Period returns the orbital period.
func (k *Kepler) Period() time.Duration {
	return time.Duration(k.Elements.Period(k.Mu) * float64(time.Second))
}

// Propagate returns the state at t.
func (k *Kepler) Propagate(t time.Time) (orbit.State, error) {
	el := k.Elements
	el.MeanAnomaly += el.MeanMotion(k.Mu) * t.Sub(k.Epoch).Seconds()

	pos, vel := el.State(k.Mu)
	return orbit.State{Date: t, Position: pos, Velocity: vel, Frame: k.Frame}, nil
}
