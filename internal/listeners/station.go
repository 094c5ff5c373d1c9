package listeners

import (
	"github.com/star/starlisten/internal/orbit"
)

// StationSignal fires when the satellite rises above (AOS) or sets below
// (LOS) the station's mask.
type StationSignal struct {
	station Station
	dir     orbit.Direction
}

// NewStationSignal returns an AOS/LOS listener.
func NewStationSignal(st Station, opts ...Option) (*StationSignal, error) {
	s, err := apply(orbit.Either, opts)
	if err != nil {
		return nil, err
	}
	return &StationSignal{station: st, dir: s.dir}, nil
}

func (l *StationSignal) Name() string               { return "station" }
func (l *StationSignal) Direction() orbit.Direction { return l.dir }
func (l *StationSignal) Station() Station           { return l.station }

// Value is the elevation above the mask, in degrees.
func (l *StationSignal) Value(s orbit.State) float64 {
	return l.station.Look(s).ElevationDeg - l.station.MaskDeg
}

func (l *StationSignal) Info(_ orbit.State, dir orbit.Direction) string {
	return labelFor(dir, "AOS", "LOS")
}

// StationMax fires at the culmination of a visible pass: the elevation rate
// goes from positive to negative while the satellite is above the mask.
type StationMax struct {
	station Station
}

// NewStationMax returns a culmination listener.
func NewStationMax(st Station) *StationMax {
	return &StationMax{station: st}
}

func (l *StationMax) Name() string               { return "station-max" }
func (l *StationMax) Direction() orbit.Direction { return orbit.Falling }
func (l *StationMax) Active(s orbit.State) bool  { return l.station.Visible(s) }

// Value is the elevation rate in degrees per second.
func (l *StationMax) Value(s orbit.State) float64 {
	return l.station.Look(s).ElevationRateDegS
}

func (l *StationMax) Info(orbit.State, orbit.Direction) string { return "MAX" }

// StationListeners returns the AOS/LOS and MAX listeners of st.
func StationListeners(st Station) []orbit.Listener {
	signal := &StationSignal{station: st, dir: orbit.Either}
	return []orbit.Listener{signal, NewStationMax(st)}
}

// RadialVelocity fires when the range rate between station and satellite
// changes sign, i.e. at closest approach and at maximum distance. With
// WithSight only crossings above the mask are reported.
type RadialVelocity struct {
	station Station
	dir     orbit.Direction
	sight   bool
}

// NewRadialVelocity returns a range-rate listener.
func NewRadialVelocity(st Station, opts ...Option) (*RadialVelocity, error) {
	s, err := apply(orbit.Either, opts)
	if err != nil {
		return nil, err
	}
	return &RadialVelocity{station: st, dir: s.dir, sight: s.sight}, nil
}

func (l *RadialVelocity) Direction() orbit.Direction { return l.dir }

func (l *RadialVelocity) Name() string {
	if l.sight {
		return "radial-sight"
	}
	return "radial"
}

// Value is the range rate in km/s, positive when receding.
func (l *RadialVelocity) Value(s orbit.State) float64 {
	return l.station.Look(s).RangeRateKmS
}

// Active always holds without sight gating.
func (l *RadialVelocity) Active(s orbit.State) bool {
	return !l.sight || l.station.Visible(s)
}

func (l *RadialVelocity) Info(orbit.State, orbit.Direction) string { return "Radial Velocity" }
