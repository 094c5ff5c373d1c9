// Package config loads scan scenarios from TOML files.
//
// A scenario names the time window, the sampling mode, the listeners and,
// for station-based listeners, the ground station:
//
//	[scan]
//	start = 2025-02-14T12:00:00Z
//	stop  = 2025-02-15T12:00:00Z
//	step  = "60s"
//	mode  = "range"      # range, dates or native
//	source = "sgp4"      # sgp4 or ephem
//
//	[station]
//	name = "denver"
//	lat = 39.7392
//	lon = -104.9903
//	alt_m = 1609
//	mask_deg = 5
//
//	[[listener]]
//	spec = "station"
//
//	[[listener]]
//	spec = "node"
//	direction = "rising"
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/star/starlisten/internal/ephem"
	"github.com/star/starlisten/internal/listeners"
	"github.com/star/starlisten/internal/orbit"
	"github.com/star/starlisten/internal/scan"
)

// ErrInvalid wraps every scenario validation error.
var ErrInvalid = errors.New("invalid scenario")

// Duration is a time.Duration written as a Go duration string.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Scenario is a complete scan description.
type Scenario struct {
	Scan      Scan       `toml:"scan"`
	Tolerance Tolerance  `toml:"tolerance"`
	Ephemeris Ephemeris  `toml:"ephemeris"`
	Station   *Station   `toml:"station"`
	Listeners []Listener `toml:"listener"`
}

// Scan is the sampling section.
type Scan struct {
	Start    time.Time   `toml:"start"`
	Stop     time.Time   `toml:"stop"`
	Step     Duration    `toml:"step"`
	Mode     string      `toml:"mode"`
	Source   string      `toml:"source"`
	Dates    []time.Time `toml:"dates"`
	MaxSteps int         `toml:"max_steps"`
}

// Tolerance overrides the locator defaults; zero fields keep them.
type Tolerance struct {
	Time    Duration `toml:"time"`
	Value   float64  `toml:"value"`
	MaxIter int      `toml:"max_iter"`
}

// Ephemeris configures source = "ephem".
type Ephemeris struct {
	Method string `toml:"method"`
	Order  int    `toml:"order"`
}

// Station is a ground station in geodetic degrees and meters.
type Station struct {
	Name    string  `toml:"name"`
	Lat     float64 `toml:"lat"`
	Lon     float64 `toml:"lon"`
	AltM    float64 `toml:"alt_m"`
	MaskDeg float64 `toml:"mask_deg"`
}

// Listener is one listener spec with an optional direction filter.
type Listener struct {
	Spec      string `toml:"spec"`
	Direction string `toml:"direction"`
}

// Sampling modes and trajectory sources.
const (
	ModeRange  = "range"
	ModeDates  = "dates"
	ModeNative = "native"

	SourceSGP4  = "sgp4"
	SourceEphem = "ephem"
)

// DefaultMaxSteps bounds the number of base samples of a scenario.
const DefaultMaxSteps = 1_000_000

// Load reads and parses the scenario file at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading scenario %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a TOML scenario. Unknown keys are errors.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	md, err := toml.Decode(string(data), &sc)
	if err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	if err := sc.Finalize(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Finalize fills defaults and validates a scenario built in code.
func (sc *Scenario) Finalize() error {
	sc.applyDefaults()
	return sc.Validate()
}

func (sc *Scenario) applyDefaults() {
	if sc.Scan.Mode == "" {
		sc.Scan.Mode = ModeRange
		if len(sc.Scan.Dates) > 0 {
			sc.Scan.Mode = ModeDates
		}
	}
	if sc.Scan.Source == "" {
		sc.Scan.Source = SourceSGP4
	}
	if sc.Scan.MaxSteps == 0 {
		sc.Scan.MaxSteps = DefaultMaxSteps
	}
	if sc.Ephemeris.Order == 0 {
		sc.Ephemeris.Order = ephem.DefaultOrder
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the scenario for consistency. It does not build listeners.
func (sc *Scenario) Validate() error {
	s := sc.Scan
	switch s.Mode {
	case ModeDates:
		if len(s.Dates) == 0 {
			return invalid("mode %q needs scan.dates", s.Mode)
		}
		if len(s.Dates) > s.MaxSteps {
			return invalid("%d dates exceed max_steps %d", len(s.Dates), s.MaxSteps)
		}
	case ModeRange, ModeNative:
		if s.Start.IsZero() || s.Stop.IsZero() {
			return invalid("mode %q needs scan.start and scan.stop", s.Mode)
		}
		if s.Stop.Before(s.Start) {
			return invalid("scan.stop %s before scan.start %s", s.Stop.Format(time.RFC3339), s.Start.Format(time.RFC3339))
		}
	default:
		return invalid("unknown mode %q", s.Mode)
	}

	needsStep := s.Mode == ModeRange || s.Source == SourceEphem
	if needsStep && s.Step.Duration <= 0 {
		return invalid("scan.step must be positive, got %s", s.Step.Duration)
	}
	if needsStep && s.Mode != ModeDates {
		if n := int64(s.Stop.Sub(s.Start)/s.Step.Duration) + 1; n > int64(s.MaxSteps) {
			return invalid("%d steps exceed max_steps %d", n, s.MaxSteps)
		}
	}

	switch s.Source {
	case SourceSGP4:
		if s.Mode == ModeNative {
			return invalid("mode %q needs source %q", ModeNative, SourceEphem)
		}
	case SourceEphem:
		if s.Mode == ModeDates {
			return invalid("source %q does not support mode %q", SourceEphem, ModeDates)
		}
	default:
		return invalid("unknown source %q", s.Source)
	}

	if _, err := ephem.ParseMethod(sc.Ephemeris.Method); err != nil {
		return invalid("%v", err)
	}
	if sc.Ephemeris.Order < 2 {
		return invalid("ephemeris.order must be at least 2")
	}

	if len(sc.Listeners) == 0 {
		return invalid("no [[listener]] entries")
	}
	for _, l := range sc.Listeners {
		if _, err := orbit.ParseDirection(l.Direction); err != nil {
			return invalid("listener %q: %v", l.Spec, err)
		}
		if listeners.NeedsStation(l.Spec) && sc.Station == nil {
			return invalid("listener %q needs a [station]", l.Spec)
		}
	}
	return nil
}

// BuildStation returns the scenario's station, or nil when it has none.
func (sc *Scenario) BuildStation() (*listeners.Station, error) {
	if sc.Station == nil {
		return nil, nil
	}
	st := sc.Station
	name := st.Name
	if name == "" {
		name = "station"
	}
	built, err := listeners.NewStation(name, st.Lat, st.Lon, st.AltM, st.MaskDeg)
	if err != nil {
		return nil, err
	}
	return &built, nil
}

// BuildListeners constructs every listener of the scenario, in file order.
func (sc *Scenario) BuildListeners(opts ...listeners.Option) ([]orbit.Listener, error) {
	st, err := sc.BuildStation()
	if err != nil {
		return nil, err
	}

	var out []orbit.Listener
	for _, l := range sc.Listeners {
		o := opts
		if l.Direction != "" {
			dir, err := orbit.ParseDirection(l.Direction)
			if err != nil {
				return nil, invalid("listener %q: %v", l.Spec, err)
			}
			o = append(append([]listeners.Option(nil), opts...), listeners.WithDirection(dir))
		}
		ls, err := listeners.Parse(l.Spec, st, o...)
		if err != nil {
			return nil, err
		}
		out = append(out, ls...)
	}
	return out, nil
}

// ScanOptions returns the iterator options implied by the scenario.
func (sc *Scenario) ScanOptions() []scan.Option {
	return []scan.Option{scan.WithTolerance(scan.Tolerance{
		Time:    sc.Tolerance.Time.Duration,
		Value:   sc.Tolerance.Value,
		MaxIter: sc.Tolerance.MaxIter,
	})}
}

// Plan returns the trajectory to scan and its driver. With source "ephem" the
// continuous trajectory is first sampled into an ephemeris at scan.step.
func (sc *Scenario) Plan(ctx context.Context, traj orbit.Trajectory) (orbit.Trajectory, scan.Driver, error) {
	s := sc.Scan
	if s.Source == SourceEphem {
		method, err := ephem.ParseMethod(sc.Ephemeris.Method)
		if err != nil {
			return nil, nil, invalid("%v", err)
		}
		eph, err := ephem.Generate(ctx, traj, s.Start, s.Stop, s.Step.Duration,
			ephem.WithMethod(method), ephem.WithOrder(sc.Ephemeris.Order))
		if err != nil {
			return nil, nil, fmt.Errorf("building ephemeris: %w", err)
		}
		if s.Mode == ModeNative {
			// The last sample falls on the step grid, at or before s.Stop.
			return eph, scan.Native(s.Start, eph.Stop()), nil
		}
		return eph, scan.Range(s.Start, s.Stop, s.Step.Duration), nil
	}

	if s.Mode == ModeDates {
		return traj, scan.Dates(s.Dates...), nil
	}
	return traj, scan.Range(s.Start, s.Stop, s.Step.Duration), nil
}
