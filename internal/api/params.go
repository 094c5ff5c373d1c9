package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/star/starlisten/internal/config"
)

const (
	defaultMaxSteps  = 100_000
	defaultStep      = 60 * time.Second
	defaultHours     = 24.0
	maxHours         = 24.0 * 31
	maxStepSeconds   = 86400.0
	defaultListeners = "node"
)

// budgetError reports a scan whose step count exceeds the request budget.
type budgetError struct {
	steps, max int64
}

func (e *budgetError) Error() string {
	return fmt.Sprintf("scan needs %d steps, limit is %d; raise step or shorten the window", e.steps, e.max)
}

func badParam(name string, err error) error {
	return fmt.Errorf("%w: parameter %q: %v", config.ErrInvalid, name, err)
}

// parseNORADID reads the {norad_id} path value.
func parseNORADID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid NORAD ID %q", config.ErrInvalid, r.PathValue("norad_id"))
	}
	return id, nil
}

// noradListParam parses the comma-separated NORAD IDs of query parameter
// name. An absent or empty parameter yields nil.
func noradListParam(q url.Values, name string) ([]int, error) {
	var ids []int
	for _, v := range strings.Split(q.Get(name), ",") {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		id, err := strconv.Atoi(v)
		if err != nil || id < 1 {
			return nil, badParam(name, fmt.Errorf("invalid NORAD ID %q", v))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// floatParam returns the float query parameter name, or def when absent.
func floatParam(q url.Values, name string, def float64) (float64, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, badParam(name, err)
	}
	return f, nil
}

// intParam returns the integer query parameter name, or def when absent.
func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badParam(name, err)
	}
	return n, nil
}

// timeParam returns the RFC 3339 query parameter name, or def when absent.
func timeParam(q url.Values, name string, def time.Time) (time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, badParam(name, err)
	}
	return t.UTC(), nil
}

// parseStation reads lat, lon, alt (meters) and mask (degrees). It returns
// nil when neither lat nor lon is given.
func parseStation(q url.Values, maskParam string) (*config.Station, error) {
	if q.Get("lat") == "" && q.Get("lon") == "" {
		return nil, nil
	}
	if q.Get("lat") == "" || q.Get("lon") == "" {
		return nil, fmt.Errorf("%w: lat and lon must be given together", config.ErrInvalid)
	}
	st := &config.Station{Name: "observer"}
	var err error
	if st.Lat, err = floatParam(q, "lat", 0); err != nil {
		return nil, err
	}
	if st.Lon, err = floatParam(q, "lon", 0); err != nil {
		return nil, err
	}
	if st.AltM, err = floatParam(q, "alt", 0); err != nil {
		return nil, err
	}
	if st.MaskDeg, err = floatParam(q, maskParam, 0); err != nil {
		return nil, err
	}
	return st, nil
}

// parseScenario builds a scan scenario from query parameters:
//
//	start, stop   RFC 3339; start defaults to now, stop to start+hours
//	hours         window length when stop is absent (default 24)
//	step          sampling step in seconds (default 60)
//	listeners     comma-separated listener specs (default "node")
//	direction     rising, falling or either, applied to every listener
//	lat, lon, alt ground station for station listeners; mask in degrees
//	source        sgp4 (default) or ephem; ephem scans the sampled table natively
//	method        ephem interpolation, lagrange (default) or linear
//
// Requests needing more than maxSteps samples fail with a *budgetError.
func parseScenario(q url.Values, maxSteps int, now time.Time) (*config.Scenario, error) {
	start, err := timeParam(q, "start", now.UTC().Truncate(time.Second))
	if err != nil {
		return nil, err
	}
	hours, err := floatParam(q, "hours", defaultHours)
	if err != nil {
		return nil, err
	}
	if hours <= 0 || hours > maxHours {
		return nil, badParam("hours", fmt.Errorf("must be in (0, %g]", maxHours))
	}
	stop, err := timeParam(q, "stop", start.Add(time.Duration(hours*float64(time.Hour))))
	if err != nil {
		return nil, err
	}
	stepSec, err := floatParam(q, "step", defaultStep.Seconds())
	if err != nil {
		return nil, err
	}
	if stepSec <= 0 || stepSec > maxStepSeconds {
		return nil, badParam("step", fmt.Errorf("must be in (0, %g] seconds", maxStepSeconds))
	}
	step := time.Duration(stepSec * float64(time.Second))
	if step <= 0 {
		return nil, badParam("step", fmt.Errorf("%g seconds is below one nanosecond", stepSec))
	}

	if stop.After(start) {
		if n := int64(stop.Sub(start)/step) + 1; n > int64(maxSteps) {
			return nil, &budgetError{steps: n, max: int64(maxSteps)}
		}
	}

	station, err := parseStation(q, "mask")
	if err != nil {
		return nil, err
	}

	sc := &config.Scenario{
		Scan: config.Scan{
			Start:    start,
			Stop:     stop,
			Step:     config.Duration{Duration: step},
			Mode:     config.ModeRange,
			Source:   config.SourceSGP4,
			MaxSteps: maxSteps,
		},
		Ephemeris: config.Ephemeris{Method: q.Get("method")},
		Station:   station,
	}
	switch src := q.Get("source"); src {
	case "", config.SourceSGP4:
	case config.SourceEphem:
		sc.Scan.Source = config.SourceEphem
		sc.Scan.Mode = config.ModeNative
	default:
		return nil, badParam("source", fmt.Errorf("unknown source %q", src))
	}

	specs := q.Get("listeners")
	if specs == "" {
		specs = defaultListeners
	}
	direction := q.Get("direction")
	for _, spec := range strings.Split(specs, ",") {
		if spec = strings.TrimSpace(spec); spec != "" {
			sc.Listeners = append(sc.Listeners, config.Listener{Spec: spec, Direction: direction})
		}
	}

	if err := sc.Finalize(); err != nil {
		return nil, err
	}
	return sc, nil
}
