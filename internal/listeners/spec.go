package listeners

import (
	"math"
	"strconv"
	"strings"

	"github.com/star/starlisten/internal/orbit"
)

// SpecInfo describes one listener spec string.
type SpecInfo struct {
	Spec         string `json:"spec"`
	Description  string `json:"description"`
	NeedsStation bool   `json:"needs_station"`
}

// Specs lists the accepted listener spec strings.
func Specs() []SpecInfo {
	return []SpecInfo{
		{"node", "ascending and descending nodes", false},
		{"apside", "periapsis and apoapsis", false},
		{"umbra", "umbra entry and exit", false},
		{"penumbra", "penumbra entry and exit", false},
		{"light", "umbra and penumbra", false},
		{"terminator", "day and night terminator", false},
		{"station", "AOS, MAX and LOS", true},
		{"radial", "station range rate zero crossings", true},
		{"radial-sight", "station range rate zero crossings above the mask", true},
		{"anomaly:<true|mean|aol>:<degrees>", "orbital angle reaching a target", false},
	}
}

// Parse builds the listeners named by one spec string. Station-based specs
// require st.
func Parse(spec string, st *Station, opts ...Option) ([]orbit.Listener, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))

	one := func(l orbit.Listener, err error) ([]orbit.Listener, error) {
		if err != nil {
			return nil, err
		}
		return []orbit.Listener{l}, nil
	}
	needStation := func() error {
		if st == nil {
			return invalid("listener %q needs a station", spec)
		}
		return nil
	}

	switch spec {
	case "node":
		return one(NewNode(opts...))
	case "apside":
		return one(NewApside(opts...))
	case "umbra":
		return one(NewLight(Umbra, opts...))
	case "penumbra":
		return one(NewLight(Penumbra, opts...))
	case "light":
		umbra, err := NewLight(Umbra, opts...)
		if err != nil {
			return nil, err
		}
		penumbra, err := NewLight(Penumbra, opts...)
		if err != nil {
			return nil, err
		}
		return []orbit.Listener{umbra, penumbra}, nil
	case "terminator":
		return one(NewTerminator(opts...))
	case "station":
		if err := needStation(); err != nil {
			return nil, err
		}
		// A direction filter applies to AOS/LOS; MAX always fires on the
		// falling elevation rate.
		signal, err := NewStationSignal(*st, opts...)
		if err != nil {
			return nil, err
		}
		return []orbit.Listener{signal, NewStationMax(*st)}, nil
	case "radial":
		if err := needStation(); err != nil {
			return nil, err
		}
		return one(NewRadialVelocity(*st, opts...))
	case "radial-sight":
		if err := needStation(); err != nil {
			return nil, err
		}
		return one(NewRadialVelocity(*st, append(append([]Option(nil), opts...), WithSight())...))
	}

	if rest, ok := strings.CutPrefix(spec, "anomaly:"); ok {
		kind, deg, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, invalid("listener %q: want anomaly:<kind>:<degrees>", spec)
		}
		target, err := strconv.ParseFloat(deg, 64)
		if err != nil {
			return nil, invalid("listener %q: target: %v", spec, err)
		}
		return one(NewAnomaly(target*math.Pi/180, AnomalyKind(kind), opts...))
	}

	return nil, invalid("unknown listener %q", spec)
}

// ParseList parses a comma-separated list of spec strings.
func ParseList(specs string, st *Station, opts ...Option) ([]orbit.Listener, error) {
	var out []orbit.Listener
	for _, spec := range strings.Split(specs, ",") {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		ls, err := Parse(spec, st, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, ls...)
	}
	if len(out) == 0 {
		return nil, invalid("no listeners in %q", specs)
	}
	return out, nil
}

// NeedsStation reports whether any spec in the comma-separated list requires
// a ground station.
func NeedsStation(specs string) bool {
	for _, spec := range strings.Split(specs, ",") {
		switch strings.ToLower(strings.TrimSpace(spec)) {
		case "station", "radial", "radial-sight":
			return true
		}
	}
	return false
}
