// Package ephem implements discrete trajectories: a date-sorted table of
// precomputed states, evaluated between samples by interpolation and only
// inside the stored span.
package ephem

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/star/starlisten/internal/orbit"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrOutOfRange is returned for dates outside [Start, Stop].
	ErrOutOfRange = errors.New("date outside ephemeris span")
	// ErrTooShort is returned when fewer than two samples are supplied.
	ErrTooShort = errors.New("ephemeris needs at least two samples")
)

// Method selects the interpolation scheme.
type Method int

const (
	Lagrange Method = iota
	Linear
)

func (m Method) String() string {
	switch m {
	case Lagrange:
		return "lagrange"
	case Linear:
		return "linear"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod parses "lagrange" or "linear". The empty string is Lagrange.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lagrange":
		return Lagrange, nil
	case "linear":
		return Linear, nil
	}
	return Lagrange, fmt.Errorf("unknown interpolation method %q", s)
}

// DefaultOrder is the number of samples in a Lagrange window.
const DefaultOrder = 8

// Ephem is a discrete trajectory. It is immutable after construction and safe
// for concurrent use.
type Ephem struct {
	states []orbit.State
	method Method
	order  int
}

var _ orbit.Sampled = (*Ephem)(nil)

// Option configures an Ephem.
type Option func(*Ephem)

// WithMethod selects the interpolation method.
func WithMethod(m Method) Option {
	return func(e *Ephem) { e.method = m }
}

// WithOrder sets the Lagrange window size.
func WithOrder(n int) Option {
	return func(e *Ephem) { e.order = n }
}

// New builds an ephemeris from states. The slice is copied and sorted by
// date; duplicate dates are rejected.
func New(states []orbit.State, opts ...Option) (*Ephem, error) {
	if len(states) < 2 {
		return nil, ErrTooShort
	}

	e := &Ephem{
		states: make([]orbit.State, len(states)),
		method: Lagrange,
		order:  DefaultOrder,
	}
	copy(e.states, states)
	for _, opt := range opts {
		opt(e)
	}

	switch e.method {
	case Lagrange:
		if e.order < 2 {
			return nil, fmt.Errorf("lagrange order %d: must be at least 2", e.order)
		}
		if e.order > len(e.states) {
			e.order = len(e.states)
		}
	case Linear:
	default:
		return nil, fmt.Errorf("unknown interpolation method %v", e.method)
	}

	sort.SliceStable(e.states, func(i, j int) bool { return e.states[i].Date.Before(e.states[j].Date) })
	for i := range e.states {
		e.states[i].Event = nil
		if i > 0 && !e.states[i].Date.After(e.states[i-1].Date) {
			return nil, fmt.Errorf("duplicate sample date %s", e.states[i].Date.Format(time.RFC3339Nano))
		}
	}
	return e, nil
}

// Generate samples traj every step over [start, stop] and returns the
// resulting ephemeris. stop is included when it falls on the step grid.
func Generate(ctx context.Context, traj orbit.Trajectory, start, stop time.Time, step time.Duration, opts ...Option) (*Ephem, error) {
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %s", step)
	}
	if stop.Before(start) {
		return nil, fmt.Errorf("stop %s before start %s", stop.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	n := int(stop.Sub(start)/step) + 1
	states := make([]orbit.State, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := traj.Propagate(start.Add(time.Duration(i) * step))
		if err != nil {
			return nil, fmt.Errorf("generating ephemeris sample %d: %w", i, err)
		}
		states = append(states, s)
	}
	return New(states, opts...)
}

// Len returns the number of stored samples.
func (e *Ephem) Len() int { return len(e.states) }

// At returns the i-th stored sample.
func (e *Ephem) At(i int) orbit.State { return e.states[i] }

// Start returns the first sample date.
func (e *Ephem) Start() time.Time { return e.states[0].Date }

// Stop returns the last sample date.
func (e *Ephem) Stop() time.Time { return e.states[len(e.states)-1].Date }

// Step returns the interval between the first two samples, the native step
// of fixed-step tables.
func (e *Ephem) Step() time.Duration { return e.states[1].Date.Sub(e.states[0].Date) }

// Method returns the interpolation method.
func (e *Ephem) Method() Method { return e.method }

// Samples returns the stored states with start <= Date <= stop. The returned
// slice aliases the table and must not be modified.
func (e *Ephem) Samples(start, stop time.Time) ([]orbit.State, error) {
	if start.Before(e.Start()) {
		return nil, fmt.Errorf("start %s: %w", start.Format(time.RFC3339Nano), ErrOutOfRange)
	}
	if stop.After(e.Stop()) {
		return nil, fmt.Errorf("stop %s: %w", stop.Format(time.RFC3339Nano), ErrOutOfRange)
	}
	lo := sort.Search(len(e.states), func(i int) bool { return !e.states[i].Date.Before(start) })
	hi := sort.Search(len(e.states), func(i int) bool { return e.states[i].Date.After(stop) })
	if lo >= hi {
		return nil, nil
	}
	return e.states[lo:hi:hi], nil
}

// Propagate interpolates the state at t. Stored dates return the stored
// sample unchanged.
func (e *Ephem) Propagate(t time.Time) (orbit.State, error) {
	if t.Before(e.Start()) || t.After(e.Stop()) {
		return orbit.State{}, fmt.Errorf("%s not in [%s, %s]: %w",
			t.Format(time.RFC3339Nano), e.Start().Format(time.RFC3339Nano), e.Stop().Format(time.RFC3339Nano), ErrOutOfRange)
	}

	// First sample strictly after t.
	next := sort.Search(len(e.states), func(i int) bool { return e.states[i].Date.After(t) })
	if next > 0 && e.states[next-1].Date.Equal(t) {
		return e.states[next-1], nil
	}

	var pos, vel r3.Vec
	switch e.method {
	case Linear:
		pos, vel = linear(e.states[next-1], e.states[next], t)
	default:
		pos, vel = lagrange(e.window(next), t)
	}
	ref := e.states[next-1]
	return orbit.State{Date: t, Position: pos, Velocity: vel, Frame: ref.Frame}, nil
}

// window returns order samples centered on the interval [next-1, next],
// shifted to stay inside the table.
func (e *Ephem) window(next int) []orbit.State {
	lo := next - e.order/2
	if lo < 0 {
		lo = 0
	}
	hi := lo + e.order
	if hi > len(e.states) {
		hi = len(e.states)
		lo = hi - e.order
	}
	return e.states[lo:hi]
}

func linear(a, b orbit.State, t time.Time) (r3.Vec, r3.Vec) {
	f := t.Sub(a.Date).Seconds() / b.Date.Sub(a.Date).Seconds()
	pos := r3.Add(a.Position, r3.Scale(f, r3.Sub(b.Position, a.Position)))
	vel := r3.Add(a.Velocity, r3.Scale(f, r3.Sub(b.Velocity, a.Velocity)))
	return pos, vel
}

// lagrange evaluates the interpolating polynomial through subset at t:
//
//	L(x) = Σ y_j l_j(x),  l_j(x) = Π_{m≠j} (x - x_m) / (x_j - x_m)
func lagrange(subset []orbit.State, t time.Time) (r3.Vec, r3.Vec) {
	ref := subset[0].Date
	x := t.Sub(ref).Seconds()

	xs := make([]float64, len(subset))
	for i, s := range subset {
		xs[i] = s.Date.Sub(ref).Seconds()
	}

	var pos, vel r3.Vec
	for j, s := range subset {
		l := 1.0
		for m := range subset {
			if m != j {
				l *= (x - xs[m]) / (xs[j] - xs[m])
			}
		}
		pos = r3.Add(pos, r3.Scale(l, s.Position))
		vel = r3.Add(vel, r3.Scale(l, s.Velocity))
	}
	return pos, vel
}
