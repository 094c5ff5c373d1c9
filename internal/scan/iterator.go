// Package scan finds the dates at which listener event functions cross zero
// along a trajectory.
//
// An Iterator pulls base samples from a Driver, evaluates every listener on
// each, refines sign changes with a Locator and interleaves the refined event
// states with the base samples in date order:
//
//	it := scan.New(traj, listeners, scan.Range(start, stop, 3*time.Minute))
//	for it.Next() {
//		s := it.State()
//		if s.Event != nil {
//			...
//		}
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
//
// Crossings that do not straddle two consecutive base samples, such as a
// pair of roots inside one step, are not seen. Pick the step accordingly.
package scan

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/star/starlisten/internal/metrics"
	"github.com/star/starlisten/internal/orbit"
)

// Iterator is a pull cursor over base samples and event states. It is not
// safe for concurrent use; run one Iterator per goroutine.
type Iterator struct {
	traj      orbit.Trajectory
	listeners []orbit.Listener
	driver    Driver
	src       source
	loc       Locator
	logger    *slog.Logger
	ctx       context.Context

	prev     orbit.State
	prevVals []float64
	vals     []float64
	hasPrev  bool

	// States of the current step waiting to be handed out, in date order.
	pending []orbit.State
	cur     orbit.State

	err   error
	done  bool
	steps int
	found int
	began time.Time
}

// New prepares an iteration. Configuration errors surface through Err after
// the first call to Next.
func New(traj orbit.Trajectory, listeners []orbit.Listener, driver Driver, opts ...Option) *Iterator {
	it := &Iterator{
		traj:      traj,
		listeners: listeners,
		driver:    driver,
		loc:       Locator{Tol: DefaultTolerance},
		logger:    slog.New(slog.DiscardHandler),
		ctx:       context.Background(),
		prevVals:  make([]float64, len(listeners)),
		vals:      make([]float64, len(listeners)),
	}
	for _, opt := range opts {
		opt(it)
	}

	for i, l := range listeners {
		if l == nil {
			it.fail(fmt.Errorf("listener %d is nil", i))
			return it
		}
		if !l.Direction().Valid() {
			it.fail(fmt.Errorf("listener %d: invalid direction %v", i, l.Direction()))
			return it
		}
	}

	src, err := driver.open(traj)
	if err != nil {
		it.fail(err)
		return it
	}
	it.src = src
	it.began = time.Now()
	return it
}

// Next advances to the next state. It returns false when the driver is
// exhausted or an error occurred; check Err.
func (it *Iterator) Next() bool {
	for len(it.pending) == 0 {
		if it.done {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.fail(err)
			return false
		}
		if !it.step() {
			return false
		}
	}
	it.cur = it.pending[0]
	it.pending = it.pending[1:]
	return true
}

// State returns the state produced by the last successful Next. Event states
// carry a non-nil Event.
func (it *Iterator) State() orbit.State { return it.cur }

// Err returns the error that stopped the iteration, if any.
func (it *Iterator) Err() error { return it.err }

// All adapts the iterator to a range-over-func sequence. A terminal error is
// yielded once as the last pair.
func (it *Iterator) All() iter.Seq2[orbit.State, error] {
	return func(yield func(orbit.State, error) bool) {
		for it.Next() {
			if !yield(it.State(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(orbit.State{}, err)
		}
	}
}

// step pulls one base sample and queues it together with the events found
// between the previous sample and it.
func (it *Iterator) step() bool {
	s, ok, err := it.src.next()
	if err != nil {
		it.fail(err)
		return false
	}
	if !ok {
		it.finish()
		return false
	}
	it.steps++

	for i, l := range it.listeners {
		it.vals[i] = l.Value(s)
	}

	var events []orbit.State
	if it.hasPrev {
		events, err = it.refine(it.prev, s)
		if err != nil {
			it.fail(err)
			return false
		}
	}

	// An event on the new sample's date annotates that sample instead of
	// duplicating it.
	annotated := false
	for _, ev := range events {
		if ev.Date.Equal(s.Date) {
			annotated = true
		}
	}
	it.pending = append(it.pending, events...)
	if !annotated {
		it.pending = append(it.pending, s)
	}

	it.prev = s
	it.prevVals, it.vals = it.vals, it.prevVals
	it.hasPrev = true
	return true
}

// refine locates, gates and orders the crossings between a and b.
func (it *Iterator) refine(a, b orbit.State) ([]orbit.State, error) {
	var events []orbit.State

	for i, l := range it.listeners {
		fa, fb := it.prevVals[i], it.vals[i]
		dir, ok := orbit.Crossing(fa, fb)
		if !ok || !l.Direction().Accepts(dir) {
			continue
		}
		if ang, ok := l.(orbit.Angular); ok && ang.Wrapped() && math.Abs(fb-fa) > math.Pi {
			continue
		}

		at, n, err := it.loc.Locate(it.traj, l, a, b, fa, fb)
		switch {
		case errors.Is(err, ErrNoCrossing):
			metrics.IncLocatorFailures("no_crossing")
			it.logger.Debug("crossing dropped", "listener", ListenerName(l), "reason", err, "after", a.Date)
			continue
		case errors.Is(err, ErrNotConverged):
			metrics.IncLocatorFailures("not_converged")
			it.logger.Debug("crossing dropped", "listener", ListenerName(l), "reason", err, "after", a.Date, "iterations", n)
			continue
		case err != nil:
			return nil, err
		}
		metrics.ObserveLocatorIterations(n)

		if g, ok := l.(orbit.Gate); ok && !g.Active(at) {
			continue
		}

		if at.Date.Equal(b.Date) {
			at = b
		}
		events = append(events, at.WithEvent(&orbit.Event{Info: l.Info(at, dir), Listener: l}))
		metrics.IncScanEvents(ListenerName(l))
		it.found++
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	return events, nil
}

func (it *Iterator) fail(err error) {
	it.err = err
	it.finish()
}

func (it *Iterator) finish() {
	if it.done {
		return
	}
	it.done = true
	if it.src == nil {
		return
	}
	metrics.AddScanSteps(it.steps)
	metrics.ObserveScanDuration(time.Since(it.began))
	it.logger.Debug("scan finished",
		"driver", it.driver.String(),
		"steps", it.steps,
		"events", it.found,
		"error", it.err,
	)
}

// Events runs a complete iteration and returns only the event states.
func Events(traj orbit.Trajectory, listeners []orbit.Listener, driver Driver, opts ...Option) ([]orbit.State, error) {
	var out []orbit.State
	it := New(traj, listeners, driver, opts...)
	for it.Next() {
		if s := it.State(); s.Event != nil {
			out = append(out, s)
		}
	}
	return out, it.Err()
}

// Named is implemented by listeners that report a short kind name for logs
// and metrics.
type Named interface {
	Name() string
}

// ListenerName returns l's kind name, or its Go type when it has none.
func ListenerName(l orbit.Listener) string {
	if n, ok := l.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", l)
}
