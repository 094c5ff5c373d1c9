package scan

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/star/starlisten/internal/orbit"
)

// ErrNoNativeStep is returned by the Native driver on trajectories that do
// not store samples.
var ErrNoNativeStep = errors.New("trajectory has no native step")

// Driver decides which base samples an iteration pulls from the trajectory.
type Driver interface {
	open(traj orbit.Trajectory) (source, error)
	String() string
}

// source yields base samples in increasing date order.
type source interface {
	next() (orbit.State, bool, error)
}

type datesDriver struct {
	dates []time.Time
}

// Dates iterates over an explicit list of dates. The list is sorted and
// duplicates are dropped.
func Dates(dates ...time.Time) Driver {
	ds := make([]time.Time, len(dates))
	copy(ds, dates)
	sort.Slice(ds, func(i, j int) bool { return ds[i].Before(ds[j]) })

	out := ds[:0]
	for i, d := range ds {
		if i > 0 && d.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, d)
	}
	return &datesDriver{dates: out}
}

func (d *datesDriver) String() string { return fmt.Sprintf("dates(%d)", len(d.dates)) }

func (d *datesDriver) open(traj orbit.Trajectory) (source, error) {
	i := 0
	return sourceFunc(func() (orbit.State, bool, error) {
		if i >= len(d.dates) {
			return orbit.State{}, false, nil
		}
		s, err := traj.Propagate(d.dates[i])
		i++
		return s, err == nil, err
	}), nil
}

type rangeDriver struct {
	start, stop time.Time
	step        time.Duration
}

// Range iterates from start to stop (inclusive when on the grid) every step.
func Range(start, stop time.Time, step time.Duration) Driver {
	return &rangeDriver{start: start, stop: stop, step: step}
}

func (d *rangeDriver) String() string {
	return fmt.Sprintf("range(%s, %s, %s)", d.start.Format(time.RFC3339), d.stop.Format(time.RFC3339), d.step)
}

func (d *rangeDriver) open(traj orbit.Trajectory) (source, error) {
	if d.step <= 0 {
		return nil, fmt.Errorf("range step must be positive, got %s", d.step)
	}
	if d.stop.Before(d.start) {
		return nil, fmt.Errorf("range stop %s before start %s", d.stop.Format(time.RFC3339), d.start.Format(time.RFC3339))
	}
	n := 0
	return sourceFunc(func() (orbit.State, bool, error) {
		// Multiplying rather than accumulating keeps the grid drift-free.
		at := d.start.Add(time.Duration(n) * d.step)
		if at.After(d.stop) {
			return orbit.State{}, false, nil
		}
		n++
		s, err := traj.Propagate(at)
		return s, err == nil, err
	}), nil
}

type nativeDriver struct {
	start, stop time.Time
}

// Native iterates over the stored samples of a discrete trajectory with
// start <= Date <= stop. start before the first sample or stop after the
// last one is an error.
func Native(start, stop time.Time) Driver {
	return &nativeDriver{start: start, stop: stop}
}

func (d *nativeDriver) String() string {
	return fmt.Sprintf("native(%s, %s)", d.start.Format(time.RFC3339), d.stop.Format(time.RFC3339))
}

func (d *nativeDriver) open(traj orbit.Trajectory) (source, error) {
	sampled, ok := traj.(orbit.Sampled)
	if !ok {
		return nil, fmt.Errorf("%T: %w", traj, ErrNoNativeStep)
	}
	samples, err := sampled.Samples(d.start, d.stop)
	if err != nil {
		return nil, err
	}
	i := 0
	return sourceFunc(func() (orbit.State, bool, error) {
		if i >= len(samples) {
			return orbit.State{}, false, nil
		}
		i++
		return samples[i-1], true, nil
	}), nil
}

type sourceFunc func() (orbit.State, bool, error)

func (f sourceFunc) next() (orbit.State, bool, error) { return f() }
