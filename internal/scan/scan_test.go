package scan

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/star/starlisten/internal/orbit"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

var errBoom = errors.New("boom")

// clockTraj returns states that only carry their date; test listeners derive
// their value from it.
type clockTraj struct {
	failAfter time.Time
	calls     int
}

func (c *clockTraj) Propagate(t time.Time) (orbit.State, error) {
	c.calls++
	if !c.failAfter.IsZero() && t.After(c.failAfter) {
		return orbit.State{}, errBoom
	}
	return orbit.State{Date: t}, nil
}

type fnListener struct {
	f       func(sec float64) float64
	dir     orbit.Direction
	info    string
	gate    func(orbit.State) bool
	wrapped bool
}

func (l *fnListener) Value(s orbit.State) float64 { return l.f(s.Date.Sub(t0).Seconds()) }
func (l *fnListener) Direction() orbit.Direction  { return l.dir }
func (l *fnListener) Wrapped() bool               { return l.wrapped }
func (l *fnListener) Name() string                { return "test" }

func (l *fnListener) Info(_ orbit.State, dir orbit.Direction) string {
	return l.info + " " + dir.String()
}

func (l *fnListener) Active(s orbit.State) bool {
	return l.gate == nil || l.gate(s)
}

func linear(root float64) func(float64) float64 {
	return func(sec float64) float64 { return sec - root }
}

func sine(period float64) func(float64) float64 {
	return func(sec float64) float64 { return math.Sin(2 * math.Pi * sec / period) }
}

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func state(sec float64) orbit.State { return orbit.State{Date: at(sec)} }

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func TestLocate(t *testing.T) {
	loc := Locator{Tol: DefaultTolerance}
	traj := &clockTraj{}

	tests := []struct {
		name string
		root float64
		a, b float64
	}{
		{"mid bracket", 37.123456, 0, 60},
		{"near start", 0.0000031, 0, 60},
		{"near end", 59.9999993, 0, 60},
		{"long bracket", 40000.5, 0, 86400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fnListener{f: linear(tt.root)}
			a, b := state(tt.a), state(tt.b)

			got, n, err := loc.Locate(traj, l, a, b, l.Value(a), l.Value(b))
			if err != nil {
				t.Fatalf("Locate: %v", err)
			}
			if !got.Date.After(a.Date) || got.Date.After(b.Date) {
				t.Errorf("result %v outside (%v, %v]", got.Date, a.Date, b.Date)
			}
			if l.Value(got) < 0 {
				t.Errorf("result carries the pre-crossing sign: %v", l.Value(got))
			}
			if d := absDur(got.Date.Sub(at(tt.root))); d > DefaultTolerance.Time+time.Nanosecond {
				t.Errorf("result %v is %v from root", got.Date, d)
			}
			if n <= 0 || n > DefaultTolerance.MaxIter {
				t.Errorf("iterations = %d", n)
			}
		})
	}
}

func TestLocateNoCrossing(t *testing.T) {
	loc := Locator{Tol: DefaultTolerance}
	traj := &clockTraj{}

	tests := []struct {
		name   string
		fa, fb float64
	}{
		{"both positive", 1, 2},
		{"both negative", -1, -3},
		{"starts on zero", 0, 1},
		{"nan", math.NaN(), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fnListener{f: linear(30)}
			_, _, err := loc.Locate(traj, l, state(0), state(60), tt.fa, tt.fb)
			if !errors.Is(err, ErrNoCrossing) {
				t.Errorf("err = %v, want ErrNoCrossing", err)
			}
		})
	}
}

func TestLocateZeroAtEnd(t *testing.T) {
	loc := Locator{Tol: DefaultTolerance}
	traj := &clockTraj{}
	l := &fnListener{f: linear(60)}

	b := state(60)
	got, n, err := loc.Locate(traj, l, state(0), b, -60, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Date.Equal(b.Date) || n != 0 || traj.calls != 0 {
		t.Errorf("got %v after %d iterations and %d calls, want b without evaluation", got.Date, n, traj.calls)
	}
}

func TestLocateNotConverged(t *testing.T) {
	loc := Locator{Tol: Tolerance{Time: time.Nanosecond, Value: 1e-15, MaxIter: 3}}
	l := &fnListener{f: linear(31.4)}

	_, n, err := loc.Locate(&clockTraj{}, l, state(0), state(60), -31.4, 28.6)
	if !errors.Is(err, ErrNotConverged) {
		t.Errorf("err = %v, want ErrNotConverged", err)
	}
	if n != 3 {
		t.Errorf("iterations = %d, want 3", n)
	}
}

func TestLocateTrajectoryError(t *testing.T) {
	loc := Locator{Tol: DefaultTolerance}
	l := &fnListener{f: linear(45)}
	traj := &clockTraj{failAfter: at(10)}

	_, _, err := loc.Locate(traj, l, state(0), state(60), -45, 15)
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want trajectory error", err)
	}
	if errors.Is(err, ErrNoCrossing) || errors.Is(err, ErrNotConverged) {
		t.Errorf("trajectory error reported as recoverable: %v", err)
	}
}

func collect(t *testing.T, it *Iterator) []orbit.State {
	t.Helper()
	var out []orbit.State
	for it.Next() {
		out = append(out, it.State())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration: %v", err)
	}
	return out
}

func eventsOf(states []orbit.State) []orbit.State {
	var out []orbit.State
	for _, s := range states {
		if s.Event != nil {
			out = append(out, s)
		}
	}
	return out
}

func TestIteratorSine(t *testing.T) {
	l := &fnListener{f: sine(6000), info: "sine"}
	it := New(&clockTraj{}, []orbit.Listener{l}, Range(t0, at(12000), 7*time.Minute))
	states := collect(t, it)

	// Grid 0, 420, ..., 11760 s: 29 base samples plus 3 events.
	if len(states) != 32 {
		t.Fatalf("got %d states, want 32", len(states))
	}
	for i := 1; i < len(states); i++ {
		if states[i].Date.Before(states[i-1].Date) {
			t.Fatalf("state %d at %v before state %d at %v", i, states[i].Date, i-1, states[i-1].Date)
		}
	}

	events := eventsOf(states)
	want := []struct {
		sec  float64
		info string
	}{
		{3000, "sine falling"},
		{6000, "sine rising"},
		{9000, "sine falling"},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, w := range want {
		if d := absDur(events[i].Date.Sub(at(w.sec))); d > 10*time.Microsecond {
			t.Errorf("event %d at %v, %v from %vs", i, events[i].Date, d, w.sec)
		}
		if events[i].Event.Info != w.info {
			t.Errorf("event %d info = %q, want %q", i, events[i].Event.Info, w.info)
		}
		if events[i].Event.Listener != l {
			t.Errorf("event %d owner mismatch", i)
		}
	}
}

func TestIteratorDirectionFilter(t *testing.T) {
	tests := []struct {
		dir  orbit.Direction
		want int
	}{
		{orbit.Either, 3},
		{orbit.Rising, 1},
		{orbit.Falling, 2},
	}

	for _, tt := range tests {
		t.Run(tt.dir.String(), func(t *testing.T) {
			l := &fnListener{f: sine(6000), dir: tt.dir}
			events, err := Events(&clockTraj{}, []orbit.Listener{l}, Range(t0, at(12000), 7*time.Minute))
			if err != nil {
				t.Fatal(err)
			}
			if len(events) != tt.want {
				t.Errorf("got %d events, want %d", len(events), tt.want)
			}
			for _, ev := range events {
				if tt.dir != orbit.Either && ev.Event.Info != " "+tt.dir.String() {
					t.Errorf("event %q passed the %s filter", ev.Event.Info, tt.dir)
				}
			}
		})
	}
}

func TestIteratorOrdersEventsWithinStep(t *testing.T) {
	late := &fnListener{f: linear(642), info: "late"}
	early := &fnListener{f: linear(612), info: "early"}

	it := New(&clockTraj{}, []orbit.Listener{late, early}, Range(t0, at(900), time.Minute))
	states := collect(t, it)

	var seq []string
	for _, s := range states {
		if s.Date.After(at(550)) && s.Date.Before(at(700)) {
			if s.Event != nil {
				seq = append(seq, s.Event.Info)
			} else {
				seq = append(seq, s.Date.Sub(t0).String())
			}
		}
	}
	want := []string{"10m0s", "early rising", "late rising", "11m0s"}
	if len(seq) != len(want) {
		t.Fatalf("sequence = %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("sequence = %v, want %v", seq, want)
			break
		}
	}
}

func TestIteratorEventOnSampleAnnotatesIt(t *testing.T) {
	l := &fnListener{f: linear(600), info: "exact"}
	it := New(&clockTraj{}, []orbit.Listener{l}, Range(t0, at(900), time.Minute))
	states := collect(t, it)

	if len(states) != 16 {
		t.Fatalf("got %d states, want 16 (no duplicate sample)", len(states))
	}
	s := states[10]
	if !s.Date.Equal(at(600)) || s.Event == nil || s.Event.Info != "exact rising" {
		t.Errorf("state 10 = %v, want annotated sample at 600 s", s)
	}
}

func TestIteratorFirstSampleNeverEmits(t *testing.T) {
	l := &fnListener{f: linear(0)}
	events, err := Events(&clockTraj{}, []orbit.Listener{l}, Range(t0, at(600), time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events for a root on the first sample", len(events))
	}
}

func TestIteratorGate(t *testing.T) {
	closed := &fnListener{f: sine(6000), gate: func(orbit.State) bool { return false }}
	secondHalf := &fnListener{f: sine(6000), gate: func(s orbit.State) bool { return s.Date.After(at(7000)) }}

	events, err := Events(&clockTraj{}, []orbit.Listener{closed, secondHalf}, Range(t0, at(12000), 7*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Event.Listener != secondHalf {
		t.Fatalf("got %d events, want only the 9000 s crossing", len(events))
	}
}

func TestIteratorAngularWrap(t *testing.T) {
	const period = 5400.0
	l := &fnListener{
		f:       func(sec float64) float64 { return orbit.WrapAngle(2*math.Pi*sec/period - 0.3) },
		wrapped: true,
	}

	events, err := Events(&clockTraj{}, []orbit.Listener{l}, Range(t0, at(3*period), time.Duration(period/37*float64(time.Second))))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events over 3 revolutions, want 3", len(events))
	}
	for k, ev := range events {
		want := at((0.3/(2*math.Pi) + float64(k)) * period)
		if d := absDur(ev.Date.Sub(want)); d > 10*time.Microsecond {
			t.Errorf("event %d is %v from expected", k, d)
		}
	}
}

func TestIteratorDatesDriver(t *testing.T) {
	l := &fnListener{f: linear(100)}
	// Unsorted with a duplicate.
	it := New(&clockTraj{}, []orbit.Listener{l}, Dates(at(120), at(0), at(60), at(60)))
	states := collect(t, it)

	if len(states) != 4 {
		t.Fatalf("got %d states, want 3 samples and 1 event", len(states))
	}
	if states[2].Event == nil || !states[3].Date.Equal(at(120)) {
		t.Errorf("unexpected sequence %v", states)
	}
}

func TestIteratorErrors(t *testing.T) {
	l := &fnListener{f: sine(6000)}

	t.Run("native on continuous trajectory", func(t *testing.T) {
		it := New(&clockTraj{}, []orbit.Listener{l}, Native(t0, at(600)))
		if it.Next() {
			t.Fatal("Next returned true")
		}
		if !errors.Is(it.Err(), ErrNoNativeStep) {
			t.Errorf("err = %v, want ErrNoNativeStep", it.Err())
		}
	})

	t.Run("bad range step", func(t *testing.T) {
		_, err := Events(&clockTraj{}, []orbit.Listener{l}, Range(t0, at(600), 0))
		if err == nil {
			t.Error("expected error for zero step")
		}
	})

	t.Run("invalid direction", func(t *testing.T) {
		bad := &fnListener{f: sine(6000), dir: orbit.Direction(9)}
		_, err := Events(&clockTraj{}, []orbit.Listener{bad}, Range(t0, at(600), time.Minute))
		if err == nil {
			t.Error("expected configuration error")
		}
	})

	t.Run("trajectory failure stops iteration", func(t *testing.T) {
		traj := &clockTraj{failAfter: at(5000)}
		it := New(traj, []orbit.Listener{l}, Range(t0, at(12000), 7*time.Minute))
		var events int
		for it.Next() {
			if it.State().Event != nil {
				events++
			}
		}
		if !errors.Is(it.Err(), errBoom) {
			t.Errorf("err = %v, want trajectory error", it.Err())
		}
		if events != 1 {
			t.Errorf("got %d events before the failure, want 1", events)
		}
		if it.Next() {
			t.Error("Next after failure returned true")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		it := New(&clockTraj{}, []orbit.Listener{l}, Range(t0, at(600), time.Minute), WithContext(ctx))
		if it.Next() {
			t.Fatal("Next returned true")
		}
		if !errors.Is(it.Err(), context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", it.Err())
		}
	})
}

func TestIteratorAll(t *testing.T) {
	l := &fnListener{f: sine(6000)}

	var n int
	for s, err := range New(&clockTraj{}, []orbit.Listener{l}, Range(t0, at(12000), 7*time.Minute)).All() {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if s.Event != nil {
			break
		}
	}
	// Samples 0..2940 s, then the 3000 s event.
	if n != 9 {
		t.Errorf("pulled %d states before the first event, want 9", n)
	}

	var lastErr error
	for _, err := range New(&clockTraj{failAfter: at(100)}, []orbit.Listener{l}, Range(t0, at(600), time.Minute)).All() {
		lastErr = err
	}
	if !errors.Is(lastErr, errBoom) {
		t.Errorf("final error = %v, want trajectory error", lastErr)
	}
}

func TestIteratorIdempotent(t *testing.T) {
	l := &fnListener{f: sine(6000)}
	run := func() []orbit.State {
		events, err := Events(&clockTraj{}, []orbit.Listener{l}, Range(t0, at(12000), 7*time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		return events
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("runs differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Date.Equal(second[i].Date) || first[i].Event.Info != second[i].Event.Info {
			t.Errorf("event %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestWithTolerance(t *testing.T) {
	l := &fnListener{f: linear(37.123456)}
	coarse := Tolerance{Time: 100 * time.Millisecond}

	events, err := Events(&clockTraj{}, []orbit.Listener{l}, Range(t0, at(60), time.Minute), WithTolerance(coarse))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	d := events[0].Date.Sub(at(37.123456))
	if d < 0 || d > 100*time.Millisecond {
		t.Errorf("coarse event %v from root, want within (0, 100ms]", d)
	}
}
