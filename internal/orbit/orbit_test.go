package orbit

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestCrossing(t *testing.T) {
	tests := []struct {
		name       string
		prev, next float64
		want       Direction
		ok         bool
	}{
		{"rising", -1, 1, Rising, true},
		{"rising onto zero", -1, 0, Rising, true},
		{"falling", 1, -1, Falling, true},
		{"falling onto zero", 1, 0, Falling, true},
		{"leaving zero upward", 0, 1, Either, false},
		{"leaving zero downward", 0, -1, Either, false},
		{"both positive", 1, 2, Either, false},
		{"both negative", -2, -1, Either, false},
		{"nan", math.NaN(), 1, Either, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Crossing(tt.prev, tt.next)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Crossing(%v, %v) = %v, %v; want %v, %v", tt.prev, tt.next, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDirectionAccepts(t *testing.T) {
	if !Either.Accepts(Rising) || !Either.Accepts(Falling) {
		t.Error("Either should accept both senses")
	}
	if Rising.Accepts(Falling) {
		t.Error("Rising should reject Falling")
	}
	if Direction(7).Valid() {
		t.Error("Direction(7) should be invalid")
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in   string
		want Direction
		err  bool
	}{
		{"", Either, false},
		{"either", Either, false},
		{" Rising ", Rising, false},
		{"decreasing", Falling, false},
		{"sideways", Either, true},
	}
	for _, tt := range tests {
		got, err := ParseDirection(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseDirection(%q) = %v, %v; want %v, error %v", tt.in, got, err, tt.want, tt.err)
		}
	}
}

func TestWrapAngle(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{5 * math.Pi, math.Pi},
	}
	for _, tt := range tests {
		got := WrapAngle(tt.in)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("WrapAngle(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestElementsRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		el   Elements
	}{
		{"leo eccentric", Elements{SemiMajorAxis: 7000, Eccentricity: 0.01, Inclination: 0.9, RAAN: 1.2, ArgPerigee: 0.4, MeanAnomaly: 2.5}},
		{"molniya", Elements{SemiMajorAxis: 26600, Eccentricity: 0.74, Inclination: 1.1, RAAN: 4.0, ArgPerigee: 4.7, MeanAnomaly: 0.3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, vel := tt.el.State(MuEarth)
			got := ElementsOf(State{Position: pos, Velocity: vel}, MuEarth)

			checks := []struct {
				name      string
				got, want float64
			}{
				{"a", got.SemiMajorAxis, tt.el.SemiMajorAxis},
				{"e", got.Eccentricity, tt.el.Eccentricity},
				{"i", got.Inclination, tt.el.Inclination},
				{"raan", got.RAAN, tt.el.RAAN},
				{"argp", got.ArgPerigee, tt.el.ArgPerigee},
				{"M", got.MeanAnomaly, tt.el.MeanAnomaly},
			}
			for _, c := range checks {
				if math.Abs(c.got-c.want) > 1e-6*math.Max(1, math.Abs(c.want)) {
					t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
				}
			}
		})
	}
}

func TestElementsOfCircularEquatorial(t *testing.T) {
	el := Elements{SemiMajorAxis: 6778, MeanAnomaly: 200 * math.Pi / 180}
	pos, vel := el.State(MuEarth)
	got := ElementsOf(State{Position: pos, Velocity: vel}, MuEarth)

	want := el.MeanAnomaly
	for name, v := range map[string]float64{
		"true anomaly":         got.TrueAnomaly,
		"mean anomaly":         got.MeanAnomaly,
		"argument of latitude": got.ArgumentOfLatitude,
	} {
		if math.Abs(v-want) > 1e-9 {
			t.Errorf("%s = %v, want %v", name, v, want)
		}
	}
}

func TestStateHelpers(t *testing.T) {
	s := State{
		Date:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Position: r3.Vec{X: 7000},
		Velocity: r3.Vec{X: 1, Y: 7},
	}
	if got := s.Radius(); got != 7000 {
		t.Errorf("Radius() = %v", got)
	}
	if got := s.RadialVelocity(); math.Abs(got-1) > 1e-12 {
		t.Errorf("RadialVelocity() = %v, want 1", got)
	}
	if !s.Valid() {
		t.Error("finite state reported invalid")
	}

	s.Velocity.Z = math.Inf(1)
	if s.Valid() {
		t.Error("infinite velocity reported valid")
	}

	ev := &Event{Info: "Asc Node"}
	annotated := s.WithEvent(ev)
	if s.Event != nil {
		t.Error("WithEvent mutated the receiver")
	}
	if annotated.Event != ev {
		t.Error("WithEvent did not attach the event")
	}
}
