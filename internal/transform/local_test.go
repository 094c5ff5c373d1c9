package transform

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestLocalFrames(t *testing.T) {
	pos := r3.Vec{X: 7000}
	vel := r3.Vec{X: 0.5, Y: 7.4}

	q := ToQSW(pos, vel, vel)
	if math.Abs(q.X-0.5) > 1e-12 || math.Abs(q.Y-7.4) > 1e-12 || math.Abs(q.Z) > 1e-12 {
		t.Errorf("QSW velocity = %v, want {0.5 7.4 0}", q)
	}

	tnw := ToTNW(pos, vel, vel)
	if math.Abs(tnw.X-r3.Norm(vel)) > 1e-12 || math.Abs(tnw.Y) > 1e-12 || math.Abs(tnw.Z) > 1e-12 {
		t.Errorf("TNW velocity = %v, want along t", tnw)
	}
}

func TestFromLocal_Inverse(t *testing.T) {
	pos := r3.Vec{X: 3000, Y: -5000, Z: 2500}
	vel := r3.Vec{X: 4.1, Y: 3.2, Z: -5.0}
	v := r3.Vec{X: 1, Y: 2, Z: 3}

	for _, frame := range []LocalFrame{QSW, TNW} {
		local, err := ToLocal(frame, pos, vel, v)
		if err != nil {
			t.Fatalf("ToLocal(%s): %v", frame, err)
		}
		back, err := FromLocal(frame, pos, vel, local)
		if err != nil {
			t.Fatalf("FromLocal(%s): %v", frame, err)
		}
		if d := r3.Norm(r3.Sub(back, v)); d > 1e-12 {
			t.Errorf("%s round trip error %.3e", frame, d)
		}
	}
}

func TestParseLocalFrame(t *testing.T) {
	for name, want := range map[string]LocalFrame{"qsw": QSW, "RSW": QSW, "lvlh": QSW, "TNW": TNW} {
		got, err := ParseLocalFrame(name)
		if err != nil || got != want {
			t.Errorf("ParseLocalFrame(%q) = %q, %v; want %q", name, got, err, want)
		}
	}
	if _, err := ParseLocalFrame("NTW"); err == nil {
		t.Error("ParseLocalFrame(NTW) should fail")
	}
}
