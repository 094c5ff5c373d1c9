package transform

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// LocalFrame names a local orbital frame.
type LocalFrame string

const (
	// QSW: x along the position, z along the angular momentum.
	QSW LocalFrame = "QSW"
	// TNW: x along the velocity, z along the angular momentum.
	TNW LocalFrame = "TNW"
)

// ParseLocalFrame accepts the frame names and their usual aliases
// (RSW and LVLH for QSW).
func ParseLocalFrame(name string) (LocalFrame, error) {
	switch strings.ToUpper(name) {
	case "QSW", "RSW", "LVLH":
		return QSW, nil
	case "TNW":
		return TNW, nil
	}
	return "", fmt.Errorf("unknown local frame %q", name)
}

// LocalMatrix returns the 3x3 rotation whose rows are the local frame axes
// expressed in the frame of pos/vel.
func LocalMatrix(frame LocalFrame, pos, vel r3.Vec) (*mat.Dense, error) {
	w := r3.Unit(r3.Cross(pos, vel))

	var x, y r3.Vec
	switch frame {
	case QSW:
		x = r3.Unit(pos)
		y = r3.Cross(w, x)
	case TNW:
		x = r3.Unit(vel)
		// TNW is x=t, y=n, z=w with n = w × t.
		y = r3.Cross(w, x)
	default:
		return nil, fmt.Errorf("unknown local frame %q", frame)
	}

	return mat.NewDense(3, 3, []float64{
		x.X, x.Y, x.Z,
		y.X, y.Y, y.Z,
		w.X, w.Y, w.Z,
	}), nil
}

// ToLocal expresses v in the local frame built from pos/vel.
func ToLocal(frame LocalFrame, pos, vel, v r3.Vec) (r3.Vec, error) {
	m, err := LocalMatrix(frame, pos, vel)
	if err != nil {
		return r3.Vec{}, err
	}
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}, nil
}

// FromLocal maps a local frame vector back to the frame of pos/vel.
func FromLocal(frame LocalFrame, pos, vel, v r3.Vec) (r3.Vec, error) {
	m, err := LocalMatrix(frame, pos, vel)
	if err != nil {
		return r3.Vec{}, err
	}
	var out mat.VecDense
	out.MulVec(m.T(), mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}, nil
}

// ToQSW expresses v in the QSW frame of pos/vel.
func ToQSW(pos, vel, v r3.Vec) r3.Vec {
	out, _ := ToLocal(QSW, pos, vel, v)
	return out
}

// ToTNW expresses v in the TNW frame of pos/vel.
func ToTNW(pos, vel, v r3.Vec) r3.Vec {
	out, _ := ToLocal(TNW, pos, vel, v)
	return out
}
