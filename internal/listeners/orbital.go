package listeners

import (
	"fmt"
	"math"

	"github.com/star/starlisten/internal/orbit"
	"github.com/star/starlisten/internal/transform"
)

// Node fires when the satellite crosses the equatorial plane.
type Node struct {
	dir orbit.Direction
}

// NewNode returns a node listener. Rising crossings are ascending nodes.
func NewNode(opts ...Option) (*Node, error) {
	s, err := apply(orbit.Either, opts)
	if err != nil {
		return nil, err
	}
	return &Node{dir: s.dir}, nil
}

func (l *Node) Name() string               { return "node" }
func (l *Node) Direction() orbit.Direction { return l.dir }

// Value is the z coordinate of the inertial position.
func (l *Node) Value(s orbit.State) float64 {
	pos, _ := inertial(s)
	return pos.Z
}

func (l *Node) Info(_ orbit.State, dir orbit.Direction) string {
	return labelFor(dir, "Asc Node", "Desc Node")
}

// Apside fires at periapsis and apoapsis, where the radial velocity changes
// sign.
type Apside struct {
	dir orbit.Direction
}

// NewApside returns an apside listener. Rising crossings are periapsides.
func NewApside(opts ...Option) (*Apside, error) {
	s, err := apply(orbit.Either, opts)
	if err != nil {
		return nil, err
	}
	return &Apside{dir: s.dir}, nil
}

func (l *Apside) Name() string               { return "apside" }
func (l *Apside) Direction() orbit.Direction { return l.dir }

// Value is the radial (QSW x) component of the velocity.
func (l *Apside) Value(s orbit.State) float64 {
	pos, vel := inertial(s)
	return transform.ToQSW(pos, vel, vel).X
}

func (l *Apside) Info(_ orbit.State, dir orbit.Direction) string {
	return labelFor(dir, "Periapsis", "Apoapsis")
}

// AnomalyKind selects the angle an Anomaly listener tracks.
type AnomalyKind string

const (
	TrueAnomaly        AnomalyKind = "true"
	MeanAnomaly        AnomalyKind = "mean"
	ArgumentOfLatitude AnomalyKind = "aol"
)

func (k AnomalyKind) label() string {
	switch k {
	case TrueAnomaly:
		return "True Anomaly"
	case MeanAnomaly:
		return "Mean Anomaly"
	case ArgumentOfLatitude:
		return "Argument of Latitude"
	}
	return string(k)
}

// Anomaly fires when an orbital angle reaches a target. The event function is
// the shortest angular distance to the target, in (-pi, pi].
type Anomaly struct {
	target float64
	kind   AnomalyKind
	dir    orbit.Direction
}

// NewAnomaly returns a listener for target (radians) on the given angle. The
// default direction is Rising, the sense in which orbital angles advance.
func NewAnomaly(target float64, kind AnomalyKind, opts ...Option) (*Anomaly, error) {
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return nil, invalid("anomaly target %v", target)
	}
	switch kind {
	case TrueAnomaly, MeanAnomaly, ArgumentOfLatitude:
	default:
		return nil, invalid("anomaly kind %q", kind)
	}
	s, err := apply(orbit.Rising, opts)
	if err != nil {
		return nil, err
	}

	target = math.Mod(target, 2*math.Pi)
	if target < 0 {
		target += 2 * math.Pi
	}
	return &Anomaly{target: target, kind: kind, dir: s.dir}, nil
}

func (l *Anomaly) Name() string               { return "anomaly" }
func (l *Anomaly) Direction() orbit.Direction { return l.dir }
func (l *Anomaly) Wrapped() bool              { return true }

func (l *Anomaly) Value(s orbit.State) float64 {
	pos, vel := inertial(s)
	el := orbit.ElementsOf(orbit.State{Position: pos, Velocity: vel}, orbit.MuEarth)

	var angle float64
	switch l.kind {
	case TrueAnomaly:
		angle = el.TrueAnomaly
	case MeanAnomaly:
		angle = el.MeanAnomaly
	case ArgumentOfLatitude:
		angle = el.ArgumentOfLatitude
	}
	return orbit.WrapAngle(angle - l.target)
}

func (l *Anomaly) Info(orbit.State, orbit.Direction) string {
	return fmt.Sprintf("%s = %.2f", l.kind.label(), l.target*180/math.Pi)
}
