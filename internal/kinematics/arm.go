package kinematics

import (
	"fmt"
	"math"
)

const (
	DefaultLink1 = 10.0
	DefaultLink2 = 10.0

	MinShoulder = 0.0
	MaxShoulder = math.Pi / 2
	MinElbow    = -math.Pi
	MaxElbow    = 0.0

	// distances below this are treated as a collapsed triangle
	degenerateDistance = 1e-9
)

// Vec3 is a point in the arm's world frame. Z points up.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Sub(o Vec3) Vec3     { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Norm() float64       { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }
func (v Vec3) Dist(o Vec3) float64 { return v.Sub(o).Norm() }

func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}

// JointAngles holds base, shoulder and elbow angles in radians. The elbow
// angle is relative to the upper link.
type JointAngles struct {
	Base     float64 `json:"base"`
	Shoulder float64 `json:"shoulder"`
	Elbow    float64 `json:"elbow"`

	// Degenerate marks the zero-pose fallback returned for targets without
	// a defined solution.
	Degenerate bool `json:"degenerate,omitempty"`
}

// Arm describes link lengths and the deployment knobs of the solver.
type Arm struct {
	Link1 float64
	Link2 float64

	// ClampGround floors the target height at zero before solving.
	ClampGround bool
	// ReachEpsilon shrinks the maximum reach so a fully stretched arm never
	// forms a flat triangle. Zero disables the margin.
	ReachEpsilon float64
}

func NewArm(link1, link2 float64) *Arm {
	return &Arm{Link1: link1, Link2: link2}
}

// Reach returns the effective maximum distance from the shoulder.
func (a *Arm) Reach() float64 {
	return a.Link1 + a.Link2 - a.ReachEpsilon
}

// Reachable reports whether the target lies within the reach sphere.
func (a *Arm) Reachable(target Vec3) bool {
	return target.Norm() <= a.Link1+a.Link2
}

// Inverse computes joint angles that place the tip at target. Targets beyond
// reach yield the fully extended pose pointing at them.
func (a *Arm) Inverse(target Vec3) JointAngles {
	if !target.IsFinite() {
		return JointAngles{Degenerate: true}
	}

	base := math.Atan2(target.Y, target.X)
	r := math.Hypot(target.X, target.Y)
	h := target.Z
	if a.ClampGround && h < 0 {
		h = 0
	}

	d := math.Hypot(r, h)
	if maxReach := a.Reach(); d > maxReach {
		d = maxReach
	}
	if d < degenerateDistance {
		return JointAngles{Degenerate: true}
	}

	l1, l2 := a.Link1, a.Link2
	cosShoulder := clamp((l1*l1+d*d-l2*l2)/(2*l1*d), -1, 1)
	shoulder := math.Atan2(h, r) + math.Acos(cosShoulder)

	cosElbow := clamp((l1*l1+l2*l2-d*d)/(2*l1*l2), -1, 1)
	elbow := math.Acos(cosElbow) - math.Pi

	if !isFinite(shoulder) || !isFinite(elbow) || !isFinite(base) {
		return JointAngles{Degenerate: true}
	}

	return JointAngles{
		Base:     base,
		Shoulder: clamp(shoulder, MinShoulder, MaxShoulder),
		Elbow:    clamp(elbow, MinElbow, MaxElbow),
	}
}

// Forward returns the tip position for the given joint angles.
func (a *Arm) Forward(q JointAngles) Vec3 {
	r, h := a.planar(q)
	return Vec3{
		X: r * math.Cos(q.Base),
		Y: r * math.Sin(q.Base),
		Z: h,
	}
}

// Elbow returns the position of the elbow joint.
func (a *Arm) Elbow(q JointAngles) Vec3 {
	r := a.Link1 * math.Cos(q.Shoulder)
	return Vec3{
		X: r * math.Cos(q.Base),
		Y: r * math.Sin(q.Base),
		Z: a.Link1 * math.Sin(q.Shoulder),
	}
}

// planar returns the radial distance and height of the tip in the arm plane.
func (a *Arm) planar(q JointAngles) (r, h float64) {
	r = a.Link1*math.Cos(q.Shoulder) + a.Link2*math.Cos(q.Shoulder+q.Elbow)
	h = a.Link1*math.Sin(q.Shoulder) + a.Link2*math.Sin(q.Shoulder+q.Elbow)
	return r, h
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
