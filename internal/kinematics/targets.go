package kinematics

import (
	"math"
	"math/rand"
)

// CylinderBounds limits randomly generated targets in cylindrical
// coordinates around the base.
type CylinderBounds struct {
	MinRadius float64
	MaxRadius float64
	MinHeight float64
	MaxHeight float64
}

// DefaultCylinderBounds matches the "new random target" button of the viewer.
func DefaultCylinderBounds() CylinderBounds {
	return CylinderBounds{MinRadius: 5, MaxRadius: 18, MinHeight: 0, MaxHeight: 15}
}

// RandomCylinderTarget draws a target uniformly in radius, heading and height.
// The result may lie outside the arm's reach.
func RandomCylinderTarget(rng *rand.Rand, b CylinderBounds) Vec3 {
	r := b.MinRadius + rng.Float64()*(b.MaxRadius-b.MinRadius)
	th := rng.Float64() * 2 * math.Pi
	h := b.MinHeight + rng.Float64()*(b.MaxHeight-b.MinHeight)
	return Vec3{X: r * math.Cos(th), Y: r * math.Sin(th), Z: h}
}

// RandomAngles draws joint angles uniformly inside the joint limits.
func RandomAngles(rng *rand.Rand) JointAngles {
	return JointAngles{
		Base:     -math.Pi + rng.Float64()*2*math.Pi,
		Shoulder: MinShoulder + rng.Float64()*(MaxShoulder-MinShoulder),
		Elbow:    MinElbow + rng.Float64()*(MaxElbow-MinElbow),
	}
}

// RandomTarget returns a target the arm can always reach: random joint angles
// mapped through forward kinematics.
func (a *Arm) RandomTarget(rng *rand.Rand) Vec3 {
	return a.Forward(RandomAngles(rng))
}
