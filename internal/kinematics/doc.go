// Package kinematics provides closed-form kinematics for a 2-link arm
// mounted on a rotating base.
//
// The base turns about the vertical axis; the shoulder and elbow move the
// two links inside the vertical plane selected by the base:
//
//   - [Arm.Inverse]: target position to joint angles
//   - [Arm.Forward]: joint angles to tip position
//
// # Joint Limits
//
// Shoulder angles are kept in [0, π/2] and elbow angles in [-π, 0]. Inverse
// never reports an angle outside these bounds.
//
// # Degenerate Targets
//
// A target whose distance from the shoulder collapses to zero has no
// defined solution. Inverse then returns the zero pose with Degenerate set
// instead of an error, so callers always receive a safe pose to draw.
package kinematics
