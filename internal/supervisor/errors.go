package supervisor

import (
	"errors"
	"fmt"

	"github.com/san-kum/armsim/internal/kinematics"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("supervisor: closed")

	// ErrSolverNotFound indicates the solver executable does not exist.
	ErrSolverNotFound = errors.New("supervisor: solver executable not found")
)

// LaunchError reports a solver that could not be started for a target. The
// supervisor does not retry; the next Submit tries again.
type LaunchError struct {
	RunID  string
	Target kinematics.Vec3
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("supervisor: launch solver for %v: %v", e.Target, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
