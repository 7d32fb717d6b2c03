package multibody

import (
	"errors"
	"fmt"
)

// Domain errors for tree construction and the dynamics passes.
var (
	// ErrIllConditioned indicates a singular or non-positive-definite joint
	// inertia block D during the articulated-body pass. This is a modeling
	// error (zero-mass branch, degenerate joint); it is never papered over
	// with a pseudo-inverse.
	ErrIllConditioned = errors.New("multibody: ill-conditioned joint inertia")

	// ErrReversedJoint indicates an unsupported child-to-parent joint.
	ErrReversedJoint = errors.New("multibody: reversed joints are not supported")

	// ErrUnknownJointType indicates a joint type tag with no implementation.
	ErrUnknownJointType = errors.New("multibody: unknown or unimplemented joint type")

	// ErrNotImplemented indicates a declared but unimplemented capability,
	// e.g. Euler gimbal torque decomposition for ball and free joints.
	ErrNotImplemented = errors.New("multibody: not implemented")

	// ErrStage indicates a realize call out of stage order.
	ErrStage = errors.New("multibody: state not realized to required stage")
)

// IllConditionedError names the body whose D block failed to factorize.
type IllConditionedError struct {
	Body    int
	Joint   JointType
	Wrapped error
}

func (e *IllConditionedError) Error() string {
	return fmt.Sprintf("body %d (%s joint): %v: %v", e.Body, e.Joint, ErrIllConditioned, e.Wrapped)
}

func (e *IllConditionedError) Unwrap() error { return ErrIllConditioned }

// StageError reports the stage a call required against the one realized.
type StageError struct {
	Need, Have Stage
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%v: need %s, have %s", ErrStage, e.Need, e.Have)
}

func (e *StageError) Unwrap() error { return ErrStage }
