package multibody

import (
	"github.com/notargets/gombd/spatial"
	"github.com/notargets/gombd/utils"
)

// Stage is the monotonic realization marker of a State. Each realize pass
// requires the previous stage and produces the next.
type Stage uint8

const (
	StageEmpty Stage = iota
	StageConfigured
	StageMoving
	StageDynamics
	StageReacting
)

func (s Stage) String() string {
	switch s {
	case StageEmpty:
		return "empty"
	case StageConfigured:
		return "configured"
	case StageMoving:
		return "moving"
	case StageDynamics:
		return "dynamics"
	case StageReacting:
		return "reacting"
	}
	return "unknown"
}

// ModelVars are the modeling choices fixed before any realization: the
// coordinate representation for ball and free joints and per-node
// prescribed-motion flags (ground is always prescribed).
type ModelVars struct {
	UseEulerAngles bool
	Prescribed     []bool
}

// ConfigCache holds everything derived from q alone. Slices prefixed per
// node number except the q-parallel trig/quaternion scratch.
type ConfigCache struct {
	SinQ, CosQ, QNorm []float64 // q-parallel scratch; non-angular slots are garbage

	XJbJ []spatial.Transform // across-joint transform
	XPB  []spatial.Transform // body in parent
	XGB  []spatial.Transform // body in ground

	H          []HMat
	Phi        []spatial.PhiMat
	InertiaOBG []spatial.Mat33 // inertia about body origin, ground aligned
	CBG        []spatial.Vec3  // body origin to mass center, ground aligned
	COMG       []spatial.Vec3  // mass center in ground
	Mk         []spatial.SpatialMat
}

// MotionCache holds everything additionally derived from u.
type MotionCache struct {
	VPBG []spatial.SpatialVec // cross-joint velocity, ground aligned
	VGB  []spatial.SpatialVec // total spatial velocity
}

// DynamicsCache holds the velocity-dependent force terms and the
// articulated-body quantities.
type DynamicsCache struct {
	GyroForce        []spatial.SpatialVec
	CoriolisAccel    []spatial.SpatialVec
	CentrifugalForce []spatial.SpatialVec

	P      []spatial.SpatialMat // articulated body inertia
	D      []utils.Matrix       // H*P*~H
	DI     []utils.Matrix
	G      [][]spatial.SpatialVec // P*~H*DI, one spatial column per dof
	TauBar []spatial.SpatialMat
	Psi    []spatial.SpatialMat
	Y      []spatial.SpatialMat // compliance, for the constraint consumer
}

// ReactionCache holds the force recursion results.
type ReactionCache struct {
	Z       []spatial.SpatialVec
	GEps    []spatial.SpatialVec
	AGB     []spatial.SpatialVec
	Epsilon []float64 // u-parallel net hinge forces
	Nu      []float64 // u-parallel, DI*Epsilon
}

// State carries the generalized coordinates and speeds together with the
// staged caches. Mutating an input variable drops the stage back to the
// highest level that did not consume it.
type State struct {
	Vars ModelVars

	Q, U []float64

	QDot    []float64 // written at motion stage
	UDot    []float64 // written at reaction stage
	QDotDot []float64 // written at reaction stage

	CC ConfigCache
	MC MotionCache
	DC DynamicsCache
	RC ReactionCache

	stage Stage
}

func (s *State) Stage() Stage { return s.stage }

func (s *State) requireStage(need Stage) error {
	if s.stage < need {
		return &StageError{Need: need, Have: s.stage}
	}
	return nil
}

// SetQ replaces the coordinates and invalidates everything.
func (s *State) SetQ(q []float64) {
	copySlice(s.Q, q)
	s.stage = StageEmpty
}

// SetU replaces the speeds; configuration remains valid.
func (s *State) SetU(u []float64) {
	copySlice(s.U, u)
	if s.stage > StageConfigured {
		s.stage = StageConfigured
	}
}

// InvalidateForces drops only the reaction stage; a change limited to
// forces need not re-trigger the position and velocity passes.
func (s *State) InvalidateForces() {
	if s.stage > StageDynamics {
		s.stage = StageDynamics
	}
}
