package multibody

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"github.com/notargets/gombd/spatial"
	"github.com/notargets/gombd/utils"
)

// Tree is the rooted, ordered multibody tree. Node 0 is always ground;
// every node's number exceeds its parent's, so walking in node-number order
// is base to tip and the reverse is tip to base. The tree owns its nodes
// and is immutable once states are created from it.
type Tree struct {
	nodes []*Node

	nextUSlot, nextUSqSlot, nextQSlot int
}

func NewTree() *Tree {
	t := &Tree{}
	ground, err := createNode(MassProperties{}, spatial.IdentityTransform(), spatial.IdentityTransform(),
		Ground, false, &t.nextUSlot, &t.nextUSqSlot, &t.nextQSlot)
	if err != nil {
		panic(err) // ground always constructs
	}
	t.nodes = append(t.nodes, ground)
	return t
}

// AddBody appends a body under the given parent and returns its node
// number. Parents must be added before children; slot windows in the
// coordinate, speed and speed-squared arrays are claimed here, before any
// kinematic routine can run.
func (t *Tree) AddBody(parent int, mp MassProperties, xPJb, xBJ spatial.Transform,
	jointType JointType, isReversed bool) (int, error) {

	if parent < 0 || parent >= len(t.nodes) {
		return 0, fmt.Errorf("multibody: parent %d not in tree (have %d nodes)", parent, len(t.nodes))
	}
	if jointType == Ground {
		return 0, fmt.Errorf("%w: ground is reserved for node 0", ErrUnknownJointType)
	}
	n, err := createNode(mp, xPJb, xBJ, jointType, isReversed,
		&t.nextUSlot, &t.nextUSqSlot, &t.nextQSlot)
	if err != nil {
		return 0, err
	}
	p := t.nodes[parent]
	n.nodeNum = len(t.nodes)
	n.level = p.level + 1
	n.parent = p
	p.addChild(n)
	t.nodes = append(t.nodes, n)
	return n.nodeNum, nil
}

func (t *Tree) NBodies() int     { return len(t.nodes) }
func (t *Tree) NQ() int          { return t.nextQSlot }
func (t *Tree) NU() int          { return t.nextUSlot }
func (t *Tree) NUSq() int        { return t.nextUSqSlot }
func (t *Tree) Node(i int) *Node { return t.nodes[i] }

// DefaultModelVars: ground's motion is prescribed to zero, everything else
// is free; quaternions by default.
func (t *Tree) DefaultModelVars() ModelVars {
	p := make([]bool, len(t.nodes))
	p[0] = true
	return ModelVars{UseEulerAngles: false, Prescribed: p}
}

// NewState allocates a state and its caches for this topology and fills in
// the default configuration (identity transforms, zero speeds).
func (t *Tree) NewState(vars ModelVars) *State {
	nb, nq, nu := t.NBodies(), t.NQ(), t.NU()
	s := &State{
		Vars:    vars,
		Q:       make([]float64, nq),
		U:       make([]float64, nu),
		QDot:    make([]float64, nq),
		UDot:    make([]float64, nu),
		QDotDot: make([]float64, nq),
		CC: ConfigCache{
			SinQ: make([]float64, nq), CosQ: make([]float64, nq), QNorm: make([]float64, nq),
			XJbJ: make([]spatial.Transform, nb),
			XPB:  make([]spatial.Transform, nb),
			XGB:  make([]spatial.Transform, nb),
			H:    make([]HMat, nb),
			Phi:  make([]spatial.PhiMat, nb),
			InertiaOBG: make([]spatial.Mat33, nb),
			CBG:  make([]spatial.Vec3, nb),
			COMG: make([]spatial.Vec3, nb),
			Mk:   make([]spatial.SpatialMat, nb),
		},
		MC: MotionCache{
			VPBG: make([]spatial.SpatialVec, nb),
			VGB:  make([]spatial.SpatialVec, nb),
		},
		DC: DynamicsCache{
			GyroForce:        make([]spatial.SpatialVec, nb),
			CoriolisAccel:    make([]spatial.SpatialVec, nb),
			CentrifugalForce: make([]spatial.SpatialVec, nb),
			P:      make([]spatial.SpatialMat, nb),
			D:      make([]utils.Matrix, nb),
			DI:     make([]utils.Matrix, nb),
			G:      make([][]spatial.SpatialVec, nb),
			TauBar: make([]spatial.SpatialMat, nb),
			Psi:    make([]spatial.SpatialMat, nb),
			Y:      make([]spatial.SpatialMat, nb),
		},
		RC: ReactionCache{
			Z:       make([]spatial.SpatialVec, nb),
			GEps:    make([]spatial.SpatialVec, nb),
			AGB:     make([]spatial.SpatialVec, nb),
			Epsilon: make([]float64, nu),
			Nu:      make([]float64, nu),
		},
	}
	for _, n := range t.nodes {
		n.SetDefaults(vars, s.Q, s.U)
	}
	return s
}

// RealizeConfiguration runs the position pass, base to tip.
func (t *Tree) RealizeConfiguration(s *State) error {
	for _, n := range t.nodes {
		n.realizeConfiguration(s.Vars, s.Q, &s.CC)
	}
	if s.stage < StageConfigured {
		s.stage = StageConfigured
	}
	return nil
}

// RealizeMotion runs the velocity pass, base to tip, writing s.QDot.
func (t *Tree) RealizeMotion(s *State) error {
	if err := s.requireStage(StageConfigured); err != nil {
		return err
	}
	for _, n := range t.nodes {
		n.realizeMotion(s.Vars, s.Q, &s.CC, s.U, &s.MC, s.QDot)
	}
	if s.stage < StageMoving {
		s.stage = StageMoving
	}
	return nil
}

// RealizeDynamics runs the articulated-body-inertia pass tip to base, the
// velocity-dependent force terms, and the compliance pass base to tip.
func (t *Tree) RealizeDynamics(s *State) error {
	if err := s.requireStage(StageMoving); err != nil {
		return err
	}
	for i := len(t.nodes) - 1; i >= 0; i-- {
		if err := t.nodes[i].calcArticulatedBodyInertiasInward(&s.CC, &s.DC); err != nil {
			return err
		}
	}
	for _, n := range t.nodes {
		n.calcJointIndependentDynamicsVel(&s.CC, &s.MC, &s.DC)
	}
	for _, n := range t.nodes {
		n.calcYOutward(&s.CC, &s.DC)
	}
	if s.stage < StageDynamics {
		s.stage = StageDynamics
	}
	return nil
}

// RealizeReaction resolves accelerations against the given applied
// generalized forces (u-parallel) and per-body spatial forces, writing
// s.UDot and s.QDotDot and the per-body spatial accelerations.
func (t *Tree) RealizeReaction(s *State, jointForces []float64, bodyForces []spatial.SpatialVec) error {
	if err := s.requireStage(StageDynamics); err != nil {
		return err
	}
	t.checkForceDims(jointForces, bodyForces)
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := t.nodes[i]
		n.calcZ(&s.CC, &s.DC, jointForces, bodyForces[i], &s.RC)
	}
	for _, n := range t.nodes {
		n.calcAccel(s.Vars, s.Q, &s.CC, s.U, &s.DC, &s.RC, s.UDot, s.QDotDot)
	}
	if s.stage < StageReacting {
		s.stage = StageReacting
	}
	return nil
}

// CalcUDot is the array-parametrized forward dynamics solve: same math as
// RealizeReaction but reading and writing caller-visible temporaries, so
// repeated solves over force sets reuse the realized dynamics stage and
// leave the reaction cache alone.
func (t *Tree) CalcUDot(s *State, jointForces []float64, bodyForces []spatial.SpatialVec) (udot []float64, aGB []spatial.SpatialVec, err error) {
	if err = s.requireStage(StageDynamics); err != nil {
		return
	}
	t.checkForceDims(jointForces, bodyForces)
	nb, nu := t.NBodies(), t.NU()
	allZ := make([]spatial.SpatialVec, nb)
	allGEps := make([]spatial.SpatialVec, nb)
	allEps := make([]float64, nu)
	udot = make([]float64, nu)
	aGB = make([]spatial.SpatialVec, nb)

	for i := nb - 1; i >= 0; i-- {
		t.nodes[i].calcUDotPass1Inward(&s.CC, &s.DC, jointForces, bodyForces, allZ, allGEps, allEps)
	}
	for _, n := range t.nodes {
		n.calcUDotPass2Outward(&s.CC, &s.DC, allEps, aGB, udot)
	}
	return
}

// CalcQDotDot converts generalized accelerations to coordinate second
// derivatives through each joint's rule.
func (t *Tree) CalcQDotDot(s *State, udot []float64) (qdotdot []float64, err error) {
	if err = s.requireStage(StageConfigured); err != nil {
		return
	}
	qdotdot = make([]float64, t.NQ())
	for _, n := range t.nodes {
		if n.isGround() {
			continue
		}
		n.mob.calcQDotDot(s.Vars.UseEulerAngles, n.qSlice(s.Q), s.CC.XJbJ[n.nodeNum],
			n.uSlice(s.U), n.uSlice(udot), n.qSlice(qdotdot))
	}
	return
}

// CalcEquivalentJointForces runs pure inverse dynamics: the generalized
// joint forces equivalent to the given per-body spatial forces. Needs only
// the configuration stage.
func (t *Tree) CalcEquivalentJointForces(s *State, bodyForces []spatial.SpatialVec) (jointForces []float64, err error) {
	if err = s.requireStage(StageConfigured); err != nil {
		return
	}
	nb := t.NBodies()
	if len(bodyForces) != nb {
		panic(fmt.Errorf("multibody: bodyForces length %d, want %d", len(bodyForces), nb))
	}
	allZ := make([]spatial.SpatialVec, nb)
	jointForces = make([]float64, t.NU())
	for i := nb - 1; i >= 0; i-- {
		t.nodes[i].calcEquivalentJointForces(&s.CC, bodyForces, allZ, jointForces)
	}
	return
}

// CalcInternalGradientFromSpatial projects a per-body spatial quantity onto
// generalized-coordinate space, JX = ~J*X. Needs only the configuration
// stage.
func (t *Tree) CalcInternalGradientFromSpatial(s *State, x []spatial.SpatialVec) (jx []float64, err error) {
	if err = s.requireStage(StageConfigured); err != nil {
		return
	}
	nb := t.NBodies()
	if len(x) != nb {
		panic(fmt.Errorf("multibody: spatial input length %d, want %d", len(x), nb))
	}
	zTmp := make([]spatial.SpatialVec, nb)
	jx = make([]float64, t.NU())
	for i := nb - 1; i >= 0; i-- {
		t.nodes[i].calcInternalGradientFromSpatial(&s.CC, zTmp, x, jx)
	}
	return
}

// CalcKineticEnergy sums 1/2 V*(Mk*V) over the bodies; ground contributes
// exactly zero.
func (t *Tree) CalcKineticEnergy(s *State) (ke float64, err error) {
	if err = s.requireStage(StageMoving); err != nil {
		return
	}
	for _, n := range t.nodes {
		ke += n.calcKineticEnergy(&s.CC, &s.MC)
	}
	return
}

// SetVelFromSVel back-solves one body's generalized speeds from a desired
// total spatial velocity using the realized parent velocities, then drops
// the state back to the configured stage.
func (t *Tree) SetVelFromSVel(s *State, body int, sVel spatial.SpatialVec) error {
	if err := s.requireStage(StageMoving); err != nil {
		return err
	}
	t.nodes[body].setVelFromSVel(&s.CC, &s.MC, sVel, s.U)
	s.stage = StageConfigured
	return nil
}

// EnforceQuaternionConstraints renormalizes every quaternion block in q and
// reports whether anything changed; a change invalidates the state.
func (t *Tree) EnforceQuaternionConstraints(s *State) (changed bool) {
	for _, n := range t.nodes {
		if n.EnforceQuaternionConstraints(s.Vars, s.Q) {
			changed = true
		}
	}
	if changed {
		s.stage = StageEmpty
	}
	return
}

// PackedTransitionMatrix assembles the system transition operator, one
// dof x 6 block of H per body at rows uIndex and columns 6*nodeNum, as a
// compressed sparse matrix for downstream constraint consumers.
func (t *Tree) PackedTransitionMatrix(s *State) (*sparse.CSR, error) {
	if err := s.requireStage(StageConfigured); err != nil {
		return nil, err
	}
	dok := utils.NewDOK(t.NU(), 6*t.NBodies())
	for _, n := range t.nodes {
		h := s.CC.H[n.nodeNum]
		for r, row := range h.Rows {
			for c := 0; c < 3; c++ {
				if row.Ang[c] != 0 {
					dok.Set(n.uIndex+r, 6*n.nodeNum+c, row.Ang[c])
				}
				if row.Lin[c] != 0 {
					dok.Set(n.uIndex+r, 6*n.nodeNum+3+c, row.Lin[c])
				}
			}
		}
	}
	return dok.ToCSR(), nil
}

// Query accessors; each requires the stage that produces the quantity.

func (t *Tree) BodyTransform(s *State, body int) (spatial.Transform, error) {
	if err := s.requireStage(StageConfigured); err != nil {
		return spatial.Transform{}, err
	}
	return s.CC.XGB[body], nil
}

func (t *Tree) BodyVelocity(s *State, body int) (spatial.SpatialVec, error) {
	if err := s.requireStage(StageMoving); err != nil {
		return spatial.SpatialVec{}, err
	}
	return s.MC.VGB[body], nil
}

func (t *Tree) BodyAcceleration(s *State, body int) (spatial.SpatialVec, error) {
	if err := s.requireStage(StageReacting); err != nil {
		return spatial.SpatialVec{}, err
	}
	return s.RC.AGB[body], nil
}

// BodyNetForce is the net spatial force carried by the body at the last
// resolved accelerations, Mk*A + gyroscopic force. Feeding the full set
// back through CalcEquivalentJointForces recovers the applied joint forces.
func (t *Tree) BodyNetForce(s *State, body int) (spatial.SpatialVec, error) {
	if err := s.requireStage(StageReacting); err != nil {
		return spatial.SpatialVec{}, err
	}
	return s.CC.Mk[body].MulVec(s.RC.AGB[body]).Add(s.DC.GyroForce[body]), nil
}

func (t *Tree) Compliance(s *State, body int) (spatial.SpatialMat, error) {
	if err := s.requireStage(StageDynamics); err != nil {
		return spatial.SpatialMat{}, err
	}
	return s.DC.Y[body], nil
}

func (t *Tree) checkForceDims(jointForces []float64, bodyForces []spatial.SpatialVec) {
	if len(jointForces) != t.NU() || len(bodyForces) != t.NBodies() {
		panic(fmt.Errorf("multibody: force dims %d,%d want %d,%d",
			len(jointForces), len(bodyForces), t.NU(), t.NBodies()))
	}
}
