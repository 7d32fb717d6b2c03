package multibody

import (
	"fmt"

	"github.com/notargets/gombd/spatial"
)

// MassProperties are a body's mass, mass center and inertia tensor about
// the body origin, all in the body frame.
type MassProperties struct {
	Mass    float64
	COM     spatial.Vec3
	Inertia spatial.Mat33
}

// Node is one element of the multibody tree: a rigid body paired with its
// inboard joint. Most methods expect to be called in a particular order
// during traversal, either base to tip or tip to base.
type Node struct {
	massProps MassProperties
	xPJb      spatial.Transform // attachment frame Jb fixed in the parent
	xBJ       spatial.Transform // joint frame J fixed in the body

	jointType JointType
	mob       mobilizer

	nodeNum int
	level   int
	parent  *Node
	child   []*Node

	qIndex, uIndex, uSqIndex int
}

// createNode builds the joint-specific node for the given type tag and
// claims this node's windows in the coordinate, speed and speed-squared
// arrays, advancing the three counters.
func createNode(
	mp MassProperties,
	xPJb, xBJ spatial.Transform,
	jointType JointType,
	isReversed bool,
	nextUSlot, nextUSqSlot, nextQSlot *int,
) (*Node, error) {
	if isReversed {
		return nil, fmt.Errorf("%w: %v", ErrReversedJoint, jointType)
	}
	mob, err := newMobilizer(jointType)
	if err != nil {
		return nil, err
	}
	n := &Node{
		massProps: mp,
		xPJb:      xPJb,
		xBJ:       xBJ,
		jointType: jointType,
		mob:       mob,
		qIndex:    *nextQSlot,
		uIndex:    *nextUSlot,
		uSqIndex:  *nextUSqSlot,
	}
	dof := mob.dof()
	*nextUSlot += dof
	*nextUSqSlot += dof * dof
	*nextQSlot += mob.maxNQ()
	return n, nil
}

func (n *Node) addChild(c *Node) {
	n.child = append(n.child, c)
}

func (n *Node) NodeNum() int         { return n.nodeNum }
func (n *Node) Level() int           { return n.level }
func (n *Node) JointType() JointType { return n.jointType }
func (n *Node) DOF() int             { return n.mob.dof() }
func (n *Node) MaxNQ() int           { return n.mob.maxNQ() }
func (n *Node) QIndex() int          { return n.qIndex }
func (n *Node) UIndex() int          { return n.uIndex }
func (n *Node) USqIndex() int        { return n.uSqIndex }
func (n *Node) Mass() float64        { return n.massProps.Mass }

// NQ is the active coordinate count, which shrinks to dof when a
// quaternion-capable joint runs in Euler mode.
func (n *Node) NQ(vars ModelVars) int { return n.mob.nq(vars.UseEulerAngles) }

func (n *Node) isGround() bool { return n.nodeNum == 0 }

// Windows into q-parallel and u-parallel arrays.
func (n *Node) qSlice(q []float64) []float64 { return q[n.qIndex : n.qIndex+n.mob.maxNQ()] }
func (n *Node) uSlice(u []float64) []float64 { return u[n.uIndex : n.uIndex+n.mob.dof()] }

// SetQ copies this node's coordinates from a q-parallel source array.
func (n *Node) SetQ(vars ModelVars, qIn, q []float64) {
	copySlice(n.qSlice(q)[:n.NQ(vars)], n.qSlice(qIn)[:n.NQ(vars)])
}

// SetU copies this node's speeds from a u-parallel source array.
func (n *Node) SetU(uIn, u []float64) {
	copySlice(n.uSlice(u), n.uSlice(uIn))
}

// SetDefaults writes the joint's identity configuration (zero translation,
// zero angles or identity quaternion) and zero speeds.
func (n *Node) SetDefaults(vars ModelVars, q, u []float64) {
	n.mob.defaultConfig(vars.UseEulerAngles, n.qSlice(q))
	zeroSlice(n.uSlice(u))
}

// SetMobilizerConfiguration poses the joint from a desired across-joint
// transform, for joints that support it.
func (n *Node) SetMobilizerConfiguration(vars ModelVars, x spatial.Transform, q []float64) error {
	cs, ok := n.mob.(configSettable)
	if !ok {
		return fmt.Errorf("%w: set configuration on %v joint", ErrNotImplemented, n.jointType)
	}
	cs.setConfigFromTransform(vars.UseEulerAngles, x, n.qSlice(q))
	return nil
}

// SetMobilizerVelocity poses the joint speeds from a desired across-joint
// spatial velocity, for joints that support it.
func (n *Node) SetMobilizerVelocity(v spatial.SpatialVec, u []float64) error {
	cs, ok := n.mob.(configSettable)
	if !ok {
		return fmt.Errorf("%w: set velocity on %v joint", ErrNotImplemented, n.jointType)
	}
	cs.setVelocityFromSpatial(v, n.uSlice(u))
	return nil
}

// EnforceQuaternionConstraints renormalizes this node's quaternion block if
// it has one; reports whether q changed.
func (n *Node) EnforceQuaternionConstraints(vars ModelVars, q []float64) bool {
	return n.mob.enforceQuaternion(vars.UseEulerAngles, n.qSlice(q))
}

// InternalForce extracts the per-dof hinge force resolved by the last
// reaction pass. Decomposing a ball or free joint's cross-joint torque into
// Euler gimbal torques is not implemented and fails explicitly.
func (n *Node) InternalForce(vars ModelVars, rc *ReactionCache) ([]float64, error) {
	if vars.UseEulerAngles && (n.jointType == Orientation || n.jointType == Free) {
		return nil, fmt.Errorf("%w: gimbal torque decomposition for %v joint", ErrNotImplemented, n.jointType)
	}
	return n.uSlice(rc.Epsilon), nil
}

// realizeConfiguration runs the joint-specific and joint-independent
// position kinematics for this node. Base to tip: the parent's ground
// transform must already be valid.
func (n *Node) realizeConfiguration(vars ModelVars, q []float64, cc *ConfigCache) {
	i := n.nodeNum
	if n.isGround() {
		cc.XJbJ[0] = spatial.IdentityTransform()
		cc.XPB[0] = spatial.IdentityTransform()
		cc.XGB[0] = spatial.IdentityTransform()
		cc.H[0] = HMat{}
		cc.Phi[0] = spatial.NewPhiMat(spatial.Vec3{})
		return
	}
	qs := n.qSlice(q)
	n.mob.sinCosQNorm(vars.UseEulerAngles, qs,
		n.qSlice(cc.SinQ), n.qSlice(cc.CosQ), n.qSlice(cc.QNorm))
	cc.XJbJ[i] = n.mob.acrossJointTransform(vars.UseEulerAngles, qs)

	xGP := cc.XGB[n.parent.nodeNum]
	cc.XPB[i] = n.xPJb.Compose(cc.XJbJ[i]).Compose(n.xBJ.Invert())
	cc.XGB[i] = xGP.Compose(cc.XPB[i])

	cc.H[i] = n.mob.transitionMatrix(n.xPJb, n.xBJ, xGP, cc.XGB[i])
	n.calcJointIndependentKinematicsPos(cc)
}

// calcJointIndependentKinematicsPos computes the shift operator and the
// ground-aligned spatial mass properties. Depends on XPB and XGB.
func (n *Node) calcJointIndependentKinematicsPos(cc *ConfigCache) {
	i := n.nodeNum

	// Re-express the parent-to-child shift vector (OB-OP) in ground.
	xGP := cc.XGB[n.parent.nodeNum]
	tPBG := xGP.R.MulVec(cc.XPB[i].T)
	cc.Phi[i] = spatial.NewPhiMat(tPBG)

	cc.InertiaOBG[i] = n.massProps.Inertia.Reexpress(cc.XGB[i].R)
	cc.CBG[i] = cc.XGB[i].R.MulVec(n.massProps.COM)
	cc.COMG[i] = cc.XGB[i].T.Add(cc.CBG[i])

	// Mk is symmetric: the off-diagonal block is skew so its transpose is
	// its negation.
	offDiag := spatial.Skew(cc.CBG[i]).Scale(n.massProps.Mass)
	cc.Mk[i] = spatial.SpatialMat{
		{cc.InertiaOBG[i], offDiag},
		{offDiag.Scale(-1), spatial.Identity33().Scale(n.massProps.Mass)},
	}
}

// realizeMotion computes qdot, the cross-joint spatial velocity and the
// total spatial velocity. Base to tip.
func (n *Node) realizeMotion(vars ModelVars, q []float64, cc *ConfigCache, u []float64, mc *MotionCache, qdot []float64) {
	i := n.nodeNum
	if n.isGround() {
		mc.VPBG[0] = spatial.SpatialVec{}
		mc.VGB[0] = spatial.SpatialVec{}
		return
	}
	n.mob.calcQDot(vars.UseEulerAngles, n.qSlice(q), cc.XJbJ[i], n.uSlice(u), n.qSlice(qdot))
	mc.VPBG[i] = cc.H[i].TransMulSlice(n.uSlice(u))
	mc.VGB[i] = cc.Phi[i].TransMulVec(mc.VGB[n.parent.nodeNum]).Add(mc.VPBG[i])
}

// calcJointIndependentDynamicsVel computes the gyroscopic force, coriolis
// acceleration and centrifugal force. Needs spatial velocities and the
// articulated body inertia P; beyond that any order is fine.
func (n *Node) calcJointIndependentDynamicsVel(cc *ConfigCache, mc *MotionCache, dc *DynamicsCache) {
	i := n.nodeNum
	if n.isGround() {
		dc.GyroForce[0] = spatial.SpatialVec{}
		dc.CoriolisAccel[0] = spatial.SpatialVec{}
		dc.CentrifugalForce[0] = spatial.SpatialVec{}
		return
	}
	omega := mc.VGB[i].Ang
	vel := mc.VGB[i].Lin

	dc.GyroForce[i] = spatial.SpatialVec{
		Ang: omega.Cross(cc.InertiaOBG[i].MulVec(omega)),
		Lin: omega.Cross(omega.Cross(cc.CBG[i])).Scale(n.massProps.Mass),
	}

	// Coriolis acceleration per Jain, Vaidehi & Rodriguez: the parent's
	// omega acts on the velocity difference, this body's omega on the
	// cross-joint velocity. Schwieters & Clore use w_k in both; the terms
	// can only differ along H, which is constant across the joint.
	pOmega := mc.VGB[n.parent.nodeNum].Ang
	pVel := mc.VGB[n.parent.nodeNum].Lin
	dc.CoriolisAccel[i] = spatial.SpatialVec{
		Ang: omega.Cross(mc.VPBG[i].Ang),
		Lin: pOmega.Cross(vel.Sub(pVel)).Add(omega.Cross(mc.VPBG[i].Lin)),
	}

	dc.CentrifugalForce[i] = dc.P[i].MulVec(dc.CoriolisAccel[i]).Add(dc.GyroForce[i])
}

// calcKineticEnergy is 1/2 V*(Mk*V); available from the motion stage on.
func (n *Node) calcKineticEnergy(cc *ConfigCache, mc *MotionCache) float64 {
	if n.isGround() {
		return 0
	}
	i := n.nodeNum
	return 0.5 * mc.VGB[i].Dot(cc.Mk[i].MulVec(mc.VGB[i]))
}

func (n *Node) String() string {
	return fmt.Sprintf("node %d level=%d joint=%v dof=%d mass=%g qIndex=%d uIndex=%d",
		n.nodeNum, n.level, n.jointType, n.mob.dof(), n.massProps.Mass, n.qIndex, n.uIndex)
}
