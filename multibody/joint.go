package multibody

import (
	"fmt"
	"math"

	"github.com/notargets/gombd/spatial"
)

// JointType tags the kinematic strategy of a body's inboard joint.
type JointType uint8

const (
	Ground JointType = iota
	Torsion
	Universal
	Orientation
	Cartesian
	FreeLine
	Free
	Sliding
	Cylinder
	Planar
	Gimbal
	Weld
)

func (t JointType) String() string {
	switch t {
	case Ground:
		return "ground"
	case Torsion:
		return "torsion"
	case Universal:
		return "universal"
	case Orientation:
		return "orientation"
	case Cartesian:
		return "cartesian"
	case FreeLine:
		return "freeline"
	case Free:
		return "free"
	case Sliding:
		return "sliding"
	case Cylinder:
		return "cylinder"
	case Planar:
		return "planar"
	case Gimbal:
		return "gimbal"
	case Weld:
		return "weld"
	}
	return "unknown"
}

// HMat is the joint transition operator: one spatial row per generalized
// speed, mapping u to the cross-joint contribution to spatial velocity,
// expressed in ground-aligned axes.
type HMat struct {
	Rows []spatial.SpatialVec
}

func (h HMat) DOF() int { return len(h.Rows) }

// MulVec is H*s, reducing a spatial vector to a u-parallel slice.
func (h HMat) MulVec(s spatial.SpatialVec) (r []float64) {
	r = make([]float64, len(h.Rows))
	for i, row := range h.Rows {
		r[i] = row.Dot(s)
	}
	return
}

// TransMulSlice is ~H*u, composing a spatial vector from generalized speeds.
func (h HMat) TransMulSlice(u []float64) (s spatial.SpatialVec) {
	for i, row := range h.Rows {
		s = s.Add(row.Scale(u[i]))
	}
	return
}

// mobilizer is the joint kinematic strategy. All slice arguments are the
// node's own windows into the q- or u-parallel arrays (maxNQ and dof wide
// respectively). Routines must be called in declaration order within a
// configuration pass: sinCosQNorm first, then acrossJointTransform, then
// transitionMatrix once the body transforms exist.
type mobilizer interface {
	dof() int
	maxNQ() int
	nq(useEuler bool) int

	sinCosQNorm(useEuler bool, q, sine, cosine, qnorm []float64)
	acrossJointTransform(useEuler bool, q []float64) spatial.Transform
	transitionMatrix(xPJb, xBJ, xGP, xGB spatial.Transform) HMat

	calcQDot(useEuler bool, q []float64, xJbJ spatial.Transform, u, qdot []float64)
	calcQDotDot(useEuler bool, q []float64, xJbJ spatial.Transform, u, udot, qdotdot []float64)

	// enforceQuaternion renormalizes a quaternion block in place and reports
	// whether q changed. Euler and non-rotational joints return false.
	enforceQuaternion(useEuler bool, q []float64) bool

	defaultConfig(useEuler bool, q []float64)
}

// configSettable joints can pose themselves from an across-joint transform
// and spatial velocity.
type configSettable interface {
	setConfigFromTransform(useEuler bool, x spatial.Transform, q []float64)
	setVelocityFromSpatial(v spatial.SpatialVec, u []float64)
}

// Shared helpers.

// jbFrameInGround is the parent attachment frame re-expressed in ground.
func jbFrameInGround(xPJb, xGP spatial.Transform) spatial.Rotation {
	return xGP.R.Mul(xPJb.R)
}

// jointToBodyInGround is the vector from the joint frame origin to the body
// origin, expressed in ground.
func jointToBodyInGround(xBJ, xGB spatial.Transform) spatial.Vec3 {
	return xGB.R.MulVec(xBJ.T).Neg()
}

func rotationRow(axis, t spatial.Vec3) spatial.SpatialVec {
	return spatial.SpatialVec{Ang: axis, Lin: axis.Cross(t)}
}

func translationRow(axis spatial.Vec3) spatial.SpatialVec {
	return spatial.SpatialVec{Lin: axis}
}

func copySlice(dst, src []float64) {
	for i := range src {
		dst[i] = src[i]
	}
}

func zeroSlice(s []float64) {
	for i := range s {
		s[i] = 0
	}
}

// normalizeQuatInPlace renormalizes the leading quaternion block of q and
// reports whether it changed. A block already unit to within roundoff is
// left alone, so repeated enforcement is idempotent.
func normalizeQuatInPlace(q []float64) bool {
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if math.Abs(n-1) <= 1.e-12 {
		return false
	}
	for i := 0; i < 4; i++ {
		q[i] /= n
	}
	return true
}

//
// Ground. The immobile frame; no coordinates, no speeds.
//

type groundJoint struct{}

func (groundJoint) dof() int        { return 0 }
func (groundJoint) maxNQ() int      { return 0 }
func (groundJoint) nq(bool) int     { return 0 }
func (groundJoint) sinCosQNorm(bool, []float64, []float64, []float64, []float64) {
}
func (groundJoint) acrossJointTransform(bool, []float64) spatial.Transform {
	return spatial.IdentityTransform()
}
func (groundJoint) transitionMatrix(_, _, _, _ spatial.Transform) HMat { return HMat{} }
func (groundJoint) calcQDot(bool, []float64, spatial.Transform, []float64, []float64) {
}
func (groundJoint) calcQDotDot(bool, []float64, spatial.Transform, []float64, []float64, []float64) {
}
func (groundJoint) enforceQuaternion(bool, []float64) bool { return false }
func (groundJoint) defaultConfig(bool, []float64)          {}

//
// Torsion (pin): one rotational freedom about the z axis of the parent's
// attachment frame, which stays aligned with the joint frame z forever.
//

type torsionJoint struct{}

func (torsionJoint) dof() int    { return 1 }
func (torsionJoint) maxNQ() int  { return 1 }
func (torsionJoint) nq(bool) int { return 1 }

func (torsionJoint) sinCosQNorm(_ bool, q, sine, cosine, _ []float64) {
	sine[0] = math.Sin(q[0])
	cosine[0] = math.Cos(q[0])
}

func (torsionJoint) acrossJointTransform(_ bool, q []float64) spatial.Transform {
	return spatial.Transform{R: spatial.AboutZ(q[0])}
}

func (torsionJoint) transitionMatrix(xPJb, xBJ, xGP, xGB spatial.Transform) HMat {
	// The joint z axis is the same in J and Jb since that is the axis we
	// rotate about.
	z := xGP.R.MulVec(xPJb.R.Az())
	t := jointToBodyInGround(xBJ, xGB)
	return HMat{Rows: []spatial.SpatialVec{rotationRow(z, t)}}
}

func (torsionJoint) calcQDot(_ bool, _ []float64, _ spatial.Transform, u, qdot []float64) {
	copySlice(qdot, u)
}

func (torsionJoint) calcQDotDot(_ bool, _ []float64, _ spatial.Transform, _, udot, qdotdot []float64) {
	copySlice(qdotdot, udot)
}

func (torsionJoint) enforceQuaternion(bool, []float64) bool { return false }
func (torsionJoint) defaultConfig(_ bool, q []float64)      { zeroSlice(q) }

//
// Sliding: one translational freedom along the z axis of the parent's
// attachment frame.
//

type slidingJoint struct{}

func (slidingJoint) dof() int    { return 1 }
func (slidingJoint) maxNQ() int  { return 1 }
func (slidingJoint) nq(bool) int { return 1 }

func (slidingJoint) sinCosQNorm(bool, []float64, []float64, []float64, []float64) {
}

func (slidingJoint) acrossJointTransform(_ bool, q []float64) spatial.Transform {
	return spatial.Transform{R: spatial.IdentityRotation(), T: spatial.Vec3{0, 0, q[0]}}
}

func (slidingJoint) transitionMatrix(xPJb, _, xGP, _ spatial.Transform) HMat {
	z := xGP.R.MulVec(xPJb.R.Az())
	return HMat{Rows: []spatial.SpatialVec{translationRow(z)}}
}

func (slidingJoint) calcQDot(_ bool, _ []float64, _ spatial.Transform, u, qdot []float64) {
	copySlice(qdot, u)
}

func (slidingJoint) calcQDotDot(_ bool, _ []float64, _ spatial.Transform, _, udot, qdotdot []float64) {
	copySlice(qdotdot, udot)
}

func (slidingJoint) enforceQuaternion(bool, []float64) bool { return false }
func (slidingJoint) defaultConfig(_ bool, q []float64)      { zeroSlice(q) }

//
// Universal: rotation about the two axes perpendicular to the attachment
// frame z, suitable for diatoms and torsion+bend chains. Space-fixed 1-2
// coordinates.
//

type universalJoint struct{}

func (universalJoint) dof() int    { return 2 }
func (universalJoint) maxNQ() int  { return 2 }
func (universalJoint) nq(bool) int { return 2 }

func (universalJoint) sinCosQNorm(_ bool, q, sine, cosine, _ []float64) {
	for i := 0; i < 2; i++ {
		sine[i] = math.Sin(q[i])
		cosine[i] = math.Cos(q[i])
	}
}

func (universalJoint) acrossJointTransform(_ bool, q []float64) spatial.Transform {
	return spatial.Transform{R: spatial.SpaceFixed12(q[0], q[1])}
}

func (universalJoint) transitionMatrix(xPJb, xBJ, xGP, xGB spatial.Transform) HMat {
	// The coordinates are space fixed, so the attachment frame axes in
	// ground give their instantaneous spatial meaning.
	rGJb := jbFrameInGround(xPJb, xGP)
	t := jointToBodyInGround(xBJ, xGB)
	return HMat{Rows: []spatial.SpatialVec{
		rotationRow(rGJb.Ax(), t),
		rotationRow(rGJb.Ay(), t),
	}}
}

func (universalJoint) calcQDot(_ bool, _ []float64, _ spatial.Transform, u, qdot []float64) {
	copySlice(qdot, u)
}

func (universalJoint) calcQDotDot(_ bool, _ []float64, _ spatial.Transform, _, udot, qdotdot []float64) {
	copySlice(qdotdot, udot)
}

func (universalJoint) enforceQuaternion(bool, []float64) bool { return false }
func (universalJoint) defaultConfig(_ bool, q []float64)      { zeroSlice(q) }

//
// Cartesian: three translational freedoms along the attachment frame axes,
// orientation frozen.
//

type cartesianJoint struct{}

func (cartesianJoint) dof() int    { return 3 }
func (cartesianJoint) maxNQ() int  { return 3 }
func (cartesianJoint) nq(bool) int { return 3 }

func (cartesianJoint) sinCosQNorm(bool, []float64, []float64, []float64, []float64) {
}

func (cartesianJoint) acrossJointTransform(_ bool, q []float64) spatial.Transform {
	return spatial.Transform{
		R: spatial.IdentityRotation(),
		T: spatial.Vec3{q[0], q[1], q[2]},
	}
}

func (cartesianJoint) transitionMatrix(xPJb, _, xGP, _ spatial.Transform) HMat {
	rGJb := jbFrameInGround(xPJb, xGP)
	return HMat{Rows: []spatial.SpatialVec{
		translationRow(rGJb.Ax()),
		translationRow(rGJb.Ay()),
		translationRow(rGJb.Az()),
	}}
}

func (cartesianJoint) calcQDot(_ bool, _ []float64, _ spatial.Transform, u, qdot []float64) {
	copySlice(qdot, u)
}

func (cartesianJoint) calcQDotDot(_ bool, _ []float64, _ spatial.Transform, _, udot, qdotdot []float64) {
	copySlice(qdotdot, udot)
}

func (cartesianJoint) enforceQuaternion(bool, []float64) bool { return false }
func (cartesianJoint) defaultConfig(_ bool, q []float64)      { zeroSlice(q) }

func (cartesianJoint) setConfigFromTransform(_ bool, x spatial.Transform, q []float64) {
	q[0], q[1], q[2] = x.T[0], x.T[1], x.T[2]
}

func (cartesianJoint) setVelocityFromSpatial(v spatial.SpatialVec, u []float64) {
	u[0], u[1], u[2] = v.Lin[0], v.Lin[1], v.Lin[2]
}

//
// Orientation (ball): unrestricted rotation. The generalized speeds are the
// cross-joint angular velocity in the attachment frame; the coordinates are
// either a quaternion (4 slots) or a body-fixed 1-2-3 Euler triple.
//

type orientationJoint struct{}

func (orientationJoint) dof() int   { return 3 }
func (orientationJoint) maxNQ() int { return 4 }
func (orientationJoint) nq(useEuler bool) int {
	if useEuler {
		return 3
	}
	return 4
}

func (orientationJoint) sinCosQNorm(useEuler bool, q, sine, cosine, qnorm []float64) {
	if useEuler {
		for i := 0; i < 3; i++ {
			sine[i] = math.Sin(q[i])
			cosine[i] = math.Cos(q[i])
		}
		return
	}
	quat := spatial.Quaternion{q[0], q[1], q[2], q[3]}.Normalize()
	copySlice(qnorm, quat[:])
}

func (orientationJoint) acrossJointTransform(useEuler bool, q []float64) spatial.Transform {
	if useEuler {
		return spatial.Transform{R: spatial.BodyFixed123(spatial.Vec3{q[0], q[1], q[2]})}
	}
	// Scale-invariant conversion accepts the unnormalized state value.
	return spatial.Transform{R: spatial.Quaternion{q[0], q[1], q[2], q[3]}.Rotation()}
}

func (orientationJoint) transitionMatrix(xPJb, xBJ, xGP, xGB spatial.Transform) HMat {
	rGJb := jbFrameInGround(xPJb, xGP)
	t := jointToBodyInGround(xBJ, xGB)
	return HMat{Rows: []spatial.SpatialVec{
		rotationRow(rGJb.Ax(), t),
		rotationRow(rGJb.Ay(), t),
		rotationRow(rGJb.Az(), t),
	}}
}

func (orientationJoint) calcQDot(useEuler bool, q []float64, xJbJ spatial.Transform, u, qdot []float64) {
	w := spatial.Vec3{u[0], u[1], u[2]} // angular velocity of J in Jb
	if useEuler {
		zeroSlice(qdot) // clear the unused quaternion slot
		wB := xJbJ.R.Transpose().MulVec(w)
		qd := spatial.Euler123DotFromBodyAngVel(spatial.Vec3{q[0], q[1], q[2]}, wB)
		copySlice(qdot[:3], qd[:])
		return
	}
	qd := spatial.QuatDotFromAngVel(spatial.Quaternion{q[0], q[1], q[2], q[3]}, w)
	copySlice(qdot, qd[:])
}

func (orientationJoint) calcQDotDot(useEuler bool, q []float64, xJbJ spatial.Transform, u, udot, qdotdot []float64) {
	w := spatial.Vec3{u[0], u[1], u[2]}
	wdot := spatial.Vec3{udot[0], udot[1], udot[2]}
	if useEuler {
		zeroSlice(qdotdot)
		rt := xJbJ.R.Transpose()
		qdd := spatial.Euler123DotDotFromBodyAngVel(
			spatial.Vec3{q[0], q[1], q[2]}, rt.MulVec(w), rt.MulVec(wdot))
		copySlice(qdotdot[:3], qdd[:])
		return
	}
	qdd := spatial.QuatDotDotFromAngVel(spatial.Quaternion{q[0], q[1], q[2], q[3]}, w, wdot)
	copySlice(qdotdot, qdd[:])
}

func (orientationJoint) enforceQuaternion(useEuler bool, q []float64) bool {
	if useEuler {
		return false
	}
	return normalizeQuatInPlace(q)
}

func (orientationJoint) defaultConfig(useEuler bool, q []float64) {
	zeroSlice(q)
	if !useEuler {
		q[0] = 1 // identity quaternion
	}
}

func (orientationJoint) setConfigFromTransform(useEuler bool, x spatial.Transform, q []float64) {
	if useEuler {
		return // TODO: invert the body-fixed 1-2-3 sequence
	}
	quat := spatial.QuaternionFromRotation(x.R)
	copySlice(q[:4], quat[:])
}

func (orientationJoint) setVelocityFromSpatial(v spatial.SpatialVec, u []float64) {
	// relative angular velocity is always the generalized speed set
	u[0], u[1], u[2] = v.Ang[0], v.Ang[1], v.Ang[2]
}

//
// FreeLine (diatom): the free joint of a body with no inertia about one
// axis. Two space-fixed rotations plus full translation; the rotations do
// not affect the translations.
//

type freeLineJoint struct{}

func (freeLineJoint) dof() int    { return 5 }
func (freeLineJoint) maxNQ() int  { return 5 }
func (freeLineJoint) nq(bool) int { return 5 }

func (freeLineJoint) sinCosQNorm(_ bool, q, sine, cosine, _ []float64) {
	for i := 0; i < 2; i++ {
		sine[i] = math.Sin(q[i])
		cosine[i] = math.Cos(q[i])
	}
}

func (freeLineJoint) acrossJointTransform(_ bool, q []float64) spatial.Transform {
	return spatial.Transform{
		R: spatial.SpaceFixed12(q[0], q[1]),
		T: spatial.Vec3{q[2], q[3], q[4]},
	}
}

func (freeLineJoint) transitionMatrix(xPJb, xBJ, xGP, xGB spatial.Transform) HMat {
	rGJb := jbFrameInGround(xPJb, xGP)
	t := jointToBodyInGround(xBJ, xGB)
	return HMat{Rows: []spatial.SpatialVec{
		rotationRow(rGJb.Ax(), t),
		rotationRow(rGJb.Ay(), t),
		translationRow(rGJb.Ax()),
		translationRow(rGJb.Ay()),
		translationRow(rGJb.Az()),
	}}
}

func (freeLineJoint) calcQDot(_ bool, _ []float64, _ spatial.Transform, u, qdot []float64) {
	copySlice(qdot, u)
}

func (freeLineJoint) calcQDotDot(_ bool, _ []float64, _ spatial.Transform, _, udot, qdotdot []float64) {
	copySlice(qdotdot, udot)
}

func (freeLineJoint) enforceQuaternion(bool, []float64) bool { return false }
func (freeLineJoint) defaultConfig(_ bool, q []float64)      { zeroSlice(q) }

//
// Free: six freedoms; rotation as the orientation joint, translation as the
// cartesian joint. Quaternion mode stores (quat, translation) in 7 slots,
// Euler mode (angles, translation) in the first 6.
//

type freeJoint struct{}

func (freeJoint) dof() int   { return 6 }
func (freeJoint) maxNQ() int { return 7 }
func (freeJoint) nq(useEuler bool) int {
	if useEuler {
		return 6
	}
	return 7
}

func (freeJoint) sinCosQNorm(useEuler bool, q, sine, cosine, qnorm []float64) {
	if useEuler {
		for i := 0; i < 3; i++ {
			sine[i] = math.Sin(q[i])
			cosine[i] = math.Cos(q[i])
		}
		return
	}
	quat := spatial.Quaternion{q[0], q[1], q[2], q[3]}.Normalize()
	copySlice(qnorm[:4], quat[:])
}

func (freeJoint) acrossJointTransform(useEuler bool, q []float64) spatial.Transform {
	if useEuler {
		return spatial.Transform{
			R: spatial.BodyFixed123(spatial.Vec3{q[0], q[1], q[2]}),
			T: spatial.Vec3{q[3], q[4], q[5]},
		}
	}
	return spatial.Transform{
		R: spatial.Quaternion{q[0], q[1], q[2], q[3]}.Rotation(),
		T: spatial.Vec3{q[4], q[5], q[6]},
	}
}

func (freeJoint) transitionMatrix(xPJb, xBJ, xGP, xGB spatial.Transform) HMat {
	rGJb := jbFrameInGround(xPJb, xGP)
	t := jointToBodyInGround(xBJ, xGB)
	return HMat{Rows: []spatial.SpatialVec{
		rotationRow(rGJb.Ax(), t),
		rotationRow(rGJb.Ay(), t),
		rotationRow(rGJb.Az(), t),
		translationRow(rGJb.Ax()),
		translationRow(rGJb.Ay()),
		translationRow(rGJb.Az()),
	}}
}

func (freeJoint) calcQDot(useEuler bool, q []float64, xJbJ spatial.Transform, u, qdot []float64) {
	w := spatial.Vec3{u[0], u[1], u[2]}
	v := spatial.Vec3{u[3], u[4], u[5]}
	if useEuler {
		zeroSlice(qdot)
		wB := xJbJ.R.Transpose().MulVec(w)
		qd := spatial.Euler123DotFromBodyAngVel(spatial.Vec3{q[0], q[1], q[2]}, wB)
		copySlice(qdot[:3], qd[:])
		copySlice(qdot[3:6], v[:])
		return
	}
	qd := spatial.QuatDotFromAngVel(spatial.Quaternion{q[0], q[1], q[2], q[3]}, w)
	copySlice(qdot[:4], qd[:])
	copySlice(qdot[4:7], v[:])
}

func (freeJoint) calcQDotDot(useEuler bool, q []float64, xJbJ spatial.Transform, u, udot, qdotdot []float64) {
	w := spatial.Vec3{u[0], u[1], u[2]}
	wdot := spatial.Vec3{udot[0], udot[1], udot[2]}
	vdot := spatial.Vec3{udot[3], udot[4], udot[5]}
	if useEuler {
		zeroSlice(qdotdot)
		rt := xJbJ.R.Transpose()
		qdd := spatial.Euler123DotDotFromBodyAngVel(
			spatial.Vec3{q[0], q[1], q[2]}, rt.MulVec(w), rt.MulVec(wdot))
		copySlice(qdotdot[:3], qdd[:])
		copySlice(qdotdot[3:6], vdot[:])
		return
	}
	qdd := spatial.QuatDotDotFromAngVel(spatial.Quaternion{q[0], q[1], q[2], q[3]}, w, wdot)
	copySlice(qdotdot[:4], qdd[:])
	copySlice(qdotdot[4:7], vdot[:])
}

func (freeJoint) enforceQuaternion(useEuler bool, q []float64) bool {
	if useEuler {
		return false
	}
	return normalizeQuatInPlace(q)
}

func (freeJoint) defaultConfig(useEuler bool, q []float64) {
	zeroSlice(q)
	if !useEuler {
		q[0] = 1
	}
}

func (freeJoint) setConfigFromTransform(useEuler bool, x spatial.Transform, q []float64) {
	if useEuler {
		// TODO: invert the body-fixed 1-2-3 sequence for the angles
		q[3], q[4], q[5] = x.T[0], x.T[1], x.T[2]
		return
	}
	quat := spatial.QuaternionFromRotation(x.R)
	copySlice(q[:4], quat[:])
	q[4], q[5], q[6] = x.T[0], x.T[1], x.T[2]
}

func (freeJoint) setVelocityFromSpatial(v spatial.SpatialVec, u []float64) {
	u[0], u[1], u[2] = v.Ang[0], v.Ang[1], v.Ang[2]
	u[3], u[4], u[5] = v.Lin[0], v.Lin[1], v.Lin[2]
}

// newMobilizer dispatches the joint type tag once, at construction.
func newMobilizer(t JointType) (mobilizer, error) {
	switch t {
	case Ground:
		return groundJoint{}, nil
	case Torsion:
		return torsionJoint{}, nil
	case Universal:
		return universalJoint{}, nil
	case Orientation:
		return orientationJoint{}, nil
	case Cartesian:
		return cartesianJoint{}, nil
	case FreeLine:
		return freeLineJoint{}, nil
	case Free:
		return freeJoint{}, nil
	case Sliding:
		return slidingJoint{}, nil
	default:
		// cylinder, planar, gimbal, weld and anything newer
		return nil, fmt.Errorf("%w: %v", ErrUnknownJointType, t)
	}
}
