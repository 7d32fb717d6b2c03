package spatial

import "math"

// Rate conversions between generalized-speed angular velocities and the
// time derivatives of the coordinate representations used by ball and free
// joints. The quaternion forms take omega expressed in the parent frame;
// the Euler forms take omega expressed in the body frame.

// QuatDotFromAngVel returns qdot = 1/2 (0,w) * q for angular velocity w of
// the body in its parent, expressed in the parent frame. q need not be
// normalized.
func QuatDotFromAngVel(q Quaternion, w Vec3) Quaternion {
	return Quaternion{0, w[0], w[1], w[2]}.Mul(q).Scale(0.5)
}

// QuatDotDotFromAngVel returns the second derivative given w and wdot, both
// in the parent frame.
func QuatDotDotFromAngVel(q Quaternion, w, wdot Vec3) Quaternion {
	qdot := QuatDotFromAngVel(q, w)
	return Quaternion{0, wdot[0], wdot[1], wdot[2]}.Mul(q).
		Add(Quaternion{0, w[0], w[1], w[2]}.Mul(qdot)).Scale(0.5)
}

// Euler123DotFromBodyAngVel inverts w_B = N(q)*qdot for a body-fixed 1-2-3
// sequence. Singular at q[1] = +-pi/2 (gimbal lock); callers relying on
// Euler mode accept that.
func Euler123DotFromBodyAngVel(q, w Vec3) (qdot Vec3) {
	s2, c2 := math.Sin(q[1]), math.Cos(q[1])
	s3, c3 := math.Sin(q[2]), math.Cos(q[2])
	qdot[0] = (c3*w[0] - s3*w[1]) / c2
	qdot[1] = s3*w[0] + c3*w[1]
	qdot[2] = w[2] - s2*qdot[0]
	return
}

// Euler123DotDotFromBodyAngVel solves N*qdotdot = wdot - Ndot*qdot for the
// same sequence.
func Euler123DotDotFromBodyAngVel(q, w, wdot Vec3) (qdotdot Vec3) {
	s2, c2 := math.Sin(q[1]), math.Cos(q[1])
	s3, c3 := math.Sin(q[2]), math.Cos(q[2])
	qdot := Euler123DotFromBodyAngVel(q, w)

	// Ndot*qdot, with N = [c2c3 s3 0; -c2s3 c3 0; s2 0 1].
	nd := Vec3{
		(-s2*qdot[1]*c3-c2*s3*qdot[2])*qdot[0] + c3*qdot[2]*qdot[1],
		(s2*qdot[1]*s3-c2*c3*qdot[2])*qdot[0] - s3*qdot[2]*qdot[1],
		c2 * qdot[1] * qdot[0],
	}
	r := wdot.Sub(nd)
	qdotdot[0] = (c3*r[0] - s3*r[1]) / c2
	qdotdot[1] = s3*r[0] + c3*r[1]
	qdotdot[2] = r[2] - s2*qdotdot[0]
	return
}
