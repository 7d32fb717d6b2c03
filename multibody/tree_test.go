package multibody

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/gombd/spatial"
)

func TestTreeConstruction(t *testing.T) {
	tree := NewTree()
	mp := MassProperties{Mass: 1, Inertia: spatial.Identity33()}
	id := spatial.IdentityTransform()

	a, err := tree.AddBody(0, mp, id, id, Torsion, false)
	assert.NoError(t, err)
	b, err := tree.AddBody(a, mp, id, id, Universal, false)
	assert.NoError(t, err)
	c, err := tree.AddBody(b, mp, id, id, Free, false)
	assert.NoError(t, err)
	d, err := tree.AddBody(a, mp, id, id, Cartesian, false) // sibling branch
	assert.NoError(t, err)

	assert.Equal(t, 5, tree.NBodies())
	// slot totals: torsion 1/1, universal 2/2, free 6/7, cartesian 3/3
	assert.Equal(t, 12, tree.NU())
	assert.Equal(t, 13, tree.NQ())
	assert.Equal(t, 1+4+36+9, tree.NUSq())

	{ // numbering and level invariants: child number and level exceed the
		// parent's, windows are contiguous in construction order
		for _, i := range []int{a, b, c, d} {
			n := tree.Node(i)
			fmt.Printf("%s\n", n)
		}
		assert.Equal(t, 0, tree.Node(a).UIndex())
		assert.Equal(t, 1, tree.Node(b).UIndex())
		assert.Equal(t, 3, tree.Node(c).UIndex())
		assert.Equal(t, 9, tree.Node(d).UIndex())
		assert.Equal(t, 0, tree.Node(a).QIndex())
		assert.Equal(t, 1, tree.Node(b).QIndex())
		assert.Equal(t, 3, tree.Node(c).QIndex())
		assert.Equal(t, 10, tree.Node(d).QIndex())
		assert.Equal(t, 1, tree.Node(a).Level())
		assert.Equal(t, 2, tree.Node(b).Level())
		assert.Equal(t, 3, tree.Node(c).Level())
		assert.Equal(t, 2, tree.Node(d).Level())
		assert.True(t, b > a && c > b && d > a)
	}
	{ // ground node reserved
		g := tree.Node(0)
		assert.Equal(t, Ground, g.JointType())
		assert.Equal(t, 0, g.DOF())
		assert.Equal(t, 0.0, g.Mass())
	}
}

func TestConstructionFailures(t *testing.T) {
	tree := NewTree()
	mp := MassProperties{Mass: 1, Inertia: spatial.Identity33()}
	id := spatial.IdentityTransform()

	_, err := tree.AddBody(0, mp, id, id, Torsion, true)
	assert.True(t, errors.Is(err, ErrReversedJoint))

	for _, jt := range []JointType{Cylinder, Planar, Gimbal, Weld} {
		_, err = tree.AddBody(0, mp, id, id, jt, false)
		assert.True(t, errors.Is(err, ErrUnknownJointType), "joint %v", jt)
	}

	_, err = tree.AddBody(0, mp, id, id, Ground, false)
	assert.True(t, errors.Is(err, ErrUnknownJointType))

	_, err = tree.AddBody(7, mp, id, id, Torsion, false)
	assert.Error(t, err)

	// failed additions must not grow the tree or leak slots
	assert.Equal(t, 1, tree.NBodies())
	assert.Equal(t, 0, tree.NU())
}

func TestStageProtocol(t *testing.T) {
	tree, s := twoLinkPendulum(t)
	assert.Equal(t, StageEmpty, s.Stage())

	{ // out-of-order realizes fail with the stage error
		err := tree.RealizeMotion(s)
		assert.True(t, errors.Is(err, ErrStage))
		err = tree.RealizeDynamics(s)
		assert.True(t, errors.Is(err, ErrStage))
		var se *StageError
		assert.True(t, errors.As(err, &se))
		assert.Equal(t, StageMoving, se.Need)
		assert.Equal(t, StageEmpty, se.Have)

		_, err = tree.BodyTransform(s, 1)
		assert.True(t, errors.Is(err, ErrStage))
		_, _, err = tree.CalcUDot(s, make([]float64, tree.NU()), make([]spatial.SpatialVec, tree.NBodies()))
		assert.True(t, errors.Is(err, ErrStage))
	}

	realizeThroughDynamics(t, tree, s)
	assert.Equal(t, StageDynamics, s.Stage())
	assert.NoError(t, tree.RealizeReaction(s, make([]float64, tree.NU()), make([]spatial.SpatialVec, tree.NBodies())))
	assert.Equal(t, StageReacting, s.Stage())

	{ // mutating inputs drops the stage to the highest level not consuming
		// the change
		s.SetU([]float64{1, 2})
		assert.Equal(t, StageConfigured, s.Stage())
		assert.NoError(t, tree.RealizeMotion(s))
		assert.NoError(t, tree.RealizeDynamics(s))
		assert.NoError(t, tree.RealizeReaction(s, make([]float64, tree.NU()), make([]spatial.SpatialVec, tree.NBodies())))
		s.InvalidateForces()
		assert.Equal(t, StageDynamics, s.Stage())
		s.SetQ([]float64{0.1, 0.2})
		assert.Equal(t, StageEmpty, s.Stage())
	}
}

func TestQuaternionEnforcementIdempotent(t *testing.T) {
	tree := NewTree()
	mp := MassProperties{Mass: 1, Inertia: spatial.Identity33()}
	id := spatial.IdentityTransform()
	_, err := tree.AddBody(0, mp, id, id, Free, false)
	assert.NoError(t, err)
	s := tree.NewState(tree.DefaultModelVars())

	s.SetQ([]float64{0.9, 0.1, -0.3, 0.2, 1.5, -2.5, 0.25})
	assert.NoError(t, tree.RealizeConfiguration(s))
	xUnnormalized := s.CC.XGB[1]

	changed := tree.EnforceQuaternionConstraints(s)
	assert.True(t, changed)
	assert.Equal(t, StageEmpty, s.Stage())
	n := s.Q[0]*s.Q[0] + s.Q[1]*s.Q[1] + s.Q[2]*s.Q[2] + s.Q[3]*s.Q[3]
	assert.True(t, near(n, 1))

	// translation slots untouched
	assert.True(t, nearVec(s.Q[4:7], []float64{1.5, -2.5, 0.25}, 0))

	// second application is a no-op and leaves the state valid
	assert.NoError(t, tree.RealizeConfiguration(s))
	assert.False(t, tree.EnforceQuaternionConstraints(s))
	assert.Equal(t, StageConfigured, s.Stage())

	// the rotation never depended on the normalization
	for i := 0; i < 3; i++ {
		assert.True(t, nearVec(s.CC.XGB[1].R[i][:], xUnnormalized.R[i][:], 1.e-12))
	}
}

func TestEulerAngleMode(t *testing.T) {
	tree := NewTree()
	mp := MassProperties{Mass: 1, Inertia: spatial.Identity33()}
	id := spatial.IdentityTransform()
	_, err := tree.AddBody(0, mp, id, id, Orientation, false)
	assert.NoError(t, err)

	vars := tree.DefaultModelVars()
	vars.UseEulerAngles = true
	s := tree.NewState(vars)
	assert.Equal(t, 3, tree.Node(1).NQ(vars))
	assert.Equal(t, 4, tree.Node(1).MaxNQ())

	s.SetQ([]float64{0.2, -0.4, 0.9, 0})
	assert.NoError(t, tree.RealizeConfiguration(s))
	want := spatial.BodyFixed123(spatial.Vec3{0.2, -0.4, 0.9})
	for i := 0; i < 3; i++ {
		assert.True(t, nearVec(s.CC.XGB[1].R[i][:], want[i][:], 1.e-14))
	}

	// no quaternion to enforce in Euler mode
	assert.False(t, tree.EnforceQuaternionConstraints(s))

	// gimbal torque decomposition is explicitly unimplemented
	assert.NoError(t, tree.RealizeMotion(s))
	assert.NoError(t, tree.RealizeDynamics(s))
	assert.NoError(t, tree.RealizeReaction(s, make([]float64, 3), make([]spatial.SpatialVec, 2)))
	_, err = tree.Node(1).InternalForce(vars, &s.RC)
	assert.True(t, errors.Is(err, ErrNotImplemented))
}

func TestInternalForceWindow(t *testing.T) {
	tree, s := twoLinkPendulum(t)
	realizeThroughDynamics(t, tree, s)
	tau := []float64{0.55, -1.2}
	assert.NoError(t, tree.RealizeReaction(s, tau, make([]spatial.SpatialVec, tree.NBodies())))

	f, err := tree.Node(2).InternalForce(s.Vars, &s.RC)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(f))
	// with zero velocity and zero body force, the hinge residual is the
	// applied torque itself
	assert.True(t, near(f[0], tau[1]))
}

func TestMobilizerSetters(t *testing.T) {
	tree := NewTree()
	mp := MassProperties{Mass: 1, Inertia: spatial.Identity33()}
	id := spatial.IdentityTransform()
	cart, err := tree.AddBody(0, mp, id, id, Cartesian, false)
	assert.NoError(t, err)
	pin, err := tree.AddBody(cart, mp, id, id, Torsion, false)
	assert.NoError(t, err)
	ball, err := tree.AddBody(pin, mp, id, id, Orientation, false)
	assert.NoError(t, err)

	s := tree.NewState(tree.DefaultModelVars())

	x := spatial.Transform{R: spatial.AboutZ(1.1), T: spatial.Vec3{3, -1, 2}}
	assert.NoError(t, tree.Node(cart).SetMobilizerConfiguration(s.Vars, x, s.Q))
	assert.True(t, nearVec(s.Q[0:3], []float64{3, -1, 2}, 0))

	assert.NoError(t, tree.Node(ball).SetMobilizerConfiguration(s.Vars, x, s.Q))
	q := spatial.Quaternion{s.Q[4], s.Q[5], s.Q[6], s.Q[7]}
	got := q.Rotation()
	for i := 0; i < 3; i++ {
		assert.True(t, nearVec(got[i][:], x.R[i][:], 1.e-12))
	}

	v := spatial.SpatialVec{Ang: spatial.Vec3{0.1, 0.2, 0.3}, Lin: spatial.Vec3{-1, 0, 1}}
	assert.NoError(t, tree.Node(cart).SetMobilizerVelocity(v, s.U))
	assert.True(t, nearVec(s.U[0:3], []float64{-1, 0, 1}, 0))
	assert.NoError(t, tree.Node(ball).SetMobilizerVelocity(v, s.U))
	assert.True(t, nearVec(s.U[4:7], []float64{0.1, 0.2, 0.3}, 0))

	// the pin has no transform inversion
	err = tree.Node(pin).SetMobilizerConfiguration(s.Vars, x, s.Q)
	assert.True(t, errors.Is(err, ErrNotImplemented))
}

func TestPackedTransitionMatrix(t *testing.T) {
	tree, s := twoLinkPendulum(t)
	assert.NoError(t, tree.RealizeConfiguration(s))

	csr, err := tree.PackedTransitionMatrix(s)
	assert.NoError(t, err)
	r, c := csr.Dims()
	assert.Equal(t, tree.NU(), r)
	assert.Equal(t, 6*tree.NBodies(), c)

	for k := 1; k <= 2; k++ {
		n := tree.Node(k)
		row := s.CC.H[k].Rows[0]
		for j := 0; j < 3; j++ {
			assert.True(t, near(csr.At(n.UIndex(), 6*k+j), row.Ang[j], 1.e-15))
			assert.True(t, near(csr.At(n.UIndex(), 6*k+3+j), row.Lin[j], 1.e-15))
		}
	}
}

func TestQDotQuaternionKinematics(t *testing.T) {
	// A ball joint's qdot must satisfy the quaternion rate identity and
	// preserve the norm to first order (q . qdot = 0 for a unit q).
	tree := NewTree()
	mp := MassProperties{Mass: 1, Inertia: spatial.Identity33()}
	id := spatial.IdentityTransform()
	_, err := tree.AddBody(0, mp, id, id, Orientation, false)
	assert.NoError(t, err)

	s := tree.NewState(tree.DefaultModelVars())
	q := spatial.QuaternionFromRotation(spatial.AboutX(0.7).Mul(spatial.AboutZ(-0.2)))
	s.SetQ(q[:])
	s.SetU([]float64{0.5, -1.1, 0.8})
	assert.NoError(t, tree.RealizeConfiguration(s))
	assert.NoError(t, tree.RealizeMotion(s))

	dot := s.Q[0]*s.QDot[0] + s.Q[1]*s.QDot[1] + s.Q[2]*s.QDot[2] + s.Q[3]*s.QDot[3]
	assert.True(t, near(dot, 0, 1.e-12))

	want := spatial.QuatDotFromAngVel(q, spatial.Vec3{0.5, -1.1, 0.8})
	assert.True(t, nearVec(s.QDot[:4], want[:], 1.e-13))
}
