package multibody

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/gombd/spatial"
)

// twoLinkPendulum is a ground -> A -> B chain of torsion joints about z,
// unit mass, identity inertia, COM at the body origin, joint frame 1m from
// the body origin along body x.
func twoLinkPendulum(t *testing.T) (*Tree, *State) {
	tree := NewTree()
	mp := MassProperties{Mass: 1, Inertia: spatial.Identity33()}
	xBJ := spatial.Transform{R: spatial.IdentityRotation(), T: spatial.Vec3{1, 0, 0}}
	a, err := tree.AddBody(0, mp, spatial.IdentityTransform(), xBJ, Torsion, false)
	assert.NoError(t, err)
	_, err = tree.AddBody(a, mp, spatial.IdentityTransform(), xBJ, Torsion, false)
	assert.NoError(t, err)
	return tree, tree.NewState(tree.DefaultModelVars())
}

func realizeThroughDynamics(t *testing.T, tree *Tree, s *State) {
	assert.NoError(t, tree.RealizeConfiguration(s))
	assert.NoError(t, tree.RealizeMotion(s))
	assert.NoError(t, tree.RealizeDynamics(s))
}

func TestConcreteTwoBodyScenario(t *testing.T) {
	tree, s := twoLinkPendulum(t)
	realizeThroughDynamics(t, tree, s)

	{ // H for A is (z, z x T) with T the offset joint origin -> body origin
		h := s.CC.H[1]
		assert.Equal(t, 1, h.DOF())
		assert.True(t, nearSpatial(h.Rows[0],
			spatial.SpatialVec{Ang: spatial.Vec3{0, 0, 1}, Lin: spatial.Vec3{0, -1, 0}}, 1.e-14))
	}
	{ // body origins at (-1,0,0) and (-2,0,0)
		xA, err := tree.BodyTransform(s, 1)
		assert.NoError(t, err)
		xB, err := tree.BodyTransform(s, 2)
		assert.NoError(t, err)
		assert.True(t, nearVec(xA.T[:], []float64{-1, 0, 0}, 1.e-14))
		assert.True(t, nearVec(xB.T[:], []float64{-2, 0, 0}, 1.e-14))
	}
	{ // zero velocities, zero velocity-dependent terms
		for i := 1; i <= 2; i++ {
			v, err := tree.BodyVelocity(s, i)
			assert.NoError(t, err)
			assert.True(t, nearSpatial(v, spatial.SpatialVec{}, 1.e-15))
			assert.True(t, nearSpatial(s.DC.GyroForce[i], spatial.SpatialVec{}, 1.e-15))
			assert.True(t, nearSpatial(s.DC.CoriolisAccel[i], spatial.SpatialVec{}, 1.e-15))
			assert.True(t, nearSpatial(s.DC.CentrifugalForce[i], spatial.SpatialVec{}, 1.e-15))
		}
	}
	{ // D blocks: leaf carries Izz + m|z x T|^2 = 2, inner body the
		// articulated value 2.5
		fmt.Printf("%s", s.DC.D[1].Print("D[A]"))
		assert.True(t, near(s.DC.D[2].At(0, 0), 2))
		assert.True(t, near(s.DC.D[1].At(0, 0), 2.5))
	}
	{ // zero forces give zero accelerations
		jf := make([]float64, tree.NU())
		bf := make([]spatial.SpatialVec, tree.NBodies())
		assert.NoError(t, tree.RealizeReaction(s, jf, bf))
		assert.True(t, nearVec(s.UDot, []float64{0, 0}, 1.e-14))
		aB, err := tree.BodyAcceleration(s, 2)
		assert.NoError(t, err)
		assert.True(t, nearSpatial(aB, spatial.SpatialVec{}, 1.e-14))
	}
}

func TestTwoLinkAgainstAnalyticSolution(t *testing.T) {
	// Reference values from the closed-form two-link equations with
	// M11 = 5+2cos(q2), M12 = 2+cos(q2), M22 = 2 and the matching
	// Christoffel bias terms.
	tree, s := twoLinkPendulum(t)
	s.SetQ([]float64{0.4, -0.9})
	s.SetU([]float64{1.3, 0.7})
	realizeThroughDynamics(t, tree, s)

	ke, err := tree.CalcKineticEnergy(s)
	assert.NoError(t, err)
	assert.True(t, near(ke, 8.151185917503728))

	tau := []float64{0.55, -1.2}
	bf := make([]spatial.SpatialVec, tree.NBodies())
	assert.NoError(t, tree.RealizeReaction(s, tau, bf))
	fmt.Printf("udot = %v\n", s.UDot)
	assert.True(t, near(s.UDot[0], -0.5065526636473856))
	assert.True(t, near(s.UDot[1], 0.7259029948712451))

	{ // the array-form solver agrees with the cache-resident pass
		udot, aGB, err := tree.CalcUDot(s, tau, bf)
		assert.NoError(t, err)
		assert.True(t, nearVec(udot, s.UDot, 1.e-13))
		for i := range aGB {
			assert.True(t, nearSpatial(aGB[i], s.RC.AGB[i], 1.e-13))
		}
	}
	{ // feeding the net body forces back recovers tau
		nb := tree.NBodies()
		f := make([]spatial.SpatialVec, nb)
		for i := 0; i < nb; i++ {
			f[i], err = tree.BodyNetForce(s, i)
			assert.NoError(t, err)
		}
		back, err := tree.CalcEquivalentJointForces(s, f)
		assert.NoError(t, err)
		assert.True(t, nearVec(back, tau, 1.e-10))
	}
}

func TestEnergyIdentity(t *testing.T) {
	tree, s := twoLinkPendulum(t)
	s.SetQ([]float64{-1.1, 0.35})
	s.SetU([]float64{0.8, -2.1})
	assert.NoError(t, tree.RealizeConfiguration(s))
	assert.NoError(t, tree.RealizeMotion(s))

	var sum float64
	for i := 0; i < tree.NBodies(); i++ {
		v := s.MC.VGB[i]
		sum += 0.5 * v.Dot(s.CC.Mk[i].MulVec(v))
	}
	ke, err := tree.CalcKineticEnergy(s)
	assert.NoError(t, err)
	assert.True(t, near(ke, sum))

	// ground contributes exactly zero
	assert.True(t, nearSpatial(s.MC.VGB[0], spatial.SpatialVec{}, 0))
}

func TestTransitionMatrixMatchesFiniteDifference(t *testing.T) {
	// For a torsion joint, dX_GB/dtheta must match the H row: the angular
	// part is the rotation axis, the linear part the induced origin
	// velocity.
	tree := NewTree()
	mp := MassProperties{Mass: 1, Inertia: spatial.Identity33()}
	xPJb := spatial.Transform{R: spatial.AboutX(0.3), T: spatial.Vec3{0.2, -0.5, 1}}
	xBJ := spatial.Transform{R: spatial.AboutY(-0.6), T: spatial.Vec3{1, 0.4, 0}}
	_, err := tree.AddBody(0, mp, xPJb, xBJ, Torsion, false)
	assert.NoError(t, err)

	pose := func(theta float64) spatial.Transform {
		s := tree.NewState(tree.DefaultModelVars())
		s.SetQ([]float64{theta})
		assert.NoError(t, tree.RealizeConfiguration(s))
		return s.CC.XGB[1]
	}

	for _, theta := range []float64{0, math.Pi / 2, 0.7, -1.9} {
		s := tree.NewState(tree.DefaultModelVars())
		s.SetQ([]float64{theta})
		assert.NoError(t, tree.RealizeConfiguration(s))
		h := s.CC.H[1].Rows[0]

		const dh = 1.e-6
		xp, xm := pose(theta+dh), pose(theta-dh)

		// omega from the skew part of Rdot*~R
		var rdot spatial.Mat33
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				rdot[i][j] = (xp.R[i][j] - xm.R[i][j]) / (2 * dh)
			}
		}
		w := rdot.Mul(s.CC.XGB[1].R.Transpose().Mat())
		omega := spatial.Vec3{w[2][1], w[0][2], w[1][0]}
		vel := xp.T.Sub(xm.T).Scale(1 / (2 * dh))

		assert.True(t, nearVec(omega[:], h.Ang[:], 1.e-8))
		assert.True(t, nearVec(vel[:], h.Lin[:], 1.e-8))
	}
}

func TestInverseForwardConsistencyMixedChains(t *testing.T) {
	// Chains of 1 to 5 bodies mixing torsion, universal and free joints:
	// forward dynamics under tau, then the net body forces fed through the
	// inverse recursion must give tau back.
	mp := MassProperties{Mass: 2, COM: spatial.Vec3{0.1, 0, -0.2},
		Inertia: spatial.Mat33{{1.2, 0, 0}, {0, 0.9, 0.1}, {0, 0.1, 1.5}}}
	xBJ := spatial.Transform{R: spatial.AboutZ(0.2), T: spatial.Vec3{0.7, 0.1, 0}}
	xPJb := spatial.Transform{R: spatial.AboutX(-0.4), T: spatial.Vec3{0, 0.3, 0.5}}
	kinds := []JointType{Torsion, Universal, Free, Universal, Torsion}

	for nbodies := 1; nbodies <= 5; nbodies++ {
		tree := NewTree()
		parent := 0
		for k := 0; k < nbodies; k++ {
			var err error
			parent, err = tree.AddBody(parent, mp, xPJb, xBJ, kinds[k], false)
			assert.NoError(t, err)
		}
		s := tree.NewState(tree.DefaultModelVars())

		// bend every joint away from the default pose
		q := append([]float64{}, s.Q...)
		for k := 1; k <= nbodies; k++ {
			n := tree.Node(k)
			switch n.JointType() {
			case Torsion:
				q[n.QIndex()] = 0.3 * float64(k)
			case Universal:
				q[n.QIndex()] = -0.2
				q[n.QIndex()+1] = 0.45
			case Free:
				copySlice(q[n.QIndex():n.QIndex()+7],
					[]float64{0.9, 0.2, -0.1, 0.3, 0.5, -0.25, 0.8})
			}
		}
		s.SetQ(q)
		realizeThroughDynamics(t, tree, s)

		tau := make([]float64, tree.NU())
		for i := range tau {
			tau[i] = 0.5 - 0.3*float64(i)
		}
		bf := make([]spatial.SpatialVec, tree.NBodies())
		assert.NoError(t, tree.RealizeReaction(s, tau, bf))

		f := make([]spatial.SpatialVec, tree.NBodies())
		for i := range f {
			var err error
			f[i], err = tree.BodyNetForce(s, i)
			assert.NoError(t, err)
		}
		back, err := tree.CalcEquivalentJointForces(s, f)
		assert.NoError(t, err)
		fmt.Printf("chain %d: tau back = %v\n", nbodies, back)
		assert.True(t, nearVec(back, tau, 1.e-9))
	}
}

func TestComplianceResponse(t *testing.T) {
	// At rest the compliance Y is the acceleration response to a spatial
	// force at the same body: apply F at body k alone and the resolved
	// acceleration of k must equal Y[k]*F.
	mp := MassProperties{Mass: 2, COM: spatial.Vec3{0.1, 0, -0.2},
		Inertia: spatial.Mat33{{1.2, 0, 0}, {0, 0.9, 0.1}, {0, 0.1, 1.5}}}
	xBJ := spatial.Transform{R: spatial.AboutZ(0.2), T: spatial.Vec3{0.7, 0.1, 0}}
	xPJb := spatial.Transform{R: spatial.AboutX(-0.4), T: spatial.Vec3{0, 0.3, 0.5}}

	tree := NewTree()
	parent := 0
	for _, kind := range []JointType{Torsion, Universal, Free} {
		var err error
		parent, err = tree.AddBody(parent, mp, xPJb, xBJ, kind, false)
		assert.NoError(t, err)
	}
	s := tree.NewState(tree.DefaultModelVars())

	q := append([]float64{}, s.Q...)
	q[0] = 0.3
	q[1], q[2] = -0.2, 0.45
	copySlice(q[3:10], []float64{0.9, 0.2, -0.1, 0.3, 0.5, -0.25, 0.8})
	s.SetQ(q)
	realizeThroughDynamics(t, tree, s)

	yGround, err := tree.Compliance(s, 0)
	assert.NoError(t, err)
	assert.True(t, nearSpatial(yGround.MulVec(spatial.SpatialVec{Ang: spatial.Vec3{1, 1, 1}, Lin: spatial.Vec3{1, 1, 1}}),
		spatial.ZeroSpatialVec(), 0))

	force := spatial.SpatialVec{Ang: spatial.Vec3{0.3, -1.1, 0.6}, Lin: spatial.Vec3{1.2, 0.4, -0.9}}
	jf := make([]float64, tree.NU())
	for k := 1; k < tree.NBodies(); k++ {
		bf := make([]spatial.SpatialVec, tree.NBodies())
		bf[k] = force
		assert.NoError(t, tree.RealizeReaction(s, jf, bf))

		y, err := tree.Compliance(s, k)
		assert.NoError(t, err)
		a, err := tree.BodyAcceleration(s, k)
		assert.NoError(t, err)
		fmt.Printf("body %d: Y*F = %v\n", k, y.MulVec(force))
		assert.True(t, nearSpatial(a, y.MulVec(force), 1.e-12))
	}
}

func TestSingularMassFails(t *testing.T) {
	tree := NewTree()
	mp := MassProperties{Mass: 1, Inertia: spatial.Identity33()}
	xBJ := spatial.Transform{R: spatial.IdentityRotation(), T: spatial.Vec3{1, 0, 0}}
	a, err := tree.AddBody(0, mp, spatial.IdentityTransform(), xBJ, Torsion, false)
	assert.NoError(t, err)
	// massless, inertia-less leaf: its D cannot be positive definite
	_, err = tree.AddBody(a, MassProperties{}, spatial.IdentityTransform(), xBJ, Torsion, false)
	assert.NoError(t, err)

	s := tree.NewState(tree.DefaultModelVars())
	assert.NoError(t, tree.RealizeConfiguration(s))
	assert.NoError(t, tree.RealizeMotion(s))

	err = tree.RealizeDynamics(s)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllConditioned))
	var ice *IllConditionedError
	assert.True(t, errors.As(err, &ice))
	assert.Equal(t, 2, ice.Body)
	assert.Equal(t, Torsion, ice.Joint)
	// the failed pass must not advance the stage
	assert.Equal(t, StageMoving, s.Stage())
}

func TestInternalGradientFromSpatial(t *testing.T) {
	// The gradient projection is ~J*X: for X equal to one body's H row the
	// projection onto that dof is |row|^2.
	tree, s := twoLinkPendulum(t)
	s.SetQ([]float64{0.6, -0.3})
	assert.NoError(t, tree.RealizeConfiguration(s))

	x := make([]spatial.SpatialVec, tree.NBodies())
	x[2] = s.CC.H[2].Rows[0]
	jx, err := tree.CalcInternalGradientFromSpatial(s, x)
	assert.NoError(t, err)
	row2 := s.CC.H[2].Rows[0]
	assert.True(t, near(jx[1], row2.Dot(x[2])))

	// body 1 picks up the shifted contribution
	want := s.CC.H[1].Rows[0].Dot(s.CC.Phi[2].MulVec(x[2]))
	assert.True(t, near(jx[0], want))
}

func TestSetVelFromSVel(t *testing.T) {
	// The back-solve is the plain projection u = H*(V - ~Phi*Vparent), so
	// recovery of a known speed is exact when the joint frame sits at the
	// body origin and the torsion row (a, a x T) is a unit spatial vector.
	{
		tree := NewTree()
		mp := MassProperties{Mass: 1, Inertia: spatial.Identity33()}
		xPJb := spatial.Transform{R: spatial.IdentityRotation(), T: spatial.Vec3{1, 0, 0}}
		a, err := tree.AddBody(0, mp, xPJb, spatial.IdentityTransform(), Torsion, false)
		assert.NoError(t, err)
		_, err = tree.AddBody(a, mp, xPJb, spatial.IdentityTransform(), Torsion, false)
		assert.NoError(t, err)
		s := tree.NewState(tree.DefaultModelVars())

		s.SetQ([]float64{0.4, -0.9})
		s.SetU([]float64{1.3, 0.7})
		assert.NoError(t, tree.RealizeConfiguration(s))
		assert.NoError(t, tree.RealizeMotion(s))
		vWant, err := tree.BodyVelocity(s, 2)
		assert.NoError(t, err)

		// perturb the leaf speed, then back-solve it from the recorded
		// spatial velocity
		s.SetU([]float64{1.3, 0})
		assert.NoError(t, tree.RealizeConfiguration(s))
		assert.NoError(t, tree.RealizeMotion(s))
		assert.NoError(t, tree.SetVelFromSVel(s, 2, vWant))
		assert.True(t, near(s.U[1], 0.7))
		assert.Equal(t, StageConfigured, s.Stage())
	}
	{ // with the joint frame offset from the body origin the projection
		// carries the H-row Gram factor: u = (row . row) * uTrue
		tree, s := twoLinkPendulum(t)
		s.SetQ([]float64{0.4, -0.9})
		s.SetU([]float64{1.3, 0.7})
		assert.NoError(t, tree.RealizeConfiguration(s))
		assert.NoError(t, tree.RealizeMotion(s))
		vWant, err := tree.BodyVelocity(s, 2)
		assert.NoError(t, err)

		row := s.CC.H[2].Rows[0]
		assert.True(t, near(row.Dot(row), 2))

		s.SetU([]float64{1.3, 0})
		assert.NoError(t, tree.RealizeConfiguration(s))
		assert.NoError(t, tree.RealizeMotion(s))
		assert.NoError(t, tree.SetVelFromSVel(s, 2, vWant))
		assert.True(t, near(s.U[1], 0.7*row.Dot(row)))
	}
}

func nearSpatial(a, b spatial.SpatialVec, tol float64) bool {
	return nearVec(a.Ang[:], b.Ang[:], tol) && nearVec(a.Lin[:], b.Lin[:], tol)
}

func nearVec(a, b []float64, tol float64) (l bool) {
	for i, val := range a {
		if !near(b[i], val, tol) {
			fmt.Printf("Diff = %v, Left[%d] = %v, Right[%d] = %v\n", math.Abs(val-b[i]), i, val, i, b[i])
			return false
		}
	}
	return true
}

func near(a, b float64, tolI ...float64) (l bool) {
	var (
		tol float64
	)
	if len(tolI) == 0 {
		tol = 1.e-08
	} else {
		tol = tolI[0]
	}
	bound := math.Max(tol, tol*math.Abs(a))
	if math.Abs(a-b) <= bound {
		l = true
	}
	return
}
