package spatial

import "gonum.org/v1/gonum/mat"

// SpatialVec is a 6-component spatial quantity: an angular (moment) part
// followed by a linear part. It represents velocities, accelerations and
// forces alike; only the shift rules differ.
type SpatialVec struct {
	Ang Vec3
	Lin Vec3
}

func ZeroSpatialVec() SpatialVec { return SpatialVec{} }

func (s SpatialVec) Add(a SpatialVec) SpatialVec {
	return SpatialVec{s.Ang.Add(a.Ang), s.Lin.Add(a.Lin)}
}

func (s SpatialVec) Sub(a SpatialVec) SpatialVec {
	return SpatialVec{s.Ang.Sub(a.Ang), s.Lin.Sub(a.Lin)}
}

func (s SpatialVec) Scale(a float64) SpatialVec {
	return SpatialVec{s.Ang.Scale(a), s.Lin.Scale(a)}
}

func (s SpatialVec) Neg() SpatialVec {
	return SpatialVec{s.Ang.Neg(), s.Lin.Neg()}
}

func (s SpatialVec) Dot(a SpatialVec) float64 {
	return s.Ang.Dot(a.Ang) + s.Lin.Dot(a.Lin)
}

func (s SpatialVec) Vector() *mat.VecDense {
	return mat.NewVecDense(6, []float64{
		s.Ang[0], s.Ang[1], s.Ang[2],
		s.Lin[0], s.Lin[1], s.Lin[2],
	})
}

// SpatialMat is a 6x6 spatial matrix held as 2x2 blocks of Mat33.
type SpatialMat [2][2]Mat33

func IdentitySpatialMat() (R SpatialMat) {
	R[0][0] = Identity33()
	R[1][1] = Identity33()
	return
}

// SpatialOuter is the dyad a*b^T of two spatial vectors.
func SpatialOuter(a, b SpatialVec) (R SpatialMat) {
	R[0][0] = Outer(a.Ang, b.Ang)
	R[0][1] = Outer(a.Ang, b.Lin)
	R[1][0] = Outer(a.Lin, b.Ang)
	R[1][1] = Outer(a.Lin, b.Lin)
	return
}

func (m SpatialMat) Add(a SpatialMat) (R SpatialMat) {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			R[i][j] = m[i][j].Add(a[i][j])
		}
	}
	return
}

func (m SpatialMat) Sub(a SpatialMat) (R SpatialMat) {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			R[i][j] = m[i][j].Sub(a[i][j])
		}
	}
	return
}

func (m SpatialMat) Scale(a float64) (R SpatialMat) {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			R[i][j] = m[i][j].Scale(a)
		}
	}
	return
}

func (m SpatialMat) Transpose() (R SpatialMat) {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			R[i][j] = m[j][i].Transpose()
		}
	}
	return
}

func (m SpatialMat) MulVec(v SpatialVec) (R SpatialVec) {
	R.Ang = m[0][0].MulVec(v.Ang).Add(m[0][1].MulVec(v.Lin))
	R.Lin = m[1][0].MulVec(v.Ang).Add(m[1][1].MulVec(v.Lin))
	return
}

func (m SpatialMat) Mul(a SpatialMat) (R SpatialMat) {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			R[i][j] = m[i][0].Mul(a[0][j]).Add(m[i][1].Mul(a[1][j]))
		}
	}
	return
}

func (m SpatialMat) Dense() *mat.Dense {
	d := mat.NewDense(6, 6, nil)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			for r := 0; r < 3; r++ {
				for c := 0; c < 3; c++ {
					d.Set(3*i+r, 3*j+c, m[i][j][r][c])
				}
			}
		}
	}
	return d
}

// PhiMat is the rigid body shift operator Phi(l) = [[1, skew(l)], [0, 1]]
// for an offset l from a parent origin to a child origin, expressed in
// ground. Applied to a spatial force at the child it yields the equivalent
// force at the parent; its transpose shifts a parent velocity out to the
// child.
type PhiMat struct {
	L Vec3
}

func NewPhiMat(l Vec3) PhiMat { return PhiMat{L: l} }

// MulVec shifts a spatial force child-to-parent: (m + l x f, f).
func (p PhiMat) MulVec(f SpatialVec) SpatialVec {
	return SpatialVec{
		Ang: f.Ang.Add(p.L.Cross(f.Lin)),
		Lin: f.Lin,
	}
}

// TransMulVec shifts a spatial velocity parent-to-child: (w, v + w x l).
func (p PhiMat) TransMulVec(v SpatialVec) SpatialVec {
	return SpatialVec{
		Ang: v.Ang,
		Lin: v.Lin.Add(v.Ang.Cross(p.L)),
	}
}

func (p PhiMat) Mat() (R SpatialMat) {
	R[0][0] = Identity33()
	R[0][1] = Skew(p.L)
	R[1][1] = Identity33()
	return
}

// MulMat is Phi*M.
func (p PhiMat) MulMat(m SpatialMat) (R SpatialMat) {
	lx := Skew(p.L)
	R[0][0] = m[0][0].Add(lx.Mul(m[1][0]))
	R[0][1] = m[0][1].Add(lx.Mul(m[1][1]))
	R[1][0] = m[1][0]
	R[1][1] = m[1][1]
	return
}

// Congruence is Phi*M*~Phi, the shift of a spatial inertia-like matrix from
// the child origin to the parent origin.
func (p PhiMat) Congruence(m SpatialMat) (R SpatialMat) {
	lx := Skew(p.L)
	pm := p.MulMat(m)
	R[0][0] = pm[0][0].Sub(pm[0][1].Mul(lx))
	R[0][1] = pm[0][1]
	R[1][0] = pm[1][0].Sub(pm[1][1].Mul(lx))
	R[1][1] = pm[1][1]
	return
}
