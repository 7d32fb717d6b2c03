package spatial

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vec3 is a fixed-size 3-vector. All hot-path algebra in this package is
// value-based; use Dense()/Vector() at the gonum boundary.
type Vec3 [3]float64

func (v Vec3) Add(a Vec3) (R Vec3) {
	return Vec3{v[0] + a[0], v[1] + a[1], v[2] + a[2]}
}

func (v Vec3) Sub(a Vec3) (R Vec3) {
	return Vec3{v[0] - a[0], v[1] - a[1], v[2] - a[2]}
}

func (v Vec3) Scale(a float64) (R Vec3) {
	return Vec3{a * v[0], a * v[1], a * v[2]}
}

func (v Vec3) Neg() (R Vec3) {
	return Vec3{-v[0], -v[1], -v[2]}
}

func (v Vec3) Dot(a Vec3) float64 {
	return v[0]*a[0] + v[1]*a[1] + v[2]*a[2]
}

func (v Vec3) Cross(a Vec3) (R Vec3) {
	return Vec3{
		v[1]*a[2] - v[2]*a[1],
		v[2]*a[0] - v[0]*a[2],
		v[0]*a[1] - v[1]*a[0],
	}
}

func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v Vec3) Vector() *mat.VecDense {
	return mat.NewVecDense(3, []float64{v[0], v[1], v[2]})
}

// Mat33 is a fixed-size 3x3 matrix, stored row major.
type Mat33 [3][3]float64

func Identity33() (R Mat33) {
	return Mat33{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Skew builds the cross-product matrix so that Skew(a).MulVec(b) == a.Cross(b).
func Skew(a Vec3) (R Mat33) {
	return Mat33{
		{0, -a[2], a[1]},
		{a[2], 0, -a[0]},
		{-a[1], a[0], 0},
	}
}

// Outer is the dyadic product a*b^T.
func Outer(a, b Vec3) (R Mat33) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			R[i][j] = a[i] * b[j]
		}
	}
	return
}

func (m Mat33) Add(a Mat33) (R Mat33) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			R[i][j] = m[i][j] + a[i][j]
		}
	}
	return
}

func (m Mat33) Sub(a Mat33) (R Mat33) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			R[i][j] = m[i][j] - a[i][j]
		}
	}
	return
}

func (m Mat33) Scale(a float64) (R Mat33) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			R[i][j] = a * m[i][j]
		}
	}
	return
}

func (m Mat33) Transpose() (R Mat33) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			R[i][j] = m[j][i]
		}
	}
	return
}

func (m Mat33) MulVec(v Vec3) (R Vec3) {
	for i := 0; i < 3; i++ {
		R[i] = m[i][0]*v[0] + m[i][1]*v[1] + m[i][2]*v[2]
	}
	return
}

func (m Mat33) Mul(a Mat33) (R Mat33) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			R[i][j] = m[i][0]*a[0][j] + m[i][1]*a[1][j] + m[i][2]*a[2][j]
		}
	}
	return
}

// Reexpress returns R*m*R^T, re-expressing a symmetric tensor held in the
// frame R maps from into the frame it maps to.
func (m Mat33) Reexpress(R Rotation) Mat33 {
	rm := Mat33(R)
	return rm.Mul(m).Mul(rm.Transpose())
}

func (m Mat33) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}
