package spatial

import "math"

// Rotation is a proper orthogonal Mat33. Column j holds the j'th axis of
// the rotated frame expressed in the base frame.
type Rotation Mat33

func IdentityRotation() Rotation {
	return Rotation(Identity33())
}

func AboutX(theta float64) (R Rotation) {
	s, c := math.Sin(theta), math.Cos(theta)
	return Rotation{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

func AboutY(theta float64) (R Rotation) {
	s, c := math.Sin(theta), math.Cos(theta)
	return Rotation{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
}

func AboutZ(theta float64) (R Rotation) {
	s, c := math.Sin(theta), math.Cos(theta)
	return Rotation{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

// SpaceFixed12 rotates about the base x axis by a1, then the base y axis
// by a2 (a universal-joint pair).
func SpaceFixed12(a1, a2 float64) Rotation {
	return AboutY(a2).Mul(AboutX(a1))
}

// BodyFixed123 rotates about the moving x, y, z axes in turn.
func BodyFixed123(q Vec3) Rotation {
	return AboutX(q[0]).Mul(AboutY(q[1])).Mul(AboutZ(q[2]))
}

func (r Rotation) Mul(a Rotation) Rotation {
	return Rotation(Mat33(r).Mul(Mat33(a)))
}

func (r Rotation) MulVec(v Vec3) Vec3 {
	return Mat33(r).MulVec(v)
}

// Transpose is also the inverse.
func (r Rotation) Transpose() Rotation {
	return Rotation(Mat33(r).Transpose())
}

func (r Rotation) Mat() Mat33 { return Mat33(r) }

// Frame axes expressed in the base frame.
func (r Rotation) Ax() Vec3 { return Vec3{r[0][0], r[1][0], r[2][0]} }
func (r Rotation) Ay() Vec3 { return Vec3{r[0][1], r[1][1], r[2][1]} }
func (r Rotation) Az() Vec3 { return Vec3{r[0][2], r[1][2], r[2][2]} }

// Quaternion is an orientation quaternion with the scalar element first.
type Quaternion [4]float64

func IdentityQuaternion() Quaternion {
	return Quaternion{1, 0, 0, 0}
}

func (q Quaternion) Norm() float64 {
	return math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
}

func (q Quaternion) Normalize() (R Quaternion) {
	n := q.Norm()
	return Quaternion{q[0] / n, q[1] / n, q[2] / n, q[3] / n}
}

func (q Quaternion) Scale(a float64) (R Quaternion) {
	return Quaternion{a * q[0], a * q[1], a * q[2], a * q[3]}
}

func (q Quaternion) Add(a Quaternion) (R Quaternion) {
	return Quaternion{q[0] + a[0], q[1] + a[1], q[2] + a[2], q[3] + a[3]}
}

// Mul is the quaternion product q*a.
func (q Quaternion) Mul(a Quaternion) (R Quaternion) {
	qv := Vec3{q[1], q[2], q[3]}
	av := Vec3{a[1], a[2], a[3]}
	s := q[0]*a[0] - qv.Dot(av)
	v := av.Scale(q[0]).Add(qv.Scale(a[0])).Add(qv.Cross(av))
	return Quaternion{s, v[0], v[1], v[2]}
}

// Rotation converts to a rotation matrix using the scale-invariant form, so
// an unnormalized quaternion yields the same rotation as its normalized
// value.
func (q Quaternion) Rotation() (R Rotation) {
	n := q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3]
	s := 2.0 / n
	w, x, y, z := q[0], q[1], q[2], q[3]
	return Rotation{
		{1 - s*(y*y+z*z), s * (x*y - w*z), s * (x*z + w*y)},
		{s * (x*y + w*z), 1 - s*(x*x+z*z), s * (y*z - w*x)},
		{s * (x*z - w*y), s * (y*z + w*x), 1 - s*(x*x+y*y)},
	}
}

// QuaternionFromRotation recovers a unit quaternion via Shepperd's method,
// branching on the largest diagonal sum for numerical safety.
func QuaternionFromRotation(r Rotation) (q Quaternion) {
	tr := r[0][0] + r[1][1] + r[2][2]
	switch {
	case tr >= r[0][0] && tr >= r[1][1] && tr >= r[2][2]:
		s := math.Sqrt(1+tr) * 2
		q = Quaternion{s / 4, (r[2][1] - r[1][2]) / s, (r[0][2] - r[2][0]) / s, (r[1][0] - r[0][1]) / s}
	case r[0][0] >= r[1][1] && r[0][0] >= r[2][2]:
		s := math.Sqrt(1+r[0][0]-r[1][1]-r[2][2]) * 2
		q = Quaternion{(r[2][1] - r[1][2]) / s, s / 4, (r[0][1] + r[1][0]) / s, (r[0][2] + r[2][0]) / s}
	case r[1][1] >= r[2][2]:
		s := math.Sqrt(1+r[1][1]-r[0][0]-r[2][2]) * 2
		q = Quaternion{(r[0][2] - r[2][0]) / s, (r[0][1] + r[1][0]) / s, s / 4, (r[1][2] + r[2][1]) / s}
	default:
		s := math.Sqrt(1+r[2][2]-r[0][0]-r[1][1]) * 2
		q = Quaternion{(r[1][0] - r[0][1]) / s, (r[0][2] + r[2][0]) / s, (r[1][2] + r[2][1]) / s, s / 4}
	}
	if q[0] < 0 {
		q = q.Scale(-1)
	}
	return q.Normalize()
}
