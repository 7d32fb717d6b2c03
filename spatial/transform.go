package spatial

// Transform is a rigid body transform: a rotation and the position of the
// moved frame's origin, both expressed in the base frame.
type Transform struct {
	R Rotation
	T Vec3
}

func IdentityTransform() Transform {
	return Transform{R: IdentityRotation()}
}

// Compose returns x*a, the transform of a's frame as seen through x.
func (x Transform) Compose(a Transform) Transform {
	return Transform{
		R: x.R.Mul(a.R),
		T: x.T.Add(x.R.MulVec(a.T)),
	}
}

// Invert reverses the transform: (R,T)^-1 = (~R, -(~R*T)).
func (x Transform) Invert() Transform {
	rt := x.R.Transpose()
	return Transform{R: rt, T: rt.MulVec(x.T).Neg()}
}

// Apply locates a point given in the moved frame in the base frame.
func (x Transform) Apply(p Vec3) Vec3 {
	return x.T.Add(x.R.MulVec(p))
}
