package utils

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a chainable value wrapper around a gonum Dense, used for the
// small dof-sized blocks of the dynamics recursion and for packed
// tree-level operators.
type Matrix struct {
	M *mat.Dense
}

func NewMatrix(nr, nc int, dataO ...[]float64) (R Matrix) {
	var m *mat.Dense
	if len(dataO) != 0 {
		if len(dataO[0]) != nr*nc {
			err := fmt.Errorf("mismatch in allocation: NewMatrix nr,nc = %v,%v, len(data[0]) = %v", nr, nc, len(dataO[0]))
			panic(err)
		}
		m = mat.NewDense(nr, nc, dataO[0])
	} else {
		m = mat.NewDense(nr, nc, make([]float64, nr*nc))
	}
	return Matrix{m}
}

func NewIdentity(n int) (R Matrix) {
	R = NewMatrix(n, n)
	for i := 0; i < n; i++ {
		R.M.Set(i, i, 1)
	}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m Matrix) Dims() (r, c int)          { return m.M.Dims() }
func (m Matrix) At(i, j int) float64       { return m.M.At(i, j) }
func (m Matrix) T() mat.Matrix             { return m.M.T() }
func (m Matrix) RawMatrix() blas64.General { return m.M.RawMatrix() }

func (m Matrix) IsEmpty() bool { return m.M == nil }

func (m Matrix) Copy() (R Matrix) { // Does not change receiver
	var (
		nr, nc = m.Dims()
	)
	R = NewMatrix(nr, nc)
	R.M.CloneFrom(m.M)
	return
}

func (m Matrix) Transpose() (R Matrix) { // Does not change receiver
	var (
		nr, nc = m.Dims()
	)
	R = NewMatrix(nc, nr)
	for j := 0; j < nc; j++ {
		for i := 0; i < nr; i++ {
			R.M.Set(j, i, m.M.At(i, j))
		}
	}
	return
}

func (m Matrix) Mul(A Matrix) (R Matrix) { // Does not change receiver
	var (
		nrM, _ = m.M.Dims()
		_, ncA = A.M.Dims()
	)
	R = NewMatrix(nrM, ncA)
	R.M.Mul(m.M, A.M)
	return
}

// MulSlice applies the matrix to a plain slice, the form the recursion's
// u-parallel quantities travel in.
func (m Matrix) MulSlice(v []float64) (r []float64) {
	var (
		nr, nc = m.Dims()
	)
	if len(v) != nc {
		panic(fmt.Errorf("MulSlice dimension mismatch: %d x %d times %d", nr, nc, len(v)))
	}
	r = make([]float64, nr)
	for i := 0; i < nr; i++ {
		var sum float64
		for j := 0; j < nc; j++ {
			sum += m.M.At(i, j) * v[j]
		}
		r[i] = sum
	}
	return
}

func (m Matrix) Set(i, j int, val float64) Matrix { // Changes receiver
	m.M.Set(i, j, val)
	return m
}

func (m Matrix) Add(A Matrix) Matrix { // Changes receiver
	m.M.Add(m.M, A.M)
	return m
}

func (m Matrix) Scale(a float64) Matrix { // Changes receiver
	m.M.Scale(a, m.M)
	return m
}

// InverseSPD inverts a symmetric positive definite matrix through its
// Cholesky factorization. A matrix that fails to factorize is reported as
// an error, never approximated: for the articulated-body D blocks this is
// the modeling-error failure mode (zero-mass branch, degenerate joint).
func (m Matrix) InverseSPD() (R Matrix, err error) {
	var (
		nr, nc = m.Dims()
	)
	if nr != nc {
		err = fmt.Errorf("unable to invert, matrix is not square: %d x %d", nr, nc)
		return
	}
	sym := mat.NewSymDense(nr, nil)
	for i := 0; i < nr; i++ {
		for j := i; j < nr; j++ {
			// symmetrize against roundoff drift
			sym.SetSym(i, j, 0.5*(m.M.At(i, j)+m.M.At(j, i)))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		err = fmt.Errorf("unable to invert, matrix is not positive definite")
		return
	}
	var inv mat.SymDense
	if err = chol.InverseTo(&inv); err != nil {
		return
	}
	R = NewMatrix(nr, nr)
	for i := 0; i < nr; i++ {
		for j := 0; j < nr; j++ {
			R.M.Set(i, j, inv.At(i, j))
		}
	}
	return
}

func (m Matrix) Print(labelO ...string) (o string) {
	label := ""
	if len(labelO) != 0 {
		label = labelO[0]
	}
	o = fmt.Sprintf("%s = \n%8.5f\n", label, mat.Formatted(m.M, mat.Squeeze()))
	return
}
