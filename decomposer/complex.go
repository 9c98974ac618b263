package decomposer

import (
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/pkg/errors"
)

// recoverTolerance is the relative singular value floor for the paired
// right-vector recovery; below it the embedded right vectors are used
// directly.
const recoverTolerance = 1e-13

// ComplexResult holds a truncated complex decomposition
// X ~ U * diag(S) * V^H.
type ComplexResult struct {
	// SingularValues in descending order, one per retained mode. They
	// are real and non-negative even though the vectors are complex.
	SingularValues []float64
	U              *mat.CDense
	V              *mat.CDense
	Requested      int
	Truncated      bool
}

// NModes returns the number of retained modes.
func (r *ComplexResult) NModes() int {
	return len(r.SingularValues)
}

// DecomposeComplex computes the truncated SVD of a complex matrix.
func (d *Decomposer) DecomposeComplex(X *mat.CDense) (_ *ComplexResult, err error) {
	const op = "Decomposer.DecomposeComplex"
	defer errors.Recover(&err, op)

	n, m := X.Dims()
	if n == 0 || m == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	if err := errors.CheckCMatrix(op, X); err != nil {
		return nil, err
	}
	return d.complexSVD(op, X)
}

// complexSVD runs ComplexSVD and truncates the triplets to the retained
// mode count.
func (d *Decomposer) complexSVD(op string, X *mat.CDense) (*ComplexResult, error) {
	n, m := X.Dims()

	u, s, v, err := ComplexSVD(X)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	k, truncated, err := d.retained(op, s)
	if err != nil {
		return nil, err
	}

	uk := mat.NewCDense(n, k, nil)
	vk := mat.NewCDense(m, k, nil)
	for c := 0; c < k; c++ {
		for i := 0; i < n; i++ {
			uk.Set(i, c, u.At(i, c))
		}
		for j := 0; j < m; j++ {
			vk.Set(j, c, v.At(j, c))
		}
	}

	return &ComplexResult{
		SingularValues: s[:k:k],
		U:              uk,
		V:              vk,
		Requested:      d.nModes,
		Truncated:      truncated,
	}, nil
}

// ComplexSVD computes the full thin SVD of a complex matrix, returning
// all min(n, m) triplets with singular values in descending order.
//
// gonum's SVD factorizes real matrices only, so C = A + iB is reduced to
// the real embedding [[A, -B], [B, A]], whose spectrum is that of C with
// every singular value duplicated. The embedding goes through the vetted
// real SVD and every second triplet is reconstituted: the left vector
// u = w_top + i*w_bottom comes straight from the embedded column, and the
// paired right vector is recovered as v = C^H * u / sigma, which keeps
// the (u, sigma, v) phases consistent where the duplicated spectrum
// leaves the embedded right vectors ambiguous. Triplets whose singular
// value is numerically zero take the embedded right vector directly.
func ComplexSVD(X *mat.CDense) (u *mat.CDense, s []float64, v *mat.CDense, err error) {
	const op = "decomposer.ComplexSVD"

	n, m := X.Dims()
	if n == 0 || m == 0 {
		return nil, nil, nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}

	E := mat.NewDense(2*n, 2*m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			z := X.At(i, j)
			re, im := real(z), imag(z)
			E.Set(i, j, re)
			E.Set(i, m+j, -im)
			E.Set(n+i, j, im)
			E.Set(n+i, m+j, re)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(E, mat.SVDThin) {
		return nil, nil, nil, errors.NewModelError(op, "factorization failed to converge", errors.ErrSingularMatrix)
	}
	vals := svd.Values(nil)

	var ue, ve mat.Dense
	svd.UTo(&ue)
	svd.VTo(&ve)

	p := len(vals) / 2
	u = mat.NewCDense(n, p, nil)
	v = mat.NewCDense(m, p, nil)
	s = make([]float64, p)
	floor := vals[0] * recoverTolerance

	for c := 0; c < p; c++ {
		col := 2 * c
		s[c] = vals[col]
		for i := 0; i < n; i++ {
			u.Set(i, c, complex(ue.At(i, col), ue.At(n+i, col)))
		}
		if s[c] > floor {
			sigma := complex(s[c], 0)
			for j := 0; j < m; j++ {
				var acc complex128
				for i := 0; i < n; i++ {
					acc += cmplx.Conj(X.At(i, j)) * u.At(i, c)
				}
				v.Set(j, c, acc/sigma)
			}
		} else {
			for j := 0; j < m; j++ {
				v.Set(j, c, complex(ve.At(j, col), ve.At(m+j, col)))
			}
		}
	}
	return u, s, v, nil
}
