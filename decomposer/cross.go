package decomposer

import (
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/pkg/errors"
)

// CrossResult holds the truncated SVD of the cross-covariance matrix
// between two real matrices sharing a sample axis:
// Cov = X1^T * X2 / (n-1) ~ A * diag(S) * B^T.
type CrossResult struct {
	// SingularValues of the cross-covariance matrix, descending. Each is
	// the covariance explained by its pair of patterns.
	SingularValues []float64
	// A and B hold the left and right singular vectors: the paired
	// patterns in the first and second feature space.
	A *mat.Dense
	B *mat.Dense
	// SquaredTotalCovariance is the squared Frobenius norm of the full
	// cross-covariance matrix, the normalizer for squared-covariance
	// fractions.
	SquaredTotalCovariance float64
	Requested              int
	Truncated              bool
}

// NModes returns the number of retained modes.
func (r *CrossResult) NModes() int {
	return len(r.SingularValues)
}

// DecomposeCross computes the truncated SVD of the cross-covariance
// between X1 and X2. Both matrices must have the same number of samples;
// the feature counts may differ.
func (d *Decomposer) DecomposeCross(X1, X2 mat.Matrix) (_ *CrossResult, err error) {
	const op = "Decomposer.DecomposeCross"
	defer errors.Recover(&err, op)

	n, m1, m2, err := d.checkPair(op, X1, X2)
	if err != nil {
		return nil, err
	}
	if err := errors.CheckMatrix(op, X1); err != nil {
		return nil, err
	}
	if err := errors.CheckMatrix(op, X2); err != nil {
		return nil, err
	}

	var cov mat.Dense
	cov.Mul(X1.T(), X2)
	cov.Scale(1/float64(n-1), &cov)

	sqTotal := 0.0
	for i := 0; i < m1; i++ {
		for j := 0; j < m2; j++ {
			v := cov.At(i, j)
			sqTotal += v * v
		}
	}

	res, err := d.realSVD(op, &cov)
	if err != nil {
		return nil, err
	}
	return &CrossResult{
		SingularValues:         res.SingularValues,
		A:                      res.U,
		B:                      res.V,
		SquaredTotalCovariance: sqTotal,
		Requested:              res.Requested,
		Truncated:              res.Truncated,
	}, nil
}

// CrossComplexResult is CrossResult for complex matrices:
// Cov = X1^H * X2 / (n-1) ~ A * diag(S) * B^H.
type CrossComplexResult struct {
	SingularValues         []float64
	A                      *mat.CDense
	B                      *mat.CDense
	SquaredTotalCovariance float64
	Requested              int
	Truncated              bool
}

// NModes returns the number of retained modes.
func (r *CrossComplexResult) NModes() int {
	return len(r.SingularValues)
}

// DecomposeCrossComplex computes the truncated SVD of the complex
// cross-covariance between X1 and X2.
func (d *Decomposer) DecomposeCrossComplex(X1, X2 *mat.CDense) (_ *CrossComplexResult, err error) {
	const op = "Decomposer.DecomposeCrossComplex"
	defer errors.Recover(&err, op)

	n, m1, m2, err := d.checkPair(op, X1, X2)
	if err != nil {
		return nil, err
	}
	if err := errors.CheckCMatrix(op, X1); err != nil {
		return nil, err
	}
	if err := errors.CheckCMatrix(op, X2); err != nil {
		return nil, err
	}

	scale := complex(1/float64(n-1), 0)
	cov := mat.NewCDense(m1, m2, nil)
	sqTotal := 0.0
	for a := 0; a < m1; a++ {
		for b := 0; b < m2; b++ {
			var acc complex128
			for i := 0; i < n; i++ {
				acc += cmplx.Conj(X1.At(i, a)) * X2.At(i, b)
			}
			acc *= scale
			cov.Set(a, b, acc)
			sqTotal += real(acc)*real(acc) + imag(acc)*imag(acc)
		}
	}

	res, err := d.complexSVD(op, cov)
	if err != nil {
		return nil, err
	}
	return &CrossComplexResult{
		SingularValues:         res.SingularValues,
		A:                      res.U,
		B:                      res.V,
		SquaredTotalCovariance: sqTotal,
		Requested:              res.Requested,
		Truncated:              res.Truncated,
	}, nil
}

// checkPair validates the shared preconditions of the cross
// decompositions and returns the common sample count and the two feature
// counts.
func (d *Decomposer) checkPair(op string, X1, X2 interface{ Dims() (int, int) }) (int, int, int, error) {
	n1, m1 := X1.Dims()
	n2, m2 := X2.Dims()
	if n1 == 0 || m1 == 0 || n2 == 0 || m2 == 0 {
		return 0, 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if n1 != n2 {
		return 0, 0, 0, errors.NewDimensionError(op, n1, n2, 0)
	}
	if n1 < 2 {
		return 0, 0, 0, errors.NewValueError(op, "cross-covariance needs at least 2 samples")
	}
	if err := d.validate(); err != nil {
		return 0, 0, 0, err
	}
	return n1, m1, m2, nil
}
