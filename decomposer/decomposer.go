// Package decomposer provides the truncated singular value decompositions
// at the core of the library: thin SVD of a real or complex data matrix,
// and SVD of the cross-covariance between two matrices sharing a sample
// axis.
//
// Every entry point retains at most the requested number of leading modes.
// When the numerical rank of the input is smaller than the request, the
// available modes are returned and a TruncatedModesWarning is raised
// through the warning handler; truncation is advisory, never an error.
package decomposer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/pkg/errors"
)

// defaultRankTolerance is the relative singular value threshold below
// which a mode counts as numerically null.
const defaultRankTolerance = 1e-12

// Decomposer computes truncated singular value decompositions.
type Decomposer struct {
	nModes  int
	rankTol float64
}

// Option configures a Decomposer.
type Option func(*Decomposer)

// WithRankTolerance sets the relative threshold under which singular
// values are treated as zero when determining the numerical rank.
func WithRankTolerance(tol float64) Option {
	return func(d *Decomposer) {
		d.rankTol = tol
	}
}

// NewDecomposer creates a Decomposer retaining at most nModes modes.
func NewDecomposer(nModes int, opts ...Option) *Decomposer {
	d := &Decomposer{
		nModes:  nModes,
		rankTol: defaultRankTolerance,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result holds a truncated real decomposition X ~ U * diag(S) * V^T.
type Result struct {
	// SingularValues in descending order, one per retained mode.
	SingularValues []float64
	// U holds the left singular vectors, one orthonormal column per mode.
	U *mat.Dense
	// V holds the right singular vectors, one orthonormal column per mode.
	V *mat.Dense
	// Requested is the mode count asked for; Truncated reports whether
	// the numerical rank forced fewer.
	Requested int
	Truncated bool
}

// NModes returns the number of retained modes.
func (r *Result) NModes() int {
	return len(r.SingularValues)
}

// Decompose computes the truncated thin SVD of X.
func (d *Decomposer) Decompose(X mat.Matrix) (_ *Result, err error) {
	const op = "Decomposer.Decompose"
	// gonum's mat package panics on shape misuse; surface that as an
	// error instead of taking the caller down.
	defer errors.Recover(&err, op)

	n, m := X.Dims()
	if n == 0 || m == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	if err := errors.CheckMatrix(op, X); err != nil {
		return nil, err
	}
	return d.realSVD(op, X)
}

// realSVD factorizes an already validated matrix and truncates the
// triplets to the retained mode count.
func (d *Decomposer) realSVD(op string, X mat.Matrix) (*Result, error) {
	n, m := X.Dims()

	var svd mat.SVD
	if !svd.Factorize(X, mat.SVDThin) {
		return nil, errors.NewModelError(op, "factorization failed to converge", errors.ErrSingularMatrix)
	}
	vals := svd.Values(nil)

	k, truncated, err := d.retained(op, vals)
	if err != nil {
		return nil, err
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	return &Result{
		SingularValues: vals[:k:k],
		U:              mat.DenseCopyOf(u.Slice(0, n, 0, k)),
		V:              mat.DenseCopyOf(v.Slice(0, m, 0, k)),
		Requested:      d.nModes,
		Truncated:      truncated,
	}, nil
}

func (d *Decomposer) validate() error {
	if d.nModes < 1 {
		return errors.NewValidationError("n_modes", "must be at least 1", d.nModes)
	}
	if d.rankTol <= 0 {
		return errors.NewValidationError("rank_tolerance", "must be positive", d.rankTol)
	}
	return nil
}

// retained counts the modes surviving the rank check, raising the
// advisory warning when fewer than requested remain. A numerically zero
// input is an error: there is nothing to decompose.
func (d *Decomposer) retained(op string, vals []float64) (int, bool, error) {
	rank := numericalRank(vals, d.rankTol)
	if rank == 0 {
		return 0, false, errors.NewModelError(op, "input has rank zero", errors.ErrSingularMatrix)
	}
	k := d.nModes
	if k > rank {
		errors.Warn(errors.NewTruncatedModesWarning(op, d.nModes, rank))
		k = rank
	}
	return k, k < d.nModes, nil
}

func numericalRank(vals []float64, tol float64) int {
	if len(vals) == 0 {
		return 0
	}
	thresh := vals[0] * tol
	rank := 0
	for _, s := range vals {
		if s > thresh && s > 0 {
			rank++
		}
	}
	return rank
}
