// Package rotation implements the orthomax family of factor rotations
// used to redistribute variance among decomposition modes: varimax
// (orthogonal) and promax (oblique) for real loadings, plus a varimax
// variant for complex loadings.
//
// Rotations operate on a loading matrix with one feature per row and one
// mode per column. The criterion maximization is iterative; when the
// iteration budget runs out the last iterate is returned together with
// Converged=false and a ConvergenceWarning, leaving the caller to decide
// whether the result is acceptable.
package rotation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/pkg/errors"
)

// Defaults for the iterative criterion maximization.
const (
	DefaultMaxIter = 1000
	DefaultRTol    = 1e-8

	// DefaultGamma selects the varimax criterion within the orthomax
	// family; 0 would select quartimax.
	DefaultGamma = 1.0
)

type config struct {
	gamma   float64
	maxIter int
	rtol    float64
}

// Option configures a rotation.
type Option func(*config)

// WithGamma sets the orthomax criterion parameter: 1 is varimax, 0 is
// quartimax.
func WithGamma(gamma float64) Option {
	return func(c *config) {
		c.gamma = gamma
	}
}

// WithMaxIter sets the iteration budget.
func WithMaxIter(n int) Option {
	return func(c *config) {
		c.maxIter = n
	}
}

// WithTolerance sets the relative convergence tolerance on the rotation
// criterion.
func WithTolerance(rtol float64) Option {
	return func(c *config) {
		c.rtol = rtol
	}
}

func newConfig(opts ...Option) config {
	c := config{
		gamma:   DefaultGamma,
		maxIter: DefaultMaxIter,
		rtol:    DefaultRTol,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c config) validate(op string) error {
	if c.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", c.maxIter)
	}
	if c.rtol <= 0 || math.IsNaN(c.rtol) {
		return errors.NewValidationError("rtol", "must be positive", c.rtol)
	}
	if math.IsNaN(c.gamma) || c.gamma < 0 {
		return errors.NewValidationError("gamma", "must be non-negative", c.gamma)
	}
	return nil
}

// Rotation holds a rotated set of real loadings.
type Rotation struct {
	// Loadings is the rotated loading matrix, features x modes.
	Loadings *mat.Dense
	// RotMat is the accumulated transform T with Loadings = L * T. It is
	// orthogonal for varimax and oblique for promax with power > 1.
	RotMat *mat.Dense
	// Phi is the mode correlation matrix: identity for orthogonal
	// rotations, (T^T T)^-1 of the normalized oblique transform for
	// promax.
	Phi *mat.Dense
	// Iterations is the number of criterion iterations performed.
	Iterations int
	// Converged reports whether the criterion change reached the
	// tolerance within the iteration budget.
	Converged bool
}

// Varimax rotates the loading matrix L with the orthomax criterion,
// concentrating the variance of the squared loadings within each mode.
func Varimax(L *mat.Dense, opts ...Option) (*Rotation, error) {
	const op = "rotation.Varimax"

	cfg := newConfig(opts...)
	if err := cfg.validate(op); err != nil {
		return nil, err
	}
	p, k := L.Dims()
	if p == 0 || k == 0 {
		return nil, errors.NewModelError(op, "empty loadings", errors.ErrEmptyData)
	}
	if k < 2 {
		return nil, errors.NewValueError(op, "at least 2 modes are required to rotate")
	}
	if err := errors.CheckMatrix(op, L); err != nil {
		return nil, err
	}

	R := eye(k)
	basis := mat.NewDense(p, k, nil)
	target := mat.NewDense(p, k, nil)
	var transformed mat.Dense
	colSums := make([]float64, k)
	alpha := cfg.gamma / float64(p)

	delta := 0.0
	iterations := 0
	converged := false
	for iter := 0; iter < cfg.maxIter; iter++ {
		iterations = iter + 1
		deltaOld := delta

		basis.Mul(L, R)
		for j := 0; j < k; j++ {
			s := 0.0
			for i := 0; i < p; i++ {
				b := basis.At(i, j)
				s += b * b
			}
			colSums[j] = s
		}
		for i := 0; i < p; i++ {
			for j := 0; j < k; j++ {
				b := basis.At(i, j)
				target.Set(i, j, b*b*b-alpha*b*colSums[j])
			}
		}
		transformed.Mul(L.T(), target)

		var svd mat.SVD
		if !svd.Factorize(&transformed, mat.SVDThin) {
			return nil, errors.NewModelError(op, "criterion factorization failed", errors.ErrSingularMatrix)
		}
		delta = floats.Sum(svd.Values(nil))
		if delta == 0 {
			// The criterion gradient vanished; keep the previous R.
			converged = true
			break
		}
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)
		R.Mul(&u, v.T())

		if math.Abs(delta-deltaOld)/delta < cfg.rtol {
			converged = true
			break
		}
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("varimax", iterations, cfg.rtol, ""))
	}

	loadings := mat.NewDense(p, k, nil)
	loadings.Mul(L, R)
	return &Rotation{
		Loadings:   loadings,
		RotMat:     R,
		Phi:        eye(k),
		Iterations: iterations,
		Converged:  converged,
	}, nil
}

func eye(k int) *mat.Dense {
	m := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		m.Set(i, i, 1)
	}
	return m
}
