package rotation

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/decomposer"
	"github.com/climakit/eofkit/pkg/errors"
)

// ComplexRotation holds a rotated set of complex loadings. The rotation
// matrix of the complex varimax is unitary.
type ComplexRotation struct {
	Loadings   *mat.CDense
	RotMat     *mat.CDense
	Iterations int
	Converged  bool
}

// VarimaxComplex rotates complex loadings with the conjugate-aware
// varimax update. The criterion matches the real case on the loading
// moduli, so amplitude structure simplifies while phase information is
// carried along.
func VarimaxComplex(L *mat.CDense, opts ...Option) (*ComplexRotation, error) {
	const op = "rotation.VarimaxComplex"

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
	if err := errors.CheckCMatrix(op, L); err != nil {
		return nil, err
	}

	R := ceye(k)
	basis := mat.NewCDense(p, k, nil)
	target := mat.NewCDense(p, k, nil)
	transformed := mat.NewCDense(k, k, nil)
	colSums := make([]float64, k)
	alpha := cfg.gamma / float64(p)

	delta := 0.0
	iterations := 0
	converged := false
	for iter := 0; iter < cfg.maxIter; iter++ {
		iterations = iter + 1
		deltaOld := delta

		cmulInto(basis, L, R)
		for j := 0; j < k; j++ {
			s := 0.0
			for i := 0; i < p; i++ {
				b := basis.At(i, j)
				s += real(b)*real(b) + imag(b)*imag(b)
			}
			colSums[j] = s
		}
		for i := 0; i < p; i++ {
			for j := 0; j < k; j++ {
				b := basis.At(i, j)
				mod2 := real(b)*real(b) + imag(b)*imag(b)
				target.Set(i, j, b*complex(mod2-alpha*colSums[j], 0))
			}
		}
		chmulInto(transformed, L, target)

		u, s, v, err := decomposer.ComplexSVD(transformed)
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		delta = 0
		for _, sv := range s {
			delta += sv
		}
		if delta == 0 {
			// The criterion gradient vanished; keep the previous R.
			converged = true
			break
		}
		for a := 0; a < k; a++ {
			for b := 0; b < k; b++ {
				var acc complex128
				for c := 0; c < k; c++ {
					acc += u.At(a, c) * cmplx.Conj(v.At(b, c))
				}
				R.Set(a, b, acc)
			}
		}

		if math.Abs(delta-deltaOld)/delta < cfg.rtol {
			converged = true
			break
		}
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("complex varimax", iterations, cfg.rtol, ""))
	}

	loadings := mat.NewCDense(p, k, nil)
	cmulInto(loadings, L, R)
	return &ComplexRotation{
		Loadings:   loadings,
		RotMat:     R,
		Iterations: iterations,
		Converged:  converged,
	}, nil
}

func ceye(k int) *mat.CDense {
	m := mat.NewCDense(k, k, nil)
	for i := 0; i < k; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// cmulInto computes dst = a * b for complex matrices.
func cmulInto(dst, a, b *mat.CDense) {
	ra, ca := a.Dims()
	_, cb := b.Dims()
	for i := 0; i < ra; i++ {
		for j := 0; j < cb; j++ {
			var acc complex128
			for c := 0; c < ca; c++ {
				acc += a.At(i, c) * b.At(c, j)
			}
			dst.Set(i, j, acc)
		}
	}
}

// chmulInto computes dst = a^H * b for complex matrices.
func chmulInto(dst, a, b *mat.CDense) {
	ra, ca := a.Dims()
	_, cb := b.Dims()
	for j := 0; j < ca; j++ {
		for c := 0; c < cb; c++ {
			var acc complex128
			for i := 0; i < ra; i++ {
				acc += cmplx.Conj(a.At(i, j)) * b.At(i, c)
			}
			dst.Set(j, c, acc)
		}
	}
}
