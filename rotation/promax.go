package rotation

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/pkg/errors"
)

// Promax computes an oblique promax rotation: a varimax rotation followed
// by a least-squares fit of the loadings to their power-amplified target.
// Power 1 reduces to plain varimax; larger powers let modes correlate,
// which usually concentrates geophysical patterns onto fewer features.
func Promax(L *mat.Dense, power int, opts ...Option) (*Rotation, error) {
	const op = "rotation.Promax"

	if power < 1 {
		return nil, errors.NewValidationError("power", "must be at least 1", power)
	}
	rot, err := Varimax(L, opts...)
	if err != nil {
		return nil, err
	}
	if power == 1 {
		return rot, nil
	}

	p, k := rot.Loadings.Dims()

	// Oblique target: each loading amplified by its own magnitude.
	P := mat.NewDense(p, k, nil)
	for i := 0; i < p; i++ {
		for j := 0; j < k; j++ {
			x := rot.Loadings.At(i, j)
			P.Set(i, j, x*math.Pow(math.Abs(x), float64(power-1)))
		}
	}

	// Least-squares transform with Loadings * T ~ P.
	var T mat.Dense
	if err := T.Solve(rot.Loadings, P); err != nil {
		return nil, errors.NewModelError(op, "target fit failed", errors.ErrSingularMatrix)
	}

	// Normalize the transform columns so the mode correlation matrix
	// gets a unit diagonal.
	var tt, ttInv mat.Dense
	tt.Mul(T.T(), &T)
	if err := ttInv.Inverse(&tt); err != nil {
		return nil, errors.NewModelError(op, "degenerate transform", errors.ErrSingularMatrix)
	}
	for j := 0; j < k; j++ {
		scale := math.Sqrt(ttInv.At(j, j))
		for i := 0; i < k; i++ {
			T.Set(i, j, T.At(i, j)*scale)
		}
	}

	loadings := mat.NewDense(p, k, nil)
	loadings.Mul(rot.Loadings, &T)
	rotMat := mat.NewDense(k, k, nil)
	rotMat.Mul(rot.RotMat, &T)

	var ttNorm, phi mat.Dense
	ttNorm.Mul(T.T(), &T)
	if err := phi.Inverse(&ttNorm); err != nil {
		return nil, errors.NewModelError(op, "degenerate transform", errors.ErrSingularMatrix)
	}

	return &Rotation{
		Loadings:   loadings,
		RotMat:     rotMat,
		Phi:        &phi,
		Iterations: rot.Iterations,
		Converged:  rot.Converged,
	}, nil
}
