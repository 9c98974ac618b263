// Package metrics provides quality measures for fitted decompositions:
// reconstruction error, pattern similarity, explained-variance summaries,
// and the correlation statistics behind homogeneous and heterogeneous
// pattern maps.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/pkg/errors"
)

// ReconstructionError computes the relative Frobenius reconstruction
// error ||X - Xhat||_F / ||X||_F. Entries where either matrix is NaN are
// skipped, so re-expanded reconstructions with masked feature columns
// compare cleanly against the raw input.
func ReconstructionError(X, Xhat mat.Matrix) (float64, error) {
	rT, cT := X.Dims()
	rP, cP := Xhat.Dims()
	if rT == 0 || cT == 0 {
		return 0, errors.NewValueError("ReconstructionError", "empty matrix")
	}
	if rT != rP || cT != cP {
		return 0, errors.NewDimensionError("ReconstructionError", rT, rP, 0)
	}

	num, den := 0.0, 0.0
	counted := 0
	for i := 0; i < rT; i++ {
		for j := 0; j < cT; j++ {
			x := X.At(i, j)
			h := Xhat.At(i, j)
			if math.IsNaN(x) || math.IsNaN(h) {
				continue
			}
			d := x - h
			num += d * d
			den += x * x
			counted++
		}
	}
	if counted == 0 {
		return 0, errors.NewValueError("ReconstructionError", "no overlapping finite entries")
	}
	if den == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("reconstruction_error", "a zero reference matrix", 0))
		return 0, nil
	}
	return math.Sqrt(num / den), nil
}

// CongruenceCoefficient computes Tucker's congruence between two pattern
// vectors, taken as an absolute value so that the sign indeterminacy of
// singular vectors cannot flip the score. 1 means identical patterns up
// to sign, 0 means orthogonal patterns.
func CongruenceCoefficient(a, b mat.Vector) (float64, error) {
	n := a.Len()
	if n == 0 {
		return 0, errors.NewValueError("CongruenceCoefficient", "empty vector")
	}
	if b.Len() != n {
		return 0, errors.NewDimensionError("CongruenceCoefficient", n, b.Len(), 0)
	}

	dot, na, nb := 0.0, 0.0, 0.0
	for i := 0; i < n; i++ {
		va := a.AtVec(i)
		vb := b.AtVec(i)
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("congruence_coefficient", "a zero-norm pattern", 0))
		return 0, nil
	}
	return math.Abs(dot) / math.Sqrt(na*nb), nil
}

// CumulativeExplainedVariance accumulates a ratio sequence into running
// totals: out[i] is the variance fraction carried by modes 0..i.
func CumulativeExplainedVariance(ratio []float64) []float64 {
	out := make([]float64, len(ratio))
	sum := 0.0
	for i, r := range ratio {
		sum += r
		out[i] = sum
	}
	return out
}
