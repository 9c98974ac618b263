package hilbert

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/core/parallel"
	"github.com/climakit/eofkit/pkg/errors"
)

// PadExponential extends each column of X with padWidth synthetic samples
// on both ends of the sample axis. The extension fits a linear trend per
// column, continues the edge anomaly with an exponential decay of time
// constant decayFactor*n samples, and adds the extrapolated trend back,
// so the padded series relaxes smoothly toward the trend line instead of
// stopping dead at the record boundary.
func PadExponential(X mat.Matrix, padWidth int, decayFactor float64) (_ *mat.Dense, err error) {
	const op = "hilbert.PadExponential"
	defer errors.Recover(&err, op)

	n, m := X.Dims()
	if n == 0 || m == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if math.IsNaN(decayFactor) || decayFactor <= 0 {
		return nil, errors.NewPaddingError(op, "exp", decayFactor, padWidth, n,
			"decay factor must be positive")
	}
	if padWidth < 0 {
		return nil, errors.NewPaddingError(op, "exp", decayFactor, padWidth, n,
			"pad width must be non-negative")
	}
	if padWidth >= n {
		return nil, errors.NewPaddingError(op, "exp", decayFactor, padWidth, n,
			"pad width must be smaller than the sample count")
	}
	if err := errors.CheckMatrix(op, X); err != nil {
		return nil, err
	}

	if padWidth == 0 {
		out := mat.NewDense(n, m, nil)
		out.Copy(X)
		return out, nil
	}

	// The sample index statistics are shared by every column.
	tMean := float64(n-1) / 2
	tVar := 0.0
	for t := 0; t < n; t++ {
		d := float64(t) - tMean
		tVar += d * d
	}
	tau := decayFactor * float64(n)

	out := mat.NewDense(n+2*padWidth, m, nil)
	parallel.ParallelizeWithThreshold(m, minColumnsParallel, func(start, end int) {
		for j := start; j < end; j++ {
			// Least-squares linear trend over the sample index.
			yMean := 0.0
			for i := 0; i < n; i++ {
				yMean += X.At(i, j)
			}
			yMean /= float64(n)
			cov := 0.0
			for i := 0; i < n; i++ {
				cov += (float64(i) - tMean) * (X.At(i, j) - yMean)
			}
			slope := 0.0
			if tVar > 0 {
				slope = cov / tVar
			}
			intercept := yMean - slope*tMean

			aFirst := X.At(0, j) - intercept
			aLast := X.At(n-1, j) - (intercept + slope*float64(n-1))

			for d := 1; d <= padWidth; d++ {
				decay := math.Exp(-float64(d) / tau)
				tLeft := float64(-d)
				tRight := float64(n - 1 + d)
				out.Set(padWidth-d, j, intercept+slope*tLeft+aFirst*decay)
				out.Set(padWidth+n-1+d, j, intercept+slope*tRight+aLast*decay)
			}
			for i := 0; i < n; i++ {
				out.Set(padWidth+i, j, X.At(i, j))
			}
		}
	})
	return out, nil
}
