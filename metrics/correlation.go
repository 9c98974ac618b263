package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/climakit/eofkit/pkg/errors"
)

// ColumnCorrelations computes the Pearson correlation of every column of
// X with the series y, together with the two-sided p-value of the
// t statistic r*sqrt((n-2)/(1-r^2)) under the null of zero correlation.
// A constant column has no defined correlation; it is reported as r=0,
// p=1 with an UndefinedMetricWarning.
func ColumnCorrelations(X mat.Matrix, y []float64) (r, p []float64, err error) {
	n, m := X.Dims()
	if n == 0 || m == 0 {
		return nil, nil, errors.NewValueError("ColumnCorrelations", "empty matrix")
	}
	if len(y) != n {
		return nil, nil, errors.NewDimensionError("ColumnCorrelations", n, len(y), 0)
	}
	if n < 3 {
		return nil, nil, errors.NewValueError("ColumnCorrelations", "at least 3 samples are required for a t-test")
	}
	if err := errors.CheckVector("ColumnCorrelations", y); err != nil {
		return nil, nil, err
	}

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	r = make([]float64, m)
	p = make([]float64, m)
	col := make([]float64, n)
	for j := 0; j < m; j++ {
		mat.Col(col, j, X)
		rho := stat.Correlation(col, y, nil)
		switch {
		case math.IsNaN(rho):
			errors.Warn(errors.NewUndefinedMetricWarning("column_correlation", "a zero-variance series", 0))
			r[j] = 0
			p[j] = 1
		case math.Abs(rho) >= 1:
			r[j] = math.Copysign(1, rho)
			p[j] = 0
		default:
			r[j] = rho
			t := rho * math.Sqrt(float64(n-2)/(1-rho*rho))
			p[j] = 2 * (1 - dist.CDF(math.Abs(t)))
		}
	}
	return r, p, nil
}

// CorrelationMaps correlates every column of X against every column of
// the score matrix S, producing feature x mode maps of correlations and
// their p-values.
func CorrelationMaps(X, S mat.Matrix) (r, p *mat.Dense, err error) {
	n, m := X.Dims()
	ns, k := S.Dims()
	if n == 0 || m == 0 || k == 0 {
		return nil, nil, errors.NewValueError("CorrelationMaps", "empty matrix")
	}
	if ns != n {
		return nil, nil, errors.NewDimensionError("CorrelationMaps", n, ns, 0)
	}

	r = mat.NewDense(m, k, nil)
	p = mat.NewDense(m, k, nil)
	series := make([]float64, n)
	for c := 0; c < k; c++ {
		mat.Col(series, c, S)
		rc, pc, err := ColumnCorrelations(X, series)
		if err != nil {
			return nil, nil, err
		}
		for j := 0; j < m; j++ {
			r.Set(j, c, rc[j])
			p.Set(j, c, pc[j])
		}
	}
	return r, p, nil
}

// AdjustPValuesBH applies the Benjamini-Hochberg step-up adjustment to a
// set of p-values, controlling the false discovery rate across the
// family. The input is not modified.
func AdjustPValuesBH(p []float64) []float64 {
	n := len(p)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return p[order[a]] < p[order[b]]
	})

	// Scale by rank, then enforce monotonicity from the largest rank
	// down and clip into [0, 1].
	running := 1.0
	for rank := n - 1; rank >= 0; rank-- {
		idx := order[rank]
		adj := p[idx] * float64(n) / float64(rank+1)
		if adj < running {
			running = adj
		}
		out[idx] = errors.ClipValue(running, 0, 1)
	}
	return out
}
