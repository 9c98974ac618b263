package models

import (
	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/metrics"
)

// PatternSet holds per-mode correlation maps for the two fields of a
// coupled decomposition, re-expanded to the raw feature layouts with
// NaN rows for dropped features. Patterns hold the correlation
// coefficients, PValues the two-sided t-test p-values.
type PatternSet struct {
	Patterns1 *mat.Dense
	PValues1  *mat.Dense
	Patterns2 *mat.Dense
	PValues2  *mat.Dense
}

type patternConfig struct {
	adjust bool
}

// PatternOption configures the correlation pattern computation.
type PatternOption func(*patternConfig)

// WithAdjustedPValues applies a Benjamini-Hochberg adjustment to each
// mode's p-value map, controlling the false discovery rate over the
// features of that mode.
func WithAdjustedPValues(adjust bool) PatternOption {
	return func(c *patternConfig) { c.adjust = adjust }
}

// HomogeneousPatterns correlates each field with its own scores,
// mapping where a mode expresses itself in the field it was derived
// from.
func (m *MCA) HomogeneousPatterns(opts ...PatternOption) (*PatternSet, error) {
	return m.patterns("HomogeneousPatterns", false, opts...)
}

// HeterogeneousPatterns correlates each field with the partner field's
// scores, mapping how well one field is predicted by the other's mode
// amplitudes.
func (m *MCA) HeterogeneousPatterns(opts ...PatternOption) (*PatternSet, error) {
	return m.patterns("HeterogeneousPatterns", true, opts...)
}

func (m *MCA) patterns(method string, swap bool, opts ...PatternOption) (*PatternSet, error) {
	cfg := patternConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	st, err := m.snapshot(method)
	if err != nil {
		return nil, err
	}

	s1, s2 := st.sol.scores1, st.sol.scores2
	if swap {
		s1, s2 = s2, s1
	}
	r1, p1, err := metrics.CorrelationMaps(st.clean1, s1)
	if err != nil {
		return nil, err
	}
	r2, p2, err := metrics.CorrelationMaps(st.clean2, s2)
	if err != nil {
		return nil, err
	}
	if cfg.adjust {
		adjustColumns(p1)
		adjustColumns(p2)
	}

	set := &PatternSet{}
	if set.Patterns1, err = st.prep1.ExpandRows(r1); err != nil {
		return nil, err
	}
	if set.PValues1, err = st.prep1.ExpandRows(p1); err != nil {
		return nil, err
	}
	if set.Patterns2, err = st.prep2.ExpandRows(r2); err != nil {
		return nil, err
	}
	if set.PValues2, err = st.prep2.ExpandRows(p2); err != nil {
		return nil, err
	}
	return set, nil
}

// adjustColumns replaces each column with its Benjamini-Hochberg
// adjusted p-values.
func adjustColumns(p *mat.Dense) {
	r, c := p.Dims()
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, p)
		adj := metrics.AdjustPValuesBH(col)
		for i := 0; i < r; i++ {
			p.Set(i, j, adj[i])
		}
	}
}
