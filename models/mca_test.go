package models

import (
	"bytes"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/core/model"
	"github.com/climakit/eofkit/metrics"
	"github.com/climakit/eofkit/pkg/errors"
)

// coupledFields builds two fields driven by shared latent series: the
// first latent (std sd1) projects onto the sine patterns of both
// feature spaces, the second (std sd2) onto the cosine patterns. Set
// sd2 to zero for a single shared mode.
func coupledFields(n, m1, m2 int, sd1, sd2, noise float64, seed int64) (X1, X2 *mat.Dense, p1, q1 []float64) {
	p1, p2 := sinCosPatterns(m1)
	q1, q2 := sinCosPatterns(m2)
	rng := rand.New(rand.NewSource(seed))
	X1 = mat.NewDense(n, m1, nil)
	X2 = mat.NewDense(n, m2, nil)
	for i := 0; i < n; i++ {
		a := sd1 * rng.NormFloat64()
		b := sd2 * rng.NormFloat64()
		for j := 0; j < m1; j++ {
			X1.Set(i, j, a*p1[j]+b*p2[j]+noise*rng.NormFloat64())
		}
		for j := 0; j < m2; j++ {
			X2.Set(i, j, a*q1[j]+b*q2[j]+noise*rng.NormFloat64())
		}
	}
	return X1, X2, p1, q1
}

func TestMCARecoversSharedMode(t *testing.T) {
	n, m1, m2 := 80, 15, 10
	X1, X2, p1, q1 := coupledFields(n, m1, m2, 3.0, 0, 0.05, 42)

	mca := NewMCA(WithNModes(2))
	require.NoError(t, mca.Fit(X1, X2, nil, nil))
	assert.Equal(t, 2, mca.NModes())

	frac, err := mca.SquaredCovarianceFraction()
	require.NoError(t, err)
	assert.Greater(t, frac[0], 0.9, "the shared mode must dominate the squared covariance")

	c1, c2, err := mca.Components()
	require.NoError(t, err)
	assert.Greater(t, colCongruence(t, c1, 0, p1), 0.98)
	assert.Greater(t, colCongruence(t, c2, 0, q1), 0.98)

	// Unrotated pairs diagonalize the sample cross-covariance exactly.
	s1, s2, err := mca.Scores()
	require.NoError(t, err)
	sing, err := mca.SingularValues()
	require.NoError(t, err)
	var cross mat.Dense
	cross.Mul(s1.T(), s2)
	cross.Scale(1/float64(n-1), &cross)
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			want := 0.0
			if a == b {
				want = sing[a]
			}
			assert.InDelta(t, want, cross.At(a, b), 1e-10, "cross-covariance entry (%d,%d)", a, b)
		}
	}
}

func TestMCASelfCouplingMatchesEOF(t *testing.T) {
	n, m := 20, 6
	X := genericField(n, m)

	mca := NewMCA(WithNModes(3))
	require.NoError(t, mca.Fit(X, X, nil, nil))
	eof := NewEOF(WithNModes(3))
	require.NoError(t, eof.Fit(X, nil))

	singM, err := mca.SingularValues()
	require.NoError(t, err)
	singE, err := eof.SingularValues()
	require.NoError(t, err)
	for j := range singM {
		assert.InDelta(t, singE[j]*singE[j]/float64(n-1), singM[j], 1e-8,
			"self-coupled covariance must equal the variance spectrum")
	}

	c1, c2, err := mca.Components()
	require.NoError(t, err)
	ce, err := eof.Components()
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(c1, c2, 1e-10), "both sides of a self-coupling share the patterns")
	assert.True(t, mat.EqualApprox(c1, ce, 1e-8))
}

func TestMCATransformNilHandling(t *testing.T) {
	X1, X2, _, _ := coupledFields(40, 8, 6, 3.0, 1.0, 0.05, 7)
	mca := NewMCA(WithNModes(2))
	require.NoError(t, mca.Fit(X1, X2, nil, nil))

	s1Fit, s2Fit, err := mca.Scores()
	require.NoError(t, err)

	s1, s2, err := mca.Transform(X1, X2)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(s1, s1Fit, 1e-10))
	assert.True(t, mat.EqualApprox(s2, s2Fit, 1e-10))

	s1, s2, err = mca.Transform(X1, nil)
	require.NoError(t, err)
	require.NotNil(t, s1)
	assert.Nil(t, s2)
	assert.True(t, mat.EqualApprox(s1, s1Fit, 1e-10))

	s1, s2, err = mca.Transform(nil, X2)
	require.NoError(t, err)
	assert.Nil(t, s1)
	require.NotNil(t, s2)

	_, _, err = mca.Transform(nil, nil)
	var ve *errors.ValueError
	require.True(t, errors.As(err, &ve))
}

func TestMCAInverseTransformReconstructs(t *testing.T) {
	n := 80
	X1, X2, _, _ := coupledFields(n, 15, 10, 3.0, 0, 0.02, 11)

	mca := NewMCA(WithNModes(2))
	require.NoError(t, mca.Fit(X1, X2, nil, nil))

	s1, s2, err := mca.Scores()
	require.NoError(t, err)

	// The leading pair carries the shared signal.
	x1hat, x2hat, err := mca.InverseTransform(s1.Slice(0, n, 0, 1), s2.Slice(0, n, 0, 1))
	require.NoError(t, err)

	re1, err := metrics.ReconstructionError(X1, x1hat)
	require.NoError(t, err)
	assert.Less(t, re1, 0.05)
	re2, err := metrics.ReconstructionError(X2, x2hat)
	require.NoError(t, err)
	assert.Less(t, re2, 0.05)

	// One-sided reconstruction.
	x1hat, x2hat, err = mca.InverseTransform(s1, nil)
	require.NoError(t, err)
	require.NotNil(t, x1hat)
	assert.Nil(t, x2hat)

	_, _, err = mca.InverseTransform(nil, nil)
	var ve *errors.ValueError
	require.True(t, errors.As(err, &ve))
}

func TestMCAVarimaxRotation(t *testing.T) {
	n := 80
	X1, X2, _, _ := coupledFields(n, 12, 9, 3.0, 1.5, 0.05, 13)

	mca := NewMCA(WithNModes(2), WithRotation(RotationVarimax))
	require.NoError(t, mca.Fit(X1, X2, nil, nil))

	assert.True(t, mca.RotationConverged())

	frac, err := mca.SquaredCovarianceFraction()
	require.NoError(t, err)
	for j := 1; j < len(frac); j++ {
		assert.GreaterOrEqual(t, frac[j-1], frac[j], "fractions must stay sorted after rotation")
	}

	// Patterns stay unit-norm per feature space after rotation.
	c1, c2, err := mca.Components()
	require.NoError(t, err)
	for _, c := range []*mat.Dense{c1, c2} {
		r, k := c.Dims()
		for j := 0; j < k; j++ {
			sq := 0.0
			for i := 0; i < r; i++ {
				sq += c.At(i, j) * c.At(i, j)
			}
			assert.InDelta(t, 1.0, sq, 1e-8)
		}
	}

	sing, err := mca.SingularValues()
	require.NoError(t, err)
	for _, s := range sing {
		assert.Greater(t, s, 0.0)
	}
}

func TestMCAHomogeneousPatterns(t *testing.T) {
	n, m1, m2 := 80, 15, 10
	X1, X2, p1, _ := coupledFields(n, m1, m2, 3.0, 0, 0.05, 17)
	for i := 0; i < n; i++ {
		X1.Set(i, 2, math.NaN())
	}

	mca := NewMCA(WithNModes(2))
	require.NoError(t, mca.Fit(X1, X2, nil, nil))

	ps, err := mca.HomogeneousPatterns()
	require.NoError(t, err)

	r1, k1 := ps.Patterns1.Dims()
	assert.Equal(t, m1, r1)
	assert.Equal(t, 2, k1)
	r2, _ := ps.Patterns2.Dims()
	assert.Equal(t, m2, r2)

	// The sine peak of the planted pattern correlates almost perfectly
	// with the mode-1 score series.
	peak := 0
	for j := range p1 {
		if math.Abs(p1[j]) > math.Abs(p1[peak]) {
			peak = j
		}
	}
	assert.Greater(t, math.Abs(ps.Patterns1.At(peak, 0)), 0.95)
	assert.Less(t, ps.PValues1.At(peak, 0), 0.01)

	// The masked feature expands to NaN in both maps.
	assert.True(t, math.IsNaN(ps.Patterns1.At(2, 0)))
	assert.True(t, math.IsNaN(ps.PValues1.At(2, 0)))

	// BH adjustment never lowers a p-value.
	adj, err := mca.HomogeneousPatterns(WithAdjustedPValues(true))
	require.NoError(t, err)
	for i := 0; i < r1; i++ {
		for j := 0; j < k1; j++ {
			raw := ps.PValues1.At(i, j)
			if math.IsNaN(raw) {
				assert.True(t, math.IsNaN(adj.PValues1.At(i, j)))
				continue
			}
			assert.GreaterOrEqual(t, adj.PValues1.At(i, j), raw-1e-15)
		}
	}
}

func TestMCAHeterogeneousPatterns(t *testing.T) {
	n, m1, m2 := 80, 15, 10
	X1, X2, p1, _ := coupledFields(n, m1, m2, 3.0, 0, 0.05, 19)

	mca := NewMCA(WithNModes(2))
	require.NoError(t, mca.Fit(X1, X2, nil, nil))

	ps, err := mca.HeterogeneousPatterns()
	require.NoError(t, err)

	r1, k1 := ps.Patterns1.Dims()
	assert.Equal(t, m1, r1)
	assert.Equal(t, 2, k1)

	// A shared latent makes the first field correlate with the second
	// field's scores just as strongly.
	peak := 0
	for j := range p1 {
		if math.Abs(p1[j]) > math.Abs(p1[peak]) {
			peak = j
		}
	}
	assert.Greater(t, math.Abs(ps.Patterns1.At(peak, 0)), 0.9)
	assert.Less(t, ps.PValues1.At(peak, 0), 0.01)
}

func TestMCADimensionMismatch(t *testing.T) {
	X1 := genericField(20, 5)
	X2 := genericField(19, 4)
	err := NewMCA(WithNModes(2)).Fit(X1, X2, nil, nil)
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, de.Axis)
}

func TestMCASquaredLoadingsRotation(t *testing.T) {
	X1, X2, _, _ := coupledFields(60, 10, 8, 3.0, 1.5, 0.05, 23)

	mca := NewMCA(WithNModes(2), WithRotation(RotationVarimax), WithSquaredLoadings(true))
	require.NoError(t, mca.Fit(X1, X2, nil, nil))

	assert.Equal(t, true, mca.GetParams()["squared_loadings"])
	sing, err := mca.SingularValues()
	require.NoError(t, err)
	for j := 1; j < len(sing); j++ {
		assert.GreaterOrEqual(t, sing[j-1], sing[j])
	}
	frac, err := mca.SquaredCovarianceFraction()
	require.NoError(t, err)
	sum := 0.0
	for _, f := range frac {
		sum += f
	}
	assert.LessOrEqual(t, sum, 1.0+1e-10)
}

func TestMCANotFitted(t *testing.T) {
	mca := NewMCA()
	var nf *errors.NotFittedError

	_, _, err := mca.Components()
	require.True(t, errors.As(err, &nf))
	_, _, err = mca.Scores()
	require.True(t, errors.As(err, &nf))
	_, err = mca.SingularValues()
	require.True(t, errors.As(err, &nf))
	_, _, err = mca.Transform(genericField(6, 3), nil)
	require.True(t, errors.As(err, &nf))
	_, err = mca.HomogeneousPatterns()
	require.True(t, errors.As(err, &nf))

	assert.Equal(t, 0, mca.NModes())
}

func TestMCASaveLoad(t *testing.T) {
	X1, X2, _, _ := coupledFields(60, 10, 8, 3.0, 1.0, 0.05, 29)
	mca := NewMCA(WithNModes(2))
	require.NoError(t, mca.Fit(X1, X2, nil, nil))

	path := filepath.Join(t.TempDir(), "mca.gob")
	require.NoError(t, mca.Save(path))

	loaded, err := LoadMCA(path)
	require.NoError(t, err)

	singA, err := mca.SingularValues()
	require.NoError(t, err)
	singB, err := loaded.SingularValues()
	require.NoError(t, err)
	assert.InDeltaSlice(t, singA, singB, 1e-12)

	s1A, _, err := mca.Transform(X1, nil)
	require.NoError(t, err)
	s1B, _, err := loaded.Transform(X1, nil)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(s1A, s1B, 1e-12))

	// Pattern maps need the stored training matrices.
	psA, err := mca.HomogeneousPatterns()
	require.NoError(t, err)
	psB, err := loaded.HomogeneousPatterns()
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(psA.Patterns1, psB.Patterns1, 1e-12))
	assert.True(t, mat.EqualApprox(psA.PValues2, psB.PValues2, 1e-12))
}

func TestMCASummary(t *testing.T) {
	X1, X2, _, _ := coupledFields(60, 10, 8, 3.0, 1.0, 0.05, 31)
	mca := NewMCA(WithNModes(2))
	require.NoError(t, mca.Fit(X1, X2, nil, nil))

	var buf bytes.Buffer
	require.NoError(t, mca.ExportSummary(&buf))

	var sum model.ModelSummary
	require.NoError(t, sum.FromJSON(buf.Bytes()))
	assert.Equal(t, "MCA", sum.ModelType)
	assert.True(t, sum.Fitted)
	assert.Equal(t, 60, sum.NSamples)
	assert.Equal(t, 18, sum.NFeatures, "both feature spaces count")
	assert.Empty(t, sum.ExplainedVarianceRatio, "covariance models report fractions through metadata")
	assert.NoError(t, sum.Validate())

	frac, ok := sum.Metadata["squared_covariance_fraction"].([]interface{})
	require.True(t, ok)
	assert.Len(t, frac, 2)
	assert.Equal(t, float64(10), sum.Metadata["valid_features1"])
	assert.Equal(t, float64(8), sum.Metadata["valid_features2"])
}
