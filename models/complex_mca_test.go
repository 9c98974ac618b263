package models

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/core/model"
	"github.com/climakit/eofkit/pkg/errors"
)

// laggedWavePair builds two wave fields sharing one oscillation, with
// the second field trailing the first by lag samples.
func laggedWavePair(n, m1, m2 int, cycles, lag float64) (*mat.Dense, *mat.Dense) {
	omega := 2 * math.Pi * cycles / float64(n)
	k1 := 2 * math.Pi / float64(m1)
	k2 := 2 * math.Pi / float64(m2)
	X1 := mat.NewDense(n, m1, nil)
	X2 := mat.NewDense(n, m2, nil)
	for t := 0; t < n; t++ {
		for x := 0; x < m1; x++ {
			X1.Set(t, x, math.Cos(omega*float64(t)-k1*float64(x)))
		}
		for x := 0; x < m2; x++ {
			X2.Set(t, x, math.Cos(omega*(float64(t)-lag)-k2*float64(x)))
		}
	}
	return X1, X2
}

func TestComplexMCACapturesLaggedWave(t *testing.T) {
	n, m1, m2 := 64, 12, 10
	X1, X2 := laggedWavePair(n, m1, m2, 8, 3)

	cmca := NewComplexMCA(WithNModes(1))
	require.NoError(t, cmca.Fit(X1, X2, nil, nil))

	assert.Equal(t, 1, cmca.NModes())
	assert.Equal(t, 0, cmca.PadWidth())

	frac, err := cmca.SquaredCovarianceFraction()
	require.NoError(t, err)
	assert.Greater(t, frac[0], 0.9, "one complex pair must carry the lagged oscillation")

	// The lag shows up as a constant phase offset between the paired
	// score series.
	ph1, ph2, err := cmca.ScoresPhase()
	require.NoError(t, err)
	offset := wrapPhase(ph2.At(0, 0) - ph1.At(0, 0))
	for i := 1; i < n; i++ {
		d := wrapPhase(ph2.At(i, 0) - ph1.At(i, 0))
		assert.InDelta(t, offset, d, 0.05, "phase locking at sample %d", i)
	}

	a1, a2, err := cmca.ComponentsAmplitude()
	require.NoError(t, err)
	r1, k1 := a1.Dims()
	assert.Equal(t, m1, r1)
	assert.Equal(t, 1, k1)
	r2, _ := a2.Dims()
	assert.Equal(t, m2, r2)

	s1, s2, err := cmca.ScoresAmplitude()
	require.NoError(t, err)
	sr1, _ := s1.Dims()
	sr2, _ := s2.Dims()
	assert.Equal(t, n, sr1)
	assert.Equal(t, n, sr2)
}

func TestComplexMCATransformNotImplemented(t *testing.T) {
	X1, X2 := laggedWavePair(32, 6, 5, 4, 2)
	cmca := NewComplexMCA(WithNModes(1))
	require.NoError(t, cmca.Fit(X1, X2, nil, nil))

	_, _, err := cmca.Transform(X1, X2)
	assert.True(t, errors.Is(err, errors.ErrNotImplemented))

	scores1, scores2, err := cmca.Scores()
	require.NoError(t, err)
	_, _, err = cmca.InverseTransform(scores1, scores2)
	assert.True(t, errors.Is(err, errors.ErrNotImplemented))
}

func TestComplexMCAValidation(t *testing.T) {
	X1, X2 := laggedWavePair(32, 6, 5, 4, 2)

	err := NewComplexMCA(WithRotation(RotationPromax)).Fit(X1, X2, nil, nil)
	var verr *errors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "rotation", verr.ParamName)

	short := genericField(31, 5)
	err = NewComplexMCA(WithNModes(1)).Fit(X1, short, nil, nil)
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, de.Axis)
}

func TestComplexMCAPadding(t *testing.T) {
	n := 128
	X1, X2 := laggedWavePair(n, 8, 6, 5.5, 4)

	cmca := NewComplexMCA(WithNModes(1),
		WithPadding(PaddingExp), WithPadFactor(0.25), WithDecayFactor(0.2))
	require.NoError(t, cmca.Fit(X1, X2, nil, nil))

	assert.Equal(t, 32, cmca.PadWidth())
	s1, s2, err := cmca.Scores()
	require.NoError(t, err)
	r1, _ := s1.Dims()
	r2, _ := s2.Dims()
	assert.Equal(t, n, r1, "padding must not leak into the scores")
	assert.Equal(t, n, r2)
}

func TestComplexMCAVarimax(t *testing.T) {
	n, m1, m2 := 64, 12, 10
	X1, X2 := laggedWavePair(n, m1, m2, 8, 3)
	Y1, Y2 := laggedWavePair(n, m1, m2, 5, 6)
	Y1.Scale(0.5, Y1)
	Y2.Scale(0.5, Y2)
	X1.Add(X1, Y1)
	X2.Add(X2, Y2)

	cmca := NewComplexMCA(WithNModes(2), WithRotation(RotationVarimax))
	require.NoError(t, cmca.Fit(X1, X2, nil, nil))

	assert.True(t, cmca.RotationConverged())
	frac, err := cmca.SquaredCovarianceFraction()
	require.NoError(t, err)
	require.Len(t, frac, 2)
	sum := 0.0
	for j, f := range frac {
		if j > 0 {
			assert.GreaterOrEqual(t, frac[j-1], f)
		}
		sum += f
	}
	assert.LessOrEqual(t, sum, 1.0+1e-10)
}

func TestComplexMCAMaskedFeature(t *testing.T) {
	n := 32
	X1, X2 := laggedWavePair(n, 6, 5, 4, 2)
	for i := 0; i < n; i++ {
		X1.Set(i, 1, math.NaN())
	}

	cmca := NewComplexMCA(WithNModes(1))
	require.NoError(t, cmca.Fit(X1, X2, nil, nil))

	a1, a2, err := cmca.ComponentsAmplitude()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(a1.At(1, 0)))
	assert.False(t, math.IsNaN(a1.At(0, 0)))
	assert.False(t, math.IsNaN(a2.At(0, 0)))
}

func TestComplexMCANotFitted(t *testing.T) {
	cmca := NewComplexMCA()
	var nf *errors.NotFittedError

	_, _, err := cmca.Components()
	require.True(t, errors.As(err, &nf))
	_, _, err = cmca.Scores()
	require.True(t, errors.As(err, &nf))
	_, err = cmca.SingularValues()
	require.True(t, errors.As(err, &nf))
	_, err = cmca.SquaredCovarianceFraction()
	require.True(t, errors.As(err, &nf))

	assert.Equal(t, 0, cmca.NModes())
	assert.Equal(t, 0, cmca.PadWidth())
}

func TestComplexMCAGetParams(t *testing.T) {
	params := NewComplexMCA(WithNModes(3), WithPadding(PaddingExp)).GetParams()
	assert.Equal(t, 3, params["n_modes"])
	assert.Equal(t, PaddingExp, params["padding"])
	assert.Contains(t, params, "decay_factor")
	assert.Contains(t, params, "pad_factor")
	assert.Contains(t, params, "squared_loadings")
	assert.NotContains(t, params, "power", "promax does not apply to complex couplings")
}

func TestComplexMCASaveLoad(t *testing.T) {
	X1, X2 := laggedWavePair(64, 8, 6, 4, 3)
	cmca := NewComplexMCA(WithNModes(1),
		WithPadding(PaddingExp), WithPadFactor(0.25), WithDecayFactor(0.2))
	require.NoError(t, cmca.Fit(X1, X2, nil, nil))

	path := filepath.Join(t.TempDir(), "cmca.gob")
	require.NoError(t, cmca.Save(path))

	loaded, err := LoadComplexMCA(path)
	require.NoError(t, err)

	assert.Equal(t, cmca.NModes(), loaded.NModes())
	assert.Equal(t, 16, loaded.PadWidth())

	singA, err := cmca.SingularValues()
	require.NoError(t, err)
	singB, err := loaded.SingularValues()
	require.NoError(t, err)
	assert.InDeltaSlice(t, singA, singB, 1e-12)

	p1A, p2A, err := cmca.ScoresPhase()
	require.NoError(t, err)
	p1B, p2B, err := loaded.ScoresPhase()
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(p1A, p1B, 1e-12))
	assert.True(t, mat.EqualApprox(p2A, p2B, 1e-12))

	var buf bytes.Buffer
	require.NoError(t, loaded.ExportSummary(&buf))
	var sum model.ModelSummary
	require.NoError(t, sum.FromJSON(buf.Bytes()))
	assert.Equal(t, "ComplexMCA", sum.ModelType)
	assert.True(t, sum.Fitted)
	assert.Equal(t, float64(16), sum.Metadata["pad_width"])
	assert.NoError(t, sum.Validate())
}
