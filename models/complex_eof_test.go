package models

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/pkg/errors"
)

// waveField builds a propagating wave amp*cos(omega*t - kappa*x) with
// the given number of temporal cycles over n samples and spatial cycles
// over m features. Integer cycle counts make the series exactly
// periodic, so the discrete analytic signal is exact.
func waveField(n, m int, cycles, spatialCycles, amp float64) *mat.Dense {
	omega := 2 * math.Pi * cycles / float64(n)
	kappa := 2 * math.Pi * spatialCycles / float64(m)
	X := mat.NewDense(n, m, nil)
	for t := 0; t < n; t++ {
		for x := 0; x < m; x++ {
			X.Set(t, x, amp*math.Cos(omega*float64(t)-kappa*float64(x)))
		}
	}
	return X
}

func wrapPhase(d float64) float64 {
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d < -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

func TestComplexEOFCapturesPropagatingWave(t *testing.T) {
	warnings := captureWarnings(t)
	n, m := 64, 16
	X := waveField(n, m, 8, 1, 1.0)

	ceof := NewComplexEOF(WithNModes(1))
	require.NoError(t, ceof.Fit(X, nil))

	assert.Equal(t, 1, ceof.NModes())
	assert.False(t, ceof.Truncated())
	assert.Equal(t, 0, ceof.PadWidth())
	assert.Empty(t, *warnings)

	ratio, err := ceof.ExplainedVarianceRatio()
	require.NoError(t, err)
	assert.Greater(t, ratio[0], 0.99, "a single complex mode must capture the whole wave")

	// The spatial phase advances by kappa per feature; the constant
	// orientation phase cancels in the differences.
	comps, err := ceof.Components()
	require.NoError(t, err)
	phase, err := ceof.ComponentsPhase()
	require.NoError(t, err)
	kappa := 2 * math.Pi / float64(m)
	for x := 1; x < m; x++ {
		d := wrapPhase(phase.At(x, 0) - phase.At(x-1, 0))
		assert.InDelta(t, kappa, d, 0.02, "phase step at feature %d", x)
	}

	// Uniform wave envelope: constant score amplitude.
	amp, err := ceof.ScoresAmplitude()
	require.NoError(t, err)
	mean := 0.0
	for i := 0; i < n; i++ {
		mean += amp.At(i, 0)
	}
	mean /= float64(n)
	require.Greater(t, mean, 0.0)
	for i := 0; i < n; i++ {
		assert.InEpsilon(t, mean, amp.At(i, 0), 1e-6)
	}

	// Rank-1 capture reconstructs the raw field.
	scores, err := ceof.Scores()
	require.NoError(t, err)
	rec, err := ceof.InverseTransform(scores)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(rec, X, 1e-8))

	// Orientation: the largest-modulus loading is real positive.
	best, bestAbs := 0, 0.0
	for x := 0; x < m; x++ {
		re := real(comps.At(x, 0))
		im := imag(comps.At(x, 0))
		if a := math.Hypot(re, im); a > bestAbs {
			best, bestAbs = x, a
		}
	}
	assert.InDelta(t, 0, imag(comps.At(best, 0)), 1e-8)
	assert.Greater(t, real(comps.At(best, 0)), 0.0)
}

func TestComplexEOFTruncatesAtRank(t *testing.T) {
	warnings := captureWarnings(t)
	X := waveField(64, 8, 8, 1, 1.0)

	ceof := NewComplexEOF(WithNModes(5))
	require.NoError(t, ceof.Fit(X, nil))

	assert.Equal(t, 1, ceof.NModes())
	assert.True(t, ceof.Truncated())
	require.Len(t, *warnings, 1)
	var tw *errors.TruncatedModesWarning
	require.True(t, errors.As((*warnings)[0], &tw))
	assert.Equal(t, 5, tw.Requested)
	assert.Equal(t, 1, tw.Available)
}

func TestComplexEOFPaddingReducesEdgeArtifacts(t *testing.T) {
	// 6.5 cycles: the record ends mid-cycle, so the unpadded transform
	// rings at the boundaries.
	n, m := 200, 8
	X := waveField(n, m, 6.5, 1, 1.0)

	unpadded := NewComplexEOF(WithNModes(1))
	require.NoError(t, unpadded.Fit(X, nil))
	padded := NewComplexEOF(WithNModes(1),
		WithPadding(PaddingExp), WithPadFactor(0.5), WithDecayFactor(0.2))
	require.NoError(t, padded.Fit(X, nil))

	assert.Equal(t, 0, unpadded.PadWidth())
	assert.Equal(t, 100, padded.PadWidth())

	ampU, err := unpadded.ScoresAmplitude()
	require.NoError(t, err)
	ampP, err := padded.ScoresAmplitude()
	require.NoError(t, err)
	rU, _ := ampU.Dims()
	rP, _ := ampP.Dims()
	require.Equal(t, n, rU, "padding must not leak into the scores")
	require.Equal(t, n, rP)

	edgeDeviation := func(amp *mat.Dense) float64 {
		mid := 0.0
		for i := n / 3; i < 2*n/3; i++ {
			mid += amp.At(i, 0)
		}
		mid /= float64(2*n/3 - n/3)
		dev := 0.0
		for i := 0; i < 10; i++ {
			dev = math.Max(dev, math.Abs(amp.At(i, 0)-mid))
			dev = math.Max(dev, math.Abs(amp.At(n-1-i, 0)-mid))
		}
		return dev
	}
	assert.Less(t, edgeDeviation(ampP), edgeDeviation(ampU),
		"padding must flatten the score amplitude near the record ends")
}

func TestComplexEOFTransformNotImplemented(t *testing.T) {
	X := waveField(32, 6, 4, 1, 1.0)
	ceof := NewComplexEOF(WithNModes(1))
	require.NoError(t, ceof.Fit(X, nil))

	_, err := ceof.Transform(X)
	assert.True(t, errors.Is(err, errors.ErrNotImplemented))
}

func TestComplexEOFValidation(t *testing.T) {
	cases := []struct {
		name  string
		opts  []Option
		param string
	}{
		{"promax on complex", []Option{WithRotation(RotationPromax)}, "rotation"},
		{"pad factor one", []Option{WithPadding(PaddingExp), WithPadFactor(1.0)}, "pad_factor"},
		{"negative decay", []Option{WithPadding(PaddingExp), WithDecayFactor(-0.1)}, "decay_factor"},
	}
	X := waveField(32, 6, 4, 1, 1.0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewComplexEOF(tc.opts...).Fit(X, nil)
			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.param, verr.ParamName)
		})
	}
}

func TestComplexEOFMaskedFeature(t *testing.T) {
	n, m := 32, 6
	X := waveField(n, m, 4, 1, 1.0)
	for i := 0; i < n; i++ {
		X.Set(i, 2, math.NaN())
	}

	ceof := NewComplexEOF(WithNModes(1))
	require.NoError(t, ceof.Fit(X, nil))

	comps, err := ceof.Components()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(real(comps.At(2, 0))))
	assert.False(t, math.IsNaN(real(comps.At(0, 0))))

	ampMap, err := ceof.ComponentsAmplitude()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(ampMap.At(2, 0)))
	assert.False(t, math.IsNaN(ampMap.At(0, 0)))

	phaseMap, err := ceof.ComponentsPhase()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(phaseMap.At(2, 0)))
}

func TestComplexEOFVarimaxInvariants(t *testing.T) {
	// Two propagating waves with distinct frequencies, wavenumbers and
	// amplitudes: an exactly rank-2 analytic matrix.
	n, m := 64, 12
	X := waveField(n, m, 8, 1, 2.0)
	second := waveField(n, m, 5, 2, 1.0)
	X.Add(X, second)

	plain := NewComplexEOF(WithNModes(2))
	require.NoError(t, plain.Fit(X, nil))
	rotated := NewComplexEOF(WithNModes(2), WithRotation(RotationVarimax))
	require.NoError(t, rotated.Fit(X, nil))

	assert.True(t, rotated.RotationConverged())

	evPlain, err := plain.ExplainedVariance()
	require.NoError(t, err)
	evRot, err := rotated.ExplainedVariance()
	require.NoError(t, err)
	assert.InDelta(t, floats.Sum(evPlain), floats.Sum(evRot), 1e-8,
		"a unitary rotation must conserve total variance")

	sing, err := rotated.SingularValues()
	require.NoError(t, err)
	for j := 1; j < len(sing); j++ {
		assert.GreaterOrEqual(t, sing[j-1], sing[j])
	}

	sPlain, err := plain.Scores()
	require.NoError(t, err)
	recPlain, err := plain.InverseTransform(sPlain)
	require.NoError(t, err)
	sRot, err := rotated.Scores()
	require.NoError(t, err)
	recRot, err := rotated.InverseTransform(sRot)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(recPlain, recRot, 1e-8))
	assert.True(t, mat.EqualApprox(recPlain, X, 1e-8), "rank-2 capture must reconstruct the raw field")
}

func TestComplexEOFSaveLoad(t *testing.T) {
	n, m := 64, 8
	X := waveField(n, m, 4.5, 1, 1.0)

	ceof := NewComplexEOF(WithNModes(1),
		WithPadding(PaddingExp), WithPadFactor(0.25), WithDecayFactor(0.2))
	require.NoError(t, ceof.Fit(X, nil))

	path := filepath.Join(t.TempDir(), "ceof.gob")
	require.NoError(t, ceof.Save(path))

	loaded, err := LoadComplexEOF(path)
	require.NoError(t, err)

	assert.Equal(t, ceof.NModes(), loaded.NModes())
	assert.Equal(t, 16, loaded.PadWidth())
	assert.Equal(t, PaddingExp, loaded.GetParams()["padding"])

	singA, err := ceof.SingularValues()
	require.NoError(t, err)
	singB, err := loaded.SingularValues()
	require.NoError(t, err)
	assert.InDeltaSlice(t, singA, singB, 1e-12)

	ampA, err := ceof.ScoresAmplitude()
	require.NoError(t, err)
	ampB, err := loaded.ScoresAmplitude()
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(ampA, ampB, 1e-12))

	scores, err := loaded.Scores()
	require.NoError(t, err)
	recA, err := ceof.InverseTransform(scores)
	require.NoError(t, err)
	recB, err := loaded.InverseTransform(scores)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(recA, recB, 1e-12),
		"the reloaded preprocessor must invert identically")
}
