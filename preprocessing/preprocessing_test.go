package preprocessing

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/pkg/errors"
)

func TestPreprocessorMasksAllNaNColumns(t *testing.T) {
	nan := math.NaN()
	X := mat.NewDense(3, 4, []float64{
		1, nan, 2, 10,
		2, nan, 4, 20,
		3, nan, 6, 30,
	})

	p := NewPreprocessor()
	clean, err := p.FitTransform(X, nil)
	require.NoError(t, err)

	r, c := clean.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, []bool{true, false, true, true}, p.FeatureMask())
	assert.Equal(t, 3, p.NValidFeatures())
	assert.Equal(t, 4, p.NFeaturesIn())

	// Centered columns sum to zero.
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += clean.At(i, j)
		}
		assert.InDelta(t, 0, sum, 1e-12)
	}
}

func TestPreprocessorRejectsPartialNaN(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1, 5,
		math.NaN(), 6,
		3, 7,
	})

	p := NewPreprocessor()
	err := p.Fit(X, nil)
	require.Error(t, err)

	var nf *errors.NonFiniteError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, 1, nf.Row)
	assert.Equal(t, 0, nf.Col)
}

func TestPreprocessorRejectsInf(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{
		1, math.Inf(1),
		2, 3,
	})

	err := NewPreprocessor().Fit(X, nil)
	var nf *errors.NonFiniteError
	require.True(t, errors.As(err, &nf))
}

func TestPreprocessorAllFeaturesInvalid(t *testing.T) {
	nan := math.NaN()
	X := mat.NewDense(2, 2, []float64{nan, nan, nan, nan})

	err := NewPreprocessor().Fit(X, nil)
	var afi *errors.AllFeaturesInvalidError
	require.True(t, errors.As(err, &afi))
	assert.Equal(t, 2, afi.NFeatures)
}

func TestPreprocessorScaling(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		0, 100,
		2, 100,
		4, 100,
		6, 100,
	})

	p := NewPreprocessor(WithScaling(true))
	clean, err := p.FitTransform(X, nil)
	require.NoError(t, err)

	// First column has population std sqrt(5); scaled variance is 1.
	variance := 0.0
	for i := 0; i < 4; i++ {
		v := clean.At(i, 0)
		variance += v * v
	}
	assert.InDelta(t, 1, variance/4, 1e-12)

	// The constant column keeps scale 1 and centers to zero.
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 0, clean.At(i, 1), 1e-12)
	}
}

func TestPreprocessorWeights(t *testing.T) {
	X := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		3, 4, 5,
	})

	t.Run("applied per feature", func(t *testing.T) {
		p := NewPreprocessor(WithCentering(false))
		clean, err := p.FitTransform(X, []float64{2, 0, 1})
		require.NoError(t, err)

		assert.InDelta(t, 2, clean.At(0, 0), 1e-12)
		assert.InDelta(t, 0, clean.At(0, 1), 1e-12)
		assert.InDelta(t, 3, clean.At(0, 2), 1e-12)
	})

	t.Run("negative weight rejected", func(t *testing.T) {
		err := NewPreprocessor().Fit(X, []float64{1, -1, 1})
		var ve *errors.ValidationError
		require.True(t, errors.As(err, &ve))
	})

	t.Run("length mismatch rejected", func(t *testing.T) {
		err := NewPreprocessor().Fit(X, []float64{1, 1})
		var de *errors.DimensionError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, 1, de.Axis)
	})
}

func TestPreprocessorInverseRoundTrip(t *testing.T) {
	nan := math.NaN()
	X := mat.NewDense(3, 3, []float64{
		1, nan, 10,
		2, nan, 30,
		6, nan, 50,
	})

	p := NewPreprocessor(WithScaling(true))
	clean, err := p.FitTransform(X, []float64{1, 1, 0.5})
	require.NoError(t, err)

	back, err := p.InverseTransform(clean)
	require.NoError(t, err)

	r, c := back.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 3, c)
	for i := 0; i < r; i++ {
		assert.True(t, math.IsNaN(back.At(i, 1)), "masked feature should come back as NaN")
		assert.InDelta(t, X.At(i, 0), back.At(i, 0), 1e-10)
		assert.InDelta(t, X.At(i, 2), back.At(i, 2), 1e-10)
	}
}

func TestPreprocessorZeroWeightReconstructsToMean(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{
		1, 10,
		3, 30,
	})

	p := NewPreprocessor()
	clean, err := p.FitTransform(X, []float64{1, 0})
	require.NoError(t, err)

	back, err := p.InverseTransform(clean)
	require.NoError(t, err)

	// The nullified feature carries no information, so it reconstructs
	// to its fitted mean rather than blowing up on the zero division.
	assert.InDelta(t, 20, back.At(0, 1), 1e-12)
	assert.InDelta(t, 20, back.At(1, 1), 1e-12)
}

func TestPreprocessorTransformValidation(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	p := NewPreprocessor()

	_, err := p.Transform(X)
	var nfe *errors.NotFittedError
	require.True(t, errors.As(err, &nfe))

	require.NoError(t, p.Fit(X, nil))

	_, err = p.Transform(mat.NewDense(2, 3, nil))
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de))

	_, err = p.Transform(mat.NewDense(1, 2, []float64{math.NaN(), 1}))
	var nf *errors.NonFiniteError
	require.True(t, errors.As(err, &nf))
}

func TestPreprocessorFailedFitKeepsState(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	p := NewPreprocessor()
	require.NoError(t, p.Fit(X, nil))

	bad := mat.NewDense(2, 2, []float64{1, math.Inf(1), 3, 4})
	require.Error(t, p.Fit(bad, nil))

	assert.True(t, p.IsFitted())
	assert.Equal(t, 2, p.NValidFeatures())
}

func TestPreprocessorExpandRows(t *testing.T) {
	nan := math.NaN()
	X := mat.NewDense(2, 3, []float64{
		1, nan, 2,
		3, nan, 4,
	})
	p := NewPreprocessor()
	require.NoError(t, p.Fit(X, nil))

	Z := mat.NewDense(2, 2, []float64{
		0.1, 0.2,
		0.3, 0.4,
	})
	out, err := p.ExpandRows(Z)
	require.NoError(t, err)

	r, c := out.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 2, c)
	assert.Equal(t, 0.1, out.At(0, 0))
	assert.True(t, math.IsNaN(out.At(1, 0)))
	assert.Equal(t, 0.3, out.At(2, 0))

	_, err = p.ExpandRows(mat.NewDense(3, 2, nil))
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de))

	ZC := mat.NewCDense(2, 1, []complex128{1 + 2i, 3 - 4i})
	outC, err := p.ExpandRowsComplex(ZC)
	require.NoError(t, err)
	assert.Equal(t, 1+2i, outC.At(0, 0))
	assert.True(t, math.IsNaN(real(outC.At(1, 0))))
	assert.Equal(t, 3-4i, outC.At(2, 0))
}

func TestPreprocessorGobRoundTrip(t *testing.T) {
	nan := math.NaN()
	X := mat.NewDense(3, 3, []float64{
		1, nan, 10,
		2, nan, 20,
		4, nan, 60,
	})
	p := NewPreprocessor(WithScaling(true))
	require.NoError(t, p.Fit(X, []float64{1, 1, 2}))

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(p))

	restored := &Preprocessor{}
	require.NoError(t, gob.NewDecoder(&buf).Decode(restored))
	require.True(t, restored.IsFitted())

	want, err := p.Transform(X)
	require.NoError(t, err)
	got, err := restored.Transform(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-15))
}

func TestStackerRoundTrip(t *testing.T) {
	s, err := NewStacker([]int{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 6, s.NFeatures())
	assert.Equal(t, []int{2, 3}, s.FeatureShape())

	data := []float64{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}
	m, err := s.Stack(data, 2)
	require.NoError(t, err)

	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 6, c)
	assert.Equal(t, 4.0, m.At(0, 3))

	flat, shape, err := s.Unstack(m)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 3}, shape)
	assert.Equal(t, data, flat)

	// The stacked matrix owns its data.
	data[0] = -1
	assert.Equal(t, 1.0, m.At(0, 0))
}

func TestStackerValidation(t *testing.T) {
	_, err := NewStacker(nil)
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))

	_, err = NewStacker([]int{3, 0})
	require.True(t, errors.As(err, &ve))

	s, err := NewStacker([]int{4})
	require.NoError(t, err)

	_, err = s.Stack([]float64{1, 2, 3}, 1)
	var ise *errors.InputShapeError
	require.True(t, errors.As(err, &ise))

	_, err = s.Stack(make([]float64, 8), 0)
	require.True(t, errors.As(err, &ve))

	_, _, err = s.Unstack(mat.NewDense(2, 3, nil))
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de))

	_, err = s.FlattenWeights([]float64{1, 2})
	require.True(t, errors.As(err, &ise))
}

func TestCosLatWeights(t *testing.T) {
	w := CosLatWeights([]float64{0, 60, 90, -90})

	assert.InDelta(t, 1, w[0], 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), w[1], 1e-12)
	assert.InDelta(t, 0, w[2], 1e-7)
	assert.InDelta(t, 0, w[3], 1e-7)

	// Rounded polar latitudes clamp instead of going NaN.
	w = CosLatWeights([]float64{90.0001})
	assert.Equal(t, 0.0, w[0])
}

func TestCosLatWeightsGrid(t *testing.T) {
	w := CosLatWeightsGrid([]float64{0, 60}, 3)
	require.Len(t, w, 6)
	for j := 0; j < 3; j++ {
		assert.InDelta(t, 1, w[j], 1e-12)
		assert.InDelta(t, math.Sqrt(0.5), w[3+j], 1e-12)
	}
}
