package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/pkg/errors"
)

// Stacker maps between a sample-major tensor of shape [n, d1, ..., dp]
// stored as a flat row-major slice and the samples x features matrix the
// decomposition pipeline operates on. Flattening preserves row-major
// feature order, so Unstack restores the exact original layout.
type Stacker struct {
	featureShape []int
	nFeatures    int
}

// NewStacker creates a Stacker for the given feature shape, the tensor
// shape without the leading sample axis.
func NewStacker(featureShape []int) (*Stacker, error) {
	if len(featureShape) == 0 {
		return nil, errors.NewValidationError("featureShape",
			"must have at least one dimension", featureShape)
	}
	n := 1
	for i, d := range featureShape {
		if d <= 0 {
			return nil, errors.NewValidationError("featureShape",
				fmt.Sprintf("dimension %d must be positive", i), d)
		}
		n *= d
	}
	shape := make([]int, len(featureShape))
	copy(shape, featureShape)
	return &Stacker{featureShape: shape, nFeatures: n}, nil
}

// NFeatures returns the flattened feature count.
func (s *Stacker) NFeatures() int {
	return s.nFeatures
}

// FeatureShape returns a copy of the feature shape.
func (s *Stacker) FeatureShape() []int {
	shape := make([]int, len(s.featureShape))
	copy(shape, s.featureShape)
	return shape
}

// Stack reshapes a row-major tensor [nSamples, d1, ..., dp] into an
// nSamples x nFeatures matrix. The data slice is copied, never aliased.
func (s *Stacker) Stack(data []float64, nSamples int) (*mat.Dense, error) {
	if nSamples <= 0 {
		return nil, errors.NewValidationError("nSamples", "must be positive", nSamples)
	}
	want := append([]int{nSamples}, s.featureShape...)
	if len(data) != nSamples*s.nFeatures {
		return nil, errors.NewInputShapeError("Stacker.Stack", want, []int{len(data)})
	}
	buf := make([]float64, len(data))
	copy(buf, data)
	return mat.NewDense(nSamples, s.nFeatures, buf), nil
}

// Unstack flattens a matrix whose columns follow this stacker's feature
// order back into a row-major tensor slice, returning the full shape
// including the leading sample axis. Works on any matrix with matching
// feature count, so component maps unstack the same way data does.
func (s *Stacker) Unstack(m mat.Matrix) ([]float64, []int, error) {
	r, c := m.Dims()
	if c != s.nFeatures {
		return nil, nil, errors.NewDimensionError("Stacker.Unstack", s.nFeatures, c, 1)
	}
	out := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[i*c+j] = m.At(i, j)
		}
	}
	shape := append([]int{r}, s.featureShape...)
	return out, shape, nil
}

// FlattenWeights validates and copies a per-feature weight tensor of this
// stacker's feature shape into the flat order Stack produces.
func (s *Stacker) FlattenWeights(w []float64) ([]float64, error) {
	if len(w) != s.nFeatures {
		return nil, errors.NewInputShapeError("Stacker.FlattenWeights", s.featureShape, []int{len(w)})
	}
	out := make([]float64, len(w))
	copy(out, w)
	return out, nil
}
