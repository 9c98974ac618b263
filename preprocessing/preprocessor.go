// Package preprocessing prepares raw data matrices for decomposition:
// feature validity masking, centering, scaling, weighting, and the
// stack/unstack mapping between tensors and the 2-D data matrix.
package preprocessing

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/core/model"
	"github.com/climakit/eofkit/core/parallel"
	"github.com/climakit/eofkit/pkg/errors"
)

// minColumnsParallel is the feature count below which the column scans
// stay sequential.
const minColumnsParallel = 64

// Preprocessor turns a raw samples x features matrix into the clean
// matrix the decomposition kernels expect. Fitting computes a validity
// mask (a feature is dropped only when every sample is NaN), per-feature
// mean and standard deviation, and stores the optional feature weights.
// Transform drops masked features, centers, scales, and weights;
// InverseTransform undoes the chain and re-expands dropped features as
// NaN columns.
//
// A feature with some but not all samples missing is an error: masking
// explains away only features that carry no information at all.
type Preprocessor struct {
	model.BaseEstimator

	// Configuration
	center bool
	scale  bool

	// Fitted state
	mask_        []bool    // length nFeaturesIn_, true for retained features
	mean_        []float64 // length nValid_, zeros when centering is off
	scale_       []float64 // length nValid_, ones when scaling is off
	weights_     []float64 // length nValid_, nil when no weights were given
	nFeaturesIn_ int
	nValid_      int
}

// PreprocessorOption configures a Preprocessor.
type PreprocessorOption func(*Preprocessor)

// WithCentering toggles per-feature mean subtraction. Default true.
func WithCentering(center bool) PreprocessorOption {
	return func(p *Preprocessor) {
		p.center = center
	}
}

// WithScaling toggles division by the per-feature standard deviation.
// Default false. Near-constant features keep a scale of 1 so the
// division stays defined.
func WithScaling(scale bool) PreprocessorOption {
	return func(p *Preprocessor) {
		p.scale = scale
	}
}

// NewPreprocessor creates a Preprocessor.
//
// Example:
//
//	p := preprocessing.NewPreprocessor(preprocessing.WithScaling(true))
//	clean, err := p.FitTransform(X, nil)
func NewPreprocessor(opts ...PreprocessorOption) *Preprocessor {
	p := &Preprocessor{
		center: true,
		scale:  false,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fit learns the validity mask, normalization statistics, and weights
// from X. Weights, when non-nil, must have one finite non-negative
// entry per raw feature; a zero weight nullifies a feature without
// removing it. A failed Fit leaves any previously fitted state intact.
func (p *Preprocessor) Fit(X mat.Matrix, weights []float64) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("Preprocessor.Fit", "empty data", errors.ErrEmptyData)
	}

	if weights != nil {
		if len(weights) != c {
			return errors.NewDimensionError("Preprocessor.Fit", c, len(weights), 1)
		}
		for j, w := range weights {
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
				return errors.NewValidationError("weights",
					fmt.Sprintf("entry %d must be finite and non-negative", j), w)
			}
		}
	}

	// Column scan: NaN counts and first offending positions. Each
	// goroutine owns a disjoint column range, so the slices need no
	// locking; the sequential pass below keeps error reporting
	// deterministic.
	nanCount := make([]int, c)
	nanRow := make([]int, c)
	infRow := make([]int, c)
	for j := 0; j < c; j++ {
		nanRow[j] = -1
		infRow[j] = -1
	}
	parallel.ParallelizeWithThreshold(c, minColumnsParallel, func(start, end int) {
		for j := start; j < end; j++ {
			for i := 0; i < r; i++ {
				v := X.At(i, j)
				switch {
				case math.IsNaN(v):
					nanCount[j]++
					if nanRow[j] < 0 {
						nanRow[j] = i
					}
				case math.IsInf(v, 0):
					if infRow[j] < 0 {
						infRow[j] = i
					}
				}
			}
		}
	})

	mask := make([]bool, c)
	nValid := 0
	for j := 0; j < c; j++ {
		if infRow[j] >= 0 {
			return errors.NewNonFiniteError("Preprocessor.Fit", infRow[j], j, X.At(infRow[j], j))
		}
		if nanCount[j] == r {
			continue
		}
		if nanCount[j] > 0 {
			return errors.NewNonFiniteError("Preprocessor.Fit", nanRow[j], j, X.At(nanRow[j], j))
		}
		mask[j] = true
		nValid++
	}
	if nValid == 0 {
		return errors.NewAllFeaturesInvalidError("Preprocessor.Fit", c)
	}

	compact := compactIndex(mask)

	mean := make([]float64, nValid)
	scl := make([]float64, nValid)
	var w []float64
	if weights != nil {
		w = make([]float64, nValid)
	}
	parallel.ParallelizeWithThreshold(c, minColumnsParallel, func(start, end int) {
		for j := start; j < end; j++ {
			k := compact[j]
			if k < 0 {
				continue
			}
			sum := 0.0
			for i := 0; i < r; i++ {
				sum += X.At(i, j)
			}
			colMean := sum / float64(r)
			if p.center {
				mean[k] = colMean
			}
			if p.scale {
				sumSquares := 0.0
				for i := 0; i < r; i++ {
					d := X.At(i, j) - colMean
					sumSquares += d * d
				}
				s := math.Sqrt(sumSquares / float64(r))
				// Near-zero std means a constant feature; keep it
				// instead of dividing by ~0.
				if s < 1e-8 {
					s = 1.0
				}
				scl[k] = s
			} else {
				scl[k] = 1.0
			}
			if w != nil {
				w[k] = weights[j]
			}
		}
	})

	p.mask_ = mask
	p.mean_ = mean
	p.scale_ = scl
	p.weights_ = w
	p.nFeaturesIn_ = c
	p.nValid_ = nValid
	p.SetFitted()
	return nil
}

// Transform applies the fitted mask, centering, scaling, and weights
// to X. Retained feature columns must be fully finite.
func (p *Preprocessor) Transform(X mat.Matrix) (*mat.Dense, error) {
	if !p.IsFitted() {
		return nil, errors.NewNotFittedError("Preprocessor", "Transform")
	}

	r, c := X.Dims()
	if c != p.nFeaturesIn_ {
		return nil, errors.NewDimensionError("Preprocessor.Transform", p.nFeaturesIn_, c, 1)
	}
	if r == 0 {
		return nil, errors.NewModelError("Preprocessor.Transform", "empty data", errors.ErrEmptyData)
	}

	compact := compactIndex(p.mask_)
	out := mat.NewDense(r, p.nValid_, nil)
	bad := make([]int, c)
	for j := 0; j < c; j++ {
		bad[j] = -1
	}
	parallel.ParallelizeWithThreshold(c, minColumnsParallel, func(start, end int) {
		for j := start; j < end; j++ {
			k := compact[j]
			if k < 0 {
				continue
			}
			weight := 1.0
			if p.weights_ != nil {
				weight = p.weights_[k]
			}
			for i := 0; i < r; i++ {
				v := X.At(i, j)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					if bad[j] < 0 {
						bad[j] = i
					}
					continue
				}
				out.Set(i, k, (v-p.mean_[k])/p.scale_[k]*weight)
			}
		}
	})
	for j := 0; j < c; j++ {
		if bad[j] >= 0 {
			return nil, errors.NewNonFiniteError("Preprocessor.Transform", bad[j], j, X.At(bad[j], j))
		}
	}
	return out, nil
}

// FitTransform fits on X and returns the transformed matrix.
func (p *Preprocessor) FitTransform(X mat.Matrix, weights []float64) (*mat.Dense, error) {
	if err := p.Fit(X, weights); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// InverseTransform maps rows from the clean feature space back to the
// raw one: weights are divided out, scaling and centering are undone,
// and features dropped at fit time come back as NaN columns. Features
// nullified by a zero weight reconstruct to their mean.
func (p *Preprocessor) InverseTransform(Z mat.Matrix) (*mat.Dense, error) {
	if !p.IsFitted() {
		return nil, errors.NewNotFittedError("Preprocessor", "InverseTransform")
	}

	r, c := Z.Dims()
	if c != p.nValid_ {
		return nil, errors.NewDimensionError("Preprocessor.InverseTransform", p.nValid_, c, 1)
	}

	compact := compactIndex(p.mask_)
	out := mat.NewDense(r, p.nFeaturesIn_, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < p.nFeaturesIn_; j++ {
			k := compact[j]
			if k < 0 {
				out.Set(i, j, math.NaN())
				continue
			}
			v := Z.At(i, k)
			if p.weights_ != nil {
				v = errors.SafeDivide(v, p.weights_[k])
			}
			out.Set(i, j, v*p.scale_[k]+p.mean_[k])
		}
	}
	return out, nil
}

// ExpandRows maps a matrix whose rows follow the clean feature order
// back to the raw feature layout, inserting NaN rows at the positions
// of dropped features. Component matrices are expanded this way: the
// positions return, the values are not de-normalized.
func (p *Preprocessor) ExpandRows(Z mat.Matrix) (*mat.Dense, error) {
	if !p.IsFitted() {
		return nil, errors.NewNotFittedError("Preprocessor", "ExpandRows")
	}

	r, c := Z.Dims()
	if r != p.nValid_ {
		return nil, errors.NewDimensionError("Preprocessor.ExpandRows", p.nValid_, r, 0)
	}

	compact := compactIndex(p.mask_)
	out := mat.NewDense(p.nFeaturesIn_, c, nil)
	for j := 0; j < p.nFeaturesIn_; j++ {
		k := compact[j]
		for col := 0; col < c; col++ {
			if k < 0 {
				out.Set(j, col, math.NaN())
			} else {
				out.Set(j, col, Z.At(k, col))
			}
		}
	}
	return out, nil
}

// ExpandRowsComplex is ExpandRows for complex matrices; dropped features
// come back as NaN+NaNi rows.
func (p *Preprocessor) ExpandRowsComplex(Z *mat.CDense) (*mat.CDense, error) {
	if !p.IsFitted() {
		return nil, errors.NewNotFittedError("Preprocessor", "ExpandRowsComplex")
	}

	r, c := Z.Dims()
	if r != p.nValid_ {
		return nil, errors.NewDimensionError("Preprocessor.ExpandRowsComplex", p.nValid_, r, 0)
	}

	nan := complex(math.NaN(), math.NaN())
	compact := compactIndex(p.mask_)
	out := mat.NewCDense(p.nFeaturesIn_, c, nil)
	for j := 0; j < p.nFeaturesIn_; j++ {
		k := compact[j]
		for col := 0; col < c; col++ {
			if k < 0 {
				out.Set(j, col, nan)
			} else {
				out.Set(j, col, Z.At(k, col))
			}
		}
	}
	return out, nil
}

// FeatureMask returns a copy of the per-feature validity mask computed
// during Fit, or nil if the preprocessor is unfitted.
func (p *Preprocessor) FeatureMask() []bool {
	if !p.IsFitted() {
		return nil
	}
	mask := make([]bool, len(p.mask_))
	copy(mask, p.mask_)
	return mask
}

// NValidFeatures returns the number of features retained by the mask.
func (p *Preprocessor) NValidFeatures() int {
	return p.nValid_
}

// NFeaturesIn returns the raw feature count seen at fit time.
func (p *Preprocessor) NFeaturesIn() int {
	return p.nFeaturesIn_
}

// GetParams returns the preprocessor configuration.
func (p *Preprocessor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"center": p.center,
		"scale":  p.scale,
	}
}

// String returns a readable description of the preprocessor.
func (p *Preprocessor) String() string {
	if !p.IsFitted() {
		return fmt.Sprintf("Preprocessor(center=%t, scale=%t)", p.center, p.scale)
	}
	return fmt.Sprintf("Preprocessor(center=%t, scale=%t, n_features_in=%d, n_valid=%d)",
		p.center, p.scale, p.nFeaturesIn_, p.nValid_)
}

// compactIndex maps raw feature positions to clean-matrix columns,
// with -1 for masked-out features.
func compactIndex(mask []bool) []int {
	idx := make([]int, len(mask))
	k := 0
	for j, keep := range mask {
		if keep {
			idx[j] = k
			k++
		} else {
			idx[j] = -1
		}
	}
	return idx
}

// preprocessorGob is the exported snapshot used for gob round-trips;
// the fitted fields themselves stay unexported.
type preprocessorGob struct {
	Center      bool
	Scale       bool
	Fitted      bool
	Mask        []bool
	Mean        []float64
	Std         []float64
	Weights     []float64
	NFeaturesIn int
	NValid      int
}

// GobEncode implements gob.GobEncoder.
func (p *Preprocessor) GobEncode() ([]byte, error) {
	snap := preprocessorGob{
		Center:      p.center,
		Scale:       p.scale,
		Fitted:      p.IsFitted(),
		Mask:        p.mask_,
		Mean:        p.mean_,
		Std:         p.scale_,
		Weights:     p.weights_,
		NFeaturesIn: p.nFeaturesIn_,
		NValid:      p.nValid_,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, errors.Wrap(err, "failed to encode preprocessor")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (p *Preprocessor) GobDecode(data []byte) error {
	var snap preprocessorGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "failed to decode preprocessor")
	}
	p.center = snap.Center
	p.scale = snap.Scale
	p.mask_ = snap.Mask
	p.mean_ = snap.Mean
	p.scale_ = snap.Std
	if len(snap.Weights) > 0 {
		p.weights_ = snap.Weights
	} else {
		p.weights_ = nil
	}
	p.nFeaturesIn_ = snap.NFeaturesIn
	p.nValid_ = snap.NValid
	if snap.Fitted {
		p.SetFitted()
	} else {
		p.Reset()
	}
	return nil
}
