package models

import (
	"bytes"
	"encoding/gob"
	"io"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/core/model"
	"github.com/climakit/eofkit/decomposer"
	"github.com/climakit/eofkit/hilbert"
	"github.com/climakit/eofkit/pkg/errors"
	"github.com/climakit/eofkit/pkg/log"
	"github.com/climakit/eofkit/preprocessing"
)

// ComplexEOF decomposes a single real-valued field after augmenting it
// with its Hilbert transform, so each mode carries amplitude and phase
// and a single mode can capture a propagating signal that a real EOF
// would split across two. Optional exponential edge padding tempers
// the transform's end effects; the pad is stripped before the
// decomposition and never reaches any output.
//
// Transform is not defined for the analytic-signal pipeline: the
// Hilbert transform of unseen rows depends on samples that are not
// available. It returns ErrNotImplemented.
type ComplexEOF struct {
	cfg   config
	state *model.StateManager

	prep_     *preprocessing.Preprocessor
	sol_      *complexSolution
	totalVar_ float64
	padWidth_ int
}

var (
	_ model.Fitter          = (*ComplexEOF)(nil)
	_ model.Decomposition   = (*ComplexEOF)(nil)
	_ model.ParameterGetter = (*ComplexEOF)(nil)
	_ model.SummaryExporter = (*ComplexEOF)(nil)
	_ model.Persistable     = (*ComplexEOF)(nil)
	_ gob.GobEncoder        = (*ComplexEOF)(nil)
	_ gob.GobDecoder        = (*ComplexEOF)(nil)
)

// NewComplexEOF creates an unfitted ComplexEOF model.
func NewComplexEOF(opts ...Option) *ComplexEOF {
	return &ComplexEOF{
		cfg:   newConfig(opts...),
		state: model.NewStateManager(),
	}
}

// Fit preprocesses X, forms the analytic signal along the sample axis
// (padded when configured), and decomposes it with a truncated complex
// SVD followed by the optional unitary varimax and the phase
// convention.
func (c *ComplexEOF) Fit(X mat.Matrix, weights []float64) error {
	const op = "ComplexEOF.Fit"
	if err := c.cfg.validate(true); err != nil {
		return err
	}
	n, m := X.Dims()
	if n < 2 {
		return errors.NewValueError(op, "at least two samples are required")
	}
	padWidth := c.cfg.padWidthFor(n)

	logger := c.cfg.logger.With(log.ModelNameKey, "ComplexEOF")
	logger.Info("fit started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, m,
		log.ModesKey, c.cfg.nModes,
		log.PadWidthKey, padWidth,
	)
	start := time.Now()

	prep := preprocessing.NewPreprocessor(
		preprocessing.WithCentering(c.cfg.center),
		preprocessing.WithScaling(c.cfg.scale),
	)
	Z, err := prep.FitTransform(X, weights)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	A, err := analytic(Z, padWidth, c.cfg.decayFactor)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	res, err := decomposer.NewDecomposer(c.cfg.nModes).DecomposeComplex(A)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	sol, err := assembleComplex(op, res, n, c.cfg)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}
	totalVar := ctotalVariance(A, n)

	_ = c.state.WithStateMut(func() error {
		c.prep_ = prep
		c.sol_ = sol
		c.totalVar_ = totalVar
		c.padWidth_ = padWidth
		c.state.Fitted = true
		c.state.NSamples = n
		c.state.NFeatures = m
		return nil
	})

	logger.Info("fit completed",
		log.OperationKey, log.OperationFit,
		log.RetainedModesKey, len(sol.sing),
		log.ValidFeaturesKey, prep.NValidFeatures(),
		log.ExplainedVarianceKey, explainedSum(sol.variance, totalVar),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (c *ComplexEOF) snapshot(method string) (*complexSolution, *preprocessing.Preprocessor, float64, error) {
	var sol *complexSolution
	var prep *preprocessing.Preprocessor
	var totalVar float64
	err := c.state.WithState(func() error {
		if !c.state.Fitted {
			return errors.NewNotFittedError("ComplexEOF", method)
		}
		sol, prep, totalVar = c.sol_, c.prep_, c.totalVar_
		return nil
	})
	return sol, prep, totalVar, err
}

// Transform is not supported: the analytic signal of unseen rows is
// undefined without their temporal context.
func (c *ComplexEOF) Transform(X mat.Matrix) (*mat.CDense, error) {
	return nil, errors.Wrap(errors.ErrNotImplemented,
		"ComplexEOF.Transform: the analytic signal of unseen samples is not defined")
}

// InverseTransform reconstructs the real field from the leading
// columns of the complex scores, undoing the preprocessing and
// re-expanding dropped features as NaN columns.
func (c *ComplexEOF) InverseTransform(scores *mat.CDense) (*mat.Dense, error) {
	const op = "ComplexEOF.InverseTransform"
	sol, prep, _, err := c.snapshot("InverseTransform")
	if err != nil {
		return nil, err
	}
	n, kIn := scores.Dims()
	if kIn < 1 {
		return nil, errors.NewValueError(op, "scores must have at least one column")
	}
	if k := len(sol.sing); kIn > k {
		return nil, errors.NewDimensionError(op, k, kIn, 1)
	}
	mValid, _ := sol.components.Dims()

	// Real part of S·C^H; the imaginary part is the Hilbert companion.
	zhat := mat.NewDense(n, mValid, nil)
	for i := 0; i < n; i++ {
		for a := 0; a < mValid; a++ {
			var acc complex128
			for j := 0; j < kIn; j++ {
				acc += scores.At(i, j) * cmplx.Conj(sol.components.At(a, j))
			}
			zhat.Set(i, a, real(acc))
		}
	}
	return prep.InverseTransform(zhat)
}

// Components returns the complex spatial patterns, one unit-norm
// column per mode, re-expanded to the raw feature layout with NaN rows
// for dropped features.
func (c *ComplexEOF) Components() (*mat.CDense, error) {
	sol, prep, _, err := c.snapshot("Components")
	if err != nil {
		return nil, err
	}
	return prep.ExpandRowsComplex(sol.components)
}

// ComponentsAmplitude returns the per-feature modulus of each pattern.
func (c *ComplexEOF) ComponentsAmplitude() (*mat.Dense, error) {
	sol, prep, _, err := c.snapshot("ComponentsAmplitude")
	if err != nil {
		return nil, err
	}
	return prep.ExpandRows(cAbsMat(sol.components))
}

// ComponentsPhase returns the per-feature phase of each pattern in
// radians.
func (c *ComplexEOF) ComponentsPhase() (*mat.Dense, error) {
	sol, prep, _, err := c.snapshot("ComponentsPhase")
	if err != nil {
		return nil, err
	}
	return prep.ExpandRows(cPhaseMat(sol.components))
}

// Scores returns the amplitude-carrying complex temporal scores.
func (c *ComplexEOF) Scores() (*mat.CDense, error) {
	sol, _, _, err := c.snapshot("Scores")
	if err != nil {
		return nil, err
	}
	return sol.scores(), nil
}

// ScoresNormalized returns the unit-variance complex scores.
func (c *ComplexEOF) ScoresNormalized() (*mat.CDense, error) {
	sol, _, _, err := c.snapshot("ScoresNormalized")
	if err != nil {
		return nil, err
	}
	n, k := sol.scoresNorm.Dims()
	out := mat.NewCDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			out.Set(i, j, sol.scoresNorm.At(i, j))
		}
	}
	return out, nil
}

// ScoresAmplitude returns the instantaneous amplitude of each mode's
// score series.
func (c *ComplexEOF) ScoresAmplitude() (*mat.Dense, error) {
	s, err := c.Scores()
	if err != nil {
		return nil, err
	}
	return cAbsMat(s), nil
}

// ScoresPhase returns the instantaneous phase of each mode's score
// series in radians.
func (c *ComplexEOF) ScoresPhase() (*mat.Dense, error) {
	s, err := c.Scores()
	if err != nil {
		return nil, err
	}
	return cPhaseMat(s), nil
}

// SingularValues returns the per-mode singular values, descending.
func (c *ComplexEOF) SingularValues() ([]float64, error) {
	sol, _, _, err := c.snapshot("SingularValues")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), sol.sing...), nil
}

// ExplainedVariance returns the variance carried by each mode.
func (c *ComplexEOF) ExplainedVariance() ([]float64, error) {
	sol, _, _, err := c.snapshot("ExplainedVariance")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), sol.variance...), nil
}

// ExplainedVarianceRatio returns the per-mode fraction of the total
// analytic-signal variance.
func (c *ComplexEOF) ExplainedVarianceRatio() ([]float64, error) {
	sol, _, totalVar, err := c.snapshot("ExplainedVarianceRatio")
	if err != nil {
		return nil, err
	}
	ratio := make([]float64, len(sol.variance))
	for i, v := range sol.variance {
		ratio[i] = v / totalVar
	}
	return ratio, nil
}

// TotalVariance returns the total variance of the analytic signal of
// the preprocessed training matrix.
func (c *ComplexEOF) TotalVariance() (float64, error) {
	_, _, totalVar, err := c.snapshot("TotalVariance")
	if err != nil {
		return 0, err
	}
	return totalVar, nil
}

// NModes returns the number of retained modes, zero before Fit.
func (c *ComplexEOF) NModes() int {
	n := 0
	_ = c.state.WithState(func() error {
		if c.state.Fitted {
			n = len(c.sol_.sing)
		}
		return nil
	})
	return n
}

// Truncated reports whether fewer modes than requested were retained.
func (c *ComplexEOF) Truncated() bool {
	t := false
	_ = c.state.WithState(func() error {
		if c.state.Fitted {
			t = c.sol_.truncated
		}
		return nil
	})
	return t
}

// RotationConverged reports whether the rotation reached its
// tolerance. True for unrotated fits, false before Fit.
func (c *ComplexEOF) RotationConverged() bool {
	conv := false
	_ = c.state.WithState(func() error {
		if c.state.Fitted {
			conv = c.sol_.converged
		}
		return nil
	})
	return conv
}

// PadWidth returns the per-end pad width used during fitting, zero
// when padding was disabled or before Fit.
func (c *ComplexEOF) PadWidth() int {
	pw := 0
	_ = c.state.WithState(func() error {
		if c.state.Fitted {
			pw = c.padWidth_
		}
		return nil
	})
	return pw
}

// GetParams returns the hyperparameters.
func (c *ComplexEOF) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_modes":         c.cfg.nModes,
		"center":          c.cfg.center,
		"scale":           c.cfg.scale,
		"padding":         c.cfg.padding,
		"decay_factor":    c.cfg.decayFactor,
		"pad_factor":      c.cfg.padFactor,
		"rotation":        c.cfg.rotation,
		"n_rotated":       c.cfg.nRotated,
		"max_iter":        c.cfg.maxIter,
		"rtol":            c.cfg.rtol,
		"sign_convention": c.cfg.signConvention,
	}
}

// ExportSummary writes a JSON description of the fit to w.
func (c *ComplexEOF) ExportSummary(w io.Writer) error {
	sum := &model.ModelSummary{
		ModelType:       "ComplexEOF",
		Version:         model.SummaryVersion,
		Hyperparameters: c.GetParams(),
	}
	_ = c.state.WithState(func() error {
		if !c.state.Fitted {
			return nil
		}
		sum.Fitted = true
		sum.NSamples = c.state.NSamples
		sum.NFeatures = c.state.NFeatures
		sum.NModes = len(c.sol_.sing)
		sum.SingularValues = append([]float64(nil), c.sol_.sing...)
		ratio := make([]float64, len(c.sol_.variance))
		for i, v := range c.sol_.variance {
			ratio[i] = v / c.totalVar_
		}
		sum.ExplainedVarianceRatio = ratio
		sum.Metadata = map[string]interface{}{
			"total_variance":     c.totalVar_,
			"valid_features":     c.prep_.NValidFeatures(),
			"pad_width":          c.padWidth_,
			"truncated":          c.sol_.truncated,
			"rotation_converged": c.sol_.converged,
		}
		return nil
	})
	data, err := sum.ToJSON()
	if err != nil {
		return errors.Wrap(err, "failed to serialize model summary")
	}
	_, err = w.Write(data)
	return errors.Wrap(err, "failed to write model summary")
}

// Save writes the model to a file.
func (c *ComplexEOF) Save(path string) error {
	return model.SaveModel(c, path)
}

// Load restores the model from a file written by Save.
func (c *ComplexEOF) Load(path string) error {
	return model.LoadModel(c, path)
}

// LoadComplexEOF restores a ComplexEOF model from a file written by
// Save.
func LoadComplexEOF(path string) (*ComplexEOF, error) {
	c := NewComplexEOF()
	if err := c.Load(path); err != nil {
		return nil, err
	}
	return c, nil
}

type complexEOFGob struct {
	Config     configGob
	Fitted     bool
	NSamples   int
	NFeatures  int
	Sing       []float64
	Variance   []float64
	TotalVar   float64
	PadWidth   int
	Components cmatGob
	ScoresNorm cmatGob
	RotMat     cmatGob
	Perm       []int
	Iterations int
	Converged  bool
	Requested  int
	Truncated  bool
	Prep       []byte
}

// GobEncode implements gob.GobEncoder.
func (c *ComplexEOF) GobEncode() ([]byte, error) {
	snap := complexEOFGob{Config: c.cfg.snapshot()}
	err := c.state.WithState(func() error {
		if !c.state.Fitted {
			return nil
		}
		snap.Fitted = true
		snap.NSamples = c.state.NSamples
		snap.NFeatures = c.state.NFeatures
		snap.Sing = c.sol_.sing
		snap.Variance = c.sol_.variance
		snap.TotalVar = c.totalVar_
		snap.PadWidth = c.padWidth_
		snap.Components = toCMatGob(c.sol_.components)
		snap.ScoresNorm = toCMatGob(c.sol_.scoresNorm)
		snap.RotMat = toCMatGob(c.sol_.rotMat)
		snap.Perm = c.sol_.perm
		snap.Iterations = c.sol_.iterations
		snap.Converged = c.sol_.converged
		snap.Requested = c.sol_.requested
		snap.Truncated = c.sol_.truncated
		blob, err := c.prep_.GobEncode()
		if err != nil {
			return err
		}
		snap.Prep = blob
		return nil
	})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, errors.Wrap(err, "failed to encode ComplexEOF model")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (c *ComplexEOF) GobDecode(data []byte) error {
	var snap complexEOFGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "failed to decode ComplexEOF model")
	}
	if c.state == nil {
		c.state = model.NewStateManager()
	}
	var sol *complexSolution
	var prep *preprocessing.Preprocessor
	if snap.Fitted {
		prep = preprocessing.NewPreprocessor()
		if err := prep.GobDecode(snap.Prep); err != nil {
			return err
		}
		sol = &complexSolution{
			sing:       snap.Sing,
			variance:   snap.Variance,
			components: fromCMatGob(snap.Components),
			scoresNorm: fromCMatGob(snap.ScoresNorm),
			rotMat:     fromCMatGob(snap.RotMat),
			perm:       snap.Perm,
			iterations: snap.Iterations,
			converged:  snap.Converged,
			requested:  snap.Requested,
			truncated:  snap.Truncated,
		}
	}
	return c.state.WithStateMut(func() error {
		c.cfg = snap.Config.restore()
		c.prep_ = prep
		c.sol_ = sol
		c.totalVar_ = snap.TotalVar
		c.padWidth_ = snap.PadWidth
		c.state.Fitted = snap.Fitted
		c.state.NSamples = snap.NSamples
		c.state.NFeatures = snap.NFeatures
		return nil
	})
}

// analytic builds the analytic signal of Z, padding each series when a
// positive pad width is configured.
func analytic(Z *mat.Dense, padWidth int, decayFactor float64) (*mat.CDense, error) {
	if padWidth > 0 {
		return hilbert.AnalyticPadded(Z, padWidth, decayFactor)
	}
	return hilbert.Analytic(Z)
}

// cAbsMat returns the elementwise modulus of a complex matrix.
func cAbsMat(m *mat.CDense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, cmplx.Abs(m.At(i, j)))
		}
	}
	return out
}

// cPhaseMat returns the elementwise phase of a complex matrix in
// (-pi, pi].
func cPhaseMat(m *mat.CDense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, cmplx.Phase(m.At(i, j)))
		}
	}
	return out
}

// ctotalVariance sums |z|^2 over the matrix divided by n-1.
func ctotalVariance(A *mat.CDense, n int) float64 {
	r, c := A.Dims()
	var sq float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			z := A.At(i, j)
			sq += real(z)*real(z) + imag(z)*imag(z)
		}
	}
	return sq / float64(n-1)
}
