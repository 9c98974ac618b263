package models

import (
	"bytes"
	"encoding/gob"
	"io"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/core/model"
	"github.com/climakit/eofkit/decomposer"
	"github.com/climakit/eofkit/pkg/errors"
	"github.com/climakit/eofkit/pkg/log"
	"github.com/climakit/eofkit/preprocessing"
)

// ComplexMCA couples two real-valued fields through the complex
// cross-covariance of their analytic signals, so a paired mode carries
// the amplitude and relative phase of covarying propagating structures.
// Like ComplexEOF it decomposes only what it was fitted on: Transform
// and InverseTransform return ErrNotImplemented.
type ComplexMCA struct {
	cfg   config
	state *model.StateManager

	prep1_, prep2_ *preprocessing.Preprocessor
	sol_           *crossComplexSolution
	padWidth_      int
}

var (
	_ model.CoupledFitter   = (*ComplexMCA)(nil)
	_ model.Decomposition   = (*ComplexMCA)(nil)
	_ model.ParameterGetter = (*ComplexMCA)(nil)
	_ model.SummaryExporter = (*ComplexMCA)(nil)
	_ model.Persistable     = (*ComplexMCA)(nil)
	_ gob.GobEncoder        = (*ComplexMCA)(nil)
	_ gob.GobDecoder        = (*ComplexMCA)(nil)
)

// NewComplexMCA creates an unfitted ComplexMCA model.
func NewComplexMCA(opts ...Option) *ComplexMCA {
	return &ComplexMCA{
		cfg:   newConfig(opts...),
		state: model.NewStateManager(),
	}
}

// Fit preprocesses both fields, forms their analytic signals (padded
// when configured) and decomposes the complex cross-covariance matrix.
func (c *ComplexMCA) Fit(X1, X2 mat.Matrix, weights1, weights2 []float64) error {
	const op = "ComplexMCA.Fit"
	if err := c.cfg.validate(true); err != nil {
		return err
	}
	n1, m1 := X1.Dims()
	n2, m2 := X2.Dims()
	if n1 != n2 {
		return errors.NewDimensionError(op, n1, n2, 0)
	}
	if n1 < 2 {
		return errors.NewValueError(op, "at least two samples are required")
	}
	padWidth := c.cfg.padWidthFor(n1)

	logger := c.cfg.logger.With(log.ModelNameKey, "ComplexMCA")
	logger.Info("fit started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n1,
		"data.features1", m1,
		"data.features2", m2,
		log.ModesKey, c.cfg.nModes,
		log.PadWidthKey, padWidth,
	)
	start := time.Now()

	prep1 := preprocessing.NewPreprocessor(
		preprocessing.WithCentering(c.cfg.center),
		preprocessing.WithScaling(c.cfg.scale),
	)
	Z1, err := prep1.FitTransform(X1, weights1)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}
	prep2 := preprocessing.NewPreprocessor(
		preprocessing.WithCentering(c.cfg.center),
		preprocessing.WithScaling(c.cfg.scale),
	)
	Z2, err := prep2.FitTransform(X2, weights2)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	A1, err := analytic(Z1, padWidth, c.cfg.decayFactor)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}
	A2, err := analytic(Z2, padWidth, c.cfg.decayFactor)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	res, err := decomposer.NewDecomposer(c.cfg.nModes).DecomposeCrossComplex(A1, A2)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	sol, err := assembleCrossComplex(op, res, A1, A2, c.cfg)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	_ = c.state.WithStateMut(func() error {
		c.prep1_, c.prep2_ = prep1, prep2
		c.sol_ = sol
		c.padWidth_ = padWidth
		c.state.Fitted = true
		c.state.NSamples = n1
		c.state.NFeatures = m1 + m2
		return nil
	})

	logger.Info("fit completed",
		log.OperationKey, log.OperationFit,
		log.RetainedModesKey, len(sol.sing),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// complexMCAState is the immutable fitted state handed to accessors.
type complexMCAState struct {
	sol          *crossComplexSolution
	prep1, prep2 *preprocessing.Preprocessor
}

func (c *ComplexMCA) snapshot(method string) (complexMCAState, error) {
	var st complexMCAState
	err := c.state.WithState(func() error {
		if !c.state.Fitted {
			return errors.NewNotFittedError("ComplexMCA", method)
		}
		st = complexMCAState{sol: c.sol_, prep1: c.prep1_, prep2: c.prep2_}
		return nil
	})
	return st, err
}

// Transform is not supported: the analytic signal of unseen rows is
// undefined without their temporal context.
func (c *ComplexMCA) Transform(X1, X2 mat.Matrix) (*mat.CDense, *mat.CDense, error) {
	return nil, nil, errors.Wrap(errors.ErrNotImplemented,
		"ComplexMCA.Transform: the analytic signal of unseen samples is not defined")
}

// InverseTransform is not supported for the coupled analytic-signal
// decomposition.
func (c *ComplexMCA) InverseTransform(scores1, scores2 *mat.CDense) (*mat.Dense, *mat.Dense, error) {
	return nil, nil, errors.Wrap(errors.ErrNotImplemented,
		"ComplexMCA.InverseTransform: reconstruction is not defined for coupled analytic-signal modes")
}

// Components returns the paired complex patterns, re-expanded to the
// raw feature layouts with NaN rows for dropped features.
func (c *ComplexMCA) Components() (*mat.CDense, *mat.CDense, error) {
	st, err := c.snapshot("Components")
	if err != nil {
		return nil, nil, err
	}
	c1, err := st.prep1.ExpandRowsComplex(st.sol.comps1)
	if err != nil {
		return nil, nil, err
	}
	c2, err := st.prep2.ExpandRowsComplex(st.sol.comps2)
	if err != nil {
		return nil, nil, err
	}
	return c1, c2, nil
}

// ComponentsAmplitude returns the per-feature modulus of each paired
// pattern.
func (c *ComplexMCA) ComponentsAmplitude() (*mat.Dense, *mat.Dense, error) {
	st, err := c.snapshot("ComponentsAmplitude")
	if err != nil {
		return nil, nil, err
	}
	a1, err := st.prep1.ExpandRows(cAbsMat(st.sol.comps1))
	if err != nil {
		return nil, nil, err
	}
	a2, err := st.prep2.ExpandRows(cAbsMat(st.sol.comps2))
	if err != nil {
		return nil, nil, err
	}
	return a1, a2, nil
}

// ComponentsPhase returns the per-feature phase of each paired pattern
// in radians.
func (c *ComplexMCA) ComponentsPhase() (*mat.Dense, *mat.Dense, error) {
	st, err := c.snapshot("ComponentsPhase")
	if err != nil {
		return nil, nil, err
	}
	p1, err := st.prep1.ExpandRows(cPhaseMat(st.sol.comps1))
	if err != nil {
		return nil, nil, err
	}
	p2, err := st.prep2.ExpandRows(cPhaseMat(st.sol.comps2))
	if err != nil {
		return nil, nil, err
	}
	return p1, p2, nil
}

// Scores returns the complex expansion coefficients of both fields.
func (c *ComplexMCA) Scores() (*mat.CDense, *mat.CDense, error) {
	st, err := c.snapshot("Scores")
	if err != nil {
		return nil, nil, err
	}
	return copyCDense(st.sol.scores1), copyCDense(st.sol.scores2), nil
}

// ScoresAmplitude returns the instantaneous amplitude of each mode's
// paired score series.
func (c *ComplexMCA) ScoresAmplitude() (*mat.Dense, *mat.Dense, error) {
	st, err := c.snapshot("ScoresAmplitude")
	if err != nil {
		return nil, nil, err
	}
	return cAbsMat(st.sol.scores1), cAbsMat(st.sol.scores2), nil
}

// ScoresPhase returns the instantaneous phase of each mode's paired
// score series in radians.
func (c *ComplexMCA) ScoresPhase() (*mat.Dense, *mat.Dense, error) {
	st, err := c.snapshot("ScoresPhase")
	if err != nil {
		return nil, nil, err
	}
	return cPhaseMat(st.sol.scores1), cPhaseMat(st.sol.scores2), nil
}

// SingularValues returns the per-mode covariance scale, descending.
func (c *ComplexMCA) SingularValues() ([]float64, error) {
	st, err := c.snapshot("SingularValues")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), st.sol.sing...), nil
}

// SquaredCovariance returns sigma^2 per mode.
func (c *ComplexMCA) SquaredCovariance() ([]float64, error) {
	st, err := c.snapshot("SquaredCovariance")
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(st.sol.sing))
	for i, s := range st.sol.sing {
		out[i] = s * s
	}
	return out, nil
}

// SquaredCovarianceFraction returns each mode's share of the squared
// Frobenius norm of the complex cross-covariance matrix.
func (c *ComplexMCA) SquaredCovarianceFraction() ([]float64, error) {
	st, err := c.snapshot("SquaredCovarianceFraction")
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(st.sol.sing))
	for i, s := range st.sol.sing {
		out[i] = s * s / st.sol.sqTotal
	}
	return out, nil
}

// SquaredTotalCovariance returns the squared Frobenius norm of the
// full complex cross-covariance matrix.
func (c *ComplexMCA) SquaredTotalCovariance() (float64, error) {
	st, err := c.snapshot("SquaredTotalCovariance")
	if err != nil {
		return 0, err
	}
	return st.sol.sqTotal, nil
}

// NModes returns the number of retained modes, zero before Fit.
func (c *ComplexMCA) NModes() int {
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
func (c *ComplexMCA) Truncated() bool {
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
func (c *ComplexMCA) RotationConverged() bool {
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
func (c *ComplexMCA) PadWidth() int {
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
func (c *ComplexMCA) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_modes":          c.cfg.nModes,
		"center":           c.cfg.center,
		"scale":            c.cfg.scale,
		"padding":          c.cfg.padding,
		"decay_factor":     c.cfg.decayFactor,
		"pad_factor":       c.cfg.padFactor,
		"rotation":         c.cfg.rotation,
		"n_rotated":        c.cfg.nRotated,
		"max_iter":         c.cfg.maxIter,
		"rtol":             c.cfg.rtol,
		"sign_convention":  c.cfg.signConvention,
		"squared_loadings": c.cfg.squaredLoadings,
	}
}

// ExportSummary writes a JSON description of the fit to w.
func (c *ComplexMCA) ExportSummary(w io.Writer) error {
	sum := &model.ModelSummary{
		ModelType:       "ComplexMCA",
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
		frac := make([]float64, len(c.sol_.sing))
		for i, s := range c.sol_.sing {
			frac[i] = s * s / c.sol_.sqTotal
		}
		sum.Metadata = map[string]interface{}{
			"squared_total_covariance":    c.sol_.sqTotal,
			"squared_covariance_fraction": frac,
			"valid_features1":             c.prep1_.NValidFeatures(),
			"valid_features2":             c.prep2_.NValidFeatures(),
			"pad_width":                   c.padWidth_,
			"truncated":                   c.sol_.truncated,
			"rotation_converged":          c.sol_.converged,
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
func (c *ComplexMCA) Save(path string) error {
	return model.SaveModel(c, path)
}

// Load restores the model from a file written by Save.
func (c *ComplexMCA) Load(path string) error {
	return model.LoadModel(c, path)
}

// LoadComplexMCA restores a ComplexMCA model from a file written by
// Save.
func LoadComplexMCA(path string) (*ComplexMCA, error) {
	c := NewComplexMCA()
	if err := c.Load(path); err != nil {
		return nil, err
	}
	return c, nil
}

type complexMCAGob struct {
	Config     configGob
	Fitted     bool
	NSamples   int
	NFeatures  int
	Sing       []float64
	SqTotal    float64
	PadWidth   int
	Comps1     cmatGob
	Comps2     cmatGob
	Scores1    cmatGob
	Scores2    cmatGob
	RotMat     cmatGob
	Perm       []int
	Iterations int
	Converged  bool
	Requested  int
	Truncated  bool
	Prep1      []byte
	Prep2      []byte
}

// GobEncode implements gob.GobEncoder.
func (c *ComplexMCA) GobEncode() ([]byte, error) {
	snap := complexMCAGob{Config: c.cfg.snapshot()}
	err := c.state.WithState(func() error {
		if !c.state.Fitted {
			return nil
		}
		snap.Fitted = true
		snap.NSamples = c.state.NSamples
		snap.NFeatures = c.state.NFeatures
		snap.Sing = c.sol_.sing
		snap.SqTotal = c.sol_.sqTotal
		snap.PadWidth = c.padWidth_
		snap.Comps1 = toCMatGob(c.sol_.comps1)
		snap.Comps2 = toCMatGob(c.sol_.comps2)
		snap.Scores1 = toCMatGob(c.sol_.scores1)
		snap.Scores2 = toCMatGob(c.sol_.scores2)
		snap.RotMat = toCMatGob(c.sol_.rotMat)
		snap.Perm = c.sol_.perm
		snap.Iterations = c.sol_.iterations
		snap.Converged = c.sol_.converged
		snap.Requested = c.sol_.requested
		snap.Truncated = c.sol_.truncated
		blob1, err := c.prep1_.GobEncode()
		if err != nil {
			return err
		}
		blob2, err := c.prep2_.GobEncode()
		if err != nil {
			return err
		}
		snap.Prep1, snap.Prep2 = blob1, blob2
		return nil
	})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, errors.Wrap(err, "failed to encode ComplexMCA model")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (c *ComplexMCA) GobDecode(data []byte) error {
	var snap complexMCAGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "failed to decode ComplexMCA model")
	}
	if c.state == nil {
		c.state = model.NewStateManager()
	}
	var sol *crossComplexSolution
	var prep1, prep2 *preprocessing.Preprocessor
	if snap.Fitted {
		prep1 = preprocessing.NewPreprocessor()
		if err := prep1.GobDecode(snap.Prep1); err != nil {
			return err
		}
		prep2 = preprocessing.NewPreprocessor()
		if err := prep2.GobDecode(snap.Prep2); err != nil {
			return err
		}
		sol = &crossComplexSolution{
			sing:       snap.Sing,
			sqTotal:    snap.SqTotal,
			comps1:     fromCMatGob(snap.Comps1),
			comps2:     fromCMatGob(snap.Comps2),
			scores1:    fromCMatGob(snap.Scores1),
			scores2:    fromCMatGob(snap.Scores2),
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
		c.prep1_, c.prep2_ = prep1, prep2
		c.sol_ = sol
		c.padWidth_ = snap.PadWidth
		c.state.Fitted = snap.Fitted
		c.state.NSamples = snap.NSamples
		c.state.NFeatures = snap.NFeatures
		return nil
	})
}

func copyCDense(m *mat.CDense) *mat.CDense {
	r, c := m.Dims()
	out := mat.NewCDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(i, j))
		}
	}
	return out
}
