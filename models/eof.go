package models

import (
	"bytes"
	"encoding/gob"
	"io"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/core/model"
	"github.com/climakit/eofkit/decomposer"
	"github.com/climakit/eofkit/pkg/errors"
	"github.com/climakit/eofkit/pkg/log"
	"github.com/climakit/eofkit/preprocessing"
)

// EOF decomposes a single real-valued field into orthogonal spatial
// patterns and uncorrelated temporal scores via a truncated SVD of the
// preprocessed data matrix. Rows are samples, columns are features.
//
// The fitted state is installed atomically: a failing Fit leaves any
// previous fit untouched, and accessors on a fitted model are safe for
// concurrent use.
type EOF struct {
	cfg   config
	state *model.StateManager

	prep_     *preprocessing.Preprocessor
	sol_      *realSolution
	totalVar_ float64
}

var (
	_ model.Fitter             = (*EOF)(nil)
	_ model.Transformer        = (*EOF)(nil)
	_ model.InverseTransformer = (*EOF)(nil)
	_ model.Decomposition      = (*EOF)(nil)
	_ model.ParameterGetter    = (*EOF)(nil)
	_ model.SummaryExporter    = (*EOF)(nil)
	_ model.Persistable        = (*EOF)(nil)
	_ gob.GobEncoder           = (*EOF)(nil)
	_ gob.GobDecoder           = (*EOF)(nil)
)

// NewEOF creates an unfitted EOF model.
func NewEOF(opts ...Option) *EOF {
	return &EOF{
		cfg:   newConfig(opts...),
		state: model.NewStateManager(),
	}
}

// Fit runs the full pipeline on X: preprocessing with the optional
// per-feature weights, truncated SVD, optional rotation and the sign
// convention. Fewer than the requested modes are retained when the
// numerical rank is lower, with an advisory warning.
func (e *EOF) Fit(X mat.Matrix, weights []float64) error {
	const op = "EOF.Fit"
	if err := e.cfg.validate(false); err != nil {
		return err
	}
	n, m := X.Dims()
	if n < 2 {
		return errors.NewValueError(op, "at least two samples are required")
	}

	logger := e.cfg.logger.With(log.ModelNameKey, "EOF")
	logger.Info("fit started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, m,
		log.ModesKey, e.cfg.nModes,
	)
	start := time.Now()

	prep := preprocessing.NewPreprocessor(
		preprocessing.WithCentering(e.cfg.center),
		preprocessing.WithScaling(e.cfg.scale),
	)
	Z, err := prep.FitTransform(X, weights)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	res, err := decomposer.NewDecomposer(e.cfg.nModes).Decompose(Z)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	sol, err := assembleReal(op, res, n, e.cfg)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	fro := mat.Norm(Z, 2)
	totalVar := fro * fro / float64(n-1)

	e.install(sol, prep, totalVar, n, m)

	logger.Info("fit completed",
		log.OperationKey, log.OperationFit,
		log.RetainedModesKey, len(sol.sing),
		log.ValidFeaturesKey, prep.NValidFeatures(),
		log.ExplainedVarianceKey, explainedSum(sol.variance, totalVar),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (e *EOF) install(sol *realSolution, prep *preprocessing.Preprocessor, totalVar float64, n, m int) {
	_ = e.state.WithStateMut(func() error {
		e.prep_ = prep
		e.sol_ = sol
		e.totalVar_ = totalVar
		e.state.Fitted = true
		e.state.NSamples = n
		e.state.NFeatures = m
		return nil
	})
}

// snapshot hands out the immutable fitted state so accessors can work
// outside the lock.
func (e *EOF) snapshot(method string) (*realSolution, *preprocessing.Preprocessor, float64, error) {
	var sol *realSolution
	var prep *preprocessing.Preprocessor
	var totalVar float64
	err := e.state.WithState(func() error {
		if !e.state.Fitted {
			return errors.NewNotFittedError("EOF", method)
		}
		sol, prep, totalVar = e.sol_, e.prep_, e.totalVar_
		return nil
	})
	return sol, prep, totalVar, err
}

// Transform projects new rows through the stored preprocessing
// parameters and the fitted patterns, returning amplitude-carrying
// scores. For the training matrix this reproduces Scores exactly.
func (e *EOF) Transform(X mat.Matrix) (*mat.Dense, error) {
	sol, prep, _, err := e.snapshot("Transform")
	if err != nil {
		return nil, err
	}
	Z, err := prep.Transform(X)
	if err != nil {
		return nil, err
	}
	var s mat.Dense
	s.Mul(Z, sol.projection)
	return &s, nil
}

// FitTransform fits on X and returns the training scores.
func (e *EOF) FitTransform(X mat.Matrix, weights []float64) (*mat.Dense, error) {
	if err := e.Fit(X, weights); err != nil {
		return nil, err
	}
	return e.Scores()
}

// InverseTransform reconstructs the field from the leading columns of
// scores, undoing weighting, scaling and centering. Features dropped
// during fitting come back as NaN columns. The reconstruction is exact
// at full rank and approximate below it.
func (e *EOF) InverseTransform(scores mat.Matrix) (*mat.Dense, error) {
	const op = "EOF.InverseTransform"
	sol, prep, _, err := e.snapshot("InverseTransform")
	if err != nil {
		return nil, err
	}
	_, kIn := scores.Dims()
	if kIn < 1 {
		return nil, errors.NewValueError(op, "scores must have at least one column")
	}
	if k := len(sol.sing); kIn > k {
		return nil, errors.NewDimensionError(op, k, kIn, 1)
	}
	mValid, _ := sol.components.Dims()
	comp := sol.components.Slice(0, mValid, 0, kIn)
	var zhat mat.Dense
	zhat.Mul(scores, comp.T())
	return prep.InverseTransform(&zhat)
}

// Components returns the spatial patterns, one unit-norm column per
// mode, re-expanded to the raw feature layout with NaN rows for
// features dropped during fitting.
func (e *EOF) Components() (*mat.Dense, error) {
	sol, prep, _, err := e.snapshot("Components")
	if err != nil {
		return nil, err
	}
	return prep.ExpandRows(sol.components)
}

// Scores returns the amplitude-carrying temporal scores U·Sigma, one
// column per mode.
func (e *EOF) Scores() (*mat.Dense, error) {
	sol, _, _, err := e.snapshot("Scores")
	if err != nil {
		return nil, err
	}
	return sol.scores(), nil
}

// ScoresNormalized returns the unit-variance scores U·sqrt(n-1).
func (e *EOF) ScoresNormalized() (*mat.Dense, error) {
	sol, _, _, err := e.snapshot("ScoresNormalized")
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(sol.scoresNorm), nil
}

// SingularValues returns the per-mode singular values in descending
// order. After rotation these are the rotated loading norms mapped
// back to the singular-value scale.
func (e *EOF) SingularValues() ([]float64, error) {
	sol, _, _, err := e.snapshot("SingularValues")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), sol.sing...), nil
}

// ExplainedVariance returns the variance sigma^2/(n-1) carried by each
// mode.
func (e *EOF) ExplainedVariance() ([]float64, error) {
	sol, _, _, err := e.snapshot("ExplainedVariance")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), sol.variance...), nil
}

// ExplainedVarianceRatio returns the per-mode fraction of the total
// variance. The fractions sum to at most one, reaching one exactly at
// full rank.
func (e *EOF) ExplainedVarianceRatio() ([]float64, error) {
	sol, _, totalVar, err := e.snapshot("ExplainedVarianceRatio")
	if err != nil {
		return nil, err
	}
	ratio := make([]float64, len(sol.variance))
	for i, v := range sol.variance {
		ratio[i] = v / totalVar
	}
	return ratio, nil
}

// TotalVariance returns the total variance of the preprocessed
// training matrix.
func (e *EOF) TotalVariance() (float64, error) {
	_, _, totalVar, err := e.snapshot("TotalVariance")
	if err != nil {
		return 0, err
	}
	return totalVar, nil
}

// NModes returns the number of retained modes, zero before Fit.
func (e *EOF) NModes() int {
	n := 0
	_ = e.state.WithState(func() error {
		if e.state.Fitted {
			n = len(e.sol_.sing)
		}
		return nil
	})
	return n
}

// Truncated reports whether fewer modes than requested were retained.
func (e *EOF) Truncated() bool {
	t := false
	_ = e.state.WithState(func() error {
		if e.state.Fitted {
			t = e.sol_.truncated
		}
		return nil
	})
	return t
}

// RotationConverged reports whether the rotation reached its tolerance
// within the iteration budget. True for unrotated fits, false before
// Fit.
func (e *EOF) RotationConverged() bool {
	c := false
	_ = e.state.WithState(func() error {
		if e.state.Fitted {
			c = e.sol_.converged
		}
		return nil
	})
	return c
}

// GetParams returns the hyperparameters.
func (e *EOF) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_modes":         e.cfg.nModes,
		"center":          e.cfg.center,
		"scale":           e.cfg.scale,
		"rotation":        e.cfg.rotation,
		"n_rotated":       e.cfg.nRotated,
		"power":           e.cfg.power,
		"max_iter":        e.cfg.maxIter,
		"rtol":            e.cfg.rtol,
		"sign_convention": e.cfg.signConvention,
	}
}

// ExportSummary writes a JSON description of the fit to w.
func (e *EOF) ExportSummary(w io.Writer) error {
	sum := &model.ModelSummary{
		ModelType:       "EOF",
		Version:         model.SummaryVersion,
		Hyperparameters: e.GetParams(),
	}
	_ = e.state.WithState(func() error {
		if !e.state.Fitted {
			return nil
		}
		sum.Fitted = true
		sum.NSamples = e.state.NSamples
		sum.NFeatures = e.state.NFeatures
		sum.NModes = len(e.sol_.sing)
		sum.SingularValues = append([]float64(nil), e.sol_.sing...)
		ratio := make([]float64, len(e.sol_.variance))
		for i, v := range e.sol_.variance {
			ratio[i] = v / e.totalVar_
		}
		sum.ExplainedVarianceRatio = ratio
		sum.Metadata = map[string]interface{}{
			"total_variance":     e.totalVar_,
			"valid_features":     e.prep_.NValidFeatures(),
			"truncated":          e.sol_.truncated,
			"rotation_converged": e.sol_.converged,
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
func (e *EOF) Save(path string) error {
	return model.SaveModel(e, path)
}

// Load restores the model from a file written by Save.
func (e *EOF) Load(path string) error {
	return model.LoadModel(e, path)
}

// LoadEOF restores an EOF model from a file written by Save.
func LoadEOF(path string) (*EOF, error) {
	e := NewEOF()
	if err := e.Load(path); err != nil {
		return nil, err
	}
	return e, nil
}

// eofGob is the wire form of a fitted EOF model.
type eofGob struct {
	Config     configGob
	Fitted     bool
	NSamples   int
	NFeatures  int
	Sing       []float64
	Variance   []float64
	TotalVar   float64
	Components matGob
	ScoresNorm matGob
	Projection matGob
	RotMat     matGob
	Perm       []int
	Iterations int
	Converged  bool
	Requested  int
	Truncated  bool
	Prep       []byte
}

// GobEncode implements gob.GobEncoder.
func (e *EOF) GobEncode() ([]byte, error) {
	snap := eofGob{Config: e.cfg.snapshot()}
	err := e.state.WithState(func() error {
		if !e.state.Fitted {
			return nil
		}
		snap.Fitted = true
		snap.NSamples = e.state.NSamples
		snap.NFeatures = e.state.NFeatures
		snap.Sing = e.sol_.sing
		snap.Variance = e.sol_.variance
		snap.TotalVar = e.totalVar_
		snap.Components = toMatGob(e.sol_.components)
		snap.ScoresNorm = toMatGob(e.sol_.scoresNorm)
		snap.Projection = toMatGob(e.sol_.projection)
		snap.RotMat = toMatGob(e.sol_.rotMat)
		snap.Perm = e.sol_.perm
		snap.Iterations = e.sol_.iterations
		snap.Converged = e.sol_.converged
		snap.Requested = e.sol_.requested
		snap.Truncated = e.sol_.truncated
		blob, err := e.prep_.GobEncode()
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
		return nil, errors.Wrap(err, "failed to encode EOF model")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (e *EOF) GobDecode(data []byte) error {
	var snap eofGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "failed to decode EOF model")
	}
	if e.state == nil {
		e.state = model.NewStateManager()
	}
	var sol *realSolution
	var prep *preprocessing.Preprocessor
	if snap.Fitted {
		prep = preprocessing.NewPreprocessor()
		if err := prep.GobDecode(snap.Prep); err != nil {
			return err
		}
		sol = &realSolution{
			sing:       snap.Sing,
			variance:   snap.Variance,
			components: fromMatGob(snap.Components),
			scoresNorm: fromMatGob(snap.ScoresNorm),
			projection: fromMatGob(snap.Projection),
			rotMat:     fromMatGob(snap.RotMat),
			perm:       snap.Perm,
			iterations: snap.Iterations,
			converged:  snap.Converged,
			requested:  snap.Requested,
			truncated:  snap.Truncated,
		}
	}
	return e.state.WithStateMut(func() error {
		e.cfg = snap.Config.restore()
		e.prep_ = prep
		e.sol_ = sol
		e.totalVar_ = snap.TotalVar
		e.state.Fitted = snap.Fitted
		e.state.NSamples = snap.NSamples
		e.state.NFeatures = snap.NFeatures
		return nil
	})
}

func explainedSum(variance []float64, totalVar float64) float64 {
	if totalVar <= 0 {
		return 0
	}
	return floats.Sum(variance) / totalVar
}
