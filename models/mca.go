package models

import (
	"bytes"
	"encoding/gob"
	"io"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/climakit/eofkit/core/model"
	"github.com/climakit/eofkit/decomposer"
	"github.com/climakit/eofkit/pkg/errors"
	"github.com/climakit/eofkit/pkg/log"
	"github.com/climakit/eofkit/preprocessing"
)

// MCA finds paired patterns of maximum covariance between two
// real-valued fields sharing a sample axis, via an SVD of their
// cross-covariance matrix. Each field keeps its own preprocessing;
// the mode pairing is what couples them.
//
// The clean training matrices are retained (and persisted) so the
// homogeneous and heterogeneous correlation patterns can be computed
// after the fit.
type MCA struct {
	cfg   config
	state *model.StateManager

	prep1_, prep2_   *preprocessing.Preprocessor
	sol_             *crossSolution
	clean1_, clean2_ *mat.Dense
}

var (
	_ model.CoupledFitter   = (*MCA)(nil)
	_ model.Decomposition   = (*MCA)(nil)
	_ model.ParameterGetter = (*MCA)(nil)
	_ model.SummaryExporter = (*MCA)(nil)
	_ model.Persistable     = (*MCA)(nil)
	_ gob.GobEncoder        = (*MCA)(nil)
	_ gob.GobDecoder        = (*MCA)(nil)
)

// NewMCA creates an unfitted MCA model.
func NewMCA(opts ...Option) *MCA {
	return &MCA{
		cfg:   newConfig(opts...),
		state: model.NewStateManager(),
	}
}

// mcaState is the immutable fitted state handed to accessors.
type mcaState struct {
	sol            *crossSolution
	prep1, prep2   *preprocessing.Preprocessor
	clean1, clean2 *mat.Dense
}

// Fit preprocesses both fields with their optional weights and
// decomposes the cross-covariance matrix Z1^T·Z2/(n-1). The sample
// axes must match; fewer than the requested modes are retained when
// the covariance rank is lower.
func (m *MCA) Fit(X1, X2 mat.Matrix, weights1, weights2 []float64) error {
	const op = "MCA.Fit"
	if err := m.cfg.validate(false); err != nil {
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

	logger := m.cfg.logger.With(log.ModelNameKey, "MCA")
	logger.Info("fit started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n1,
		"data.features1", m1,
		"data.features2", m2,
		log.ModesKey, m.cfg.nModes,
	)
	start := time.Now()

	prep1 := preprocessing.NewPreprocessor(
		preprocessing.WithCentering(m.cfg.center),
		preprocessing.WithScaling(m.cfg.scale),
	)
	Z1, err := prep1.FitTransform(X1, weights1)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}
	prep2 := preprocessing.NewPreprocessor(
		preprocessing.WithCentering(m.cfg.center),
		preprocessing.WithScaling(m.cfg.scale),
	)
	Z2, err := prep2.FitTransform(X2, weights2)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	res, err := decomposer.NewDecomposer(m.cfg.nModes).DecomposeCross(Z1, Z2)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	sol, err := assembleCross(op, res, Z1, Z2, m.cfg)
	if err != nil {
		logger.Error("fit failed", err, log.OperationKey, log.OperationFit)
		return err
	}

	_ = m.state.WithStateMut(func() error {
		m.prep1_, m.prep2_ = prep1, prep2
		m.sol_ = sol
		m.clean1_, m.clean2_ = Z1, Z2
		m.state.Fitted = true
		m.state.NSamples = n1
		m.state.NFeatures = m1 + m2
		return nil
	})

	logger.Info("fit completed",
		log.OperationKey, log.OperationFit,
		log.RetainedModesKey, len(sol.sing),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (m *MCA) snapshot(method string) (mcaState, error) {
	var st mcaState
	err := m.state.WithState(func() error {
		if !m.state.Fitted {
			return errors.NewNotFittedError("MCA", method)
		}
		st = mcaState{
			sol:    m.sol_,
			prep1:  m.prep1_,
			prep2:  m.prep2_,
			clean1: m.clean1_,
			clean2: m.clean2_,
		}
		return nil
	})
	return st, err
}

// Transform projects new rows of either field onto its fitted
// patterns. Pass nil to skip a side; the corresponding result is nil.
func (m *MCA) Transform(X1, X2 mat.Matrix) (*mat.Dense, *mat.Dense, error) {
	const op = "MCA.Transform"
	st, err := m.snapshot("Transform")
	if err != nil {
		return nil, nil, err
	}
	if X1 == nil && X2 == nil {
		return nil, nil, errors.NewValueError(op, "at least one input matrix is required")
	}
	var s1, s2 *mat.Dense
	if X1 != nil {
		Z, err := st.prep1.Transform(X1)
		if err != nil {
			return nil, nil, err
		}
		var s mat.Dense
		s.Mul(Z, st.sol.proj1)
		s1 = &s
	}
	if X2 != nil {
		Z, err := st.prep2.Transform(X2)
		if err != nil {
			return nil, nil, err
		}
		var s mat.Dense
		s.Mul(Z, st.sol.proj2)
		s2 = &s
	}
	return s1, s2, nil
}

// InverseTransform reconstructs either field from the leading columns
// of its scores. Pass nil to skip a side. Features dropped during
// fitting come back as NaN columns.
func (m *MCA) InverseTransform(scores1, scores2 mat.Matrix) (*mat.Dense, *mat.Dense, error) {
	const op = "MCA.InverseTransform"
	st, err := m.snapshot("InverseTransform")
	if err != nil {
		return nil, nil, err
	}
	if scores1 == nil && scores2 == nil {
		return nil, nil, errors.NewValueError(op, "at least one score matrix is required")
	}
	var x1, x2 *mat.Dense
	if scores1 != nil {
		x1, err = reconstructSide(op, scores1, st.sol.comps1, st.prep1, len(st.sol.sing))
		if err != nil {
			return nil, nil, err
		}
	}
	if scores2 != nil {
		x2, err = reconstructSide(op, scores2, st.sol.comps2, st.prep2, len(st.sol.sing))
		if err != nil {
			return nil, nil, err
		}
	}
	return x1, x2, nil
}

func reconstructSide(op string, scores mat.Matrix, comps *mat.Dense, prep *preprocessing.Preprocessor, k int) (*mat.Dense, error) {
	_, kIn := scores.Dims()
	if kIn < 1 {
		return nil, errors.NewValueError(op, "scores must have at least one column")
	}
	if kIn > k {
		return nil, errors.NewDimensionError(op, k, kIn, 1)
	}
	mValid, _ := comps.Dims()
	sub := comps.Slice(0, mValid, 0, kIn)
	var zhat mat.Dense
	zhat.Mul(scores, sub.T())
	return prep.InverseTransform(&zhat)
}

// Components returns the paired patterns, one unit-norm column per
// mode in each feature space, re-expanded to the raw layouts with NaN
// rows for dropped features.
func (m *MCA) Components() (*mat.Dense, *mat.Dense, error) {
	st, err := m.snapshot("Components")
	if err != nil {
		return nil, nil, err
	}
	c1, err := st.prep1.ExpandRows(st.sol.comps1)
	if err != nil {
		return nil, nil, err
	}
	c2, err := st.prep2.ExpandRows(st.sol.comps2)
	if err != nil {
		return nil, nil, err
	}
	return c1, c2, nil
}

// Scores returns the expansion coefficients of both fields.
func (m *MCA) Scores() (*mat.Dense, *mat.Dense, error) {
	st, err := m.snapshot("Scores")
	if err != nil {
		return nil, nil, err
	}
	return mat.DenseCopyOf(st.sol.scores1), mat.DenseCopyOf(st.sol.scores2), nil
}

// ScoresNormalized returns the expansion coefficients divided by the
// square root of each mode's covariance.
func (m *MCA) ScoresNormalized() (*mat.Dense, *mat.Dense, error) {
	st, err := m.snapshot("ScoresNormalized")
	if err != nil {
		return nil, nil, err
	}
	s1 := mat.DenseCopyOf(st.sol.scores1)
	s2 := mat.DenseCopyOf(st.sol.scores2)
	n, k := s1.Dims()
	for j := 0; j < k; j++ {
		inv := 1 / math.Sqrt(st.sol.sing[j])
		for i := 0; i < n; i++ {
			s1.Set(i, j, s1.At(i, j)*inv)
			s2.Set(i, j, s2.At(i, j)*inv)
		}
	}
	return s1, s2, nil
}

// SingularValues returns the per-mode covariance scale, descending.
func (m *MCA) SingularValues() ([]float64, error) {
	st, err := m.snapshot("SingularValues")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), st.sol.sing...), nil
}

// SquaredCovariance returns sigma^2 per mode.
func (m *MCA) SquaredCovariance() ([]float64, error) {
	st, err := m.snapshot("SquaredCovariance")
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
// Frobenius norm of the cross-covariance matrix.
func (m *MCA) SquaredCovarianceFraction() ([]float64, error) {
	st, err := m.snapshot("SquaredCovarianceFraction")
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
// full cross-covariance matrix.
func (m *MCA) SquaredTotalCovariance() (float64, error) {
	st, err := m.snapshot("SquaredTotalCovariance")
	if err != nil {
		return 0, err
	}
	return st.sol.sqTotal, nil
}

// NModes returns the number of retained modes, zero before Fit.
func (m *MCA) NModes() int {
	n := 0
	_ = m.state.WithState(func() error {
		if m.state.Fitted {
			n = len(m.sol_.sing)
		}
		return nil
	})
	return n
}

// Truncated reports whether fewer modes than requested were retained.
func (m *MCA) Truncated() bool {
	t := false
	_ = m.state.WithState(func() error {
		if m.state.Fitted {
			t = m.sol_.truncated
		}
		return nil
	})
	return t
}

// RotationConverged reports whether the rotation reached its
// tolerance. True for unrotated fits, false before Fit.
func (m *MCA) RotationConverged() bool {
	c := false
	_ = m.state.WithState(func() error {
		if m.state.Fitted {
			c = m.sol_.converged
		}
		return nil
	})
	return c
}

// GetParams returns the hyperparameters.
func (m *MCA) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_modes":          m.cfg.nModes,
		"center":           m.cfg.center,
		"scale":            m.cfg.scale,
		"rotation":         m.cfg.rotation,
		"n_rotated":        m.cfg.nRotated,
		"power":            m.cfg.power,
		"max_iter":         m.cfg.maxIter,
		"rtol":             m.cfg.rtol,
		"sign_convention":  m.cfg.signConvention,
		"squared_loadings": m.cfg.squaredLoadings,
	}
}

// ExportSummary writes a JSON description of the fit to w. The
// per-mode squared covariance fractions ride in the metadata; the
// explained-variance field stays empty for coupled models.
func (m *MCA) ExportSummary(w io.Writer) error {
	sum := &model.ModelSummary{
		ModelType:       "MCA",
		Version:         model.SummaryVersion,
		Hyperparameters: m.GetParams(),
	}
	_ = m.state.WithState(func() error {
		if !m.state.Fitted {
			return nil
		}
		sum.Fitted = true
		sum.NSamples = m.state.NSamples
		sum.NFeatures = m.state.NFeatures
		sum.NModes = len(m.sol_.sing)
		sum.SingularValues = append([]float64(nil), m.sol_.sing...)
		frac := make([]float64, len(m.sol_.sing))
		for i, s := range m.sol_.sing {
			frac[i] = s * s / m.sol_.sqTotal
		}
		sum.Metadata = map[string]interface{}{
			"squared_total_covariance":    m.sol_.sqTotal,
			"squared_covariance_fraction": frac,
			"valid_features1":             m.prep1_.NValidFeatures(),
			"valid_features2":             m.prep2_.NValidFeatures(),
			"truncated":                   m.sol_.truncated,
			"rotation_converged":          m.sol_.converged,
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
func (m *MCA) Save(path string) error {
	return model.SaveModel(m, path)
}

// Load restores the model from a file written by Save.
func (m *MCA) Load(path string) error {
	return model.LoadModel(m, path)
}

// LoadMCA restores an MCA model from a file written by Save.
func LoadMCA(path string) (*MCA, error) {
	m := NewMCA()
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

type mcaGob struct {
	Config     configGob
	Fitted     bool
	NSamples   int
	NFeatures  int
	Sing       []float64
	SqTotal    float64
	Comps1     matGob
	Comps2     matGob
	Proj1      matGob
	Proj2      matGob
	Scores1    matGob
	Scores2    matGob
	Clean1     matGob
	Clean2     matGob
	RotMat     matGob
	Perm       []int
	Iterations int
	Converged  bool
	Requested  int
	Truncated  bool
	Prep1      []byte
	Prep2      []byte
}

// GobEncode implements gob.GobEncoder.
func (m *MCA) GobEncode() ([]byte, error) {
	snap := mcaGob{Config: m.cfg.snapshot()}
	err := m.state.WithState(func() error {
		if !m.state.Fitted {
			return nil
		}
		snap.Fitted = true
		snap.NSamples = m.state.NSamples
		snap.NFeatures = m.state.NFeatures
		snap.Sing = m.sol_.sing
		snap.SqTotal = m.sol_.sqTotal
		snap.Comps1 = toMatGob(m.sol_.comps1)
		snap.Comps2 = toMatGob(m.sol_.comps2)
		snap.Proj1 = toMatGob(m.sol_.proj1)
		snap.Proj2 = toMatGob(m.sol_.proj2)
		snap.Scores1 = toMatGob(m.sol_.scores1)
		snap.Scores2 = toMatGob(m.sol_.scores2)
		snap.Clean1 = toMatGob(m.clean1_)
		snap.Clean2 = toMatGob(m.clean2_)
		snap.RotMat = toMatGob(m.sol_.rotMat)
		snap.Perm = m.sol_.perm
		snap.Iterations = m.sol_.iterations
		snap.Converged = m.sol_.converged
		snap.Requested = m.sol_.requested
		snap.Truncated = m.sol_.truncated
		blob1, err := m.prep1_.GobEncode()
		if err != nil {
			return err
		}
		blob2, err := m.prep2_.GobEncode()
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
		return nil, errors.Wrap(err, "failed to encode MCA model")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (m *MCA) GobDecode(data []byte) error {
	var snap mcaGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "failed to decode MCA model")
	}
	if m.state == nil {
		m.state = model.NewStateManager()
	}
	var sol *crossSolution
	var prep1, prep2 *preprocessing.Preprocessor
	var clean1, clean2 *mat.Dense
	if snap.Fitted {
		prep1 = preprocessing.NewPreprocessor()
		if err := prep1.GobDecode(snap.Prep1); err != nil {
			return err
		}
		prep2 = preprocessing.NewPreprocessor()
		if err := prep2.GobDecode(snap.Prep2); err != nil {
			return err
		}
		sol = &crossSolution{
			sing:       snap.Sing,
			sqTotal:    snap.SqTotal,
			comps1:     fromMatGob(snap.Comps1),
			comps2:     fromMatGob(snap.Comps2),
			proj1:      fromMatGob(snap.Proj1),
			proj2:      fromMatGob(snap.Proj2),
			scores1:    fromMatGob(snap.Scores1),
			scores2:    fromMatGob(snap.Scores2),
			rotMat:     fromMatGob(snap.RotMat),
			perm:       snap.Perm,
			iterations: snap.Iterations,
			converged:  snap.Converged,
			requested:  snap.Requested,
			truncated:  snap.Truncated,
		}
		clean1 = fromMatGob(snap.Clean1)
		clean2 = fromMatGob(snap.Clean2)
	}
	return m.state.WithStateMut(func() error {
		m.cfg = snap.Config.restore()
		m.prep1_, m.prep2_ = prep1, prep2
		m.sol_ = sol
		m.clean1_, m.clean2_ = clean1, clean2
		m.state.Fitted = snap.Fitted
		m.state.NSamples = snap.NSamples
		m.state.NFeatures = snap.NFeatures
		return nil
	})
}
