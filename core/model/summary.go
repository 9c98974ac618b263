package model

import (
	"encoding/json"

	"github.com/climakit/eofkit/pkg/errors"
)

// SummaryVersion labels the summary layout so downstream readers can
// detect incompatible changes.
const SummaryVersion = "1"

// ModelSummary is the JSON-serializable description of a fitted
// decomposition. Gob persistence carries the full state; the summary
// carries only what a reader needs to judge the fit.
type ModelSummary struct {
	// ModelType identifies the decomposition (EOF, ComplexEOF, MCA, ComplexMCA).
	ModelType string `json:"model_type"`

	// Version is the summary layout version.
	Version string `json:"version"`

	// Fitted reports whether the model had been fitted when the
	// summary was taken.
	Fitted bool `json:"fitted"`

	// NSamples and NFeatures are the dimensions of the training data.
	NSamples  int `json:"n_samples"`
	NFeatures int `json:"n_features"`

	// NModes is the number of retained modes after truncation.
	NModes int `json:"n_modes"`

	// SingularValues holds the singular values in descending order.
	SingularValues []float64 `json:"singular_values,omitempty"`

	// ExplainedVarianceRatio holds the per-mode fraction of total
	// variance. Empty for cross-covariance models, which report
	// squared covariance fractions through Metadata instead.
	ExplainedVarianceRatio []float64 `json:"explained_variance_ratio,omitempty"`

	// Hyperparameters mirrors GetParams at fit time.
	Hyperparameters map[string]interface{} `json:"hyperparameters"`

	// Metadata carries model-specific extras such as rotation
	// convergence or squared covariance fractions.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON serializes the summary with indentation.
func (ms *ModelSummary) ToJSON() ([]byte, error) {
	return json.MarshalIndent(ms, "", "  ")
}

// FromJSON deserializes a summary produced by ToJSON.
func (ms *ModelSummary) FromJSON(data []byte) error {
	return json.Unmarshal(data, ms)
}

// Validate checks internal consistency of the summary.
func (ms *ModelSummary) Validate() error {
	if ms.ModelType == "" {
		return errors.NewValidationError("model_type", "must not be empty", ms.ModelType)
	}

	if ms.Version == "" {
		return errors.NewValidationError("version", "must not be empty", ms.Version)
	}

	if !ms.Fitted && len(ms.SingularValues) > 0 {
		return errors.NewValidationError("singular_values", "unfitted model must not carry a spectrum", len(ms.SingularValues))
	}

	if ms.Fitted && ms.NModes <= 0 {
		return errors.NewValidationError("n_modes", "fitted model must retain at least one mode", ms.NModes)
	}

	if len(ms.ExplainedVarianceRatio) > 0 && len(ms.ExplainedVarianceRatio) != len(ms.SingularValues) {
		return errors.NewValidationError("explained_variance_ratio", "length must match singular_values", len(ms.ExplainedVarianceRatio))
	}

	return nil
}

// Clone creates a deep copy of the summary.
func (ms *ModelSummary) Clone() *ModelSummary {
	clone := &ModelSummary{
		ModelType:              ms.ModelType,
		Version:                ms.Version,
		Fitted:                 ms.Fitted,
		NSamples:               ms.NSamples,
		NFeatures:              ms.NFeatures,
		NModes:                 ms.NModes,
		SingularValues:         make([]float64, len(ms.SingularValues)),
		ExplainedVarianceRatio: make([]float64, len(ms.ExplainedVarianceRatio)),
		Hyperparameters:        make(map[string]interface{}),
		Metadata:               make(map[string]interface{}),
	}

	copy(clone.SingularValues, ms.SingularValues)
	copy(clone.ExplainedVarianceRatio, ms.ExplainedVarianceRatio)

	for k, v := range ms.Hyperparameters {
		clone.Hyperparameters[k] = v
	}

	for k, v := range ms.Metadata {
		clone.Metadata[k] = v
	}

	return clone
}
