// Package model provides the shared fitted-state machinery, the small
// interface surface implemented by the estimators, and gob-based
// persistence helpers.
package model

import "io"

// ParameterGetter is implemented by models that expose their
// hyperparameters in scikit-learn's get_params style.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// SummaryExporter is implemented by models that can describe a fitted
// state as JSON for reports and cross-language inspection.
type SummaryExporter interface {
	// ExportSummary writes the model summary to w.
	ExportSummary(w io.Writer) error
}

// Persistable is implemented by models that round-trip through the
// gob persistence helpers.
type Persistable interface {
	// Save writes the model to a file.
	Save(path string) error

	// Load restores the model from a file.
	Load(path string) error
}
