package model

import "gonum.org/v1/gonum/mat"

// Fitter is implemented by models fitted on a single data matrix of
// shape samples x features. Weights are optional per-feature
// multipliers applied during preprocessing; pass nil to disable.
type Fitter interface {
	Fit(X mat.Matrix, weights []float64) error
}

// CoupledFitter is implemented by models fitted on two matrices that
// share the sample axis, such as cross-covariance decompositions.
type CoupledFitter interface {
	Fit(X1, X2 mat.Matrix, weights1, weights2 []float64) error
}

// Decomposition is the accessor surface shared by all fitted modal
// decompositions, real or complex, single-field or coupled.
type Decomposition interface {
	// NModes returns the number of retained modes after any
	// rank truncation.
	NModes() int

	// SingularValues returns the singular values of the fitted
	// decomposition in descending order.
	SingularValues() ([]float64, error)
}
