package model

// EstimatorState tracks whether a model has been fitted.
type EstimatorState int

const (
	// NotFitted marks a model that has not seen data yet.
	NotFitted EstimatorState = iota
	// Fitted marks a model whose Fit completed successfully.
	Fitted
)

// BaseEstimator is the embeddable fitted-state flag used by components
// that are configured and fitted from a single goroutine, such as the
// preprocessing stages. Models that serve concurrent readers compose a
// StateManager instead.
type BaseEstimator struct {
	state EstimatorState
}

// IsFitted reports whether the estimator has been fitted.
func (e *BaseEstimator) IsFitted() bool {
	return e.state == Fitted
}

// SetFitted marks the estimator as fitted.
func (e *BaseEstimator) SetFitted() {
	e.state = Fitted
}

// Reset returns the estimator to the unfitted state.
func (e *BaseEstimator) Reset() {
	e.state = NotFitted
}
