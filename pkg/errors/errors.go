// Package errors provides the error handling and warning system used across
// the library. Hard errors carry structured context and stack traces; advisory
// conditions (mode truncation, rotation convergence) are reported as warnings
// through a configurable handler so callers decide how loud they should be.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Global warning handling
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// Default handler logs to standard error.
		log.Printf("eofkit-Warning: %v\n", w)
	}
	// zerolog sink, initialized lazily to avoid an import cycle with pkg/log.
	zerologWarnFunc func(warning error)
)

// SetWarningHandler sets the library-wide warning handler. Use it to control
// how advisory conditions such as ConvergenceWarning or TruncatedModesWarning
// are processed.
//
// Example:
//
//	errors.SetWarningHandler(func(w error) {
//	    // drop all warnings
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc installs a zerolog-backed warning sink (set by pkg/log to
// avoid an import cycle).
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn raises a warning. If a zerolog sink is installed it receives the
// warning as a structured event; otherwise the plain handler runs.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Advisory warning types
//
// ===========================================================================

// ConvergenceWarning is raised when an iterative algorithm stops at its
// iteration budget before reaching the convergence tolerance. The caller
// receives the last iterate; the warning records how far the iteration got.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Tolerance  float64
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations (rtol=%g): %s", w.Algorithm, w.Iterations, w.Tolerance, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations (rtol=%g). Consider increasing max_iter or relaxing the tolerance.", w.Algorithm, w.Iterations, w.Tolerance)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Float64("tolerance", w.Tolerance).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning creates a new ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, tolerance float64, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Tolerance: tolerance, Message: message}
}

// TruncatedModesWarning is raised when a decomposition can deliver fewer modes
// than requested because the matrix rank is smaller. The call still succeeds
// with the available modes.
type TruncatedModesWarning struct {
	Op        string
	Requested int
	Available int
}

func (w *TruncatedModesWarning) Error() string {
	return fmt.Sprintf("%s: requested %d modes but only %d are available; returning %d", w.Op, w.Requested, w.Available, w.Available)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *TruncatedModesWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("operation", w.Op).
		Int("requested", w.Requested).
		Int("available", w.Available).
		Str("type", "TruncatedModesWarning")
}

// NewTruncatedModesWarning creates a new TruncatedModesWarning.
func NewTruncatedModesWarning(op string, requested, available int) *TruncatedModesWarning {
	return &TruncatedModesWarning{Op: op, Requested: requested, Available: available}
}

// UndefinedMetricWarning is raised when a metric is ill-defined for the given
// input, for example a congruence coefficient against an all-zero pattern.
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // value returned under this condition
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// NewUndefinedMetricWarning creates a new UndefinedMetricWarning.
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	Structured error types
//
// ===========================================================================

// NotFittedError is returned when Transform, InverseTransform, or an accessor
// is called on a model whose Fit has not completed.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("eofkit: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace attached.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError is returned when an input dimension differs from the one the
// model was fitted with, or from what an operation requires.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for samples/rows, 1 for features/columns
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "samples"
	}
	return fmt.Sprintf("eofkit: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "samples"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace attached.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// InputShapeError is returned when a multi-dimensional input shape does not
// match the shape recorded at fit time. It is more detailed than
// DimensionError and reports whole shapes rather than a single axis.
type InputShapeError struct {
	Phase    string // "fit", "transform", "stack", "unstack"
	Expected []int
	Got      []int
}

func (e *InputShapeError) Error() string {
	return fmt.Sprintf("eofkit: input shape mismatch in %s phase. Expected shape %v, got %v",
		e.Phase, e.Expected, e.Got)
}

// NewInputShapeError creates an InputShapeError with a stack trace attached.
func NewInputShapeError(phase string, expected, got []int) error {
	err := &InputShapeError{
		Phase:    phase,
		Expected: expected,
		Got:      got,
	}
	return errors.WithStack(err)
}

// ValidationError is returned when a configuration parameter fails
// validation. It is more specific than ValueError and names the parameter.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("eofkit: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a ValidationError with a stack trace attached.
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError is returned when an argument value is invalid for an operation.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("eofkit: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace attached.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError is a general error raised by a model operation.
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("eofkit: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("eofkit: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError creates a ModelError with a stack trace attached.
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// ===========================================================================
//
//	Decomposition-specific error types
//
// ===========================================================================

// NonFiniteError is returned when a NaN or Inf entry survives in a retained
// feature column. Per-sample gaps must be resolved (filled or the sample
// dropped) before fitting; the library performs no imputation.
type NonFiniteError struct {
	Op    string
	Row   int
	Col   int
	Value float64
}

func (e *NonFiniteError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("eofkit: %s: non-finite value %v at feature %d; resolve missing entries before fitting", e.Op, e.Value, e.Col)
	}
	return fmt.Sprintf("eofkit: %s: non-finite value %v at sample %d, feature %d; resolve missing samples before fitting", e.Op, e.Value, e.Row, e.Col)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *NonFiniteError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("row", e.Row).
		Int("col", e.Col).
		Float64("value", e.Value).
		Str("type", "NonFiniteError")
}

// NewNonFiniteError creates a NonFiniteError with a stack trace attached.
func NewNonFiniteError(op string, row, col int, value float64) error {
	err := &NonFiniteError{Op: op, Row: row, Col: col, Value: value}
	return errors.WithStack(err)
}

// AllFeaturesInvalidError is returned when masking invalid features would
// leave an empty matrix, i.e. every feature column is missing for every
// sample.
type AllFeaturesInvalidError struct {
	Op        string
	NFeatures int
}

func (e *AllFeaturesInvalidError) Error() string {
	return fmt.Sprintf("eofkit: %s: all %d feature columns are invalid for every sample; nothing left to decompose", e.Op, e.NFeatures)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *AllFeaturesInvalidError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("n_features", e.NFeatures).
		Str("type", "AllFeaturesInvalidError")
}

// NewAllFeaturesInvalidError creates an AllFeaturesInvalidError with a stack
// trace attached.
func NewAllFeaturesInvalidError(op string, nFeatures int) error {
	err := &AllFeaturesInvalidError{Op: op, NFeatures: nFeatures}
	return errors.WithStack(err)
}

// PaddingError is returned when the edge-extension configuration is
// degenerate: a non-positive decay factor, or a pad width at least as long
// as the series itself.
type PaddingError struct {
	Op          string
	Method      string
	DecayFactor float64
	PadWidth    int
	NSamples    int
	Reason      string
}

func (e *PaddingError) Error() string {
	return fmt.Sprintf("eofkit: %s: invalid %q padding (pad_width=%d, n_samples=%d, decay_factor=%g): %s",
		e.Op, e.Method, e.PadWidth, e.NSamples, e.DecayFactor, e.Reason)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *PaddingError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("method", e.Method).
		Float64("decay_factor", e.DecayFactor).
		Int("pad_width", e.PadWidth).
		Int("n_samples", e.NSamples).
		Str("reason", e.Reason).
		Str("type", "PaddingError")
}

// NewPaddingError creates a PaddingError with a stack trace attached.
func NewPaddingError(op, method string, decayFactor float64, padWidth, nSamples int, reason string) error {
	err := &PaddingError{Op: op, Method: method, DecayFactor: decayFactor, PadWidth: padWidth, NSamples: nSamples, Reason: reason}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an existing error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates an error with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common error variables
//
// ===========================================================================

var (
	// ErrNotImplemented is returned for operations a variant does not
	// support, such as Transform on a Hilbert-transformed model.
	ErrNotImplemented = New("not implemented")

	// ErrEmptyData is returned when an empty matrix is passed in.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix is returned when a factorization fails on a
	// singular matrix.
	ErrSingularMatrix = New("singular matrix")
)
