// Package log defines standard attribute keys for decomposition operations.
//
// This file contains predefined attribute keys that provide consistency across
// all logging operations in the library. Using these standard keys enables
// better log analysis, monitoring, and debugging of decomposition workflows.
//
// The attributes are organized into categories:
//   - Model and Operation Context
//   - Data Shape and Characteristics
//   - Decomposition Results
//   - Performance Metrics
//   - Error Context
//
// These keys follow a hierarchical naming convention (e.g., "model.name",
// "data.samples") to enable structured log analysis and filtering.

package log

// Model and Operation Context
// These attributes identify the model type, instance, and operation being performed.
const (
	// ModelNameKey identifies the type of decomposition model.
	// Examples: "EOF", "ComplexEOF", "MCA", "ComplexMCA"
	ModelNameKey = "model.name"

	// EstimatorIDKey provides a unique identifier for a specific model instance.
	// This is useful for tracking multiple instances of the same model type.
	// Examples: "eof-001", "mca-sst-slp", UUID strings
	EstimatorIDKey = "estimator.id"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "transform", "fit_transform", "inverse_transform"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is performing the operation.
	// Examples: "preprocessing", "decomposer", "rotation", "hilbert"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the decomposition pipeline.
	// Examples: "preprocessing", "padding", "decomposition", "rotation"
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
// These attributes describe the structure and properties of data being processed.
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	// This is crucial for understanding the scale of data being processed.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	// Important for dimensionality tracking and debugging shape mismatches.
	FeaturesKey = "data.features"

	// ValidFeaturesKey indicates the number of features retained after the
	// validity mask dropped columns that are missing for every sample.
	ValidFeaturesKey = "data.valid_features"

	// PadWidthKey indicates the number of synthetic samples added per end of
	// the sample axis before the Hilbert transform.
	PadWidthKey = "data.pad_width"

	// DataTypeKey specifies the numeric type of the data being processed.
	// Examples: "real", "complex"
	DataTypeKey = "data.type"
)

// Decomposition Results
// These attributes capture the outcome of a factorization.
const (
	// ModesKey indicates the number of modes requested from the decomposition.
	ModesKey = "model.n_modes"

	// RetainedModesKey indicates the number of modes actually retained, which
	// is smaller than ModesKey when the matrix rank truncates the request.
	RetainedModesKey = "model.retained_modes"

	// ExplainedVarianceKey records the cumulative explained variance ratio of
	// the retained modes. Range [0.0, 1.0].
	ExplainedVarianceKey = "metrics.explained_variance_ratio"

	// ReconstructionErrorKey records the relative Frobenius reconstruction
	// error of a truncated reconstruction.
	ReconstructionErrorKey = "metrics.reconstruction_error"

	// RotationKey records the rotation method applied after fitting.
	// Examples: "none", "varimax", "promax"
	RotationKey = "model.rotation"

	// IterationKey records the iteration count of an iterative procedure,
	// such as the rotation criterion maximization.
	IterationKey = "training.iteration"
)

// Performance Metrics
// These attributes capture timing information.
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	// This is essential for performance monitoring and optimization.
	DurationMsKey = "perf.duration_ms"

	// DurationSecondsKey records the execution time in seconds for longer
	// operations, such as large-grid fits.
	DurationSecondsKey = "perf.duration_seconds"
)

// Error and Warning Context
// These attributes provide additional context for error and warning messages.
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	// Examples: "DIMENSION_MISMATCH", "NOT_FITTED", "NON_FINITE_INPUT"
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	// Examples: "ValidationError", "PaddingError", "NonFiniteError"
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	// Automatically populated by the error logging functions.
	StacktraceKey = "error.stacktrace"

	// SuggestionKey provides helpful suggestions for resolving issues.
	// Examples: "Check input data shape", "Increase rotation max_iter"
	SuggestionKey = "error.suggestion"
)

// Hyperparameters and Configuration
// These attributes capture model configuration.
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	// Useful for tracking model configuration and reproducibility.
	HyperParamsKey = "model.hyperparams"

	// DecayFactorKey records the exponential decay factor of the edge padding.
	DecayFactorKey = "hyperparams.decay_factor"

	// RandomSeedKey records the random seed for reproducibility.
	// Essential for debugging and ensuring reproducible results.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute value constants for common operations.
// Using these constants ensures consistency across the codebase.
const (
	// Standard operations
	OperationFit              = "fit"
	OperationTransform        = "transform"
	OperationFitTransform     = "fit_transform"
	OperationInverseTransform = "inverse_transform"

	// Standard pipeline phases
	PhasePreprocessing  = "preprocessing"
	PhasePadding        = "padding"
	PhaseDecomposition  = "decomposition"
	PhaseRotation       = "rotation"
	PhasePostprocessing = "postprocessing"

	// Standard error codes
	ErrorNotFitted          = "NOT_FITTED"
	ErrorDimensionMismatch  = "DIMENSION_MISMATCH"
	ErrorEmptyData          = "EMPTY_DATA"
	ErrorInvalidInput       = "INVALID_INPUT"
	ErrorNonFinite          = "NON_FINITE_INPUT"
	ErrorAllFeaturesInvalid = "ALL_FEATURES_INVALID"
	ErrorInvalidPadding     = "INVALID_PADDING"
	ErrorConvergence        = "CONVERGENCE_FAILURE"
	ErrorTruncatedModes     = "TRUNCATED_MODES"
	ErrorSingularMatrix     = "SINGULAR_MATRIX"
)
