// Package eofkit decomposes gridded geophysical fields into empirical
// orthogonal functions and related coupled modes.
//
// The library covers the standard EOF analysis of a single field, the
// complex (Hilbert) EOF analysis that resolves propagating structures,
// and the maximum covariance analysis of two fields sharing a sample
// axis, in real and complex form. Mode rotations, latitude weighting,
// missing-feature masking, and significance-tested correlation patterns
// round out the pipeline.
//
// # Features
//
// - Truncated SVD decompositions with advisory rank warnings
// - Hilbert-transform models with exponential edge padding
// - Orthogonal and oblique mode rotations with global re-sorting
// - Homogeneous and heterogeneous correlation maps, BH adjusted
// - Deterministic sign and phase conventions for reproducible modes
// - Gob persistence and JSON fit summaries for every model
//
// # Quick Start
//
// Decompose a samples x features matrix into its leading modes:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "gonum.org/v1/gonum/mat"
//
//	    "github.com/climakit/eofkit/models"
//	)
//
//	func main() {
//	    X := mat.NewDense(120, 64, data) // 120 time steps, 64 grid cells
//
//	    eof := models.NewEOF(models.WithNModes(5))
//	    if err := eof.Fit(X, nil); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    ratio, _ := eof.ExplainedVarianceRatio()
//	    fmt.Printf("leading mode: %.1f%% of variance\n", 100*ratio[0])
//	}
//
// # Packages
//
// The decomposition pipeline is split along its stages:
//
//   - preprocessing: masking, centering, weighting, tensor stacking
//   - hilbert: analytic signals with exponential edge padding
//   - decomposer: truncated real and complex SVD kernels
//   - rotation: varimax and promax criteria
//   - models: EOF, ComplexEOF, MCA and ComplexMCA estimators
//   - metrics: reconstruction, congruence and correlation statistics
//   - core/model: shared estimator interfaces and persistence
//   - core/parallel: worker allocation for column-parallel loops
//
// Models follow the fit/transform convention: hyperparameters are fixed
// at construction through options, Fit validates its input and installs
// the solution atomically, and every accessor is safe for concurrent
// use.
package eofkit
