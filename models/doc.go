// Package models provides the fitted decomposition models: EOF for a
// single real-valued field, ComplexEOF for its analytic-signal
// counterpart, and MCA / ComplexMCA for the coupled cross-covariance
// analysis of two fields sharing a sample axis.
//
// All models follow the same lifecycle. Construction with functional
// options fixes the hyperparameters; Fit runs the full pipeline
// (preprocessing, optional analytic signal, truncated SVD, optional
// rotation, sign convention) and installs the fitted state atomically,
// so a failed Fit leaves any previous fit untouched. After a
// successful Fit the accessors and Transform/InverseTransform are safe
// for concurrent use. Models round-trip through gob via Save/Load or
// the core/model persistence helpers.
//
// Example:
//
//	eof := models.NewEOF(
//		models.WithNModes(5),
//		models.WithRotation(models.RotationVarimax),
//	)
//	if err := eof.Fit(X, weights); err != nil {
//		return err
//	}
//	scores, err := eof.Transform(Xnew)
package models
