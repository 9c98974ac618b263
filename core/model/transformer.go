package model

import "gonum.org/v1/gonum/mat"

// Transformer is the fit/transform surface shared by preprocessing
// stages and single-field decomposition models.
type Transformer interface {
	Fitter

	// Transform projects new rows through the fitted state.
	Transform(X mat.Matrix) (*mat.Dense, error)

	// FitTransform fits on X and returns the transformed rows.
	FitTransform(X mat.Matrix, weights []float64) (*mat.Dense, error)
}

// InverseTransformer is a Transformer whose output can be mapped back
// to the original feature space.
type InverseTransformer interface {
	Transformer

	// InverseTransform undoes Transform. Features dropped during
	// fitting come back as NaN columns.
	InverseTransform(Z mat.Matrix) (*mat.Dense, error)
}
