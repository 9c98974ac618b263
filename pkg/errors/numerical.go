package errors

import (
	"math"
)

// CheckMatrix scans a real matrix for NaN or Inf entries and returns a
// NonFiniteError locating the first offending entry. The decomposition
// kernels use it as a cheap precondition re-check; the preprocessor is the
// layer that enforces it against raw input.
func CheckMatrix(op string, m interface {
	Dims() (int, int)
	At(int, int) float64
}) error {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return NewNonFiniteError(op, i, j, v)
			}
		}
	}
	return nil
}

// CheckCMatrix scans a complex matrix for NaN or Inf in either the real or
// imaginary part and returns a NonFiniteError locating the first offending
// entry. The reported value is the offending part.
func CheckCMatrix(op string, m interface {
	Dims() (int, int)
	At(int, int) complex128
}) error {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			re, im := real(v), imag(v)
			if math.IsNaN(re) || math.IsInf(re, 0) {
				return NewNonFiniteError(op, i, j, re)
			}
			if math.IsNaN(im) || math.IsInf(im, 0) {
				return NewNonFiniteError(op, i, j, im)
			}
		}
	}
	return nil
}

// CheckVector scans a slice for NaN or Inf and returns a NonFiniteError with
// the offending index reported as the feature position.
func CheckVector(op string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewNonFiniteError(op, -1, i, v)
		}
	}
	return nil
}

// SafeDivide performs division with protection against division by zero.
// Returns 0 if the denominator is zero or close to zero.
func SafeDivide(numerator, denominator float64) float64 {
	if math.Abs(denominator) < 1e-10 {
		return 0
	}
	return numerator / denominator
}

// ClipValue clips a value to the range [min, max].
func ClipValue(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
