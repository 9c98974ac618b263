package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		kind     string
		err      error
		wantMsg  string
		hasStack bool
	}{
		{
			name:     "with original error",
			op:       "Fit",
			kind:     "invalid input",
			err:      fmt.Errorf("test error"),
			wantMsg:  "eofkit: Fit: invalid input: test error",
			hasStack: true,
		},
		{
			name:     "without original error",
			op:       "Transform",
			kind:     "not fitted",
			err:      nil,
			wantMsg:  "eofkit: Transform: not fitted",
			hasStack: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			if tt.hasStack {
				formatted := fmt.Sprintf("%+v", err)
				if !strings.Contains(formatted, "errors_test.go") {
					t.Error("Expected stack trace to contain test file name")
				}
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Transform", 50, 49, 1)

	want := "eofkit: Transform: dimension mismatch on axis 1 (features). Expected 50, got 49"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
	if dimErr.Expected != 50 || dimErr.Got != 49 {
		t.Errorf("DimensionError fields = (%d, %d), want (50, 49)", dimErr.Expected, dimErr.Got)
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("EOF", "Transform")

	want := "eofkit: EOF: this model is not fitted yet. Call Fit() before using Transform()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewNonFiniteError(t *testing.T) {
	tests := []struct {
		name    string
		row     int
		col     int
		value   float64
		wantSub string
	}{
		{
			name:    "matrix position",
			row:     3,
			col:     7,
			value:   math.NaN(),
			wantSub: "at sample 3, feature 7",
		},
		{
			name:    "vector position",
			row:     -1,
			col:     2,
			value:   math.Inf(1),
			wantSub: "at feature 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewNonFiniteError("Fit", tt.row, tt.col, tt.value)
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Error() = %v, want substring %q", err.Error(), tt.wantSub)
			}

			var nfErr *NonFiniteError
			if !As(err, &nfErr) {
				t.Error("Error should be castable to *NonFiniteError")
			}
		})
	}
}

func TestNewPaddingError(t *testing.T) {
	err := NewPaddingError("Fit", "exp", -0.1, 50, 100, "decay factor must be positive")

	if !strings.Contains(err.Error(), "decay factor must be positive") {
		t.Errorf("Error() = %v, want reason included", err.Error())
	}

	var padErr *PaddingError
	if !As(err, &padErr) {
		t.Error("Error should be castable to *PaddingError")
	}
	if padErr.Method != "exp" || padErr.PadWidth != 50 {
		t.Errorf("PaddingError fields = (%q, %d), want (exp, 50)", padErr.Method, padErr.PadWidth)
	}
}

func TestNewAllFeaturesInvalidError(t *testing.T) {
	err := NewAllFeaturesInvalidError("Fit", 50)

	if !strings.Contains(err.Error(), "all 50 feature columns are invalid") {
		t.Errorf("Error() = %v, want feature count included", err.Error())
	}

	var afErr *AllFeaturesInvalidError
	if !As(err, &afErr) {
		t.Error("Error should be castable to *AllFeaturesInvalidError")
	}
}

func TestNewConvergenceWarning(t *testing.T) {
	warn := NewConvergenceWarning("varimax", 1000, 1e-8, "criterion oscillating")

	want := "varimax failed to converge after 1000 iterations (rtol=1e-08): criterion oscillating"
	if warn.Error() != want {
		t.Errorf("Error() = %v, want %v", warn.Error(), want)
	}

	var convWarn *ConvergenceWarning
	if !As(warn, &convWarn) {
		t.Error("Warning should be castable to *ConvergenceWarning")
	}
}

func TestNewTruncatedModesWarning(t *testing.T) {
	warn := NewTruncatedModesWarning("Decompose", 10, 4)

	want := "Decompose: requested 10 modes but only 4 are available; returning 4"
	if warn.Error() != want {
		t.Errorf("Error() = %v, want %v", warn.Error(), want)
	}

	var truncWarn *TruncatedModesWarning
	if !As(warn, &truncWarn) {
		t.Error("Warning should be castable to *TruncatedModesWarning")
	}
}

func TestWarnHandler(t *testing.T) {
	var captured []error
	SetWarningHandler(func(w error) {
		captured = append(captured, w)
	})
	defer SetWarningHandler(func(w error) {})

	Warn(NewTruncatedModesWarning("Decompose", 5, 3))
	Warn(NewConvergenceWarning("varimax", 100, 1e-8, ""))

	if len(captured) != 2 {
		t.Fatalf("captured %d warnings, want 2", len(captured))
	}

	var truncWarn *TruncatedModesWarning
	if !As(captured[0], &truncWarn) {
		t.Error("first warning should be *TruncatedModesWarning")
	}
}

func TestWrapAndIs(t *testing.T) {
	baseErr := ErrNotImplemented

	wrapped := Wrap(baseErr, "in ComplexEOF.Transform")

	if !Is(wrapped, ErrNotImplemented) {
		t.Error("Expected Is(wrapped, ErrNotImplemented) to be true")
	}

	if !strings.Contains(wrapped.Error(), "in ComplexEOF.Transform") {
		t.Error("Expected wrapped error to contain wrapping message")
	}
}

func TestWrapf(t *testing.T) {
	baseErr := ErrEmptyData

	wrapped := Wrapf(baseErr, "in %s: expected %d, got %d", "Fit", 10, 0)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}

	expectedMsg := "in Fit: expected 10, got 0"
	if !strings.Contains(wrapped.Error(), expectedMsg) {
		t.Errorf("Expected wrapped error to contain %q", expectedMsg)
	}
}

func TestErrorChaining(t *testing.T) {
	err1 := fmt.Errorf("base error")
	err2 := Wrap(err1, "wrapped once")
	err3 := NewModelError("Fit", "failed", err2)

	if !strings.Contains(err3.Error(), "base error") {
		t.Error("Expected error chain to contain base error")
	}

	formatted := fmt.Sprintf("%+v", err3)
	if !strings.Contains(formatted, "errors_test.go") {
		t.Error("Expected detailed error to contain stack trace")
	}
}
