package models

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/climakit/eofkit/pkg/errors"
	"github.com/climakit/eofkit/pkg/log"
	"github.com/climakit/eofkit/rotation"
)

// Padding methods for the analytic-signal models.
const (
	// PaddingNone disables edge padding.
	PaddingNone = "none"

	// PaddingExp extends each series with exponentially decaying edge
	// anomalies around a linear trend before the Hilbert transform.
	PaddingExp = "exp"
)

// Rotation methods.
const (
	// RotationNone keeps the raw singular vectors.
	RotationNone = "none"

	// RotationVarimax applies an orthogonal (unitary for complex
	// solutions) varimax rotation.
	RotationVarimax = "varimax"

	// RotationPromax applies an oblique promax rotation. Real
	// solutions only.
	RotationPromax = "promax"
)

// config holds the hyperparameters shared by all models. Individual
// models validate the subset that applies to them.
type config struct {
	nModes          int
	center          bool
	scale           bool
	padding         string
	decayFactor     float64
	padFactor       float64
	rotation        string
	nRotated        int
	power           int
	maxIter         int
	rtol            float64
	signConvention  bool
	squaredLoadings bool
	logger          log.Logger
}

func defaultConfig() config {
	return config{
		nModes:         10,
		center:         true,
		scale:          false,
		padding:        PaddingNone,
		decayFactor:    0.2,
		padFactor:      0.5,
		rotation:       RotationNone,
		nRotated:       0,
		power:          1,
		maxIter:        rotation.DefaultMaxIter,
		rtol:           rotation.DefaultRTol,
		signConvention: true,
		logger:         log.WrapZerolog(zerolog.Nop()),
	}
}

// Option configures a model at construction time.
type Option func(*config)

// WithNModes sets the number of modes to retain. Fewer are kept when
// the numerical rank of the data is lower, with an advisory warning.
func WithNModes(n int) Option {
	return func(c *config) { c.nModes = n }
}

// WithCentering toggles per-feature mean removal. Enabled by default.
func WithCentering(center bool) Option {
	return func(c *config) { c.center = center }
}

// WithScaling toggles per-feature unit-variance scaling. Disabled by
// default.
func WithScaling(scale bool) Option {
	return func(c *config) { c.scale = scale }
}

// WithPadding selects the edge padding method applied before the
// Hilbert transform. Only the analytic-signal models accept a method
// other than PaddingNone.
func WithPadding(method string) Option {
	return func(c *config) { c.padding = method }
}

// WithDecayFactor sets the e-folding scale of the exponential padding
// as a fraction of the series length.
func WithDecayFactor(f float64) Option {
	return func(c *config) { c.decayFactor = f }
}

// WithPadFactor sets the pad width per end as a fraction of the series
// length. Must lie in (0, 1).
func WithPadFactor(f float64) Option {
	return func(c *config) { c.padFactor = f }
}

// WithRotation selects the rotation method applied after the
// decomposition.
func WithRotation(method string) Option {
	return func(c *config) { c.rotation = method }
}

// WithNRotated limits the rotation to the first n modes; the rest pass
// through unchanged. Zero rotates all retained modes.
func WithNRotated(n int) Option {
	return func(c *config) { c.nRotated = n }
}

// WithRotationPower sets the promax power. Power 1 reduces promax to
// varimax.
func WithRotationPower(power int) Option {
	return func(c *config) { c.power = power }
}

// WithRotationMaxIter caps the rotation criterion iterations.
func WithRotationMaxIter(n int) Option {
	return func(c *config) { c.maxIter = n }
}

// WithRotationTolerance sets the relative criterion tolerance that
// stops the rotation iteration.
func WithRotationTolerance(rtol float64) Option {
	return func(c *config) { c.rtol = rtol }
}

// WithSignConvention toggles the deterministic mode orientation: each
// mode is flipped (rotated by a unit phase for complex solutions) so
// its largest-modulus loading comes out real and positive. Enabled by
// default.
func WithSignConvention(on bool) Option {
	return func(c *config) { c.signConvention = on }
}

// WithSquaredLoadings makes the coupled models scale the singular
// vectors by sigma instead of sqrt(sigma) when building the rotation
// loadings, emphasizing the leading modes.
func WithSquaredLoadings(on bool) Option {
	return func(c *config) { c.squaredLoadings = on }
}

// WithLogger installs a structured logger. The default discards
// everything.
func WithLogger(l log.Logger) Option {
	return func(c *config) { c.logger = l }
}

func newConfig(opts ...Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// validate checks the hyperparameters. isComplex reports whether the
// model runs the analytic-signal pipeline, which is the only place
// padding applies and the only place promax does not.
func (c config) validate(isComplex bool) error {
	if c.nModes < 1 {
		return errors.NewValidationError("n_modes", "must be at least 1", c.nModes)
	}

	switch c.padding {
	case PaddingNone:
	case PaddingExp:
		if !isComplex {
			return errors.NewValidationError("padding", "only analytic-signal models pad", c.padding)
		}
		if math.IsNaN(c.decayFactor) || c.decayFactor <= 0 {
			return errors.NewValidationError("decay_factor", "must be positive", c.decayFactor)
		}
		if math.IsNaN(c.padFactor) || c.padFactor <= 0 || c.padFactor >= 1 {
			return errors.NewValidationError("pad_factor", "must lie in (0, 1)", c.padFactor)
		}
	default:
		return errors.NewValidationError("padding", `must be "none" or "exp"`, c.padding)
	}

	switch c.rotation {
	case RotationNone:
	case RotationVarimax:
	case RotationPromax:
		if isComplex {
			return errors.NewValidationError("rotation", "complex solutions rotate with varimax only", c.rotation)
		}
		if c.power < 1 {
			return errors.NewValidationError("power", "must be at least 1", c.power)
		}
	default:
		return errors.NewValidationError("rotation", `must be "none", "varimax" or "promax"`, c.rotation)
	}

	if c.rotation != RotationNone {
		if c.nRotated < 0 {
			return errors.NewValidationError("n_rotated", "must be non-negative", c.nRotated)
		}
		if c.nRotated == 1 {
			return errors.NewValidationError("n_rotated", "rotating a single mode is an identity", c.nRotated)
		}
		if c.maxIter < 1 {
			return errors.NewValidationError("max_iter", "must be at least 1", c.maxIter)
		}
		if math.IsNaN(c.rtol) || c.rtol <= 0 {
			return errors.NewValidationError("rtol", "must be positive", c.rtol)
		}
	}

	return nil
}

// resolveNRot maps the configured n_rotated onto the k retained modes.
// Zero means all; anything that leaves fewer than two modes to rotate
// disables the rotation.
func (c config) resolveNRot(k int) int {
	if c.rotation == RotationNone {
		return 0
	}
	nr := c.nRotated
	if nr == 0 || nr > k {
		nr = k
	}
	if nr < 2 {
		return 0
	}
	return nr
}

func (c config) rotationOptions() []rotation.Option {
	return []rotation.Option{
		rotation.WithMaxIter(c.maxIter),
		rotation.WithTolerance(c.rtol),
	}
}

// padWidthFor returns the per-end pad width for a series of length n,
// zero when padding is disabled.
func (c config) padWidthFor(n int) int {
	if c.padding != PaddingExp {
		return 0
	}
	return int(c.padFactor * float64(n))
}
