package models

import "gonum.org/v1/gonum/mat"

// matGob is the raw-slice form a dense matrix takes inside a gob
// snapshot. Zero rows mean "absent" and decode back to nil.
type matGob struct {
	Rows, Cols int
	Data       []float64
}

func toMatGob(m *mat.Dense) matGob {
	if m == nil {
		return matGob{}
	}
	r, c := m.Dims()
	data := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data[i*c+j] = m.At(i, j)
		}
	}
	return matGob{Rows: r, Cols: c, Data: data}
}

func fromMatGob(g matGob) *mat.Dense {
	if g.Rows == 0 || g.Cols == 0 {
		return nil
	}
	return mat.NewDense(g.Rows, g.Cols, g.Data)
}

// cmatGob mirrors matGob for complex matrices; gob handles
// []complex128 natively.
type cmatGob struct {
	Rows, Cols int
	Data       []complex128
}

func toCMatGob(m *mat.CDense) cmatGob {
	if m == nil {
		return cmatGob{}
	}
	r, c := m.Dims()
	data := make([]complex128, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data[i*c+j] = m.At(i, j)
		}
	}
	return cmatGob{Rows: r, Cols: c, Data: data}
}

func fromCMatGob(g cmatGob) *mat.CDense {
	if g.Rows == 0 || g.Cols == 0 {
		return nil
	}
	return mat.NewCDense(g.Rows, g.Cols, g.Data)
}

// configGob is the exported mirror of config for persistence. The
// logger is not part of the snapshot; loaded models log nowhere until
// given a logger again.
type configGob struct {
	NModes          int
	Center          bool
	Scale           bool
	Padding         string
	DecayFactor     float64
	PadFactor       float64
	Rotation        string
	NRotated        int
	Power           int
	MaxIter         int
	RTol            float64
	SignConvention  bool
	SquaredLoadings bool
}

func (c config) snapshot() configGob {
	return configGob{
		NModes:          c.nModes,
		Center:          c.center,
		Scale:           c.scale,
		Padding:         c.padding,
		DecayFactor:     c.decayFactor,
		PadFactor:       c.padFactor,
		Rotation:        c.rotation,
		NRotated:        c.nRotated,
		Power:           c.power,
		MaxIter:         c.maxIter,
		RTol:            c.rtol,
		SignConvention:  c.signConvention,
		SquaredLoadings: c.squaredLoadings,
	}
}

func (g configGob) restore() config {
	cfg := defaultConfig()
	cfg.nModes = g.NModes
	cfg.center = g.Center
	cfg.scale = g.Scale
	cfg.padding = g.Padding
	cfg.decayFactor = g.DecayFactor
	cfg.padFactor = g.PadFactor
	cfg.rotation = g.Rotation
	cfg.nRotated = g.NRotated
	cfg.power = g.Power
	cfg.maxIter = g.MaxIter
	cfg.rtol = g.RTol
	cfg.signConvention = g.SignConvention
	cfg.squaredLoadings = g.SquaredLoadings
	return cfg
}
