package preprocessing

import "math"

// CosLatWeights returns the standard area weighting for latitude-gridded
// fields: the square root of the cosine of latitude in degrees. The
// cosine is clamped at zero first, so polar rows on rounded grids cannot
// produce negative or NaN weights.
func CosLatWeights(latDeg []float64) []float64 {
	w := make([]float64, len(latDeg))
	for i, lat := range latDeg {
		c := math.Cos(lat * math.Pi / 180)
		if c < 0 {
			c = 0
		}
		w[i] = math.Sqrt(c)
	}
	return w
}

// CosLatWeightsGrid expands CosLatWeights over a lat x lon grid flattened
// row-major with latitude as the outer axis, producing one weight per
// grid cell in the order Stacker.Stack expects.
func CosLatWeightsGrid(latDeg []float64, nLon int) []float64 {
	if nLon < 1 {
		nLon = 1
	}
	byLat := CosLatWeights(latDeg)
	w := make([]float64, len(latDeg)*nLon)
	for i, wl := range byLat {
		for j := 0; j < nLon; j++ {
			w[i*nLon+j] = wl
		}
	}
	return w
}
