package fitsimage

import (
	"fmt"
	"math"
)

// InverseVariance derives an absolute weight map from a sensitivity map.
//
// Each pixel is s^-2 / rms^2, where s is the sensitivity pixel.
// Non-finite results (from zero or blank sensitivity) are 0.
func InverseVariance(sensitivity *Image, rms float64) (*Image, error) {
	if !(0 < rms) || math.IsInf(rms, 0) {
		return nil, fmt.Errorf("rms should be positive and finite: %g", rms)
	}

	out := &Image{
		Header:     sensitivity.Header,
		Width:      sensitivity.Width,
		Height:     sensitivity.Height,
		Data:       make([]float64, len(sensitivity.Data)),
		degenerate: sensitivity.degenerate,
	}
	rms2 := rms * rms
	for i, s := range sensitivity.Data {
		w := 1 / (s * s) / rms2
		if math.IsNaN(w) || math.IsInf(w, 0) {
			w = 0
		}
		out.Data[i] = w
	}
	return out, nil
}
