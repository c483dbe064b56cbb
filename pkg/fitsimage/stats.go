package fitsimage

import (
	"math"
	"slices"

	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MADToSigma scales a median absolute deviation to the standard deviation of a Gaussian.
const MADToSigma = 1.4826

// Summary is statistics over pixels of an image.
//
// Blank (NaN) pixels are excluded from all statistics but Blank.
type Summary struct {
	Count int
	Blank int

	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Median float64

	// MAD is the median absolute deviation from Median.
	MAD float64

	// Sigma is MAD * MADToSigma.
	Sigma float64
}

// Summarize computes statistics over whole pixels of img. No clipping is done.
//
// It fails with ErrPrecondition if img has no finite pixels.
func Summarize(img *Image) (Summary, error) {
	values := Finite(img.Data)
	if len(values) == 0 {
		return Summary{}, gerrors.NewPreconditionError("image has no finite pixels")
	}

	mean, std := stat.MeanStdDev(values, nil)
	median, mad := MAD(values)
	return Summary{
		Count:  len(values),
		Blank:  len(img.Data) - len(values),
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
		Median: median,
		MAD:    mad,
		Sigma:  mad * MADToSigma,
	}, nil
}

// Noise estimates the noise level of the FITS image by its MAD, scaled to a Gaussian sigma.
func Noise(path string) (float64, error) {
	img, err := Read(path)
	if err != nil {
		return 0, err
	}
	s, err := Summarize(img)
	if err != nil {
		return 0, err
	}
	return s.Sigma, nil
}

// Finite returns a new slice of finite values in data.
func Finite(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// MAD returns the median of values and the median absolute deviation from it.
//
// The median of even number of values is the mean of the middle two.
// values is not modified.
func MAD(values []float64) (median float64, mad float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	median = sortedMedian(sorted)

	for i, v := range sorted {
		sorted[i] = math.Abs(v - median)
	}
	slices.Sort(sorted)
	return median, sortedMedian(sorted)
}

func sortedMedian(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
