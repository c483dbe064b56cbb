package miriad

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/glass-survey/glass-image/pkg/fitsimage"
	"github.com/glass-survey/glass-image/pkg/sandbox"
)

// WeightMap derives an absolute weight map of a primary-beam corrected image.
//
// The sensitivity map is made by linmos (options=sensitivity),
// then each pixel s becomes s^-2 / rms^2.
// Miriad intermediates and the sensitivity map are removed.
//
// # Args
//
// - mir: runner of miriad tasks.
//
// - image: primary-beam corrected FITS image.
//
// - rms: the measured noise level of image, in the unit of its pixels. It should be positive.
//
// # Returns
//
// - string: path to the weight map, "<image without .fits>.weight.fits".
//
// - error
func WeightMap(ctx context.Context, mir sandbox.Runner, image string, rms float64, l *log.Logger) (string, error) {
	l = nonnilLogger(l)
	if !(0 < rms) || math.IsInf(rms, 0) {
		return "", fmt.Errorf("rms should be positive and finite: %g", rms)
	}
	if err := requireFile(image); err != nil {
		return "", err
	}
	bw, err := bandwidth(image)
	if err != nil {
		return "", err
	}

	base := stem(image)
	imported := base + ".mir"
	sens := base + ".sens"
	sensFITS := base + ".sens.fits"
	out := base + ".weight.fits"
	defer removeAll(l, imported, sens, sensFITS)

	if err := run(ctx, mir, imported, "fits", kv("in", image), kv("out", imported), "op=xyin"); err != nil {
		return "", err
	}
	if err := run(
		ctx, mir, sens,
		"linmos", kv("in", imported), kv("out", sens), kv("bw", ftoa(bw)), "options=sensitivity",
	); err != nil {
		return "", err
	}
	if err := run(ctx, mir, sensFITS, "fits", kv("in", sens), kv("out", sensFITS), "op=xyout"); err != nil {
		return "", err
	}

	sensitivity, err := fitsimage.Read(sensFITS)
	if err != nil {
		return "", err
	}
	weights, err := fitsimage.InverseVariance(sensitivity, rms)
	if err != nil {
		return "", err
	}
	if err := fitsimage.Write(out, weights); err != nil {
		return "", err
	}
	l.Printf("created %s (rms = %g)", out, rms)
	return out, nil
}
