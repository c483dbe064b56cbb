package miriad

import (
	"context"
	"log"

	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/fitsimage"
	"github.com/glass-survey/glass-image/pkg/sandbox"
)

// bandwidth returns CDELT3 of the image, in GHz.
func bandwidth(image string) (float64, error) {
	header, err := fitsimage.ReadHeader(image)
	if err != nil {
		return 0, err
	}
	bw, ok := header.Float("CDELT3")
	if !ok {
		return 0, gerrors.NewPreconditionError("%s has no CDELT3", image)
	}
	return bw / 1e9, nil
}

// PBCorrect applies the primary beam correction to a FITS image with linmos.
//
// The bandwidth passed to linmos is CDELT3 of the image.
// Miriad intermediates are removed.
//
// # Returns
//
// - string: path to the corrected image, "<image without .fits>.pbcorr.fits".
//
// - error
func PBCorrect(ctx context.Context, mir sandbox.Runner, image string, l *log.Logger) (string, error) {
	l = nonnilLogger(l)
	if err := requireFile(image); err != nil {
		return "", err
	}
	bw, err := bandwidth(image)
	if err != nil {
		return "", err
	}
	l.Printf("bandwidth of %s is %g GHz", image, bw)

	base := stem(image)
	restor := base + ".restor"
	pbcorr := base + ".pbcorr"
	out := base + ".pbcorr.fits"
	defer removeAll(l, restor, pbcorr)

	if err := run(ctx, mir, restor, "fits", kv("in", image), kv("out", restor), "op=xyin"); err != nil {
		return "", err
	}
	l.Print("image imported, running linmos.")
	if err := run(ctx, mir, pbcorr, "linmos", kv("in", restor), kv("out", pbcorr), kv("bw", ftoa(bw))); err != nil {
		return "", err
	}
	if err := run(ctx, mir, out, "fits", kv("in", pbcorr), kv("out", out), "op=xyout"); err != nil {
		return "", err
	}
	l.Printf("created %s", out)
	return out, nil
}
