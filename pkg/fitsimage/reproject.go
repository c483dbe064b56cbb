package fitsimage

import (
	"context"
	"math"
	"runtime"

	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Reproject resamples src onto the pixel grid of the target header with bilinear interpolation.
//
// # Args
//
// - ctx: context. Resampling stops when it is done.
//
// - src: source image. Its header should have a celestial WCS.
//
// - target: header defining the output grid. It should have a celestial WCS in the same frame.
//
// - width, height: size of the output image.
//
// # Returns
//
// - *Image: image with the target header.
// Pixels which are not covered by src are NaN.
//
// - error: it wraps ErrPrecondition if headers have no usable WCS.
func Reproject(ctx context.Context, src *Image, target Header, width, height int) (*Image, error) {
	srcWCS, err := ParseWCS(src.Header)
	if err != nil {
		return nil, err
	}
	dstWCS, err := ParseWCS(target)
	if err != nil {
		return nil, err
	}
	if !srcWCS.SameFrame(dstWCS) {
		return nil, gerrors.NewPreconditionError(
			"celestial frames differ: %s and %s", srcWCS.Frame, dstWCS.Frame,
		)
	}

	out := New(target, width, height)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for y := range height {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := range width {
				v := math.NaN()
				if lng, lat, ok := dstWCS.PixelToWorld(float64(x+1), float64(y+1)); ok {
					if sx, sy, ok := srcWCS.WorldToPixel(lng, lat); ok {
						v = Bilinear(src, sx-1, sy-1)
					}
				}
				out.Set(x, y, v)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Bilinear interpolates img at (x, y), 0-based.
//
// It returns NaN outside of the image.
func Bilinear(img *Image, x, y float64) float64 {
	const eps = 1e-9
	maxX, maxY := float64(img.Width-1), float64(img.Height-1)
	if math.IsNaN(x) || math.IsNaN(y) || x < -eps || y < -eps || maxX+eps < x || maxY+eps < y {
		return math.NaN()
	}
	x = clamp(x, 0, maxX)
	y = clamp(y, 0, maxY)

	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := min(x0+1, img.Width-1), min(y0+1, img.Height-1)
	fx, fy := x-float64(x0), y-float64(y0)

	return img.At(x0, y0)*(1-fx)*(1-fy) +
		img.At(x1, y0)*fx*(1-fy) +
		img.At(x0, y1)*(1-fx)*fy +
		img.At(x1, y1)*fx*fy
}

// Cutout reprojects the mask onto the grid of the reference header.
//
// Pixels not covered by mask are 0, as masks have no blanks.
func Cutout(ctx context.Context, mask *Image, reference Header, width, height int) (*Image, error) {
	out, err := Reproject(ctx, mask, reference, width, height)
	if err != nil {
		return nil, err
	}
	for i, v := range out.Data {
		if math.IsNaN(v) {
			out.Data[i] = 0
		}
	}
	return out, nil
}
