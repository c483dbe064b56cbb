// Package cleanmask extracts clean masks of pointings from a mask of a larger mosaic.
//
// A mask made on a deep co-add is more robust against artefacts than masks of single pointings.
// The extract is supplied to the imager when fits-mask mode is enabled.
package cleanmask

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/glass-survey/glass-image/pkg/domain/pointing"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/fitsimage"
	"github.com/glass-survey/glass-image/pkg/logger"
	"github.com/glass-survey/glass-image/pkg/options"
	"github.com/glass-survey/glass-image/pkg/sandbox"
	"github.com/glass-survey/glass-image/pkg/wsclean"
)

// ErrNotFound means the clean mask of the pointing has not been created.
//
// It is also ErrPrecondition.
var ErrNotFound = fmt.Errorf("%w: clean mask not found", gerrors.ErrPrecondition)

// Path returns the path where the clean mask of p is placed.
func Path(p pointing.Pointing) string {
	return p.Join(wsclean.CleanMaskName(p.Field))
}

// Find returns the path to the clean mask of p.
//
// # Returns
//
// - string: path to the clean mask.
//
// - error: ErrNotFound (wrapped) if it does not exist.
func Find(p pointing.Pointing) (string, error) {
	path := Path(p)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", err
	}
	return path, nil
}

// Create extracts the clean mask of p from the mosaic mask.
//
// The pixel grid of the mask is taken from a dirty image made by wsclean.HeaderCommand with o,
// so o should be representative of the imaging options the mask is used with.
// Products of the header imaging are removed afterwards.
//
// # Args
//
// - ctx: context.
//
// - imager: runner of wsclean. Its working directory should be the working directory of p.
//
// - p: pointing to extract the mask for.
//
// - o: imaging options.
//
// - mosaic: path to the mask of the mosaic. It should be a FITS image with a celestial WCS.
//
// - l: logger.
//
// # Returns
//
// - string: path to the clean mask. Existing one is overwritten.
//
// - error
func Create(ctx context.Context, imager sandbox.Runner, p pointing.Pointing, o options.WSClean, mosaic string, l *log.Logger) (string, error) {
	if l == nil {
		l = logger.Null()
	}
	if err := p.Exists(); err != nil {
		return "", err
	}

	l.Printf("reading mosaic mask: %s", mosaic)
	mask, err := fitsimage.Read(mosaic)
	if err != nil {
		return "", fmt.Errorf("cannot open mosaic mask: %w", err)
	}

	cmd := wsclean.HeaderCommand(p, o)
	defer func() {
		for _, prod := range cmd.Products() {
			if err := os.Remove(p.Join(prod.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
				l.Printf("cannot remove %s: %v", prod.Name, err)
			}
		}
	}()

	l.Printf("making reference header for %s", p)
	if err := imager.Run(ctx, cmd.Args...); err != nil {
		return "", err
	}

	dirty, ok := wsclean.Find(cmd.Products(), wsclean.Dirty, "")
	if !ok {
		return "", fmt.Errorf("header imaging yields no dirty image")
	}
	header, err := fitsimage.ReadHeader(p.Join(dirty.Name))
	if err != nil {
		return "", err
	}

	l.Printf("extracting %dx%d pixels", o.Size, o.Size)
	cutout, err := fitsimage.Cutout(ctx, mask, header, o.Size, o.Size)
	if err != nil {
		return "", err
	}

	out := Path(p)
	if err := fitsimage.Write(out, cutout); err != nil {
		return "", err
	}
	l.Printf("clean mask is written: %s", out)
	return out, nil
}
