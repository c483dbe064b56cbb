package selfcal

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glass-survey/glass-image/pkg/cleanmask"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/utils/archive"
	"github.com/glass-survey/glass-image/pkg/utils/filewatch"
	"github.com/glass-survey/glass-image/pkg/wsclean"
)

const archiveReportInterval = 10 * time.Second

// image images the dataset of rec, then files its products into the round directory.
func (c *Controller) image(ctx context.Context, l *log.Logger, rec *Round) error {
	p := rec.Pointing
	o := rec.Options.WSClean

	if o.FitsMask {
		mask, err := cleanmask.Find(p)
		if err != nil {
			return err
		}
		l.Printf("using clean mask: %s", mask)
	}

	cmd := wsclean.Build(p, o)
	rec.Command = cmd

	l.Printf("imaging %s", p)
	if err := c.WSClean.Run(ctx, cmd.Args...); err != nil {
		if !gerrors.IsToolFailure(err) {
			return err
		}
		l.Printf("ERROR: imaging: %v", err)
	}

	products := []wsclean.Product{}
	paths := []string{}
	for _, prod := range cmd.Products() {
		path := p.Join(prod.Name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		products = append(products, prod)
		paths = append(paths, path)
	}
	if len(products) == 0 {
		return gerrors.NewPreconditionError("imaging produced no products for stem %s", cmd.Stem)
	}

	if err := filewatch.WaitStable(ctx, c.Imager.Settle, c.Imager.SettleTimeout, paths...); err != nil {
		if !errors.Is(err, filewatch.ErrNotSettled) {
			return err
		}
		l.Printf("WARNING: %v", err)
	}

	dir := p.Join(rec.Options.Dirname())
	if err := os.Mkdir(dir, os.FileMode(0o755)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return gerrors.NewPreconditionError("output directory %s already exists", dir)
		}
		return err
	}
	rec.Dir = dir

	for i, prod := range products {
		src := paths[i]
		if c.Imager.CleanUp && prod.Intermediate() {
			if err := os.Remove(src); err != nil {
				return err
			}
			continue
		}
		if !c.Imager.MoveProducts {
			rec.Products = append(rec.Products, src)
			continue
		}
		dst := filepath.Join(dir, prod.Name)
		if err := os.Rename(src, dst); err != nil {
			return err
		}
		rec.Products = append(rec.Products, dst)
	}
	l.Printf("%d products are filed in %s", len(rec.Products), dir)

	if c.Imager.Archive {
		dest, err := archive.Dir(ctx, dir, archive.Reporting(archiveReportInterval, func(prog archive.Progress) {
			l.Printf(
				"archiving %s: %d / %d bytes (%s)",
				dir, prog.ProgressedSize(), prog.EstimatedTotalSize(), prog.ProgressingFile(),
			)
		}))
		if err != nil {
			return err
		}
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		rec.Archive = dest
		l.Printf("archived: %s", dest)
	}
	return nil
}
