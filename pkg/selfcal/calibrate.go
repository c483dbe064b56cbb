package selfcal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/glass-survey/glass-image/pkg/casa"
	"github.com/glass-survey/glass-image/pkg/domain/pointing"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/options"
)

// calibrate derives and applies solutions on p, and regrids the corrected data into a new dataset.
//
// # Returns
//
// - pointing.Pointing: the new dataset, or p itself when no solutions are derived.
//
// - bool: true if solutions are applied.
//
// - error
func (c *Controller) calibrate(ctx context.Context, l *log.Logger, p pointing.Pointing, sc options.CasaSC) (pointing.Pointing, bool, error) {
	caltable := options.Caltable(sc.Round)
	corrected := p.Derived(caltable + "_corrected")
	out := p.Derived(caltable)

	l.Printf("deriving solutions of %s into %s", p, caltable)
	if err := c.casa(ctx, l, casa.Gaincal(p.MS, caltable, sc)); err != nil {
		return p, false, err
	}
	if _, err := os.Stat(p.Join(caltable)); errors.Is(err, os.ErrNotExist) {
		l.Printf("WARNING: %s is not produced. %s is carried forward without calibration.", caltable, p)
		return p, false, nil
	} else if err != nil {
		return p, false, err
	}

	for _, t := range []casa.Task{
		casa.Applycal(p.MS, caltable),
		casa.Split(p.MS, corrected.MS),
		casa.Mstransform(corrected.MS, out.MS, sc.NSPW),
	} {
		if err := c.casa(ctx, l, t); err != nil {
			return p, false, err
		}
	}

	if err := out.Exists(); err != nil {
		l.Printf("calibration intermediates are kept: %s, %s", caltable, corrected.MS)
		return p, false, fmt.Errorf("calibrated dataset is not produced: %w", err)
	}
	l.Printf("created %s", out)

	if c.Imager.CleanUp {
		for _, path := range []string{corrected.Path(), p.Join(caltable)} {
			if err := os.RemoveAll(path); err != nil {
				l.Printf("cannot remove %s: %v", path, err)
			}
		}
	}
	return out, true, nil
}

// casa runs a task. Failures of the task are logged and not returned.
func (c *Controller) casa(ctx context.Context, l *log.Logger, t casa.Task) error {
	l.Printf("casa: %s", t)
	err := c.CASA.Run(ctx, t.Args()...)
	if err != nil && gerrors.IsToolFailure(err) {
		l.Printf("ERROR: %s: %v", t.Name, err)
		return nil
	}
	return err
}
