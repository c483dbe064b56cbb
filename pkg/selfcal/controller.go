// Package selfcal drives rounds of imaging and self-calibration of a dataset.
//
// Round 0 images the input dataset as is.
// Each following round derives gain solutions from the model of the last round,
// applies them, regrids the corrected data into a new dataset and images it.
package selfcal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/glass-survey/glass-image/pkg/domain/pointing"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/logger"
	"github.com/glass-survey/glass-image/pkg/loop"
	"github.com/glass-survey/glass-image/pkg/options"
	"github.com/glass-survey/glass-image/pkg/sandbox"
	"github.com/glass-survey/glass-image/pkg/utils/archive"
	"github.com/glass-survey/glass-image/pkg/wsclean"
)

// Resolver resolves options of rounds.
//
// *imager.Config implements this.
type Resolver interface {
	Resolve(round int) (options.Round, error)
}

// Controller runs rounds on a dataset.
type Controller struct {
	// WSClean runs the imager. Its working directory should be the working directory of datasets.
	WSClean sandbox.Runner

	// CASA runs calibration tasks. Its working directory should be the working directory of datasets.
	CASA sandbox.Runner

	// Options resolves per-round options. When nil, built-in defaults are used.
	Options Resolver

	// Imager is the pipeline-wide settings.
	Imager options.Imager

	Logger *log.Logger
}

// Round is the record of a finished round.
type Round struct {
	Options options.Round

	// Pointing is the dataset imaged in the round.
	Pointing pointing.Pointing

	// Calibrated is true when solutions have been derived and applied in the round.
	//
	// It is false for round 0, and for rounds falling back to the dataset of the last round.
	Calibrated bool

	Command wsclean.Command

	// Dir is the directory of products of the round.
	Dir string

	// Products are paths to imaging products, after relocation.
	Products []string

	// Archive is the path to the archive of Dir, if archived.
	Archive string
}

// Result is the record of a run.
type Result struct {
	Rounds []Round

	// Final is the dataset imaged in the last round.
	Final pointing.Pointing
}

type state struct {
	round    int
	pointing pointing.Pointing
	done     []Round
}

// Run runs all rounds on the dataset p.
//
// Before any tool is invoked, it resolves options of all rounds
// and checks that no output of any round exists.
//
// # Returns
//
// - Result: rounds finished, even when an error is returned.
//
// - error: ErrConfiguration (wrapped) for bad options,
// ErrPrecondition (wrapped) for missing inputs, existing outputs or imaging without products,
// or ctx.Err() on cancellation.
// Failures of the imager and gaincal are logged and do not stop rounds by themselves.
func (c *Controller) Run(ctx context.Context, p pointing.Pointing) (Result, error) {
	l := c.Logger
	if l == nil {
		l = logger.Null()
	}
	n := c.Imager.Rounds
	if n < 1 {
		return Result{}, gerrors.NewConfigurationError("rounds should be positive: %d", n)
	}
	if err := p.Exists(); err != nil {
		return Result{}, err
	}

	rounds := make([]options.Round, 0, n)
	for r := range n {
		ro, err := c.resolve(r)
		if err != nil {
			return Result{}, err
		}
		if err := checkOutputs(p, ro); err != nil {
			return Result{}, err
		}
		rounds = append(rounds, ro)
	}

	opts := []loop.LoopOption{}
	if c.Imager.RoundTimeout > 0 {
		opts = append(opts, loop.WithTimeout(c.Imager.RoundTimeout))
	}
	last, err := loop.Start(
		ctx, state{pointing: p},
		func(ctx context.Context, s state) (state, loop.Next) {
			rl := logger.By(l, logger.Copied(), logger.WithPrefix(fmt.Sprintf("%s[%s] ", l.Prefix(), options.Dirname(s.round))))
			rec, err := c.round(ctx, rl, rounds[s.round], s.pointing)
			if err != nil {
				return s, loop.Break(fmt.Errorf("round %d: %w", s.round, err))
			}
			next := state{
				round:    s.round + 1,
				pointing: rec.Pointing,
				done:     append(s.done, rec),
			}
			if next.round == n {
				return next, loop.Break(nil)
			}
			return next, loop.Continue(0)
		},
		opts...,
	)

	res := Result{Rounds: last.done, Final: last.pointing}
	if err != nil {
		return res, err
	}
	l.Printf("finished %d rounds. final dataset: %s", n, res.Final)
	return res, nil
}

func (c *Controller) resolve(round int) (options.Round, error) {
	if c.Options == nil {
		return options.Defaults(round), nil
	}
	return c.Options.Resolve(round)
}

// checkOutputs fails with ErrPrecondition when anything the round would write already exists:
// the round directory, its archive, and for calibrated rounds the caltable and derived datasets.
func checkOutputs(p pointing.Pointing, ro options.Round) error {
	dir := p.Join(options.Dirname(ro.Index))
	paths := []string{dir, dir + archive.Suffix}
	if sc := ro.CasaSC; sc != nil {
		caltable := options.Caltable(sc.Round)
		paths = append(
			paths,
			p.Join(caltable),
			p.Derived(caltable+"_corrected").Path(),
			p.Derived(caltable).Path(),
		)
	}

	for _, path := range paths {
		_, err := os.Lstat(path)
		switch {
		case err == nil:
			return gerrors.NewPreconditionError("%s already exists", path)
		case errors.Is(err, os.ErrNotExist):
		default:
			return err
		}
	}
	return nil
}

// round calibrates (if needed) and images p.
func (c *Controller) round(ctx context.Context, l *log.Logger, ro options.Round, p pointing.Pointing) (Round, error) {
	if err := checkOutputs(p, ro); err != nil {
		return Round{}, err
	}

	rec := Round{Options: ro, Pointing: p}
	if ro.CasaSC != nil {
		next, calibrated, err := c.calibrate(ctx, l, p, *ro.CasaSC)
		if err != nil {
			return Round{}, err
		}
		rec.Pointing = next
		rec.Calibrated = calibrated
	}

	if err := c.image(ctx, l, &rec); err != nil {
		return Round{}, err
	}
	return rec, nil
}
