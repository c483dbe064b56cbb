package cleanmask

import (
	"context"
	"fmt"
	"log"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/pkg/cleanmask"
	"github.com/glass-survey/glass-image/pkg/configs/imager"
	"github.com/glass-survey/glass-image/pkg/domain/pointing"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Round int `flag:"round" help:"Imaging options of this round determine the pixel grid of the mask."`
}

const (
	ARG_DATASET = "DATASET"
	ARG_MOSAIC  = "MOSAIC"
)

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Extract the clean mask of a dataset from a mask of a mosaic.",
		Flag{},
		flarc.Args{
			{
				Name: ARG_DATASET, Required: true,
				Help: "Path to the dataset (measurement set).",
			},
			{
				Name: ARG_MOSAIC, Required: true,
				Help: "Path to the mask of the mosaic, a FITS image.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Extract the clean mask of a dataset from a mask of a mosaic.

The mask is regridded onto the pixel grid of the dataset, which is taken from a dirty image
made by wsclean with the options of the round (--round).
It is written into the working directory as "<field>_clean_mask.fits", and used when wsclean.fitsmask is enabled.
`),
	)
}

func Task(
	ctx context.Context,
	l *log.Logger,
	tools common.Tools,
	cf common.CommonFlags,
	cl flarc.Commandline[Flag],
	_ []any,
) error {
	flags := cl.Flags()
	if flags.Round < 0 {
		return fmt.Errorf("%w: --round should not be negative: %d", flarc.ErrUsage, flags.Round)
	}
	args := cl.Args()

	p, err := pointing.FromMS(args[ARG_DATASET][0], cf.Workdir)
	if err != nil {
		return err
	}
	cfg, err := imager.LoadOrDefault(cf.Config)
	if err != nil {
		return err
	}
	opts, err := cfg.Resolve(flags.Round)
	if err != nil {
		return err
	}

	ws, err := tools.WSClean(ctx, p.Workdir, l)
	if err != nil {
		return err
	}
	out, err := cleanmask.Create(ctx, ws, p, opts.WSClean, args[ARG_MOSAIC][0], l)
	if err != nil {
		return err
	}
	fmt.Fprintln(cl.Stdout(), out)
	return nil
}
