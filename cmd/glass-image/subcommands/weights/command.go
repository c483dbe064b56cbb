package weights

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strconv"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/pkg/fitsimage"
	"github.com/glass-survey/glass-image/pkg/miriad"
	"github.com/youta-t/flarc"
)

type Flag struct {
	RMS string `flag:"rms" metavar:"NOISE" help:"Noise level of the image, in the unit of its pixels. default: estimated from the image by MAD"`
}

const ARG_IMAGE = "IMAGE"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Make the weight map of a primary-beam corrected image.",
		Flag{},
		flarc.Args{
			{
				Name: ARG_IMAGE, Required: true,
				Help: "Path to a primary-beam corrected FITS image.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Make the weight map of a primary-beam corrected image.

The sensitivity map is made by miriad linmos, and each pixel s of it becomes 1 / (s * rms)^2.
The weight map is written next to the image, as "<image>.weight.fits", and its path is printed.
`),
	)
}

// ParseRMS parses a positive noise level.
func ParseRMS(s string) (float64, error) {
	rms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: --rms: %w", flarc.ErrUsage, err)
	}
	if !(0 < rms) {
		return 0, fmt.Errorf("%w: --rms should be positive: %s", flarc.ErrUsage, s)
	}
	return rms, nil
}

func Task(
	ctx context.Context,
	l *log.Logger,
	tools common.Tools,
	_ common.CommonFlags,
	cl flarc.Commandline[Flag],
	_ []any,
) error {
	image, err := filepath.Abs(cl.Args()[ARG_IMAGE][0])
	if err != nil {
		return err
	}

	var rms float64
	if s := cl.Flags().RMS; s != "" {
		if rms, err = ParseRMS(s); err != nil {
			return err
		}
	} else {
		if rms, err = fitsimage.Noise(image); err != nil {
			return err
		}
		l.Printf("estimated noise of %s: %g", image, rms)
	}

	out, err := miriad.WeightMap(ctx, tools.Host(filepath.Dir(image), l), image, rms, l)
	if err != nil {
		return err
	}
	fmt.Fprintln(cl.Stdout(), out)
	return nil
}
