package pbcorr

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/pkg/miriad"
	"github.com/youta-t/flarc"
)

const ARG_IMAGE = "IMAGE"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Apply the primary beam correction to images.",
		struct{}{},
		flarc.Args{
			{
				Name: ARG_IMAGE, Required: true, Repeatable: true,
				Help: "Paths to FITS images.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Apply the primary beam correction to images with miriad linmos.

The bandwidth is taken from CDELT3 of each image.
Corrected images are written next to their source, as "<image>.pbcorr.fits", and their paths are printed.
`),
	)
}

func Task(
	ctx context.Context,
	l *log.Logger,
	tools common.Tools,
	_ common.CommonFlags,
	cl flarc.Commandline[struct{}],
	_ []any,
) error {
	for _, image := range cl.Args()[ARG_IMAGE] {
		abs, err := filepath.Abs(image)
		if err != nil {
			return err
		}
		out, err := miriad.PBCorrect(ctx, tools.Host(filepath.Dir(abs), l), abs, l)
		if err != nil {
			return err
		}
		fmt.Fprintln(cl.Stdout(), out)
	}
	return nil
}
