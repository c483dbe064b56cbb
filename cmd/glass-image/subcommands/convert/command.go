package convert

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/pkg/miriad"
	"github.com/youta-t/flarc"
)

type Flag struct {
	FieldOut bool   `flag:"field-out" help:"Write outputs into a subdirectory named after the field."`
	Field    string `flag:"field" help:"Name of the field. default: name of the miriad dataset up to its first \".\""`
	CleanUp  bool   `flag:"clean-up" help:"Remove intermediate miriad datasets and UVFITS files."`
}

const ARG_VIS = "MIRIAD_VIS"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Convert miriad visibility datasets into measurement sets.",
		Flag{},
		flarc.Args{
			{
				Name: ARG_VIS, Required: true, Repeatable: true,
				Help: "Paths to miriad visibility datasets.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Convert miriad visibility datasets into measurement sets.

Each dataset is averaged by uvaver, exported as UVFITS by miriad, then imported by casa importuvfits.
Outputs are written in --workdir (default: the current directory), as "<name of the dataset>.ms".
Paths of the measurement sets are printed, one per line.
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
	vis := cl.Args()[ARG_VIS]
	if flags.Field != "" && 1 < len(vis) {
		return fmt.Errorf("%w: --field is for a single dataset", flarc.ErrUsage)
	}

	for _, v := range vis {
		o := miriad.ConvertOptions{
			OutputDir: cf.Workdir,
			FieldOut:  flags.FieldOut,
			FieldName: flags.Field,
			CleanUp:   flags.CleanUp,
		}
		dest, err := filepath.Abs(o.Destination(v))
		if err != nil {
			return err
		}
		src, err := filepath.Abs(v)
		if err != nil {
			return err
		}

		importer, err := tools.CASA(ctx, dest, l)
		if err != nil {
			return err
		}
		ms, err := miriad.Convert(ctx, tools.Host(dest, l), importer, src, o, l)
		if err != nil {
			return err
		}
		fmt.Fprintln(cl.Stdout(), ms)
	}
	return nil
}
