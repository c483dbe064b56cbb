package pull

import (
	"context"
	"fmt"
	"log"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Prepare singularity images of wsclean and casa.",
		struct{}{},
		flarc.Args{},
		common.NewTask(Task),
		flarc.WithDescription(`
Prepare singularity images of wsclean and casa, given by --wsclean-image and --casa-image.

Images given by reference are pulled and built into --images-dir, unless they are there already.
Paths to the images are printed.
`),
	)
}

func Task(
	ctx context.Context,
	l *log.Logger,
	tools common.Tools,
	cf common.CommonFlags,
	cl flarc.Commandline[struct{}],
	_ []any,
) error {
	for _, img := range []struct{ tool, image string }{
		{tool: "wsclean", image: cf.WSCleanImage},
		{tool: "casa", image: cf.CASAImage},
	} {
		sif, err := tools.Image(ctx, img.image, l)
		if err != nil {
			return fmt.Errorf("%s: %w", img.tool, err)
		}
		fmt.Fprintf(cl.Stdout(), "%s: %s\n", img.tool, sif)
	}
	return nil
}
