package version

import (
	"context"
	"fmt"
	"log"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/pkg/buildtime"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Print the version of glass-image.",
		struct{}{},
		flarc.Args{},
		common.NewTaskWithCommonFlag(Task),
	)
}

func Task(
	_ context.Context,
	_ *log.Logger,
	_ common.CommonFlags,
	cl flarc.Commandline[struct{}],
	_ []any,
) error {
	_, err := fmt.Fprintf(cl.Stdout(), "glass-image %s\n", buildtime.VersionString())
	return err
}
