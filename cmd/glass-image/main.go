package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/cleanmask"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	subconfig "github.com/glass-survey/glass-image/cmd/glass-image/subcommands/config"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/convert"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/image"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/noise"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/pbcorr"
	subpipeline "github.com/glass-survey/glass-image/cmd/glass-image/subcommands/pipeline"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/pull"
	subver "github.com/glass-survey/glass-image/cmd/glass-image/subcommands/version"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/weights"
	"github.com/glass-survey/glass-image/pkg/logger"
	"github.com/glass-survey/glass-image/pkg/utils/try"
	"github.com/youta-t/flarc"
)

func main() {
	name := path.Base(os.Args[0])
	logger := logger.By(
		logger.Default(),
		logger.WithPrefix(fmt.Sprintf("[%s] ", name)),
		logger.WithTimestamp(),
	)

	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, os.Kill,
	)
	defer cancel()

	img := try.To(image.New()).OrFatal(logger)
	pipeline := try.To(subpipeline.New()).OrFatal(logger)
	mask := try.To(cleanmask.New()).OrFatal(logger)
	conv := try.To(convert.New()).OrFatal(logger)
	pbc := try.To(pbcorr.New()).OrFatal(logger)
	wgt := try.To(weights.New()).OrFatal(logger)
	nse := try.To(noise.New()).OrFatal(logger)
	pl := try.To(pull.New()).OrFatal(logger)
	config := try.To(subconfig.New()).OrFatal(logger)
	version := try.To(subver.New()).OrFatal(logger)

	glass := try.To(
		flarc.NewCommandGroup(
			"Self-calibration and imaging of radio interferometric datasets",
			common.Flags(),
			flarc.WithSubcommand("image", img),
			flarc.WithSubcommand("pipeline", pipeline),
			flarc.WithSubcommand("clean-mask", mask),
			flarc.WithSubcommand("convert", conv),
			flarc.WithSubcommand("pbcorr", pbc),
			flarc.WithSubcommand("weights", wgt),
			flarc.WithSubcommand("noise", nse),
			flarc.WithSubcommand("pull", pl),
			flarc.WithSubcommand("config", config),
			flarc.WithSubcommand("version", version),
		),
	).OrFatal(logger)

	os.Exit(flarc.Run(ctx, glass, flarc.WithHelp(true)))
}
