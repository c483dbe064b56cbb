package image

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/pkg/configs/imager"
	"github.com/glass-survey/glass-image/pkg/domain/pointing"
	"github.com/glass-survey/glass-image/pkg/logger"
	"github.com/glass-survey/glass-image/pkg/selfcal"
	"github.com/youta-t/flarc"
	"gopkg.in/yaml.v3"
)

type Flag struct {
	Rounds  int  `flag:"rounds" alias:"n" help:"Number of rounds, including the round without self-calibration. default: glass.rounds of the configuration"`
	Archive bool `flag:"archive" help:"Archive each round directory into tar.gz."`
}

const ARG_DATASET = "DATASET"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Image a dataset with rounds of self-calibration.",
		Flag{},
		flarc.Args{
			{
				Name: ARG_DATASET, Required: true,
				Help: "Path to the dataset (measurement set) to be imaged.",
			},
		},
		common.NewTask(Task),
		flarc.WithDescription(`
Image a dataset with rounds of self-calibration.

Round 0 images the dataset as is, and products are moved into "no_selfcal".
Each following round N derives gain solutions from the model of the last round,
applies them into a new dataset and images it, into "round_N".

Products are written in the working directory (--workdir, or the directory of the dataset).
It fails before running any tool when some round directory exists already.
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
	if flags.Rounds < 0 {
		return fmt.Errorf("%w: --rounds should not be negative: %d", flarc.ErrUsage, flags.Rounds)
	}

	p, err := pointing.FromMS(cl.Args()[ARG_DATASET][0], cf.Workdir)
	if err != nil {
		return err
	}

	cfg, err := LoadConfig(cf, flags)
	if err != nil {
		return err
	}

	res, err := Run(ctx, l, tools, cfg, p, cf.Verbose)
	if werr := Report(cl.Stdout(), res); werr != nil && err == nil {
		err = werr
	}
	return err
}

// LoadConfig loads the imaging configuration specified by flags.
func LoadConfig(cf common.CommonFlags, flags Flag) (*imager.Config, error) {
	cfg, err := imager.LoadOrDefault(cf.Config)
	if err != nil {
		return nil, err
	}
	if 0 < flags.Rounds {
		cfg.Glass.Rounds = flags.Rounds
	}
	if flags.Archive {
		cfg.Glass.Archive = true
	}
	return cfg, nil
}

// Run runs self-calibration rounds on p.
//
// Tools work in the working directory of p.
func Run(ctx context.Context, l *log.Logger, tools common.Tools, cfg *imager.Config, p pointing.Pointing, verbose bool) (selfcal.Result, error) {
	debug := logger.Debug(l, verbose)

	ws, err := tools.WSClean(ctx, p.Workdir, l)
	if err != nil {
		return selfcal.Result{}, err
	}
	casa, err := tools.CASA(ctx, p.Workdir, l)
	if err != nil {
		return selfcal.Result{}, err
	}

	debug.Printf("dataset: %s, rounds: %d", p, cfg.Glass.Rounds)
	c := &selfcal.Controller{
		WSClean: ws,
		CASA:    casa,
		Options: cfg,
		Imager:  cfg.Glass,
		Logger:  l,
	}
	return c.Run(ctx, p)
}

type roundReport struct {
	Round      int    `yaml:"round"`
	Dataset    string `yaml:"dataset"`
	Calibrated bool   `yaml:"calibrated"`
	Directory  string `yaml:"directory,omitempty"`
	Archive    string `yaml:"archive,omitempty"`
	Products   int    `yaml:"products"`
}

type report struct {
	Rounds []roundReport `yaml:"rounds"`
	Final  string        `yaml:"final,omitempty"`
}

// Report writes a YAML summary of finished rounds into w.
func Report(w io.Writer, res selfcal.Result) error {
	r := report{Rounds: []roundReport{}}
	for _, rd := range res.Rounds {
		rr := roundReport{
			Round:      rd.Options.Index,
			Dataset:    rd.Pointing.Path(),
			Calibrated: rd.Calibrated,
			Products:   len(rd.Products),
		}
		if rd.Archive != "" {
			rr.Archive = rd.Archive
		} else {
			rr.Directory = rd.Dir
		}
		r.Rounds = append(r.Rounds, rr)
	}
	if 0 < len(res.Rounds) {
		r.Final = res.Final.Path()
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}
