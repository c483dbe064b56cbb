package show

import (
	"context"
	"fmt"
	"log"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/pkg/configs/imager"
	"github.com/glass-survey/glass-image/pkg/options"
	"github.com/youta-t/flarc"
	"gopkg.in/yaml.v3"
)

type Flag struct {
	Rounds int `flag:"rounds" alias:"n" help:"Number of rounds to be shown. default: glass.rounds of the configuration"`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Show options of each round.",
		Flag{},
		flarc.Args{},
		common.NewTaskWithCommonFlag(Task),
		flarc.WithDescription(`
Show options of each round resolved from the imaging configuration (--config), in YAML.

Options of a round are the defaults of the configuration, overridden by its "sc" entry for the round.
Round 0 has no calibration options.
`),
	)
}

type round struct {
	Round   int             `yaml:"round"`
	WSClean options.WSClean `yaml:"wsclean"`
	CasaSC  *options.CasaSC `yaml:"casasc,omitempty"`
}

type resolved struct {
	Glass  options.Imager `yaml:"glass"`
	Rounds []round        `yaml:"rounds"`
}

func Task(
	_ context.Context,
	_ *log.Logger,
	cf common.CommonFlags,
	cl flarc.Commandline[Flag],
	_ []any,
) error {
	flags := cl.Flags()
	if flags.Rounds < 0 {
		return fmt.Errorf("%w: --rounds should not be negative: %d", flarc.ErrUsage, flags.Rounds)
	}

	cfg, err := imager.LoadOrDefault(cf.Config)
	if err != nil {
		return err
	}
	if 0 < flags.Rounds {
		cfg.Glass.Rounds = flags.Rounds
	}

	out := resolved{Glass: cfg.Glass, Rounds: []round{}}
	for i := range cfg.Glass.Rounds {
		r, err := cfg.Resolve(i)
		if err != nil {
			return err
		}
		out.Rounds = append(out.Rounds, round{Round: r.Index, WSClean: r.WSClean, CasaSC: r.CasaSC})
	}

	enc := yaml.NewEncoder(cl.Stdout())
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
