package verify

import (
	"context"
	"fmt"
	"log"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/pkg/configs/cluster"
	"github.com/glass-survey/glass-image/pkg/configs/imager"
	kos "github.com/glass-survey/glass-image/pkg/utils/os"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Cluster string `flag:"cluster" help:"Path to the cluster configuration file to be verified also."`
}

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Verify configuration files.",
		Flag{Cluster: kos.GetEnvOr(common.EnvCluster, "")},
		flarc.Args{},
		common.NewTaskWithCommonFlag(Task),
		flarc.WithDescription(`
Verify the imaging configuration (--config) and the cluster configuration (--cluster).

Options of every round are resolved, so overrides in "sc" are verified as well.
`),
	)
}

func Task(
	_ context.Context,
	l *log.Logger,
	cf common.CommonFlags,
	cl flarc.Commandline[Flag],
	_ []any,
) error {
	cfg, err := imager.LoadOrDefault(cf.Config)
	if err != nil {
		return err
	}
	for i := range cfg.Glass.Rounds {
		if _, err := cfg.Resolve(i); err != nil {
			return err
		}
	}
	if cf.Config != "" {
		fmt.Fprintf(cl.Stdout(), "%s: ok (%d rounds)\n", cf.Config, cfg.Glass.Rounds)
	}

	if path := cl.Flags().Cluster; path != "" {
		cc, err := cluster.Load(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cl.Stdout(), "%s: ok (backend: %s)\n", path, cc.Backend())
	}
	l.Print("configurations are valid")
	return nil
}
