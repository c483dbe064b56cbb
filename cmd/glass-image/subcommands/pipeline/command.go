package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strconv"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/image"
	"github.com/glass-survey/glass-image/pkg/configs/cluster"
	"github.com/glass-survey/glass-image/pkg/configs/imager"
	"github.com/glass-survey/glass-image/pkg/domain/pointing"
	"github.com/glass-survey/glass-image/pkg/pipeline"
	kos "github.com/glass-survey/glass-image/pkg/utils/os"
	"github.com/glass-survey/glass-image/pkg/workloads/k8s"
	"github.com/youta-t/flarc"
)

type Flag struct {
	Cluster string `flag:"cluster" help:"Path to the cluster configuration file. default: run in this process"`
	Workers int    `flag:"workers" alias:"j" help:"Number of pipelines running at once, with the local backend. default: local.workers of the cluster configuration"`
	Rounds  int    `flag:"rounds" alias:"n" help:"Number of rounds. default: glass.rounds of the imaging configuration"`
	Archive bool   `flag:"archive" help:"Archive each round directory into tar.gz."`
}

const ARG_DATASETS = "DATASETS"

type Option struct {
	connect func(kubeconfig string) (k8s.K8sClient, error)
}

// WithConnect replaces how the kubernetes client is made.
func WithConnect(connect func(kubeconfig string) (k8s.K8sClient, error)) func(*Option) *Option {
	return func(o *Option) *Option {
		o.connect = connect
		return o
	}
}

func New(options ...func(*Option) *Option) (flarc.Command, error) {
	option := &Option{connect: k8s.Connect}
	for _, opt := range options {
		option = opt(option)
	}

	return flarc.NewCommand(
		"Image datasets independently, in parallel.",
		Flag{Cluster: kos.GetEnvOr(common.EnvCluster, "")},
		flarc.Args{
			{
				Name: ARG_DATASETS, Required: true, Repeatable: true,
				Help: "Paths to datasets (measurement sets).",
			},
		},
		common.NewTask(Task(option)),
		flarc.WithDescription(`
Image datasets independently, in parallel.

Each dataset is imaged as "image" subcommand does, in its own working directory:
the directory of the dataset, or --workdir if only one dataset is given.
Datasets sharing a working directory are rejected before anything runs.

With the kubernetes backend of the cluster configuration, each dataset is imaged by a Job
running glass-image with the host sandbox. Paths should be valid in the volume of Jobs.
A failure of a dataset does not stop others. All failures are reported at last.
`),
	)
}

func Task(option *Option) common.Task[Flag] {
	return func(
		ctx context.Context,
		l *log.Logger,
		tools common.Tools,
		cf common.CommonFlags,
		cl flarc.Commandline[Flag],
		_ []any,
	) error {
		flags := cl.Flags()
		if flags.Workers < 0 {
			return fmt.Errorf("%w: --workers should not be negative: %d", flarc.ErrUsage, flags.Workers)
		}
		if flags.Rounds < 0 {
			return fmt.Errorf("%w: --rounds should not be negative: %d", flarc.ErrUsage, flags.Rounds)
		}

		cfg, err := image.LoadConfig(cf, image.Flag{Rounds: flags.Rounds, Archive: flags.Archive})
		if err != nil {
			return err
		}
		cc, err := cluster.Load(flags.Cluster)
		if err != nil {
			return err
		}

		datasets := []pointing.Pointing{}
		for _, ms := range cl.Args()[ARG_DATASETS] {
			wd := cf.Workdir
			if wd == "" {
				wd = filepath.Dir(ms)
			}
			p, err := pointing.FromMS(ms, wd)
			if err != nil {
				return err
			}
			datasets = append(datasets, p)
		}

		var mapper pipeline.Mapper
		switch cc.Backend() {
		case cluster.Kubernetes:
			kc := cc.Kubernetes()
			client, err := option.connect(kc.Kubeconfig())
			if err != nil {
				return err
			}
			mapper = pipeline.FromConfig(kc, client, l)
		default:
			workers := cc.Local().Workers()
			if 0 < flags.Workers {
				workers = flags.Workers
			}
			mapper = &pipeline.Local{Workers: workers, Logger: l}
		}

		task := &imageTask{tools: tools, config: cfg, flags: cf, pipelineFlags: flags}
		if err := mapper.Map(ctx, datasets, task); err != nil {
			return err
		}
		l.Printf("%d datasets are imaged", len(datasets))
		return nil
	}
}

type imageTask struct {
	tools         common.Tools
	config        *imager.Config
	flags         common.CommonFlags
	pipelineFlags Flag
}

var _ pipeline.Task = &imageTask{}

func (it *imageTask) Run(ctx context.Context, p pointing.Pointing, l *log.Logger) error {
	_, err := image.Run(ctx, l, it.tools, it.config, p, it.flags.Verbose)
	return err
}

// Args returns arguments of glass-image imaging p in a container.
func (it *imageTask) Args(p pointing.Pointing) []string {
	args := []string{
		"image", p.Path(),
		"--workdir", p.Workdir,
		"--sandbox", common.SandboxHost,
	}
	if it.flags.Config != "" {
		config := it.flags.Config
		if abs, err := filepath.Abs(config); err == nil {
			config = abs
		}
		args = append(args, "--config", config)
	}
	if 0 < it.pipelineFlags.Rounds {
		args = append(args, "--rounds", strconv.Itoa(it.pipelineFlags.Rounds))
	}
	if it.pipelineFlags.Archive {
		args = append(args, "--archive")
	}
	if it.flags.Verbose {
		args = append(args, "--verbose")
	}
	return args
}
