package noise

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/pkg/fitsimage"
	"github.com/youta-t/flarc"
	"gopkg.in/yaml.v3"
)

type Flag struct {
	Histogram bool `flag:"histogram" help:"Plot histograms of pixel values next to images, as \"<image>.hist.png\"."`
	Bins      int  `flag:"bins" help:"Number of bins of histograms."`
}

const ARG_IMAGE = "IMAGE"

func New() (flarc.Command, error) {
	return flarc.NewCommand(
		"Measure noise levels of images.",
		Flag{Bins: 100},
		flarc.Args{
			{
				Name: ARG_IMAGE, Required: true, Repeatable: true,
				Help: "Paths to FITS images.",
			},
		},
		common.NewTaskWithCommonFlag(Task),
		flarc.WithDescription(`
Measure noise levels of images.

The noise is the median absolute deviation of finite pixels, scaled to the standard deviation of a Gaussian.
Statistics of each image are printed in YAML.
`),
	)
}

// Stats are statistics of an image.
type Stats struct {
	Image     string  `yaml:"image"`
	Count     int     `yaml:"count"`
	Blank     int     `yaml:"blank"`
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
	Mean      float64 `yaml:"mean"`
	StdDev    float64 `yaml:"stddev"`
	Median    float64 `yaml:"median"`
	MAD       float64 `yaml:"mad"`
	Noise     float64 `yaml:"noise"`
	Histogram string  `yaml:"histogram,omitempty"`
}

func Task(
	_ context.Context,
	l *log.Logger,
	_ common.CommonFlags,
	cl flarc.Commandline[Flag],
	_ []any,
) error {
	flags := cl.Flags()
	if flags.Histogram && flags.Bins <= 0 {
		return fmt.Errorf("%w: --bins should be positive: %d", flarc.ErrUsage, flags.Bins)
	}

	stats := []Stats{}
	for _, path := range cl.Args()[ARG_IMAGE] {
		img, err := fitsimage.Read(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		s, err := fitsimage.Summarize(img)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		st := Stats{
			Image:  path,
			Count:  s.Count,
			Blank:  s.Blank,
			Min:    s.Min,
			Max:    s.Max,
			Mean:   s.Mean,
			StdDev: s.StdDev,
			Median: s.Median,
			MAD:    s.MAD,
			Noise:  s.Sigma,
		}

		if flags.Histogram {
			hist := strings.TrimSuffix(path, filepath.Ext(path)) + ".hist.png"
			if err := fitsimage.PlotHistogram(img, hist, flags.Bins, filepath.Base(path)); err != nil {
				return err
			}
			l.Printf("histogram is written: %s", hist)
			st.Histogram = hist
		}
		stats = append(stats, st)
	}

	enc := yaml.NewEncoder(cl.Stdout())
	enc.SetIndent(2)
	if err := enc.Encode(stats); err != nil {
		return err
	}
	return enc.Close()
}
