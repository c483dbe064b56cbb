package fitsimage

import (
	"fmt"

	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotHistogram saves a histogram of finite pixel values of img as an image file.
//
// The format is decided by the extension of path (.png, .svg, .pdf, ...).
func PlotHistogram(img *Image, path string, bins int, title string) error {
	values := Finite(img.Data)
	if len(values) == 0 {
		return gerrors.NewPreconditionError("image has no finite pixels")
	}
	if bins <= 0 {
		bins = 100
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "pixel value"
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	p.Add(h)

	if s, err := Summarize(img); err == nil {
		line, err := plotter.NewLine(plotter.XYs{
			{X: s.Median - s.Sigma, Y: 0},
			{X: s.Median + s.Sigma, Y: 0},
		})
		if err == nil {
			line.Width = vg.Points(3)
			p.Add(line)
			p.Legend.Add(fmt.Sprintf("median ± σ(MAD) = %.4g ± %.4g", s.Median, s.Sigma), line)
		}
	}

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
