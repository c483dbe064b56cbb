package weights_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/internal/commandline"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/internal/faketools"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/weights"
	"github.com/glass-survey/glass-image/pkg/fitsimage"
	"github.com/glass-survey/glass-image/pkg/logger"
	"github.com/glass-survey/glass-image/pkg/utils/try"
	"github.com/youta-t/flarc"
)

func TestTask(t *testing.T) {
	type When struct {
		RMS string
	}
	type Then struct {
		// Weight is the expected value of pixels. 0 means the noise estimated from the image.
		Weight float64
		Usage  bool
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "SB1-MFS-image.pbcorr.fits")
			img := fitsimage.New(fitsimage.NewHeader(
				fitsio.Card{Name: "NAXIS", Value: 4},
				fitsio.Card{Name: "CDELT3", Value: 2.0e9},
			), 4, 4)
			for i := range img.Data {
				img.Data[i] = float64(i)
			}
			if err := fitsimage.Write(src, img); err != nil {
				t.Fatal(err)
			}

			tools := &faketools.Tools{HostFunc: faketools.Miriad}
			cl, stdout, _ := commandline.New(
				"glass-image weights", weights.Flag{RMS: when.RMS},
				map[string][]string{weights.ARG_IMAGE: {src}},
			)
			err := weights.Task(context.Background(), logger.Null(), tools, common.CommonFlags{}, cl, nil)
			if then.Usage {
				if !errors.Is(err, flarc.ErrUsage) {
					t.Errorf("unexpected error: %v", err)
				}
				if n := len(tools.Calls("host")); n != 0 {
					t.Errorf("miriad is called %d times", n)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}

			want := then.Weight
			if want == 0 {
				rms := try.To(fitsimage.Noise(src)).OrFatal(t)
				want = math.Pow(0.5, -2) / (rms * rms)
			}

			out := strings.TrimSpace(stdout.String())
			if out != filepath.Join(dir, "SB1-MFS-image.pbcorr.weight.fits") {
				t.Errorf("output: %s", out)
			}
			w := try.To(fitsimage.Read(out)).OrFatal(t)
			for i, v := range w.Data {
				if math.Abs(v-want)/want > 1e-6 {
					t.Errorf("weight[%d] = %g, want %g", i, v, want)
				}
			}
		}
	}

	t.Run("--rms is used as the noise", theory(
		When{RMS: "2"},
		Then{Weight: 1},
	))

	t.Run("without --rms, the noise is estimated from the image", theory(
		When{},
		Then{},
	))

	t.Run("non-numeric --rms is a usage error", theory(
		When{RMS: "low"},
		Then{Usage: true},
	))

	t.Run("non-positive --rms is a usage error", theory(
		When{RMS: "0"},
		Then{Usage: true},
	))
}
