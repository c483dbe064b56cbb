package pbcorr_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/internal/commandline"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/internal/faketools"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/pbcorr"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/fitsimage"
	"github.com/glass-survey/glass-image/pkg/logger"
)

func TestTask(t *testing.T) {
	t.Run("images are corrected next to themselves", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "SB1-MFS-image.fits")
		img := fitsimage.New(fitsimage.NewHeader(
			fitsio.Card{Name: "NAXIS", Value: 4},
			fitsio.Card{Name: "CDELT3", Value: 2.0e9},
		), 2, 2)
		if err := fitsimage.Write(src, img); err != nil {
			t.Fatal(err)
		}

		tools := &faketools.Tools{HostFunc: faketools.Miriad}
		cl, stdout, _ := commandline.New(
			"glass-image pbcorr", struct{}{},
			map[string][]string{pbcorr.ARG_IMAGE: {src}},
		)
		if err := pbcorr.Task(context.Background(), logger.Null(), tools, common.CommonFlags{}, cl, nil); err != nil {
			t.Fatal(err)
		}

		want := filepath.Join(dir, "SB1-MFS-image.pbcorr.fits")
		if got := strings.TrimSpace(stdout.String()); got != want {
			t.Errorf("output: %s, want %s", got, want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Error(err)
		}
		calls := tools.Calls("host")
		if len(calls) != 3 || calls[1][0] != "linmos" || calls[1][3] != "bw=2" {
			t.Errorf("unexpected calls: %v", calls)
		}
	})

	t.Run("a missing image is a precondition error", func(t *testing.T) {
		tools := &faketools.Tools{HostFunc: faketools.Miriad}
		cl, _, _ := commandline.New(
			"glass-image pbcorr", struct{}{},
			map[string][]string{pbcorr.ARG_IMAGE: {filepath.Join(t.TempDir(), "none.fits")}},
		)
		err := pbcorr.Task(context.Background(), logger.Null(), tools, common.CommonFlags{}, cl, nil)
		if !errors.Is(err, gerrors.ErrPrecondition) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
