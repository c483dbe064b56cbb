package cleanmask_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/cleanmask"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/internal/commandline"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/internal/faketools"
	"github.com/glass-survey/glass-image/pkg/logger"
	"github.com/youta-t/flarc"
)

func TestTask(t *testing.T) {
	type When struct {
		Flag   cleanmask.Flag
		Mosaic string
	}
	type Then struct {
		Usage bool
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			root := t.TempDir()
			ms := filepath.Join(root, "SB1.ms")
			if err := os.Mkdir(ms, os.FileMode(0o755)); err != nil {
				t.Fatal(err)
			}

			tools := &faketools.Tools{WSCleanFunc: faketools.WSClean}
			cl, stdout, _ := commandline.New(
				"glass-image clean-mask", when.Flag,
				map[string][]string{
					cleanmask.ARG_DATASET: {ms},
					cleanmask.ARG_MOSAIC:  {filepath.Join(root, when.Mosaic)},
				},
			)
			err := cleanmask.Task(
				context.Background(), logger.Null(), tools,
				common.CommonFlags{Sandbox: common.SandboxHost}, cl, nil,
			)
			if err == nil {
				t.Fatal("no error")
			}
			if errors.Is(err, flarc.ErrUsage) != then.Usage {
				t.Errorf("unexpected error: %v", err)
			}
			if n := len(tools.Calls("wsclean")); n != 0 {
				t.Errorf("wsclean is called %d times", n)
			}
			if _, err := os.Stat(filepath.Join(root, "SB1_clean_mask.fits")); !os.IsNotExist(err) {
				t.Errorf("mask is written: %v", err)
			}
			if stdout.Len() != 0 {
				t.Errorf("unexpected output: %s", stdout.String())
			}
		}
	}

	t.Run("negative --round is a usage error", theory(
		When{Flag: cleanmask.Flag{Round: -1}, Mosaic: "mosaic.fits"},
		Then{Usage: true},
	))

	t.Run("a missing mosaic fails before imaging", theory(
		When{Mosaic: "missing.fits"},
		Then{Usage: false},
	))
}
