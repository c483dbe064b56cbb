package selfcal_test

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/glass-survey/glass-image/pkg/cleanmask"
	"github.com/glass-survey/glass-image/pkg/configs/imager"
	"github.com/glass-survey/glass-image/pkg/domain/pointing"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/options"
	"github.com/glass-survey/glass-image/pkg/selfcal"
	"github.com/glass-survey/glass-image/pkg/utils/archive"
	"github.com/glass-survey/glass-image/pkg/utils/try"
	"github.com/glass-survey/glass-image/pkg/wsclean"
	"github.com/google/go-cmp/cmp"
)

// fakeWSClean writes products named after the arguments, as wsclean does.
type fakeWSClean struct {
	workdir string
	calls   [][]string

	// fail makes the n-th call (0-based) exit with non-zero status, without products.
	fail map[int]bool

	// partial makes the n-th call (0-based) exit with non-zero status after writing products.
	partial map[int]bool
}

func argOf(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || len(args) <= i+1 {
		return ""
	}
	return args[i+1]
}

func (f *fakeWSClean) Run(_ context.Context, args ...string) error {
	nth := len(f.calls)
	f.calls = append(f.calls, args)
	if f.fail[nth] {
		return &gerrors.ToolFailure{Command: args, ExitCode: 1}
	}

	ms := args[len(args)-1]
	if _, err := os.Stat(filepath.Join(f.workdir, ms)); err != nil {
		return &gerrors.ToolFailure{Command: args, ExitCode: 255}
	}
	channels, err := strconv.Atoi(argOf(args, "-channels-out"))
	if err != nil {
		return err
	}
	for _, p := range wsclean.Products(argOf(args, "-name"), channels) {
		if err := os.WriteFile(filepath.Join(f.workdir, p.Name), []byte(p.Kind), 0o644); err != nil {
			return err
		}
	}
	if f.partial[nth] {
		return &gerrors.ToolFailure{Command: args, ExitCode: 1}
	}
	return nil
}

// blockingRunner runs until the context is done.
type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ ...string) error {
	<-ctx.Done()
	return ctx.Err()
}

var (
	taskPattern  = regexp.MustCompile(`^from casatasks import (\w+);`)
	paramPattern = regexp.MustCompile(`(\w+)='([^']*)'`)
)

// fakeCASA creates datasets and tables which tasks write.
type fakeCASA struct {
	workdir string
	tasks   []string

	// noSolution makes gaincal produce nothing.
	noSolution bool

	// failing task exits with non-zero status, without outputs.
	failing string
}

func (f *fakeCASA) Run(_ context.Context, args ...string) error {
	if len(args) != 3 || args[0] != "python3" || args[1] != "-c" {
		return errors.New("unexpected command")
	}
	m := taskPattern.FindStringSubmatch(args[2])
	if m == nil {
		return errors.New("unexpected script: " + args[2])
	}
	task := m[1]
	f.tasks = append(f.tasks, task)

	params := map[string]string{}
	for _, p := range paramPattern.FindAllStringSubmatch(args[2], -1) {
		params[p[1]] = p[2]
	}
	if _, err := os.Stat(filepath.Join(f.workdir, params["vis"])); err != nil {
		return &gerrors.ToolFailure{Command: args, ExitCode: 1}
	}
	if task == f.failing {
		return &gerrors.ToolFailure{Command: args, ExitCode: 1}
	}

	switch task {
	case "gaincal":
		if f.noSolution {
			return nil
		}
		return os.Mkdir(filepath.Join(f.workdir, params["caltable"]), 0o755)
	case "split", "mstransform":
		return os.Mkdir(filepath.Join(f.workdir, params["outputvis"]), 0o755)
	}
	return nil
}

type env struct {
	pointing pointing.Pointing
	wsclean  *fakeWSClean
	casa     *fakeCASA
}

func setup(t *testing.T) env {
	t.Helper()
	workdir := t.TempDir()
	if err := os.Mkdir(filepath.Join(workdir, "SB1.ms"), 0o755); err != nil {
		t.Fatal(err)
	}
	return env{
		pointing: try.To(pointing.FromMS(filepath.Join(workdir, "SB1.ms"), "")).OrFatal(t),
		wsclean:  &fakeWSClean{workdir: workdir},
		casa:     &fakeCASA{workdir: workdir},
	}
}

func (e env) controller(rounds int) *selfcal.Controller {
	im := options.DefaultImager()
	im.Rounds = rounds
	im.Settle = 0
	return &selfcal.Controller{WSClean: e.wsclean, CASA: e.casa, Imager: im}
}

func exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatal(err)
	}
	return false
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	names := []string{}
	for _, e := range try.To(os.ReadDir(dir)).OrFatal(t) {
		names = append(names, e.Name())
	}
	return names
}

func TestController_Run(t *testing.T) {
	t.Run("two rounds: image, then calibrate and image", func(t *testing.T) {
		e := setup(t)
		res := try.To(e.controller(2).Run(context.Background(), e.pointing)).OrFatal(t)

		if got := entries(t, e.pointing.Workdir); !cmp.Equal(got, []string{"SB1.ms", "SB1_pcal1.ms", "no_selfcal", "round_1"}) {
			t.Errorf("working directory: %v", got)
		}
		if diff := cmp.Diff([]string{"gaincal", "applycal", "split", "mstransform"}, e.casa.tasks); diff != "" {
			t.Errorf("tasks (-want +got):\n%s", diff)
		}

		if len(e.wsclean.calls) != 2 {
			t.Fatalf("imaging calls: %v", e.wsclean.calls)
		}
		if ms := e.wsclean.calls[0][len(e.wsclean.calls[0])-1]; ms != "SB1.ms" {
			t.Errorf("round 0 images %s", ms)
		}
		if ms := e.wsclean.calls[1][len(e.wsclean.calls[1])-1]; ms != "SB1_pcal1.ms" {
			t.Errorf("round 1 images %s", ms)
		}

		if len(res.Rounds) != 2 {
			t.Fatalf("rounds: %+v", res.Rounds)
		}
		if res.Rounds[0].Calibrated || !res.Rounds[1].Calibrated {
			t.Errorf("calibrated: %v, %v", res.Rounds[0].Calibrated, res.Rounds[1].Calibrated)
		}
		if want := e.pointing.Derived("pcal1"); res.Final != want {
			t.Errorf("final: %+v, want %+v", res.Final, want)
		}

		for _, rec := range res.Rounds {
			// 8 channels + MFS, without dirty and psf
			if got := entries(t, rec.Dir); len(got) != 9*3 {
				t.Errorf("%s: %d products: %v", rec.Dir, len(got), got)
			}
			for _, p := range rec.Products {
				if filepath.Dir(p) != rec.Dir {
					t.Errorf("product is not filed: %s", p)
				}
			}
			for _, p := range rec.Command.Products() {
				if exists(t, e.pointing.Join(p.Name)) {
					t.Errorf("product is left in working directory: %s", p.Name)
				}
			}
		}
		if !strings.HasSuffix(res.Rounds[1].Command.Stem, "_r1") {
			t.Errorf("stem of round 1: %s", res.Rounds[1].Command.Stem)
		}
	})

	t.Run("no solutions: dataset is carried forward unchanged", func(t *testing.T) {
		e := setup(t)
		e.casa.noSolution = true

		res := try.To(e.controller(2).Run(context.Background(), e.pointing)).OrFatal(t)

		if res.Final != e.pointing {
			t.Errorf("final: %+v", res.Final)
		}
		if res.Rounds[1].Calibrated {
			t.Error("round 1 is marked calibrated")
		}
		if diff := cmp.Diff([]string{"gaincal"}, e.casa.tasks); diff != "" {
			t.Errorf("tasks (-want +got):\n%s", diff)
		}
		if ms := e.wsclean.calls[1][len(e.wsclean.calls[1])-1]; ms != "SB1.ms" {
			t.Errorf("round 1 images %s", ms)
		}
		if got := entries(t, e.pointing.Workdir); !cmp.Equal(got, []string{"SB1.ms", "no_selfcal", "round_1"}) {
			t.Errorf("working directory: %v", got)
		}
	})

	t.Run("existing round directory is rejected before any tool runs", func(t *testing.T) {
		e := setup(t)
		if err := os.Mkdir(e.pointing.Join("round_2"), 0o755); err != nil {
			t.Fatal(err)
		}

		_, err := e.controller(3).Run(context.Background(), e.pointing)
		if !errors.Is(err, gerrors.ErrPrecondition) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(e.wsclean.calls) != 0 || len(e.casa.tasks) != 0 {
			t.Errorf("tools are invoked: %v, %v", e.wsclean.calls, e.casa.tasks)
		}
	})

	t.Run("existing derived dataset is rejected before any tool runs", func(t *testing.T) {
		e := setup(t)
		if err := os.Mkdir(e.pointing.Join("SB1_pcal2.ms"), 0o755); err != nil {
			t.Fatal(err)
		}

		_, err := e.controller(3).Run(context.Background(), e.pointing)
		if !errors.Is(err, gerrors.ErrPrecondition) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(e.wsclean.calls) != 0 || len(e.casa.tasks) != 0 {
			t.Errorf("tools are invoked: %v, %v", e.wsclean.calls, e.casa.tasks)
		}
	})

	t.Run("missing dataset is rejected", func(t *testing.T) {
		e := setup(t)
		p := e.pointing
		p.MS = "SB2.ms"

		if _, err := e.controller(2).Run(context.Background(), p); !errors.Is(err, gerrors.ErrPrecondition) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("per-round overrides of the configuration reach the imager", func(t *testing.T) {
		e := setup(t)
		conf := try.To(imager.Unmarshal([]byte(`
glass:
  rounds: 3
default:
  wsclean:
    channels_out: 1
sc:
  2:
    wsclean:
      niter: 5
    casasc:
      nspw: 1
`))).OrFatal(t)

		c := e.controller(conf.Glass.Rounds)
		c.Options = conf
		res := try.To(c.Run(context.Background(), e.pointing)).OrFatal(t)

		if len(res.Rounds) != 3 {
			t.Fatalf("rounds: %d", len(res.Rounds))
		}
		for i, want := range []string{"50000", "50000", "5"} {
			if got := argOf(e.wsclean.calls[i], "-niter"); got != want {
				t.Errorf("round %d: niter %s, want %s", i, got, want)
			}
		}
		if want := e.pointing.Derived("pcal2"); res.Final != want {
			t.Errorf("final: %+v, want %+v", res.Final, want)
		}
		// single channel: image, residual and model
		if got := entries(t, res.Rounds[2].Dir); len(got) != 3 {
			t.Errorf("products: %v", got)
		}
	})

	t.Run("configuration error stops before any tool runs", func(t *testing.T) {
		e := setup(t)
		c := e.controller(2)
		c.Options = resolverFunc(func(round int) (options.Round, error) {
			if round == 1 {
				return options.Round{}, gerrors.NewConfigurationError("broken")
			}
			return options.Defaults(round), nil
		})

		if _, err := c.Run(context.Background(), e.pointing); !errors.Is(err, gerrors.ErrConfiguration) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(e.wsclean.calls) != 0 {
			t.Errorf("imager is invoked: %v", e.wsclean.calls)
		}
	})

	t.Run("fits-mask mode requires the clean mask", func(t *testing.T) {
		e := setup(t)
		c := e.controller(1)
		c.Options = resolverFunc(func(round int) (options.Round, error) {
			r := options.Defaults(round)
			r.WSClean.FitsMask = true
			return r, nil
		})

		_, err := c.Run(context.Background(), e.pointing)
		if !errors.Is(err, cleanmask.ErrNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(e.wsclean.calls) != 0 {
			t.Errorf("imager is invoked: %v", e.wsclean.calls)
		}

		if err := os.WriteFile(cleanmask.Path(e.pointing), nil, 0o644); err != nil {
			t.Fatal(err)
		}
		res := try.To(c.Run(context.Background(), e.pointing)).OrFatal(t)
		if got := argOf(e.wsclean.calls[0], "-fits-mask"); got != "SB1_clean_mask.fits" {
			t.Errorf("-fits-mask: %s", got)
		}
		if !strings.HasSuffix(res.Rounds[0].Command.Stem, "_fitsmask") {
			t.Errorf("stem: %s", res.Rounds[0].Command.Stem)
		}
	})

	t.Run("failure of imaging with products is logged and rounds go on", func(t *testing.T) {
		e := setup(t)
		e.wsclean.partial = map[int]bool{0: true}

		res := try.To(e.controller(2).Run(context.Background(), e.pointing)).OrFatal(t)
		if len(res.Rounds) != 2 {
			t.Fatalf("rounds: %d", len(res.Rounds))
		}
		for _, rec := range res.Rounds {
			if got := entries(t, rec.Dir); len(got) != 9*3 {
				t.Errorf("products of %s: %v", rec.Dir, got)
			}
		}
	})

	type When struct {
		rounds int
		fail   map[int]bool
	}
	type Then struct {
		finished  int
		wscleaned int
		casaTasks []string
		dirs      []string
	}
	imagingFailure := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			e := setup(t)
			e.wsclean.fail = when.fail

			res, err := e.controller(when.rounds).Run(context.Background(), e.pointing)
			if !errors.Is(err, gerrors.ErrPrecondition) {
				t.Errorf("unexpected error: %v", err)
			}
			if len(res.Rounds) != then.finished {
				t.Errorf("finished rounds: %d", len(res.Rounds))
			}
			if len(e.wsclean.calls) != then.wscleaned {
				t.Errorf("imaging calls: %d", len(e.wsclean.calls))
			}
			if diff := cmp.Diff(then.casaTasks, e.casa.tasks); diff != "" {
				t.Errorf("tasks (-want +got):\n%s", diff)
			}
			if got := entries(t, e.pointing.Workdir); !cmp.Equal(got, then.dirs) {
				t.Errorf("working directory: %v", got)
			}
		}
	}

	t.Run("failure of imaging without products stops the run", imagingFailure(
		When{rounds: 2, fail: map[int]bool{0: true, 1: true}},
		Then{
			finished:  0,
			wscleaned: 1,
			dirs:      []string{"SB1.ms"},
		},
	))

	t.Run("failure of imaging in a later round keeps finished rounds", imagingFailure(
		When{rounds: 3, fail: map[int]bool{1: true}},
		Then{
			finished:  1,
			wscleaned: 2,
			casaTasks: []string{"gaincal", "applycal", "split", "mstransform"},
			dirs:      []string{"SB1.ms", "SB1_pcal1.ms", "no_selfcal"},
		},
	))

	t.Run("failed regridding keeps intermediates and stops", func(t *testing.T) {
		e := setup(t)
		e.casa.failing = "mstransform"

		res, err := e.controller(2).Run(context.Background(), e.pointing)
		if !errors.Is(err, gerrors.ErrPrecondition) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(res.Rounds) != 1 {
			t.Errorf("finished rounds: %d", len(res.Rounds))
		}
		for _, name := range []string{"pcal1", "SB1_pcal1_corrected.ms"} {
			if !exists(t, e.pointing.Join(name)) {
				t.Errorf("%s is removed", name)
			}
		}
		if exists(t, e.pointing.Join("round_1")) {
			t.Error("round_1 is created")
		}
	})

	t.Run("without clean up, intermediates are kept", func(t *testing.T) {
		e := setup(t)
		c := e.controller(2)
		c.Imager.CleanUp = false

		res := try.To(c.Run(context.Background(), e.pointing)).OrFatal(t)
		for _, name := range []string{"pcal1", "SB1_pcal1_corrected.ms"} {
			if !exists(t, e.pointing.Join(name)) {
				t.Errorf("%s is removed", name)
			}
		}
		if got := entries(t, res.Rounds[0].Dir); len(got) != 9*5 {
			t.Errorf("products: %d", len(got))
		}
	})

	t.Run("without moving, products stay in working directory", func(t *testing.T) {
		e := setup(t)
		c := e.controller(1)
		c.Imager.MoveProducts = false

		res := try.To(c.Run(context.Background(), e.pointing)).OrFatal(t)
		rec := res.Rounds[0]
		if got := entries(t, rec.Dir); len(got) != 0 {
			t.Errorf("products are moved: %v", got)
		}
		for _, p := range rec.Products {
			if filepath.Dir(p) != e.pointing.Workdir || !exists(t, p) {
				t.Errorf("product: %s", p)
			}
		}
	})

	t.Run("archived rounds are replaced with archives", func(t *testing.T) {
		e := setup(t)
		c := e.controller(2)
		c.Imager.Archive = true
		logs := new(strings.Builder)
		c.Logger = log.New(logs, "", 0)

		res := try.To(c.Run(context.Background(), e.pointing)).OrFatal(t)
		for _, rec := range res.Rounds {
			if rec.Archive != rec.Dir+archive.Suffix || !exists(t, rec.Archive) {
				t.Errorf("archive: %s", rec.Archive)
			}
			if exists(t, rec.Dir) {
				t.Errorf("%s is left", rec.Dir)
			}
			if !strings.Contains(logs.String(), "archiving "+rec.Dir+": ") {
				t.Errorf("progress of %s is not logged:\n%s", rec.Dir, logs.String())
			}
		}
	})

	t.Run("archives of a finished run are not overwritten by a second run", func(t *testing.T) {
		e := setup(t)
		c := e.controller(2)
		c.Imager.Archive = true
		first := try.To(c.Run(context.Background(), e.pointing)).OrFatal(t)

		archived := first.Rounds[0].Archive
		before := try.To(os.Stat(archived)).OrFatal(t)

		again := &fakeWSClean{workdir: e.pointing.Workdir}
		c.WSClean = again
		_, err := c.Run(context.Background(), e.pointing)
		if !errors.Is(err, gerrors.ErrPrecondition) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(again.calls) != 0 {
			t.Errorf("imager is invoked: %v", again.calls)
		}

		after := try.To(os.Stat(archived)).OrFatal(t)
		if !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size() {
			t.Errorf("archive is rewritten: %v (%d bytes) -> %v (%d bytes)", before.ModTime(), before.Size(), after.ModTime(), after.Size())
		}
	})

	t.Run("round timeout stops a round which does not finish", func(t *testing.T) {
		e := setup(t)
		c := e.controller(2)
		c.WSClean = blockingRunner{}
		c.Imager.RoundTimeout = 20 * time.Millisecond

		res, err := c.Run(context.Background(), e.pointing)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(res.Rounds) != 0 {
			t.Errorf("finished rounds: %d", len(res.Rounds))
		}
	})

	t.Run("canceled context stops the loop", func(t *testing.T) {
		e := setup(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := e.controller(2).Run(ctx, e.pointing); !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(e.wsclean.calls) != 0 {
			t.Errorf("imager is invoked: %v", e.wsclean.calls)
		}
	})
}

type resolverFunc func(int) (options.Round, error)

func (f resolverFunc) Resolve(round int) (options.Round, error) {
	return f(round)
}
