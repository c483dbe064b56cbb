package common_test

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/internal/commandline"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/images"
	"github.com/glass-survey/glass-image/pkg/logger"
	"github.com/glass-survey/glass-image/pkg/sandbox"
	"github.com/youta-t/flarc"
)

func TestFlags(t *testing.T) {
	t.Run("when no environment variables are set, it uses built-in defaults", func(t *testing.T) {
		t.Setenv(common.EnvWSCleanImage, "")
		t.Setenv(common.EnvCASAImage, "")
		t.Setenv(common.EnvConfig, "")
		t.Setenv(common.EnvImagesDir, "/var/lib/glass")

		cf := common.Flags()
		if cf.WSCleanImage != images.DefaultWSClean || cf.CASAImage != images.DefaultCASA {
			t.Errorf("unexpected images: %+v", cf)
		}
		if cf.Sandbox != common.SandboxSingularity || cf.Config != "" || cf.ImagesDir != "/var/lib/glass" {
			t.Errorf("unexpected flags: %+v", cf)
		}
	})

	t.Run("environment variables are used as defaults", func(t *testing.T) {
		t.Setenv(common.EnvWSCleanImage, "/images/wsclean.sif")
		t.Setenv(common.EnvCASAImage, "registry.example.com/casa:6.6")
		t.Setenv(common.EnvConfig, "/etc/glass.yaml")

		cf := common.Flags()
		if cf.WSCleanImage != "/images/wsclean.sif" ||
			cf.CASAImage != "registry.example.com/casa:6.6" ||
			cf.Config != "/etc/glass.yaml" {
			t.Errorf("unexpected flags: %+v", cf)
		}
	})
}

func TestNewTask(t *testing.T) {
	t.Run("it passes common flags and params to the task", func(t *testing.T) {
		cf := common.CommonFlags{Workdir: "/data", Sandbox: common.SandboxHost}
		called := false
		testee := common.NewTask(func(
			ctx context.Context, l *log.Logger, tools common.Tools,
			actual common.CommonFlags, cl flarc.Commandline[struct{}], params []any,
		) error {
			called = true
			if actual != cf {
				t.Errorf("common flags: %+v", actual)
			}
			if len(params) != 1 || params[0] != "other" {
				t.Errorf("params: %v", params)
			}
			if l.Prefix() != "[glass-image image] " {
				t.Errorf("logger prefix: %q", l.Prefix())
			}
			if _, ok := tools.Host("/data", l).(*sandbox.Host); !ok {
				t.Errorf("unexpected host runner")
			}
			return nil
		})

		cl, _, _ := commandline.New("glass-image image", struct{}{}, nil)
		if err := testee(context.Background(), cl, []any{cf, "other"}); err != nil {
			t.Fatal(err)
		}
		if !called {
			t.Error("task is not called")
		}
	})

	t.Run("when --sandbox is unknown, it is a usage error", func(t *testing.T) {
		testee := common.NewTask(func(
			context.Context, *log.Logger, common.Tools,
			common.CommonFlags, flarc.Commandline[struct{}], []any,
		) error {
			t.Error("task is called")
			return nil
		})
		cl, _, _ := commandline.New("glass-image image", struct{}{}, nil)
		err := testee(context.Background(), cl, []any{common.CommonFlags{Sandbox: "docker"}})
		if !errors.Is(err, flarc.ErrUsage) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("when common flags are missing, it is an error", func(t *testing.T) {
		testee := common.NewTaskWithCommonFlag(func(
			context.Context, *log.Logger, common.CommonFlags, flarc.Commandline[struct{}], []any,
		) error {
			t.Error("task is called")
			return nil
		})
		cl, _, _ := commandline.New("glass-image image", struct{}{}, nil)
		if err := testee(context.Background(), cl, []any{}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestTools(t *testing.T) {
	ctx := context.Background()

	t.Run("with host sandbox, tools run on the host in root", func(t *testing.T) {
		testee := common.NewTools(
			common.CommonFlags{Sandbox: common.SandboxHost}, nil, logger.Null(),
		)
		r, err := testee.WSClean(ctx, "/data/SB1", logger.Null())
		if err != nil {
			t.Fatal(err)
		}
		host, ok := r.(*sandbox.Host)
		if !ok || host.Dir != "/data/SB1" {
			t.Errorf("unexpected runner: %#v", r)
		}
	})

	t.Run("with singularity sandbox, an existing .sif is used as is", func(t *testing.T) {
		dir := t.TempDir()
		sif := filepath.Join(dir, "casa.sif")
		if err := os.WriteFile(sif, []byte("sif"), os.FileMode(0o644)); err != nil {
			t.Fatal(err)
		}

		testee := common.NewTools(
			common.CommonFlags{Sandbox: common.SandboxSingularity, CASAImage: sif}, nil, logger.Null(),
		)
		r, err := testee.CASA(ctx, "/data/SB1", logger.Null())
		if err != nil {
			t.Fatal(err)
		}
		s, ok := r.(*sandbox.Singularity)
		if !ok || s.Image != sif || s.Root != "/data/SB1" {
			t.Errorf("unexpected runner: %#v", r)
		}
	})

	t.Run("with singularity sandbox, a missing .sif is a precondition error", func(t *testing.T) {
		testee := common.NewTools(
			common.CommonFlags{
				Sandbox:      common.SandboxSingularity,
				WSCleanImage: filepath.Join(t.TempDir(), "missing.sif"),
			},
			nil, logger.Null(),
		)
		_, err := testee.WSClean(ctx, "/data/SB1", logger.Null())
		if !errors.Is(err, gerrors.ErrPrecondition) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("with singularity sandbox, a cached image of the reference is reused", func(t *testing.T) {
		dir := t.TempDir()
		cached := filepath.Join(dir, "wsclean_3.4.sif")
		if err := os.WriteFile(cached, []byte("sif"), os.FileMode(0o644)); err != nil {
			t.Fatal(err)
		}

		testee := common.NewTools(
			common.CommonFlags{
				Sandbox:      common.SandboxSingularity,
				WSCleanImage: "registry.example.com/astro/wsclean:3.4",
				ImagesDir:    dir,
			},
			nil, logger.Null(),
		)
		r, err := testee.WSClean(ctx, "/data/SB1", logger.Null())
		if err != nil {
			t.Fatal(err)
		}
		s, ok := r.(*sandbox.Singularity)
		if !ok || s.Image != cached {
			t.Errorf("unexpected runner: %#v", r)
		}
		if !strings.HasSuffix(s.Image, ".sif") {
			t.Errorf("unexpected image: %s", s.Image)
		}
	})
}
