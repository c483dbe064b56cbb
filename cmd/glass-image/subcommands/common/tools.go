package common

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/images"
	"github.com/glass-survey/glass-image/pkg/sandbox"
)

// Tools makes runners of external tools.
//
// root is the directory where tools work. In containers, only root is visible.
type Tools interface {
	WSClean(ctx context.Context, root string, l *log.Logger) (sandbox.Runner, error)
	CASA(ctx context.Context, root string, l *log.Logger) (sandbox.Runner, error)

	// Host runs tools installed on the host, like miriad.
	Host(root string, l *log.Logger) sandbox.Runner

	// Image returns the path to the singularity image of image,
	// a path to .sif or a container image reference.
	Image(ctx context.Context, image string, l *log.Logger) (string, error)
}

type tools struct {
	flags    CommonFlags
	progress io.Writer
	debug    *log.Logger
}

// NewTools returns Tools configured by flags.
//
// Progress of image downloading is written to progress.
func NewTools(flags CommonFlags, progress io.Writer, debug *log.Logger) Tools {
	return &tools{flags: flags, progress: progress, debug: debug}
}

func (t *tools) WSClean(ctx context.Context, root string, l *log.Logger) (sandbox.Runner, error) {
	return t.container(ctx, t.flags.WSCleanImage, root, l)
}

func (t *tools) CASA(ctx context.Context, root string, l *log.Logger) (sandbox.Runner, error) {
	return t.container(ctx, t.flags.CASAImage, root, l)
}

func (t *tools) Host(root string, l *log.Logger) sandbox.Runner {
	return &sandbox.Host{Dir: root, Logger: l}
}

func (t *tools) container(ctx context.Context, image string, root string, l *log.Logger) (sandbox.Runner, error) {
	if t.flags.Sandbox == SandboxHost {
		return t.Host(root, l), nil
	}

	sif, err := t.Image(ctx, image, l)
	if err != nil {
		return nil, err
	}
	t.debug.Printf("singularity image: %s (root: %s)", sif, root)
	return &sandbox.Singularity{Image: sif, Root: root, Logger: l}, nil
}

// Image returns the path to the singularity image of image.
//
// image is a path to .sif, or a container image reference.
// References are pulled and built into ImagesDir when missing.
func (t *tools) Image(ctx context.Context, image string, l *log.Logger) (string, error) {
	if strings.HasSuffix(image, ".sif") {
		abs, err := filepath.Abs(image)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(abs); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", gerrors.NewPreconditionError("singularity image %s does not exist", image)
			}
			return "", err
		}
		return abs, nil
	}

	name, err := images.SifName(image)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(t.flags.ImagesDir, os.FileMode(0o755)); err != nil {
		return "", err
	}
	acq := &images.Acquirer{
		Host:     &sandbox.Host{Dir: t.flags.ImagesDir, Logger: t.debug},
		Progress: t.progress,
		Logger:   l,
	}
	return acq.Ensure(ctx, image, filepath.Join(t.flags.ImagesDir, name))
}
