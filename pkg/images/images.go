// Package images acquires container images of external tools as singularity images.
//
// An image is pulled from its registry, written as a docker-archive tarball,
// then built into a .sif file by singularity.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/images/analyzer"
	"github.com/glass-survey/glass-image/pkg/logger"
	"github.com/glass-survey/glass-image/pkg/sandbox"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
)

const (
	// DefaultWSClean is the image of the imager used when none is given.
	DefaultWSClean = "docker.io/alecthomson/wsclean:latest"

	// DefaultCASA is the image of the calibration suite used when none is given.
	DefaultCASA = "docker.io/alecthomson/casatasks:latest"
)

const progressBar pb.ProgressBarTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{bar . }} {{percent . }}`

// SifName returns the default file name of the singularity image of ref.
//
// example: "docker.io/alecthomson/wsclean:latest" -> "wsclean_latest.sif"
func SifName(ref string) (string, error) {
	r, err := name.ParseReference(ref)
	if err != nil {
		return "", err
	}
	repo := r.Context().RepositoryStr()
	base := repo[strings.LastIndex(repo, "/")+1:]
	id := r.Identifier()
	id = strings.NewReplacer(":", "_", "/", "_").Replace(id)
	return base + "_" + id + ".sif", nil
}

// Fetch pulls the image ref and writes it into dest as a docker-archive tarball.
//
// # Args
//
// - ctx: context.
//
// - ref: image reference.
//
// - dest: path of the tarball. It is written only when the whole image is fetched.
//
// - progress: where a progress bar is written. When nil, no progress is shown.
//
// - opts: options for crane.
func Fetch(ctx context.Context, ref string, dest string, progress io.Writer, opts ...crane.Option) error {
	tag, err := name.ParseReference(ref)
	if err != nil {
		return gerrors.NewConfigurationError("bad image reference %q: %s", ref, err)
	}

	img, err := crane.Pull(ref, append([]crane.Option{crane.WithContext(ctx)}, opts...)...)
	if err != nil {
		return fmt.Errorf("pulling %s: %w", ref, err)
	}

	var total int64
	layers, err := img.Layers()
	if err != nil {
		return err
	}
	for _, l := range layers {
		s, err := l.Size()
		if err != nil {
			return err
		}
		total += s
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if progress != nil {
		bar := progressBar.New(0)
		bar.SetTotal(total)
		bar.SetWriter(progress)
		bar.Set("prefix", fmt.Sprintf("writing %s:", ref))
		bar.Set(pb.Bytes, true)
		bar.Start()
		defer bar.Finish()
		w = bar.NewProxyWriter(tmp)
	}

	if err := tarball.Write(tag, img, w); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// Inspect reads image configurations in a docker-archive tarball.
func Inspect(ctx context.Context, archive string) ([]analyzer.TaggedConfig, error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return analyzer.Analyze(ctx, f)
}

// Build builds a singularity image sif from a docker-archive tarball.
//
// host should run singularity on the host.
func Build(ctx context.Context, host sandbox.Runner, archive string, sif string) error {
	return host.Run(ctx, "singularity", "build", sif, "docker-archive://"+archive)
}

// Acquirer makes singularity images of container images available.
type Acquirer struct {
	// Host runs singularity on the host.
	Host sandbox.Runner

	// Progress is where progress bars are written. When nil, no progress is shown.
	Progress io.Writer

	// Options are options for crane.
	Options []crane.Option

	Logger *log.Logger
}

// Ensure returns a path to the singularity image of ref.
//
// When sif exists, it is used as is, and nothing is downloaded.
// Otherwise, ref is pulled and built into sif.
//
// # Returns
//
// - string: absolute path to the singularity image.
//
// - error
func (a *Acquirer) Ensure(ctx context.Context, ref string, sif string) (string, error) {
	l := a.Logger
	if l == nil {
		l = logger.Null()
	}

	abssif, err := filepath.Abs(sif)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abssif); err == nil {
		l.Printf("using existing image: %s", abssif)
		return abssif, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	archive := strings.TrimSuffix(abssif, filepath.Ext(abssif)) + ".tar"
	l.Printf("no image at %s. pulling %s.", abssif, ref)
	if err := Fetch(ctx, ref, archive, a.Progress, a.Options...); err != nil {
		return "", err
	}
	defer os.Remove(archive)

	configs, err := Inspect(ctx, archive)
	if err != nil {
		return "", err
	}
	if len(configs) == 0 {
		return "", fmt.Errorf("no image is found in %s", archive)
	}
	for _, c := range configs {
		l.Printf("image %v (%s): entrypoint %v, cmd %v", c.Tags, c.Platform, c.Config.Entrypoint, c.Config.Cmd)
	}

	if err := Build(ctx, a.Host, archive, abssif); err != nil {
		return "", err
	}
	if _, err := os.Stat(abssif); err != nil {
		return "", fmt.Errorf("singularity did not produce %s: %w", abssif, err)
	}
	return abssif, nil
}
