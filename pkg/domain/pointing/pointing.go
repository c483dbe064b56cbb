package pointing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gerrors "github.com/glass-survey/glass-image/pkg/errors"
)

// Pointing is a handle of a dataset (measurement set) on disk.
//
// A Pointing is never mutated.
// Each self-calibration round yields a new Pointing naming a new dataset.
type Pointing struct {
	// Workdir is the working directory, where products are written.
	Workdir string

	// Field is the name of the observed field.
	Field string

	// MS is the path to the dataset, relative to Workdir.
	MS string
}

// FromMS creates a Pointing for the dataset.
//
// # Args
//
// - ms: path to a dataset. It should be an existing directory.
//
// - workdir: working directory. When empty, the directory containing ms is used.
// Otherwise, ms should be under workdir, since sandboxes expose only the working directory to tools.
//
// # Returns
//
// - Pointing: the field name is the base name of ms, up to its first ".".
//
// - error: it wraps ErrPrecondition if ms is not a directory, or it is outside workdir.
func FromMS(ms string, workdir string) (Pointing, error) {
	absms, err := filepath.Abs(ms)
	if err != nil {
		return Pointing{}, err
	}
	if err := requireDir(absms); err != nil {
		return Pointing{}, err
	}

	if workdir == "" {
		workdir = filepath.Dir(absms)
	}
	absWorkdir, err := filepath.Abs(workdir)
	if err != nil {
		return Pointing{}, err
	}
	if err := requireDir(absWorkdir); err != nil {
		return Pointing{}, err
	}

	rel, err := filepath.Rel(absWorkdir, absms)
	if err != nil {
		return Pointing{}, err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Pointing{}, gerrors.NewPreconditionError("%s is not in the working directory %s", absms, absWorkdir)
	}

	field, _, _ := strings.Cut(filepath.Base(absms), ".")
	if field == "" {
		return Pointing{}, gerrors.NewPreconditionError("cannot derive field name from %s", ms)
	}

	return Pointing{Workdir: absWorkdir, Field: field, MS: rel}, nil
}

// Path returns the path to the dataset.
func (p Pointing) Path() string {
	if filepath.IsAbs(p.MS) {
		return p.MS
	}
	return filepath.Join(p.Workdir, p.MS)
}

// Join returns the path to the file in the working directory.
func (p Pointing) Join(elem ...string) string {
	return filepath.Join(append([]string{p.Workdir}, elem...)...)
}

// Derived returns a Pointing for a dataset derived from p.
//
// The new dataset is "<field>_<suffix>.<extension>", next to the dataset of p,
// where extension is everything after the first "." of the name of p's dataset.
//
// It does not touch files.
func (p Pointing) Derived(suffix string) Pointing {
	name := p.Field + "_" + suffix
	if _, ext, ok := strings.Cut(filepath.Base(p.MS), "."); ok {
		name += "." + ext
	}
	return Pointing{
		Workdir: p.Workdir,
		Field:   p.Field,
		MS:      filepath.Join(filepath.Dir(p.MS), name),
	}
}

// Exists reports whether the dataset of p is a directory.
func (p Pointing) Exists() error {
	return requireDir(p.Path())
}

func (p Pointing) String() string {
	return fmt.Sprintf("%s (%s)", p.Field, p.Path())
}

func requireDir(path string) error {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return gerrors.NewPreconditionError("%s does not exist", path)
		}
		return err
	}
	if !stat.IsDir() {
		return gerrors.NewPreconditionError("%s is not a directory", path)
	}
	return nil
}
