package miriad

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/glass-survey/glass-image/pkg/casa"
	"github.com/glass-survey/glass-image/pkg/sandbox"
)

// ConvertOptions are options of Convert.
type ConvertOptions struct {
	// OutputDir is where the measurement set is written. default: the current directory.
	OutputDir string

	// FieldOut places outputs in a subdirectory of OutputDir named after the field.
	FieldOut bool

	// FieldName is the name of the field.
	// When empty, it is the name of the miriad dataset up to its first ".".
	FieldName string

	// CleanUp removes intermediate miriad and UVFITS files.
	CleanUp bool
}

// FieldName derives the name of the field from a miriad dataset path.
func FieldName(vis string) string {
	name, _, _ := strings.Cut(filepath.Base(vis), ".")
	return name
}

// Destination returns the directory where Convert writes outputs for vis.
func (o ConvertOptions) Destination(vis string) string {
	dir := o.OutputDir
	if dir == "" {
		dir = "."
	}
	if o.FieldOut {
		field := o.FieldName
		if field == "" {
			field = FieldName(vis)
		}
		dir = filepath.Join(dir, field)
	}
	return dir
}

// Convert converts a miriad visibility dataset into a measurement set.
//
// It averages vis with uvaver, exports it as UVFITS, then imports it with casa.
//
// # Args
//
// - ctx: context.
//
// - mir: runner of miriad tasks.
//
// - importer: runner of casa tasks. Its working directory should be o.Destination(vis).
//
// - vis: path to a miriad visibility dataset.
//
// - o: options.
//
// - l: logger.
//
// # Returns
//
// - string: path to the measurement set, "<destination>/<base name of vis>.ms".
//
// - error: it wraps ErrPrecondition if vis is not a directory.
func Convert(ctx context.Context, mir sandbox.Runner, importer sandbox.Runner, vis string, o ConvertOptions, l *log.Logger) (string, error) {
	l = nonnilLogger(l)
	if err := requireDir(vis); err != nil {
		return "", err
	}

	dest, err := filepath.Abs(o.Destination(vis))
	if err != nil {
		return "", err
	}
	l.Printf("outputs are written to %s", dest)
	if err := os.MkdirAll(dest, os.FileMode(0o755)); err != nil {
		return "", err
	}

	name := filepath.Base(vis)
	averaged := filepath.Join(dest, name)
	uvfits := averaged + ".fits"
	ms := averaged + ".ms"

	l.Printf("averaging %s", vis)
	if err := run(ctx, mir, averaged, "uvaver", kv("vis", vis), kv("out", averaged)); err != nil {
		return "", err
	}

	l.Printf("exporting %s", uvfits)
	if err := run(ctx, mir, uvfits, "fits", kv("in", averaged), kv("out", uvfits), "op=uvout"); err != nil {
		return "", err
	}

	l.Printf("importing %s", ms)
	task := casa.ImportUVFITS(filepath.Base(uvfits), filepath.Base(ms))
	if err := run(ctx, importer, ms, task.Args()...); err != nil {
		return "", err
	}
	l.Printf("created %s", ms)

	if o.CleanUp {
		removeAll(l, averaged, uvfits)
	}
	return ms, nil
}
