// Package miriad converts visibilities and corrects images with the miriad package.
//
// Miriad tasks take "key=value" arguments. Miriad datasets are directories.
package miriad

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/logger"
	"github.com/glass-survey/glass-image/pkg/sandbox"
)

func kv(key string, value string) string {
	return key + "=" + value
}

// removeAll removes paths, logging what is removed. Missing paths are skipped.
func removeAll(l *log.Logger, paths ...string) []string {
	removed := []string{}
	for _, p := range paths {
		if _, err := os.Lstat(p); errors.Is(err, os.ErrNotExist) {
			l.Printf("%s does not exist. skipped.", p)
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			l.Printf("cannot remove %s: %v", p, err)
			continue
		}
		l.Printf("removed %s", p)
		removed = append(removed, p)
	}
	return removed
}

func requireDir(path string) error {
	stat, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return gerrors.NewPreconditionError("%s is not found", path)
		}
		return err
	}
	if !stat.IsDir() {
		return gerrors.NewPreconditionError("%s exists, but it is not a miriad dataset", path)
	}
	return nil
}

func requireFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return gerrors.NewPreconditionError("%s is not found", path)
		}
		return err
	}
	return nil
}

// stem returns path without its last extension.
func stem(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// run runs a miriad task. Its output should appear, or it is an error.
func run(ctx context.Context, mir sandbox.Runner, expected string, args ...string) error {
	if err := mir.Run(ctx, args...); err != nil {
		return err
	}
	if _, err := os.Stat(expected); err != nil {
		return fmt.Errorf("%s did not produce %s: %w", args[0], expected, err)
	}
	return nil
}

func nonnilLogger(l *log.Logger) *log.Logger {
	if l == nil {
		return logger.Null()
	}
	return l
}
