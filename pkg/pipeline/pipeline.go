// Package pipeline maps independent dataset pipelines onto workers.
//
// Each pipeline owns its working directory exclusively.
// Mappers reject dataset lists where two datasets share a working directory.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/glass-survey/glass-image/pkg/domain/pointing"
	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/logger"
)

// Task is a pipeline processing one dataset.
type Task interface {
	// Run processes the dataset in this process.
	Run(ctx context.Context, p pointing.Pointing, l *log.Logger) error

	// Args returns command line arguments of glass-image
	// which process the dataset in a container.
	Args(p pointing.Pointing) []string
}

type Mapper interface {
	// Map runs task for each dataset.
	//
	// A failure of a pipeline does not stop others.
	//
	// # Returns
	//
	// - error: joined errors of failed pipelines, or nil when all succeeded.
	// It wraps ErrPrecondition when datasets share a working directory,
	// and then no pipelines are started.
	Map(ctx context.Context, datasets []pointing.Pointing, task Task) error
}

func distinct(datasets []pointing.Pointing) error {
	seen := map[string]pointing.Pointing{}
	for _, p := range datasets {
		wd, err := filepath.Abs(p.Workdir)
		if err != nil {
			return err
		}
		if other, ok := seen[wd]; ok {
			return gerrors.NewPreconditionError(
				"datasets %s and %s share the working directory %s", other, p, wd,
			)
		}
		seen[wd] = p
	}
	return nil
}

// loggerFor derives the logger of the pipeline for p, prefixed with its field name.
func loggerFor(l *log.Logger, p pointing.Pointing) *log.Logger {
	if l == nil {
		l = logger.Null()
	}
	return logger.By(l, logger.Copied(), logger.WithPrefix(fmt.Sprintf("%s[%s] ", l.Prefix(), p.Field)))
}
