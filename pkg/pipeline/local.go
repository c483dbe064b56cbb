package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/glass-survey/glass-image/pkg/domain/pointing"
	"golang.org/x/sync/errgroup"
)

// Local runs pipelines in this process.
type Local struct {
	// Workers is the number of pipelines running at once. Non-positive means 1.
	Workers int

	Logger *log.Logger
}

var _ Mapper = &Local{}

func (lm *Local) Map(ctx context.Context, datasets []pointing.Pointing, task Task) error {
	if err := distinct(datasets); err != nil {
		return err
	}

	workers := lm.Workers
	if workers < 1 {
		workers = 1
	}

	errs := make([]error, len(datasets))
	eg := new(errgroup.Group)
	eg.SetLimit(workers)
	for i, p := range datasets {
		l := loggerFor(lm.Logger, p)
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("%s: %w", p, err)
				return nil
			}
			l.Printf("pipeline started: %s", p)
			if err := task.Run(ctx, p, l); err != nil {
				l.Printf("pipeline failed: %s", err)
				errs[i] = fmt.Errorf("%s: %w", p, err)
				return nil
			}
			l.Printf("pipeline done")
			return nil
		})
	}
	eg.Wait()

	return errors.Join(errs...)
}
