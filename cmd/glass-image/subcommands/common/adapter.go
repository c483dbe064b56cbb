package common

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/glass-survey/glass-image/pkg/logger"
	"github.com/youta-t/flarc"
)

type TaskWithCommonFlag[T any] func(
	ctx context.Context,
	logger *log.Logger,
	commonFlag CommonFlags,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTaskWithCommonFlag[T any](task TaskWithCommonFlag[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		var commonFlag CommonFlags
		found := false
		newpos := make([]any, 0, len(pos))
		for _, p := range pos {
			switch v := p.(type) {
			case CommonFlags:
				found = true
				commonFlag = v
			default:
				newpos = append(newpos, p)
			}
		}
		if !found {
			return errors.New("programming error: common flags not found")
		}

		l := log.New(cl.Stderr(), "", log.LstdFlags)
		l.SetPrefix(fmt.Sprintf("[%s] ", cl.Fullname()))

		return task(ctx, l, commonFlag, cl, newpos)
	}
}

// Task is a task of subcommands which run external tools.
type Task[T any] func(
	ctx context.Context,
	logger *log.Logger,
	tools Tools,
	commonFlag CommonFlags,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTask[T any](task Task[T]) flarc.Task[T] {
	return NewTaskWithCommonFlag(func(
		ctx context.Context,
		l *log.Logger,
		commonFlag CommonFlags,
		cl flarc.Commandline[T],
		params []any,
	) error {
		switch commonFlag.Sandbox {
		case SandboxSingularity, SandboxHost:
		default:
			return fmt.Errorf(
				"%w: --sandbox should be %s or %s: %q",
				flarc.ErrUsage, SandboxSingularity, SandboxHost, commonFlag.Sandbox,
			)
		}

		tools := NewTools(commonFlag, cl.Stderr(), logger.Debug(l, commonFlag.Verbose))
		return task(ctx, l, tools, commonFlag, cl, params)
	})
}
