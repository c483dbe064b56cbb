package loop

import (
	"context"
	"fmt"
	"time"
)

// Next tells Start what to do after a task.
type Next struct {
	// if not nil, breaks with error
	err error

	// if quit == true and err == nil, breaks without error
	quit bool

	// otherwise, continue loop with interval.
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}

	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// Continue the loop after sleeping interval.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// Break the loop.
//
// If err is not nil, Start returns it.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task is a step of a loop.
//
// It receives a (sub-)context and the value returned by the last step,
// and returns a new value and what to do next.
type Task[T any] func(context.Context, T) (T, Next)

// Start runs task in loop.
//
// The task is called as task(ctx, init) at first,
// then task(ctx, <the value returned last>) while it returns Continue.
// Zero value (Next{}) equals Continue(0), that is, "go next ASAP!".
//
// # Example
//
// Iterate rounds 0..4, carrying the dataset forward:
//
//	type state struct {
//		round int
//		ms    string
//	}
//
//	last, err := loop.Start(ctx, state{ms: "SB1.ms"}, func(ctx context.Context, s state) (state, loop.Next) {
//		next, err := runRound(ctx, s.round, s.ms)
//		if err != nil {
//			return s, loop.Break(err)
//		}
//		if s.round+1 == 5 {
//			return state{round: s.round, ms: next}, loop.Break(nil)
//		}
//		return state{round: s.round + 1, ms: next}, loop.Continue(0)
//	})
//
// # Args
//
// - ctx : context. When this context get be Done, loop breaks with ctx.Err().
//
// - init : the value passed to the first call of task.
//
// - task : task receiving (context, last value), then return (new value, Continue() or Break()).
//
// - options: options for loop.
//
// # Returns
//
// - T: T task returns at last.
// This value is always returned wheather or not it returns non-nil error together.
//
// - error: error in Break(error). It is nil when loop breaks with Break(nil).
func Start[T any](ctx context.Context, init T, task Task[T], options ...LoopOption) (T, error) {
	select {
	case <-ctx.Done():
		return init, ctx.Err()
	default:
	}

	value := init
	for {
		lc := &loopConfig{ctx: ctx}
		for _, opt := range options {
			lc = opt(lc)
		}

		v, n := func() (T, Next) {
			if lc.deferred != nil {
				defer lc.deferred()
			}
			return task(lc.ctx, value)
		}()

		if n.err != nil {
			return v, n.err
		} else if n.quit {
			return v, nil
		}
		value = v

		timer := time.NewTimer(n.interval)
		select {
		case <-ctx.Done():
			// shutting down is priority. it should come first, and checking timer later.
			timer.Stop()
			return value, ctx.Err()
		case <-timer.C:
		}
	}
}

type loopConfig struct {
	ctx      context.Context
	deferred func()
}

type LoopOption func(*loopConfig) *loopConfig

// WithTimeout sets timeout per task.
//
// This timeout is set on context.Context passed to task.
func WithTimeout(d time.Duration) LoopOption {
	return func(lc *loopConfig) *loopConfig {
		ctx, cancel := context.WithTimeout(lc.ctx, d)
		return &loopConfig{
			ctx: ctx,
			deferred: func() {
				if lc.deferred != nil {
					defer lc.deferred()
				}
				cancel()
			},
		}
	}
}
