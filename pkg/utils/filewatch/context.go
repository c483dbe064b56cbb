package filewatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrNotSettled is the cause of errors when files keep changing until timeout.
var ErrNotSettled = errors.New("files have not settled")

// UntilModifyContext returns a context that is canceled
// when one of target files is modified (= written, created, removed, or renamed).
//
// # Args
//
// - ctx: context.Context
//
// - targetFilePath ...string: file pathes to be watched.
// When any of the files is modified, the context is canceled.
//
// # Returns
//
// - context.Context: context that is canceled when one of target files is modified.
//
// - func(): cancel function.
//
// - error: error caused when it fails to start watching files.
//
// If error is not nil, both of the the context and the cancel function are nil.
func UntilModifyContext(ctx context.Context, targetFilePath ...string) (context.Context, func(), error) {
	cctx, cancel := context.WithCancelCause(ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		cancel(err)
		return nil, nil, err
	}

	go func() {
		defer w.Close()

		for {
			select {
			case <-cctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				cancel(fmt.Errorf("%s is updated (%s)", event.Name, event.Op.String()))
			}
		}
	}()

	for _, f := range targetFilePath {
		if err = w.Add(f); err != nil {
			cancel(err)
			return nil, nil, err
		}
	}
	return cctx, func() { cancel(nil) }, nil
}

// WaitStable blocks until none of files is modified for a quiet period.
//
// External tools may keep writing (or holding) their products for a while after exit.
// Call this before moving or deleting such files.
//
// # Args
//
// - ctx: context.Context
//
// - quiet: length of the period without modification.
//
// - timeout: upper bound of waiting. If it is not positive, it waits as long as ctx is alive.
//
// - files: files to be watched. They should exist.
//
// # Returns
//
// - error: nil when files have settled.
// When timeout has been reached, it is an error wrapping ErrNotSettled.
// When ctx is done, it is ctx.Err().
func WaitStable(ctx context.Context, quiet time.Duration, timeout time.Duration, files ...string) error {
	if len(files) == 0 || quiet <= 0 {
		return nil
	}

	tctx := ctx
	if 0 < timeout {
		c, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		tctx = c
	}

	for {
		wctx, stop, err := UntilModifyContext(tctx, files...)
		if err != nil {
			return err
		}

		timer := time.NewTimer(quiet)
		select {
		case <-timer.C:
			stop()
			return nil
		case <-wctx.Done():
			timer.Stop()
			cause := context.Cause(wctx)
			stop()

			if err := ctx.Err(); err != nil {
				return err
			}
			if err := tctx.Err(); err != nil {
				return fmt.Errorf("%w: %s", ErrNotSettled, cause)
			}
		}
	}
}
