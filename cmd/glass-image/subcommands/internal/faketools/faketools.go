// Package faketools provides common.Tools running fake functions in place of external tools.
package faketools

import (
	"context"
	"log"
	"sync"

	"github.com/glass-survey/glass-image/cmd/glass-image/subcommands/common"
	"github.com/glass-survey/glass-image/pkg/sandbox"
)

// Runner is a sandbox.Runner calling a function.
//
// Each call is recorded with its root directory.
type Runner struct {
	Root string
	Func func(ctx context.Context, root string, args ...string) error

	mu    *sync.Mutex
	calls *[][]string
}

var _ sandbox.Runner = Runner{}

func (r Runner) Run(ctx context.Context, args ...string) error {
	r.mu.Lock()
	*r.calls = append(*r.calls, args)
	r.mu.Unlock()
	if r.Func == nil {
		return nil
	}
	return r.Func(ctx, r.Root, args...)
}

type Tools struct {
	WSCleanFunc func(ctx context.Context, root string, args ...string) error
	CASAFunc    func(ctx context.Context, root string, args ...string) error
	HostFunc    func(ctx context.Context, root string, args ...string) error

	// ImageFunc resolves images. When nil, images are resolved as they are.
	ImageFunc func(ctx context.Context, image string) (string, error)

	// Err is returned on making container runners, when not nil.
	Err error

	mu    sync.Mutex
	calls map[string]*[][]string
}

var _ common.Tools = &Tools{}

func (t *Tools) runner(kind string, root string, f func(context.Context, string, ...string) error) Runner {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.calls == nil {
		t.calls = map[string]*[][]string{}
	}
	calls, ok := t.calls[kind]
	if !ok {
		calls = &[][]string{}
		t.calls[kind] = calls
	}
	return Runner{Root: root, Func: f, mu: &t.mu, calls: calls}
}

func (t *Tools) WSClean(_ context.Context, root string, _ *log.Logger) (sandbox.Runner, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	return t.runner("wsclean", root, t.WSCleanFunc), nil
}

func (t *Tools) CASA(_ context.Context, root string, _ *log.Logger) (sandbox.Runner, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	return t.runner("casa", root, t.CASAFunc), nil
}

func (t *Tools) Host(root string, _ *log.Logger) sandbox.Runner {
	return t.runner("host", root, t.HostFunc)
}

func (t *Tools) Image(ctx context.Context, image string, _ *log.Logger) (string, error) {
	if t.Err != nil {
		return "", t.Err
	}
	if t.ImageFunc == nil {
		return image, nil
	}
	return t.ImageFunc(ctx, image)
}

// Calls returns argument lists given to runners of kind ("wsclean", "casa" or "host").
func (t *Tools) Calls(kind string) [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	calls, ok := t.calls[kind]
	if !ok {
		return nil
	}
	ret := make([][]string, len(*calls))
	copy(ret, *calls)
	return ret
}
