// Package sandbox runs external tools, streaming their output into a logger.
package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"path/filepath"
	"time"

	gerrors "github.com/glass-survey/glass-image/pkg/errors"
	"github.com/glass-survey/glass-image/pkg/logger"
	"github.com/glass-survey/glass-image/pkg/utils/shell"
)

// Runner runs a command to its end.
type Runner interface {
	// Run runs args and blocks until the process exits.
	//
	// Each line of stdout and stderr is written to the logger as it is produced.
	//
	// # Returns
	//
	// - error: *ToolFailure if the process exits with non-zero status.
	// If ctx is done before the process exits, the process is killed and ctx.Err() is returned.
	Run(ctx context.Context, args ...string) error
}

// Singularity runs commands in a singularity container.
//
// Processes can see only Root of the host file system, as their working directory.
type Singularity struct {
	// Binary is the singularity executable. default: "singularity"
	Binary string

	// Image is the path to the container image (.sif).
	Image string

	// Root is the host directory bound into the container.
	Root string

	Logger *log.Logger
}

// Argv returns the argument list for the host, running args in the container.
func (s *Singularity) Argv(args ...string) []string {
	bin := s.Binary
	if bin == "" {
		bin = "singularity"
	}
	argv := []string{
		bin, "exec",
		"--cleanenv",
		"--contain",
		"--bind", s.Root,
		"--pwd", s.Root,
		s.Image,
	}
	return append(argv, args...)
}

func (s *Singularity) Run(ctx context.Context, args ...string) error {
	if len(args) == 0 {
		return errors.New("sandbox: empty command")
	}
	return run(ctx, s.Logger, s.Root, nil, s.Argv(args...), args)
}

// Host runs commands directly on the host, in Dir.
type Host struct {
	Dir string

	// Env is the environment of processes, in the form of "KEY=value".
	// When nil, the environment of this process is inherited.
	Env []string

	Logger *log.Logger
}

func (h *Host) Run(ctx context.Context, args ...string) error {
	if len(args) == 0 {
		return errors.New("sandbox: empty command")
	}
	return run(ctx, h.Logger, h.Dir, h.Env, args, args)
}

// run starts argv and streams its output.
//
// reported is the command recorded in *ToolFailure.
func run(ctx context.Context, l *log.Logger, dir string, env []string, argv []string, reported []string) error {
	if l == nil {
		l = logger.Null()
	}
	tl := logger.By(
		l, logger.Copied(),
		logger.WithPrefix(l.Prefix()+"["+filepath.Base(reported[0])+"] "),
	)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	// orphaned grandchildren may hold the output open after kill.
	cmd.WaitDelay = 10 * time.Second

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			tl.Println(scanner.Text())
		}
		// keep draining not to block the process on too long line.
		io.Copy(io.Discard, pr)
	}()

	l.Printf("run: %s", shell.Quote(argv))
	err := cmd.Run()
	pw.Close()
	<-done

	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%s: %w", reported[0], cerr)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		tf := &gerrors.ToolFailure{Command: reported, ExitCode: ee.ExitCode()}
		l.Printf("%s", tf)
		return tf
	}
	return err
}
