// Errors shared by the imaging pipeline.
//
// Use with errors.Is / errors.As:
//
//	if errors.Is(err, gerrors.ErrPrecondition) { ... }
//
//	var tf *gerrors.ToolFailure
//	if errors.As(err, &tf) { ... }
//
// A calibration step which yields no solution table is NOT an error.
// It is reported as a boolean outcome by the calibration step.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is the cause of errors on malformed configuration file content.
//
// It aborts the run.
var ErrConfiguration = errors.New("configuration error")

// ErrPrecondition is the cause of errors on missing inputs or outputs which already exist.
//
// It aborts the run and is never retried.
var ErrPrecondition = errors.New("precondition failed")

func NewConfigurationError(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, a...))
}

func NewPreconditionError(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, a...))
}

// ToolFailure is an error of an external process exited with non-zero status.
type ToolFailure struct {
	// Command is the argument list which has been invoked.
	Command []string

	// ExitCode is the exit status of the process.
	//
	// -1 when the process was terminated by a signal.
	ExitCode int
}

func (tf *ToolFailure) Error() string {
	name := "(empty command)"
	if 0 < len(tf.Command) {
		name = tf.Command[0]
	}
	return fmt.Sprintf(
		"external tool failure: %s exited with status %d (command: %s)",
		name, tf.ExitCode, strings.Join(tf.Command, " "),
	)
}

// IsToolFailure reports whether err is (or wraps) a *ToolFailure.
func IsToolFailure(err error) bool {
	var tf *ToolFailure
	return errors.As(err, &tf)
}
