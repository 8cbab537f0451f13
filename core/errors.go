package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument is returned when an item added to a pool does not satisfy the Run contract.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotRunning is returned when a running item is added to a pool that has not started
	// and is not configured to run instantly.
	ErrNotRunning = errors.New("pool is not running")

	// ErrInvalidEventName is returned when listening for or dispatching an event kind
	// outside an entity's allow-list.
	ErrInvalidEventName = errors.New("invalid event name")
)

// ProcessFailedError is the failure captured by a ProcessRun whose process
// did not exit successfully.
type ProcessFailedError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string

	// Err is the error returned by exec.Cmd.Wait, usually an *exec.ExitError.
	Err error
}

func (e *ProcessFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "the command %q failed.\n\nExit Code: %d", e.Command, e.ExitCode)
	if out := strings.TrimSpace(e.Stdout); out != "" {
		fmt.Fprintf(&b, "\n\nOutput:\n================\n%s", out)
	}
	if out := strings.TrimSpace(e.Stderr); out != "" {
		fmt.Fprintf(&b, "\n\nError Output:\n================\n%s", out)
	}
	return b.String()
}

func (e *ProcessFailedError) Unwrap() error { return e.Err }

// PanicError is the failure captured by a CallbackRun whose callback panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("callback panicked: %v", e.Value) }

// Unwrap exposes the panic value when the callback panicked with an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
