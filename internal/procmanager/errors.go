package procmanager

import (
	"errors"
	"fmt"
	"os/exec"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTimeout         = errors.New("command timed out")
	ErrCancelled       = errors.New("process was cancelled")
)

// ToolNotFoundError is returned when the executable for a command cannot be
// located on the search path.
type ToolNotFoundError struct {
	Tool string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf(
		"command '%s' not found, please ensure it is installed and in your PATH",
		e.Tool,
	)
}

func (e *ToolNotFoundError) Unwrap() error {
	return exec.ErrNotFound
}

// SpawnError is returned when the executable was found but the process could
// not be started.
type SpawnError struct {
	Tool string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to execute '%s': %v", e.Tool, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// CommandFailedError is returned when a one-shot invocation exits with a
// non-zero status. Reason is the classified, human-readable message.
type CommandFailedError struct {
	Reason   string
	Stderr   string
	ExitCode int
}

func (e *CommandFailedError) Error() string {
	return e.Reason
}

// MalformedOutputError is returned when a command succeeded but its output
// could not be parsed.
type MalformedOutputError struct {
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("failed to parse JSON: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// IOError is returned when input could not be delivered to a session.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// InvalidStateError is returned when attempting an invalid Process state
// transition.
type InvalidStateError struct {
	from ProcessState
	to   ProcessState
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot go from %s to %s", e.from, e.to)
}

func NewInvalidStateError(from, to ProcessState) InvalidStateError {
	return InvalidStateError{from, to}
}
