package procmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultTimeout is the wall-clock limit for a one-shot invocation.
const DefaultTimeout = 30 * time.Second

// InvocationResult is the captured outcome of a one-shot invocation.
type InvocationResult struct {
	Success  bool
	Stdout   []byte
	Stderr   []byte
	ExitCode *int
}

// Runner executes one-shot commands, capturing their output and classifying
// failures. A Runner holds no per-invocation state and is safe for concurrent
// use.
type Runner struct {
	logger     *slog.Logger
	timeout    time.Duration
	searchPath string
}

// NewRunner creates a Runner. A zero timeout uses DefaultTimeout.
func NewRunner(logger *slog.Logger, timeout time.Duration, searchPath string) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Runner{logger: logger, timeout: timeout, searchPath: searchPath}
}

// Invoke runs command with args and waits for it to exit, the timeout to
// expire, or ctx to be cancelled. On timeout or cancellation the process group
// is killed.
//
// A non-zero exit returns both the result and a *CommandFailedError.
func (r *Runner) Invoke(
	ctx context.Context,
	command string,
	args []string,
) (*InvocationResult, error) {
	commandLine := strings.TrimSpace(command + " " + strings.Join(args, " "))

	r.logger.Debug("executing command", "command", commandLine)

	p, err := NewProcess("", command, args, r.searchPath, StdioCapture)
	if err != nil {
		return nil, err
	}

	if err := p.Start(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case <-p.Done():
	case <-timer.C:
		r.kill(p, commandLine)
		r.logger.Debug("command timed out", "command", commandLine, "timeout", r.timeout)

		return nil, fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
	case <-ctx.Done():
		r.kill(p, commandLine)

		return nil, ctx.Err()
	}

	stdout, stderr := p.Output()
	code := p.ExitCode()

	result := &InvocationResult{
		Success: p.waitErr == nil && code == 0,
		Stdout:  stdout,
		Stderr:  stderr,
	}

	if code >= 0 {
		result.ExitCode = &code
	}

	r.logger.Debug(
		"command exited",
		"command", commandLine,
		"exit_code", code,
		"stdout_bytes", len(stdout),
		"stderr_bytes", len(stderr),
	)

	if !result.Success {
		reason := ClassifyStderr(string(stderr))
		if reason == "" {
			reason = fmt.Sprintf("command failed with exit code %d", code)
		}

		r.logger.Debug("command failed", "command", commandLine, "stderr", string(stderr))

		return result, &CommandFailedError{
			Reason:   reason,
			Stderr:   string(stderr),
			ExitCode: code,
		}
	}

	return result, nil
}

// InvokeJSON runs Invoke and decodes stdout as JSON into v. A successful
// process with unparseable output returns a *MalformedOutputError.
func (r *Runner) InvokeJSON(
	ctx context.Context,
	command string,
	args []string,
	v any,
) error {
	result, err := r.Invoke(ctx, command, args)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(result.Stdout, v); err != nil {
		r.logger.Debug("json parse error", "command", command, "err", err)
		return &MalformedOutputError{Err: err}
	}

	return nil
}

func (r *Runner) kill(p *Process, commandLine string) {
	if err := p.Kill(); err != nil {
		r.logger.Warn("failed to kill command", "command", commandLine, "err", err)
	}

	<-p.Done()
}
