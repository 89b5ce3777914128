package procmanager

import (
	"context"
	"fmt"
	"log/slog"
)

// Cancellable runs a long-lived command that one caller waits on while any
// other caller may cancel it by id, e.g. an interactive SSO login.
//
// The entry stays registered for the whole wait, so a Cancel at any point
// before the process exits kills it and the waiter returns ErrCancelled.
type Cancellable struct {
	registry   *Registry
	logger     *slog.Logger
	searchPath string
}

// NewCancellable creates a Cancellable that tracks processes in registry.
func NewCancellable(registry *Registry, logger *slog.Logger, searchPath string) *Cancellable {
	return &Cancellable{
		registry:   registry,
		logger:     logger,
		searchPath: searchPath,
	}
}

// Run starts command under id and blocks until it exits. A process already
// running under id is killed first. Output is captured in the returned status
// and logged line by line as it arrives.
//
// If the process is cancelled or superseded before it exits, Run returns
// ErrCancelled. If ctx is done first, the process is killed and ctx.Err() is
// returned.
func (c *Cancellable) Run(
	ctx context.Context,
	id string,
	command string,
	args []string,
) (*ProcessStatus, error) {
	if id == "" {
		return nil, fmt.Errorf("id cannot be empty")
	}

	if prior := c.registry.Remove(id); prior != nil {
		c.logger.Info(
			"superseding process",
			"id", id,
			"tool", prior.Process.Program(),
			"pid", prior.Process.Pid(),
		)
		c.kill(prior)
	}

	p, err := NewProcess(id, command, args, c.searchPath, StdioCapture)
	if err != nil {
		return nil, err
	}

	stdout := newLogWriter(c.logger, id, "stdout")
	stderr := newLogWriter(c.logger, id, "stderr")
	p.CopyOutput(stdout, stderr)

	if err := p.Start(); err != nil {
		return nil, err
	}

	entry := newEntry(id, p, nil)
	defer close(entry.reaped)

	if prior := c.registry.Insert(entry); prior != nil {
		c.kill(prior)
	}

	c.logger.Debug("waiting on process", "id", id, "tool", command, "pid", p.Pid())

	select {
	case <-p.Done():
	case <-ctx.Done():
		if c.registry.RemoveIf(id, entry) {
			c.kill(entry)
		}

		<-p.Done()

		return nil, ctx.Err()
	}

	stdout.flush()
	stderr.flush()

	// Losing the entry means someone else took ownership to kill it.
	if !c.registry.RemoveIf(id, entry) {
		c.logger.Info("process cancelled", "id", id)
		return nil, ErrCancelled
	}

	status := p.Status()

	c.logger.Debug("process exited", "id", id, "exit_code", status.ExitCode)

	return status, nil
}

// Cancel kills the process running under id. Cancelling an unknown id is a
// no-op.
func (c *Cancellable) Cancel(id string) error {
	e := c.registry.Remove(id)
	if e == nil {
		return nil
	}

	if err := e.Process.Kill(); err != nil {
		return fmt.Errorf("cancel process: %w", err)
	}

	return nil
}

// CancelAll kills every registered process.
func (c *Cancellable) CancelAll() {
	for _, e := range c.registry.Drain() {
		c.kill(e)
	}
}

// Running reports whether a process is registered under id.
func (c *Cancellable) Running(id string) bool {
	return c.registry.Has(id)
}

func (c *Cancellable) kill(e *Entry) {
	if err := e.Process.Kill(); err != nil {
		c.logger.Warn(
			"failed to kill process",
			"id", e.ID,
			"tool", e.Process.Program(),
			"err", err,
		)
	}
}
