package procmanager

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shiv122/ecsexec/internal/procmanager/stream"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultDrainTimeout is how long the reaper waits for output to reach EOF
// after the process has exited before it closes the pipes itself.
const DefaultDrainTimeout = 2 * time.Second

// SessionConfig configures a SessionManager. Zero values use defaults.
type SessionConfig struct {
	Namespace    string
	SearchPath   string
	DrainTimeout time.Duration
	ChunkSize    int
}

// SessionManager runs long-lived interactive processes. Output is published
// as events; input is accepted through SendInput until the session is closed
// or the process exits.
type SessionManager struct {
	registry  *Registry
	publisher Publisher
	logger    *slog.Logger

	namespace    string
	searchPath   string
	drainTimeout time.Duration
	chunkSize    int
}

// NewSessionManager creates a SessionManager that tracks sessions in registry
// and publishes their events to publisher.
func NewSessionManager(
	registry *Registry,
	publisher Publisher,
	logger *slog.Logger,
	cfg SessionConfig,
) *SessionManager {
	m := &SessionManager{
		registry:     registry,
		publisher:    publisher,
		logger:       logger,
		namespace:    cfg.Namespace,
		searchPath:   cfg.SearchPath,
		drainTimeout: cfg.DrainTimeout,
		chunkSize:    cfg.ChunkSize,
	}

	if m.namespace == "" {
		m.namespace = DefaultNamespace
	}

	if m.drainTimeout <= 0 {
		m.drainTimeout = DefaultDrainTimeout
	}

	if m.chunkSize <= 0 {
		m.chunkSize = stream.DefaultChunkSize
	}

	return m
}

// Namespace returns the topic namespace used for session events.
func (m *SessionManager) Namespace() string {
	return m.namespace
}

// Start spawns command under id with all stdio piped. A session already
// running under id is killed, and its exit event published, before the new
// process is spawned.
func (m *SessionManager) Start(
	ctx context.Context,
	id string,
	command string,
	args []string,
) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	if prior := m.registry.Remove(id); prior != nil {
		m.logger.Info("superseding session", "id", id, "pid", prior.Process.Pid())

		if err := m.retire(ctx, prior); err != nil {
			return fmt.Errorf("retire previous session: %w", err)
		}
	}

	p, err := NewProcess(id, command, args, m.searchPath, StdioPiped)
	if err != nil {
		return err
	}

	if err := p.Start(); err != nil {
		return err
	}

	entry := newEntry(id, p, stream.NewQueue())

	if prior := m.registry.Insert(entry); prior != nil {
		// A concurrent Start for the same id won the race to the registry
		// after our own eviction above.
		if err := m.retire(ctx, prior); err != nil {
			m.logger.Warn("retire racing session", "id", id, "err", err)
		}
	}

	var pumps sync.WaitGroup

	pumps.Go(func() {
		m.pumpOutput(id, p.Stdout(), Topic(m.namespace, EventData, id))
	})

	pumps.Go(func() {
		m.pumpOutput(id, p.Stderr(), Topic(m.namespace, EventError, id))
	})

	go m.pumpInput(entry)
	go m.reap(entry, &pumps)

	m.logger.Info("session started", "id", id, "tool", command, "pid", p.Pid())

	return nil
}

// SendInput enqueues data for delivery to the session's stdin. It never blocks
// on the process.
func (m *SessionManager) SendInput(id string, data []byte) error {
	q, ok := m.registry.Input(id)
	if !ok {
		return ErrSessionNotFound
	}

	if err := q.Send(data); err != nil {
		return &IOError{Op: "send input", Err: err}
	}

	return nil
}

// Close kills the session's process. Closing an unknown session is a no-op.
// The exit event is still published by the session's reaper.
func (m *SessionManager) Close(id string) error {
	e := m.registry.Remove(id)
	if e == nil {
		return nil
	}

	dropped := e.closeInput()

	if err := e.Process.Kill(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	m.logger.Info("session closed", "id", id, "dropped_input", dropped)

	return nil
}

// Sessions returns the ids of the sessions currently registered.
func (m *SessionManager) Sessions() []string {
	return m.registry.IDs()
}

// Shutdown makes a 'best effort' attempt to kill every session and waits,
// until ctx is done, for their exit events to be published.
func (m *SessionManager) Shutdown(ctx context.Context) {
	entries := m.registry.Drain()

	var wg sync.WaitGroup

	for _, e := range entries {
		wg.Go(func() {
			if err := m.retire(ctx, e); err != nil {
				m.logger.Warn("shutdown session", "id", e.ID, "err", err)
			}
		})
	}

	wg.Wait()
}

// retire kills a session the caller has already removed from the registry and
// waits for its reaper to finish.
func (m *SessionManager) retire(ctx context.Context, e *Entry) error {
	e.closeInput()

	if err := e.Process.Kill(); err != nil {
		return err
	}

	select {
	case <-e.reaped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pumpOutput publishes everything read from r on topic. Invalid UTF-8 is
// replaced with U+FFFD; a rune split across reads is held back until complete.
func (m *SessionManager) pumpOutput(id string, r io.Reader, topic string) {
	decoded := transform.NewReader(r, unicode.UTF8.NewDecoder())

	err := stream.Pump(decoded, m.chunkSize, func(chunk []byte) {
		m.publisher.Publish(topic, chunk)
	})
	if err != nil {
		m.logger.Debug("output stream ended", "id", id, "topic", topic, "err", err)
	}
}

func (m *SessionManager) pumpInput(e *Entry) {
	defer e.Process.Stdin().Close()

	if _, err := e.Input.WriteTo(e.Process.Stdin()); err != nil {
		m.logger.Debug("stdin write failed", "id", e.ID, "err", err)

		// Further input can't be delivered.
		e.Input.Close()
	}
}

// reap waits for the process to exit and its output to drain, retires the
// entry if nobody else has, and publishes the session's only exit event.
func (m *SessionManager) reap(e *Entry, pumps *sync.WaitGroup) {
	defer close(e.reaped)

	p := e.Process

	<-p.Done()

	e.Input.Close()

	drained := make(chan struct{})

	go func() {
		pumps.Wait()
		close(drained)
	}()

	timer := time.NewTimer(m.drainTimeout)
	defer timer.Stop()

	select {
	case <-drained:
	case <-timer.C:
		// A grandchild is still holding the pipes open.
		m.logger.Warn("output still open after exit, closing", "id", e.ID)
		p.closeOutput()
		<-drained
	}

	p.closeOutput()

	m.registry.RemoveIf(e.ID, e)

	m.publisher.Publish(Topic(m.namespace, EventExit, e.ID), []byte{})

	m.logger.Info(
		"session exited",
		"id", e.ID,
		"exit_code", p.ExitCode(),
		"interrupted", p.Interrupted(),
	)
}
