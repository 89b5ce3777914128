package procmanager_test

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shiv122/ecsexec/internal/procmanager"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a bytes.Buffer safe for concurrent use by a logger and a test.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// writeScript writes an executable shell script named name into a temp dir and
// returns the dir, suitable for use as a search path.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()

	dir := t.TempDir()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	return dir
}

type event struct {
	topic   string
	payload string
}

// recorder is a Publisher that records every event it receives.
type recorder struct {
	events []event
	mu     sync.Mutex
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 1)}
}

func (r *recorder) Publish(topic string, payload []byte) {
	r.mu.Lock()
	r.events = append(r.events, event{topic: topic, payload: string(payload)})
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]event(nil), r.events...)
}

// waitFor blocks until pred holds over the recorded events or fails the test.
func (r *recorder) waitFor(t *testing.T, what string, pred func([]event) bool) []event {
	t.Helper()

	deadline := time.After(5 * time.Second)

	for {
		events := r.snapshot()
		if pred(events) {
			return events
		}

		select {
		case <-r.notify:
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %s: got '%v'", what, events)
		}
	}
}

func countTopic(events []event, topic string) int {
	var n int

	for _, e := range events {
		if e.topic == topic {
			n++
		}
	}

	return n
}

func joinTopic(events []event, topic string) string {
	var b strings.Builder

	for _, e := range events {
		if e.topic == topic {
			b.WriteString(e.payload)
		}
	}

	return b.String()
}

func hasExit(id string) func([]event) bool {
	return func(events []event) bool {
		return countTopic(
			events,
			procmanager.Topic(procmanager.DefaultNamespace, procmanager.EventExit, id),
		) > 0
	}
}
