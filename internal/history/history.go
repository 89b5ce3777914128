// Package history persists the most recently used exec targets.
//
// Entries are stored newest first in a YAML file. Every access takes a lock
// on a sibling lock file, so several processes can share the same history.
package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxItems = 10
	defaultShell    = "/bin/bash"

	lockRetryDelay = 50 * time.Millisecond
)

var ErrInvalidEntry = errors.New("invalid history entry")

// Entry is one remembered exec target.
type Entry struct {
	ID        string    `yaml:"id"`
	Profile   string    `yaml:"profile"`
	Region    string    `yaml:"region"`
	Cluster   string    `yaml:"cluster"`
	Task      string    `yaml:"task"`
	Container string    `yaml:"container"`
	Shell     string    `yaml:"shell,omitempty"`
	Timestamp time.Time `yaml:"timestamp"`
}

// EntryID returns the identity of e. Two entries with the same id describe
// the same target and are never both stored.
func EntryID(e Entry) string {
	shell := e.Shell
	if shell == "" {
		shell = defaultShell
	}

	return strings.Join(
		[]string{e.Profile, e.Region, e.Cluster, e.Task, e.Container, shell},
		"-",
	)
}

func (e Entry) validate() error {
	var missing []string

	for _, f := range []struct {
		name  string
		value string
	}{
		{"profile", e.Profile},
		{"region", e.Region},
		{"cluster", e.Cluster},
		{"task", e.Task},
		{"container", e.Container},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidEntry, strings.Join(missing, ", "))
	}

	return nil
}

type document struct {
	Entries []Entry `yaml:"entries"`
}

// Store is a history file. It holds no entries in memory; every call reads
// the file afresh.
type Store struct {
	path     string
	maxItems int

	// lock guards the file across processes. mu serialises callers within
	// this process, which flock.Flock does not do on its own.
	lock *flock.Flock
	mu   sync.Mutex
}

// New returns a Store backed by path. A non-positive maxItems uses
// DefaultMaxItems.
func New(path string, maxItems int) *Store {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}

	return &Store{
		path:     path,
		maxItems: maxItems,
		lock:     flock.New(path + ".lock"),
	}
}

// Path returns the location of the history file.
func (s *Store) Path() string {
	return s.path
}

// List returns the stored entries, newest first. Stored entries missing a
// required field are skipped.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lock.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return nil, fmt.Errorf("acquire history lock: %w", err)
	}
	defer s.lock.Unlock()

	return s.load()
}

// Add validates e, stamps it with its id and the current time, and stores it
// as the newest entry. An existing entry for the same target is replaced, and
// the oldest entries beyond the limit are dropped.
func (s *Store) Add(ctx context.Context, e Entry) (Entry, error) {
	if err := e.validate(); err != nil {
		return Entry{}, err
	}

	e.ID = EntryID(e)
	e.Timestamp = time.Now().UTC()

	err := s.update(ctx, func(entries []Entry) []Entry {
		entries = slices.DeleteFunc(entries, func(x Entry) bool {
			return x.ID == e.ID
		})

		entries = slices.Insert(entries, 0, e)

		if len(entries) > s.maxItems {
			entries = entries[:s.maxItems]
		}

		return entries
	})
	if err != nil {
		return Entry{}, err
	}

	return e, nil
}

// Delete removes the entry with the given id. It reports whether an entry
// was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool

	err := s.update(ctx, func(entries []Entry) []Entry {
		before := len(entries)
		entries = slices.DeleteFunc(entries, func(x Entry) bool {
			return x.ID == id
		})
		deleted = len(entries) < before

		return entries
	})

	return deleted, err
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	return s.update(ctx, func([]Entry) []Entry { return nil })
}

func (s *Store) update(ctx context.Context, fn func([]Entry) []Entry) error {
	if err := s.ensureDir(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("acquire history lock: %w", err)
	}
	defer s.lock.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	return s.save(fn(entries))
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	return nil
}

func (s *Store) load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read history: %w", err)
	}

	var doc document

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	return slices.DeleteFunc(doc.Entries, func(e Entry) bool {
		return e.ID == "" || e.Timestamp.IsZero() || e.validate() != nil
	}), nil
}

// save writes entries to a temp file and renames it over the history file,
// so readers never see a partial write.
func (s *Store) save(entries []Entry) error {
	data, err := yaml.Marshal(document{Entries: entries})
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp history: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp history: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}

	return nil
}
