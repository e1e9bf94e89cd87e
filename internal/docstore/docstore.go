// Package docstore persists named JSON documents under a data root, one file
// per concern, with per-path FIFO write locking. There are no cross-document
// transactions: a crash between two writes may leave documents mutually
// inconsistent, which callers accept.
package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Paths names the document files managed by a Store.
type Paths struct {
	Vault     string
	Posts     string
	Queue     string
	Settings  string
	Events    string
	Analytics string
}

// Store reads and writes JSON documents. Writers to the same path are
// serialized in submission order; writers to different paths proceed
// independently.
type Store struct {
	root  string
	paths Paths

	mu    sync.Mutex
	tails map[string]chan struct{}
}

// Open creates (if needed) the data root and its subdirectories and returns
// a Store rooted there.
func Open(root string) (*Store, error) {
	for _, dir := range []string{"keys", "posts", "queue", "settings", "logs", "analytics", "assets"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
		}
	}
	return &Store{
		root: root,
		paths: Paths{
			Vault:     filepath.Join(root, "keys", "vault.json"),
			Posts:     filepath.Join(root, "posts", "posts.json"),
			Queue:     filepath.Join(root, "queue", "jobs.json"),
			Settings:  filepath.Join(root, "settings", "settings.json"),
			Events:    filepath.Join(root, "logs", "events.json"),
			Analytics: filepath.Join(root, "analytics", "metrics.json"),
		},
		tails: make(map[string]chan struct{}),
	}, nil
}

// Paths returns the document file paths for this store.
func (s *Store) Paths() Paths { return s.paths }

// AssetsDir returns the directory for transient generated assets.
func (s *Store) AssetsDir() string { return filepath.Join(s.root, "assets") }

// lock enqueues the caller on the path's FIFO chain and blocks until every
// earlier writer has released. The returned func releases the caller's slot.
func (s *Store) lock(path string) func() {
	s.mu.Lock()
	prev := s.tails[path]
	next := make(chan struct{})
	s.tails[path] = next
	s.mu.Unlock()

	if prev != nil {
		<-prev
	}
	return func() {
		s.mu.Lock()
		if s.tails[path] == next {
			delete(s.tails, path)
		}
		s.mu.Unlock()
		close(next)
	}
}

// Read parses the document at path into out. A missing file or unparseable
// content leaves out set to fallback; Read never fails on either.
func Read[T any](s *Store, path string, fallback T) T {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return fallback
	}
	return v
}

// Write serializes value pretty-printed and replaces the document at path.
// At most one write per path is in flight at a time.
func Write(s *Store, path string, value any) error {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	release := s.lock(path)
	defer release()

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
