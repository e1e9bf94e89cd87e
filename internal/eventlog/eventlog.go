// Package eventlog keeps a bounded, append-only audit trail as one JSON
// document. The log holds the most recent entries only; older ones are
// dropped oldest-first.
package eventlog

import (
	"time"

	"github.com/google/uuid"

	"github.com/ostanin/reelpost/internal/docstore"
)

// maxEntries caps the persisted log length.
const maxEntries = 1000

// Entry is one structured log record.
type Entry struct {
	ID        string         `json:"id"`
	Level     string         `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Logger appends entries to the event-log document.
type Logger struct {
	store *docstore.Store
	now   func() time.Time
}

// New returns a Logger backed by the given store.
func New(store *docstore.Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// Append records one entry, truncating the log to its cap. One document
// write per call.
func (l *Logger) Append(level, source, message string, metadata map[string]any) error {
	path := l.store.Paths().Events
	entries := docstore.Read(l.store, path, []Entry{})
	entries = append(entries, Entry{
		ID:        uuid.New().String(),
		Level:     level,
		Source:    source,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	})
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	return docstore.Write(l.store, path, entries)
}

// Recent returns up to limit entries, newest last.
func (l *Logger) Recent(limit int) []Entry {
	entries := docstore.Read(l.store, l.store.Paths().Events, []Entry{})
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}
