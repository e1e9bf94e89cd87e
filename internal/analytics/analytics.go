// Package analytics maintains the cumulative metrics document: run counters,
// generation time, and per-provider usage and failure counts.
package analytics

import (
	"time"

	"github.com/ostanin/reelpost/internal/docstore"
)

// Snapshot is the persisted metrics document.
type Snapshot struct {
	Published         int            `json:"published"`
	Failures          int            `json:"failures"`
	Generated         int            `json:"generated"`
	TotalGenerationMs int64          `json:"totalGenerationMs"`
	ProviderFailures  map[string]int `json:"providerFailures"`
	APIUsage          map[string]int `json:"apiUsage"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// Tracker updates the metrics document.
type Tracker struct {
	store *docstore.Store
	now   func() time.Time
}

// New returns a Tracker backed by the given store.
func New(store *docstore.Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

func empty() Snapshot {
	return Snapshot{
		ProviderFailures: map[string]int{},
		APIUsage:         map[string]int{},
	}
}

func (t *Tracker) load() Snapshot {
	s := docstore.Read(t.store, t.store.Paths().Analytics, empty())
	if s.ProviderFailures == nil {
		s.ProviderFailures = map[string]int{}
	}
	if s.APIUsage == nil {
		s.APIUsage = map[string]int{}
	}
	return s
}

func (t *Tracker) save(s Snapshot) error {
	s.UpdatedAt = t.now().UTC()
	return docstore.Write(t.store, t.store.Paths().Analytics, s)
}

// RecordRun counts one pipeline run. Exactly one of published/failures is
// bumped per run; generated is bumped regardless of outcome.
func (t *Tracker) RecordRun(success bool, elapsed time.Duration) error {
	s := t.load()
	s.Generated++
	s.TotalGenerationMs += elapsed.Milliseconds()
	if success {
		s.Published++
	} else {
		s.Failures++
	}
	return t.save(s)
}

// RecordProviderCall counts one external API call against its provider.
func (t *Tracker) RecordProviderCall(provider string, failed bool) error {
	s := t.load()
	s.APIUsage[provider]++
	if failed {
		s.ProviderFailures[provider]++
	}
	return t.save(s)
}

// Snapshot returns the current metrics.
func (t *Tracker) Snapshot() Snapshot {
	return t.load()
}
