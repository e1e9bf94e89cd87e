// Package settings reads and writes the operator-editable settings document:
// publish-channel credentials, system retention, and the admin password.
package settings

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/ostanin/reelpost/internal/docstore"
)

// Channel holds the social-channel publish credentials. A manually entered
// page token takes precedence over a session-derived one.
type Channel struct {
	PageID             string `json:"pageId"`
	ManualAccessToken  string `json:"manualAccessToken,omitempty"`
	SessionAccessToken string `json:"sessionAccessToken,omitempty"`
}

// Token returns the access token to publish with.
func (c Channel) Token() string {
	if c.ManualAccessToken != "" {
		return c.ManualAccessToken
	}
	return c.SessionAccessToken
}

// System holds operational knobs.
type System struct {
	// AutoCleanupHours is the retention window for orphaned assets.
	AutoCleanupHours int `json:"autoCleanupHours"`
}

// Settings is the full settings document.
type Settings struct {
	Channel Channel `json:"channel"`
	System  System  `json:"system"`
	// AdminPasswordHash is a bcrypt hash; the plaintext is never stored.
	AdminPasswordHash string `json:"adminPasswordHash,omitempty"`
}

// Manager provides typed access to the settings document.
type Manager struct {
	store *docstore.Store
}

// NewManager returns a Manager backed by the given store.
func NewManager(store *docstore.Store) *Manager {
	return &Manager{store: store}
}

func defaults() Settings {
	return Settings{System: System{AutoCleanupHours: 6}}
}

// Load returns the current settings, falling back to defaults for a missing
// or unreadable document.
func (m *Manager) Load() Settings {
	s := docstore.Read(m.store, m.store.Paths().Settings, defaults())
	if s.System.AutoCleanupHours <= 0 {
		s.System.AutoCleanupHours = 6
	}
	return s
}

// Save replaces the settings document.
func (m *Manager) Save(s Settings) error {
	return docstore.Write(m.store, m.store.Paths().Settings, s)
}

// SetAdminPassword hashes and stores a new admin password.
func (m *Manager) SetAdminPassword(plaintext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s := m.Load()
	s.AdminPasswordHash = string(hash)
	return m.Save(s)
}

// CheckAdminPassword reports whether plaintext matches the stored hash.
// An unset password never matches.
func (m *Manager) CheckAdminPassword(plaintext string) bool {
	s := m.Load()
	if s.AdminPasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.AdminPasswordHash), []byte(plaintext)) == nil
}
