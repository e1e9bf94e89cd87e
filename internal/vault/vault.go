// Package vault manages per-provider pools of API credentials with
// least-recently-used rotation and failure-based deactivation.
package vault

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ostanin/reelpost/internal/docstore"
)

// ErrNoActiveCredential is returned by Acquire when a provider's pool has no
// active credentials left.
var ErrNoActiveCredential = errors.New("no active credential")

// maxFailures is the failure count at which a credential is permanently
// deactivated. There is no timed reset.
const maxFailures = 3

// Credential is one API key in a provider's pool.
type Credential struct {
	ID            string     `json:"id"`
	Provider      string     `json:"provider"`
	Secret        string     `json:"secret"`
	Label         string     `json:"label,omitempty"`
	Active        bool       `json:"active"`
	UsageCount    int        `json:"usageCount"`
	FailureCount  int        `json:"failureCount"`
	LastUsedAt    *time.Time `json:"lastUsedAt,omitempty"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Vault supplies credentials from a pool persisted as one document,
// keyed by provider name.
type Vault struct {
	store *docstore.Store
	now   func() time.Time
}

// New returns a Vault backed by the given store.
func New(store *docstore.Store) *Vault {
	return &Vault{store: store, now: time.Now}
}

// NewWithClock returns a Vault with an injected clock, used by tests.
func NewWithClock(store *docstore.Store, now func() time.Time) *Vault {
	return &Vault{store: store, now: now}
}

type pool map[string][]Credential

func (v *Vault) load() pool {
	return docstore.Read(v.store, v.store.Paths().Vault, pool{})
}

func (v *Vault) save(p pool) error {
	return docstore.Write(v.store, v.store.Paths().Vault, p)
}

// Acquire returns the least-recently-used active credential for provider.
// Credentials that have never been used sort first. Returns
// ErrNoActiveCredential when no active credential exists.
func (v *Vault) Acquire(provider string) (Credential, error) {
	var candidates []Credential
	for _, c := range v.load()[provider] {
		if c.Active {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return Credential{}, fmt.Errorf("%w for %s", ErrNoActiveCredential, provider)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return usedAt(candidates[i]).Before(usedAt(candidates[j]))
	})
	return candidates[0], nil
}

func usedAt(c Credential) time.Time {
	if c.LastUsedAt == nil {
		return time.Time{}
	}
	return *c.LastUsedAt
}

// ReportUsage records the outcome of one call made with the credential.
// Every report bumps usageCount and lastUsedAt. A failed report also bumps
// failureCount and, once it reaches the limit, deactivates the credential
// permanently.
func (v *Vault) ReportUsage(provider, id string, failed bool) error {
	p := v.load()
	now := v.now().UTC()
	for i, c := range p[provider] {
		if c.ID != id {
			continue
		}
		c.UsageCount++
		c.LastUsedAt = &now
		if failed {
			c.FailureCount++
			c.LastFailureAt = &now
			if c.FailureCount >= maxFailures {
				c.Active = false
			}
		}
		p[provider][i] = c
		break
	}
	return v.save(p)
}

// Add appends a new active credential to the provider's pool and returns it.
func (v *Vault) Add(provider, secret, label string) (Credential, error) {
	p := v.load()
	c := Credential{
		ID:        uuid.New().String(),
		Provider:  provider,
		Secret:    secret,
		Label:     label,
		Active:    true,
		CreatedAt: v.now().UTC(),
	}
	p[provider] = append(p[provider], c)
	if err := v.save(p); err != nil {
		return Credential{}, err
	}
	return c, nil
}

// Remove deletes the credential with the given id from the provider's pool.
func (v *Vault) Remove(provider, id string) error {
	p := v.load()
	kept := p[provider][:0]
	for _, c := range p[provider] {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	p[provider] = kept
	return v.save(p)
}

// List returns the provider's pool with secrets redacted to their last four
// characters, for the admin surface.
func (v *Vault) List(provider string) []Credential {
	creds := v.load()[provider]
	out := make([]Credential, len(creds))
	for i, c := range creds {
		c.Secret = redact(c.Secret)
		out[i] = c
	}
	return out
}

// Providers returns every provider name present in the vault document.
func (v *Vault) Providers() []string {
	p := v.load()
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func redact(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
