// Package providers implements the external API integrations used by the
// generation pipeline: source-material search, script generation, image
// synthesis, voice synthesis, video hosting, and social publishing. Every
// call draws its credential from the vault and reports the outcome back.
package providers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ostanin/reelpost/internal/config"
	"github.com/ostanin/reelpost/internal/vault"
)

// Provider names, used as vault pool keys and analytics counters.
const (
	ProviderSearch  = "serpstack"
	ProviderScript  = "cerebras"
	ProviderImage   = "cloudflare"
	ProviderVoice   = "unrealspeech"
	ProviderUpload  = "catbox"
	ProviderPublish = "facebook"
)

// CredentialSource supplies and tracks API credentials per provider.
type CredentialSource interface {
	Acquire(provider string) (vault.Credential, error)
	ReportUsage(provider, id string, failed bool) error
}

// UsageTracker counts external calls for the analytics snapshot.
type UsageTracker interface {
	RecordProviderCall(provider string, failed bool) error
}

// Client calls the external providers.
type Client struct {
	cfg       config.ProvidersConfig
	creds     CredentialSource
	usage     UsageTracker
	http      *http.Client
	assetsDir string
	logger    *slog.Logger
}

// NewClient returns a Client writing downloaded assets under assetsDir.
func NewClient(cfg config.ProvidersConfig, creds CredentialSource, usage UsageTracker, assetsDir string) *Client {
	return &Client{
		cfg:       cfg,
		creds:     creds,
		usage:     usage,
		http:      &http.Client{Timeout: 120 * time.Second},
		assetsDir: assetsDir,
		logger:    slog.Default(),
	}
}

// report records one call outcome with both the vault and analytics.
// Bookkeeping failures are logged, never propagated: the provider call's own
// result is what the caller cares about.
func (c *Client) report(provider, credID string, failed bool) {
	if credID != "" {
		if err := c.creds.ReportUsage(provider, credID, failed); err != nil {
			c.logger.Error("reporting credential usage", "provider", provider, "error", err)
		}
	}
	if c.usage != nil {
		if err := c.usage.RecordProviderCall(provider, failed); err != nil {
			c.logger.Error("recording provider call", "provider", provider, "error", err)
		}
	}
}
