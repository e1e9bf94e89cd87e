// Package config loads static process configuration: defaults overridden by
// REELPOST_* environment variables. Operator-editable state (channel
// credentials, retention) lives in the settings document, not here.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Providers ProvidersConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// ProvidersConfig holds endpoint and model selection for the external
// provider integrations. Secrets are never configured here; they come from
// the credential vault.
type ProvidersConfig struct {
	ScriptBaseURL  string
	ScriptModel    string
	ImageBaseURL   string
	ImageAccountID string
	ImageModel     string
	VoiceBaseURL   string
	VoiceID        string
	SearchBaseURL  string
	UploadURL      string
	PublishBaseURL string
	FFmpegPath     string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4600},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Providers: ProvidersConfig{
			ScriptBaseURL:  "https://api.cerebras.ai/v1",
			ScriptModel:    "llama3.1-8b",
			ImageBaseURL:   "https://api.cloudflare.com/client/v4",
			ImageModel:     "@cf/black-forest-labs/flux-1-schnell",
			VoiceBaseURL:   "https://api.v8.unrealspeech.com",
			VoiceID:        "Liv",
			SearchBaseURL:  "https://api.serpstack.com",
			UploadURL:      "https://catbox.moe/user/api.php",
			PublishBaseURL: "https://graph.facebook.com/v21.0",
			FFmpegPath:     "ffmpeg",
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "reelpost")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "reelpost-data"
	}
	return filepath.Join(home, ".local", "share", "reelpost")
}

type envSpec struct {
	env   string
	apply func(cfg *Config, v string)
}

var specs = []envSpec{
	{"REELPOST_SERVER_PORT", func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}},
	{"REELPOST_DATA_DIR", func(c *Config, v string) { c.Storage.DataDir = v }},
	{"REELPOST_LOG_LEVEL", func(c *Config, v string) { c.Log.Level = v }},
	{"REELPOST_SCRIPT_BASE_URL", func(c *Config, v string) { c.Providers.ScriptBaseURL = v }},
	{"REELPOST_SCRIPT_MODEL", func(c *Config, v string) { c.Providers.ScriptModel = v }},
	{"REELPOST_IMAGE_BASE_URL", func(c *Config, v string) { c.Providers.ImageBaseURL = v }},
	{"REELPOST_IMAGE_ACCOUNT_ID", func(c *Config, v string) { c.Providers.ImageAccountID = v }},
	{"REELPOST_IMAGE_MODEL", func(c *Config, v string) { c.Providers.ImageModel = v }},
	{"REELPOST_VOICE_BASE_URL", func(c *Config, v string) { c.Providers.VoiceBaseURL = v }},
	{"REELPOST_VOICE_ID", func(c *Config, v string) { c.Providers.VoiceID = v }},
	{"REELPOST_SEARCH_BASE_URL", func(c *Config, v string) { c.Providers.SearchBaseURL = v }},
	{"REELPOST_UPLOAD_URL", func(c *Config, v string) { c.Providers.UploadURL = v }},
	{"REELPOST_PUBLISH_BASE_URL", func(c *Config, v string) { c.Providers.PublishBaseURL = v }},
	{"REELPOST_FFMPEG_PATH", func(c *Config, v string) { c.Providers.FFmpegPath = v }},
}

// Load returns defaults with environment overrides applied.
func Load() (Config, error) {
	cfg := defaults()
	for _, s := range specs {
		if v := os.Getenv(s.env); v != "" {
			s.apply(&cfg, v)
		}
	}
	return cfg, nil
}
