package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Providers.ScriptModel != "llama3.1-8b" {
		t.Errorf("script model = %q", cfg.Providers.ScriptModel)
	}
	if cfg.Providers.VoiceID != "Liv" {
		t.Errorf("voice id = %q", cfg.Providers.VoiceID)
	}
	if cfg.Providers.FFmpegPath != "ffmpeg" {
		t.Errorf("ffmpeg path = %q", cfg.Providers.FFmpegPath)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("data dir is empty")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REELPOST_SERVER_PORT", "9999")
	t.Setenv("REELPOST_DATA_DIR", "/tmp/reelpost-test")
	t.Setenv("REELPOST_SCRIPT_BASE_URL", "http://localhost:8080/v1")
	t.Setenv("REELPOST_IMAGE_ACCOUNT_ID", "acct-override")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/reelpost-test" {
		t.Errorf("data dir = %q", cfg.Storage.DataDir)
	}
	if cfg.Providers.ScriptBaseURL != "http://localhost:8080/v1" {
		t.Errorf("script base url = %q", cfg.Providers.ScriptBaseURL)
	}
	if cfg.Providers.ImageAccountID != "acct-override" {
		t.Errorf("image account = %q", cfg.Providers.ImageAccountID)
	}
}

func TestLoadIgnoresInvalidPort(t *testing.T) {
	t.Setenv("REELPOST_SERVER_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4600 {
		t.Errorf("port = %d, want default 4600", cfg.Server.Port)
	}
}

func TestGetAPITokenPersists(t *testing.T) {
	dir := t.TempDir()

	first, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(first))
	}

	second, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if first != second {
		t.Error("token regenerated on second call")
	}

	info, err := os.Stat(filepath.Join(dir, "api_token"))
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}
}
