package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
)

// SynthesizeVoice narrates text through the speech provider and returns the
// local audio file path.
func (c *Client) SynthesizeVoice(ctx context.Context, text string) (string, error) {
	cred, err := c.creds.Acquire(ProviderVoice)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]any{
		"Text":         text,
		"VoiceId":      c.cfg.VoiceID,
		"Bitrate":      "192k",
		"OutputFormat": "mp3",
	})
	if err != nil {
		return "", provErr(ProviderVoice, "encoding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.VoiceBaseURL+"/stream", bytes.NewReader(body))
	if err != nil {
		return "", provErr(ProviderVoice, "synthesize", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.report(ProviderVoice, cred.ID, true)
		return "", provErr(ProviderVoice, "synthesize", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.report(ProviderVoice, cred.ID, true)
		return "", provErrf(ProviderVoice, "synthesize", "status %d", resp.StatusCode)
	}

	path := filepath.Join(c.assetsDir, uuid.New().String()+".mp3")
	if err := writeBody(path, resp.Body); err != nil {
		c.report(ProviderVoice, cred.ID, true)
		return "", provErr(ProviderVoice, "saving audio", err)
	}
	c.report(ProviderVoice, cred.ID, false)
	return path, nil
}
