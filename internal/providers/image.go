package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// GenerateImage renders a still image from the prompt and returns the local
// file path it was written to.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	cred, err := c.creds.Acquire(ProviderImage)
	if err != nil {
		return "", err
	}
	if c.cfg.ImageAccountID == "" {
		return "", provErrf(ProviderImage, "generate", "image account id not configured")
	}

	body, err := json.Marshal(map[string]any{
		"prompt": prompt,
		"width":  1080,
		"height": 1920,
	})
	if err != nil {
		return "", provErr(ProviderImage, "encoding request", err)
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/ai/run/%s",
		c.cfg.ImageBaseURL, c.cfg.ImageAccountID, c.cfg.ImageModel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", provErr(ProviderImage, "generate", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.report(ProviderImage, cred.ID, true)
		return "", provErr(ProviderImage, "generate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.report(ProviderImage, cred.ID, true)
		return "", provErrf(ProviderImage, "generate", "status %d", resp.StatusCode)
	}

	path := filepath.Join(c.assetsDir, uuid.New().String()+".png")
	if err := writeBody(path, resp.Body); err != nil {
		c.report(ProviderImage, cred.ID, true)
		return "", provErr(ProviderImage, "saving image", err)
	}
	c.report(ProviderImage, cred.ID, false)
	return path, nil
}

func writeBody(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
