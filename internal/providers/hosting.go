package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ostanin/reelpost/internal/vault"
)

// UploadVideo pushes a local video file to the hosting endpoint and returns
// its public URL. A hosting credential (account hash) is optional: with an
// empty pool the upload proceeds anonymously.
func (c *Client) UploadVideo(ctx context.Context, videoPath string) (string, error) {
	var cred vault.Credential
	if acquired, err := c.creds.Acquire(ProviderUpload); err == nil {
		cred = acquired
	} else if !errors.Is(err, vault.ErrNoActiveCredential) {
		return "", err
	}

	f, err := os.Open(videoPath)
	if err != nil {
		return "", provErr(ProviderUpload, "opening video", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("reqtype", "fileupload"); err != nil {
		return "", provErr(ProviderUpload, "building form", err)
	}
	if cred.Secret != "" {
		if err := mw.WriteField("userhash", cred.Secret); err != nil {
			return "", provErr(ProviderUpload, "building form", err)
		}
	}
	part, err := mw.CreateFormFile("fileToUpload", filepath.Base(videoPath))
	if err != nil {
		return "", provErr(ProviderUpload, "building form", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", provErr(ProviderUpload, "reading video", err)
	}
	if err := mw.Close(); err != nil {
		return "", provErr(ProviderUpload, "building form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL, &buf)
	if err != nil {
		return "", provErr(ProviderUpload, "upload", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		c.report(ProviderUpload, cred.ID, true)
		return "", provErr(ProviderUpload, "upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.report(ProviderUpload, cred.ID, true)
		return "", provErrf(ProviderUpload, "upload", "status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.report(ProviderUpload, cred.ID, true)
		return "", provErr(ProviderUpload, "reading response", err)
	}
	c.report(ProviderUpload, cred.ID, false)
	return strings.TrimSpace(string(raw)), nil
}

// PublishRequest carries everything needed to publish one hosted video.
type PublishRequest struct {
	VideoURL     string
	Caption      string
	FirstComment string
	PageID       string
	AccessToken  string
}

// Publish posts the hosted video to the target channel and then attaches the
// first comment. Returns the remote post id. A comment failure is tolerated;
// the post itself already exists.
func (c *Client) Publish(ctx context.Context, pub PublishRequest) (string, error) {
	postID, err := c.publishVideo(ctx, pub)
	if err != nil {
		c.report(ProviderPublish, "", true)
		return "", err
	}
	if err := c.postComment(ctx, postID, pub.FirstComment, pub.AccessToken); err != nil {
		c.logger.Warn("posting first comment", "post_id", postID, "error", err)
	}
	c.report(ProviderPublish, "", false)
	return postID, nil
}

func (c *Client) publishVideo(ctx context.Context, pub PublishRequest) (string, error) {
	body, err := json.Marshal(map[string]string{
		"file_url":     pub.VideoURL,
		"description":  pub.Caption,
		"access_token": pub.AccessToken,
	})
	if err != nil {
		return "", provErr(ProviderPublish, "encoding request", err)
	}
	endpoint := c.cfg.PublishBaseURL + "/" + pub.PageID + "/videos"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", provErr(ProviderPublish, "publish", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", provErr(ProviderPublish, "publish", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", provErrf(ProviderPublish, "publish", "status %d", resp.StatusCode)
	}

	var video struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
		return "", provErr(ProviderPublish, "decoding response", err)
	}
	if video.ID == "" {
		return "", provErrf(ProviderPublish, "publish", "missing post id in response")
	}
	return video.ID, nil
}

func (c *Client) postComment(ctx context.Context, postID, comment, token string) error {
	body, err := json.Marshal(map[string]string{
		"message":      comment,
		"access_token": token,
	})
	if err != nil {
		return err
	}
	endpoint := c.cfg.PublishBaseURL + "/" + postID + "/comments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
