package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const maxPageFetchSize = 2 << 20 // 2MB

// SearchResult is one organic result from the search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Material is the source material for one topic: search results plus the
// readable text of the top result's page, when it could be fetched.
type Material struct {
	Topic    string         `json:"topic"`
	Results  []SearchResult `json:"results"`
	PageText string         `json:"pageText,omitempty"`
}

// FetchMaterial queries the search provider for the topic and pulls readable
// text from the top result. A page fetch failure is tolerated; the search
// results alone are still usable material.
func (c *Client) FetchMaterial(ctx context.Context, topic string) (Material, error) {
	cred, err := c.creds.Acquire(ProviderSearch)
	if err != nil {
		return Material{}, err
	}

	params := url.Values{}
	params.Set("access_key", cred.Secret)
	params.Set("query", topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.SearchBaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return Material{}, provErr(ProviderSearch, "search", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.report(ProviderSearch, cred.ID, true)
		return Material{}, provErr(ProviderSearch, "search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.report(ProviderSearch, cred.ID, true)
		return Material{}, provErrf(ProviderSearch, "search", "status %d", resp.StatusCode)
	}

	var body struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.report(ProviderSearch, cred.ID, true)
		return Material{}, provErr(ProviderSearch, "decoding search response", err)
	}
	c.report(ProviderSearch, cred.ID, false)

	m := Material{Topic: topic}
	for _, r := range body.OrganicResults {
		m.Results = append(m.Results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	if len(m.Results) == 0 {
		return Material{}, provErrf(ProviderSearch, "search", "no results for %q", topic)
	}

	if text, err := c.fetchPageText(ctx, m.Results[0].URL); err != nil {
		c.logger.Warn("fetching top result page", "url", m.Results[0].URL, "error", err)
	} else {
		m.PageText = text
	}
	return m, nil
}

func (c *Client) fetchPageText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	return extractText(io.LimitReader(resp.Body, maxPageFetchSize))
}

// extractText flattens an HTML document to its visible text, skipping
// script and style subtrees.
func extractText(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte(' ')
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return strings.TrimSpace(sb.String()), nil
}
