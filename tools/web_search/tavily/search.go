// Package tavily adapts the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"

	"github.com/deepchat/deepchat/internal/relevant"
)

const defaultEndpoint = "https://api.tavily.com/search"

const iconBaseURL = "https://t0.gstatic.com/faviconV2?client=SOCIAL&type=FAVICON&fallback_opts=TYPE,SIZE,URL&url=%s&size=64"

type Search struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

// Search posts the query and returns the whole response body; Tavily
// has no envelope to unwrap.
func (s *Search) Search(ctx context.Context, query string, count int) (json.RawMessage, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	payload, _ := json.Marshal(map[string]any{
		"query":               query,
		"search_depth":        "basic",
		"topic":               "general",
		"days":                3,
		"include_answer":      false,
		"include_raw_content": true,
		"max_results":         count,
		"include_domains":     []string{},
		"exclude_domains":     []string{},
		"include_images":      false,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Normalize maps a Tavily payload into uniform records. Tavily carries
// raw page content, so context may be pre-filled and skip fetching.
func (s *Search) Normalize(raw json.RawMessage, query string) []relevant.Info {
	var resp struct {
		Query   string `json:"query"`
		Results []struct {
			Title      string `json:"title"`
			URL        string `json:"url"`
			Content    string `json:"content"`
			RawContent string `json:"raw_content"`
			Date       string `json:"date"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}

	keyword := resp.Query
	if keyword == "" {
		keyword = query
	}
	var out []relevant.Info
	for i, r := range resp.Results {
		icon := ""
		if r.URL != "" {
			icon = fmt.Sprintf(iconBaseURL, nurl.QueryEscape(r.URL))
		}
		out = append(out, relevant.Info{
			ID:       i + 1,
			Keywords: []string{keyword},
			Title:    r.Title,
			URL:      r.URL,
			SiteIcon: icon,
			Date:     r.Date,
			Snippet:  r.Content,
			Context:  r.RawContent,
		})
	}
	return out
}
