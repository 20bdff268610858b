// Package bocha adapts the Bocha web-search API.
package bocha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/deepchat/deepchat/internal/relevant"
)

const defaultEndpoint = "https://api.bochaai.com/v1/web-search"

type Search struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

// Search posts the query and returns the response's data object
// untouched; Normalize knows the shape.
func (s *Search) Search(ctx context.Context, query string, count int) (json.RawMessage, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	payload, _ := json.Marshal(map[string]any{
		"query":     query,
		"summary":   true,
		"freshness": "noLimit",
		"count":     count,
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
		return nil, fmt.Errorf("bocha returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// Normalize maps a Bocha payload (Bing-like webPages.value shape) into
// uniform records with provisional 1-based ids.
func (s *Search) Normalize(raw json.RawMessage, query string) []relevant.Info {
	var resp struct {
		QueryContext struct {
			OriginalQuery string `json:"originalQuery"`
		} `json:"queryContext"`
		WebPages struct {
			Value []struct {
				Name            string `json:"name"`
				URL             string `json:"url"`
				SiteName        string `json:"siteName"`
				SiteIcon        string `json:"siteIcon"`
				DateLastCrawled string `json:"dateLastCrawled"`
				Snippet         string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}

	keyword := resp.QueryContext.OriginalQuery
	if keyword == "" {
		keyword = query
	}
	var out []relevant.Info
	for i, r := range resp.WebPages.Value {
		date, _, _ := strings.Cut(r.DateLastCrawled, "T")
		out = append(out, relevant.Info{
			ID:       i + 1,
			Keywords: []string{keyword},
			Title:    r.Name,
			URL:      r.URL,
			SiteName: r.SiteName,
			SiteIcon: r.SiteIcon,
			Date:     date,
			Snippet:  r.Snippet,
			Context:  "",
		})
	}
	return out
}
