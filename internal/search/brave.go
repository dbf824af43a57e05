// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// braveSearchBase is the Brave web search endpoint. Declared as a var so
// tests can substitute an httptest server.
var braveSearchBase = "https://api.search.brave.com/res/v1/web/search"

// BraveProvider queries the Brave Search API (R1.4).
type BraveProvider struct {
	APIKey string
	Client *http.Client

	// Progress receives retry notices. Defaults to io.Discard.
	Progress io.Writer
}

// Name returns the provider identifier.
func (p *BraveProvider) Name() string { return "brave" }

// braveResponse is the subset of the Brave Search response we consume.
type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	PageAge     string `json:"page_age"`
}

// Search queries the Brave Search API and returns canonical documents.
func (p *BraveProvider) Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.CanonicalDocument, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("brave API key not configured")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > 20 {
		maxResults = 20
	}

	params := url.Values{
		"q":     {query},
		"count": {fmt.Sprintf("%d", maxResults)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.APIKey)
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	progress := p.Progress
	if progress == nil {
		progress = io.Discard
	}

	resp, err := httputil.DoWithRetry(ctx, progress, client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("Brave API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Brave API returned HTTP %d", resp.StatusCode)
	}

	var br braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("parsing Brave response: %w", err)
	}

	total := len(br.Web.Results)
	var docs []types.CanonicalDocument
	for i, r := range br.Web.Results {
		d := types.CanonicalDocument{
			Provider:        "brave",
			URL:             r.URL,
			Title:           r.Title,
			Excerpt:         r.Description,
			NormalizedScore: positionScore(i, total),
		}
		// page_age is RFC 3339 when present.
		if r.PageAge != "" {
			if t, parseErr := time.Parse(time.RFC3339, r.PageAge); parseErr == nil {
				d.PublishedAt = t
			}
		}
		docs = append(docs, d)
	}

	return docs, nil
}
