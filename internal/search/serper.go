// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// serperSearchBase is the Serper search endpoint. Declared as a var so tests
// can substitute an httptest server.
var serperSearchBase = "https://google.serper.dev/search"

// SerperProvider queries the Serper API for Google results (R1.4).
type SerperProvider struct {
	APIKey string
	Client *http.Client

	// Progress receives retry notices. Defaults to io.Discard.
	Progress io.Writer
}

// Name returns the provider identifier.
func (p *SerperProvider) Name() string { return "serper" }

// serperRequest is the Serper search request body.
type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

// serperResponse is the subset of the Serper response we consume.
type serperResponse struct {
	Organic []serperResult `json:"organic"`
}

type serperResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

// Search queries the Serper API and returns canonical documents.
func (p *SerperProvider) Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.CanonicalDocument, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("serper API key not configured")
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	body, err := json.Marshal(serperRequest{Q: query, Num: maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serperSearchBase, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", p.APIKey)
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
		return nil, fmt.Errorf("Serper API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Serper API returned HTTP %d", resp.StatusCode)
	}

	var sr serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Serper response: %w", err)
	}

	total := len(sr.Organic)
	var docs []types.CanonicalDocument
	for i, r := range sr.Organic {
		d := types.CanonicalDocument{
			Provider:        "serper",
			URL:             r.Link,
			Title:           r.Title,
			Excerpt:         r.Snippet,
			NormalizedScore: positionScore(i, total),
		}
		if r.Position > 0 {
			d.ProviderScore = float64(r.Position)
			d.NormalizedScore = positionScore(r.Position-1, total)
		}
		docs = append(docs, d)
	}

	return docs, nil
}
