// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pdiddy/deep-research/pkg/types"
)

func TestSerperProviderSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("X-API-KEY"); got != "sk_test" {
			t.Errorf("X-API-KEY = %q, want sk_test", got)
		}
		var req serperRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Q != "distributed tracing" || req.Num != 7 {
			t.Errorf("request = %+v", req)
		}
		fmt.Fprint(w, `{
			"organic": [
				{"title": "First", "link": "https://a.example/1", "snippet": "s1", "position": 1},
				{"title": "Second", "link": "https://b.example/2", "snippet": "s2", "position": 2}
			]
		}`)
	}))
	defer ts.Close()

	old := serperSearchBase
	serperSearchBase = ts.URL
	defer func() { serperSearchBase = old }()

	p := &SerperProvider{APIKey: "sk_test", Client: ts.Client()}
	docs, err := p.Search(context.Background(), "distributed tracing", types.SearchConfig{MaxResults: 7})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}

	first := docs[0]
	if first.Provider != "serper" {
		t.Errorf("Provider = %q, want serper", first.Provider)
	}
	if first.URL != "https://a.example/1" || first.Excerpt != "s1" {
		t.Errorf("unexpected first doc: %+v", first)
	}
	if first.ProviderScore != 1 {
		t.Errorf("ProviderScore = %v, want 1 (position)", first.ProviderScore)
	}
	if first.NormalizedScore <= docs[1].NormalizedScore {
		t.Errorf("scores not ordered by position: %v <= %v", first.NormalizedScore, docs[1].NormalizedScore)
	}
}

func TestSerperProviderHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	old := serperSearchBase
	serperSearchBase = ts.URL
	defer func() { serperSearchBase = old }()

	p := &SerperProvider{APIKey: "bad", Client: ts.Client()}
	if _, err := p.Search(context.Background(), "q", types.SearchConfig{}); err == nil {
		t.Fatal("expected error for HTTP 403")
	}
}

func TestSerperProviderMissingKey(t *testing.T) {
	p := &SerperProvider{}
	if _, err := p.Search(context.Background(), "q", types.SearchConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
