// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries web search APIs and returns results normalized into
// canonical documents.
// Implements: prd101-search-gateway (R1-R5);
//
//	docs/ARCHITECTURE § Search Gateway.
package search

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/deep-research/internal/canonical"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Provider searches a single web search API. Each provider (Brave, Serper)
// implements this interface per the Strategy pattern (R1.2).
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, cfg types.SearchConfig) ([]types.CanonicalDocument, error)
}

// Output holds the discovery results and per-provider failure notes.
type Output struct {
	Documents      []types.CanonicalDocument
	ProviderErrors []string
}

// Discover fans the query out to all providers concurrently and merges their
// results into canonical documents, best-effort: a failing provider
// contributes a warning and zero results, never an aborted search (R1.3,
// R4.1). An error is returned only when the query is empty or no providers
// are configured.
func Discover(ctx context.Context, query string, providers []Provider, cfg types.SearchConfig, w io.Writer) (Output, error) {
	if strings.TrimSpace(query) == "" {
		return Output{}, fmt.Errorf("query is empty")
	}
	if len(providers) == 0 {
		return Output{}, fmt.Errorf("no search providers configured")
	}

	type providerResult struct {
		docs []types.CanonicalDocument
		err  error
		name string
	}

	ch := make(chan providerResult, len(providers))
	var wg sync.WaitGroup

	for _, p := range providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			docs, err := p.Search(ctx, query, cfg)
			ch <- providerResult{docs: docs, err: err, name: p.Name()}
		}(p)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	var all []types.CanonicalDocument
	var providerErrors []string
	for pr := range ch {
		if pr.err != nil {
			providerErrors = append(providerErrors, fmt.Sprintf("%s: %v", pr.name, pr.err))
			fmt.Fprintf(w, "warning: provider %s failed: %v\n", pr.name, pr.err)
			continue
		}
		all = append(all, pr.docs...)
	}

	now := time.Now().UTC()
	var docs []types.CanonicalDocument
	for _, d := range all {
		if d.URL == "" {
			continue
		}
		d.Query = query
		d.Hostname = canonical.Hostname(d.URL)
		if !domainAllowed(d.Hostname, cfg.IncludeDomains, cfg.ExcludeDomains) {
			continue
		}
		d.NormalizedKey = canonical.Key(d)
		d.ID = canonical.URLHash(d.NormalizedKey)
		d.FetchedAt = now
		docs = append(docs, d)
	}

	// Stable score order so downstream stages see the best candidates first.
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].NormalizedScore > docs[j].NormalizedScore
	})

	return Output{Documents: docs, ProviderErrors: providerErrors}, nil
}

// domainAllowed applies the include/exclude host filters (R5.3). A host
// matches an entry when it equals the entry or is a subdomain of it.
func domainAllowed(host string, include, exclude []string) bool {
	for _, ex := range exclude {
		if hostMatches(host, ex) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, in := range include {
		if hostMatches(host, in) {
			return true
		}
	}
	return false
}

func hostMatches(host, entry string) bool {
	entry = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(entry)), "www.")
	if entry == "" {
		return false
	}
	return host == entry || strings.HasSuffix(host, "."+entry)
}

// positionScore converts a 0-based result position into a score in (0,1],
// used for providers that report rank order but no relevance value (R2.3).
func positionScore(i, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 1.0 - float64(i)/float64(total)
}
