// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the deep-research pipeline.
// Implements: prd101-search-gateway (CanonicalDocument, R2.1-R2.4);
//
//	prd103-rank (dedup identity, R1.2);
//	prd106-synthesis (Evidence, Citation, R3.1-R3.4);
//	prd107-quality-gate (QualityIssue);
//	prd108-control-loop (IterationCounters, Draft).
//
// See docs/ARCHITECTURE.md § Pipeline Interface, § Data Structures.
package types

import "time"

// CanonicalDocument is the unified shape every search provider's results are
// normalized into. Per prd101-search-gateway R2.1, a document carries its
// provider, the query that found it, URL identity fields, and optional
// content filled in during the enrichment phase.
type CanonicalDocument struct {
	// ID is a stable identifier derived from the normalized URL.
	ID string `json:"id" yaml:"id"`

	// Provider identifies which search backend returned this document.
	Provider string `json:"provider" yaml:"provider"`

	// Query is the search query that produced this document.
	Query string `json:"query" yaml:"query"`

	// URL is the result URL exactly as returned by the provider.
	URL string `json:"url" yaml:"url"`

	// Hostname is the lowercased host portion of URL, without "www.".
	Hostname string `json:"hostname" yaml:"hostname"`

	// Title is the result title, if the provider supplied one.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Excerpt is the provider snippet from the discovery phase.
	Excerpt string `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`

	// Content is the full document text. Empty until enrichment.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`

	// PublishedAt is the publication date, when known.
	PublishedAt time.Time `json:"published_at,omitempty" yaml:"published_at,omitempty"`

	// ProviderScore is the raw relevance value reported by the provider.
	ProviderScore float64 `json:"provider_score,omitempty" yaml:"provider_score,omitempty"`

	// NormalizedScore is the score in [0,1] assigned by the gateway and
	// later overwritten by the rank engine's composite score.
	NormalizedScore float64 `json:"normalized_score,omitempty" yaml:"normalized_score,omitempty"`

	// ResolvedURL is the final URL after following redirects during
	// enrichment. Empty when enrichment did not run or no redirect occurred.
	ResolvedURL string `json:"resolved_url,omitempty" yaml:"resolved_url,omitempty"`

	// CanonicalURL is the publisher-declared canonical URL
	// (<link rel="canonical">), captured during enrichment.
	CanonicalURL string `json:"canonical_url,omitempty" yaml:"canonical_url,omitempty"`

	// NormalizedKey is the dedup identity: the canonical URL when known,
	// else the resolved URL when it differs from URL, else a hash of URL.
	NormalizedKey string `json:"normalized_key,omitempty" yaml:"normalized_key,omitempty"`

	// FetchedAt records when the gateway produced this document.
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// HasContent reports whether the document has been enriched with full text.
func (d CanonicalDocument) HasContent() bool {
	return d.Content != ""
}

// Evidence is one document prepared for synthesis: the excerpt block the
// narrative model sees, plus provenance fields the citation validator checks
// against. Per prd106-synthesis R3.1.
type Evidence struct {
	// URL is the source document URL.
	URL string `json:"url" yaml:"url"`

	// Title is the source document title.
	Title string `json:"title" yaml:"title"`

	// Snippet is the excerpt shown in the evidence block.
	Snippet string `json:"snippet" yaml:"snippet"`

	// ContentHash is the SHA-256 hex digest of the full content, when present.
	ContentHash string `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`

	// Chunks are paragraph-sized slices of the full content used for
	// excerpt binding and provenance checks.
	Chunks []string `json:"chunks,omitempty" yaml:"chunks,omitempty"`

	// Source identifies the provider that found the document.
	Source string `json:"source" yaml:"source"`
}

// Citation is one inline reference extracted from a generated narrative.
// Per prd106-synthesis R3.3, the ID is the 1-based index into the evidence
// block the narrative was generated against.
type Citation struct {
	// ID is the 1-based evidence index the marker referenced.
	ID int `json:"id" yaml:"id"`

	// URL is the cited document's URL.
	URL string `json:"url" yaml:"url"`

	// Title is the cited document's title.
	Title string `json:"title" yaml:"title"`

	// Excerpt is the best-matching passage from the cited document.
	Excerpt string `json:"excerpt" yaml:"excerpt"`
}
