// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank deduplicates, canonicalizes, and scores documents between
// pipeline stages.
// Implements: prd103-rank (R1-R4);
//
//	docs/ARCHITECTURE § Rank Engine.
package rank

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/deep-research/internal/canonical"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Phase selects which limits apply: discovery runs before enrichment and
// favors breadth, final runs before synthesis and favors depth.
type Phase int

const (
	// PhaseDiscovery caps documents per host and truncates to DiscoveryLimit.
	PhaseDiscovery Phase = iota

	// PhaseFinal truncates to EvidenceLimit without a per-host cap.
	PhaseFinal
)

// Engine applies the dedup and scoring rules. The zero value is not usable;
// construct with New.
type Engine struct {
	cfg types.RankConfig
	now func() time.Time
}

// New creates an Engine, filling in defaults for unset config fields.
func New(cfg types.RankConfig) *Engine {
	if cfg.AuthorityBonus == 0 {
		cfg.AuthorityBonus = 0.3
	}
	if cfg.RecencyBonus == 0 {
		cfg.RecencyBonus = 0.2
	}
	if cfg.RecencyHalfLife == 0 {
		cfg.RecencyHalfLife = 90 * 24 * time.Hour
	}
	if cfg.LengthBonus == 0 {
		cfg.LengthBonus = 0.05
	}
	if cfg.MinContentLength == 0 {
		cfg.MinContentLength = 1000
	}
	if cfg.MinTitleLength == 0 {
		cfg.MinTitleLength = 20
	}
	if cfg.MinExcerptLength == 0 {
		cfg.MinExcerptLength = 80
	}
	if cfg.MaxPerHost == 0 {
		cfg.MaxPerHost = 3
	}
	if cfg.DiscoveryLimit == 0 {
		cfg.DiscoveryLimit = 15
	}
	if cfg.EvidenceLimit == 0 {
		cfg.EvidenceLimit = 20
	}
	return &Engine{cfg: cfg, now: time.Now}
}

// Output holds the processed documents and dedup statistics.
type Output struct {
	Documents   []types.CanonicalDocument
	DupsRemoved int
}

// Process deduplicates documents by normalized key, rescores the survivors,
// sorts by score descending, and applies the phase's diversity cap and limit.
// Processing the output again yields the same document set (R1.4).
func (e *Engine) Process(docs []types.CanonicalDocument, phase Phase) Output {
	deduped, removed := e.deduplicate(docs)

	for i := range deduped {
		deduped[i].NormalizedScore = e.score(deduped[i])
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].NormalizedScore > deduped[j].NormalizedScore
	})

	limit := e.cfg.EvidenceLimit
	if phase == PhaseDiscovery {
		deduped = e.capPerHost(deduped)
		limit = e.cfg.DiscoveryLimit
	}
	if limit > 0 && len(deduped) > limit {
		deduped = deduped[:limit]
	}

	return Output{Documents: deduped, DupsRemoved: removed}
}

// deduplicate collapses documents that share full content, then documents
// that share a normalized key. The key-collapse survivor is the document
// with the most authoritative identity (canonical beats resolved beats raw);
// ties go to the longer content, then the higher score (R2.1-R2.4). Missing
// fields are filled in from the collapsed duplicates.
func (e *Engine) deduplicate(docs []types.CanonicalDocument) ([]types.CanonicalDocument, int) {
	docs, removedByHash := e.collapseByContentHash(docs)

	seen := make(map[string]int) // dedup key → index in deduped
	var deduped []types.CanonicalDocument
	removed := 0

	for _, d := range docs {
		if d.NormalizedKey == "" {
			d.NormalizedKey = canonical.Key(d)
		}
		idx, ok := seen[d.NormalizedKey]
		if !ok {
			seen[d.NormalizedKey] = len(deduped)
			deduped = append(deduped, d)
			continue
		}

		removed++
		if prefer(d, deduped[idx]) {
			merged := d
			fillMissing(&merged, deduped[idx])
			deduped[idx] = merged
		} else {
			fillMissing(&deduped[idx], d)
		}
	}

	return deduped, removedByHash + removed
}

// collapseByContentHash keeps one document per content hash, catching the
// same page served under unrelated URLs. Documents without content pass
// through untouched (R2.4).
func (e *Engine) collapseByContentHash(docs []types.CanonicalDocument) ([]types.CanonicalDocument, int) {
	seen := make(map[string]int) // content hash → index in out
	var out []types.CanonicalDocument
	removed := 0

	for _, d := range docs {
		if !d.HasContent() {
			out = append(out, d)
			continue
		}
		h := canonical.ContentHash(d.Content)
		idx, ok := seen[h]
		if !ok {
			seen[h] = len(out)
			out = append(out, d)
			continue
		}

		removed++
		if prefer(d, out[idx]) {
			merged := d
			fillMissing(&merged, out[idx])
			out[idx] = merged
		} else {
			fillMissing(&out[idx], d)
		}
	}

	return out, removed
}

// prefer reports whether a should survive over b when they share a key.
func prefer(a, b types.CanonicalDocument) bool {
	ap, bp := canonical.KeyPriority(a), canonical.KeyPriority(b)
	if ap != bp {
		return ap > bp
	}
	if len(a.Content) != len(b.Content) {
		return len(a.Content) > len(b.Content)
	}
	return a.NormalizedScore > b.NormalizedScore
}

// fillMissing copies fields from src into dst where dst has none.
func fillMissing(dst *types.CanonicalDocument, src types.CanonicalDocument) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Excerpt == "" {
		dst.Excerpt = src.Excerpt
	}
	if dst.Content == "" {
		dst.Content = src.Content
	}
	if dst.PublishedAt.IsZero() {
		dst.PublishedAt = src.PublishedAt
	}
	if dst.CanonicalURL == "" {
		dst.CanonicalURL = src.CanonicalURL
	}
	if dst.ResolvedURL == "" {
		dst.ResolvedURL = src.ResolvedURL
	}
}

// score computes the composite relevance score in [0,1]: half the incoming
// relevance plus authority, recency, and length bonuses (R3.1-R3.4).
func (e *Engine) score(d types.CanonicalDocument) float64 {
	s := 0.5 * clamp01(d.NormalizedScore)

	if e.isAuthority(d.Hostname) {
		s += e.cfg.AuthorityBonus
	}

	if !d.PublishedAt.IsZero() {
		age := e.now().Sub(d.PublishedAt)
		if age < 0 {
			age = 0
		}
		halvings := float64(age) / float64(e.cfg.RecencyHalfLife)
		s += e.cfg.RecencyBonus * math.Exp2(-halvings)
	}

	if len(d.Content) >= e.cfg.MinContentLength {
		s += e.cfg.LengthBonus
	}
	if len(d.Title) >= e.cfg.MinTitleLength {
		s += e.cfg.LengthBonus
	}
	if len(d.Excerpt) >= e.cfg.MinExcerptLength {
		s += e.cfg.LengthBonus
	}

	return clamp01(s)
}

func (e *Engine) isAuthority(host string) bool {
	for _, a := range e.cfg.AuthorityHosts {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// capPerHost keeps at most MaxPerHost documents per hostname, preserving
// score order (R4.1).
func (e *Engine) capPerHost(docs []types.CanonicalDocument) []types.CanonicalDocument {
	counts := make(map[string]int)
	var out []types.CanonicalDocument
	for _, d := range docs {
		if counts[d.Hostname] >= e.cfg.MaxPerHost {
			continue
		}
		counts[d.Hostname]++
		out = append(out, d)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
