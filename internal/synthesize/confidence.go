// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synthesize

import (
	"strings"

	"github.com/pdiddy/deep-research/internal/canonical"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Confidence weights for the four support signals (R5.1).
const (
	weightSourceCoverage   = 0.3
	weightCitationCoverage = 0.3
	weightReputability     = 0.2
	weightCitationDensity  = 0.2

	// targetSources is the distinct-source count at which the source
	// coverage term saturates.
	targetSources = 5

	// targetCitations is the marker count at which the citation coverage
	// term saturates.
	targetCitations = 10

	// targetDensity is the citations-per-1000-characters value at which the
	// density term saturates.
	targetDensity = 2.0
)

// reputableSuffixes match hosts that get the domain-pattern reputability
// credit: institutional TLDs plus well-known reference and archive hosts.
var reputableSuffixes = []string{
	".gov", ".edu", "wikipedia.org", "arxiv.org", "nature.com",
	"acm.org", "ieee.org", "nih.gov", "github.com",
}

// Confidence estimates in [0,1] how well a draft is supported by its
// evidence as a weighted sum of four terms: distinct cited sources, citation
// marker count, source reputability (domain patterns and enriched content),
// and citation density. Each term is capped at 1 before weighting and the
// total is capped at 1 (R5.1-R5.3). A draft with no citations scores 0.
func Confidence(draft types.Draft, evidence []types.Evidence) float64 {
	if len(draft.Citations) == 0 || len(evidence) == 0 || draft.Text == "" {
		return 0
	}

	distinct := make(map[string]bool)
	for _, c := range draft.Citations {
		distinct[c.URL] = true
	}
	sourceTerm := cap1(float64(len(distinct)) / targetSources)

	markers := strings.Count(draft.Text, "[Source ")
	citationTerm := cap1(float64(markers) / targetCitations)

	reputabilityTerm := cap1(reputability(draft.Citations, evidence))

	density := float64(markers) / (float64(len(draft.Text)) / 1000.0)
	densityTerm := cap1(density / targetDensity)

	return cap1(weightSourceCoverage*sourceTerm +
		weightCitationCoverage*citationTerm +
		weightReputability*reputabilityTerm +
		weightCitationDensity*densityTerm)
}

// reputability averages a per-source heuristic over the cited evidence:
// half credit for being cited at all, a quarter for a reputable domain
// pattern, a quarter for enriched full content backing the snippet.
func reputability(citations []types.Citation, evidence []types.Evidence) float64 {
	byURL := make(map[string]types.Evidence, len(evidence))
	for _, ev := range evidence {
		byURL[ev.URL] = ev
	}

	sum := 0.0
	for _, c := range citations {
		score := 0.5
		if reputableHost(canonical.Hostname(c.URL)) {
			score += 0.25
		}
		if ev, ok := byURL[c.URL]; ok && ev.ContentHash != "" {
			score += 0.25
		}
		sum += score
	}
	return sum / float64(len(citations))
}

func reputableHost(host string) bool {
	if host == "" {
		return false
	}
	for _, s := range reputableSuffixes {
		if strings.HasPrefix(s, ".") {
			if strings.HasSuffix(host, s) {
				return true
			}
			continue
		}
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

func cap1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
