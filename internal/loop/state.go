// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package loop

import (
	"github.com/pdiddy/deep-research/pkg/types"
)

// State is the session state threaded through the control loop. Each field
// has one merge rule: documents accumulate, the draft and issues are
// replaced wholesale, and counters only increment (R1.1-R1.4).
type State struct {
	SessionID string
	Goal      string

	// Documents accumulates every collected document across research
	// passes, keyed by normalized key. Never shrinks.
	Documents []types.CanonicalDocument

	// Findings holds the planner's round findings, append-only.
	Findings []types.Finding

	// Draft is the current draft. A new draft replaces the old one.
	Draft *types.Draft

	// Issues are the latest gate pass's findings. Each pass replaces them.
	Issues []types.QualityIssue

	// Counters track gate passes and route usage.
	Counters types.IterationCounters

	seen map[string]bool
}

// MergeDocuments appends documents whose normalized key the state has not
// seen. Existing documents are never removed or replaced (R1.2).
func (s *State) MergeDocuments(docs []types.CanonicalDocument) int {
	if s.seen == nil {
		s.seen = make(map[string]bool)
		for _, d := range s.Documents {
			s.seen[d.NormalizedKey] = true
		}
	}
	added := 0
	for _, d := range docs {
		if d.NormalizedKey == "" || s.seen[d.NormalizedKey] {
			continue
		}
		s.seen[d.NormalizedKey] = true
		s.Documents = append(s.Documents, d)
		added++
	}
	return added
}

// ReplaceDraft installs a new draft wholesale (R1.3).
func (s *State) ReplaceDraft(d types.Draft) {
	s.Draft = &d
}

// ReplaceIssues installs the latest gate pass's issues wholesale (R1.4).
func (s *State) ReplaceIssues(issues []types.QualityIssue) {
	s.Issues = issues
}

// HasBlockingIssues reports whether any current issue blocks acceptance.
func (s *State) HasBlockingIssues() bool {
	for _, is := range s.Issues {
		if is.IsBlocking() {
			return true
		}
	}
	return false
}

// NeedsResearch reports whether any blocking issue calls for more evidence.
func (s *State) NeedsResearch() bool {
	for _, is := range s.Issues {
		if is.IsBlocking() && is.Type == types.IssueNeedsResearch {
			return true
		}
	}
	return false
}

// NeedsRevision reports whether any blocking issue calls for rewriting the
// draft rather than collecting more evidence.
func (s *State) NeedsRevision() bool {
	for _, is := range s.Issues {
		if is.IsBlocking() && is.Type == types.IssueNeedsRevision {
			return true
		}
	}
	return false
}
