// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// IssueType classifies a quality issue by the remedy it calls for.
// Per prd107-quality-gate R2.1.
type IssueType string

const (
	// IssueNeedsResearch marks evidence, citation, or confidence problems
	// that supplemental research can fix.
	IssueNeedsResearch IssueType = "needs_research"

	// IssueNeedsRevision marks structural or writing problems a rewrite
	// can fix without new evidence.
	IssueNeedsRevision IssueType = "needs_revision"
)

// IssueSeverity grades a quality issue.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// QualityIssue is one finding from a quality gate pass. Issues describe the
// current draft only; each pass's list replaces the previous one.
// Per prd107-quality-gate R2.1-R2.3.
type QualityIssue struct {
	// Type selects the control loop route: needs_research or needs_revision.
	Type IssueType `json:"type" yaml:"type"`

	// Description explains the problem in enough detail to act on.
	Description string `json:"description" yaml:"description"`

	// Severity grades the issue: error blocks acceptance, warning does not.
	Severity IssueSeverity `json:"severity" yaml:"severity"`
}

// IsBlocking reports whether the issue blocks acceptance.
func (q QualityIssue) IsBlocking() bool {
	return q.Severity == SeverityError
}

// IterationCounters track control loop progress. All counters are
// monotonically non-decreasing and bounded by the configured ceilings.
// Per prd108-control-loop R1.1-R1.3.
type IterationCounters struct {
	// TotalIterations counts every quality gate pass.
	TotalIterations int `json:"total_iterations" yaml:"total_iterations"`

	// ResearchIterations counts passes routed to supplemental research.
	ResearchIterations int `json:"research_iterations" yaml:"research_iterations"`

	// RevisionIterations counts passes routed to a rewrite.
	RevisionIterations int `json:"revision_iterations" yaml:"revision_iterations"`

	// ForceApproved is set when the final permitted iteration accepted the
	// draft unconditionally.
	ForceApproved bool `json:"force_approved" yaml:"force_approved"`
}

// Draft is one synthesized narrative with its extracted citations. A new
// draft replaces the previous one wholesale; drafts are never merged.
// Per prd106-synthesis R4.1.
type Draft struct {
	// Text is the narrative in Markdown.
	Text string `json:"text" yaml:"text"`

	// Citations are the inline references extracted from Text.
	Citations []Citation `json:"citations" yaml:"citations"`

	// Confidence is the synthesizer's estimate in [0,1] of how well the
	// draft is supported by its evidence.
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Report is the finalized output of a research session.
// Per prd109-store R2.1.
type Report struct {
	// SessionID identifies the research session.
	SessionID string `json:"session_id" yaml:"session_id"`

	// Goal is the research goal the session answered.
	Goal string `json:"goal" yaml:"goal"`

	// Draft is the accepted draft.
	Draft Draft `json:"draft" yaml:"draft"`

	// Issues are any non-blocking issues remaining at acceptance.
	Issues []QualityIssue `json:"issues,omitempty" yaml:"issues,omitempty"`

	// Documents are the session's collected documents, carried for archiving.
	Documents []CanonicalDocument `json:"documents,omitempty" yaml:"documents,omitempty"`

	// Counters records how many iterations acceptance took.
	Counters IterationCounters `json:"counters" yaml:"counters"`

	// CreatedAt is when the report was finalized.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
