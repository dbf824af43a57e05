// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gate reviews drafts against progressively relaxing quality
// thresholds and classifies what a failing draft needs next.
// Implements: prd107-quality-gate (R1-R4);
//
//	docs/ARCHITECTURE § Quality Gate.
package gate

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Thresholds are the floors a draft must clear at a given iteration.
type Thresholds struct {
	MinConfidence      float64
	MinCitationDensity float64
	MinQualityScore    float64
}

// ThresholdsAt computes the floors for a review happening after
// totalIterations completed gate passes. Each completed pass relaxes every
// floor by RelaxationStep, never below zero, so later drafts face strictly
// easier bars and the loop cannot tighten behind itself (R1.2, R1.3).
func ThresholdsAt(cfg types.GateConfig, totalIterations int) Thresholds {
	relax := float64(totalIterations) * cfg.RelaxationStep
	return Thresholds{
		MinConfidence:      floor0(cfg.BaseMinConfidence - relax),
		MinCitationDensity: floor0(cfg.BaseMinCitationDensity - relax),
		MinQualityScore:    floor0(cfg.BaseMinQualityScore - relax),
	}
}

func floor0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Gate reviews drafts. The llm client may be nil, which disables the
// holistic check and leaves the mechanical checks in force.
type Gate struct {
	cfg    types.GateConfig
	client llm.Client
}

// New creates a Gate, filling in defaults for unset config fields.
func New(cfg types.GateConfig, client llm.Client) *Gate {
	if cfg.BaseMinConfidence == 0 {
		cfg.BaseMinConfidence = 0.6
	}
	if cfg.BaseMinCitationDensity == 0 {
		cfg.BaseMinCitationDensity = 1.0
	}
	if cfg.BaseMinQualityScore == 0 {
		cfg.BaseMinQualityScore = 0.6
	}
	if cfg.RelaxationStep == 0 {
		cfg.RelaxationStep = 0.15
	}
	if cfg.MinWords == 0 {
		cfg.MinWords = 200
	}
	if cfg.MaxWords == 0 {
		cfg.MaxWords = 5000
	}
	if cfg.MinEvidenceUtilization == 0 {
		cfg.MinEvidenceUtilization = 0.3
	}
	return &Gate{cfg: cfg, client: client}
}

// Review checks the draft and returns the issues found; an empty list means
// the draft is accepted as-is. The thresholds relax with the counter's
// completed iterations (R1.2). When final is set this is the last permitted
// pass: every issue is demoted to a warning so nothing blocks acceptance,
// and the caller records the force approval (R4.1, R4.2).
func (g *Gate) Review(ctx context.Context, goal string, draft types.Draft, evidence []types.Evidence, counters types.IterationCounters, final bool, w io.Writer) []types.QualityIssue {
	th := ThresholdsAt(g.cfg, counters.TotalIterations)
	var issues []types.QualityIssue

	words := len(strings.Fields(draft.Text))
	if words < g.cfg.MinWords {
		issues = append(issues, types.QualityIssue{
			Type:        types.IssueNeedsRevision,
			Description: fmt.Sprintf("draft has %d words, below the %d minimum", words, g.cfg.MinWords),
			Severity:    types.SeverityError,
		})
	}
	if words > g.cfg.MaxWords {
		issues = append(issues, types.QualityIssue{
			Type:        types.IssueNeedsRevision,
			Description: fmt.Sprintf("draft has %d words, above the %d maximum", words, g.cfg.MaxWords),
			Severity:    types.SeverityWarning,
		})
	}

	if len(draft.Citations) == 0 {
		issues = append(issues, types.QualityIssue{
			Type:        types.IssueNeedsResearch,
			Description: "draft cites no sources",
			Severity:    types.SeverityError,
		})
	}

	if marker := findPlaceholder(draft.Text); marker != "" {
		issues = append(issues, types.QualityIssue{
			Type:        types.IssueNeedsRevision,
			Description: fmt.Sprintf("draft contains placeholder text %q", marker),
			Severity:    types.SeverityError,
		})
	}

	if words >= g.cfg.MinWords && paragraphCount(draft.Text) < 2 {
		issues = append(issues, types.QualityIssue{
			Type:        types.IssueNeedsRevision,
			Description: "draft is a single paragraph with no structure",
			Severity:    types.SeverityWarning,
		})
	}

	if draft.Confidence < th.MinConfidence {
		issues = append(issues, types.QualityIssue{
			Type:        types.IssueNeedsResearch,
			Description: fmt.Sprintf("confidence %.2f is below the %.2f floor", draft.Confidence, th.MinConfidence),
			Severity:    types.SeverityError,
		})
	}

	if density := citationDensity(draft); density < th.MinCitationDensity {
		issues = append(issues, types.QualityIssue{
			Type:        types.IssueNeedsResearch,
			Description: fmt.Sprintf("citation density %.2f per 1000 chars is below the %.2f floor", density, th.MinCitationDensity),
			Severity:    types.SeverityError,
		})
	}

	if len(evidence) > 0 {
		utilization := float64(len(draft.Citations)) / float64(len(evidence))
		if utilization < g.cfg.MinEvidenceUtilization {
			issues = append(issues, types.QualityIssue{
				Type:        types.IssueNeedsResearch,
				Description: fmt.Sprintf("only %.0f%% of collected evidence is cited", utilization*100),
				Severity:    types.SeverityWarning,
			})
		}
	}

	if g.cfg.EnableHolistic && g.client != nil {
		issues = append(issues, g.holisticReview(ctx, goal, draft, th, w)...)
	}

	if final {
		for i := range issues {
			issues[i].Severity = types.SeverityWarning
		}
		if len(issues) > 0 {
			fmt.Fprintf(w, "final pass: accepting draft with %d outstanding issues\n", len(issues))
		}
	}

	return issues
}

// placeholderMarkers are fragments the model leaves behind when it punts on
// a section instead of writing it.
var placeholderMarkers = []string{
	"[tbd]", "[todo]", "[insert", "[citation needed]", "lorem ipsum",
	"[placeholder", "to be determined", "to be filled",
}

// findPlaceholder returns the first placeholder fragment found in text, or
// the empty string.
func findPlaceholder(text string) string {
	lower := strings.ToLower(text)
	for _, m := range placeholderMarkers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}

// paragraphCount counts blank-line separated blocks of text.
func paragraphCount(text string) int {
	count := 0
	for _, block := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(block) != "" {
			count++
		}
	}
	return count
}

// citationDensity counts citation markers per 1000 characters of draft text.
func citationDensity(draft types.Draft) float64 {
	if len(draft.Text) == 0 {
		return 0
	}
	markers := strings.Count(draft.Text, "[Source ")
	return float64(markers) / (float64(len(draft.Text)) / 1000.0)
}

const gateSystemPrompt = "You are a research report reviewer. You judge whether a report answers its goal coherently and is well grounded. You respond only with JSON."

// holisticReview asks the model for a quality score and structural issues.
// A model failure skips the holistic check rather than failing the review
// (R3.6).
func (g *Gate) holisticReview(ctx context.Context, goal string, draft types.Draft, th Thresholds, w io.Writer) []types.QualityIssue {
	user := fmt.Sprintf(`Research goal: %s

Draft report:
%s

Score the draft's relevance to the goal and its coherence as a single quality_score between 0 and 1. List concrete issues; classify each as "needs_research" (missing or weak evidence) or "needs_revision" (structure or writing), with severity "error" or "warning".
Respond with a JSON object: {"quality_score": 0.8, "issues": [{"type": "needs_revision", "description": "...", "severity": "warning"}]}. No text outside the JSON.`, goal, draft.Text)

	var out struct {
		QualityScore float64              `json:"quality_score"`
		Issues       []types.QualityIssue `json:"issues"`
	}
	if err := llm.GenerateJSON(ctx, g.client, gateSystemPrompt, user, &out); err != nil {
		fmt.Fprintf(w, "warning: holistic review unavailable: %v\n", err)
		return nil
	}

	var issues []types.QualityIssue
	if out.QualityScore < th.MinQualityScore {
		issues = append(issues, types.QualityIssue{
			Type:        types.IssueNeedsRevision,
			Description: fmt.Sprintf("holistic quality %.2f is below the %.2f floor", out.QualityScore, th.MinQualityScore),
			Severity:    types.SeverityError,
		})
	}
	for _, is := range out.Issues {
		if is.Description == "" {
			continue
		}
		if is.Type != types.IssueNeedsResearch && is.Type != types.IssueNeedsRevision {
			is.Type = types.IssueNeedsRevision
		}
		if is.Severity != types.SeverityError && is.Severity != types.SeverityWarning {
			is.Severity = types.SeverityWarning
		}
		issues = append(issues, is)
	}
	return issues
}
