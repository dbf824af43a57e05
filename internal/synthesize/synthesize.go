// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synthesize turns collected documents into a cited narrative draft.
// Implements: prd106-synthesis (R1-R5);
//
//	docs/ARCHITECTURE § Synthesizer.
package synthesize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/deep-research/internal/canonical"
	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/pkg/types"
)

// ErrNoEvidence is returned when synthesis is attempted with no documents.
var ErrNoEvidence = errors.New("no evidence to synthesize from")

// Synthesizer generates narrative drafts from evidence.
type Synthesizer struct {
	cfg    types.SynthesisConfig
	client llm.Client
}

// New creates a Synthesizer, filling in defaults for unset config fields.
func New(cfg types.SynthesisConfig, client llm.Client) *Synthesizer {
	if cfg.MaxEvidence == 0 {
		cfg.MaxEvidence = 20
	}
	if cfg.SnippetLength == 0 {
		cfg.SnippetLength = 600
	}
	return &Synthesizer{cfg: cfg, client: client}
}

// FlattenResults collects the documents from worker results into one slice,
// preserving task order. The rank engine deduplicates afterward.
func FlattenResults(results []types.WorkerResult) []types.CanonicalDocument {
	var docs []types.CanonicalDocument
	for _, r := range results {
		docs = append(docs, r.Documents...)
	}
	return docs
}

// BuildEvidence converts ranked documents into the evidence list the
// narrative model cites against. Order is frozen here: citation IDs are
// 1-based indexes into this list (R3.2). At most MaxEvidence entries are
// produced.
func (s *Synthesizer) BuildEvidence(docs []types.CanonicalDocument) []types.Evidence {
	var evidence []types.Evidence
	for _, d := range docs {
		if len(evidence) == s.cfg.MaxEvidence {
			break
		}
		snippet := d.Content
		if snippet == "" {
			snippet = d.Excerpt
		}
		snippet = truncate(snippet, s.cfg.SnippetLength)
		ev := types.Evidence{
			URL:     d.URL,
			Title:   d.Title,
			Snippet: strings.TrimSpace(snippet),
			Source:  d.Provider,
		}
		if d.HasContent() {
			ev.ContentHash = canonical.ContentHash(d.Content)
			ev.Chunks = splitChunks(d.Content)
		}
		evidence = append(evidence, ev)
	}
	return evidence
}

// Synthesize generates a draft for the goal from the evidence. When prev is
// non-nil the call is a revision: the model rewrites the previous draft to
// address the issues instead of starting over (R4.2). The returned draft
// replaces any previous one wholesale.
func (s *Synthesizer) Synthesize(ctx context.Context, goal string, evidence []types.Evidence, prev *types.Draft, issues []types.QualityIssue, w io.Writer) (types.Draft, error) {
	if len(evidence) == 0 {
		return types.Draft{}, ErrNoEvidence
	}

	prompt := s.buildPrompt(goal, evidence, prev, issues)
	fmt.Fprintf(w, "synthesizing from %d sources\n", len(evidence))

	raw, err := s.client.Generate(ctx, synthesisSystemPrompt, prompt)
	if err != nil {
		return types.Draft{}, fmt.Errorf("generating narrative: %w", err)
	}

	text, citations := ExtractCitations(raw, evidence)
	if strings.TrimSpace(text) == "" {
		return types.Draft{}, fmt.Errorf("model returned an empty narrative")
	}

	draft := types.Draft{
		Text:      text,
		Citations: citations,
	}
	draft.Confidence = Confidence(draft, evidence)
	return draft, nil
}

const synthesisSystemPrompt = "You are a research report writer. You write clear, well-structured Markdown reports grounded strictly in the provided sources, citing them inline as [Source N]. You never invent facts or cite sources that are not listed."

func (s *Synthesizer) buildPrompt(goal string, evidence []types.Evidence, prev *types.Draft, issues []types.QualityIssue) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research goal: %s\n\nSources:\n", goal)
	for i, ev := range evidence {
		fmt.Fprintf(&sb, "[Source %d] %s (%s)\n%s\n\n", i+1, ev.Title, ev.URL, ev.Snippet)
	}

	if prev != nil {
		sb.WriteString("Previous draft:\n")
		sb.WriteString(prev.Text)
		sb.WriteString("\n\n")
		if len(issues) > 0 {
			sb.WriteString("Reviewer issues to address:\n")
			for i, is := range issues {
				fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, is.Severity, is.Description)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("Rewrite the draft to address every issue. Keep what already works.\n")
	} else {
		sb.WriteString("Write a research report in Markdown that answers the goal.\n")
	}

	sb.WriteString("Cite sources inline as [Source N] immediately after each supported claim. Only cite listed sources. Aim for 400-1500 words.")
	return sb.String()
}

// truncate cuts s at the last rune boundary at or before max bytes, so a
// byte-length cap never splits a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// splitChunks breaks content into paragraph-sized pieces used for excerpt
// binding. Blank-line separated blocks shorter than 40 characters are
// skipped as headings or noise.
func splitChunks(content string) []string {
	var chunks []string
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if len(block) < 40 {
			continue
		}
		chunks = append(chunks, block)
	}
	return chunks
}
