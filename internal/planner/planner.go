// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package planner runs goal-driven research in up to three rounds, using gap
// analysis between rounds to direct the next round's queries.
// Implements: prd104-planner (R1-R4);
//
//	docs/ARCHITECTURE § Iterative Planner.
package planner

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/rank"
	"github.com/pdiddy/deep-research/internal/search"
	"github.com/pdiddy/deep-research/pkg/types"
)

// MaxRounds is the hard ceiling on research rounds.
const MaxRounds = 3

// defaultQueryDelay is the pause between consecutive queries within a round
// when the config leaves it unset.
const defaultQueryDelay = 1 * time.Second

// Planner executes rounds of query generation, search, and gap analysis.
type Planner struct {
	cfg       types.PlannerConfig
	searchCfg types.SearchConfig
	client    llm.Client
	providers []search.Provider
	engine    *rank.Engine
}

// New creates a Planner. The llm client may be nil, in which case query
// generation and gap analysis fall back to deterministic heuristics (R2.4).
func New(cfg types.PlannerConfig, searchCfg types.SearchConfig, client llm.Client, providers []search.Provider, engine *rank.Engine) *Planner {
	if cfg.QueryDelay == 0 {
		cfg.QueryDelay = defaultQueryDelay
	}
	return &Planner{
		cfg:       cfg,
		searchCfg: searchCfg,
		client:    client,
		providers: providers,
		engine:    engine,
	}
}

// Run executes up to rounds research rounds for the goal and returns one
// Finding per completed round, in round order. Rounds beyond MaxRounds are
// not executed (R1.1). Run stops early when a round's gap analysis reports
// nothing left to investigate (R1.3).
func (p *Planner) Run(ctx context.Context, goal string, rounds int, w io.Writer) ([]types.Finding, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("research goal is empty")
	}
	if rounds <= 0 || rounds > MaxRounds {
		rounds = MaxRounds
	}

	var findings []types.Finding
	queries := p.initialQueries(ctx, goal)

	for round := 1; round <= rounds; round++ {
		if ctx.Err() != nil {
			return findings, ctx.Err()
		}
		if len(queries) == 0 {
			break
		}

		fmt.Fprintf(w, "round %d: %d queries\n", round, len(queries))
		finding := p.executeRound(ctx, round, queries, w)
		findings = append(findings, finding)

		if round == rounds {
			break
		}

		gaps, nextQueries := p.analyzeGaps(ctx, goal, findings, round+1)
		findings[len(findings)-1].Gaps = gaps
		if len(gaps) == 0 {
			fmt.Fprintf(w, "round %d: no gaps identified, stopping early\n", round)
			break
		}
		queries = nextQueries
	}

	return findings, nil
}

// executeRound runs each query sequentially against its providers. A failing
// query contributes a warning and zero results (R3.3).
func (p *Planner) executeRound(ctx context.Context, round int, queries []string, w io.Writer) types.Finding {
	started := time.Now().UTC()

	var names []string
	seen := make(map[string]bool)

	var results []types.CanonicalDocument
	for i, q := range queries {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.QueryDelay):
			}
		}

		providers := p.queryProviders(round, i)
		for _, pr := range providers {
			if !seen[pr.Name()] {
				seen[pr.Name()] = true
				names = append(names, pr.Name())
			}
		}

		out, err := search.Discover(ctx, q, providers, p.searchCfg, w)
		if err != nil {
			fmt.Fprintf(w, "warning: query %q failed: %v\n", q, err)
			continue
		}
		results = append(results, out.Documents...)
	}

	if p.engine != nil {
		results = p.engine.Process(results, rank.PhaseDiscovery).Documents
	}

	return types.Finding{
		Round:   round,
		Queries: queries,
		Results: results,
		Metadata: types.RoundMetadata{
			QueriesGenerated: len(queries),
			SourcesFound:     len(results),
			ProvidersUsed:    names,
			StartedAt:        started,
			CompletedAt:      time.Now().UTC(),
		},
	}
}

// queryProviders selects the providers for one query. The first round fans
// every query out to all providers; later rounds alternate a single provider
// per query so consecutive queries sample different indexes (R3.2).
func (p *Planner) queryProviders(round, query int) []search.Provider {
	if round <= 1 || len(p.providers) <= 1 {
		return p.providers
	}
	return []search.Provider{p.providers[(round-1+query)%len(p.providers)]}
}

// initialQueries asks the model to decompose the goal into first-round
// queries, falling back to goal-derived queries when the model is
// unavailable or returns garbage (R2.4).
func (p *Planner) initialQueries(ctx context.Context, goal string) []string {
	fallback := []string{
		goal,
		goal + " overview",
		goal + " recent developments",
	}
	if p.client == nil {
		return fallback
	}

	var out struct {
		Queries []string `json:"queries"`
	}
	user := fmt.Sprintf(`Research goal: %s

Generate 3-5 focused web search queries that together cover the goal. Respond with a JSON object: {"queries": ["...", "..."]}. No text outside the JSON.`, goal)
	if err := llm.GenerateJSON(ctx, p.client, plannerSystemPrompt, user, &out); err != nil {
		return fallback
	}

	queries := cleanQueries(out.Queries, 5)
	if len(queries) == 0 {
		return fallback
	}
	return queries
}

// analyzeGaps asks the model what the findings so far fail to answer and
// which queries would fill those gaps. When the model is unavailable or its
// response is unusable, the next round proceeds on goal-derived fallback
// queries instead; only an explicit "no gaps" answer stops iteration early
// (R4.3, R4.4).
func (p *Planner) analyzeGaps(ctx context.Context, goal string, findings []types.Finding, nextRound int) (gaps, queries []string) {
	if p.client == nil {
		return fallbackFollowUps(goal, nextRound)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Research goal: %s\n\nFindings so far:\n", goal)
	n := 0
	for _, f := range findings {
		for _, d := range f.Results {
			n++
			fmt.Fprintf(&sb, "%d. %s — %s\n", n, d.Title, d.Excerpt)
			if n >= 30 {
				break
			}
		}
	}
	sb.WriteString(`
Identify up to 3 information gaps: aspects of the goal the findings do not answer. For each gap, propose one web search query. If the findings answer the goal, return empty arrays.
Respond with a JSON object: {"gaps": ["..."], "queries": ["..."]}. No text outside the JSON.`)

	var out struct {
		Gaps    []string `json:"gaps"`
		Queries []string `json:"queries"`
	}
	if err := llm.GenerateJSON(ctx, p.client, plannerSystemPrompt, sb.String(), &out); err != nil {
		return fallbackFollowUps(goal, nextRound)
	}

	gaps = cleanQueries(out.Gaps, 3)
	queries = cleanQueries(out.Queries, 3)
	if len(gaps) == 0 {
		// The model judged the findings complete.
		return nil, nil
	}
	if len(queries) == 0 {
		// Gaps without queries cannot direct another round; derive queries
		// from the goal instead.
		_, queries = fallbackFollowUps(goal, nextRound)
	}
	return gaps, queries
}

// fallbackFollowUps derives the next round's gaps and queries from the goal
// when the model cannot be asked: the second round digs for detail, the
// third validates what earlier rounds found.
func fallbackFollowUps(goal string, nextRound int) (gaps, queries []string) {
	if nextRound <= 2 {
		return []string{"technical and quantitative detail"},
			[]string{goal + " technical details", goal + " statistics", goal + " limitations"}
	}
	return []string{"independent validation of earlier findings"},
		[]string{goal + " case studies", goal + " expert analysis"}
}

const plannerSystemPrompt = "You are a research planning assistant. You decompose research goals into web search queries and identify gaps in collected findings. You respond only with JSON."

// cleanQueries trims, drops empties, removes duplicates, and caps the list.
func cleanQueries(in []string, max int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range in {
		q = strings.TrimSpace(q)
		if q == "" || seen[strings.ToLower(q)] {
			continue
		}
		seen[strings.ToLower(q)] = true
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}
