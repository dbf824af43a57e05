// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrate decomposes a research goal into independent tasks and
// executes them on concurrent workers.
// Implements: prd105-orchestrator (R1-R4);
//
//	docs/ARCHITECTURE § Orchestrator.
package orchestrate

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/rank"
	"github.com/pdiddy/deep-research/internal/search"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Orchestrator plans research tasks and fans them out to workers.
type Orchestrator struct {
	cfg       types.OrchestratorConfig
	searchCfg types.SearchConfig
	client    llm.Client
	providers []search.Provider
	engine    *rank.Engine
}

// New creates an Orchestrator, filling in defaults for unset config fields.
// The llm client may be nil, in which case decomposition falls back to
// deterministic goal-derived tasks (R1.4).
func New(cfg types.OrchestratorConfig, searchCfg types.SearchConfig, client llm.Client, providers []search.Provider, engine *rank.Engine) *Orchestrator {
	if cfg.MaxTasks == 0 {
		cfg.MaxTasks = 8
	}
	if cfg.MinTasks == 0 {
		cfg.MinTasks = 3
	}
	if cfg.SupplementalTasks == 0 {
		cfg.SupplementalTasks = 2
	}
	if cfg.WorkerRate == 0 {
		cfg.WorkerRate = 2
	}
	if cfg.WorkerBurst == 0 {
		cfg.WorkerBurst = 1
	}
	if cfg.TopPerTask == 0 {
		cfg.TopPerTask = 5
	}
	return &Orchestrator{
		cfg:       cfg,
		searchCfg: searchCfg,
		client:    client,
		providers: providers,
		engine:    engine,
	}
}

// Plan produces research tasks for the goal. With no issues it decomposes
// the goal into MinTasks to MaxTasks initial tasks (R1.1). With issues it
// plans at most SupplementalTasks tasks targeting the needs_research issues;
// when every issue is needs_revision there is nothing to research and Plan
// returns no tasks (R1.3).
func (o *Orchestrator) Plan(ctx context.Context, goal string, issues []types.QualityIssue) ([]types.ResearchTask, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, fmt.Errorf("research goal is empty")
	}

	if issues != nil {
		var research []types.QualityIssue
		for _, is := range issues {
			if is.Type == types.IssueNeedsResearch {
				research = append(research, is)
			}
		}
		if len(research) == 0 {
			return nil, nil
		}
		return o.planSupplemental(ctx, goal, research), nil
	}

	return o.planInitial(ctx, goal), nil
}

// taskSpec is the JSON shape the model returns for one task.
type taskSpec struct {
	Aspect   string   `json:"aspect"`
	Queries  []string `json:"queries"`
	Priority float64  `json:"priority"`
}

func (o *Orchestrator) planInitial(ctx context.Context, goal string) []types.ResearchTask {
	if o.client != nil {
		user := fmt.Sprintf(`Research goal: %s

Decompose the goal into %d to %d independent research tasks. Each task covers one aspect of the goal and carries 1-3 web search queries and a priority between 0 and 1.
Respond with a JSON object: {"tasks": [{"aspect": "...", "queries": ["..."], "priority": 0.8}]}. No text outside the JSON.`,
			goal, o.cfg.MinTasks, o.cfg.MaxTasks)

		var out struct {
			Tasks []taskSpec `json:"tasks"`
		}
		if err := llm.GenerateJSON(ctx, o.client, orchestratorSystemPrompt, user, &out); err == nil {
			tasks := buildTasks(out.Tasks, o.cfg.MaxTasks)
			if len(tasks) >= o.cfg.MinTasks {
				return tasks
			}
		}
	}

	// Deterministic decomposition keeps the pipeline moving when the model
	// is unavailable or under-delivers (R1.4).
	return []types.ResearchTask{
		{ID: uuid.NewString(), Aspect: "overview", Queries: []string{goal}, Priority: 1.0},
		{ID: uuid.NewString(), Aspect: "key details", Queries: []string{goal + " how it works"}, Priority: 0.7},
		{ID: uuid.NewString(), Aspect: "recent developments", Queries: []string{goal + " recent developments"}, Priority: 0.5},
	}
}

func (o *Orchestrator) planSupplemental(ctx context.Context, goal string, issues []types.QualityIssue) []types.ResearchTask {
	if o.client != nil {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Research goal: %s\n\nA draft report has these evidence gaps:\n", goal)
		for i, is := range issues {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, is.Description)
		}
		fmt.Fprintf(&sb, `
Plan at most %d research tasks that would close these gaps. Each task carries 1-3 web search queries and a priority between 0 and 1.
Respond with a JSON object: {"tasks": [{"aspect": "...", "queries": ["..."], "priority": 0.8}]}. No text outside the JSON.`, o.cfg.SupplementalTasks)

		var out struct {
			Tasks []taskSpec `json:"tasks"`
		}
		if err := llm.GenerateJSON(ctx, o.client, orchestratorSystemPrompt, sb.String(), &out); err == nil {
			if tasks := buildTasks(out.Tasks, o.cfg.SupplementalTasks); len(tasks) > 0 {
				return tasks
			}
		}
	}

	// One task per issue, capped.
	var tasks []types.ResearchTask
	for _, is := range issues {
		if len(tasks) == o.cfg.SupplementalTasks {
			break
		}
		tasks = append(tasks, types.ResearchTask{
			ID:       uuid.NewString(),
			Aspect:   is.Description,
			Queries:  []string{goal + " " + is.Description},
			Priority: 0.8,
		})
	}
	return tasks
}

const orchestratorSystemPrompt = "You are a research orchestrator. You decompose research goals into independent, parallelizable research tasks. You respond only with JSON."

// buildTasks converts model task specs into ResearchTasks, dropping specs
// without queries and clamping priorities.
func buildTasks(specs []taskSpec, max int) []types.ResearchTask {
	var tasks []types.ResearchTask
	for _, s := range specs {
		if len(tasks) == max {
			break
		}
		aspect := strings.TrimSpace(s.Aspect)
		var queries []string
		for _, q := range s.Queries {
			if q = strings.TrimSpace(q); q != "" {
				queries = append(queries, q)
			}
		}
		if aspect == "" || len(queries) == 0 {
			continue
		}
		p := s.Priority
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		tasks = append(tasks, types.ResearchTask{
			ID:       uuid.NewString(),
			Aspect:   aspect,
			Queries:  queries,
			Priority: p,
		})
	}
	return tasks
}

// RunAll executes every task on its own worker goroutine and joins the
// results in task order. Each task is consumed by exactly one worker; a
// worker that finds nothing still produces a result so the join never
// blocks (R2.2, R3.4).
func (o *Orchestrator) RunAll(ctx context.Context, tasks []types.ResearchTask, w io.Writer) []types.WorkerResult {
	if len(tasks) == 0 {
		return nil
	}

	results := make([]types.WorkerResult, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task types.ResearchTask) {
			defer wg.Done()
			results[i] = o.runTask(ctx, task, w)
		}(i, task)
	}
	wg.Wait()

	return results
}

// runTask executes one task's queries under the worker's rate limit and
// selects the top-scored documents (R2.3, R3.2).
func (o *Orchestrator) runTask(ctx context.Context, task types.ResearchTask, w io.Writer) types.WorkerResult {
	limiter := rate.NewLimiter(rate.Limit(o.cfg.WorkerRate), o.cfg.WorkerBurst)

	var found []types.CanonicalDocument
	executed := 0
	for _, q := range task.Queries {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		out, err := search.Discover(ctx, q, o.providers, o.searchCfg, w)
		if err != nil {
			fmt.Fprintf(w, "warning: task %q query %q failed: %v\n", task.Aspect, q, err)
			continue
		}
		executed++
		found = append(found, out.Documents...)
	}

	docsFound := len(found)
	if o.engine != nil {
		found = o.engine.Process(found, rank.PhaseDiscovery).Documents
	}
	found = boostByAspect(found, task.Aspect)
	if len(found) > o.cfg.TopPerTask {
		found = found[:o.cfg.TopPerTask]
	}

	return types.WorkerResult{
		TaskID:            task.ID,
		Aspect:            task.Aspect,
		Documents:         found,
		Summary:           taskSummary(task.Aspect, found),
		Confidence:        taskConfidence(len(found), o.cfg.TopPerTask),
		QueriesExecuted:   executed,
		DocumentsFound:    docsFound,
		DocumentsSelected: len(found),
	}
}

// boostByAspect nudges documents whose title or excerpt mention the task's
// aspect ahead of otherwise equal candidates (R3.2).
func boostByAspect(docs []types.CanonicalDocument, aspect string) []types.CanonicalDocument {
	words := aspectKeywords(aspect)
	if len(words) == 0 {
		return docs
	}

	for i := range docs {
		text := strings.ToLower(docs[i].Title + " " + docs[i].Excerpt)
		matched := 0
		for _, kw := range words {
			if strings.Contains(text, kw) {
				matched++
			}
		}
		docs[i].NormalizedScore += 0.1 * float64(matched) / float64(len(words))
		if docs[i].NormalizedScore > 1 {
			docs[i].NormalizedScore = 1
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].NormalizedScore > docs[j].NormalizedScore
	})
	return docs
}

// aspectKeywords extracts the substantive lowercase words of an aspect.
func aspectKeywords(aspect string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(aspect)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

// taskConfidence estimates coverage from how full the selection is: zero
// documents means zero confidence, a full selection approaches 1 (R3.3).
func taskConfidence(selected, target int) float64 {
	if selected == 0 {
		return 0
	}
	if target <= 0 || selected >= target {
		return 1
	}
	return 0.2 + 0.8*float64(selected)/float64(target)
}

func taskSummary(aspect string, docs []types.CanonicalDocument) string {
	if len(docs) == 0 {
		return fmt.Sprintf("no sources found for %s", aspect)
	}
	return fmt.Sprintf("%d sources on %s; top: %s", len(docs), aspect, docs[0].Title)
}
