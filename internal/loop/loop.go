// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package loop drives a research session end to end: initial research,
// synthesis, and the bounded review cycle that routes failing drafts back to
// research or revision.
// Implements: prd108-control-loop (R1-R4);
//
//	docs/ARCHITECTURE § Control Loop.
package loop

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/deep-research/internal/rank"
	"github.com/pdiddy/deep-research/internal/synthesize"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Researcher runs the initial multi-round research for a goal.
type Researcher interface {
	Run(ctx context.Context, goal string, rounds int, w io.Writer) ([]types.Finding, error)
}

// TaskRunner plans and executes supplemental research tasks.
type TaskRunner interface {
	Plan(ctx context.Context, goal string, issues []types.QualityIssue) ([]types.ResearchTask, error)
	RunAll(ctx context.Context, tasks []types.ResearchTask, w io.Writer) []types.WorkerResult
}

// Synthesizer builds evidence and generates drafts.
type Synthesizer interface {
	BuildEvidence(docs []types.CanonicalDocument) []types.Evidence
	Synthesize(ctx context.Context, goal string, evidence []types.Evidence, prev *types.Draft, issues []types.QualityIssue, w io.Writer) (types.Draft, error)
}

// Reviewer reviews a draft against the quality thresholds.
type Reviewer interface {
	Review(ctx context.Context, goal string, draft types.Draft, evidence []types.Evidence, counters types.IterationCounters, final bool, w io.Writer) []types.QualityIssue
}

// Enricher fetches full content for discovered documents.
type Enricher interface {
	Enrich(ctx context.Context, docs []types.CanonicalDocument, w io.Writer) []types.CanonicalDocument
}

// Loop owns a research session from goal to accepted report.
type Loop struct {
	cfg      types.LoopConfig
	research Researcher
	tasks    TaskRunner
	synth    Synthesizer
	review   Reviewer
	enricher Enricher
	engine   *rank.Engine
}

// New creates a Loop, filling in defaults for unset config fields. The
// enricher may be nil to skip content fetching.
func New(cfg types.LoopConfig, research Researcher, tasks TaskRunner, synth Synthesizer, review Reviewer, enricher Enricher, engine *rank.Engine) *Loop {
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 3
	}
	if cfg.ResearchBudget == 0 {
		cfg.ResearchBudget = 2
	}
	if cfg.RevisionBudget == 0 {
		cfg.RevisionBudget = 2
	}
	return &Loop{
		cfg:      cfg,
		research: research,
		tasks:    tasks,
		synth:    synth,
		review:   review,
		enricher: enricher,
		engine:   engine,
	}
}

// Run executes a full research session and always terminates: the gate runs
// at most MaxIterations passes, and the last permitted pass accepts the
// draft unconditionally (R2.1, R4.1).
func (l *Loop) Run(ctx context.Context, goal string, w io.Writer) (types.Report, error) {
	state := &State{
		SessionID: uuid.NewString(),
		Goal:      goal,
	}

	findings, err := l.research.Run(ctx, goal, 0, w)
	if err != nil {
		return types.Report{}, fmt.Errorf("initial research: %w", err)
	}
	state.Findings = findings
	for _, f := range findings {
		state.MergeDocuments(f.Results)
	}

	if len(state.Documents) == 0 {
		// Nothing to synthesize from; report the empty outcome rather than
		// inventing a narrative (R3.4).
		fmt.Fprintf(w, "no sources found, producing empty report\n")
		return types.Report{
			SessionID: state.SessionID,
			Goal:      goal,
			Draft:     types.Draft{Text: "No sources were found for this research goal.", Confidence: 0},
			Issues: []types.QualityIssue{{
				Type:        types.IssueNeedsResearch,
				Description: "no sources were found for the goal",
				Severity:    types.SeverityWarning,
			}},
			Counters:  state.Counters,
			CreatedAt: time.Now().UTC(),
		}, nil
	}

	evidence, err := l.prepareEvidence(ctx, state, w)
	if err != nil {
		return types.Report{}, err
	}

	draft, err := l.synth.Synthesize(ctx, goal, evidence, nil, nil, w)
	if err != nil {
		return types.Report{}, fmt.Errorf("initial synthesis: %w", err)
	}
	state.ReplaceDraft(draft)

	for {
		final := state.Counters.TotalIterations >= l.cfg.MaxIterations-1
		issues := l.review.Review(ctx, goal, *state.Draft, evidence, state.Counters, final, w)
		state.Counters.TotalIterations++
		state.ReplaceIssues(issues)
		fmt.Fprintf(w, "gate pass %d: %d issues\n", state.Counters.TotalIterations, len(issues))

		if final {
			// Last permitted pass: accept unconditionally, flagged as forced
			// regardless of what the checks found (R4.1).
			demoteAll(state.Issues)
			state.Counters.ForceApproved = true
			return l.finalize(state), nil
		}

		if !state.HasBlockingIssues() {
			return l.finalize(state), nil
		}

		routed, err := l.route(ctx, state, &evidence, w)
		if err != nil {
			return types.Report{}, err
		}
		if !routed {
			// No route within budget can change the draft, so accept it
			// as-is rather than re-reviewing forever (R4.3).
			demoteAll(state.Issues)
			state.Counters.ForceApproved = true
			fmt.Fprintf(w, "no route left, force approving\n")
			return l.finalize(state), nil
		}
	}
}

// route sends the failing draft to supplemental research or revision,
// whichever its issues call for and its budgets allow. It reports false
// when no route is available (R3.1-R3.3).
func (l *Loop) route(ctx context.Context, state *State, evidence *[]types.Evidence, w io.Writer) (bool, error) {
	goal := state.Goal
	wantRevision := state.NeedsRevision()

	if state.NeedsResearch() && state.Counters.ResearchIterations < l.cfg.ResearchBudget {
		tasks, err := l.tasks.Plan(ctx, goal, state.Issues)
		if err != nil {
			return false, fmt.Errorf("planning supplemental research: %w", err)
		}
		if len(tasks) > 0 {
			state.Counters.ResearchIterations++
			fmt.Fprintf(w, "supplemental research: %d tasks\n", len(tasks))

			results := l.tasks.RunAll(ctx, tasks, w)
			state.MergeDocuments(synthesize.FlattenResults(results))

			added, err := l.supplementEvidence(ctx, state, evidence, w)
			if err != nil {
				return false, err
			}
			fmt.Fprintf(w, "supplemental research added %d evidence entries\n", added)

			draft, err := l.synth.Synthesize(ctx, goal, *evidence, state.Draft, state.Issues, w)
			if err != nil {
				return false, fmt.Errorf("re-synthesis: %w", err)
			}
			state.ReplaceDraft(draft)
			return true, nil
		}
		// No researchable tasks came back; the issues can only be worked
		// into the draft, so treat them as revision instructions.
		wantRevision = true
	}

	if wantRevision && state.Counters.RevisionIterations < l.cfg.RevisionBudget {
		state.Counters.RevisionIterations++
		fmt.Fprintf(w, "revising draft\n")

		draft, err := l.synth.Synthesize(ctx, goal, *evidence, state.Draft, state.Issues, w)
		if err != nil {
			return false, fmt.Errorf("revision: %w", err)
		}
		state.ReplaceDraft(draft)
		return true, nil
	}

	return false, nil
}

// prepareEvidence enriches and ranks the session's documents and freezes the
// initial evidence block.
func (l *Loop) prepareEvidence(ctx context.Context, state *State, w io.Writer) ([]types.Evidence, error) {
	docs := state.Documents
	if l.engine != nil {
		docs = l.engine.Process(docs, rank.PhaseFinal).Documents
	}
	if l.enricher != nil {
		docs = l.enricher.Enrich(ctx, docs, w)
	}
	return l.synth.BuildEvidence(docs), nil
}

// supplementEvidence appends evidence for newly collected documents.
// Existing entries keep their positions so citation IDs in the previous
// draft stay valid (R1.2).
func (l *Loop) supplementEvidence(ctx context.Context, state *State, evidence *[]types.Evidence, w io.Writer) (int, error) {
	known := make(map[string]bool, len(*evidence))
	for _, ev := range *evidence {
		known[ev.URL] = true
	}

	var fresh []types.CanonicalDocument
	for _, d := range state.Documents {
		if !known[d.URL] {
			fresh = append(fresh, d)
		}
	}
	if l.engine != nil {
		fresh = l.engine.Process(fresh, rank.PhaseFinal).Documents
	}
	if l.enricher != nil {
		fresh = l.enricher.Enrich(ctx, fresh, w)
	}

	added := l.synth.BuildEvidence(fresh)
	*evidence = append(*evidence, added...)
	return len(added), nil
}

func (l *Loop) finalize(state *State) types.Report {
	return types.Report{
		SessionID: state.SessionID,
		Goal:      state.Goal,
		Draft:     *state.Draft,
		Issues:    state.Issues,
		Documents: state.Documents,
		Counters:  state.Counters,
		CreatedAt: time.Now().UTC(),
	}
}

func demoteAll(issues []types.QualityIssue) {
	for i := range issues {
		issues[i].Severity = types.SeverityWarning
	}
}
