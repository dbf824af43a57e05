// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package loop

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/pdiddy/deep-research/internal/rank"
	"github.com/pdiddy/deep-research/pkg/types"
)

// stubResearcher returns fixed findings.
type stubResearcher struct {
	findings []types.Finding
	err      error
}

func (s *stubResearcher) Run(_ context.Context, _ string, _ int, _ io.Writer) ([]types.Finding, error) {
	return s.findings, s.err
}

// stubTasks returns fixed tasks and results and counts invocations.
type stubTasks struct {
	tasks    []types.ResearchTask
	results  []types.WorkerResult
	planned  int
	executed int
}

func (s *stubTasks) Plan(_ context.Context, _ string, _ []types.QualityIssue) ([]types.ResearchTask, error) {
	s.planned++
	return s.tasks, nil
}

func (s *stubTasks) RunAll(_ context.Context, _ []types.ResearchTask, _ io.Writer) []types.WorkerResult {
	s.executed++
	return s.results
}

// stubSynth builds trivial evidence and returns sequential drafts.
type stubSynth struct {
	calls int
}

func (s *stubSynth) BuildEvidence(docs []types.CanonicalDocument) []types.Evidence {
	var evidence []types.Evidence
	for _, d := range docs {
		evidence = append(evidence, types.Evidence{URL: d.URL, Title: d.Title, Snippet: d.Excerpt})
	}
	return evidence
}

func (s *stubSynth) Synthesize(_ context.Context, _ string, evidence []types.Evidence, prev *types.Draft, _ []types.QualityIssue, _ io.Writer) (types.Draft, error) {
	s.calls++
	text := fmt.Sprintf("draft %d from %d sources [Source 1]", s.calls, len(evidence))
	if prev != nil {
		text += " (revised)"
	}
	return types.Draft{Text: text, Citations: []types.Citation{{ID: 1}}, Confidence: 0.7}, nil
}

// scriptedReviewer returns queued issue lists; when the script is exhausted
// it accepts. It honors final by demoting, like the real gate.
type scriptedReviewer struct {
	script [][]types.QualityIssue
	calls  int
	finals []bool
}

func (s *scriptedReviewer) Review(_ context.Context, _ string, _ types.Draft, _ []types.Evidence, _ types.IterationCounters, final bool, _ io.Writer) []types.QualityIssue {
	s.finals = append(s.finals, final)
	var issues []types.QualityIssue
	if s.calls < len(s.script) {
		issues = s.script[s.calls]
	}
	s.calls++
	if final {
		for i := range issues {
			issues[i].Severity = types.SeverityWarning
		}
	}
	return issues
}

func docsFinding(urls ...string) types.Finding {
	f := types.Finding{Round: 1}
	for _, u := range urls {
		f.Results = append(f.Results, types.CanonicalDocument{
			URL: u, NormalizedKey: u, Hostname: "example.com", Title: "t", NormalizedScore: 0.9,
		})
	}
	return f
}

func researchIssue() types.QualityIssue {
	return types.QualityIssue{Type: types.IssueNeedsResearch, Description: "missing data", Severity: types.SeverityError}
}

func revisionIssue() types.QualityIssue {
	return types.QualityIssue{Type: types.IssueNeedsRevision, Description: "weak structure", Severity: types.SeverityError}
}

func newTestLoop(r Researcher, t TaskRunner, s Synthesizer, rev Reviewer) *Loop {
	return New(types.LoopConfig{MaxIterations: 3, ResearchBudget: 2, RevisionBudget: 2},
		r, t, s, rev, nil, rank.New(types.RankConfig{}))
}

func TestRunAcceptsCleanDraftFirstPass(t *testing.T) {
	synth := &stubSynth{}
	reviewer := &scriptedReviewer{}
	l := newTestLoop(&stubResearcher{findings: []types.Finding{docsFinding("https://a.example/1")}},
		&stubTasks{}, synth, reviewer)

	report, err := l.Run(context.Background(), "goal", &strings.Builder{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Counters.TotalIterations != 1 {
		t.Errorf("TotalIterations = %d, want 1", report.Counters.TotalIterations)
	}
	if report.Counters.ForceApproved {
		t.Error("clean acceptance should not be force approved")
	}
	if report.SessionID == "" || report.Goal != "goal" || report.CreatedAt.IsZero() {
		t.Errorf("report metadata incomplete: %+v", report)
	}
	if synth.calls != 1 {
		t.Errorf("synthesizer called %d times, want 1", synth.calls)
	}
}

func TestRunRoutesResearchIssues(t *testing.T) {
	tasks := &stubTasks{
		tasks: []types.ResearchTask{{ID: "t1", Aspect: "gap", Queries: []string{"q"}}},
		results: []types.WorkerResult{{
			TaskID: "t1",
			Documents: []types.CanonicalDocument{
				{URL: "https://new.example/2", NormalizedKey: "https://new.example/2", Hostname: "new.example", NormalizedScore: 0.8},
			},
		}},
	}
	synth := &stubSynth{}
	reviewer := &scriptedReviewer{script: [][]types.QualityIssue{
		{researchIssue()},
		nil,
	}}
	l := newTestLoop(&stubResearcher{findings: []types.Finding{docsFinding("https://a.example/1")}},
		tasks, synth, reviewer)

	report, err := l.Run(context.Background(), "goal", &strings.Builder{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Counters.ResearchIterations != 1 {
		t.Errorf("ResearchIterations = %d, want 1", report.Counters.ResearchIterations)
	}
	if report.Counters.RevisionIterations != 0 {
		t.Errorf("RevisionIterations = %d, want 0", report.Counters.RevisionIterations)
	}
	if tasks.planned != 1 || tasks.executed != 1 {
		t.Errorf("tasks planned %d / executed %d, want 1 / 1", tasks.planned, tasks.executed)
	}
	// Initial synthesis plus one re-synthesis after research.
	if synth.calls != 2 {
		t.Errorf("synthesizer called %d times, want 2", synth.calls)
	}
	if !strings.Contains(report.Draft.Text, "2 sources") {
		t.Errorf("draft = %q, want evidence grown to 2 sources", report.Draft.Text)
	}
}

func TestRunRoutesRevisionIssues(t *testing.T) {
	tasks := &stubTasks{}
	synth := &stubSynth{}
	reviewer := &scriptedReviewer{script: [][]types.QualityIssue{
		{revisionIssue()},
		nil,
	}}
	l := newTestLoop(&stubResearcher{findings: []types.Finding{docsFinding("https://a.example/1")}},
		tasks, synth, reviewer)

	report, err := l.Run(context.Background(), "goal", &strings.Builder{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Counters.RevisionIterations != 1 {
		t.Errorf("RevisionIterations = %d, want 1", report.Counters.RevisionIterations)
	}
	if report.Counters.ResearchIterations != 0 {
		t.Errorf("ResearchIterations = %d, want 0", report.Counters.ResearchIterations)
	}
	if tasks.executed != 0 {
		t.Errorf("tasks executed %d times, want 0 for revision-only issues", tasks.executed)
	}
	if !strings.Contains(report.Draft.Text, "(revised)") {
		t.Errorf("draft = %q, want a revision", report.Draft.Text)
	}
}

func TestRunResearchShortCircuitFallsToRevision(t *testing.T) {
	// Planner returns no tasks even though an issue asks for research;
	// the loop must fall through to revision instead of stalling.
	tasks := &stubTasks{tasks: nil}
	synth := &stubSynth{}
	reviewer := &scriptedReviewer{script: [][]types.QualityIssue{
		{researchIssue()},
		nil,
	}}
	l := newTestLoop(&stubResearcher{findings: []types.Finding{docsFinding("https://a.example/1")}},
		tasks, synth, reviewer)

	report, err := l.Run(context.Background(), "goal", &strings.Builder{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Counters.ResearchIterations != 0 {
		t.Errorf("ResearchIterations = %d, want 0", report.Counters.ResearchIterations)
	}
	if report.Counters.RevisionIterations != 1 {
		t.Errorf("RevisionIterations = %d, want 1", report.Counters.RevisionIterations)
	}
}

func TestRunTerminatesAtMaxIterations(t *testing.T) {
	// The reviewer finds blocking problems on every non-final pass.
	reviewer := &scriptedReviewer{script: [][]types.QualityIssue{
		{revisionIssue()},
		{revisionIssue()},
		{revisionIssue()},
		{revisionIssue()},
		{revisionIssue()},
	}}
	l := newTestLoop(&stubResearcher{findings: []types.Finding{docsFinding("https://a.example/1")}},
		&stubTasks{}, &stubSynth{}, reviewer)

	report, err := l.Run(context.Background(), "goal", &strings.Builder{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Counters.TotalIterations != 3 {
		t.Errorf("TotalIterations = %d, want exactly MaxIterations (3)", report.Counters.TotalIterations)
	}
	if !report.Counters.ForceApproved {
		t.Error("forced acceptance should set ForceApproved")
	}
	if !reviewer.finals[len(reviewer.finals)-1] {
		t.Error("last review pass should be marked final")
	}
	for _, is := range report.Issues {
		if is.IsBlocking() {
			t.Errorf("force-approved report still has blocking issue: %+v", is)
		}
	}
}

func TestRunFinalPassSetsForceApprovedWhenClean(t *testing.T) {
	// A single permitted pass is the final pass; even a clean review must
	// flag the acceptance as forced.
	l := New(types.LoopConfig{MaxIterations: 1, ResearchBudget: 1, RevisionBudget: 1},
		&stubResearcher{findings: []types.Finding{docsFinding("https://a.example/1")}},
		&stubTasks{}, &stubSynth{}, &scriptedReviewer{}, nil, rank.New(types.RankConfig{}))

	report, err := l.Run(context.Background(), "goal", &strings.Builder{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Counters.TotalIterations != 1 {
		t.Errorf("TotalIterations = %d, want 1", report.Counters.TotalIterations)
	}
	if !report.Counters.ForceApproved {
		t.Error("final permitted pass must set ForceApproved even with no findings")
	}
}

func TestRunResearchOnlyIssuesStopWithResearchBudget(t *testing.T) {
	// Once the research budget is spent, issues that only ask for more
	// evidence cannot be revised away; the loop terminates instead of
	// burning revision passes.
	tasks := &stubTasks{
		tasks: []types.ResearchTask{{ID: "t1", Aspect: "gap", Queries: []string{"q"}}},
		results: []types.WorkerResult{{
			TaskID: "t1",
			Documents: []types.CanonicalDocument{
				{URL: "https://new.example/2", NormalizedKey: "https://new.example/2", Hostname: "new.example", NormalizedScore: 0.8},
			},
		}},
	}
	reviewer := &scriptedReviewer{script: [][]types.QualityIssue{
		{researchIssue()},
		{researchIssue()},
		{researchIssue()},
		{researchIssue()},
	}}
	l := New(types.LoopConfig{MaxIterations: 5, ResearchBudget: 1, RevisionBudget: 2},
		&stubResearcher{findings: []types.Finding{docsFinding("https://a.example/1")}},
		tasks, &stubSynth{}, reviewer, nil, rank.New(types.RankConfig{}))

	report, err := l.Run(context.Background(), "goal", &strings.Builder{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Counters.ResearchIterations != 1 {
		t.Errorf("ResearchIterations = %d, want 1", report.Counters.ResearchIterations)
	}
	if report.Counters.RevisionIterations != 0 {
		t.Errorf("RevisionIterations = %d, want 0 for research-only issues", report.Counters.RevisionIterations)
	}
	if !report.Counters.ForceApproved {
		t.Error("terminating with unresolved issues should set ForceApproved")
	}
	for _, is := range report.Issues {
		if is.IsBlocking() {
			t.Errorf("remaining issue still blocking: %+v", is)
		}
	}
}

func TestRunNoSourcesProducesEmptyReport(t *testing.T) {
	synth := &stubSynth{}
	l := newTestLoop(&stubResearcher{}, &stubTasks{}, synth, &scriptedReviewer{})

	report, err := l.Run(context.Background(), "goal", &strings.Builder{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.Draft.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", report.Draft.Confidence)
	}
	if !strings.Contains(report.Draft.Text, "No sources") {
		t.Errorf("draft = %q", report.Draft.Text)
	}
	if synth.calls != 0 {
		t.Errorf("synthesizer called %d times, want 0", synth.calls)
	}
	if report.Counters.TotalIterations != 0 {
		t.Errorf("TotalIterations = %d, want 0 (gate never ran)", report.Counters.TotalIterations)
	}
}

func TestRunInitialResearchFailure(t *testing.T) {
	l := newTestLoop(&stubResearcher{err: fmt.Errorf("all providers down")},
		&stubTasks{}, &stubSynth{}, &scriptedReviewer{})
	if _, err := l.Run(context.Background(), "goal", &strings.Builder{}); err == nil {
		t.Fatal("expected error when initial research fails")
	}
}

func TestStateMergeDocuments(t *testing.T) {
	s := &State{}
	added := s.MergeDocuments([]types.CanonicalDocument{
		{URL: "https://a.example/1", NormalizedKey: "k1"},
		{URL: "https://b.example/2", NormalizedKey: "k2"},
	})
	if added != 2 || len(s.Documents) != 2 {
		t.Fatalf("added = %d, len = %d", added, len(s.Documents))
	}

	// Duplicates and keyless documents are ignored; existing entries survive.
	added = s.MergeDocuments([]types.CanonicalDocument{
		{URL: "https://a.example/1", NormalizedKey: "k1"},
		{URL: "https://c.example/3", NormalizedKey: "k3"},
		{URL: "https://d.example/4"},
	})
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if len(s.Documents) != 3 {
		t.Errorf("len = %d, want 3", len(s.Documents))
	}
	if s.Documents[0].NormalizedKey != "k1" {
		t.Error("merge disturbed existing document order")
	}
}

func TestStateIssueQueries(t *testing.T) {
	s := &State{}
	if s.HasBlockingIssues() || s.NeedsResearch() {
		t.Error("empty state should have no blocking issues")
	}

	s.ReplaceIssues([]types.QualityIssue{
		{Type: types.IssueNeedsRevision, Severity: types.SeverityWarning},
		{Type: types.IssueNeedsResearch, Severity: types.SeverityError},
	})
	if !s.HasBlockingIssues() || !s.NeedsResearch() {
		t.Error("blocking research issue not detected")
	}
	if s.NeedsRevision() {
		t.Error("warning-level revision issue should not call for revision")
	}

	s.ReplaceIssues([]types.QualityIssue{
		{Type: types.IssueNeedsRevision, Severity: types.SeverityError},
	})
	if !s.NeedsRevision() {
		t.Error("blocking revision issue not detected")
	}

	s.ReplaceIssues([]types.QualityIssue{
		{Type: types.IssueNeedsResearch, Severity: types.SeverityWarning},
	})
	if s.HasBlockingIssues() {
		t.Error("warnings should not block")
	}
}
