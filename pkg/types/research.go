// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RoundMetadata records execution statistics for one research round.
// Per prd104-planner R4.2.
type RoundMetadata struct {
	// QueriesGenerated is the number of queries the round planned.
	QueriesGenerated int `json:"queries_generated" yaml:"queries_generated"`

	// SourcesFound is the number of documents the round's searches returned.
	SourcesFound int `json:"sources_found" yaml:"sources_found"`

	// ProvidersUsed lists the providers queried during the round.
	ProvidersUsed []string `json:"providers_used" yaml:"providers_used"`

	// StartedAt is when the round began.
	StartedAt time.Time `json:"started_at" yaml:"started_at"`

	// CompletedAt is when the round finished.
	CompletedAt time.Time `json:"completed_at" yaml:"completed_at"`
}

// Finding holds the output of one research round. Findings are append-only
// and strictly ordered by Round (1..3). Per prd104-planner R4.1.
type Finding struct {
	// Round is the 1-based round number.
	Round int `json:"round" yaml:"round"`

	// Queries lists the queries the round executed.
	Queries []string `json:"queries" yaml:"queries"`

	// Results holds the documents the round's searches returned.
	Results []CanonicalDocument `json:"results" yaml:"results"`

	// Gaps lists information gaps identified after the round, which inform
	// the next round's queries.
	Gaps []string `json:"gaps,omitempty" yaml:"gaps,omitempty"`

	// Metadata records the round's execution statistics.
	Metadata RoundMetadata `json:"metadata" yaml:"metadata"`
}

// ResearchTask is one independent unit of research produced by the
// orchestrator and consumed exactly once by a worker.
// Per prd105-orchestrator R1.1.
type ResearchTask struct {
	// ID is a unique task identifier.
	ID string `json:"id" yaml:"id"`

	// Aspect describes the dimension of the goal this task covers.
	Aspect string `json:"aspect" yaml:"aspect"`

	// Queries are the search queries the worker executes for this task.
	Queries []string `json:"queries" yaml:"queries"`

	// Priority is the task's relative importance in [0,1].
	Priority float64 `json:"priority" yaml:"priority"`
}

// WorkerResult is the immutable output of one worker's execution of a
// ResearchTask. Per prd105-orchestrator R3.1-R3.4.
type WorkerResult struct {
	// TaskID identifies the task this result answers.
	TaskID string `json:"task_id" yaml:"task_id"`

	// Aspect is copied from the task for downstream grouping.
	Aspect string `json:"aspect" yaml:"aspect"`

	// Documents are the top-scored documents the worker selected.
	Documents []CanonicalDocument `json:"documents" yaml:"documents"`

	// Summary is a short description of what the worker found.
	Summary string `json:"summary" yaml:"summary"`

	// Confidence is the worker's estimate in [0,1] of how well the
	// selected documents cover the aspect.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// QueriesExecuted counts the queries actually run.
	QueriesExecuted int `json:"queries_executed" yaml:"queries_executed"`

	// DocumentsFound counts candidates before selection.
	DocumentsFound int `json:"documents_found" yaml:"documents_found"`

	// DocumentsSelected counts documents kept after scoring.
	DocumentsSelected int `json:"documents_selected" yaml:"documents_selected"`
}
