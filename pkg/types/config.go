package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "deep-research/0.1"). Per prd101-search-gateway R5.2.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// SearchConfig holds settings for the discovery phase.
// Per prd101-search-gateway R1.1-R1.5, R5.1-R5.4.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxResults is the maximum number of results per provider call (default 10).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// EnableBrave controls whether the Brave Search provider is used.
	EnableBrave bool `json:"enable_brave" yaml:"enable_brave"`

	// EnableSerper controls whether the Serper (Google) provider is used.
	EnableSerper bool `json:"enable_serper" yaml:"enable_serper"`

	// BraveAPIKey authenticates against the Brave Search API.
	BraveAPIKey string `json:"brave_api_key,omitempty" yaml:"brave_api_key,omitempty"`

	// SerperAPIKey authenticates against the Serper API.
	SerperAPIKey string `json:"serper_api_key,omitempty" yaml:"serper_api_key,omitempty"`

	// IncludeDomains restricts results to these hosts when non-empty.
	IncludeDomains []string `json:"include_domains,omitempty" yaml:"include_domains,omitempty"`

	// ExcludeDomains drops results from these hosts.
	ExcludeDomains []string `json:"exclude_domains,omitempty" yaml:"exclude_domains,omitempty"`
}

// EnrichConfig holds settings for the enrichment phase.
// Per prd102-enrichment R1.1-R1.4.
type EnrichConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxDocuments caps how many URLs one enrichment pass fetches (default 10).
	MaxDocuments int `json:"max_documents" yaml:"max_documents"`

	// FetchDelay is the per-domain delay between fetches (default 500ms).
	FetchDelay time.Duration `json:"fetch_delay" yaml:"fetch_delay"`

	// MaxContentBytes truncates fetched content beyond this size (default 200 KiB).
	MaxContentBytes int `json:"max_content_bytes" yaml:"max_content_bytes"`
}

// RankConfig holds settings for the dedup/canonicalize/rank engine.
// Per prd103-rank R2.1-R2.6.
type RankConfig struct {
	// AuthorityHosts lists hosts whose documents receive the authority bonus.
	// A document matches when its hostname equals or is a subdomain of an entry.
	AuthorityHosts []string `json:"authority_hosts" yaml:"authority_hosts"`

	// AuthorityBonus is added to a document's score on an authority match (default 0.3).
	AuthorityBonus float64 `json:"authority_bonus" yaml:"authority_bonus"`

	// RecencyBonus is the maximum recency boost for just-published documents (default 0.2).
	RecencyBonus float64 `json:"recency_bonus" yaml:"recency_bonus"`

	// RecencyHalfLife is the age at which the recency boost halves (default 90 days).
	RecencyHalfLife time.Duration `json:"recency_half_life" yaml:"recency_half_life"`

	// LengthBonus is added once per length signal (content, title, excerpt)
	// above its threshold (default 0.05).
	LengthBonus float64 `json:"length_bonus" yaml:"length_bonus"`

	// MinContentLength is the content length threshold for the length bonus (default 1000).
	MinContentLength int `json:"min_content_length" yaml:"min_content_length"`

	// MinTitleLength is the title length threshold for the length bonus (default 20).
	MinTitleLength int `json:"min_title_length" yaml:"min_title_length"`

	// MinExcerptLength is the excerpt length threshold for the length bonus (default 80).
	MinExcerptLength int `json:"min_excerpt_length" yaml:"min_excerpt_length"`

	// MaxPerHost caps documents per hostname during discovery (default 3).
	MaxPerHost int `json:"max_per_host" yaml:"max_per_host"`

	// DiscoveryLimit truncates the discovery-phase output (default 15).
	DiscoveryLimit int `json:"discovery_limit" yaml:"discovery_limit"`

	// EvidenceLimit truncates the final-phase output (default 20).
	EvidenceLimit int `json:"evidence_limit" yaml:"evidence_limit"`
}

// PlannerConfig holds settings for the three-round iterative planner.
// Per prd104-planner R2.1-R2.4.
type PlannerConfig struct {
	// QueryDelay is the pause between consecutive queries within a round (default 1s).
	QueryDelay time.Duration `json:"query_delay" yaml:"query_delay"`
}

// OrchestratorConfig holds settings for task decomposition and workers.
// Per prd105-orchestrator R1.2, R2.1-R2.3, R3.2.
type OrchestratorConfig struct {
	// MaxTasks caps initial-mode decomposition (default 8).
	MaxTasks int `json:"max_tasks" yaml:"max_tasks"`

	// MinTasks floors initial-mode decomposition (default 3).
	MinTasks int `json:"min_tasks" yaml:"min_tasks"`

	// SupplementalTasks caps supplemental-mode decomposition (default 2).
	SupplementalTasks int `json:"supplemental_tasks" yaml:"supplemental_tasks"`

	// WorkerRate is the per-worker search rate limit in queries per second (default 2).
	WorkerRate float64 `json:"worker_rate" yaml:"worker_rate"`

	// WorkerBurst is the rate limiter burst size (default 1).
	WorkerBurst int `json:"worker_burst" yaml:"worker_burst"`

	// TopPerTask is how many documents each worker selects (default 5).
	TopPerTask int `json:"top_per_task" yaml:"top_per_task"`
}

// SynthesisConfig holds settings for narrative generation.
// Per prd106-synthesis R1.1, R2.1-R2.3.
type SynthesisConfig struct {
	AIConfig `yaml:",inline"`

	// MaxEvidence caps how many documents enter the evidence block (default 20).
	MaxEvidence int `json:"max_evidence" yaml:"max_evidence"`

	// SnippetLength is the per-document excerpt size in the evidence block (default 600).
	SnippetLength int `json:"snippet_length" yaml:"snippet_length"`
}

// GateConfig holds the quality gate's threshold schedule and check bounds.
// Per prd107-quality-gate R1.1-R1.4, R3.1-R3.6.
type GateConfig struct {
	AIConfig `yaml:",inline"`

	// BaseMinConfidence is the iteration-zero confidence floor (default 0.6).
	BaseMinConfidence float64 `json:"base_min_confidence" yaml:"base_min_confidence"`

	// BaseMinCitationDensity is the iteration-zero citations-per-1000-chars
	// floor (default 1.0).
	BaseMinCitationDensity float64 `json:"base_min_citation_density" yaml:"base_min_citation_density"`

	// BaseMinQualityScore is the iteration-zero holistic score floor (default 0.6).
	BaseMinQualityScore float64 `json:"base_min_quality_score" yaml:"base_min_quality_score"`

	// RelaxationStep is subtracted from each floor per completed iteration
	// (default 0.15).
	RelaxationStep float64 `json:"relaxation_step" yaml:"relaxation_step"`

	// MinWords is the draft word-count floor (default 200).
	MinWords int `json:"min_words" yaml:"min_words"`

	// MaxWords is the draft word-count ceiling (default 5000).
	MaxWords int `json:"max_words" yaml:"max_words"`

	// MinEvidenceUtilization is the fraction of evidence that must be cited
	// (default 0.3).
	MinEvidenceUtilization float64 `json:"min_evidence_utilization" yaml:"min_evidence_utilization"`

	// EnableHolistic controls the LLM-based relevance/coherence check.
	EnableHolistic bool `json:"enable_holistic" yaml:"enable_holistic"`
}

// LoopConfig bounds the control loop. Per prd108-control-loop R2.1-R2.4.
type LoopConfig struct {
	// MaxIterations is the hard ceiling on quality gate passes (default 3).
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// ResearchBudget caps passes routed to supplemental research (default 2).
	ResearchBudget int `json:"research_budget" yaml:"research_budget"`

	// RevisionBudget caps passes routed to a rewrite (default 2).
	RevisionBudget int `json:"revision_budget" yaml:"revision_budget"`
}

// StoreConfig holds settings for the report/evidence archive.
// Per prd109-store R1.2.
type StoreConfig struct {
	// DataDir is the base directory for the archive (contains index/, reports/).
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// MaxResults is the default maximum number of evidence query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Search       SearchConfig       `json:"search" yaml:"search"`
	Enrich       EnrichConfig       `json:"enrich" yaml:"enrich"`
	Rank         RankConfig         `json:"rank" yaml:"rank"`
	Planner      PlannerConfig      `json:"planner" yaml:"planner"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator"`
	Synthesis    SynthesisConfig    `json:"synthesis" yaml:"synthesis"`
	Gate         GateConfig         `json:"gate" yaml:"gate"`
	Loop         LoopConfig         `json:"loop" yaml:"loop"`
	Store        StoreConfig        `json:"store" yaml:"store"`
}
