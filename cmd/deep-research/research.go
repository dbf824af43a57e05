// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/enrich"
	"github.com/pdiddy/deep-research/internal/gate"
	"github.com/pdiddy/deep-research/internal/loop"
	"github.com/pdiddy/deep-research/internal/orchestrate"
	"github.com/pdiddy/deep-research/internal/planner"
	"github.com/pdiddy/deep-research/internal/rank"
	"github.com/pdiddy/deep-research/internal/store"
	"github.com/pdiddy/deep-research/internal/synthesize"
)

var researchCmd = &cobra.Command{
	Use:   "research [goal]",
	Short: "Run a research goal through the full pipeline",
	Long: `Research runs the complete pipeline for a goal: multi-round discovery,
content enrichment, synthesis with inline citations, and the quality gate
loop. The accepted report is archived and written to the reports directory
as Markdown.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func runResearch(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("max-iterations"); n > 0 {
		cfg.Loop.MaxIterations = n
	}
	if n, _ := cmd.Flags().GetInt("research-budget"); n > 0 {
		cfg.Loop.ResearchBudget = n
	}
	if n, _ := cmd.Flags().GetInt("revision-budget"); n > 0 {
		cfg.Loop.RevisionBudget = n
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Store.DataDir = dir
	}
	if holistic, _ := cmd.Flags().GetBool("holistic"); holistic {
		cfg.Gate.EnableHolistic = true
	}

	client := buildClient(cfg.Synthesis.AIConfig)
	if client == nil {
		return fmt.Errorf("no Anthropic API key configured: add .secrets/anthropic-api-key or set DEEP_RESEARCH_ANTHROPIC_API_KEY")
	}
	providers := buildProviders(cfg.Search)
	if len(providers) == 0 {
		return fmt.Errorf("no search providers configured: add .secrets/brave-api-key or .secrets/serper-api-key")
	}

	engine := rank.New(cfg.Rank)
	research := planner.New(cfg.Planner, cfg.Search, client, providers, engine)
	tasks := orchestrate.New(cfg.Orchestrator, cfg.Search, client, providers, engine)
	synth := synthesize.New(cfg.Synthesis, client)
	review := gate.New(cfg.Gate, buildClient(cfg.Gate.AIConfig))

	var enricher loop.Enricher
	if noFetch, _ := cmd.Flags().GetBool("no-fetch"); !noFetch {
		enricher = enrich.New(cfg.Enrich)
	}

	l := loop.New(cfg.Loop, research, tasks, synth, review, enricher, engine)
	report, err := l.Run(context.Background(), goal, os.Stderr)
	if err != nil {
		return err
	}

	dataDir := cfg.Store.DataDir
	if dataDir == "" {
		dataDir = "research"
	}
	cfg.Store.DataDir = dataDir
	archive, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer archive.Close()

	if err := archive.SaveSession(context.Background(), report, report.Documents); err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(os.Stderr, "session %s: %d citations, confidence %.2f",
		report.SessionID, len(report.Draft.Citations), report.Draft.Confidence)
	if report.Counters.ForceApproved {
		fmt.Fprint(os.Stderr, " (force approved)")
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "report:", filepath.Join(dataDir, "reports", report.SessionID+".md"))

	fmt.Println(report.Draft.Text)
	return nil
}

func init() {
	researchCmd.Flags().Int("max-iterations", 0, "quality gate pass ceiling (0 = default)")
	researchCmd.Flags().Int("research-budget", 0, "supplemental research pass ceiling (0 = default)")
	researchCmd.Flags().Int("revision-budget", 0, "revision pass ceiling (0 = default)")
	researchCmd.Flags().String("data-dir", "", "archive directory (default: ./research)")
	researchCmd.Flags().Bool("no-fetch", false, "skip content enrichment, synthesize from excerpts only")
	researchCmd.Flags().Bool("holistic", false, "enable the model-based holistic quality check")
	researchCmd.Flags().Bool("json", false, "output the full report as JSON")

	rootCmd.AddCommand(researchCmd)
}
