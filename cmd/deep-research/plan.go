// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/planner"
	"github.com/pdiddy/deep-research/internal/rank"
)

var planCmd = &cobra.Command{
	Use:   "plan [goal]",
	Short: "Run multi-round discovery for a goal without synthesis",
	Long: `Plan runs the iterative research planner on its own: up to three rounds
of query generation, search, and gap analysis. It prints each round's
queries, result counts, and identified gaps, which is useful for inspecting
what the full pipeline would collect.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}
	rounds, _ := cmd.Flags().GetInt("rounds")

	providers := buildProviders(cfg.Search)
	if len(providers) == 0 {
		return fmt.Errorf("no search providers configured: add .secrets/brave-api-key or .secrets/serper-api-key")
	}

	// The planner degrades to deterministic queries without a model.
	client := buildClient(cfg.Synthesis.AIConfig)
	engine := rank.New(cfg.Rank)

	p := planner.New(cfg.Planner, cfg.Search, client, providers, engine)
	findings, err := p.Run(context.Background(), goal, rounds, os.Stderr)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	}

	for _, f := range findings {
		fmt.Fprintf(os.Stdout, "Round %d (%d queries, %d sources, providers %v)\n",
			f.Round, f.Metadata.QueriesGenerated, f.Metadata.SourcesFound, f.Metadata.ProvidersUsed)
		for _, q := range f.Queries {
			fmt.Fprintf(os.Stdout, "  query: %s\n", q)
		}
		for _, g := range f.Gaps {
			fmt.Fprintf(os.Stdout, "  gap:   %s\n", g)
		}
		for _, d := range f.Results {
			fmt.Fprintf(os.Stdout, "  %.2f  %s\n", d.NormalizedScore, d.URL)
		}
		fmt.Fprintln(os.Stdout)
	}
	return nil
}

func init() {
	planCmd.Flags().Int("rounds", 0, "number of research rounds, capped at 3 (0 = all)")
	planCmd.Flags().Bool("json", false, "output findings as JSON")

	rootCmd.AddCommand(planCmd)
}
