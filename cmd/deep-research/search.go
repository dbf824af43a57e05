// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/rank"
	"github.com/pdiddy/deep-research/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search web providers for a single query",
	Long: `Search fans one query out to the configured web search providers (Brave,
Serper), deduplicates the merged results, and ranks them. A failing provider
logs a warning; the search continues with the remaining providers.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("max-results"); n > 0 {
		cfg.Search.MaxResults = n
	}
	if domains, _ := cmd.Flags().GetStringSlice("include-domain"); len(domains) > 0 {
		cfg.Search.IncludeDomains = domains
	}
	if domains, _ := cmd.Flags().GetStringSlice("exclude-domain"); len(domains) > 0 {
		cfg.Search.ExcludeDomains = domains
	}

	providers := buildProviders(cfg.Search)
	if len(providers) == 0 {
		return fmt.Errorf("no search providers configured: add .secrets/brave-api-key or .secrets/serper-api-key")
	}

	out, err := search.Discover(context.Background(), query, providers, cfg.Search, os.Stderr)
	if err != nil {
		return err
	}

	docs := rank.New(cfg.Rank).Process(out.Documents, rank.PhaseDiscovery).Documents

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}

	if len(docs) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-6s  %-50s  %-30s  %s\n",
		"Rank", "Score", "Title", "Host", "URL")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 120))

	for i, d := range docs {
		title := d.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		host := d.Hostname
		if len(host) > 30 {
			host = host[:27] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-6.2f  %-50s  %-30s  %s\n",
			i+1, d.NormalizedScore, title, host, d.URL)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(docs))
	return nil
}

func init() {
	searchCmd.Flags().Int("max-results", 0, "maximum results per provider (0 = default)")
	searchCmd.Flags().StringSlice("include-domain", nil, "restrict results to these hosts")
	searchCmd.Flags().StringSlice("exclude-domain", nil, "drop results from these hosts")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}
