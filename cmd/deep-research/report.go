// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/store"
	"github.com/pdiddy/deep-research/pkg/types"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Browse archived research sessions (list, show, find)",
	Long: `Report reads the session archive written by the research command. Use
subcommands to list past sessions, show a finished report, or run a
full-text query over the archived evidence.`,
}

// --- list subcommand ---

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived research sessions, newest first",
	RunE:  runReportList,
}

func runReportList(cmd *cobra.Command, args []string) error {
	archive, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer archive.Close()

	sessions, err := archive.ListSessions(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions archived.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-19s  %-5s  %s\n", "Session", "Created", "Docs", "Goal")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, s := range sessions {
		goal := s.Goal
		if len(goal) > 45 {
			goal = goal[:42] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-36s  %-19s  %-5d  %s\n",
			s.ID, s.CreatedAt.Format(time.DateTime), s.Documents, goal)
	}
	fmt.Fprintf(os.Stdout, "\n%d sessions\n", len(sessions))
	return nil
}

// --- show subcommand ---

var reportShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Print an archived report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportShow,
}

func runReportShow(cmd *cobra.Command, args []string) error {
	archive, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer archive.Close()

	report, err := archive.GetReport(context.Background(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("# %s\n\n%s\n", report.Goal, report.Draft.Text)
	if len(report.Draft.Citations) > 0 {
		fmt.Println("\n## Sources")
		for _, c := range report.Draft.Citations {
			fmt.Printf("%d. %s (%s)\n", c.ID, c.Title, c.URL)
		}
	}
	fmt.Fprintf(os.Stderr, "\nconfidence %.2f, %d gate passes",
		report.Draft.Confidence, report.Counters.TotalIterations)
	if report.Counters.ForceApproved {
		fmt.Fprint(os.Stderr, " (force approved)")
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

// --- find subcommand ---

var reportFindCmd = &cobra.Command{
	Use:   "find [query]",
	Short: "Full-text search over archived evidence documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReportFind,
}

func runReportFind(cmd *cobra.Command, args []string) error {
	archive, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer archive.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	hits, err := archive.SearchEvidence(context.Background(), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if len(hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	for i, h := range hits {
		fmt.Fprintf(os.Stdout, "%-4d  %s\n      %s\n      session %s\n", i+1, h.Title, h.URL, h.SessionID)
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(hits))
	return nil
}

// --- shared helpers ---

func openArchive(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := pipelineConfig()
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Store.DataDir = dir
	}
	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = "research"
	}
	return store.NewStore(types.StoreConfig{DataDir: cfg.Store.DataDir, MaxResults: cfg.Store.MaxResults})
}

func init() {
	reportCmd.PersistentFlags().String("data-dir", "", "archive directory (default: ./research)")
	reportCmd.PersistentFlags().Bool("json", false, "output as JSON")

	reportFindCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")

	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportFindCmd)

	rootCmd.AddCommand(reportCmd)
}
