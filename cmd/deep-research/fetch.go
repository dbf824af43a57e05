// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/internal/canonical"
	"github.com/pdiddy/deep-research/internal/enrich"
	"github.com/pdiddy/deep-research/pkg/types"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url...]",
	Short: "Fetch and convert page content for one or more URLs",
	Long: `Fetch retrieves each URL, follows redirects, extracts the canonical link,
and converts the page to Markdown, the same enrichment step the full
pipeline applies to discovered documents. Output is the enriched documents
as YAML, or raw content with --content.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}
	if len(args) > cfg.Enrich.MaxDocuments {
		cfg.Enrich.MaxDocuments = len(args)
	}

	enriched := enrich.New(cfg.Enrich).Enrich(context.Background(), seedDocuments(args), os.Stderr)

	if contentOnly, _ := cmd.Flags().GetBool("content"); contentOnly {
		for _, d := range enriched {
			if d.Content == "" {
				fmt.Fprintf(os.Stderr, "warning: no content for %s\n", d.URL)
				continue
			}
			fmt.Println(d.Content)
		}
		return nil
	}

	out, err := yaml.Marshal(enriched)
	if err != nil {
		return err
	}
	os.Stdout.Write(out)
	return nil
}

// seedDocuments builds bare documents for the given URLs. URLs that fail
// normalization keep a hash-derived key so they still fetch and deduplicate.
func seedDocuments(urls []string) []types.CanonicalDocument {
	docs := make([]types.CanonicalDocument, 0, len(urls))
	for _, rawURL := range urls {
		key, err := canonical.NormalizeURL(rawURL)
		if err != nil {
			key = canonical.URLHash(rawURL)
		}
		docs = append(docs, types.CanonicalDocument{
			ID:            canonical.URLHash(key),
			URL:           rawURL,
			Hostname:      canonical.Hostname(rawURL),
			NormalizedKey: key,
		})
	}
	return docs
}

func init() {
	fetchCmd.Flags().Bool("content", false, "print extracted Markdown content only")

	rootCmd.AddCommand(fetchCmd)
}
