// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enrich fetches the pages behind discovery results and fills in
// full content, redirect-resolved URLs, and publisher canonical URLs.
// Implements: prd102-enrichment (R1-R3);
//
//	docs/ARCHITECTURE § Enrichment.
package enrich

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gocolly/colly/v2"

	"github.com/pdiddy/deep-research/internal/canonical"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Fetcher downloads pages and converts them to Markdown text.
type Fetcher struct {
	cfg types.EnrichConfig
}

// New creates a Fetcher, filling in defaults for unset config fields.
func New(cfg types.EnrichConfig) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "deep-research/0.1"
	}
	if cfg.MaxDocuments == 0 {
		cfg.MaxDocuments = 10
	}
	if cfg.FetchDelay == 0 {
		cfg.FetchDelay = 500 * time.Millisecond
	}
	if cfg.MaxContentBytes == 0 {
		cfg.MaxContentBytes = 200 * 1024
	}
	return &Fetcher{cfg: cfg}
}

// fetchResult accumulates what the collector callbacks learn about one URL.
type fetchResult struct {
	finalURL     string
	canonicalURL string
	contentType  string
	body         []byte
	status       int
	err          error
}

// Enrich fetches up to MaxDocuments of the given documents and returns the
// full set with enrichment fields filled in where fetching succeeded.
// Fetching is best-effort: a failed fetch leaves the document as it was and
// writes a warning to w (R3.1). Documents beyond the cap pass through
// untouched.
func (f *Fetcher) Enrich(ctx context.Context, docs []types.CanonicalDocument, w io.Writer) []types.CanonicalDocument {
	if len(docs) == 0 {
		return docs
	}

	limit := f.cfg.MaxDocuments
	if limit > len(docs) {
		limit = len(docs)
	}

	results := make(map[int]*fetchResult, limit)
	var mu sync.Mutex

	c := colly.NewCollector(colly.UserAgent(f.cfg.UserAgent))
	c.SetRequestTimeout(f.cfg.Timeout)
	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       f.cfg.FetchDelay,
		Parallelism: 2,
	})
	if err != nil {
		fmt.Fprintf(w, "warning: fetch rate limit not applied: %v\n", err)
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		idx, ok := r.Ctx.GetAny("idx").(int)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		res := results[idx]
		res.status = r.StatusCode
		res.finalURL = r.Request.URL.String()
		res.contentType = r.Headers.Get("Content-Type")
		res.body = r.Body
	})

	c.OnHTML(`link[rel="canonical"]`, func(e *colly.HTMLElement) {
		idx, ok := e.Request.Ctx.GetAny("idx").(int)
		if !ok {
			return
		}
		href := e.Request.AbsoluteURL(e.Attr("href"))
		if href == "" {
			return
		}
		mu.Lock()
		results[idx].canonicalURL = href
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		idx, ok := r.Ctx.GetAny("idx").(int)
		if !ok {
			return
		}
		mu.Lock()
		results[idx].err = err
		mu.Unlock()
	})

	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			break
		}
		results[i] = &fetchResult{}
		reqCtx := colly.NewContext()
		reqCtx.Put("idx", i)
		fmt.Fprintf(w, "  fetching %s\n", docs[i].URL)
		if err := c.Request("GET", docs[i].URL, nil, reqCtx, nil); err != nil {
			mu.Lock()
			results[i].err = err
			mu.Unlock()
		}
	}
	c.Wait()

	enriched := make([]types.CanonicalDocument, len(docs))
	copy(enriched, docs)

	for i := 0; i < limit; i++ {
		res := results[i]
		if res == nil {
			continue
		}
		if res.err != nil {
			fmt.Fprintf(w, "warning: fetch %s failed: %v\n", docs[i].URL, res.err)
			continue
		}
		if res.status >= 400 || res.status == 0 {
			fmt.Fprintf(w, "warning: fetch %s returned HTTP %d\n", docs[i].URL, res.status)
			continue
		}

		d := enriched[i]
		if res.finalURL != "" && res.finalURL != d.URL {
			d.ResolvedURL = res.finalURL
		}
		if res.canonicalURL != "" {
			d.CanonicalURL = res.canonicalURL
		}

		content := f.extractText(res.contentType, res.body)
		if content != "" {
			d.Content = content
		}

		// Identity may have improved: recompute the dedup key.
		d.NormalizedKey = canonical.Key(d)
		d.ID = canonical.URLHash(d.NormalizedKey)
		enriched[i] = d
	}

	return enriched
}

// extractText converts a response body to plain Markdown text. HTML is
// converted; plain text and Markdown pass through; other content types
// (PDFs, images) are skipped (R2.2).
func (f *Fetcher) extractText(contentType string, body []byte) string {
	ct := strings.ToLower(contentType)
	var text string
	switch {
	case strings.Contains(ct, "text/html"), strings.Contains(ct, "application/xhtml"):
		md, err := htmltomarkdown.ConvertString(string(body))
		if err != nil {
			return ""
		}
		text = md
	case strings.Contains(ct, "text/plain"), strings.Contains(ct, "text/markdown"):
		text = string(body)
	default:
		return ""
	}

	text = strings.TrimSpace(text)
	if len(text) > f.cfg.MaxContentBytes {
		cut := f.cfg.MaxContentBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
