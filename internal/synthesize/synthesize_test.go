// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synthesize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pdiddy/deep-research/pkg/types"
)

// capturingClient records the prompts it was called with.
type capturingClient struct {
	response string
	err      error
	system   string
	user     string
}

func (c *capturingClient) Generate(_ context.Context, system, user string) (string, error) {
	c.system = system
	c.user = user
	return c.response, c.err
}

func sampleEvidence(n int) []types.Evidence {
	var evidence []types.Evidence
	for i := 1; i <= n; i++ {
		evidence = append(evidence, types.Evidence{
			URL:     fmt.Sprintf("https://site%d.example/article", i),
			Title:   fmt.Sprintf("Article %d", i),
			Snippet: fmt.Sprintf("snippet for article %d", i),
			Source:  "brave",
		})
	}
	return evidence
}

func TestBuildEvidenceFreezesOrderAndCaps(t *testing.T) {
	s := New(types.SynthesisConfig{MaxEvidence: 2, SnippetLength: 20}, nil)
	docs := []types.CanonicalDocument{
		{URL: "https://a.example/1", Title: "First", Provider: "brave", Content: "long content body that exceeds the snippet length\n\nsecond paragraph with enough length to chunk"},
		{URL: "https://b.example/2", Title: "Second", Provider: "serper", Excerpt: "just an excerpt"},
		{URL: "https://c.example/3", Title: "Third", Provider: "brave"},
	}

	evidence := s.BuildEvidence(docs)
	if len(evidence) != 2 {
		t.Fatalf("got %d evidence entries, want 2 (capped)", len(evidence))
	}
	if evidence[0].URL != "https://a.example/1" || evidence[1].URL != "https://b.example/2" {
		t.Errorf("evidence order not preserved: %v", evidence)
	}
	if len(evidence[0].Snippet) > 20 {
		t.Errorf("snippet length = %d, want <= 20", len(evidence[0].Snippet))
	}
	if evidence[0].ContentHash == "" || len(evidence[0].Chunks) == 0 {
		t.Error("enriched document should carry content hash and chunks")
	}
	if evidence[1].ContentHash != "" {
		t.Error("un-enriched document should have no content hash")
	}
	if evidence[1].Snippet != "just an excerpt" {
		t.Errorf("snippet = %q, want the excerpt fallback", evidence[1].Snippet)
	}
}

func TestFlattenResults(t *testing.T) {
	results := []types.WorkerResult{
		{TaskID: "t1", Documents: []types.CanonicalDocument{{URL: "https://a.example/1"}}},
		{TaskID: "t2"},
		{TaskID: "t3", Documents: []types.CanonicalDocument{{URL: "https://b.example/2"}, {URL: "https://c.example/3"}}},
	}
	docs := FlattenResults(results)
	if len(docs) != 3 {
		t.Fatalf("got %d docs, want 3", len(docs))
	}
	if docs[0].URL != "https://a.example/1" || docs[2].URL != "https://c.example/3" {
		t.Errorf("task order not preserved: %v", docs)
	}
}

func TestSynthesizeNoEvidence(t *testing.T) {
	s := New(types.SynthesisConfig{}, &capturingClient{})
	_, err := s.Synthesize(context.Background(), "goal", nil, nil, nil, &strings.Builder{})
	if !errors.Is(err, ErrNoEvidence) {
		t.Fatalf("err = %v, want ErrNoEvidence", err)
	}
}

func TestSynthesizeProducesCitedDraft(t *testing.T) {
	client := &capturingClient{response: `# Report

The first finding is well documented [Source 1]. A second line of evidence agrees (Source 2).

Further detail appears in the same source [Source 1].`}
	s := New(types.SynthesisConfig{}, client)

	draft, err := s.Synthesize(context.Background(), "the goal", sampleEvidence(3), nil, nil, &strings.Builder{})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}

	if len(draft.Citations) != 2 {
		t.Fatalf("got %d citations, want 2 distinct", len(draft.Citations))
	}
	if draft.Citations[0].ID != 1 || draft.Citations[1].ID != 2 {
		t.Errorf("citation IDs = %d, %d, want order of first appearance", draft.Citations[0].ID, draft.Citations[1].ID)
	}
	if !strings.Contains(draft.Text, "[Source 2]") {
		t.Errorf("paren marker not normalized: %q", draft.Text)
	}
	if draft.Confidence <= 0 {
		t.Errorf("Confidence = %v, want > 0", draft.Confidence)
	}

	if !strings.Contains(client.user, "[Source 1] Article 1") {
		t.Errorf("prompt missing evidence block: %q", client.user)
	}
	if !strings.Contains(client.user, "the goal") {
		t.Error("prompt missing the goal")
	}
}

func TestSynthesizeRevisionIncludesPreviousDraftAndIssues(t *testing.T) {
	client := &capturingClient{response: "Revised text citing [Source 1]."}
	s := New(types.SynthesisConfig{}, client)

	prev := &types.Draft{Text: "old draft body"}
	issues := []types.QualityIssue{
		{Type: types.IssueNeedsRevision, Description: "conclusion is unsupported", Severity: types.SeverityError},
	}
	_, err := s.Synthesize(context.Background(), "goal", sampleEvidence(1), prev, issues, &strings.Builder{})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if !strings.Contains(client.user, "old draft body") {
		t.Error("revision prompt missing the previous draft")
	}
	if !strings.Contains(client.user, "conclusion is unsupported") {
		t.Error("revision prompt missing the issues")
	}
}

func TestSynthesizeModelFailure(t *testing.T) {
	s := New(types.SynthesisConfig{}, &capturingClient{err: fmt.Errorf("api down")})
	_, err := s.Synthesize(context.Background(), "goal", sampleEvidence(1), nil, nil, &strings.Builder{})
	if err == nil {
		t.Fatal("expected error when the model fails")
	}
}

func TestExtractCitationsNormalizesVariants(t *testing.T) {
	evidence := sampleEvidence(4)
	tests := []struct {
		name string
		in   string
		want string
		ids  []int
	}{
		{"bracket", "Claim [Source 1].", "Claim [Source 1].", []int{1}},
		{"paren", "Claim (Source 2).", "Claim [Source 2].", []int{2}},
		{"inside bracket", "Claim Source [3].", "Claim [Source 3].", []int{3}},
		{"bare", "Claim per Source 4 today.", "Claim per [Source 4] today.", []int{4}},
		{"superscript", "Claim Source².", "Claim [Source 2].", []int{2}},
		{"spaced bracket", "Claim [ Source 1 ].", "Claim [Source 1].", []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, citations := ExtractCitations(tt.in, evidence)
			if text != tt.want {
				t.Errorf("text = %q, want %q", text, tt.want)
			}
			if len(citations) != len(tt.ids) {
				t.Fatalf("got %d citations, want %d", len(citations), len(tt.ids))
			}
			for i, id := range tt.ids {
				if citations[i].ID != id {
					t.Errorf("citation %d ID = %d, want %d", i, citations[i].ID, id)
				}
			}
		})
	}
}

func TestExtractCitationsRemovesInvalidMarkers(t *testing.T) {
	evidence := sampleEvidence(2)
	text, citations := ExtractCitations("Valid [Source 1]. Invalid [Source 9]. Zero [Source 0].", evidence)

	if strings.Contains(text, "Source 9") || strings.Contains(text, "Source 0") {
		t.Errorf("invalid markers survived: %q", text)
	}
	if strings.Contains(text, " .") {
		t.Errorf("spacing debris left behind: %q", text)
	}
	if len(citations) != 1 || citations[0].ID != 1 {
		t.Fatalf("citations = %v, want only ID 1", citations)
	}
	for _, c := range citations {
		if c.ID < 1 || c.ID > len(evidence) {
			t.Errorf("citation ID %d out of range", c.ID)
		}
		if c.URL == "" || c.Title == "" {
			t.Errorf("citation %d missing provenance: %+v", c.ID, c)
		}
	}
}

func TestExtractCitationsDeduplicates(t *testing.T) {
	evidence := sampleEvidence(2)
	_, citations := ExtractCitations("A [Source 2]. B [Source 1]. C [Source 2].", evidence)
	if len(citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(citations))
	}
	if citations[0].ID != 2 || citations[1].ID != 1 {
		t.Errorf("citation order = %d, %d, want first-appearance order 2, 1", citations[0].ID, citations[1].ID)
	}
}

func TestExtractCitationsBindsBestChunk(t *testing.T) {
	evidence := []types.Evidence{{
		URL:     "https://a.example/1",
		Title:   "Article",
		Snippet: "generic fallback snippet",
		Chunks: []string{
			"This chunk discusses database replication strategies in considerable depth.",
			"This chunk covers user interface design patterns and their accessibility tradeoffs.",
		},
	}}

	_, citations := ExtractCitations("Replication strategies for the database matter greatly [Source 1].", evidence)
	if len(citations) != 1 {
		t.Fatalf("got %d citations, want 1", len(citations))
	}
	if !strings.Contains(citations[0].Excerpt, "replication") {
		t.Errorf("Excerpt = %q, want the replication chunk", citations[0].Excerpt)
	}
}

func TestConfidenceProperties(t *testing.T) {
	evidence := sampleEvidence(4)

	para := strings.Repeat("This is a substantive paragraph about the research topic at hand. ", 3)
	wellCited := types.Draft{
		Text: para + "[Source 1]\n\n" + para + "[Source 2]\n\n" + para + "[Source 3]",
		Citations: []types.Citation{
			{ID: 1, URL: evidence[0].URL}, {ID: 2, URL: evidence[1].URL}, {ID: 3, URL: evidence[2].URL},
		},
	}
	thinlyCited := types.Draft{
		Text:      para + "[Source 1]\n\n" + para + "\n\n" + para,
		Citations: []types.Citation{{ID: 1, URL: evidence[0].URL}},
	}
	uncited := types.Draft{Text: para}

	wc, tc, uc := Confidence(wellCited, evidence), Confidence(thinlyCited, evidence), Confidence(uncited, evidence)
	if uc != 0 {
		t.Errorf("uncited confidence = %v, want 0", uc)
	}
	if wc <= tc {
		t.Errorf("well-cited %v should exceed thinly-cited %v", wc, tc)
	}
	if wc < 0 || wc > 1 || tc < 0 || tc > 1 {
		t.Errorf("confidence out of [0,1]: %v, %v", wc, tc)
	}
}

func TestConfidenceReputabilityBoosts(t *testing.T) {
	plain := []types.Evidence{
		{URL: "https://blog.example/a"},
		{URL: "https://blog.example/b"},
	}
	reputable := []types.Evidence{
		{URL: "https://arxiv.org/abs/1234"},
		{URL: "https://nlm.nih.gov/report"},
	}
	para := strings.Repeat("A long enough paragraph describing findings in detail for scoring. ", 2)
	text := para + "[Source 1]\n\n" + para + "[Source 2]"

	low := types.Draft{Text: text, Citations: []types.Citation{
		{ID: 1, URL: plain[0].URL}, {ID: 2, URL: plain[1].URL},
	}}
	high := types.Draft{Text: text, Citations: []types.Citation{
		{ID: 1, URL: reputable[0].URL}, {ID: 2, URL: reputable[1].URL},
	}}

	if Confidence(high, reputable) <= Confidence(low, plain) {
		t.Error("citing reputable hosts should score higher than unknown hosts")
	}
}

func TestConfidenceContentBackedBoosts(t *testing.T) {
	bare := []types.Evidence{{URL: "https://blog.example/a"}}
	backed := []types.Evidence{{URL: "https://blog.example/a", ContentHash: "deadbeef"}}
	para := strings.Repeat("A long enough paragraph describing findings in detail for scoring. ", 2)
	draft := types.Draft{
		Text:      para + "[Source 1]",
		Citations: []types.Citation{{ID: 1, URL: "https://blog.example/a"}},
	}

	if Confidence(draft, backed) <= Confidence(draft, bare) {
		t.Error("content-backed evidence should score higher than snippet-only")
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	// Each é is two bytes, so a 5-byte cap lands mid-rune.
	s := "ééééé"
	got := truncate(s, 5)
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
	if got != "éé" {
		t.Errorf("truncate = %q, want %q", got, "éé")
	}
	if truncate("short", 10) != "short" {
		t.Error("truncate altered a string under the cap")
	}
}

func TestBuildEvidenceSnippetIsValidUTF8(t *testing.T) {
	s := New(types.SynthesisConfig{SnippetLength: 7}, nil)
	evidence := s.BuildEvidence([]types.CanonicalDocument{
		{URL: "https://a.example/1", Excerpt: "日本語のテキスト"},
	})
	if len(evidence) != 1 {
		t.Fatalf("got %d evidence entries, want 1", len(evidence))
	}
	if !utf8.ValidString(evidence[0].Snippet) {
		t.Errorf("snippet is invalid UTF-8: %q", evidence[0].Snippet)
	}
	if len(evidence[0].Snippet) > 7 {
		t.Errorf("snippet is %d bytes, cap is 7", len(evidence[0].Snippet))
	}
}

func TestBestExcerptIsValidUTF8(t *testing.T) {
	long := strings.Repeat("ü", maxExcerptLen)
	got := bestExcerpt("", types.Evidence{Snippet: long})
	if !utf8.ValidString(got) {
		t.Errorf("excerpt is invalid UTF-8: %q", got)
	}
	if len(got) > maxExcerptLen {
		t.Errorf("excerpt is %d bytes, cap is %d", len(got), maxExcerptLen)
	}
}

func TestSplitChunks(t *testing.T) {
	content := "# Heading\n\nA real paragraph long enough to be kept as a chunk for binding.\n\nshort\n\nAnother substantial paragraph that comfortably clears the length threshold."
	chunks := splitChunks(content)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
}
