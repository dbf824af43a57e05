// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synthesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Models drift between citation marker spellings; all are normalized to the
// canonical [Source N] form before extraction (R3.3).
var (
	bracketMarkerRe = regexp.MustCompile(`\[\s*Source\s+(\d+)\s*\]`)
	parenMarkerRe   = regexp.MustCompile(`\(\s*Source\s+(\d+)\s*\)`)
	insideMarkerRe  = regexp.MustCompile(`Source\s*\[\s*(\d+)\s*\]`)
	bareMarkerRe    = regexp.MustCompile(`(^|[^\[(])\bSource\s+(\d+)`)
	superMarkerRe   = regexp.MustCompile(`Source\s*([⁰¹²³⁴⁵⁶⁷⁸⁹]+)`)

	danglingSpaceRe = regexp.MustCompile(` +([.,;:)])`)
	multiSpaceRe    = regexp.MustCompile(`  +`)
)

var superscriptDigits = map[rune]rune{
	'⁰': '0', '¹': '1', '²': '2', '³': '3', '⁴': '4',
	'⁵': '5', '⁶': '6', '⁷': '7', '⁸': '8', '⁹': '9',
}

// ExtractCitations normalizes citation markers in a generated narrative,
// removes markers that reference no listed source, and returns the cleaned
// text with one Citation per distinct source in order of first appearance
// (R3.3-R3.5). Every returned citation ID is a valid 1-based index into
// evidence.
func ExtractCitations(text string, evidence []types.Evidence) (string, []types.Citation) {
	text = normalizeMarkers(text)

	n := len(evidence)
	seen := make(map[int]bool)
	var order []int

	text = bracketMarkerRe.ReplaceAllStringFunc(text, func(m string) string {
		idStr := bracketMarkerRe.FindStringSubmatch(m)[1]
		id, err := strconv.Atoi(idStr)
		if err != nil || id < 1 || id > n {
			return ""
		}
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
		return fmt.Sprintf("[Source %d]", id)
	})

	// Removing invalid markers leaves spacing debris behind.
	text = danglingSpaceRe.ReplaceAllString(text, "$1")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	var citations []types.Citation
	for _, id := range order {
		ev := evidence[id-1]
		citations = append(citations, types.Citation{
			ID:      id,
			URL:     ev.URL,
			Title:   ev.Title,
			Excerpt: bestExcerpt(citationContext(text, id), ev),
		})
	}

	return text, citations
}

// normalizeMarkers rewrites every marker variant to [Source N].
func normalizeMarkers(text string) string {
	text = superMarkerRe.ReplaceAllStringFunc(text, func(m string) string {
		digits := superMarkerRe.FindStringSubmatch(m)[1]
		var sb strings.Builder
		for _, r := range digits {
			sb.WriteRune(superscriptDigits[r])
		}
		return "[Source " + sb.String() + "]"
	})
	text = parenMarkerRe.ReplaceAllString(text, "[Source $1]")
	text = insideMarkerRe.ReplaceAllString(text, "[Source $1]")
	text = bareMarkerRe.ReplaceAllString(text, "$1[Source $2]")
	return text
}

// citationContext returns the paragraph containing the first occurrence of
// the marker for id, used to bind the citation to its best excerpt.
func citationContext(text string, id int) string {
	marker := fmt.Sprintf("[Source %d]", id)
	for _, para := range strings.Split(text, "\n\n") {
		if strings.Contains(para, marker) {
			return para
		}
	}
	return ""
}

// maxExcerptLen bounds citation excerpts.
const maxExcerptLen = 300

// bestExcerpt picks the evidence chunk with the highest keyword overlap
// against the citing paragraph, falling back to the snippet (R3.5).
func bestExcerpt(context string, ev types.Evidence) string {
	best := ev.Snippet
	if len(ev.Chunks) > 0 && context != "" {
		want := keywords(context)
		bestScore := 0
		for _, chunk := range ev.Chunks {
			score := 0
			for w := range keywords(chunk) {
				if want[w] {
					score++
				}
			}
			if score > bestScore {
				bestScore = score
				best = chunk
			}
		}
	}

	return truncate(strings.TrimSpace(best), maxExcerptLen)
}

// keywords returns the lowercased words of s longer than three characters.
func keywords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?()[]\"'")
		if len(w) > 3 {
			out[w] = true
		}
	}
	return out
}
