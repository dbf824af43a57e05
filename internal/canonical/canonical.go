// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package canonical normalizes URLs and computes content hashes, defining
// the identity every later stage deduplicates on.
// Implements: prd102-canonical (R1-R3);
//
//	docs/ARCHITECTURE § Canonical Document Model.
package canonical

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/pdiddy/deep-research/pkg/types"
)

// trackingParams are query parameters stripped during normalization. They
// vary per click without changing the page identity.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
	"ref":          true,
	"source":       true,
}

// NormalizeURL returns a canonical string form of rawURL: lowercased scheme
// and host, "www." and default ports stripped, fragment dropped, tracking
// parameters removed, remaining query parameters sorted, and the trailing
// slash trimmed from non-root paths (R1.1-R1.4).
func NormalizeURL(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", fmt.Errorf("empty URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing URL %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL %q has no host", rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")

	path := u.EscapedPath()
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "/" {
		path = ""
	}

	query := ""
	if u.RawQuery != "" {
		values, err := url.ParseQuery(u.RawQuery)
		if err == nil {
			var keys []string
			for k := range values {
				if !trackingParams[strings.ToLower(k)] {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)
			var parts []string
			for _, k := range keys {
				vs := values[k]
				sort.Strings(vs)
				for _, v := range vs {
					parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
				}
			}
			query = strings.Join(parts, "&")
		}
	}

	normalized := scheme + "://" + host + path
	if query != "" {
		normalized += "?" + query
	}
	return normalized, nil
}

// Hostname returns the lowercased host of rawURL without "www." or a port.
// It returns "" for unparseable input.
func Hostname(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// ContentHash returns the SHA-256 hex digest of content. Empty content
// hashes to the empty string so callers can skip content-less documents (R2.1).
func ContentHash(content string) string {
	if content == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)
}

// URLHash returns a short, stable key for a URL that failed normalization
// or carries no canonical form: "url-" plus the first 16 hex characters of
// SHA-256(rawURL) (R3.2).
func URLHash(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return fmt.Sprintf("url-%x", sum[:8])
}

// Key returns the dedup identity for a document: the normalized canonical
// URL when present, else the normalized resolved URL when it differs from
// the raw URL, else a hash of the raw URL (R3.1).
func Key(doc types.CanonicalDocument) string {
	if doc.CanonicalURL != "" {
		if n, err := NormalizeURL(doc.CanonicalURL); err == nil {
			return n
		}
	}
	if doc.ResolvedURL != "" && doc.ResolvedURL != doc.URL {
		if n, err := NormalizeURL(doc.ResolvedURL); err == nil {
			return n
		}
	}
	if n, err := NormalizeURL(doc.URL); err == nil {
		return n
	}
	return URLHash(doc.URL)
}

// KeyPriority ranks how authoritative a document's identity is: a declared
// canonical URL (3) beats a redirect-resolved URL (2) beats a raw URL (1).
// The rank engine keeps the highest-priority document per key (R3.3).
func KeyPriority(doc types.CanonicalDocument) int {
	switch {
	case doc.CanonicalURL != "":
		return 3
	case doc.ResolvedURL != "" && doc.ResolvedURL != doc.URL:
		return 2
	default:
		return 1
	}
}
