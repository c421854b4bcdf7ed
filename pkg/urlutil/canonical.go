// Package urlutil provides URL canonicalization used as the deduplication key
// everywhere in the pipeline. Raw URLs are never compared directly.
package urlutil

import (
	"net/url"
	"regexp"
	"strings"
)

// tracking query parameters stripped during canonicalization
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"ref":          true,
	"ref_src":      true,
}

// arxivVersionRe matches arXiv abs/pdf paths with a trailing version suffix
var arxivVersionRe = regexp.MustCompile(`^(/(?:abs|pdf)/\d+\.\d+)v\d+$`)

// Canonicalize normalizes a URL for deduplication:
// trims whitespace, lowercases scheme, host and path, drops the fragment and common
// tracking parameters, strips a trailing slash (keeping "/" for the root path)
// and removes the vN version suffix from arXiv abs/pdf links.
// An unparsable URL is returned trimmed as-is so it can still serve as a key.
func Canonicalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			if trackingParams[strings.ToLower(name)] {
				q.Del(name)
			}
		}
		u.RawQuery = q.Encode()
	}

	path := strings.ToLower(strings.TrimRight(u.Path, "/"))
	if path == "" {
		path = "/"
	}
	if isArxivHost(u.Host) {
		if m := arxivVersionRe.FindStringSubmatch(path); m != nil {
			path = m[1]
		}
	}
	u.Path = path

	return u.String()
}

func isArxivHost(host string) bool {
	return host == "arxiv.org" || strings.HasSuffix(host, ".arxiv.org")
}
