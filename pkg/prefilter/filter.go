// Package prefilter implements the rule-based pass/reject stage. Rules are
// pure functions over fields already present on the candidate, applied in
// order with short-circuit on the first failure.
package prefilter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/benchscope/pkg/domain"
)

// length thresholds
const (
	minTitleLength    = 10
	minAbstractLength = 20
	minReadmeLength   = 500
	recentPushDays    = 90
)

// abstractExempt sources ship short official descriptions and skip the
// abstract length rule
var abstractExempt = map[domain.Source]bool{
	domain.SourceHELM:            true,
	domain.SourceSemanticScholar: true,
	domain.SourceHuggingFace:     true,
}

// Filter applies the rule pipeline to each candidate independently
type Filter struct {
	enabled map[domain.Source]bool
	now     func() time.Time
}

// New creates a filter restricted to the enabled source set
func New(enabled map[domain.Source]bool) *Filter {
	return &Filter{enabled: enabled, now: time.Now}
}

// Result holds the survivors and per-reason rejection counts
type Result struct {
	Passed  []domain.RawCandidate
	Reasons map[string]int
}

// Apply filters the batch and logs per-source pass statistics
func (f *Filter) Apply(candidates []domain.RawCandidate) Result {
	res := Result{Reasons: map[string]int{}}
	type stat struct{ in, out int }
	perSource := map[domain.Source]*stat{}

	for _, cand := range candidates {
		st, ok := perSource[cand.Source]
		if !ok {
			st = &stat{}
			perSource[cand.Source] = st
		}
		st.in++

		reason := f.check(cand)
		res.Reasons[reason]++
		if reason == "pass" {
			res.Passed = append(res.Passed, cand)
			st.out++
		} else {
			lgr.Printf("[DEBUG] prefilter rejected %q: filter_reason=%s", truncateTitle(cand.Title), reason)
		}
	}

	sources := make([]string, 0, len(perSource))
	for src := range perSource {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)
	for _, src := range sources {
		st := perSource[domain.Source(src)]
		rate := 0.0
		if st.in > 0 {
			rate = float64(st.out) / float64(st.in) * 100
		}
		lgr.Printf("[INFO] prefilter %s: %d/%d passed (%.1f%%)", src, st.out, st.in, rate)
	}

	return res
}

// check runs the ordered rules, returning "pass" or the rejection reason
func (f *Filter) check(cand domain.RawCandidate) string {
	if len(strings.TrimSpace(cand.Title)) < minTitleLength {
		return "title_short"
	}
	if !abstractExempt[cand.Source] && len(strings.TrimSpace(cand.Abstract)) < minAbstractLength {
		return "abstract_short"
	}
	if !strings.HasPrefix(cand.URL, "http://") && !strings.HasPrefix(cand.URL, "https://") {
		return "invalid_url"
	}
	if !domain.ValidSources[cand.Source] || !f.enabled[cand.Source] {
		return "invalid_source"
	}

	// trusted sources are curated upstream, remaining keyword and benchmark
	// feature rules don't apply
	if domain.TrustedSources[cand.Source] {
		return "pass"
	}

	text := strings.ToLower(cand.Title + " " + cand.Abstract)
	for _, excluded := range excludedKeywords {
		if strings.Contains(text, excluded) {
			return "excluded_keyword"
		}
	}
	if !containsAny(text, requiredKeywords) {
		return "no_required_keyword"
	}

	if cand.Source == domain.SourceGitHub {
		if reason := f.checkGitHub(cand); reason != "" {
			return reason
		}
	}

	return "pass"
}

// checkGitHub applies the code-host quality gate, empty string means pass
func (f *Filter) checkGitHub(cand domain.RawCandidate) string {
	if cand.PublishDate.IsZero() {
		return "github_no_push_date"
	}
	now := f.now().UTC()
	if now.Sub(cand.PublishDate) > recentPushDays*24*time.Hour {
		return "github_stale"
	}

	age := repoAge(cand, now)
	if cand.GitHubStars < domain.MinStarsForAge(age) {
		return "github_low_stars"
	}

	readme := cand.Abstract
	if len(readme) < minReadmeLength {
		return "github_readme_short"
	}

	titleLower := strings.ToLower(cand.Title)
	if strings.Contains(titleLower, "awesome-") || strings.Contains(titleLower, "awesome ") {
		return "github_awesome_list"
	}
	readmeLower := strings.ToLower(readme)
	for _, pattern := range curatedListPatterns {
		if strings.Contains(readmeLower, pattern) {
			return "github_curated_list"
		}
	}
	if hasToolSuffix(cand.Title) {
		return "github_tool_repo"
	}

	if !containsAny(readmeLower, lowercased(domain.BenchmarkFeatureKeywords)) {
		return "github_no_benchmark_feature"
	}

	return ""
}

// repoAge prefers the created_at metadata left by the collector, falling
// back to the push date when it's absent
func repoAge(cand domain.RawCandidate, now time.Time) time.Duration {
	if created := cand.Meta("created_at"); created != "" {
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			return now.Sub(t)
		}
	}
	return now.Sub(cand.PublishDate)
}

var toolSuffixes = []string{
	"-lib", "-library", "-client", "-sdk", "-wrapper", "-tool",
	"-utils", "-helper", "-connector", "-adapter", "-parser",
	"-tokenizer", "-package",
}

// hasToolSuffix flags repos named like helper libraries rather than benchmarks
func hasToolSuffix(title string) bool {
	normalized := strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(title), " ", "-"), "_", "-")
	for _, suffix := range toolSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return true
		}
	}
	return false
}

var curatedListPatterns = []string{
	"curated list", "collection of", "list of tools", "awesome list", "resources list",
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func lowercased(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = strings.ToLower(item)
	}
	return out
}

func truncateTitle(title string) string {
	if len(title) <= 50 {
		return title
	}
	return fmt.Sprintf("%s...", title[:50])
}
