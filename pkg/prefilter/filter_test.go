package prefilter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/benchscope/pkg/domain"
)

func allEnabled() map[domain.Source]bool {
	return map[domain.Source]bool{
		domain.SourceArxiv:       true,
		domain.SourceGitHub:      true,
		domain.SourceHuggingFace: true,
		domain.SourceHELM:        true,
		domain.SourceTechEmpower: true,
		domain.SourceDBEngines:   true,
	}
}

func arxivCandidate() domain.RawCandidate {
	return domain.RawCandidate{
		Title:    "CodeArena: A Multi-Agent Code Generation Benchmark",
		URL:      "https://arxiv.org/abs/2401.00001",
		Source:   domain.SourceArxiv,
		Abstract: "We present a benchmark for evaluating multi-agent code generation with a standardized test set.",
	}
}

func TestCheckBasicRules(t *testing.T) {
	f := New(allEnabled())

	t.Run("pass", func(t *testing.T) {
		assert.Equal(t, "pass", f.check(arxivCandidate()))
	})

	t.Run("short title", func(t *testing.T) {
		c := arxivCandidate()
		c.Title = "Short"
		assert.Equal(t, "title_short", f.check(c))
	})

	t.Run("abstract exactly at threshold passes", func(t *testing.T) {
		c := arxivCandidate()
		c.Abstract = strings.Repeat("a", 11) + " benchmark" // 20 chars with keyword
		require.Len(t, c.Abstract, 21)
		c.Abstract = c.Abstract[:20]
		assert.Equal(t, "pass", f.check(c))
	})

	t.Run("abstract one char short fails", func(t *testing.T) {
		c := arxivCandidate()
		c.Abstract = strings.Repeat("b", 19)
		assert.Equal(t, "abstract_short", f.check(c))
	})

	t.Run("short abstract exempt for huggingface", func(t *testing.T) {
		c := arxivCandidate()
		c.Source = domain.SourceHuggingFace
		c.Abstract = "tiny"
		c.Title = "SQL Generation Benchmark Dataset"
		assert.Equal(t, "pass", f.check(c))
	})

	t.Run("invalid url", func(t *testing.T) {
		c := arxivCandidate()
		c.URL = "ftp://example.com/x"
		assert.Equal(t, "invalid_url", f.check(c))
	})

	t.Run("disabled source", func(t *testing.T) {
		enabled := allEnabled()
		enabled[domain.SourceArxiv] = false
		assert.Equal(t, "invalid_source", New(enabled).check(arxivCandidate()))
	})

	t.Run("unknown source", func(t *testing.T) {
		c := arxivCandidate()
		c.Source = "pwc"
		assert.Equal(t, "invalid_source", f.check(c))
	})
}

func TestCheckTrustedSourceBypass(t *testing.T) {
	f := New(allEnabled())

	// scenario: techempower candidate with no benchmark keyword at all
	c := domain.RawCandidate{
		Title:    "TechEmpower - FastAPI",
		URL:      "https://www.techempower.com/benchmarks/#f=fastapi",
		Source:   domain.SourceTechEmpower,
		Abstract: "FastAPI is a modern, fast web framework",
	}
	assert.Equal(t, "pass", f.check(c), "trusted sources skip keyword rules")

	// same text from a non-trusted source hits the keyword rules and passes
	// only because "web" and "framework" are required keywords; with neither
	// it fails
	c2 := c
	c2.Source = domain.SourceArxiv
	c2.Title = "An essay about cooking and gardening"
	c2.Abstract = "Nothing related to computers here, just recipes and flowers."
	assert.Equal(t, "no_required_keyword", f.check(c2))
}

func TestCheckKeywordRules(t *testing.T) {
	f := New(allEnabled())

	t.Run("excluded keyword rejects", func(t *testing.T) {
		c := arxivCandidate()
		c.Abstract = "A benchmark for sentiment analysis of product reviews with code."
		assert.Equal(t, "excluded_keyword", f.check(c))
	})

	t.Run("required keyword needed", func(t *testing.T) {
		c := arxivCandidate()
		c.Title = "A study of bird migration patterns"
		c.Abstract = "We observe birds crossing the continent twice a year in large flocks."
		assert.Equal(t, "no_required_keyword", f.check(c))
	})
}

func githubCandidate(stars int, age, sincePush time.Duration, now time.Time) domain.RawCandidate {
	readme := strings.Repeat("x ", 260) + "benchmark results with baseline comparison"
	c := domain.RawCandidate{
		Title:       "acme/agent-bench",
		URL:         "https://github.com/acme/agent-bench",
		Source:      domain.SourceGitHub,
		Abstract:    readme,
		GitHubStars: stars,
		PublishDate: now.Add(-sincePush),
	}
	c.SetMeta("created_at", now.Add(-age).Format(time.RFC3339))
	return c
}

func TestCheckGitHubGate(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	f := New(allEnabled())
	f.now = func() time.Time { return now }

	day := 24 * time.Hour

	t.Run("fresh repo with 5 stars passes", func(t *testing.T) {
		c := githubCandidate(5, 6*day, 1*day, now)
		assert.Equal(t, "pass", f.check(c))
	})

	t.Run("fresh repo with 4 stars fails", func(t *testing.T) {
		c := githubCandidate(4, 6*day, 1*day, now)
		assert.Equal(t, "github_low_stars", f.check(c))
	})

	t.Run("old repo needs 50 stars", func(t *testing.T) {
		c := githubCandidate(49, 200*day, 1*day, now)
		assert.Equal(t, "github_low_stars", f.check(c))
		c = githubCandidate(50, 200*day, 1*day, now)
		assert.Equal(t, "pass", f.check(c))
	})

	t.Run("stale push rejected", func(t *testing.T) {
		c := githubCandidate(500, 200*day, 91*day, now)
		assert.Equal(t, "github_stale", f.check(c))
	})

	t.Run("short readme rejected", func(t *testing.T) {
		c := githubCandidate(500, 200*day, 1*day, now)
		c.Abstract = "benchmark with code and baseline, but readme far below the length floor"
		assert.Equal(t, "github_readme_short", f.check(c))
	})

	t.Run("readme without benchmark feature rejected", func(t *testing.T) {
		c := githubCandidate(500, 200*day, 1*day, now)
		c.Abstract = strings.Repeat("agent code automation tooling for the web platform ", 12)
		assert.Equal(t, "github_no_benchmark_feature", f.check(c))
	})

	t.Run("awesome list rejected", func(t *testing.T) {
		c := githubCandidate(500, 200*day, 1*day, now)
		c.Title = "acme/awesome-agent-tools"
		assert.Equal(t, "github_awesome_list", f.check(c))
	})

	t.Run("tool suffix rejected", func(t *testing.T) {
		c := githubCandidate(500, 200*day, 1*day, now)
		c.Title = "acme/agent-api-client"
		assert.Equal(t, "github_tool_repo", f.check(c))
	})

	t.Run("missing push date rejected", func(t *testing.T) {
		c := githubCandidate(500, 200*day, 1*day, now)
		c.PublishDate = time.Time{}
		assert.Equal(t, "github_no_push_date", f.check(c))
	})
}

func TestApplyCountsReasons(t *testing.T) {
	f := New(allEnabled())

	good := arxivCandidate()
	bad := arxivCandidate()
	bad.Title = "tiny"

	res := f.Apply([]domain.RawCandidate{good, bad, good})
	assert.Len(t, res.Passed, 2)
	assert.Equal(t, 2, res.Reasons["pass"])
	assert.Equal(t, 1, res.Reasons["title_short"])
}
