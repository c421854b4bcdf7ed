package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
)

// GitHub searches the code-host API per configured topic and emits repos
// that pass its own quality gate: not a fork, no blacklisted topic, stars
// meeting the age-scaled threshold and a substantial README.
type GitHub struct {
	cfg    config.GitHubConfig
	now    func() time.Time
	readme map[string]string // per-run cache, avoids refetching shared repos
}

// NewGitHub creates the GitHub search collector
func NewGitHub(cfg config.GitHubConfig) *GitHub {
	return &GitHub{cfg: cfg, now: time.Now, readme: map[string]string{}}
}

// Name implements Collector
func (g *GitHub) Name() string { return string(domain.SourceGitHub) }

type ghSearchResult struct {
	Items []ghRepo `json:"items"`
}

type ghRepo struct {
	FullName    string   `json:"full_name"`
	HTMLURL     string   `json:"html_url"`
	Description string   `json:"description"`
	Stars       int      `json:"stargazers_count"`
	Fork        bool     `json:"fork"`
	Language    string   `json:"language"`
	Topics      []string `json:"topics"`
	PushedAt    string     `json:"pushed_at"`
	CreatedAt   string     `json:"created_at"`
	License     *ghLicense `json:"license"`
}

type ghLicense struct {
	Name string `json:"name"`
}

// Collect queries the search API for every topic sequentially; a failed topic
// is logged and skipped, results from the other topics are still returned
func (g *GitHub) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	client := newHTTPClient(g.cfg.Timeout)
	lookback := g.now().UTC().AddDate(0, 0, -g.cfg.LookbackDays).Format("2006-01-02")

	var candidates []domain.RawCandidate
	seen := map[string]bool{}
	failed := 0

	for _, topic := range g.cfg.Topics {
		params := url.Values{}
		params.Set("q", fmt.Sprintf("%s benchmark in:name,description,readme pushed:>=%s", topic, lookback))
		params.Set("sort", "stars")
		params.Set("order", "desc")
		params.Set("per_page", fmt.Sprintf("%d", g.cfg.PerTopic))

		var result ghSearchResult
		searchURL := g.cfg.APIURL + "/search/repositories?" + params.Encode()
		if err := getJSON(ctx, client, searchURL, g.headers("application/vnd.github+json"), g.cfg.MaxRetries, &result); err != nil {
			lgr.Printf("[WARN] github topic %q failed: %v", topic, err)
			failed++
			continue
		}

		for _, repo := range result.Items {
			if seen[repo.FullName] {
				continue
			}
			seen[repo.FullName] = true

			cand, ok := g.buildCandidate(ctx, client, repo, topic)
			if ok {
				candidates = append(candidates, cand)
			}
		}
	}

	if failed == len(g.cfg.Topics) && len(g.cfg.Topics) > 0 {
		return nil, fmt.Errorf("github search failed for all %d topics", failed)
	}

	lgr.Printf("[DEBUG] github collected %d candidates (%d topics failed)", len(candidates), failed)
	return candidates, nil
}

// buildCandidate applies the quality gate and maps a repo to a candidate
func (g *GitHub) buildCandidate(ctx context.Context, client *http.Client, repo ghRepo, topic string) (domain.RawCandidate, bool) {
	if repo.Fork {
		return domain.RawCandidate{}, false
	}
	for _, t := range repo.Topics {
		if g.blacklisted(t) {
			return domain.RawCandidate{}, false
		}
	}

	created := parseISOTime(repo.CreatedAt)
	if !created.IsZero() && repo.Stars < domain.MinStarsForAge(g.now().UTC().Sub(created)) {
		return domain.RawCandidate{}, false
	}

	readme := g.fetchReadme(ctx, client, repo.FullName)
	if len(readme) < g.cfg.MinReadmeLength {
		return domain.RawCandidate{}, false
	}

	cand := domain.RawCandidate{
		Title:          repo.FullName,
		URL:            repo.HTMLURL,
		Source:         domain.SourceGitHub,
		Abstract:       truncate(readme, 2000),
		GitHubStars:    repo.Stars,
		GitHubURL:      repo.HTMLURL,
		PublishDate:    parseISOTime(repo.PushedAt),
		TaskType:       detectTaskType(readme + " " + repo.Description),
		DatasetURL:     extractDatasetURL(readme),
		RawMetrics:     extractMetrics(readme),
		RawBaselines:   extractBaselines(readme),
		RawDatasetSize: extractDatasetSize(readme),
	}
	if repo.License != nil {
		cand.LicenseType = repo.License.Name
	}
	cand.SetMeta("topic", topic)
	cand.SetMeta("language", repo.Language)
	cand.SetMeta("readme_length", fmt.Sprintf("%d", len(readme)))
	if !created.IsZero() {
		cand.SetMeta("created_at", created.Format(time.RFC3339))
	}
	return cand, true
}

// fetchReadme retrieves the raw README body, capped at 10k characters
func (g *GitHub) fetchReadme(ctx context.Context, client *http.Client, fullName string) string {
	if cached, ok := g.readme[fullName]; ok {
		return cached
	}
	body, err := getBody(ctx, client, g.cfg.APIURL+"/repos/"+fullName+"/readme",
		g.headers("application/vnd.github.raw"), 1)
	if err != nil {
		lgr.Printf("[DEBUG] readme fetch failed for %s: %v", fullName, err)
		g.readme[fullName] = ""
		return ""
	}
	text := truncate(string(body), 10000)
	g.readme[fullName] = text
	return text
}

func (g *GitHub) headers(accept string) map[string]string {
	h := map[string]string{"Accept": accept}
	if g.cfg.Token != "" {
		h["Authorization"] = "Bearer " + g.cfg.Token
	}
	return h
}

func (g *GitHub) blacklisted(topic string) bool {
	topic = strings.ToLower(topic)
	for _, b := range g.cfg.TopicBlacklist {
		if topic == strings.ToLower(b) {
			return true
		}
	}
	return false
}

func parseISOTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// metric and baseline extraction from README text, coarse signals refined
// later by the LLM

var metricPatterns = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`(?i)pass@\d+`), "Pass@k"},
	{regexp.MustCompile(`(?i)\bbleu(?:-\d+)?\b`), "BLEU"},
	{regexp.MustCompile(`(?i)\brouge(?:-[l1-3])?\b`), "ROUGE"},
	{regexp.MustCompile(`(?i)\bf1[\s-]?score\b`), "F1-Score"},
	{regexp.MustCompile(`(?i)\baccuracy\b`), "Accuracy"},
	{regexp.MustCompile(`(?i)\bprecision\b`), "Precision"},
	{regexp.MustCompile(`(?i)\brecall\b`), "Recall"},
	{regexp.MustCompile(`(?i)\bexact match\b`), "Exact Match"},
	{regexp.MustCompile(`(?i)\bsuccess rate\b`), "Success Rate"},
}

var baselinePatterns = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`(?i)gpt-4(?:-turbo|o)?`), "GPT-4"},
	{regexp.MustCompile(`(?i)gpt-3\.5(?:-turbo)?`), "GPT-3.5"},
	{regexp.MustCompile(`(?i)claude[\s-]?(?:3\.5|3|opus|sonnet)?`), "Claude"},
	{regexp.MustCompile(`(?i)llama[\s-]?[23]`), "Llama"},
	{regexp.MustCompile(`(?i)code\s?llama`), "Code Llama"},
	{regexp.MustCompile(`(?i)starcoder`), "StarCoder"},
	{regexp.MustCompile(`(?i)\bcodex\b`), "Codex"},
	{regexp.MustCompile(`(?i)\bmistral\b`), "Mistral"},
	{regexp.MustCompile(`(?i)\bdeepseek\b`), "DeepSeek"},
}

var datasetSizeRe = regexp.MustCompile(`(?i)\b\d{1,3}(?:[,\s]\d{3})*(?:\s*[km])?\s*(?:samples?|problems?|questions?|tasks?|examples?|test\s+cases?)\b`)

const maxExtracted = 5

func extractMetrics(text string) []string {
	var out []string
	for _, p := range metricPatterns {
		if p.re.MatchString(text) {
			out = append(out, p.label)
			if len(out) >= maxExtracted {
				break
			}
		}
	}
	return out
}

func extractBaselines(text string) []string {
	var out []string
	for _, p := range baselinePatterns {
		if p.re.MatchString(text) {
			out = append(out, p.label)
			if len(out) >= maxExtracted {
				break
			}
		}
	}
	return out
}

func extractDatasetSize(text string) string {
	return strings.TrimSpace(datasetSizeRe.FindString(text))
}

// task type keyword map, first match wins
var taskTypePatterns = []struct {
	taskType string
	patterns []string
}{
	{"Code Generation", []string{"code generation", "codegen", "code synthesis", "program synthesis"}},
	{"Web Automation", []string{"web automation", "browser automation", "web agent", "web navigation"}},
	{"Tool Use", []string{"tool use", "tool calling", "function calling", "api calling"}},
	{"Multi-Agent", []string{"multi-agent", "agent collaboration", "multi agent"}},
	{"Reasoning", []string{"reasoning", "chain-of-thought", "logical reasoning", "math reasoning"}},
	{"Code Understanding", []string{"code understanding", "code comprehension", "code analysis"}},
	{"Question Answering", []string{"question answering", "qa benchmark", "reading comprehension"}},
}

func detectTaskType(text string) string {
	lowered := strings.ToLower(text)
	for _, entry := range taskTypePatterns {
		for _, p := range entry.patterns {
			if strings.Contains(lowered, p) {
				return entry.taskType
			}
		}
	}
	return ""
}
