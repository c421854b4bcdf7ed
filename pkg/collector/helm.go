package collector

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
)

// HELM scrapes the leaderboard index and emits one candidate per scenario
// passing the allow/block lists. Marked a trusted source downstream.
type HELM struct {
	cfg config.HELMConfig
}

// NewHELM creates the HELM leaderboard collector
func NewHELM(cfg config.HELMConfig) *HELM {
	return &HELM{cfg: cfg}
}

// Name implements Collector
func (h *HELM) Name() string { return string(domain.SourceHELM) }

var helmReleaseRe = regexp.MustCompile(`window\.RELEASE\s*=\s*"([^"]+)"`)

type helmSummary struct {
	Date string `json:"date"`
}

type helmGroupSection struct {
	Title  string `json:"title"`
	Header []struct {
		Value string `json:"value"`
	} `json:"header"`
	Rows [][]helmCell `json:"rows"`
}

type helmCell struct {
	Value any    `json:"value"`
	Href  string `json:"href"`
}

// Collect resolves the current release from config.js, then reads the
// summary and group index from the public storage bucket
func (h *HELM) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	client := newHTTPClient(h.cfg.Timeout)

	release := h.fetchRelease(ctx, client)

	var summary helmSummary
	if err := getJSON(ctx, client, h.storageURL(release, "summary.json"), nil, 2, &summary); err != nil {
		lgr.Printf("[WARN] helm summary fetch failed for %s: %v", release, err)
	}
	publishDate := parseHELMDate(summary.Date)

	var groups []helmGroupSection
	if err := getJSON(ctx, client, h.storageURL(release, "groups.json"), nil, 2, &groups); err != nil {
		return nil, fmt.Errorf("helm groups fetch: %w", err)
	}

	candidates := h.parseGroups(groups, release, publishDate)
	lgr.Printf("[DEBUG] helm collected %d candidates from release %s", len(candidates), release)
	return candidates, nil
}

func (h *HELM) fetchRelease(ctx context.Context, client *http.Client) string {
	body, err := getBody(ctx, client, strings.TrimRight(h.cfg.BaseURL, "/")+"/config.js", nil, 2)
	if err != nil {
		lgr.Printf("[WARN] helm release discovery failed, using default %s: %v", h.cfg.DefaultRelease, err)
		return h.cfg.DefaultRelease
	}
	if m := helmReleaseRe.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return h.cfg.DefaultRelease
}

func (h *HELM) storageURL(release, file string) string {
	return fmt.Sprintf("%s/releases/%s/%s", strings.TrimRight(h.cfg.StorageBase, "/"), release, file)
}

func (h *HELM) parseGroups(sections []helmGroupSection, release string, publishDate time.Time) []domain.RawCandidate {
	var candidates []domain.RawCandidate
	seen := map[string]bool{}

	for _, section := range sections {
		if strings.EqualFold(strings.TrimSpace(section.Title), "all scenarios") {
			continue
		}

		headers := make([]string, 0, len(section.Header))
		for _, col := range section.Header {
			headers = append(headers, col.Value)
		}

		for _, row := range section.Rows {
			if len(row) == 0 {
				continue
			}
			name, _ := row[0].Value.(string)
			if name == "" {
				continue
			}

			slug := slugFromHref(row[0].Href)
			if slug == "" {
				slug = slugify(name)
			}
			if seen[slug] {
				continue
			}
			seen[slug] = true

			rowMap := rowToMap(headers, row)
			description := stringValue(rowMap["Description"])
			if !h.relevantScenario(name, description) {
				continue
			}

			var abstractParts []string
			if description != "" {
				abstractParts = append(abstractParts, truncate(strings.TrimSpace(description), 200))
			}
			if adaptation := stringValue(rowMap["Adaptation method"]); adaptation != "" {
				abstractParts = append(abstractParts, "adaptation: "+adaptation)
			}
			if models := stringValue(rowMap["# models"]); models != "" {
				abstractParts = append(abstractParts, "models covered: "+models)
			}

			candURL := strings.TrimRight(h.cfg.BaseURL, "/") + "/?group=" + slug
			cand := domain.RawCandidate{
				Title:       "HELM - " + name,
				URL:         candURL,
				Source:      domain.SourceHELM,
				Abstract:    strings.Join(abstractParts, " | "),
				PublishDate: publishDate,
				DatasetURL:  candURL,
			}
			cand.SetMeta("release", release)
			cand.SetMeta("section", section.Title)
			cand.SetMeta("group_slug", slug)
			if v := stringValue(rowMap["# instances"]); v != "" {
				cand.SetMeta("instances", v)
			}
			candidates = append(candidates, cand)
		}
	}

	return candidates
}

// relevantScenario requires a whitelist hit and no blacklist hit
func (h *HELM) relevantScenario(name, description string) bool {
	text := strings.ToLower(name + " " + description)
	for _, excluded := range h.cfg.ExcludedScenarios {
		if strings.Contains(text, strings.ToLower(excluded)) {
			return false
		}
	}
	for _, allowed := range h.cfg.AllowedScenarios {
		if strings.Contains(text, strings.ToLower(allowed)) {
			return true
		}
	}
	return false
}

func rowToMap(headers []string, row []helmCell) map[string]any {
	out := map[string]any{}
	for i, header := range headers {
		if header == "" || i >= len(row) {
			continue
		}
		out[header] = row[i].Value
	}
	return out
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.2f", val), ".00")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func slugFromHref(href string) string {
	if href == "" || !strings.Contains(href, "group=") {
		return ""
	}
	parts := strings.SplitN(href, "group=", 2)
	return strings.TrimSpace(parts[1])
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

func parseHELMDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
