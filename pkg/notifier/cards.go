package notifier

import (
	"fmt"
	"sort"
	"strings"

	"github.com/umputun/benchscope/pkg/domain"
)

// buildCard renders one interactive card for a high-priority candidate:
// title, optional hero image, score grid, reasoning and action buttons
func (n *Notifier) buildCard(cand *domain.ScoredCandidate) map[string]any {
	total := cand.TotalScore(n.weights)

	detail := fmt.Sprintf("Total score: **%.1f** / 10  |  Priority: **%s**\n\n"+
		"**Dimensions**\n"+
		"Activity %.1f  |  Reproducibility %.1f  |  License %.1f  |  Novelty %.1f  |  Relevance %.1f\n\n"+
		"**Source**: %s\n\n"+
		"**Reasoning**\n%s",
		total, cand.Priority(n.weights),
		cand.Activity, cand.Reproducibility, cand.License, cand.Novelty, cand.Relevance,
		cand.Source.DisplayName(),
		truncate(cand.OverallReasoning, 1500))

	actions := []map[string]any{
		{
			"tag":  "button",
			"text": map[string]string{"tag": "plain_text", "content": "Open"},
			"url":  cand.URL,
			"type": "primary",
		},
	}
	if cand.GitHubURL != "" && cand.GitHubURL != cand.URL {
		actions = append(actions, map[string]any{
			"tag":  "button",
			"text": map[string]string{"tag": "plain_text", "content": "GitHub"},
			"url":  cand.GitHubURL,
			"type": "default",
		})
	}
	if n.tableURL != "" {
		actions = append(actions, map[string]any{
			"tag":  "button",
			"text": map[string]string{"tag": "plain_text", "content": "Open table"},
			"url":  n.tableURL,
			"type": "default",
		})
	}

	elements := []map[string]any{
		{
			"tag":  "div",
			"text": map[string]string{"tag": "lark_md", "content": "**" + truncate(cand.Title, 150) + "**"},
		},
	}
	if cand.HeroImageKey != "" {
		elements = append(elements,
			map[string]any{
				"tag":     "img",
				"img_key": cand.HeroImageKey,
				"alt":     map[string]string{"tag": "plain_text", "content": truncate(cand.Title, 60) + " preview"},
				"preview": true,
			},
			map[string]any{"tag": "hr"},
		)
	}
	elements = append(elements,
		map[string]any{"tag": "div", "text": map[string]string{"tag": "lark_md", "content": detail}},
		map[string]any{"tag": "hr"},
		map[string]any{"tag": "action", "actions": actions},
		map[string]any{"tag": "note", "elements": []map[string]string{
			{"tag": "plain_text", "content": "benchscope | " + n.now().Format("2006-01-02 15:04")},
		}},
	)

	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title":    map[string]string{"tag": "plain_text", "content": "High-quality benchmark candidate"},
				"template": "red",
			},
			"elements": elements,
		},
	}
}

// buildMediumSummary renders the digest card for medium-priority candidates
func (n *Notifier) buildMediumSummary(medium []domain.ScoredCandidate) map[string]any {
	top := medium
	if len(top) > n.cfg.SummaryTopK {
		top = top[:n.cfg.SummaryTopK]
	}

	var sum float64
	for i := range medium {
		sum += medium[i].TotalScore(n.weights)
	}
	avg := sum / float64(len(medium))

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Overview**\n%d candidates  |  average %.1f / 10\n\n**Top %d**\n\n",
		len(medium), avg, len(top))
	for i := range top {
		fmt.Fprintf(&sb, "**%d. %s**\n   %s  |  score %.1f  |  activity %.1f  |  reproducibility %.1f\n   [details](%s)\n\n",
			i+1, truncate(top[i].Title, 60), top[i].Source.DisplayName(),
			top[i].TotalScore(n.weights), top[i].Activity, top[i].Reproducibility, top[i].URL)
	}
	if len(medium) > len(top) {
		fmt.Fprintf(&sb, "\n%d more in the table\n", len(medium)-len(top))
	}

	elements := []map[string]any{
		{"tag": "div", "text": map[string]string{"tag": "lark_md", "content": sb.String()}},
	}
	if n.tableURL != "" {
		elements = append(elements,
			map[string]any{"tag": "hr"},
			map[string]any{"tag": "action", "actions": []map[string]any{{
				"tag":  "button",
				"text": map[string]string{"tag": "plain_text", "content": "Open table"},
				"url":  n.tableURL,
				"type": "primary",
			}}},
		)
	}

	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title":    map[string]string{"tag": "plain_text", "content": "Medium-priority candidates"},
				"template": "yellow",
			},
			"elements": elements,
		},
	}
}

// buildSummary renders the aggregate run card: counts by priority, score
// distribution and source breakdown
func (n *Notifier) buildSummary(all, high, medium []domain.ScoredCandidate) map[string]any {
	var sum float64
	sourceCounts := map[domain.Source]int{}
	var excellent, good, fair, pass int
	for i := range all {
		total := all[i].TotalScore(n.weights)
		sum += total
		sourceCounts[all[i].Source]++
		switch {
		case total >= 9.0:
			excellent++
		case total >= 8.0:
			good++
		case total >= 7.0:
			fair++
		case total >= 6.0:
			pass++
		}
	}
	avg := sum / float64(len(all))

	type srcCount struct {
		src   domain.Source
		count int
	}
	sources := make([]srcCount, 0, len(sourceCounts))
	for src, count := range sourceCounts {
		sources = append(sources, srcCount{src, count})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].count > sources[j].count })
	parts := make([]string, 0, len(sources))
	for _, sc := range sources {
		parts = append(parts, fmt.Sprintf("%s %d", sc.src.DisplayName(), sc.count))
	}

	content := fmt.Sprintf("**%s**  |  %d candidates  |  average %.1f\n\n"+
		"**Priority**: high %d (cards sent)  |  medium %d (digest)\n\n"+
		"**Scores**: 9.0+ %d  |  8.0-8.9 %d  |  7.0-7.9 %d  |  6.0-6.9 %d\n\n"+
		"**Sources**: %s",
		n.now().Format("2006-01-02 15:04"), len(all), avg,
		len(high), len(medium),
		excellent, good, fair, pass,
		strings.Join(parts, "  |  "))
	if n.tableURL != "" {
		content += fmt.Sprintf("\n\n[Open table](%s)", n.tableURL)
	}

	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title":    map[string]string{"tag": "plain_text", "content": "Collection summary"},
				"template": "blue",
			},
			"elements": []map[string]any{
				{"tag": "div", "text": map[string]string{"tag": "lark_md", "content": content}},
			},
		},
	}
}
