package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
)

// HuggingFace monitors the hub for recently updated benchmark datasets
type HuggingFace struct {
	cfg config.HuggingFaceConfig
	now func() time.Time
}

// NewHuggingFace creates the hub collector
func NewHuggingFace(cfg config.HuggingFaceConfig) *HuggingFace {
	return &HuggingFace{cfg: cfg, now: time.Now}
}

// Name implements Collector
func (h *HuggingFace) Name() string { return string(domain.SourceHuggingFace) }

type hfDataset struct {
	ID           string   `json:"id"`
	Downloads    int      `json:"downloads"`
	Tags         []string `json:"tags"`
	LastModified string   `json:"lastModified"`
	Description  string   `json:"description"`
	CardData     struct {
		PrettyName string `json:"pretty_name"`
	} `json:"cardData"`
}

// Collect searches the datasets API per keyword, merges by id, filters by
// minimum downloads and drops entries older than the lookback window
func (h *HuggingFace) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	client := newHTTPClient(h.cfg.Timeout)
	cutoff := h.now().UTC().AddDate(0, 0, -h.cfg.LookbackDays)

	seen := map[string]bool{}
	var candidates []domain.RawCandidate
	failed := 0

	for _, keyword := range h.cfg.Keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}

		params := url.Values{}
		params.Set("search", keyword)
		params.Set("sort", "lastModified")
		params.Set("direction", "-1")
		params.Set("limit", fmt.Sprintf("%d", h.cfg.MaxResults))
		params.Add("expand[]", "downloads")
		params.Add("expand[]", "tags")
		params.Add("expand[]", "lastModified")
		params.Add("expand[]", "cardData")
		params.Add("expand[]", "description")

		var datasets []hfDataset
		if err := getJSON(ctx, client, h.cfg.APIURL+"?"+params.Encode(), h.headers(), 3, &datasets); err != nil {
			lgr.Printf("[WARN] huggingface search %q failed: %v", keyword, err)
			failed++
			continue
		}

		for _, ds := range datasets {
			if ds.ID == "" || seen[ds.ID] {
				continue
			}
			seen[ds.ID] = true

			if ds.Downloads < h.cfg.MinDownloads {
				continue
			}
			modified := parseISOTime(ds.LastModified)
			if !modified.IsZero() && modified.Before(cutoff) {
				continue
			}
			candidates = append(candidates, h.toCandidate(ds, modified))
		}
	}

	if failed == len(h.cfg.Keywords) && len(h.cfg.Keywords) > 0 {
		return nil, fmt.Errorf("huggingface search failed for all %d keywords", failed)
	}

	lgr.Printf("[DEBUG] huggingface collected %d candidates (%d keywords failed)", len(candidates), failed)
	return candidates, nil
}

func (h *HuggingFace) toCandidate(ds hfDataset, modified time.Time) domain.RawCandidate {
	title := ds.CardData.PrettyName
	if title == "" {
		title = ds.ID
	}

	taskType := ""
	for _, tag := range ds.Tags {
		if strings.HasPrefix(tag, "task_categories:") {
			taskType = strings.TrimPrefix(tag, "task_categories:")
			break
		}
	}

	dsURL := "https://huggingface.co/datasets/" + ds.ID
	cand := domain.RawCandidate{
		Title:       title,
		URL:         dsURL,
		Source:      domain.SourceHuggingFace,
		Abstract:    ds.Description,
		PublishDate: modified,
		DatasetURL:  dsURL,
		TaskType:    taskType,
	}
	cand.SetMeta("downloads", fmt.Sprintf("%d", ds.Downloads))
	cand.SetMeta("tags", strings.Join(ds.Tags, ","))
	return cand
}

func (h *HuggingFace) headers() map[string]string {
	hdr := map[string]string{"Accept": "application/json"}
	if h.cfg.Token != "" {
		hdr["Authorization"] = "Bearer " + h.cfg.Token
	}
	return hdr
}
