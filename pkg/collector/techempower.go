package collector

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-pkgz/lgr"

	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
)

// TechEmpower fetches the latest framework benchmark round and emits one
// candidate per framework above the composite-score threshold. Trusted source.
type TechEmpower struct {
	cfg config.TechEmpowerConfig
}

// NewTechEmpower creates the framework benchmark collector
func NewTechEmpower(cfg config.TechEmpowerConfig) *TechEmpower {
	return &TechEmpower{cfg: cfg}
}

// Name implements Collector
func (t *TechEmpower) Name() string { return string(domain.SourceTechEmpower) }

// scoreScale is the requests/sec that maps to a composite score of 100;
// faster frameworks score above 100, the composite is not capped
const scoreScale = 100000.0

type teRunMeta struct {
	Result struct {
		UUID string `json:"uuid"`
		JSON struct {
			FileName string `json:"fileName"`
		} `json:"json"`
	} `json:"result"`
}

type teRawPayload struct {
	Frameworks []string                        `json:"frameworks"`
	Duration   float64                         `json:"duration"`
	RawData    map[string]map[string][]teStats `json:"rawData"`
	StartTime  string                          `json:"startTime"`
}

type teStats struct {
	TotalRequests float64 `json:"totalRequests"`
}

// Collect parses the status index for the latest completed run, downloads
// its raw results and converts qualifying frameworks into candidates
func (t *TechEmpower) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	client := newHTTPClient(t.cfg.Timeout)

	indexBody, err := getBody(ctx, client, t.cfg.BaseURL, nil, 2)
	if err != nil {
		return nil, fmt.Errorf("techempower index: %w", err)
	}

	uuids := parseRunUUIDs(indexBody)
	if len(uuids) == 0 {
		return nil, fmt.Errorf("techempower index: no runs found")
	}

	for _, uuid := range uuids {
		var meta teRunMeta
		if err := getJSON(ctx, client, fmt.Sprintf("%s/results/%s.json", t.cfg.BaseURL, uuid), nil, 2, &meta); err != nil {
			lgr.Printf("[WARN] techempower run metadata failed for %s: %v", uuid, err)
			continue
		}
		if meta.Result.JSON.FileName == "" {
			continue
		}

		var payload teRawPayload
		if err := getJSON(ctx, client, fmt.Sprintf("%s/raw/%s", t.cfg.BaseURL, meta.Result.JSON.FileName), nil, 2, &payload); err != nil {
			lgr.Printf("[WARN] techempower raw payload failed for %s: %v", uuid, err)
			continue
		}

		candidates := t.buildCandidates(payload, uuid)
		if len(candidates) > 0 {
			lgr.Printf("[DEBUG] techempower collected %d candidates from run %s", len(candidates), uuid)
			return candidates, nil
		}
	}

	return nil, fmt.Errorf("techempower: no usable run in last %d", len(uuids))
}

// parseRunUUIDs extracts recent run ids from the status page table
func parseRunUUIDs(html []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}

	var uuids []string
	doc.Find("table.resultsTable tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if uuid, ok := row.Attr("data-uuid"); ok && uuid != "" {
			uuids = append(uuids, uuid)
		}
		return len(uuids) < 3
	})
	return uuids
}

func (t *TechEmpower) buildCandidates(payload teRawPayload, runUUID string) []domain.RawCandidate {
	publishDate := parseISOTime(payload.StartTime)
	duration := payload.Duration
	if duration <= 0 {
		duration = 1
	}

	var candidates []domain.RawCandidate
	for _, framework := range payload.Frameworks {
		tests := payload.RawData
		best := 0.0
		var covered []string
		for testType, frameworks := range tests {
			stats, ok := frameworks[framework]
			if !ok || len(stats) == 0 {
				continue
			}
			covered = append(covered, testType)
			for _, s := range stats {
				if rps := s.TotalRequests / duration; rps > best {
					best = rps
				}
			}
		}
		if len(covered) == 0 {
			continue
		}

		composite := best / scoreScale * 100
		if composite < t.cfg.MinCompositeScore {
			continue
		}
		sort.Strings(covered)

		cand := domain.RawCandidate{
			Title:  "TechEmpower - " + framework,
			URL:    fmt.Sprintf("https://www.techempower.com/benchmarks/#hw=ph&test=composite&f=%s", framework),
			Source: domain.SourceTechEmpower,
			Abstract: fmt.Sprintf("Web framework %s in the TechEmpower Framework Benchmarks. "+
				"Peak throughput %.0f req/s, composite score %.1f. Test types covered: %s.",
				framework, best, composite, strings.Join(covered, ", ")),
			PublishDate: publishDate,
		}
		cand.SetMeta("run_uuid", runUUID)
		cand.SetMeta("composite_score", fmt.Sprintf("%.1f", composite))
		cand.SetMeta("peak_rps", fmt.Sprintf("%.0f", best))
		candidates = append(candidates, cand)
	}

	return candidates
}
