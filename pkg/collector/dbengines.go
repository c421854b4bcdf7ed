package collector

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-pkgz/lgr"

	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
)

// DBEngines scrapes the database popularity ranking page. Trusted source.
type DBEngines struct {
	cfg config.DBEnginesConfig
	now func() time.Time
}

// NewDBEngines creates the database ranking collector
func NewDBEngines(cfg config.DBEnginesConfig) *DBEngines {
	return &DBEngines{cfg: cfg, now: time.Now}
}

// Name implements Collector
func (d *DBEngines) Name() string { return string(domain.SourceDBEngines) }

// Collect fetches the ranking table and maps its top rows into candidates
func (d *DBEngines) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	client := newHTTPClient(d.cfg.Timeout)

	body, err := getBody(ctx, client, strings.TrimRight(d.cfg.BaseURL, "/")+"/ranking", nil, 2)
	if err != nil {
		return nil, fmt.Errorf("dbengines ranking: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse dbengines page: %w", err)
	}

	table := doc.Find("table.dbi").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("dbengines page structure changed, ranking table not found")
	}

	// ranking updates monthly, date the candidates to the 1st of the month
	now := d.now().UTC()
	publishDate := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var candidates []domain.RawCandidate
	table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		nameCell := row.Find("th.pad-l a").First()
		if nameCell.Length() == 0 || row.Find("td").Length() == 0 {
			return true
		}

		name := strings.TrimSpace(nameCell.Text())
		if name == "" {
			return true
		}
		rank := strings.TrimSpace(row.Find("td").First().Text())
		dbType := strings.TrimSpace(row.Find("th.pad-r").First().Text())
		score := strings.TrimSpace(row.Find("td.pad-l").First().Text())

		href, _ := nameCell.Attr("href")
		detailURL := d.absoluteURL(href)

		cand := domain.RawCandidate{
			Title:  "DB-Engines - " + name + " Benchmark",
			URL:    detailURL,
			Source: domain.SourceDBEngines,
			Abstract: fmt.Sprintf("%s database %s ranked #%s in the DB-Engines popularity ranking "+
				"with score %s. Detail page covers performance characteristics and adoption data.",
				dbType, name, rank, score),
			PublishDate: publishDate,
		}
		cand.SetMeta("database", name)
		cand.SetMeta("type", dbType)
		cand.SetMeta("rank", rank)
		cand.SetMeta("ranking_score", score)
		candidates = append(candidates, cand)

		return len(candidates) < d.cfg.MaxResults
	})

	if len(candidates) == 0 {
		return nil, fmt.Errorf("dbengines page structure changed, no ranking rows matched")
	}

	lgr.Printf("[DEBUG] dbengines collected %d candidates", len(candidates))
	return candidates, nil
}

func (d *DBEngines) absoluteURL(href string) string {
	base := strings.TrimRight(d.cfg.BaseURL, "/")
	switch {
	case href == "":
		return base + "/ranking"
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "/"):
		return base + href
	default:
		return base + "/" + href
	}
}
