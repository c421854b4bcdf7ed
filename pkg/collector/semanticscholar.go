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

// SemanticScholar queries the paper search API. Disabled by default, the
// public tier is heavily rate limited.
type SemanticScholar struct {
	cfg config.SemanticScholarConfig
	now func() time.Time
}

// NewSemanticScholar creates the optional paper search collector
func NewSemanticScholar(cfg config.SemanticScholarConfig) *SemanticScholar {
	return &SemanticScholar{cfg: cfg, now: time.Now}
}

// Name implements Collector
func (s *SemanticScholar) Name() string { return string(domain.SourceSemanticScholar) }

type s2Response struct {
	Data []s2Paper `json:"data"`
}

type s2Paper struct {
	PaperID  string `json:"paperId"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	URL      string `json:"url"`
	Year     int    `json:"year"`
	Venue    string `json:"venue"`
	Authors  []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ExternalIDs struct {
		ArXiv string `json:"ArXiv"`
	} `json:"externalIds"`
	PublicationDate string `json:"publicationDate"`
}

// Collect searches per keyword for papers published from two years before
// the current year onward
func (s *SemanticScholar) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	client := newHTTPClient(s.cfg.Timeout)
	yearFrom := s.now().UTC().Year() - 2

	seen := map[string]bool{}
	var candidates []domain.RawCandidate
	failed := 0

	for _, keyword := range s.cfg.Keywords {
		params := url.Values{}
		params.Set("query", keyword)
		params.Set("year", fmt.Sprintf("%d-", yearFrom))
		params.Set("limit", fmt.Sprintf("%d", s.cfg.MaxResults))
		params.Set("fields", "title,abstract,url,year,venue,authors,externalIds,publicationDate")

		var resp s2Response
		if err := getJSON(ctx, client, s.cfg.APIURL+"?"+params.Encode(), nil, 2, &resp); err != nil {
			lgr.Printf("[WARN] semantic scholar search %q failed: %v", keyword, err)
			failed++
			continue
		}

		for _, paper := range resp.Data {
			if paper.PaperID == "" || seen[paper.PaperID] || paper.Title == "" || paper.URL == "" {
				continue
			}
			seen[paper.PaperID] = true

			authors := make([]string, 0, len(paper.Authors))
			for _, a := range paper.Authors {
				authors = append(authors, a.Name)
			}

			cand := domain.RawCandidate{
				Title:       paper.Title,
				URL:         paper.URL,
				Source:      domain.SourceSemanticScholar,
				Abstract:    paper.Abstract,
				Authors:     authors,
				PublishDate: parsePublicationDate(paper.PublicationDate, paper.Year),
			}
			if paper.ExternalIDs.ArXiv != "" {
				cand.PaperURL = "https://arxiv.org/abs/" + paper.ExternalIDs.ArXiv
			}
			if paper.Venue != "" {
				cand.SetMeta("venue", paper.Venue)
			}
			candidates = append(candidates, cand)
		}
	}

	if failed == len(s.cfg.Keywords) && len(s.cfg.Keywords) > 0 {
		return nil, fmt.Errorf("semantic scholar search failed for all %d keywords", failed)
	}

	lgr.Printf("[DEBUG] semantic scholar collected %d candidates", len(candidates))
	return candidates, nil
}

func parsePublicationDate(date string, year int) time.Time {
	if t, err := time.Parse("2006-01-02", strings.TrimSpace(date)); err == nil {
		return t.UTC()
	}
	if year > 0 {
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}
