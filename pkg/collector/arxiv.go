package collector

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
)

// Arxiv pulls recent benchmark papers from the arXiv search API
type Arxiv struct {
	cfg config.ArxivConfig
}

// NewArxiv creates the arXiv collector
func NewArxiv(cfg config.ArxivConfig) *Arxiv {
	return &Arxiv{cfg: cfg}
}

// Name implements Collector
func (a *Arxiv) Name() string { return string(domain.SourceArxiv) }

// atom feed structures, the API speaks Atom with arXiv extensions
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Comment   string       `xml:"comment"` // arxiv:comment
	Authors   []atomAuthor `xml:"author"`
	Links     []atomLink   `xml:"link"`
	Category  []atomCat    `xml:"category"`
}

type atomAuthor struct {
	Name        string `xml:"name"`
	Affiliation string `xml:"affiliation"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

type atomCat struct {
	Term string `xml:"term,attr"`
}

// Collect queries the search API with OR-joined keyword and category filters
// and keeps entries inside the lookback window
func (a *Arxiv) Collect(ctx context.Context) ([]domain.RawCandidate, error) {
	client := newHTTPClient(a.cfg.Timeout)

	kwParts := make([]string, 0, len(a.cfg.Keywords))
	for _, kw := range a.cfg.Keywords {
		kwParts = append(kwParts, fmt.Sprintf("all:%q", kw))
	}
	catParts := make([]string, 0, len(a.cfg.Categories))
	for _, cat := range a.cfg.Categories {
		catParts = append(catParts, "cat:"+cat)
	}
	query := fmt.Sprintf("(%s) AND (%s)", strings.Join(kwParts, " OR "), strings.Join(catParts, " OR "))

	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", a.cfg.MaxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	body, err := getBody(ctx, client, a.cfg.BaseURL+"?"+params.Encode(), nil, a.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("arxiv query: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse arxiv feed: %w", err)
	}

	cutoff := time.Now().UTC().Add(-time.Duration(a.cfg.LookbackHours) * time.Hour)
	candidates := make([]domain.RawCandidate, 0, len(feed.Entries))

	for _, entry := range feed.Entries {
		published, perr := time.Parse(time.RFC3339, entry.Published)
		if perr == nil && published.Before(cutoff) {
			continue
		}

		cand := a.toCandidate(entry, published)
		if cand.Title == "" || cand.URL == "" {
			continue
		}
		candidates = append(candidates, cand)
	}

	lgr.Printf("[DEBUG] arxiv collected %d candidates from %d entries", len(candidates), len(feed.Entries))
	return candidates, nil
}

func (a *Arxiv) toCandidate(entry atomEntry, published time.Time) domain.RawCandidate {
	authors := make([]string, 0, len(entry.Authors))
	var institutions []string
	for _, au := range entry.Authors {
		if name := strings.TrimSpace(au.Name); name != "" {
			authors = append(authors, name)
		}
		if aff := strings.TrimSpace(au.Affiliation); aff != "" {
			institutions = append(institutions, aff)
		}
	}

	pdfURL := ""
	for _, link := range entry.Links {
		if link.Type == "application/pdf" || link.Title == "pdf" {
			pdfURL = link.Href
			break
		}
	}

	cats := make([]string, 0, len(entry.Category))
	for _, c := range entry.Category {
		cats = append(cats, c.Term)
	}

	abstract := cleanSpace(entry.Summary)
	candURL := pdfURL
	if candURL == "" {
		candURL = entry.ID
	}

	cand := domain.RawCandidate{
		Title:           cleanSpace(entry.Title),
		URL:             candURL,
		Source:          domain.SourceArxiv,
		Abstract:        abstract,
		Authors:         authors,
		PublishDate:     published.UTC(),
		PaperURL:        entry.ID,
		DatasetURL:      extractDatasetURL(abstract + "\n" + entry.Comment),
		RawInstitutions: strings.Join(dedupStrings(institutions), ", "),
	}
	cand.SetMeta("arxiv_id", arxivIDFromEntry(entry.ID))
	cand.SetMeta("categories", strings.Join(cats, ","))
	if entry.Comment != "" {
		cand.SetMeta("comment", entry.Comment)
	}
	return cand
}

var arxivEntryIDRe = regexp.MustCompile(`(\d{4}\.\d{4,5})(?:v\d+)?$`)

// arxivIDFromEntry extracts the bare id, version suffix removed
func arxivIDFromEntry(entryID string) string {
	if m := arxivEntryIDRe.FindStringSubmatch(entryID); m != nil {
		return m[1]
	}
	return ""
}

var wsRe = regexp.MustCompile(`\s+`)

func cleanSpace(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// datasetURLRe finds the first link pointing at a known dataset host
var datasetURLRe = regexp.MustCompile(`https?://(?:huggingface\.co/datasets|github\.com|zenodo\.org|figshare\.com)/[^\s)\]>,"']+`)

// extractDatasetURL pulls a dataset link out of free text when present
func extractDatasetURL(text string) string {
	return datasetURLRe.FindString(text)
}

func dedupStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
