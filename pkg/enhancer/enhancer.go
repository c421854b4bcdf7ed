// Package enhancer deep-parses arXiv PDFs: cached download, structured
// section extraction through an external parsing service, summary
// distillation and cover-page image generation. Every step is best-effort
// per candidate, a failure leaves the candidate unchanged.
package enhancer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/benchscope/pkg/cache"
	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
)

// SectionParser is the external structured-parsing service; the pipeline
// consumes only its JSON section blocks
type SectionParser interface {
	Parse(ctx context.Context, pdfPath string) (*ParsedDoc, error)
}

// PageRenderer renders one PDF page to PNG bytes; implementations are
// CPU-bound and run off the calling goroutine
type PageRenderer interface {
	RenderPage(ctx context.Context, pdfPath string, page, dpi int) ([]byte, error)
}

// ImageUploader pushes PNG bytes to the chat platform and returns its image key
type ImageUploader interface {
	UploadImage(ctx context.Context, name string, data []byte) (string, error)
}

// ParsedDoc is the JSON shape returned by the parsing service
type ParsedDoc struct {
	Title    string         `json:"title"`
	Abstract string         `json:"abstract"`
	Sections []Section      `json:"sections"`
	Authors  []ParsedAuthor `json:"authors"`
}

// Section is one heading+body block of the parsed document
type Section struct {
	Heading string `json:"heading"`
	Text    string `json:"text"`
}

// ParsedAuthor carries author name and affiliation from the parser
type ParsedAuthor struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation"`
}

// Enhancer coordinates download, parse, summarize and cover image steps
type Enhancer struct {
	cfg      config.EnhancerConfig
	parser   SectionParser
	renderer PageRenderer
	uploader ImageUploader
	cache    *cache.Cache
	client   *http.Client
}

// New creates the enhancer; renderer and uploader may be nil, disabling the
// cover-image step
func New(cfg config.EnhancerConfig, parser SectionParser, renderer PageRenderer, uploader ImageUploader, kv *cache.Cache) *Enhancer {
	return &Enhancer{
		cfg:      cfg,
		parser:   parser,
		renderer: renderer,
		uploader: uploader,
		cache:    kv,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// EnhanceBatch enhances the arXiv subset in place with bounded concurrency;
// non-arXiv candidates pass through untouched
func (e *Enhancer) EnhanceBatch(ctx context.Context, candidates []domain.RawCandidate) []domain.RawCandidate {
	if err := os.MkdirAll(e.cfg.CacheDir, 0o750); err != nil {
		lgr.Printf("[WARN] pdf cache dir unavailable, enhancement skipped: %v", err)
		return candidates
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency) // parser service is the bottleneck

	var enhanced atomic.Int32
	for i := range candidates {
		if candidates[i].Source != domain.SourceArxiv {
			continue
		}
		g.Go(func() error {
			if e.enhance(gctx, &candidates[i]) {
				enhanced.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	lgr.Printf("[INFO] pdf enhancement done, %d candidates enhanced", enhanced.Load())
	return candidates
}

// enhance runs the per-candidate steps, reporting whether anything was added
func (e *Enhancer) enhance(ctx context.Context, cand *domain.RawCandidate) bool {
	arxivID := extractArxivID(cand.URL)
	if arxivID == "" {
		arxivID = extractArxivID(cand.PaperURL)
	}
	if arxivID == "" {
		lgr.Printf("[WARN] no arxiv id in %q", cand.URL)
		return false
	}

	pdfPath, err := e.downloadPDF(ctx, arxivID)
	if err != nil {
		lgr.Printf("[WARN] pdf download failed for %s: %v", arxivID, err)
		return false
	}

	changed := false
	if doc, perr := e.parser.Parse(ctx, pdfPath); perr != nil {
		lgr.Printf("[WARN] pdf parse failed for %s: %v", arxivID, perr)
	} else {
		e.mergeParsed(cand, doc)
		changed = true
	}

	if key := e.coverImage(ctx, arxivID, pdfPath, cand.Title); key != "" {
		cand.HeroImageKey = key
		changed = true
	}

	return changed
}

// downloadPDF fetches the PDF unless already cached under {cache_dir}/{id}.pdf
func (e *Enhancer) downloadPDF(ctx context.Context, arxivID string) (string, error) {
	pdfPath := filepath.Join(e.cfg.CacheDir, arxivID+".pdf")
	if _, err := os.Stat(pdfPath); err == nil {
		lgr.Printf("[DEBUG] pdf cache hit for %s", arxivID)
		return pdfPath, nil
	}

	retrier := repeater.NewBackoff(2, 5*time.Second, repeater.WithMaxDelay(15*time.Second))
	err := retrier.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			"https://arxiv.org/pdf/"+arxivID, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("download: status %d", resp.StatusCode)
		}

		tmp, err := os.CreateTemp(e.cfg.CacheDir, arxivID+".*.tmp")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := io.Copy(tmp, resp.Body); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("write pdf: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("close pdf: %w", err)
		}
		return os.Rename(tmp.Name(), pdfPath)
	})
	if err != nil {
		return "", err
	}
	return pdfPath, nil
}

// section heading keyword groups for summary extraction
var (
	evaluationHeadings = []string{"evaluation", "experiments", "results", "performance"}
	datasetHeadings    = []string{"dataset", "data", "benchmark", "corpus"}
	baselineHeadings   = []string{"baselines", "comparison", "related work", "prior work"}
)

// mergeParsed folds parser output into the candidate's metadata
func (e *Enhancer) mergeParsed(cand *domain.RawCandidate, doc *ParsedDoc) {
	sections := make(map[string]string, len(doc.Sections))
	for _, s := range doc.Sections {
		heading := strings.TrimSpace(s.Heading)
		text := strings.TrimSpace(s.Text)
		if heading != "" && text != "" {
			sections[heading] = text
		}
	}

	cand.SetMeta("evaluation_summary", sectionSummary(sections, evaluationHeadings, e.cfg.MaxSummaryLen))
	cand.SetMeta("dataset_summary", sectionSummary(sections, datasetHeadings, e.cfg.MaxSummaryLen))
	cand.SetMeta("baselines_summary", sectionSummary(sections, baselineHeadings, e.cfg.MaxSummaryLen))

	// prefer the fuller abstract when the parser recovered more text
	if len(doc.Abstract) > len(cand.Abstract) {
		cand.Abstract = doc.Abstract
	}

	if cand.RawInstitutions == "" {
		var institutions []string
		seen := map[string]bool{}
		for _, author := range doc.Authors {
			aff := strings.TrimSpace(author.Affiliation)
			if aff != "" && !seen[aff] {
				seen[aff] = true
				institutions = append(institutions, aff)
			}
			if len(institutions) >= 3 {
				break
			}
		}
		cand.RawInstitutions = strings.Join(institutions, ", ")
	}
}

// sectionSummary returns a section whose heading matches a keyword, capped
// at maxLen. Sections are kept in a map, so when several headings match,
// which one is returned is not defined.
func sectionSummary(sections map[string]string, keywords []string, maxLen int) string {
	for heading, text := range sections {
		lowered := strings.ToLower(heading)
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				if len(text) > maxLen {
					return text[:maxLen]
				}
				return text
			}
		}
	}
	return ""
}

// coverImage renders page 1 and uploads it, caching the platform image key
// for 30 days; an unavailable render toolchain only logs a warning
func (e *Enhancer) coverImage(ctx context.Context, arxivID, pdfPath, title string) string {
	if e.renderer == nil || e.uploader == nil {
		return ""
	}

	cacheKey := "imgkey:" + arxivID
	if key, ok := e.cache.Get(ctx, cacheKey); ok {
		lgr.Printf("[DEBUG] image key cache hit for %s", arxivID)
		return key
	}

	// rendering is CPU-bound, run it off the event goroutine
	type renderResult struct {
		png []byte
		err error
	}
	resultCh := make(chan renderResult, 1)
	go func() {
		png, err := e.renderer.RenderPage(ctx, pdfPath, 1, e.cfg.RenderDPI)
		resultCh <- renderResult{png: png, err: err}
	}()

	var png []byte
	select {
	case <-ctx.Done():
		return ""
	case res := <-resultCh:
		if res.err != nil {
			lgr.Printf("[WARN] cover render failed for %s: %v", arxivID, res.err)
			return ""
		}
		png = res.png
	}

	key, err := e.uploader.UploadImage(ctx, arxivID+".png", png)
	if err != nil {
		lgr.Printf("[WARN] cover upload failed for %s (%s): %v", arxivID, truncate(title, 50), err)
		return ""
	}

	e.cache.Set(ctx, cacheKey, key, e.cfg.ImageKeyTTL)
	return key
}

var arxivIDRe = regexp.MustCompile(`(\d{4}\.\d{4,5})(?:v\d+)?`)

// extractArxivID pulls the bare id out of an abs/pdf URL, version stripped
func extractArxivID(rawURL string) string {
	if rawURL == "" || !strings.Contains(rawURL, "arxiv.org") {
		return ""
	}
	if m := arxivIDRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
