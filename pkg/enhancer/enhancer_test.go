package enhancer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
)

type fakeParser struct {
	doc  *ParsedDoc
	err  error
	seen []string
}

func (f *fakeParser) Parse(_ context.Context, pdfPath string) (*ParsedDoc, error) {
	f.seen = append(f.seen, pdfPath)
	return f.doc, f.err
}

type fakeRenderer struct{ err error }

func (f *fakeRenderer) RenderPage(_ context.Context, _ string, page, dpi int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(fmt.Sprintf("png-page%d-dpi%d", page, dpi)), nil
}

type fakeUploader struct {
	uploads map[string][]byte
	err     error
}

func (f *fakeUploader) UploadImage(_ context.Context, name string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[name] = data
	return "img_key_" + name, nil
}

func enhancerConfig(t *testing.T) config.EnhancerConfig {
	t.Helper()
	return config.EnhancerConfig{
		Enabled:       true,
		CacheDir:      t.TempDir(),
		Concurrency:   3,
		Timeout:       5 * time.Second,
		RenderDPI:     150,
		ImageKeyTTL:   30 * 24 * time.Hour,
		MaxSummaryLen: 1000,
	}
}

func parsedDoc() *ParsedDoc {
	doc := &ParsedDoc{
		Title:    "AgentArena",
		Abstract: strings.Repeat("Full abstract recovered from the PDF body. ", 5),
	}
	doc.Sections = []Section{
		{Heading: "Introduction", Text: "intro text"},
		{Heading: "Evaluation Setup", Text: "we evaluate 30 models on 500 tasks"},
		{Heading: "Dataset Construction", Text: "tasks mined from public repositories"},
		{Heading: "Baselines and Comparison", Text: "GPT-4 reaches 61% success"},
	}
	doc.Authors = []ParsedAuthor{
		{Name: "Alice", Affiliation: "Acme University"},
		{Name: "Bob", Affiliation: "Initech"},
	}
	return doc
}

func arxivCand() domain.RawCandidate {
	return domain.RawCandidate{
		Title:    "AgentArena",
		URL:      "https://arxiv.org/abs/2401.00001v2",
		Source:   domain.SourceArxiv,
		Abstract: "short abstract",
	}
}

// seedPDF places a fake cached PDF so no download happens
func seedPDF(t *testing.T, cacheDir, arxivID string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, arxivID+".pdf"), []byte("%PDF-1.4 fake"), 0o600))
}

func TestEnhanceBatch(t *testing.T) {
	cfg := enhancerConfig(t)
	seedPDF(t, cfg.CacheDir, "2401.00001")

	parser := &fakeParser{doc: parsedDoc()}
	uploader := &fakeUploader{}
	e := New(cfg, parser, &fakeRenderer{}, uploader, nil)

	out := e.EnhanceBatch(context.Background(), []domain.RawCandidate{arxivCand()})
	require.Len(t, out, 1)
	cand := out[0]

	assert.Equal(t, "we evaluate 30 models on 500 tasks", cand.Meta("evaluation_summary"))
	assert.Equal(t, "tasks mined from public repositories", cand.Meta("dataset_summary"))
	assert.Equal(t, "GPT-4 reaches 61% success", cand.Meta("baselines_summary"))
	assert.Equal(t, "Acme University, Initech", cand.RawInstitutions)
	assert.Greater(t, len(cand.Abstract), len("short abstract"), "fuller abstract adopted")
	assert.Equal(t, "img_key_2401.00001.png", cand.HeroImageKey)
	require.Len(t, parser.seen, 1)
	assert.True(t, strings.HasSuffix(parser.seen[0], "2401.00001.pdf"))
}

func TestEnhanceBatchSkipsNonArxiv(t *testing.T) {
	cfg := enhancerConfig(t)
	parser := &fakeParser{doc: parsedDoc()}
	e := New(cfg, parser, nil, nil, nil)

	cand := domain.RawCandidate{Title: "repo", URL: "https://github.com/a/b", Source: domain.SourceGitHub}
	out := e.EnhanceBatch(context.Background(), []domain.RawCandidate{cand})
	require.Len(t, out, 1)
	assert.Empty(t, parser.seen)
	assert.Empty(t, out[0].Meta("evaluation_summary"))
}

func TestEnhanceParserFailureKeepsCandidate(t *testing.T) {
	cfg := enhancerConfig(t)
	seedPDF(t, cfg.CacheDir, "2401.00001")
	e := New(cfg, &fakeParser{err: fmt.Errorf("service down")}, nil, nil, nil)

	out := e.EnhanceBatch(context.Background(), []domain.RawCandidate{arxivCand()})
	require.Len(t, out, 1)
	assert.Equal(t, "short abstract", out[0].Abstract, "candidate unchanged on parse failure")
}

func TestEnhanceRenderFailureLeavesImageEmpty(t *testing.T) {
	cfg := enhancerConfig(t)
	seedPDF(t, cfg.CacheDir, "2401.00001")
	e := New(cfg, &fakeParser{doc: parsedDoc()}, &fakeRenderer{err: fmt.Errorf("no toolchain")}, &fakeUploader{}, nil)

	out := e.EnhanceBatch(context.Background(), []domain.RawCandidate{arxivCand()})
	require.Len(t, out, 1)
	assert.Empty(t, out[0].HeroImageKey)
	assert.NotEmpty(t, out[0].Meta("evaluation_summary"), "parse results kept despite render failure")
}

func TestDownloadPDFCachedAndFetched(t *testing.T) {
	cfg := enhancerConfig(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("%PDF-1.4 downloaded"))
	}))
	defer srv.Close()

	e := New(cfg, nil, nil, nil, nil)
	// point the client at the fake arXiv by rewriting the request host
	e.client = srv.Client()
	e.client.Transport = rewriteHost(srv.URL)

	path, err := e.downloadPDF(context.Background(), "2401.00042")
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.EqualValues(t, 1, hits.Load())

	// second call is served from the cache
	_, err = e.downloadPDF(context.Background(), "2401.00042")
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

// rewriteHost redirects any outgoing request to the test server
func rewriteHost(base string) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		target := strings.TrimPrefix(base, "http://")
		req.URL.Scheme = "http"
		req.URL.Host = target
		return http.DefaultTransport.RoundTrip(req)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestExtractArxivID(t *testing.T) {
	assert.Equal(t, "2401.00001", extractArxivID("https://arxiv.org/abs/2401.00001v2"))
	assert.Equal(t, "2401.00001", extractArxivID("https://arxiv.org/pdf/2401.00001"))
	assert.Empty(t, extractArxivID("https://github.com/a/b"))
	assert.Empty(t, extractArxivID(""))
}

func TestSectionSummaryCap(t *testing.T) {
	sections := map[string]string{"Evaluation": strings.Repeat("x", 2000)}
	out := sectionSummary(sections, evaluationHeadings, 1000)
	assert.Len(t, out, 1000)
}
