package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
)

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v2</id>
    <title>AgentArena: A Multi-Agent   Coding Benchmark</title>
    <summary>We present a benchmark with 500 tasks.
Dataset at https://huggingface.co/datasets/acme/agentarena for download.</summary>
    <published>%s</published>
    <arxiv:comment>Accepted at ICSE</arxiv:comment>
    <author><name>Alice Zhang</name><affiliation>Acme University</affiliation></author>
    <author><name>Bob Lee</name></author>
    <link href="http://arxiv.org/abs/2401.00001v2" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2401.00001v2" rel="related" type="application/pdf" title="pdf"/>
    <category term="cs.SE"/>
    <category term="cs.AI"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2001.00002v1</id>
    <title>Old Paper Outside The Lookback Window Entirely</title>
    <summary>Too old to matter for a daily pipeline.</summary>
    <published>2020-01-01T00:00:00Z</published>
    <link href="http://arxiv.org/pdf/2001.00002v1" rel="related" type="application/pdf" title="pdf"/>
  </entry>
</feed>`

func TestArxivCollect(t *testing.T) {
	recent := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("search_query")
		assert.Contains(t, q, `all:"code generation benchmark"`)
		assert.Contains(t, q, "cat:cs.SE")
		fmt.Fprintf(w, atomFixture, recent)
	}))
	defer srv.Close()

	c := NewArxiv(config.ArxivConfig{
		Enabled:       true,
		BaseURL:       srv.URL,
		MaxResults:    50,
		LookbackHours: 168,
		Timeout:       5 * time.Second,
		MaxRetries:    2,
		Keywords:      []string{"code generation benchmark"},
		Categories:    []string{"cs.SE"},
	})

	candidates, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1, "old entry dropped by lookback window")

	cand := candidates[0]
	assert.Equal(t, domain.SourceArxiv, cand.Source)
	assert.Equal(t, "AgentArena: A Multi-Agent Coding Benchmark", cand.Title, "whitespace collapsed")
	assert.Equal(t, "http://arxiv.org/pdf/2401.00001v2", cand.URL, "pdf link preferred")
	assert.Equal(t, "http://arxiv.org/abs/2401.00001v2", cand.PaperURL)
	assert.Equal(t, []string{"Alice Zhang", "Bob Lee"}, cand.Authors)
	assert.Equal(t, "Acme University", cand.RawInstitutions)
	assert.Equal(t, "https://huggingface.co/datasets/acme/agentarena", cand.DatasetURL)
	assert.Equal(t, "2401.00001", cand.Meta("arxiv_id"), "version suffix stripped")
	assert.Equal(t, "cs.SE,cs.AI", cand.Meta("categories"))
	assert.Equal(t, "Accepted at ICSE", cand.Meta("comment"))
}

func TestArxivCollectUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewArxiv(config.ArxivConfig{
		BaseURL:    srv.URL,
		MaxResults: 10,
		Timeout:    time.Second,
		MaxRetries: 2,
		Keywords:   []string{"benchmark"},
		Categories: []string{"cs.SE"},
	})

	_, err := c.Collect(context.Background())
	require.Error(t, err, "non-2xx after retries surfaces as an error")
}

func TestArxivIDFromEntry(t *testing.T) {
	assert.Equal(t, "2401.00001", arxivIDFromEntry("http://arxiv.org/abs/2401.00001v2"))
	assert.Equal(t, "2401.00001", arxivIDFromEntry("http://arxiv.org/abs/2401.00001"))
	assert.Empty(t, arxivIDFromEntry("http://example.com/nothing"))
}

func TestExtractDatasetURL(t *testing.T) {
	assert.Equal(t, "https://github.com/acme/data",
		extractDatasetURL("dataset available at https://github.com/acme/data, see paper"))
	assert.Empty(t, extractDatasetURL("no links here"))
}
