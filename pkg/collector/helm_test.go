package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/benchscope/pkg/config"
	"github.com/umputun/benchscope/pkg/domain"
)

const helmGroupsFixture = `[
  {
    "title": "All scenarios",
    "header": [{"value": "Group"}, {"value": "Description"}],
    "rows": [[{"value": "everything", "href": "?group=everything"}, {"value": "all"}]]
  },
  {
    "title": "Scenarios",
    "header": [{"value": "Group"}, {"value": "Description"}, {"value": "Adaptation method"}, {"value": "# models"}],
    "rows": [
      [{"value": "HumanEval", "href": "?group=humaneval"}, {"value": "Code generation from docstrings"}, {"value": "generation"}, {"value": 30}],
      [{"value": "NarrativeQA", "href": "?group=narrative_qa"}, {"value": "Reading comprehension question answering"}, {"value": "generation"}, {"value": 25}],
      [{"value": "HumanEval", "href": "?group=humaneval"}, {"value": "duplicate row"}, {"value": ""}, {"value": 1}]
    ]
  }
]`

func helmTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`window.RELEASE = "v1.2.0";`))
	})
	mux.HandleFunc("/releases/v1.2.0/summary.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"date": "2026-07-15"}`))
	})
	mux.HandleFunc("/releases/v1.2.0/groups.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(helmGroupsFixture))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHELMCollect(t *testing.T) {
	srv := helmTestServer(t)

	c := NewHELM(config.HELMConfig{
		Enabled:           true,
		BaseURL:           srv.URL + "/",
		StorageBase:       srv.URL,
		DefaultRelease:    "v0.4.0",
		Timeout:           5 * time.Second,
		AllowedScenarios:  []string{"code", "coding", "program"},
		ExcludedScenarios: []string{"qa", "question", "reading"},
	})

	candidates, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1, "QA scenario excluded, duplicate and all-scenarios rows dropped")

	cand := candidates[0]
	assert.Equal(t, domain.SourceHELM, cand.Source)
	assert.Equal(t, "HELM - HumanEval", cand.Title)
	assert.Contains(t, cand.URL, "group=humaneval")
	assert.Contains(t, cand.Abstract, "Code generation from docstrings")
	assert.Contains(t, cand.Abstract, "models covered: 30")
	assert.Equal(t, "v1.2.0", cand.Meta("release"))
	assert.Equal(t, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC), cand.PublishDate)
}

func TestHELMCollectReleaseFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/releases/v0.4.0/summary.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/releases/v0.4.0/groups.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHELM(config.HELMConfig{
		BaseURL:          srv.URL + "/",
		StorageBase:      srv.URL,
		DefaultRelease:   "v0.4.0",
		Timeout:          2 * time.Second,
		AllowedScenarios: []string{"code"},
	})

	candidates, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "human_eval_v2", slugify("Human Eval (v2)"))
	assert.Equal(t, "code", slugify("Code"))
}
