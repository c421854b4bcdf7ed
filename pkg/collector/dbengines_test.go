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

const dbenginesFixture = `<html><body>
<table class="dbi">
<tr><th>Rank</th><th>DBMS</th><th>Model</th><th>Score</th></tr>
<tr><td>1.</td><th class="pad-l"><a href="/system/Oracle">Oracle</a></th><th class="pad-r">Relational</th><td class="pad-l">1247.50</td></tr>
<tr><td>2.</td><th class="pad-l"><a href="https://db-engines.com/en/system/MySQL">MySQL</a></th><th class="pad-r">Relational</th><td class="pad-l">1103.14</td></tr>
<tr><td>3.</td><th class="pad-l"><a href="/system/PostgreSQL">PostgreSQL</a></th><th class="pad-r">Relational</th><td class="pad-l">658.22</td></tr>
</table>
</body></html>`

func TestDBEnginesCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ranking", r.URL.Path)
		_, _ = w.Write([]byte(dbenginesFixture))
	}))
	defer srv.Close()

	c := NewDBEngines(config.DBEnginesConfig{
		Enabled:    true,
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		MaxResults: 2,
	})
	c.now = func() time.Time { return time.Date(2026, 8, 6, 10, 0, 0, 0, time.UTC) }

	candidates, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 2, "capped at max_results")

	first := candidates[0]
	assert.Equal(t, domain.SourceDBEngines, first.Source)
	assert.Equal(t, "DB-Engines - Oracle Benchmark", first.Title)
	assert.Equal(t, srv.URL+"/system/Oracle", first.URL, "relative href resolved")
	assert.Contains(t, first.Abstract, "ranked #1.")
	assert.Equal(t, "1247.50", first.Meta("ranking_score"))
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), first.PublishDate, "dated to the 1st of the month")

	second := candidates[1]
	assert.Equal(t, "https://db-engines.com/en/system/MySQL", second.URL, "absolute href kept")
}

func TestDBEnginesCollectStructureChanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>redesigned page</p></body></html>"))
	}))
	defer srv.Close()

	c := NewDBEngines(config.DBEnginesConfig{BaseURL: srv.URL, Timeout: time.Second, MaxResults: 10})
	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "structure changed")
}
