package pipeline

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/no0bitah/covid-etl/config"
	"github.com/no0bitah/covid-etl/extract"
	"github.com/no0bitah/covid-etl/load"
	"github.com/no0bitah/covid-etl/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedTimeProvider struct {
	now time.Time
}

func (p fixedTimeProvider) Now() time.Time {
	return p.now
}

func testConfig(url string, countries []string) *config.Config {
	return &config.Config{
		Source: config.SourceConfig{
			URL:       url,
			Countries: countries,
		},
		Extract: config.ExtractConfig{
			Backoff: config.BackoffConfig{
				RetryWaitMin: 10 * time.Millisecond,
				RetryWaitMax: 20 * time.Millisecond,
				RetryMax:     1,
			},
		},
		DuckDB: config.DuckDBConfig{
			Path: ":memory:",
		},
	}
}

func newTestPipeline(t *testing.T, url string, countries []string) *Pipeline {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	clock := fixedTimeProvider{now: time.Date(2021, 3, 3, 6, 0, 0, 0, time.UTC)}

	p, err := NewPipeline(testConfig(url, countries), logger, clock)
	require.NoError(t, err)
	return p
}

func runStatuses(t *testing.T, db *load.DuckDB) map[string][]string {
	res, err := db.GetQueryResults("SELECT status, stage FROM etl_runs ORDER BY id;")
	require.NoError(t, err)
	return res
}

func TestRun_Succeeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("country,date,cases,deaths\n" +
			"Germany,2021-03-01,100,2\n" +
			"Germany,2021-03-02,150,3\n" +
			"Atlantis,2021-03-01,7,0\n"))
	}))
	defer server.Close()

	p := newTestPipeline(t, server.URL, nil)
	defer p.Close()

	report, err := p.Run(extract.Window{})
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, report.State)
	assert.Empty(t, report.FailedStage)
	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 2, report.Summary.Accepted)
	assert.Equal(t, 1, report.Summary.UnknownCountry)
	assert.Equal(t, load.LoadResult{Inserted: 2, Updated: 0}, report.Loaded)

	rows, err := p.DB.GetQueryResults(
		"SELECT country_code, cumulative_cases FROM covid_country_daily ORDER BY date;")
	require.NoError(t, err)
	assert.Equal(t, []string{"DE", "DE"}, rows["country_code"])
	assert.Equal(t, []string{"100", "250"}, rows["cumulative_cases"])

	runs := runStatuses(t, p.DB)
	assert.Equal(t, []string{"succeeded"}, runs["status"])
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("country,date,cases,deaths\n" +
			"Germany,2021-03-01,100,2\n"))
	}))
	defer server.Close()

	p := newTestPipeline(t, server.URL, nil)
	defer p.Close()

	_, err := p.Run(extract.Window{})
	require.NoError(t, err)
	report, err := p.Run(extract.Window{})
	require.NoError(t, err)

	assert.Equal(t, load.LoadResult{Inserted: 0, Updated: 1}, report.Loaded)

	counts, err := p.DB.GetQueryResults("SELECT count(*) AS n FROM covid_country_daily;")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, counts["n"])
}

func TestRun_TargetCountries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("country,date,cases,deaths\n" +
			"Germany,2021-03-01,100,2\n" +
			"Norway,2021-03-01,40,1\n"))
	}))
	defer server.Close()

	p := newTestPipeline(t, server.URL, []string{"NO"})
	defer p.Close()

	report, err := p.Run(extract.Window{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Accepted)
	assert.Equal(t, 1, report.Summary.FilteredOut)

	rows, err := p.DB.GetQueryResults("SELECT country_code FROM covid_country_daily;")
	require.NoError(t, err)
	assert.Equal(t, []string{"NO"}, rows["country_code"])
}

func TestRun_ExtractFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := newTestPipeline(t, server.URL, nil)
	defer p.Close()

	report, err := p.Run(extract.Window{})
	assert.ErrorIs(t, err, extract.ErrSourceUnavailable)
	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, "extract", report.FailedStage)

	runs := runStatuses(t, p.DB)
	assert.Equal(t, []string{"failed"}, runs["status"])
	assert.Equal(t, []string{"extract"}, runs["stage"])
}

func TestRun_MalformedPayloadFailsExtract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("foo,bar\n1,2\n"))
	}))
	defer server.Close()

	p := newTestPipeline(t, server.URL, nil)
	defer p.Close()

	report, err := p.Run(extract.Window{})
	assert.ErrorIs(t, err, extract.ErrMalformedPayload)
	assert.Equal(t, "extract", report.FailedStage)
}

func TestRun_TransformFailure(t *testing.T) {
	// Header only: the payload parses but yields an empty batch.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("country,date,cases,deaths\n"))
	}))
	defer server.Close()

	p := newTestPipeline(t, server.URL, nil)
	defer p.Close()

	report, err := p.Run(extract.Window{})
	assert.ErrorIs(t, err, transform.ErrTransformFailed)
	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, "transform", report.FailedStage)

	runs := runStatuses(t, p.DB)
	assert.Equal(t, []string{"transform"}, runs["stage"])
}

func TestRun_WindowForwardedToSource(t *testing.T) {
	var gotStart string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start")
		w.Write([]byte("country,date,cases,deaths\nGermany,2021-03-01,100,2\n"))
	}))
	defer server.Close()

	p := newTestPipeline(t, server.URL, nil)
	defer p.Close()

	_, err := p.Run(extract.Window{Start: time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, "2021-03-01", gotStart)
}
