package quality

import (
	"log/slog"
	"os"
	"testing"

	"github.com/no0bitah/covid-etl/config"
	"github.com/no0bitah/covid-etl/load"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *load.DuckDB {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := &config.Config{
		DuckDB: config.DuckDBConfig{
			Path: ":memory:",
		},
	}

	db, err := load.NewDuckDB(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema())
	return db
}

func resultByName(results []Result, name string) Result {
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	return Result{}
}

func TestRunChecks_HealthyData(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	require.NoError(t, db.RunQuery(`
		INSERT INTO covid_country_daily VALUES
			('DE', 'Germany', DATE '2021-03-01', 100, 2, 100, 2, now()),
			('DE', 'Germany', DATE '2021-03-02', 150, 3, 250, 5, now()),
			('NO', 'Norway', DATE '2021-03-01', 40, 1, 40, 1, now());`))

	results, err := RunChecks(db)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, r.Passed, "check %s failed: %s", r.Name, r.Detail)
	}
	assert.False(t, Failed(results))
}

func TestRunChecks_EmptyTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	results, err := RunChecks(db)
	require.NoError(t, err)

	assert.False(t, resultByName(results, "table_not_empty").Passed)
	assert.True(t, Failed(results))
}

func TestRunChecks_NegativeMetrics(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	require.NoError(t, db.RunQuery(`
		INSERT INTO covid_country_daily VALUES
			('DE', 'Germany', DATE '2021-03-01', -5, 2, 100, 2, now());`))

	results, err := RunChecks(db)
	require.NoError(t, err)

	check := resultByName(results, "no_negative_metrics")
	assert.False(t, check.Passed)
	assert.Equal(t, "1 violations", check.Detail)
	assert.True(t, Failed(results))
}

func TestRunChecks_NonMonotonicCumulative(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	require.NoError(t, db.RunQuery(`
		INSERT INTO covid_country_daily VALUES
			('DE', 'Germany', DATE '2021-03-01', 100, 2, 250, 5, now()),
			('DE', 'Germany', DATE '2021-03-02', 150, 3, 100, 2, now()),
			('NO', 'Norway', DATE '2021-03-01', 40, 1, 40, 1, now());`))

	results, err := RunChecks(db)
	require.NoError(t, err)

	assert.False(t, resultByName(results, "cumulative_monotonic").Passed)
	// The drop happens within one country, not across countries.
	assert.True(t, resultByName(results, "no_duplicate_keys").Passed)
	assert.True(t, Failed(results))
}
