package quality

import (
	"fmt"
	"strconv"

	"github.com/no0bitah/covid-etl/load"
)

// Result is the outcome of one data quality check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

type check struct {
	name string
	// query must return a single row with one column named n.
	query string
	// wantZero: n counts violations and must be zero. Otherwise n is a
	// row count and must be positive.
	wantZero bool
}

var checks = []check{
	{
		name:     "table_not_empty",
		query:    "SELECT count(*) AS n FROM covid_country_daily;",
		wantZero: false,
	},
	{
		name: "no_duplicate_keys",
		query: `SELECT count(*) AS n FROM (
			SELECT country_code, date FROM covid_country_daily
			GROUP BY country_code, date HAVING count(*) > 1
		);`,
		wantZero: true,
	},
	{
		name: "no_negative_metrics",
		query: `SELECT count(*) AS n FROM covid_country_daily
			WHERE cases < 0 OR deaths < 0 OR cumulative_cases < 0 OR cumulative_deaths < 0;`,
		wantZero: true,
	},
	{
		name: "cumulative_monotonic",
		query: `SELECT count(*) AS n FROM (
			SELECT
				cumulative_cases - lag(cumulative_cases) OVER w AS diff_cases,
				cumulative_deaths - lag(cumulative_deaths) OVER w AS diff_deaths
			FROM covid_country_daily
			WINDOW w AS (PARTITION BY country_code ORDER BY date)
		) WHERE diff_cases < 0 OR diff_deaths < 0;`,
		wantZero: true,
	},
}

// RunChecks executes every data quality check against the persisted
// table, read-only. A query error aborts; a failed check does not.
func RunChecks(db *load.DuckDB) ([]Result, error) {
	var results []Result
	for _, c := range checks {
		res, err := db.GetQueryResults(c.query)
		if err != nil {
			return nil, fmt.Errorf("error running check %s: %w", c.name, err)
		}

		values, ok := res["n"]
		if !ok || len(values) != 1 {
			return nil, fmt.Errorf("check %s did not return a single n value", c.name)
		}
		n, err := strconv.Atoi(values[0])
		if err != nil {
			return nil, fmt.Errorf("check %s returned non-numeric n %q: %w", c.name, values[0], err)
		}

		result := Result{Name: c.name}
		if c.wantZero {
			result.Passed = n == 0
			result.Detail = fmt.Sprintf("%d violations", n)
		} else {
			result.Passed = n > 0
			result.Detail = fmt.Sprintf("%d rows", n)
		}
		results = append(results, result)
	}
	return results, nil
}

// Failed reports whether any check in the set did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
