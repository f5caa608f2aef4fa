package load

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/no0bitah/covid-etl/config"
	"github.com/no0bitah/covid-etl/transform"
)

// ErrLoadFailed marks a load-stage failure. The batch is rolled back;
// no partial writes survive it.
var ErrLoadFailed = errors.New("load failed")

// LoadResult reports how one batch was applied.
type LoadResult struct {
	Inserted int
	Updated  int
}

// RunRecord is one row of the etl_runs bookkeeping table, written once
// per pipeline run on its terminal state.
type RunRecord struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      string
	Stage       string
	RowsFetched int
	RowsLoaded  int
	RowsSkipped int
	Error       string
}

type DuckDB struct {
	Logger    *slog.Logger
	DB        *sql.DB
	Connector *duckdb.Connector
	DBType    string
}

func NewDuckDB(config *config.Config, logger *slog.Logger) (*DuckDB, error) {
	var path string
	var dbType string
	if config.DuckDB.Path == "" || config.DuckDB.Path == ":memory:" {
		path = ""
		dbType = ":memory:"
	} else {
		path = config.DuckDB.Path
		dbType = path
	}

	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(connector)

	if dbType == ":memory:" {
		logger.Info("Connected to DuckDB in-memory database")
	} else {
		logger.Info(fmt.Sprintf("Connected to local DuckDB database at %s", dbType))
	}

	return &DuckDB{
		Logger:    logger,
		DB:        db,
		Connector: connector,
		DBType:    dbType,
	}, nil
}

func (db *DuckDB) Close() {
	db.DB.Close()
	db.Connector.Close()
}

// schemaStatements creates the durable tables, the run bookkeeping table
// and the analytical views. All statements are idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS covid_country_daily (
		country_code VARCHAR,
		country VARCHAR,
		date DATE,
		cases INTEGER,
		deaths INTEGER,
		cumulative_cases INTEGER,
		cumulative_deaths INTEGER,
		updated_at TIMESTAMP,
		PRIMARY KEY (country_code, date)
	);`,
	`CREATE SEQUENCE IF NOT EXISTS etl_runs_id_seq;`,
	`CREATE TABLE IF NOT EXISTS etl_runs (
		id INTEGER PRIMARY KEY DEFAULT nextval('etl_runs_id_seq'),
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		status VARCHAR,
		stage VARCHAR,
		rows_fetched INTEGER,
		rows_loaded INTEGER,
		rows_skipped INTEGER,
		error VARCHAR
	);`,
	`CREATE INDEX IF NOT EXISTS idx_country_daily_date ON covid_country_daily(date);`,
	`CREATE OR REPLACE VIEW vw_latest_by_country AS
		SELECT country_code, country, date, cases, deaths, cumulative_cases, cumulative_deaths
		FROM covid_country_daily d
		WHERE date = (SELECT max(date) FROM covid_country_daily WHERE country_code = d.country_code);`,
	`CREATE OR REPLACE VIEW vw_global_daily AS
		SELECT date,
			sum(cases) AS cases,
			sum(deaths) AS deaths,
			sum(cumulative_cases) AS cumulative_cases,
			sum(cumulative_deaths) AS cumulative_deaths
		FROM covid_country_daily
		GROUP BY date
		ORDER BY date;`,
}

func (db *DuckDB) EnsureSchema() error {
	for _, stmt := range schemaStatements {
		if err := db.RunQuery(stmt); err != nil {
			return fmt.Errorf("error creating schema: %w", err)
		}
	}
	return nil
}

// Upsert applies one batch of normalized records as a single
// transaction, keyed on (country_code, date). Existing keys are
// overwritten and updated_at is set to now on every written row. Any
// failure rolls the whole batch back and wraps ErrLoadFailed with the
// offending key.
func (db *DuckDB) Upsert(records []transform.NormalizedRecord, now time.Time) (*LoadResult, error) {
	result := &LoadResult{}
	if len(records) == 0 {
		return result, nil
	}

	tx, err := db.DB.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", ErrLoadFailed, err)
	}
	defer tx.Rollback()

	existsStmt, err := tx.Prepare(
		"SELECT count(*) FROM covid_country_daily WHERE country_code = ? AND date = ?")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to prepare key lookup: %v", ErrLoadFailed, err)
	}
	defer existsStmt.Close()

	upsertStmt, err := tx.Prepare(
		"INSERT OR REPLACE INTO covid_country_daily VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to prepare upsert: %v", ErrLoadFailed, err)
	}
	defer upsertStmt.Close()

	for _, r := range records {
		var existing int
		if err := existsStmt.QueryRow(r.CountryCode, r.Date).Scan(&existing); err != nil {
			return nil, keyError("key lookup", r, err)
		}

		_, err := upsertStmt.Exec(
			r.CountryCode, r.Country, r.Date,
			r.Cases, r.Deaths, r.CumulativeCases, r.CumulativeDeaths,
			now,
		)
		if err != nil {
			return nil, keyError("upsert", r, err)
		}

		if existing > 0 {
			result.Updated++
		} else {
			result.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit batch: %v", ErrLoadFailed, err)
	}

	db.Logger.Info(fmt.Sprintf("Loaded batch: %d inserted, %d updated", result.Inserted, result.Updated))
	return result, nil
}

func keyError(op string, r transform.NormalizedRecord, err error) error {
	return fmt.Errorf("%w: %s for key (%s, %s): %v",
		ErrLoadFailed, op, r.CountryCode, r.Date.Format("2006-01-02"), err)
}

// RecordRun appends one row to the etl_runs bookkeeping table. It runs
// outside the batch transaction: a failed batch still gets its run row.
func (db *DuckDB) RecordRun(run RunRecord) error {
	_, err := db.DB.ExecContext(context.Background(),
		`INSERT INTO etl_runs (started_at, finished_at, status, stage, rows_fetched, rows_loaded, rows_skipped, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt, run.FinishedAt, run.Status, run.Stage,
		run.RowsFetched, run.RowsLoaded, run.RowsSkipped, run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func (db *DuckDB) RunQuery(query string) error {
	_, err := db.DB.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}
	return nil
}

// GetQueryResults executes a query and returns the results as a map of column names to slices of values
func (db *DuckDB) GetQueryResults(query string) (map[string][]string, error) {
	rows, err := db.DB.QueryContext(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := make(map[string][]string)
	for _, col := range columns {
		results[col] = []string{}
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		for i, col := range columns {
			valueStr := fmt.Sprintf("%v", values[i])
			results[col] = append(results[col], valueStr)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return results, nil
}
