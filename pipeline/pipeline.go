package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/no0bitah/covid-etl/config"
	"github.com/no0bitah/covid-etl/countries"
	"github.com/no0bitah/covid-etl/extract"
	"github.com/no0bitah/covid-etl/load"
	"github.com/no0bitah/covid-etl/transform"
	"github.com/no0bitah/covid-etl/utils"
)

// State is the pipeline run state. A run moves Pending -> Extracting ->
// Transforming -> Loading -> Succeeded; Failed absorbs from any of the
// three working states. There is no internal retry between states; the
// orchestrator decides whether to start a fresh run.
type State string

const (
	StatePending      State = "pending"
	StateExtracting   State = "extracting"
	StateTransforming State = "transforming"
	StateLoading      State = "loading"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
)

// RunReport is the plain result value handed back to the orchestrator.
type RunReport struct {
	State       State
	FailedStage string
	Fetched     int
	Summary     transform.Summary
	Loaded      load.LoadResult
	Err         error
}

type Pipeline struct {
	DB           *load.DuckDB
	SourceClient *extract.SourceClient
	Registry     *countries.Registry
	Logger       *slog.Logger
	targets      []string
	timeProvider utils.TimeProvider
}

func NewPipeline(config *config.Config, logger *slog.Logger, timeProvider utils.TimeProvider) (*Pipeline, error) {
	db, err := load.NewDuckDB(config, logger)
	if err != nil {
		return nil, fmt.Errorf("error creating DB database: %v", err)
	}

	if err := db.EnsureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error ensuring DB schema: %v", err)
	}

	sourceClient, err := extract.NewSourceClient(config, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating source HTTP client: %v", err)
	}

	return &Pipeline{
		DB:           db,
		SourceClient: sourceClient,
		Registry:     countries.NewRegistry(),
		Logger:       logger,
		targets:      config.Source.Countries,
		timeProvider: timeProvider,
	}, nil
}

func (p *Pipeline) Close() {
	p.DB.Close()
}

// Run executes one Extract -> Transform -> Load chain for the trigger
// window. Stage failures land in StateFailed with the stage name and
// are returned to the caller; the run row is recorded either way.
func (p *Pipeline) Run(window extract.Window) (*RunReport, error) {
	started := p.timeProvider.Now()
	report := &RunReport{State: StatePending}

	report.State = StateExtracting
	p.Logger.Info("Extracting records from source feed")
	raw, err := p.SourceClient.FetchWindow(window)
	if err != nil {
		return p.fail(report, started, "extract", err)
	}
	report.Fetched = len(raw)

	report.State = StateTransforming
	p.Logger.Info("Transforming raw records")
	res, err := transform.Transform(raw, p.Registry, p.targets)
	if err != nil {
		return p.fail(report, started, "transform", err)
	}
	report.Summary = res.Summary
	p.logSummary(res.Summary)

	report.State = StateLoading
	p.Logger.Info(fmt.Sprintf("Loading %d normalized records", len(res.Records)))
	loadResult, err := p.DB.Upsert(res.Records, p.timeProvider.Now())
	if err != nil {
		return p.fail(report, started, "load", err)
	}
	report.Loaded = *loadResult

	report.State = StateSucceeded
	p.recordRun(report, started)
	p.Logger.Info("Pipeline run succeeded",
		"fetched", report.Fetched,
		"accepted", report.Summary.Accepted,
		"inserted", report.Loaded.Inserted,
		"updated", report.Loaded.Updated)
	return report, nil
}

func (p *Pipeline) logSummary(s transform.Summary) {
	p.Logger.Info("Transform summary",
		"input", s.Input,
		"accepted", s.Accepted,
		"unknown_country", s.UnknownCountry,
		"filtered_out", s.FilteredOut,
		"malformed_records", s.MalformedRecords,
		"clamped_values", s.ClampedValues)
	if s.CumulativeMismatches > 0 {
		p.Logger.Warn(fmt.Sprintf("Feed cumulative values disagree with recomputed sums on %d fields", s.CumulativeMismatches))
	}
}

func (p *Pipeline) fail(report *RunReport, started time.Time, stage string, err error) (*RunReport, error) {
	report.State = StateFailed
	report.FailedStage = stage
	report.Err = err
	p.Logger.Error(fmt.Sprintf("Pipeline run failed at %s stage: %v", stage, err))
	p.recordRun(report, started)
	return report, err
}

// recordRun writes the etl_runs bookkeeping row. A bookkeeping failure
// is logged but never changes the run outcome.
func (p *Pipeline) recordRun(report *RunReport, started time.Time) {
	run := load.RunRecord{
		StartedAt:   started,
		FinishedAt:  p.timeProvider.Now(),
		Status:      string(report.State),
		Stage:       report.FailedStage,
		RowsFetched: report.Fetched,
		RowsLoaded:  report.Loaded.Inserted + report.Loaded.Updated,
		RowsSkipped: report.Summary.Input - report.Summary.Accepted,
	}
	if report.Err != nil {
		run.Error = report.Err.Error()
	}
	if err := p.DB.RecordRun(run); err != nil {
		p.Logger.Error(fmt.Sprintf("Failed to record run metadata: %v", err))
	}
}
