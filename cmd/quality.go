package cmd

import (
	"fmt"

	"github.com/no0bitah/covid-etl/load"
	"github.com/no0bitah/covid-etl/quality"
	"github.com/spf13/cobra"
)

func newQualityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quality",
		Short: "Runs read-only data quality checks against the persisted table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := initializeConfigAndLogger()
			if err != nil {
				return err
			}

			db, err := load.NewDuckDB(cfg, log)
			if err != nil {
				log.Error(fmt.Sprintf("Error opening DuckDB database: %v", err))
				return err
			}
			defer db.Close()

			if err := db.EnsureSchema(); err != nil {
				return err
			}

			results, err := quality.RunChecks(db)
			if err != nil {
				log.Error(fmt.Sprintf("Error running quality checks: %v", err))
				return err
			}

			for _, r := range results {
				if r.Passed {
					log.Info(fmt.Sprintf("Check %s passed (%s)", r.Name, r.Detail))
				} else {
					log.Error(fmt.Sprintf("Check %s FAILED (%s)", r.Name, r.Detail))
				}
			}

			if quality.Failed(results) {
				return fmt.Errorf("data quality checks failed")
			}
			return nil
		},
	}
}
