package orchestrate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"tg-scraper/pkg/config"
	"tg-scraper/pkg/models"
	"tg-scraper/pkg/process"
	"tg-scraper/pkg/utils"
)

const defaultReportFilename = "run_report.yaml"

// writeRunReport marshals the run summary and writes it into the save root
func writeRunReport(cfg *config.AppConfig, report *models.RunReport, runLog *logrus.Entry) error {
	filename := cfg.ReportFilename
	if filename == "" {
		filename = defaultReportFilename
	}
	reportPath := filepath.Join(cfg.SaveRoot, filename)

	if err := os.MkdirAll(cfg.SaveRoot, 0755); err != nil {
		return fmt.Errorf("%w: creating save root '%s': %w", utils.ErrFilesystem, cfg.SaveRoot, err)
	}

	yamlData, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling run report to YAML: %w", err)
	}
	if err := os.WriteFile(reportPath, yamlData, 0644); err != nil {
		return fmt.Errorf("%w: writing run report '%s': %w", utils.ErrFilesystem, reportPath, err)
	}

	runLog.Infof("Run report (%d entries) written to %s", len(report.Entries), reportPath)
	return nil
}

// aggregateStatus reduces task outcomes to one entry-level status. Any
// fetch counts as a fetch; a walk that dispatched nothing is empty.
func aggregateStatus(results []process.Result) models.OutcomeStatus {
	if len(results) == 0 {
		return models.OutcomeEmpty
	}

	var sawFetched, sawEmpty, sawFailed bool
	for _, res := range results {
		switch res.Status {
		case models.OutcomeFetched:
			sawFetched = true
		case models.OutcomeEmpty:
			sawEmpty = true
		case models.OutcomeFailed:
			sawFailed = true
		}
	}

	switch {
	case sawFetched:
		return models.OutcomeFetched
	case sawEmpty:
		return models.OutcomeEmpty
	case sawFailed:
		return models.OutcomeFailed
	default:
		return models.OutcomeSkipped
	}
}

// tallyTotals sums entry outcomes for the report footer
func tallyTotals(entries []models.EntryReport) models.ReportTotals {
	var totals models.ReportTotals
	for _, entry := range entries {
		switch entry.Status {
		case models.OutcomeFetched:
			totals.Fetched++
		case models.OutcomeEmpty:
			totals.Empty++
		case models.OutcomeSkipped:
			totals.Skipped++
		case models.OutcomeFailed:
			totals.Failed++
		}
	}
	return totals
}
