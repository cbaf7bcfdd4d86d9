// Package report derives batch statistics, equipment trends, CSV exports
// and copy scripts from stored image records. Nothing here is persisted.
package report

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"organoid-qc/internal/strategy"
	"organoid-qc/pkg/models"
	"organoid-qc/pkg/validation"
)

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// BatchReport re-evaluates every record against thresholds instead of
// trusting the stored verdict, so callers can preview a threshold change.
// Session issues follow the record order of the input.
func BatchReport(records []models.ImageRecord, thresholds validation.QualityThresholds) models.BatchReport {
	report := models.BatchReport{
		AppliedThresholds: &models.AppliedThresholds{
			Focus:    thresholds.FocusThreshold,
			Contrast: thresholds.ContrastThreshold,
			Exposure: thresholds.ExposureRange(),
		},
		Sessions: make(map[string]*models.SessionSummary),
	}
	if len(records) == 0 {
		return report
	}

	validator := validation.NewQualityValidatorWithThresholds(thresholds)
	focus := make([]float64, len(records))
	contrast := make([]float64, len(records))
	exposure := make([]float64, len(records))
	for i, r := range records {
		m := r.Metrics
		focus[i] = m.FocusScore
		contrast[i] = m.ContrastLevel
		exposure[i] = m.ExposureLevel

		session := r.ImagingSessionID
		if session == "" {
			session = strategy.UnknownGroup
		}
		s, ok := report.Sessions[session]
		if !ok {
			s = &models.SessionSummary{Issues: []string{}}
			report.Sessions[session] = s
		}
		s.Total++

		verdict := validator.ClassifyMetrics(m)
		if verdict.IsReady {
			s.Ready++
			report.MLReadyImages++
		} else {
			s.Issues = append(s.Issues, verdict.ReasonString())
		}
	}

	report.TotalImages = len(records)
	report.PassRate = Round(100*float64(report.MLReadyImages)/float64(len(records)), 2)
	report.AvgFocus = stat.Mean(focus, nil)
	report.AvgContrast = stat.Mean(contrast, nil)
	report.AvgExposure = stat.Mean(exposure, nil)
	return report
}

// ReadyRecords returns the records that pass thresholds, in input order.
func ReadyRecords(records []models.ImageRecord, thresholds validation.QualityThresholds) []models.ImageRecord {
	validator := validation.NewQualityValidatorWithThresholds(thresholds)
	out := make([]models.ImageRecord, 0, len(records))
	for _, r := range records {
		if validator.ClassifyMetrics(r.Metrics).IsReady {
			out = append(out, r)
		}
	}
	return out
}
