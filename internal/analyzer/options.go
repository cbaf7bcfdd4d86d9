package analyzer

import "organoid-qc/pkg/validation"

// ScoringOptions provides flexible configuration for a scoring run
type ScoringOptions struct {
	// Thresholds feed the readiness verdict.
	Thresholds validation.QualityThresholds

	// SkipShapeEstimation leaves diameter and circularity nil.
	SkipShapeEstimation bool

	// Performance options
	UseWorkerPool bool
}

// DefaultOptions scores with the ingest thresholds
func DefaultOptions() ScoringOptions {
	return ScoringOptions{
		Thresholds:    validation.IngestThresholds(),
		UseWorkerPool: true,
	}
}

// ReportOptions scores with the stricter reporting thresholds
func ReportOptions() ScoringOptions {
	opts := DefaultOptions()
	opts.Thresholds = validation.ReportThresholds()
	return opts
}

// WithThresholds returns options using t for the verdict
func (opts ScoringOptions) WithThresholds(t validation.QualityThresholds) ScoringOptions {
	opts.Thresholds = t
	return opts
}

// WithoutShapeEstimation disables organoid shape estimation
func (opts ScoringOptions) WithoutShapeEstimation() ScoringOptions {
	opts.SkipShapeEstimation = true
	return opts
}

// WithoutWorkerPool runs ScoreContext on the calling goroutine
func (opts ScoringOptions) WithoutWorkerPool() ScoringOptions {
	opts.UseWorkerPool = false
	return opts
}
