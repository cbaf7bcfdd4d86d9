package analyzer

import (
	"testing"

	"organoid-qc/pkg/validation"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.Thresholds != validation.IngestThresholds() {
		t.Errorf("Expected ingest thresholds, got %+v", opts.Thresholds)
	}
	if opts.SkipShapeEstimation {
		t.Error("Expected shape estimation to be enabled by default")
	}
	if !opts.UseWorkerPool {
		t.Error("Expected UseWorkerPool to be true by default")
	}
}

func TestReportOptions(t *testing.T) {
	opts := ReportOptions()
	if opts.Thresholds.FocusThreshold != 150.0 {
		t.Errorf("Expected report focus threshold 150, got %f", opts.Thresholds.FocusThreshold)
	}
}

func TestOptionsChaining(t *testing.T) {
	custom := validation.QualityThresholds{FocusThreshold: 10, ContrastThreshold: 1, ExposureMin: 0, ExposureMax: 255}
	opts := DefaultOptions().WithThresholds(custom).WithoutShapeEstimation().WithoutWorkerPool()

	if opts.Thresholds != custom {
		t.Errorf("Expected custom thresholds, got %+v", opts.Thresholds)
	}
	if !opts.SkipShapeEstimation || opts.UseWorkerPool {
		t.Errorf("Unexpected options: %+v", opts)
	}

	// Builders return copies.
	if DefaultOptions().SkipShapeEstimation {
		t.Error("DefaultOptions was mutated")
	}
}
