package analyzer

import (
	"context"
	"image"
)

// QualityScorer turns encoded image bytes into metrics and a verdict
type QualityScorer interface {
	Score(data []byte) (*ScoreResult, error)
	ScoreWithOptions(data []byte, options ScoringOptions) (*ScoreResult, error)

	// ScoreContext runs the scoring on the worker pool.
	ScoreContext(ctx context.Context, data []byte, options ScoringOptions) (*ScoreResult, error)

	Stats() PoolStats
	Close() error
}

// MetricsCalculator handles metric computation over a decoded grid
type MetricsCalculator interface {
	CalculateLaplacianVariance(gray *image.Gray) float64
	CalculateContrast(gray *image.Gray) float64
	CalculateExposure(gray *image.Gray) float64
	EstimateOrganoid(gray *image.Gray) (diameter, circularity *float64)
}
