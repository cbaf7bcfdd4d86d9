package analyzer

import (
	"context"
	"time"

	"organoid-qc/internal/imaging"
	"organoid-qc/internal/logger"
	"organoid-qc/pkg/models"
	"organoid-qc/pkg/validation"

	"github.com/sirupsen/logrus"
)

// coreScorer implements QualityScorer and orchestrates all components
type coreScorer struct {
	workerPool        *WorkerPool
	metricsCalculator MetricsCalculator
}

// NewScorer creates a scorer backed by a started pool of workers
// goroutines. workers <= 0 uses runtime.NumCPU().
func NewScorer(workers int) QualityScorer {
	return NewScorerWithCalculator(workers, NewMetricsCalculator())
}

// NewScorerWithCalculator is NewScorer with an explicit calculator.
func NewScorerWithCalculator(workers int, calc MetricsCalculator) QualityScorer {
	workerPool := NewWorkerPool(workers)
	workerPool.Start()

	return &coreScorer{
		workerPool:        workerPool,
		metricsCalculator: calc,
	}
}

// Score runs the pipeline with the ingest thresholds.
func (cs *coreScorer) Score(data []byte) (*ScoreResult, error) {
	return cs.ScoreWithOptions(data, DefaultOptions())
}

// ScoreWithOptions decodes once and computes every metric from the same
// grid. Only a failed decode is an error.
func (cs *coreScorer) ScoreWithOptions(data []byte, options ScoringOptions) (*ScoreResult, error) {
	start := time.Now()

	dec, err := imaging.Decode(data)
	if err != nil {
		return nil, invalidImage(err)
	}

	m := models.QualityMetrics{
		FocusScore:    cs.metricsCalculator.CalculateLaplacianVariance(dec.Gray),
		ContrastLevel: cs.metricsCalculator.CalculateContrast(dec.Gray),
		ExposureLevel: cs.metricsCalculator.CalculateExposure(dec.Gray),
		Width:         models.IntPtr(dec.Width),
		Height:        models.IntPtr(dec.Height),
	}
	if !options.SkipShapeEstimation {
		m.OrganoidDiameter, m.OrganoidCircularity = cs.metricsCalculator.EstimateOrganoid(dec.Gray)
	}

	result := &ScoreResult{
		Metrics:   m,
		Verdict:   validation.Classify(m.FocusScore, m.ContrastLevel, m.ExposureLevel, options.Thresholds),
		Format:    dec.Format,
		Timestamp: start,
	}
	result.ProcessingTimeSec = time.Since(start).Seconds()

	logger.WithFields(logrus.Fields{
		"format":       dec.Format,
		"width":        dec.Width,
		"height":       dec.Height,
		"focus_score":  m.FocusScore,
		"is_ml_ready":  result.Verdict.IsReady,
		"duration_sec": result.ProcessingTimeSec,
	}).Debug("Image scored")

	return result, nil
}

// ScoreContext runs ScoreWithOptions on the worker pool and waits for it
// or for ctx.
func (cs *coreScorer) ScoreContext(ctx context.Context, data []byte, options ScoringOptions) (*ScoreResult, error) {
	if !options.UseWorkerPool {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return cs.ScoreWithOptions(data, options)
	}

	var (
		result *ScoreResult
		err    error
	)
	if poolErr := cs.workerPool.Do(ctx, func() {
		result, err = cs.ScoreWithOptions(data, options)
	}); poolErr != nil {
		return nil, poolErr
	}
	return result, err
}

func (cs *coreScorer) Stats() PoolStats {
	return cs.workerPool.GetStats()
}

// Close stops the worker pool.
func (cs *coreScorer) Close() error {
	cs.workerPool.Close()
	return nil
}
