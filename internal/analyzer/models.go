package analyzer

import (
	"time"

	"organoid-qc/pkg/models"
)

// ScoreResult is the output of one scoring run.
type ScoreResult struct {
	Metrics           models.QualityMetrics   `json:"metrics"`
	Verdict           models.ReadinessVerdict `json:"verdict"`
	Format            string                  `json:"format"`
	Timestamp         time.Time               `json:"timestamp"`
	ProcessingTimeSec float64                 `json:"processing_time_sec"`
}
