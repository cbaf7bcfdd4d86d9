package report

import (
	"organoid-qc/internal/strategy"
	"organoid-qc/pkg/models"
)

const (
	// DegradationSlope flags a group whose focus trend falls below it.
	DegradationSlope = -5.0
	// LowFocusScore flags any single image scoring below it.
	LowFocusScore = 50.0
)

// FocusTrend is the coarse slope (last - first) / count. It needs at least
// two scores.
func FocusTrend(scores []float64) (float64, bool) {
	if len(scores) < 2 {
		return 0, false
	}
	return (scores[len(scores)-1] - scores[0]) / float64(len(scores)), true
}

// TrendFlags evaluates the degradation and low-focus checks independently.
// A group with neither gets a single normal flag.
func TrendFlags(scores []float64, trend float64) []models.TrendFlag {
	var flags []models.TrendFlag
	if trend < DegradationSlope {
		flags = append(flags, models.TrendFlag{Tag: models.TrendFocusDegradation})
	}

	low := 0
	for _, s := range scores {
		if s < LowFocusScore {
			low++
		}
	}
	if low > 0 {
		flags = append(flags, models.TrendFlag{
			Tag:        models.TrendLowFocus,
			Count:      low,
			Percentage: Round(100*float64(low)/float64(len(scores)), 1),
		})
	}

	if len(flags) == 0 {
		flags = append(flags, models.TrendFlag{Tag: models.TrendNormal})
	}
	return flags
}

// EquipmentTrends groups records with grouping and computes each group's
// focus trend. records must be in ascending creation order; groups are
// reported in order of first appearance.
func EquipmentTrends(records []models.ImageRecord, grouping strategy.GroupingStrategy) models.EquipmentTrendReport {
	if grouping == nil {
		grouping = strategy.NewMicroscopeGrouping()
	}
	keys, groups := strategy.NewGroupingContext(grouping).Partition(records)

	report := models.EquipmentTrendReport{
		Grouping:    grouping.GetStrategyName(),
		TotalImages: len(records),
		Groups:      make([]models.GroupTrend, 0, len(keys)),
	}
	for _, k := range keys {
		report.Groups = append(report.Groups, groupTrend(k, groups[k]))
	}
	return report
}

func groupTrend(id string, records []models.ImageRecord) models.GroupTrend {
	scores := make([]float64, len(records))
	for i, r := range records {
		scores[i] = r.Metrics.FocusScore
	}

	g := models.GroupTrend{GroupID: id, TotalImages: len(scores)}
	trend, ok := FocusTrend(scores)
	if !ok {
		g.Status = models.TrendStatusInsufficientData
		return g
	}
	g.Status = models.TrendStatusAnalyzed
	g.FocusTrend = &trend
	g.Flags = TrendFlags(scores, trend)
	return g
}
