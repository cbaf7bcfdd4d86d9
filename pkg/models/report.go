package models

// AppliedThresholds echoes the thresholds a report was computed with.
type AppliedThresholds struct {
	Focus    float64 `json:"focus"`
	Contrast float64 `json:"contrast"`
	Exposure string  `json:"exposure"`
}

// SessionSummary is the per imaging-session slice of a batch report.
type SessionSummary struct {
	Total  int      `json:"total"`
	Ready  int      `json:"ready"`
	Issues []string `json:"issues"`
}

// BatchReport aggregates one experiment's images under a threshold set.
// It is derived on every request and never stored.
type BatchReport struct {
	TotalImages       int                        `json:"total_images"`
	MLReadyImages     int                        `json:"ml_ready_images"`
	PassRate          float64                    `json:"pass_rate"`
	AvgFocus          float64                    `json:"avg_focus"`
	AvgContrast       float64                    `json:"avg_contrast"`
	AvgExposure       float64                    `json:"avg_exposure"`
	AppliedThresholds *AppliedThresholds         `json:"applied_thresholds,omitempty"`
	Sessions          map[string]*SessionSummary `json:"sessions"`
}

// TrendTag names an equipment-health finding.
type TrendTag string

const (
	TrendFocusDegradation TrendTag = "focus_degradation"
	TrendLowFocus         TrendTag = "low_focus"
	TrendNormal           TrendTag = "normal"
)

// Group status values for equipment trends.
const (
	TrendStatusAnalyzed         = "analyzed"
	TrendStatusInsufficientData = "insufficient_data"
)

// TrendFlag is one finding for a group. Count and Percentage are only set
// for TrendLowFocus.
type TrendFlag struct {
	Tag        TrendTag `json:"tag"`
	Count      int      `json:"count,omitempty"`
	Percentage float64  `json:"percentage,omitempty"`
}

// GroupTrend is the focus trend of one microscope (or of the whole
// experiment for the experiment-wide grouping).
type GroupTrend struct {
	GroupID     string      `json:"group_id"`
	TotalImages int         `json:"total_images"`
	Status      string      `json:"status"`
	FocusTrend  *float64    `json:"focus_trend,omitempty"`
	Flags       []TrendFlag `json:"flags,omitempty"`
}

// EquipmentTrendReport collects group trends for one experiment.
type EquipmentTrendReport struct {
	Grouping    string       `json:"grouping"`
	TotalImages int          `json:"total_images"`
	Groups      []GroupTrend `json:"groups"`
}
