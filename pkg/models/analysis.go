package models

import (
	"strings"
	"time"
)

// IssueTag identifies one failed readiness predicate.
type IssueTag string

const (
	IssueFocusTooLow    IssueTag = "focus_too_low"
	IssueContrastTooLow IssueTag = "contrast_too_low"
	IssueExposure       IssueTag = "exposure_problem"
)

// ReasonPassed is the persisted reason for an image that passed every check.
const ReasonPassed = "passed_all_checks"

// QualityMetrics holds the per-image measurements. Pointer fields are nil
// when the value could not be estimated, which is distinct from zero.
type QualityMetrics struct {
	FocusScore          float64  `json:"focus_score"`
	ContrastLevel       float64  `json:"contrast_level"`
	ExposureLevel       float64  `json:"exposure_level"`
	OrganoidDiameter    *float64 `json:"organoid_diameter"`
	OrganoidCircularity *float64 `json:"organoid_circularity"`
	Width               *int     `json:"width"`
	Height              *int     `json:"height"`
}

// ReadinessVerdict is the classifier output. Reasons is empty iff IsReady.
type ReadinessVerdict struct {
	IsReady bool       `json:"is_ml_ready"`
	Reasons []IssueTag `json:"reasons"`
}

// ReasonString renders the verdict the way it is persisted: tags joined by
// ", " or ReasonPassed.
func (v ReadinessVerdict) ReasonString() string {
	if len(v.Reasons) == 0 {
		return ReasonPassed
	}
	parts := make([]string, len(v.Reasons))
	for i, r := range v.Reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

// ParseReasons is the inverse of ReasonString. Unknown fragments are kept
// as-is so older rows still round-trip.
func ParseReasons(reason string) []IssueTag {
	reason = strings.TrimSpace(reason)
	if reason == "" || reason == ReasonPassed {
		return []IssueTag{}
	}
	parts := strings.Split(reason, ",")
	tags := make([]IssueTag, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, IssueTag(p))
		}
	}
	return tags
}

// Experiment groups images uploaded for one study.
type Experiment struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageRecord is one scored upload as persisted by the repository.
type ImageRecord struct {
	ID               int64            `json:"id"`
	ExperimentID     int64            `json:"experiment_id"`
	Filename         string           `json:"filename"`
	ImagingSessionID string           `json:"imaging_session_id,omitempty"`
	MicroscopeID     string           `json:"microscope_id,omitempty"`
	OperatorID       string           `json:"operator_id,omitempty"`
	AcquisitionTime  time.Time        `json:"acquisition_time"`
	Metrics          QualityMetrics   `json:"metrics"`
	Verdict          ReadinessVerdict `json:"verdict"`
	FilePath         string           `json:"file_path,omitempty"`
	ThumbnailPath    string           `json:"thumbnail_path,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Float64Ptr and IntPtr help build optional metric fields.
func Float64Ptr(v float64) *float64 { return &v }

func IntPtr(v int) *int { return &v }
