package validation

import (
	"fmt"
	"strconv"
	"strings"

	"organoid-qc/pkg/models"
)

// QualityThresholds defines configurable thresholds for the readiness check
type QualityThresholds struct {
	FocusThreshold    float64 `json:"focus_threshold"`
	ContrastThreshold float64 `json:"contrast_threshold"`
	ExposureMin       float64 `json:"exposure_min"`
	ExposureMax       float64 `json:"exposure_max"`
}

// IngestThresholds are applied once, at upload time, and stored with the
// record.
func IngestThresholds() QualityThresholds {
	return QualityThresholds{
		FocusThreshold:    80.0,
		ContrastThreshold: 20.0,
		ExposureMin:       30.0,
		ExposureMax:       225.0,
	}
}

// ReportThresholds are the defaults for batch reports and copy scripts.
// The focus bar is deliberately stricter than at ingest.
func ReportThresholds() QualityThresholds {
	return QualityThresholds{
		FocusThreshold:    150.0,
		ContrastThreshold: 20.0,
		ExposureMin:       30.0,
		ExposureMax:       225.0,
	}
}

// Validate rejects negative thresholds and an inverted exposure window.
func (t QualityThresholds) Validate() error {
	switch {
	case t.FocusThreshold < 0:
		return fmt.Errorf("focus_threshold must be >= 0 (got %v)", t.FocusThreshold)
	case t.ContrastThreshold < 0:
		return fmt.Errorf("contrast_threshold must be >= 0 (got %v)", t.ContrastThreshold)
	case t.ExposureMin < 0 || t.ExposureMax < 0:
		return fmt.Errorf("exposure bounds must be >= 0 (got %v-%v)", t.ExposureMin, t.ExposureMax)
	case t.ExposureMin > t.ExposureMax:
		return fmt.Errorf("exposure_min %v is greater than exposure_max %v", t.ExposureMin, t.ExposureMax)
	}
	return nil
}

// ExposureRange renders the exposure window as "min-max".
func (t QualityThresholds) ExposureRange() string {
	return strconv.FormatFloat(t.ExposureMin, 'f', -1, 64) + "-" + strconv.FormatFloat(t.ExposureMax, 'f', -1, 64)
}

// ParseThresholds overlays optional string overrides (usually query
// parameters) onto base. Empty values keep the base value.
func ParseThresholds(base QualityThresholds, focus, contrast, exposureMin, exposureMax string) (QualityThresholds, error) {
	out := base
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"focus_threshold", focus, &out.FocusThreshold},
		{"contrast_threshold", contrast, &out.ContrastThreshold},
		{"exposure_min", exposureMin, &out.ExposureMin},
		{"exposure_max", exposureMax, &out.ExposureMax},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return base, fmt.Errorf("invalid %s: %q", f.name, f.raw)
		}
		*f.dst = v
	}
	if err := out.Validate(); err != nil {
		return base, err
	}
	return out, nil
}

// QualityValidator handles the ML-readiness decision
type QualityValidator struct {
	thresholds QualityThresholds
}

// NewQualityValidator creates a validator using the ingest thresholds
func NewQualityValidator() *QualityValidator {
	return &QualityValidator{thresholds: IngestThresholds()}
}

// NewQualityValidatorWithThresholds creates a validator with custom thresholds
func NewQualityValidatorWithThresholds(thresholds QualityThresholds) *QualityValidator {
	return &QualityValidator{thresholds: thresholds}
}

// Thresholds returns the thresholds the validator applies.
func (qv *QualityValidator) Thresholds() QualityThresholds {
	return qv.thresholds
}

// Classify evaluates focus, contrast and exposure in that order and appends
// a tag for every predicate that holds.
func (qv *QualityValidator) Classify(focus, contrast, exposure float64) models.ReadinessVerdict {
	return Classify(focus, contrast, exposure, qv.thresholds)
}

// ClassifyMetrics is Classify over a QualityMetrics value.
func (qv *QualityValidator) ClassifyMetrics(m models.QualityMetrics) models.ReadinessVerdict {
	return Classify(m.FocusScore, m.ContrastLevel, m.ExposureLevel, qv.thresholds)
}

// Classify is the stateless form of QualityValidator.Classify.
func Classify(focus, contrast, exposure float64, t QualityThresholds) models.ReadinessVerdict {
	reasons := make([]models.IssueTag, 0, 3)

	if focus < t.FocusThreshold {
		reasons = append(reasons, models.IssueFocusTooLow)
	}
	if contrast < t.ContrastThreshold {
		reasons = append(reasons, models.IssueContrastTooLow)
	}
	if exposure < t.ExposureMin || exposure > t.ExposureMax {
		reasons = append(reasons, models.IssueExposure)
	}

	return models.ReadinessVerdict{
		IsReady: len(reasons) == 0,
		Reasons: reasons,
	}
}
