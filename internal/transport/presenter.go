package transport

import (
	"fmt"

	"organoid-qc/internal/report"
	"organoid-qc/pkg/models"
)

var issueText = map[models.IssueTag]string{
	models.IssueFocusTooLow:    "Focus too low (image is blurry)",
	models.IssueContrastTooLow: "Contrast too low",
	models.IssueExposure:       "Exposure out of range (too dark or too bright)",
}

// describeIssues renders reason tags for people. Unknown tags pass through.
func describeIssues(tags []models.IssueTag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if text, ok := issueText[t]; ok {
			out = append(out, text)
		} else {
			out = append(out, string(t))
		}
	}
	return out
}

func round2(v float64) float64 { return report.Round(v, 2) }

func round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}

func toUploadResponse(rec *models.ImageRecord) models.UploadResponse {
	m := rec.Metrics
	return models.UploadResponse{
		ID:                  rec.ID,
		Filename:            rec.Filename,
		FocusScore:          round2(m.FocusScore),
		ContrastLevel:       round2(m.ContrastLevel),
		ExposureLevel:       round2(m.ExposureLevel),
		IsMLReady:           rec.Verdict.IsReady,
		QualityReason:       rec.Verdict.ReasonString(),
		Issues:              describeIssues(rec.Verdict.Reasons),
		OrganoidDiameter:    round2Ptr(m.OrganoidDiameter),
		OrganoidCircularity: round2Ptr(m.OrganoidCircularity),
		Dimensions:          models.Dimensions{Width: m.Width, Height: m.Height},
		ThumbnailAvailable:  rec.ThumbnailPath != "",
	}
}

func toImageSummary(rec models.ImageRecord) models.ImageSummary {
	m := rec.Metrics
	return models.ImageSummary{
		ID:                      rec.ID,
		Filename:                rec.Filename,
		FocusScore:              round2(m.FocusScore),
		ContrastLevel:           round2(m.ContrastLevel),
		ExposureLevel:           round2(m.ExposureLevel),
		IsMLReady:               rec.Verdict.IsReady,
		QualityReason:           rec.Verdict.ReasonString(),
		OrganoidDiameter:        round2Ptr(m.OrganoidDiameter),
		OrganoidShapeRegularity: round2Ptr(m.OrganoidCircularity),
		ImagingSessionID:        rec.ImagingSessionID,
		MicroscopeID:            rec.MicroscopeID,
		OperatorID:              rec.OperatorID,
		CreatedAt:               rec.CreatedAt,
	}
}

// presentBatch rounds the averages for display.
func presentBatch(r *models.BatchReport) *models.BatchReport {
	out := *r
	out.AvgFocus = round2(r.AvgFocus)
	out.AvgContrast = round2(r.AvgContrast)
	out.AvgExposure = round2(r.AvgExposure)
	return &out
}

type groupHealth struct {
	models.GroupTrend
	Issues []string `json:"issues,omitempty"`
}

type equipmentHealthResponse struct {
	Grouping    string        `json:"grouping"`
	TotalImages int           `json:"total_images"`
	Groups      []groupHealth `json:"groups"`
}

func flagText(f models.TrendFlag) string {
	switch f.Tag {
	case models.TrendFocusDegradation:
		return "Focus degradation detected"
	case models.TrendLowFocus:
		return fmt.Sprintf("Critical focus failures: %d images (%s%%)", f.Count, report.FormatMetric(f.Percentage))
	case models.TrendNormal:
		return "Equipment performing normally"
	}
	return string(f.Tag)
}

func presentTrends(r *models.EquipmentTrendReport) equipmentHealthResponse {
	out := equipmentHealthResponse{
		Grouping:    r.Grouping,
		TotalImages: r.TotalImages,
		Groups:      make([]groupHealth, 0, len(r.Groups)),
	}
	for _, g := range r.Groups {
		gh := groupHealth{GroupTrend: g}
		gh.FocusTrend = round2Ptr(g.FocusTrend)
		for _, f := range g.Flags {
			gh.Issues = append(gh.Issues, flagText(f))
		}
		out.Groups = append(out.Groups, gh)
	}
	return out
}
