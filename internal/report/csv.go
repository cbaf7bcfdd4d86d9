package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"organoid-qc/pkg/models"
)

// MLReadyHeader is the column order of the ML-ready export.
var MLReadyHeader = []string{
	"Filename", "Focus Score", "Contrast", "Exposure",
	"Organoid Diameter", "Circularity", "Imaging Session", "Microscope",
}

// FullHeader is the column order of the full export.
var FullHeader = []string{
	"Filename", "Focus Score", "Contrast", "Exposure", "Status",
	"Quality Reason", "Organoid Diameter", "Circularity",
	"Imaging Session", "Microscope", "Created At",
}

// CreatedAtLayout formats the Created At column.
const CreatedAtLayout = "2006-01-02 15:04:05"

// FormatMetric renders v rounded to two decimals without trailing zeros.
func FormatMetric(v float64) string {
	return strconv.FormatFloat(Round(v, 2), 'f', -1, 64)
}

// FormatOptional is FormatMetric for optional values; nil renders empty.
func FormatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatMetric(*v)
}

// Status is "Ready" or "Rejected" for the stored verdict.
func Status(r models.ImageRecord) string {
	if r.Verdict.IsReady {
		return "Ready"
	}
	return "Rejected"
}

// MLReadyCSV renders records with MLReadyHeader. Callers choose the rows
// and their order.
func MLReadyCSV(records []models.ImageRecord) (string, error) {
	return writeCSV(MLReadyHeader, records, func(r models.ImageRecord) []string {
		m := r.Metrics
		return []string{
			r.Filename,
			FormatMetric(m.FocusScore),
			FormatMetric(m.ContrastLevel),
			FormatMetric(m.ExposureLevel),
			FormatOptional(m.OrganoidDiameter),
			FormatOptional(m.OrganoidCircularity),
			r.ImagingSessionID,
			r.MicroscopeID,
		}
	})
}

// FullCSV renders records with FullHeader.
func FullCSV(records []models.ImageRecord) (string, error) {
	return writeCSV(FullHeader, records, func(r models.ImageRecord) []string {
		m := r.Metrics
		return []string{
			r.Filename,
			FormatMetric(m.FocusScore),
			FormatMetric(m.ContrastLevel),
			FormatMetric(m.ExposureLevel),
			Status(r),
			r.Verdict.ReasonString(),
			FormatOptional(m.OrganoidDiameter),
			FormatOptional(m.OrganoidCircularity),
			r.ImagingSessionID,
			r.MicroscopeID,
			r.CreatedAt.UTC().Format(CreatedAtLayout),
		}
	})
}

func writeCSV(header []string, records []models.ImageRecord, row func(models.ImageRecord) []string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(row(r)); err != nil {
			return "", fmt.Errorf("write csv row for image %d: %w", r.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return buf.String(), nil
}

// ExportFilename builds names like ml_ready_images_3_20240131_235959.csv.
func ExportFilename(prefix string, experimentID int64, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s.csv", prefix, experimentID, now.Format("20060102_150405"))
}
