package report

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"organoid-qc/pkg/models"
	"organoid-qc/pkg/validation"
)

// CopyScript is a generated shell script that copies the ML-ready
// originals of one experiment out of a local directory.
type CopyScript struct {
	Script      string
	ReadyImages int
	TotalImages int
	Filename    string
}

type scriptData struct {
	ExperimentID int64
	Generated    string
	Thresholds   validation.QualityThresholds
	Files        []string
	Total        int
	Ready        int
	Rejected     int
}

var copyScriptTemplate = template.Must(template.New("copy").Funcs(template.FuncMap{
	"quote": shellQuote,
	"num":   func(v float64) string { return FormatMetric(v) },
}).Parse(`#!/bin/sh
# OrganoidQC ML-ready image organizer
# Generated: {{.Generated}}
# Experiment ID: {{.ExperimentID}}
#
# Quality thresholds:
#   Focus score: >= {{num .Thresholds.FocusThreshold}}
#   Contrast:    >= {{num .Thresholds.ContrastThreshold}}
#   Exposure:    {{num .Thresholds.ExposureMin}}-{{num .Thresholds.ExposureMax}}
#
# ML-ready images: {{.Ready}}/{{.Total}}
#
# Usage: sh THIS_SCRIPT SOURCE_DIR [OUTPUT_DIR]

SOURCE_DIR="$1"
OUTPUT_DIR="${2:-ml_ready_images}"

if [ -z "$SOURCE_DIR" ] || [ ! -d "$SOURCE_DIR" ]; then
	echo "Error: source directory not found: $SOURCE_DIR" >&2
	exit 1
fi

TOTAL_IMAGES={{.Total}}
READY_IMAGES={{.Ready}}
REJECTED_IMAGES={{.Rejected}}

mkdir -p "$OUTPUT_DIR"

copied=0
failed=0

echo "Source: $SOURCE_DIR"
echo "Destination: $OUTPUT_DIR"
echo "Images to copy: $READY_IMAGES"

for f in{{range .Files}} \
	{{quote .}}{{end}}
do
	if [ -f "$SOURCE_DIR/$f" ]; then
		if cp -p "$SOURCE_DIR/$f" "$OUTPUT_DIR/$f"; then
			copied=$((copied + 1))
			echo "  copied: $f"
		else
			failed=$((failed + 1))
			echo "  ERROR: $f"
		fi
	else
		failed=$((failed + 1))
		echo "  NOT FOUND: $f"
	fi
done

echo "Summary:"
echo "  Total images in experiment: $TOTAL_IMAGES"
echo "  ML-ready images: $READY_IMAGES"
echo "  Rejected images: $REJECTED_IMAGES"
echo "  Copied: $copied"
echo "  Failed: $failed"

if [ "$failed" -ne 0 ]; then
	echo "$failed images could not be copied. Check paths and try again."
	exit 1
fi
echo "All images copied successfully."
`))

// GenerateCopyScript lists the records ready under thresholds, in input
// order, inside a POSIX shell script.
func GenerateCopyScript(experimentID int64, records []models.ImageRecord, thresholds validation.QualityThresholds, now time.Time) (*CopyScript, error) {
	ready := ReadyRecords(records, thresholds)
	files := make([]string, len(ready))
	for i, r := range ready {
		files[i] = r.Filename
	}

	data := scriptData{
		ExperimentID: experimentID,
		Generated:    now.Format("2006-01-02 15:04:05"),
		Thresholds:   thresholds,
		Files:        files,
		Total:        len(records),
		Ready:        len(ready),
		Rejected:     len(records) - len(ready),
	}

	var buf bytes.Buffer
	if err := copyScriptTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render copy script: %w", err)
	}
	return &CopyScript{
		Script:      buf.String(),
		ReadyImages: len(ready),
		TotalImages: len(records),
		Filename:    fmt.Sprintf("copy_ml_ready_%d.sh", experimentID),
	}, nil
}

// shellQuote wraps s in single quotes for sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
