package report

import (
	"strings"
	"testing"
	"time"

	"organoid-qc/pkg/models"
	"organoid-qc/pkg/validation"
)

func TestGenerateCopyScript(t *testing.T) {
	records := []models.ImageRecord{
		record(1, "s", 400, 30, 100),
		record(2, "s", 100, 30, 100),
		record(3, "s", 160, 30, 100),
	}
	records[2].Filename = "it's here.png"

	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	cs, err := GenerateCopyScript(9, records, validation.ReportThresholds(), now)
	if err != nil {
		t.Fatalf("GenerateCopyScript() error = %v", err)
	}

	if cs.ReadyImages != 2 || cs.TotalImages != 3 {
		t.Errorf("counts = %d/%d, want 2/3", cs.ReadyImages, cs.TotalImages)
	}
	if cs.Filename != "copy_ml_ready_9.sh" {
		t.Errorf("Filename = %q", cs.Filename)
	}

	for _, want := range []string{
		"#!/bin/sh",
		"# Generated: 2024-05-06 07:08:09",
		"# Experiment ID: 9",
		"Focus score: >= 150",
		"Exposure:    30-225",
		"# ML-ready images: 2/3",
		"'" + records[0].Filename + "'",
		`'it'\''s here.png'`,
		"REJECTED_IMAGES=1",
	} {
		if !strings.Contains(cs.Script, want) {
			t.Errorf("script missing %q", want)
		}
	}
	if strings.Contains(cs.Script, records[1].Filename) {
		t.Error("script lists a rejected image")
	}

	// Ready files keep the input order.
	if strings.Index(cs.Script, records[0].Filename) > strings.Index(cs.Script, "it'") {
		t.Error("ready files out of order")
	}
}

func TestGenerateCopyScript_NoReadyImages(t *testing.T) {
	cs, err := GenerateCopyScript(1, nil, validation.ReportThresholds(), time.Now())
	if err != nil {
		t.Fatalf("GenerateCopyScript() error = %v", err)
	}
	if cs.ReadyImages != 0 || !strings.Contains(cs.Script, "for f in\ndo") {
		t.Errorf("unexpected empty script:\n%s", cs.Script)
	}
}
