package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"organoid-qc/internal/analyzer"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// sampleDir holds one ready image, one flat image and a file that is not
// an image.
func sampleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	checker := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if (x+y)%2 == 0 {
				checker.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	writePNG(t, filepath.Join(dir, "a_checker.png"), checker)

	flat := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	writePNG(t, filepath.Join(dir, "b_flat.png"), flat)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScoreTable(t *testing.T) {
	dir := sampleDir(t)

	out, err := run(t, "score", dir, "--workers", "2")
	if err != nil {
		t.Fatalf("score: %v\n%s", err, out)
	}
	if strings.Contains(out, "notes.txt") {
		t.Errorf("non-image file should be skipped:\n%s", out)
	}
	for _, want := range []string{"FILE", "a_checker.png", "Ready", "b_flat.png", "Rejected", "focus_too_low", "1/2 ML-ready"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestScoreJSON(t *testing.T) {
	dir := sampleDir(t)

	out, err := run(t, "score", dir, "--format", "json", "--profile", "report", "--skip-shape")
	if err != nil {
		t.Fatalf("score: %v\n%s", err, out)
	}
	var results []FileResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Verdict.IsReady {
		t.Errorf("checkerboard should be ready: %+v", results[0].Verdict)
	}
	if results[1].Verdict.IsReady {
		t.Error("flat image should be rejected")
	}
	if results[0].Metrics.OrganoidDiameter != nil {
		t.Error("shape estimation should be skipped")
	}
}

func TestScoreExplicitFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.png")
	if err := os.WriteFile(path, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "scan.gif")
	if err := os.WriteFile(bad, []byte("GIF89a"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "score", path, bad, "-f", "json")
	if err != nil {
		t.Fatalf("per-file failures should not fail the command: %v", err)
	}
	var results []FileResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	for _, r := range results {
		if r.Error == "" || r.Verdict != nil {
			t.Errorf("%s: expected an error result, got %+v", r.Path, r)
		}
	}
}

func TestScoreFlagErrors(t *testing.T) {
	dir := sampleDir(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no args", []string{"score"}},
		{"unknown profile", []string{"score", dir, "--profile", "strict"}},
		{"unknown format", []string{"score", dir, "--format", "yaml"}},
		{"bad threshold", []string{"score", dir, "--focus-threshold", "abc"}},
		{"inverted exposure", []string{"score", dir, "--exposure-min", "200", "--exposure-max", "100"}},
		{"missing path", []string{"score", filepath.Join(dir, "missing")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestThresholdOverride(t *testing.T) {
	dir := sampleDir(t)

	// No image can reach this focus threshold.
	out, err := run(t, "score", dir, "--focus-threshold", "1e12")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !strings.Contains(out, "0/2 ML-ready") {
		t.Errorf("expected nothing ready:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "qcscore ") {
		t.Errorf("unexpected version output %q", out)
	}
}

// slowScorer reports how many files were being scored at once.
type slowScorer struct {
	workers      int
	active, peak atomic.Int64
}

func (s *slowScorer) Score(data []byte) (*analyzer.ScoreResult, error) {
	return s.ScoreContext(context.Background(), data, analyzer.DefaultOptions())
}

func (s *slowScorer) ScoreWithOptions(data []byte, opts analyzer.ScoringOptions) (*analyzer.ScoreResult, error) {
	return s.ScoreContext(context.Background(), data, opts)
}

func (s *slowScorer) ScoreContext(ctx context.Context, data []byte, opts analyzer.ScoringOptions) (*analyzer.ScoreResult, error) {
	n := s.active.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	s.active.Add(-1)
	return &analyzer.ScoreResult{}, nil
}

func (s *slowScorer) Stats() analyzer.PoolStats { return analyzer.PoolStats{Workers: s.workers} }

func (s *slowScorer) Close() error { return nil }

func TestScoreFilesBoundedByWorkers(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for i := 0; i < 12; i++ {
		p := filepath.Join(dir, "img_"+string(rune('a'+i))+".png")
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		files = append(files, p)
	}

	scorer := &slowScorer{workers: 3}
	results := scoreFiles(context.Background(), scorer, files, analyzer.DefaultOptions())

	if len(results) != len(files) {
		t.Fatalf("results = %d, want %d", len(results), len(files))
	}
	for i, r := range results {
		if r.Path != files[i] || r.Error != "" {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	if peak := scorer.peak.Load(); peak > 3 {
		t.Errorf("peak in-flight files = %d, want <= 3", peak)
	}
}
