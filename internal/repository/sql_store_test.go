package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"organoid-qc/pkg/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := New(DriverSQLite, filepath.Join(t.TempDir(), "qc.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// withClock makes created_at strictly increasing so ordering is deterministic.
func withClock(s *SQLStore) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func testRecord(expID int64, name string, focus float64, ready bool) *models.ImageRecord {
	verdict := models.ReadinessVerdict{IsReady: ready, Reasons: []models.IssueTag{}}
	if !ready {
		verdict.Reasons = []models.IssueTag{models.IssueFocusTooLow, models.IssueExposure}
	}
	return &models.ImageRecord{
		ExperimentID: expID,
		Filename:     name,
		MicroscopeID: "scope-1",
		Metrics: models.QualityMetrics{
			FocusScore:    focus,
			ContrastLevel: 25.5,
			ExposureLevel: 120,
		},
		Verdict: verdict,
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New("oracle", "x"); !errors.Is(err, ErrUnsupportedDriver) {
		t.Errorf("New(oracle) error = %v, want ErrUnsupportedDriver", err)
	}
}

func TestNew_SchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qc.db")
	first, err := New(DriverSQLite, path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	first.Close()

	second, err := New(DriverSQLite, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer second.Close()
	if err := second.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestExperiments_CreateListGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	withClock(store)

	a, err := store.CreateExperiment(ctx, "first")
	if err != nil {
		t.Fatalf("CreateExperiment() error = %v", err)
	}
	b, err := store.CreateExperiment(ctx, "second")
	if err != nil {
		t.Fatalf("CreateExperiment() error = %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %d twice", a.ID)
	}

	list, err := store.ListExperiments(ctx)
	if err != nil {
		t.Fatalf("ListExperiments() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID || list[1].ID != a.ID {
		t.Errorf("ListExperiments() = %+v, want newest first", list)
	}

	got, err := store.GetExperiment(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetExperiment() error = %v", err)
	}
	if got.Name != "first" || !got.CreatedAt.Equal(a.CreatedAt) {
		t.Errorf("GetExperiment() = %+v, want %+v", got, a)
	}

	if _, err := store.GetExperiment(ctx, 999); !errors.Is(err, ErrExperimentNotFound) {
		t.Errorf("GetExperiment(999) error = %v, want ErrExperimentNotFound", err)
	}
}

func TestImages_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	exp, _ := store.CreateExperiment(ctx, "exp")

	rec := testRecord(exp.ID, "well_a1.png", 210.123456, true)
	rec.ImagingSessionID = "session-7"
	rec.Metrics.OrganoidDiameter = models.Float64Ptr(42.5)
	rec.Metrics.OrganoidCircularity = models.Float64Ptr(0.81)
	rec.Metrics.Width = models.IntPtr(640)
	rec.Metrics.Height = models.IntPtr(480)
	rec.FilePath = "experiment_1/originals/well_a1.png"

	id, err := store.InsertImage(ctx, rec)
	if err != nil {
		t.Fatalf("InsertImage() error = %v", err)
	}

	got, err := store.GetImage(ctx, id)
	if err != nil {
		t.Fatalf("GetImage() error = %v", err)
	}
	if got.Metrics.FocusScore != 210.123456 {
		t.Errorf("FocusScore = %v, want full precision", got.Metrics.FocusScore)
	}
	if got.Metrics.OrganoidDiameter == nil || *got.Metrics.OrganoidDiameter != 42.5 {
		t.Errorf("OrganoidDiameter = %v, want 42.5", got.Metrics.OrganoidDiameter)
	}
	if got.Metrics.Width == nil || *got.Metrics.Width != 640 {
		t.Errorf("Width = %v, want 640", got.Metrics.Width)
	}
	if !got.Verdict.IsReady || len(got.Verdict.Reasons) != 0 {
		t.Errorf("Verdict = %+v, want ready", got.Verdict)
	}
	if got.ImagingSessionID != "session-7" || got.ThumbnailPath != "" {
		t.Errorf("unexpected optional fields: %+v", got)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
}

func TestImages_AbsentShapeStaysNil(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	exp, _ := store.CreateExperiment(ctx, "exp")

	id, err := store.InsertImage(ctx, testRecord(exp.ID, "blank.png", 1, false))
	if err != nil {
		t.Fatalf("InsertImage() error = %v", err)
	}
	got, err := store.GetImage(ctx, id)
	if err != nil {
		t.Fatalf("GetImage() error = %v", err)
	}
	if got.Metrics.OrganoidDiameter != nil || got.Metrics.OrganoidCircularity != nil {
		t.Errorf("expected nil shape metrics, got %+v", got.Metrics)
	}
	want := []models.IssueTag{models.IssueFocusTooLow, models.IssueExposure}
	if len(got.Verdict.Reasons) != 2 || got.Verdict.Reasons[0] != want[0] || got.Verdict.Reasons[1] != want[1] {
		t.Errorf("Reasons = %v, want %v", got.Verdict.Reasons, want)
	}
}

func TestListImages_Orders(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	withClock(store)
	exp, _ := store.CreateExperiment(ctx, "exp")
	other, _ := store.CreateExperiment(ctx, "other")

	for _, r := range []*models.ImageRecord{
		testRecord(exp.ID, "a.png", 100, true),
		testRecord(exp.ID, "b.png", 300, true),
		testRecord(exp.ID, "c.png", 20, false),
		testRecord(other.ID, "z.png", 999, true),
	} {
		if _, err := store.InsertImage(ctx, r); err != nil {
			t.Fatalf("InsertImage() error = %v", err)
		}
	}

	tests := []struct {
		name  string
		order ImageOrder
		want  []string
	}{
		{"newest first", NewestFirst, []string{"c.png", "b.png", "a.png"}},
		{"oldest first", OldestFirst, []string{"a.png", "b.png", "c.png"}},
		{"focus desc", FocusDesc, []string{"b.png", "a.png", "c.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListImages(ctx, exp.ID, tt.order)
			if err != nil {
				t.Fatalf("ListImages() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d images, want %d", len(got), len(tt.want))
			}
			for i, name := range tt.want {
				if got[i].Filename != name {
					t.Errorf("position %d = %s, want %s", i, got[i].Filename, name)
				}
			}
		})
	}

	ready, err := store.ListMLReady(ctx, exp.ID)
	if err != nil {
		t.Fatalf("ListMLReady() error = %v", err)
	}
	if len(ready) != 2 || ready[0].Filename != "b.png" || ready[1].Filename != "a.png" {
		t.Errorf("ListMLReady() = %+v, want b.png then a.png", ready)
	}
}

func TestDeleteExperiment_Cascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	exp, _ := store.CreateExperiment(ctx, "exp")
	keep, _ := store.CreateExperiment(ctx, "keep")
	store.InsertImage(ctx, testRecord(exp.ID, "a.png", 100, true))
	store.InsertImage(ctx, testRecord(exp.ID, "b.png", 100, true))
	store.InsertImage(ctx, testRecord(keep.ID, "k.png", 100, true))

	removed, err := store.DeleteExperiment(ctx, exp.ID)
	if err != nil {
		t.Fatalf("DeleteExperiment() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, err := store.GetExperiment(ctx, exp.ID); !errors.Is(err, ErrExperimentNotFound) {
		t.Errorf("experiment still present: %v", err)
	}
	if n, _ := store.CountImages(ctx); n != 1 {
		t.Errorf("CountImages() = %d, want 1", n)
	}

	if _, err := store.DeleteExperiment(ctx, exp.ID); !errors.Is(err, ErrExperimentNotFound) {
		t.Errorf("second delete error = %v, want ErrExperimentNotFound", err)
	}
}

func TestDeleteAllImages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	exp, _ := store.CreateExperiment(ctx, "exp")
	store.InsertImage(ctx, testRecord(exp.ID, "a.png", 100, true))
	store.InsertImage(ctx, testRecord(exp.ID, "b.png", 100, false))

	n, err := store.DeleteAllImages(ctx)
	if err != nil {
		t.Fatalf("DeleteAllImages() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteAllImages() = %d, want 2", n)
	}
	if _, err := store.GetExperiment(ctx, exp.ID); err != nil {
		t.Errorf("experiment should survive image clear: %v", err)
	}
	if _, err := store.GetImage(ctx, 1); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("GetImage() error = %v, want ErrImageNotFound", err)
	}
}

func TestDBTime_Scan(t *testing.T) {
	want := time.Date(2024, 3, 1, 9, 30, 15, 500000000, time.UTC)
	inputs := []interface{}{
		want,
		"2024-03-01 09:30:15.5+00:00",
		[]byte("2024-03-01T09:30:15.5Z"),
		"2024-03-01 09:30:15.5 +0000 UTC",
	}
	for _, in := range inputs {
		var dt dbTime
		if err := dt.Scan(in); err != nil {
			t.Errorf("Scan(%v) error = %v", in, err)
			continue
		}
		if !dt.Time.Equal(want) {
			t.Errorf("Scan(%v) = %v, want %v", in, dt.Time, want)
		}
	}

	var dt dbTime
	if err := dt.Scan("not a time"); err == nil {
		t.Error("expected error for garbage timestamp")
	}
}
