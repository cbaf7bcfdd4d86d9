package service

import (
	"context"
	"time"

	apperrors "organoid-qc/internal/errors"
	"organoid-qc/internal/report"
	"organoid-qc/internal/repository"
	"organoid-qc/internal/strategy"
	"organoid-qc/pkg/models"
	"organoid-qc/pkg/validation"
)

// ReportService derives reports from stored records on every call
type ReportService interface {
	BatchReport(ctx context.Context, experimentID int64, thresholds validation.QualityThresholds) (*models.BatchReport, error)
	EquipmentHealth(ctx context.Context, experimentID int64, grouping string) (*models.EquipmentTrendReport, error)
	ExportMLReady(ctx context.Context, experimentID int64) (*models.ExportResponse, error)
	ExportAll(ctx context.Context, experimentID int64) (*models.ExportResponse, error)
	CopyScript(ctx context.Context, experimentID int64, thresholds validation.QualityThresholds) (*report.CopyScript, error)
}

type reportService struct {
	repo repository.Repository
	now  func() time.Time
}

// NewReportService creates a new report service
func NewReportService(repo repository.Repository) ReportService {
	return &reportService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *reportService) images(ctx context.Context, experimentID int64, order repository.ImageOrder) ([]models.ImageRecord, error) {
	if _, err := s.repo.GetExperiment(ctx, experimentID); err != nil {
		return nil, storeError(err, "failed to load experiment")
	}
	images, err := s.repo.ListImages(ctx, experimentID, order)
	if err != nil {
		return nil, storeError(err, "failed to list images")
	}
	return images, nil
}

// BatchReport re-evaluates the experiment's images in creation order.
func (s *reportService) BatchReport(ctx context.Context, experimentID int64, thresholds validation.QualityThresholds) (*models.BatchReport, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), err)
	}
	images, err := s.images(ctx, experimentID, repository.OldestFirst)
	if err != nil {
		return nil, err
	}
	r := report.BatchReport(images, thresholds)
	return &r, nil
}

func (s *reportService) EquipmentHealth(ctx context.Context, experimentID int64, grouping string) (*models.EquipmentTrendReport, error) {
	g, err := strategy.ForName(grouping)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), err)
	}
	images, err := s.images(ctx, experimentID, repository.OldestFirst)
	if err != nil {
		return nil, err
	}
	r := report.EquipmentTrends(images, g)
	return &r, nil
}

// ExportMLReady exports the stored ready verdicts, sharpest first.
func (s *reportService) ExportMLReady(ctx context.Context, experimentID int64) (*models.ExportResponse, error) {
	if _, err := s.repo.GetExperiment(ctx, experimentID); err != nil {
		return nil, storeError(err, "failed to load experiment")
	}
	images, err := s.repo.ListMLReady(ctx, experimentID)
	if err != nil {
		return nil, storeError(err, "failed to list images")
	}
	if len(images) == 0 {
		return nil, apperrors.NewNotFoundError("no ML-ready images found", nil)
	}
	doc, err := report.MLReadyCSV(images)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to render CSV", err)
	}
	return &models.ExportResponse{
		CSV:      doc,
		Count:    len(images),
		Filename: report.ExportFilename("ml_ready_images", experimentID, s.now()),
	}, nil
}

func (s *reportService) ExportAll(ctx context.Context, experimentID int64) (*models.ExportResponse, error) {
	images, err := s.images(ctx, experimentID, repository.OldestFirst)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, apperrors.NewNotFoundError("no images found", nil)
	}
	doc, err := report.FullCSV(images)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to render CSV", err)
	}
	return &models.ExportResponse{
		CSV:      doc,
		Count:    len(images),
		Filename: report.ExportFilename("all_images", experimentID, s.now()),
	}, nil
}

// CopyScript lists images ready under thresholds, sharpest first.
func (s *reportService) CopyScript(ctx context.Context, experimentID int64, thresholds validation.QualityThresholds) (*report.CopyScript, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), err)
	}
	images, err := s.images(ctx, experimentID, repository.FocusDesc)
	if err != nil {
		return nil, err
	}
	script, err := report.GenerateCopyScript(experimentID, images, thresholds, s.now())
	if err != nil {
		return nil, apperrors.NewInternalError("failed to generate copy script", err)
	}
	return script, nil
}
