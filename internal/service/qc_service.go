package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"organoid-qc/internal/analyzer"
	apperrors "organoid-qc/internal/errors"
	"organoid-qc/internal/imaging"
	"organoid-qc/internal/logger"
	"organoid-qc/internal/observer"
	"organoid-qc/internal/repository"
	"organoid-qc/internal/storage"
	"organoid-qc/pkg/models"
	"organoid-qc/pkg/validation"
)

// UploadRequest carries one image and its acquisition metadata.
type UploadRequest struct {
	ExperimentID     int64
	Filename         string
	Data             []byte
	ImagingSessionID string
	MicroscopeID     string
	OperatorID       string
	AcquisitionTime  time.Time
}

// QCService defines ingest, experiment and image operations
type QCService interface {
	CreateExperiment(ctx context.Context, name string) (*models.Experiment, error)
	ListExperiments(ctx context.Context) ([]models.Experiment, error)
	DeleteExperiment(ctx context.Context, id int64) error

	// UploadImage scores the upload and persists it. Nothing is stored when
	// the bytes cannot be decoded.
	UploadImage(ctx context.Context, req UploadRequest) (*models.ImageRecord, error)

	ListImages(ctx context.Context, experimentID int64) ([]models.ImageRecord, error)
	GetImage(ctx context.Context, id int64) (*models.ImageRecord, error)
	OpenOriginal(ctx context.Context, id int64) (*models.ImageRecord, io.ReadCloser, error)
	OpenThumbnail(ctx context.Context, id int64) (io.ReadCloser, error)

	DebugImage(ctx context.Context, id int64) (*models.ImageDebugInfo, error)
	ClearImages(ctx context.Context) (int64, error)
	Health(ctx context.Context) error
}

type qcService struct {
	repo      repository.Repository
	blobs     storage.BlobStore
	scorer    analyzer.QualityScorer
	events    observer.Subject
	validator *validation.QualityValidator
	now       func() time.Time
}

// NewQCService creates the ingest service. Uploads are classified with the
// ingest thresholds.
func NewQCService(
	repo repository.Repository,
	blobs storage.BlobStore,
	scorer analyzer.QualityScorer,
	events observer.Subject,
) QCService {
	return &qcService{
		repo:      repo,
		blobs:     blobs,
		scorer:    scorer,
		events:    events,
		validator: validation.NewQualityValidator(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *qcService) CreateExperiment(ctx context.Context, name string) (*models.Experiment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("experiment name is required", nil)
	}
	exp, err := s.repo.CreateExperiment(ctx, name)
	if err != nil {
		return nil, storeError(err, "failed to create experiment")
	}
	logger.WithFields(map[string]interface{}{
		"experiment_id": exp.ID,
		"name":          exp.Name,
	}).Info("Experiment created")
	return exp, nil
}

func (s *qcService) ListExperiments(ctx context.Context) ([]models.Experiment, error) {
	list, err := s.repo.ListExperiments(ctx)
	if err != nil {
		return nil, storeError(err, "failed to list experiments")
	}
	return list, nil
}

// DeleteExperiment removes the rows. Stored blobs are kept.
func (s *qcService) DeleteExperiment(ctx context.Context, id int64) error {
	removed, err := s.repo.DeleteExperiment(ctx, id)
	if err != nil {
		return storeError(err, "failed to delete experiment")
	}
	s.events.NotifyObservers(ctx, observer.QCEvent{
		EventType:    observer.ExperimentDeleted,
		ExperimentID: id,
		Success:      true,
		Metadata:     map[string]interface{}{"images_removed": removed},
	})
	return nil
}

func (s *qcService) UploadImage(ctx context.Context, req UploadRequest) (*models.ImageRecord, error) {
	start := time.Now()

	if err := s.validateUpload(req); err != nil {
		s.rejected(ctx, req, err)
		return nil, err
	}
	if _, err := s.repo.GetExperiment(ctx, req.ExperimentID); err != nil {
		return nil, storeError(err, "failed to load experiment")
	}

	result, err := s.scorer.ScoreContext(ctx, req.Data, analyzer.DefaultOptions().WithThresholds(s.validator.Thresholds()))
	if err != nil {
		err = scoreError(err)
		s.rejected(ctx, req, err)
		return nil, err
	}

	originalKey, err := s.blobs.SaveOriginal(ctx, req.ExperimentID, req.Filename, req.Data)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to store image", err)
	}

	rec := &models.ImageRecord{
		ExperimentID:     req.ExperimentID,
		Filename:         req.Filename,
		ImagingSessionID: strings.TrimSpace(req.ImagingSessionID),
		MicroscopeID:     strings.TrimSpace(req.MicroscopeID),
		OperatorID:       strings.TrimSpace(req.OperatorID),
		AcquisitionTime:  req.AcquisitionTime,
		Metrics:          result.Metrics,
		Verdict:          result.Verdict,
		FilePath:         originalKey,
		CreatedAt:        s.now(),
	}
	if rec.AcquisitionTime.IsZero() {
		rec.AcquisitionTime = rec.CreatedAt
	}
	rec.ThumbnailPath = s.storeThumbnail(ctx, req)

	if _, err := s.repo.InsertImage(ctx, rec); err != nil {
		return nil, storeError(err, "failed to save image record")
	}

	s.events.NotifyObservers(ctx, observer.QCEvent{
		EventType:      observer.ImageScored,
		ExperimentID:   rec.ExperimentID,
		ImageID:        rec.ID,
		Filename:       rec.Filename,
		ProcessingTime: time.Since(start),
		Success:        true,
		Metadata: map[string]interface{}{
			"is_ml_ready":    rec.Verdict.IsReady,
			"quality_reason": rec.Verdict.ReasonString(),
			"focus_score":    rec.Metrics.FocusScore,
			"microscope_id":  rec.MicroscopeID,
		},
	})
	return rec, nil
}

func (s *qcService) validateUpload(req UploadRequest) error {
	if err := validation.ValidateUploadFilename(req.Filename); err != nil {
		return err
	}
	if len(req.Data) == 0 {
		return apperrors.NewValidationError("file is empty", nil)
	}
	if strings.TrimSpace(req.ImagingSessionID) == "" {
		return apperrors.NewValidationError("imaging_session_id is required", nil)
	}
	if strings.TrimSpace(req.MicroscopeID) == "" {
		return apperrors.NewValidationError("microscope_id is required", nil)
	}
	return nil
}

// storeThumbnail returns the thumbnail key, or "" when none was stored.
func (s *qcService) storeThumbnail(ctx context.Context, req UploadRequest) string {
	thumb := imaging.GenerateThumbnail(req.Data)
	var err error
	if thumb == nil {
		err = errors.New("thumbnail could not be generated")
	} else {
		var key string
		if key, err = s.blobs.SaveThumbnail(ctx, req.ExperimentID, req.Filename, thumb); err == nil {
			return key
		}
	}
	s.events.NotifyObservers(ctx, observer.QCEvent{
		EventType:    observer.ThumbnailFailed,
		ExperimentID: req.ExperimentID,
		Filename:     req.Filename,
		ErrorMessage: err.Error(),
	})
	return ""
}

func (s *qcService) rejected(ctx context.Context, req UploadRequest, err error) {
	s.events.NotifyObservers(ctx, observer.QCEvent{
		EventType:    observer.UploadRejected,
		ExperimentID: req.ExperimentID,
		Filename:     req.Filename,
		ErrorMessage: err.Error(),
	})
}

func (s *qcService) ListImages(ctx context.Context, experimentID int64) ([]models.ImageRecord, error) {
	if _, err := s.repo.GetExperiment(ctx, experimentID); err != nil {
		return nil, storeError(err, "failed to load experiment")
	}
	images, err := s.repo.ListImages(ctx, experimentID, repository.NewestFirst)
	if err != nil {
		return nil, storeError(err, "failed to list images")
	}
	return images, nil
}

func (s *qcService) GetImage(ctx context.Context, id int64) (*models.ImageRecord, error) {
	rec, err := s.repo.GetImage(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to load image")
	}
	return rec, nil
}

func (s *qcService) OpenOriginal(ctx context.Context, id int64) (*models.ImageRecord, io.ReadCloser, error) {
	rec, err := s.GetImage(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.openBlob(ctx, rec.FilePath, "image file not found")
	if err != nil {
		return nil, nil, err
	}
	return rec, rc, nil
}

func (s *qcService) OpenThumbnail(ctx context.Context, id int64) (io.ReadCloser, error) {
	rec, err := s.GetImage(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.openBlob(ctx, rec.ThumbnailPath, "thumbnail not found")
}

func (s *qcService) openBlob(ctx context.Context, key, missing string) (io.ReadCloser, error) {
	if key == "" {
		return nil, apperrors.NewNotFoundError(missing, nil)
	}
	rc, err := s.blobs.Open(ctx, key)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil, apperrors.NewNotFoundError(missing, err)
	}
	if err != nil {
		return nil, apperrors.NewUnavailableError("blob storage unavailable", err)
	}
	return rc, nil
}

func (s *qcService) DebugImage(ctx context.Context, id int64) (*models.ImageDebugInfo, error) {
	rec, err := s.GetImage(ctx, id)
	if err != nil {
		return nil, err
	}
	info := &models.ImageDebugInfo{
		ID:            rec.ID,
		Filename:      rec.Filename,
		FilePath:      rec.FilePath,
		ThumbnailPath: rec.ThumbnailPath,
	}
	if rec.FilePath != "" {
		exists, err := s.blobs.Exists(ctx, rec.FilePath)
		if err != nil {
			return nil, apperrors.NewUnavailableError("blob storage unavailable", err)
		}
		info.FileExists = exists
	}
	return info, nil
}

func (s *qcService) ClearImages(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteAllImages(ctx)
	if err != nil {
		return 0, storeError(err, "failed to clear images")
	}
	logger.WithField("images_removed", n).Warn("All image records cleared")
	return n, nil
}

func (s *qcService) Health(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return storeError(err, "database unavailable")
	}
	return nil
}
