package repository

import (
	"context"

	"organoid-qc/pkg/models"
)

// ImageOrder selects the ordering of ListImages.
type ImageOrder int

const (
	// NewestFirst is the listing order.
	NewestFirst ImageOrder = iota
	// OldestFirst is creation order, used by trends and the full export.
	OldestFirst
	// FocusDesc puts the sharpest images first.
	FocusDesc
)

// ExperimentRepository defines the interface for experiment data access
type ExperimentRepository interface {
	// CreateExperiment stores a new experiment and returns it with its id
	CreateExperiment(ctx context.Context, name string) (*models.Experiment, error)

	// ListExperiments returns all experiments, newest first
	ListExperiments(ctx context.Context) ([]models.Experiment, error)

	// GetExperiment returns ErrExperimentNotFound when id is absent
	GetExperiment(ctx context.Context, id int64) (*models.Experiment, error)

	// DeleteExperiment removes the experiment and its images in one
	// transaction and returns the number of images removed
	DeleteExperiment(ctx context.Context, id int64) (int64, error)
}

// ImageRepository defines the interface for image record access
type ImageRepository interface {
	// InsertImage stores rec and returns the new id. Records are immutable
	// once inserted.
	InsertImage(ctx context.Context, rec *models.ImageRecord) (int64, error)

	// GetImage returns ErrImageNotFound when id is absent
	GetImage(ctx context.Context, id int64) (*models.ImageRecord, error)

	// ListImages returns the experiment's images in the given order
	ListImages(ctx context.Context, experimentID int64, order ImageOrder) ([]models.ImageRecord, error)

	// ListMLReady returns images whose stored verdict is ready, sharpest first
	ListMLReady(ctx context.Context, experimentID int64) ([]models.ImageRecord, error)

	// DeleteAllImages removes every image record
	DeleteAllImages(ctx context.Context) (int64, error)

	// CountImages counts all image records
	CountImages(ctx context.Context) (int64, error)
}

// Repository is the full store used by the service layer
type Repository interface {
	ExperimentRepository
	ImageRepository

	Ping(ctx context.Context) error
	Close() error
}
