package factory

import (
	"context"
	"fmt"

	"organoid-qc/internal/analyzer"
	"organoid-qc/internal/config"
	"organoid-qc/internal/storage"
)

// StorageType represents different types of storage backends
type StorageType string

const (
	// LocalStorage for the local file system
	LocalStorage StorageType = config.StorageLocal
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = config.StorageAzure
	// S3Storage for S3-compatible object stores
	S3Storage StorageType = config.StorageS3
)

// ScorerFactory creates quality scorers
type ScorerFactory interface {
	CreateScorer(workers int) analyzer.QualityScorer
}

// StorageFactory creates blob store implementations
type StorageFactory interface {
	CreateStorage(ctx context.Context, storageType StorageType) (storage.BlobStore, error)
}

// scorerFactory implements ScorerFactory
type scorerFactory struct{}

// NewScorerFactory creates a new scorer factory
func NewScorerFactory() ScorerFactory {
	return &scorerFactory{}
}

// CreateScorer creates a pooled scorer with the default contour finder
func (f *scorerFactory) CreateScorer(workers int) analyzer.QualityScorer {
	return analyzer.NewScorer(workers)
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg config.StorageConfig
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg config.StorageConfig) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage creates a storage implementation based on the specified type
func (f *storageFactory) CreateStorage(ctx context.Context, storageType StorageType) (storage.BlobStore, error) {
	switch storageType {
	case LocalStorage, "":
		return storage.NewLocalStorage(f.cfg.Root)
	case AzureStorage:
		return storage.NewAzureStorage(ctx, f.cfg.AzureAccountName, f.cfg.AzureAccountKey, f.cfg.AzureContainer)
	case S3Storage:
		return storage.NewS3Storage(ctx, f.cfg.S3Endpoint, f.cfg.S3AccessKey, f.cfg.S3SecretKey, f.cfg.S3Bucket, f.cfg.S3UseSSL)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	ScorerFactory  ScorerFactory
	StorageFactory StorageFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg config.StorageConfig) *ComponentFactory {
	return &ComponentFactory{
		ScorerFactory:  NewScorerFactory(),
		StorageFactory: NewStorageFactory(cfg),
	}
}
