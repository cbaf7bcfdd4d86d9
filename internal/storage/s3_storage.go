package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"organoid-qc/internal/logger"
)

type s3Storage struct {
	client *minio.Client
	bucket string
}

// NewS3Storage connects to an S3-compatible endpoint and creates the bucket
// when it is missing.
func NewS3Storage(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (BlobStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("s3 bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("s3 make bucket: %w", err)
		}
	}
	logger.WithFields(map[string]interface{}{
		"endpoint": endpoint,
		"bucket":   bucket,
	}).Info("S3 storage ready")

	return &s3Storage{client: client, bucket: bucket}, nil
}

func (s *s3Storage) Backend() string { return "s3" }

func (s *s3Storage) SaveOriginal(ctx context.Context, experimentID int64, filename string, data []byte) (string, error) {
	key := OriginalKey(experimentID, filename)
	return key, s.put(ctx, key, data, "application/octet-stream")
}

func (s *s3Storage) SaveThumbnail(ctx context.Context, experimentID int64, filename string, data []byte) (string, error) {
	key := ThumbnailKey(experimentID, filename)
	return key, s.put(ctx, key, data, "image/jpeg")
}

func (s *s3Storage) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType: contentType,
		},
	)
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (s *s3Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	// GetObject is lazy, so stat first to surface a missing key here.
	if ok, err := s.Exists(ctx, key); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrBlobNotFound
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	return obj, nil
}

func (s *s3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("s3 stat object: %w", err)
}
