package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"organoid-qc/pkg/validation"
)

// ErrBlobNotFound is returned by Open when the key does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore keeps original uploads and their thumbnails. Keys are
// slash-separated and relative to the backend root.
type BlobStore interface {
	// SaveOriginal stores the raw upload and returns its key.
	SaveOriginal(ctx context.Context, experimentID int64, filename string, data []byte) (string, error)
	// SaveThumbnail stores an encoded JPEG thumbnail and returns its key.
	SaveThumbnail(ctx context.Context, experimentID int64, filename string, data []byte) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Backend names the implementation, e.g. "local".
	Backend() string
}

func experimentPrefix(experimentID int64) string {
	return fmt.Sprintf("experiment_%d", experimentID)
}

// OriginalKey is experiment_<id>/originals/<sanitized name>.
func OriginalKey(experimentID int64, filename string) string {
	return path.Join(experimentPrefix(experimentID), "originals", validation.SanitizeFilename(filename))
}

// ThumbnailKey is experiment_<id>/thumbnails/<stem>_thumb.jpg.
func ThumbnailKey(experimentID int64, filename string) string {
	return path.Join(experimentPrefix(experimentID), "thumbnails", validation.ThumbnailName(filename))
}

// ReadAll opens key and reads it fully.
func ReadAll(ctx context.Context, store BlobStore, key string) ([]byte, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
