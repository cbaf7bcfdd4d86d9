package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type localStorage struct {
	root string
}

// NewLocalStorage stores blobs below root, creating it if needed.
func NewLocalStorage(root string) (BlobStore, error) {
	if root == "" {
		root = "./uploads"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &localStorage{root: abs}, nil
}

func (s *localStorage) Backend() string { return "local" }

func (s *localStorage) SaveOriginal(ctx context.Context, experimentID int64, filename string, data []byte) (string, error) {
	key := OriginalKey(experimentID, filename)
	return key, s.write(ctx, key, data)
}

func (s *localStorage) SaveThumbnail(ctx context.Context, experimentID int64, filename string, data []byte) (string, error) {
	key := ThumbnailKey(experimentID, filename)
	return key, s.write(ctx, key, data)
}

func (s *localStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return f, err
}

func (s *localStorage) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *localStorage) write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// resolve maps a key to a path and refuses anything outside root.
func (s *localStorage) resolve(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return p, nil
}
