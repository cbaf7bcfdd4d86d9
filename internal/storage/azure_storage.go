package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"organoid-qc/internal/logger"
)

type azureStorage struct {
	client    *azblob.Client
	container string
}

// NewAzureStorage authenticates with a shared key and makes sure the
// container exists.
func NewAzureStorage(ctx context.Context, accountName, accountKey, container string) (BlobStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, err
	}

	if _, err := client.CreateContainer(ctx, container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("create container %s: %w", container, err)
	}
	logger.WithField("container", container).Info("Azure blob storage ready")

	return &azureStorage{client: client, container: container}, nil
}

func (s *azureStorage) Backend() string { return "azure" }

func (s *azureStorage) SaveOriginal(ctx context.Context, experimentID int64, filename string, data []byte) (string, error) {
	key := OriginalKey(experimentID, filename)
	return key, s.upload(ctx, key, data)
}

func (s *azureStorage) SaveThumbnail(ctx context.Context, experimentID int64, filename string, data []byte) (string, error) {
	key := ThumbnailKey(experimentID, filename)
	return key, s.upload(ctx, key, data)
}

func (s *azureStorage) upload(ctx context.Context, key string, data []byte) error {
	if _, err := s.client.UploadBuffer(ctx, s.container, key, data, nil); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}

func (s *azureStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	downloadResponse, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	return downloadResponse.Body, nil
}

func (s *azureStorage) Exists(ctx context.Context, key string) (bool, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(key)
	_, err := blobClient.GetProperties(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get properties: %w", err)
	}
	return true, nil
}
