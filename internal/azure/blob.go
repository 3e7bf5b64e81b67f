package azure

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.uber.org/zap"
)

const archivePrefix = "tags"

// BlobStorageClient wraps Azure Blob Storage SDK for tag archive operations
type BlobStorageClient struct {
	client        *azblob.Client
	containerName string
	logger        *zap.Logger
}

// NewBlobStorageClient creates a new Azure Blob Storage client from an account name and key
func NewBlobStorageClient(accountName, accountKey, containerName string, logger *zap.Logger) (*BlobStorageClient, error) {
	if accountName == "" || accountKey == "" || containerName == "" {
		return nil, fmt.Errorf("accountName, accountKey, and containerName are required")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &BlobStorageClient{
		client:        client,
		containerName: containerName,
		logger:        logger,
	}, nil
}

// NewBlobStorageClientFromConnectionString creates a client from a storage connection string
func NewBlobStorageClientFromConnectionString(connectionString, containerName string, logger *zap.Logger) (*BlobStorageClient, error) {
	if connectionString == "" || containerName == "" {
		return nil, fmt.Errorf("connectionString and containerName are required")
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &BlobStorageClient{
		client:        client,
		containerName: containerName,
		logger:        logger,
	}, nil
}

// ArchiveBlobName returns the blob path a tag archive is stored under
func ArchiveBlobName(name string) string {
	return path.Join(archivePrefix, name)
}

// UploadArchive uploads an archive and returns its blob name
func (c *BlobStorageClient) UploadArchive(ctx context.Context, name string, data []byte, metadata map[string]string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("archive name is required")
	}

	blobName := ArchiveBlobName(name)
	c.logger.Debug("uploading tag archive",
		zap.String("blob_name", blobName),
		zap.Int("size_bytes", len(data)),
	)

	meta := map[string]*string{
		"contenttype": toPtr("application/octet-stream"),
	}
	for k, v := range metadata {
		meta[k] = toPtr(v)
	}

	blobClient := c.client.ServiceClient().NewContainerClient(c.containerName).NewBlockBlobClient(blobName)
	_, err := blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		Metadata: meta,
	})
	if err != nil {
		c.logger.Error("failed to upload tag archive",
			zap.String("blob_name", blobName),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to upload tag archive: %w", err)
	}

	c.logger.Info("tag archive uploaded", zap.String("blob_name", blobName))

	return blobName, nil
}

// DownloadArchive downloads an archive by blob name
func (c *BlobStorageClient) DownloadArchive(ctx context.Context, blobName string) ([]byte, error) {
	if blobName == "" {
		return nil, fmt.Errorf("blob name is required")
	}

	blobClient := c.client.ServiceClient().NewContainerClient(c.containerName).NewBlockBlobClient(blobName)

	downloadResponse, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		c.logger.Error("failed to download tag archive",
			zap.String("blob_name", blobName),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to download tag archive: %w", err)
	}
	defer downloadResponse.Body.Close()

	data, err := io.ReadAll(downloadResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tag archive: %w", err)
	}

	return data, nil
}

func toPtr(s string) *string {
	return &s
}
