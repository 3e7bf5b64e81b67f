package azure

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// MockBlobStorageClient is an in-memory BlobStorage for tests and local runs
type MockBlobStorageClient struct {
	Storage  map[string][]byte
	Metadata map[string]map[string]string
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewMockBlobStorageClient creates a new mock blob storage client
func NewMockBlobStorageClient(logger *zap.Logger) *MockBlobStorageClient {
	return &MockBlobStorageClient{
		Storage:  make(map[string][]byte),
		Metadata: make(map[string]map[string]string),
		logger:   logger,
	}
}

// UploadArchive stores an archive in memory
func (c *MockBlobStorageClient) UploadArchive(ctx context.Context, name string, data []byte, metadata map[string]string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("archive name is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	blobName := ArchiveBlobName(name)
	c.Storage[blobName] = bytes.Clone(data)
	c.Metadata[blobName] = metadata

	if c.logger != nil {
		c.logger.Info("mock: tag archive uploaded",
			zap.String("blob_name", blobName),
			zap.Int("size_bytes", len(data)),
		)
	}

	return blobName, nil
}

// DownloadArchive returns a stored archive
func (c *MockBlobStorageClient) DownloadArchive(ctx context.Context, blobName string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, exists := c.Storage[blobName]
	if !exists {
		return nil, fmt.Errorf("blob not found: %s", blobName)
	}

	return bytes.Clone(data), nil
}

// ListBlobs returns all blob names in storage, sorted
func (c *MockBlobStorageClient) ListBlobs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	blobs := make([]string, 0, len(c.Storage))
	for name := range c.Storage {
		blobs = append(blobs, name)
	}
	sort.Strings(blobs)

	return blobs
}
