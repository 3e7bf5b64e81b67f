package azure

import "context"

// BlobStorage stores encrypted tag archives
type BlobStorage interface {
	UploadArchive(ctx context.Context, name string, data []byte, metadata map[string]string) (string, error)
	DownloadArchive(ctx context.Context, blobName string) ([]byte, error)
}

// Ensure BlobStorageClient implements BlobStorage interface
var _ BlobStorage = (*BlobStorageClient)(nil)
var _ BlobStorage = (*MockBlobStorageClient)(nil)
