package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcscsvcscs/rxtag/internal/azure"
	"github.com/vcscsvcscs/rxtag/internal/nfc"
	"github.com/vcscsvcscs/rxtag/internal/security"
	"github.com/vcscsvcscs/rxtag/internal/service"
	"go.uber.org/zap"
)

func TestCheck(t *testing.T) {
	enc, err := security.NewEncryptor(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	blob := azure.NewMockBlobStorageClient(zap.NewNop())
	mimeType := nfc.MimeType("com.example.rxtag")

	require.NoError(t, check(t.Context(), service.NewTagArchive(blob, enc, mimeType, zap.NewNop()), mimeType))
	assert.Len(t, blob.ListBlobs(), 1)
}
