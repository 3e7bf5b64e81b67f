// Command check-archive verifies the configured tag archive end to end: it
// encrypts a sample tag record, uploads it to Azure Blob Storage, downloads it
// again and compares the bytes.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vcscsvcscs/rxtag/internal/azure"
	"github.com/vcscsvcscs/rxtag/internal/config"
	"github.com/vcscsvcscs/rxtag/internal/nfc"
	"github.com/vcscsvcscs/rxtag/internal/security"
	"github.com/vcscsvcscs/rxtag/internal/service"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if !cfg.ArchiveEnabled() {
		logger.Fatal("Tag archive is not configured. Set ARCHIVE_KEY and AZURE_STORAGE_CONNECTION_STRING or AZURE_STORAGE_ACCOUNT_NAME/AZURE_STORAGE_ACCOUNT_KEY")
	}

	key, err := cfg.ArchiveKeyBytes()
	if err != nil {
		logger.Fatal("Invalid archive key", zap.Error(err))
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		logger.Fatal("Failed to create encryptor", zap.Error(err))
	}

	storage := cfg.Azure.Storage
	var blob azure.BlobStorage
	if storage.ConnectionString != "" {
		blob, err = azure.NewBlobStorageClientFromConnectionString(storage.ConnectionString, storage.ArchiveContainer, logger)
	} else {
		blob, err = azure.NewBlobStorageClient(storage.AccountName, storage.AccountKey, storage.ArchiveContainer, logger)
	}
	if err != nil {
		logger.Fatal("Failed to create blob storage client", zap.Error(err))
	}

	mimeType := nfc.MimeType(cfg.NFC.AppID)
	archive := service.NewTagArchive(blob, enc, mimeType, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := check(ctx, archive, mimeType); err != nil {
		logger.Fatal("Archive check failed", zap.Error(err))
	}
	logger.Info("Archive check passed", zap.String("container", storage.ArchiveContainer))
}

func check(ctx context.Context, archive *service.TagArchive, mimeType string) error {
	p := model.PrescriptionPayload{
		ID:        fmt.Sprintf("check-%d", time.Now().UnixNano()),
		PatientID: "archive-check",
		IssuedAt:  time.Now().UTC().Format(service.IssuedAtLayout),
		Meds:      []model.MedicationLine{{Drug: "Paracetamol", Dose: "500mg", Freq: "8h", Days: 3}},
	}

	want, err := nfc.EncodePayload(p, mimeType)
	if err != nil {
		return err
	}

	name, err := archive.Archive(ctx, p.PatientID, p)
	if err != nil {
		return err
	}

	got, restored, err := archive.Restore(ctx, name, p.ID)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("restored record differs from the original (%d vs %d bytes)", len(got), len(want))
	}
	if restored.ID != p.ID {
		return fmt.Errorf("restored prescription %q, want %q", restored.ID, p.ID)
	}
	return nil
}
