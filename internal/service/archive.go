package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/vcscsvcscs/rxtag/internal/azure"
	"github.com/vcscsvcscs/rxtag/internal/nfc"
	"github.com/vcscsvcscs/rxtag/internal/security"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

// TagArchive stores committed payloads as encrypted NDEF records, so a lost
// tag can be rewritten byte for byte
type TagArchive struct {
	blob     azure.BlobStorage
	enc      *security.Encryptor
	mimeType string
	logger   *zap.Logger
}

// NewTagArchive creates a TagArchive
func NewTagArchive(blob azure.BlobStorage, enc *security.Encryptor, mimeType string, logger *zap.Logger) *TagArchive {
	return &TagArchive{
		blob:     blob,
		enc:      enc,
		mimeType: mimeType,
		logger:   logger,
	}
}

func archiveName(userID, prescriptionID string) string {
	return url.PathEscape(userID) + "/" + url.PathEscape(prescriptionID) + ".ndef"
}

// Archive encrypts the tag record for p and uploads it. The prescription id is
// bound to the ciphertext.
func (a *TagArchive) Archive(ctx context.Context, userID string, p model.PrescriptionPayload) (string, error) {
	record, err := nfc.EncodePayload(p, a.mimeType)
	if err != nil {
		return "", fmt.Errorf("failed to encode tag record: %w", err)
	}

	sealed, err := a.enc.Seal(record, []byte(p.ID))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt tag record: %w", err)
	}

	blobName, err := a.blob.UploadArchive(ctx, archiveName(userID, p.ID), sealed, map[string]string{
		"prescription": p.ID,
		"medications":  strconv.Itoa(len(p.Meds)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload tag archive: %w", err)
	}

	a.logger.Debug("tag payload archived",
		zap.String("prescription_id", p.ID),
		zap.String("blob_name", blobName),
	)
	return blobName, nil
}

// Restore downloads and decrypts an archive and returns the raw NDEF record
// together with its decoded payload
func (a *TagArchive) Restore(ctx context.Context, blobName, prescriptionID string) ([]byte, model.PrescriptionPayload, error) {
	sealed, err := a.blob.DownloadArchive(ctx, blobName)
	if err != nil {
		return nil, model.PrescriptionPayload{}, fmt.Errorf("failed to download tag archive: %w", err)
	}

	record, err := a.enc.Open(sealed, []byte(prescriptionID))
	if err != nil {
		return nil, model.PrescriptionPayload{}, fmt.Errorf("failed to decrypt tag archive: %w", err)
	}

	p, err := nfc.Decode(record)
	if err != nil {
		return nil, model.PrescriptionPayload{}, err
	}
	return record, p, nil
}

// RestorePrescription restores the archive of one of userID's prescriptions
func (a *TagArchive) RestorePrescription(ctx context.Context, userID, prescriptionID string) ([]byte, model.PrescriptionPayload, error) {
	return a.Restore(ctx, azure.ArchiveBlobName(archiveName(userID, prescriptionID)), prescriptionID)
}
