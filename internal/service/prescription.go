package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vcscsvcscs/rxtag/internal/audit"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

// ErrPrescriptionNotFound is returned when a user has no records for a prescription
var ErrPrescriptionNotFound = errors.New("prescription not found")

// PrescriptionStore is the record store seen by the browser
type PrescriptionStore interface {
	FindByUserID(ctx context.Context, userID string) ([]model.MedicationRecord, error)
	FindByPrescription(ctx context.Context, userID, prescriptionID string) ([]model.MedicationRecord, error)
	SetPrescriptionActive(ctx context.Context, userID, prescriptionID string, active bool) (int64, error)
	DeletePrescription(ctx context.Context, userID, prescriptionID string) (int64, error)
}

// PrescriptionBrowser lists, toggles and deletes persisted prescriptions
type PrescriptionBrowser struct {
	store  PrescriptionStore
	audit  AuditLogger
	logger *zap.Logger
}

// NewPrescriptionBrowser creates a PrescriptionBrowser. auditLogger may be nil.
func NewPrescriptionBrowser(store PrescriptionStore, auditLogger AuditLogger, logger *zap.Logger) *PrescriptionBrowser {
	return &PrescriptionBrowser{
		store:  store,
		audit:  auditLogger,
		logger: logger,
	}
}

// List groups the user's medication records by prescription, newest first
func (b *PrescriptionBrowser) List(ctx context.Context, userID string) ([]model.PrescriptionSummary, error) {
	records, err := b.store.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}

	return Summarize(userID, records), nil
}

// Summarize groups records by prescription id
func Summarize(userID string, records []model.MedicationRecord) []model.PrescriptionSummary {
	byID := make(map[string]*model.PrescriptionSummary)
	order := make([]string, 0)

	for _, rec := range records {
		s, ok := byID[rec.PrescriptionID]
		if !ok {
			s = &model.PrescriptionSummary{
				PrescriptionID: rec.PrescriptionID,
				UserID:         userID,
				StartDate:      rec.StartDate,
				EndDate:        rec.EndDate,
				CreatedAt:      rec.CreatedAt,
			}
			byID[rec.PrescriptionID] = s
			order = append(order, rec.PrescriptionID)
		}

		s.MedicationCount++
		s.Active = s.Active || rec.Active
		if rec.StartDate.Before(s.StartDate) {
			s.StartDate = rec.StartDate
		}
		if rec.EndDate.After(s.EndDate) {
			s.EndDate = rec.EndDate
		}
		if rec.CreatedAt.After(s.CreatedAt) {
			s.CreatedAt = rec.CreatedAt
		}
	}

	summaries := make([]model.PrescriptionSummary, 0, len(order))
	for _, id := range order {
		summaries = append(summaries, *byID[id])
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].PrescriptionID < summaries[j].PrescriptionID
	})

	return summaries
}

// Records returns the medication records of one prescription
func (b *PrescriptionBrowser) Records(ctx context.Context, userID, prescriptionID string) ([]model.MedicationRecord, error) {
	records, err := b.store.FindByPrescription(ctx, userID, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrPrescriptionNotFound
	}
	return records, nil
}

// SetActive marks every record of the prescription active or inactive
func (b *PrescriptionBrowser) SetActive(ctx context.Context, userID, prescriptionID string, active bool) error {
	n, err := b.store.SetPrescriptionActive(ctx, userID, prescriptionID, active)
	if err != nil {
		return fmt.Errorf("failed to update prescription: %w", err)
	}
	if n == 0 {
		return ErrPrescriptionNotFound
	}

	b.logger.Info("prescription toggled",
		zap.String("user_id", userID),
		zap.String("prescription_id", prescriptionID),
		zap.Bool("active", active),
		zap.Int64("records", n),
	)
	b.record(ctx, audit.OperationUpdate, userID, prescriptionID, map[string]interface{}{"active": active, "records": n})
	return nil
}

// Delete removes the prescription together with all of its medication records
func (b *PrescriptionBrowser) Delete(ctx context.Context, userID, prescriptionID string) error {
	n, err := b.store.DeletePrescription(ctx, userID, prescriptionID)
	if err != nil {
		return fmt.Errorf("failed to delete prescription: %w", err)
	}
	if n == 0 {
		return ErrPrescriptionNotFound
	}

	b.logger.Info("prescription deleted",
		zap.String("user_id", userID),
		zap.String("prescription_id", prescriptionID),
		zap.Int64("records", n),
	)
	b.record(ctx, audit.OperationDelete, userID, prescriptionID, map[string]interface{}{"records": n})
	return nil
}

func (b *PrescriptionBrowser) record(ctx context.Context, op audit.OperationType, userID, prescriptionID string, data map[string]interface{}) {
	if b.audit == nil {
		return
	}
	err := b.audit.Log(ctx, audit.AuditLog{
		UserID:         userID,
		OperationType:  op,
		ResourceType:   audit.ResourcePrescription,
		ResourceID:     prescriptionID,
		AdditionalData: data,
	})
	if err != nil {
		b.logger.Error("failed to audit prescription change", zap.Error(err), zap.String("prescription_id", prescriptionID))
	}
}
