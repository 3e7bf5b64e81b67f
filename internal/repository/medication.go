package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

const medicationColumns = `
	id, user_id, medication_id, medication_ref, name, dose_mg,
	frequency_hours, start_date, end_date, created_at, active,
	prescription_id, source_file
`

// MedicationRepository stores normalized medication records in Postgres
type MedicationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewMedicationRepository creates a new MedicationRepository
func NewMedicationRepository(db *pgxpool.Pool, logger *zap.Logger) *MedicationRepository {
	return &MedicationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a medication record
func (r *MedicationRepository) Create(ctx context.Context, rec *model.MedicationRecord) error {
	query := `
		INSERT INTO user_medications (` + medicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.MedicationID,
		rec.MedicationRef,
		rec.Name,
		rec.DoseMg,
		rec.FrequencyHours,
		rec.StartDate,
		rec.EndDate,
		rec.CreatedAt,
		rec.Active,
		rec.PrescriptionID,
		rec.SourceFile,
	)

	if err != nil {
		r.logger.Error("failed to create medication record",
			zap.Error(err),
			zap.String("record_id", rec.ID),
			zap.String("user_id", rec.UserID),
			zap.String("prescription_id", rec.PrescriptionID),
		)
		return fmt.Errorf("failed to create medication record: %w", err)
	}

	return nil
}

// FindByUserID retrieves all medication records of a user, newest first
func (r *MedicationRepository) FindByUserID(ctx context.Context, userID string) ([]model.MedicationRecord, error) {
	query := `
		SELECT ` + medicationColumns + `
		FROM user_medications
		WHERE user_id = $1
		ORDER BY created_at DESC, name ASC
	`

	return r.query(ctx, query, userID)
}

// FindByPrescription retrieves the records persisted from one prescription
func (r *MedicationRepository) FindByPrescription(ctx context.Context, userID, prescriptionID string) ([]model.MedicationRecord, error) {
	query := `
		SELECT ` + medicationColumns + `
		FROM user_medications
		WHERE user_id = $1 AND prescription_id = $2
		ORDER BY name ASC
	`

	return r.query(ctx, query, userID, prescriptionID)
}

func (r *MedicationRepository) query(ctx context.Context, query string, args ...any) ([]model.MedicationRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to find medication records", zap.Error(err))
		return nil, fmt.Errorf("failed to find medication records: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanMedicationRecord)
	if err != nil {
		r.logger.Error("failed to scan medication records", zap.Error(err))
		return nil, fmt.Errorf("failed to scan medication records: %w", err)
	}

	return records, nil
}

func scanMedicationRecord(row pgx.CollectableRow) (model.MedicationRecord, error) {
	var rec model.MedicationRecord
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.MedicationID,
		&rec.MedicationRef,
		&rec.Name,
		&rec.DoseMg,
		&rec.FrequencyHours,
		&rec.StartDate,
		&rec.EndDate,
		&rec.CreatedAt,
		&rec.Active,
		&rec.PrescriptionID,
		&rec.SourceFile,
	)
	return rec, err
}

// SetPrescriptionActive sets the active flag on every record of a prescription
// and returns the number of records changed
func (r *MedicationRepository) SetPrescriptionActive(ctx context.Context, userID, prescriptionID string, active bool) (int64, error) {
	query := `
		UPDATE user_medications
		SET active = $1
		WHERE user_id = $2 AND prescription_id = $3
	`

	result, err := r.db.Exec(ctx, query, active, userID, prescriptionID)
	if err != nil {
		r.logger.Error("failed to update prescription",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("prescription_id", prescriptionID),
		)
		return 0, fmt.Errorf("failed to update prescription: %w", err)
	}

	return result.RowsAffected(), nil
}

// DeletePrescription deletes every record of a prescription and returns the
// number of records removed
func (r *MedicationRepository) DeletePrescription(ctx context.Context, userID, prescriptionID string) (int64, error) {
	query := `DELETE FROM user_medications WHERE user_id = $1 AND prescription_id = $2`

	result, err := r.db.Exec(ctx, query, userID, prescriptionID)
	if err != nil {
		r.logger.Error("failed to delete prescription",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("prescription_id", prescriptionID),
		)
		return 0, fmt.Errorf("failed to delete prescription: %w", err)
	}

	return result.RowsAffected(), nil
}
