package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

// PharmacyRepository reads the pharmacy point set
type PharmacyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPharmacyRepository creates a new PharmacyRepository
func NewPharmacyRepository(db *pgxpool.Pool, logger *zap.Logger) *PharmacyRepository {
	return &PharmacyRepository{
		db:     db,
		logger: logger,
	}
}

// ListAll returns every pharmacy in insertion order
func (r *PharmacyRepository) ListAll(ctx context.Context) ([]model.PharmacyPoint, error) {
	query := `
		SELECT name, address, latitude, longitude, chain, opening_hours, opening_days
		FROM pharmacies
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("failed to list pharmacies", zap.Error(err))
		return nil, fmt.Errorf("failed to list pharmacies: %w", err)
	}

	points, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.PharmacyPoint, error) {
		var p model.PharmacyPoint
		err := row.Scan(&p.Name, &p.Address, &p.Latitude, &p.Longitude, &p.Chain, &p.OpeningHours, &p.OpeningDays)
		return p, err
	})
	if err != nil {
		r.logger.Error("failed to scan pharmacies", zap.Error(err))
		return nil, fmt.Errorf("failed to scan pharmacies: %w", err)
	}

	return points, nil
}

// Create inserts a pharmacy
func (r *PharmacyRepository) Create(ctx context.Context, p model.PharmacyPoint) error {
	query := `
		INSERT INTO pharmacies (name, address, latitude, longitude, chain, opening_hours, opening_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	hours, days := p.OpeningHours, p.OpeningDays
	if hours == nil {
		hours = []string{}
	}
	if days == nil {
		days = []string{}
	}

	if _, err := r.db.Exec(ctx, query, p.Name, p.Address, p.Latitude, p.Longitude, p.Chain, hours, days); err != nil {
		r.logger.Error("failed to create pharmacy", zap.Error(err), zap.String("name", p.Name))
		return fmt.Errorf("failed to create pharmacy: %w", err)
	}

	return nil
}
