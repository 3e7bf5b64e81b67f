package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

// CatalogRepository reads the canonical medication catalog
type CatalogRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewCatalogRepository creates a new CatalogRepository
func NewCatalogRepository(db *pgxpool.Pool, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:     db,
		logger: logger,
	}
}

// FindByName returns the first catalog entry, in catalog order, whose name
// equals name exactly
func (r *CatalogRepository) FindByName(ctx context.Context, name string) (*model.CatalogEntry, error) {
	query := `
		SELECT id, name, position
		FROM medication_catalog
		WHERE name = $1
		ORDER BY position ASC
		LIMIT 1
	`

	var entry model.CatalogEntry
	err := r.db.QueryRow(ctx, query, name).Scan(&entry.ID, &entry.Name, &entry.Position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("failed to find catalog entry", zap.Error(err), zap.String("name", name))
		return nil, fmt.Errorf("failed to find catalog entry: %w", err)
	}

	return &entry, nil
}

// Add inserts or replaces a catalog entry
func (r *CatalogRepository) Add(ctx context.Context, entry model.CatalogEntry) error {
	query := `
		INSERT INTO medication_catalog (id, name, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, position = EXCLUDED.position
	`

	if _, err := r.db.Exec(ctx, query, entry.ID, entry.Name, entry.Position); err != nil {
		r.logger.Error("failed to add catalog entry", zap.Error(err), zap.String("catalog_id", entry.ID))
		return fmt.Errorf("failed to add catalog entry: %w", err)
	}

	return nil
}
