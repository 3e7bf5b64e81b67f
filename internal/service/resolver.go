package service

import (
	"context"
	"errors"

	"github.com/vcscsvcscs/rxtag/internal/metrics"
	"github.com/vcscsvcscs/rxtag/internal/repository"
	"github.com/vcscsvcscs/rxtag/internal/resilience"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

// CatalogRefPrefix prefixes every catalog reference path
const CatalogRefPrefix = "medications/"

// Lookup results reported to metrics
const (
	lookupFound       = "found"
	lookupUnknown     = "unknown"
	lookupError       = "error"
	lookupCircuitOpen = "circuit_open"
)

// CatalogLookup finds catalog entries by exact name
type CatalogLookup interface {
	FindByName(ctx context.Context, name string) (*model.CatalogEntry, error)
}

// Resolution is the outcome of resolving a drug name against the catalog
type Resolution struct {
	CatalogID  string `json:"catalog_id"`
	CatalogRef string `json:"catalog_ref"`
	Found      bool   `json:"found"`
}

func unknownResolution() Resolution {
	return Resolution{
		CatalogID:  model.UnknownMedicationID,
		CatalogRef: CatalogRefPrefix + model.UnknownMedicationID,
	}
}

// MedicationResolver cross-references drug names against the catalog
type MedicationResolver struct {
	catalog CatalogLookup
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewMedicationResolver creates a resolver. breaker and m may be nil.
func NewMedicationResolver(catalog CatalogLookup, breaker *resilience.CircuitBreaker, m *metrics.Metrics, logger *zap.Logger) *MedicationResolver {
	return &MedicationResolver{
		catalog: catalog,
		breaker: breaker,
		metrics: m,
		logger:  logger,
	}
}

// Resolve maps drugName to a catalog entry by exact, case-sensitive match.
// It never fails: misses, store errors and an open circuit all resolve to the
// unknown sentinel.
func (r *MedicationResolver) Resolve(ctx context.Context, drugName string) Resolution {
	entry, err := r.lookup(ctx, drugName)
	switch {
	case err == nil && entry != nil:
		r.metrics.RecordCatalogLookup(lookupFound)
		return Resolution{
			CatalogID:  entry.ID,
			CatalogRef: CatalogRefPrefix + entry.ID,
			Found:      true,
		}
	case err == nil:
		r.metrics.RecordCatalogLookup(lookupUnknown)
	case resilience.IsOpen(err):
		r.metrics.RecordCatalogLookup(lookupCircuitOpen)
		r.logger.Warn("catalog circuit open, medication left unresolved", zap.String("drug", drugName))
	default:
		r.metrics.RecordCatalogLookup(lookupError)
		r.logger.Warn("catalog lookup failed, medication left unresolved",
			zap.String("drug", drugName),
			zap.Error(err),
		)
	}

	return unknownResolution()
}

// lookup returns (nil, nil) for a clean miss
func (r *MedicationResolver) lookup(ctx context.Context, name string) (*model.CatalogEntry, error) {
	find := func() (interface{}, error) {
		entry, err := r.catalog.FindByName(ctx, name)
		if errors.Is(err, repository.ErrNotFound) {
			return (*model.CatalogEntry)(nil), nil
		}
		return entry, err
	}

	if r.breaker == nil {
		v, err := find()
		if err != nil {
			return nil, err
		}
		return v.(*model.CatalogEntry), nil
	}

	v, err := r.breaker.Execute(ctx, find)
	if err != nil {
		return nil, err
	}
	return v.(*model.CatalogEntry), nil
}
