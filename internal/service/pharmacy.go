package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vcscsvcscs/rxtag/internal/geo"
	"github.com/vcscsvcscs/rxtag/internal/metrics"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

// PharmacySource loads the full pharmacy point set
type PharmacySource interface {
	ListAll(ctx context.Context) ([]model.PharmacyPoint, error)
}

// LocatorConfig holds ranking defaults and the point set cache lifetime
type LocatorConfig struct {
	RadiusMeters float64
	K            int
	CacheTTL     time.Duration
}

// NearbyQuery is one location update. Nil Radius or K use the configured defaults.
type NearbyQuery struct {
	Location geo.Location
	Radius   *float64
	K        *int
}

// PharmacyLocator ranks a cached pharmacy point set around the user
type PharmacyLocator struct {
	source  PharmacySource
	cfg     LocatorConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	points   []model.PharmacyPoint
	loadedAt time.Time
	loaded   bool
}

// NewPharmacyLocator creates a PharmacyLocator
func NewPharmacyLocator(source PharmacySource, cfg LocatorConfig, m *metrics.Metrics, logger *zap.Logger) *PharmacyLocator {
	return &PharmacyLocator{
		source:  source,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Nearby ranks the pharmacy point set around q.Location
func (l *PharmacyLocator) Nearby(ctx context.Context, q NearbyQuery) (geo.Ranking, error) {
	if !q.Location.Valid() {
		return geo.Ranking{}, geo.ErrInvalidLocation
	}

	points, err := l.pointSet(ctx)
	if err != nil {
		return geo.Ranking{}, err
	}

	radius := l.cfg.RadiusMeters
	if q.Radius != nil {
		radius = *q.Radius
	}
	k := l.cfg.K
	if q.K != nil {
		k = *q.K
	}

	started := time.Now()
	ranking, err := geo.Rank(q.Location, points, radius, k)
	if err != nil {
		return geo.Ranking{}, err
	}
	l.metrics.RecordRank(time.Since(started), ranking.Skipped)

	if ranking.Skipped > 0 {
		l.logger.Debug("pharmacies skipped for invalid coordinates", zap.Int("skipped", ranking.Skipped))
	}
	return ranking, nil
}

// Refresh reloads the point set from the source
func (l *PharmacyLocator) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reloadLocked(ctx)
}

func (l *PharmacyLocator) pointSet(ctx context.Context) ([]model.PharmacyPoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded && l.now().Sub(l.loadedAt) < l.cfg.CacheTTL {
		return l.points, nil
	}

	if err := l.reloadLocked(ctx); err != nil {
		if l.loaded {
			l.logger.Warn("serving stale pharmacy set", zap.Error(err), zap.Time("loaded_at", l.loadedAt))
			return l.points, nil
		}
		return nil, err
	}
	return l.points, nil
}

func (l *PharmacyLocator) reloadLocked(ctx context.Context) error {
	points, err := l.source.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pharmacies: %w", err)
	}

	l.points = points
	l.loadedAt = l.now()
	l.loaded = true
	l.logger.Info("pharmacy set loaded", zap.Int("pharmacies", len(points)))
	return nil
}
