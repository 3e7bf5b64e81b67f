// Command seed loads the medication catalog and pharmacy list from a JSON
// fixture into the configured stores.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vcscsvcscs/rxtag/internal/config"
	"github.com/vcscsvcscs/rxtag/internal/repository"
	"github.com/vcscsvcscs/rxtag/pkg/model"
	"go.uber.org/zap"
)

// fixture is the seed file layout
type fixture struct {
	Catalog    []model.CatalogEntry  `json:"catalog"`
	Pharmacies []model.PharmacyPoint `json:"pharmacies"`
}

type catalogWriter interface {
	Add(ctx context.Context, entry model.CatalogEntry) error
}

type pharmacyWriter interface {
	Create(ctx context.Context, p model.PharmacyPoint) error
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if len(os.Args) != 2 {
		logger.Fatal("Usage: seed <fixture.json>")
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		logger.Fatal("Failed to open fixture", zap.Error(err))
	}
	defer f.Close()

	fx, err := loadFixture(f)
	if err != nil {
		logger.Fatal("Failed to read fixture", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	var catalog catalogWriter = repository.NewCatalogRepository(pool, logger)
	if cfg.Store.Driver == config.DriverMongo {
		client, db, err := repository.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer client.Disconnect(context.Background())
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			logger.Fatal("Failed to create MongoDB indexes", zap.Error(err))
		}
		catalog = repository.NewMongoCatalogRepository(db, logger)
	}

	if err := seed(ctx, fx, catalog, repository.NewPharmacyRepository(pool, logger)); err != nil {
		logger.Fatal("Seeding failed", zap.Error(err))
	}

	logger.Info("Seeding completed",
		zap.Int("catalog_entries", len(fx.Catalog)),
		zap.Int("pharmacies", len(fx.Pharmacies)),
		zap.String("store_driver", cfg.Store.Driver),
	)
}

// loadFixture decodes a fixture. Catalog entries without a position keep
// their file order.
func loadFixture(r io.Reader) (fixture, error) {
	var fx fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fx); err != nil {
		return fixture{}, fmt.Errorf("failed to decode fixture: %w", err)
	}

	for i := range fx.Catalog {
		if fx.Catalog[i].ID == "" || fx.Catalog[i].Name == "" {
			return fixture{}, fmt.Errorf("catalog entry %d needs an id and a name", i)
		}
		if fx.Catalog[i].Position == 0 {
			fx.Catalog[i].Position = i + 1
		}
	}
	return fx, nil
}

func seed(ctx context.Context, fx fixture, catalog catalogWriter, pharmacies pharmacyWriter) error {
	for _, entry := range fx.Catalog {
		if err := catalog.Add(ctx, entry); err != nil {
			return fmt.Errorf("failed to add catalog entry %s: %w", entry.ID, err)
		}
	}
	for _, p := range fx.Pharmacies {
		if err := pharmacies.Create(ctx, p); err != nil {
			return fmt.Errorf("failed to add pharmacy %s: %w", p.Name, err)
		}
	}
	return nil
}
