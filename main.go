package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/vcscsvcscs/rxtag/internal/audit"
	"github.com/vcscsvcscs/rxtag/internal/azure"
	"github.com/vcscsvcscs/rxtag/internal/cache"
	"github.com/vcscsvcscs/rxtag/internal/config"
	"github.com/vcscsvcscs/rxtag/internal/handler"
	"github.com/vcscsvcscs/rxtag/internal/metrics"
	"github.com/vcscsvcscs/rxtag/internal/middleware"
	"github.com/vcscsvcscs/rxtag/internal/nfc"
	"github.com/vcscsvcscs/rxtag/internal/repository"
	"github.com/vcscsvcscs/rxtag/internal/resilience"
	"github.com/vcscsvcscs/rxtag/internal/security"
	"github.com/vcscsvcscs/rxtag/internal/service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// recordStore is everything the ingestor and the browser need from a medication store
type recordStore interface {
	service.RecordStore
	service.PrescriptionStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("store_driver", cfg.Store.Driver),
	)

	ctx := context.Background()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("Successfully connected to database")

	if err := repository.Migrate(ctx, pool); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	checks := map[string]handler.CheckFunc{"postgres": pool.Ping}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Medication stores
	var (
		catalog cache.CatalogStore
		records recordStore
	)
	switch cfg.Store.Driver {
	case config.DriverMongo:
		client, db, err := repository.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
			}
		}()
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			logger.Fatal("Failed to create MongoDB indexes", zap.Error(err))
		}
		catalog = repository.NewMongoCatalogRepository(db, logger)
		records = repository.NewMongoMedicationRepository(db, logger)
		checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		logger.Info("Successfully connected to MongoDB", zap.String("database", cfg.Mongo.Database))
	default:
		catalog = repository.NewCatalogRepository(pool, logger)
		records = repository.NewMedicationRepository(pool, logger)
	}

	var lookup service.CatalogLookup = catalog
	if cfg.CacheEnabled() {
		rdb, err := cache.NewClient(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
		lookup = cache.NewCachedCatalog(catalog, rdb, cfg.Redis.TTL, logger)
		checks["redis"] = redisCheck(rdb)
		logger.Info("Catalog cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	breaker := resilience.New(resilience.Config{
		Name:             "catalog",
		MaxRequests:      cfg.Breaker.MaxRequests,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
	}, m, logger)

	// Services
	auditLogger := audit.NewLogger(pool, logger)
	resolver := service.NewMedicationResolver(lookup, breaker, m, logger)

	opts := []service.IngestorOption{
		service.WithLocation(cfg.Location()),
		service.WithMaxConcurrency(cfg.Ingest.MaxConcurrency),
		service.WithAudit(auditLogger),
		service.WithMetrics(m),
	}

	mimeType := nfc.MimeType(cfg.NFC.AppID)

	var archive *service.TagArchive
	if cfg.ArchiveEnabled() {
		archive, err = newTagArchive(cfg, mimeType, logger)
		if err != nil {
			logger.Fatal("Failed to initialize tag archive", zap.Error(err))
		}
		opts = append(opts, service.WithArchive(archive))
		logger.Info("Tag archive enabled", zap.String("container", cfg.Azure.Storage.ArchiveContainer))
	}

	ingestor := service.NewIngestor(resolver, records, logger, opts...)
	browser := service.NewPrescriptionBrowser(records, auditLogger, logger)
	locator := service.NewPharmacyLocator(repository.NewPharmacyRepository(pool, logger), service.LocatorConfig{
		RadiusMeters: cfg.Geo.RadiusMeters,
		K:            cfg.Geo.K,
		CacheTTL:     cfg.Geo.CacheTTL,
	}, m, logger)
	if err := locator.Refresh(ctx); err != nil {
		logger.Warn("Failed to preload pharmacies", zap.Error(err))
	}

	session := nfc.NewSession(mimeType, m, logger)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.MetricsMiddleware(m))
	r.Use(middleware.RequestLoggingMiddleware(logger))
	r.Use(middleware.ErrorLoggingMiddleware(logger))

	handler.RegisterRoutes(r, handler.Handlers{
		NFC:          handler.NewNFCHandler(session, ingestor, archive, logger),
		Ingest:       handler.NewIngestHandler(ingestor, logger),
		Prescription: handler.NewPrescriptionHandler(browser, logger),
		Pharmacy:     handler.NewPharmacyHandler(locator, logger),
		Health:       handler.NewHealthHandler(checks, logger),
		Metrics:      metrics.Handler(reg),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Server.Environment == "production" {
		zcfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Logging.Format == "console" || cfg.Logging.Format == "json" {
		zcfg.Encoding = cfg.Logging.Format
	}

	return zcfg.Build()
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Database.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.Database.MaxIdleConns)
	}
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func newTagArchive(cfg *config.Config, mimeType string, logger *zap.Logger) (*service.TagArchive, error) {
	key, err := cfg.ArchiveKeyBytes()
	if err != nil {
		return nil, err
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		return nil, err
	}

	storage := cfg.Azure.Storage
	var blob azure.BlobStorage
	if storage.ConnectionString != "" {
		blob, err = azure.NewBlobStorageClientFromConnectionString(storage.ConnectionString, storage.ArchiveContainer, logger)
	} else {
		blob, err = azure.NewBlobStorageClient(storage.AccountName, storage.AccountKey, storage.ArchiveContainer, logger)
	}
	if err != nil {
		return nil, err
	}

	return service.NewTagArchive(blob, enc, mimeType, logger), nil
}

func redisCheck(rdb *redis.Client) handler.CheckFunc {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
