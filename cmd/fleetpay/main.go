package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/fleetpay-go/internal/config"
	"github.com/boddenberg/fleetpay-go/internal/handler"
	"github.com/boddenberg/fleetpay-go/internal/infra/cache"
	"github.com/boddenberg/fleetpay-go/internal/infra/configstore"
	"github.com/boddenberg/fleetpay-go/internal/infra/gateway"
	"github.com/boddenberg/fleetpay-go/internal/infra/gsheets"
	"github.com/boddenberg/fleetpay-go/internal/infra/observability"
	"github.com/boddenberg/fleetpay-go/internal/infra/resilience"
	"github.com/boddenberg/fleetpay-go/internal/infra/workbook"
	"github.com/boddenberg/fleetpay-go/internal/port"
	"github.com/boddenberg/fleetpay-go/internal/service"

	"go.uber.org/zap"
)

// rowsBackend is a rows provider that can report its own health.
type rowsBackend interface {
	port.RowsProvider
	Ping(ctx context.Context) error
}

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("rows_backend", cfg.RowsBackend),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("config_db_driver", cfg.ConfigDBDriver),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("riders_ttl", cfg.RidersTTL),
		zap.Duration("performance_ttl", cfg.PerformanceTTL),
		zap.Duration("debts_ttl", cfg.DebtsTTL),
		zap.Duration("config_ttl", cfg.ConfigTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Bool("auth_enabled", cfg.JWTSecret != ""),
	)
	if cfg.JWTSecret == "" {
		logger.Warn("FLEETPAY_JWT_SECRET not set, every request runs as admin")
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "fleetpay")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStart()

	var probes []handler.Probe

	// --- Cache ---
	var recordCache port.Cache
	switch cfg.CacheBackend {
	case config.CacheRedis:
		rc, err := cache.NewRedis(startCtx, cache.RedisConfig{
			URL:      cfg.RedisURL,
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		}, logger)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rc.Close()
		recordCache = rc
		probes = append(probes, handler.Probe{Name: "redis", Ping: rc.Ping})
		logger.Info("using redis record cache")
	default:
		recordCache = cache.New()
		logger.Info("using in-memory record cache")
	}

	// --- Rows provider ---
	guard := resilience.NewGuard(cfg.RowsBackend, cfg.Resilience())

	var rows rowsBackend
	switch cfg.RowsBackend {
	case config.BackendSheets:
		p, err := gsheets.New(startCtx, gsheets.Config{
			SpreadsheetID:   cfg.SheetsSpreadsheetID,
			CredentialsFile: cfg.SheetsCredentialsFile,
		}, guard, logger)
		if err != nil {
			logger.Fatal("failed to create sheets client", zap.Error(err))
		}
		rows = p
	case config.BackendGateway:
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		rows = gateway.NewClient(httpClient, cfg.GatewayURL, cfg.GatewayToken, guard, logger)
	default:
		rows = workbook.New(cfg.WorkbookPath, guard, logger)
	}
	probes = append(probes, handler.Probe{Name: rows.Name(), Ping: rows.Ping})
	logger.Info("rows provider ready", zap.String("backend", rows.Name()))

	// --- Config store ---
	store, err := configstore.Open(cfg.ConfigDBDriver, cfg.ConfigDBDSN, cfg.DefaultSettings(), logger)
	if err != nil {
		logger.Fatal("failed to open config store", zap.Error(err))
	}
	defer store.Close()
	probes = append(probes, handler.Probe{Name: "configstore", Ping: store.Ping})

	// --- Services ---
	owners := service.NewOwnershipResolver(rows, recordCache, cfg.RidersTTL, metrics, logger)
	aggregation := service.NewAggregationService(rows, owners, recordCache,
		service.AggregationTTLs{Performance: cfg.PerformanceTTL, Debts: cfg.DebtsTTL},
		cfg.DefaultTopN, metrics, logger)
	compensation := service.NewCompensationService(store, aggregation, recordCache,
		cfg.ConfigTTL, cfg.DefaultSettings(), metrics, logger)
	coordinator := service.NewInvalidationCoordinator(recordCache, metrics, logger)
	admin := service.NewAdminService(rows, store, owners, coordinator, logger)

	// --- Router ---
	router := handler.NewRouter(handler.Deps{
		Owners:       owners,
		Aggregation:  aggregation,
		Compensation: compensation,
		Admin:        admin,
		Cache:        recordCache,
		Metrics:      metrics,
		Probes:       probes,
		JWTSecret:    cfg.JWTSecret,
		DefaultTopN:  cfg.DefaultTopN,
		Logger:       logger,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
