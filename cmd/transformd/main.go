// Command transformd wires the full incremental transform engine together:
// the embedded analytical engine, the durable watermark store, the partition
// cache, the observability stack, the C8 strategy selector, and the C11
// orchestrator that ties them all into the execute() protocol.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sqlflowx/transformengine/config"
	"github.com/sqlflowx/transformengine/internal/api"
	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/lockregistry"
	"github.com/sqlflowx/transformengine/internal/middleware"
	"github.com/sqlflowx/transformengine/internal/monitoring"
	"github.com/sqlflowx/transformengine/internal/optimizer"
	"github.com/sqlflowx/transformengine/internal/partition"
	"github.com/sqlflowx/transformengine/internal/quality"
	"github.com/sqlflowx/transformengine/internal/strategy"
	"github.com/sqlflowx/transformengine/internal/transform"
	"github.com/sqlflowx/transformengine/internal/watermark"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := monitoring.NewLogger(cfg.Monitoring.ServiceName)
	tracer := monitoring.NewTracer(cfg.Monitoring.ServiceName)
	metrics := monitoring.NewMetricsCollector(cfg.Monitoring.MetricsPerSeries, cfg.Monitoring.MetricsRetention)
	alerts := monitoring.NewAlertManager(metrics)
	observe := monitoring.NewObservabilityManager(tracer, logger)

	logger.Info("starting transform engine", map[string]any{
		"environment": cfg.Environment,
		"port":        cfg.Port,
	})

	eng, err := engine.NewSQLiteClient(cfg.Engine.DataPath)
	if err != nil {
		log.Fatalf("failed to open embedded engine at %s: %v", cfg.Engine.DataPath, err)
	}
	defer eng.Close()

	migrator, err := watermark.NewMigrator(cfg.Watermark.DSN(), logger)
	if err != nil {
		log.Fatalf("failed to connect watermark migrator: %v", err)
	}
	if err := migrator.Init(); err != nil {
		log.Fatalf("failed to migrate watermark schema: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgPool, err := pgxpool.New(ctx, cfg.Watermark.DSN())
	if err != nil {
		log.Fatalf("failed to connect watermark pool: %v", err)
	}
	defer pgPool.Close()

	wmStore := watermark.NewStore(pgPool, logger)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	var partitions *partition.Manager
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, partition manager running without tier-2 cache", map[string]any{"error": err.Error()})
		partitions = partition.NewManager(eng, nil, logger)
	} else {
		tier := partition.NewRedisCacheTier(redisClient, cfg.Redis.KeyPrefix, cfg.Partition.CacheTTL)
		partitions = partition.NewManager(eng, tier, logger)
	}
	qualityEngine := quality.NewEngine(eng, cfg.Quality.CacheTTL)
	selector := strategy.NewSelector(wmStore, logger)
	locks := lockregistry.NewRegistry()

	monitor := monitoring.NewRealTimeMonitor(cfg.Monitoring.RealTimeInterval, metrics, alerts, logger)
	monitor.Start(ctx)
	defer monitor.Stop()

	orchestrator := &transform.Orchestrator{
		Engine:     eng,
		Locks:      locks,
		Watermarks: wmStore,
		Partitions: partitions,
		Observe:    observe,
		Metrics:    metrics,
		Quality:    qualityEngine,
		Selector:   selector,
		Optimizer:  optimizer.NewPerformanceMonitor(),
		HolderID:   hostnameOrDefault(),
	}
	handler := api.NewHandler(orchestrator)
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		RequestsPerMinute: cfg.RateLimit.RequestsPerSecond * 60,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   5 * time.Minute,
		ClientTimeout:     10 * time.Minute,
	})

	limited := http.NewServeMux()
	limited.HandleFunc("/transform", handler.HandleTransform)
	limited.HandleFunc("/transform/auto", handler.HandleAutoStrategyTransform)

	mux := http.NewServeMux()
	mux.Handle("/transform", limiter.Middleware(limited))
	mux.Handle("/transform/auto", limiter.Middleware(limited))
	mux.HandleFunc("/healthz", handler.HandleHealth)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		logger.Info("listening", map[string]any{"port": cfg.Port})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stopExport := startExportLoop(ctx, cfg, metrics, alerts, tracer, logger)
	defer stopExport()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down transform engine", nil)
	_ = srv.Shutdown(context.Background())
}

func hostnameOrDefault() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "transformd"
	}
	return name
}

// startExportLoop periodically writes an observability snapshot to disk,
// grounded on the original source's export_observability_data (SPEC_FULL §15).
func startExportLoop(ctx context.Context, cfg *config.Config, metrics *monitoring.MetricsCollector, alerts *monitoring.AlertManager, tracer *monitoring.Tracer, logger *monitoring.Logger) func() {
	ticker := time.NewTicker(cfg.Monitoring.ExportInterval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			case <-ticker.C:
				snap := monitoring.Export(metrics, alerts, tracer)
				if path, err := monitoring.WriteExportFile(cfg.Monitoring.ExportPath, snap); err != nil {
					logger.Error("failed to write observability export", err, nil)
				} else {
					logger.Info("wrote observability export", map[string]any{"path": path})
				}
			}
		}
	}()

	return func() {
		<-done
	}
}
