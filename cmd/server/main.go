package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	appservice "github.com/turtacn/apikeyd/internal/application/service"
	"github.com/turtacn/apikeyd/internal/config"
	"github.com/turtacn/apikeyd/internal/domain/models"
	domainservice "github.com/turtacn/apikeyd/internal/domain/service"
	"github.com/turtacn/apikeyd/internal/infrastructure/analytics"
	"github.com/turtacn/apikeyd/internal/infrastructure/cache"
	"github.com/turtacn/apikeyd/internal/infrastructure/consumers"
	"github.com/turtacn/apikeyd/internal/infrastructure/crypto"
	"github.com/turtacn/apikeyd/internal/infrastructure/monitoring"
	"github.com/turtacn/apikeyd/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/apikeyd/internal/infrastructure/persistence/redis"
	"github.com/turtacn/apikeyd/internal/infrastructure/ratelimit"
	"github.com/turtacn/apikeyd/internal/infrastructure/usagelimit"
	"github.com/turtacn/apikeyd/internal/interfaces/http"
	"github.com/turtacn/apikeyd/internal/interfaces/http/handlers"
	"github.com/turtacn/apikeyd/pkg/logger"
)

const (
	shutdownTimeout       = 30 * time.Second
	memoryLimiterInterval = time.Minute
	memoryLimiterMaxIdle  = 10 * time.Minute
)

func main() {
	// Logger for startup
	startupLogger, err := monitoring.NewZapLogger(&config.LogConfig{Level: "info"})
	if err != nil {
		log.Fatalf("Failed to create startup logger: %v", err)
	}

	// Load config
	cfg, v, err := config.LoadConfig(startupLogger)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	config.Watch(v, appLogger, func(next *config.Config) {
		if err := appLogger.SetLevel(next.Log.Level); err != nil {
			appLogger.Warn(context.Background(), "Ignoring invalid log level", logger.String("level", next.Log.Level))
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error(context.Background(), "Server exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, appLogger logger.Logger) error {
	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	// Initialize tracing
	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, appLogger)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer shutdownWithTimeout(tracing.Shutdown)

	// Initialize database
	db, err := postgres.NewDBConnection(ctx, &cfg.Database, appLogger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	keyRepo := postgres.NewKeyRepository(db.Gorm(), cfg.Database.QueryTimeout, appLogger)
	workspaceRepo := postgres.NewWorkspaceRepository(db.SQL(), cfg.Database.QueryTimeout, appLogger)

	// Initialize caches
	hasher := crypto.NewHasher(cfg.Cache.HashMemoMaxEntries, cfg.Cache.HashMemoTTL)
	recordCache := cache.NewSWRCache[*models.VerificationRecord](cache.Config{
		Namespace: "verification_record",
		FreshTTL:  cfg.Cache.FreshTTL,
		StaleTTL:  cfg.Cache.StaleTTL,
		Recorder:  metrics,
	}, appLogger)

	// Cache invalidation fan-out
	if cfg.Invalidation.Enabled {
		invalidation := cfg.Invalidation
		invalidation.GroupID = instanceGroupID(invalidation.GroupID)
		consumer := consumers.NewInvalidationConsumer(&invalidation, recordCache, appLogger)
		defer consumer.Close()
		go consumer.Run(ctx)
	}

	// Initialize rate limiter
	readiness := map[string]handlers.Pinger{"database": db}
	var rateLimiter domainservice.RateLimitService
	switch cfg.RateLimit.Backend {
	case "redis":
		redisConn, err := redis.NewRedisConnection(ctx, &cfg.Redis, appLogger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisConn.Close()
		readiness["redis"] = redisConn

		rlConfig := ratelimit.DefaultRateLimiterConfig()
		rlConfig.Timeout = cfg.RateLimit.Timeout
		rateLimiter = ratelimit.NewRedisRateLimiter(redisConn.Client(), rlConfig, appLogger)
	default:
		memoryLimiter := ratelimit.NewMemoryRateLimiter(nil)
		go memoryLimiter.RunCleanup(ctx, memoryLimiterInterval, memoryLimiterMaxIdle)
		rateLimiter = memoryLimiter
		appLogger.Warn(ctx, "Using the in-process rate limiter; limits are not shared between instances")
	}

	// Initialize analytics
	var sink domainservice.AnalyticsSink
	switch cfg.Analytics.Sink {
	case "kafka":
		producer := analytics.NewKafkaProducer(&cfg.Analytics, metrics, appLogger)
		defer producer.Close()
		sink = producer
	default:
		sink = analytics.NewLogSink(appLogger)
	}

	// Initialize application services
	keyService := appservice.NewKeyAppService(appservice.KeyAppServiceDeps{
		Hasher:       hasher,
		Cache:        recordCache,
		Keys:         keyRepo,
		Workspaces:   workspaceRepo,
		RateLimiter:  rateLimiter,
		UsageLimiter: usagelimit.NewGormUsageLimiter(db.Gorm(), cfg.UsageLimit.Timeout, appLogger),
		Analytics:    sink,
		Metrics:      metrics,
		Tracer:       tracing,
		Logger:       appLogger,
	}, appservice.KeyAppServiceConfig{
		FetchAttempts:    cfg.Cache.FetchAttempts,
		AnalyticsTimeout: cfg.Analytics.Timeout,
	})

	// Initialize HTTP handlers and router
	router := http.NewRouter(cfg, appLogger, http.RouterDeps{
		KeyHandler:    handlers.NewKeyHandler(keyService, cfg.Server.Region),
		HealthHandler: handlers.NewHealthHandler(readiness, 2*time.Second, appLogger),
		Tracer:        tracing,
		Recorder:      metrics,
		Gatherer:      registry,
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- router.Start() }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown: stop accepting requests, then flush pending analytics
	// before the sinks close.
	appLogger.Info(context.Background(), "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := router.Stop(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server forced to shutdown", err)
	}
	if err := keyService.Drain(shutdownCtx); err != nil {
		appLogger.Warn(shutdownCtx, "Analytics did not drain before the deadline", logger.Error(err))
	}
	return nil
}

func shutdownWithTimeout(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = fn(ctx)
}

// instanceGroupID suffixes the consumer group with the host name so that every
// instance receives every invalidation.
func instanceGroupID(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid%d", os.Getpid())
	}
	return base + "-" + host
}
