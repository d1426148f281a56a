package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/thumbforge/server/cmd/server/docs" // swagger docs

	// Domains
	"github.com/thumbforge/server/internal/domain/billing"
	"github.com/thumbforge/server/internal/domain/generation"

	// Inbound adapters (HTTP handlers)
	billinghttp "github.com/thumbforge/server/internal/adapter/inbound/http/billing"
	generationhttp "github.com/thumbforge/server/internal/adapter/inbound/http/generation"

	// Outbound adapters
	"github.com/thumbforge/server/internal/adapter/outbound/imageprovider"
	"github.com/thumbforge/server/internal/adapter/outbound/postgres"
	redisadapter "github.com/thumbforge/server/internal/adapter/outbound/redis"
	s3adapter "github.com/thumbforge/server/internal/adapter/outbound/s3"
	"github.com/thumbforge/server/internal/port/outbound"

	// Shared infrastructure
	"github.com/thumbforge/server/internal/infra/config"
	"github.com/thumbforge/server/internal/infra/httpclient"
	sharedcache "github.com/thumbforge/server/internal/shared/cache"
	"github.com/thumbforge/server/internal/shared/database"
	"github.com/thumbforge/server/internal/shared/logger"
	"github.com/thumbforge/server/internal/utils/metrics"
	"github.com/thumbforge/server/internal/utils/middleware"
)

// App wires configuration, infrastructure, domains and HTTP handlers.
type App struct {
	config  *config.Config
	db      *gorm.DB
	redis   goredis.UniversalClient
	router  *gin.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics

	// Domain services
	billingDomain    *billing.Domain
	generationDomain *generation.Domain

	// HTTP handlers (inbound adapters)
	creditsHandler    *billinghttp.CreditsHandler
	generationHandler *generationhttp.Handler

	// Cleanup functions
	cleanupFuncs []func()
}

// LoadConfig loads application configuration.
func LoadConfig() (*config.Config, error) {
	return config.Load()
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	zapLog, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	app := &App{
		config: cfg,
		logger: zapLog,
	}

	if err := cfg.Validate(); err != nil {
		// Unbound providers surface per request as MISCONFIGURED.
		zapLog.Warn("configuration incomplete", zap.Error(err))
	}

	if cfg.Metrics.Enabled {
		app.metrics = metrics.New(cfg.Metrics.Namespace)
	}

	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	if err := app.initDomains(); err != nil {
		return nil, fmt.Errorf("init domains: %w", err)
	}

	app.router = app.setupRouter()
	app.registerRoutes()

	return app, nil
}

// initInfrastructure initializes database and cache connections.
func (a *App) initInfrastructure() error {
	db, err := database.New(&a.config.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	a.db = db

	if a.config.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	// Redis is optional; without it every balance check reads the database.
	if a.config.Redis.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&a.config.Redis)
		if err != nil {
			a.logger.Warn("Redis connection failed, continuing without cache", zap.Error(err))
		} else {
			a.redis = redisClient
		}
	}

	return nil
}

// initDomains initializes domain services with their adapters.
func (a *App) initDomains() error {
	a.initBillingDomain()

	if err := a.initGenerationDomain(); err != nil {
		return fmt.Errorf("init generation domain: %w", err)
	}
	return nil
}

// initBillingDomain initializes the billing domain with its adapters.
func (a *App) initBillingDomain() {
	accountDB := postgres.NewCreditAccountDBAdapter(a.db)
	usageDB := postgres.NewUsageRecordDBAdapter(a.db)

	var balanceCache outbound.CreditBalanceCachePort
	if a.redis != nil {
		balanceCache = redisadapter.NewBalanceCacheAdapter(a.redis)
	}

	a.billingDomain = billing.NewBillingDomain(
		accountDB,
		usageDB,
		balanceCache,
		&billing.Config{BalanceCacheTTL: a.config.Billing.BalanceCacheTTL},
		a.logger,
	)
	a.creditsHandler = billinghttp.NewCreditsHandler(a.billingDomain, a.logger)
}

// initGenerationDomain initializes the generation domain with its adapters.
func (a *App) initGenerationDomain() error {
	httpClient := httpclient.New(&a.config.HTTPClient)
	a.cleanupFuncs = append(a.cleanupFuncs, httpClient.CloseIdleConnections)

	var provider outbound.ImageProviderPort
	if a.config.Provider.BaseURL != "" && a.config.Provider.APIKey != "" {
		provider = imageprovider.NewOpenAIAdapter(httpClient, &a.config.Provider)
	}

	var storage outbound.ObjectStoragePort
	if a.config.Storage.Bucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := s3adapter.NewClient(ctx, &a.config.Storage, httpClient)
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		storage = s3adapter.NewObjectStorageAdapter(client, a.config.Storage.Bucket)
	}

	genCfg := a.config.Generation
	a.generationDomain = generation.NewDomain(
		postgres.NewGenerationDBAdapter(a.db),
		postgres.NewTemplateDBAdapter(a.db),
		provider,
		storage,
		a.billingDomain,
		&generation.Config{
			BatchSize:         genCfg.BatchSize,
			MaxVariants:       genCfg.MaxVariants,
			MaxSourceImages:   genCfg.MaxSourceImages,
			MaxOutputBytes:    genCfg.MaxOutputBytes,
			CreditsPerVariant: a.config.Billing.CreditsPerVariant,
			ChargePolicy:      generation.ChargePolicy(genCfg.ChargePolicy),
			FinalizeTimeout:   genCfg.FinalizeTimeout,
		},
		a.metrics,
		a.logger,
	)

	a.generationHandler = generationhttp.NewHandler(a.generationDomain, &generationhttp.Config{
		HeartbeatInterval:  genCfg.HeartbeatInterval,
		CancelOnDisconnect: genCfg.CancelOnDisconnect,
		MaxBodyBytes:       a.config.Server.MaxBodyBytes,
	}, a.logger)

	return nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.NoRoute(middleware.NoRoute())
	r.NoMethod(middleware.NoMethod())

	// Apply global middleware
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(a.config.CORS.AllowOrigins))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", a.ready)

	if a.metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	return r
}

// ready reports whether the database (and Redis, when configured) answer.
func (a *App) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok"}
	status := http.StatusOK

	if sqlDB, err := a.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if a.redis != nil {
		checks["redis"] = "ok"
		if err := a.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, checks)
}

// registerRoutes registers all API routes.
func (a *App) registerRoutes() {
	v1 := a.router.Group("/api/v1")

	protected := v1.Group("")
	protected.Use(middleware.RequireAuth(middleware.NewHMACValidator(a.config.Auth.JWTSecret)))

	a.generationHandler.RegisterRoutes(protected)
	a.creditsHandler.RegisterRoutes(protected)
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Stop stops the application and releases resources.
func (a *App) Stop() {
	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if a.redis != nil {
		_ = sharedcache.Close(a.redis)
	}

	if a.db != nil {
		_ = database.Close(a.db)
	}

	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
