package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	cacheapp "github.com/medpoint/backend/internal/application/cache"
	deviceapp "github.com/medpoint/backend/internal/application/device"
	syncapp "github.com/medpoint/backend/internal/application/sync"
	"github.com/medpoint/backend/internal/domain/cache"
	syncdomain "github.com/medpoint/backend/internal/domain/sync"
	"github.com/medpoint/backend/internal/infrastructure/auth"
	infracache "github.com/medpoint/backend/internal/infrastructure/cache"
	"github.com/medpoint/backend/internal/infrastructure/config"
	"github.com/medpoint/backend/internal/infrastructure/logger"
	"github.com/medpoint/backend/internal/infrastructure/persistence"
	"github.com/medpoint/backend/internal/infrastructure/scheduler"
	"github.com/medpoint/backend/internal/infrastructure/telemetry"
	"github.com/medpoint/backend/internal/interfaces/http/handler"
	"github.com/medpoint/backend/internal/interfaces/http/middleware"
	"github.com/medpoint/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

//	@title			MedPoint Sync API
//	@version		1.0
//	@description	Offline operation synchronization backend for clinic devices

//	@contact.name	API Support
//	@contact.url	https://github.com/medpoint/backend

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting MedPoint Sync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Register query tracing on the gorm connection
	if tracerProvider.IsEnabled() {
		dbTracing := telemetry.NewDBTracingPlugin(telemetry.DefaultDBTracingConfig(), log)
		if err := dbTracing.Register(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}

	// Initialize repositories
	operationRepo := persistence.NewGormSyncOperationRepository(db.DB)
	conflictRepo := persistence.NewGormSyncConflictRepository(db.DB)
	recordRepo := persistence.NewGormEntityRecordRepository(db.DB)
	cacheRepo := persistence.NewGormCacheEntryRepository(db.DB)
	deviceRepo := persistence.NewGormDeviceSyncStateRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// TTL policy from config: per-type lifetimes with a default fallback
	ttlPolicy := cache.NewTTLPolicy(cfg.Cache.DefaultTTL)
	for entityType, ttl := range cfg.Cache.PerTypeTTL {
		ttlPolicy.PerType[entityType] = ttl
	}

	// Conflict resolver with the built-in strategies
	resolver := syncapp.NewResolver(syncdomain.NewStrategyRegistry(), log)

	// Initialize application services
	syncService := syncapp.NewSyncService(
		operationRepo, conflictRepo, recordRepo, deviceRepo,
		txScope, resolver, log,
		syncapp.Options{
			MaxBatchSize:     cfg.Sync.MaxBatchSize,
			DefaultPullLimit: cfg.Sync.DefaultPullLimit,
			MaxPullLimit:     cfg.Sync.MaxPullLimit,
			RetryMaxAttempts: cfg.Sync.RetryMaxAttempts,
			RetryBatchLimit:  cfg.Sync.RetryBatchLimit,
			IdempotencyTTL:   cfg.Sync.IdempotencyTTL,
		},
	)
	fullSyncService := syncapp.NewFullSyncService(
		recordRepo, cacheRepo, deviceRepo, ttlPolicy, log,
		syncapp.FullSyncOptions{
			Horizon:      cfg.Cache.FullSyncHorizon,
			PerTypeLimit: cfg.Cache.FullSyncPerType,
		},
	)
	cacheService := cacheapp.NewCacheService(cacheRepo, deviceRepo, ttlPolicy, log)
	deviceService := deviceapp.NewDeviceService(deviceRepo, log)

	// Duplicate-token fast path: Redis when configured, in-memory otherwise
	if cfg.Redis.Enabled {
		storeFactory := infracache.NewIdempotencyStoreFactory(cfg.Redis, infracache.WithLogger(log))
		idempotencyStore, err := storeFactory.CreateStore()
		if err != nil {
			log.Fatal("Failed to create idempotency store", zap.Error(err))
		}
		syncService.SetIdempotencyStore(idempotencyStore)
	} else {
		syncService.SetIdempotencyStore(infracache.NewInMemoryIdempotencyStore())
	}

	// JWT service for device authentication
	jwtService := auth.NewJWTService(cfg.JWT)

	// Background maintenance loops (sweep, retry, cleanup)
	maintenance := scheduler.NewMaintenanceScheduler(
		syncService,
		cacheService,
		persistence.NewGormOrganizationSource(db.DB),
		log,
		scheduler.MaintenanceConfig{
			Enabled:              cfg.Maintenance.Enabled,
			SweepInterval:        cfg.Maintenance.SweepInterval,
			RetryInterval:        cfg.Maintenance.RetryInterval,
			CleanupInterval:      cfg.Maintenance.CleanupInterval,
			CleanupRetentionDays: cfg.Maintenance.CleanupRetention,
			PassTimeout:          5 * time.Minute,
		},
	)
	if err := maintenance.Start(context.Background()); err != nil {
		log.Fatal("Failed to start maintenance scheduler", zap.Error(err))
	}
	defer maintenance.Stop()

	// Initialize HTTP handlers
	syncHandler := handler.NewSyncHandler(syncService, fullSyncService)
	cacheHandler := handler.NewCacheHandler(cacheService)
	deviceHandler := handler.NewDeviceHandler(deviceService)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	// 7. RateLimit - Apply rate limiting (if enabled)
	// 8. Tracing - OpenTelemetry spans (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	if tracerProvider.IsEnabled() {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.SpanErrorMarker())
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Apply JWT authentication middleware to API routes
	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/api/v1/ping",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	// Organization scoping: JWT claim first, X-Organization-ID header for dev
	organizationConfig := middleware.DefaultOrganizationConfig()
	organizationConfig.Logger = log
	organizationConfig.SkipPaths = append(organizationConfig.SkipPaths,
		"/api/v1/ping",
		"/api/v1/system/ping",
		"/api/v1/system/info",
	)
	r.Use(middleware.OrganizationMiddlewareWithConfig(organizationConfig))

	// Sync domain (push/pull, conflicts, maintenance triggers)
	syncRoutes := router.NewDomainGroup("sync", "/sync")
	syncRoutes.POST("/push", syncHandler.Push)
	syncRoutes.GET("/pull", syncHandler.Pull)
	syncRoutes.POST("/full", syncHandler.FullSync)
	syncRoutes.GET("/operations/pending", syncHandler.GetPendingOperations)
	syncRoutes.GET("/conflicts", syncHandler.GetConflicts)
	syncRoutes.POST("/conflicts/:clientToken/resolve", syncHandler.ResolveConflict)
	syncRoutes.POST("/retry", syncHandler.RetryFailed)
	syncRoutes.POST("/cleanup", syncHandler.CleanupCompleted)

	// Cache domain (device cache store)
	cacheRoutes := router.NewDomainGroup("cache", "/cache")
	cacheRoutes.PUT("/entities", cacheHandler.CacheEntity)
	cacheRoutes.GET("/entities/:type/:id", cacheHandler.GetCachedEntity)
	cacheRoutes.GET("/devices/:deviceId", cacheHandler.GetDeviceCache)
	cacheRoutes.DELETE("/devices/:deviceId", cacheHandler.ClearDeviceCache)
	cacheRoutes.POST("/sweep", cacheHandler.SweepExpired)

	// Device domain (sync state tracking)
	deviceRoutes := router.NewDomainGroup("devices", "/devices")
	deviceRoutes.GET("", deviceHandler.List)
	deviceRoutes.GET("/:deviceId", deviceHandler.Get)
	deviceRoutes.POST("/:deviceId/offline", deviceHandler.MarkOffline)

	// System routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	r.Register(syncRoutes).
		Register(cacheRoutes).
		Register(deviceRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
