package app

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	ginadapter "github.com/pixelmint/server/internal/adapter/inbound/gin"
	"github.com/pixelmint/server/internal/adapter/outbound/postgres"
	redisadapter "github.com/pixelmint/server/internal/adapter/outbound/redis"
	"github.com/pixelmint/server/internal/domain/billing"
	"github.com/pixelmint/server/internal/port/inbound"
	"github.com/pixelmint/server/internal/shared/cache"
	"github.com/pixelmint/server/internal/shared/config"
	"github.com/pixelmint/server/internal/shared/database"
	"github.com/pixelmint/server/internal/shared/logger"
	"github.com/pixelmint/server/internal/utils/metrics"
	"github.com/pixelmint/server/internal/utils/middleware"
)

// App wires configuration, infrastructure, the billing domain and the HTTP
// surface together.
type App struct {
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB
	redis  goredis.UniversalClient
	router *gin.Engine

	billingDomain *billing.Domain
	sweeper       *billing.Sweeper
	httpMetrics   *metrics.Metrics

	billingHandler inbound.BillingHttpPort
	taskHandler    inbound.TaskBillingHttpPort
}

// New creates a fully wired application.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{config: cfg, logger: log}

	if err := a.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}
	if err := a.initBilling(); err != nil {
		return nil, fmt.Errorf("init billing: %w", err)
	}
	a.router = a.setupRouter()
	a.registerRoutes()

	return a, nil
}

func (a *App) initInfrastructure() error {
	db, err := database.New(&a.config.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	a.db = db

	rdb, err := cache.NewRedisClient(&a.config.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	a.redis = rdb

	return nil
}

func (a *App) initBilling() error {
	catalog, err := buildCatalog(a.config.Billing.Features)
	if err != nil {
		return fmt.Errorf("build feature catalog: %w", err)
	}
	a.logger.Info("feature catalog loaded", zap.Strings("features", catalog.Names()))

	m := metrics.New(a.config.Metrics.Namespace)
	repo := postgres.NewBillingRepository(a.db)
	dedup := redisadapter.NewSignalDedup(a.redis, a.config.Billing.SignalDedupTTL)

	a.billingDomain = billing.NewDomain(catalog, repo, dedup, m, &billing.Config{
		TaskExpiryWindow: a.config.Billing.TaskExpiryWindow,
		SweepInterval:    a.config.Billing.SweepInterval,
		SweepBatchSize:   a.config.Billing.SweepBatchSize,
	}, a.logger.Named("billing"))

	a.sweeper = billing.NewSweeper(a.billingDomain, a.logger)
	a.sweeper.Start()

	a.billingHandler = ginadapter.NewBillingHandler(a.billingDomain)
	a.taskHandler = ginadapter.NewTaskBillingHandler(a.billingDomain)

	a.httpMetrics = m
	return nil
}

// buildCatalog turns feature configuration into a validated catalog. With no
// features configured the built-in defaults apply.
func buildCatalog(features []config.FeatureConfig) (*billing.Catalog, error) {
	if len(features) == 0 {
		return billing.NewCatalog(billing.DefaultFeatures()...)
	}

	out := make([]*billing.Feature, 0, len(features))
	for _, fc := range features {
		feat := &billing.Feature{
			Name:        fc.Name,
			FreeQuota:   fc.FreeQuota,
			Synchronous: fc.Synchronous,
		}
		switch fc.Pricing {
		case "fixed":
			feat.Pricing = billing.FixedCost(fc.Cost)
		case "per_second":
			feat.Pricing = billing.PerSecondCost{
				CreditsPerSecond: fc.CreditsPerSecond,
				DefaultSeconds:   fc.DefaultSeconds,
			}
		default:
			return nil, fmt.Errorf("feature %q: unknown pricing kind %q", fc.Name, fc.Pricing)
		}
		out = append(out, feat)
	}
	return billing.NewCatalog(out...)
}

func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Metrics(a.httpMetrics))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	return r
}

func (a *App) registerRoutes() {
	r := a.router

	r.GET("/healthz", a.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.RequireAuth(a.config.Auth.JWTSecret))
	{
		api.POST("/billing/access", a.billingHandler.CheckAccess)
		api.POST("/billing/charges",
			middleware.Idempotency(a.redis, a.config.Billing.SignalDedupTTL),
			a.billingHandler.Charge,
		)
		api.GET("/credits/balance", a.billingHandler.GetBalance)
		api.GET("/usage/:feature/summary", a.billingHandler.GetUsageSummary)
	}

	internalAPI := r.Group("/internal/v1")
	internalAPI.Use(middleware.RequireServiceToken(a.config.Auth.ServiceToken))
	{
		internalAPI.POST("/billing/tasks", a.taskHandler.RecordTask)
		internalAPI.POST("/billing/tasks/:task_id/completion", a.taskHandler.RecordCompletion)
		internalAPI.POST("/billing/tasks/:task_id/refund", a.taskHandler.RefundTask)
	}
}

func (a *App) healthz(c *gin.Context) {
	ctx := c.Request.Context()

	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop shuts down background workers and closes connections.
func (a *App) Stop() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.redis != nil {
		if err := cache.Close(a.redis); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warn("close database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
