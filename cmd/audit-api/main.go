package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/resto-audit-api/api/swagger"
	"github.com/noah-isme/resto-audit-api/internal/handler"
	internalmiddleware "github.com/noah-isme/resto-audit-api/internal/middleware"
	"github.com/noah-isme/resto-audit-api/internal/models"
	"github.com/noah-isme/resto-audit-api/internal/repository"
	"github.com/noah-isme/resto-audit-api/internal/service"
	"github.com/noah-isme/resto-audit-api/pkg/cache"
	"github.com/noah-isme/resto-audit-api/pkg/config"
	"github.com/noah-isme/resto-audit-api/pkg/database"
	"github.com/noah-isme/resto-audit-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/resto-audit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/resto-audit-api/pkg/middleware/requestid"
)

// @title Restaurant Audit API
// @version 1.0.0
// @description Audit scheduling, findings, corrective actions and archives for restaurant franchises
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheRepo *repository.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching and notifications disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(client, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	var (
		cacheStore service.CacheRepository
		publisher  interface {
			Publish(ctx context.Context, channel string, payload []byte) error
		}
	)
	if cacheRepo != nil {
		cacheStore = cacheRepo
		publisher = cacheRepo
	}
	cacheSvc := service.NewCacheService(cacheStore, metricsSvc, cfg.Archives.StatsCacheTTL, logr, cfg.Archives.StatsCacheEnabled && cacheRepo != nil)

	notifications := service.NewNotificationService(publisher, service.NotificationConfig{
		Enabled:    cfg.Notifications.Enabled,
		Channel:    cfg.Notifications.Channel,
		Workers:    cfg.Notifications.Workers,
		Retries:    cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, metricsSvc, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	notifications.Start(ctx)
	defer notifications.Stop()

	clock, err := service.NewClock(cfg.Audits.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid audit timezone", "error", err)
	}

	templateRepo := repository.NewTemplateRepository(db)
	executionRepo := repository.NewExecutionRepository(db)
	findingRepo := repository.NewFindingRepository(db)
	actionRepo := repository.NewCorrectiveActionRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	validate := service.NewValidator()

	templateSvc := service.NewTemplateService(templateRepo, auditRepo, validate, logr)
	executionSvc := service.NewExecutionService(executionRepo, templateRepo, directoryRepo, findingRepo, auditRepo, notifications, metricsSvc, service.ExecutionConfig{
		Clock:              clock,
		UpcomingWindowDays: cfg.Audits.UpcomingWindowDays,
	}, validate, logr)
	findingSvc := service.NewFindingService(findingRepo, executionRepo, templateRepo, auditRepo, metricsSvc, service.FindingConfig{
		Clock: clock,
		Policy: service.FindingPolicy{
			ScoreThreshold:  cfg.Audits.ScoreThreshold,
			DefaultSeverity: models.Severity(cfg.Audits.DefaultSeverity),
		},
	}, validate, logr)
	actionSvc := service.NewCorrectiveActionService(actionRepo, findingRepo, directoryRepo, auditRepo, notifications, metricsSvc, service.CorrectiveActionConfig{
		Clock: clock,
	}, validate, logr)
	archiveSvc := service.NewAuditArchiveService(archiveRepo, executionRepo, templateRepo, findingRepo, actionRepo, cacheSvc, service.NewArchiveExporter(nil, nil), auditRepo, notifications, metricsSvc, service.ArchiveConfig{
		Clock:         clock,
		StatsCacheTTL: cfg.Archives.StatsCacheTTL,
	}, logr)

	templateHandler := handler.NewTemplateHandler(templateSvc)
	executionHandler := handler.NewExecutionHandler(executionSvc, findingSvc)
	nonConformityHandler := handler.NewNonConformityHandler(findingSvc)
	actionHandler := handler.NewCorrectiveActionHandler(actionSvc)
	archiveHandler := handler.NewArchiveHandler(archiveSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.WithResponseMeta())
	if cfg.Metrics.Enabled {
		r.Use(internalmiddleware.Metrics(metricsSvc))
		metricsPath := cfg.Metrics.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.GET(metricsPath, metricsHandler.Prometheus)
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.Authorization(cfg.JWT.Secret, cfg.JWT.Issuer))

	adminOnly := internalmiddleware.RequireRoles(models.RoleAdmin)
	supervisors := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleManager)

	templates := api.Group("/audit-templates")
	templates.GET("", templateHandler.List)
	templates.GET("/:id", templateHandler.Get)
	templates.POST("", adminOnly, templateHandler.Create)
	templates.PATCH("/:id", adminOnly, templateHandler.Update)
	templates.DELETE("/:id", adminOnly, templateHandler.Delete)

	audits := api.Group("/audits")
	audits.GET("", executionHandler.List)
	audits.GET("/:id", executionHandler.Get)
	audits.POST("", supervisors, executionHandler.Schedule)
	audits.PATCH("/:id", supervisors, executionHandler.Reschedule)
	audits.DELETE("/:id", supervisors, executionHandler.Delete)
	audits.PATCH("/:id/status", executionHandler.Transition)
	audits.POST("/:id/responses", executionHandler.RecordResponse)

	nonConformities := api.Group("/non-conformities")
	nonConformities.GET("", nonConformityHandler.List)
	nonConformities.PUT("/:id/status", nonConformityHandler.UpdateStatus)

	actions := api.Group("/corrective-actions")
	actions.GET("", actionHandler.List)
	actions.POST("", actionHandler.Create)
	actions.PUT("/:id", actionHandler.Update)
	actions.PUT("/:id/archive", supervisors, actionHandler.Archive)

	archives := api.Group("/audit-archives")
	archives.GET("", archiveHandler.List)
	archives.GET("/stats", archiveHandler.Stats)
	archives.GET("/:id", archiveHandler.Get)
	archives.GET("/:id/export", archiveHandler.Export)
	archives.POST("/archive/:executionId", supervisors, archiveHandler.ArchiveExecution)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
