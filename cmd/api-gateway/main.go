package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/assessment-workflow-api/api/swagger"
	"github.com/noah-isme/assessment-workflow-api/internal/handler"
	"github.com/noah-isme/assessment-workflow-api/internal/middleware"
	"github.com/noah-isme/assessment-workflow-api/internal/models"
	"github.com/noah-isme/assessment-workflow-api/internal/repository"
	"github.com/noah-isme/assessment-workflow-api/internal/service"
	"github.com/noah-isme/assessment-workflow-api/pkg/broker"
	"github.com/noah-isme/assessment-workflow-api/pkg/cache"
	"github.com/noah-isme/assessment-workflow-api/pkg/config"
	"github.com/noah-isme/assessment-workflow-api/pkg/database"
	"github.com/noah-isme/assessment-workflow-api/pkg/jobs"
	"github.com/noah-isme/assessment-workflow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/assessment-workflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/assessment-workflow-api/pkg/middleware/requestid"
	"github.com/noah-isme/assessment-workflow-api/pkg/storage"
)

// @title Assessment Workflow API
// @version 1.0.0
// @description Assessment submission and approval workflow engine
// @BasePath /api/v1
// @schemes http

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
	sugar := logr.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		sugar.Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	var natsConn *nats.Conn
	if cfg.NATS.Enabled {
		natsConn, err = broker.NewNATS(cfg.NATS)
		if err != nil {
			sugar.Warnw("nats unavailable, broker fan-out disabled", "error", err)
			natsConn = nil
		} else {
			defer natsConn.Close()
		}
	}

	// Repositories.
	submissionRepo := repository.NewSubmissionRepository(db)
	markRepo := repository.NewMarkRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	exportRepo := repository.NewExportRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()

	validate := validator.New()

	// Export artifacts.
	localStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		sugar.Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	validationSvc := service.NewValidationService(logr)
	notificationSvc := service.NewNotificationService(notificationRepo, assignmentRepo, cacheRepo, natsConn, service.NotificationConfig{
		RedisChannel: cfg.Notifications.RedisChannel,
		NATSSubject:  cfg.NATS.Subject,
	}, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, assignmentRepo, auditRepo, logr)
	markSvc := service.NewMarkService(markRepo, submissionRepo, assignmentRepo, validationSvc, cacheRepo, auditRepo, logr)
	workflowSvc := service.NewWorkflowService(submissionRepo, markRepo, auditRepo, notificationSvc, metricsSvc, logr)
	statisticsSvc := service.NewStatisticsService(submissionRepo, markRepo, assignmentRepo, cacheRepo, cfg.Statistics.CacheTTL, logr)
	exportSvc := service.NewExportService()
	markSheetSvc := service.NewMarkSheetService(exportRepo, submissionRepo, markRepo, exportSvc, localStore, signer, auditRepo, logr)

	exportQueue := jobs.NewQueue("mark-sheets", markSheetSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	markSheetSvc.BindQueue(exportQueue)
	exportQueue.Start(ctx)
	defer exportQueue.Stop()
	markSheetSvc.RecoverUnfinished(ctx)
	go markSheetSvc.StartCleanupLoop(ctx, cfg.Exports.CleanupInterval, cfg.Exports.SignedURLTTL)

	if cfg.Sweep.Enabled {
		deadlineSvc := service.NewDeadlineService(submissionRepo, notificationSvc, metricsSvc, cfg.Sweep.Interval, cfg.Sweep.LockTimeout, cfg.Sweep.ReminderWindow, logr)
		go deadlineSvc.Start(ctx)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc, workflowSvc)
	markHandler := handler.NewMarkHandler(markSvc, statisticsSvc)
	exportHandler := handler.NewExportHandler(markSheetSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	modules := protected.Group("/modules")
	{
		modules.POST("/:moduleId/submissions",
			middleware.RequireRoles(models.RoleLecturer, models.RoleHOD, models.RoleAdmin, models.RoleSuperAdmin),
			submissionHandler.Create)
		modules.GET("/:moduleId/submissions", submissionHandler.Details)
	}

	submissions := protected.Group("/submissions")
	{
		submissions.PATCH("/deadlines",
			middleware.RequireRoles(models.RoleHOD, models.RoleAdmin, models.RoleSuperAdmin),
			middleware.Audit(auditRepo, models.AuditActionDeadlineUpdate, "submissions"),
			submissionHandler.UpdateDeadlines)
		submissions.GET("/:id", submissionHandler.Get)
		submissions.PUT("/:id/marks",
			middleware.RequireRoles(models.RoleLecturer, models.RoleHOD, models.RoleAdmin, models.RoleSuperAdmin),
			markHandler.Record)
		submissions.GET("/:id/marks", markHandler.List)
		submissions.GET("/:id/statistics", markHandler.Statistics)
		submissions.POST("/:id/submit", submissionHandler.Submit)
		submissions.POST("/:id/approve", submissionHandler.Approve)
		submissions.POST("/:id/reject", submissionHandler.Reject)
		submissions.POST("/:id/reopen", submissionHandler.Reopen)
		submissions.POST("/:id/export", exportHandler.Create)
	}

	exports := protected.Group("/exports")
	{
		exports.GET("/:jobId", exportHandler.Status)
	}
	// Download is authenticated by the signed token itself.
	api.GET("/exports/download", exportHandler.Download)

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("graceful shutdown failed", "error", err)
	}
	sugar.Infow("server stopped")
}
