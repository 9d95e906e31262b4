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
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/parc-api/api/swagger"
	"github.com/noah-isme/parc-api/internal/authz"
	"github.com/noah-isme/parc-api/internal/handler"
	internalmiddleware "github.com/noah-isme/parc-api/internal/middleware"
	"github.com/noah-isme/parc-api/internal/models"
	"github.com/noah-isme/parc-api/internal/repository"
	"github.com/noah-isme/parc-api/internal/service"
	"github.com/noah-isme/parc-api/pkg/cache"
	"github.com/noah-isme/parc-api/pkg/config"
	"github.com/noah-isme/parc-api/pkg/database"
	"github.com/noah-isme/parc-api/pkg/jobs"
	"github.com/noah-isme/parc-api/pkg/logger"
	"github.com/noah-isme/parc-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/parc-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/parc-api/pkg/middleware/requestid"
	"github.com/noah-isme/parc-api/pkg/storage"
)

// @title Parc API
// @version 1.0.0
// @description Access lifecycle, enrollment and onboarding for the Parc training platform
// @BasePath /api/v1
// @schemes http
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
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Lifecycle.LockEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close() //nolint:errcheck
	}

	files, err := storage.NewLocalStorage(cfg.Storage.UploadsDir)
	if err != nil {
		logr.Fatal("failed to prepare uploads directory", zap.Error(err))
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	mail := mailer.NewSMTPMailer(cfg.Mail)
	mailQueue := jobs.NewQueue("mail", service.MailHandler(mail, metrics), jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr.Named("mail"),
		OnGiveUp:   service.MailGiveUp(logr, metrics),
	})
	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()
	mailQueue.Start(rootCtx)

	accountRepo := repository.NewAccountRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	documentRepo := repository.NewDocumentRepository(db)

	matrix := authz.Default()
	notifier := service.NewNotificationService(mailQueue, cfg.Mail.LoginURL, metrics, logr)
	credentials := service.NewCredentialService(accountRepo, cfg.Credentials.SecretBytes, metrics, logr)

	var lifecycle *service.LifecycleService
	if cfg.Lifecycle.LockEnabled {
		locker := cache.NewKeyLock(redisClient, "parc:trainer-lifecycle:", cfg.Lifecycle.LockTTL)
		lifecycle = service.NewLifecycleService(db, accountRepo, scheduleRepo, credentials, notifier, locker, metrics, logr)
	} else {
		lifecycle = service.NewLifecycleService(db, accountRepo, scheduleRepo, credentials, notifier, nil, metrics, logr)
	}

	authSvc := service.NewAuthService(accountRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	accountSvc := service.NewAccountService(db, accountRepo, credentials, lifecycle, matrix, auditRepo, notifier, validate, logr)
	scheduleSvc := service.NewScheduleService(db, scheduleRepo, accountRepo, lifecycle, auditRepo, notifier, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(accountRepo, batchRepo, credentials, notifier, metrics, logr)
	batchSvc := service.NewBatchService(db, batchRepo, accountRepo, enrollmentSvc, auditRepo, notifier, validate, logr)
	applicationSvc := service.NewApplicationService(db, applicationRepo, accountRepo, credentials, files, auditRepo, notifier, validate, logr)
	documentSvc := service.NewDocumentService(db, documentRepo, files, validate, logr)

	var sweeper *service.ExpirySweeper
	if cfg.Lifecycle.SweepEnabled {
		sweeper = service.NewExpirySweeper(accountRepo, lifecycle, cfg.Lifecycle.SweepCron, logr)
		if err := sweeper.Start(); err != nil {
			logr.Fatal("failed to start expiry sweep", zap.Error(err))
		}
	}

	maxUpload := cfg.Roster.MaxFileSizeBytes
	authHandler := handler.NewAuthHandler(authSvc)
	accountHandler := handler.NewAccountHandler(accountSvc)
	applicationHandler := handler.NewApplicationHandler(applicationSvc, maxUpload)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc, lifecycle)
	batchHandler := handler.NewBatchHandler(batchSvc, maxUpload)
	documentHandler := handler.NewDocumentHandler(documentSvc, maxUpload)
	metricsHandler := handler.NewMetricsHandler(metrics, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	allow := func(action authz.Action, resource internalmiddleware.ResourceFunc) gin.HandlerFunc {
		return internalmiddleware.Authorize(matrix, action, resource, logr)
	}
	audit := func(action, resource, param string) gin.HandlerFunc {
		return internalmiddleware.Audit(auditRepo, action, resource, param, logr)
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/applications/:kind", internalmiddleware.OptionalJWT(authSvc), allow(authz.ActionApplicationSubmit, nil), applicationHandler.Submit)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc))

	secured.POST("/auth/set-password", allow(authz.ActionPasswordSet, internalmiddleware.OwnerSelf()), authHandler.SetPassword)

	secured.POST("/applications/:kind/:id/approve", allow(authz.ActionApplicationReview, nil), applicationHandler.Approve)
	secured.POST("/applications/:kind/:id/decline", allow(authz.ActionApplicationReview, nil), applicationHandler.Decline)

	secured.POST("/accounts", allow(authz.ActionAccountCreate, nil), accountHandler.Create)
	secured.GET("/accounts/:id", allow(authz.ActionAccountRead, internalmiddleware.OwnerFromParam("id")), accountHandler.Get)
	secured.PATCH("/accounts/:id", allow(authz.ActionAccountUpdate, internalmiddleware.OwnerFromParam("id")), accountHandler.Update)

	schedules := secured.Group("/schedules", allow(authz.ActionScheduleManage, nil))
	schedules.POST("", scheduleHandler.Create)
	schedules.PUT("/:id", scheduleHandler.Update)
	schedules.DELETE("/:id", scheduleHandler.Delete)
	secured.POST("/trainers/:id/lifecycle",
		allow(authz.ActionScheduleManage, nil),
		audit(models.AuditActionTrainerLifecycle, "accounts", "id"),
		scheduleHandler.RecomputeTrainer,
	)

	secured.POST("/batches", allow(authz.ActionBatchManage, nil), audit(models.AuditActionBatchCreate, "batches", ""), batchHandler.Create)
	secured.DELETE("/batches/:id", allow(authz.ActionBatchManage, nil), audit(models.AuditActionBatchDelete, "batches", "id"), batchHandler.Delete)
	secured.POST("/batches/:id/students", allow(authz.ActionBatchManage, nil), batchHandler.AddStudents)
	secured.DELETE("/batches/:id/students", allow(authz.ActionBatchManage, nil), batchHandler.RemoveStudents)
	secured.POST("/batches/import", allow(authz.ActionBatchImport, nil), batchHandler.Import)
	secured.POST("/batches/:id/import", allow(authz.ActionBatchImport, nil), batchHandler.Append)

	employees := secured.Group("/employees/me", allow(authz.ActionDocumentUpload, internalmiddleware.OwnerSelf()))
	employees.POST("/certifications", documentHandler.CreateCertification)
	employees.POST("/education", documentHandler.SaveEducationEntry)

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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	mailQueue.Stop()
}
