package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/arkan-dika/timetable-api/api/swagger"
	"github.com/arkan-dika/timetable-api/internal/handler"
	"github.com/arkan-dika/timetable-api/internal/middleware"
	"github.com/arkan-dika/timetable-api/internal/repository"
	"github.com/arkan-dika/timetable-api/internal/service"
	"github.com/arkan-dika/timetable-api/internal/solver"
	"github.com/arkan-dika/timetable-api/pkg/cache"
	"github.com/arkan-dika/timetable-api/pkg/config"
	"github.com/arkan-dika/timetable-api/pkg/database"
	"github.com/arkan-dika/timetable-api/pkg/jobs"
	"github.com/arkan-dika/timetable-api/pkg/logger"
	corsmiddleware "github.com/arkan-dika/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/arkan-dika/timetable-api/pkg/middleware/requestid"
	"github.com/arkan-dika/timetable-api/pkg/storage"
)

// @title Timetable API
// @version 1.0.0
// @description Timetable generation and degradation service: strict solve, single best-effort fallback, conflict analysis and versioned publication.
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, analysis caching disabled", "error", err)
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			redisClient.Close() //nolint:errcheck
		}
	}()

	validate := validator.New()

	termRepo := repository.NewTermRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	slotRepo := repository.NewTimetableSlotRepository(db)
	jobRepo := repository.NewGenerationJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.AnalysisTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	generationSvc := service.NewGenerationService(
		solver.New(),
		termRepo,
		timetableRepo,
		slotRepo,
		db,
		metricsSvc,
		validate,
		logr,
		service.GenerationConfig{
			ResultTTL:          cfg.Scheduler.ResultTTL,
			AcceptanceFloor:    cfg.Scheduler.AcceptanceFloor,
			CapacityHardExcess: cfg.Scheduler.CapacityHardExcess,
			MaxCourses:         cfg.Scheduler.MaxCourses,
		},
	)

	analysisSvc := service.NewAnalysisService(
		timetableRepo,
		slotRepo,
		service.NewConflictAnalyzer(cfg.Scheduler.CapacityHardExcess),
		service.NewResultBuilder(cfg.Scheduler.AcceptanceFloor),
		cacheSvc,
		metricsSvc,
		logr,
		service.AnalysisServiceConfig{CacheTTL: cfg.Cache.AnalysisTTL},
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var jobSvc *service.GenerationJobService
	var queue *jobs.Queue
	if cfg.Jobs.Enabled {
		worker := service.NewGenerationWorker(jobRepo, generationSvc, cfg.Jobs.WorkerRetries, logr)
		queue = jobs.NewQueue("generation", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Jobs.WorkerConcurrency,
			BufferSize: cfg.Jobs.QueueSize,
			MaxRetries: cfg.Jobs.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(rootCtx)
		jobSvc = service.NewGenerationJobService(jobRepo, queue, generationSvc, validate, logr)
		jobSvc.RecoverPendingJobs(rootCtx)
	}

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(analysisSvc, timetableRepo, store, signer, service.ExportConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		}, validate, logr)
		exportSvc.StartCleanup(rootCtx)
	}

	generationHandler := handler.NewGenerationHandler(generationSvc)
	timetableHandler := handler.NewTimetableHandler(generationSvc, analysisSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/timetables/generate", generationHandler.Generate)
		api.GET("/timetables/results/:id", generationHandler.Result)
		api.POST("/timetables/accept", generationHandler.Accept)
		api.POST("/timetables/:id/publish", generationHandler.Publish)

		api.GET("/timetables", timetableHandler.List)
		api.GET("/timetables/summary", timetableHandler.Summary)
		api.GET("/timetables/:id/slots", timetableHandler.Slots)
		api.DELETE("/timetables/:id", timetableHandler.Delete)
		api.GET("/timetables/:id/analysis", timetableHandler.Analyze)
		api.GET("/terms/:id/analysis", timetableHandler.SweepTerm)

		api.GET("/metrics/summary", metricsHandler.Snapshot)

		if jobSvc != nil {
			jobHandler := handler.NewGenerationJobHandler(jobSvc)
			api.POST("/jobs/generation", jobHandler.Create)
			api.GET("/jobs/generation/:id", jobHandler.Status)
		}
		if exportSvc != nil {
			exportHandler := handler.NewExportHandler(exportSvc)
			api.POST("/exports", exportHandler.Create)
			api.GET("/exports/:token", exportHandler.Download)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	if queue != nil {
		queue.Stop()
	}
	logr.Sugar().Infow("server stopped")
}
