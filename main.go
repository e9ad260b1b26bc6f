package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/dataloom-io/loom-engine/pkg/config"
	"github.com/dataloom-io/loom-engine/pkg/database"
	"github.com/dataloom-io/loom-engine/pkg/handlers"
	"github.com/dataloom-io/loom-engine/pkg/middleware"
	"github.com/dataloom-io/loom-engine/pkg/repositories"
	"github.com/dataloom-io/loom-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := services.LoadLibraryOverrides(cfg.Libraries, logger); err != nil {
		logger.Fatal("failed to load library overrides", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	migrationDB := stdlib.OpenDBFromPool(pool)
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Repositories
	projectRepo := repositories.NewProjectRepository(pool)
	uploadRepo := repositories.NewUploadRepository(pool)
	dataRowRepo := repositories.NewDataRowRepository(pool)
	cleaningJobRepo := repositories.NewCleaningJobRepository(pool)
	cleaningLogRepo := repositories.NewCleaningLogRepository(pool)
	domainJobRepo := repositories.NewDomainJobRepository(pool)
	relationshipRepo := repositories.NewRelationshipRepository(pool)
	viewRepo := repositories.NewViewRepository(pool)
	kpiRepo := repositories.NewKpiRepository(pool)
	dashboardRepo := repositories.NewDashboardRepository(pool)
	cleanedDataRepo := repositories.NewCleanedDataRepository(pool)

	// The queue runner needs Redis for cross-process idempotency; without it
	// jobs run inline in the request goroutine.
	var runner services.JobRunner
	if cfg.RedisEnabled() {
		runner = services.NewQueueJobRunner(cfg.Cleaning.MaxParallelJobs, redisClient, logger)
	} else {
		runner = services.NewInlineJobRunner(logger)
	}

	// Services
	fileStore := services.NewFileStore(cfg.Uploads.Dir, logger)
	auditLogger := services.NewAuditLogger(cleaningLogRepo, cfg.Cleaning.LogDir, logger)
	pipeline := services.NewCleaningPipeline(auditLogger, cfg.Cleaning.StageTimeout(), cfg.Cleaning.DefaultCountryCode, logger)

	uploadService := services.NewUploadService(uploadRepo, dataRowRepo, logger)
	cleaningService := services.NewCleaningService(uploadService, uploadRepo, cleaningJobRepo, cleanedDataRepo, pipeline, auditLogger, runner, logger)
	projectService := services.NewProjectService(cfg.Uploads, projectRepo, uploadRepo, cleaningJobRepo, viewRepo, cleanedDataRepo, uploadService, fileStore, runner, logger)

	orchestrator := services.NewProjectOrchestrator(services.OrchestratorDeps{
		Projects:      projectRepo,
		Uploads:       uploadRepo,
		CleaningJobs:  cleaningJobRepo,
		DomainJobs:    domainJobRepo,
		Relationships: relationshipRepo,
		Views:         viewRepo,
		Kpis:          kpiRepo,
		Dashboards:    dashboardRepo,
		CleanedData:   cleanedDataRepo,
		Cleaning:      cleaningService,
		Classifier:    services.NewDomainClassifier(logger),
		Detector:      services.NewRelationshipDetector(logger),
		Generator:     services.NewViewGenerator(logger),
		Extractor:     services.NewKpiExtractor(logger),
		Assembler:     services.NewDashboardAssembler(logger),
	}, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewProjectsHandler(projectService, orchestrator, logger).RegisterRoutes(mux)
	handlers.NewCleaningHandler(cleaningService, logger).RegisterRoutes(mux)
	handlers.NewDomainHandler(orchestrator, cleaningService, logger).RegisterRoutes(mux)
	handlers.NewKpiHandler(orchestrator, logger).RegisterRoutes(mux)
	handlers.NewDashboardHandler(orchestrator, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: middleware.RequestLogger(logger)(mux),
	}

	go func() {
		logger.Info("starting loom-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.String("env", cfg.Env),
			zap.Bool("queue", cfg.RedisEnabled()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := runner.Drain(shutdownCtx); err != nil {
		logger.Warn("job runner drain incomplete", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
