package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"school-identity-onboarding/internal/api"
	"school-identity-onboarding/internal/batch"
	"school-identity-onboarding/internal/config"
	"school-identity-onboarding/internal/db"
	"school-identity-onboarding/internal/identity"
	"school-identity-onboarding/internal/importfile"
	"school-identity-onboarding/internal/logger"
	"school-identity-onboarding/internal/progress"
	"school-identity-onboarding/internal/queue"
	"school-identity-onboarding/internal/storage"
	"school-identity-onboarding/internal/template"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	identityClient := identity.NewClient(cfg)
	validator := importfile.NewValidator()

	var opts []batch.Option
	var history api.HistoryReader
	var streams progress.StreamOpener

	// Submission history is optional
	if cfg.HistoryEnabled() {
		database, err := db.NewConnection(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer database.Close()

		if err := db.EnsureSchema(context.Background(), database); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare history table")
		}

		repo := db.NewHistoryRepository(database)
		history = repo
		opts = append(opts, batch.WithHistory(repo))
	} else {
		log.Warn().Msg("Database not configured, submission history disabled")
	}

	// Redis carries the push progress stream and the provisioning lock
	if cfg.RedisEnabled() {
		redisClient, err := queue.NewRedisClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		streams = queue.NewProgressStreams(redisClient)
		opts = append(opts, batch.WithLocker(queue.NewLocker(redisClient)))
	} else {
		log.Warn().Msg("Redis not configured, progress relies on polling only")
	}

	// Source files are archived to S3 when a bucket is set
	if cfg.ArchiveEnabled() {
		s3Storage, err := storage.NewS3Storage(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
		}
		opts = append(opts, batch.WithArchive(s3Storage))
	}

	stageLog := logger.Component("provisioning")
	opts = append(opts, batch.WithObserver(func(e batch.StageEvent) {
		stageLog.Info().
			Str("stage", string(e.Stage)).
			Str("phase", string(e.Phase)).
			Str("provisioning_batch_id", e.ProvisioningBatchID).
			Msg("Provisioning stage")
	}))

	orchestrator := batch.NewOrchestrator(identityClient, identityClient, validator, opts...)
	reconciler := progress.NewReconciler(identityClient, streams, cfg.Progress.PollInterval)

	// Initialize API handler
	handler := api.NewHandler(cfg, api.Dependencies{
		Validator:    validator,
		Orchestrator: orchestrator,
		Lister:       identityClient,
		Templates:    template.NewGenerator(identityClient),
		History:      history,
		Progress:     reconciler,
	})

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(handler)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
