package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/SMITGHORI/examgenius-platform/internal/config"
	"github.com/SMITGHORI/examgenius-platform/internal/database"
	"github.com/SMITGHORI/examgenius-platform/internal/handler"
	"github.com/SMITGHORI/examgenius-platform/internal/llm"
	"github.com/SMITGHORI/examgenius-platform/internal/logger"
	"github.com/SMITGHORI/examgenius-platform/internal/repository"
	"github.com/SMITGHORI/examgenius-platform/internal/router"
	"github.com/SMITGHORI/examgenius-platform/internal/service"
	"github.com/SMITGHORI/examgenius-platform/internal/storage"
	"github.com/SMITGHORI/examgenius-platform/internal/validator"
	"github.com/SMITGHORI/examgenius-platform/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "examgenius-api")
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("storage", cfg.Storage.Backend).
		Str("llm_provider", cfg.LLM.Provider).
		Msg("Starting ExamGenius API")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Object Storage & Model Provider ───────────────────────────────
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	provider, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize model provider")
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	jobRepo := repository.NewUploadJobRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	examCache := repository.NewExamCache(examRepo, rdb, log)
	responseCache := repository.NewResponseCache(rdb)
	generationQueue := repository.NewGenerationQueue(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret)
	ingestService := service.NewIngestService(store, jobRepo, cfg.MaxUploadBytes, log)
	extractService := service.NewExtractService(store, service.NewDocumentDecoder(), cfg.Synthesis.MinTextChars)
	synthesisService := service.NewSynthesisService(provider, cfg.Synthesis.MaxSourceChars, cfg.LLM.Temperature, log)
	generationService := service.NewGenerationService(
		jobRepo,
		examRepo,
		extractService,
		synthesisService,
		generationQueue,
		service.RetryPolicy{
			MaxAttempts: cfg.Synthesis.MaxAttempts,
			BaseDelay:   cfg.Synthesis.BackoffBase,
		},
		cfg.Exam.DefaultDurationMinutes,
		log,
	)
	examService := service.NewExamService(examRepo, examRepo, log)
	attemptService := service.NewAttemptService(attemptRepo, responseCache, examCache, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Upload:  handler.NewUploadHandler(ingestService, generationService, cfg.MaxUploadBytes, log),
		Exam:    handler.NewExamHandler(examService, log),
		Attempt: handler.NewAttemptHandler(attemptService, log),
		WS:      handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	workers, workerCtx := errgroup.WithContext(workerCtx)
	workers.Go(func() error {
		worker.NewGenerationWorker(generationQueue, generationService, cfg.Workers.Generation, log).Start(workerCtx)
		return nil
	})
	for i := 0; i < cfg.Workers.Autosave; i++ {
		workers.Go(func() error {
			worker.NewAutosaveWorker(attemptRepo, rdb, log).Start(workerCtx)
			return nil
		})
	}
	workers.Go(func() error {
		worker.NewExpirySweeper(attemptService, cfg.Workers.SweepInterval, log).Start(workerCtx)
		return nil
	})

	// ─── Setup Router ──────────────────────────────────────────────────
	checks := map[string]router.HealthCheck{
		"postgres": postgresCheck(pool),
		"redis":    redisCheck(rdb),
	}
	r := router.SetupRouter(authService, handlers, rdb, checks, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down gracefully...")
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server error")
	}

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop workers. In-flight generation jobs finish and the answer
	// queue drains before Wait returns.
	workerCancel()
	if err := workers.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

func postgresCheck(pool *pgxpool.Pool) router.HealthCheck {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

func redisCheck(rdb *redis.Client) router.HealthCheck {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
