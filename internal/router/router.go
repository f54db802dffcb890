package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/config"
	"github.com/SMITGHORI/examgenius-platform/internal/handler"
	"github.com/SMITGHORI/examgenius-platform/internal/middleware"
	"github.com/SMITGHORI/examgenius-platform/internal/response"
	"github.com/SMITGHORI/examgenius-platform/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Upload  *handler.UploadHandler
	Exam    *handler.ExamHandler
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	rdb *redis.Client,
	checks map[string]HealthCheck,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to AllowedOrigins when configured, otherwise allow all.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(requestLogger(log))
	router.Use(middleware.Brotli())

	router.GET("/health", health(checks))

	uploadLimiter := middleware.NewRateLimiter(rdb, "uploads", 10, time.Minute, log)
	generateLimiter := middleware.NewRateLimiter(rdb, "generate", 20, time.Minute, log)
	answerLimiter := middleware.NewRateLimiter(rdb, "answers", 300, time.Minute, log)

	api := router.Group("/api/v1")
	api.Use(middleware.RequireJWT(authService))

	// ─── 1. Author Group (uploads, generation, exam review) ────────────
	author := api.Group("")
	author.Use(middleware.RequireRole(service.RoleAuthor))
	{
		author.GET("/uploads", middleware.NoStore(), handlers.Upload.ListJobs)
		author.POST("/uploads", uploadLimiter.Middleware(), handlers.Upload.CreateUpload)
		author.GET("/uploads/:job_id", middleware.NoStore(), handlers.Upload.GetJob)
		author.POST("/uploads/:job_id/generate", generateLimiter.Middleware(), handlers.Upload.GenerateExam)

		author.GET("/exams", middleware.NoStore(), handlers.Exam.ListExams)
		author.GET("/exams/:exam_id", middleware.NoStore(), handlers.Exam.GetExam)
		author.POST("/exams/:exam_id/publish", handlers.Exam.PublishExam)
	}

	// ─── 2. Attempt Group (any authenticated user) ─────────────────────
	attempts := api.Group("")
	attempts.Use(middleware.NoStore())
	{
		attempts.POST("/exams/:exam_id/attempts", handlers.Attempt.StartAttempt)
		attempts.GET("/attempts", handlers.Attempt.ListAttempts)
		attempts.GET("/attempts/:attempt_id", handlers.Attempt.GetAttempt)
		attempts.PUT("/attempts/:attempt_id/answers", answerLimiter.Middleware(), handlers.Attempt.RecordAnswer)
		attempts.POST("/attempts/:attempt_id/submit", handlers.Attempt.SubmitAttempt)
	}

	// ─── 3. WebSocket Group (query token auth) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}

// health pings every dependency and answers 503 if any is down.
func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		response.Success(c, status, gin.H{"status": state, "dependencies": deps})
	}
}

// requestLogger writes one structured line per request.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		evt := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			evt = log.Error()
		case status >= http.StatusBadRequest:
			evt = log.Warn()
		}
		evt.
			Str("request_id", response.RequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request handled")
	}
}
