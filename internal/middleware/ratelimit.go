package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/response"
)

// RateLimiter counts requests per key in fixed Redis windows, so the limit
// holds across API replicas.
type RateLimiter struct {
	rdb      *redis.Client
	name     string
	limit    int
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewRateLimiter allows limit requests per interval for each caller of the
// named route group (e.g. 10 uploads per minute).
func NewRateLimiter(rdb *redis.Client, name string, limit int, interval time.Duration, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:      rdb,
		name:     name,
		limit:    limit,
		interval: interval,
		now:      time.Now,
		log:      log.With().Str("component", "rate_limiter").Str("limiter", name).Logger(),
	}
}

// Allow records one request for key and reports whether it is within the
// limit, plus the seconds until the current window resets.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	window := rl.now().UnixNano() / int64(rl.interval)
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", rl.name, key, window)

	var incr *redis.IntCmd
	_, err := rl.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, rl.interval)
		return nil
	})
	if err != nil {
		return true, 0, err
	}

	resetAt := time.Unix(0, (window+1)*int64(rl.interval))
	retry := int(resetAt.Sub(rl.now()).Seconds()) + 1
	return incr.Val() <= int64(rl.limit), retry, nil
}

// Middleware rate-limits by authenticated user, falling back to client IP.
// Redis failures let the request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if id, ok := GetUserID(c); ok {
			key = id.String()
		}

		allowed, retry, err := rl.Allow(c.Request.Context(), key)
		if err != nil {
			rl.log.Warn().Err(err).Msg("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(retry))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
