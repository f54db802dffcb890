package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/config"
	"github.com/SMITGHORI/examgenius-platform/internal/model"
)

// ExamDetailSource loads an exam with its questions.
type ExamDetailSource interface {
	GetDetail(ctx context.Context, id uuid.UUID) (*model.ExamDetail, error)
}

// ExamCache serves published exams from Redis. Published exams never change,
// so entries only expire. Drafts always go to the source.
type ExamCache struct {
	source ExamDetailSource
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewExamCache creates a new ExamCache.
func NewExamCache(source ExamDetailSource, rdb *redis.Client, log zerolog.Logger) *ExamCache {
	return &ExamCache{
		source: source,
		rdb:    rdb,
		ttl:    6 * time.Hour,
		log:    log.With().Str("component", "exam_cache").Logger(),
	}
}

// GetDetail implements ExamDetailSource. Redis errors fall back to the source.
func (c *ExamCache) GetDetail(ctx context.Context, id uuid.UUID) (*model.ExamDetail, error) {
	key := config.CacheKey.ExamDetailKey(id.String())

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var detail model.ExamDetail
		if jsonErr := json.Unmarshal(raw, &detail); jsonErr == nil {
			return &detail, nil
		}
		c.log.Warn().Str("exam_id", id.String()).Msg("Discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache read failed")
	}

	detail, err := c.source.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	if detail.Status == model.ExamStatusPublished {
		if payload, err := json.Marshal(detail); err == nil {
			if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache write failed")
			}
		}
	}
	return detail, nil
}
