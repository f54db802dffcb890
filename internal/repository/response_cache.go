package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/SMITGHORI/examgenius-platform/internal/config"
	"github.com/SMITGHORI/examgenius-platform/internal/model"
)

// ResponseCache keeps the live answers of an attempt in a Redis hash and
// queues each answer for durable persistence.
type ResponseCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewResponseCache creates a new ResponseCache.
func NewResponseCache(rdb *redis.Client) *ResponseCache {
	return &ResponseCache{rdb: rdb, ttl: 24 * time.Hour}
}

// Record sets responses[questionID] = optionIndex (last write wins) and
// enqueues the entry for the autosave worker.
func (c *ResponseCache) Record(ctx context.Context, entry model.AnswerEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := config.CacheKey.AttemptAnswersKey(entry.AttemptID.String())

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, entry.QuestionID.String(), entry.OptionIndex)
		pipe.Expire(ctx, key, c.ttl)
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)
		return nil
	})
	return err
}

// Load returns the cached responses of an attempt. An empty map means nothing
// is cached.
func (c *ResponseCache) Load(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]int, error) {
	raw, err := c.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String())).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]int, len(raw))
	for k, v := range raw {
		qID, err := uuid.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("cached question id %q: %w", k, err)
		}
		idx, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("cached option for %s: %w", k, err)
		}
		out[qID] = idx
	}
	return out, nil
}

// Clear drops the cached responses once the attempt is finalized.
func (c *ResponseCache) Clear(ctx context.Context, attemptID uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String())).Err()
}
