package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SMITGHORI/examgenius-platform/internal/config"
	"github.com/SMITGHORI/examgenius-platform/internal/model"
)

// GenerationQueue is a Redis list of pending generation requests.
type GenerationQueue struct {
	rdb *redis.Client
}

// NewGenerationQueue creates a new GenerationQueue.
func NewGenerationQueue(rdb *redis.Client) *GenerationQueue {
	return &GenerationQueue{rdb: rdb}
}

// Enqueue appends a request to the tail of the queue.
func (q *GenerationQueue) Enqueue(ctx context.Context, req model.GenerationRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.GenerationQueue, payload).Err()
}

// Dequeue blocks up to timeout for the next request. It returns ok=false
// when the wait timed out.
func (q *GenerationQueue) Dequeue(ctx context.Context, timeout time.Duration) (req model.GenerationRequest, ok bool, err error) {
	result, err := q.rdb.BLPop(ctx, timeout, config.WorkerKey.GenerationQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return req, false, nil
		}
		return req, false, err
	}
	if len(result) < 2 {
		return req, false, nil
	}
	if err := json.Unmarshal([]byte(result[1]), &req); err != nil {
		return req, false, err
	}
	return req, true, nil
}
