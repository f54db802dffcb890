package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/config"
	"github.com/SMITGHORI/examgenius-platform/internal/model"
)

const (
	AnswerBatchSize    = 100
	AnswerBatchTimeout = 2 * time.Second
	AnswerPollTimeout  = 1 * time.Second
	answerRetryDelay   = 5 * time.Second
)

// AnswerSink durably stores answers.
type AnswerSink interface {
	UpsertResponses(ctx context.Context, entries []model.AnswerEntry) error
}

// AutosaveWorker consumes the persist-answers queue filled by the response
// cache and writes answers to PostgreSQL in batches.
type AutosaveWorker struct {
	sink  AnswerSink
	rdb   *redis.Client
	queue string
	log   zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(sink AnswerSink, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		sink:  sink,
		rdb:   rdb,
		queue: config.WorkerKey.PersistAnswersQueue,
		log:   log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start runs until ctx is cancelled, then flushes what it holds and drains
// the queue.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]model.AnswerEntry, 0, AnswerBatchSize)
	raws := make([]string, 0, AnswerBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 && (len(batch) >= AnswerBatchSize || time.Since(lastFlush) >= AnswerBatchTimeout) {
			if !w.flush(ctx, batch, raws) {
				sleep(ctx, answerRetryDelay)
			}
			batch, raws = batch[:0], raws[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			shutdownCtx := context.WithoutCancel(ctx)
			w.flush(shutdownCtx, batch, raws)
			w.drain(shutdownCtx)
			w.log.Info().Msg("Worker stopped")
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, AnswerPollTimeout, w.queue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
				sleep(ctx, time.Second)
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		var entry model.AnswerEntry
		if err := json.Unmarshal([]byte(item[1]), &entry); err != nil {
			w.log.Error().Err(err).Msg("Dropping malformed answer payload")
			continue
		}
		batch = append(batch, entry)
		raws = append(raws, item[1])
	}
}

// flush writes a batch and requeues it on failure. It reports success.
func (w *AutosaveWorker) flush(ctx context.Context, batch []model.AnswerEntry, raws []string) bool {
	if len(batch) == 0 {
		return true
	}

	if err := w.sink.UpsertResponses(ctx, batch); err != nil {
		w.log.Error().Err(err).Int("count", len(batch)).Msg("Persist failed, requeueing batch")
		args := make([]interface{}, len(raws))
		for i, r := range raws {
			args[i] = r
		}
		if err := w.rdb.RPush(ctx, w.queue, args...).Err(); err != nil {
			w.log.Error().Err(err).Int("count", len(batch)).Msg("Requeue failed, answers remain in attempt cache only")
		}
		return false
	}

	w.log.Debug().Int("count", len(batch)).Msg("Answers persisted")
	return true
}

// drain persists everything still queued before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raws, err := w.rdb.LPopCount(ctx, w.queue, AnswerBatchSize).Result()
		if err != nil || len(raws) == 0 {
			break
		}

		batch := make([]model.AnswerEntry, 0, len(raws))
		kept := raws[:0]
		for _, raw := range raws {
			var entry model.AnswerEntry
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				w.log.Error().Err(err).Msg("Drain unmarshal error")
				continue
			}
			batch = append(batch, entry)
			kept = append(kept, raw)
		}

		if !w.flush(ctx, batch, kept) {
			break
		}
		drained += len(batch)
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining answers")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
