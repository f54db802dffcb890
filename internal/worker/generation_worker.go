package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
	"github.com/SMITGHORI/examgenius-platform/internal/service"
)

const generationPollTimeout = time.Second

// GenerationSource yields queued generation requests.
type GenerationSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (model.GenerationRequest, bool, error)
}

// GenerationProcessor runs the pipeline for one request.
type GenerationProcessor interface {
	Process(ctx context.Context, req model.GenerationRequest) error
}

// GenerationWorker runs a fixed pool of pipeline executors fed from the
// generation queue.
type GenerationWorker struct {
	source      GenerationSource
	processor   GenerationProcessor
	concurrency int
	log         zerolog.Logger
}

// NewGenerationWorker creates a new GenerationWorker.
func NewGenerationWorker(source GenerationSource, processor GenerationProcessor, concurrency int, log zerolog.Logger) *GenerationWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &GenerationWorker{
		source:      source,
		processor:   processor,
		concurrency: concurrency,
		log:         log.With().Str("component", "generation_worker").Logger(),
	}
}

// Start blocks until ctx is cancelled and every in-flight job has finished.
// A job that has been dequeued always runs to a terminal state.
func (w *GenerationWorker) Start(ctx context.Context) {
	w.log.Info().Int("concurrency", w.concurrency).Msg("Worker started")

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
	wg.Wait()

	w.log.Info().Msg("Worker stopped")
}

func (w *GenerationWorker) loop(ctx context.Context, slot int) {
	log := w.log.With().Int("slot", slot).Logger()
	for ctx.Err() == nil {
		req, ok, err := w.source.Dequeue(ctx, generationPollTimeout)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Msg("Dequeue error")
				sleep(ctx, time.Second)
			}
			continue
		}
		if !ok {
			continue
		}

		w.run(context.WithoutCancel(ctx), log, req)
	}
}

func (w *GenerationWorker) run(ctx context.Context, log zerolog.Logger, req model.GenerationRequest) {
	start := time.Now()
	err := w.processor.Process(ctx, req)

	entry := log.Info()
	switch {
	case err == nil:
	case errors.Is(err, service.ErrJobNotPending):
		entry = log.Warn().Err(err)
	default:
		entry = log.Error().Err(err)
	}
	entry.
		Str("job_id", req.JobID.String()).
		Dur("took", time.Since(start)).
		Msg("Generation finished")
}
