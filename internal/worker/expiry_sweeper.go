package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const sweepBatch = 100

// AttemptSweeper finalizes expired attempts.
type AttemptSweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// ExpirySweeper periodically finalizes attempts whose deadline passed
// without a submit.
type ExpirySweeper struct {
	attempts AttemptSweeper
	interval time.Duration
	log      zerolog.Logger
}

// NewExpirySweeper creates a new ExpirySweeper. A non-positive interval
// disables it.
func NewExpirySweeper(attempts AttemptSweeper, interval time.Duration, log zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		attempts: attempts,
		interval: interval,
		log:      log.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Start runs until ctx is cancelled.
func (s *ExpirySweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info().Msg("Expiry sweep disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := s.attempts.SweepExpired(ctx, sweepBatch)
		if err != nil {
			s.log.Error().Err(err).Msg("Sweep failed")
			return
		}
		if n > 0 {
			s.log.Info().Int("finalized", n).Msg("Expired attempts finalized")
		}
		if n < sweepBatch {
			return
		}
	}
}
