package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
	"github.com/SMITGHORI/examgenius-platform/internal/repository"
)

// JobStore reads jobs and applies conditional status transitions.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.UploadJob, error)
	Transition(ctx context.Context, id uuid.UUID, from, to model.JobStatus, t model.JobTransition) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]model.UploadJob, error)
}

// ExamCreator persists an exam with its questions and completes the source
// job, all or nothing.
type ExamCreator interface {
	CreateForJob(ctx context.Context, e *model.Exam, questions []model.Question) error
}

// Extractor produces plain text for a job.
type Extractor interface {
	Extract(ctx context.Context, job *model.UploadJob) (string, error)
}

// Synthesizer produces validated questions from text.
type Synthesizer interface {
	Synthesize(ctx context.Context, title, text string, req model.GenerationRequest) ([]model.Question, error)
}

// GenerationEnqueuer hands requests to the background workers.
type GenerationEnqueuer interface {
	Enqueue(ctx context.Context, req model.GenerationRequest) error
}

// RetryPolicy bounds retries of transient failures. The delay before attempt
// n+1 is BaseDelay * 2^(n-1).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay << (attempt - 1)
}

const (
	generatedTitleSuffix = " - Generated Exam"
	generatedDescription = "Generated from PDF analysis"
	maxDurationMinutes   = 480
	maxQuestionCount     = 50
)

// GenerationService drives a job through extraction, synthesis and
// persistence. It is the only writer of job status after creation.
type GenerationService struct {
	jobs            JobStore
	exams           ExamCreator
	extractor       Extractor
	synthesizer     Synthesizer
	queue           GenerationEnqueuer
	retry           RetryPolicy
	defaultDuration int
	sleep           func(ctx context.Context, d time.Duration) error
	log             zerolog.Logger
}

// NewGenerationService creates a new GenerationService.
func NewGenerationService(
	jobs JobStore,
	exams ExamCreator,
	extractor Extractor,
	synthesizer Synthesizer,
	queue GenerationEnqueuer,
	retry RetryPolicy,
	defaultDuration int,
	log zerolog.Logger,
) *GenerationService {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &GenerationService{
		jobs:            jobs,
		exams:           exams,
		extractor:       extractor,
		synthesizer:     synthesizer,
		queue:           queue,
		retry:           retry,
		defaultDuration: defaultDuration,
		sleep:           sleepContext,
		log:             log.With().Str("component", "generation_service").Logger(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GetJob returns a job owned by ownerID.
func (s *GenerationService) GetJob(ctx context.Context, ownerID, jobID uuid.UUID) (*model.UploadJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return job, nil
}

// ListJobs returns the owner's upload jobs, newest first.
func (s *GenerationService) ListJobs(ctx context.Context, ownerID uuid.UUID, limit int) ([]model.UploadJob, error) {
	jobs, err := s.jobs.ListByOwner(ctx, ownerID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Trigger validates a generation request for a pending job owned by ownerID
// and queues it. The job id is returned for polling.
func (s *GenerationService) Trigger(ctx context.Context, ownerID uuid.UUID, req model.GenerationRequest) (uuid.UUID, error) {
	if err := ValidateGenerationRequest(req); err != nil {
		return uuid.Nil, err
	}

	job, err := s.GetJob(ctx, ownerID, req.JobID)
	if err != nil {
		return uuid.Nil, err
	}
	if job.Status != model.JobStatusPending {
		return uuid.Nil, ErrJobNotPending
	}

	if err := s.queue.Enqueue(ctx, req); err != nil {
		return uuid.Nil, fmt.Errorf("enqueue generation: %w", err)
	}

	s.log.Info().
		Str("job_id", req.JobID.String()).
		Str("subject", req.Subject).
		Int("questions", req.DesiredQuestionCount).
		Msg("Generation queued")
	return req.JobID, nil
}

// ValidateGenerationRequest checks request bounds. Every question must be
// able to carry at least one mark.
func ValidateGenerationRequest(req model.GenerationRequest) error {
	switch {
	case strings.TrimSpace(req.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidRequest)
	case req.Difficulty != model.DifficultyEasy && req.Difficulty != model.DifficultyMedium && req.Difficulty != model.DifficultyHard:
		return fmt.Errorf("%w: difficulty %q", ErrInvalidRequest, req.Difficulty)
	case req.DesiredQuestionCount < 1 || req.DesiredQuestionCount > maxQuestionCount:
		return fmt.Errorf("%w: desired question count %d", ErrInvalidRequest, req.DesiredQuestionCount)
	case req.TotalMarks < req.DesiredQuestionCount:
		return fmt.Errorf("%w: total marks %d below question count %d", ErrInvalidRequest, req.TotalMarks, req.DesiredQuestionCount)
	case req.DurationMinutes < 0 || req.DurationMinutes > maxDurationMinutes:
		return fmt.Errorf("%w: duration %d minutes", ErrInvalidRequest, req.DurationMinutes)
	}
	return nil
}

// Process runs the pipeline for one job. Calling it on a job that is not
// pending returns ErrJobNotPending and changes nothing.
func (s *GenerationService) Process(ctx context.Context, req model.GenerationRequest) error {
	log := s.log.With().Str("job_id", req.JobID.String()).Logger()

	job, err := s.jobs.GetByID(ctx, req.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status != model.JobStatusPending {
		log.Error().Str("status", string(job.Status)).Msg("Refusing to process job that is not pending")
		return ErrJobNotPending
	}

	if err := ValidateGenerationRequest(req); err != nil {
		return s.fail(ctx, job, model.JobStatusPending, err)
	}

	// pending -> extracting
	if err := s.transition(ctx, job, model.JobStatusPending, model.JobStatusExtracting, model.JobTransition{}); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			return ErrJobNotPending
		}
		return s.fail(ctx, job, model.JobStatusPending, err)
	}

	var text string
	err = s.withRetry(ctx, log, "extract", func() (bool, error) {
		var extractErr error
		text, extractErr = s.extractor.Extract(ctx, job)
		var typed *ExtractionError
		return extractErr != nil && !errors.As(extractErr, &typed), extractErr
	})
	if err != nil {
		return s.fail(ctx, job, model.JobStatusExtracting, err)
	}

	// extracting -> synthesizing
	if err := s.transition(ctx, job, model.JobStatusExtracting, model.JobStatusSynthesizing, model.JobTransition{ExtractedText: &text}); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			log.Error().Err(err).Msg("Job changed state during extraction")
			return err
		}
		return s.fail(ctx, job, model.JobStatusExtracting, err)
	}

	title := SourceTitle(job.OriginalFilename)
	var questions []model.Question
	err = s.withRetry(ctx, log, "synthesize", func() (bool, error) {
		var synthErr error
		questions, synthErr = s.synthesizer.Synthesize(ctx, title, text, req)
		var typed *SynthesisError
		return errors.As(synthErr, &typed) && typed.Retryable(), synthErr
	})
	if err != nil {
		return s.fail(ctx, job, model.JobStatusSynthesizing, err)
	}

	total := 0
	for _, q := range questions {
		total += q.Marks
	}
	if total != req.TotalMarks {
		return s.fail(ctx, job, model.JobStatusSynthesizing,
			fmt.Errorf("%w: got %d, want %d", ErrMarksMismatch, total, req.TotalMarks))
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = s.defaultDuration
	}
	exam := &model.Exam{
		OwnerID:         job.OwnerID,
		Title:           title + generatedTitleSuffix,
		Description:     generatedDescription,
		DurationMinutes: duration,
		TotalMarks:      total,
		SourceJobID:     job.ID,
		Status:          model.ExamStatusDraft,
	}

	// synthesizing -> completed, together with the exam insert
	if err := s.exams.CreateForJob(ctx, exam, questions); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			log.Error().Err(err).Msg("Job changed state during persistence")
			return err
		}
		return s.fail(ctx, job, model.JobStatusSynthesizing, fmt.Errorf("persist exam: %w", err))
	}

	log.Info().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(questions)).
		Int("total_marks", total).
		Str("from", string(model.JobStatusSynthesizing)).
		Str("to", string(model.JobStatusCompleted)).
		Msg("Job completed")
	return nil
}

// withRetry runs op until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached, sleeping with exponential backoff in between.
func (s *GenerationService) withRetry(ctx context.Context, log zerolog.Logger, stage string, op func() (retryable bool, err error)) error {
	var err error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		var retryable bool
		retryable, err = op()
		if err == nil {
			return nil
		}
		if !retryable || attempt == s.retry.MaxAttempts {
			break
		}

		delay := s.retry.Delay(attempt)
		log.Warn().Err(err).
			Str("stage", stage).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Transient failure, retrying")
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func (s *GenerationService) transition(ctx context.Context, job *model.UploadJob, from, to model.JobStatus, t model.JobTransition) error {
	if err := s.jobs.Transition(ctx, job.ID, from, to, t); err != nil {
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	job.Status = to
	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Job transitioned")
	return nil
}

// fail moves the job into error with a human-readable reason and returns
// cause. The write ignores cancellation of ctx so that a job is never left
// mid-pipeline because the caller went away.
func (s *GenerationService) fail(ctx context.Context, job *model.UploadJob, from model.JobStatus, cause error) error {
	reason := FailureReason(cause)
	if err := s.transition(context.WithoutCancel(ctx), job, from, model.JobStatusError, model.JobTransition{ErrorReason: &reason}); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID.String()).Msg("Could not record job failure")
	}
	s.log.Error().Err(cause).
		Str("job_id", job.ID.String()).
		Str("reason", reason).
		Msg("Job failed")
	return cause
}
