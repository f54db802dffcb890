package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
	"github.com/SMITGHORI/examgenius-platform/internal/repository"
)

// AttemptStore persists attempts.
type AttemptStore interface {
	Create(ctx context.Context, a *model.ExamAttempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error)
	Finalize(ctx context.Context, id uuid.UUID, score int, submittedAt time.Time, responses map[uuid.UUID]int) (bool, error)
	ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	IsOpen(ctx context.Context, id uuid.UUID) (bool, error)
	ListSubmittedByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.AttemptSummary, error)
}

// ResponseStore holds the live answers of active attempts.
type ResponseStore interface {
	Record(ctx context.Context, entry model.AnswerEntry) error
	Load(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]int, error)
	Clear(ctx context.Context, attemptID uuid.UUID) error
}

// AttemptService runs timed attempts. Deadlines are checked lazily on each
// call: answers are refused after the deadline while submit is always
// accepted and finalizes an attempt exactly once.
type AttemptService struct {
	attempts  AttemptStore
	responses ResponseStore
	exams     ExamSource
	now       func() time.Time
	log       zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts AttemptStore, responses ResponseStore, exams ExamSource, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		attempts:  attempts,
		responses: responses,
		exams:     exams,
		now:       time.Now,
		log:       log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start opens an attempt on a published exam.
func (s *AttemptService) Start(ctx context.Context, examID, userID uuid.UUID) (*model.AttemptView, error) {
	detail, err := s.exams.GetDetail(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if detail.Status != model.ExamStatusPublished {
		return nil, ErrNotFound
	}

	now := s.now()
	attempt := &model.ExamAttempt{
		ExamID:     examID,
		UserID:     userID,
		StartedAt:  now,
		DeadlineAt: now.Add(time.Duration(detail.DurationMinutes) * time.Minute),
		Responses:  map[uuid.UUID]int{},
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", examID.String()).
		Time("deadline_at", attempt.DeadlineAt).
		Msg("Attempt started")
	return s.view(attempt, detail, now), nil
}

// Get returns the attempt state with the question payload.
func (s *AttemptService) Get(ctx context.Context, userID, attemptID uuid.UUID) (*model.AttemptView, error) {
	attempt, err := s.load(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	detail, err := s.detail(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if attempt.SubmittedAt == nil {
		if attempt.Responses, err = s.currentResponses(ctx, attempt); err != nil {
			return nil, err
		}
	}
	return s.view(attempt, detail, s.now()), nil
}

// RecordAnswer sets responses[questionID] = optionIndex. Re-answering
// overwrites the previous choice.
func (s *AttemptService) RecordAnswer(ctx context.Context, userID, attemptID, questionID uuid.UUID, optionIndex int) error {
	attempt, err := s.load(ctx, userID, attemptID)
	if err != nil {
		return err
	}

	now := s.now()
	if attempt.SubmittedAt != nil {
		return fmt.Errorf("%w: attempt already submitted", ErrInvalidState)
	}
	if attempt.Expired(now) {
		return fmt.Errorf("%w: attempt deadline has passed", ErrInvalidState)
	}
	if optionIndex < 0 || optionIndex >= model.OptionCount {
		return fmt.Errorf("%w: option index %d out of range", ErrInvalidRequest, optionIndex)
	}

	detail, err := s.detail(ctx, attempt.ExamID)
	if err != nil {
		return err
	}
	if !hasQuestion(detail, questionID) {
		return fmt.Errorf("%w: question %s is not part of this exam", ErrNotFound, questionID)
	}

	if err := s.responses.Record(ctx, model.AnswerEntry{
		AttemptID:   attemptID,
		QuestionID:  questionID,
		OptionIndex: optionIndex,
		AnsweredAt:  now,
	}); err != nil {
		return err
	}

	// A submit that finalized between load and Record has already cleared
	// the live answers; drop the late write instead of leaving it cached.
	open, err := s.attempts.IsOpen(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("check attempt: %w", err)
	}
	if !open {
		if err := s.responses.Clear(ctx, attemptID); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to clear late answer")
		}
		return fmt.Errorf("%w: attempt already submitted", ErrInvalidState)
	}
	return nil
}

// ListResults returns the caller's submitted attempts with their scores,
// most recently submitted first.
func (s *AttemptService) ListResults(ctx context.Context, userID uuid.UUID, limit int) ([]model.AttemptSummary, error) {
	results, err := s.attempts.ListSubmittedByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return results, nil
}

// Submit finalizes the attempt and returns its score. Repeated calls return
// the stored score without recomputing.
func (s *AttemptService) Submit(ctx context.Context, userID, attemptID uuid.UUID) (*model.SubmitResult, error) {
	attempt, err := s.load(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, attempt)
}

// SweepExpired finalizes up to limit attempts whose deadline passed without a
// submit, through the same path as Submit.
func (s *AttemptService) SweepExpired(ctx context.Context, limit int) (int, error) {
	ids, err := s.attempts.ListExpiredOpen(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired attempts: %w", err)
	}

	swept := 0
	for _, id := range ids {
		attempt, err := s.attempts.GetByID(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Sweep load failed")
			continue
		}
		if _, err := s.finalize(ctx, attempt); err != nil {
			s.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Sweep finalize failed")
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *AttemptService) finalize(ctx context.Context, attempt *model.ExamAttempt) (*model.SubmitResult, error) {
	detail, err := s.detail(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if attempt.SubmittedAt != nil {
		return storedResult(attempt, detail), nil
	}

	responses, err := s.currentResponses(ctx, attempt)
	if err != nil {
		return nil, err
	}

	score := Score(detail.Questions, responses)
	submittedAt := s.now()
	finalized, err := s.attempts.Finalize(ctx, attempt.ID, score, submittedAt, responses)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}

	if !finalized {
		// Another submit won the race; report what it stored.
		stored, err := s.attempts.GetByID(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("reload attempt: %w", err)
		}
		return storedResult(stored, detail), nil
	}

	if err := s.responses.Clear(ctx, attempt.ID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Could not clear cached responses")
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("score", score).
		Int("total_marks", detail.TotalMarks).
		Bool("late", attempt.Expired(submittedAt)).
		Msg("Attempt submitted")
	return &model.SubmitResult{
		AttemptID:   attempt.ID,
		Score:       score,
		TotalMarks:  detail.TotalMarks,
		SubmittedAt: submittedAt,
	}, nil
}

// Score sums the marks of correctly answered questions. Unanswered questions
// and responses to unknown questions contribute nothing.
func Score(questions []model.Question, responses map[uuid.UUID]int) int {
	score := 0
	for _, q := range questions {
		if idx, ok := responses[q.ID]; ok && idx == q.CorrectOptionIndex {
			score += q.Marks
		}
	}
	return score
}

// currentResponses overlays cached answers on the durably persisted ones.
func (s *AttemptService) currentResponses(ctx context.Context, attempt *model.ExamAttempt) (map[uuid.UUID]int, error) {
	cached, err := s.responses.Load(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("load cached responses: %w", err)
	}
	merged := make(map[uuid.UUID]int, len(attempt.Responses)+len(cached))
	for k, v := range attempt.Responses {
		merged[k] = v
	}
	for k, v := range cached {
		merged[k] = v
	}
	return merged, nil
}

func (s *AttemptService) load(ctx context.Context, userID, attemptID uuid.UUID) (*model.ExamAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, ErrNotFound
	}
	return attempt, nil
}

func (s *AttemptService) detail(ctx context.Context, examID uuid.UUID) (*model.ExamDetail, error) {
	detail, err := s.exams.GetDetail(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return detail, nil
}

func (s *AttemptService) view(a *model.ExamAttempt, detail *model.ExamDetail, now time.Time) *model.AttemptView {
	payload := model.NewExamPayload(detail)
	responses := a.Responses
	if responses == nil {
		responses = map[uuid.UUID]int{}
	}
	return &model.AttemptView{
		ID:               a.ID,
		ExamID:           a.ExamID,
		Status:           a.Status(),
		StartedAt:        a.StartedAt,
		DeadlineAt:       a.DeadlineAt,
		RemainingSeconds: a.RemainingSeconds(now),
		Responses:        responses,
		SubmittedAt:      a.SubmittedAt,
		Score:            a.Score,
		Exam:             &payload,
	}
}

func storedResult(a *model.ExamAttempt, detail *model.ExamDetail) *model.SubmitResult {
	res := &model.SubmitResult{AttemptID: a.ID, TotalMarks: detail.TotalMarks}
	if a.Score != nil {
		res.Score = *a.Score
	}
	if a.SubmittedAt != nil {
		res.SubmittedAt = *a.SubmittedAt
	}
	return res
}

func hasQuestion(detail *model.ExamDetail, questionID uuid.UUID) bool {
	for _, q := range detail.Questions {
		if q.ID == questionID {
			return true
		}
	}
	return false
}
