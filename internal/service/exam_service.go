package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
	"github.com/SMITGHORI/examgenius-platform/internal/repository"
)

// ExamSource loads exams with their question sets.
type ExamSource interface {
	GetDetail(ctx context.Context, id uuid.UUID) (*model.ExamDetail, error)
}

// ExamCatalog lists an owner's exams and moves drafts to published.
type ExamCatalog interface {
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]model.Exam, error)
	Publish(ctx context.Context, id, ownerID uuid.UUID) error
}

// ExamService exposes generated exams to their owners.
type ExamService struct {
	exams   ExamSource
	catalog ExamCatalog
	log     zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamSource, catalog ExamCatalog, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:   exams,
		catalog: catalog,
		log:     log.With().Str("component", "exam_service").Logger(),
	}
}

// ListForOwner returns the owner's exams, newest first.
func (s *ExamService) ListForOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]model.Exam, error) {
	exams, err := s.catalog.ListByOwner(ctx, ownerID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return exams, nil
}

// GetForOwner returns the exam with answers, visible only to its owner.
func (s *ExamService) GetForOwner(ctx context.Context, ownerID, examID uuid.UUID) (*model.ExamDetail, error) {
	detail, err := s.load(ctx, examID)
	if err != nil {
		return nil, err
	}
	if detail.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return detail, nil
}

// Publish makes a draft exam available for attempts.
func (s *ExamService) Publish(ctx context.Context, ownerID, examID uuid.UUID) (*model.ExamDetail, error) {
	detail, err := s.load(ctx, examID)
	if err != nil {
		return nil, err
	}
	if detail.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	if detail.Status != model.ExamStatusDraft {
		return nil, fmt.Errorf("%w: exam is %s", ErrInvalidState, detail.Status)
	}
	if len(detail.Questions) == 0 {
		return nil, fmt.Errorf("%w: exam has no questions", ErrInvalidState)
	}

	if err := s.catalog.Publish(ctx, examID, ownerID); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			return nil, fmt.Errorf("%w: exam is no longer a draft", ErrInvalidState)
		}
		return nil, fmt.Errorf("publish exam: %w", err)
	}
	detail.Status = model.ExamStatusPublished

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return detail, nil
}

func (s *ExamService) load(ctx context.Context, examID uuid.UUID) (*model.ExamDetail, error) {
	detail, err := s.exams.GetDetail(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return detail, nil
}
