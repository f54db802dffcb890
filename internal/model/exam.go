package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "draft"
	ExamStatusPublished ExamStatus = "published"
)

// Exam represents a generated assessment.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         uuid.UUID  `json:"owner_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DurationMinutes int        `json:"duration_minutes"`
	TotalMarks      int        `json:"total_marks"`
	SourceJobID     uuid.UUID  `json:"source_job_id"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ExamDetail is an exam with its full question set, answers included.
type ExamDetail struct {
	Exam
	Questions []Question `json:"questions"`
}

// ExamPayload is what an attempt-taker sees: no correct answers.
type ExamPayload struct {
	ExamID          uuid.UUID            `json:"exam_id"`
	Title           string               `json:"title"`
	DurationMinutes int                  `json:"duration_minutes"`
	TotalMarks      int                  `json:"total_marks"`
	Questions       []QuestionForStudent `json:"questions"`
}

// NewExamPayload strips answer data from an exam detail.
func NewExamPayload(d *ExamDetail) ExamPayload {
	qs := make([]QuestionForStudent, len(d.Questions))
	for i, q := range d.Questions {
		qs[i] = QuestionForStudent{
			ID:       q.ID,
			Text:     q.Text,
			Options:  q.Options,
			Marks:    q.Marks,
			Position: q.Position,
		}
	}
	return ExamPayload{
		ExamID:          d.ID,
		Title:           d.Title,
		DurationMinutes: d.DurationMinutes,
		TotalMarks:      d.TotalMarks,
		Questions:       qs,
	}
}
