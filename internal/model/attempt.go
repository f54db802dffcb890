package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus is derived from SubmittedAt.
type AttemptStatus string

const (
	AttemptStatusActive    AttemptStatus = "active"
	AttemptStatusSubmitted AttemptStatus = "submitted"
)

// ExamAttempt is one user's timed pass over an exam.
type ExamAttempt struct {
	ID          uuid.UUID         `json:"id"`
	ExamID      uuid.UUID         `json:"exam_id"`
	UserID      uuid.UUID         `json:"user_id"`
	StartedAt   time.Time         `json:"started_at"`
	DeadlineAt  time.Time         `json:"deadline_at"`
	Responses   map[uuid.UUID]int `json:"responses"`
	SubmittedAt *time.Time        `json:"submitted_at,omitempty"`
	Score       *int              `json:"score,omitempty"`
}

// AttemptSummary is one finalized attempt in a user's results list.
type AttemptSummary struct {
	AttemptID   uuid.UUID `json:"attempt_id"`
	ExamID      uuid.UUID `json:"exam_id"`
	ExamTitle   string    `json:"exam_title"`
	Score       int       `json:"score"`
	TotalMarks  int       `json:"total_marks"`
	StartedAt   time.Time `json:"started_at"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Status reports active until the attempt is finalized.
func (a *ExamAttempt) Status() AttemptStatus {
	if a.SubmittedAt != nil {
		return AttemptStatusSubmitted
	}
	return AttemptStatusActive
}

// Expired reports whether now is strictly past the deadline.
func (a *ExamAttempt) Expired(now time.Time) bool {
	return now.After(a.DeadlineAt)
}

// RemainingSeconds is the server-side countdown, never negative.
func (a *ExamAttempt) RemainingSeconds(now time.Time) int {
	d := a.DeadlineAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// AttemptView is the attempt state returned to the taker.
type AttemptView struct {
	ID               uuid.UUID         `json:"id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	Status           AttemptStatus     `json:"status"`
	StartedAt        time.Time         `json:"started_at"`
	DeadlineAt       time.Time         `json:"deadline_at"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Responses        map[uuid.UUID]int `json:"responses"`
	SubmittedAt      *time.Time        `json:"submitted_at,omitempty"`
	Score            *int              `json:"score,omitempty"`
	Exam             *ExamPayload      `json:"exam,omitempty"`
}

// AnswerEntry is one persisted response, queued for durable write.
type AnswerEntry struct {
	AttemptID   uuid.UUID `json:"attempt_id"`
	QuestionID  uuid.UUID `json:"question_id"`
	OptionIndex int       `json:"option_index"`
	AnsweredAt  time.Time `json:"answered_at"`
}

// RecordAnswerRequest is the payload for answering a question.
type RecordAnswerRequest struct {
	QuestionID  string `json:"question_id" binding:"required,uuid"`
	OptionIndex *int   `json:"option_index" binding:"required,min=0,max=3"`
}

// SubmitResult is returned by submit.
type SubmitResult struct {
	AttemptID   uuid.UUID `json:"attempt_id"`
	Score       int       `json:"score"`
	TotalMarks  int       `json:"total_marks"`
	SubmittedAt time.Time `json:"submitted_at"`
}
