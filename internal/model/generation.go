package model

import (
	"github.com/google/uuid"
)

// Difficulty of generated questions.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// GenerationRequest carries the parameters of one synthesis run for a job.
type GenerationRequest struct {
	JobID                uuid.UUID  `json:"job_id"`
	Subject              string     `json:"subject"`
	Difficulty           Difficulty `json:"difficulty"`
	DesiredQuestionCount int        `json:"desired_question_count"`
	TotalMarks           int        `json:"total_marks"`
	DurationMinutes      int        `json:"duration_minutes,omitempty"`
}

// MarksPerQuestion is ceil(TotalMarks / DesiredQuestionCount).
func (r GenerationRequest) MarksPerQuestion() int {
	if r.DesiredQuestionCount <= 0 {
		return 0
	}
	return (r.TotalMarks + r.DesiredQuestionCount - 1) / r.DesiredQuestionCount
}

// GenerateExamRequest is the payload for triggering generation on an uploaded job.
type GenerateExamRequest struct {
	Subject              string `json:"subject" binding:"required,min=1,max=120"`
	Difficulty           string `json:"difficulty" binding:"required,difficulty"`
	DesiredQuestionCount int    `json:"desired_question_count" binding:"required,min=1,max=50"`
	TotalMarks           int    `json:"total_marks" binding:"required,min=1,gtefield=DesiredQuestionCount"`
	DurationMinutes      int    `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
}

// ToGenerationRequest binds the payload to a job.
func (r GenerateExamRequest) ToGenerationRequest(jobID uuid.UUID) GenerationRequest {
	return GenerationRequest{
		JobID:                jobID,
		Subject:              r.Subject,
		Difficulty:           Difficulty(r.Difficulty),
		DesiredQuestionCount: r.DesiredQuestionCount,
		TotalMarks:           r.TotalMarks,
		DurationMinutes:      r.DurationMinutes,
	}
}
