package model

import (
	"github.com/google/uuid"
)

// OptionCount is the fixed number of options on every question.
const OptionCount = 4

// Question represents one generated multiple-choice item.
type Question struct {
	ID                 uuid.UUID `json:"id"`
	ExamID             uuid.UUID `json:"exam_id"`
	Text               string    `json:"question_text"`
	Options            []string  `json:"options"`
	CorrectOptionIndex int       `json:"correct_option_index"`
	Explanation        *string   `json:"explanation,omitempty"`
	Marks              int       `json:"marks"`
	SourcePage         *int      `json:"source_page,omitempty"`
	Position           int       `json:"position"`
}

// QuestionForStudent is a question without the correct answer.
type QuestionForStudent struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"question_text"`
	Options  []string  `json:"options"`
	Marks    int       `json:"marks"`
	Position int       `json:"position"`
}
