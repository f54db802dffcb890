package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
	"github.com/SMITGHORI/examgenius-platform/internal/response"
	"github.com/SMITGHORI/examgenius-platform/internal/service"
	"github.com/SMITGHORI/examgenius-platform/internal/validator"
)

// AttemptHandler handles timed exam attempts.
type AttemptHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// StartAttempt godoc
// POST /api/v1/exams/:exam_id/attempts
// Opens an attempt on a published exam. The response carries the question
// payload without answers and the server deadline.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	attempt, err := h.attempts.Start(c.Request.Context(), examID, uid)
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": attempt})
}

// ListAttempts godoc
// GET /api/v1/attempts
// Returns the caller's submitted attempts with score and total marks, most
// recently submitted first.
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	results, err := h.attempts.ListResults(c.Request.Context(), uid, limit)
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": results})
}

// GetAttempt godoc
// GET /api/v1/attempts/:attempt_id
// Returns the attempt state, remaining time and recorded responses.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	attemptID, ok := pathID(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.attempts.Get(c.Request.Context(), uid, attemptID)
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// RecordAnswer godoc
// PUT /api/v1/attempts/:attempt_id/answers
// Records or overwrites the chosen option for one question.
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	attemptID, ok := pathID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	err = h.attempts.RecordAnswer(c.Request.Context(), uid, attemptID, questionID, *req.OptionIndex)
	if errors.Is(err, service.ErrInvalidState) {
		response.FailWithMessage(c, http.StatusConflict, response.ErrAttemptClosed, err.Error())
		return
	}
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_id":  questionID,
		"option_index": *req.OptionIndex,
	})
}

// SubmitAttempt godoc
// POST /api/v1/attempts/:attempt_id/submit
// Finalizes the attempt and returns the score. Accepted after the deadline;
// repeated calls return the stored result.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	attemptID, ok := pathID(c, "attempt_id")
	if !ok {
		return
	}

	result, err := h.attempts.Submit(c.Request.Context(), uid, attemptID)
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}
