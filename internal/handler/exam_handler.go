package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/response"
	"github.com/SMITGHORI/examgenius-platform/internal/service"
)

// ExamHandler handles generated exam endpoints for authors.
type ExamHandler struct {
	exams *service.ExamService
	log   zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(exams *service.ExamService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		exams: exams,
		log:   log.With().Str("component", "exam_handler").Logger(),
	}
}

// ListExams godoc
// GET /api/v1/exams
// Returns the caller's exams, newest first, without questions.
func (h *ExamHandler) ListExams(c *gin.Context) {
	ownerID, ok := userID(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	exams, err := h.exams.ListForOwner(c.Request.Context(), ownerID, limit)
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/exams/:exam_id
// Returns the exam with its questions and correct answers to its owner.
func (h *ExamHandler) GetExam(c *gin.Context) {
	ownerID, ok := userID(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	exam, err := h.exams.GetForOwner(c.Request.Context(), ownerID, examID)
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// PublishExam godoc
// POST /api/v1/exams/:exam_id/publish
// Moves a draft exam to published so it can be attempted.
func (h *ExamHandler) PublishExam(c *gin.Context) {
	ownerID, ok := userID(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "exam_id")
	if !ok {
		return
	}

	exam, err := h.exams.Publish(c.Request.Context(), ownerID, examID)
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}
