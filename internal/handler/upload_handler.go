package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
	"github.com/SMITGHORI/examgenius-platform/internal/response"
	"github.com/SMITGHORI/examgenius-platform/internal/service"
	"github.com/SMITGHORI/examgenius-platform/internal/validator"
)

// multipartOverhead is the allowance for form boundaries and headers on top
// of the file itself.
const multipartOverhead = 1 << 20

// UploadHandler handles PDF submission and generation endpoints.
type UploadHandler struct {
	ingest     *service.IngestService
	generation *service.GenerationService
	maxBytes   int64
	log        zerolog.Logger
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(ingest *service.IngestService, generation *service.GenerationService, maxBytes int64, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		ingest:     ingest,
		generation: generation,
		maxBytes:   maxBytes,
		log:        log.With().Str("component", "upload_handler").Logger(),
	}
}

// CreateUpload godoc
// POST /api/v1/uploads
// Accepts a multipart "file" field holding a PDF and creates a pending job.
func (h *UploadHandler) CreateUpload(c *gin.Context) {
	ownerID, ok := userID(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		failFromService(c, h.log, service.ErrFileTooLarge)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	job, err := h.ingest.Submit(c.Request.Context(), model.UploadFile{
		Name:     header.Filename,
		MimeType: mimeType,
		Bytes:    data,
		Size:     header.Size,
	}, ownerID)
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"job": job})
}

// ListJobs godoc
// GET /api/v1/uploads
// Returns the caller's upload jobs, newest first.
func (h *UploadHandler) ListJobs(c *gin.Context) {
	ownerID, ok := userID(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	jobs, err := h.generation.ListJobs(c.Request.Context(), ownerID, limit)
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"jobs": jobs})
}

// GetJob godoc
// GET /api/v1/uploads/:job_id
// Returns the job's status, and its error reason or exam ID once terminal.
func (h *UploadHandler) GetJob(c *gin.Context) {
	ownerID, ok := userID(c)
	if !ok {
		return
	}
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	job, err := h.generation.GetJob(c.Request.Context(), ownerID, jobID)
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"job": job})
}

// GenerateExam godoc
// POST /api/v1/uploads/:job_id/generate
// Queues exam generation for a pending job. Poll GetJob for the outcome.
func (h *UploadHandler) GenerateExam(c *gin.Context) {
	ownerID, ok := userID(c)
	if !ok {
		return
	}
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	var req model.GenerateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	id, err := h.generation.Trigger(c.Request.Context(), ownerID, req.ToGenerationRequest(jobID))
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{
		"job_id": id,
		"status": model.JobStatusPending,
	})
}
