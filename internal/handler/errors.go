package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/middleware"
	"github.com/SMITGHORI/examgenius-platform/internal/response"
	"github.com/SMITGHORI/examgenius-platform/internal/service"
)

// failFromService maps domain errors to HTTP responses. Unknown errors are
// logged and reported as internal.
func failFromService(c *gin.Context, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrFileTooLarge):
		response.FailWithMessage(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge, err.Error())
	case errors.Is(err, service.ErrUnsupportedType):
		response.FailWithMessage(c, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile, err.Error())
	case errors.Is(err, service.ErrInvalidFile):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrFileRequired, err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotOwner)
	case errors.Is(err, service.ErrJobNotPending):
		response.Fail(c, http.StatusConflict, response.ErrJobNotPending)
	case errors.Is(err, service.ErrInvalidState):
		response.FailWithMessage(c, http.StatusConflict, response.ErrInvalidState, err.Error())
	default:
		log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("path", c.FullPath()).
			Msg("Request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// userID returns the authenticated caller or writes 401.
func userID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.GetUserID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
	}
	return id, ok
}

// pathID parses a UUID path parameter or writes 400.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// queryLimit parses the optional ?limit= page size or writes 400. Zero means
// the service default.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}
