package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
	"github.com/SMITGHORI/examgenius-platform/internal/response"
	"github.com/SMITGHORI/examgenius-platform/internal/service"
	ws "github.com/SMITGHORI/examgenius-platform/internal/websocket"
)

const tickInterval = 15 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live attempt: answers and submit go up, the server
// countdown comes down.
type WSHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
	upgrader websocket.Upgrader
	tick     time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		tick:     tickInterval,
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream
// Upgrades to WebSocket for answering, submitting and countdown updates.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	attemptID, ok := pathID(c, "attempt_id")
	if !ok {
		return
	}

	// Ownership and existence are checked before the upgrade so that the
	// client gets a plain HTTP error.
	view, err := h.attempts.Get(c.Request.Context(), uid, attemptID)
	if err != nil {
		failFromService(c, h.log, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_id", uid.String()).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Msg("Taker connected")

	if view.Status == model.AttemptStatusSubmitted {
		h.writeStored(conn, view)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go h.countdown(ctx, conn, view.DeadlineAt)

	for {
		var msg ws.Request
		if err := conn.ReadRequest(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(ctx, conn, wsLog, uid, attemptID, &msg)
		case ws.ActionSubmit:
			if h.handleSubmit(ctx, conn, wsLog, uid, attemptID) {
				return
			}
		case ws.ActionState:
			h.handleState(ctx, conn, wsLog, uid, attemptID)
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, conn *ws.Conn, log zerolog.Logger, uid, attemptID uuid.UUID, msg *ws.Request) {
	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil || msg.OptionIndex == nil {
		_ = conn.WriteError(string(response.ErrValidation), "question_id and option_index are required")
		return
	}

	err = h.attempts.RecordAnswer(ctx, uid, attemptID, questionID, *msg.OptionIndex)
	switch {
	case err == nil:
		_ = conn.WriteTyped(ws.AnsweredResponse{
			Event:       ws.EventAnswered,
			QuestionID:  questionID,
			OptionIndex: *msg.OptionIndex,
		})
	case errors.Is(err, service.ErrInvalidState):
		_ = conn.WriteError(string(response.ErrAttemptClosed), err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		_ = conn.WriteError(string(response.ErrValidation), err.Error())
	case errors.Is(err, service.ErrNotFound):
		_ = conn.WriteError(string(response.ErrNotFound), err.Error())
	default:
		log.Error().Err(err).Msg("Record answer failed")
		_ = conn.WriteError(string(response.ErrInternal), "save failed")
	}
}

// handleSubmit reports whether the attempt is now closed.
func (h *WSHandler) handleSubmit(ctx context.Context, conn *ws.Conn, log zerolog.Logger, uid, attemptID uuid.UUID) bool {
	result, err := h.attempts.Submit(ctx, uid, attemptID)
	if err != nil {
		log.Error().Err(err).Msg("Submit failed")
		_ = conn.WriteError(string(response.ErrInternal), "submit failed")
		return false
	}

	_ = conn.WriteTyped(ws.SubmittedResponse{
		Event:       ws.EventSubmitted,
		Score:       result.Score,
		TotalMarks:  result.TotalMarks,
		SubmittedAt: result.SubmittedAt,
	})
	return true
}

func (h *WSHandler) handleState(ctx context.Context, conn *ws.Conn, log zerolog.Logger, uid, attemptID uuid.UUID) {
	view, err := h.attempts.Get(ctx, uid, attemptID)
	if err != nil {
		log.Error().Err(err).Msg("Load attempt state failed")
		_ = conn.WriteError(string(response.ErrInternal), "state unavailable")
		return
	}

	_ = conn.WriteTyped(ws.StateResponse{
		Event:            ws.EventState,
		Status:           string(view.Status),
		RemainingSeconds: view.RemainingSeconds,
		Responses:        view.Responses,
	})
}

func (h *WSHandler) writeStored(conn *ws.Conn, view *model.AttemptView) {
	res := ws.SubmittedResponse{Event: ws.EventSubmitted}
	if view.Score != nil {
		res.Score = *view.Score
	}
	if view.Exam != nil {
		res.TotalMarks = view.Exam.TotalMarks
	}
	if view.SubmittedAt != nil {
		res.SubmittedAt = *view.SubmittedAt
	}
	_ = conn.WriteTyped(res)
}

// countdown pushes the remaining time until the deadline, then a single
// expired event. The client still has to submit.
func (h *WSHandler) countdown(ctx context.Context, conn *ws.Conn, deadline time.Time) {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		remaining := int(time.Until(deadline) / time.Second)
		if remaining <= 0 {
			_ = conn.WriteTyped(ws.TickResponse{Event: ws.EventExpired})
			return
		}
		if err := conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, RemainingSeconds: remaining}); err != nil {
			return
		}

		wait := h.tick
		if left := time.Until(deadline); left < wait {
			wait = left
		}
		ticker.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
