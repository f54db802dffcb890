package websocket

import (
	"time"

	"github.com/google/uuid"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionSubmit Action = "submit"
	ActionState  Action = "state"
	ActionPing   Action = "ping"
)

// Request is every client message. Fields not used by an action are ignored.
type Request struct {
	Action      Action `json:"action"`
	QuestionID  string `json:"question_id,omitempty"`
	OptionIndex *int   `json:"option_index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventAnswered  Event = "answered"
	EventSubmitted Event = "submitted"
	EventTick      Event = "tick"
	EventState     Event = "state"
	EventExpired   Event = "expired"
	EventPong      Event = "pong"
)

type AnsweredResponse struct {
	Event       Event     `json:"event"`
	QuestionID  uuid.UUID `json:"question_id"`
	OptionIndex int       `json:"option_index"`
}

type SubmittedResponse struct {
	Event       Event     `json:"event"`
	Score       int       `json:"score"`
	TotalMarks  int       `json:"total_marks"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// TickResponse carries the server-side countdown.
type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

// StateResponse replays the attempt after a reconnect.
type StateResponse struct {
	Event            Event             `json:"event"`
	Status           string            `json:"status"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Responses        map[uuid.UUID]int `json:"responses"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
