package websocket

import "github.com/google/uuid"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionFlag      Action = "flag"
	ActionCursor    Action = "cursor"
	ActionViolation Action = "violation"
	ActionResume    Action = "resume"
	ActionFinish    Action = "finish"
	ActionConfirm   Action = "confirm"
	ActionCancel    Action = "cancel"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest applies one selection to a question's stored answer.
// Option carries the chosen option id; for statement rows, Row carries
// the true/false value.
type AnswerRequest struct {
	Action Action    `json:"action"`
	QID    uuid.UUID `json:"q_id"`
	Option uuid.UUID `json:"option"`
	Row    *bool     `json:"row,omitempty"`
}

// FlagRequest toggles a question's doubtful flag.
type FlagRequest struct {
	Action   Action    `json:"action"`
	QID      uuid.UUID `json:"q_id"`
	Doubtful bool      `json:"doubtful"`
}

// CursorRequest moves the navigation cursor. Index jumps directly; Delta
// steps relative to the current position when Index is negative.
type CursorRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
	Delta  int    `json:"delta"`
}

// ViolationRequest reports a detected lockdown breach.
type ViolationRequest struct {
	Action Action `json:"action"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSaved Event = "saved"
	EventState Event = "state"
	EventError Event = "error"
	EventPong  Event = "pong"
)

// SavedResponse acknowledges a stored answer or flag with the value the
// server now holds.
type SavedResponse struct {
	Event  Event       `json:"event"`
	QID    uuid.UUID   `json:"q_id"`
	Answer interface{} `json:"answer,omitempty"`
}

// CursorResponse acknowledges a cursor move with the clamped position.
type CursorResponse struct {
	Event Event `json:"event"`
	Index int   `json:"index"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
