package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/edulocus/cbt-session-service/internal/middleware"
	"github.com/edulocus/cbt-session-service/internal/model"
	"github.com/edulocus/cbt-session-service/internal/service"
	"github.com/edulocus/cbt-session-service/internal/session"
	ws "github.com/edulocus/cbt-session-service/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
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

// connNotifier serializes all writes to one WebSocket connection: the
// handler's acks and the runtime's async events share the same mutex,
// since gorilla connections allow only one concurrent writer.
type connNotifier struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (n *connNotifier) Notify(ev session.Event) {
	_ = n.write(ev)
}

func (n *connNotifier) write(v interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return ws.WriteTyped(n.conn, v)
}

func (n *connNotifier) writeError(msg string) {
	_ = n.write(ws.ErrorResponse{Event: ws.EventError, Error: msg})
}

// WSHandler handles the WebSocket exam stream.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Upgrades to WebSocket, attaches the attempt runtime, and routes exam
// actions: answers, flags, cursor moves, violations, and the finish flow.
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	studentID := claims.UserID

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	notifier := &connNotifier{conn: conn}

	rt, err := h.sessionService.Runtime(c.Request.Context(), examID, studentID)
	if err != nil {
		notifier.writeError(streamErrMessage(err))
		return
	}

	rt.Attach(notifier)
	defer rt.Attach(nil)

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		conn.SetReadDeadline(time.Now().Add(ws.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			notifier.writeError("malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionAnswer:
			h.handleAnswer(notifier, examID, studentID, raw)
		case ws.ActionFlag:
			h.handleFlag(notifier, examID, studentID, raw)
		case ws.ActionCursor:
			h.handleCursor(notifier, rt, examID, studentID, raw)
		case ws.ActionViolation:
			h.handleViolation(notifier, wsLog, rt, examID, studentID, raw)
		case ws.ActionResume:
			if _, err := rt.Resume(); err != nil {
				notifier.writeError("session locked")
			}
		case ws.ActionFinish:
			rt.RequestFinish()
		case ws.ActionConfirm:
			// Finalization must not die with the connection.
			rt.ConfirmFinish(context.Background())
		case ws.ActionCancel:
			rt.CancelFinish()
		case ws.ActionPing:
			_ = notifier.write(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			notifier.writeError("unknown action: " + string(envelope.Action))
		}
	}
}

func (h *WSHandler) handleAnswer(n *connNotifier, examID uuid.UUID, studentID int, raw []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		n.writeError("malformed answer payload")
		return
	}
	if req.QID == uuid.Nil || req.Option == uuid.Nil {
		n.writeError("q_id and option are required")
		return
	}

	value, err := h.sessionService.SaveAnswer(context.Background(), examID, studentID, req.QID,
		model.Selection{Option: req.Option, Row: req.Row})
	if err != nil {
		h.log.Error().Err(err).Int("student_id", studentID).Msg("Answer save failed")
		n.writeError("save failed")
		return
	}

	_ = n.write(ws.SavedResponse{Event: ws.EventSaved, QID: req.QID, Answer: value})
}

func (h *WSHandler) handleFlag(n *connNotifier, examID uuid.UUID, studentID int, raw []byte) {
	var req ws.FlagRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		n.writeError("malformed flag payload")
		return
	}
	if req.QID == uuid.Nil {
		n.writeError("q_id is required")
		return
	}

	if err := h.sessionService.SetDoubtful(context.Background(), examID, studentID, req.QID, req.Doubtful); err != nil {
		h.log.Error().Err(err).Int("student_id", studentID).Msg("Flag save failed")
		n.writeError("save failed")
		return
	}

	_ = n.write(ws.SavedResponse{Event: ws.EventSaved, QID: req.QID})
}

func (h *WSHandler) handleCursor(n *connNotifier, rt *session.Runtime, examID uuid.UUID, studentID int, raw []byte) {
	var req ws.CursorRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		n.writeError("malformed cursor payload")
		return
	}

	var index int
	if req.Index >= 0 {
		index = rt.SetCursor(req.Index)
	} else {
		index = rt.Move(req.Delta)
	}

	if err := h.sessionService.SetCursor(context.Background(), examID, studentID, index); err != nil {
		h.log.Warn().Err(err).Msg("Cursor persist failed")
	}

	_ = n.write(ws.CursorResponse{Event: ws.EventState, Index: index})
}

func (h *WSHandler) handleViolation(n *connNotifier, wsLog zerolog.Logger, rt *session.Runtime, examID uuid.UUID, studentID int, raw []byte) {
	var req ws.ViolationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		n.writeError("malformed violation payload")
		return
	}

	kind := model.ViolationKind(req.Kind)

	// The runtime decides escalation and pushes warned/disqualified
	// events itself; persistence trails behind. The durable counter only
	// moves for strikes the machine actually counted, so a report racing
	// the submit path cannot inflate a later replay.
	_, counted := rt.ReportViolation(context.Background(), kind)

	if err := h.sessionService.RecordViolation(context.Background(), examID, studentID, kind, req.Detail, counted); err != nil {
		wsLog.Error().Err(err).Msg("Violation persist failed")
	}
}

func streamErrMessage(err error) string {
	switch err {
	case service.ErrSessionNotStarted:
		return "no active session for this exam"
	case service.ErrSessionFinished:
		return "exam already completed"
	case service.ErrSessionDisqualified:
		return "disqualified from this exam"
	default:
		return "session unavailable"
	}
}
