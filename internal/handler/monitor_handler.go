package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edulocus/cbt-session-service/internal/config"
	"github.com/edulocus/cbt-session-service/internal/middleware"
	"github.com/edulocus/cbt-session-service/internal/model"
	"github.com/edulocus/cbt-session-service/internal/response"
	"github.com/edulocus/cbt-session-service/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams live supervision data to proctors over SSE.
type MonitorHandler struct {
	rdb            *redis.Client
	examService    *service.ExamService
	sessionService *service.SessionService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(
	rdb *redis.Client,
	examService *service.ExamService,
	sessionService *service.SessionService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		examService:    examService,
		sessionService: sessionService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:exam_id/monitor
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	totalQuestions := exam.QuestionCount

	h.sendInitialSnapshot(c, reqCtx, examID, exam, totalQuestions)

	// Live events (joins, submissions, violations) arrive via pub/sub;
	// the refresh ticker covers anything the events miss.
	channelName := config.CacheKey.ExamMonitorChannel(examID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	hasStudents := false

	h.log.Info().Str("exam_id", examID.String()).Msg("Admin attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg := <-ch:
			// Forward raw JSON directly, no deserialization needed.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

			hasStudents = true

		case <-refreshTicker.C:
			if !hasStudents {
				continue
			}
			h.sendRefresh(c, reqCtx, examID, totalQuestions)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendInitialSnapshot gathers data and writes the first SSE event.
func (h *MonitorHandler) sendInitialSnapshot(
	c *gin.Context,
	ctx context.Context,
	examID uuid.UUID,
	exam *model.Exam,
	totalQuestions int,
) {
	overviews, err := h.sessionService.ListSessions(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to list sessions for snapshot")
	}

	totalJoined := len(overviews)
	totalInProgress := 0
	totalCompleted := 0
	totalLocked := 0

	studentsSnapshot := make([]map[string]interface{}, 0, len(overviews))
	for _, o := range overviews {
		switch o.Status {
		case model.SessionStatusInProgress:
			totalInProgress++
		case model.SessionStatusCompleted:
			totalCompleted++
		case model.SessionStatusDisqualified:
			totalLocked++
		}

		studentsSnapshot = append(studentsSnapshot, map[string]interface{}{
			"student_id":      o.StudentID,
			"name":            o.Name,
			"nisn":            o.NISN,
			"class_name":      o.ClassName,
			"status":          o.Status,
			"violations":      o.Violations,
			"started_at":      o.StartedAt,
			"answered_count":  int64(0),
			"violation_count": int64(o.Violations),
			"total_questions": totalQuestions,
		})
	}

	// Fetch counts with a timeout so a slow query doesn't block the connection.
	var initialTotalViolations int64
	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	if progress, err := h.monitorService.GetStudentProgress(fetchCtx, examID); err == nil {
		initialTotalViolations = progress.TotalViolations
		for i, s := range studentsSnapshot {
			sid, ok := s["student_id"].(int)
			if !ok {
				continue
			}
			if count, found := progress.AnsweredCounts[sid]; found {
				studentsSnapshot[i]["answered_count"] = count
			}
			if count, found := progress.ViolationCounts[sid]; found {
				studentsSnapshot[i]["violation_count"] = count
			}
		}
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": map[string]interface{}{
			"exam": map[string]interface{}{
				"id":               examID.String(),
				"title":            exam.Title,
				"duration_seconds": exam.DurationSeconds,
				"total_questions":  totalQuestions,
			},
			"stats": map[string]interface{}{
				"total_joined":       totalJoined,
				"total_in_progress":  totalInProgress,
				"total_completed":    totalCompleted,
				"total_disqualified": totalLocked,
				"total_violations":   initialTotalViolations,
			},
			"students": studentsSnapshot,
		},
	})
	c.Writer.Flush()
}

// sendRefresh polls DB+Redis for current progress and sends a compact refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID, totalQuestions int) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.monitorService.GetStudentProgress(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch student progress for refresh")
		return
	}

	progressData := make([]map[string]interface{}, 0, len(progress.AnsweredCounts)+len(progress.ViolationCounts))

	for sid, answered := range progress.AnsweredCounts {
		progressData = append(progressData, map[string]interface{}{
			"student_id":      sid,
			"answered_count":  answered,
			"violation_count": progress.ViolationCounts[sid], // 0 if missing
		})
		delete(progress.ViolationCounts, sid) // mark as handled
	}

	// Remaining violation-only students (no persisted answers yet).
	for sid, violations := range progress.ViolationCounts {
		progressData = append(progressData, map[string]interface{}{
			"student_id":      sid,
			"answered_count":  int64(0),
			"violation_count": violations,
		})
	}

	c.SSEvent("message", map[string]interface{}{
		"type":             "refresh",
		"total_questions":  totalQuestions,
		"total_violations": progress.TotalViolations,
		"students":         progressData,
	})
	c.Writer.Flush()
}
