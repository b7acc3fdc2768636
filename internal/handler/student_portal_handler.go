package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edulocus/cbt-session-service/internal/middleware"
	"github.com/edulocus/cbt-session-service/internal/response"
	"github.com/edulocus/cbt-session-service/internal/service"
)

// StudentPortalHandler handles student-facing exam-taking endpoints.
type StudentPortalHandler struct {
	sessionService *service.SessionService
	examService    *service.ExamService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(sessionService *service.SessionService, examService *service.ExamService) *StudentPortalHandler {
	return &StudentPortalHandler{sessionService: sessionService, examService: examService}
}

// ListExams godoc
// GET /api/v1/student/exams
// Lists exams the student may currently enter.
func (h *StudentPortalHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	exams, err := h.examService.ListJoinable(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// StartExam godoc
// POST /api/v1/student/exams/:exam_id/start
// Opens (or resumes) the student's attempt and returns their personalized
// paper with the frozen question order. Idempotent: a reload re-enters
// the same attempt with the original clock anchor and order.
func (h *StudentPortalHandler) StartExam(c *gin.Context) {
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

	paper, err := h.sessionService.StartSession(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		h.failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// GetExamPaper godoc
// GET /api/v1/student/exams/:exam_id/paper
// Returns the attempt's paper in its frozen per-student order. Requires
// a started attempt; students cannot download papers they have not
// entered.
func (h *StudentPortalHandler) GetExamPaper(c *gin.Context) {
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

	// The paper endpoint is start-again: the idempotent start already
	// refuses unjoinable exams and closed attempts, and the frozen order
	// makes the replay identical.
	paper, err := h.sessionService.StartSession(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		h.failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// GetExamState godoc
// GET /api/v1/student/exams/:exam_id/state
// Returns the resume payload after a page reload: saved answers and
// flags, the recomputed remaining time, the cursor, and the integrity
// counters.
func (h *StudentPortalHandler) GetExamState(c *gin.Context) {
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

	state, err := h.sessionService.GetState(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		h.failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// GetSessionStatus godoc
// GET /api/v1/student/session/status
// Lightweight liveness poll for clients without an open stream: reports
// whether an administrator reset is pending for this student.
func (h *StudentPortalHandler) GetSessionStatus(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	forceReset, err := h.sessionService.ForceResetPending(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if forceReset {
		response.Success(c, http.StatusOK, gin.H{"ok": false, "force_reset": true})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"ok": true})
}

func (h *StudentPortalHandler) failSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotAvailable):
		response.Fail(c, http.StatusBadRequest, response.ErrExamNotAvailable)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
	case errors.Is(err, service.ErrSessionNotStarted):
		response.Fail(c, http.StatusForbidden, response.ErrSessionNotStarted)
	case errors.Is(err, service.ErrSessionFinished):
		response.Fail(c, http.StatusConflict, response.ErrSessionFinished)
	case errors.Is(err, service.ErrSessionDisqualified):
		response.Fail(c, http.StatusForbidden, response.ErrSessionDisqualified)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
