package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edulocus/cbt-session-service/internal/response"
	"github.com/edulocus/cbt-session-service/internal/service"
)

// AdminSessionHandler handles proctor-facing session administration.
type AdminSessionHandler struct {
	sessionService *service.SessionService
	authService    *service.AuthService
}

// NewAdminSessionHandler creates a new AdminSessionHandler.
func NewAdminSessionHandler(
	sessionService *service.SessionService,
	authService *service.AuthService,
) *AdminSessionHandler {
	return &AdminSessionHandler{
		sessionService: sessionService,
		authService:    authService,
	}
}

// ListExamSessions godoc
// GET /api/v1/admin/exams/:exam_id/sessions
// Lists every attempt for an exam with status, violations and timing.
func (h *AdminSessionHandler) ListExamSessions(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sessions, err := h.sessionService.ListSessions(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// ResetExamSession godoc
// POST /api/v1/admin/exams/:exam_id/sessions/:student_id/reset
// Marks the attempt as reset, ejects the live runtime and clears attempt state
// so the student can start over on any device.
func (h *AdminSessionHandler) ResetExamSession(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	studentID, err := strconv.Atoi(c.Param("student_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.sessionService.AdminResetSession(c.Request.Context(), examID, studentID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "session reset successfully"})
}

// ResetStudentLogin godoc
// POST /api/v1/admin/students/:id/reset-login
// Clears a student's active login session so they can sign in on a new device.
func (h *AdminSessionHandler) ResetStudentLogin(c *gin.Context) {
	studentID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.authService.ResetStudentSession(c.Request.Context(), studentID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "student login reset successfully"})
}
