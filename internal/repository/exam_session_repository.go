package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edulocus/cbt-session-service/internal/model"
)

// SessionOverview combines student identity with their session state for
// the proctor monitor.
type SessionOverview struct {
	StudentID  int                 `json:"student_id"`
	Name       string              `json:"name"`
	NISN       string              `json:"nisn"`
	ClassName  string              `json:"class_name"`
	Status     model.SessionStatus `json:"status"`
	Violations int                 `json:"violations"`
	StartedAt  *time.Time          `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at"`
}

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// GetByExamAndStudent retrieves a session for a specific exam-student combination.
func (r *ExamSessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_id, started_at, finished_at, status, end_reason, violations
		 FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(&s.ID, &s.ExamID, &s.StudentID, &s.StartedAt, &s.FinishedAt, &s.Status, &s.EndReason, &s.Violations)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new in-progress session. The insert is idempotent: if
// the student already has a session for this exam the existing row wins
// and its original started_at anchor is returned.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, student_id) DO UPDATE SET exam_id = exam_sessions.exam_id
		 RETURNING id, started_at, status, violations`,
		s.ExamID, s.StudentID, model.SessionStatusInProgress,
	).Scan(&s.ID, &s.StartedAt, &s.Status, &s.Violations)
}

// Finish closes a session with a terminal status and end reason. Only an
// IN_PROGRESS row is updated, so a finished session can never be finished
// again with a different reason.
func (r *ExamSessionRepository) Finish(ctx context.Context, examID uuid.UUID, studentID int, status model.SessionStatus, endReason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, end_reason = $2, finished_at = $3
		 WHERE exam_id = $4 AND student_id = $5 AND status = $6`,
		status, endReason, time.Now(), examID, studentID, model.SessionStatusInProgress)
	return err
}

// Reopen returns a closed session to IN_PROGRESS after an admin reset.
// The started_at anchor is refreshed so the rejoining student gets a
// full clock.
func (r *ExamSessionRepository) Reopen(ctx context.Context, examID uuid.UUID, studentID int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, end_reason = NULL, finished_at = NULL, violations = 0, started_at = $2
		 WHERE exam_id = $3 AND student_id = $4`,
		model.SessionStatusInProgress, time.Now(), examID, studentID)
	return err
}

// AddViolations bumps the persisted strike counter by n.
func (r *ExamSessionRepository) AddViolations(ctx context.Context, examID uuid.UUID, studentID int, n int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET violations = violations + $1
		 WHERE exam_id = $2 AND student_id = $3`,
		n, examID, studentID)
	return err
}

// ListByExam retrieves every student session for an exam, ordered for the
// monitor table.
func (r *ExamSessionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]SessionOverview, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name, s.nisn, s.class_name,
		        es.status, es.violations, es.started_at, es.finished_at
		 FROM exam_sessions es
		 JOIN students s ON es.student_id = s.id
		 WHERE es.exam_id = $1
		 ORDER BY s.class_name ASC, s.name ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SessionOverview
	for rows.Next() {
		var o SessionOverview
		if err := rows.Scan(
			&o.StudentID, &o.Name, &o.NISN, &o.ClassName,
			&o.Status, &o.Violations, &o.StartedAt, &o.FinishedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, o)
	}
	return results, rows.Err()
}
