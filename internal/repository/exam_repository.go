package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edulocus/cbt-session-service/internal/model"
)

// ExamRepository handles read-side exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID, including its question count.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT e.id, e.title, e.duration_seconds, e.scheduled_start, e.scheduled_end, e.status,
		        (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id)
		 FROM exams e WHERE e.id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.DurationSeconds, &e.ScheduledStart, &e.ScheduledEnd,
		&e.Status, &e.QuestionCount)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListJoinable returns every exam students may currently enter. Used for
// cache prewarming on application startup.
func (r *ExamRepository) ListJoinable(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, duration_seconds, scheduled_start, scheduled_end, status,
		        (SELECT COUNT(*) FROM questions q WHERE q.exam_id = exams.id)
		 FROM exams WHERE status = ANY($1)
		 ORDER BY scheduled_start ASC`,
		[]model.ExamStatus{model.ExamStatusPublished, model.ExamStatusInProgress})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.DurationSeconds, &e.ScheduledStart,
			&e.ScheduledEnd, &e.Status, &e.QuestionCount); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
