package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/edulocus/cbt-session-service/internal/config"
)

// MonitorRepository provides data access for live exam supervision.
// Session rows and violation history come from PostgreSQL; answered
// counts come from the per-student answer hashes in Redis, because the
// durable student_answers rows trail behind the autosave queue.
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// GetInProgressStudentIDs returns all student IDs with an active session for the given exam.
func (r *MonitorRepository) GetInProgressStudentIDs(ctx context.Context, examID uuid.UUID) ([]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id FROM exam_sessions WHERE exam_id = $1 AND status = 'IN_PROGRESS'`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetLiveAnsweredCounts reads the answered count for each student from
// their Redis answer hash in one pipeline. Doubt-flag fields share the
// hash and are excluded from the count.
func (r *MonitorRepository) GetLiveAnsweredCounts(ctx context.Context, examID uuid.UUID, studentIDs []int) (map[int]int64, error) {
	result := make(map[int]int64, len(studentIDs))
	if len(studentIDs) == 0 {
		return result, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make(map[int]*redis.StringSliceCmd, len(studentIDs))
	for _, sid := range studentIDs {
		cmds[sid] = pipe.HKeys(ctx, config.CacheKey.AnswersKey(sid, examID.String()))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	for sid, cmd := range cmds {
		var count int64
		for _, field := range cmd.Val() {
			if !strings.HasPrefix(field, config.DoubtFieldPrefix) {
				count++
			}
		}
		result[sid] = count
	}
	return result, nil
}

// GetPersistedAnsweredCounts returns the count of durable answers per
// student. Used when the live hash is gone, for completed attempts.
func (r *MonitorRepository) GetPersistedAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	result := make(map[int]int64)

	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM student_answers
		 WHERE exam_id = $1
		 GROUP BY student_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		result[sid] = count
	}

	return result, rows.Err()
}

// GetViolationCounts returns the number of lockdown violations recorded for
// each student in the given exam.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM exam_violations
		 WHERE exam_id = $1
		 GROUP BY student_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}

	return counts, rows.Err()
}
