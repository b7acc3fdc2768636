package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edulocus/cbt-session-service/internal/config"
	"github.com/edulocus/cbt-session-service/internal/session"
)

const (
	OrderBatchSize    = 50
	OrderBatchTimeout = 2 * time.Second
	OrderPollTimeout  = 1 * time.Second
)

// OrderWorker consumes persist_order_queue and stores frozen shuffle
// snapshots on the session row. The snapshot is written once per attempt,
// at start; a reconnecting student must see the exact same order.
type OrderWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewOrderWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *OrderWorker {
	return &OrderWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "order_worker").Logger(),
	}
}

// OrderPayload is the queue wire format for one frozen snapshot.
type OrderPayload struct {
	ExamID    string                `json:"exam_id"`
	StudentID int                   `json:"student_id"`
	Order     session.OrderSnapshot `json:"order"`
}

func (w *OrderWorker) Start(ctx context.Context) {
	w.log.Info().Msg("OrderWorker started")

	batch := make([]*OrderPayload, 0, OrderBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= OrderBatchSize || time.Since(lastFlush) >= OrderBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, OrderPollTimeout, config.WorkerKey.PersistOrderQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p OrderPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *OrderWorker) flushSafe(ctx context.Context, batch []*OrderPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpdate(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk order update failed, using fallback")

		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistOrderQueue, raw)
			}
		}
	}
}

func (w *OrderWorker) bulkUpdate(ctx context.Context, batch []*OrderPayload) error {
	n := len(batch)

	examIDs := make([]uuid.UUID, 0, n)
	students := make([]int, 0, n)
	snapshots := make([][]byte, 0, n)

	for _, p := range batch {
		eID, err := uuid.Parse(p.ExamID)
		if err != nil {
			return err
		}

		sb, _ := json.Marshal(p.Order)

		examIDs = append(examIDs, eID)
		students = append(students, p.StudentID)
		snapshots = append(snapshots, sb)
	}

	query := `
		UPDATE exam_sessions AS s
		SET paper_order = t.po
		FROM (
			SELECT
				u.exam_id,
				u.student_id,
				u.po
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::jsonb[]
			) AS u (exam_id, student_id, po)
		) AS t
		WHERE s.exam_id = t.exam_id
		  AND s.student_id = t.student_id
	`

	_, err := w.pool.Exec(ctx, query, examIDs, students, snapshots)
	return err
}

func (w *OrderWorker) persistSingle(ctx context.Context, p *OrderPayload) error {
	eID, err := uuid.Parse(p.ExamID)
	if err != nil {
		return err
	}

	sb, _ := json.Marshal(p.Order)

	_, err = w.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET paper_order = $1
		 WHERE exam_id = $2 AND student_id = $3`,
		sb, eID, p.StudentID,
	)

	return err
}
