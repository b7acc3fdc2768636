package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edulocus/cbt-session-service/internal/config"
)

const (
	SubmissionBatchSize    = 50
	SubmissionBatchTimeout = 2 * time.Second
	SubmissionPollTimeout  = 1 * time.Second
)

// SubmissionWorker consumes persist_submissions_queue and makes final
// answer sets durable. The session row is already closed synchronously by
// the time a payload lands here; this worker writes the immutable
// submission record and then clears the attempt's Redis keys.
type SubmissionWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewSubmissionWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "submission_worker").Logger(),
	}
}

// SubmissionPayload is the queue wire format for one finalized attempt.
// Answers is the JSON-encoded AnswerSet captured at submit time.
type SubmissionPayload struct {
	StudentID   int    `json:"student_id"`
	ExamID      string `json:"exam_id"`
	Answers     string `json:"answers"`
	Reason      string `json:"reason"`
	ClientStart int64  `json:"client_start_unix"`
	ClientEnd   int64  `json:"client_end_unix"`
	SubmittedAt int64  `json:"submitted_at"`
}

func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionWorker started")

	batch := make([]*SubmissionPayload, 0, SubmissionBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= SubmissionBatchSize || time.Since(lastFlush) >= SubmissionBatchTimeout) {

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
			item, err := w.rdb.BLPop(ctx, SubmissionPollTimeout, config.WorkerKey.PersistSubmissionsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p SubmissionPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *SubmissionWorker) flushSafe(ctx context.Context, batch []*SubmissionPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk submission insert failed, using fallback")

		requeued := false
		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, raw)
				requeued = true
			}
		}
		if requeued {
			return
		}
	}

	// Submission records are durable; the attempt's cache keys can go.
	w.bulkClearAttemptKeys(ctx, batch)
}

func (w *SubmissionWorker) bulkInsert(ctx context.Context, batch []*SubmissionPayload) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, p := range batch {
		examID, err := uuid.Parse(p.ExamID)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{
			examID, p.StudentID, []byte(p.Answers), p.Reason,
			time.Unix(p.ClientStart, 0), time.Unix(p.ClientEnd, 0), time.Unix(p.SubmittedAt, 0),
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"submissions"},
		[]string{"exam_id", "student_id", "answers", "reason", "client_start", "client_end", "submitted_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *SubmissionWorker) persistSingle(ctx context.Context, p *SubmissionPayload) error {
	examID, err := uuid.Parse(p.ExamID)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO submissions (exam_id, student_id, answers, reason, client_start, client_end, submitted_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7)
		 ON CONFLICT (exam_id, student_id) DO NOTHING`,
		examID, p.StudentID, p.Answers, p.Reason,
		time.Unix(p.ClientStart, 0), time.Unix(p.ClientEnd, 0), time.Unix(p.SubmittedAt, 0),
	)
	return err
}

func (w *SubmissionWorker) bulkClearAttemptKeys(ctx context.Context, batch []*SubmissionPayload) {
	pipe := w.rdb.Pipeline()

	for _, p := range batch {
		pipe.Del(ctx,
			config.CacheKey.AnswersKey(p.StudentID, p.ExamID),
			config.CacheKey.CursorKey(p.StudentID, p.ExamID),
			config.CacheKey.PaperOrderKey(p.StudentID, p.ExamID),
			config.CacheKey.SessionStartKey(p.StudentID, p.ExamID),
			config.CacheKey.ViolationCountKey(p.StudentID, p.ExamID),
		)
	}

	_, _ = pipe.Exec(ctx)
}
