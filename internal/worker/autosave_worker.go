package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edulocus/cbt-session-service/internal/config"
)

// AutosaveWorker consumes persist_answers_queue and UPSERTs structured
// answer values to PostgreSQL. The Redis hash is the write-through source
// of truth during the attempt; this worker trails it so a cache flush is
// never fatal.
type AutosaveWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "autosave_worker").Logger(),
	}
}

// AnswerPayload is the queue wire format for one answer write. Answer is
// the JSON-encoded AnswerValue; empty values mean the answer was cleared.
type AnswerPayload struct {
	StudentID int    `json:"student_id"`
	ExamID    string `json:"exam_id"`
	QID       string `json:"q_id"`
	Answer    string `json:"answer"`
	Doubtful  bool   `json:"doubtful"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	payload, examID, questionID, err := decodeAnswerPayload([]byte(result[1]))
	if err != nil {
		// A payload that cannot decode will never decode; requeueing it
		// would stall the queue behind it forever.
		w.deadLetter(ctx, result[1], err)
		return
	}

	if err := w.persistAnswer(ctx, payload, examID, questionID); err != nil {
		w.log.Error().Err(err).
			Int("student_id", payload.StudentID).
			Str("exam_id", payload.ExamID).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

// decodeAnswerPayload validates a raw queue item. Any error it returns is
// permanent: the bytes are malformed or carry IDs that will never parse.
func decodeAnswerPayload(raw []byte) (*AnswerPayload, uuid.UUID, uuid.UUID, error) {
	var payload AnswerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, uuid.Nil, uuid.Nil, err
	}

	examID, err := uuid.Parse(payload.ExamID)
	if err != nil {
		return nil, uuid.Nil, uuid.Nil, fmt.Errorf("exam_id: %w", err)
	}

	questionID, err := uuid.Parse(payload.QID)
	if err != nil {
		return nil, uuid.Nil, uuid.Nil, fmt.Errorf("q_id: %w", err)
	}

	return &payload, examID, questionID, nil
}

// deadLetter parks an undecodable item so an operator can inspect it.
func (w *AutosaveWorker) deadLetter(ctx context.Context, raw string, cause error) {
	w.log.Error().Err(cause).Str("payload", raw).Msg("Dropping undecodable answer payload to dead letter queue")
	if err := w.rdb.RPush(ctx, config.WorkerKey.DeadLetterQueue, raw).Err(); err != nil {
		w.log.Error().Err(err).Msg("Dead letter push failed")
	}
}

func (w *AutosaveWorker) persistAnswer(ctx context.Context, p *AnswerPayload, examID, questionID uuid.UUID) error {
	var err error
	if p.Answer == "" {
		// Cleared answer: drop the row so answered counts stay honest.
		_, err = w.pool.Exec(ctx,
			`DELETE FROM student_answers
			 WHERE exam_id = $1 AND student_id = $2 AND question_id = $3`,
			examID, p.StudentID, questionID,
		)
		return err
	}

	// UPSERT the answer — creates or updates without locking.
	_, err = w.pool.Exec(ctx,
		`INSERT INTO student_answers (exam_id, student_id, question_id, answer, doubtful)
		 VALUES ($1, $2, $3, $4::jsonb, $5)
		 ON CONFLICT (exam_id, student_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, doubtful = EXCLUDED.doubtful, updated_at = NOW()`,
		examID, p.StudentID, questionID, p.Answer, p.Doubtful,
	)
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		payload, examID, questionID, err := decodeAnswerPayload([]byte(result))
		if err != nil {
			w.deadLetter(ctx, result, err)
			continue
		}

		if err := w.persistAnswer(ctx, payload, examID, questionID); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
