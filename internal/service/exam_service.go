package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edulocus/cbt-session-service/internal/config"
	"github.com/edulocus/cbt-session-service/internal/model"
	"github.com/edulocus/cbt-session-service/internal/repository"
)

// Domain errors.
var (
	ErrExamNotAvailable = errors.New("exam is not available for joining")
	ErrNoQuestions      = errors.New("exam has no questions")
)

// ExamService serves canonical exam papers through a Redis read cache.
// The authoring system owns the write side; this service only warms and
// reads. Cached payloads never contain answer keys.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// ListJoinable returns the exams students may currently enter.
func (s *ExamService) ListJoinable(ctx context.Context) ([]model.Exam, error) {
	return s.examRepo.ListJoinable(ctx)
}

// WarmExamCache loads an exam's canonical question list and duration from
// PostgreSQL into Redis.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	payloadJSON, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(exam.ID.String()), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.ExamDurationKey(exam.ID.String()), exam.DurationSeconds, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads every joinable exam into Redis on application
// startup. This prevents lazy-loading races under thundering herd traffic
// when a whole cohort starts at the same minute.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListJoinable(ctx)
	if err != nil {
		return fmt.Errorf("list joinable exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No joinable exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(exams)).Msg("Prewarming joinable exams...")

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// GetCanonicalQuestions returns the exam's questions in authored order,
// from cache when possible. A cache miss falls back to PostgreSQL and
// self-heals the cache.
func (s *ExamService) GetCanonicalQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var questions []model.Question
		if err := json.Unmarshal(data, &questions); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return questions, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	if payloadJSON, err := json.Marshal(questions); err == nil {
		_ = s.rdb.Set(ctx, key, payloadJSON, 0).Err()
	}

	return questions, nil
}

// GetDurationSeconds returns the exam's time limit from cache, falling
// back to PostgreSQL with self-heal.
func (s *ExamService) GetDurationSeconds(ctx context.Context, examID uuid.UUID) (int, error) {
	key := config.CacheKey.ExamDurationKey(examID.String())
	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		seconds, convErr := strconv.Atoi(val)
		if convErr != nil {
			return 0, fmt.Errorf("invalid duration format in cache: %w", convErr)
		}
		return seconds, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("get duration: %w", err)
	}

	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return 0, fmt.Errorf("get exam: %w", err)
	}

	_ = s.rdb.Set(ctx, key, exam.DurationSeconds, 0).Err()
	return exam.DurationSeconds, nil
}
