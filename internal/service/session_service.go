package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edulocus/cbt-session-service/internal/config"
	"github.com/edulocus/cbt-session-service/internal/model"
	"github.com/edulocus/cbt-session-service/internal/repository"
	"github.com/edulocus/cbt-session-service/internal/session"
	"github.com/edulocus/cbt-session-service/internal/worker"
)

// Session domain errors.
var (
	ErrSessionNotStarted   = errors.New("no session for this exam")
	ErrSessionFinished     = errors.New("exam session is already completed")
	ErrSessionDisqualified = errors.New("student is disqualified from this exam")
	ErrUnknownQuestion     = errors.New("question does not belong to this exam")
	ErrUnknownOption       = errors.New("option does not belong to this question")
)

// SessionService owns the full lifecycle of exam attempts: the idempotent
// start with its frozen per-student shuffle, resumable state, answer
// capture, violation accounting, and the terminal close. It is also the
// Finalizer and Presence collaborator of every attempt runtime.
type SessionService struct {
	sessionRepo *repository.ExamSessionRepository
	examService *ExamService
	authService *AuthService
	registry    *session.Registry
	rdb         *redis.Client
	cfg         *config.Config
	log         zerolog.Logger

	// runCtx bounds runtime goroutines to the application lifetime, not
	// to the request that happened to start them.
	runCtx context.Context
}

// NewSessionService creates a new SessionService. runCtx should be the
// application context; cancelling it stops every attempt runtime.
func NewSessionService(
	runCtx context.Context,
	sessionRepo *repository.ExamSessionRepository,
	examService *ExamService,
	authService *AuthService,
	registry *session.Registry,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		examService: examService,
		authService: authService,
		registry:    registry,
		rdb:         rdb,
		cfg:         cfg,
		log:         log.With().Str("component", "session_service").Logger(),
		runCtx:      runCtx,
	}
}

// StartSession opens (or re-enters) the student's attempt and returns
// their personalized paper. Calling it again for a live attempt is a
// no-op resume: the original anchor and frozen order are reused, so a
// page reload never reshuffles and never restarts the clock.
func (s *SessionService) StartSession(ctx context.Context, examID uuid.UUID, studentID int) (*model.SessionPaper, error) {
	exam, err := s.examService.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if !exam.Joinable() {
		return nil, ErrExamNotAvailable
	}

	sess := &model.ExamSession{ExamID: examID, StudentID: studentID}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	switch sess.Status {
	case model.SessionStatusCompleted:
		return nil, ErrSessionFinished
	case model.SessionStatusDisqualified:
		return nil, ErrSessionDisqualified
	case model.SessionStatusReset:
		// An admin wiped the previous attempt; reopen with a fresh anchor.
		if err := s.sessionRepo.Reopen(ctx, examID, studentID); err != nil {
			return nil, fmt.Errorf("reopen session: %w", err)
		}
		reopened, err := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
		if err != nil {
			return nil, fmt.Errorf("reload session: %w", err)
		}
		sess = reopened
		// The reset has been honored; a stale signal must not kick the
		// fresh attempt on its first presence poll.
		_ = s.rdb.Del(ctx, config.CacheKey.ForceResetKey(studentID)).Err()
	}

	// Cache the authoritative anchor so state reads skip PostgreSQL.
	startKey := config.CacheKey.SessionStartKey(studentID, examID.String())
	if err := s.rdb.Set(ctx, startKey, sess.StartedAt.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache start time, state reads will fall back to DB")
	}

	canonical, err := s.examService.GetCanonicalQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}

	shuffled, err := s.attemptPaper(ctx, examID, studentID, sess.StartedAt, canonical)
	if err != nil {
		return nil, err
	}

	if _, err := s.ensureRuntime(ctx, examID, studentID, sess, exam.Duration(), len(canonical)); err != nil {
		return nil, err
	}

	s.publishMonitorEvent(ctx, examID, studentID, "joined", sess.Violations)

	return &model.SessionPaper{
		ExamID:          examID,
		Title:           exam.Title,
		DurationSeconds: exam.DurationSeconds,
		StartUnix:       sess.StartedAt.Unix(),
		Questions:       shuffled,
	}, nil
}

// attemptPaper returns the student's shuffled question list. The first
// call derives it from the attempt seed and freezes the snapshot; every
// later call replays the snapshot, so the order survives reloads and
// reconnects byte for byte.
func (s *SessionService) attemptPaper(ctx context.Context, examID uuid.UUID, studentID int, start time.Time, canonical []model.Question) ([]model.Question, error) {
	orderKey := config.CacheKey.PaperOrderKey(studentID, examID.String())

	raw, err := s.rdb.Get(ctx, orderKey).Bytes()
	if err == nil {
		var snap session.OrderSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal order snapshot: %w", err)
		}
		shuffled, err := session.ApplyOrder(canonical, snap)
		if err != nil {
			return nil, fmt.Errorf("replay frozen order: %w", err)
		}
		return shuffled, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get order snapshot: %w", err)
	}

	rng := rand.New(rand.NewSource(attemptSeed(examID, studentID, start)))
	shuffled, snap := session.Shuffle(canonical, rng)

	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal order snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, orderKey, snapJSON, 0).Err(); err != nil {
		return nil, fmt.Errorf("freeze order snapshot: %w", err)
	}

	// Durable copy trails through the order queue.
	payload, _ := json.Marshal(worker.OrderPayload{
		ExamID:    examID.String(),
		StudentID: studentID,
		Order:     snap,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistOrderQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to enqueue order snapshot for persistence")
	}

	return shuffled, nil
}

// attemptSeed derives the deterministic shuffle seed for one attempt.
// Seeding from (exam, student, anchor) makes the shuffle reproducible for
// the attempt yet distinct across students and retakes.
func attemptSeed(examID uuid.UUID, studentID int, start time.Time) int64 {
	h := fnv.New64a()
	h.Write(examID[:])
	fmt.Fprintf(h, ":%d:%d", studentID, start.Unix())
	return int64(h.Sum64())
}

// ensureRuntime registers and starts the attempt runtime if this instance
// does not hold one yet.
func (s *SessionService) ensureRuntime(ctx context.Context, examID uuid.UUID, studentID int, sess *model.ExamSession, duration time.Duration, questionCount int) (*session.Runtime, error) {
	if rt, ok := s.registry.Get(examID, studentID); ok {
		return rt, nil
	}

	violations, err := s.violationCount(ctx, examID, studentID, sess.Violations)
	if err != nil {
		return nil, err
	}

	rt := session.NewRuntime(session.Config{
		ExamID:           examID,
		StudentID:        studentID,
		Start:            sess.StartedAt,
		Duration:         duration,
		QuestionCount:    questionCount,
		PresenceInterval: s.cfg.PresenceInterval,
		DisqualifyGrace:  s.cfg.DisqualifyGrace,
	},
		&attemptFinalizer{svc: s, examID: examID, studentID: studentID},
		&attemptPresence{svc: s, examID: examID, studentID: studentID},
		violations,
		s.log,
	)

	rt = s.registry.Put(examID, studentID, rt)
	rt.Start(s.runCtx)
	return rt, nil
}

// Runtime returns the live runtime for an attempt, rebuilding it from
// durable state when this instance has none (reconnect after restart).
func (s *SessionService) Runtime(ctx context.Context, examID uuid.UUID, studentID int) (*session.Runtime, error) {
	if rt, ok := s.registry.Get(examID, studentID); ok {
		return rt, nil
	}

	sess, err := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotStarted
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	switch sess.Status {
	case model.SessionStatusCompleted:
		return nil, ErrSessionFinished
	case model.SessionStatusDisqualified:
		return nil, ErrSessionDisqualified
	case model.SessionStatusReset:
		return nil, ErrSessionNotStarted
	}

	durationSeconds, err := s.examService.GetDurationSeconds(ctx, examID)
	if err != nil {
		return nil, err
	}
	canonical, err := s.examService.GetCanonicalQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}

	return s.ensureRuntime(ctx, examID, studentID, sess,
		time.Duration(durationSeconds)*time.Second, len(canonical))
}

// GetState assembles the resume payload for an attempt: answers and
// doubtful flags, the recomputed remaining time, the navigation cursor,
// and the integrity counters.
func (s *SessionService) GetState(ctx context.Context, examID uuid.UUID, studentID int) (*model.SessionState, error) {
	answers, err := s.readAnswerSet(ctx, examID, studentID)
	if err != nil {
		// Degrade to an empty set rather than failing the resume: the
		// durable copy trails in PostgreSQL and the hash self-heals on
		// the next answer write.
		s.log.Warn().Err(err).Msg("Answer hash unavailable, resuming with empty set")
	}

	durationSeconds, err := s.examService.GetDurationSeconds(ctx, examID)
	if err != nil {
		return nil, err
	}

	start, err := s.startAnchor(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotStarted
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	violations, err := s.violationCount(ctx, examID, studentID, sess.Violations)
	if err != nil {
		return nil, err
	}

	cursor := 0
	if val, err := s.rdb.Get(ctx, config.CacheKey.CursorKey(studentID, examID.String())).Result(); err == nil {
		if n, convErr := strconv.Atoi(val); convErr == nil {
			cursor = n
		}
	}

	remaining := session.Remaining(start, time.Duration(durationSeconds)*time.Second, time.Now())

	locked := session.NewIntegrityState(violations).Locked()
	if rt, ok := s.registry.Get(examID, studentID); ok {
		_, integrity, rtCursor := rt.Snapshot()
		locked = integrity.Locked()
		violations = integrity.Violations
		cursor = rtCursor
	}

	return &model.SessionState{
		ExamID:           examID,
		StudentID:        studentID,
		Answers:          answers,
		Cursor:           cursor,
		RemainingSeconds: int64(remaining / time.Second),
		DisplayClock:     session.FormatClock(remaining),
		Violations:       violations,
		Locked:           locked,
		Status:           sess.Status,
	}, nil
}

// startAnchor resolves the attempt's authoritative start time: Redis
// first, PostgreSQL on a cache miss with self-heal.
func (s *SessionService) startAnchor(ctx context.Context, examID uuid.UUID, studentID int) (time.Time, error) {
	startKey := config.CacheKey.SessionStartKey(studentID, examID.String())

	val, err := s.rdb.Get(ctx, startKey).Result()
	if err == nil {
		unix, convErr := strconv.ParseInt(val, 10, 64)
		if convErr != nil {
			return time.Time{}, fmt.Errorf("invalid start time format in cache: %w", convErr)
		}
		return time.Unix(unix, 0), nil
	}
	if !errors.Is(err, redis.Nil) {
		return time.Time{}, fmt.Errorf("redis error getting start time: %w", err)
	}

	sess, dbErr := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if dbErr != nil {
		if errors.Is(dbErr, pgx.ErrNoRows) {
			return time.Time{}, ErrSessionNotStarted
		}
		return time.Time{}, fmt.Errorf("session not found in cache or db: %w", dbErr)
	}

	// Self-heal so the next read is fast.
	_ = s.rdb.Set(ctx, startKey, sess.StartedAt.Unix(), 0).Err()
	return sess.StartedAt, nil
}

func (s *SessionService) violationCount(ctx context.Context, examID uuid.UUID, studentID int, fallback int) (int, error) {
	val, err := s.rdb.Get(ctx, config.CacheKey.ViolationCountKey(studentID, examID.String())).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fallback, nil
		}
		return 0, fmt.Errorf("get violation count: %w", err)
	}
	n, convErr := strconv.Atoi(val)
	if convErr != nil {
		return fallback, nil
	}
	return n, nil
}

// SaveAnswer applies one selection to the stored answer value and writes
// it through: Redis immediately, PostgreSQL via the autosave queue.
func (s *SessionService) SaveAnswer(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, sel model.Selection) (model.AnswerValue, error) {
	question, err := s.findQuestion(ctx, examID, questionID)
	if err != nil {
		return model.AnswerValue{}, err
	}
	if sel.Type == "" {
		sel.Type = question.QuestionType
	}
	if _, ok := question.OptionByID(sel.Option); !ok {
		return model.AnswerValue{}, ErrUnknownOption
	}

	answersKey := config.CacheKey.AnswersKey(studentID, examID.String())
	field := questionID.String()

	current := model.AnswerValue{}
	if raw, err := s.rdb.HGet(ctx, answersKey, field).Result(); err == nil {
		current, err = model.ParseAnswerValue([]byte(raw))
		if err != nil {
			return model.AnswerValue{}, fmt.Errorf("parse stored answer: %w", err)
		}
	} else if !errors.Is(err, redis.Nil) {
		return model.AnswerValue{}, fmt.Errorf("read stored answer: %w", err)
	}

	next, err := current.Apply(sel)
	if err != nil {
		return model.AnswerValue{}, err
	}

	doubtful, err := s.isDoubtful(ctx, examID, studentID, questionID)
	if err != nil {
		return model.AnswerValue{}, err
	}

	var answerJSON string
	if next.IsEmpty() {
		if err := s.rdb.HDel(ctx, answersKey, field).Err(); err != nil {
			return model.AnswerValue{}, fmt.Errorf("clear answer: %w", err)
		}
	} else {
		raw, err := json.Marshal(next)
		if err != nil {
			return model.AnswerValue{}, fmt.Errorf("marshal answer: %w", err)
		}
		answerJSON = string(raw)
		if err := s.rdb.HSet(ctx, answersKey, field, answerJSON).Err(); err != nil {
			return model.AnswerValue{}, fmt.Errorf("store answer: %w", err)
		}
	}

	s.enqueueAnswer(ctx, examID, studentID, questionID, answerJSON, doubtful)
	return next, nil
}

// SetDoubtful flags or unflags a question for review.
func (s *SessionService) SetDoubtful(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, doubtful bool) error {
	if _, err := s.findQuestion(ctx, examID, questionID); err != nil {
		return err
	}

	answersKey := config.CacheKey.AnswersKey(studentID, examID.String())
	doubtField := config.DoubtFieldPrefix + questionID.String()

	if doubtful {
		if err := s.rdb.HSet(ctx, answersKey, doubtField, "1").Err(); err != nil {
			return fmt.Errorf("store doubt flag: %w", err)
		}
	} else {
		if err := s.rdb.HDel(ctx, answersKey, doubtField).Err(); err != nil {
			return fmt.Errorf("clear doubt flag: %w", err)
		}
	}

	// Keep the durable row's flag in sync when an answer exists.
	answerJSON := ""
	if raw, err := s.rdb.HGet(ctx, answersKey, questionID.String()).Result(); err == nil {
		answerJSON = raw
	} else if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read stored answer: %w", err)
	}
	if answerJSON != "" {
		s.enqueueAnswer(ctx, examID, studentID, questionID, answerJSON, doubtful)
	}
	return nil
}

// SetCursor persists the navigation cursor for resume.
func (s *SessionService) SetCursor(ctx context.Context, examID uuid.UUID, studentID int, index int) error {
	return s.rdb.Set(ctx, config.CacheKey.CursorKey(studentID, examID.String()), index, 0).Err()
}

// RecordViolation persists one reported lockdown breach: the strike
// counter in Redis and the session row move synchronously, the event
// itself trails through the violation queue. Strike escalation decisions
// belong to the attempt runtime, not here — counted is the runtime's
// verdict, and only counted strikes touch the durable counters. The
// audit event is stored either way.
func (s *SessionService) RecordViolation(ctx context.Context, examID uuid.UUID, studentID int, kind model.ViolationKind, detail string, counted bool) error {
	if counted && kind.CountsAsStrike() {
		count, err := s.rdb.Incr(ctx, config.CacheKey.ViolationCountKey(studentID, examID.String())).Result()
		if err != nil {
			return fmt.Errorf("increment violation count: %w", err)
		}
		if err := s.sessionRepo.AddViolations(ctx, examID, studentID, 1); err != nil {
			s.log.Error().Err(err).Msg("Failed to bump persisted violation count")
		}
		s.publishMonitorEvent(ctx, examID, studentID, "violation", int(count))
	}

	payload, _ := json.Marshal(worker.ViolationPayload{
		StudentID: studentID,
		ExamID:    examID.String(),
		Kind:      string(kind),
		Detail:    detail,
		Timestamp: time.Now().Unix(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue violation: %w", err)
	}
	return nil
}

// AdminResetSession force-exits a live attempt and wipes it so the
// student can retake: the force-reset flag kicks any live runtime within
// one presence interval, the row flips to RESET, the attempt cache is
// cleared, and the login session is revoked.
func (s *SessionService) AdminResetSession(ctx context.Context, examID uuid.UUID, studentID int) error {
	if err := s.rdb.Set(ctx, config.CacheKey.ForceResetKey(studentID), "1", 30*time.Minute).Err(); err != nil {
		return fmt.Errorf("set force reset flag: %w", err)
	}

	if err := s.sessionRepo.Finish(ctx, examID, studentID, model.SessionStatusReset, model.EndReasonForceReset); err != nil {
		return fmt.Errorf("mark session reset: %w", err)
	}

	s.clearAttemptKeys(ctx, examID, studentID)

	if err := s.authService.ResetStudentSession(ctx, studentID); err != nil {
		s.log.Warn().Err(err).Int("student_id", studentID).Msg("Failed to revoke login session")
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Session force-reset by admin")
	return nil
}

// ForceResetPending reports whether an admin reset signal is waiting for
// the student. Read-only: consuming the signal is the presence poll's job.
func (s *SessionService) ForceResetPending(ctx context.Context, studentID int) (bool, error) {
	n, err := s.rdb.Exists(ctx, config.CacheKey.ForceResetKey(studentID)).Result()
	if err != nil {
		return false, fmt.Errorf("check force reset flag: %w", err)
	}
	return n > 0, nil
}

// ListSessions returns the proctor monitor table for an exam.
func (s *SessionService) ListSessions(ctx context.Context, examID uuid.UUID) ([]repository.SessionOverview, error) {
	return s.sessionRepo.ListByExam(ctx, examID)
}

// ─── internals ──────────────────────────────────────────────────────────────

func (s *SessionService) findQuestion(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	canonical, err := s.examService.GetCanonicalQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	for i := range canonical {
		if canonical[i].ID == questionID {
			return &canonical[i], nil
		}
	}
	return nil, ErrUnknownQuestion
}

func (s *SessionService) isDoubtful(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID) (bool, error) {
	answersKey := config.CacheKey.AnswersKey(studentID, examID.String())
	_, err := s.rdb.HGet(ctx, answersKey, config.DoubtFieldPrefix+questionID.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("read doubt flag: %w", err)
	}
	return true, nil
}

func (s *SessionService) enqueueAnswer(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, answerJSON string, doubtful bool) {
	payload, _ := json.Marshal(worker.AnswerPayload{
		StudentID: studentID,
		ExamID:    examID.String(),
		QID:       questionID.String(),
		Answer:    answerJSON,
		Doubtful:  doubtful,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		// Redis still holds the value; the durable copy catches up on the
		// next write or at submission.
		s.log.Warn().Err(err).Msg("Failed to enqueue answer for persistence")
	}
}

// readAnswerSet rebuilds the AnswerSet from the attempt's Redis hash.
func (s *SessionService) readAnswerSet(ctx context.Context, examID uuid.UUID, studentID int) (model.AnswerSet, error) {
	set := model.AnswerSet{
		Answers:  make(map[uuid.UUID]model.AnswerValue),
		Doubtful: make(map[uuid.UUID]bool),
	}

	fields, err := s.rdb.HGetAll(ctx, config.CacheKey.AnswersKey(studentID, examID.String())).Result()
	if err != nil {
		return set, fmt.Errorf("read answer hash: %w", err)
	}

	for field, raw := range fields {
		if qidStr, ok := strings.CutPrefix(field, config.DoubtFieldPrefix); ok {
			qid, err := uuid.Parse(qidStr)
			if err != nil {
				s.log.Warn().Str("field", field).Msg("Skipping malformed doubt field")
				continue
			}
			set.Doubtful[qid] = true
			continue
		}

		qid, err := uuid.Parse(field)
		if err != nil {
			s.log.Warn().Str("field", field).Msg("Skipping malformed answer field")
			continue
		}
		value, err := model.ParseAnswerValue([]byte(raw))
		if err != nil {
			s.log.Warn().Err(err).Str("field", field).Msg("Skipping malformed answer value")
			continue
		}
		set.Answers[qid] = value
	}

	return set, nil
}

func (s *SessionService) clearAttemptKeys(ctx context.Context, examID uuid.UUID, studentID int) {
	eid := examID.String()
	if err := s.rdb.Del(ctx,
		config.CacheKey.AnswersKey(studentID, eid),
		config.CacheKey.CursorKey(studentID, eid),
		config.CacheKey.PaperOrderKey(studentID, eid),
		config.CacheKey.SessionStartKey(studentID, eid),
		config.CacheKey.ViolationCountKey(studentID, eid),
	).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear attempt cache keys")
	}
}

// publishMonitorEvent pushes a live update to the exam's proctor channel.
// Best effort: monitor streams also refresh on an interval, so a lost
// publish only delays the dashboard, never the session.
func (s *SessionService) publishMonitorEvent(ctx context.Context, examID uuid.UUID, studentID int, event string, violations int) {
	payload, _ := json.Marshal(map[string]interface{}{
		"event":      event,
		"student_id": studentID,
		"violations": violations,
		"at":         time.Now().Unix(),
	})
	if err := s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), payload).Err(); err != nil {
		s.log.Debug().Err(err).Str("event", event).Msg("Monitor publish failed")
	}
}

// ─── runtime collaborators ──────────────────────────────────────────────────

// attemptFinalizer adapts SessionService to the runtime's Finalizer for
// one attempt.
type attemptFinalizer struct {
	svc       *SessionService
	examID    uuid.UUID
	studentID int
}

// Submit captures the full answer set, enqueues the immutable submission
// record, and closes the session row. The runtime's phase gate guarantees
// this runs at most once per attempt.
func (f *attemptFinalizer) Submit(ctx context.Context, reason string) error {
	answers, err := f.svc.readAnswerSet(ctx, f.examID, f.studentID)
	if err != nil {
		return err
	}

	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answer set: %w", err)
	}

	start, err := f.svc.startAnchor(ctx, f.examID, f.studentID)
	if err != nil {
		return err
	}

	now := time.Now()
	payload, _ := json.Marshal(worker.SubmissionPayload{
		StudentID:   f.studentID,
		ExamID:      f.examID.String(),
		Answers:     string(answersJSON),
		Reason:      reason,
		ClientStart: start.Unix(),
		ClientEnd:   now.Unix(),
		SubmittedAt: now.Unix(),
	})
	if err := f.svc.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue submission: %w", err)
	}

	if err := f.svc.sessionRepo.Finish(ctx, f.examID, f.studentID, model.SessionStatusCompleted, reason); err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	f.svc.log.Info().
		Str("exam_id", f.examID.String()).
		Int("student_id", f.studentID).
		Str("reason", reason).
		Int("answered", answers.AnsweredCount()).
		Msg("Submission accepted")
	f.svc.publishMonitorEvent(ctx, f.examID, f.studentID, "submitted", 0)
	return nil
}

// ForceClose records a terminal exit without submission. Disqualified
// attempts keep their answer hash for proctor review; only an admin reset
// wipes it.
func (f *attemptFinalizer) ForceClose(ctx context.Context, status model.SessionStatus, reason string) error {
	if err := f.svc.sessionRepo.Finish(ctx, f.examID, f.studentID, status, reason); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if status == model.SessionStatusReset {
		f.svc.clearAttemptKeys(ctx, f.examID, f.studentID)
	}
	event := "reset"
	if status == model.SessionStatusDisqualified {
		event = "disqualified"
	}
	f.svc.publishMonitorEvent(ctx, f.examID, f.studentID, event, 0)
	return nil
}

// attemptPresence adapts the Redis force-reset flag to the runtime's
// Presence poll. Seeing the flag consumes it.
type attemptPresence struct {
	svc       *SessionService
	examID    uuid.UUID
	studentID int
}

func (p *attemptPresence) Check(ctx context.Context) (bool, error) {
	key := config.CacheKey.ForceResetKey(p.studentID)
	_, err := p.svc.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	_ = p.svc.rdb.Del(ctx, key).Err()
	return true, nil
}
