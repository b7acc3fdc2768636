package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the lifecycle states of an exam definition.
// Session delivery only ever reads PUBLISHED and IN_PROGRESS exams; the
// authoring lifecycle lives in the administration service.
type ExamStatus string

const (
	ExamStatusDraft      ExamStatus = "DRAFT"
	ExamStatusPublished  ExamStatus = "PUBLISHED"
	ExamStatusInProgress ExamStatus = "IN_PROGRESS"
	ExamStatusCompleted  ExamStatus = "COMPLETED"
)

// Exam is the read-side view of an exam definition consumed by the
// session engine. Questions are loaded separately.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	DurationSeconds int        `json:"duration_seconds"`
	QuestionCount   int        `json:"question_count"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	Status          ExamStatus `json:"status"`
}

// Duration returns the attempt time limit.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationSeconds) * time.Second
}

// Joinable reports whether students may currently start a session.
func (e *Exam) Joinable() bool {
	return e.Status == ExamStatusPublished || e.Status == ExamStatusInProgress
}

// SessionPaper is the student-facing paper for one attempt: the frozen,
// per-student shuffled question list. Never contains correct answers.
type SessionPaper struct {
	ExamID          uuid.UUID  `json:"exam_id"`
	Title           string     `json:"title"`
	DurationSeconds int        `json:"duration_seconds"`
	StartUnix       int64      `json:"start_unix"`
	Questions       []Question `json:"questions"`
}
