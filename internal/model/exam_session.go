package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states as persisted. DISQUALIFIED
// and RESET are both terminal forced exits; they differ only in who
// triggered them (the integrity monitor vs. an administrator).
type SessionStatus string

const (
	SessionStatusInProgress   SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted    SessionStatus = "COMPLETED"
	SessionStatusDisqualified SessionStatus = "DISQUALIFIED"
	SessionStatusReset        SessionStatus = "RESET"
)

// Terminal reports whether the status permits no further interaction.
func (s SessionStatus) Terminal() bool {
	return s != SessionStatusInProgress
}

// End reasons recorded on session close.
const (
	EndReasonSubmitted    = "submitted"
	EndReasonTimeout      = "timeout"
	EndReasonDisqualified = "disqualified"
	EndReasonForceReset   = "force_reset"
)

// ExamSession is one student's single attempt at one exam, from the
// server-confirmed start to submission or forced exit. StartedAt is the
// authoritative clock anchor — it is fixed by the server on start and
// never derived from a client clock.
type ExamSession struct {
	ID         uuid.UUID     `json:"id"`
	ExamID     uuid.UUID     `json:"exam_id"`
	StudentID  int           `json:"student_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     SessionStatus `json:"status"`
	EndReason  *string       `json:"end_reason,omitempty"`
	Violations int           `json:"violations"`
}

// SessionState is the resume payload: everything a client needs to
// rebuild the attempt after a reload — answers, flags, the recomputed
// remaining time, the integrity counters, and the navigation cursor.
type SessionState struct {
	ExamID           uuid.UUID     `json:"exam_id"`
	StudentID        int           `json:"student_id"`
	Answers          AnswerSet     `json:"answer_set"`
	Cursor           int           `json:"cursor"`
	RemainingSeconds int64         `json:"remaining_seconds"`
	DisplayClock     string        `json:"display_clock"`
	Violations       int           `json:"violations"`
	Locked           bool          `json:"locked"`
	Status           SessionStatus `json:"status"`
}

// ViolationKind tags a detected lockdown breach. Only visibility and
// fullscreen loss count toward disqualification; everything else clients
// may report is deterrence telemetry and is stored without escalating.
type ViolationKind string

const (
	ViolationTabHidden      ViolationKind = "TAB_HIDDEN"
	ViolationFullscreenExit ViolationKind = "FULLSCREEN_EXIT"
)

// CountsAsStrike reports whether the kind increments the strike counter.
func (k ViolationKind) CountsAsStrike() bool {
	return k == ViolationTabHidden || k == ViolationFullscreenExit
}

// ViolationEvent is one reported lockdown breach, queued for batch
// persistence and replayed into the integrity state machine.
type ViolationEvent struct {
	ExamID     uuid.UUID     `json:"exam_id"`
	StudentID  int           `json:"student_id"`
	Kind       ViolationKind `json:"kind"`
	ReportedAt time.Time     `json:"reported_at"`
	Detail     string        `json:"detail,omitempty"`
}

// Submission is the all-or-nothing payload handed to the submission
// collaborator: the full answer map plus the client-observed window for
// audit (the server anchor remains authoritative).
type Submission struct {
	ExamID      uuid.UUID `json:"exam_id"`
	StudentID   int       `json:"student_id"`
	Answers     AnswerSet `json:"answer_set"`
	ClientStart int64     `json:"client_start_unix"`
	ClientEnd   int64     `json:"client_end_unix"`
	Reason      string    `json:"reason"`
	SubmittedAt time.Time `json:"submitted_at"`
}
