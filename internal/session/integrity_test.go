package session

import (
	"errors"
	"testing"
)

func TestStrikeEscalation(t *testing.T) {
	s := NewIntegrityState(0)
	if s.Phase != Engaged || s.Locked() {
		t.Fatalf("initial state should be unlocked ENGAGED, got %+v", s)
	}

	// Three independent violations strictly increase 0→1→2→3.
	for want := 1; want <= StrikeLimit; want++ {
		s = s.RecordViolation()
		if s.Violations != want {
			t.Fatalf("violation %d: count = %d", want, s.Violations)
		}
	}
	if s.Phase != Disqualified {
		t.Fatalf("third strike should disqualify, got %s", s.Phase)
	}

	// Terminal: further violations are absorbed.
	s = s.RecordViolation()
	if s.Violations != StrikeLimit || s.Phase != Disqualified {
		t.Fatalf("disqualified state must absorb events, got %+v", s)
	}
}

func TestResumeAllowedBelowLimit(t *testing.T) {
	s := NewIntegrityState(0).RecordViolation()
	if s.Phase != Warned || !s.Locked() {
		t.Fatalf("after one strike expected locked WARNED, got %+v", s)
	}

	s, err := s.Resume()
	if err != nil {
		t.Fatalf("resume below limit: %v", err)
	}
	if s.Phase != Engaged || s.Violations != 1 {
		t.Fatalf("resume should return to ENGAGED keeping count, got %+v", s)
	}

	s = s.RecordViolation()
	if s.Violations != 2 || s.Phase != Warned {
		t.Fatalf("second strike: %+v", s)
	}
	if s, err = s.Resume(); err != nil || s.Phase != Engaged {
		t.Fatalf("resume at two strikes should work: %+v %v", s, err)
	}
}

func TestResumeRejectedAtLimit(t *testing.T) {
	s := NewIntegrityState(StrikeLimit)
	if s.Phase != Disqualified {
		t.Fatalf("replayed limit should be DISQUALIFIED, got %+v", s)
	}
	if _, err := s.Resume(); !errors.Is(err, ErrDisqualified) {
		t.Fatalf("expected ErrDisqualified, got %v", err)
	}
}

func TestResumeWhileEngagedIsNoop(t *testing.T) {
	s := NewIntegrityState(0)
	next, err := s.Resume()
	if err != nil || next != s {
		t.Fatalf("resume while engaged should be a no-op, got %+v %v", next, err)
	}
}

func TestNewIntegrityStateReplay(t *testing.T) {
	if s := NewIntegrityState(2); s.Phase != Warned || s.Violations != 2 {
		t.Fatalf("replay of 2 strikes: %+v", s)
	}
	if s := NewIntegrityState(5); s.Phase != Disqualified || s.Violations != StrikeLimit {
		t.Fatalf("replay past limit must cap at the limit: %+v", s)
	}
}

// A replayed count below the limit is still WARNED, not free: the student
// resumes through the acknowledgement gate, never straight into the exam.
func TestReplayedStrikesStayLocked(t *testing.T) {
	for _, n := range []int{1, 2} {
		if s := NewIntegrityState(n); !s.Locked() || s.Phase != Warned {
			t.Fatalf("replay of %d strikes must lock, got %+v", n, s)
		}
	}
	if s := NewIntegrityState(0); s.Locked() {
		t.Fatalf("clean replay must not lock: %+v", s)
	}
	if s := NewIntegrityState(StrikeLimit); !s.Locked() {
		t.Fatalf("replayed limit must lock: %+v", s)
	}
}
