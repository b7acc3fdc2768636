package session

import "errors"

// StrikeLimit is the number of lockdown violations that disqualifies an
// attempt. The third strike is terminal.
const StrikeLimit = 3

// ErrDisqualified is returned by Resume once the strike limit is reached.
var ErrDisqualified = errors.New("session disqualified: strike limit reached")

// IntegrityPhase is the lockdown state of an attempt.
type IntegrityPhase string

const (
	// Engaged: exam visible and interactive, no blocking overlay.
	Engaged IntegrityPhase = "ENGAGED"
	// Warned: a violation was recorded, the exam is blocked until the
	// student explicitly resumes (re-enters fullscreen).
	Warned IntegrityPhase = "WARNED"
	// Disqualified: strike limit reached. Terminal — no resume, the
	// session force-exits.
	Disqualified IntegrityPhase = "DISQUALIFIED"
)

// IntegrityState is an immutable value; transitions return a new state.
// Keeping it a pure reducer avoids the stale-counter races you get when
// independent event handlers each read a shared mutable counter.
type IntegrityState struct {
	Violations int
	Phase      IntegrityPhase
}

// NewIntegrityState returns the initial ENGAGED state, or replays a
// persisted violation count into the matching phase on resume.
func NewIntegrityState(violations int) IntegrityState {
	switch {
	case violations <= 0:
		return IntegrityState{Phase: Engaged}
	case violations >= StrikeLimit:
		return IntegrityState{Violations: StrikeLimit, Phase: Disqualified}
	default:
		return IntegrityState{Violations: violations, Phase: Warned}
	}
}

// Locked reports whether interaction is blocked: false only for
// ENGAGED, true for WARNED (blocking overlay) and DISQUALIFIED
// (terminal). State payloads carry this as "locked", so true on the
// wire means the student cannot act.
func (s IntegrityState) Locked() bool {
	return s.Phase != Engaged
}

// RecordViolation applies one strike: ENGAGED or WARNED advance toward
// WARNED/DISQUALIFIED, DISQUALIFIED absorbs further events.
func (s IntegrityState) RecordViolation() IntegrityState {
	if s.Phase == Disqualified {
		return s
	}
	next := IntegrityState{Violations: s.Violations + 1, Phase: Warned}
	if next.Violations >= StrikeLimit {
		next.Violations = StrikeLimit
		next.Phase = Disqualified
	}
	return next
}

// Resume returns from WARNED to ENGAGED. Permitted only below the strike
// limit; at the limit it fails with ErrDisqualified. Resuming while
// already ENGAGED is a no-op.
func (s IntegrityState) Resume() (IntegrityState, error) {
	switch s.Phase {
	case Disqualified:
		return s, ErrDisqualified
	case Warned:
		return IntegrityState{Violations: s.Violations, Phase: Engaged}, nil
	default:
		return s, nil
	}
}
