package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edulocus/cbt-session-service/internal/model"
)

// Default runtime intervals. Tests shrink these; production never does.
const (
	DefaultTickInterval     = time.Second
	DefaultPresenceInterval = 15 * time.Second
	DefaultDisqualifyGrace  = 3 * time.Second
)

// AttemptPhase is the lifecycle state of one attempt inside the runtime.
type AttemptPhase string

const (
	PhaseLoading    AttemptPhase = "LOADING"
	PhaseActive     AttemptPhase = "ACTIVE"
	PhaseConfirming AttemptPhase = "CONFIRMING"
	PhaseSubmitting AttemptPhase = "SUBMITTING"
	PhaseDone       AttemptPhase = "DONE"
	// PhaseExited is the forced-exit terminal: disqualification or an
	// administrative reset, never a successful submission.
	PhaseExited AttemptPhase = "EXITED"
)

// Terminal reports whether the phase accepts no further events.
func (p AttemptPhase) Terminal() bool {
	return p == PhaseDone || p == PhaseExited
}

// EventKind tags a runtime notification pushed to the attached client.
type EventKind string

const (
	EventClock        EventKind = "clock"
	EventWarned       EventKind = "warned"
	EventResumed      EventKind = "resumed"
	EventDisqualified EventKind = "disqualified"
	EventForceReset   EventKind = "force_reset"
	EventSubmitted    EventKind = "submitted"
	EventSubmitFailed EventKind = "submit_failed"
)

// Event is one runtime notification. RemainingSeconds and DisplayClock
// accompany every kind; Violations ride along on integrity events.
type Event struct {
	Kind             EventKind `json:"event"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	DisplayClock     string    `json:"display_clock"`
	Violations       int       `json:"violations,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	Retryable        bool      `json:"retryable,omitempty"`
}

// Finalizer closes out the attempt against durable storage: Submit
// collects the answer set and hands it to the submission collaborator,
// ForceClose records a terminal exit without submission.
type Finalizer interface {
	Submit(ctx context.Context, reason string) error
	ForceClose(ctx context.Context, status model.SessionStatus, reason string) error
}

// Presence answers the authoritative "has this session been reset"
// question. Errors are treated as transient and never end the session.
type Presence interface {
	Check(ctx context.Context) (forceReset bool, err error)
}

// Notifier receives runtime events for the currently attached stream.
// Nil-safe: a detached session simply drops notifications.
type Notifier interface {
	Notify(Event)
}

// Config fixes the immutable parameters of one attempt runtime.
type Config struct {
	ExamID        uuid.UUID
	StudentID     int
	Start         time.Time
	Duration      time.Duration
	QuestionCount int

	// Intervals default to the package constants when zero.
	TickInterval     time.Duration
	PresenceInterval time.Duration
	DisqualifyGrace  time.Duration

	// Now is the clock source; defaults to time.Now.
	Now func() time.Time
}

// Runtime orchestrates one attempt: the 1 Hz clock tick, the presence
// poll, integrity transitions, cursor navigation, and the single
// submission. All async sources funnel through one mutex-guarded state
// so the auto-submit, disqualification, and manual paths share the same
// SUBMITTING/DONE gate and a double finish is a no-op.
type Runtime struct {
	cfg       Config
	finalizer Finalizer
	presence  Presence
	log       zerolog.Logger

	mu        sync.Mutex
	phase     AttemptPhase
	integrity IntegrityState
	cursor    int
	notifier  Notifier
	onClose   func()

	cancel     context.CancelFunc
	graceTimer *time.Timer
}

// NewRuntime builds a runtime in LOADING with a replayed integrity state.
// Start launches its background activity.
func NewRuntime(cfg Config, fin Finalizer, pres Presence, violations int, log zerolog.Logger) *Runtime {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.PresenceInterval <= 0 {
		cfg.PresenceInterval = DefaultPresenceInterval
	}
	if cfg.DisqualifyGrace <= 0 {
		cfg.DisqualifyGrace = DefaultDisqualifyGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Runtime{
		cfg:       cfg,
		finalizer: fin,
		presence:  pres,
		phase:     PhaseLoading,
		integrity: NewIntegrityState(violations),
		log: log.With().
			Str("component", "session_runtime").
			Str("exam_id", cfg.ExamID.String()).
			Int("student_id", cfg.StudentID).
			Logger(),
	}
}

// Start transitions LOADING → ACTIVE and launches the clock and presence
// tickers. Both are owned by the runtime and torn down on ctx cancel,
// Stop, or any terminal transition — nothing outlives the session.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	if r.phase != PhaseLoading {
		r.mu.Unlock()
		return
	}
	r.phase = PhaseActive
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	go r.loop(runCtx)
}

// SetOnClose registers a callback invoked once when the runtime reaches
// a terminal phase, used by the registry to evict dead runtimes.
func (r *Runtime) SetOnClose(fn func()) {
	r.mu.Lock()
	r.onClose = fn
	r.mu.Unlock()
}

// Attach installs the notifier for the current client stream. Passing
// nil detaches.
func (r *Runtime) Attach(n Notifier) {
	r.mu.Lock()
	r.notifier = n
	r.mu.Unlock()
}

// Stop tears the runtime down without a terminal transition (stream
// detach on server shutdown). The durable state is untouched; a later
// resume rebuilds an equivalent runtime from it.
func (r *Runtime) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
	r.notifier = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (r *Runtime) loop(ctx context.Context) {
	tick := time.NewTicker(r.cfg.TickInterval)
	defer tick.Stop()
	presence := time.NewTicker(r.cfg.PresenceInterval)
	defer presence.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if r.onTick(ctx) {
				return
			}
		case <-presence.C:
			r.onPresenceTick(ctx)
		}
	}
}

// onTick recomputes the remaining time from the absolute anchor and
// fires the auto-submit exactly once at zero. Returns true when the
// clock loop should stop.
func (r *Runtime) onTick(ctx context.Context) (stop bool) {
	remaining := Remaining(r.cfg.Start, r.cfg.Duration, r.cfg.Now())

	r.mu.Lock()
	if r.phase.Terminal() {
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()

	if remaining > 0 {
		r.notify(Event{Kind: EventClock})
		return false
	}

	// Timeout is a defined transition, not an error: bypass confirmation
	// and take the shared submission gate.
	r.log.Info().Msg("Attempt time expired, auto-submitting")
	r.submit(ctx, model.EndReasonTimeout)
	return true
}

func (r *Runtime) onPresenceTick(ctx context.Context) {
	forceReset, err := r.presence.Check(ctx)
	if err != nil {
		// Transient by contract: the poller never ends the session on
		// its own failure.
		r.log.Warn().Err(err).Msg("Presence check failed, will retry")
		return
	}
	if forceReset {
		r.log.Info().Msg("Force reset signal received")
		r.forceExit(ctx, model.SessionStatusReset, model.EndReasonForceReset, EventForceReset)
	}
}

// ReportViolation feeds one client-reported lockdown breach into the
// integrity reducer. Non-strike kinds and anything arriving during the
// submit path or after a terminal phase are ignored — exiting fullscreen
// while submitting is explicitly allowed. The second return value is
// true only when the strike counter actually advanced; callers must not
// persist a strike the machine ignored.
func (r *Runtime) ReportViolation(ctx context.Context, kind model.ViolationKind) (IntegrityState, bool) {
	if !kind.CountsAsStrike() {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.integrity, false
	}

	r.mu.Lock()
	if r.phase.Terminal() || r.phase == PhaseSubmitting {
		state := r.integrity
		r.mu.Unlock()
		return state, false
	}

	prev := r.integrity.Violations
	r.integrity = r.integrity.RecordViolation()
	state := r.integrity
	counted := state.Violations > prev
	r.mu.Unlock()

	if state.Phase == Disqualified {
		r.notify(Event{Kind: EventDisqualified, Violations: state.Violations})
		r.scheduleDisqualifyExit(ctx)
	} else {
		r.notify(Event{Kind: EventWarned, Violations: state.Violations})
	}
	return state, counted
}

// scheduleDisqualifyExit delays the forced exit briefly so the client
// can render the disqualification message before the stream closes.
func (r *Runtime) scheduleDisqualifyExit(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.graceTimer != nil {
		return
	}
	r.graceTimer = time.AfterFunc(r.cfg.DisqualifyGrace, func() {
		r.forceExit(ctx, model.SessionStatusDisqualified, model.EndReasonDisqualified, EventDisqualified)
	})
}

// Resume returns from WARNED to ENGAGED. Rejected with ErrDisqualified
// once the strike limit is reached.
func (r *Runtime) Resume() (IntegrityState, error) {
	r.mu.Lock()
	next, err := r.integrity.Resume()
	if err == nil {
		r.integrity = next
	}
	state := r.integrity
	r.mu.Unlock()

	if err == nil && state.Phase == Engaged {
		r.notify(Event{Kind: EventResumed, Violations: state.Violations})
	}
	return state, err
}

// RequestFinish moves ACTIVE → CONFIRMING. Explicit confirmation is a
// separate action so a stray click cannot submit. A disqualified attempt
// is refused: the phase stays ACTIVE only for the grace window, and the
// strike limit is terminal throughout it.
func (r *Runtime) RequestFinish() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseActive || r.integrity.Phase == Disqualified {
		return false
	}
	r.phase = PhaseConfirming
	return true
}

// CancelFinish moves CONFIRMING back to ACTIVE.
func (r *Runtime) CancelFinish() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseConfirming {
		return false
	}
	r.phase = PhaseActive
	return true
}

// ConfirmFinish submits a user-confirmed attempt. A second confirmation
// while SUBMITTING (double click) is a no-op by the shared gate.
func (r *Runtime) ConfirmFinish(ctx context.Context) {
	r.mu.Lock()
	if r.phase != PhaseConfirming && r.phase != PhaseActive {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.submit(ctx, model.EndReasonSubmitted)
}

// submit is the single submission path shared by manual confirmation and
// timeout. The CONFIRMING/ACTIVE → SUBMITTING transition under the mutex
// is the at-most-once guard; failure returns to ACTIVE with everything
// preserved for a retry.
func (r *Runtime) submit(ctx context.Context, reason string) {
	r.mu.Lock()
	if r.phase == PhaseSubmitting || r.phase.Terminal() {
		r.mu.Unlock()
		return
	}
	// The third strike is terminal even while the grace timer is still
	// pending; only the forced exit may close a disqualified attempt.
	if r.integrity.Phase == Disqualified {
		r.mu.Unlock()
		return
	}
	r.phase = PhaseSubmitting
	r.mu.Unlock()

	err := r.finalizer.Submit(ctx, reason)

	r.mu.Lock()
	if err != nil {
		r.phase = PhaseActive
		r.mu.Unlock()

		r.log.Error().Err(err).Str("reason", reason).Msg("Submission failed, attempt stays open for retry")
		r.notify(Event{Kind: EventSubmitFailed, Reason: reason, Retryable: true})
		return
	}
	r.phase = PhaseDone
	cancel := r.cancel
	onClose := r.onClose
	r.mu.Unlock()

	r.log.Info().Str("reason", reason).Msg("Attempt submitted")
	r.notify(Event{Kind: EventSubmitted, Reason: reason})

	if cancel != nil {
		cancel()
	}
	if onClose != nil {
		onClose()
	}
}

// forceExit closes the attempt without submission. Gated by the same
// terminal/SUBMITTING check as submit, so a forced exit racing a manual
// submission can never produce a double close.
func (r *Runtime) forceExit(ctx context.Context, status model.SessionStatus, reason string, kind EventKind) {
	r.mu.Lock()
	if r.phase == PhaseSubmitting || r.phase.Terminal() {
		r.mu.Unlock()
		return
	}
	r.phase = PhaseExited
	cancel := r.cancel
	onClose := r.onClose
	violations := r.integrity.Violations
	r.mu.Unlock()

	if err := r.finalizer.ForceClose(ctx, status, reason); err != nil {
		// The in-memory exit stands; durable close is retried by the
		// admin tooling. Losing the write must not resurrect the session.
		r.log.Error().Err(err).Str("reason", reason).Msg("Force close persistence failed")
	}

	r.notify(Event{Kind: kind, Violations: violations, Reason: reason})

	if cancel != nil {
		cancel()
	}
	if onClose != nil {
		onClose()
	}
}

// SetCursor jumps the navigation cursor, clamped to [0, QuestionCount-1].
func (r *Runtime) SetCursor(index int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = clamp(index, 0, r.cfg.QuestionCount-1)
	return r.cursor
}

// Move advances the cursor by delta (next/prev), clamped to bounds.
func (r *Runtime) Move(delta int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = clamp(r.cursor+delta, 0, r.cfg.QuestionCount-1)
	return r.cursor
}

// Snapshot returns the current runtime view for resume payloads.
func (r *Runtime) Snapshot() (phase AttemptPhase, integrity IntegrityState, cursor int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase, r.integrity, r.cursor
}

// notify decorates the event with the current clock and delivers it to
// the attached stream, if any.
func (r *Runtime) notify(ev Event) {
	remaining := Remaining(r.cfg.Start, r.cfg.Duration, r.cfg.Now())
	ev.RemainingSeconds = int64(remaining / time.Second)
	ev.DisplayClock = FormatClock(remaining)

	r.mu.Lock()
	n := r.notifier
	r.mu.Unlock()
	if n != nil {
		n.Notify(ev)
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
