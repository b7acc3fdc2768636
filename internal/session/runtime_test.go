package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edulocus/cbt-session-service/internal/model"
)

type fakeFinalizer struct {
	mu      sync.Mutex
	submits int
	reasons []string
	closes  []model.SessionStatus
	err     error
	delay   time.Duration
}

func (f *fakeFinalizer) Submit(_ context.Context, reason string) error {
	f.mu.Lock()
	delay, err := f.delay, f.err
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	f.submits++
	f.reasons = append(f.reasons, reason)
	return nil
}

func (f *fakeFinalizer) ForceClose(_ context.Context, status model.SessionStatus, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, status)
	return nil
}

func (f *fakeFinalizer) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func (f *fakeFinalizer) closedWith() []model.SessionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SessionStatus(nil), f.closes...)
}

func (f *fakeFinalizer) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakePresence struct {
	reset atomic.Bool
	fail  atomic.Bool
	calls atomic.Int64
}

func (p *fakePresence) Check(context.Context) (bool, error) {
	p.calls.Add(1)
	if p.fail.Load() {
		return false, errors.New("poll: connection refused")
	}
	return p.reset.Load(), nil
}

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) Notify(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *eventSink) kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

func (s *eventSink) has(kind EventKind) bool {
	for _, k := range s.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// testClock is a controllable time source; the runtime's tickers still
// run on real time, shrunk via the interval config.
type testClock struct {
	base   time.Time
	offset atomic.Int64 // nanoseconds
}

func (c *testClock) Now() time.Time {
	return c.base.Add(time.Duration(c.offset.Load()))
}

func (c *testClock) Advance(d time.Duration) {
	c.offset.Add(int64(d))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newTestRuntime(clk *testClock, fin *fakeFinalizer, pres *fakePresence, startOffset time.Duration, durationSec int) *Runtime {
	cfg := Config{
		ExamID:           uuid.New(),
		StudentID:        77,
		Start:            clk.Now().Add(startOffset),
		Duration:         time.Duration(durationSec) * time.Second,
		QuestionCount:    10,
		TickInterval:     5 * time.Millisecond,
		PresenceInterval: 5 * time.Millisecond,
		DisqualifyGrace:  10 * time.Millisecond,
		Now:              clk.Now,
	}
	return NewRuntime(cfg, fin, pres, 0, zerolog.Nop())
}

func TestAutoSubmitFiresExactlyOnce(t *testing.T) {
	clk := &testClock{base: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	fin := &fakeFinalizer{}
	sink := &eventSink{}

	// durationSeconds=60, started 55 s ago: five seconds left.
	rt := newTestRuntime(clk, fin, &fakePresence{}, -55*time.Second, 60)
	rt.Attach(sink)
	rt.Start(context.Background())
	defer rt.Stop()

	require.EqualValues(t, 5, RemainingSeconds(rt.cfg.Start, 60, clk.Now()))
	require.Equal(t, "00:00:05", FormatClock(Remaining(rt.cfg.Start, rt.cfg.Duration, clk.Now())))

	// Six more seconds pass: the deadline is crossed.
	clk.Advance(6 * time.Second)
	waitFor(t, time.Second, func() bool { return fin.submitCount() == 1 })

	// The tick loop stopped; no second submission ever fires.
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, 1, fin.submitCount())
	require.Equal(t, []string{model.EndReasonTimeout}, fin.reasons)
	require.True(t, sink.has(EventSubmitted))

	phase, _, _ := rt.Snapshot()
	require.Equal(t, PhaseDone, phase)
}

func TestDoubleFinishSubmitsOnce(t *testing.T) {
	clk := &testClock{base: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	fin := &fakeFinalizer{delay: 30 * time.Millisecond}

	rt := newTestRuntime(clk, fin, &fakePresence{}, 0, 3600)
	rt.Start(context.Background())
	defer rt.Stop()

	require.True(t, rt.RequestFinish())

	// Simulated double click: two confirmations racing.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.ConfirmFinish(context.Background())
		}()
	}
	wg.Wait()

	require.Equal(t, 1, fin.submitCount())
}

func TestSubmitFailureReturnsToActiveAndAllowsRetry(t *testing.T) {
	clk := &testClock{base: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	fin := &fakeFinalizer{}
	fin.setErr(errors.New("submit: network unreachable"))
	sink := &eventSink{}

	rt := newTestRuntime(clk, fin, &fakePresence{}, 0, 3600)
	rt.Attach(sink)
	rt.Start(context.Background())
	defer rt.Stop()

	require.True(t, rt.RequestFinish())
	rt.ConfirmFinish(context.Background())

	phase, _, _ := rt.Snapshot()
	require.Equal(t, PhaseActive, phase, "failed submission must return to ACTIVE")
	require.True(t, sink.has(EventSubmitFailed))
	require.Equal(t, 0, fin.submitCount())

	// Retry after the network recovers.
	fin.setErr(nil)
	require.True(t, rt.RequestFinish())
	rt.ConfirmFinish(context.Background())
	require.Equal(t, 1, fin.submitCount())
}

func TestStrikeEscalationForcesExit(t *testing.T) {
	clk := &testClock{base: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	fin := &fakeFinalizer{}
	sink := &eventSink{}

	rt := newTestRuntime(clk, fin, &fakePresence{}, 0, 3600)
	rt.Attach(sink)
	rt.Start(context.Background())
	defer rt.Stop()

	// Two tab-hidden events: WARNED with two strikes, resume allowed.
	st, counted := rt.ReportViolation(context.Background(), model.ViolationTabHidden)
	require.Equal(t, 1, st.Violations)
	require.True(t, counted)
	_, err := rt.Resume()
	require.NoError(t, err)

	st, counted = rt.ReportViolation(context.Background(), model.ViolationTabHidden)
	require.Equal(t, 2, st.Violations)
	require.Equal(t, Warned, st.Phase)
	require.True(t, counted)
	_, err = rt.Resume()
	require.NoError(t, err)

	// Third event: terminal.
	st, counted = rt.ReportViolation(context.Background(), model.ViolationFullscreenExit)
	require.Equal(t, 3, st.Violations)
	require.Equal(t, Disqualified, st.Phase)
	require.True(t, counted)

	// Terminal state absorbs further reports without counting them.
	st, counted = rt.ReportViolation(context.Background(), model.ViolationTabHidden)
	require.Equal(t, 3, st.Violations)
	require.False(t, counted)

	_, err = rt.Resume()
	require.ErrorIs(t, err, ErrDisqualified)

	waitFor(t, time.Second, func() bool { return len(fin.closedWith()) == 1 })
	require.Equal(t, []model.SessionStatus{model.SessionStatusDisqualified}, fin.closedWith())
	require.Equal(t, 0, fin.submitCount(), "disqualification never submits")

	phase, _, _ := rt.Snapshot()
	require.Equal(t, PhaseExited, phase)
	require.True(t, sink.has(EventDisqualified))
}

func TestDisqualifiedCannotSubmitDuringGrace(t *testing.T) {
	clk := &testClock{base: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	fin := &fakeFinalizer{}
	sink := &eventSink{}

	rt := newTestRuntime(clk, fin, &fakePresence{}, 0, 3600)
	rt.cfg.DisqualifyGrace = 60 * time.Millisecond
	rt.Attach(sink)
	rt.Start(context.Background())
	defer rt.Stop()

	for i := 0; i < StrikeLimit; i++ {
		rt.ReportViolation(context.Background(), model.ViolationTabHidden)
	}
	_, integrity, _ := rt.Snapshot()
	require.Equal(t, Disqualified, integrity.Phase)

	// The grace window keeps the phase out of terminal so the client can
	// read the message, but the strike limit must already be binding: no
	// finish path may produce a submission.
	require.False(t, rt.RequestFinish())
	rt.ConfirmFinish(context.Background())
	require.Equal(t, 0, fin.submitCount())

	// Only the forced disqualification exit closes the attempt.
	waitFor(t, time.Second, func() bool { return len(fin.closedWith()) == 1 })
	require.Equal(t, []model.SessionStatus{model.SessionStatusDisqualified}, fin.closedWith())
	require.Equal(t, 0, fin.submitCount())

	phase, _, _ := rt.Snapshot()
	require.Equal(t, PhaseExited, phase)
}

func TestViolationsIgnoredDuringSubmit(t *testing.T) {
	clk := &testClock{base: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	fin := &fakeFinalizer{delay: 40 * time.Millisecond}

	rt := newTestRuntime(clk, fin, &fakePresence{}, 0, 3600)
	rt.Start(context.Background())
	defer rt.Stop()

	require.True(t, rt.RequestFinish())
	done := make(chan struct{})
	go func() {
		rt.ConfirmFinish(context.Background())
		close(done)
	}()

	// Exiting fullscreen while the submission is in flight must not count.
	waitFor(t, time.Second, func() bool {
		phase, _, _ := rt.Snapshot()
		return phase == PhaseSubmitting
	})
	st, counted := rt.ReportViolation(context.Background(), model.ViolationFullscreenExit)
	require.Equal(t, 0, st.Violations)
	require.False(t, counted, "a report during the submit path must not count")

	<-done
	require.Equal(t, 1, fin.submitCount())
}

func TestNonStrikeKindsDoNotEscalate(t *testing.T) {
	clk := &testClock{base: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	rt := newTestRuntime(clk, &fakeFinalizer{}, &fakePresence{}, 0, 3600)
	rt.Start(context.Background())
	defer rt.Stop()

	st, counted := rt.ReportViolation(context.Background(), model.ViolationKind("CONTEXT_MENU"))
	require.Equal(t, 0, st.Violations)
	require.Equal(t, Engaged, st.Phase)
	require.False(t, counted)
}

func TestPresenceForceReset(t *testing.T) {
	clk := &testClock{base: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	fin := &fakeFinalizer{}
	pres := &fakePresence{}
	sink := &eventSink{}

	rt := newTestRuntime(clk, fin, pres, 0, 3600)
	rt.Attach(sink)
	rt.Start(context.Background())
	defer rt.Stop()

	pres.reset.Store(true)
	waitFor(t, time.Second, func() bool { return len(fin.closedWith()) == 1 })
	require.Equal(t, []model.SessionStatus{model.SessionStatusReset}, fin.closedWith())
	require.True(t, sink.has(EventForceReset))
}

func TestPresenceErrorsAreSwallowed(t *testing.T) {
	clk := &testClock{base: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	fin := &fakeFinalizer{}
	pres := &fakePresence{}
	pres.fail.Store(true)

	rt := newTestRuntime(clk, fin, pres, 0, 3600)
	rt.Start(context.Background())
	defer rt.Stop()

	waitFor(t, time.Second, func() bool { return pres.calls.Load() >= 3 })
	phase, _, _ := rt.Snapshot()
	require.Equal(t, PhaseActive, phase, "poll failures must not end the session")
	require.Empty(t, fin.closedWith())
}

func TestCursorClampedToBounds(t *testing.T) {
	clk := &testClock{base: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	rt := newTestRuntime(clk, &fakeFinalizer{}, &fakePresence{}, 0, 3600)

	require.Equal(t, 0, rt.Move(-1))
	require.Equal(t, 4, rt.SetCursor(4))
	require.Equal(t, 5, rt.Move(1))
	require.Equal(t, 9, rt.SetCursor(99))
	require.Equal(t, 9, rt.Move(3))
}

func TestCancelFinishReturnsToActive(t *testing.T) {
	clk := &testClock{base: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	fin := &fakeFinalizer{}
	rt := newTestRuntime(clk, fin, &fakePresence{}, 0, 3600)
	rt.Start(context.Background())
	defer rt.Stop()

	require.True(t, rt.RequestFinish())
	require.True(t, rt.CancelFinish())
	phase, _, _ := rt.Snapshot()
	require.Equal(t, PhaseActive, phase)
	require.False(t, rt.CancelFinish(), "cancel outside CONFIRMING is rejected")
}
