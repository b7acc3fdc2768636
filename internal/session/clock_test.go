package session

import (
	"testing"
	"time"
)

func TestRemainingRecomputeFormula(t *testing.T) {
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	duration := 90 * time.Minute

	// remaining at start+k seconds is max(0, D-k), regardless of which
	// intermediate ticks were observed.
	for _, k := range []int{0, 1, 59, 60, 5399, 5400, 5401, 99999} {
		now := start.Add(time.Duration(k) * time.Second)
		want := 90*60 - k
		if want < 0 {
			want = 0
		}
		got := Remaining(start, duration, now)
		if got != time.Duration(want)*time.Second {
			t.Errorf("k=%d: Remaining = %v, want %ds", k, got, want)
		}
	}
}

func TestRemainingFloorsSubSecondElapsed(t *testing.T) {
	start := time.Unix(1000, 0)
	duration := 10 * time.Second

	// 2.9 elapsed seconds floors to 2: remaining 8.
	got := Remaining(start, duration, start.Add(2900*time.Millisecond))
	if got != 8*time.Second {
		t.Fatalf("Remaining = %v, want 8s", got)
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	start := time.Unix(1000, 0)
	if got := Remaining(start, time.Minute, start.Add(time.Hour)); got != 0 {
		t.Fatalf("Remaining past deadline = %v, want 0", got)
	}
	// A client clock behind the anchor must not inflate the budget.
	if got := Remaining(start, time.Minute, start.Add(-time.Hour)); got != time.Minute {
		t.Fatalf("Remaining before start = %v, want full duration", got)
	}
}

func TestFormatClock(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{5 * time.Second, "00:00:05"},
		{61 * time.Second, "00:01:01"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{10*time.Hour + 59*time.Minute + 59*time.Second, "10:59:59"},
		{-time.Second, "00:00:00"},
	}
	for _, tc := range cases {
		if got := FormatClock(tc.d); got != tc.want {
			t.Errorf("FormatClock(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestRemainingSeconds(t *testing.T) {
	start := time.Unix(5000, 0)
	if got := RemainingSeconds(start, 60, start.Add(55*time.Second)); got != 5 {
		t.Fatalf("RemainingSeconds = %d, want 5", got)
	}
}
