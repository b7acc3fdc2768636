package session

import (
	"fmt"
	"time"
)

// Remaining recomputes the time left on the attempt from the absolute
// server-fixed anchor. It is always derived, never counted down, so a
// missed tick, a reload, or a slept tab cannot drift the timer:
//
//	remaining = duration - floor(now - start)
//
// floored at zero. Callers feed it whatever "now" they trust.
func Remaining(start time.Time, duration time.Duration, now time.Time) time.Duration {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := duration - elapsed.Truncate(time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemainingSeconds is Remaining in whole seconds, for wire payloads.
func RemainingSeconds(start time.Time, durationSeconds int, now time.Time) int64 {
	return int64(Remaining(start, time.Duration(durationSeconds)*time.Second, now) / time.Second)
}

// FormatClock renders a countdown value as zero-padded HH:MM:SS.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
