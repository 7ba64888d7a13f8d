package timeutil

import (
	"fmt"
	"time"
)

// EnsureLocation returns UTC when loc is nil.
func EnsureLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// DayOf normalizes the timestamp to midnight in the reference zone. Daily
// quota rows are keyed by this value so resets happen at one deterministic
// wall-clock boundary regardless of where the process is deployed.
func DayOf(t time.Time, loc *time.Location) time.Time {
	loc = EnsureLocation(loc)
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayKey formats the reference-zone calendar day as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return DayOf(t, loc).Format("2006-01-02")
}

// MinuteKey composes a minute-granular bucket key. Minute windows are
// short-lived and self-correcting, so plain wall-clock minutes are fine
// here; no timezone pinning is needed.
func MinuteKey(id string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s:%04d%02d%02d%02d%02d", id, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute())
}

// MinuteOf truncates the timestamp to its containing minute.
func MinuteOf(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}
