package limits

import (
	"testing"
	"time"
)

func TestThrottleMinuteBoundary(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	throttle := NewVisitorThrottleAt(3, 100, time.UTC, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if dec := throttle.Admit("1.2.3.4"); !dec.Allowed {
			t.Fatalf("request %d should be admitted: %+v", i+1, dec)
		}
	}

	dec := throttle.Admit("1.2.3.4")
	if dec.Allowed {
		t.Fatalf("4th request within the window should be rejected")
	}
	if dec.RetryAfterSeconds <= 0 {
		t.Fatalf("minute rejection must carry a positive retry hint, got %d", dec.RetryAfterSeconds)
	}

	// After the window rolls over a new request is admitted again.
	now = now.Add(61 * time.Second)
	if dec := throttle.Admit("1.2.3.4"); !dec.Allowed {
		t.Fatalf("request after window rollover should be admitted: %+v", dec)
	}
}

func TestThrottleDailyCeiling(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	throttle := NewVisitorThrottleAt(100, 2, time.UTC, func() time.Time { return now })

	throttle.Admit("5.6.7.8")
	now = now.Add(2 * time.Minute)
	throttle.Admit("5.6.7.8")
	now = now.Add(2 * time.Minute)

	dec := throttle.Admit("5.6.7.8")
	if dec.Allowed {
		t.Fatalf("3rd request of the day should be rejected")
	}
	if dec.RetryAfterSeconds != 0 {
		t.Fatalf("daily rejection has no retry hint, got %d", dec.RetryAfterSeconds)
	}

	// A new calendar day resets the counter.
	now = time.Date(2026, 3, 15, 0, 0, 1, 0, time.UTC)
	if dec := throttle.Admit("5.6.7.8"); !dec.Allowed {
		t.Fatalf("first request of the next day should be admitted: %+v", dec)
	}
}

func TestThrottleDailyEvaluatedBeforeMinute(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	throttle := NewVisitorThrottleAt(1, 1, time.UTC, func() time.Time { return now })

	throttle.Admit("9.9.9.9")

	// Both ceilings are exceeded; the coarser daily reason must win.
	dec := throttle.Admit("9.9.9.9")
	if dec.Allowed {
		t.Fatalf("request should be rejected")
	}
	if dec.RetryAfterSeconds != 0 {
		t.Fatalf("daily reason should win over minute, got %+v", dec)
	}
}

func TestThrottleKeysAreIndependent(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	throttle := NewVisitorThrottleAt(1, 10, time.UTC, func() time.Time { return now })

	if dec := throttle.Admit("a"); !dec.Allowed {
		t.Fatalf("first visitor should be admitted: %+v", dec)
	}
	if dec := throttle.Admit("b"); !dec.Allowed {
		t.Fatalf("second visitor must not share buckets with the first: %+v", dec)
	}
}

func TestThrottleDayBoundaryUsesReferenceZone(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 03:00 UTC on the 15th is still the 14th in Chicago; the daily bucket
	// must not reset until the reference zone rolls over.
	now := time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC)
	throttle := NewVisitorThrottleAt(100, 1, chicago, func() time.Time { return now })

	throttle.Admit("x")
	now = now.Add(time.Hour)
	if dec := throttle.Admit("x"); dec.Allowed {
		t.Fatalf("still the same Chicago day, should be rejected")
	}

	now = time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC)
	if dec := throttle.Admit("x"); !dec.Allowed {
		t.Fatalf("Chicago midnight passed, should be admitted: %+v", dec)
	}
}
