package limits

import (
	"fmt"
	"sync"
	"time"

	"github.com/nvasquez/portfolio-chat/backend/internal/timeutil"
)

// Decision is the outcome of a throttle admission check.
type Decision struct {
	Allowed           bool
	Reason            string
	RetryAfterSeconds int
}

type visitorState struct {
	minuteCount   int
	minuteResetAt time.Time
	dayCount      int
	dayKey        string
}

// VisitorThrottle applies per-source admission control independent of
// provider quotas: a rolling 60-second ceiling and a calendar-day ceiling,
// both keyed by caller-supplied source id. State lives only in process
// memory; after a restart the worst case is a briefly un-throttled burst.
type VisitorThrottle struct {
	mu       sync.Mutex
	visitors map[string]*visitorState

	perMinute int
	perDay    int
	location  *time.Location
	now       func() time.Time
}

func NewVisitorThrottle(perMinute, perDay int, loc *time.Location) *VisitorThrottle {
	return &VisitorThrottle{
		visitors:  make(map[string]*visitorState),
		perMinute: perMinute,
		perDay:    perDay,
		location:  timeutil.EnsureLocation(loc),
		now:       time.Now,
	}
}

// NewVisitorThrottleAt injects a clock for deterministic tests.
func NewVisitorThrottleAt(perMinute, perDay int, loc *time.Location, now func() time.Time) *VisitorThrottle {
	t := NewVisitorThrottle(perMinute, perDay, loc)
	if now != nil {
		t.now = now
	}
	return t
}

// Admit checks both ceilings for sourceID and, when admitted, increments
// both counters before returning. The daily ceiling is evaluated first so
// the coarser, more user-visible message wins when both are exceeded.
func (t *VisitorThrottle) Admit(sourceID string) Decision {
	now := t.now()
	today := timeutil.DayKey(now, t.location)

	t.mu.Lock()
	defer t.mu.Unlock()

	v := t.visitors[sourceID]
	if v == nil {
		v = &visitorState{}
		t.visitors[sourceID] = v
	}

	if v.dayKey != today {
		v.dayCount = 0
		v.dayKey = today
	}
	if !now.Before(v.minuteResetAt) {
		v.minuteCount = 0
		v.minuteResetAt = now.Add(time.Minute)
	}

	if t.perDay > 0 && v.dayCount >= t.perDay {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("daily message limit of %d reached, come back tomorrow", t.perDay),
		}
	}
	if t.perMinute > 0 && v.minuteCount >= t.perMinute {
		retry := int(v.minuteResetAt.Sub(now).Round(time.Second).Seconds())
		if retry < 1 {
			retry = 1
		}
		return Decision{
			Allowed:           false,
			Reason:            fmt.Sprintf("too many messages, wait %d seconds", retry),
			RetryAfterSeconds: retry,
		}
	}

	v.minuteCount++
	v.dayCount++
	return Decision{Allowed: true}
}
