package limits

import (
	"sync"
	"time"

	"github.com/nvasquez/portfolio-chat/backend/internal/catalog"
	"github.com/nvasquez/portfolio-chat/backend/internal/timeutil"
)

// WindowUsage is the read-side view of the current minute bucket.
type WindowUsage struct {
	Allowed         bool
	CurrentRequests int
	CurrentTokens   int
}

type minuteBucket struct {
	requests    int
	tokens      int
	firstSeenAt time.Time
}

// MinuteWindowTracker counts requests and tokens per provider within the
// current wall-clock minute. State is volatile: minute-level limits
// self-heal within 60 seconds, so losing the counters on restart is fine.
type MinuteWindowTracker struct {
	mu      sync.Mutex
	buckets map[string]minuteBucket
	now     func() time.Time
}

func NewMinuteWindowTracker() *MinuteWindowTracker {
	return &MinuteWindowTracker{
		buckets: make(map[string]minuteBucket),
		now:     time.Now,
	}
}

// NewMinuteWindowTrackerAt injects a clock for deterministic tests.
func NewMinuteWindowTrackerAt(now func() time.Time) *MinuteWindowTracker {
	t := NewMinuteWindowTracker()
	if now != nil {
		t.now = now
	}
	return t
}

// RecordUsage increments the current bucket for the provider. Buckets older
// than two minutes are purged on every write, which bounds total memory by
// the number of active provider-minute keys.
func (t *MinuteWindowTracker) RecordUsage(providerID string, tokens int) {
	now := t.now()
	key := timeutil.MinuteKey(providerID, now)

	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.buckets[key]
	if b.firstSeenAt.IsZero() {
		b.firstSeenAt = now
	}
	b.requests++
	b.tokens += tokens
	t.buckets[key] = b

	cutoff := timeutil.MinuteOf(now).Add(-2 * time.Minute)
	for k, old := range t.buckets {
		if timeutil.MinuteOf(old.firstSeenAt).Before(cutoff) {
			delete(t.buckets, k)
		}
	}
}

// CheckLimit reads the current bucket against the provider's per-minute
// ceilings. It never mutates state: callers record usage separately, after
// an attempt actually proceeds.
func (t *MinuteWindowTracker) CheckLimit(p catalog.Provider) WindowUsage {
	key := timeutil.MinuteKey(p.ID, t.now())

	t.mu.Lock()
	b := t.buckets[key]
	t.mu.Unlock()

	usage := WindowUsage{
		Allowed:         true,
		CurrentRequests: b.requests,
		CurrentTokens:   b.tokens,
	}
	if p.Limits.RequestsPerMinute > 0 && b.requests >= p.Limits.RequestsPerMinute {
		usage.Allowed = false
	}
	if p.Limits.TokensPerMinute > 0 && b.tokens >= p.Limits.TokensPerMinute {
		usage.Allowed = false
	}
	return usage
}
