package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nvasquez/portfolio-chat/backend/internal/catalog"
	"github.com/nvasquez/portfolio-chat/backend/internal/limits"
	"github.com/nvasquez/portfolio-chat/backend/internal/models"
	"github.com/nvasquez/portfolio-chat/backend/internal/router"
	"github.com/nvasquez/portfolio-chat/backend/internal/services/errorlog"
	"github.com/nvasquez/portfolio-chat/backend/internal/services/quota"
	"github.com/nvasquez/portfolio-chat/backend/internal/services/routing"
)

type fakeCreds map[string]string

func (f fakeCreds) Lookup(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

type fakeThrottle struct {
	dec limits.Decision
}

func (f fakeThrottle) Admit(string) limits.Decision { return f.dec }

type fakeSettings struct {
	settings routing.Settings
}

func (f fakeSettings) Get(context.Context) (routing.Settings, error) { return f.settings, nil }

type fakeQuotas struct {
	over map[string]bool
}

func (f *fakeQuotas) CheckQuota(_ context.Context, providerID string) (quota.Status, error) {
	if f.over[providerID] {
		return quota.Status{Available: false, RequestsUsed: 20, RequestsLimit: 20}, nil
	}
	return quota.Status{Available: true}, nil
}

type ledgerCall struct {
	provider  string
	tokensIn  int64
	tokensOut int64
}

type fakeLedger struct {
	mu    sync.Mutex
	calls []ledgerCall
	done  chan struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{done: make(chan struct{}, 8)}
}

func (f *fakeLedger) RecordUsage(_ context.Context, providerID string, tokensIn, tokensOut int64) error {
	f.mu.Lock()
	f.calls = append(f.calls, ledgerCall{provider: providerID, tokensIn: tokensIn, tokensOut: tokensOut})
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeLedger) wait(t *testing.T) []ledgerCall {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for usage recording")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ledgerCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type errRecord struct {
	provider     string
	errType      errorlog.ErrorType
	fallbackUsed string
}

type fakeErrors struct {
	mu      sync.Mutex
	records []errRecord
}

func (f *fakeErrors) Record(_ context.Context, provider string, errType errorlog.ErrorType, _ string, fallbackUsed string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, errRecord{provider: provider, errType: errType, fallbackUsed: fallbackUsed})
	return nil
}

type fakeSessions struct {
	mu       sync.Mutex
	appended []string
}

func (f *fakeSessions) Load(_ context.Context, sessionID string) (string, []models.Message, error) {
	if sessionID == "" {
		sessionID = "session-1"
	}
	return sessionID, nil, nil
}

func (f *fakeSessions) Append(_ context.Context, sessionID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, sessionID)
	return nil
}

type failingSessions struct {
	mu       sync.Mutex
	appended []string
}

func (f *failingSessions) Load(context.Context, string) (string, []models.Message, error) {
	return "", nil, errors.New("redis: connection refused")
}

func (f *failingSessions) Append(_ context.Context, sessionID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, sessionID)
	return nil
}

type fakeCompleter struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (f *fakeCompleter) Complete(_ context.Context, p catalog.Provider, _ string, _ []models.Message) (models.Completion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p.ID)
	f.mu.Unlock()
	if err := f.fail[p.ID]; err != nil {
		return models.Completion{}, err
	}
	return models.Completion{Text: "answer from " + p.ID, TokensIn: 10, TokensOut: 25}, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testCatalog() *catalog.Catalog {
	creds := fakeCreds{"GEMINI_API_KEY": "x", "MISTRAL_API_KEY": "x", "GROQ_API_KEY": "x"}
	return catalog.NewWithProviders(creds, []catalog.Provider{
		{ID: "gemini", CredentialKey: "GEMINI_API_KEY", Limits: catalog.Limits{RequestsPerDay: 20}},
		{ID: "mistral", CredentialKey: "MISTRAL_API_KEY"},
		{ID: "groq-70b", CredentialKey: "GROQ_API_KEY"},
	})
}

type fixture struct {
	exec      *Executor
	completer *fakeCompleter
	ledger    *fakeLedger
	errors    *fakeErrors
	windows   *limits.MinuteWindowTracker
}

func newFixture(t *testing.T, throttle fakeThrottle, quotas *fakeQuotas, completer *fakeCompleter) *fixture {
	t.Helper()
	cat := testCatalog()
	windows := limits.NewMinuteWindowTracker()
	ledger := newFakeLedger()
	errSink := &fakeErrors{}
	engine := router.NewEngine(cat, windows, quotas, nil)

	exec := New(Options{
		Catalog:  cat,
		Throttle: throttle,
		Settings: fakeSettings{settings: routing.Settings{
			Preferred:     "gemini",
			FallbackOrder: []string{"mistral", "groq-70b"},
		}},
		Selector:          engine,
		Windows:           windows,
		Ledger:            ledger,
		Errors:            errSink,
		Sessions:          &fakeSessions{},
		Completer:         completer,
		CompletionTimeout: time.Second,
	})
	return &fixture{exec: exec, completer: completer, ledger: ledger, errors: errSink, windows: windows}
}

func admitAll() fakeThrottle {
	return fakeThrottle{dec: limits.Decision{Allowed: true}}
}

func TestExecuteFallsBackWhenPreferredOverQuota(t *testing.T) {
	fx := newFixture(t, admitAll(), &fakeQuotas{over: map[string]bool{"gemini": true}}, &fakeCompleter{})

	result, err := fx.exec.Execute(context.Background(), "1.2.3.4", "", "hello")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.ProviderID != "mistral" {
		t.Fatalf("expected mistral to answer, got %s", result.ProviderID)
	}
	if result.Text != "answer from mistral" {
		t.Fatalf("unexpected response text %q", result.Text)
	}
	if result.SessionID == "" {
		t.Fatalf("session id must be reported")
	}

	calls := fx.ledger.wait(t)
	if len(calls) != 1 {
		t.Fatalf("expected exactly one ledger record, got %d", len(calls))
	}
	if calls[0].provider != "mistral" || calls[0].tokensIn != 10 || calls[0].tokensOut != 25 {
		t.Fatalf("unexpected ledger record %+v", calls[0])
	}
}

func TestExecuteThrottledBeforeAnyProvider(t *testing.T) {
	throttle := fakeThrottle{dec: limits.Decision{
		Allowed:           false,
		Reason:            "too many messages, wait 30 seconds",
		RetryAfterSeconds: 30,
	}}
	fx := newFixture(t, throttle, &fakeQuotas{}, &fakeCompleter{})

	_, err := fx.exec.Execute(context.Background(), "1.2.3.4", "", "hello")
	var throttled *ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if throttled.RetryAfterSeconds != 30 {
		t.Fatalf("retry hint lost: %+v", throttled)
	}
	if fx.completer.callCount() != 0 {
		t.Fatalf("throttled request must not reach a provider")
	}
}

func TestExecuteRoutingExhaustedWithoutCompletionCall(t *testing.T) {
	quotas := &fakeQuotas{over: map[string]bool{"gemini": true, "mistral": true, "groq-70b": true}}
	fx := newFixture(t, admitAll(), quotas, &fakeCompleter{})

	_, err := fx.exec.Execute(context.Background(), "1.2.3.4", "", "hello")
	if !errors.Is(err, ErrRoutingExhausted) {
		t.Fatalf("expected ErrRoutingExhausted, got %v", err)
	}
	if fx.completer.callCount() != 0 {
		t.Fatalf("exhausted routing must not invoke the completion capability")
	}
}

func TestExecuteRetriesNextCandidateOnProviderFailure(t *testing.T) {
	completer := &fakeCompleter{fail: map[string]error{
		"gemini": errors.New("upstream 429: too many requests"),
	}}
	fx := newFixture(t, admitAll(), &fakeQuotas{}, completer)

	result, err := fx.exec.Execute(context.Background(), "1.2.3.4", "", "hello")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.ProviderID != "mistral" {
		t.Fatalf("expected fallback to mistral, got %s", result.ProviderID)
	}

	fx.errors.mu.Lock()
	records := append([]errRecord(nil), fx.errors.records...)
	fx.errors.mu.Unlock()
	if len(records) != 1 {
		t.Fatalf("expected one error record, got %d", len(records))
	}
	if records[0].provider != "gemini" || records[0].errType != errorlog.ErrorRateLimit {
		t.Fatalf("unexpected error record %+v", records[0])
	}
	if records[0].fallbackUsed != "mistral" {
		t.Fatalf("error record should name the fallback, got %q", records[0].fallbackUsed)
	}
}

func TestExecuteAllProvidersFailed(t *testing.T) {
	boom := errors.New("connection reset")
	completer := &fakeCompleter{fail: map[string]error{
		"gemini": boom, "mistral": boom, "groq-70b": boom,
	}}
	fx := newFixture(t, admitAll(), &fakeQuotas{}, completer)

	_, err := fx.exec.Execute(context.Background(), "1.2.3.4", "", "hello")
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
	if fx.completer.callCount() != 3 {
		t.Fatalf("every candidate should be tried once, got %d calls", fx.completer.callCount())
	}

	fx.errors.mu.Lock()
	records := append([]errRecord(nil), fx.errors.records...)
	fx.errors.mu.Unlock()
	if len(records) != 3 {
		t.Fatalf("expected three error records, got %d", len(records))
	}
	// The final failure has no further recovery, so fallback stays empty.
	if last := records[len(records)-1]; last.fallbackUsed != "" {
		t.Fatalf("last record must have empty fallback, got %q", last.fallbackUsed)
	}
	for _, rec := range records[:len(records)-1] {
		if rec.fallbackUsed == "" {
			t.Fatalf("intermediate failures must name their fallback: %+v", rec)
		}
	}
}

func TestExecuteKeepsSessionIDWhenLoadFails(t *testing.T) {
	cat := testCatalog()
	windows := limits.NewMinuteWindowTracker()
	engine := router.NewEngine(cat, windows, &fakeQuotas{}, nil)
	ledger := newFakeLedger()
	sessions := &failingSessions{}

	exec := New(Options{
		Catalog:           cat,
		Throttle:          admitAll(),
		Settings:          fakeSettings{settings: routing.Settings{Preferred: "gemini"}},
		Selector:          engine,
		Windows:           windows,
		Ledger:            ledger,
		Errors:            &fakeErrors{},
		Sessions:          sessions,
		Completer:         &fakeCompleter{},
		CompletionTimeout: time.Second,
	})

	result, err := exec.Execute(context.Background(), "1.2.3.4", "visitor-session-42", "hello")
	if err != nil {
		t.Fatalf("a session store outage must not fail the request: %v", err)
	}
	if result.SessionID != "visitor-session-42" {
		t.Fatalf("caller session id must survive a failed load, got %q", result.SessionID)
	}

	ledger.wait(t)
	sessions.mu.Lock()
	appended := append([]string(nil), sessions.appended...)
	sessions.mu.Unlock()
	if len(appended) != 1 || appended[0] != "visitor-session-42" {
		t.Fatalf("history append must use the surviving session id, got %v", appended)
	}
}

func TestExecuteMintsSessionIDWhenLoadFailsWithoutOne(t *testing.T) {
	cat := testCatalog()
	windows := limits.NewMinuteWindowTracker()
	engine := router.NewEngine(cat, windows, &fakeQuotas{}, nil)

	exec := New(Options{
		Catalog:           cat,
		Throttle:          admitAll(),
		Settings:          fakeSettings{settings: routing.Settings{Preferred: "gemini"}},
		Selector:          engine,
		Windows:           windows,
		Ledger:            newFakeLedger(),
		Errors:            &fakeErrors{},
		Sessions:          &failingSessions{},
		Completer:         &fakeCompleter{},
		CompletionTimeout: time.Second,
	})

	result, err := exec.Execute(context.Background(), "1.2.3.4", "", "hello")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.SessionID == "" {
		t.Fatalf("a fresh request must still get a session id")
	}
}

func TestExecuteClassifiesTimeoutOnSlowProvider(t *testing.T) {
	slow := &slowCompleter{delay: 250 * time.Millisecond}
	cat := testCatalog()
	windows := limits.NewMinuteWindowTracker()
	engine := router.NewEngine(cat, windows, &fakeQuotas{}, nil)
	errSink := &fakeErrors{}

	exec := New(Options{
		Catalog:           cat,
		Throttle:          admitAll(),
		Settings:          fakeSettings{settings: routing.Settings{Preferred: "gemini"}},
		Selector:          engine,
		Windows:           windows,
		Ledger:            newFakeLedger(),
		Errors:            errSink,
		Sessions:          &fakeSessions{},
		Completer:         slow,
		CompletionTimeout: 20 * time.Millisecond,
	})

	_, err := exec.Execute(context.Background(), "1.2.3.4", "", "hello")
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}

	errSink.mu.Lock()
	defer errSink.mu.Unlock()
	if len(errSink.records) == 0 {
		t.Fatalf("expected error records")
	}
	if errSink.records[0].errType != errorlog.ErrorTimeout {
		t.Fatalf("slow provider should classify as timeout, got %s", errSink.records[0].errType)
	}
}

type slowCompleter struct {
	delay time.Duration
}

func (s *slowCompleter) Complete(ctx context.Context, _ catalog.Provider, _ string, _ []models.Message) (models.Completion, error) {
	select {
	case <-ctx.Done():
		return models.Completion{}, ctx.Err()
	case <-time.After(s.delay):
		return models.Completion{Text: "late"}, nil
	}
}
