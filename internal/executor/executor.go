package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nvasquez/portfolio-chat/backend/internal/catalog"
	"github.com/nvasquez/portfolio-chat/backend/internal/limits"
	"github.com/nvasquez/portfolio-chat/backend/internal/models"
	"github.com/nvasquez/portfolio-chat/backend/internal/observability"
	"github.com/nvasquez/portfolio-chat/backend/internal/providers"
	"github.com/nvasquez/portfolio-chat/backend/internal/router"
	"github.com/nvasquez/portfolio-chat/backend/internal/services/errorlog"
	"github.com/nvasquez/portfolio-chat/backend/internal/services/routing"
)

// ErrRoutingExhausted: every candidate was unavailable or over quota before
// any completion call was made.
var ErrRoutingExhausted = errors.New("all providers exhausted")

// ErrAllProvidersFailed: every candidate was tried and failed.
var ErrAllProvidersFailed = errors.New("all provider attempts failed")

// ThrottledError carries the visitor-facing rejection from admission control.
type ThrottledError struct {
	Reason            string
	RetryAfterSeconds int
}

func (e *ThrottledError) Error() string { return e.Reason }

// Throttle gates requests before any provider is touched.
type Throttle interface {
	Admit(sourceID string) limits.Decision
}

// SettingsSource yields the current preferred provider and fallback order.
type SettingsSource interface {
	Get(ctx context.Context) (routing.Settings, error)
}

// Selector picks the first admissible provider for a candidate set.
type Selector interface {
	SelectProvider(ctx context.Context, preferred string, fallbackOrder []string, availableIDs []string) (router.Selection, error)
}

// WindowRecorder tracks per-minute consumption in process memory.
type WindowRecorder interface {
	RecordUsage(providerID string, tokens int)
}

// LedgerRecorder persists per-day consumption durably.
type LedgerRecorder interface {
	RecordUsage(ctx context.Context, providerID string, tokensIn, tokensOut int64) error
}

// ErrorSink appends provider failure records for the admin feed.
type ErrorSink interface {
	Record(ctx context.Context, provider string, errType errorlog.ErrorType, message, fallbackUsed string) error
}

// Sessions loads and extends conversation history.
type Sessions interface {
	Load(ctx context.Context, sessionID string) (string, []models.Message, error)
	Append(ctx context.Context, sessionID, userMsg, assistantMsg string) error
}

// Result is the terminal success state of one chat request. ProviderID is
// reported to the caller because providers differ in behavior and voice.
type Result struct {
	Text       string
	SessionID  string
	ProviderID string
	TokensIn   int64
	TokensOut  int64
}

// Executor runs the per-message state machine: admission, routing, the
// completion attempt loop with transparent fallback, and usage recording.
type Executor struct {
	catalog   *catalog.Catalog
	throttle  Throttle
	settings  SettingsSource
	selector  Selector
	windows   WindowRecorder
	ledger    LedgerRecorder
	errors    ErrorSink
	sessions  Sessions
	completer providers.Completer

	completionTimeout time.Duration
	recordTimeout     time.Duration
	logger            *slog.Logger
	metrics           *observability.Provider
}

type Options struct {
	Catalog           *catalog.Catalog
	Throttle          Throttle
	Settings          SettingsSource
	Selector          Selector
	Windows           WindowRecorder
	Ledger            LedgerRecorder
	Errors            ErrorSink
	Sessions          Sessions
	Completer         providers.Completer
	CompletionTimeout time.Duration
	Logger            *slog.Logger
	Metrics           *observability.Provider
}

func New(opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.CompletionTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Executor{
		catalog:           opts.Catalog,
		throttle:          opts.Throttle,
		settings:          opts.Settings,
		selector:          opts.Selector,
		windows:           opts.Windows,
		ledger:            opts.Ledger,
		errors:            opts.Errors,
		sessions:          opts.Sessions,
		completer:         opts.Completer,
		completionTimeout: timeout,
		recordTimeout:     5 * time.Second,
		logger:            logger,
		metrics:           opts.Metrics,
	}
}

// Execute handles one inbound visitor message.
func (e *Executor) Execute(ctx context.Context, sourceID, sessionID, message string) (Result, error) {
	if dec := e.throttle.Admit(sourceID); !dec.Allowed {
		ceiling := "day"
		if dec.RetryAfterSeconds > 0 {
			ceiling = "minute"
		}
		e.metrics.RecordThrottle(ceiling)
		return Result{}, &ThrottledError{Reason: dec.Reason, RetryAfterSeconds: dec.RetryAfterSeconds}
	}

	settings, err := e.settings.Get(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load routing settings: %w", err)
	}

	loadedID, history, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		// History is a nicety; losing it must not block the answer. The
		// caller's session id survives so the response still carries one.
		e.logger.Warn("session load failed, starting fresh", "error", err)
		history = nil
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
	} else {
		sessionID = loadedID
	}

	failed := make(map[string]struct{})
	sel, err := e.selectNext(ctx, settings, failed)
	if err != nil {
		return Result{}, ErrRoutingExhausted
	}

	for {
		start := time.Now()
		completion, attemptErr := e.attempt(ctx, sel.ProviderID, message, history)
		elapsed := time.Since(start)
		if attemptErr == nil {
			e.metrics.RecordChat(sel.ProviderID, "success", elapsed)
			e.metrics.RecordTokens(sel.ProviderID, completion.TokensIn, completion.TokensOut)
			e.recordSuccess(ctx, sel.ProviderID, sessionID, message, completion)
			return Result{
				Text:       completion.Text,
				SessionID:  sessionID,
				ProviderID: sel.ProviderID,
				TokensIn:   completion.TokensIn,
				TokensOut:  completion.TokensOut,
			}, nil
		}

		failed[sel.ProviderID] = struct{}{}
		next, nextErr := e.selectNext(ctx, settings, failed)

		fallbackUsed := ""
		if nextErr == nil {
			fallbackUsed = next.ProviderID
		}
		errType := providers.Classify(attemptErr)
		e.metrics.RecordChat(sel.ProviderID, string(errType), elapsed)
		e.metrics.RecordFallback(sel.ProviderID, string(errType))
		e.logger.Warn("provider attempt failed",
			"provider", sel.ProviderID,
			"error_type", string(errType),
			"fallback", fallbackUsed,
			"error", attemptErr)
		if recErr := e.errors.Record(ctx, sel.ProviderID, errType, attemptErr.Error(), fallbackUsed); recErr != nil {
			e.logger.Error("provider error record failed", "error", recErr)
		}

		if nextErr != nil {
			return Result{}, ErrAllProvidersFailed
		}
		sel = next
	}
}

func (e *Executor) selectNext(ctx context.Context, settings routing.Settings, failed map[string]struct{}) (router.Selection, error) {
	available := make([]string, 0)
	for _, id := range e.catalog.AvailableIDs() {
		if _, tried := failed[id]; tried {
			continue
		}
		available = append(available, id)
	}
	return e.selector.SelectProvider(ctx, settings.Preferred, settings.FallbackOrder, available)
}

// attempt invokes the completion capability under the configured hard
// ceiling. None of the in-memory locks are held here.
func (e *Executor) attempt(ctx context.Context, providerID, message string, history []models.Message) (models.Completion, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.completionTimeout)
	defer cancel()
	return e.completer.Complete(callCtx, e.catalog.Get(providerID), message, history)
}

// recordSuccess notes usage after a delivered answer. The minute window is
// updated inline (in-memory, cheap); durable recording and the session
// append run detached so a storage hiccup can never turn a good answer
// into a user-visible error.
func (e *Executor) recordSuccess(ctx context.Context, providerID, sessionID, message string, completion models.Completion) {
	e.windows.RecordUsage(providerID, int(completion.TotalTokens()))

	bg := context.WithoutCancel(ctx)
	go func() {
		recordCtx, cancel := context.WithTimeout(bg, e.recordTimeout)
		defer cancel()

		if err := e.ledger.RecordUsage(recordCtx, providerID, completion.TokensIn, completion.TokensOut); err != nil {
			e.logger.Error("daily usage record failed", "provider", providerID, "error", err)
		}
		if err := e.sessions.Append(recordCtx, sessionID, message, completion.Text); err != nil {
			e.logger.Warn("session append failed", "session", sessionID, "error", err)
		}
	}()
}
