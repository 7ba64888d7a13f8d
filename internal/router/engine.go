package router

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nvasquez/portfolio-chat/backend/internal/catalog"
	"github.com/nvasquez/portfolio-chat/backend/internal/limits"
	"github.com/nvasquez/portfolio-chat/backend/internal/services/quota"
)

// ErrNoProvider signals that every candidate was unavailable or over quota.
// It is a terminal, user-visible condition, not something to retry.
var ErrNoProvider = errors.New("no admissible provider")

// WindowChecker reads the current-minute usage for a provider.
type WindowChecker interface {
	CheckLimit(p catalog.Provider) limits.WindowUsage
}

// QuotaChecker reads today's standing against the daily ceilings.
type QuotaChecker interface {
	CheckQuota(ctx context.Context, providerID string) (quota.Status, error)
}

// Selection names the chosen provider and its quota standing at selection time.
type Selection struct {
	ProviderID string
	Quota      quota.Status
}

// Engine walks the candidate order and returns the first provider that is
// credentialed, under its minute window, and under its daily quota.
// First fit wins; there is no load balancing.
type Engine struct {
	catalog *catalog.Catalog
	windows WindowChecker
	quotas  QuotaChecker
	logger  *slog.Logger
}

func NewEngine(cat *catalog.Catalog, windows WindowChecker, quotas QuotaChecker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{catalog: cat, windows: windows, quotas: quotas, logger: logger}
}

// SelectProvider picks the first admissible provider from preferred followed
// by fallbackOrder. A preferred id missing from availableIDs is skipped like
// any other candidate.
func (e *Engine) SelectProvider(ctx context.Context, preferred string, fallbackOrder []string, availableIDs []string) (Selection, error) {
	available := make(map[string]struct{}, len(availableIDs))
	for _, id := range availableIDs {
		available[id] = struct{}{}
	}

	for _, id := range CandidateOrder(preferred, fallbackOrder) {
		if _, ok := available[id]; !ok {
			continue
		}
		if !e.catalog.Has(id) {
			continue
		}
		p := e.catalog.Get(id)

		if usage := e.windows.CheckLimit(p); !usage.Allowed {
			e.logger.Debug("provider over minute window",
				"provider", id,
				"requests", usage.CurrentRequests,
				"tokens", usage.CurrentTokens)
			continue
		}

		st, err := e.quotas.CheckQuota(ctx, id)
		if err != nil {
			// A failed enforcement read should not take the chat feature
			// down with it; proceed with unknown standing.
			e.logger.Warn("quota check failed, admitting provider", "provider", id, "error", err)
			st = quota.Status{Available: true}
		}
		if !st.Available {
			e.logger.Debug("provider over daily quota",
				"provider", id,
				"requests_used", st.RequestsUsed,
				"tokens_used", st.TokensUsed)
			continue
		}

		return Selection{ProviderID: id, Quota: st}, nil
	}

	return Selection{}, ErrNoProvider
}

// CandidateOrder builds the de-duplicated, order-preserving try list:
// preferred first, then each fallback id not already included.
func CandidateOrder(preferred string, fallbackOrder []string) []string {
	seen := make(map[string]struct{}, len(fallbackOrder)+1)
	out := make([]string, 0, len(fallbackOrder)+1)
	if preferred != "" {
		seen[preferred] = struct{}{}
		out = append(out, preferred)
	}
	for _, id := range fallbackOrder {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
