package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nvasquez/portfolio-chat/backend/internal/catalog"
	"github.com/nvasquez/portfolio-chat/backend/internal/timeutil"
)

// Status describes a provider's standing against its daily ceilings.
type Status struct {
	Available       bool    `json:"available"`
	RequestsUsed    int64   `json:"requests_used"`
	TokensUsed      int64   `json:"tokens_used"`
	RequestsLimit   int64   `json:"requests_limit"`
	TokensLimit     int64   `json:"tokens_limit"`
	PercentRequests float64 `json:"percent_requests"`
	PercentTokens   float64 `json:"percent_tokens"`
}

// Service is the durable daily ledger: one row per (calendar day, provider),
// upserted with atomic increments so concurrent requests never lose updates.
// Rows are never deleted; the admin reporting path reads the same records.
type Service struct {
	pool     *pgxpool.Pool
	catalog  *catalog.Catalog
	location *time.Location
	now      func() time.Time
}

func NewService(pool *pgxpool.Pool, cat *catalog.Catalog, loc *time.Location) *Service {
	return &Service{
		pool:     pool,
		catalog:  cat,
		location: timeutil.EnsureLocation(loc),
		now:      time.Now,
	}
}

// NewServiceAt injects a clock for deterministic tests.
func NewServiceAt(pool *pgxpool.Pool, cat *catalog.Catalog, loc *time.Location, now func() time.Time) *Service {
	s := NewService(pool, cat, loc)
	if now != nil {
		s.now = now
	}
	return s
}

// RecordUsage performs a single upsert-and-increment on today's row for the
// provider. No prior read is involved, so parallel recordings are both
// reflected.
func (s *Service) RecordUsage(ctx context.Context, providerID string, tokensIn, tokensOut int64) error {
	day := timeutil.DayOf(s.now(), s.location)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provider_daily_usage (day, provider, requests, tokens_in, tokens_out)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (day, provider) DO UPDATE SET
			requests = provider_daily_usage.requests + 1,
			tokens_in = provider_daily_usage.tokens_in + excluded.tokens_in,
			tokens_out = provider_daily_usage.tokens_out + excluded.tokens_out,
			updated_at = now()
	`, day, providerID, tokensIn, tokensOut)
	if err != nil {
		return fmt.Errorf("record daily usage for %s: %w", providerID, err)
	}
	return nil
}

// CheckQuota reads today's usage for the provider; an absent row counts as
// zero usage.
func (s *Service) CheckQuota(ctx context.Context, providerID string) (Status, error) {
	p := s.catalog.Get(providerID)
	day := timeutil.DayOf(s.now(), s.location)

	var requests, tokensIn, tokensOut int64
	err := s.pool.QueryRow(ctx, `
		SELECT requests, tokens_in, tokens_out
		FROM provider_daily_usage
		WHERE day = $1 AND provider = $2
	`, day, providerID).Scan(&requests, &tokensIn, &tokensOut)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Status{}, fmt.Errorf("read daily usage for %s: %w", providerID, err)
	}

	return Compute(requests, tokensIn+tokensOut, p.Limits), nil
}

// AllQuotas fans CheckQuota out over the given providers. Reads are
// independent per provider; no cross-provider consistency is implied.
func (s *Service) AllQuotas(ctx context.Context, providerIDs []string) (map[string]Status, error) {
	out := make(map[string]Status, len(providerIDs))
	for _, id := range providerIDs {
		st, err := s.CheckQuota(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = st
	}
	return out, nil
}

// Compute derives a Status from raw counters and limits. A limit of 0 means
// unbounded: always available on that dimension, percentage reported as 0.
func Compute(requestsUsed, tokensUsed int64, limits catalog.Limits) Status {
	st := Status{
		RequestsUsed:  requestsUsed,
		TokensUsed:    tokensUsed,
		RequestsLimit: int64(limits.RequestsPerDay),
		TokensLimit:   int64(limits.TokensPerDay),
	}
	st.Available = (st.RequestsLimit == 0 || st.RequestsUsed < st.RequestsLimit) &&
		(st.TokensLimit == 0 || st.TokensUsed < st.TokensLimit)
	if st.RequestsLimit > 0 {
		st.PercentRequests = float64(st.RequestsUsed) / float64(st.RequestsLimit) * 100
	}
	if st.TokensLimit > 0 {
		st.PercentTokens = float64(st.TokensUsed) / float64(st.TokensLimit) * 100
	}
	return st
}
