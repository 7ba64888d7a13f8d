package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nvasquez/portfolio-chat/backend/internal/catalog"
)

var (
	ErrUnknownProvider     = errors.New("unknown provider id")
	ErrProviderUnavailable = errors.New("provider has no credential configured")
)

// Settings is the singleton routing record: the preferred provider plus an
// ordered fallback list. It is read on every chat request and mutated only
// through an explicit administrative update.
type Settings struct {
	Preferred     string   `json:"preferred"`
	FallbackOrder []string `json:"fallback_order"`
}

// Service persists Settings in a single-row table, seeding defaults on
// first access.
type Service struct {
	pool     *pgxpool.Pool
	catalog  *catalog.Catalog
	defaults Settings
}

func NewService(pool *pgxpool.Pool, cat *catalog.Catalog, defaults Settings) *Service {
	return &Service{pool: pool, catalog: cat, defaults: defaults}
}

// Get returns the current settings, creating the row with defaults when absent.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	var out Settings
	err := s.pool.QueryRow(ctx, `
		SELECT preferred, fallback_order FROM routing_settings WHERE id = 1
	`).Scan(&out.Preferred, &out.FallbackOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := s.write(ctx, s.defaults); err != nil {
			return Settings{}, err
		}
		return s.defaults, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read routing settings: %w", err)
	}
	if out.FallbackOrder == nil {
		out.FallbackOrder = []string{}
	}
	return out, nil
}

// Update validates and persists new settings. The preferred id must name a
// known, available provider; unknown ids in the fallback order are silently
// dropped.
func (s *Service) Update(ctx context.Context, in Settings) (Settings, error) {
	if !s.catalog.Has(in.Preferred) {
		return Settings{}, fmt.Errorf("%w: %s", ErrUnknownProvider, in.Preferred)
	}
	if !s.catalog.IsAvailable(in.Preferred) {
		return Settings{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, in.Preferred)
	}

	cleaned := make([]string, 0, len(in.FallbackOrder))
	for _, id := range in.FallbackOrder {
		if s.catalog.Has(id) {
			cleaned = append(cleaned, id)
		}
	}
	out := Settings{Preferred: in.Preferred, FallbackOrder: cleaned}
	if err := s.write(ctx, out); err != nil {
		return Settings{}, err
	}
	return out, nil
}

func (s *Service) write(ctx context.Context, in Settings) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO routing_settings (id, preferred, fallback_order, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE SET
			preferred = excluded.preferred,
			fallback_order = excluded.fallback_order,
			updated_at = now()
	`, in.Preferred, in.FallbackOrder)
	if err != nil {
		return fmt.Errorf("write routing settings: %w", err)
	}
	return nil
}
