package errorlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrorType classifies a failed provider attempt.
type ErrorType string

const (
	ErrorTimeout   ErrorType = "timeout"
	ErrorQuota     ErrorType = "quota"
	ErrorRateLimit ErrorType = "rate_limit"
	ErrorOther     ErrorType = "other"
)

// Record is one append-only log entry. FallbackUsed names the provider the
// router moved on to; it stays empty on the final failure of a chain to
// signal that no further recovery occurred.
type Record struct {
	ID           int64     `json:"id"`
	Provider     string    `json:"provider"`
	ErrorType    ErrorType `json:"error_type"`
	Message      string    `json:"message"`
	FallbackUsed string    `json:"fallback_used,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Count is a rolling tally grouped by provider and error type.
type Count struct {
	Provider  string    `json:"provider"`
	ErrorType ErrorType `json:"error_type"`
	Count     int64     `json:"count"`
}

// Service writes and reads the provider error log. The enforcement path
// only appends; reads serve the admin feed.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func (s *Service) Record(ctx context.Context, provider string, errType ErrorType, message, fallbackUsed string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provider_errors (provider, error_type, message, fallback_used)
		VALUES ($1, $2, $3, $4)
	`, provider, string(errType), message, fallbackUsed)
	if err != nil {
		return fmt.Errorf("record provider error: %w", err)
	}
	return nil
}

// Recent returns the newest entries, capped at limit.
func (s *Service) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, provider, error_type, message, coalesce(fallback_used, ''), created_at
		FROM provider_errors
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list provider errors: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var errType string
		if err := rows.Scan(&r.ID, &r.Provider, &errType, &r.Message, &r.FallbackUsed, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ErrorType = ErrorType(errType)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Counts groups entries newer than the window by provider and error type.
func (s *Service) Counts(ctx context.Context, window time.Duration) ([]Count, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	rows, err := s.pool.Query(ctx, `
		SELECT provider, error_type, count(*)
		FROM provider_errors
		WHERE created_at >= now() - $1::interval
		GROUP BY provider, error_type
		ORDER BY provider, error_type
	`, window)
	if err != nil {
		return nil, fmt.Errorf("count provider errors: %w", err)
	}
	defer rows.Close()

	var out []Count
	for rows.Next() {
		var c Count
		var errType string
		if err := rows.Scan(&c.Provider, &errType, &c.Count); err != nil {
			return nil, err
		}
		c.ErrorType = ErrorType(errType)
		out = append(out, c)
	}
	return out, rows.Err()
}
