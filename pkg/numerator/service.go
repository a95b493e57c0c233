// Package numerator implements invoice auto-numbering backed by PostgreSQL.
//
// Numbers are claimed with a single UPSERT + RETURNING against a
// per-organization counter row, so concurrent callers are serialized by the
// row lock and no two callers ever observe the same sequence value. The
// statement runs on the querier carried by ctx: inside a business transaction
// the claim commits or rolls back together with the invoice insert.
package numerator

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"gymbill/internal/core/id"
	corenum "gymbill/internal/core/numerator"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierProvider resolves the querier for the current context, typically
// the active transaction from a TxManager, falling back to the pool.
type QuerierProvider func(ctx context.Context) Querier

// Service provides strict invoice numbering.
// Implements core/numerator.Generator.
type Service struct {
	// staticQuerier is used when no provider is configured (tests, scripts)
	staticQuerier Querier
	provider      QuerierProvider
	cfg           corenum.Config
}

var _ corenum.Generator = (*Service)(nil)

// New creates a numerator service with a static querier.
// Use for single-connection scenarios and testing.
func New(querier Querier) *Service {
	return &Service{
		staticQuerier: querier,
		cfg:           corenum.DefaultConfig(),
	}
}

// NewWithProvider creates a numerator service that resolves its querier
// per call. Wire it with TxManager.GetQuerier so claims join the caller's
// transaction.
func NewWithProvider(provider QuerierProvider) *Service {
	return &Service{
		provider: provider,
		cfg:      corenum.DefaultConfig(),
	}
}

// WithConfig overrides the default number format.
func (s *Service) WithConfig(cfg corenum.Config) *Service {
	s.cfg = cfg
	return s
}

func (s *Service) getQuerier(ctx context.Context) Querier {
	if s.provider != nil {
		return s.provider(ctx)
	}
	return s.staticQuerier
}

// claimSQL increments the counter, resetting it to 1 whenever the stored
// year differs from the requested one. The whole read-compare-write happens
// in one statement, so the row lock taken by the UPDATE is the only
// serialization point.
const claimSQL = `
    INSERT INTO invoice_sequences (organization_id, current_year, current_sequence)
    VALUES ($1, $2, 1)
    ON CONFLICT (organization_id) DO UPDATE SET
        current_sequence = CASE
            WHEN invoice_sequences.current_year = $2 THEN invoice_sequences.current_sequence + 1
            ELSE 1
        END,
        current_year = $2
    RETURNING current_sequence`

// NextInvoiceNumber claims the next sequence value for the organization and
// formats it as INV-YYYY-NNNNN. The counter resets to 1 on year rollover.
func (s *Service) NextInvoiceNumber(ctx context.Context, organizationID id.ID, period time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}

	querier := s.getQuerier(ctx)
	if querier == nil {
		return "", fmt.Errorf("numerator service has no querier")
	}

	var seq int64
	err := querier.QueryRow(ctx, claimSQL, organizationID, period.Year()).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("claim invoice sequence: %w", err)
	}

	return s.cfg.FormatNumber(period, seq), nil
}
