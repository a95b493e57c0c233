package billing_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
	"gymbill/internal/domain/billing/payment"
	"gymbill/internal/infrastructure/storage/postgres"
)

const paymentLedgerTable = "billing_payment_ledger"

// ledgerRow is the persistence shape of a ledger entry.
type ledgerRow struct {
	ID                   id.ID           `db:"id"`
	InvoiceID            id.ID           `db:"invoice_id"`
	Amount               decimal.Decimal `db:"amount"`
	Currency             string          `db:"currency"`
	Method               string          `db:"method"`
	Reference            string          `db:"reference"`
	PaidAt               time.Time       `db:"paid_at"`
	GatewayTransactionID string          `db:"gateway_transaction_id"`
	CreatedBy            string          `db:"created_by"`
}

func fromLedgerRow(row ledgerRow) *payment.LedgerEntry {
	return &payment.LedgerEntry{
		ID:                   row.ID,
		InvoiceID:            row.InvoiceID,
		Amount:               types.Money{Amount: row.Amount, Currency: row.Currency},
		Method:               payment.Method(row.Method),
		Reference:            row.Reference,
		PaidAt:               row.PaidAt,
		GatewayTransactionID: row.GatewayTransactionID,
		CreatedBy:            row.CreatedBy,
	}
}

// Compile-time check that LedgerRepo implements payment.Repository.
var _ payment.Repository = (*LedgerRepo)(nil)

// LedgerRepo persists payment ledger entries. Append-only: there is no
// update or delete path by construction.
type LedgerRepo struct {
	txManager *postgres.TxManager
	cols      []string
}

// NewLedgerRepo creates a new payment ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		cols:      postgres.ExtractDBColumns[ledgerRow](),
	}
}

// Append inserts a new entry. Must run inside the same transaction as the
// invoice update it accounts for.
func (r *LedgerRepo) Append(ctx context.Context, entry *payment.LedgerEntry) error {
	row := ledgerRow{
		ID:                   entry.ID,
		InvoiceID:            entry.InvoiceID,
		Amount:               entry.Amount.Amount,
		Currency:             entry.Amount.Currency,
		Method:               string(entry.Method),
		Reference:            entry.Reference,
		PaidAt:               entry.PaidAt,
		GatewayTransactionID: entry.GatewayTransactionID,
		CreatedBy:            entry.CreatedBy,
	}

	q := builder().Insert(paymentLedgerTable).SetMap(postgres.StructToMap(row))
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// ListByInvoice returns all entries for an invoice ordered by payment time.
func (r *LedgerRepo) ListByInvoice(ctx context.Context, invoiceID id.ID) ([]*payment.LedgerEntry, error) {
	q := builder().
		Select(r.cols...).
		From(paymentLedgerTable).
		Where(squirrel.Eq{"invoice_id": invoiceID}).
		OrderBy("paid_at", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []ledgerRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}

	entries := make([]*payment.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, fromLedgerRow(row))
	}
	return entries, nil
}

// SumByInvoice returns the total of all entries for an invoice. Used for
// reconciliation against the invoice's rolled-up paid amount, inside the
// same transaction as the payment being recorded.
func (r *LedgerRepo) SumByInvoice(ctx context.Context, invoiceID id.ID, currency string) (types.Money, error) {
	sql := `
		SELECT COALESCE(SUM(amount), 0)
		FROM ` + paymentLedgerTable + `
		WHERE invoice_id = $1 AND currency = $2
	`

	var sum decimal.Decimal
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, invoiceID, currency).Scan(&sum); err != nil {
		return types.Money{}, fmt.Errorf("sum ledger entries: %w", err)
	}

	return types.Money{Amount: sum, Currency: currency}, nil
}
