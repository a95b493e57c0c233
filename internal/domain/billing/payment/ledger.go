// Package payment provides the append-only payment ledger.
//
// The ledger keeps one immutable row per payment applied to an invoice. The
// invoice itself rolls payments up into a single paid amount whose
// method/reference fields are last-write-wins, so the ledger is the only
// place individual payments survive. The sum of a ledger's entries must
// reconcile with the invoice's paid amount at all times.
package payment

import (
	"context"
	"time"

	"gymbill/internal/core/apperror"
	"gymbill/internal/core/entity"
	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
)

// Method identifies how a payment was made.
type Method string

const (
	MethodCash         Method = "CASH"
	MethodCard         Method = "CARD"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodCheque       Method = "CHEQUE"
	MethodOnline       Method = "ONLINE"
	MethodOther        Method = "OTHER"
)

// IsValid reports whether the method is one of the known values.
func (m Method) IsValid() bool {
	switch m {
	case MethodCash, MethodCard, MethodBankTransfer, MethodCheque, MethodOnline, MethodOther:
		return true
	}
	return false
}

// LedgerEntry records one payment applied to an invoice. Entries are
// immutable once written and never deleted.
type LedgerEntry struct {
	ID        id.ID       `db:"id" json:"id"`
	InvoiceID id.ID       `db:"invoice_id" json:"invoiceId"`
	Amount    types.Money `db:"amount" json:"amount"`
	Method    Method      `db:"method" json:"method"`
	Reference string      `db:"reference" json:"reference,omitempty"`
	PaidAt    time.Time   `db:"paid_at" json:"paidAt"`

	// GatewayTransactionID links the entry to an external gateway
	// confirmation when the payment came through one.
	GatewayTransactionID string `db:"gateway_transaction_id" json:"gatewayTransactionId,omitempty"`

	CreatedBy string `db:"created_by" json:"createdBy,omitempty"`
}

// NewLedgerEntry builds an entry for a payment being recorded now.
func NewLedgerEntry(invoiceID id.ID, amount types.Money, method Method, reference string, paidAt time.Time) (*LedgerEntry, error) {
	if id.IsNil(invoiceID) {
		return nil, apperror.NewValidation("invoice is required").
			WithDetail("field", "invoiceId")
	}
	if !amount.IsPositive() {
		return nil, apperror.NewValidation("payment amount must be positive").
			WithDetail("field", "amount")
	}
	if !method.IsValid() {
		return nil, apperror.NewValidation("unknown payment method").
			WithDetail("field", "method").
			WithDetail("value", string(method))
	}

	return &LedgerEntry{
		ID:        id.New(),
		InvoiceID: invoiceID,
		Amount:    amount,
		Method:    method,
		Reference: reference,
		PaidAt:    paidAt.UTC(),
	}, nil
}

var _ entity.Validatable = (*LedgerEntry)(nil)

// Validate implements entity.Validatable.
func (e *LedgerEntry) Validate(ctx context.Context) error {
	if id.IsNil(e.InvoiceID) {
		return apperror.NewValidation("invoice is required").
			WithDetail("field", "invoiceId")
	}
	if !e.Amount.IsPositive() {
		return apperror.NewValidation("payment amount must be positive").
			WithDetail("field", "amount")
	}
	if !e.Method.IsValid() {
		return apperror.NewValidation("unknown payment method").
			WithDetail("field", "method")
	}
	return nil
}

// Repository stores ledger entries. There is deliberately no update or
// delete: the ledger is append-only.
type Repository interface {
	// Append inserts a new entry. Must run inside the same transaction
	// as the invoice update it accounts for.
	Append(ctx context.Context, entry *LedgerEntry) error

	// ListByInvoice returns all entries for an invoice ordered by PaidAt.
	ListByInvoice(ctx context.Context, invoiceID id.ID) ([]*LedgerEntry, error)

	// SumByInvoice returns the total of all entries for an invoice in the
	// given currency. Used for reconciliation against the invoice's
	// rolled-up paid amount.
	SumByInvoice(ctx context.Context, invoiceID id.ID, currency string) (types.Money, error)
}

// Total sums a slice of entries. All entries must share a currency;
// an empty slice yields zero in the requested currency.
func Total(entries []*LedgerEntry, currency string) types.Money {
	total := types.ZeroMoney(currency)
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}
