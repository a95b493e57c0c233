package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchInserter provides bulk insert via the PostgreSQL COPY protocol.
// Invoice line inserts go through here: an invoice can carry dozens of
// lines and COPY beats individual INSERTs well before that.
type BatchInserter struct {
	txManager *TxManager
}

// NewBatchInserter creates a new batch inserter.
func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyFromSlice performs bulk insert from a slice of rows. Each row is
// []any matching columns positionally.
//
// Example:
//
//	rows := make([][]any, 0, len(inv.LineItems))
//	for _, l := range inv.LineItems {
//	    rows = append(rows, []any{l.ID, inv.ID, l.Description.En, l.Quantity})
//	}
//	n, err := inserter.CopyFromSlice(ctx, "billing_invoice_lines",
//	    []string{"id", "invoice_id", "description_en", "quantity"}, rows)
//
// COPY cannot participate in the extended query protocol outside an open
// transaction, so callers must run inside the TxManager.
func (b *BatchInserter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("CopyFromSlice requires transaction context")
	}

	return tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}
