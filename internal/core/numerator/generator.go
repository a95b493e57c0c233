// Package numerator provides the domain contract for invoice auto-numbering.
// The implementation lives in pkg/numerator and is backed by a per-organization
// counter row in PostgreSQL.
package numerator

import (
	"context"
	"time"

	"gymbill/internal/core/id"
)

// Generator claims sequential invoice numbers.
//
// The claim must be atomic with respect to concurrent callers for the same
// organization: no two callers may ever observe the same value. Implementations
// must perform the read-increment-write under the transaction carried by ctx so
// that a number claimed by an aborted invoice creation rolls back with it.
type Generator interface {
	// NextInvoiceNumber returns the next number for the organization,
	// formatted as INV-YYYY-NNNNN. The counter resets when period's year
	// differs from the counter's stored year.
	NextInvoiceNumber(ctx context.Context, organizationID id.ID, period time.Time) (string, error)
}
