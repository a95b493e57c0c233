package invoice

import (
	"context"
	"time"

	"gymbill/internal/core/id"
	"gymbill/internal/domain"
)

// ListFilter narrows invoice list queries. Zero values mean "no filter".
type ListFilter struct {
	domain.Page

	OrganizationID id.ID

	// Statuses filters by any of the given statuses
	Statuses []Status

	// MemberID filters by member
	MemberID *id.ID

	// SubscriptionID filters by subscription
	SubscriptionID *id.ID

	// DateFrom/DateTo bound the creation date (inclusive)
	DateFrom *time.Time
	DateTo   *time.Time

	// Search matches against the invoice number
	Search string

	// IncludeDeleted includes soft-deleted invoices
	IncludeDeleted bool

	// OrderBy specifies sorting (e.g. "created_at", "-due_date")
	OrderBy string
}

// Stats holds per-status invoice counts for dashboards.
type Stats struct {
	Total    int64            `json:"total"`
	ByStatus map[Status]int64 `json:"byStatus"`
}

// Repository stores invoice aggregates with their line items.
type Repository interface {
	// Create inserts the invoice and its lines in one transaction.
	Create(ctx context.Context, inv *Invoice) error

	// GetByID loads the invoice with lines.
	GetByID(ctx context.Context, invoiceID id.ID) (*Invoice, error)

	// GetByNumber loads the invoice by its human-facing number.
	GetByNumber(ctx context.Context, organizationID id.ID, number string) (*Invoice, error)

	// Update persists the aggregate with optimistic locking on the version
	// column; a stale version yields a concurrent-modification error.
	Update(ctx context.Context, inv *Invoice) error

	// List returns invoices matching the filter, paginated.
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Invoice], error)

	// FindOverdue returns ISSUED invoices whose due date is before the
	// given date. Used by the overdue sweep.
	FindOverdue(ctx context.Context, organizationID id.ID, before time.Time) ([]*Invoice, error)

	// FindUnpaidBySubscription returns invoices for the subscription in an
	// unpaid status (DRAFT, ISSUED, OVERDUE, PARTIALLY_PAID).
	FindUnpaidBySubscription(ctx context.Context, subscriptionID id.ID) ([]*Invoice, error)

	// Stats counts invoices per status for the organization.
	Stats(ctx context.Context, organizationID id.ID) (Stats, error)

	// SetDeletionMark soft-deletes or restores an invoice. Invoices are
	// never physically removed.
	SetDeletionMark(ctx context.Context, invoiceID id.ID, marked bool) error
}

// UnpaidStatuses are the statuses that block a new invoice for the same
// subscription.
var UnpaidStatuses = []Status{StatusDraft, StatusIssued, StatusOverdue, StatusPartiallyPaid}
