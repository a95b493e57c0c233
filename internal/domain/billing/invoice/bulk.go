package invoice

import (
	"context"
	"time"

	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
	"gymbill/pkg/logger"
)

// BulkFailure records one item a bulk operation could not process.
type BulkFailure struct {
	ID    id.ID  `json:"id"`
	Error string `json:"error"`
}

// BulkResult is the per-item outcome of a bulk operation. Items are
// processed independently, each in its own transaction, so one failure
// never rolls back the rest of the batch.
type BulkResult struct {
	Succeeded []id.ID       `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

func (r *BulkResult) record(itemID id.ID, err error) {
	if err != nil {
		r.Failed = append(r.Failed, BulkFailure{ID: itemID, Error: err.Error()})
		return
	}
	r.Succeeded = append(r.Succeeded, itemID)
}

// BulkIssue issues every listed DRAFT invoice with the same terms.
func (s *Service) BulkIssue(ctx context.Context, invoiceIDs []id.ID, issueDate time.Time, paymentDueDays int) BulkResult {
	var res BulkResult
	for _, invoiceID := range invoiceIDs {
		_, err := s.Issue(ctx, invoiceID, issueDate, paymentDueDays)
		res.record(invoiceID, err)
	}
	s.logBulk(ctx, "bulk_issue", len(invoiceIDs), res)
	return res
}

// BulkCancel withdraws every listed invoice.
func (s *Service) BulkCancel(ctx context.Context, invoiceIDs []id.ID) BulkResult {
	var res BulkResult
	for _, invoiceID := range invoiceIDs {
		_, err := s.Cancel(ctx, invoiceID)
		res.record(invoiceID, err)
	}
	s.logBulk(ctx, "bulk_cancel", len(invoiceIDs), res)
	return res
}

// BulkRecordPayments applies a batch of payments, one ledger entry per
// invoice. Result IDs are invoice IDs.
func (s *Service) BulkRecordPayments(ctx context.Context, payments []RecordPaymentParams) BulkResult {
	var res BulkResult
	for _, params := range payments {
		_, err := s.RecordPayment(ctx, params)
		res.record(params.InvoiceID, err)
	}
	s.logBulk(ctx, "bulk_record_payments", len(payments), res)
	return res
}

// BulkCreateFromSubscriptions creates a DRAFT invoice for each listed
// subscription, all with the same notes. Result IDs are subscription IDs;
// the created invoices are returned alongside in the same order as the
// successes.
func (s *Service) BulkCreateFromSubscriptions(ctx context.Context, subscriptionIDs []id.ID, notes types.LocalizedText) (BulkResult, []*Invoice) {
	var res BulkResult
	invoices := make([]*Invoice, 0, len(subscriptionIDs))
	for _, subID := range subscriptionIDs {
		inv, err := s.CreateFromSubscription(ctx, FromSubscriptionParams{
			SubscriptionID: subID,
			Notes:          notes,
		})
		res.record(subID, err)
		if err == nil {
			invoices = append(invoices, inv)
		}
	}
	s.logBulk(ctx, "bulk_create_from_subscriptions", len(subscriptionIDs), res)
	return res, invoices
}

func (s *Service) logBulk(ctx context.Context, action string, total int, res BulkResult) {
	logger.Info(ctx, "bulk operation finished",
		"action", action,
		"total", total,
		"succeeded", len(res.Succeeded),
		"failed", len(res.Failed))
}
