package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gymbill/internal/core/apperror"
	"gymbill/internal/core/id"
	"gymbill/internal/core/numerator"
	"gymbill/internal/core/tx"
	"gymbill/internal/core/types"
	"gymbill/internal/domain"
	"gymbill/internal/domain/billing/payment"
	"gymbill/internal/domain/membership"
	"gymbill/pkg/logger"
)

// AuditLog records invoice lifecycle events. Implementations are expected
// to join the transaction carried by ctx.
type AuditLog interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error
}

// AuditEntityType is the entity type invoices are audited under.
const AuditEntityType = "invoice"

// Service orchestrates invoice creation, issuance, payment application and
// the overdue sweep. The sequence-number claim and the invoice insert share
// one transaction, so an aborted creation burns its number instead of
// leaking it to another invoice.
type Service struct {
	repo          Repository
	ledger        payment.Repository
	members       membership.MemberRepository
	plans         membership.PlanRepository
	subscriptions membership.SubscriptionRepository
	numerator     numerator.Generator
	txManager     tx.Manager
	audit         AuditLog // optional

	defaultVATRate decimal.Decimal
}

// ServiceConfig wires the invoice service.
type ServiceConfig struct {
	Repo          Repository
	Ledger        payment.Repository
	Members       membership.MemberRepository
	Plans         membership.PlanRepository
	Subscriptions membership.SubscriptionRepository
	Numerator     numerator.Generator
	TxManager     tx.Manager
	Audit         AuditLog

	// DefaultVATRate applies to lines that do not carry their own rate.
	// Zero means the Saudi standard rate of 15%.
	DefaultVATRate decimal.Decimal
}

// NewService creates the invoice service.
func NewService(cfg ServiceConfig) *Service {
	rate := cfg.DefaultVATRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(15)
	}
	return &Service{
		repo:           cfg.Repo,
		ledger:         cfg.Ledger,
		members:        cfg.Members,
		plans:          cfg.Plans,
		subscriptions:  cfg.Subscriptions,
		numerator:      cfg.Numerator,
		txManager:      cfg.TxManager,
		audit:          cfg.Audit,
		defaultVATRate: rate,
	}
}

// LineInput describes one line of a creation request. TaxRate nil means
// "use the invoice default".
type LineInput struct {
	Description types.LocalizedText
	Quantity    int
	UnitPrice   types.Money
	ItemType    ItemType
	TaxRate     *decimal.Decimal
	SortOrder   int
}

// CreateParams describes an explicit invoice creation request.
type CreateParams struct {
	OrganizationID id.ID
	MemberID       id.ID
	SubscriptionID *id.ID
	Lines          []LineInput
	VATRate        *decimal.Decimal
	Notes          types.LocalizedText
}

// Create builds and persists a DRAFT invoice. The invoice number is claimed
// inside the same transaction as the insert: if the insert fails the claim
// rolls back with it and a retry re-derives a fresh number.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Invoice, error) {
	if _, err := s.members.GetByID(ctx, params.MemberID); err != nil {
		return nil, s.notFoundAs(err, "member", params.MemberID)
	}

	vatRate := s.defaultVATRate
	if params.VATRate != nil {
		vatRate = *params.VATRate
	}

	lines, err := s.buildLines(params.Lines, vatRate)
	if err != nil {
		return nil, err
	}

	var inv *Invoice
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := s.numerator.NextInvoiceNumber(ctx, params.OrganizationID, time.Now())
		if err != nil {
			return fmt.Errorf("claim invoice number: %w", err)
		}

		inv, err = Create(number, params.OrganizationID, params.MemberID, params.SubscriptionID, lines, vatRate, params.Notes)
		if err != nil {
			return err
		}
		if err := inv.Validate(ctx); err != nil {
			return err
		}

		if err := s.repo.Create(ctx, inv); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		s.logAudit(ctx, inv.ID, "create", map[string]any{
			"invoiceNumber": inv.InvoiceNumber,
			"totalAmount":   inv.TotalAmount.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice created",
		"id", inv.ID,
		"number", inv.InvoiceNumber,
		"total", inv.TotalAmount.String())

	return inv, nil
}

// FromSubscriptionParams describes a subscription-derived creation request.
type FromSubscriptionParams struct {
	SubscriptionID id.ID
	Notes          types.LocalizedText
}

// CreateFromSubscription builds a DRAFT invoice from the subscription's
// plan fee structure: membership fee, administration fee, and a one-time
// joining fee when this is the member's first-ever subscription. Creation
// is refused while the subscription already has an unpaid invoice.
func (s *Service) CreateFromSubscription(ctx context.Context, params FromSubscriptionParams) (*Invoice, error) {
	sub, err := s.subscriptions.GetByID(ctx, params.SubscriptionID)
	if err != nil {
		return nil, s.notFoundAs(err, "subscription", params.SubscriptionID)
	}

	unpaid, err := s.repo.FindUnpaidBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("check unpaid invoices: %w", err)
	}
	if len(unpaid) > 0 {
		existing := unpaid[0]
		return nil, apperror.NewBusinessRule(apperror.CodeUnpaidInvoiceExists,
			"subscription already has an unpaid invoice").
			WithDetail("invoiceNumber", existing.InvoiceNumber).
			WithDetail("status", string(existing.Status))
	}

	plan, err := s.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, s.notFoundAs(err, "membership plan", sub.PlanID)
	}
	if !plan.HasFees() {
		return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule,
			"plan has no fees configured").
			WithDetail("planId", sub.PlanID.String())
	}

	if _, err := s.members.GetByID(ctx, sub.MemberID); err != nil {
		return nil, s.notFoundAs(err, "member", sub.MemberID)
	}

	// The count includes the subscription being invoiced, so 1 means it is
	// the member's first ever.
	totalSubs, err := s.subscriptions.CountByMember(ctx, sub.MemberID)
	if err != nil {
		return nil, fmt.Errorf("count member subscriptions: %w", err)
	}
	firstEver := totalSubs <= 1

	lines := s.buildFeeLines(plan, firstEver)
	if len(lines) == 0 {
		return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule,
			"plan fees produce no billable lines").
			WithDetail("planId", sub.PlanID.String())
	}

	var inv *Invoice
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := s.numerator.NextInvoiceNumber(ctx, sub.OrganizationID, time.Now())
		if err != nil {
			return fmt.Errorf("claim invoice number: %w", err)
		}

		subID := sub.ID
		inv, err = Create(number, sub.OrganizationID, sub.MemberID, &subID, lines, s.defaultVATRate, params.Notes)
		if err != nil {
			return err
		}
		if err := inv.Validate(ctx); err != nil {
			return err
		}

		if err := s.repo.Create(ctx, inv); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		s.logAudit(ctx, inv.ID, "create", map[string]any{
			"invoiceNumber":  inv.InvoiceNumber,
			"subscriptionId": sub.ID.String(),
			"totalAmount":    inv.TotalAmount.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice created from subscription",
		"id", inv.ID,
		"number", inv.InvoiceNumber,
		"subscription", sub.ID)

	return inv, nil
}

// buildFeeLines translates the plan's fee structure into invoice lines.
// Fees are stored gross, lines carry net prices, so each fee is split back
// into net + tax rate here.
func (s *Service) buildFeeLines(plan *membership.MembershipPlan, firstEver bool) []LineItem {
	var lines []LineItem
	sortOrder := 0

	addFee := func(fee membership.Fee, description types.LocalizedText, itemType ItemType) {
		line, err := NewLineItem(description, 1, fee.NetAmount(), itemType, fee.TaxRate, sortOrder)
		if err != nil {
			return
		}
		lines = append(lines, line)
		sortOrder++
	}

	if !plan.MembershipFee.IsZero() {
		desc := types.LocalizedText{
			En: "Membership Fee - " + plan.Name.En,
			Ar: "رسوم العضوية - " + plan.Name.In("ar"),
		}
		addFee(plan.MembershipFee, desc, ItemSubscription)
	}

	if !plan.AdministrationFee.IsZero() {
		desc := types.LocalizedText{En: "Administration Fee", Ar: "رسوم إدارية"}
		addFee(plan.AdministrationFee, desc, ItemOther)
	}

	if firstEver && !plan.JoinFee.IsZero() {
		desc := types.LocalizedText{En: "Joining Fee (One-time)", Ar: "رسوم الانضمام (مرة واحدة)"}
		addFee(plan.JoinFee, desc, ItemOther)
	}

	return lines
}

func (s *Service) buildLines(inputs []LineInput, defaultRate decimal.Decimal) ([]LineItem, error) {
	if len(inputs) == 0 {
		return nil, apperror.NewValidation("invoice must have at least one line item").
			WithDetail("field", "lineItems")
	}

	lines := make([]LineItem, 0, len(inputs))
	for i, in := range inputs {
		rate := defaultRate
		if in.TaxRate != nil {
			rate = *in.TaxRate
		}
		sortOrder := in.SortOrder
		if sortOrder == 0 {
			sortOrder = i
		}
		line, err := NewLineItem(in.Description, in.Quantity, in.UnitPrice, in.ItemType, rate, sortOrder)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Issue transitions a DRAFT invoice to ISSUED with the given terms.
func (s *Service) Issue(ctx context.Context, invoiceID id.ID, issueDate time.Time, paymentDueDays int) (*Invoice, error) {
	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}

		if err := inv.Issue(issueDate, paymentDueDays); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}

		s.logAudit(ctx, inv.ID, "issue", map[string]any{
			"issueDate": issueDate.Format("2006-01-02"),
			"dueDate":   inv.DueDate.Format("2006-01-02"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice issued",
		"id", inv.ID,
		"number", inv.InvoiceNumber,
		"dueDate", inv.DueDate)

	return inv, nil
}

// RecordPaymentParams describes a payment being applied to an invoice.
type RecordPaymentParams struct {
	InvoiceID            id.ID
	Amount               types.Money
	Method               payment.Method
	Reference            string
	GatewayTransactionID string

	// PaidAt defaults to now.
	PaidAt *time.Time
}

// RecordPayment applies a payment and appends the matching ledger entry in
// one transaction, then verifies the ledger still reconciles with the
// invoice's rolled-up paid amount. A reconciliation mismatch is a fatal
// integrity fault: the transaction aborts and the mismatch is logged loudly.
func (s *Service) RecordPayment(ctx context.Context, params RecordPaymentParams) (*Invoice, error) {
	paidAt := time.Now().UTC()
	if params.PaidAt != nil {
		paidAt = params.PaidAt.UTC()
	}

	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetByID(ctx, params.InvoiceID)
		if err != nil {
			return err
		}

		if err := inv.RecordPayment(params.Amount, params.Method, params.Reference, paidAt); err != nil {
			return err
		}

		entry, err := payment.NewLedgerEntry(inv.ID, params.Amount, params.Method, params.Reference, paidAt)
		if err != nil {
			return err
		}
		entry.GatewayTransactionID = params.GatewayTransactionID

		if err := s.repo.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}

		ledgerTotal, err := s.ledger.SumByInvoice(ctx, inv.ID, inv.Currency())
		if err != nil {
			return fmt.Errorf("sum ledger entries: %w", err)
		}
		if !ledgerTotal.Equal(inv.PaidAmount) {
			logger.Error(ctx, "payment ledger does not reconcile with invoice",
				"invoice", inv.ID,
				"number", inv.InvoiceNumber,
				"ledgerTotal", ledgerTotal.String(),
				"paidAmount", inv.PaidAmount.String())
			return apperror.NewInvariantViolation("payment ledger does not reconcile with invoice").
				WithDetail("invoiceNumber", inv.InvoiceNumber).
				WithDetail("ledgerTotal", ledgerTotal.String()).
				WithDetail("paidAmount", inv.PaidAmount.String())
		}

		s.logAudit(ctx, inv.ID, "payment", map[string]any{
			"amount":    params.Amount.String(),
			"method":    string(params.Method),
			"reference": params.Reference,
			"status":    string(inv.Status),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "payment recorded",
		"id", inv.ID,
		"number", inv.InvoiceNumber,
		"amount", params.Amount.String(),
		"status", inv.Status)

	return inv, nil
}

// Cancel withdraws an invoice that has no recorded payments.
func (s *Service) Cancel(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return s.transition(ctx, invoiceID, "cancel", (*Invoice).Cancel)
}

// Refund marks a PAID invoice as REFUNDED.
func (s *Service) Refund(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return s.transition(ctx, invoiceID, "refund", (*Invoice).Refund)
}

func (s *Service) transition(ctx context.Context, invoiceID id.ID, action string, op func(*Invoice) error) (*Invoice, error) {
	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}

		from := inv.Status
		if err := op(inv); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}

		s.logAudit(ctx, inv.ID, action, map[string]any{
			"from": string(from),
			"to":   string(inv.Status),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice "+action,
		"id", inv.ID,
		"number", inv.InvoiceNumber,
		"status", inv.Status)

	return inv, nil
}

// MarkOverdueInvoices is the overdue sweep: every ISSUED invoice past its
// due date transitions to OVERDUE. Each invoice is processed in its own
// transaction so one failure cannot abort the batch. Returns the number of
// invoices transitioned; re-running the sweep is a no-op for invoices it
// already marked.
func (s *Service) MarkOverdueInvoices(ctx context.Context, organizationID id.ID, today time.Time) (int, error) {
	overdue, err := s.repo.FindOverdue(ctx, organizationID, today)
	if err != nil {
		return 0, fmt.Errorf("find overdue invoices: %w", err)
	}

	marked := 0
	for _, inv := range overdue {
		inv := inv
		err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			if err := inv.MarkOverdue(today); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, inv); err != nil {
				return fmt.Errorf("update invoice: %w", err)
			}
			s.logAudit(ctx, inv.ID, "mark_overdue", map[string]any{
				"dueDate": inv.DueDate.Format("2006-01-02"),
			})
			return nil
		})
		if err != nil {
			logger.Warn(ctx, "failed to mark invoice overdue",
				"id", inv.ID,
				"number", inv.InvoiceNumber,
				"error", err)
			continue
		}
		marked++
	}

	logger.Info(ctx, "overdue sweep finished",
		"candidates", len(overdue),
		"marked", marked)

	return marked, nil
}

// GetByID loads an invoice with its lines.
func (s *Service) GetByID(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, s.notFoundAs(err, "invoice", invoiceID)
	}
	return inv, nil
}

// GetByNumber loads an invoice by its human-facing number.
func (s *Service) GetByNumber(ctx context.Context, organizationID id.ID, number string) (*Invoice, error) {
	inv, err := s.repo.GetByNumber(ctx, organizationID, number)
	if err != nil {
		return nil, s.notFoundAs(err, "invoice", number)
	}
	return inv, nil
}

// List returns invoices matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Invoice], error) {
	filter.Normalize()
	return s.repo.List(ctx, filter)
}

// Payments returns the ledger entries for an invoice, oldest first.
func (s *Service) Payments(ctx context.Context, invoiceID id.ID) ([]*payment.LedgerEntry, error) {
	if _, err := s.repo.GetByID(ctx, invoiceID); err != nil {
		return nil, s.notFoundAs(err, "invoice", invoiceID)
	}
	return s.ledger.ListByInvoice(ctx, invoiceID)
}

// Stats counts invoices per status for the organization.
func (s *Service) Stats(ctx context.Context, organizationID id.ID) (Stats, error) {
	return s.repo.Stats(ctx, organizationID)
}

// AddLine appends a line to a DRAFT invoice and re-derives totals.
// TaxRate nil means the service default.
func (s *Service) AddLine(ctx context.Context, invoiceID id.ID, input LineInput) (*Invoice, error) {
	rate := s.defaultVATRate
	if input.TaxRate != nil {
		rate = *input.TaxRate
	}

	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}

		sortOrder := input.SortOrder
		if sortOrder == 0 {
			sortOrder = len(inv.LineItems)
		}
		line, err := NewLineItem(input.Description, input.Quantity, input.UnitPrice, input.ItemType, rate, sortOrder)
		if err != nil {
			return err
		}

		if err := inv.AddLineItem(line); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}

		s.logAudit(ctx, inv.ID, "add_line", map[string]any{
			"lineId":      line.ID.String(),
			"description": line.Description.En,
			"totalAmount": inv.TotalAmount.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// RemoveLine removes a line from a DRAFT invoice and re-derives totals.
func (s *Service) RemoveLine(ctx context.Context, invoiceID, lineID id.ID) (*Invoice, error) {
	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}

		if err := inv.RemoveLineItem(lineID); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}

		s.logAudit(ctx, inv.ID, "remove_line", map[string]any{
			"lineId":      lineID.String(),
			"totalAmount": inv.TotalAmount.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// UpdateNotes replaces the invoice notes.
func (s *Service) UpdateNotes(ctx context.Context, invoiceID id.ID, notes types.LocalizedText) (*Invoice, error) {
	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := inv.UpdateNotes(notes); err != nil {
			return err
		}
		return s.repo.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Delete soft-deletes an invoice. Only DRAFT and CANCELLED invoices may be
// deleted: everything else is a retained financial record.
func (s *Service) Delete(ctx context.Context, invoiceID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		inv, err := s.repo.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}

		if inv.Status != StatusDraft && inv.Status != StatusCancelled {
			return apperror.NewBusinessRule(apperror.CodeInvoiceNotModifiable,
				"only draft or cancelled invoices can be deleted").
				WithDetail("status", string(inv.Status))
		}

		if err := s.repo.SetDeletionMark(ctx, invoiceID, true); err != nil {
			return fmt.Errorf("delete invoice: %w", err)
		}

		s.logAudit(ctx, inv.ID, "delete", map[string]any{
			"invoiceNumber": inv.InvoiceNumber,
		})
		return nil
	})
}

func (s *Service) logAudit(ctx context.Context, invoiceID id.ID, action string, changes map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogChange(ctx, AuditEntityType, invoiceID, action, changes); err != nil {
		logger.Warn(ctx, "audit log failed",
			"invoice", invoiceID,
			"action", action,
			"error", err)
	}
}

func (s *Service) notFoundAs(err error, entity string, ref any) error {
	if apperror.IsNotFound(err) {
		if r, ok := ref.(fmt.Stringer); ok {
			ref = r.String()
		}
		return apperror.NewNotFound(entity, ref)
	}
	return err
}
