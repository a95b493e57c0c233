// Package invoice provides the invoice aggregate: line items, money-exact
// totals and the payment lifecycle state machine.
package invoice

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"gymbill/internal/core/apperror"
	"gymbill/internal/core/entity"
	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
	"gymbill/internal/domain/billing/payment"
)

// Status is the invoice lifecycle state.
type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusIssued        Status = "ISSUED"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusOverdue       Status = "OVERDUE"
	StatusCancelled     Status = "CANCELLED"
	StatusRefunded      Status = "REFUNDED"
)

// IsValid reports whether the status is one of the known values.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusPartiallyPaid, StatusPaid,
		StatusOverdue, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition leaves this status.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// CanAcceptPayment reports whether recordPayment is allowed in this status.
func (s Status) CanAcceptPayment() bool {
	return s == StatusIssued || s == StatusOverdue || s == StatusPartiallyPaid
}

// transitions is the explicit state machine: status -> reachable statuses.
// Guards beyond pure status (due date passed, zero payments) are enforced
// in the operations themselves.
var transitions = map[Status][]Status{
	StatusDraft:         {StatusIssued, StatusCancelled},
	StatusIssued:        {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled},
	StatusPartiallyPaid: {StatusPartiallyPaid, StatusPaid},
	StatusOverdue:       {StatusPartiallyPaid, StatusPaid, StatusCancelled},
	StatusPaid:          {StatusRefunded},
	StatusCancelled:     {},
	StatusRefunded:      {},
}

// CanTransitionTo reports whether the state machine allows moving to target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ItemType classifies what a line item bills for.
type ItemType string

const (
	ItemSubscription     ItemType = "SUBSCRIPTION"
	ItemClassPackage     ItemType = "CLASS_PACKAGE"
	ItemGuestPass        ItemType = "GUEST_PASS"
	ItemPersonalTraining ItemType = "PERSONAL_TRAINING"
	ItemMerchandise      ItemType = "MERCHANDISE"
	ItemLockerRental     ItemType = "LOCKER_RENTAL"
	ItemPenalty          ItemType = "PENALTY"
	ItemDiscount         ItemType = "DISCOUNT"
	ItemOther            ItemType = "OTHER"
)

// IsValid reports whether the item type is one of the known values.
func (t ItemType) IsValid() bool {
	switch t {
	case ItemSubscription, ItemClassPackage, ItemGuestPass, ItemPersonalTraining,
		ItemMerchandise, ItemLockerRental, ItemPenalty, ItemDiscount, ItemOther:
		return true
	}
	return false
}

// LineItem is one billable entry on an invoice. Immutable once created;
// lines are only ever added to or removed from a draft invoice.
type LineItem struct {
	ID          id.ID               `db:"id" json:"id"`
	Description types.LocalizedText `db:"description" json:"description"`
	Quantity    int                 `db:"quantity" json:"quantity"`
	UnitPrice   types.Money         `db:"unit_price" json:"unitPrice"`
	ItemType    ItemType            `db:"item_type" json:"itemType"`

	// TaxRate is a percentage (15 means 15%). Each line carries its own
	// rate: discount and zero-rated lines must tax independently.
	TaxRate decimal.Decimal `db:"tax_rate" json:"taxRate"`

	SortOrder int `db:"sort_order" json:"sortOrder"`
}

// NewLineItem builds a validated line item.
func NewLineItem(description types.LocalizedText, quantity int, unitPrice types.Money, itemType ItemType, taxRate decimal.Decimal, sortOrder int) (LineItem, error) {
	if description.IsEmpty() {
		return LineItem{}, apperror.NewValidation("line description is required").
			WithDetail("field", "description")
	}
	if quantity <= 0 {
		return LineItem{}, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity").
			WithDetail("value", quantity)
	}
	if !itemType.IsValid() {
		return LineItem{}, apperror.NewValidation("unknown item type").
			WithDetail("field", "itemType").
			WithDetail("value", string(itemType))
	}
	if taxRate.IsNegative() {
		return LineItem{}, apperror.NewValidation("tax rate cannot be negative").
			WithDetail("field", "taxRate")
	}

	return LineItem{
		ID:          id.New(),
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		ItemType:    itemType,
		TaxRate:     taxRate,
		SortOrder:   sortOrder,
	}, nil
}

// LineTotal is unitPrice * quantity, exact.
func (l LineItem) LineTotal() types.Money {
	return l.UnitPrice.MulInt(int64(l.Quantity))
}

// LineTaxAmount is lineTotal * taxRate / 100, rounded half-up to cents.
// Rounding happens per line and the rounded amounts are summed, never
// sum-then-round.
func (l LineItem) LineTaxAmount() types.Money {
	total := l.LineTotal()
	tax := types.Money{
		Amount:   total.Amount.Mul(l.TaxRate).Div(decimal.NewFromInt(100)),
		Currency: total.Currency,
	}
	return tax.RoundCents()
}

// Invoice is the aggregate root. Totals are always re-derived from line
// items, never edited independently; the invoice number is assigned exactly
// once, at creation.
type Invoice struct {
	entity.BaseDocument

	InvoiceNumber  string `db:"invoice_number" json:"invoiceNumber"`
	OrganizationID id.ID  `db:"organization_id" json:"organizationId"`
	MemberID       id.ID  `db:"member_id" json:"memberId"`
	SubscriptionID *id.ID `db:"subscription_id" json:"subscriptionId,omitempty"`

	Status Status `db:"status" json:"status"`

	IssueDate *time.Time `db:"issue_date" json:"issueDate,omitempty"`
	DueDate   *time.Time `db:"due_date" json:"dueDate,omitempty"`
	PaidDate  *time.Time `db:"paid_date" json:"paidDate,omitempty"`

	Subtotal    types.Money `db:"subtotal" json:"subtotal"`
	VATAmount   types.Money `db:"vat_amount" json:"vatAmount"`
	TotalAmount types.Money `db:"total_amount" json:"totalAmount"`
	PaidAmount  types.Money `db:"paid_amount" json:"paidAmount"`

	// VATRate is the invoice-level default rate stamped onto lines that do
	// not carry their own. Totals are always summed per line.
	VATRate decimal.Decimal `db:"vat_rate" json:"vatRate"`

	// PaymentMethod and PaymentReference reflect the latest payment only.
	// Per-payment history lives in the payment ledger.
	PaymentMethod    payment.Method `db:"payment_method" json:"paymentMethod,omitempty"`
	PaymentReference string         `db:"payment_reference" json:"paymentReference,omitempty"`

	Notes types.LocalizedText `db:"notes" json:"notes"`

	LineItems []LineItem `db:"-" json:"lineItems"`
}

// Create builds a DRAFT invoice with totals derived from the lines.
// The invoice number must come from the sequence counter and is never
// reassigned.
func Create(invoiceNumber string, organizationID, memberID id.ID, subscriptionID *id.ID, lines []LineItem, vatRate decimal.Decimal, notes types.LocalizedText) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, apperror.NewValidation("invoice number is required").
			WithDetail("field", "invoiceNumber")
	}
	if id.IsNil(organizationID) {
		return nil, apperror.NewValidation("organization is required").
			WithDetail("field", "organizationId")
	}
	if id.IsNil(memberID) {
		return nil, apperror.NewValidation("member is required").
			WithDetail("field", "memberId")
	}
	if len(lines) == 0 {
		return nil, apperror.NewValidation("invoice must have at least one line item").
			WithDetail("field", "lineItems")
	}
	if vatRate.IsNegative() {
		return nil, apperror.NewValidation("vat rate cannot be negative").
			WithDetail("field", "vatRate")
	}

	currency := lines[0].UnitPrice.Currency
	for i, line := range lines {
		if line.UnitPrice.Currency != currency {
			return nil, apperror.NewValidation("all line items must share a currency").
				WithDetail("field", "lineItems").
				WithDetail("lineNo", i+1)
		}
	}

	inv := &Invoice{
		BaseDocument:   entity.NewBaseDocument(),
		InvoiceNumber:  invoiceNumber,
		OrganizationID: organizationID,
		MemberID:       memberID,
		SubscriptionID: subscriptionID,
		Status:         StatusDraft,
		VATRate:        vatRate,
		PaidAmount:     types.ZeroMoney(currency),
		Notes:          notes,
		LineItems:      append([]LineItem(nil), lines...),
	}
	inv.RecalculateTotals()

	return inv, nil
}

// Currency returns the invoice currency, taken from its totals.
func (inv *Invoice) Currency() string {
	return inv.TotalAmount.Currency
}

// RecalculateTotals re-derives subtotal, VAT and total from the lines.
// VAT is the sum of per-line rounded tax amounts. An empty invoice
// collapses to zero in its current currency.
func (inv *Invoice) RecalculateTotals() {
	if len(inv.LineItems) == 0 {
		currency := inv.Currency()
		if currency == "" {
			currency = types.SAR
		}
		inv.Subtotal = types.ZeroMoney(currency)
		inv.VATAmount = types.ZeroMoney(currency)
		inv.TotalAmount = types.ZeroMoney(currency)
		return
	}

	currency := inv.LineItems[0].UnitPrice.Currency
	subtotal := types.ZeroMoney(currency)
	vat := types.ZeroMoney(currency)

	for _, line := range inv.LineItems {
		subtotal = subtotal.Add(line.LineTotal())
		vat = vat.Add(line.LineTaxAmount())
	}

	inv.Subtotal = subtotal
	inv.VATAmount = vat
	inv.TotalAmount = subtotal.Add(vat)

	// A drained draft can be refilled in another currency. PaidAmount is
	// still zero at that point (payments only land after issue), so keep
	// its currency in step with the totals.
	if inv.PaidAmount.IsZero() && inv.PaidAmount.Currency != currency {
		inv.PaidAmount = types.ZeroMoney(currency)
	}
}

// Issue transitions DRAFT -> ISSUED and stamps the due date.
func (inv *Invoice) Issue(issueDate time.Time, paymentDueDays int) error {
	if inv.Status != StatusDraft {
		return apperror.NewInvalidTransition(string(inv.Status), "issue")
	}
	if len(inv.LineItems) == 0 {
		return apperror.NewBusinessRule(apperror.CodeInvoiceNotModifiable,
			"invoice must have at least one line item to be issued")
	}
	if paymentDueDays < 0 {
		return apperror.NewValidation("payment due days cannot be negative").
			WithDetail("field", "paymentDueDays")
	}

	issue := issueDate.UTC()
	due := issue.AddDate(0, 0, paymentDueDays)
	inv.IssueDate = &issue
	inv.DueDate = &due
	inv.Status = StatusIssued

	return nil
}

// RecordPayment applies a payment to the invoice. Allowed in ISSUED,
// OVERDUE and PARTIALLY_PAID. The method/reference fields keep only the
// latest payment's values; the caller appends a ledger entry for history.
//
// A payment that would push paidAmount past totalAmount is rejected:
// paidAmount <= totalAmount is a hard ledger invariant.
func (inv *Invoice) RecordPayment(amount types.Money, method payment.Method, reference string, now time.Time) error {
	if !inv.Status.CanAcceptPayment() {
		return apperror.NewInvalidTransition(string(inv.Status), "record_payment")
	}
	if !amount.IsPositive() {
		return apperror.NewValidation("payment amount must be positive").
			WithDetail("field", "amount")
	}
	if !method.IsValid() {
		return apperror.NewValidation("unknown payment method").
			WithDetail("field", "method")
	}
	if amount.Currency != inv.Currency() {
		return apperror.NewValidation("payment currency does not match invoice").
			WithDetail("field", "amount").
			WithDetail("invoiceCurrency", inv.Currency()).
			WithDetail("paymentCurrency", amount.Currency)
	}

	newPaid := inv.PaidAmount.Add(amount)
	if newPaid.Cmp(inv.TotalAmount) > 0 {
		return apperror.NewBusinessRule(apperror.CodePaymentNotAllowed,
			"payment exceeds remaining balance").
			WithDetail("remaining", inv.RemainingBalance().String()).
			WithDetail("amount", amount.String())
	}

	inv.PaidAmount = newPaid
	inv.PaymentMethod = method
	inv.PaymentReference = reference

	if newPaid.GreaterOrEqual(inv.TotalAmount) {
		paidDate := now.UTC()
		inv.Status = StatusPaid
		inv.PaidDate = &paidDate
	} else {
		inv.Status = StatusPartiallyPaid
	}

	return nil
}

// Cancel withdraws the invoice. Allowed in DRAFT, ISSUED and OVERDUE, and
// only while no payment has been recorded: a paid invoice must be refunded,
// not cancelled, so money never silently disappears from the ledger.
func (inv *Invoice) Cancel() error {
	if !inv.Status.CanTransitionTo(StatusCancelled) {
		return apperror.NewInvalidTransition(string(inv.Status), "cancel")
	}
	if !inv.PaidAmount.IsZero() {
		return apperror.NewBusinessRule(apperror.CodePaymentNotAllowed,
			"cannot cancel an invoice with recorded payments").
			WithDetail("paidAmount", inv.PaidAmount.String())
	}

	inv.Status = StatusCancelled
	return nil
}

// Refund transitions PAID -> REFUNDED. Administrative operation: the
// money movement itself happens outside this system.
func (inv *Invoice) Refund() error {
	if inv.Status != StatusPaid {
		return apperror.NewInvalidTransition(string(inv.Status), "refund")
	}
	inv.Status = StatusRefunded
	return nil
}

// MarkOverdue transitions ISSUED -> OVERDUE when the due date has passed.
// Invoked by the sweep; re-marking an OVERDUE invoice is rejected by the
// status guard, which is what makes the sweep idempotent.
func (inv *Invoice) MarkOverdue(today time.Time) error {
	if inv.Status != StatusIssued {
		return apperror.NewInvalidTransition(string(inv.Status), "mark_overdue")
	}
	if inv.DueDate == nil || !today.After(*inv.DueDate) {
		return apperror.NewBusinessRule(apperror.CodeInvalidStatusTransition,
			"invoice is not past its due date")
	}

	inv.Status = StatusOverdue
	return nil
}

// AddLineItem appends a line to a draft invoice and recalculates totals.
func (inv *Invoice) AddLineItem(item LineItem) error {
	if inv.Status != StatusDraft {
		return apperror.NewBusinessRule(apperror.CodeInvoiceNotModifiable,
			"line items can only be modified on a draft invoice").
			WithDetail("status", string(inv.Status))
	}
	if item.UnitPrice.Currency != inv.Currency() && len(inv.LineItems) > 0 {
		return apperror.NewValidation("line currency does not match invoice").
			WithDetail("field", "unitPrice")
	}

	inv.LineItems = append(inv.LineItems, item)
	inv.RecalculateTotals()
	return nil
}

// RemoveLineItem removes a line from a draft invoice and recalculates
// totals. Removing an unknown line is a not-found error.
func (inv *Invoice) RemoveLineItem(lineID id.ID) error {
	if inv.Status != StatusDraft {
		return apperror.NewBusinessRule(apperror.CodeInvoiceNotModifiable,
			"line items can only be modified on a draft invoice").
			WithDetail("status", string(inv.Status))
	}

	for i, line := range inv.LineItems {
		if line.ID == lineID {
			inv.LineItems = append(inv.LineItems[:i], inv.LineItems[i+1:]...)
			inv.RecalculateTotals()
			return nil
		}
	}

	return apperror.NewNotFound("line item", lineID.String())
}

// UpdateNotes replaces the bilingual notes. Notes are descriptive metadata,
// so edits are allowed until the invoice reaches a terminal status.
func (inv *Invoice) UpdateNotes(notes types.LocalizedText) error {
	if inv.Status.IsTerminal() {
		return apperror.NewBusinessRule(apperror.CodeInvoiceNotModifiable,
			"cannot edit a cancelled or refunded invoice").
			WithDetail("status", string(inv.Status))
	}
	inv.Notes = notes
	return nil
}

// RemainingBalance is totalAmount - paidAmount.
func (inv *Invoice) RemainingBalance() types.Money {
	return inv.TotalAmount.Sub(inv.PaidAmount)
}

// IsFullyPaid reports whether the invoice reached PAID.
func (inv *Invoice) IsFullyPaid() bool {
	return inv.Status == StatusPaid
}

// IsPastDue reports whether an ISSUED invoice has passed its due date.
func (inv *Invoice) IsPastDue(today time.Time) bool {
	return inv.Status == StatusIssued && inv.DueDate != nil && today.After(*inv.DueDate)
}

var _ entity.Validatable = (*Invoice)(nil)

// Validate implements entity.Validatable. Checks structural invariants;
// a totals or ledger mismatch here means corrupted data, not bad input.
func (inv *Invoice) Validate(ctx context.Context) error {
	if inv.InvoiceNumber == "" {
		return apperror.NewValidation("invoice number is required").
			WithDetail("field", "invoiceNumber")
	}
	if id.IsNil(inv.OrganizationID) {
		return apperror.NewValidation("organization is required").
			WithDetail("field", "organizationId")
	}
	if id.IsNil(inv.MemberID) {
		return apperror.NewValidation("member is required").
			WithDetail("field", "memberId")
	}
	if !inv.Status.IsValid() {
		return apperror.NewValidation("unknown invoice status").
			WithDetail("field", "status").
			WithDetail("value", string(inv.Status))
	}

	if !inv.TotalAmount.Equal(inv.Subtotal.Add(inv.VATAmount)) {
		return apperror.NewInvariantViolation("invoice totals do not add up").
			WithDetail("invoiceNumber", inv.InvoiceNumber)
	}
	if inv.PaidAmount.Cmp(inv.TotalAmount) > 0 {
		return apperror.NewInvariantViolation("paid amount exceeds total").
			WithDetail("invoiceNumber", inv.InvoiceNumber).
			WithDetail("paidAmount", inv.PaidAmount.String()).
			WithDetail("totalAmount", inv.TotalAmount.String())
	}

	return nil
}
