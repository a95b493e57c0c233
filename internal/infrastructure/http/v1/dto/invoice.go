package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"gymbill/internal/core/apperror"
	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
	"gymbill/internal/domain/billing/invoice"
	"gymbill/internal/domain/billing/payment"
	"gymbill/internal/infrastructure/storage/postgres"
)

// --- Request DTOs ---

// LineRequest describes one invoice line in a creation request.
type LineRequest struct {
	Description LocalizedTextDTO `json:"description" binding:"required"`
	Quantity    int              `json:"quantity" binding:"required,min=1"`
	UnitPrice   string           `json:"unitPrice" binding:"required"`
	ItemType    string           `json:"itemType" binding:"required"`
	TaxRate     *string          `json:"taxRate,omitempty"`
	SortOrder   int              `json:"sortOrder,omitempty"`
}

// ToLineInput converts to the domain line input, parsing decimal strings.
func (r *LineRequest) ToLineInput(currency string) (invoice.LineInput, error) {
	price, err := types.NewMoneyFromString(r.UnitPrice, currency)
	if err != nil {
		return invoice.LineInput{}, apperror.NewValidation("invalid unit price").
			WithDetail("field", "unitPrice").
			WithDetail("value", r.UnitPrice)
	}
	// Unit prices are stored at two decimal places; anything finer would
	// be rounded by the database and drift from the computed totals.
	if !price.Amount.Equal(price.Amount.Round(2)) {
		return invoice.LineInput{}, apperror.NewValidation("unit price has more than 2 decimal places").
			WithDetail("field", "unitPrice").
			WithDetail("value", r.UnitPrice)
	}

	in := invoice.LineInput{
		Description: r.Description.ToLocalized(),
		Quantity:    r.Quantity,
		UnitPrice:   price,
		ItemType:    invoice.ItemType(r.ItemType),
		SortOrder:   r.SortOrder,
	}
	if r.TaxRate != nil {
		rate, err := decimal.NewFromString(*r.TaxRate)
		if err != nil {
			return invoice.LineInput{}, apperror.NewValidation("invalid tax rate").
				WithDetail("field", "taxRate").
				WithDetail("value", *r.TaxRate)
		}
		in.TaxRate = &rate
	}
	return in, nil
}

// CreateInvoiceRequest for explicit invoice creation.
type CreateInvoiceRequest struct {
	OrganizationID string           `json:"organizationId" binding:"required,uuid"`
	MemberID       string           `json:"memberId" binding:"required,uuid"`
	SubscriptionID *string          `json:"subscriptionId,omitempty" binding:"omitempty,uuid"`
	Currency       string           `json:"currency,omitempty"`
	VATRate        *string          `json:"vatRate,omitempty"`
	Lines          []LineRequest    `json:"lines" binding:"required,min=1,dive"`
	Notes          LocalizedTextDTO `json:"notes,omitempty"`
}

// ToParams converts to domain creation params.
func (r *CreateInvoiceRequest) ToParams(defaultCurrency string) (invoice.CreateParams, error) {
	orgID, err := id.Parse(r.OrganizationID)
	if err != nil {
		return invoice.CreateParams{}, apperror.NewValidation("invalid organization id")
	}
	memberID, err := id.Parse(r.MemberID)
	if err != nil {
		return invoice.CreateParams{}, apperror.NewValidation("invalid member id")
	}

	params := invoice.CreateParams{
		OrganizationID: orgID,
		MemberID:       memberID,
		Notes:          r.Notes.ToLocalized(),
	}

	if r.SubscriptionID != nil {
		subID, err := id.Parse(*r.SubscriptionID)
		if err != nil {
			return invoice.CreateParams{}, apperror.NewValidation("invalid subscription id")
		}
		params.SubscriptionID = &subID
	}

	if r.VATRate != nil {
		rate, err := decimal.NewFromString(*r.VATRate)
		if err != nil {
			return invoice.CreateParams{}, apperror.NewValidation("invalid VAT rate").
				WithDetail("value", *r.VATRate)
		}
		params.VATRate = &rate
	}

	currency := r.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	params.Lines = make([]invoice.LineInput, 0, len(r.Lines))
	for _, lr := range r.Lines {
		in, err := lr.ToLineInput(currency)
		if err != nil {
			return invoice.CreateParams{}, err
		}
		params.Lines = append(params.Lines, in)
	}
	return params, nil
}

// FromSubscriptionRequest creates an invoice from a subscription's plan fees.
type FromSubscriptionRequest struct {
	SubscriptionID string           `json:"subscriptionId" binding:"required,uuid"`
	Notes          LocalizedTextDTO `json:"notes,omitempty"`
}

// IssueInvoiceRequest moves a draft to ISSUED.
type IssueInvoiceRequest struct {
	IssueDate      *time.Time `json:"issueDate,omitempty"`
	PaymentDueDays int        `json:"paymentDueDays,omitempty" binding:"omitempty,min=1"`
}

// RecordPaymentRequest appends a payment to an issued invoice.
type RecordPaymentRequest struct {
	Amount               string     `json:"amount" binding:"required"`
	Currency             string     `json:"currency,omitempty"`
	Method               string     `json:"method" binding:"required"`
	Reference            string     `json:"reference,omitempty"`
	GatewayTransactionID string     `json:"gatewayTransactionId,omitempty"`
	PaidAt               *time.Time `json:"paidAt,omitempty"`
}

// ToParams converts to domain payment params.
func (r *RecordPaymentRequest) ToParams(invoiceID id.ID, defaultCurrency string) (invoice.RecordPaymentParams, error) {
	currency := r.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	amount, err := types.NewMoneyFromString(r.Amount, currency)
	if err != nil {
		return invoice.RecordPaymentParams{}, apperror.NewValidation("invalid payment amount").
			WithDetail("field", "amount").
			WithDetail("value", r.Amount)
	}

	return invoice.RecordPaymentParams{
		InvoiceID:            invoiceID,
		Amount:               amount,
		Method:               payment.Method(r.Method),
		Reference:            r.Reference,
		GatewayTransactionID: r.GatewayTransactionID,
		PaidAt:               r.PaidAt,
	}, nil
}

// UpdateNotesRequest replaces invoice notes.
type UpdateNotesRequest struct {
	Notes LocalizedTextDTO `json:"notes" binding:"required"`
}

// ListInvoicesRequest holds list query parameters.
type ListInvoicesRequest struct {
	PaginationRequest

	OrganizationID string     `form:"organizationId" binding:"omitempty,uuid"`
	Status         []string   `form:"status"`
	MemberID       string     `form:"memberId" binding:"omitempty,uuid"`
	SubscriptionID string     `form:"subscriptionId" binding:"omitempty,uuid"`
	DateFrom       *time.Time `form:"dateFrom" time_format:"2006-01-02"`
	DateTo         *time.Time `form:"dateTo" time_format:"2006-01-02"`
	Search         string     `form:"search"`
	IncludeDeleted bool       `form:"includeDeleted"`
	OrderBy        string     `form:"orderBy"`
}

// ToFilter converts query parameters to the repository filter.
func (r *ListInvoicesRequest) ToFilter() (invoice.ListFilter, error) {
	r.Defaults()

	filter := invoice.ListFilter{
		DateFrom:       r.DateFrom,
		DateTo:         r.DateTo,
		Search:         r.Search,
		IncludeDeleted: r.IncludeDeleted,
		OrderBy:        r.OrderBy,
	}
	filter.Limit = r.Limit
	filter.Offset = r.Offset

	if r.OrganizationID != "" {
		orgID, err := id.Parse(r.OrganizationID)
		if err != nil {
			return invoice.ListFilter{}, apperror.NewValidation("invalid organization id")
		}
		filter.OrganizationID = orgID
	}
	if r.MemberID != "" {
		memberID, err := id.Parse(r.MemberID)
		if err != nil {
			return invoice.ListFilter{}, apperror.NewValidation("invalid member id")
		}
		filter.MemberID = &memberID
	}
	if r.SubscriptionID != "" {
		subID, err := id.Parse(r.SubscriptionID)
		if err != nil {
			return invoice.ListFilter{}, apperror.NewValidation("invalid subscription id")
		}
		filter.SubscriptionID = &subID
	}
	for _, s := range r.Status {
		filter.Statuses = append(filter.Statuses, invoice.Status(s))
	}
	return filter, nil
}

// SweepOverdueRequest marks issued invoices past due date as OVERDUE.
type SweepOverdueRequest struct {
	OrganizationID string     `json:"organizationId,omitempty" binding:"omitempty,uuid"`
	AsOf           *time.Time `json:"asOf,omitempty"`
}

// --- Response DTOs ---

// LineResponse represents an invoice line.
type LineResponse struct {
	ID          string           `json:"id"`
	Description LocalizedTextDTO `json:"description"`
	Quantity    int              `json:"quantity"`
	UnitPrice   MoneyDTO         `json:"unitPrice"`
	ItemType    string           `json:"itemType"`
	TaxRate     string           `json:"taxRate"`
	LineTotal   MoneyDTO         `json:"lineTotal"`
	TaxAmount   MoneyDTO         `json:"taxAmount"`
	SortOrder   int              `json:"sortOrder"`
}

// FromLine creates a response from a domain line item.
func FromLine(l invoice.LineItem) LineResponse {
	return LineResponse{
		ID:          l.ID.String(),
		Description: FromLocalized(l.Description),
		Quantity:    l.Quantity,
		UnitPrice:   FromMoney(l.UnitPrice),
		ItemType:    string(l.ItemType),
		TaxRate:     l.TaxRate.String(),
		LineTotal:   FromMoney(l.LineTotal()),
		TaxAmount:   FromMoney(l.LineTaxAmount()),
		SortOrder:   l.SortOrder,
	}
}

// InvoiceResponse represents an invoice with its lines.
type InvoiceResponse struct {
	ID             string           `json:"id"`
	InvoiceNumber  string           `json:"invoiceNumber"`
	OrganizationID string           `json:"organizationId"`
	MemberID       string           `json:"memberId"`
	SubscriptionID *string          `json:"subscriptionId,omitempty"`
	Status         string           `json:"status"`
	IssueDate      *time.Time       `json:"issueDate,omitempty"`
	DueDate        *time.Time       `json:"dueDate,omitempty"`
	PaidDate       *time.Time       `json:"paidDate,omitempty"`
	Subtotal       MoneyDTO         `json:"subtotal"`
	VATAmount      MoneyDTO         `json:"vatAmount"`
	TotalAmount    MoneyDTO         `json:"totalAmount"`
	PaidAmount     MoneyDTO         `json:"paidAmount"`
	Balance        MoneyDTO         `json:"balance"`
	VATRate        string           `json:"vatRate"`
	PaymentMethod  string           `json:"paymentMethod,omitempty"`
	Notes          LocalizedTextDTO `json:"notes,omitempty"`
	Lines          []LineResponse   `json:"lines"`
	DeletionMark   bool             `json:"deletionMark,omitempty"`
	Version        int              `json:"version"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// FromInvoice creates a response from a domain invoice.
func FromInvoice(inv *invoice.Invoice) *InvoiceResponse {
	lines := make([]LineResponse, len(inv.LineItems))
	for i, l := range inv.LineItems {
		lines[i] = FromLine(l)
	}

	resp := &InvoiceResponse{
		ID:             inv.ID.String(),
		InvoiceNumber:  inv.InvoiceNumber,
		OrganizationID: inv.OrganizationID.String(),
		MemberID:       inv.MemberID.String(),
		Status:         string(inv.Status),
		IssueDate:      inv.IssueDate,
		DueDate:        inv.DueDate,
		PaidDate:       inv.PaidDate,
		Subtotal:       FromMoney(inv.Subtotal),
		VATAmount:      FromMoney(inv.VATAmount),
		TotalAmount:    FromMoney(inv.TotalAmount),
		PaidAmount:     FromMoney(inv.PaidAmount),
		Balance:        FromMoney(inv.RemainingBalance()),
		VATRate:        inv.VATRate.String(),
		PaymentMethod:  string(inv.PaymentMethod),
		Notes:          FromLocalized(inv.Notes),
		Lines:          lines,
		DeletionMark:   inv.DeletionMark,
		Version:        inv.Version,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
	if inv.SubscriptionID != nil {
		s := inv.SubscriptionID.String()
		resp.SubscriptionID = &s
	}
	return resp
}

// FromInvoices maps a slice of invoices.
func FromInvoices(invs []*invoice.Invoice) []*InvoiceResponse {
	out := make([]*InvoiceResponse, len(invs))
	for i, inv := range invs {
		out[i] = FromInvoice(inv)
	}
	return out
}

// PaymentResponse represents a payment ledger entry.
type PaymentResponse struct {
	ID                   string    `json:"id"`
	InvoiceID            string    `json:"invoiceId"`
	Amount               MoneyDTO  `json:"amount"`
	Method               string    `json:"method"`
	Reference            string    `json:"reference,omitempty"`
	GatewayTransactionID string    `json:"gatewayTransactionId,omitempty"`
	PaidAt               time.Time `json:"paidAt"`
	CreatedBy            string    `json:"createdBy,omitempty"`
}

// FromPayment creates a response from a ledger entry.
func FromPayment(e *payment.LedgerEntry) *PaymentResponse {
	return &PaymentResponse{
		ID:                   e.ID.String(),
		InvoiceID:            e.InvoiceID.String(),
		Amount:               FromMoney(e.Amount),
		Method:               string(e.Method),
		Reference:            e.Reference,
		GatewayTransactionID: e.GatewayTransactionID,
		PaidAt:               e.PaidAt,
		CreatedBy:            e.CreatedBy,
	}
}

// FromPayments maps a slice of ledger entries.
func FromPayments(entries []*payment.LedgerEntry) []*PaymentResponse {
	out := make([]*PaymentResponse, len(entries))
	for i, e := range entries {
		out[i] = FromPayment(e)
	}
	return out
}

// StatsResponse holds per-status invoice counts.
type StatsResponse struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`
}

// FromStats creates a response from domain stats.
func FromStats(s invoice.Stats) StatsResponse {
	byStatus := make(map[string]int64, len(s.ByStatus))
	for st, n := range s.ByStatus {
		byStatus[string(st)] = n
	}
	return StatsResponse{Total: s.Total, ByStatus: byStatus}
}

// SweepResponse reports how many invoices a sweep marked overdue.
type SweepResponse struct {
	MarkedOverdue int `json:"markedOverdue"`
}

// HistoryEntryResponse represents one audit trail entry.
type HistoryEntryResponse struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	UserID    string          `json:"userId,omitempty"`
	UserEmail string          `json:"userEmail,omitempty"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FromAuditEntries maps audit entries to history responses.
func FromAuditEntries(entries []postgres.AuditEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntryResponse{
			ID:        e.ID.String(),
			Action:    e.Action,
			UserID:    e.UserID,
			UserEmail: e.UserEmail,
			Changes:   e.Changes,
			CreatedAt: e.CreatedAt,
		}
	}
	return out
}

// --- Bulk operations ---

// BulkIssueRequest issues several drafts with the same terms.
type BulkIssueRequest struct {
	InvoiceIDs     []string   `json:"invoiceIds" binding:"required,min=1,dive,uuid"`
	IssueDate      *time.Time `json:"issueDate,omitempty"`
	PaymentDueDays int        `json:"paymentDueDays,omitempty" binding:"omitempty,min=1"`
}

// BulkCancelRequest cancels several invoices.
type BulkCancelRequest struct {
	InvoiceIDs []string `json:"invoiceIds" binding:"required,min=1,dive,uuid"`
}

// BulkPaymentItem is one payment in a bulk batch.
type BulkPaymentItem struct {
	InvoiceID string `json:"invoiceId" binding:"required,uuid"`
	RecordPaymentRequest
}

// BulkRecordPaymentsRequest applies a batch of payments.
type BulkRecordPaymentsRequest struct {
	Payments []BulkPaymentItem `json:"payments" binding:"required,min=1,dive"`
}

// ToParams converts the batch to domain payment params.
func (r *BulkRecordPaymentsRequest) ToParams(defaultCurrency string) ([]invoice.RecordPaymentParams, error) {
	out := make([]invoice.RecordPaymentParams, 0, len(r.Payments))
	for _, item := range r.Payments {
		invoiceID, err := id.Parse(item.InvoiceID)
		if err != nil {
			return nil, apperror.NewValidation("invalid invoice id").
				WithDetail("value", item.InvoiceID)
		}
		params, err := item.RecordPaymentRequest.ToParams(invoiceID, defaultCurrency)
		if err != nil {
			return nil, err
		}
		out = append(out, params)
	}
	return out, nil
}

// BulkFromSubscriptionRequest creates invoices for several subscriptions.
type BulkFromSubscriptionRequest struct {
	SubscriptionIDs []string         `json:"subscriptionIds" binding:"required,min=1,dive,uuid"`
	Notes           LocalizedTextDTO `json:"notes,omitempty"`
}

// ParseIDList parses a list of UUID strings into IDs.
func ParseIDList(raw []string, field string) ([]id.ID, error) {
	out := make([]id.ID, 0, len(raw))
	for _, s := range raw {
		parsed, err := id.Parse(s)
		if err != nil {
			return nil, apperror.NewValidation("invalid id").
				WithDetail("field", field).
				WithDetail("value", s)
		}
		out = append(out, parsed)
	}
	return out, nil
}

// BulkFailureResponse reports one item a bulk operation rejected.
type BulkFailureResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkResultResponse reports per-item outcomes of a bulk operation.
type BulkResultResponse struct {
	Succeeded []string              `json:"succeeded"`
	Failed    []BulkFailureResponse `json:"failed"`
}

// FromBulkResult maps a domain bulk result to its response.
func FromBulkResult(res invoice.BulkResult) BulkResultResponse {
	out := BulkResultResponse{
		Succeeded: make([]string, len(res.Succeeded)),
		Failed:    make([]BulkFailureResponse, len(res.Failed)),
	}
	for i, itemID := range res.Succeeded {
		out.Succeeded[i] = itemID.String()
	}
	for i, f := range res.Failed {
		out.Failed[i] = BulkFailureResponse{ID: f.ID.String(), Error: f.Error}
	}
	return out
}

// BulkCreateResponse pairs per-subscription outcomes with the drafts created.
type BulkCreateResponse struct {
	BulkResultResponse
	Invoices []*InvoiceResponse `json:"invoices"`
}
