package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gymbill/internal/core/apperror"
	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
	"gymbill/internal/domain/auth"
	"gymbill/internal/domain/billing/invoice"
	"gymbill/internal/infrastructure/http/v1/dto"
	"gymbill/internal/infrastructure/http/v1/middleware"
	"gymbill/internal/infrastructure/storage/postgres"
)

// historyLimit caps the audit entries returned per invoice.
const historyLimit = 100

// InvoiceHandler handles invoice and payment endpoints.
type InvoiceHandler struct {
	*BaseHandler
	service *invoice.Service
	audit   *postgres.AuditService

	// defaultCurrency applies when a request omits the currency.
	defaultCurrency string
}

// NewInvoiceHandler creates a new invoice handler.
func NewInvoiceHandler(service *invoice.Service, audit *postgres.AuditService) *InvoiceHandler {
	return &InvoiceHandler{
		BaseHandler:     NewBaseHandler(),
		service:         service,
		audit:           audit,
		defaultCurrency: types.SAR,
	}
}

// RegisterRoutes registers invoice routes on the protected group.
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	billing := rg.Group("/billing")

	invoices := billing.Group("/invoices")
	{
		invoices.POST("", h.Create)
		invoices.POST("/from-subscription", h.CreateFromSubscription)
		invoices.GET("", h.List)
		invoices.GET("/stats", h.Stats)
		invoices.GET("/number/:number", h.GetByNumber)
		invoices.GET("/:id", h.GetByID)
		invoices.PATCH("/:id", h.UpdateNotes)
		invoices.DELETE("/:id", h.Delete)
		invoices.POST("/:id/issue", h.Issue)
		invoices.POST("/:id/cancel", h.Cancel)
		invoices.POST("/:id/refund", h.Refund)
		invoices.POST("/:id/payments", h.RecordPayment)
		invoices.GET("/:id/payments", h.ListPayments)
		invoices.GET("/:id/history", h.History)
		invoices.POST("/:id/lines", h.AddLine)
		invoices.DELETE("/:id/lines/:lineId", h.RemoveLine)

		bulk := invoices.Group("/bulk",
			middleware.RequireRole(auth.RoleAdmin, auth.RoleBilling))
		{
			bulk.POST("/issue", h.BulkIssue)
			bulk.POST("/cancel", h.BulkCancel)
			bulk.POST("/payments", h.BulkRecordPayments)
			bulk.POST("/from-subscription", h.BulkCreateFromSubscriptions)
		}
	}

	billing.POST("/sweep/overdue",
		middleware.RequireRole(auth.RoleAdmin, auth.RoleBilling), h.SweepOverdue)
}

// Create handles explicit invoice creation.
// POST /billing/invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	params, err := req.ToParams(h.defaultCurrency)
	if err != nil {
		h.Error(c, err)
		return
	}

	inv, err := h.service.Create(c.Request.Context(), params)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromInvoice(inv)
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", response)
	c.JSON(http.StatusCreated, response)
}

// CreateFromSubscription builds a draft invoice from the subscription's plan fees.
// POST /billing/invoices/from-subscription
func (h *InvoiceHandler) CreateFromSubscription(c *gin.Context) {
	var req dto.FromSubscriptionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	subID, err := id.Parse(req.SubscriptionID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid subscription id"))
		return
	}

	inv, err := h.service.CreateFromSubscription(c.Request.Context(), invoice.FromSubscriptionParams{
		SubscriptionID: subID,
		Notes:          req.Notes.ToLocalized(),
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromInvoice(inv)
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", response)
	c.JSON(http.StatusCreated, response)
}

// List returns a filtered, paginated invoice list.
// GET /billing/invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	var req dto.ListInvoicesRequest
	if !h.BindQuery(c, &req) {
		return
	}

	filter, err := req.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromInvoices(result.Items),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Stats returns per-status invoice counts for an organization.
// GET /billing/invoices/stats?organizationId=...
func (h *InvoiceHandler) Stats(c *gin.Context) {
	orgID, err := id.Parse(c.Query("organizationId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid organization id").
			WithDetail("param", "organizationId"))
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), orgID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromStats(stats))
}

// GetByID returns an invoice with its lines.
// GET /billing/invoices/:id
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	invoiceID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	inv, err := h.service.GetByID(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

// GetByNumber looks an invoice up by its display number within an organization.
// GET /billing/invoices/number/:number?organizationId=...
func (h *InvoiceHandler) GetByNumber(c *gin.Context) {
	orgID, err := id.Parse(c.Query("organizationId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid organization id").
			WithDetail("param", "organizationId"))
		return
	}

	inv, err := h.service.GetByNumber(c.Request.Context(), orgID, c.Param("number"))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

// UpdateNotes replaces invoice notes.
// PATCH /billing/invoices/:id
func (h *InvoiceHandler) UpdateNotes(c *gin.Context) {
	invoiceID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateNotesRequest
	if !h.BindJSON(c, &req) {
		return
	}

	inv, err := h.service.UpdateNotes(c.Request.Context(), invoiceID, req.Notes.ToLocalized())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

// Delete soft-deletes a draft or cancelled invoice.
// DELETE /billing/invoices/:id
func (h *InvoiceHandler) Delete(c *gin.Context) {
	invoiceID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), invoiceID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// Issue moves a draft invoice to ISSUED.
// POST /billing/invoices/:id/issue
func (h *InvoiceHandler) Issue(c *gin.Context) {
	invoiceID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	// Body is optional: issue date defaults to now, due days to zero.
	var req dto.IssueInvoiceRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}

	issueDate := time.Now()
	if req.IssueDate != nil {
		issueDate = *req.IssueDate
	}

	inv, err := h.service.Issue(c.Request.Context(), invoiceID, issueDate, req.PaymentDueDays)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

// Cancel voids an invoice before payment.
// POST /billing/invoices/:id/cancel
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	invoiceID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	inv, err := h.service.Cancel(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

// Refund marks a paid invoice as refunded.
// POST /billing/invoices/:id/refund
func (h *InvoiceHandler) Refund(c *gin.Context) {
	invoiceID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	inv, err := h.service.Refund(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

// RecordPayment appends a payment to the invoice ledger.
// POST /billing/invoices/:id/payments
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	invoiceID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req dto.RecordPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	params, err := req.ToParams(invoiceID, h.defaultCurrency)
	if err != nil {
		h.Error(c, err)
		return
	}

	inv, err := h.service.RecordPayment(c.Request.Context(), params)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

// ListPayments returns the invoice's payment ledger.
// GET /billing/invoices/:id/payments
func (h *InvoiceHandler) ListPayments(c *gin.Context) {
	invoiceID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	entries, err := h.service.Payments(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromPayments(entries))
}

// History returns the invoice's audit trail, newest first.
// GET /billing/invoices/:id/history
func (h *InvoiceHandler) History(c *gin.Context) {
	invoiceID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	// Existence check so unknown invoices return 404, not an empty list.
	if _, err := h.service.GetByID(c.Request.Context(), invoiceID); err != nil {
		h.Error(c, err)
		return
	}

	limit := h.ParseIntQuery(c, "limit", historyLimit)
	entries, err := h.audit.GetEntityHistory(c.Request.Context(), invoice.AuditEntityType, invoiceID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromAuditEntries(entries))
}

// AddLine appends a line to a draft invoice.
// POST /billing/invoices/:id/lines
func (h *InvoiceHandler) AddLine(c *gin.Context) {
	invoiceID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req dto.LineRequest
	if !h.BindJSON(c, &req) {
		return
	}

	currency := c.Query("currency")
	if currency == "" {
		currency = h.defaultCurrency
	}
	input, err := req.ToLineInput(currency)
	if err != nil {
		h.Error(c, err)
		return
	}

	inv, err := h.service.AddLine(c.Request.Context(), invoiceID, input)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

// RemoveLine removes a line from a draft invoice.
// DELETE /billing/invoices/:id/lines/:lineId
func (h *InvoiceHandler) RemoveLine(c *gin.Context) {
	invoiceID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.pathID(c, "lineId")
	if !ok {
		return
	}

	inv, err := h.service.RemoveLine(c.Request.Context(), invoiceID, lineID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromInvoice(inv))
}

// SweepOverdue marks issued invoices past their due date as OVERDUE.
// POST /billing/sweep/overdue
func (h *InvoiceHandler) SweepOverdue(c *gin.Context) {
	// Body is optional: an empty sweep covers every organization as of now.
	var req dto.SweepOverdueRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}

	orgID := id.Nil()
	if req.OrganizationID != "" {
		parsed, err := id.Parse(req.OrganizationID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid organization id"))
			return
		}
		orgID = parsed
	}

	asOf := time.Now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	marked, err := h.service.MarkOverdueInvoices(c.Request.Context(), orgID, asOf)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.SweepResponse{MarkedOverdue: marked})
}

// BulkIssue issues a batch of drafts with shared terms.
// POST /billing/invoices/bulk/issue
func (h *InvoiceHandler) BulkIssue(c *gin.Context) {
	var req dto.BulkIssueRequest
	if !h.BindJSON(c, &req) {
		return
	}

	invoiceIDs, err := dto.ParseIDList(req.InvoiceIDs, "invoiceIds")
	if err != nil {
		h.Error(c, err)
		return
	}

	issueDate := time.Now()
	if req.IssueDate != nil {
		issueDate = *req.IssueDate
	}

	res := h.service.BulkIssue(c.Request.Context(), invoiceIDs, issueDate, req.PaymentDueDays)
	h.OK(c, dto.FromBulkResult(res))
}

// BulkCancel cancels a batch of invoices.
// POST /billing/invoices/bulk/cancel
func (h *InvoiceHandler) BulkCancel(c *gin.Context) {
	var req dto.BulkCancelRequest
	if !h.BindJSON(c, &req) {
		return
	}

	invoiceIDs, err := dto.ParseIDList(req.InvoiceIDs, "invoiceIds")
	if err != nil {
		h.Error(c, err)
		return
	}

	res := h.service.BulkCancel(c.Request.Context(), invoiceIDs)
	h.OK(c, dto.FromBulkResult(res))
}

// BulkRecordPayments applies a batch of payments.
// POST /billing/invoices/bulk/payments
func (h *InvoiceHandler) BulkRecordPayments(c *gin.Context) {
	var req dto.BulkRecordPaymentsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	payments, err := req.ToParams(h.defaultCurrency)
	if err != nil {
		h.Error(c, err)
		return
	}

	res := h.service.BulkRecordPayments(c.Request.Context(), payments)
	h.OK(c, dto.FromBulkResult(res))
}

// BulkCreateFromSubscriptions drafts one invoice per listed subscription.
// POST /billing/invoices/bulk/from-subscription
func (h *InvoiceHandler) BulkCreateFromSubscriptions(c *gin.Context) {
	var req dto.BulkFromSubscriptionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	subIDs, err := dto.ParseIDList(req.SubscriptionIDs, "subscriptionIds")
	if err != nil {
		h.Error(c, err)
		return
	}

	res, created := h.service.BulkCreateFromSubscriptions(
		c.Request.Context(), subIDs, req.Notes.ToLocalized())

	h.OK(c, dto.BulkCreateResponse{
		BulkResultResponse: dto.FromBulkResult(res),
		Invoices:           dto.FromInvoices(created),
	})
}

// pathID parses a UUID path parameter, reporting a validation error on failure.
func (h *InvoiceHandler) pathID(c *gin.Context, param string) (id.ID, bool) {
	parsed, err := id.Parse(c.Param(param))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id").
			WithDetail("param", param).
			WithDetail("value", c.Param(param)))
		return id.Nil(), false
	}
	return parsed, true
}
