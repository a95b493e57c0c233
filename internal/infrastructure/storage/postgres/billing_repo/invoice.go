// Package billing_repo provides PostgreSQL implementations for billing
// repositories: the invoice aggregate and the append-only payment ledger.
package billing_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"gymbill/internal/core/apperror"
	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
	"gymbill/internal/domain"
	"gymbill/internal/domain/billing/invoice"
	"gymbill/internal/domain/billing/payment"
	"gymbill/internal/infrastructure/storage/postgres"
)

const (
	invoicesTable     = "billing_invoices"
	invoiceLinesTable = "billing_invoice_lines"
)

var invoiceLineColumns = []string{
	"id", "invoice_id", "description_en", "description_ar",
	"quantity", "unit_price", "item_type", "tax_rate", "sort_order",
}

// invoiceRow is the flat persistence shape of an invoice. Money values are
// decomposed into decimal columns sharing the single currency column; the
// aggregate guarantees currency uniformity before it ever reaches here.
type invoiceRow struct {
	ID           id.ID     `db:"id"`
	DeletionMark bool      `db:"deletion_mark"`
	Version      int       `db:"version"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	CreatedBy    string    `db:"created_by"`
	UpdatedBy    string    `db:"updated_by"`

	InvoiceNumber  string `db:"invoice_number"`
	OrganizationID id.ID  `db:"organization_id"`
	MemberID       id.ID  `db:"member_id"`
	SubscriptionID *id.ID `db:"subscription_id"`

	Status string `db:"status"`

	IssueDate *time.Time `db:"issue_date"`
	DueDate   *time.Time `db:"due_date"`
	PaidDate  *time.Time `db:"paid_date"`

	Currency    string          `db:"currency"`
	Subtotal    decimal.Decimal `db:"subtotal"`
	VATAmount   decimal.Decimal `db:"vat_amount"`
	TotalAmount decimal.Decimal `db:"total_amount"`
	PaidAmount  decimal.Decimal `db:"paid_amount"`
	VATRate     decimal.Decimal `db:"vat_rate"`

	PaymentMethod    string `db:"payment_method"`
	PaymentReference string `db:"payment_reference"`

	NotesEn string `db:"notes_en"`
	NotesAr string `db:"notes_ar"`
}

type lineRow struct {
	ID            id.ID           `db:"id"`
	InvoiceID     id.ID           `db:"invoice_id"`
	DescriptionEn string          `db:"description_en"`
	DescriptionAr string          `db:"description_ar"`
	Quantity      int             `db:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
	ItemType      string          `db:"item_type"`
	TaxRate       decimal.Decimal `db:"tax_rate"`
	SortOrder     int             `db:"sort_order"`
}

func toInvoiceRow(inv *invoice.Invoice) invoiceRow {
	return invoiceRow{
		ID:           inv.ID,
		DeletionMark: inv.DeletionMark,
		Version:      inv.Version,
		CreatedAt:    inv.CreatedAt,
		UpdatedAt:    inv.UpdatedAt,
		CreatedBy:    inv.CreatedBy,
		UpdatedBy:    inv.UpdatedBy,

		InvoiceNumber:  inv.InvoiceNumber,
		OrganizationID: inv.OrganizationID,
		MemberID:       inv.MemberID,
		SubscriptionID: inv.SubscriptionID,

		Status: string(inv.Status),

		IssueDate: inv.IssueDate,
		DueDate:   inv.DueDate,
		PaidDate:  inv.PaidDate,

		Currency:    inv.Currency(),
		Subtotal:    inv.Subtotal.Amount,
		VATAmount:   inv.VATAmount.Amount,
		TotalAmount: inv.TotalAmount.Amount,
		PaidAmount:  inv.PaidAmount.Amount,
		VATRate:     inv.VATRate,

		PaymentMethod:    string(inv.PaymentMethod),
		PaymentReference: inv.PaymentReference,

		NotesEn: inv.Notes.En,
		NotesAr: inv.Notes.Ar,
	}
}

func fromInvoiceRow(row invoiceRow, lines []lineRow) *invoice.Invoice {
	inv := &invoice.Invoice{
		InvoiceNumber:  row.InvoiceNumber,
		OrganizationID: row.OrganizationID,
		MemberID:       row.MemberID,
		SubscriptionID: row.SubscriptionID,

		Status: invoice.Status(row.Status),

		IssueDate: row.IssueDate,
		DueDate:   row.DueDate,
		PaidDate:  row.PaidDate,

		Subtotal:    types.Money{Amount: row.Subtotal, Currency: row.Currency},
		VATAmount:   types.Money{Amount: row.VATAmount, Currency: row.Currency},
		TotalAmount: types.Money{Amount: row.TotalAmount, Currency: row.Currency},
		PaidAmount:  types.Money{Amount: row.PaidAmount, Currency: row.Currency},
		VATRate:     row.VATRate,

		PaymentMethod:    payment.Method(row.PaymentMethod),
		PaymentReference: row.PaymentReference,

		Notes: types.LocalizedText{En: row.NotesEn, Ar: row.NotesAr},
	}
	inv.ID = row.ID
	inv.DeletionMark = row.DeletionMark
	inv.Version = row.Version
	inv.CreatedAt = row.CreatedAt
	inv.UpdatedAt = row.UpdatedAt
	inv.CreatedBy = row.CreatedBy
	inv.UpdatedBy = row.UpdatedBy

	inv.LineItems = make([]invoice.LineItem, 0, len(lines))
	for _, l := range lines {
		inv.LineItems = append(inv.LineItems, invoice.LineItem{
			ID:          l.ID,
			Description: types.LocalizedText{En: l.DescriptionEn, Ar: l.DescriptionAr},
			Quantity:    l.Quantity,
			UnitPrice:   types.Money{Amount: l.UnitPrice, Currency: row.Currency},
			ItemType:    invoice.ItemType(l.ItemType),
			TaxRate:     l.TaxRate,
			SortOrder:   l.SortOrder,
		})
	}

	return inv
}

// Compile-time check that InvoiceRepo implements invoice.Repository.
var _ invoice.Repository = (*InvoiceRepo)(nil)

// InvoiceRepo persists invoice aggregates with their line items.
type InvoiceRepo struct {
	txManager *postgres.TxManager
	inserter  *postgres.BatchInserter
	cols      []string
}

// NewInvoiceRepo creates a new invoice repository.
func NewInvoiceRepo(txManager *postgres.TxManager) *InvoiceRepo {
	return &InvoiceRepo{
		txManager: txManager,
		inserter:  postgres.NewBatchInserter(txManager),
		cols:      postgres.ExtractDBColumns[invoiceRow](),
	}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *InvoiceRepo) baseSelect() squirrel.SelectBuilder {
	return builder().Select(r.cols...).From(invoicesTable)
}

// Create inserts the invoice and its lines. Must run inside the same
// transaction as the sequence claim that produced the invoice number.
func (r *InvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) error {
	row := toInvoiceRow(inv)
	data := postgres.StructToMap(row)

	q := builder().Insert(invoicesTable).SetMap(data)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	return r.insertLines(ctx, inv.ID, inv.LineItems)
}

// Update persists the aggregate with optimistic locking on the version
// column. Line items are replaced wholesale; post-draft they never change,
// so the replacement is a no-op rewrite of identical rows.
func (r *InvoiceRepo) Update(ctx context.Context, inv *invoice.Invoice) error {
	row := toInvoiceRow(inv)
	data := postgres.StructToMap(row)
	delete(data, "id")
	delete(data, "created_at")
	delete(data, "created_by")
	delete(data, "version")
	delete(data, "updated_at")

	q := builder().
		Update(invoicesTable).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": inv.ID}).
		Where(squirrel.Eq{"version": inv.Version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("invoice", inv.ID)
	}
	inv.Version++

	deleteSQL := "DELETE FROM " + invoiceLinesTable + " WHERE invoice_id = $1"
	if _, err := querier.Exec(ctx, deleteSQL, inv.ID); err != nil {
		return fmt.Errorf("delete invoice lines: %w", err)
	}

	return r.insertLines(ctx, inv.ID, inv.LineItems)
}

// insertLines bulk-inserts line rows via the COPY protocol.
func (r *InvoiceRepo) insertLines(ctx context.Context, invoiceID id.ID, lines []invoice.LineItem) error {
	if len(lines) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []any{
			l.ID, invoiceID, l.Description.En, l.Description.Ar,
			l.Quantity, l.UnitPrice.Amount, string(l.ItemType), l.TaxRate, l.SortOrder,
		})
	}

	if _, err := r.inserter.CopyFromSlice(ctx, invoiceLinesTable, invoiceLineColumns, rows); err != nil {
		return fmt.Errorf("insert invoice lines: %w", err)
	}
	return nil
}

func (r *InvoiceRepo) loadLines(ctx context.Context, invoiceID id.ID) ([]lineRow, error) {
	q := builder().
		Select(invoiceLineColumns...).
		From(invoiceLinesTable).
		Where(squirrel.Eq{"invoice_id": invoiceID}).
		OrderBy("sort_order")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []lineRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("load lines: %w", err)
	}
	return lines, nil
}

// GetByID loads the invoice with its lines.
func (r *InvoiceRepo) GetByID(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
	return r.getOne(ctx, r.baseSelect().Where(squirrel.Eq{"id": invoiceID}), invoiceID.String())
}

// GetByNumber loads the invoice by its human-facing number.
func (r *InvoiceRepo) GetByNumber(ctx context.Context, organizationID id.ID, number string) (*invoice.Invoice, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"organization_id": organizationID}).
		Where(squirrel.Eq{"invoice_number": number})
	return r.getOne(ctx, q, number)
}

func (r *InvoiceRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key string) (*invoice.Invoice, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row invoiceRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("invoice", key)
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}

	lines, err := r.loadLines(ctx, row.ID)
	if err != nil {
		return nil, err
	}

	return fromInvoiceRow(row, lines), nil
}

// List returns invoices matching the filter, paginated.
func (r *InvoiceRepo) List(ctx context.Context, filter invoice.ListFilter) (domain.ListResult[*invoice.Invoice], error) {
	result := domain.ListResult[*invoice.Invoice]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.baseSelect()

	if !filter.IncludeDeleted {
		q = q.Where(squirrel.Eq{"deletion_mark": false})
	}
	if !id.IsNil(filter.OrganizationID) {
		q = q.Where(squirrel.Eq{"organization_id": filter.OrganizationID})
	}
	if len(filter.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": statusStrings(filter.Statuses)})
	}
	if filter.MemberID != nil {
		q = q.Where(squirrel.Eq{"member_id": *filter.MemberID})
	}
	if filter.SubscriptionID != nil {
		q = q.Where(squirrel.Eq{"subscription_id": *filter.SubscriptionID})
	}
	if filter.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.DateTo})
	}
	if filter.Search != "" {
		q = q.Where(squirrel.ILike{"invoice_number": "%" + filter.Search + "%"})
	}

	countQ := builder().Select("COUNT(*)").FromSelect(q, "sub")
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	orderBy, err := r.parseOrderBy(filter.OrderBy)
	if err != nil {
		return result, err
	}
	q = q.OrderBy(orderBy)

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	var rows []invoiceRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return result, fmt.Errorf("select: %w", err)
	}

	result.Items = make([]*invoice.Invoice, 0, len(rows))
	for _, row := range rows {
		lines, err := r.loadLines(ctx, row.ID)
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, fromInvoiceRow(row, lines))
	}

	return result, nil
}

// FindOverdue returns ISSUED invoices whose due date is before the given
// date. An all-zero organization ID means every organization.
func (r *InvoiceRepo) FindOverdue(ctx context.Context, organizationID id.ID, before time.Time) ([]*invoice.Invoice, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"deletion_mark": false}).
		Where(squirrel.Eq{"status": string(invoice.StatusIssued)}).
		Where(squirrel.Lt{"due_date": before}).
		OrderBy("due_date")

	if !id.IsNil(organizationID) {
		q = q.Where(squirrel.Eq{"organization_id": organizationID})
	}

	return r.selectMany(ctx, q)
}

// FindUnpaidBySubscription returns invoices for the subscription in an
// unpaid status.
func (r *InvoiceRepo) FindUnpaidBySubscription(ctx context.Context, subscriptionID id.ID) ([]*invoice.Invoice, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"deletion_mark": false}).
		Where(squirrel.Eq{"subscription_id": subscriptionID}).
		Where(squirrel.Eq{"status": statusStrings(invoice.UnpaidStatuses)}).
		OrderBy("created_at")

	return r.selectMany(ctx, q)
}

func (r *InvoiceRepo) selectMany(ctx context.Context, q squirrel.SelectBuilder) ([]*invoice.Invoice, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []invoiceRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}

	invoices := make([]*invoice.Invoice, 0, len(rows))
	for _, row := range rows {
		lines, err := r.loadLines(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, fromInvoiceRow(row, lines))
	}
	return invoices, nil
}

// Stats counts invoices per status for the organization.
func (r *InvoiceRepo) Stats(ctx context.Context, organizationID id.ID) (invoice.Stats, error) {
	stats := invoice.Stats{ByStatus: make(map[invoice.Status]int64)}

	q := builder().
		Select("status", "COUNT(*) AS cnt").
		From(invoicesTable).
		Where(squirrel.Eq{"deletion_mark": false}).
		GroupBy("status")

	if !id.IsNil(organizationID) {
		q = q.Where(squirrel.Eq{"organization_id": organizationID})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return stats, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, args...)
	if err != nil {
		return stats, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByStatus[invoice.Status(status)] = count
		stats.Total += count
	}

	return stats, rows.Err()
}

// SetDeletionMark soft-deletes or restores an invoice.
func (r *InvoiceRepo) SetDeletionMark(ctx context.Context, invoiceID id.ID, marked bool) error {
	q := builder().
		Update(invoicesTable).
		Set("deletion_mark", marked).
		Set("updated_at", squirrel.Expr("NOW()")).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": invoiceID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("set deletion mark: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("invoice", invoiceID.String())
	}

	return nil
}

func (r *InvoiceRepo) parseOrderBy(orderBy string) (string, error) {
	allowed := map[string]struct{}{
		"invoice_number": {}, "status": {}, "issue_date": {}, "due_date": {},
		"paid_date": {}, "total_amount": {}, "paid_amount": {},
		"created_at": {}, "updated_at": {},
	}

	if strings.TrimSpace(orderBy) == "" {
		return "created_at DESC", nil
	}

	direction := "ASC"
	field := orderBy
	if strings.HasPrefix(orderBy, "-") {
		direction = "DESC"
		field = strings.TrimPrefix(orderBy, "-")
	} else if strings.HasPrefix(orderBy, "+") {
		field = strings.TrimPrefix(orderBy, "+")
	}

	field = strings.TrimSpace(field)
	if _, ok := allowed[field]; !ok {
		return "", apperror.NewValidation("invalid orderBy").
			WithDetail("orderBy", orderBy).
			WithDetail("field", field)
	}

	return field + " " + direction, nil
}

func statusStrings(statuses []invoice.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
