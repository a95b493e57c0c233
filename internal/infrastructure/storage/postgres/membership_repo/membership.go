// Package membership_repo provides read-only PostgreSQL access to the
// membership records invoicing depends on. Billing never writes these
// tables: member and subscription management happens in another system.
package membership_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"gymbill/internal/core/apperror"
	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
	"gymbill/internal/domain/membership"
	"gymbill/internal/infrastructure/storage/postgres"
)

const (
	membersTable       = "mem_members"
	plansTable         = "mem_plans"
	subscriptionsTable = "mem_subscriptions"
)

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

type memberRow struct {
	ID           id.ID     `db:"id"`
	DeletionMark bool      `db:"deletion_mark"`
	Version      int       `db:"version"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	CreatedBy    string    `db:"created_by"`
	UpdatedBy    string    `db:"updated_by"`

	OrganizationID id.ID  `db:"organization_id"`
	NameEn         string `db:"name_en"`
	NameAr         string `db:"name_ar"`
	Email          string `db:"email"`
	Phone          string `db:"phone"`
	PreferredLang  string `db:"preferred_lang"`
}

type planRow struct {
	ID           id.ID     `db:"id"`
	DeletionMark bool      `db:"deletion_mark"`
	Version      int       `db:"version"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	CreatedBy    string    `db:"created_by"`
	UpdatedBy    string    `db:"updated_by"`

	OrganizationID id.ID  `db:"organization_id"`
	NameEn         string `db:"name_en"`
	NameAr         string `db:"name_ar"`
	DurationDays   int    `db:"duration_days"`
	Currency       string `db:"currency"`

	MembershipFee        decimal.Decimal `db:"membership_fee"`
	MembershipFeeTaxRate decimal.Decimal `db:"membership_fee_tax_rate"`
	AdminFee             decimal.Decimal `db:"admin_fee"`
	AdminFeeTaxRate      decimal.Decimal `db:"admin_fee_tax_rate"`
	JoinFee              decimal.Decimal `db:"join_fee"`
	JoinFeeTaxRate       decimal.Decimal `db:"join_fee_tax_rate"`
}

type subscriptionRow struct {
	ID           id.ID     `db:"id"`
	DeletionMark bool      `db:"deletion_mark"`
	Version      int       `db:"version"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	CreatedBy    string    `db:"created_by"`
	UpdatedBy    string    `db:"updated_by"`

	OrganizationID id.ID     `db:"organization_id"`
	MemberID       id.ID     `db:"member_id"`
	PlanID         id.ID     `db:"plan_id"`
	Status         string    `db:"status"`
	StartDate      time.Time `db:"start_date"`
	EndDate        time.Time `db:"end_date"`
}

// Compile-time checks.
var (
	_ membership.MemberRepository       = (*MemberRepo)(nil)
	_ membership.PlanRepository         = (*PlanRepo)(nil)
	_ membership.SubscriptionRepository = (*SubscriptionRepo)(nil)
)

// MemberRepo reads member records.
type MemberRepo struct {
	txManager *postgres.TxManager
	cols      []string
}

// NewMemberRepo creates a new member repository.
func NewMemberRepo(txManager *postgres.TxManager) *MemberRepo {
	return &MemberRepo{
		txManager: txManager,
		cols:      postgres.ExtractDBColumns[memberRow](),
	}
}

// GetByID retrieves a member by ID.
func (r *MemberRepo) GetByID(ctx context.Context, memberID id.ID) (*membership.Member, error) {
	q := builder().
		Select(r.cols...).
		From(membersTable).
		Where(squirrel.Eq{"id": memberID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row memberRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("member", memberID.String())
		}
		return nil, fmt.Errorf("get member: %w", err)
	}

	m := &membership.Member{
		OrganizationID: row.OrganizationID,
		Name:           types.LocalizedText{En: row.NameEn, Ar: row.NameAr},
		Email:          row.Email,
		Phone:          row.Phone,
		PreferredLang:  row.PreferredLang,
	}
	m.ID = row.ID
	m.DeletionMark = row.DeletionMark
	m.Version = row.Version
	m.CreatedAt = row.CreatedAt
	m.UpdatedAt = row.UpdatedAt
	m.CreatedBy = row.CreatedBy
	m.UpdatedBy = row.UpdatedBy

	return m, nil
}

// PlanRepo reads membership plan records.
type PlanRepo struct {
	txManager *postgres.TxManager
	cols      []string
}

// NewPlanRepo creates a new plan repository.
func NewPlanRepo(txManager *postgres.TxManager) *PlanRepo {
	return &PlanRepo{
		txManager: txManager,
		cols:      postgres.ExtractDBColumns[planRow](),
	}
}

// GetByID retrieves a membership plan by ID.
func (r *PlanRepo) GetByID(ctx context.Context, planID id.ID) (*membership.MembershipPlan, error) {
	q := builder().
		Select(r.cols...).
		From(plansTable).
		Where(squirrel.Eq{"id": planID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row planRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("membership plan", planID.String())
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}

	p := &membership.MembershipPlan{
		OrganizationID: row.OrganizationID,
		Name:           types.LocalizedText{En: row.NameEn, Ar: row.NameAr},
		DurationDays:   row.DurationDays,
		MembershipFee: membership.Fee{
			Amount:  types.Money{Amount: row.MembershipFee, Currency: row.Currency},
			TaxRate: row.MembershipFeeTaxRate,
		},
		AdministrationFee: membership.Fee{
			Amount:  types.Money{Amount: row.AdminFee, Currency: row.Currency},
			TaxRate: row.AdminFeeTaxRate,
		},
		JoinFee: membership.Fee{
			Amount:  types.Money{Amount: row.JoinFee, Currency: row.Currency},
			TaxRate: row.JoinFeeTaxRate,
		},
	}
	p.ID = row.ID
	p.DeletionMark = row.DeletionMark
	p.Version = row.Version
	p.CreatedAt = row.CreatedAt
	p.UpdatedAt = row.UpdatedAt
	p.CreatedBy = row.CreatedBy
	p.UpdatedBy = row.UpdatedBy

	return p, nil
}

// SubscriptionRepo reads subscription records.
type SubscriptionRepo struct {
	txManager *postgres.TxManager
	cols      []string
}

// NewSubscriptionRepo creates a new subscription repository.
func NewSubscriptionRepo(txManager *postgres.TxManager) *SubscriptionRepo {
	return &SubscriptionRepo{
		txManager: txManager,
		cols:      postgres.ExtractDBColumns[subscriptionRow](),
	}
}

// GetByID retrieves a subscription by ID.
func (r *SubscriptionRepo) GetByID(ctx context.Context, subscriptionID id.ID) (*membership.Subscription, error) {
	q := builder().
		Select(r.cols...).
		From(subscriptionsTable).
		Where(squirrel.Eq{"id": subscriptionID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row subscriptionRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("subscription", subscriptionID.String())
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	s := &membership.Subscription{
		OrganizationID: row.OrganizationID,
		MemberID:       row.MemberID,
		PlanID:         row.PlanID,
		Status:         membership.SubscriptionStatus(row.Status),
		StartDate:      row.StartDate,
		EndDate:        row.EndDate,
	}
	s.ID = row.ID
	s.DeletionMark = row.DeletionMark
	s.Version = row.Version
	s.CreatedAt = row.CreatedAt
	s.UpdatedAt = row.UpdatedAt
	s.CreatedBy = row.CreatedBy
	s.UpdatedBy = row.UpdatedBy

	return s, nil
}

// CountByMember counts all subscriptions the member has ever had.
func (r *SubscriptionRepo) CountByMember(ctx context.Context, memberID id.ID) (int64, error) {
	q := builder().
		Select("COUNT(*)").
		From(subscriptionsTable).
		Where(squirrel.Eq{"member_id": memberID})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var count int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return count, nil
}
