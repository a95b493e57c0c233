// Package membership provides the member, plan and subscription entities
// that invoicing reads from. Billing never mutates them: enrollment and plan
// management live in a separate system, this module only needs enough shape
// to price an invoice.
package membership

import (
	"time"

	"github.com/shopspring/decimal"

	"gymbill/internal/core/entity"
	"gymbill/internal/core/id"
	"gymbill/internal/core/types"
)

// Fee is a plan charge stored gross (tax inclusive) with its tax rate.
// Invoice lines carry net unit prices, so the gross amount is split back
// into net + tax when a line is built from a fee.
type Fee struct {
	Amount  types.Money     `db:"amount" json:"amount"`
	TaxRate decimal.Decimal `db:"tax_rate" json:"taxRate"`
}

// IsZero reports whether the fee carries no charge.
func (f Fee) IsZero() bool {
	return f.Amount.Amount.IsZero()
}

// NetAmount returns the fee amount with tax stripped, rounded to cents.
func (f Fee) NetAmount() types.Money {
	if f.TaxRate.IsZero() {
		return f.Amount
	}
	divisor := decimal.NewFromInt(1).Add(f.TaxRate.Div(decimal.NewFromInt(100)))
	net := types.Money{
		Amount:   f.Amount.Amount.Div(divisor),
		Currency: f.Amount.Currency,
	}
	return net.RoundCents()
}

// TaxAmount returns the tax portion of the gross amount.
func (f Fee) TaxAmount() types.Money {
	return f.Amount.Sub(f.NetAmount())
}

// GrossAmount returns the stored tax-inclusive amount.
func (f Fee) GrossAmount() types.Money {
	return f.Amount
}

// Member represents a gym member.
type Member struct {
	entity.BaseDocument

	OrganizationID id.ID               `db:"organization_id" json:"organizationId"`
	Name           types.LocalizedText `db:"name" json:"name"`
	Email          string              `db:"email" json:"email"`
	Phone          string              `db:"phone" json:"phone,omitempty"`
	PreferredLang  string              `db:"preferred_lang" json:"preferredLang,omitempty"`
}

// MembershipPlan defines the fee structure applied when a subscription
// is invoiced.
type MembershipPlan struct {
	entity.BaseDocument

	OrganizationID id.ID               `db:"organization_id" json:"organizationId"`
	Name           types.LocalizedText `db:"name" json:"name"`
	DurationDays   int                 `db:"duration_days" json:"durationDays"`

	// MembershipFee is the recurring charge per subscription period
	MembershipFee Fee `db:"membership_fee" json:"membershipFee"`

	// AdministrationFee is charged on every subscription invoice when set
	AdministrationFee Fee `db:"administration_fee" json:"administrationFee"`

	// JoinFee is charged once, on the member's first-ever subscription
	JoinFee Fee `db:"join_fee" json:"joinFee"`
}

// HasFees reports whether the plan defines any charge at all. A plan
// without fees cannot be invoiced.
func (p *MembershipPlan) HasFees() bool {
	return !p.MembershipFee.IsZero() || !p.AdministrationFee.IsZero() || !p.JoinFee.IsZero()
}

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "PENDING"
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionFrozen    SubscriptionStatus = "FROZEN"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// Subscription links a member to a plan for a period.
type Subscription struct {
	entity.BaseDocument

	OrganizationID id.ID              `db:"organization_id" json:"organizationId"`
	MemberID       id.ID              `db:"member_id" json:"memberId"`
	PlanID         id.ID              `db:"plan_id" json:"planId"`
	Status         SubscriptionStatus `db:"status" json:"status"`
	StartDate      time.Time          `db:"start_date" json:"startDate"`
	EndDate        time.Time          `db:"end_date" json:"endDate"`
}
