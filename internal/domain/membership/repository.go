package membership

import (
	"context"

	"gymbill/internal/core/id"
)

// MemberRepository reads member records.
type MemberRepository interface {
	GetByID(ctx context.Context, memberID id.ID) (*Member, error)
}

// PlanRepository reads membership plan records.
type PlanRepository interface {
	GetByID(ctx context.Context, planID id.ID) (*MembershipPlan, error)
}

// SubscriptionRepository reads subscription records.
type SubscriptionRepository interface {
	GetByID(ctx context.Context, subscriptionID id.ID) (*Subscription, error)

	// CountByMember counts all subscriptions the member has ever had,
	// including the one being invoiced. Used to detect a first-ever
	// subscription for the one-time joining fee.
	CountByMember(ctx context.Context, memberID id.ID) (int64, error)
}
