package domain

import "time"

// SubscriptionStatus represents the possible states of a user's subscription.
// Values are written by the billing provider's webhooks; this service only reads them.
type SubscriptionStatus string

const (
	SubscriptionStatusNone     SubscriptionStatus = "none"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// SubscriptionRecord is the persisted plan assignment for one principal.
// TierID may hold either a catalog tier name or a billing price id.
type SubscriptionRecord struct {
	Email     string
	TierID    string
	Status    SubscriptionStatus
	UpdatedAt time.Time
}

// GrantsTier reports whether the stored tier applies. An account that never
// subscribed (status none) keeps its assigned tier, typically free; lapsed
// billing and unrecognized statuses do not.
func (s *SubscriptionRecord) GrantsTier() bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusNone:
		return true
	default:
		return false
	}
}

// PlanState is what the plan store returns for one principal in a single
// round trip. Usage is nil when no counter row exists.
type PlanState struct {
	Subscription SubscriptionRecord
	Usage        *UsageCounter
}
