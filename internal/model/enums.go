package model

type Tier string

const (
	TierFree      Tier = "Free"
	TierDiamond   Tier = "Diamond"
	TierSolitaire Tier = "Solitaire"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierDiamond, TierSolitaire:
		return true
	}
	return false
}

// Pool identifies an independently tracked credit balance.
type Pool string

const (
	PoolGeneral Pool = "general"
	PoolVideo   Pool = "video"
)

func (p Pool) Valid() bool {
	return p == PoolGeneral || p == PoolVideo
}

type EntryKind string

const (
	EntryKindUsage          EntryKind = "usage"
	EntryKindPurchase       EntryKind = "purchase"
	EntryKindAdjustedCredit EntryKind = "adjusted_credit"
)

func (k EntryKind) Valid() bool {
	switch k {
	case EntryKindUsage, EntryKindPurchase, EntryKindAdjustedCredit:
		return true
	}
	return false
}

type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusFulfilled ActionStatus = "fulfilled"
	ActionStatusRejected  ActionStatus = "rejected"
)

type WebhookStatus string

const (
	WebhookStatusProcessing      WebhookStatus = "processing"
	WebhookStatusApplied         WebhookStatus = "applied"
	WebhookStatusDuplicate       WebhookStatus = "duplicate"
	WebhookStatusAccountNotFound WebhookStatus = "account_not_found"
	WebhookStatusUnpaid          WebhookStatus = "unpaid"
	WebhookStatusUnknownPlan     WebhookStatus = "unknown_plan"
	WebhookStatusIgnored         WebhookStatus = "ignored"
)

// Unresolved reports whether the event needs a human to reconcile it.
func (s WebhookStatus) Unresolved() bool {
	return s == WebhookStatusAccountNotFound || s == WebhookStatusUnknownPlan
}
