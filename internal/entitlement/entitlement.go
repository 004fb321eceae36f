// Package entitlement maps tiers to limits and payment amounts to plans.
// Every cost and visibility rule in the ledger is read from these tables.
package entitlement

import (
	"fmt"

	"github.com/openclaw/credit-ledger-go/internal/model"
)

// UnboundedHistory is the history depth of the top tier.
const UnboundedHistory = 10000

type Feature string

const (
	FeatureAnalysis     Feature = "analysis"
	FeatureDeepAnalysis Feature = "deep_analysis"
	FeatureVideoRequest Feature = "video_request"
)

type Limits struct {
	MaxHistoryVisible      int   `json:"maxHistoryVisible"`
	CostPerAnalysis        int64 `json:"costPerAnalysis"`
	CostPerVideoRequest    int64 `json:"costPerVideoRequest"`
	VideoCreditsPerRequest int64 `json:"videoCreditsPerRequest"`
	DeepAnalysisAllowed    bool  `json:"deepAnalysisAllowed"`
}

// Resolve returns the limits of a tier. An unknown tier is an error.
func Resolve(tier model.Tier) (Limits, error) {
	switch tier {
	case model.TierFree:
		return Limits{
			MaxHistoryVisible:      1,
			CostPerAnalysis:        1,
			CostPerVideoRequest:    10,
			VideoCreditsPerRequest: 1,
			DeepAnalysisAllowed:    false,
		}, nil
	case model.TierDiamond:
		return Limits{
			MaxHistoryVisible:      10,
			CostPerAnalysis:        1,
			CostPerVideoRequest:    10,
			VideoCreditsPerRequest: 1,
			DeepAnalysisAllowed:    true,
		}, nil
	case model.TierSolitaire:
		return Limits{
			MaxHistoryVisible:      UnboundedHistory,
			CostPerAnalysis:        1,
			CostPerVideoRequest:    10,
			VideoCreditsPerRequest: 1,
			DeepAnalysisAllowed:    true,
		}, nil
	default:
		return Limits{}, fmt.Errorf("unknown tier %q", tier)
	}
}

// Cost returns the general-pool price of a feature for the given limits.
// ok is false when the tier may not use the feature at all.
func (l Limits) Cost(feature Feature) (cost int64, ok bool, err error) {
	switch feature {
	case FeatureAnalysis:
		return l.CostPerAnalysis, true, nil
	case FeatureDeepAnalysis:
		return l.CostPerAnalysis, l.DeepAnalysisAllowed, nil
	case FeatureVideoRequest:
		return l.CostPerVideoRequest, true, nil
	default:
		return 0, false, fmt.Errorf("unknown feature %q", feature)
	}
}

// Plan is a purchasable bundle identified by its exact payment amount.
type Plan struct {
	Tier         model.Tier `json:"tier"`
	AmountTotal  int64      `json:"amountTotal"`
	Credits      int64      `json:"credits"`
	VideoCredits int64      `json:"videoCredits"`
	Name         string     `json:"name"`
}

var plans = map[int64]Plan{
	2000: {
		Tier:         model.TierDiamond,
		AmountTotal:  2000,
		Credits:      100,
		VideoCredits: 3,
		Name:         "Diamond Plan",
	},
	3000: {
		Tier:         model.TierSolitaire,
		AmountTotal:  3000,
		Credits:      200,
		VideoCredits: 5,
		Name:         "Solitaire Plan",
	},
}

// planOrder defines the display ordering of plans.
var planOrder = []int64{2000, 3000}

// PlanForAmount returns the plan bought by an exact amount in the smallest currency unit.
func PlanForAmount(amountTotal int64) (Plan, bool) {
	p, ok := plans[amountTotal]
	return p, ok
}

// Plans returns the catalog in display order.
func Plans() []Plan {
	out := make([]Plan, 0, len(planOrder))
	for _, amount := range planOrder {
		out = append(out, plans[amount])
	}
	return out
}
