// Package entitlement decides what an organization may do in each module:
// the pure evaluator plus the access hooks the domain modules call.
package entitlement

import (
	"time"

	"github.com/smallbiznis/bizsuite/internal/catalog"
	subdomain "github.com/smallbiznis/bizsuite/internal/modulesub/domain"
)

// Decision is the full answer for one (org, module, feature) lookup. It is a
// value: computing it has no side effects and touches no storage.
type Decision struct {
	Limit            int64   `json:"limit"`
	Current          int64   `json:"current"`
	Remaining        int64   `json:"remaining"`
	Percentage       float64 `json:"percentage"`
	IsAtLimit        bool    `json:"is_at_limit"`
	IsNearLimit      bool    `json:"is_near_limit"`
	IsUnlimited      bool    `json:"is_unlimited"`
	IsEnabled        bool    `json:"is_enabled"`
	IsDegraded       bool    `json:"is_degraded"`
	CanPerformAction bool    `json:"can_perform_action"`
}

// EffectiveTier resolves the plan tier that governs one module for an org. A
// module subscription overrides the org-wide tier only while it is worth
// money: active, trialing, or past due within the grace window. Canceled and
// paused subscriptions fall back to the org-wide tier.
func EffectiveTier(orgTier catalog.PlanTier, sub *subdomain.ModuleSubscription, now time.Time, graceWindow time.Duration) catalog.PlanTier {
	if subscriptionPaid(sub, now, graceWindow) {
		return sub.PlanTier
	}
	return orgTier
}

func subscriptionPaid(sub *subdomain.ModuleSubscription, now time.Time, graceWindow time.Duration) bool {
	if sub == nil {
		return false
	}
	if sub.Status.Paid() {
		return true
	}
	if sub.Status == subdomain.StatusPastDue && sub.PastDueSince != nil {
		return now.Before(sub.PastDueSince.Add(graceWindow))
	}
	return false
}

// Evaluate turns a catalog limit and a live usage count into a Decision.
//
// Quota arithmetic: the boundary is strict, an org at exactly its limit can
// no longer act. The unlimited sentinel short-circuits before any division,
// and percentage is capped at 100 even when usage has overshot the limit.
func Evaluate(limit catalog.FeatureLimit, currentUsage int64, nearLimitPercent int) Decision {
	switch limit.Kind {
	case catalog.KindCapability:
		return Decision{
			IsEnabled:        limit.Enabled,
			CanPerformAction: limit.Enabled,
		}
	case catalog.KindDegrade:
		// Degraded features stay usable; the flag only tells the module to
		// render its reduced variant.
		return Decision{
			IsEnabled:        true,
			IsDegraded:       limit.Degraded,
			CanPerformAction: true,
		}
	}

	if limit.Quota == catalog.Unlimited {
		return Decision{
			Limit:            catalog.Unlimited,
			Current:          currentUsage,
			Remaining:        catalog.Unlimited,
			IsUnlimited:      true,
			IsEnabled:        true,
			CanPerformAction: true,
		}
	}

	d := Decision{
		Limit:     limit.Quota,
		Current:   currentUsage,
		IsEnabled: true,
	}
	d.CanPerformAction = currentUsage < limit.Quota
	d.IsAtLimit = !d.CanPerformAction

	if remaining := limit.Quota - currentUsage; remaining > 0 {
		d.Remaining = remaining
	}

	if limit.Quota <= 0 {
		d.Percentage = 100
	} else {
		pct := float64(currentUsage) / float64(limit.Quota) * 100
		if pct > 100 {
			pct = 100
		}
		if pct < 0 {
			pct = 0
		}
		d.Percentage = pct
	}

	if nearLimitPercent <= 0 {
		nearLimitPercent = 100
	}
	d.IsNearLimit = d.Percentage >= float64(nearLimitPercent)

	return d
}
