package ratelimit

import (
	"time"
)

// Tier is a caller's subscription level. Unknown values always resolve to
// TierAnonymous so a bad or missing tier can never widen a quota.
type Tier string

const (
	TierAnonymous  Tier = "anonymous"
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// ParseTier maps an arbitrary string to a known tier, defaulting to the most
// restrictive policy.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierFree, TierPro, TierEnterprise:
		return Tier(s)
	default:
		return TierAnonymous
	}
}

// EndpointClass groups routes into independent quota pools by cost. Each class
// is bound to its routes at startup, never chosen per request.
type EndpointClass string

const (
	ClassInference EndpointClass = "high-cost-inference"
	ClassStorage   EndpointClass = "medium-cost-storage"
	ClassCrud      EndpointClass = "low-cost-crud"
	ClassAdmin     EndpointClass = "admin-only"
)

// Limit is the quota resolved for one (tier, admin flag, class) combination.
// Unbounded short-circuits the limiter entirely; Quota == 0 means the class is
// closed to the tier.
type Limit struct {
	Quota     int64
	Window    time.Duration
	Unbounded bool
}

// policyTable is loaded once and never mutated at runtime. Quotas per class
// are independent pools: burning the inference pool leaves the crud pool
// untouched, and vice versa.
var policyTable = map[EndpointClass]map[Tier]Limit{
	ClassInference: {
		TierAnonymous:  {Quota: 10, Window: time.Hour},
		TierFree:       {Quota: 50, Window: time.Hour},
		TierPro:        {Quota: 300, Window: time.Hour},
		TierEnterprise: {Quota: 3000, Window: time.Hour},
	},
	ClassStorage: {
		TierAnonymous:  {Quota: 10, Window: time.Minute},
		TierFree:       {Quota: 30, Window: time.Minute},
		TierPro:        {Quota: 120, Window: time.Minute},
		TierEnterprise: {Quota: 600, Window: time.Minute},
	},
	ClassCrud: {
		TierAnonymous:  {Quota: 30, Window: time.Minute},
		TierFree:       {Quota: 120, Window: time.Minute},
		TierPro:        {Quota: 300, Window: time.Minute},
		TierEnterprise: {Quota: 1200, Window: time.Minute},
	},
	ClassAdmin: {
		TierAnonymous:  {Quota: 0, Window: time.Minute},
		TierFree:       {Quota: 0, Window: time.Minute},
		TierPro:        {Quota: 0, Window: time.Minute},
		TierEnterprise: {Quota: 120, Window: time.Minute},
	},
}

// ResolveLimit is a pure table lookup. The enterprise bypass requires both the
// enterprise tier and the administrative flag; an enterprise subscription
// alone still gets a finite quota, and an admin flag on a lesser tier grants
// nothing.
func ResolveLimit(tier Tier, isAdmin bool, class EndpointClass) Limit {
	tier = ParseTier(string(tier))
	if tier == TierEnterprise && isAdmin {
		return Limit{Unbounded: true}
	}
	limits, ok := policyTable[class]
	if !ok {
		// Unknown classes fall back to the tightest pool rather than unbounded.
		limits = policyTable[ClassInference]
	}
	return limits[tier]
}

// PolicyTable returns a copy of the active policy for the admin surface.
func PolicyTable() map[EndpointClass]map[Tier]Limit {
	out := make(map[EndpointClass]map[Tier]Limit, len(policyTable))
	for class, limits := range policyTable {
		inner := make(map[Tier]Limit, len(limits))
		for tier, limit := range limits {
			inner[tier] = limit
		}
		out[class] = inner
	}
	return out
}
