// Package catalog defines the static plan catalog: which features each plan
// tier gets, per billable module, and at what limit. The catalog is compiled
// in and versioned by deploy; nothing mutates it at runtime.
package catalog

import (
	"fmt"
	"strings"
)

// PlanTier is an organization-wide subscription level.
type PlanTier string

const (
	PlanFree       PlanTier = "FREE"
	PlanPro        PlanTier = "PRO"
	PlanEnterprise PlanTier = "ENTERPRISE"
)

// Module is an independently billable product area.
type Module string

const (
	ModuleCRM       Module = "crm"
	ModuleInvoice   Module = "invoice"
	ModuleProjects  Module = "projects"
	ModuleTickets   Module = "tickets"
	ModuleHR        Module = "hr"
	ModuleDocs      Module = "docs"
	ModuleAnalytics Module = "analytics"
)

// Feature names a gated capability or counter within a module.
type Feature string

// Unlimited is the sentinel quota meaning no ceiling.
const Unlimited int64 = -1

// LimitKind discriminates the FeatureLimit union.
type LimitKind string

const (
	// KindQuota is a numeric ceiling on countable usage.
	KindQuota LimitKind = "quota"
	// KindCapability is a feature that is present or absent entirely.
	KindCapability LimitKind = "capability"
	// KindDegrade is a feature that is always present but rendered in a
	// reduced-fidelity mode (blur, watermark) below some tier. It never
	// blocks the action.
	KindDegrade LimitKind = "degrade"
)

// FeatureLimit is the value of one (tier, module, feature) cell.
type FeatureLimit struct {
	Kind     LimitKind
	Quota    int64 // valid when Kind == KindQuota; Unlimited means no ceiling
	Enabled  bool  // valid when Kind == KindCapability
	Degraded bool  // valid when Kind == KindDegrade
}

func QuotaLimit(n int64) FeatureLimit      { return FeatureLimit{Kind: KindQuota, Quota: n} }
func CapabilityLimit(on bool) FeatureLimit { return FeatureLimit{Kind: KindCapability, Enabled: on} }
func DegradeLimit(degraded bool) FeatureLimit {
	return FeatureLimit{Kind: KindDegrade, Degraded: degraded}
}

// ConfigurationError marks a lookup outside the closed set of valid triples.
// It is always a deploy-time bug: integration tests must exercise every
// triple the product references, so this never surfaces on live traffic.
type ConfigurationError struct {
	Tier    PlanTier
	Module  Module
	Feature Feature
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("plan catalog has no entry for (%s, %s, %s)", e.Tier, e.Module, e.Feature)
}

// Catalog resolves feature limits for every valid triple.
type Catalog struct {
	limits map[PlanTier]map[Module]map[Feature]FeatureLimit
}

// New builds the catalog from the compiled-in plan table.
func New() *Catalog {
	limits := make(map[PlanTier]map[Module]map[Feature]FeatureLimit, len(allTiers))
	for _, tier := range allTiers {
		limits[tier] = make(map[Module]map[Feature]FeatureLimit, len(planTable))
	}
	for module, features := range planTable {
		for _, spec := range features {
			byTier := map[PlanTier]FeatureLimit{
				PlanFree:       spec.free,
				PlanPro:        spec.pro,
				PlanEnterprise: spec.enterprise,
			}
			for tier, limit := range byTier {
				cells, ok := limits[tier][module]
				if !ok {
					cells = make(map[Feature]FeatureLimit, len(features))
					limits[tier][module] = cells
				}
				cells[spec.feature] = limit
			}
		}
	}
	return &Catalog{limits: limits}
}

// LimitOf resolves the limit for one triple. It is total over the closed set
// of valid triples; an unknown triple is a ConfigurationError.
func (c *Catalog) LimitOf(tier PlanTier, module Module, feature Feature) (FeatureLimit, error) {
	if cells, ok := c.limits[tier][module]; ok {
		if limit, ok := cells[feature]; ok {
			return limit, nil
		}
	}
	return FeatureLimit{}, &ConfigurationError{Tier: tier, Module: module, Feature: feature}
}

// Modules lists every billable module in catalog order.
func (c *Catalog) Modules() []Module {
	return append([]Module(nil), allModules...)
}

// Features lists every feature defined for a module.
func (c *Catalog) Features(module Module) []Feature {
	specs := planTable[module]
	out := make([]Feature, 0, len(specs))
	for _, spec := range specs {
		out = append(out, spec.feature)
	}
	return out
}

// Tiers lists every plan tier.
func (c *Catalog) Tiers() []PlanTier {
	return append([]PlanTier(nil), allTiers...)
}

// ParseModule validates a module name from the wire.
func ParseModule(raw string) (Module, bool) {
	module := Module(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allModules {
		if module == known {
			return module, true
		}
	}
	return "", false
}

// ParseTier validates a plan tier name.
func ParseTier(raw string) (PlanTier, bool) {
	tier := PlanTier(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range allTiers {
		if tier == known {
			return tier, true
		}
	}
	return "", false
}
