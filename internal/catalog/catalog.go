package catalog

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// UnitField names a per-family sizing input on a project (users, endpoints,
// orchestration objects...). Each product family reads exactly one field.
type UnitField string

const (
	UnitOrchestration UnitField = "orchestration_units"
	UnitBookItForms   UnitField = "bookit_forms_units"
	UnitBookItLinks   UnitField = "bookit_links_units"
	UnitBookItHandoff UnitField = "bookit_handoff_units"
)

// Product is a sellable item that drives hour estimates.
type Product struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	IsActive  bool   `json:"isActive"`
	SortOrder int    `json:"sortOrder"`
}

// RuleKind selects how a HoursRule turns units into hours.
type RuleKind string

const (
	RuleFixed   RuleKind = "fixed"
	RulePerUnit RuleKind = "per_unit"
)

// RuleScope records whether a rule was declared for one product or for a
// whole family.
type RuleScope string

const (
	ScopeProduct RuleScope = "product"
	ScopeFamily  RuleScope = "family"
)

// HoursRule is the hour contribution of one product.
//
// Fixed rules contribute Hours. Per-unit rules contribute
// Hours + HoursPerUnit*units, where units is read from UnitField (or the
// product family's field when UnitField is empty).
type HoursRule struct {
	Scope        RuleScope       `json:"scope"`
	Key          string          `json:"key"`
	Kind         RuleKind        `json:"kind"`
	Hours        decimal.Decimal `json:"hours"`
	HoursPerUnit decimal.Decimal `json:"hoursPerUnit"`
	UnitField    UnitField       `json:"unitField,omitempty"`
}

// PricingRole is the configured default rate for a named role.
type PricingRole struct {
	ID                 string          `json:"id"`
	RoleName           string          `json:"roleName"`
	DefaultRatePerHour decimal.Decimal `json:"defaultRatePerHour"`
	IsActive           bool            `json:"isActive"`
}

// Policy holds the numeric thresholds of the hours model.
type Policy struct {
	UnitGroupSize           decimal.Decimal            `json:"unitGroupSize"`
	HoursPerUnitGroup       decimal.Decimal            `json:"hoursPerUnitGroup"`
	PMProductThreshold      int                        `json:"pmProductThreshold"`
	PMUnitThreshold         decimal.Decimal            `json:"pmUnitThreshold"`
	PMSharePercent          decimal.Decimal            `json:"pmSharePercent"`
	FallbackRatePerHour     decimal.Decimal            `json:"fallbackRatePerHour"`
	SegmentHours            map[string]decimal.Decimal `json:"segmentHours"`
	RemovalEligibleSegments []string                   `json:"removalEligibleSegments"`
	FamilyUnits             map[string]UnitField       `json:"familyUnits"`
}

// NormalizeSegment canonicalises an account segment code.
func NormalizeSegment(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SegmentAdjustment returns the additive hours for an account segment.
// Unknown or blank segments yield zero.
func (p Policy) SegmentAdjustment(code string) decimal.Decimal {
	h, ok := p.SegmentHours[NormalizeSegment(code)]
	if !ok {
		return decimal.Zero
	}
	return h
}

// RemovalEligible reports whether the segment may open PM-hours-removal requests.
func (p Policy) RemovalEligible(code string) bool {
	code = NormalizeSegment(code)
	if code == "" {
		return false
	}
	for _, s := range p.RemovalEligibleSegments {
		if NormalizeSegment(s) == code {
			return true
		}
	}
	return false
}

// Provider is the read-only configuration boundary consumed by the engine.
type Provider interface {
	GetActiveProducts(ctx context.Context) ([]Product, error)
	// GetProductHoursRule returns ok=false when neither a product nor a
	// family rule exists.
	GetProductHoursRule(ctx context.Context, productID string) (HoursRule, bool, error)
	GetActivePricingRoles(ctx context.Context) ([]PricingRole, error)
	GetPolicy(ctx context.Context) (Policy, error)
}
