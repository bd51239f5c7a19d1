package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Resolution tags how a product's hour contribution was determined, so a
// legitimate zero can be told apart from a configuration gap.
type Resolution string

const (
	ResolvedProduct Resolution = "resolved-product"
	ResolvedFamily  Resolution = "resolved-family"
	Unresolved      Resolution = "unresolved"

	// ResolvedInactive marks a known product that has been retired.
	ResolvedInactive Resolution = "inactive"
)

// Resolved reports whether a rule was found.
func (r Resolution) Resolved() bool {
	return r == ResolvedProduct || r == ResolvedFamily
}

// RuleBook is an immutable, indexed snapshot of the catalog. It is safe for
// concurrent readers.
type RuleBook struct {
	Products     []Product
	ProductRules map[string]HoursRule
	FamilyRules  map[string]HoursRule
	Roles        []PricingRole
	Policy       Policy

	productIndex map[string]Product
}

// NewRuleBook indexes products and orders them by sort order then name.
func NewRuleBook(products []Product, productRules, familyRules map[string]HoursRule, roles []PricingRole, policy Policy) RuleBook {
	sorted := make([]Product, len(products))
	copy(sorted, products)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SortOrder != sorted[j].SortOrder {
			return sorted[i].SortOrder < sorted[j].SortOrder
		}
		return sorted[i].Name < sorted[j].Name
	})

	index := make(map[string]Product, len(sorted))
	for _, p := range sorted {
		index[p.ID] = p
	}
	if productRules == nil {
		productRules = map[string]HoursRule{}
	}
	if familyRules == nil {
		familyRules = map[string]HoursRule{}
	}

	return RuleBook{
		Products:     sorted,
		ProductRules: productRules,
		FamilyRules:  familyRules,
		Roles:        roles,
		Policy:       policy,
		productIndex: index,
	}
}

// Product looks up an active product by id.
func (b RuleBook) Product(id string) (Product, bool) {
	p, ok := b.productIndex[id]
	if !ok || !p.IsActive {
		return Product{}, false
	}
	return p, true
}

// Resolve finds the single rule for a product. A product rule wins over the
// rule of its family. Retired products are ResolvedInactive; unknown ones
// and active products without a rule are Unresolved.
func (b RuleBook) Resolve(productID string) (HoursRule, Resolution) {
	p, ok := b.productIndex[productID]
	if !ok {
		return HoursRule{}, Unresolved
	}
	if !p.IsActive {
		return HoursRule{}, ResolvedInactive
	}
	if r, ok := b.ProductRules[p.ID]; ok {
		if r.Scope == ScopeFamily {
			return r, ResolvedFamily
		}
		return r, ResolvedProduct
	}
	if r, ok := b.FamilyRules[p.Category]; ok {
		return r, ResolvedFamily
	}
	return HoursRule{}, Unresolved
}

// UnitFieldFor returns the unit field a product reads: the rule's own field
// when set, otherwise the product family's field.
func (b RuleBook) UnitFieldFor(p Product, rule HoursRule) UnitField {
	if rule.UnitField != "" {
		return rule.UnitField
	}
	return b.Policy.FamilyUnits[p.Category]
}

// Role finds an active pricing role by name, ignoring case and surrounding
// whitespace.
func (b RuleBook) Role(name string) (PricingRole, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return PricingRole{}, false
	}
	for _, r := range b.Roles {
		if r.IsActive && strings.EqualFold(strings.TrimSpace(r.RoleName), name) {
			return r, true
		}
	}
	return PricingRole{}, false
}

// Snapshot reads the whole catalog through a Provider and indexes it.
func Snapshot(ctx context.Context, p Provider) (RuleBook, error) {
	products, err := p.GetActiveProducts(ctx)
	if err != nil {
		return RuleBook{}, fmt.Errorf("get active products: %w", err)
	}

	rules := make(map[string]HoursRule, len(products))
	for _, prod := range products {
		rule, ok, err := p.GetProductHoursRule(ctx, prod.ID)
		if err != nil {
			return RuleBook{}, fmt.Errorf("get hours rule for %s: %w", prod.ID, err)
		}
		if ok {
			rules[prod.ID] = rule
		}
	}

	roles, err := p.GetActivePricingRoles(ctx)
	if err != nil {
		return RuleBook{}, fmt.Errorf("get active pricing roles: %w", err)
	}

	policy, err := p.GetPolicy(ctx)
	if err != nil {
		return RuleBook{}, fmt.Errorf("get policy: %w", err)
	}

	return NewRuleBook(products, rules, nil, roles, policy), nil
}
