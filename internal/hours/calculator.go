package hours

import (
	"github.com/shopspring/decimal"

	"github.com/Simplici0/sowhours/internal/catalog"
)

var hundred = decimal.NewFromInt(100)

// Selection is what a SOW author picked: products, per-family unit counts and
// the customer's account segment.
type Selection struct {
	ProductIDs     []string                              `json:"productIds"`
	Units          map[catalog.UnitField]decimal.Decimal `json:"units"`
	AccountSegment string                                `json:"accountSegment"`
}

// Contribution is one product's share of ProductHours.
type Contribution struct {
	ProductID  string             `json:"productId"`
	Hours      decimal.Decimal    `json:"hours"`
	Resolution catalog.Resolution `json:"resolution"`
}

// Result contains every intermediate and aggregate value of the hours model.
type Result struct {
	ProductHours            decimal.Decimal `json:"productHours"`
	UserGroupHours          decimal.Decimal `json:"userGroupHours"`
	AccountSegmentHours     decimal.Decimal `json:"accountSegmentHours"`
	BaseProjectHours        decimal.Decimal `json:"baseProjectHours"`
	PMHours                 decimal.Decimal `json:"pmHours"`
	TotalUnits              decimal.Decimal `json:"totalUnits"`
	ShouldAddProjectManager bool            `json:"shouldAddProjectManager"`
	Contributions           []Contribution  `json:"contributions"`
}

// Unresolved lists the selected products that had no hours rule.
func (r Result) Unresolved() []string {
	return r.tagged(catalog.Unresolved)
}

// Inactive lists the selected products that have been retired.
func (r Result) Inactive() []string {
	return r.tagged(catalog.ResolvedInactive)
}

func (r Result) tagged(res catalog.Resolution) []string {
	var ids []string
	for _, c := range r.Contributions {
		if c.Resolution == res {
			ids = append(ids, c.ProductID)
		}
	}
	return ids
}

// Calculate derives project hours from a selection. It is a pure function of
// its inputs and never fails: unknown products and segments contribute zero.
func Calculate(sel Selection, book catalog.RuleBook) Result {
	ids := distinct(sel.ProductIDs)
	if len(ids) == 0 {
		return Result{
			ProductHours:        decimal.Zero,
			UserGroupHours:      decimal.Zero,
			AccountSegmentHours: decimal.Zero,
			BaseProjectHours:    decimal.Zero,
			PMHours:             decimal.Zero,
			TotalUnits:          maxUnits(sel.Units, nil),
			Contributions:       []Contribution{},
		}
	}

	policy := book.Policy
	productHours := decimal.Zero
	contributions := make([]Contribution, 0, len(ids))
	fields := make(map[catalog.UnitField]bool)

	for _, id := range ids {
		rule, res := book.Resolve(id)
		c := Contribution{ProductID: id, Hours: decimal.Zero, Resolution: res}
		if res.Resolved() {
			p, _ := book.Product(id)
			field := book.UnitFieldFor(p, rule)
			if field != "" {
				fields[field] = true
			}
			c.Hours = ruleHours(rule, unitsOf(sel.Units, field))
		} else if p, ok := book.Product(id); ok {
			// Unruled products still size the project through their family.
			if field := policy.FamilyUnits[p.Category]; field != "" {
				fields[field] = true
			}
		}
		productHours = productHours.Add(c.Hours)
		contributions = append(contributions, c)
	}

	totalUnits := maxUnits(sel.Units, fields)
	userGroupHours := UserGroupHours(totalUnits, policy)
	segmentHours := policy.SegmentAdjustment(sel.AccountSegment)
	base := productHours.Add(userGroupHours).Add(segmentHours)

	shouldAddPM := len(ids) >= policy.PMProductThreshold && policy.PMProductThreshold > 0
	if policy.PMUnitThreshold.IsPositive() && totalUnits.GreaterThanOrEqual(policy.PMUnitThreshold) {
		shouldAddPM = true
	}

	pmHours := decimal.Zero
	if shouldAddPM {
		pmHours = base.Mul(policy.PMSharePercent).Div(hundred)
	}

	return Result{
		ProductHours:            productHours,
		UserGroupHours:          userGroupHours,
		AccountSegmentHours:     segmentHours,
		BaseProjectHours:        base,
		PMHours:                 pmHours,
		TotalUnits:              totalUnits,
		ShouldAddProjectManager: shouldAddPM,
		Contributions:           contributions,
	}
}

// UserGroupHours rounds units up to whole groups and charges a fixed number
// of hours per group.
func UserGroupHours(units decimal.Decimal, policy catalog.Policy) decimal.Decimal {
	if !units.IsPositive() || !policy.UnitGroupSize.IsPositive() {
		return decimal.Zero
	}
	groups := units.Div(policy.UnitGroupSize).Ceil()
	return groups.Mul(policy.HoursPerUnitGroup)
}

func ruleHours(rule catalog.HoursRule, units decimal.Decimal) decimal.Decimal {
	switch rule.Kind {
	case catalog.RulePerUnit:
		return rule.Hours.Add(rule.HoursPerUnit.Mul(units))
	default:
		return rule.Hours
	}
}

func unitsOf(units map[catalog.UnitField]decimal.Decimal, field catalog.UnitField) decimal.Decimal {
	if field == "" {
		return decimal.Zero
	}
	v, ok := units[field]
	if !ok || v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// maxUnits takes the largest unit count among fields. A nil set means every
// supplied field is relevant.
func maxUnits(units map[catalog.UnitField]decimal.Decimal, fields map[catalog.UnitField]bool) decimal.Decimal {
	best := decimal.Zero
	for field, v := range units {
		if fields != nil && !fields[field] {
			continue
		}
		if v.GreaterThan(best) {
			best = v
		}
	}
	return best
}

func distinct(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
