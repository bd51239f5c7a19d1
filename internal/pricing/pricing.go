package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

const projectManagerRole = "Project Manager"

var hundred = decimal.NewFromInt(100)

// DiscountType selects how a discount reduces the subtotal.
type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

// Line is one costed role row.
type Line struct {
	Role      string
	TotalCost decimal.Decimal
}

// Discount is the per-SOW discount policy. Only the field matching Type is
// read; the other is ignored.
type Discount struct {
	Type       DiscountType     `json:"type"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
}

// Breakdown contains the intermediate values of the aggregation.
type Breakdown struct {
	Subtotal               decimal.Decimal `json:"subtotal"`
	ExcludedProjectManager decimal.Decimal `json:"excludedProjectManager"`
	Discount               decimal.Decimal `json:"discount"`
}

// Totals contains roll-up values.
type Totals struct {
	Total decimal.Decimal `json:"total"`
}

// Result groups the full aggregation output.
type Result struct {
	Breakdown Breakdown `json:"breakdown"`
	Totals    Totals    `json:"totals"`
}

// Calculate sums role costs and applies the discount. Project Manager lines
// are left out of the subtotal when PM-hours removal was approved, even if the
// row still exists. The total is never negative.
func Calculate(lines []Line, discount Discount, removalApproved bool) Result {
	subtotal := decimal.Zero
	excluded := decimal.Zero
	for _, l := range lines {
		if removalApproved && isProjectManager(l.Role) {
			excluded = excluded.Add(l.TotalCost)
			continue
		}
		subtotal = subtotal.Add(l.TotalCost)
	}

	total := ApplyDiscount(subtotal, discount)

	return Result{
		Breakdown: Breakdown{
			Subtotal:               subtotal,
			ExcludedProjectManager: excluded,
			Discount:               subtotal.Sub(total),
		},
		Totals: Totals{Total: total},
	}
}

// ApplyDiscount reduces subtotal by the discount, clamping at zero.
func ApplyDiscount(subtotal decimal.Decimal, discount Discount) decimal.Decimal {
	total := subtotal
	switch discount.Type {
	case DiscountFixed:
		if discount.Amount != nil {
			total = subtotal.Sub(*discount.Amount)
		}
	case DiscountPercentage:
		if discount.Percentage != nil {
			total = subtotal.Mul(decimal.NewFromInt(1).Sub(discount.Percentage.Div(hundred)))
		}
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func isProjectManager(role string) bool {
	return strings.EqualFold(strings.TrimSpace(role), projectManagerRole)
}
