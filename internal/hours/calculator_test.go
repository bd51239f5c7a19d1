package hours

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/sowhours/internal/catalog"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func defaultBook(t *testing.T) catalog.RuleBook {
	t.Helper()
	book, err := catalog.Default()
	require.NoError(t, err)
	return book
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Fatalf("%s = %s, want %s", name, got, want)
	}
}

func TestCalculate_SingleRoutingProductScalesByUnitGroups(t *testing.T) {
	book := defaultBook(t)

	got := Calculate(Selection{
		ProductIDs: []string{"lead-routing"},
		Units:      map[catalog.UnitField]decimal.Decimal{catalog.UnitOrchestration: d("120")},
	}, book)

	assertDecimal(t, "productHours", got.ProductHours, "10")
	assertDecimal(t, "totalUnits", got.TotalUnits, "120")
	assertDecimal(t, "userGroupHours", got.UserGroupHours, "15") // ceil(120/50)=3 groups x 5h
	assertDecimal(t, "accountSegmentHours", got.AccountSegmentHours, "0")
	assertDecimal(t, "baseProjectHours", got.BaseProjectHours, "25")
	assertDecimal(t, "pmHours", got.PMHours, "0")
	assert.False(t, got.ShouldAddProjectManager)
}

func TestCalculate_FourProductsWithSegmentAddsProjectManager(t *testing.T) {
	book := defaultBook(t)

	got := Calculate(Selection{
		ProductIDs:     []string{"lead-routing", "contact-routing", "matching", "deduplication"},
		Units:          map[catalog.UnitField]decimal.Decimal{catalog.UnitOrchestration: d("10")},
		AccountSegment: "EC",
	}, book)

	assert.True(t, got.ShouldAddProjectManager)
	assertDecimal(t, "productHours", got.ProductHours, "34")
	assertDecimal(t, "userGroupHours", got.UserGroupHours, "5")
	assertDecimal(t, "accountSegmentHours", got.AccountSegmentHours, "8")
	assertDecimal(t, "baseProjectHours", got.BaseProjectHours, "47")
	assertDecimal(t, "pmHours", got.PMHours, "21.15") // 45% of 47
}

func TestCalculate_UnitThresholdAddsProjectManager(t *testing.T) {
	book := defaultBook(t)

	below := Calculate(Selection{
		ProductIDs: []string{"lead-routing"},
		Units:      map[catalog.UnitField]decimal.Decimal{catalog.UnitOrchestration: d("199")},
	}, book)
	at := Calculate(Selection{
		ProductIDs: []string{"lead-routing"},
		Units:      map[catalog.UnitField]decimal.Decimal{catalog.UnitOrchestration: d("200")},
	}, book)

	assert.False(t, below.ShouldAddProjectManager)
	assert.True(t, at.ShouldAddProjectManager)
	assertDecimal(t, "pmHours", at.PMHours, "13.5") // (10 + 4*5) * 0.45
}

func TestCalculate_TotalUnitsIsMaxOfRelevantFamilies(t *testing.T) {
	book := defaultBook(t)

	got := Calculate(Selection{
		ProductIDs: []string{"lead-routing", "bookit-forms"},
		Units: map[catalog.UnitField]decimal.Decimal{
			catalog.UnitOrchestration: d("120"),
			catalog.UnitBookItForms:   d("80"),
			catalog.UnitBookItLinks:   d("500"), // no BookIt Links product selected
		},
	}, book)

	assertDecimal(t, "totalUnits", got.TotalUnits, "120")
	assertDecimal(t, "productHours", got.ProductHours, "18")
	assertDecimal(t, "userGroupHours", got.UserGroupHours, "15")
	assert.False(t, got.ShouldAddProjectManager)
}

func TestCalculate_PerUnitRule(t *testing.T) {
	book := defaultBook(t)

	got := Calculate(Selection{
		ProductIDs: []string{"bookit-handoff"},
		Units:      map[catalog.UnitField]decimal.Decimal{catalog.UnitBookItHandoff: d("100")},
	}, book)

	assertDecimal(t, "productHours", got.ProductHours, "8") // 6 + 0.02*100
	assertDecimal(t, "userGroupHours", got.UserGroupHours, "10")
	assertDecimal(t, "baseProjectHours", got.BaseProjectHours, "18")
}

func TestCalculate_EmptySelectionIsZeroExceptUnits(t *testing.T) {
	book := defaultBook(t)

	got := Calculate(Selection{
		Units: map[catalog.UnitField]decimal.Decimal{
			catalog.UnitOrchestration: d("120"),
			catalog.UnitBookItForms:   d("300"),
		},
		AccountSegment: "EC",
	}, book)

	assertDecimal(t, "totalUnits", got.TotalUnits, "300")
	assertDecimal(t, "productHours", got.ProductHours, "0")
	assertDecimal(t, "userGroupHours", got.UserGroupHours, "0")
	assertDecimal(t, "accountSegmentHours", got.AccountSegmentHours, "0")
	assertDecimal(t, "baseProjectHours", got.BaseProjectHours, "0")
	assertDecimal(t, "pmHours", got.PMHours, "0")
	assert.False(t, got.ShouldAddProjectManager)
	assert.Empty(t, got.Contributions)
}

func TestCalculate_UnresolvedProductsContributeZero(t *testing.T) {
	book := defaultBook(t)

	got := Calculate(Selection{
		ProductIDs: []string{"view-manager", "ghost", "matching"},
	}, book)

	assertDecimal(t, "productHours", got.ProductHours, "6")
	assert.Equal(t, []string{"view-manager", "ghost"}, got.Unresolved())
	assert.True(t, got.ShouldAddProjectManager, "three distinct selections meet the product threshold")
}

func TestCalculate_InactiveProductsAreReportedApart(t *testing.T) {
	book, err := catalog.Parse(strings.NewReader(`
products:
  - id: retired
    name: Retired
    category: routing
    active: false
  - id: live
    name: Live
    category: routing
family_rules:
  - family: routing
    hours: 10
`))
	require.NoError(t, err)

	got := Calculate(Selection{ProductIDs: []string{"retired", "live", "ghost"}}, book)

	assertDecimal(t, "productHours", got.ProductHours, "10")
	assert.Equal(t, []string{"retired"}, got.Inactive())
	assert.Equal(t, []string{"ghost"}, got.Unresolved())
	assert.Equal(t, catalog.ResolvedInactive, got.Contributions[0].Resolution)
}

func TestCalculate_DuplicatesCountOnce(t *testing.T) {
	book := defaultBook(t)

	got := Calculate(Selection{
		ProductIDs: []string{"matching", "matching", "deduplication", "matching"},
	}, book)

	assertDecimal(t, "productHours", got.ProductHours, "14")
	assert.Len(t, got.Contributions, 2)
	assert.False(t, got.ShouldAddProjectManager)
}

func TestCalculate_UnknownSegmentAndNegativeUnitsAreZero(t *testing.T) {
	book := defaultBook(t)

	got := Calculate(Selection{
		ProductIDs:     []string{"lead-routing"},
		Units:          map[catalog.UnitField]decimal.Decimal{catalog.UnitOrchestration: d("-40")},
		AccountSegment: "XYZ",
	}, book)

	assertDecimal(t, "totalUnits", got.TotalUnits, "0")
	assertDecimal(t, "userGroupHours", got.UserGroupHours, "0")
	assertDecimal(t, "accountSegmentHours", got.AccountSegmentHours, "0")
	assertDecimal(t, "baseProjectHours", got.BaseProjectHours, "10")
}

func TestCalculate_IsDeterministic(t *testing.T) {
	book := defaultBook(t)
	sel := Selection{
		ProductIDs: []string{"case-routing", "bookit-links", "bookit-handoff", "ghost"},
		Units: map[catalog.UnitField]decimal.Decimal{
			catalog.UnitOrchestration: d("75"),
			catalog.UnitBookItLinks:   d("310"),
			catalog.UnitBookItHandoff: d("42"),
		},
		AccountSegment: "mm",
	}

	first := Calculate(sel, book)
	for i := 0; i < 50; i++ {
		again := Calculate(sel, book)
		if diff := cmp.Diff(first, again, decimalEqual); diff != "" {
			t.Fatalf("iteration %d differs (-first +again):\n%s", i, diff)
		}

		a, err := json.Marshal(first)
		require.NoError(t, err)
		b, err := json.Marshal(again)
		require.NoError(t, err)
		require.Equal(t, string(a), string(b))
	}
}
