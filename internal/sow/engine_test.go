package sow_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Simplici0/sowhours/internal/apperr"
	"github.com/Simplici0/sowhours/internal/catalog"
	"github.com/Simplici0/sowhours/internal/events"
	"github.com/Simplici0/sowhours/internal/hours"
	"github.com/Simplici0/sowhours/internal/ledger"
	"github.com/Simplici0/sowhours/internal/pmremoval"
	"github.com/Simplici0/sowhours/internal/pricing"
	"github.com/Simplici0/sowhours/internal/seed"
	"github.com/Simplici0/sowhours/internal/sow"
	"github.com/Simplici0/sowhours/internal/store"
	"github.com/Simplici0/sowhours/internal/testutil"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Fatalf("%s = %s, want %s", name, got, want)
	}
}

type harness struct {
	engine   *sow.Engine
	removals *pmremoval.Service
}

func newHarness(t *testing.T) harness {
	t.Helper()
	database := testutil.NewDB(t)
	book, err := catalog.Default()
	require.NoError(t, err)
	_, err = seed.Run(context.Background(), database, seed.Config{Book: book})
	require.NoError(t, err)

	logger := zap.NewNop()
	removals := pmremoval.NewService(store.NewSQLiteRemovalStore(database), book.Policy, events.NewLogPublisher(logger), logger)
	engine := sow.NewEngine(
		store.NewSQLiteCatalog(database),
		store.NewSQLiteProfileStore(database),
		removals,
		ledger.NewService(store.NewSQLiteLedgerStore(database), logger),
		logger,
	)
	return harness{engine: engine, removals: removals}
}

// threeRoutingProducts is an EC deal with three routing products and 20
// orchestration units: 34 product hours, 5 group hours, 8 segment hours.
func threeRoutingProducts() hours.Selection {
	return hours.Selection{
		ProductIDs:     []string{"lead-routing", "contact-routing", "case-routing"},
		Units:          map[catalog.UnitField]decimal.Decimal{catalog.UnitOrchestration: d("20")},
		AccountSegment: "ec",
	}
}

func roleRow(t *testing.T, v *sow.View, role string) ledger.Row {
	t.Helper()
	for _, r := range v.Ledger.Rows {
		if r.Role == role {
			return r
		}
	}
	t.Fatalf("no %s row in %+v", role, v.Ledger.Rows)
	return ledger.Row{}
}

func TestEngine_SelectionFlowsIntoLedgerAndTotals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v, err := h.engine.SetSelection(ctx, "sow-1", threeRoutingProducts())
	require.NoError(t, err)

	assertDecimal(t, "base", v.Estimate.Hours.BaseProjectHours, "47")
	assert.Equal(t, pmremoval.StateNone, v.Removal)
	assertDecimal(t, "os cost", roleRow(t, v, ledger.RoleOnboardingSpecialist).TotalCost, "5170")
	assertDecimal(t, "pm cost", roleRow(t, v, ledger.RoleProjectManager).TotalCost, "5287.5")
	assertDecimal(t, "total", v.Costs.Totals.Total, "10457.5")

	pct := d("10")
	v, err = h.engine.SetDiscount(ctx, "sow-1", pricing.Discount{Type: pricing.DiscountPercentage, Percentage: &pct})
	require.NoError(t, err)
	assertDecimal(t, "discounted", v.Costs.Totals.Total, "9411.75")
}

func TestEngine_ApprovedRemovalReshapesLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v, err := h.engine.SetSelection(ctx, "sow-1", threeRoutingProducts())
	require.NoError(t, err)
	pm := roleRow(t, v, ledger.RoleProjectManager)

	res, err := h.engine.RemoveRole(ctx, "sow-1", pm.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RemovalRequestRequired, res.Outcome)
	assertDecimal(t, "suggested", res.SuggestedHours, "21.15")

	segment, current, err := h.engine.RemovalBasis(ctx, "sow-1")
	require.NoError(t, err)
	assert.Equal(t, "EC", segment)
	assertDecimal(t, "current pm", current, "21.15")

	req, err := h.removals.Submit(ctx, pmremoval.SubmitInput{
		SOWID:          "sow-1",
		RequesterID:    "author-1",
		AccountSegment: segment,
		CurrentPMHours: current,
		Reason:         "customer has an in-house PM",
	})
	require.NoError(t, err)
	assertDecimal(t, "impact", req.FinancialImpact, "5287.5")

	_, err = h.engine.UpdateRole(ctx, "sow-1", pm.ID, ledger.FieldTotalHours, "1")
	require.ErrorIs(t, err, ledger.ErrRowLocked)

	_, err = h.removals.Approve(ctx, req.ID, "approver-1", "")
	require.NoError(t, err)

	v, err = h.engine.Recompute(ctx, "sow-1")
	require.NoError(t, err)
	assert.Equal(t, pmremoval.StateApproved, v.Removal)
	assertDecimal(t, "os hours", roleRow(t, v, ledger.RoleOnboardingSpecialist).TotalHours, "47")
	assertDecimal(t, "pm hours kept", roleRow(t, v, ledger.RoleProjectManager).TotalHours, "21.15")
	assertDecimal(t, "distribution pm", v.Estimate.Distribution.ProjectManagerHours, "0")
	assertDecimal(t, "subtotal", v.Costs.Breakdown.Subtotal, "9400")
	assertDecimal(t, "excluded", v.Costs.Breakdown.ExcludedProjectManager, "5287.5")

	// Specialist hours cannot be edited away from the full base.
	specialist := roleRow(t, v, ledger.RoleOnboardingSpecialist)
	v, err = h.engine.UpdateRole(ctx, "sow-1", specialist.ID, ledger.FieldTotalHours, "10")
	require.NoError(t, err)
	assertDecimal(t, "os hours", roleRow(t, v, ledger.RoleOnboardingSpecialist).TotalHours, "47")
}

func TestEngine_IneligibleSegmentDeletesProjectManager(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sel := threeRoutingProducts()
	sel.AccountSegment = "ENT"
	v, err := h.engine.SetSelection(ctx, "sow-1", sel)
	require.NoError(t, err)

	res, err := h.engine.RemoveRole(ctx, "sow-1", roleRow(t, v, ledger.RoleProjectManager).ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Removed, res.Outcome)
	assert.Len(t, res.View.Ledger.Rows, 1)

	// A later recompute does not bring it back.
	v, err = h.engine.Recompute(ctx, "sow-1")
	require.NoError(t, err)
	assert.Len(t, v.Ledger.Rows, 1)
}

func TestEngine_RoleEditsAndResync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.SetSelection(ctx, "sow-1", threeRoutingProducts())
	require.NoError(t, err)

	v, row, err := h.engine.AddRole(ctx, "sow-1")
	require.NoError(t, err)
	assert.Len(t, v.Ledger.Rows, 3)

	v, err = h.engine.UpdateRole(ctx, "sow-1", row.ID, ledger.FieldRole, "Solutions Architect")
	require.NoError(t, err)
	v, err = h.engine.UpdateRole(ctx, "sow-1", row.ID, ledger.FieldTotalHours, "4")
	require.NoError(t, err)
	assertDecimal(t, "sa cost", roleRow(t, v, "Solutions Architect").TotalCost, "1100")
	assertDecimal(t, "total", v.Costs.Totals.Total, "11557.5")

	specialist := roleRow(t, v, ledger.RoleOnboardingSpecialist)
	_, err = h.engine.UpdateRole(ctx, "sow-1", specialist.ID, ledger.FieldTotalHours, "30")
	require.NoError(t, err)

	sel := threeRoutingProducts()
	sel.ProductIDs = sel.ProductIDs[:2]
	v, err = h.engine.SetSelection(ctx, "sow-1", sel)
	require.NoError(t, err)
	assertDecimal(t, "diverged kept", roleRow(t, v, ledger.RoleOnboardingSpecialist).TotalHours, "30")

	v, err = h.engine.Resync(ctx, "sow-1", specialist.ID)
	require.NoError(t, err)
	// 20 product + 5 group + 8 segment, no PM below the thresholds.
	assertDecimal(t, "resynced", roleRow(t, v, ledger.RoleOnboardingSpecialist).TotalHours, "33")
}

func TestEngine_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.SetSelection(ctx, "", threeRoutingProducts())
	assert.ErrorIs(t, err, apperr.ErrValidation)

	bad := threeRoutingProducts()
	bad.Units[catalog.UnitOrchestration] = d("-1")
	_, err = h.engine.SetSelection(ctx, "sow-1", bad)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	over := d("120")
	neg := d("-5")
	for _, disc := range []pricing.Discount{
		{Type: pricing.DiscountFixed},
		{Type: pricing.DiscountFixed, Amount: &neg},
		{Type: pricing.DiscountPercentage, Percentage: &over},
		{Type: "bogus"},
	} {
		_, err = h.engine.SetDiscount(ctx, "sow-1", disc)
		assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", disc)
	}
}
