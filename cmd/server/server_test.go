package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Simplici0/sowhours/internal/catalog"
	"github.com/Simplici0/sowhours/internal/config"
	"github.com/Simplici0/sowhours/internal/ledger"
	"github.com/Simplici0/sowhours/internal/pmremoval"
	"github.com/Simplici0/sowhours/internal/pricing"
	"github.com/Simplici0/sowhours/internal/seed"
	"github.com/Simplici0/sowhours/internal/sow"
	"github.com/Simplici0/sowhours/internal/testutil"
)

const testSecret = "test-secret"

type testEnv struct {
	handler  http.Handler
	srv      *server
	author   *http.Cookie
	approver *http.Cookie
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	database := testutil.NewDB(t)
	ctx := context.Background()

	book, err := catalog.Default()
	require.NoError(t, err)
	_, err = seed.Run(ctx, database, seed.Config{Book: book, ApproverEmails: []string{"approver@example.com"}})
	require.NoError(t, err)

	srv, err := newServer(ctx, database, config.Config{SessionSecret: testSecret}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(srv.close)

	cookie := func(userID string) *http.Cookie {
		return &http.Cookie{Name: sessionCookieName, Value: srv.auth.createSessionValue(userID)}
	}
	return testEnv{
		handler:  srv.routes(),
		srv:      srv,
		author:   cookie("author-1"),
		approver: cookie("approver@example.com"),
	}
}

func (e testEnv) do(t *testing.T, who *http.Cookie, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		req.AddCookie(who)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s = %s, want %s", name, got, want)
	}
}

func roleID(t *testing.T, l *ledger.Ledger, role string) string {
	t.Helper()
	for _, r := range l.Rows {
		if r.Role == role {
			return r.ID
		}
	}
	t.Fatalf("no %s row", role)
	return ""
}

var threeProducts = map[string]any{
	"productIds":     []string{"lead-routing", "contact-routing", "case-routing"},
	"units":          map[string]any{"orchestration_units": 20},
	"accountSegment": "EC",
}

func TestAuth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, nil, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, nil, http.MethodGet, "/catalog/products", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged := &http.Cookie{Name: sessionCookieName, Value: newAuthService(nil, "other").createSessionValue("approver@example.com")}
	rec = e.do(t, forged, http.MethodGet, "/catalog/products", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A user header is not an identity.
	req := httptest.NewRequest(http.MethodGet, "/catalog/products", nil)
	req.Header.Set("X-User-ID", "approver")
	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, e.author, http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), sessionCookieName+"=;")
}

func TestCatalogEndpoints(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, e.author, http.MethodGet, "/catalog/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := decode[[]catalog.Product](t, rec)
	assert.Len(t, products, 11)
	assert.Equal(t, "lead-routing", products[0].ID)

	rec = e.do(t, e.author, http.MethodGet, "/catalog/pricing-roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]catalog.PricingRole](t, rec), 4)
}

func TestSelectionLedgerAndTotals(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, e.author, http.MethodPut, "/sows/sow-1/selection", threeProducts)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"baseProjectHours":47`)
	view := decode[sow.View](t, rec)
	assertDecimal(t, "total", view.Costs.Totals.Total, "10457.5")

	rec = e.do(t, e.author, http.MethodGet, "/sows/sow-1/hours", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pmHours":21.15`)

	rec = e.do(t, e.author, http.MethodPost, "/sows/sow-1/ledger/roles", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	added := decode[struct {
		Row ledger.Row `json:"row"`
	}](t, rec)

	path := "/sows/sow-1/ledger/roles/" + added.Row.ID
	rec = e.do(t, e.author, http.MethodPatch, path, map[string]any{"field": "role", "value": "Solutions Architect"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(t, e.author, http.MethodPatch, path, map[string]any{"field": "totalHours", "value": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, e.author, http.MethodPatch, path, map[string]any{"field": "totalHours", "value": "lots"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"totalHours: must be a number"}`, rec.Body.String())

	rec = e.do(t, e.author, http.MethodPut, "/sows/sow-1/discount", map[string]any{"type": "fixed", "amount": 557.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, e.author, http.MethodGet, "/sows/sow-1/totals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	costs := decode[pricing.Result](t, rec)
	assertDecimal(t, "subtotal", costs.Breakdown.Subtotal, "11557.5")
	assertDecimal(t, "total", costs.Totals.Total, "11000")

	rec = e.do(t, e.author, http.MethodGet, "/sows/sow-1/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	l := decode[ledger.Ledger](t, rec)
	assert.Len(t, l.Rows, 3)

	rec = e.do(t, e.author, http.MethodPost, "/sows/sow-1/ledger/roles/"+added.Row.ID+"/resync", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, e.author, http.MethodDelete, "/sows/sow-1/ledger/roles/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestValidation(t *testing.T) {
	e := newTestEnv(t)

	cases := []struct {
		name, method, path string
		body               any
		want               string
	}{
		{"discount type", http.MethodPut, "/sows/sow-1/discount", map[string]any{"type": "bogus"}, "type: must be one of none fixed percentage"},
		{"discount amount", http.MethodPut, "/sows/sow-1/discount", map[string]any{"type": "fixed"}, "amount: is required for a fixed discount"},
		{"unknown field", http.MethodPut, "/sows/sow-1/selection", map[string]any{"products": []string{"x"}}, ""},
		{"empty product id", http.MethodPut, "/sows/sow-1/selection", map[string]any{"productIds": []string{""}}, "productIds[0]: is required"},
		{"role field", http.MethodPatch, "/sows/sow-1/ledger/roles/x", map[string]any{"field": "cost", "value": 1}, "field: must be one of role ratePerHour totalHours"},
		{"removal reason", http.MethodPost, "/pm-hours-removal", map[string]any{"sowId": "sow-1"}, "reason: is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, e.author, tc.method, tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			if tc.want != "" {
				assert.Equal(t, tc.want, decode[errorBody](t, rec).Error)
			}
		})
	}
}

func TestRemovalWorkflow(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, e.author, http.MethodPut, "/sows/sow-1/selection", threeProducts)
	require.Equal(t, http.StatusOK, rec.Code)
	pmRow := roleID(t, decode[sow.View](t, rec).Ledger, ledger.RoleProjectManager)

	rec = e.do(t, e.author, http.MethodDelete, "/sows/sow-1/ledger/roles/"+pmRow, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	removal := decode[sow.RemoveResult](t, rec)
	assert.Equal(t, ledger.RemovalRequestRequired, removal.Outcome)

	rec = e.do(t, e.author, http.MethodPost, "/pm-hours-removal", map[string]any{"sowId": "sow-1", "reason": "customer has a PMO"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[threadResponse](t, rec)
	assert.Equal(t, pmremoval.StatusPending, created.Request.Status)
	assert.Equal(t, "author-1", created.Request.RequesterID)
	assertDecimal(t, "impact", created.Request.FinancialImpact, "5287.5")
	assert.Empty(t, created.Comments)

	rec = e.do(t, e.author, http.MethodPost, "/pm-hours-removal", map[string]any{"sowId": "sow-1", "reason": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, e.author, http.MethodPatch, "/sows/sow-1/ledger/roles/"+pmRow, map[string]any{"field": "totalHours", "value": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	reqPath := "/pm-hours-removal/" + created.Request.ID
	rec = e.do(t, e.author, http.MethodPost, reqPath+"/comments", map[string]any{"comment": "please review"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, decode[threadResponse](t, rec).Comments, 1)

	rec = e.do(t, e.author, http.MethodPut, reqPath, map[string]any{"action": "approve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, e.approver, http.MethodPut, reqPath, map[string]any{"action": "reject"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, e.approver, http.MethodPut, reqPath, map[string]any{"action": "approve", "note": "ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decided := decode[threadResponse](t, rec)
	assert.Equal(t, pmremoval.StatusApproved, decided.Request.Status)
	assert.Len(t, decided.Comments, 2)

	rec = e.do(t, e.approver, http.MethodPut, reqPath, map[string]any{"action": "reject", "reason": "changed my mind"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, e.author, http.MethodPost, "/pm-hours-removal", map[string]any{"sowId": "sow-1", "reason": "once more"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, e.author, http.MethodGet, "/sows/sow-1/totals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	costs := decode[pricing.Result](t, rec)
	assertDecimal(t, "subtotal", costs.Breakdown.Subtotal, "9400")
	assertDecimal(t, "excluded", costs.Breakdown.ExcludedProjectManager, "5287.5")

	rec = e.do(t, e.author, http.MethodGet, "/pm-hours-removal?sowId=sow-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]pmremoval.Request](t, rec), 1)

	rec = e.do(t, e.author, http.MethodGet, "/pm-hours-removal/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]pmremoval.DashboardEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].CommentCount)

	rec = e.do(t, e.author, http.MethodGet, "/pm-hours-removal/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitRemoval_IneligibleSegment(t *testing.T) {
	e := newTestEnv(t)

	sel := map[string]any{
		"productIds":     threeProducts["productIds"],
		"units":          threeProducts["units"],
		"accountSegment": "ENT",
	}
	rec := e.do(t, e.author, http.MethodPut, "/sows/sow-2/selection", sel)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, e.author, http.MethodPost, "/pm-hours-removal", map[string]any{"sowId": "sow-2", "reason": "r"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Error, "accountSegment")
}

func TestSelectionFromFlags(t *testing.T) {
	sel, err := selectionFromFlags([]string{"lead-routing"}, map[string]string{"orchestration_units": " 120 "}, " ec ")
	require.NoError(t, err)
	assert.Equal(t, "EC", sel.AccountSegment)
	assertDecimal(t, "units", sel.Units[catalog.UnitOrchestration], "120")

	_, err = selectionFromFlags(nil, map[string]string{"orchestration_units": "many"}, "")
	assert.Error(t, err)
}
