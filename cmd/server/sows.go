package main

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Simplici0/sowhours/internal/apperr"
	"github.com/Simplici0/sowhours/internal/catalog"
	"github.com/Simplici0/sowhours/internal/hours"
	"github.com/Simplici0/sowhours/internal/ledger"
	"github.com/Simplici0/sowhours/internal/pricing"
)

type selectionRequest struct {
	ProductIDs     []string                   `json:"productIds" validate:"dive,required"`
	Units          map[string]decimal.Decimal `json:"units"`
	AccountSegment string                     `json:"accountSegment" validate:"max=32"`
}

type updateRoleRequest struct {
	Field string          `json:"field" validate:"required,oneof=role ratePerHour totalHours"`
	Value json.RawMessage `json:"value" validate:"required"`
}

type discountRequest struct {
	Type       string           `json:"type" validate:"required,oneof=none fixed percentage"`
	Amount     *decimal.Decimal `json:"amount"`
	Percentage *decimal.Decimal `json:"percentage"`
}

func (s *server) handleCatalogProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.GetActiveProducts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *server) handleCatalogRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.catalog.GetActivePricingRoles(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if roles == nil {
		roles = []catalog.PricingRole{}
	}
	writeJSON(w, http.StatusOK, roles)
}

func (s *server) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sel := hours.Selection{
		ProductIDs:     req.ProductIDs,
		Units:          make(map[catalog.UnitField]decimal.Decimal, len(req.Units)),
		AccountSegment: req.AccountSegment,
	}
	for k, v := range req.Units {
		sel.Units[catalog.UnitField(k)] = v
	}

	view, err := s.engine.SetSelection(r.Context(), chi.URLParam(r, "sowID"), sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handleGetHours(w http.ResponseWriter, r *http.Request) {
	est, err := s.engine.Estimate(r.Context(), chi.URLParam(r, "sowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (s *server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.Recompute(r.Context(), chi.URLParam(r, "sowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Ledger)
}

func (s *server) handleAddRole(w http.ResponseWriter, r *http.Request) {
	view, row, err := s.engine.AddRole(r.Context(), chi.URLParam(r, "sowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"row": row, "view": view})
}

func (s *server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := rawValue(req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	view, err := s.engine.UpdateRole(r.Context(), chi.URLParam(r, "sowID"), chi.URLParam(r, "rowID"), ledger.Field(req.Field), value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RemoveRole(r.Context(), chi.URLParam(r, "sowID"), chi.URLParam(r, "rowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == ledger.RemovalRequestRequired {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (s *server) handleResyncRole(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.Resync(r.Context(), chi.URLParam(r, "sowID"), chi.URLParam(r, "rowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) handlePutDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	view, err := s.engine.SetDiscount(r.Context(), chi.URLParam(r, "sowID"), pricing.Discount{
		Type:       pricing.DiscountType(req.Type),
		Amount:     req.Amount,
		Percentage: req.Percentage,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Costs)
}

func (s *server) handleGetTotals(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.Recompute(r.Context(), chi.URLParam(r, "sowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Costs)
}

// rawValue accepts a JSON string or number and returns its text.
func rawValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", apperr.Invalid("value", "invalid string")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", apperr.Invalid("value", "must be a string or a number")
	}
	return n.String(), nil
}
