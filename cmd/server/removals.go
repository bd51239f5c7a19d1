package main

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/sowhours/internal/pmremoval"
)

type submitRemovalRequest struct {
	SOWID string `json:"sowId" validate:"required,max=128"`
	// HoursToRemove defaults to the SOW's current PM hours.
	HoursToRemove *decimal.Decimal `json:"hoursToRemove"`
	Reason        string           `json:"reason" validate:"required,max=4000"`
}

type decideRemovalRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Note   string `json:"note" validate:"max=4000"`
	Reason string `json:"reason" validate:"max=4000"`
}

type commentRequest struct {
	Comment    string `json:"comment" validate:"required,max=4000"`
	IsInternal bool   `json:"isInternal"`
}

type threadResponse struct {
	Request  *pmremoval.Request  `json:"request"`
	Comments []pmremoval.Comment `json:"comments"`
}

func (s *server) handleSubmitRemoval(w http.ResponseWriter, r *http.Request) {
	var req submitRemovalRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	segment, current, err := s.engine.RemovalBasis(r.Context(), req.SOWID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in := pmremoval.SubmitInput{
		SOWID:          req.SOWID,
		RequesterID:    currentUser(r),
		AccountSegment: segment,
		CurrentPMHours: current,
		Reason:         req.Reason,
	}
	if req.HoursToRemove != nil {
		in.HoursToRemove = *req.HoursToRemove
	}

	created, err := s.removals.Submit(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeThread(w, r, http.StatusCreated, created.ID)
}

func (s *server) handleListRemovals(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.removals.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("sowId")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []pmremoval.Request{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (s *server) handleRemovalDashboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.removals.Dashboard(r.Context(), strings.TrimSpace(r.URL.Query().Get("sowId")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []pmremoval.DashboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *server) handleGetRemoval(w http.ResponseWriter, r *http.Request) {
	s.writeThread(w, r, http.StatusOK, chi.URLParam(r, "id"))
}

func (s *server) handleDecideRemoval(w http.ResponseWriter, r *http.Request) {
	var req decideRemovalRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	var (
		decided *pmremoval.Request
		err     error
	)
	switch req.Action {
	case "approve":
		decided, err = s.removals.Approve(r.Context(), id, currentUser(r), req.Note)
	case "reject":
		reason := req.Reason
		if strings.TrimSpace(reason) == "" {
			reason = req.Note
		}
		decided, err = s.removals.Reject(r.Context(), id, currentUser(r), reason)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// The ledger reacts to the new state right away rather than on next read.
	if _, err := s.engine.Recompute(r.Context(), decided.SOWID); err != nil {
		s.logger.Warn("recompute after removal decision",
			zap.String("sow_id", decided.SOWID),
			zap.String("request_id", decided.ID),
			zap.Error(err),
		)
	}
	s.writeThread(w, r, http.StatusOK, decided.ID)
}

func (s *server) handleAddRemovalComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.removals.AddComment(r.Context(), id, currentUser(r), req.Comment, req.IsInternal); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeThread(w, r, http.StatusCreated, id)
}

func (s *server) writeThread(w http.ResponseWriter, r *http.Request, status int, id string) {
	req, comments, err := s.removals.Thread(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if comments == nil {
		comments = []pmremoval.Comment{}
	}
	writeJSON(w, status, threadResponse{Request: req, Comments: comments})
}
