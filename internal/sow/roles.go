package sow

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/sowhours/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

// RemoveResult is the outcome of a row deletion. When RequestRequired is set
// the row was kept and the client should open a PM-hours-removal request
// prefilled with SuggestedHours.
type RemoveResult struct {
	View           *View                `json:"view"`
	Outcome        ledger.RemoveOutcome `json:"outcome"`
	SuggestedHours decimal.Decimal      `json:"suggestedHoursToRemove"`
}

// The role edits below recompute first so they always act on a ledger that
// reflects the current selection and removal state.

func (e *Engine) UpdateRole(ctx context.Context, sowID, rowID string, field ledger.Field, value string) (*View, error) {
	return e.editRoles(ctx, sowID, func(snap snapshot) (*ledger.Ledger, error) {
		return e.ledgers.UpdateRole(ctx, sowID, rowID, field, value, snap.env())
	})
}

func (e *Engine) AddRole(ctx context.Context, sowID string) (*View, ledger.Row, error) {
	var row ledger.Row
	v, err := e.editRoles(ctx, sowID, func(snap snapshot) (*ledger.Ledger, error) {
		l, r, err := e.ledgers.AddRole(ctx, sowID, snap.env())
		row = r
		return l, err
	})
	return v, row, err
}

func (e *Engine) Resync(ctx context.Context, sowID, rowID string) (*View, error) {
	return e.editRoles(ctx, sowID, func(snap snapshot) (*ledger.Ledger, error) {
		return e.ledgers.Resync(ctx, sowID, rowID, snap.env())
	})
}

func (e *Engine) RemoveRole(ctx context.Context, sowID, rowID string) (*RemoveResult, error) {
	var (
		outcome   ledger.RemoveOutcome
		suggested decimal.Decimal
	)
	v, err := e.editRoles(ctx, sowID, func(snap snapshot) (*ledger.Ledger, error) {
		l, o, err := e.ledgers.RemoveRole(ctx, sowID, rowID, snap.env())
		if err != nil {
			return nil, err
		}
		outcome = o
		if row, ok := l.Row(rowID); ok {
			suggested = row.TotalHours
		}
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	return &RemoveResult{View: v, Outcome: outcome, SuggestedHours: suggested}, nil
}

func (e *Engine) editRoles(ctx context.Context, sowID string, fn func(snapshot) (*ledger.Ledger, error)) (*View, error) {
	snap, err := e.load(ctx, sowID)
	if err != nil {
		return nil, err
	}
	_, est, err := e.sync(ctx, sowID, snap)
	if err != nil {
		return nil, err
	}
	l, err := fn(snap)
	if err != nil {
		return nil, err
	}
	return e.view(snap, est, l), nil
}
