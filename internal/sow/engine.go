// Package sow ties the hours model, the role ledger, the PM-hours-removal
// workflow and the cost aggregator together for one statement of work.
package sow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/sowhours/internal/apperr"
	"github.com/Simplici0/sowhours/internal/catalog"
	"github.com/Simplici0/sowhours/internal/hours"
	"github.com/Simplici0/sowhours/internal/ledger"
	"github.com/Simplici0/sowhours/internal/pmremoval"
	"github.com/Simplici0/sowhours/internal/pricing"
)

// Profile is the persisted input of a SOW.
type Profile struct {
	SOWID     string           `json:"sowId"`
	Selection hours.Selection  `json:"selection"`
	Discount  pricing.Discount `json:"discount"`
}

// ProfileStore persists profiles. GetProfile returns an empty profile with a
// "none" discount for unknown SOWs.
type ProfileStore interface {
	GetProfile(ctx context.Context, sowID string) (*Profile, error)
	SaveSelection(ctx context.Context, sowID string, sel hours.Selection) error
	SaveDiscount(ctx context.Context, sowID string, d pricing.Discount) error
}

// RemovalStates reports the folded PM-hours-removal state of a SOW.
type RemovalStates interface {
	RemovalState(ctx context.Context, sowID string) (pmremoval.State, error)
}

// View is everything a client needs to render a SOW's pricing section.
type View struct {
	Estimate hours.Estimate  `json:"estimate"`
	Removal  pmremoval.State `json:"pmHoursRemoval"`
	Ledger   *ledger.Ledger  `json:"ledger"`
	Costs    pricing.Result  `json:"costs"`
}

type Engine struct {
	catalog  catalog.Provider
	profiles ProfileStore
	removals RemovalStates
	ledgers  *ledger.Service
	logger   *zap.Logger
}

func NewEngine(provider catalog.Provider, profiles ProfileStore, removals RemovalStates, ledgers *ledger.Service, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		catalog:  provider,
		profiles: profiles,
		removals: removals,
		ledgers:  ledgers,
		logger:   logger,
	}
}

// snapshot gathers the inputs of one recomputation. The removal state is read
// fresh every time.
type snapshot struct {
	book    catalog.RuleBook
	profile *Profile
	removal pmremoval.State
}

func (s snapshot) env() ledger.Env {
	return ledger.Env{Removal: s.removal, Segment: s.profile.Selection.AccountSegment, Book: s.book}
}

func (e *Engine) load(ctx context.Context, sowID string) (snapshot, error) {
	if sowID == "" {
		return snapshot{}, apperr.Invalid("sowId", "is required")
	}
	book, err := catalog.Snapshot(ctx, e.catalog)
	if err != nil {
		return snapshot{}, fmt.Errorf("snapshot catalog: %w", err)
	}
	profile, err := e.profiles.GetProfile(ctx, sowID)
	if err != nil {
		return snapshot{}, fmt.Errorf("get profile: %w", err)
	}
	state, err := e.removals.RemovalState(ctx, sowID)
	if err != nil {
		return snapshot{}, fmt.Errorf("get removal state: %w", err)
	}
	return snapshot{book: book, profile: profile, removal: state}, nil
}

func (e *Engine) estimate(sowID string, snap snapshot) hours.Estimate {
	result := hours.Calculate(snap.profile.Selection, snap.book)
	if missing := result.Unresolved(); len(missing) > 0 {
		e.logger.Warn("selected products have no hours rule",
			zap.String("sow_id", sowID),
			zap.Strings("product_ids", missing),
		)
	}
	if retired := result.Inactive(); len(retired) > 0 {
		e.logger.Info("selected products are inactive",
			zap.String("sow_id", sowID),
			zap.Strings("product_ids", retired),
		)
	}
	return hours.NewEstimate(result, snap.removal.Approved())
}

// Estimate computes hours and the role distribution without touching the ledger.
func (e *Engine) Estimate(ctx context.Context, sowID string) (hours.Estimate, error) {
	snap, err := e.load(ctx, sowID)
	if err != nil {
		return hours.Estimate{}, err
	}
	return e.estimate(sowID, snap), nil
}

// Recompute runs the full pipeline and syncs the ledger.
func (e *Engine) Recompute(ctx context.Context, sowID string) (*View, error) {
	snap, err := e.load(ctx, sowID)
	if err != nil {
		return nil, err
	}
	l, est, err := e.sync(ctx, sowID, snap)
	if err != nil {
		return nil, err
	}
	return e.view(snap, est, l), nil
}

func (e *Engine) sync(ctx context.Context, sowID string, snap snapshot) (*ledger.Ledger, hours.Estimate, error) {
	est := e.estimate(sowID, snap)
	l, err := e.ledgers.Sync(ctx, sowID, ledger.BasisFrom(est.Hours, est.RemovalApproved), snap.env())
	if err != nil {
		return nil, hours.Estimate{}, err
	}
	return l, est, nil
}

func (e *Engine) view(snap snapshot, est hours.Estimate, l *ledger.Ledger) *View {
	return &View{
		Estimate: est,
		Removal:  snap.removal,
		Ledger:   l,
		Costs:    pricing.Calculate(l.Lines(), snap.profile.Discount, snap.removal.Approved()),
	}
}

// SetSelection stores a new selection and recomputes.
func (e *Engine) SetSelection(ctx context.Context, sowID string, sel hours.Selection) (*View, error) {
	if sowID == "" {
		return nil, apperr.Invalid("sowId", "is required")
	}
	sel.AccountSegment = catalog.NormalizeSegment(sel.AccountSegment)
	for f, n := range sel.Units {
		if n.IsNegative() {
			return nil, apperr.Invalid("units."+string(f), "must not be negative")
		}
	}
	if err := e.profiles.SaveSelection(ctx, sowID, sel); err != nil {
		return nil, fmt.Errorf("save selection: %w", err)
	}
	return e.Recompute(ctx, sowID)
}

// SetDiscount stores the discount policy and returns the new view.
func (e *Engine) SetDiscount(ctx context.Context, sowID string, d pricing.Discount) (*View, error) {
	if sowID == "" {
		return nil, apperr.Invalid("sowId", "is required")
	}
	if err := ValidateDiscount(d); err != nil {
		return nil, err
	}
	if err := e.profiles.SaveDiscount(ctx, sowID, d); err != nil {
		return nil, fmt.Errorf("save discount: %w", err)
	}
	return e.Recompute(ctx, sowID)
}

// ValidateDiscount checks the field that matches the discount type.
func ValidateDiscount(d pricing.Discount) error {
	switch d.Type {
	case pricing.DiscountNone:
		return nil
	case pricing.DiscountFixed:
		if d.Amount == nil {
			return apperr.Invalid("amount", "is required for a fixed discount")
		}
		if d.Amount.IsNegative() {
			return apperr.Invalid("amount", "must not be negative")
		}
	case pricing.DiscountPercentage:
		if d.Percentage == nil {
			return apperr.Invalid("percentage", "is required for a percentage discount")
		}
		if d.Percentage.IsNegative() || d.Percentage.GreaterThan(hundred) {
			return apperr.Invalid("percentage", "must be between 0 and 100")
		}
	default:
		return apperr.Invalid("type", "must be one of none, fixed, percentage")
	}
	return nil
}

// RemovalBasis returns what a new PM-hours-removal request is measured
// against: the SOW's account segment and its current Project Manager hours.
// The ledger row wins over the computed share when it exists.
func (e *Engine) RemovalBasis(ctx context.Context, sowID string) (string, decimal.Decimal, error) {
	snap, err := e.load(ctx, sowID)
	if err != nil {
		return "", decimal.Zero, err
	}
	l, est, err := e.sync(ctx, sowID, snap)
	if err != nil {
		return "", decimal.Zero, err
	}

	pm := est.Distribution.ProjectManagerHours
	for _, r := range l.Rows {
		if ledger.IsProjectManager(r.Role) {
			pm = r.TotalHours
			break
		}
	}
	return snap.profile.Selection.AccountSegment, pm, nil
}
