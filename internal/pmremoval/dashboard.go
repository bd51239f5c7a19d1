package pmremoval

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const dashboardFanOut = 4

// DashboardEntry is the read-only summary shown to approvers.
type DashboardEntry struct {
	RequestID       string          `json:"requestId"`
	SOWID           string          `json:"sowId"`
	Status          Status          `json:"status"`
	RequesterID     string          `json:"requesterId"`
	Reason          string          `json:"reason"`
	CreatedAt       time.Time       `json:"createdAt"`
	Elapsed         time.Duration   `json:"elapsed"`
	ElapsedHours    float64         `json:"elapsedHours"`
	HoursToRemove   decimal.Decimal `json:"hoursToRemove"`
	FinancialImpact decimal.Decimal `json:"financialImpact"`
	CommentCount    int             `json:"commentCount"`
}

// Dashboard summarises requests for one SOW, or all of them when sowID is
// empty. Bad numeric values and clock skew degrade to zero instead of failing
// the read.
func (s *Service) Dashboard(ctx context.Context, sowID string) ([]DashboardEntry, error) {
	reqs, err := s.store.ListRequests(ctx, sowID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	now := s.now()
	entries := make([]DashboardEntry, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dashboardFanOut)
	for i := range reqs {
		r := reqs[i]
		entries[i] = summarize(r, now)
		g.Go(func() error {
			comments, err := s.store.ListComments(gctx, r.ID)
			if err != nil {
				s.logger.Warn("dashboard comment count unavailable",
					zap.String("request_id", r.ID), zap.Error(err))
				return nil
			}
			entries[i].CommentCount = len(comments)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return entries, nil
}

func summarize(r Request, now time.Time) DashboardEntry {
	elapsed := time.Duration(0)
	if !r.CreatedAt.IsZero() && now.After(r.CreatedAt) {
		elapsed = now.Sub(r.CreatedAt)
	}

	hours := r.HoursToRemove
	if hours.IsNegative() {
		hours = decimal.Zero
	}

	return DashboardEntry{
		RequestID:       r.ID,
		SOWID:           r.SOWID,
		Status:          r.Status,
		RequesterID:     r.RequesterID,
		Reason:          r.Reason,
		CreatedAt:       r.CreatedAt,
		Elapsed:         elapsed,
		ElapsedHours:    elapsed.Hours(),
		HoursToRemove:   hours,
		FinancialImpact: FinancialImpact(hours),
	}
}
