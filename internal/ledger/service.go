package ledger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Store persists whole ledgers. LoadLedger returns an empty ledger for a SOW
// that has none yet.
type Store interface {
	LoadLedger(ctx context.Context, sowID string) (*Ledger, error)
	SaveLedger(ctx context.Context, l *Ledger) error
}

// Service runs ledger mutations as load, mutate, save. Writes are
// last-write-wins per SOW; within one process they are serialised.
type Service struct {
	store  Store
	logger *zap.Logger
	mu     sync.Mutex
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Get loads a SOW's ledger.
func (s *Service) Get(ctx context.Context, sowID string) (*Ledger, error) {
	l, err := s.store.LoadLedger(ctx, sowID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return l, nil
}

// Sync applies a basis and saves the ledger when anything changed.
func (s *Service) Sync(ctx context.Context, sowID string, basis Basis, env Env) (*Ledger, error) {
	return s.mutate(ctx, sowID, func(l *Ledger) (bool, error) {
		res := l.Sync(basis, env)
		for _, role := range res.Unpriced {
			s.logger.Warn("seeded role missing from pricing catalog",
				zap.String("sow_id", sowID),
				zap.String("role", role),
				zap.String("fallback_rate", env.Book.Policy.FallbackRatePerHour.String()),
			)
		}
		if len(res.Seeded) > 0 {
			s.logger.Info("seeded ledger roles", zap.String("sow_id", sowID), zap.Strings("roles", res.Seeded))
		}
		return res.Changed, nil
	})
}

func (s *Service) UpdateRole(ctx context.Context, sowID, rowID string, field Field, value string, env Env) (*Ledger, error) {
	return s.mutate(ctx, sowID, func(l *Ledger) (bool, error) {
		_, err := l.UpdateRole(rowID, field, value, env)
		return err == nil, err
	})
}

func (s *Service) AddRole(ctx context.Context, sowID string, env Env) (*Ledger, Row, error) {
	var row Row
	l, err := s.mutate(ctx, sowID, func(l *Ledger) (bool, error) {
		row = l.AddRole(env)
		return true, nil
	})
	return l, row, err
}

func (s *Service) RemoveRole(ctx context.Context, sowID, rowID string, env Env) (*Ledger, RemoveOutcome, error) {
	var outcome RemoveOutcome
	l, err := s.mutate(ctx, sowID, func(l *Ledger) (bool, error) {
		var err error
		outcome, err = l.RemoveRole(rowID, env)
		return outcome == Removed, err
	})
	return l, outcome, err
}

func (s *Service) Resync(ctx context.Context, sowID, rowID string, env Env) (*Ledger, error) {
	return s.mutate(ctx, sowID, func(l *Ledger) (bool, error) {
		_, err := l.Resync(rowID, env)
		return err == nil, err
	})
}

func (s *Service) mutate(ctx context.Context, sowID string, fn func(*Ledger) (bool, error)) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.store.LoadLedger(ctx, sowID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	changed, err := fn(l)
	if err != nil {
		return nil, err
	}
	if !changed {
		return l, nil
	}
	if err := s.store.SaveLedger(ctx, l); err != nil {
		return nil, fmt.Errorf("save ledger: %w", err)
	}
	return l, nil
}
