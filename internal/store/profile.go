package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Simplici0/sowhours/internal/hours"
	"github.com/Simplici0/sowhours/internal/pricing"
	"github.com/Simplici0/sowhours/internal/sow"
)

// SQLiteProfileStore persists each SOW's selection and discount.
type SQLiteProfileStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteProfileStore(conn *sql.DB) *SQLiteProfileStore {
	return &SQLiteProfileStore{db: conn, now: time.Now}
}

var _ sow.ProfileStore = (*SQLiteProfileStore)(nil)

func (s *SQLiteProfileStore) GetProfile(ctx context.Context, sowID string) (*sow.Profile, error) {
	var (
		selJSON         string
		discountType    string
		amount, percent sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT selection_json, discount_type, discount_amount, discount_percentage
		FROM sow_profiles
		WHERE sow_id = ?
	`, sowID).Scan(&selJSON, &discountType, &amount, &percent)
	if errors.Is(err, sql.ErrNoRows) {
		return &sow.Profile{SOWID: sowID, Discount: pricing.Discount{Type: pricing.DiscountNone}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sow profile: %w", err)
	}

	p := &sow.Profile{
		SOWID: sowID,
		Discount: pricing.Discount{
			Type:       pricing.DiscountType(discountType),
			Amount:     parseNullableDecimal(amount),
			Percentage: parseNullableDecimal(percent),
		},
	}
	if err := json.Unmarshal([]byte(selJSON), &p.Selection); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	return p, nil
}

func (s *SQLiteProfileStore) SaveSelection(ctx context.Context, sowID string, sel hours.Selection) error {
	raw, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sow_profiles (sow_id, account_segment, selection_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (sow_id) DO UPDATE SET
			account_segment = excluded.account_segment,
			selection_json = excluded.selection_json,
			updated_at = excluded.updated_at
	`, sowID, sel.AccountSegment, string(raw), formatTime(s.now())); err != nil {
		return fmt.Errorf("upsert selection: %w", err)
	}
	return nil
}

func (s *SQLiteProfileStore) SaveDiscount(ctx context.Context, sowID string, d pricing.Discount) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sow_profiles (sow_id, discount_type, discount_amount, discount_percentage, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (sow_id) DO UPDATE SET
			discount_type = excluded.discount_type,
			discount_amount = excluded.discount_amount,
			discount_percentage = excluded.discount_percentage,
			updated_at = excluded.updated_at
	`, sowID, string(d.Type), nullableDecimal(d.Amount), nullableDecimal(d.Percentage), formatTime(s.now())); err != nil {
		return fmt.Errorf("upsert discount: %w", err)
	}
	return nil
}
