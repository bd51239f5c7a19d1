package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Simplici0/sowhours/internal/db"
	"github.com/Simplici0/sowhours/internal/ledger"
)

// SQLiteLedgerStore persists ledgers as a header row plus ordered role rows.
type SQLiteLedgerStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteLedgerStore(conn *sql.DB) *SQLiteLedgerStore {
	return &SQLiteLedgerStore{db: conn, now: time.Now}
}

var _ ledger.Store = (*SQLiteLedgerStore)(nil)

func (s *SQLiteLedgerStore) LoadLedger(ctx context.Context, sowID string) (*ledger.Ledger, error) {
	var (
		hasBasis, shouldAdd, approved int
		base, pm, dismissed           string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT has_basis, base_project_hours, pm_hours, should_add_pm, removal_approved, dismissed_json
		FROM sow_ledgers
		WHERE sow_id = ?
	`, sowID).Scan(&hasBasis, &base, &pm, &shouldAdd, &approved, &dismissed)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.New(sowID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}

	l := ledger.New(sowID)
	if hasBasis != 0 {
		l.Basis = &ledger.Basis{
			BaseProjectHours:        parseDecimal(base),
			PMHours:                 parseDecimal(pm),
			ShouldAddProjectManager: shouldAdd != 0,
			RemovalApproved:         approved != 0,
		}
	}
	if err := json.Unmarshal([]byte(dismissed), &l.Dismissed); err != nil {
		return nil, fmt.Errorf("decode dismissed roles: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, role_config_id, rate_per_hour, default_rate, total_hours, total_cost, sync_state
		FROM ledger_rows
		WHERE sow_id = ?
		ORDER BY position
	`, sowID)
	if err != nil {
		return nil, fmt.Errorf("query ledger rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                          ledger.Row
			rate, defRate, hours, cost string
		)
		if err := rows.Scan(&r.ID, &r.Role, &r.RoleConfigID, &rate, &defRate, &hours, &cost, &r.Sync); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		r.RatePerHour = parseDecimal(rate)
		r.DefaultRate = parseDecimal(defRate)
		r.TotalHours = parseDecimal(hours)
		r.TotalCost = parseDecimal(cost)
		l.Rows = append(l.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return l, nil
}

// SaveLedger replaces the stored ledger in one transaction.
func (s *SQLiteLedgerStore) SaveLedger(ctx context.Context, l *ledger.Ledger) error {
	dismissed := l.Dismissed
	if dismissed == nil {
		dismissed = []string{}
	}
	dismissedJSON, err := json.Marshal(dismissed)
	if err != nil {
		return fmt.Errorf("encode dismissed roles: %w", err)
	}

	var b ledger.Basis
	if l.Basis != nil {
		b = *l.Basis
	}

	return db.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sow_ledgers (sow_id, has_basis, base_project_hours, pm_hours, should_add_pm, removal_approved, dismissed_json, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (sow_id) DO UPDATE SET
				has_basis = excluded.has_basis,
				base_project_hours = excluded.base_project_hours,
				pm_hours = excluded.pm_hours,
				should_add_pm = excluded.should_add_pm,
				removal_approved = excluded.removal_approved,
				dismissed_json = excluded.dismissed_json,
				updated_at = excluded.updated_at
		`,
			l.SOWID,
			boolToInt(l.Basis != nil),
			b.BaseProjectHours.String(),
			b.PMHours.String(),
			boolToInt(b.ShouldAddProjectManager),
			boolToInt(b.RemovalApproved),
			string(dismissedJSON),
			formatTime(s.now()),
		); err != nil {
			return fmt.Errorf("upsert ledger: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_rows WHERE sow_id = ?`, l.SOWID); err != nil {
			return fmt.Errorf("clear ledger rows: %w", err)
		}

		for i, r := range l.Rows {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO ledger_rows (id, sow_id, position, role, role_config_id, rate_per_hour, default_rate, total_hours, total_cost, sync_state)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				r.ID,
				l.SOWID,
				i,
				r.Role,
				r.RoleConfigID,
				r.RatePerHour.String(),
				r.DefaultRate.String(),
				r.TotalHours.String(),
				r.TotalCost.String(),
				string(r.Sync),
			); err != nil {
				return fmt.Errorf("insert ledger row %s: %w", r.ID, err)
			}
		}
		return nil
	})
}
