package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Simplici0/sowhours/internal/pmremoval"
)

// SQLiteRemovalStore persists PM-hours-removal requests and their threads.
type SQLiteRemovalStore struct {
	db *sql.DB
}

func NewSQLiteRemovalStore(conn *sql.DB) *SQLiteRemovalStore {
	return &SQLiteRemovalStore{db: conn}
}

var _ pmremoval.Store = (*SQLiteRemovalStore)(nil)

const requestColumns = `id, sow_id, current_pm_hours, hours_to_remove, reason, status, requester_id,
	created_at, decided_by, decided_at, decision_note, financial_impact`

// CreateRequest relies on the partial unique index over pending requests, so
// two racing submissions for one SOW cannot both succeed.
func (s *SQLiteRemovalStore) CreateRequest(ctx context.Context, r *pmremoval.Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pm_hours_removal_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.SOWID,
		r.CurrentPMHours.String(),
		r.HoursToRemove.String(),
		r.Reason,
		string(r.Status),
		r.RequesterID,
		formatTime(r.CreatedAt),
		r.DecidedBy,
		nullableTime(r.DecidedAt),
		r.DecisionNote,
		r.FinancialImpact.String(),
	)
	if isUniqueViolation(err) {
		return pmremoval.ErrPendingExists
	}
	if err != nil {
		return fmt.Errorf("insert removal request: %w", err)
	}
	return nil
}

func (s *SQLiteRemovalStore) GetRequest(ctx context.Context, id string) (*pmremoval.Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM pm_hours_removal_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pmremoval.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// TransitionRequest is a compare-and-swap on status: only a pending request
// is updated, and the affected row count tells the winner apart.
func (s *SQLiteRemovalStore) TransitionRequest(ctx context.Context, id string, to pmremoval.Status, decidedBy, note string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pm_hours_removal_requests
		SET status = ?, decided_by = ?, decided_at = ?, decision_note = ?
		WHERE id = ? AND status = 'pending'
	`, string(to), decidedBy, formatTime(at), note, id)
	if err != nil {
		return fmt.Errorf("update removal request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM pm_hours_removal_requests WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check removal request existence: %w", err)
	}
	if !exists {
		return pmremoval.ErrNotFound
	}
	return pmremoval.ErrNotPending
}

func (s *SQLiteRemovalStore) ListRequests(ctx context.Context, sowID string) ([]pmremoval.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM pm_hours_removal_requests`
	var args []any
	if sowID != "" {
		query += ` WHERE sow_id = ?`
		args = append(args, sowID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query removal requests: %w", err)
	}
	defer rows.Close()

	var out []pmremoval.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate removal requests: %w", err)
	}
	return out, nil
}

func (s *SQLiteRemovalStore) AddComment(ctx context.Context, c *pmremoval.Comment) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO pm_hours_removal_comments (id, request_id, author_id, comment, is_internal, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.RequestID, c.AuthorID, c.Comment, boolToInt(c.IsInternal), formatTime(c.CreatedAt)); err != nil {
		return fmt.Errorf("insert removal comment: %w", err)
	}
	return nil
}

func (s *SQLiteRemovalStore) ListComments(ctx context.Context, requestID string) ([]pmremoval.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, author_id, comment, is_internal, created_at
		FROM pm_hours_removal_comments
		WHERE request_id = ?
		ORDER BY created_at, rowid
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query removal comments: %w", err)
	}
	defer rows.Close()

	var out []pmremoval.Comment
	for rows.Next() {
		var (
			c       pmremoval.Comment
			created string
		)
		if err := rows.Scan(&c.ID, &c.RequestID, &c.AuthorID, &c.Comment, &c.IsInternal, &created); err != nil {
			return nil, fmt.Errorf("scan removal comment: %w", err)
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate removal comments: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (pmremoval.Request, error) {
	var (
		r                       pmremoval.Request
		current, remove, impact string
		created                 string
		decidedAt               sql.NullString
	)
	err := sc.Scan(
		&r.ID,
		&r.SOWID,
		&current,
		&remove,
		&r.Reason,
		&r.Status,
		&r.RequesterID,
		&created,
		&r.DecidedBy,
		&decidedAt,
		&r.DecisionNote,
		&impact,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return pmremoval.Request{}, err
	}
	if err != nil {
		return pmremoval.Request{}, fmt.Errorf("scan removal request: %w", err)
	}
	r.CurrentPMHours = parseDecimal(current)
	r.HoursToRemove = parseDecimal(remove)
	r.FinancialImpact = parseDecimal(impact)
	r.CreatedAt = parseTime(created)
	r.DecidedAt = parseNullableTime(decidedAt)
	return r, nil
}
