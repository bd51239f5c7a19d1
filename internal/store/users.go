package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteUserStore answers authorization questions about users.
type SQLiteUserStore struct {
	db *sql.DB
}

func NewSQLiteUserStore(conn *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: conn}
}

// IsApprover reports whether the user may decide PM-hours-removal requests.
// The session identity is matched against the user id or, case-insensitively,
// the email approvers are seeded by. Unknown users are not approvers.
func (s *SQLiteUserStore) IsApprover(ctx context.Context, identity string) (bool, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false, nil
	}
	var approver bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE is_approver = 1 AND (id = ? OR email = ?))`,
		identity, strings.ToLower(identity),
	).Scan(&approver)
	if err != nil {
		return false, fmt.Errorf("query user approver flag: %w", err)
	}
	return approver, nil
}
