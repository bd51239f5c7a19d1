package seed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Simplici0/sowhours/internal/catalog"
	"github.com/Simplici0/sowhours/internal/db"
)

// Config contains the values required by startup seed.
type Config struct {
	Book           catalog.RuleBook
	ApproverEmails []string
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// Run copies the rule book and approver list into the database. It is
// idempotent: a second run with the same input changes nothing.
func Run(ctx context.Context, conn *sql.DB, cfg Config) (Stats, error) {
	stats := Stats{}
	err := db.WithinTx(ctx, conn, func(tx *sql.Tx) error {
		for _, p := range cfg.Book.Products {
			if err := ensureProduct(ctx, tx, p, &stats); err != nil {
				return err
			}
		}
		for _, r := range cfg.Book.FamilyRules {
			if err := ensureRule(ctx, tx, r, &stats); err != nil {
				return err
			}
		}
		for _, r := range cfg.Book.ProductRules {
			if err := ensureRule(ctx, tx, r, &stats); err != nil {
				return err
			}
		}
		for _, r := range cfg.Book.Roles {
			if err := ensureRole(ctx, tx, r, &stats); err != nil {
				return err
			}
		}
		if err := ensurePolicy(ctx, tx, cfg.Book.Policy, &stats); err != nil {
			return err
		}
		for _, email := range cfg.ApproverEmails {
			if err := ensureApprover(ctx, tx, email, &stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// upsert inserts when exists reports false, otherwise runs update and counts
// it only if a row actually changed.
func upsert(ctx context.Context, tx *sql.Tx, stats *Stats, what, existsQuery string, existsArgs []any, insert string, insertArgs []any, update string, updateArgs []any) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, existsQuery, existsArgs...).Scan(&exists); err != nil {
		return fmt.Errorf("check %s existence: %w", what, err)
	}
	if !exists {
		if _, err := tx.ExecContext(ctx, insert, insertArgs...); err != nil {
			return fmt.Errorf("insert %s: %w", what, err)
		}
		stats.Inserts++
		return nil
	}

	res, err := tx.ExecContext(ctx, update, updateArgs...)
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows for %s: %w", what, err)
	}
	if n > 0 {
		stats.Updates++
	}
	return nil
}

func ensureProduct(ctx context.Context, tx *sql.Tx, p catalog.Product, stats *Stats) error {
	return upsert(ctx, tx, stats, "product "+p.ID,
		`SELECT EXISTS(SELECT 1 FROM products WHERE id = ? LIMIT 1)`, []any{p.ID},
		`INSERT INTO products (id, name, category, is_active, sort_order) VALUES (?, ?, ?, ?, ?)`,
		[]any{p.ID, p.Name, p.Category, p.IsActive, p.SortOrder},
		`
		UPDATE products
		SET name = ?, category = ?, is_active = ?, sort_order = ?
		WHERE id = ?
		  AND (name IS NOT ? OR category IS NOT ? OR is_active IS NOT ? OR sort_order IS NOT ?)
		`,
		[]any{p.Name, p.Category, p.IsActive, p.SortOrder, p.ID, p.Name, p.Category, p.IsActive, p.SortOrder},
	)
}

func ensureRule(ctx context.Context, tx *sql.Tx, r catalog.HoursRule, stats *Stats) error {
	hours, perUnit, uf := r.Hours.String(), r.HoursPerUnit.String(), string(r.UnitField)
	return upsert(ctx, tx, stats, fmt.Sprintf("%s rule %s", r.Scope, r.Key),
		`SELECT EXISTS(SELECT 1 FROM product_hours_rules WHERE scope = ? AND rule_key = ? LIMIT 1)`,
		[]any{string(r.Scope), r.Key},
		`
		INSERT INTO product_hours_rules (scope, rule_key, kind, hours, hours_per_unit, unit_field)
		VALUES (?, ?, ?, ?, ?, ?)
		`,
		[]any{string(r.Scope), r.Key, string(r.Kind), hours, perUnit, uf},
		`
		UPDATE product_hours_rules
		SET kind = ?, hours = ?, hours_per_unit = ?, unit_field = ?
		WHERE scope = ? AND rule_key = ?
		  AND (kind IS NOT ? OR hours IS NOT ? OR hours_per_unit IS NOT ? OR unit_field IS NOT ?)
		`,
		[]any{string(r.Kind), hours, perUnit, uf, string(r.Scope), r.Key, string(r.Kind), hours, perUnit, uf},
	)
}

func ensureRole(ctx context.Context, tx *sql.Tx, r catalog.PricingRole, stats *Stats) error {
	rate := r.DefaultRatePerHour.String()
	return upsert(ctx, tx, stats, "pricing role "+r.ID,
		`SELECT EXISTS(SELECT 1 FROM pricing_roles WHERE id = ? LIMIT 1)`, []any{r.ID},
		`INSERT INTO pricing_roles (id, role_name, default_rate_per_hour, is_active) VALUES (?, ?, ?, ?)`,
		[]any{r.ID, r.RoleName, rate, r.IsActive},
		`
		UPDATE pricing_roles
		SET role_name = ?, default_rate_per_hour = ?, is_active = ?
		WHERE id = ?
		  AND (role_name IS NOT ? OR default_rate_per_hour IS NOT ? OR is_active IS NOT ?)
		`,
		[]any{r.RoleName, rate, r.IsActive, r.ID, r.RoleName, rate, r.IsActive},
	)
}

func ensurePolicy(ctx context.Context, tx *sql.Tx, p catalog.Policy, stats *Stats) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode catalog policy: %w", err)
	}
	doc := string(raw)
	return upsert(ctx, tx, stats, "catalog policy",
		`SELECT EXISTS(SELECT 1 FROM catalog_policy WHERE id = 1)`, nil,
		`INSERT INTO catalog_policy (id, document) VALUES (1, ?)`, []any{doc},
		`UPDATE catalog_policy SET document = ? WHERE id = 1 AND document IS NOT ?`, []any{doc, doc},
	)
}

func ensureApprover(ctx context.Context, tx *sql.Tx, email string, stats *Stats) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	return upsert(ctx, tx, stats, "approver "+email,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ? LIMIT 1)`, []any{email},
		`INSERT INTO users (id, email, is_approver, created_at) VALUES (?, ?, 1, ?)`,
		[]any{uuid.NewString(), email, time.Now().UTC().Format(time.RFC3339)},
		`UPDATE users SET is_approver = 1 WHERE email = ? AND is_approver = 0`, []any{email},
	)
}
