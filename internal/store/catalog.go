package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Simplici0/sowhours/internal/catalog"
	"github.com/Simplici0/sowhours/internal/db"
)

// SQLiteCatalog reads the seeded catalog. It implements catalog.Provider.
type SQLiteCatalog struct {
	db db.DBTX
}

func NewSQLiteCatalog(conn db.DBTX) *SQLiteCatalog {
	return &SQLiteCatalog{db: conn}
}

var _ catalog.Provider = (*SQLiteCatalog)(nil)

func (s *SQLiteCatalog) GetActiveProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, is_active, sort_order
		FROM products
		WHERE is_active = 1
		ORDER BY sort_order, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []catalog.Product
	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.IsActive, &p.SortOrder); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// GetProductHoursRule returns the product's own rule, else its family's.
func (s *SQLiteCatalog) GetProductHoursRule(ctx context.Context, productID string) (catalog.HoursRule, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.scope, r.rule_key, r.kind, r.hours, r.hours_per_unit, r.unit_field
		FROM products p
		JOIN product_hours_rules r
		  ON (r.scope = 'product' AND r.rule_key = p.id)
		  OR (r.scope = 'family' AND r.rule_key = p.category)
		WHERE p.id = ?
		ORDER BY CASE r.scope WHEN 'product' THEN 0 ELSE 1 END
		LIMIT 1
	`, productID)

	var (
		rule               catalog.HoursRule
		hours, perUnit, uf string
	)
	err := row.Scan(&rule.Scope, &rule.Key, &rule.Kind, &hours, &perUnit, &uf)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.HoursRule{}, false, nil
	}
	if err != nil {
		return catalog.HoursRule{}, false, fmt.Errorf("query hours rule: %w", err)
	}
	rule.Hours = parseDecimal(hours)
	rule.HoursPerUnit = parseDecimal(perUnit)
	rule.UnitField = catalog.UnitField(uf)
	return rule, true, nil
}

func (s *SQLiteCatalog) GetActivePricingRoles(ctx context.Context) ([]catalog.PricingRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role_name, default_rate_per_hour, is_active
		FROM pricing_roles
		WHERE is_active = 1
		ORDER BY role_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query pricing roles: %w", err)
	}
	defer rows.Close()

	var roles []catalog.PricingRole
	for rows.Next() {
		var (
			r    catalog.PricingRole
			rate string
		)
		if err := rows.Scan(&r.ID, &r.RoleName, &rate, &r.IsActive); err != nil {
			return nil, fmt.Errorf("scan pricing role: %w", err)
		}
		r.DefaultRatePerHour = parseDecimal(rate)
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pricing roles: %w", err)
	}
	return roles, nil
}

// GetPolicy falls back to the embedded defaults when nothing was seeded.
func (s *SQLiteCatalog) GetPolicy(ctx context.Context) (catalog.Policy, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM catalog_policy WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		book, err := catalog.Default()
		if err != nil {
			return catalog.Policy{}, err
		}
		return book.Policy, nil
	}
	if err != nil {
		return catalog.Policy{}, fmt.Errorf("query catalog policy: %w", err)
	}

	var p catalog.Policy
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return catalog.Policy{}, fmt.Errorf("decode catalog policy: %w", err)
	}
	return p, nil
}
