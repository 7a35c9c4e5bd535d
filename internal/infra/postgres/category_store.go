package postgres

import (
	"context"
	"fmt"

	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
)

// ListCategories implements ledger.Store
func (s *Store) ListCategories(ctx context.Context) ([]*ledger.Category, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, parent_id
		FROM categories
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Category
	for rows.Next() {
		var c ledger.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ListCategoryRules implements ledger.Store. Rule order is the configured
// position; the first matching rule wins, so order is part of the contract.
func (s *Store) ListCategoryRules(ctx context.Context) ([]ledger.CategoryRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pattern, category_id
		FROM category_rules
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list category rules: %w", err)
	}
	defer rows.Close()

	var out []ledger.CategoryRule
	for rows.Next() {
		var r ledger.CategoryRule
		if err := rows.Scan(&r.Pattern, &r.CategoryID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceCategoryRules implements ledger.Store. The swap is transactional so a
// concurrent mapper pass sees either the old rule set or the new one, never a
// partial mix.
func (s *Store) ReplaceCategoryRules(ctx context.Context, rules []ledger.CategoryRule) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin rules transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM category_rules`); err != nil {
		return fmt.Errorf("failed to clear category rules: %w", err)
	}

	for i, r := range rules {
		_, err := tx.Exec(ctx, `
			INSERT INTO category_rules (pattern, category_id, position)
			VALUES ($1, $2, $3)
		`, r.Pattern, r.CategoryID, i)
		if err != nil {
			return fmt.Errorf("failed to insert rule %q: %w", r.Pattern, err)
		}
	}

	return tx.Commit(ctx)
}
