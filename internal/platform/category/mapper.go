// Package category assigns chart-of-accounts categories to uncategorized
// canonical transactions using an ordered rule list. The mapping itself is a
// pure function, so re-running a pass after a rule change is safe.
package category

import (
	"context"
	"fmt"
	"strings"

	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

// RuleSource supplies the ordered rule list and the COA taxonomy. Both are
// loaded fresh at the start of every pass so a configuration change is picked
// up without a restart.
type RuleSource interface {
	ListCategories(ctx context.Context) ([]*ledger.Category, error)
	ListCategoryRules(ctx context.Context) ([]ledger.CategoryRule, error)
}

// Result counts one mapper pass
type Result struct {
	Categorized int
	NeedsManual int // left uncategorized for the operator
}

// Mapper applies the rule list to uncategorized transactions
type Mapper struct {
	store  ledger.Store
	rules  RuleSource
	logger *logger.Logger
}

// NewMapper creates a new category mapper. rules is typically the store
// itself; tests inject a static source.
func NewMapper(store ledger.Store, rules RuleSource, log *logger.Logger) *Mapper {
	return &Mapper{
		store:  store,
		rules:  rules,
		logger: log.WithField("component", "category"),
	}
}

// Run performs one mapper pass over every uncategorized transaction
func (m *Mapper) Run(ctx context.Context) (Result, error) {
	var res Result

	rules, err := m.rules.ListCategoryRules(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load category rules: %w", err)
	}
	categories, err := m.rules.ListCategories(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load categories: %w", err)
	}
	leaves := LeafIndex(categories)

	txs, err := m.store.ListTransactions(ctx, ledger.TxFilter{Uncategorized: true})
	if err != nil {
		return res, fmt.Errorf("failed to list uncategorized transactions: %w", err)
	}

	for _, tx := range txs {
		categoryID := Assign(rules, leaves, tx.Description, tx.RawCategory)
		if categoryID == nil {
			res.NeedsManual++
			continue
		}
		if err := m.store.SetCategory(ctx, tx.ID, categoryID); err != nil {
			return res, fmt.Errorf("failed to set category on %s: %w", tx.ID, err)
		}
		res.Categorized++
	}

	m.logger.Info("category pass complete",
		"categorized", res.Categorized,
		"needs_manual", res.NeedsManual,
		"rules", len(rules))
	return res, nil
}

// LeafIndex builds a lowercase name → ID index of leaf categories for the
// vendor-category fallback
func LeafIndex(categories []*ledger.Category) map[string]string {
	leaves := make(map[string]string)
	for _, c := range categories {
		if c.IsLeaf() {
			leaves[strings.ToLower(c.Name)] = c.ID
		}
	}
	return leaves
}

// Assign is the pure mapping decision: the first rule whose pattern matches
// the description wins; failing that, a vendor raw category that names a
// known leaf category exactly is used; otherwise nil, meaning the transaction
// needs manual categorization. Identical input and rule set always yield the
// same answer.
func Assign(rules []ledger.CategoryRule, leaves map[string]string, description, rawCategory string) *string {
	desc := strings.ToLower(description)
	for _, r := range rules {
		if r.Pattern == "" {
			continue
		}
		if strings.Contains(desc, strings.ToLower(r.Pattern)) {
			id := r.CategoryID
			return &id
		}
	}

	if rawCategory != "" {
		if id, ok := leaves[strings.ToLower(rawCategory)]; ok {
			leaf := id
			return &leaf
		}
	}
	return nil
}
