package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is a mutex-guarded in-memory Store. It backs unit tests and local
// development; the postgres implementation is the production store.
type MemStore struct {
	mu         sync.RWMutex
	txs        map[string]*Transaction
	cursors    map[Source]*SyncCursor
	runs       map[uuid.UUID]*Run
	runOrder   []uuid.UUID
	accounts   map[string]*ExternalAccount // keyed source|externalID
	categories []*Category
	rules      []CategoryRule
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		txs:      make(map[string]*Transaction),
		cursors:  make(map[Source]*SyncCursor),
		runs:     make(map[uuid.UUID]*Run),
		accounts: make(map[string]*ExternalAccount),
	}
}

// SeedCategories loads the COA taxonomy and rule list, replacing any prior set
func (s *MemStore) SeedCategories(categories []*Category, rules []CategoryRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append([]*Category(nil), categories...)
	s.rules = append([]CategoryRule(nil), rules...)
}

func copyTx(t *Transaction) *Transaction {
	c := *t
	c.SourceRefs = append([]SourceRef(nil), t.SourceRefs...)
	if t.CategoryID != nil {
		v := *t.CategoryID
		c.CategoryID = &v
	}
	if t.MatchedTxID != nil {
		v := *t.MatchedTxID
		c.MatchedTxID = &v
	}
	if t.NextPushAt != nil {
		v := *t.NextPushAt
		c.NextPushAt = &v
	}
	return &c
}

// UpsertTransaction implements Store
func (s *MemStore) UpsertTransaction(ctx context.Context, tx *Transaction) (UpsertOutcome, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.txs[tx.ID]
	if !ok {
		c := copyTx(tx)
		if c.MatchStatus == "" {
			c.MatchStatus = MatchUnmatched
		}
		if c.PushStatus == "" {
			c.PushStatus = PushPending
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		s.txs[c.ID] = c
		return OutcomeCreated, nil
	}

	// Same ID must mean the same identity
	if !existing.HasRef(tx.SourceRefs[0].Source, tx.SourceRefs[0].ExternalID) {
		return "", ErrIdentityConflict
	}

	// Only description and posted date may change on re-ingest
	if existing.Description == tx.Description && existing.PostedDate.Equal(tx.PostedDate) {
		return OutcomeUnchanged, nil
	}
	existing.Description = tx.Description
	existing.PostedDate = tx.PostedDate
	existing.UpdatedAt = now
	return OutcomeUpdated, nil
}

// GetTransaction implements Store
func (s *MemStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTx(tx), nil
}

// ListTransactions implements Store
func (s *MemStore) ListTransactions(ctx context.Context, f TxFilter) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Transaction
	for _, tx := range s.txs {
		if f.MatchStatus != nil && tx.MatchStatus != *f.MatchStatus {
			continue
		}
		if f.Source != nil && tx.PrimarySource() != *f.Source {
			continue
		}
		if f.Uncategorized && tx.CategoryID != nil {
			continue
		}
		if f.CreatedAfter != nil && !tx.CreatedAt.After(*f.CreatedAfter) {
			continue
		}
		out = append(out, copyTx(tx))
	}

	sortTxs(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// sortTxs orders by posted date then ID for deterministic listings
func sortTxs(txs []*Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].PostedDate.Equal(txs[j].PostedDate) {
			return txs[i].PostedDate.Before(txs[j].PostedDate)
		}
		return txs[i].ID < txs[j].ID
	})
}

// SetCategory implements Store
func (s *MemStore) SetCategory(ctx context.Context, id string, categoryID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return ErrNotFound
	}
	if categoryID == nil {
		tx.CategoryID = nil
	} else {
		v := *categoryID
		tx.CategoryID = &v
	}
	tx.UpdatedAt = time.Now().UTC()
	return nil
}

// TransitionMatch implements Store
func (s *MemStore) TransitionMatch(ctx context.Context, id string, from, to MatchStatus, matchedTxID *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return false, ErrNotFound
	}
	if tx.MatchStatus != from {
		return false, nil
	}
	tx.MatchStatus = to
	if matchedTxID == nil {
		tx.MatchedTxID = nil
	} else {
		v := *matchedTxID
		tx.MatchedTxID = &v
	}
	tx.UpdatedAt = time.Now().UTC()
	return true, nil
}

// ListPushable implements Store
func (s *MemStore) ListPushable(ctx context.Context, now time.Time, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Transaction
	for _, tx := range s.txs {
		if tx.PushStatus != PushPending || tx.MatchStatus != MatchMatched || tx.CategoryID == nil {
			continue
		}
		if tx.NextPushAt != nil && tx.NextPushAt.After(now) {
			continue
		}
		out = append(out, copyTx(tx))
	}
	sortTxs(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkPushed implements Store
func (s *MemStore) MarkPushed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return ErrNotFound
	}
	tx.PushStatus = PushPushed
	tx.NextPushAt = nil
	tx.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkPushFailed implements Store
func (s *MemStore) MarkPushFailed(ctx context.Context, id string, attempts int, nextAttempt time.Time, terminal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return ErrNotFound
	}
	tx.PushAttempts = attempts
	if terminal {
		tx.PushStatus = PushFailed
		tx.NextPushAt = nil
	} else {
		tx.PushStatus = PushPending
		na := nextAttempt
		tx.NextPushAt = &na
	}
	tx.UpdatedAt = time.Now().UTC()
	return nil
}

// ListStuckPushes implements Store
func (s *MemStore) ListStuckPushes(ctx context.Context, limit int) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Transaction
	for _, tx := range s.txs {
		if tx.PushStatus == PushFailed {
			out = append(out, copyTx(tx))
		}
	}
	sortTxs(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetCursor implements Store. A connector that has never synced gets a zero
// cursor rather than ErrNotFound.
func (s *MemStore) GetCursor(ctx context.Context, connector Source) (*SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok := s.cursors[connector]
	if !ok {
		return &SyncCursor{Connector: connector}, nil
	}
	c := *cur
	return &c, nil
}

// SaveCursor implements Store
func (s *MemStore) SaveCursor(ctx context.Context, cursor *SyncCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *cursor
	c.UpdatedAt = time.Now().UTC()
	s.cursors[cursor.Connector] = &c
	return nil
}

func copyRun(r *Run) *Run {
	c := *r
	c.PerConnector = make(map[Source]ConnectorResult, len(r.PerConnector))
	for k, v := range r.PerConnector {
		c.PerConnector[k] = v
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

// CreateRun implements Store
func (s *MemStore) CreateRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = copyRun(run)
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

// CompleteRun implements Store
func (s *MemStore) CompleteRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return ErrNotFound
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

// GetRun implements Store
func (s *MemStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRun(run), nil
}

// ListRuns implements Store, newest first
func (s *MemStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Run
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		out = append(out, copyRun(s.runs[s.runOrder[i]]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// UpsertAccount implements Store
func (s *MemStore) UpsertAccount(ctx context.Context, account *ExternalAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := *account
	s.accounts[string(account.Source)+"|"+account.ExternalID] = &a
	return nil
}

// ListAccounts implements Store
func (s *MemStore) ListAccounts(ctx context.Context) ([]*ExternalAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ExternalAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out, nil
}

// ListCategories implements Store
func (s *MemStore) ListCategories(ctx context.Context) ([]*Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Category, 0, len(s.categories))
	for _, c := range s.categories {
		cc := *c
		out = append(out, &cc)
	}
	return out, nil
}

// ListCategoryRules implements Store, in configured order
func (s *MemStore) ListCategoryRules(ctx context.Context) ([]CategoryRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]CategoryRule(nil), s.rules...), nil
}

// ReplaceCategoryRules implements Store
func (s *MemStore) ReplaceCategoryRules(ctx context.Context, rules []CategoryRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]bool, len(s.categories))
	for _, c := range s.categories {
		known[c.ID] = true
	}
	for _, r := range rules {
		if !known[r.CategoryID] {
			return fmt.Errorf("rule %q -> %s: %w", r.Pattern, r.CategoryID, ErrUnknownCategory)
		}
	}
	s.rules = append([]CategoryRule(nil), rules...)
	return nil
}
