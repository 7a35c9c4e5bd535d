package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
)

// Store implements ledger.Store on PostgreSQL. Transaction methods live here;
// cursor/run methods in run_store.go and taxonomy methods in
// category_store.go.
type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

// NewStore creates a new PostgreSQL-backed ledger store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const txColumns = `
	id, source, external_id, source_refs, amount_minor, currency, posted_date,
	description, raw_category, category_id, match_status, matched_tx_id,
	push_status, push_attempts, next_push_at, created_at, updated_at
`

// UpsertTransaction implements ledger.Store. The conflict target is the
// canonical ID; only description and posted date are updatable, and the
// update fires only when one of them actually changed, which lets the
// RETURNING clause distinguish created/updated/unchanged in one round trip.
func (s *Store) UpsertTransaction(ctx context.Context, tx *ledger.Transaction) (ledger.UpsertOutcome, error) {
	if err := tx.Validate(); err != nil {
		return "", fmt.Errorf("invalid transaction: %w", err)
	}

	refsJSON, err := json.Marshal(tx.SourceRefs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal source refs: %w", err)
	}
	primary := tx.SourceRefs[0]

	query := `
		INSERT INTO transactions (
			id, source, external_id, source_refs, amount_minor, currency,
			posted_date, description, raw_category, category_id, match_status,
			push_status, push_attempts, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			posted_date = EXCLUDED.posted_date,
			updated_at  = now()
		WHERE transactions.source = EXCLUDED.source
		  AND transactions.external_id = EXCLUDED.external_id
		  AND (transactions.description IS DISTINCT FROM EXCLUDED.description
		    OR transactions.posted_date IS DISTINCT FROM EXCLUDED.posted_date)
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err = s.pool.QueryRow(ctx, query,
		tx.ID,
		string(primary.Source),
		primary.ExternalID,
		refsJSON,
		tx.AmountMinor,
		tx.Currency,
		tx.PostedDate,
		tx.Description,
		tx.RawCategory,
		tx.CategoryID,
		string(tx.MatchStatus),
		string(tx.PushStatus),
	).Scan(&inserted)

	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict with no update: either the row is identical (unchanged) or
		// the ID collided with a different identity
		var source, externalID string
		err := s.pool.QueryRow(ctx,
			`SELECT source, external_id FROM transactions WHERE id = $1`, tx.ID,
		).Scan(&source, &externalID)
		if err != nil {
			return "", fmt.Errorf("failed to inspect conflicting row: %w", err)
		}
		if source != string(primary.Source) || externalID != primary.ExternalID {
			return "", ledger.ErrIdentityConflict
		}
		return ledger.OutcomeUnchanged, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to upsert transaction: %w", err)
	}
	if inserted {
		return ledger.OutcomeCreated, nil
	}
	return ledger.OutcomeUpdated, nil
}

// GetTransaction implements ledger.Store
func (s *Store) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = $1`
	tx, err := scanTransaction(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return tx, err
}

// ListTransactions implements ledger.Store
func (s *Store) ListTransactions(ctx context.Context, f ledger.TxFilter) ([]*ledger.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE 1=1`
	args := []any{}

	if f.MatchStatus != nil {
		args = append(args, string(*f.MatchStatus))
		query += fmt.Sprintf(" AND match_status = $%d", len(args))
	}
	if f.Source != nil {
		args = append(args, string(*f.Source))
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if f.Uncategorized {
		query += " AND category_id IS NULL"
	}
	if f.CreatedAfter != nil {
		args = append(args, *f.CreatedAfter)
		query += fmt.Sprintf(" AND created_at > $%d", len(args))
	}
	query += " ORDER BY posted_date, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return s.queryTransactions(ctx, query, args...)
}

// SetCategory implements ledger.Store
func (s *Store) SetCategory(ctx context.Context, id string, categoryID *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions SET category_id = $2, updated_at = now() WHERE id = $1`,
		id, categoryID)
	if err != nil {
		return fmt.Errorf("failed to set category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// TransitionMatch implements ledger.Store. The WHERE clause on the current
// status is the compare-and-set: a lost race affects zero rows.
func (s *Store) TransitionMatch(ctx context.Context, id string, from, to ledger.MatchStatus, matchedTxID *string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions
		SET match_status = $3, matched_tx_id = $4, updated_at = now()
		WHERE id = $1 AND match_status = $2
	`, id, string(from), string(to), matchedTxID)
	if err != nil {
		return false, fmt.Errorf("failed to transition match status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "lost the race" from "no such transaction"
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check transaction existence: %w", err)
		}
		if !exists {
			return false, ledger.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

// ListPushable implements ledger.Store
func (s *Store) ListPushable(ctx context.Context, now time.Time, limit int) ([]*ledger.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE push_status = 'pending'
		  AND match_status = 'matched'
		  AND category_id IS NOT NULL
		  AND (next_push_at IS NULL OR next_push_at <= $1)
		ORDER BY posted_date, id
		LIMIT $2
	`
	return s.queryTransactions(ctx, query, now, limit)
}

// MarkPushed implements ledger.Store
func (s *Store) MarkPushed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions
		SET push_status = 'pushed', next_push_at = NULL, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark pushed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// MarkPushFailed implements ledger.Store
func (s *Store) MarkPushFailed(ctx context.Context, id string, attempts int, nextAttempt time.Time, terminal bool) error {
	query := `
		UPDATE transactions
		SET push_status = 'pending', push_attempts = $2, next_push_at = $3, updated_at = now()
		WHERE id = $1
	`
	next := &nextAttempt
	if terminal {
		query = `
			UPDATE transactions
			SET push_status = 'failed', push_attempts = $2, next_push_at = $3, updated_at = now()
			WHERE id = $1
		`
		next = nil
	}
	tag, err := s.pool.Exec(ctx, query, id, attempts, next)
	if err != nil {
		return fmt.Errorf("failed to mark push failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// ListStuckPushes implements ledger.Store
func (s *Store) ListStuckPushes(ctx context.Context, limit int) ([]*ledger.Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE push_status = 'failed'
		ORDER BY posted_date, id
		LIMIT $1
	`
	return s.queryTransactions(ctx, query, limit)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]*ledger.Transaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*ledger.Transaction, error) {
	var (
		tx          ledger.Transaction
		source      string
		externalID  string
		refsJSON    []byte
		matchStatus string
		pushStatus  string
	)
	err := row.Scan(
		&tx.ID,
		&source,
		&externalID,
		&refsJSON,
		&tx.AmountMinor,
		&tx.Currency,
		&tx.PostedDate,
		&tx.Description,
		&tx.RawCategory,
		&tx.CategoryID,
		&matchStatus,
		&tx.MatchedTxID,
		&pushStatus,
		&tx.PushAttempts,
		&tx.NextPushAt,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(refsJSON, &tx.SourceRefs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source refs: %w", err)
	}
	tx.MatchStatus = ledger.MatchStatus(matchStatus)
	tx.PushStatus = ledger.PushStatus(pushStatus)
	tx.PostedDate = tx.PostedDate.UTC()
	return &tx, nil
}
