package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
)

// GetCursor implements ledger.Store. A connector that has never synced gets a
// zero cursor.
func (s *Store) GetCursor(ctx context.Context, connector ledger.Source) (*ledger.SyncCursor, error) {
	var cur ledger.SyncCursor
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT connector, token, last_run_status, last_error, updated_at
		FROM sync_cursors
		WHERE connector = $1
	`, string(connector)).Scan(&cur.Connector, &cur.Token, &status, &cur.LastError, &cur.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &ledger.SyncCursor{Connector: connector}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	cur.LastRunStatus = ledger.RunStatus(status)
	return &cur, nil
}

// SaveCursor implements ledger.Store
func (s *Store) SaveCursor(ctx context.Context, cursor *ledger.SyncCursor) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_cursors (connector, token, last_run_status, last_error, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (connector) DO UPDATE SET
			token = EXCLUDED.token,
			last_run_status = EXCLUDED.last_run_status,
			last_error = EXCLUDED.last_error,
			updated_at = now()
	`, string(cursor.Connector), cursor.Token, string(cursor.LastRunStatus), cursor.LastError)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// CreateRun implements ledger.Store
func (s *Store) CreateRun(ctx context.Context, run *ledger.Run) error {
	perConnector, err := json.Marshal(run.PerConnector)
	if err != nil {
		return fmt.Errorf("failed to marshal per-connector results: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO reconciliation_runs (
			id, started_at, completed_at, per_connector,
			unmatched_count, matched, pending_review, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.ID, run.StartedAt, run.CompletedAt, perConnector,
		run.UnmatchedCount, run.Matched, run.PendingReview, string(run.Status))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun implements ledger.Store
func (s *Store) CompleteRun(ctx context.Context, run *ledger.Run) error {
	perConnector, err := json.Marshal(run.PerConnector)
	if err != nil {
		return fmt.Errorf("failed to marshal per-connector results: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE reconciliation_runs
		SET completed_at = $2, per_connector = $3,
		    unmatched_count = $4, matched = $5, pending_review = $6, status = $7
		WHERE id = $1
	`, run.ID, run.CompletedAt, perConnector,
		run.UnmatchedCount, run.Matched, run.PendingReview, string(run.Status))
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// GetRun implements ledger.Store
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*ledger.Run, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, `
		SELECT id, started_at, completed_at, per_connector,
		       unmatched_count, matched, pending_review, status
		FROM reconciliation_runs
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return run, err
}

// ListRuns implements ledger.Store, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*ledger.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, completed_at, per_connector,
		       unmatched_count, matched, pending_review, status
		FROM reconciliation_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (*ledger.Run, error) {
	var (
		run              ledger.Run
		perConnectorJSON []byte
		status           string
	)
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.CompletedAt,
		&perConnectorJSON,
		&run.UnmatchedCount,
		&run.Matched,
		&run.PendingReview,
		&status,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(perConnectorJSON, &run.PerConnector); err != nil {
		return nil, fmt.Errorf("failed to unmarshal per-connector results: %w", err)
	}
	run.Status = ledger.RunStatus(status)
	return &run, nil
}

// UpsertAccount implements ledger.Store
func (s *Store) UpsertAccount(ctx context.Context, account *ledger.ExternalAccount) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO external_accounts (source, external_id, display_name, currency, balance_minor, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source, external_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			currency = EXCLUDED.currency,
			balance_minor = EXCLUDED.balance_minor,
			fetched_at = EXCLUDED.fetched_at
	`, string(account.Source), account.ExternalID, account.DisplayName,
		account.Currency, account.BalanceMinor, account.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// ListAccounts implements ledger.Store
func (s *Store) ListAccounts(ctx context.Context) ([]*ledger.ExternalAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source, external_id, display_name, currency, balance_minor, fetched_at
		FROM external_accounts
		ORDER BY source, external_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []*ledger.ExternalAccount
	for rows.Next() {
		var a ledger.ExternalAccount
		var source string
		if err := rows.Scan(&source, &a.ExternalID, &a.DisplayName, &a.Currency, &a.BalanceMinor, &a.FetchedAt); err != nil {
			return nil, err
		}
		a.Source = ledger.Source(source)
		out = append(out, &a)
	}
	return out, rows.Err()
}
