package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UpsertOutcome reports what an upsert did, for per-run metrics
type UpsertOutcome string

const (
	OutcomeCreated   UpsertOutcome = "created"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// TxFilter narrows transaction listings
type TxFilter struct {
	MatchStatus   *MatchStatus
	Source        *Source
	Uncategorized bool
	CreatedAfter  *time.Time
	Limit         int
}

// Store is the durable home of canonical transactions, cursors and run
// history. It owns all concurrency control: match-status mutations go through
// TransitionMatch, an atomic compare-and-set, so two overlapping matcher
// passes can never both claim the same transaction.
type Store interface {
	// UpsertTransaction inserts a transaction on first sighting or updates the
	// allowed fields (description, posted date) of an existing one. Identity
	// fields and amount are never overwritten. Returns ErrIdentityConflict if
	// the ID exists with a different (source, externalId).
	UpsertTransaction(ctx context.Context, tx *Transaction) (UpsertOutcome, error)

	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	ListTransactions(ctx context.Context, f TxFilter) ([]*Transaction, error)

	// SetCategory sets (or clears, with nil) the category of a transaction
	SetCategory(ctx context.Context, id string, categoryID *string) error

	// TransitionMatch atomically moves a transaction from one match status to
	// another, setting or clearing the reciprocal pointer. Returns false when
	// the transaction is no longer in the expected status.
	TransitionMatch(ctx context.Context, id string, from, to MatchStatus, matchedTxID *string) (bool, error)

	// ListPushable returns matched, categorized transactions with
	// push_status=pending whose backoff window has elapsed
	ListPushable(ctx context.Context, now time.Time, limit int) ([]*Transaction, error)
	MarkPushed(ctx context.Context, id string) error
	// MarkPushFailed records a failed attempt; terminal moves the item to the
	// stuck (failed) state, otherwise it stays pending with a retry time.
	MarkPushFailed(ctx context.Context, id string, attempts int, nextAttempt time.Time, terminal bool) error
	ListStuckPushes(ctx context.Context, limit int) ([]*Transaction, error)

	GetCursor(ctx context.Context, connector Source) (*SyncCursor, error)
	SaveCursor(ctx context.Context, cursor *SyncCursor) error

	CreateRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	UpsertAccount(ctx context.Context, account *ExternalAccount) error
	ListAccounts(ctx context.Context) ([]*ExternalAccount, error)

	ListCategories(ctx context.Context) ([]*Category, error)
	ListCategoryRules(ctx context.Context) ([]CategoryRule, error)
	// ReplaceCategoryRules swaps the full rule set atomically, preserving the
	// given order as rule positions
	ReplaceCategoryRules(ctx context.Context, rules []CategoryRule) error
}
