package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
)

func newTx(source ledger.Source, externalID string, amount int64, posted time.Time) *ledger.Transaction {
	return &ledger.Transaction{
		ID: ledger.CanonicalID(source, externalID),
		SourceRefs: []ledger.SourceRef{
			{Source: source, ExternalID: externalID},
		},
		AmountMinor: amount,
		Currency:    "USD",
		PostedDate:  posted,
		Description: "RENT PAYMENT UNIT 4B",
		MatchStatus: ledger.MatchUnmatched,
		PushStatus:  ledger.PushPending,
	}
}

func TestMemStoreUpsert(t *testing.T) {
	ctx := context.Background()
	posted := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	t.Run("first sighting creates", func(t *testing.T) {
		store := ledger.NewMemStore()
		outcome, err := store.UpsertTransaction(ctx, newTx(ledger.SourceMercury, "mer_001", -120000, posted))
		require.NoError(t, err)
		assert.Equal(t, ledger.OutcomeCreated, outcome)
	})

	t.Run("identical re-ingest is unchanged", func(t *testing.T) {
		store := ledger.NewMemStore()
		_, err := store.UpsertTransaction(ctx, newTx(ledger.SourceMercury, "mer_001", -120000, posted))
		require.NoError(t, err)

		outcome, err := store.UpsertTransaction(ctx, newTx(ledger.SourceMercury, "mer_001", -120000, posted))
		require.NoError(t, err)
		assert.Equal(t, ledger.OutcomeUnchanged, outcome)

		txs, err := store.ListTransactions(ctx, ledger.TxFilter{})
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})

	t.Run("description change updates in place", func(t *testing.T) {
		store := ledger.NewMemStore()
		tx := newTx(ledger.SourceMercury, "mer_001", -120000, posted)
		_, err := store.UpsertTransaction(ctx, tx)
		require.NoError(t, err)

		changed := newTx(ledger.SourceMercury, "mer_001", -120000, posted)
		changed.Description = "RENT PAYMENT UNIT 4B (amended)"
		outcome, err := store.UpsertTransaction(ctx, changed)
		require.NoError(t, err)
		assert.Equal(t, ledger.OutcomeUpdated, outcome)

		got, err := store.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, "RENT PAYMENT UNIT 4B (amended)", got.Description)
	})

	t.Run("identity conflict is rejected", func(t *testing.T) {
		store := ledger.NewMemStore()
		tx := newTx(ledger.SourceMercury, "mer_001", -120000, posted)
		_, err := store.UpsertTransaction(ctx, tx)
		require.NoError(t, err)

		// Same canonical ID, different identity behind it
		imposter := newTx(ledger.SourceWave, "wav_777", -120000, posted)
		imposter.ID = tx.ID
		_, err = store.UpsertTransaction(ctx, imposter)
		assert.ErrorIs(t, err, ledger.ErrIdentityConflict)
	})
}

func TestMemStoreTransitionMatch(t *testing.T) {
	ctx := context.Background()
	posted := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	store := ledger.NewMemStore()
	left := newTx(ledger.SourceMercury, "mer_001", 120000, posted)
	right := newTx(ledger.SourceWave, "wav_777", 120000, posted)
	_, err := store.UpsertTransaction(ctx, left)
	require.NoError(t, err)
	_, err = store.UpsertTransaction(ctx, right)
	require.NoError(t, err)

	ok, err := store.TransitionMatch(ctx, left.ID, ledger.MatchUnmatched, ledger.MatchMatched, &right.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// The compare-and-set refuses a second claim from the stale state
	ok, err = store.TransitionMatch(ctx, left.ID, ledger.MatchUnmatched, ledger.MatchMatched, &right.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetTransaction(ctx, left.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.MatchMatched, got.MatchStatus)
	require.NotNil(t, got.MatchedTxID)
	assert.Equal(t, right.ID, *got.MatchedTxID)

	_, err = store.TransitionMatch(ctx, "missing", ledger.MatchUnmatched, ledger.MatchMatched, nil)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestMemStorePushLifecycle(t *testing.T) {
	ctx := context.Background()
	posted := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	store := ledger.NewMemStore()
	tx := newTx(ledger.SourceMercury, "mer_001", 120000, posted)
	catID := "rent"
	counterpart := "other"
	tx.MatchStatus = ledger.MatchMatched
	tx.MatchedTxID = &counterpart
	tx.CategoryID = &catID
	_, err := store.UpsertTransaction(ctx, tx)
	require.NoError(t, err)

	// Unmatched or uncategorized records never surface as pushable
	other := newTx(ledger.SourceMercury, "mer_002", 5000, posted)
	_, err = store.UpsertTransaction(ctx, other)
	require.NoError(t, err)

	pushable, err := store.ListPushable(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, pushable, 1)
	assert.Equal(t, tx.ID, pushable[0].ID)

	// A scheduled retry in the future hides the record until its window
	err = store.MarkPushFailed(ctx, tx.ID, 1, now.Add(time.Hour), false)
	require.NoError(t, err)

	pushable, err = store.ListPushable(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, pushable)

	pushable, err = store.ListPushable(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pushable, 1)

	// A terminal failure parks the record as stuck
	err = store.MarkPushFailed(ctx, tx.ID, 5, now, true)
	require.NoError(t, err)

	pushable, err = store.ListPushable(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pushable)

	stuck, err := store.ListStuckPushes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, 5, stuck[0].PushAttempts)

	err = store.MarkPushed(ctx, tx.ID)
	require.NoError(t, err)
	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PushPushed, got.PushStatus)
	assert.Nil(t, got.NextPushAt)
}

func TestMemStoreCursor(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemStore()

	// A never-synced connector starts from the beginning of history
	cur, err := store.GetCursor(ctx, ledger.SourceDoorLoop)
	require.NoError(t, err)
	assert.Empty(t, cur.Token)

	err = store.SaveCursor(ctx, &ledger.SyncCursor{
		Connector:     ledger.SourceDoorLoop,
		Token:         "3",
		LastRunStatus: ledger.RunSuccess,
	})
	require.NoError(t, err)

	cur, err = store.GetCursor(ctx, ledger.SourceDoorLoop)
	require.NoError(t, err)
	assert.Equal(t, "3", cur.Token)
	assert.Equal(t, ledger.RunSuccess, cur.LastRunStatus)
	assert.False(t, cur.UpdatedAt.IsZero())
}

func TestMemStoreListFilters(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemStore()

	jan15 := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	jan16 := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)

	a := newTx(ledger.SourceMercury, "mer_001", 100, jan16)
	b := newTx(ledger.SourceWave, "wav_001", 200, jan15)
	catID := "rent"
	b.CategoryID = &catID
	for _, tx := range []*ledger.Transaction{a, b} {
		_, err := store.UpsertTransaction(ctx, tx)
		require.NoError(t, err)
	}

	t.Run("ordered by posted date then id", func(t *testing.T) {
		txs, err := store.ListTransactions(ctx, ledger.TxFilter{})
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, b.ID, txs[0].ID)
		assert.Equal(t, a.ID, txs[1].ID)
	})

	t.Run("by source", func(t *testing.T) {
		src := ledger.SourceWave
		txs, err := store.ListTransactions(ctx, ledger.TxFilter{Source: &src})
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, b.ID, txs[0].ID)
	})

	t.Run("uncategorized only", func(t *testing.T) {
		txs, err := store.ListTransactions(ctx, ledger.TxFilter{Uncategorized: true})
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, a.ID, txs[0].ID)
	})
}
