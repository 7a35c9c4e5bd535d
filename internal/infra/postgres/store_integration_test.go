//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeverShitty/rental-manager-sub001/internal/infra/postgres"
	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/testutil/testdb"
)

var testDB *testdb.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testdb.NewTestDB(ctx)
	if err != nil {
		panic("failed to create test database: " + err.Error())
	}

	code := m.Run()

	testDB.Close(ctx)
	if code != 0 {
		panic("tests failed")
	}
}

func setupStore(t *testing.T) (*postgres.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, testDB.Reset(ctx))
	return postgres.NewStore(testDB.Pool), ctx
}

func makeTx(source ledger.Source, externalID string, amount int64, posted time.Time) *ledger.Transaction {
	return &ledger.Transaction{
		ID:          ledger.CanonicalID(source, externalID),
		SourceRefs:  []ledger.SourceRef{{Source: source, ExternalID: externalID}},
		AmountMinor: amount,
		Currency:    "USD",
		PostedDate:  posted.Truncate(24 * time.Hour).UTC(),
		Description: "integration fixture",
		MatchStatus: ledger.MatchUnmatched,
		PushStatus:  ledger.PushPending,
	}
}

func TestUpsertOutcomes(t *testing.T) {
	store, ctx := setupStore(t)
	posted := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	tx := makeTx(ledger.SourceMercury, "mer_001", -120000, posted)

	outcome, err := store.UpsertTransaction(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeCreated, outcome)

	// Same payload again is a no-op
	outcome, err = store.UpsertTransaction(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeUnchanged, outcome)

	// A changed description updates in place
	changed := makeTx(ledger.SourceMercury, "mer_001", -120000, posted)
	changed.Description = "AMENDED RENT PAYMENT"
	outcome, err = store.UpsertTransaction(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeUpdated, outcome)

	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "AMENDED RENT PAYMENT", got.Description)
	assert.Equal(t, int64(-120000), got.AmountMinor)
	assert.True(t, got.PostedDate.Equal(posted), "posted date survived the round trip")
}

func TestUpsertIdentityConflict(t *testing.T) {
	store, ctx := setupStore(t)
	posted := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	tx := makeTx(ledger.SourceMercury, "mer_001", -120000, posted)
	_, err := store.UpsertTransaction(ctx, tx)
	require.NoError(t, err)

	// Same canonical ID claimed by a different identity
	imposter := makeTx(ledger.SourceWave, "wav_999", -120000, posted)
	imposter.ID = tx.ID
	_, err = store.UpsertTransaction(ctx, imposter)
	assert.ErrorIs(t, err, ledger.ErrIdentityConflict)
}

func TestTransitionMatchCAS(t *testing.T) {
	store, ctx := setupStore(t)
	posted := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	left := makeTx(ledger.SourceMercury, "mer_001", -120000, posted)
	right := makeTx(ledger.SourceWave, "wav_001", -120000, posted)
	for _, tx := range []*ledger.Transaction{left, right} {
		_, err := store.UpsertTransaction(ctx, tx)
		require.NoError(t, err)
	}

	ok, err := store.TransitionMatch(ctx, left.ID, ledger.MatchUnmatched, ledger.MatchMatched, &right.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// The row already left unmatched; a second claim loses the race
	ok, err = store.TransitionMatch(ctx, left.ID, ledger.MatchUnmatched, ledger.MatchMatched, &right.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.TransitionMatch(ctx, "no-such-id", ledger.MatchUnmatched, ledger.MatchMatched, nil)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	got, err := store.GetTransaction(ctx, left.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.MatchMatched, got.MatchStatus)
	require.NotNil(t, got.MatchedTxID)
	assert.Equal(t, right.ID, *got.MatchedTxID)

	// Clearing the pointer on unmatch
	ok, err = store.TransitionMatch(ctx, left.ID, ledger.MatchMatched, ledger.MatchUnmatched, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = store.GetTransaction(ctx, left.ID)
	require.NoError(t, err)
	assert.Nil(t, got.MatchedTxID)
}

func TestListTransactionsFilters(t *testing.T) {
	store, ctx := setupStore(t)
	posted := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	a := makeTx(ledger.SourceMercury, "mer_001", -120000, posted)
	b := makeTx(ledger.SourceWave, "wav_001", -120000, posted.AddDate(0, 0, 1))
	for _, tx := range []*ledger.Transaction{a, b} {
		_, err := store.UpsertTransaction(ctx, tx)
		require.NoError(t, err)
	}

	rent := "rent"
	require.NoError(t, store.SetCategory(ctx, a.ID, &rent))

	all, err := store.ListTransactions(ctx, ledger.TxFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Ordered by posted date
	assert.Equal(t, a.ID, all[0].ID)

	src := ledger.SourceWave
	waveOnly, err := store.ListTransactions(ctx, ledger.TxFilter{Source: &src})
	require.NoError(t, err)
	require.Len(t, waveOnly, 1)
	assert.Equal(t, b.ID, waveOnly[0].ID)

	uncat, err := store.ListTransactions(ctx, ledger.TxFilter{Uncategorized: true})
	require.NoError(t, err)
	require.Len(t, uncat, 1)
	assert.Equal(t, b.ID, uncat[0].ID)

	require.NoError(t, store.SetCategory(ctx, a.ID, nil))
	uncat, err = store.ListTransactions(ctx, ledger.TxFilter{Uncategorized: true})
	require.NoError(t, err)
	assert.Len(t, uncat, 2)
}

func TestPushLifecycle(t *testing.T) {
	store, ctx := setupStore(t)
	posted := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	tx := makeTx(ledger.SourceMercury, "mer_001", -120000, posted)
	_, err := store.UpsertTransaction(ctx, tx)
	require.NoError(t, err)

	// Unmatched and uncategorized records are not pushable
	pushable, err := store.ListPushable(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, pushable)

	rent := "rent"
	require.NoError(t, store.SetCategory(ctx, tx.ID, &rent))
	other := makeTx(ledger.SourceWave, "wav_001", -120000, posted)
	_, err = store.UpsertTransaction(ctx, other)
	require.NoError(t, err)
	ok, err := store.TransitionMatch(ctx, tx.ID, ledger.MatchUnmatched, ledger.MatchMatched, &other.ID)
	require.NoError(t, err)
	require.True(t, ok)

	pushable, err = store.ListPushable(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, pushable, 1)
	assert.Equal(t, tx.ID, pushable[0].ID)

	// A retry schedule hides the record until the window elapses
	retryAt := now.Add(time.Hour)
	require.NoError(t, store.MarkPushFailed(ctx, tx.ID, 1, retryAt, false))
	pushable, err = store.ListPushable(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, pushable)
	pushable, err = store.ListPushable(ctx, retryAt.Add(time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, pushable, 1)

	// Terminal failure parks the record as stuck
	require.NoError(t, store.MarkPushFailed(ctx, tx.ID, 5, time.Time{}, true))
	pushable, err = store.ListPushable(ctx, retryAt.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, pushable)
	stuck, err := store.ListStuckPushes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, ledger.PushFailed, stuck[0].PushStatus)
	assert.Equal(t, 5, stuck[0].PushAttempts)
	assert.Nil(t, stuck[0].NextPushAt)

	require.NoError(t, store.MarkPushed(ctx, tx.ID))
	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PushPushed, got.PushStatus)
}

func TestCursorRoundTrip(t *testing.T) {
	store, ctx := setupStore(t)

	// Unseen connectors start from an empty bookmark
	cursor, err := store.GetCursor(ctx, ledger.SourceMercury)
	require.NoError(t, err)
	assert.Empty(t, cursor.Token)

	cursor.Token = "mer_0042"
	cursor.LastRunStatus = ledger.RunSuccess
	require.NoError(t, store.SaveCursor(ctx, cursor))

	got, err := store.GetCursor(ctx, ledger.SourceMercury)
	require.NoError(t, err)
	assert.Equal(t, "mer_0042", got.Token)
	assert.Equal(t, ledger.RunSuccess, got.LastRunStatus)

	// Failure keeps the token but records the error
	got.LastRunStatus = ledger.RunPartial
	got.LastError = "mercury connector (auth): bad token"
	require.NoError(t, store.SaveCursor(ctx, got))
	again, err := store.GetCursor(ctx, ledger.SourceMercury)
	require.NoError(t, err)
	assert.Equal(t, "mer_0042", again.Token)
	assert.Equal(t, ledger.RunPartial, again.LastRunStatus)
	assert.NotEmpty(t, again.LastError)
}

func TestRunHistory(t *testing.T) {
	store, ctx := setupStore(t)

	run := ledger.NewRun()
	require.NoError(t, store.CreateRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RunRunning, got.Status)
	assert.Nil(t, got.CompletedAt)

	run.PerConnector[ledger.SourceMercury] = ledger.ConnectorResult{Fetched: 10, Imported: 8, SkippedDuplicate: 2}
	run.PerConnector[ledger.SourceWave] = ledger.ConnectorResult{Error: "status 503", Failed: 1}
	run.Matched = 4
	run.PendingReview = 1
	run.Finalize()
	require.NoError(t, store.CompleteRun(ctx, run))

	got, err = store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.RunPartial, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 8, got.PerConnector[ledger.SourceMercury].Imported)
	assert.Equal(t, "status 503", got.PerConnector[ledger.SourceWave].Error)
	assert.Equal(t, 4, got.Matched)

	second := ledger.NewRun()
	require.NoError(t, store.CreateRun(ctx, second))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Newest first
	assert.Equal(t, second.ID, runs[0].ID)
}

func TestAccountSnapshots(t *testing.T) {
	store, ctx := setupStore(t)

	acct := &ledger.ExternalAccount{
		Source:       ledger.SourceMercury,
		ExternalID:   "acct_1",
		DisplayName:  "Operating",
		Currency:     "USD",
		BalanceMinor: 1523045,
		FetchedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.UpsertAccount(ctx, acct))

	// A later snapshot replaces the balance, not the row
	acct.BalanceMinor = 1600000
	require.NoError(t, store.UpsertAccount(ctx, acct))

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, int64(1600000), accounts[0].BalanceMinor)
	assert.Equal(t, "Operating", accounts[0].DisplayName)
}

func TestTaxonomyAndRules(t *testing.T) {
	store, ctx := setupStore(t)

	categories, err := store.ListCategories(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, categories)

	rules, err := store.ListCategoryRules(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rules)
	// Migration seed order: rent payment rule first
	assert.Equal(t, "rent payment", rules[0].Pattern)

	replacement := []ledger.CategoryRule{
		{Pattern: "landlord", CategoryID: "rent"},
		{Pattern: "lowes", CategoryID: "repairs"},
	}
	require.NoError(t, store.ReplaceCategoryRules(ctx, replacement))

	rules, err = store.ListCategoryRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "landlord", rules[0].Pattern)
	assert.Equal(t, "lowes", rules[1].Pattern)
}
