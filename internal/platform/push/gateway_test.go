package push_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeverShitty/rental-manager-sub001/internal/connector"
	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/internal/platform/push"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

// fakeTarget records pushed batches and can fail whole batches or single
// references.
type fakeTarget struct {
	batches  [][]connector.PushItem
	batchErr error
	failRefs map[string]error
}

func (f *fakeTarget) Source() ledger.Source { return ledger.SourceWave }

func (f *fakeTarget) FetchTransactions(ctx context.Context, cursor string) (*connector.Page, error) {
	return &connector.Page{}, nil
}

func (f *fakeTarget) FetchAccounts(ctx context.Context) ([]ledger.ExternalAccount, error) {
	return nil, nil
}

func (f *fakeTarget) TestConnection(ctx context.Context) error { return nil }

func (f *fakeTarget) PushTransactions(ctx context.Context, batch []connector.PushItem) ([]connector.PushResult, error) {
	f.batches = append(f.batches, batch)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	results := make([]connector.PushResult, len(batch))
	for i, item := range batch {
		results[i] = connector.PushResult{Reference: item.Reference, Err: f.failRefs[item.Reference]}
	}
	return results, nil
}

func seedPushable(t *testing.T, store *ledger.MemStore, source ledger.Source, externalID string) *ledger.Transaction {
	t.Helper()
	catID := "rent"
	counterpart := "counterpart"
	tx := &ledger.Transaction{
		ID: ledger.CanonicalID(source, externalID),
		SourceRefs: []ledger.SourceRef{
			{Source: source, ExternalID: externalID},
		},
		AmountMinor: 120000,
		Currency:    "USD",
		PostedDate:  time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "rent payment",
		CategoryID:  &catID,
		MatchStatus: ledger.MatchMatched,
		MatchedTxID: &counterpart,
	}
	_, err := store.UpsertTransaction(context.Background(), tx)
	require.NoError(t, err)
	return tx
}

func newGateway(store ledger.Store, target connector.Connector, cfg *push.Config) *push.Gateway {
	return push.NewGateway(cfg, store, target, logger.New("test", io.Discard))
}

func TestGatewayPushesWithCanonicalReference(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemStore()
	tx := seedPushable(t, store, ledger.SourceMercury, "mer_001")

	target := &fakeTarget{}
	g := newGateway(store, target, nil)

	res, err := g.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)

	require.Len(t, target.batches, 1)
	require.Len(t, target.batches[0], 1)
	// The reference is the canonical ID: the receiver dedups on it
	assert.Equal(t, tx.ID, target.batches[0][0].Reference)
	assert.Equal(t, "rent", target.batches[0][0].CategoryID)

	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PushPushed, got.PushStatus)

	// A second pass has nothing left to export
	res, err = g.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pushed)
	assert.Len(t, target.batches, 1)
}

func TestGatewaySkipsTargetNativeRecords(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemStore()
	native := seedPushable(t, store, ledger.SourceWave, "wav_777")

	target := &fakeTarget{}
	g := newGateway(store, target, nil)

	res, err := g.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Pushed)
	assert.Empty(t, target.batches)

	got, err := store.GetTransaction(ctx, native.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PushPushed, got.PushStatus)
}

func TestGatewaySchedulesRetryWithBackoff(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemStore()
	tx := seedPushable(t, store, ledger.SourceMercury, "mer_001")

	target := &fakeTarget{
		failRefs: map[string]error{
			tx.ID: connector.NewError(connector.KindTransient, "wave", "upstream 503", nil),
		},
	}
	g := newGateway(store, target, &push.Config{MaxAttempts: 3, BaseBackoff: time.Minute})

	res, err := g.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)

	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PushPending, got.PushStatus)
	assert.Equal(t, 1, got.PushAttempts)
	require.NotNil(t, got.NextPushAt)
	assert.True(t, got.NextPushAt.After(time.Now().UTC()))

	// Until its retry window opens the record stays off the pushable list
	res, err = g.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Retried)
	assert.Equal(t, 0, res.Pushed)
}

func TestGatewayParksStuckAfterAttemptBudget(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemStore()
	tx := seedPushable(t, store, ledger.SourceMercury, "mer_001")

	target := &fakeTarget{
		batchErr: connector.NewError(connector.KindTransient, "wave", "unreachable", nil),
	}
	g := newGateway(store, target, &push.Config{MaxAttempts: 2, BaseBackoff: time.Millisecond})

	res, err := g.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)

	// Wait out the tiny backoff, then exhaust the budget
	time.Sleep(10 * time.Millisecond)
	res, err = g.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stuck)

	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PushFailed, got.PushStatus)
	assert.Equal(t, 2, got.PushAttempts)

	stuck, err := store.ListStuckPushes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, tx.ID, stuck[0].ID)

	// Stuck records never re-enter the batch without an operator
	res, err = g.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Retried)
	assert.Equal(t, 0, res.Stuck)
}

func TestGatewayMixedBatch(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemStore()
	good := seedPushable(t, store, ledger.SourceMercury, "mer_001")
	bad := seedPushable(t, store, ledger.SourceMercury, "mer_002")

	target := &fakeTarget{
		failRefs: map[string]error{
			bad.ID: connector.NewError(connector.KindPermanent, "wave", "invalid category", nil),
		},
	}
	g := newGateway(store, target, nil)

	res, err := g.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, 1, res.Retried)

	gotGood, err := store.GetTransaction(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PushPushed, gotGood.PushStatus)

	gotBad, err := store.GetTransaction(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PushPending, gotBad.PushStatus)
	assert.Equal(t, 1, gotBad.PushAttempts)
}
