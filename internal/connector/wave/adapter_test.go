package wave_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeverShitty/rental-manager-sub001/internal/connector"
	"github.com/NeverShitty/rental-manager-sub001/internal/connector/wave"
	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

func newAdapter(t *testing.T, handler http.HandlerFunc) *wave.Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := wave.NewClient("test-token", "biz_1", logger.New("test", io.Discard))
	client.SetBaseURL(srv.URL)
	return wave.NewAdapter(client)
}

func TestFetchTransactionsDirectionSign(t *testing.T) {
	adapter := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/businesses/biz_1/transactions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"transactions": [
				{"id": "wav_777", "date": "2025-01-16", "amount": "1200.00",
				 "currency": "USD", "direction": "WITHDRAWAL",
				 "description": "Rent expense unit 4B",
				 "category": {"id": "cat_9", "name": "Rent"}},
				{"id": "wav_778", "date": "2025-01-17", "amount": "950.50",
				 "currency": "USD", "direction": "DEPOSIT",
				 "description": "Tenant payment"}
			],
			"next_page_token": "tok_2"
		}`))
	})

	page, err := adapter.FetchTransactions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, "tok_2", page.NextCursor)

	// WITHDRAWAL flips the always-positive amount to an outflow
	out := page.Transactions[0]
	assert.Equal(t, ledger.SourceWave, out.Source)
	assert.Equal(t, int64(-120000), out.AmountMinor)
	assert.Equal(t, "Rent", out.RawCategory)

	// DEPOSIT stays an inflow
	in := page.Transactions[1]
	assert.Equal(t, int64(95050), in.AmountMinor)
	assert.Equal(t, time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC), in.Timestamp)
}

func TestFetchTransactionsUnknownDirection(t *testing.T) {
	adapter := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"transactions": [
				{"id": "wav_1", "date": "2025-01-16", "amount": "10.00",
				 "currency": "USD", "direction": "SIDEWAYS"}
			],
			"next_page_token": "tok_2"
		}`))
	})

	page, err := adapter.FetchTransactions(context.Background(), "")
	require.Error(t, err)
	assert.True(t, connector.IsPermanent(err))
	require.NotNil(t, page)
	assert.Empty(t, page.NextCursor)
}

func TestPushTransactions(t *testing.T) {
	var gotReq wave.CreateTransactionsRequest
	adapter := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"results": [
				{"external_reference": "ref_out", "status": "created"},
				{"external_reference": "ref_dup", "status": "duplicate"},
				{"external_reference": "ref_bad", "status": "error", "error": "unknown category"}
			]
		}`))
	})

	batch := []connector.PushItem{
		{Reference: "ref_out", AmountMinor: -120000, Currency: "USD",
			PostedDate: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			Description: "rent", CategoryID: "cat_rent"},
		{Reference: "ref_dup", AmountMinor: 5000, Currency: "USD",
			PostedDate: time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)},
		{Reference: "ref_bad", AmountMinor: 100, Currency: "USD",
			PostedDate: time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)},
	}

	results, err := adapter.PushTransactions(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Outflows cross the wire as positive amounts with WITHDRAWAL direction
	require.Len(t, gotReq.Transactions, 3)
	assert.Equal(t, "1200.00", gotReq.Transactions[0].Amount)
	assert.Equal(t, wave.DirectionWithdrawal, gotReq.Transactions[0].Direction)
	assert.Equal(t, "ref_out", gotReq.Transactions[0].ExternalReference)
	assert.Equal(t, wave.DirectionDeposit, gotReq.Transactions[1].Direction)

	// duplicate counts as success because external_reference already landed
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	require.Error(t, results[2].Err)
	assert.True(t, connector.IsPermanent(results[2].Err))
}

func TestPushEmptyBatch(t *testing.T) {
	adapter := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an empty batch")
	})

	results, err := adapter.PushTransactions(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}
