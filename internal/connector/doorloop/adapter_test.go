package doorloop_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeverShitty/rental-manager-sub001/internal/connector"
	"github.com/NeverShitty/rental-manager-sub001/internal/connector/doorloop"
	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

func newAdapter(t *testing.T, handler http.HandlerFunc) *doorloop.Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := doorloop.NewClient("test-key", logger.New("test", io.Discard))
	client.SetBaseURL(srv.URL)
	return doorloop.NewAdapter(client)
}

func TestFetchTransactionsTypeSign(t *testing.T) {
	adapter := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page_number"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"id": "dl_1", "date": "2025-01-15", "amount": "1200.00", "currency": "USD",
				 "transactionType": "LEASE_PAYMENT", "memo": "January rent", "propertyName": "Oak St 12"},
				{"id": "dl_2", "date": "2025-01-16", "amount": "85.40", "currency": "USD",
				 "transactionType": "VENDOR_BILL", "propertyName": "Oak St 12", "categoryName": "Repairs"},
				{"id": "dl_3", "date": "2025-01-17", "amount": "50.00", "currency": "USD",
				 "transactionType": "MYSTERY_FEE", "memo": "unknown"}
			],
			"page": 2,
			"totalPages": 3
		}`))
	})

	page, err := adapter.FetchTransactions(context.Background(), "2")
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)
	// Page-number pagination rides in the opaque cursor
	assert.Equal(t, "3", page.NextCursor)

	// Inflow types stay positive
	lease := page.Transactions[0]
	assert.Equal(t, ledger.SourceDoorLoop, lease.Source)
	assert.Equal(t, int64(120000), lease.AmountMinor)
	assert.Equal(t, "January rent", lease.RawDescription)

	// Outflow types go negative
	bill := page.Transactions[1]
	assert.Equal(t, int64(-8540), bill.AmountMinor)
	assert.Equal(t, "Repairs", bill.RawCategory)
	// Empty memo falls back to the property name
	assert.Equal(t, "Oak St 12", bill.RawDescription)

	// Unknown types default to outflow
	assert.Equal(t, int64(-5000), page.Transactions[2].AmountMinor)
}

func TestFetchTransactionsLastPage(t *testing.T) {
	adapter := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [], "page": 3, "totalPages": 3}`))
	})

	page, err := adapter.FetchTransactions(context.Background(), "3")
	require.NoError(t, err)
	assert.Empty(t, page.Transactions)
	assert.Empty(t, page.NextCursor)
}

func TestFetchTransactionsBadCursor(t *testing.T) {
	adapter := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an invalid cursor")
	})

	_, err := adapter.FetchTransactions(context.Background(), "not-a-page")
	require.Error(t, err)
	assert.True(t, connector.IsPermanent(err))
}

func TestFetchAccounts(t *testing.T) {
	adapter := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"id": "acct_9", "name": "Trust Account", "currency": "USD", "balance": "98210.11"}
			]
		}`))
	})

	accounts, err := adapter.FetchAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, int64(9821011), accounts[0].BalanceMinor)
	assert.Equal(t, "Trust Account", accounts[0].DisplayName)
}

func TestPushNotSupported(t *testing.T) {
	adapter := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := adapter.PushTransactions(context.Background(), []connector.PushItem{{Reference: "x"}})
	require.Error(t, err)
	assert.True(t, connector.IsPermanent(err))
}
