// Package connector defines the capability interface every external financial
// platform adapter implements, plus the shared error taxonomy. One adapter
// package per vendor lives underneath (mercury, wave, doorloop).
package connector

import (
	"context"
	"time"

	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
)

// RawTransaction is one transaction as fetched from an external platform,
// already sign-normalized by the adapter into the shared convention (outflow
// negative, inflow positive, minor currency units). It is transient: raw
// records are never persisted as-is.
type RawTransaction struct {
	Source         ledger.Source
	ExternalID     string
	Timestamp      time.Time
	AmountMinor    int64
	Currency       string
	RawDescription string
	RawCategory    string
}

// Page is one page of fetched transactions. On a mid-page failure the
// connector returns the items fetched so far together with the error; the
// caller must not advance its cursor past an incomplete page.
type Page struct {
	Transactions []RawTransaction
	NextCursor   string // empty when the history is exhausted
}

// PushItem is one transaction to export to a system of record. Reference is
// the canonical ID; receivers treat it as an idempotency key.
type PushItem struct {
	Reference   string
	AmountMinor int64
	Currency    string
	PostedDate  time.Time
	Description string
	CategoryID  string
}

// PushResult is the per-item outcome of a push batch
type PushResult struct {
	Reference string
	Err       error
}

// Connector is the fixed capability set of one external platform adapter.
// Implementations own their platform's auth validation and amount/sign
// normalization.
type Connector interface {
	Source() ledger.Source

	// FetchTransactions returns one page starting at the given opaque cursor
	// token (empty for the beginning of history).
	FetchTransactions(ctx context.Context, cursor string) (*Page, error)

	FetchAccounts(ctx context.Context) ([]ledger.ExternalAccount, error)

	TestConnection(ctx context.Context) error

	PushTransactions(ctx context.Context, batch []PushItem) ([]PushResult, error)
}
