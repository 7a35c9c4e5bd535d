package mercury

import (
	"context"
	"fmt"
	"time"

	"github.com/NeverShitty/rental-manager-sub001/internal/connector"
	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/pkg/money"
)

// Adapter adapts the Mercury client to the connector.Connector interface.
//
// Sign convention: Mercury amounts are already signed from the bank account's
// perspective (outflow negative), which is the internal convention, so
// amounts pass through unchanged apart from decimal-to-minor conversion.
type Adapter struct {
	client *Client
}

var _ connector.Connector = (*Adapter)(nil)

// NewAdapter creates a new Mercury connector adapter
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

// Source implements connector.Connector
func (a *Adapter) Source() ledger.Source {
	return ledger.SourceMercury
}

// FetchTransactions implements connector.Connector. Pending transactions are
// excluded: only posted movements participate in reconciliation.
func (a *Adapter) FetchTransactions(ctx context.Context, cursor string) (*connector.Page, error) {
	resp, err := a.client.GetTransactions(ctx, cursor)
	if err != nil {
		return nil, err
	}

	page := &connector.Page{
		Transactions: make([]connector.RawTransaction, 0, len(resp.Transactions)),
		NextCursor:   resp.NextStartAfter,
	}
	for _, mt := range resp.Transactions {
		if mt.Status != "sent" && mt.Status != "posted" {
			continue
		}
		raw, err := convertTransaction(mt)
		if err != nil {
			// A malformed item poisons the whole page: returning what was
			// fetched so far without the next cursor keeps the cursor put
			page.NextCursor = ""
			return page, connector.NewError(connector.KindPermanent, "mercury",
				fmt.Sprintf("malformed transaction %s", mt.ID), err)
		}
		page.Transactions = append(page.Transactions, raw)
	}
	return page, nil
}

func convertTransaction(mt Transaction) (connector.RawTransaction, error) {
	amountMinor, err := money.ParseMinor(mt.Amount.String())
	if err != nil {
		return connector.RawTransaction{}, fmt.Errorf("invalid amount: %w", err)
	}
	postedAt, err := time.Parse(time.RFC3339, mt.PostedAt)
	if err != nil {
		return connector.RawTransaction{}, fmt.Errorf("invalid postedAt: %w", err)
	}

	desc := mt.BankDescription
	if desc == "" {
		desc = mt.CounterpartyName
	}

	return connector.RawTransaction{
		Source:         ledger.SourceMercury,
		ExternalID:     mt.ID,
		Timestamp:      postedAt,
		AmountMinor:    amountMinor,
		Currency:       mt.Currency,
		RawDescription: desc,
		RawCategory:    mt.Kind,
	}, nil
}

// FetchAccounts implements connector.Connector
func (a *Adapter) FetchAccounts(ctx context.Context) ([]ledger.ExternalAccount, error) {
	resp, err := a.client.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	accounts := make([]ledger.ExternalAccount, 0, len(resp.Accounts))
	for _, ma := range resp.Accounts {
		balance, err := money.ParseMinor(ma.CurrentBalance.String())
		if err != nil {
			continue // skip accounts with unreadable balances
		}
		accounts = append(accounts, ledger.ExternalAccount{
			Source:       ledger.SourceMercury,
			ExternalID:   ma.ID,
			DisplayName:  ma.Name,
			Currency:     ma.Currency,
			BalanceMinor: balance,
			FetchedAt:    now,
		})
	}
	return accounts, nil
}

// TestConnection implements connector.Connector
func (a *Adapter) TestConnection(ctx context.Context) error {
	_, err := a.client.GetAccounts(ctx)
	return err
}

// PushTransactions implements connector.Connector. Mercury is a read-only
// source: the bank's history cannot be written from here.
func (a *Adapter) PushTransactions(ctx context.Context, batch []connector.PushItem) ([]connector.PushResult, error) {
	return nil, connector.NewError(connector.KindPermanent, "mercury", "push not supported", nil)
}
