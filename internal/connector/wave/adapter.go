package wave

import (
	"context"
	"fmt"
	"time"

	"github.com/NeverShitty/rental-manager-sub001/internal/connector"
	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/pkg/money"
)

// Adapter adapts the Wave client to the connector.Connector interface.
//
// Sign convention: Wave reports positive amounts with a direction field.
// WITHDRAWAL becomes negative (outflow), DEPOSIT stays positive (inflow).
type Adapter struct {
	client *Client
}

var _ connector.Connector = (*Adapter)(nil)

// NewAdapter creates a new Wave connector adapter
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

// Source implements connector.Connector
func (a *Adapter) Source() ledger.Source {
	return ledger.SourceWave
}

// FetchTransactions implements connector.Connector
func (a *Adapter) FetchTransactions(ctx context.Context, cursor string) (*connector.Page, error) {
	resp, err := a.client.GetTransactions(ctx, cursor)
	if err != nil {
		return nil, err
	}

	page := &connector.Page{
		Transactions: make([]connector.RawTransaction, 0, len(resp.Transactions)),
		NextCursor:   resp.NextPageToken,
	}
	for _, wt := range resp.Transactions {
		raw, err := convertTransaction(wt)
		if err != nil {
			page.NextCursor = ""
			return page, connector.NewError(connector.KindPermanent, "wave",
				fmt.Sprintf("malformed transaction %s", wt.ID), err)
		}
		page.Transactions = append(page.Transactions, raw)
	}
	return page, nil
}

func convertTransaction(wt Transaction) (connector.RawTransaction, error) {
	amountMinor, err := money.ParseMinor(wt.Amount)
	if err != nil {
		return connector.RawTransaction{}, fmt.Errorf("invalid amount: %w", err)
	}
	switch wt.Direction {
	case DirectionWithdrawal:
		amountMinor = -money.Abs(amountMinor)
	case DirectionDeposit:
		amountMinor = money.Abs(amountMinor)
	default:
		return connector.RawTransaction{}, fmt.Errorf("unknown direction %q", wt.Direction)
	}

	date, err := time.Parse("2006-01-02", wt.Date)
	if err != nil {
		return connector.RawTransaction{}, fmt.Errorf("invalid date: %w", err)
	}

	var rawCategory string
	if wt.Category != nil {
		rawCategory = wt.Category.Name
	}

	return connector.RawTransaction{
		Source:         ledger.SourceWave,
		ExternalID:     wt.ID,
		Timestamp:      date,
		AmountMinor:    amountMinor,
		Currency:       wt.Currency,
		RawDescription: wt.Description,
		RawCategory:    rawCategory,
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
	for _, wa := range resp.Accounts {
		balance, err := money.ParseMinor(wa.Balance)
		if err != nil {
			continue
		}
		accounts = append(accounts, ledger.ExternalAccount{
			Source:       ledger.SourceWave,
			ExternalID:   wa.ID,
			DisplayName:  wa.Name,
			Currency:     wa.Currency,
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

// PushTransactions implements connector.Connector. Items are keyed by their
// canonical ID; Wave's duplicate detection on external_reference makes the
// whole batch idempotent, so a "duplicate" result counts as success.
func (a *Adapter) PushTransactions(ctx context.Context, batch []connector.PushItem) ([]connector.PushResult, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	req := CreateTransactionsRequest{
		Transactions: make([]CreateTransaction, 0, len(batch)),
	}
	for _, item := range batch {
		direction := DirectionDeposit
		if item.AmountMinor < 0 {
			direction = DirectionWithdrawal
		}
		req.Transactions = append(req.Transactions, CreateTransaction{
			ExternalReference: item.Reference,
			Date:              item.PostedDate.Format("2006-01-02"),
			Amount:            money.FormatMinor(money.Abs(item.AmountMinor)),
			Currency:          item.Currency,
			Direction:         direction,
			Description:       item.Description,
			CategoryID:        item.CategoryID,
		})
	}

	resp, err := a.client.CreateTransactions(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make([]connector.PushResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		res := connector.PushResult{Reference: r.ExternalReference}
		if r.Status == "error" {
			res.Err = connector.NewError(connector.KindPermanent, "wave", r.Error, nil)
		}
		results = append(results, res)
	}
	return results, nil
}
