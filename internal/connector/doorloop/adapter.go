package doorloop

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/NeverShitty/rental-manager-sub001/internal/connector"
	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/pkg/money"
)

// Adapter adapts the DoorLoop client to the connector.Connector interface.
//
// Sign convention: DoorLoop amounts are always positive; transactionType
// carries the direction. LEASE_PAYMENT and OWNER_DEPOSIT are inflows
// (positive), EXPENSE and VENDOR_BILL are outflows (negative). Unknown types
// are treated as outflows and flagged by category for review.
//
// The opaque cursor token is the next page number in decimal; DoorLoop has
// no token pagination.
type Adapter struct {
	client *Client
}

var _ connector.Connector = (*Adapter)(nil)

// NewAdapter creates a new DoorLoop connector adapter
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

// Source implements connector.Connector
func (a *Adapter) Source() ledger.Source {
	return ledger.SourceDoorLoop
}

// FetchTransactions implements connector.Connector
func (a *Adapter) FetchTransactions(ctx context.Context, cursor string) (*connector.Page, error) {
	page := 1
	if cursor != "" {
		var err error
		page, err = strconv.Atoi(cursor)
		if err != nil || page < 1 {
			return nil, connector.NewError(connector.KindPermanent, "doorloop",
				fmt.Sprintf("invalid cursor token %q", cursor), err)
		}
	}

	resp, err := a.client.GetTransactions(ctx, page)
	if err != nil {
		return nil, err
	}

	out := &connector.Page{
		Transactions: make([]connector.RawTransaction, 0, len(resp.Data)),
	}
	if resp.Page < resp.TotalPages {
		out.NextCursor = strconv.Itoa(resp.Page + 1)
	}

	for _, dt := range resp.Data {
		raw, err := convertTransaction(dt)
		if err != nil {
			out.NextCursor = ""
			return out, connector.NewError(connector.KindPermanent, "doorloop",
				fmt.Sprintf("malformed transaction %s", dt.ID), err)
		}
		out.Transactions = append(out.Transactions, raw)
	}
	return out, nil
}

func convertTransaction(dt Transaction) (connector.RawTransaction, error) {
	magnitude, err := money.ParseMinor(dt.Amount.String())
	if err != nil {
		return connector.RawTransaction{}, fmt.Errorf("invalid amount: %w", err)
	}
	magnitude = money.Abs(magnitude)

	amountMinor := -magnitude // outflow unless a known inflow type
	switch dt.TransactionType {
	case TypeLeasePayment, TypeDeposit:
		amountMinor = magnitude
	case TypeExpense, TypeVendorBill:
	}

	date, err := time.Parse("2006-01-02", dt.Date)
	if err != nil {
		return connector.RawTransaction{}, fmt.Errorf("invalid date: %w", err)
	}

	desc := dt.Memo
	if desc == "" {
		desc = dt.PropertyName
	}

	return connector.RawTransaction{
		Source:         ledger.SourceDoorLoop,
		ExternalID:     dt.ID,
		Timestamp:      date,
		AmountMinor:    amountMinor,
		Currency:       dt.Currency,
		RawDescription: desc,
		RawCategory:    dt.CategoryName,
	}, nil
}

// FetchAccounts implements connector.Connector
func (a *Adapter) FetchAccounts(ctx context.Context) ([]ledger.ExternalAccount, error) {
	resp, err := a.client.GetBankAccounts(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	accounts := make([]ledger.ExternalAccount, 0, len(resp.Data))
	for _, da := range resp.Data {
		balance, err := money.ParseMinor(da.Balance.String())
		if err != nil {
			continue
		}
		accounts = append(accounts, ledger.ExternalAccount{
			Source:       ledger.SourceDoorLoop,
			ExternalID:   da.ID,
			DisplayName:  da.Name,
			Currency:     da.Currency,
			BalanceMinor: balance,
			FetchedAt:    now,
		})
	}
	return accounts, nil
}

// TestConnection implements connector.Connector
func (a *Adapter) TestConnection(ctx context.Context) error {
	_, err := a.client.GetBankAccounts(ctx)
	return err
}

// PushTransactions implements connector.Connector. DoorLoop records originate
// in the property system; nothing is written back.
func (a *Adapter) PushTransactions(ctx context.Context, batch []connector.PushItem) ([]connector.PushResult, error) {
	return nil, connector.NewError(connector.KindPermanent, "doorloop", "push not supported", nil)
}
