package mercury

import "encoding/json"

// TransactionsResponse is the Mercury transactions page payload
type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
	// NextStartAfter is the token for the next page; empty on the last page
	NextStartAfter string `json:"nextStartAfter"`
	Total          int    `json:"total"`
}

// Transaction is one bank transaction as Mercury reports it. Amount is a
// signed decimal from the bank account's perspective: negative for money
// leaving the account. json.Number keeps the decimal exact.
type Transaction struct {
	ID               string      `json:"id"`
	Amount           json.Number `json:"amount"`
	Currency         string      `json:"currency"`
	PostedAt         string      `json:"postedAt"` // RFC3339
	CounterpartyName string      `json:"counterpartyName"`
	BankDescription  string      `json:"bankDescription"`
	Kind             string      `json:"kind"` // e.g. "externalTransfer", "debitCardTransaction"
	Status           string      `json:"status"`
}

// AccountsResponse is the Mercury accounts payload
type AccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// Account is one Mercury bank account
type Account struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Currency       string      `json:"currency"`
	CurrentBalance json.Number `json:"currentBalance"`
	Status         string      `json:"status"`
}
