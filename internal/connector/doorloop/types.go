package doorloop

import "encoding/json"

// Transaction type values used by the DoorLoop API
const (
	TypeLeasePayment = "LEASE_PAYMENT"
	TypeExpense      = "EXPENSE"
	TypeVendorBill   = "VENDOR_BILL"
	TypeDeposit      = "OWNER_DEPOSIT"
)

// TransactionsResponse is the DoorLoop transactions page payload
type TransactionsResponse struct {
	Data       []Transaction `json:"data"`
	Page       int           `json:"page"`
	TotalPages int           `json:"totalPages"`
}

// Transaction is one property transaction as DoorLoop reports it. Amount is
// always a positive decimal; TransactionType determines the direction
// (lease payments and owner deposits flow in, expenses and vendor bills flow
// out).
type Transaction struct {
	ID              string      `json:"id"`
	Date            string      `json:"date"` // YYYY-MM-DD
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
	TransactionType string      `json:"transactionType"`
	Memo            string      `json:"memo"`
	PropertyName    string      `json:"propertyName"`
	CategoryName    string      `json:"categoryName"`
}

// AccountsResponse is the DoorLoop accounts payload
type AccountsResponse struct {
	Data []Account `json:"data"`
}

// Account is one DoorLoop operating account
type Account struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Currency string      `json:"currency"`
	Balance  json.Number `json:"balance"`
}
